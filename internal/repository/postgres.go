package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/budget-pipeline/backend/internal/models"
)

// SessionRepository хранит сессии в PostgreSQL.
type SessionRepository struct {
	db *pgxpool.Pool
}

// NewSessionRepository создает репозиторий сессий.
func NewSessionRepository(db *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create сохраняет новую сессию.
func (r *SessionRepository) Create(ctx context.Context, session *models.Session) error {
	record := session.Record()
	draft, err := json.Marshal(record.Draft)
	if err != nil {
		return fmt.Errorf("encode draft: %w", err)
	}
	profile, foundational, err := encodeContext(record)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx,
		`INSERT INTO budget_sessions
		 (id, stage, draft, user_query, user_profile, foundational_context, created_at, updated_at)
		 VALUES ($1, $2, $3::jsonb, $4, $5::jsonb, NULLIF($6, '')::jsonb, $7, $8)`,
		record.ID,
		string(record.Stage),
		string(draft),
		record.UserQuery,
		string(profile),
		string(foundational),
		record.CreatedAt,
		record.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("session %s: %w", record.ID, ErrConflict)
		}
		return err
	}
	return nil
}

// Get возвращает сессию по идентификатору.
func (r *SessionRepository) Get(ctx context.Context, id string) (*models.Session, error) {
	var record models.SessionRecord
	var stage string
	var draft, partial, final, profile, foundational []byte

	err := r.db.QueryRow(ctx,
		`SELECT id, stage, draft, partial, final, user_query, user_profile, foundational_context, created_at, updated_at
		 FROM budget_sessions
		 WHERE id = $1`,
		id,
	).Scan(&record.ID, &stage, &draft, &partial, &final, &record.UserQuery, &profile, &foundational, &record.CreatedAt, &record.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	record.Stage = models.Stage(stage)
	if err := json.Unmarshal(draft, &record.Draft); err != nil {
		return nil, fmt.Errorf("decode draft of %s: %w", id, err)
	}
	if record.Partial, err = decodeModel(partial); err != nil {
		return nil, fmt.Errorf("decode partial of %s: %w", id, err)
	}
	if record.Final, err = decodeModel(final); err != nil {
		return nil, fmt.Errorf("decode final of %s: %w", id, err)
	}
	if len(profile) > 0 {
		if err := json.Unmarshal(profile, &record.UserProfile); err != nil {
			return nil, fmt.Errorf("decode profile of %s: %w", id, err)
		}
	}
	if len(foundational) > 0 {
		if err := json.Unmarshal(foundational, &record.FoundationalContext); err != nil {
			return nil, fmt.Errorf("decode context of %s: %w", id, err)
		}
	}

	return models.SessionFromRecord(record)
}

// UpdatePartial сохраняет частичную модель и стадию.
func (r *SessionRepository) UpdatePartial(ctx context.Context, session *models.Session) error {
	if err := checkPartial(session); err != nil {
		return err
	}
	partial, _ := session.Partial()
	data, err := json.Marshal(partial)
	if err != nil {
		return fmt.Errorf("encode partial: %w", err)
	}

	return r.exec(ctx,
		`UPDATE budget_sessions
		 SET partial = $2::jsonb, stage = $3, updated_at = $4
		 WHERE id = $1`,
		session.ID, string(data), string(session.Stage()), session.UpdatedAt,
	)
}

// UpdateFinal сохраняет финальную модель и стадию.
func (r *SessionRepository) UpdateFinal(ctx context.Context, session *models.Session) error {
	if err := checkFinal(session); err != nil {
		return err
	}
	final, _ := session.Final()
	data, err := json.Marshal(final)
	if err != nil {
		return fmt.Errorf("encode final: %w", err)
	}

	return r.exec(ctx,
		`UPDATE budget_sessions
		 SET final = $2::jsonb, stage = $3, updated_at = $4
		 WHERE id = $1 AND partial IS NOT NULL`,
		session.ID, string(data), string(session.Stage()), session.UpdatedAt,
	)
}

// UpdateContext сохраняет запрос, профиль и контекст пользователя.
func (r *SessionRepository) UpdateContext(ctx context.Context, session *models.Session) error {
	profile, foundational, err := encodeContext(session.Record())
	if err != nil {
		return err
	}

	return r.exec(ctx,
		`UPDATE budget_sessions
		 SET user_query = $2, user_profile = $3::jsonb, foundational_context = NULLIF($4, '')::jsonb, updated_at = $5
		 WHERE id = $1`,
		session.ID, session.UserQuery, string(profile), string(foundational), session.UpdatedAt,
	)
}

func (r *SessionRepository) exec(ctx context.Context, query string, args ...any) error {
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func encodeContext(record models.SessionRecord) ([]byte, []byte, error) {
	profile := record.UserProfile
	if profile == nil {
		profile = map[string]any{}
	}
	profileData, err := json.Marshal(profile)
	if err != nil {
		return nil, nil, fmt.Errorf("encode profile: %w", err)
	}

	var foundational []byte
	if record.FoundationalContext != nil {
		foundational, err = json.Marshal(record.FoundationalContext)
		if err != nil {
			return nil, nil, fmt.Errorf("encode foundational context: %w", err)
		}
	}
	return profileData, foundational, nil
}

func decodeModel(data []byte) (*models.UnifiedModel, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var model models.UnifiedModel
	if err := json.Unmarshal(data, &model); err != nil {
		return nil, err
	}
	return &model, nil
}
