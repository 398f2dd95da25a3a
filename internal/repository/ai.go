package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/budget-pipeline/backend/internal/ai"
)

// ProviderLogRepository записывает вызовы генеративного провайдера.
type ProviderLogRepository struct {
	db *pgxpool.Pool
}

// NewProviderLogRepository создает репозиторий для журнала запросов к провайдеру.
func NewProviderLogRepository(db *pgxpool.Pool) *ProviderLogRepository {
	return &ProviderLogRepository{db: db}
}

// LogRequest сохраняет лог запроса к провайдеру.
func (r *ProviderLogRepository) LogRequest(ctx context.Context, log ai.RequestLog) error {
	var errorMessage *string
	if log.Error != "" {
		errorMessage = &log.Error
	}

	_, err := r.db.Exec(ctx,
		`INSERT INTO provider_requests
		 (session_id, request_type, provider, model, prompt, response_text, raw_response, attempts, success, error_message, duration_ms)
		 VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, '')::jsonb, $8, $9, $10, $11)`,
		log.SessionID,
		log.Kind,
		log.Provider,
		log.Model,
		log.Prompt,
		log.Response,
		string(log.Raw),
		log.Attempts,
		log.Success,
		errorMessage,
		log.Duration.Milliseconds(),
	)
	return err
}
