package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"example.com/budget-pipeline/backend/internal/answers"
	"example.com/budget-pipeline/backend/internal/clarify"
	"example.com/budget-pipeline/backend/internal/ingest"
	"example.com/budget-pipeline/backend/internal/models"
	"example.com/budget-pipeline/backend/internal/normalize"
	"example.com/budget-pipeline/backend/internal/notifications"
	"example.com/budget-pipeline/backend/internal/patch"
	"example.com/budget-pipeline/backend/internal/repository"
	"example.com/budget-pipeline/backend/internal/suggest"
)

// SessionStore persists sessions. Updates are whole read-modify-write cycles
// and are not protected against concurrent writers of the same session.
type SessionStore interface {
	Create(ctx context.Context, session *models.Session) error
	Get(ctx context.Context, id string) (*models.Session, error)
	UpdatePartial(ctx context.Context, session *models.Session) error
	UpdateFinal(ctx context.Context, session *models.Session) error
	UpdateContext(ctx context.Context, session *models.Session) error
}

type Archive interface {
	Store(ctx context.Context, budgetID, filename, contentType string, content []byte) (string, error)
}

type Publisher interface {
	Publish(budgetID string, event notifications.Event)
}

type Deps struct {
	Store      SessionStore
	Normalizer *normalize.Normalizer
	Clarifier  *clarify.Engine
	Suggester  *suggest.Engine
	Archive    Archive
	Events     Publisher
	Logger     *slog.Logger
	Now        func() time.Time
	NewID      func() string
}

type Service struct {
	store      SessionStore
	normalizer *normalize.Normalizer
	clarifier  *clarify.Engine
	suggester  *suggest.Engine
	archive    Archive
	events     Publisher
	logger     *slog.Logger
	now        func() time.Time
	newID      func() string
}

// NewService собирает конвейер сессий бюджета.
func NewService(deps Deps) *Service {
	service := &Service{
		store:      deps.Store,
		normalizer: deps.Normalizer,
		clarifier:  deps.Clarifier,
		suggester:  deps.Suggester,
		archive:    deps.Archive,
		events:     deps.Events,
		logger:     deps.Logger,
		now:        deps.Now,
		newID:      deps.NewID,
	}
	if service.normalizer == nil {
		service.normalizer = normalize.New(nil)
	}
	if service.clarifier == nil {
		service.clarifier = clarify.NewEngine(nil, clarify.DefaultMaxQuestions, deps.Logger)
	}
	if service.suggester == nil {
		service.suggester = suggest.NewEngine(nil, suggest.Thresholds{}, deps.Logger)
	}
	if service.logger == nil {
		service.logger = slog.Default()
	}
	if service.now == nil {
		service.now = func() time.Time { return time.Now().UTC() }
	}
	if service.newID == nil {
		service.newID = uuid.NewString
	}
	return service
}

type UploadInput struct {
	Filename    string
	ContentType string
	Content     []byte
	UserQuery   string
}

type CreateInput struct {
	Model         *models.UnifiedModel
	PlannerInputs map[string]any
	UserQuery     string
}

// Created describes a new session and a preview of its totals.
type Created struct {
	BudgetID       string         `json:"budget_id"`
	Status         string         `json:"status"`
	DetectedFormat string         `json:"detected_format"`
	FormatHints    map[string]any `json:"detected_format_hints,omitempty"`
	SummaryPreview models.Summary `json:"summary_preview"`
}

// Upload разбирает файл, проверяет нормализацию и создает сессию на стадии draft.
func (s *Service) Upload(ctx context.Context, in UploadInput) (Created, error) {
	if len(in.Content) == 0 {
		return Created{}, validation("file is required")
	}

	draft, err := ingest.Parse(in.Filename, in.Content)
	if err != nil {
		return Created{}, formatFailure(err)
	}

	created, err := s.create(ctx, draft, in.UserQuery, "uploaded")
	if err != nil {
		return Created{}, err
	}

	if s.archive != nil {
		if key, archiveErr := s.archive.Store(ctx, created.BudgetID, in.Filename, in.ContentType, in.Content); archiveErr != nil {
			s.logger.Warn("upload archive failed",
				slog.String("budget_id", created.BudgetID),
				slog.String("error", archiveErr.Error()),
			)
		} else {
			s.logger.Info("upload archived", slog.String("budget_id", created.BudgetID), slog.String("key", key))
		}
	}

	return created, nil
}

// Create создает сессию из готовой модели конструктора бюджета.
func (s *Service) Create(ctx context.Context, in CreateInput) (Created, error) {
	if in.Model == nil {
		return Created{}, validation("unifiedModel is required")
	}

	structured := in.Model.Clone()
	draft := models.Draft{
		Lines:          []models.DraftLine{},
		DetectedFormat: ingest.FormatBudgetBuilder,
		Structured:     &structured,
		PlannerInputs:  in.PlannerInputs,
	}
	return s.create(ctx, draft, in.UserQuery, "created")
}

func (s *Service) create(ctx context.Context, draft models.Draft, userQuery, status string) (Created, error) {
	model, err := s.normalizer.Normalize(draft)
	if err != nil {
		return Created{}, formatFailure(err)
	}

	session := models.NewSession(s.newID(), draft, s.now())
	session.UserQuery = strings.TrimSpace(userQuery)
	if err := s.store.Create(ctx, session); err != nil {
		return Created{}, s.storeFailure(err, session.ID)
	}

	s.logger.Info("budget session created",
		slog.String("budget_id", session.ID),
		slog.String("format", draft.DetectedFormat),
		slog.Int("income", len(model.Income)),
		slog.Int("expenses", len(model.Expenses)),
		slog.Int("debts", len(model.Debts)),
	)
	s.publish(session.ID, notifications.EventStageChanged, map[string]any{"stage": session.Stage()})

	return Created{
		BudgetID:       session.ID,
		Status:         status,
		DetectedFormat: draft.DetectedFormat,
		FormatHints:    draft.FormatHints,
		SummaryPreview: model.Summary,
	}, nil
}

type QuestionsInput struct {
	BudgetID     string
	UserQuery    *string
	MaxQuestions int
}

type Questions struct {
	BudgetID string              `json:"budget_id"`
	Model    models.UnifiedModel `json:"partial_model"`
	models.ClarificationResult
}

// Questions строит уточняющие вопросы и обновляет частичную модель.
// Повторный вызов безопасен: модель каждый раз выводится заново.
func (s *Service) Questions(ctx context.Context, in QuestionsInput) (Questions, error) {
	if strings.TrimSpace(in.BudgetID) == "" {
		return Questions{}, validation("budget_id is required")
	}
	if in.MaxQuestions < 0 {
		return Questions{}, validation("max_questions must not be negative")
	}

	session, err := s.load(ctx, in.BudgetID)
	if err != nil {
		return Questions{}, err
	}

	draft := session.Draft()
	if draft.Structured == nil && len(draft.Lines) == 0 {
		return Questions{}, stage(CodeDraftMissing, "upload a budget before requesting questions")
	}

	model, ok := session.Final()
	if !ok {
		model, err = s.normalizer.Normalize(draft)
		if err != nil {
			return Questions{}, formatFailure(err)
		}
	}

	if in.UserQuery != nil && strings.TrimSpace(*in.UserQuery) != session.UserQuery {
		session.UserQuery = strings.TrimSpace(*in.UserQuery)
	}

	previous := session.Stage()
	session.SetPartial(model, s.now())
	if err := s.store.UpdatePartial(ctx, session); err != nil {
		return Questions{}, s.storeFailure(err, session.ID)
	}
	if err := s.store.UpdateContext(ctx, session); err != nil {
		return Questions{}, s.storeFailure(err, session.ID)
	}
	if previous != session.Stage() {
		s.publish(session.ID, notifications.EventStageChanged, map[string]any{"stage": session.Stage()})
	}

	result := s.clarifier.Generate(ctx, clarify.Input{
		SessionID:           session.ID,
		Model:               model,
		UserQuery:           session.UserQuery,
		UserProfile:         session.UserProfile,
		FoundationalContext: session.FoundationalContext,
		MaxQuestions:        in.MaxQuestions,
	})

	return Questions{BudgetID: session.ID, Model: model, ClarificationResult: result}, nil
}

type Submitted struct {
	BudgetID        string           `json:"budget_id"`
	Status          string           `json:"status"`
	ReadyForSummary bool             `json:"ready_for_summary"`
	Warnings        []models.Warning `json:"warnings"`
}

// SubmitAnswers классифицирует ответы, применяет модельные к модели и
// переводит сессию в стадию final.
func (s *Service) SubmitAnswers(ctx context.Context, budgetID string, submitted map[string]any) (Submitted, error) {
	if strings.TrimSpace(budgetID) == "" {
		return Submitted{}, validation("budget_id is required")
	}
	if submitted == nil {
		return Submitted{}, validation("answers is required")
	}

	session, err := s.load(ctx, budgetID)
	if err != nil {
		return Submitted{}, err
	}

	base, ok := session.Final()
	if !ok {
		base, ok = session.Partial()
	}
	if !ok {
		return Submitted{}, stage(CodePartialMissing, "request clarification questions before submitting answers")
	}

	if len(submitted) == 0 {
		pending := clarify.Deterministic(clarify.Input{
			Model:               base,
			UserQuery:           session.UserQuery,
			UserProfile:         session.UserProfile,
			FoundationalContext: session.FoundationalContext,
		}, 0)
		if pending.NeedsClarification {
			return Submitted{}, stage(CodeAnswersIncomplete, "answers are required while clarification questions remain open")
		}
	}

	partition := answers.Split(submitted)
	applied := answers.Apply(base, partition.Model)
	for _, warning := range applied.Warnings {
		s.logger.Warn("answer not applied",
			slog.String("budget_id", session.ID),
			slog.String("field", warning.Field),
			slog.String("reason", warning.Message),
		)
	}

	session.UserProfile = answers.MergeProfile(session.UserProfile, partition)
	if err := session.SetFinal(applied.Model, s.now()); err != nil {
		return Submitted{}, internal(err)
	}
	if err := s.store.UpdateFinal(ctx, session); err != nil {
		return Submitted{}, s.storeFailure(err, session.ID)
	}
	if err := s.store.UpdateContext(ctx, session); err != nil {
		return Submitted{}, s.storeFailure(err, session.ID)
	}

	s.logger.Info("answers applied",
		slog.String("budget_id", session.ID),
		slog.Int("model", len(partition.Model)),
		slog.Int("profile", len(partition.Profile)),
		slog.Int("extra_context", len(partition.ExtraContext)),
		slog.Int("warnings", len(applied.Warnings)),
	)
	s.publish(session.ID, notifications.EventStageChanged, map[string]any{"stage": session.Stage()})

	return Submitted{
		BudgetID:        session.ID,
		Status:          "ready_for_summary",
		ReadyForSummary: true,
		Warnings:        applied.Warnings,
	}, nil
}

type Summary struct {
	BudgetID          string                  `json:"budget_id"`
	Summary           models.Summary          `json:"summary"`
	CategoryShares    map[string]float64      `json:"category_shares"`
	Suggestions       []models.Suggestion     `json:"suggestions"`
	UsedDeterministic bool                    `json:"used_deterministic"`
	Metadata          models.ProviderMetadata `json:"provider_metadata"`
	UserQuery         string                  `json:"user_query"`
}

// SummaryAndSuggestions возвращает итоги и рекомендации для финальной модели.
func (s *Service) SummaryAndSuggestions(ctx context.Context, budgetID string) (Summary, error) {
	if strings.TrimSpace(budgetID) == "" {
		return Summary{}, validation("budget_id is required")
	}

	session, err := s.load(ctx, budgetID)
	if err != nil {
		return Summary{}, err
	}

	model, ok := session.Final()
	if !ok {
		return Summary{}, stage(CodeModelNotReady, "submit answers before requesting a summary")
	}

	result := s.suggester.Generate(ctx, suggest.Input{
		SessionID:   session.ID,
		Model:       model,
		UserQuery:   session.UserQuery,
		UserProfile: session.UserProfile,
	})

	return Summary{
		BudgetID:          session.ID,
		Summary:           model.Summary,
		CategoryShares:    model.CategoryShares(),
		Suggestions:       result.Suggestions,
		UsedDeterministic: result.UsedDeterministic,
		Metadata:          result.Metadata,
		UserQuery:         session.UserQuery,
	}, nil
}

type Budget struct {
	BudgetID            string               `json:"budget_id"`
	Stage               models.Stage         `json:"stage"`
	Model               *models.UnifiedModel `json:"model"`
	UserQuery           string               `json:"user_query"`
	UserProfile         map[string]any       `json:"user_profile"`
	FoundationalContext map[string]any       `json:"foundational_context,omitempty"`
}

// Get возвращает самую позднюю модель сессии и контекст пользователя.
func (s *Service) Get(ctx context.Context, budgetID string) (Budget, error) {
	session, err := s.load(ctx, budgetID)
	if err != nil {
		return Budget{}, err
	}

	return Budget{
		BudgetID:            session.ID,
		Stage:               session.Stage(),
		Model:               latestModel(session),
		UserQuery:           session.UserQuery,
		UserProfile:         session.UserProfile,
		FoundationalContext: session.FoundationalContext,
	}, nil
}

type PatchInput struct {
	Model               patch.Request
	UserQuery           *string
	UserProfile         map[string]any
	FoundationalContext map[string]any
}

type Patched struct {
	BudgetID  string               `json:"budget_id"`
	Status    string               `json:"status"`
	Model     *models.UnifiedModel `json:"model,omitempty"`
	UserQuery string               `json:"user_query"`
	Warnings  []models.Warning     `json:"warnings"`
}

// Patch применяет точечные правки к финальной модели и обновляет контекст.
// Правки модели требуют стадии final, правки контекста допустимы на любой стадии.
func (s *Service) Patch(ctx context.Context, budgetID string, in PatchInput) (Patched, error) {
	contextChanged := in.UserQuery != nil || in.UserProfile != nil || in.FoundationalContext != nil
	if in.Model.Empty() && !contextChanged {
		return Patched{}, validation("nothing to update")
	}

	session, err := s.load(ctx, budgetID)
	if err != nil {
		return Patched{}, err
	}

	warnings := []models.Warning{}
	status := "context_updated"

	if !in.Model.Empty() {
		final, ok := session.Final()
		if !ok {
			return Patched{}, stage(CodeModelNotReady, "the budget has no final model yet")
		}

		result, err := patch.Apply(final, in.Model)
		if err != nil {
			if errors.Is(err, patch.ErrInvalidPatch) {
				return Patched{}, validation("%s", strings.TrimPrefix(err.Error(), patch.ErrInvalidPatch.Error()+": "))
			}
			return Patched{}, internal(err)
		}
		warnings = result.Warnings
		for _, warning := range warnings {
			s.logger.Warn("patch update skipped",
				slog.String("budget_id", session.ID),
				slog.String("field", warning.Field),
				slog.String("reason", warning.Message),
			)
		}

		if err := session.SetFinal(result.Model, s.now()); err != nil {
			return Patched{}, internal(err)
		}
		status = "updated"
	}

	if in.UserQuery != nil {
		session.UserQuery = strings.TrimSpace(*in.UserQuery)
	}
	if in.UserProfile != nil {
		profile := make(map[string]any, len(session.UserProfile)+len(in.UserProfile))
		for key, value := range session.UserProfile {
			profile[key] = value
		}
		for key, value := range in.UserProfile {
			profile[key] = value
		}
		session.UserProfile = profile
	}
	if in.FoundationalContext != nil {
		session.FoundationalContext = in.FoundationalContext
	}
	session.UpdatedAt = s.now()

	if status == "updated" {
		if err := s.store.UpdateFinal(ctx, session); err != nil {
			return Patched{}, s.storeFailure(err, session.ID)
		}
		s.publish(session.ID, notifications.EventModelPatched, map[string]any{"warnings": len(warnings)})
	}
	if contextChanged {
		if err := s.store.UpdateContext(ctx, session); err != nil {
			return Patched{}, s.storeFailure(err, session.ID)
		}
		s.publish(session.ID, notifications.EventContext, nil)
	}

	return Patched{
		BudgetID:  session.ID,
		Status:    status,
		Model:     latestModel(session),
		UserQuery: session.UserQuery,
		Warnings:  warnings,
	}, nil
}

func (s *Service) load(ctx context.Context, budgetID string) (*models.Session, error) {
	id := strings.TrimSpace(budgetID)
	if id == "" {
		return nil, validation("budget_id is required")
	}

	session, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, s.storeFailure(err, id)
	}
	return session, nil
}

func (s *Service) storeFailure(err error, budgetID string) *Error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return notFound(budgetID)
	case errors.Is(err, repository.ErrStage), errors.Is(err, models.ErrStageOrder):
		s.logger.Error("session stage violated", slog.String("budget_id", budgetID), slog.String("error", err.Error()))
		return internal(err)
	default:
		s.logger.Error("session store failed", slog.String("budget_id", budgetID), slog.String("error", err.Error()))
		return internal(err)
	}
}

func (s *Service) publish(budgetID, eventType string, data any) {
	if s.events == nil {
		return
	}
	s.events.Publish(budgetID, notifications.Event{Type: eventType, Data: data})
}

func latestModel(session *models.Session) *models.UnifiedModel {
	if final, ok := session.Final(); ok {
		return &final
	}
	if partial, ok := session.Partial(); ok {
		return &partial
	}
	return nil
}

func formatFailure(err error) *Error {
	var formatErr *models.FormatError
	if errors.As(err, &formatErr) {
		return &Error{Kind: KindValidation, Code: CodeValidation, Details: formatErr.Error(), Err: err}
	}
	return internal(err)
}
