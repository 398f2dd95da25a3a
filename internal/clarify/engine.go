package clarify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"

	"example.com/budget-pipeline/backend/internal/ai"
	"example.com/budget-pipeline/backend/internal/models"
)

const DefaultMaxQuestions = 5

// Input is everything the engine looks at. It never reads the session store.
type Input struct {
	SessionID           string
	Model               models.UnifiedModel
	UserQuery           string
	UserProfile         map[string]any
	FoundationalContext map[string]any
	MaxQuestions        int
}

type Engine struct {
	generator    *ai.Generator
	validate     *validator.Validate
	maxQuestions int
	logger       *slog.Logger
}

type generatedClarification struct {
	Questions      []models.Question      `json:"questions" validate:"dive"`
	Analysis       string                 `json:"analysis"`
	QuestionGroups []models.QuestionGroup `json:"question_groups" validate:"dive"`
	NextSteps      []string               `json:"next_steps"`
}

// NewEngine создает движок уточняющих вопросов.
func NewEngine(generator *ai.Generator, maxQuestions int, logger *slog.Logger) *Engine {
	if maxQuestions <= 0 {
		maxQuestions = DefaultMaxQuestions
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		generator:    generator,
		validate:     validator.New(),
		maxQuestions: maxQuestions,
		logger:       logger,
	}
}

// Generate возвращает уточняющие вопросы. Ошибки провайдера не выходят наружу:
// при любой из них используется детерминированная таблица правил.
func (e *Engine) Generate(ctx context.Context, in Input) models.ClarificationResult {
	limit := in.MaxQuestions
	if limit <= 0 {
		limit = e.maxQuestions
	}

	if e.generator.Enabled() {
		result, err := e.generate(ctx, in, limit)
		if err == nil {
			return result
		}

		e.logger.Warn("clarification fallback used",
			slog.String("budget_id", in.SessionID),
			slog.String("component", "clarify"),
			slog.String("reason", ai.FallbackReason(err)),
			slog.String("error", err.Error()),
		)
		result = Deterministic(in, limit)
		result.Metadata = models.ProviderMetadata{
			Provider:          e.generator.Provider(),
			Model:             e.generator.Model(),
			UsedDeterministic: true,
			FallbackReason:    ai.FallbackReason(err),
		}
		return result
	}

	result := Deterministic(in, limit)
	result.Metadata = models.ProviderMetadata{
		Provider:          "deterministic",
		UsedDeterministic: true,
		FallbackReason:    ai.FallbackReason(ai.ErrDisabled),
	}
	return result
}

func (e *Engine) generate(ctx context.Context, in Input, limit int) (models.ClarificationResult, error) {
	prompt, err := buildPrompt(in, limit)
	if err != nil {
		return models.ClarificationResult{}, err
	}

	var generated generatedClarification
	err = e.generator.GenerateJSON(ctx, ai.Call{
		Kind:      "clarification",
		SessionID: in.SessionID,
		System:    systemPrompt,
		Prompt:    prompt,
	}, &generated, func() error {
		return e.check(generated)
	})
	if err != nil {
		return models.ClarificationResult{}, err
	}

	questions := generated.Questions
	if len(questions) > limit {
		questions = questions[:limit]
	}
	if questions == nil {
		questions = []models.Question{}
	}

	kept := make(map[string]struct{}, len(questions))
	for _, question := range questions {
		kept[question.ID] = struct{}{}
	}
	groups := make([]models.QuestionGroup, 0, len(generated.QuestionGroups))
	for _, group := range generated.QuestionGroups {
		ids := make([]string, 0, len(group.QuestionIDs))
		for _, id := range group.QuestionIDs {
			if _, ok := kept[id]; ok {
				ids = append(ids, id)
			}
		}
		if len(ids) > 0 {
			group.QuestionIDs = ids
			groups = append(groups, group)
		}
	}

	return models.ClarificationResult{
		Questions:          questions,
		NeedsClarification: len(questions) > 0,
		Analysis:           strings.TrimSpace(generated.Analysis),
		QuestionGroups:     groups,
		NextSteps:          generated.NextSteps,
		Metadata: models.ProviderMetadata{
			Provider: e.generator.Provider(),
			Model:    e.generator.Model(),
		},
	}, nil
}

func (e *Engine) check(generated generatedClarification) error {
	if err := e.validate.Struct(generated); err != nil {
		return err
	}

	ids := make(map[string]struct{}, len(generated.Questions))
	fields := make(map[string]struct{}, len(generated.Questions))
	for _, question := range generated.Questions {
		if _, ok := ids[question.ID]; ok {
			return fmt.Errorf("duplicate question id %q", question.ID)
		}
		if _, ok := fields[question.FieldID]; ok {
			return fmt.Errorf("duplicate field id %q", question.FieldID)
		}
		ids[question.ID] = struct{}{}
		fields[question.FieldID] = struct{}{}

		if question.Constraints != nil && question.Constraints.Minimum != nil && question.Constraints.Maximum != nil &&
			*question.Constraints.Minimum > *question.Constraints.Maximum {
			return fmt.Errorf("question %q: minimum exceeds maximum", question.ID)
		}
	}
	return nil
}

const systemPrompt = `You are a budgeting assistant that finds missing information in a household budget.
Respond with JSON only, using this shape:
{"questions":[{"id":"","field_id":"","prompt":"","description":"","component":"number_input|dropdown|toggle|slider|textarea","constraints":{"minimum":0,"maximum":0,"step":0,"unit":"","default":null},"options":[{"label":"","value":""}]}],
 "analysis":"","question_groups":[{"id":"","title":"","question_ids":[]}],"next_steps":[]}
Rules:
- Ask about the most valuable gaps first: essential flags on expenses, then debt interest rates and priorities, then preferences, then open goals.
- Use field_id "essential_<expense id>" for essential flags and "debt_<debt id>_<attribute>" for debt attributes.
- Use field ids "optimization_focus", "protect_essentials" and "max_desired_change_per_category" for preferences.
- Interest rates are annual percentages between 0 and 100.
- Dropdown questions must include options.
- Return an empty questions list when nothing is missing.`

func buildPrompt(in Input, limit int) (string, error) {
	payload := map[string]any{
		"model":                in.Model,
		"user_query":           in.UserQuery,
		"user_profile":         in.UserProfile,
		"foundational_context": in.FoundationalContext,
		"max_questions":        limit,
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", errors.Join(errors.New("encode clarification prompt"), err)
	}

	return fmt.Sprintf("Budget and context:\n%s\n\nReturn at most %d questions.", encoded, limit), nil
}
