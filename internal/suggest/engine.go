package suggest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"

	"example.com/budget-pipeline/backend/internal/ai"
	"example.com/budget-pipeline/backend/internal/models"
)

type Input struct {
	SessionID   string
	Model       models.UnifiedModel
	UserQuery   string
	UserProfile map[string]any
}

type Engine struct {
	generator  *ai.Generator
	thresholds Thresholds
	validate   *validator.Validate
	logger     *slog.Logger
}

type generatedSuggestions struct {
	Suggestions []models.Suggestion `json:"suggestions" validate:"required,dive"`
}

// NewEngine создает движок рекомендаций.
func NewEngine(generator *ai.Generator, thresholds Thresholds, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		generator:  generator,
		thresholds: thresholds.withDefaults(),
		validate:   validator.New(),
		logger:     logger,
	}
}

// Generate всегда возвращает результат: любая ошибка провайдера переводит на эвристики.
func (e *Engine) Generate(ctx context.Context, in Input) models.SuggestionResult {
	if !e.generator.Enabled() {
		return models.SuggestionResult{
			Suggestions:       Deterministic(in.Model, e.thresholds),
			UsedDeterministic: true,
			Metadata: models.ProviderMetadata{
				Provider:          "deterministic",
				UsedDeterministic: true,
				FallbackReason:    ai.FallbackReason(ai.ErrDisabled),
			},
		}
	}

	suggestions, err := e.generate(ctx, in)
	if err != nil {
		reason := ai.FallbackReason(err)
		e.logger.Warn("suggestions fallback used",
			slog.String("budget_id", in.SessionID),
			slog.String("component", "suggest"),
			slog.String("reason", reason),
			slog.String("error", err.Error()),
		)
		return models.SuggestionResult{
			Suggestions:       Deterministic(in.Model, e.thresholds),
			UsedDeterministic: true,
			Metadata: models.ProviderMetadata{
				Provider:          e.generator.Provider(),
				Model:             e.generator.Model(),
				UsedDeterministic: true,
				FallbackReason:    reason,
			},
		}
	}

	return models.SuggestionResult{
		Suggestions: suggestions,
		Metadata: models.ProviderMetadata{
			Provider: e.generator.Provider(),
			Model:    e.generator.Model(),
		},
	}
}

func (e *Engine) generate(ctx context.Context, in Input) ([]models.Suggestion, error) {
	payload, err := json.Marshal(map[string]any{
		"model":          in.Model,
		"category_share": in.Model.CategoryShares(),
		"user_query":     in.UserQuery,
		"user_profile":   in.UserProfile,
	})
	if err != nil {
		return nil, fmt.Errorf("encode suggestions prompt: %w", err)
	}

	var generated generatedSuggestions
	err = e.generator.GenerateJSON(ctx, ai.Call{
		Kind:      "suggestions",
		SessionID: in.SessionID,
		System:    systemPrompt,
		Prompt:    fmt.Sprintf("Budget and context:\n%s", payload),
	}, &generated, func() error {
		if err := e.validate.Struct(generated); err != nil {
			return err
		}
		seen := make(map[string]struct{}, len(generated.Suggestions))
		for _, suggestion := range generated.Suggestions {
			if _, ok := seen[suggestion.ID]; ok {
				return fmt.Errorf("duplicate suggestion id %q", suggestion.ID)
			}
			seen[suggestion.ID] = struct{}{}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	suggestions := generated.Suggestions
	Rank(suggestions)
	return suggestions, nil
}

const systemPrompt = `You are a budgeting assistant. Suggest concrete changes that improve the monthly budget.
Respond with JSON only: {"suggestions":[{"id":"","title":"","description":"","expected_monthly_impact":0,"category":"","related_ids":[]}]}
Rules:
- expected_monthly_impact is a non-negative monthly amount in the budget currency.
- Debt interest_rate values are annual percentages.
- Respect preferences: do not cut essential expenses when protect_essentials is true and keep each category change within max_desired_change_per_category.
- related_ids must reference ids from the budget.`
