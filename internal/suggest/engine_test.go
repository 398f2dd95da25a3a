package suggest

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/budget-pipeline/backend/internal/ai"
	"example.com/budget-pipeline/backend/internal/models"
)

type fakeClient struct {
	responses []string
	errs      []error
	calls     int
}

func (c *fakeClient) Chat(ctx context.Context, messages []ai.Message) (string, []byte, error) {
	index := c.calls
	c.calls++
	if index < len(c.errs) && c.errs[index] != nil {
		return "", nil, c.errs[index]
	}
	if index < len(c.responses) {
		return c.responses[index], nil, nil
	}
	return "", nil, errors.New("unexpected call")
}

func newGenerator(client ai.Client) *ai.Generator {
	return ai.NewGenerator(client, ai.GeneratorConfig{Provider: "fake", MaxRetries: 1, Backoff: time.Millisecond}, nil, nil)
}

func budget() models.UnifiedModel {
	model := models.UnifiedModel{
		Income: []models.Income{
			{ID: "income-1", Name: "Salary", MonthlyAmount: 4000, Type: models.IncomeTypeEarned, Stability: models.StabilityStable},
		},
		Expenses: []models.Expense{
			{ID: "expense-1", Category: "housing", MonthlyAmount: 1500, Essential: models.BoolPtr(true)},
			{ID: "expense-2", Category: "dining", MonthlyAmount: 1200, Essential: models.BoolPtr(false)},
			{ID: "expense-3", Category: "groceries", MonthlyAmount: 500, Essential: models.BoolPtr(true)},
		},
		Debts: []models.Debt{
			{ID: "debt-1", Name: "Visa", Balance: 3000, InterestRate: 24, MinPayment: 90, Priority: models.PriorityHigh},
			{ID: "debt-2", Name: "Car loan", Balance: 9000, InterestRate: 6, MinPayment: 250, Priority: models.PriorityLow},
		},
		Preferences: models.Preferences{
			OptimizationFocus: models.FocusDebt,
			ProtectEssentials: models.BoolPtr(true),
		},
	}
	model.RecomputeSummary()
	return model
}

// TestDeterministicHeuristics проверяет набор и порядок эвристик.
func TestDeterministicHeuristics(t *testing.T) {
	suggestions := Deterministic(budget(), Thresholds{})

	ids := make([]string, 0, len(suggestions))
	for _, suggestion := range suggestions {
		ids = append(ids, suggestion.ID)
	}
	// housing is 0.4688 of expenses but fully essential and protected
	assert.Equal(t, []string{"allocate-surplus", "reduce-dining", "pay-down-debt-1"}, ids)

	assert.Equal(t, 800.0, suggestions[0].ExpectedMonthlyImpact)
	assert.Equal(t, []string{"debt-1"}, suggestions[0].RelatedIDs)
	assert.Equal(t, 120.0, suggestions[1].ExpectedMonthlyImpact)
	assert.Equal(t, 60.0, suggestions[2].ExpectedMonthlyImpact)
}

// TestDeterministicShortfall проверяет рекомендацию при дефиците.
func TestDeterministicShortfall(t *testing.T) {
	model := budget()
	model.Income[0].MonthlyAmount = 3000
	model.Preferences.ProtectEssentials = models.BoolPtr(false)
	model.RecomputeSummary()

	suggestions := Deterministic(model, Thresholds{CategoryShare: 0.5, InterestRate: 30})

	require.Len(t, suggestions, 1)
	assert.Equal(t, "close-shortfall", suggestions[0].ID)
	assert.Equal(t, 200.0, suggestions[0].ExpectedMonthlyImpact)
}

// TestGenerateDeterministicWhenDisabled проверяет идентичный вывод без провайдера.
func TestGenerateDeterministicWhenDisabled(t *testing.T) {
	engine := NewEngine(nil, Thresholds{}, nil)
	in := Input{SessionID: "s1", Model: budget()}

	first := engine.Generate(context.Background(), in)
	second := engine.Generate(context.Background(), in)

	assert.True(t, first.UsedDeterministic)
	firstJSON, err := json.Marshal(first)
	require.NoError(t, err)
	secondJSON, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, string(firstJSON), string(secondJSON))
}

// TestGenerateRetriesOnceThenSucceeds проверяет один повтор при временной ошибке.
func TestGenerateRetriesOnceThenSucceeds(t *testing.T) {
	client := &fakeClient{
		errs: []error{errors.New("503 service unavailable")},
		responses: []string{"", `{"suggestions":[
			{"id":"b","title":"Cook at home","description":"Halve dining out.","expected_monthly_impact":300},
			{"id":"a","title":"Refinance","description":"Move the card to 0%.","expected_monthly_impact":300}
		]}`},
	}
	engine := NewEngine(newGenerator(client), Thresholds{}, nil)

	result := engine.Generate(context.Background(), Input{SessionID: "s1", Model: budget()})

	assert.False(t, result.UsedDeterministic)
	assert.Equal(t, 2, client.calls)
	require.Len(t, result.Suggestions, 2)
	assert.Equal(t, "a", result.Suggestions[0].ID)
}

// TestGenerateFallsBackOnInvalidSchema проверяет переход на эвристики при отрицательном эффекте.
func TestGenerateFallsBackOnInvalidSchema(t *testing.T) {
	client := &fakeClient{responses: []string{`{"suggestions":[{"id":"x","title":"t","description":"d","expected_monthly_impact":-5}]}`}}
	engine := NewEngine(newGenerator(client), Thresholds{}, nil)

	result := engine.Generate(context.Background(), Input{SessionID: "s1", Model: budget()})

	assert.True(t, result.UsedDeterministic)
	assert.Equal(t, "schema_violation", result.Metadata.FallbackReason)
	assert.Equal(t, Deterministic(budget(), Thresholds{}), result.Suggestions)
	assert.Equal(t, 1, client.calls)
}

// TestGenerateFallsBackAfterRetries проверяет, что ошибки провайдера не выходят наружу.
func TestGenerateFallsBackAfterRetries(t *testing.T) {
	client := &fakeClient{errs: []error{errors.New("timeout"), errors.New("timeout")}}
	engine := NewEngine(newGenerator(client), Thresholds{}, nil)

	result := engine.Generate(context.Background(), Input{SessionID: "s1", Model: budget()})

	assert.True(t, result.UsedDeterministic)
	assert.Equal(t, 2, client.calls)
	assert.NotEmpty(t, result.Suggestions)
}
