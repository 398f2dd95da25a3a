package answers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/budget-pipeline/backend/internal/models"
)

func partialModel() models.UnifiedModel {
	model := models.UnifiedModel{
		Income: []models.Income{
			{ID: "income-1", Name: "Salary", MonthlyAmount: 5000, Type: models.IncomeTypeEarned, Stability: models.StabilityStable},
		},
		Expenses: []models.Expense{
			{ID: "expense-1", Category: "housing", MonthlyAmount: 1500, Notes: "Rent"},
			{ID: "expense-2", Category: "groceries", MonthlyAmount: 400, Notes: "Groceries"},
		},
		Debts: []models.Debt{
			{ID: "debt-1", Name: "Visa", MinPayment: 120, Priority: models.PriorityMedium, Approximate: true},
		},
	}
	model.RecomputeSummary()
	return model
}

// TestSplitScenario проверяет классификацию из примера с тремя корзинами.
func TestSplitScenario(t *testing.T) {
	partition := Split(map[string]any{
		"essential_expense1":   true,
		"financial_philosophy": "fire",
		"mystery_field":        "x",
	})

	assert.Equal(t, map[string]any{"essential_expense1": true}, partition.Model)
	assert.Equal(t, map[string]any{"financial_philosophy": "fire"}, partition.Profile)
	assert.Equal(t, map[string]any{"mystery_field": "x"}, partition.ExtraContext)
}

// TestSplitKeepsEveryKeyOnce проверяет, что ни один ключ не теряется и не дублируется.
func TestSplitKeepsEveryKeyOnce(t *testing.T) {
	input := map[string]any{
		"essential_expense-2":              false,
		"optimization_focus":               "debt",
		"debt_debt-1_interest_rate":        19.9,
		"debt_my_card_min_payment":         50,
		"goal_house":                       "2030",
		"career_change":                    true,
		"risk_tolerance":                   "low",
		"debt_free":                        "soon",
		"essential_":                       true,
		"max_desired_change_per_category":  0.2,
		"something_the_provider_invented": 1,
	}

	partition := Split(input)

	total := len(partition.Model) + len(partition.Profile) + len(partition.ExtraContext)
	assert.Equal(t, len(input), total)
	for key := range input {
		count := 0
		for _, bucket := range []map[string]any{partition.Model, partition.Profile, partition.ExtraContext} {
			if _, ok := bucket[key]; ok {
				count++
			}
		}
		assert.Equal(t, 1, count, key)
	}
	assert.Contains(t, partition.ExtraContext, "debt_free")
	assert.Contains(t, partition.ExtraContext, "essential_")
	assert.Contains(t, partition.Model, "debt_my_card_min_payment")
}

// TestParseDebtField проверяет разбор идентификаторов с подчеркиваниями.
func TestParseDebtField(t *testing.T) {
	cases := []struct {
		field     string
		id        string
		attribute string
		ok        bool
	}{
		{"debt_debt-1_interest_rate", "debt-1", attrInterestRate, true},
		{"debt_debt-1_interestRate", "debt-1", attrInterestRate, true},
		{"debt_car_loan_balance", "car_loan", attrBalance, true},
		{"debt_x_min_payment", "x", attrMinPayment, true},
		{"debt__balance", "", "", false},
		{"debt_free", "", "", false},
		{"essential_expense-1", "", "", false},
	}
	for _, tc := range cases {
		id, attribute, ok := ParseDebtField(tc.field)
		assert.Equal(t, tc.ok, ok, tc.field)
		assert.Equal(t, tc.id, id, tc.field)
		assert.Equal(t, tc.attribute, attribute, tc.field)
	}
}

// TestApplySetsModelFields проверяет применение ответов к модели.
func TestApplySetsModelFields(t *testing.T) {
	partial := partialModel()

	result := Apply(partial, map[string]any{
		"essential_expense1":              true,
		"essential_expense-2":             "no",
		"debt_debt-1_balance":             "$2,400",
		"debt_debt-1_interest_rate":       "21.5%",
		"debt_debt-1_priority":            "High",
		"optimization_focus":              "debt",
		"protect_essentials":              true,
		"max_desired_change_per_category": 0.25,
	})

	require.Empty(t, result.Warnings)
	model := result.Model
	require.NotNil(t, model.Expenses[0].Essential)
	assert.True(t, *model.Expenses[0].Essential)
	assert.False(t, *model.Expenses[1].Essential)
	assert.Equal(t, 2400.0, model.Debts[0].Balance)
	assert.Equal(t, 21.5, model.Debts[0].InterestRate)
	assert.Equal(t, models.PriorityHigh, model.Debts[0].Priority)
	assert.False(t, model.Debts[0].Approximate)
	assert.Equal(t, models.FocusDebt, model.Preferences.OptimizationFocus)
	assert.Equal(t, 0.25, *model.Preferences.MaxDesiredChangePerCategory)
	assert.Equal(t, model.Summary.TotalIncome-model.Summary.TotalExpenses, model.Summary.Surplus)

	assert.Nil(t, partial.Expenses[0].Essential)
}

// TestApplyCollectsWarnings проверяет разрешающую политику проверки.
func TestApplyCollectsWarnings(t *testing.T) {
	result := Apply(partialModel(), map[string]any{
		"essential_expense-9":             true,
		"debt_debt-1_interest_rate":       250,
		"debt_debt-1_priority":            "urgent",
		"debt_ghost_balance":              100,
		"max_desired_change_per_category": 3,
		"essential_expense-1":             "maybe",
		"protect_essentials":              false,
	})

	fields := make([]string, 0, len(result.Warnings))
	for _, warning := range result.Warnings {
		fields = append(fields, warning.Field)
	}
	assert.Equal(t, []string{
		"debt_debt-1_interest_rate",
		"debt_debt-1_priority",
		"debt_ghost_balance",
		"essential_expense-1",
		"essential_expense-9",
		"max_desired_change_per_category",
	}, fields)
	assert.Equal(t, []string{"protect_essentials"}, result.Applied)
	assert.Equal(t, 0.0, result.Model.Debts[0].InterestRate)
	assert.True(t, result.Model.Debts[0].Approximate)
}

// TestMergeProfile проверяет вложение дополнительного контекста под отдельный ключ.
func TestMergeProfile(t *testing.T) {
	profile := map[string]any{
		"risk_tolerance":              "high",
		models.ProfileExtraContextKey: map[string]any{"pets": "cat"},
	}
	partition := Split(map[string]any{
		"risk_tolerance": "low",
		"mystery_field":  "x",
	})

	merged := MergeProfile(profile, partition)

	assert.Equal(t, "low", merged["risk_tolerance"])
	assert.Equal(t, map[string]any{"pets": "cat", "mystery_field": "x"}, merged[models.ProfileExtraContextKey])
	assert.Equal(t, "high", profile["risk_tolerance"])
}
