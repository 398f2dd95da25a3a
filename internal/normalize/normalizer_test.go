package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/budget-pipeline/backend/internal/models"
)

func sampleDraft() models.Draft {
	return models.Draft{
		DetectedFormat: "json",
		Lines: []models.DraftLine{
			{Label: "Salary", Amount: "5000"},
			{Label: "Rent", Amount: "-1500"},
			{Label: "Groceries", Amount: "-400"},
		},
	}
}

// TestNormalizeScenario проверяет базовый сценарий классификации строк.
func TestNormalizeScenario(t *testing.T) {
	model, err := New(nil).Normalize(sampleDraft())
	require.NoError(t, err)

	require.Len(t, model.Income, 1)
	assert.Equal(t, 5000.0, model.Income[0].MonthlyAmount)
	assert.Equal(t, models.IncomeTypeEarned, model.Income[0].Type)
	assert.Equal(t, models.StabilityStable, model.Income[0].Stability)

	require.Len(t, model.Expenses, 2)
	assert.Equal(t, 1500.0, model.Expenses[0].MonthlyAmount)
	assert.Equal(t, "housing", model.Expenses[0].Category)
	assert.Equal(t, 400.0, model.Expenses[1].MonthlyAmount)
	assert.Equal(t, "groceries", model.Expenses[1].Category)

	assert.Equal(t, models.Summary{TotalIncome: 5000, TotalExpenses: 1900, Surplus: 3100}, model.Summary)
}

// TestNormalizeDeterministic проверяет стабильность идентификаторов.
func TestNormalizeDeterministic(t *testing.T) {
	normalizer := New(nil)
	first, err := normalizer.Normalize(sampleDraft())
	require.NoError(t, err)
	second, err := normalizer.Normalize(sampleDraft())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, "income-1", first.Income[0].ID)
	assert.Equal(t, "expense-1", first.Expenses[0].ID)
	assert.Equal(t, "expense-2", first.Expenses[1].ID)
}

// TestNormalizeEssentialUndetermined проверяет, что признак обязательности не угадывается.
func TestNormalizeEssentialUndetermined(t *testing.T) {
	model, err := New(nil).Normalize(sampleDraft())
	require.NoError(t, err)

	for _, expense := range model.Expenses {
		assert.Nil(t, expense.Essential, expense.ID)
	}
}

// TestNormalizeUnmatchedLabel проверяет категорию по умолчанию.
func TestNormalizeUnmatchedLabel(t *testing.T) {
	model, err := New(nil).Normalize(models.Draft{Lines: []models.DraftLine{
		{Label: "Zorblax", Amount: "-12.50"},
	}})
	require.NoError(t, err)
	require.Len(t, model.Expenses, 1)
	assert.Equal(t, CategoryOther, model.Expenses[0].Category)
	assert.Equal(t, "Zorblax", model.Expenses[0].Notes)
}

// TestNormalizeDebtPayment проверяет появление приблизительного долга.
func TestNormalizeDebtPayment(t *testing.T) {
	model, err := New(nil).Normalize(models.Draft{Lines: []models.DraftLine{
		{Label: "Paycheck", Amount: "3200"},
		{Label: "Credit Card payment", Amount: "-150"},
		{Label: "Student loan", Amount: "22000", Kind: "debt"},
	}})
	require.NoError(t, err)

	require.Len(t, model.Expenses, 1)
	assert.Equal(t, CategoryDebtPayment, model.Expenses[0].Category)

	require.Len(t, model.Debts, 2)
	assert.Equal(t, "debt-1", model.Debts[0].ID)
	assert.Equal(t, 150.0, model.Debts[0].MinPayment)
	assert.True(t, model.Debts[0].Approximate)
	assert.Equal(t, "debt-2", model.Debts[1].ID)
	assert.Equal(t, 22000.0, model.Debts[1].Balance)
	assert.Equal(t, models.PriorityMedium, model.Debts[1].Priority)
}

// TestNormalizeNoParseableLines проверяет FormatError.
func TestNormalizeNoParseableLines(t *testing.T) {
	_, err := New(nil).Normalize(models.Draft{Lines: []models.DraftLine{
		{Label: "Header", Amount: "n/a"},
		{Label: "Zero", Amount: "0"},
	}})

	var formatErr *models.FormatError
	require.ErrorAs(t, err, &formatErr)

	_, err = New(nil).Normalize(models.Draft{})
	require.ErrorAs(t, err, &formatErr)
}

// TestNormalizeStructured проверяет модель из конструктора бюджета.
func TestNormalizeStructured(t *testing.T) {
	essential := true
	draft := models.Draft{Structured: &models.UnifiedModel{
		Income: []models.Income{{Name: "Salary", MonthlyAmount: 4000}},
		Expenses: []models.Expense{
			{ID: "rent", Category: "housing", MonthlyAmount: 1200, Essential: &essential},
			{ID: "rent", Category: "", MonthlyAmount: 80, Notes: "Netflix and Spotify"},
		},
		Debts: []models.Debt{{Name: "Visa", Balance: 3000, InterestRate: 21.9}},
	}}

	model, err := New(nil).Normalize(draft)
	require.NoError(t, err)

	assert.Equal(t, "income-1", model.Income[0].ID)
	assert.Equal(t, models.IncomeTypeEarned, model.Income[0].Type)
	assert.Equal(t, "rent", model.Expenses[0].ID)
	assert.Equal(t, "expense-1", model.Expenses[1].ID)
	assert.Equal(t, "subscriptions", model.Expenses[1].Category)
	assert.Equal(t, models.PriorityMedium, model.Debts[0].Priority)
	assert.Equal(t, 2720.0, model.Summary.Surplus)
}

// TestNormalizeStructuredRejectsPercentOutOfRange проверяет диапазон ставки.
func TestNormalizeStructuredRejectsPercentOutOfRange(t *testing.T) {
	draft := models.Draft{Structured: &models.UnifiedModel{
		Debts: []models.Debt{{Name: "Loan", Balance: 1000, InterestRate: 250}},
	}}

	_, err := New(nil).Normalize(draft)
	var formatErr *models.FormatError
	require.ErrorAs(t, err, &formatErr)
}

// TestParseAmount проверяет разбор сумм в разных форматах.
func TestParseAmount(t *testing.T) {
	cases := map[string]string{
		"1,500.00":  "1500",
		"-1.500,25": "-1500.25",
		"$ 42":      "42",
		"(400)":     "-400",
		"12,5":      "12.5",
		"300-":      "-300",
		"€-19.99":   "-19.99",
	}

	for raw, want := range cases {
		got, err := ParseAmount(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got.String(), raw)
	}

	_, err := ParseAmount("n/a")
	require.Error(t, err)
}

// TestPatternTableFirstMatchWins проверяет порядок правил.
func TestPatternTableFirstMatchWins(t *testing.T) {
	table := DefaultPatterns()

	assert.Equal(t, "insurance", table.MatchExpense("Car insurance"))
	assert.Equal(t, "transportation", table.MatchExpense("Car wash"))

	incomeType, stability := table.MatchIncome("Dividend payout")
	assert.Equal(t, models.IncomeTypePassive, incomeType)
	assert.Equal(t, models.StabilityVariable, stability)
}
