package ingest

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/budget-pipeline/backend/internal/models"
)

// TestParseCSVWithHeader проверяет CSV с заголовком.
func TestParseCSVWithHeader(t *testing.T) {
	draft, err := Parse("budget.csv", []byte("Description,Amount,Category\nSalary,5000,\nRent,-1500,Housing\n\n"))
	require.NoError(t, err)

	assert.Equal(t, FormatCSV, draft.DetectedFormat)
	assert.Equal(t, true, draft.FormatHints["has_header"])
	assert.Equal(t, ",", draft.FormatHints["delimiter"])
	require.Len(t, draft.Lines, 2)
	assert.Equal(t, models.DraftLine{Label: "Rent", Amount: "-1500", Category: "Housing"}, draft.Lines[1])
}

// TestParseCSVHeaderless проверяет выгрузку без заголовка с разделителем ";".
func TestParseCSVHeaderless(t *testing.T) {
	draft, err := Parse("export.txt", []byte("\xef\xbb\xbfSalary;5000;income\nRent;-1500;expense\n"))
	require.NoError(t, err)

	assert.Equal(t, false, draft.FormatHints["has_header"])
	assert.Equal(t, ";", draft.FormatHints["delimiter"])
	require.Len(t, draft.Lines, 2)
	assert.Equal(t, "Salary", draft.Lines[0].Label)
	assert.Equal(t, models.RawAmount("5000"), draft.Lines[0].Amount)
	assert.Equal(t, "expense", draft.Lines[1].Kind)
}

// TestParseJSONLines проверяет массив строк с числовыми суммами.
func TestParseJSONLines(t *testing.T) {
	draft, err := Parse("budget.json", []byte(`[{"label":"Salary","amount":5000},{"label":"Rent","amount":"-1,500.00"}]`))
	require.NoError(t, err)

	assert.Equal(t, FormatJSON, draft.DetectedFormat)
	require.Len(t, draft.Lines, 2)
	assert.Equal(t, models.RawAmount("5000"), draft.Lines[0].Amount)
	assert.Equal(t, models.RawAmount("-1,500.00"), draft.Lines[1].Amount)
}

// TestParseBudgetBuilder проверяет документ конструктора бюджета.
func TestParseBudgetBuilder(t *testing.T) {
	draft, err := Parse("plan", []byte(`{"income":[{"name":"Salary","monthly_amount":3000}],"expenses":[{"category":"housing","monthly_amount":1000}]}`))
	require.NoError(t, err)

	assert.Equal(t, FormatBudgetBuilder, draft.DetectedFormat)
	require.NotNil(t, draft.Structured)
	assert.Equal(t, 3000.0, draft.Structured.Income[0].MonthlyAmount)
	assert.Equal(t, 1, draft.FormatHints["expense_count"])
}

// TestParseRejectsUnusableFiles проверяет ошибки формата.
func TestParseRejectsUnusableFiles(t *testing.T) {
	cases := map[string]string{
		"empty":           "  \n ",
		"empty object":    "{}",
		"broken json":     `[{"label":`,
		"no amount":       "name\nSalary\n",
		"bad json amount": `[{"label":"Salary","amount":true}]`,
	}

	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse("budget", []byte(content))
			var formatErr *models.FormatError
			assert.True(t, errors.As(err, &formatErr), "expected format error, got %v", err)
		})
	}
}
