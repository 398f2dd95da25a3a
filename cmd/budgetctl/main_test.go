package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/budget-pipeline/backend/internal/auth"
	"example.com/budget-pipeline/backend/internal/suggest"
)

const sampleCSV = "label,amount\nSalary,5000\nRent,-1500\nGroceries,-400\n"

// TestAnalyze проверяет офлайн-анализ выгрузки.
func TestAnalyze(t *testing.T) {
	analysis, err := analyze("budget.csv", []byte(sampleCSV), "", 3, suggest.Thresholds{})
	require.NoError(t, err)

	assert.Equal(t, "csv", analysis.DetectedFormat)
	assert.Equal(t, 3100.0, analysis.Model.Summary.Surplus)
	assert.True(t, analysis.Clarification.NeedsClarification)
	assert.Len(t, analysis.Clarification.Questions, 3)
	assert.Equal(t, "essential_expense-1", analysis.Clarification.Questions[0].FieldID)
	assert.NotEmpty(t, analysis.Suggestions)
}

// TestAnalyzeInvalidFile проверяет ошибку формата.
func TestAnalyzeInvalidFile(t *testing.T) {
	_, err := analyze("budget.csv", []byte("   "), "", 3, suggest.Thresholds{})
	assert.Error(t, err)
}

// TestAnalyzeCommand проверяет вывод команды analyze.
func TestAnalyzeCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "budget.csv")
	require.NoError(t, os.WriteFile(path, []byte(sampleCSV), 0o600))

	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"analyze", path, "--max-questions", "2"})
	require.NoError(t, cmd.Execute())

	var analysis Analysis
	require.NoError(t, json.Unmarshal(out.Bytes(), &analysis))
	assert.Equal(t, "budget.csv", analysis.File)
	assert.Len(t, analysis.Clarification.Questions, 2)
}

// TestTokenCommand проверяет выпуск токена из конфигурации окружения.
func TestTokenCommand(t *testing.T) {
	t.Setenv("ENV_FILE", "")
	t.Setenv("AUTH_JWT_SECRET", "secret")
	t.Setenv("AUTH_JWT_ISSUER", "budget-pipeline")
	t.Setenv("AI_PROVIDER", "none")

	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"token", "--subject", "ops"})
	require.NoError(t, cmd.Execute())

	var token TokenOutput
	require.NoError(t, json.Unmarshal(out.Bytes(), &token))
	assert.Equal(t, "ops", token.Subject)

	claims, err := auth.NewTokenManager("secret", "budget-pipeline", 0).ParseAccessToken(token.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "ops", claims.Subject)
}
