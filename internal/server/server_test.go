package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/budget-pipeline/backend/internal/auth"
	"example.com/budget-pipeline/backend/internal/config"
	"example.com/budget-pipeline/backend/internal/handlers"
)

func testConfig() config.Config {
	return config.Config{
		Env: "test",
		Server: config.ServerConfig{
			Host:               "127.0.0.1",
			Port:               8080,
			RateLimitPerMinute: 600,
			RateLimitBurst:     100,
		},
		Store: config.StoreConfig{Kind: config.StoreMemory, CacheSize: 8},
		AI: config.AIConfig{
			Provider:           config.ProviderNone,
			RateLimitPerMinute: 600,
			RateLimitBurst:     100,
		},
		Pipeline: config.PipelineConfig{
			MaxQuestions:           5,
			CategoryShareThreshold: 0.3,
			InterestRateThreshold:  15,
			UploadMaxBytes:         1 << 20,
		},
	}
}

func newTestServer(t *testing.T, cfg config.Config) http.Handler {
	t.Helper()

	storage, err := OpenStorage(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(storage.Close)

	e, err := New(cfg, nil, storage)
	require.NoError(t, err)
	return e
}

// TestHealthReportsStack проверяет health-check собранного сервера.
func TestHealthReportsStack(t *testing.T) {
	e := newTestServer(t, testConfig())

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var health handlers.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, handlers.HealthResponse{Status: "ok", Store: "memory", Provider: "none"}, health)
}

// TestUnknownBudget проверяет конверт ошибки 404.
func TestUnknownBudget(t *testing.T) {
	e := newTestServer(t, testConfig())

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/budget/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var response handlers.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, "budget_not_found", response.Error)
}

// TestAuthEnabled проверяет, что маршруты сессий требуют токен.
func TestAuthEnabled(t *testing.T) {
	cfg := testConfig()
	cfg.Auth = config.AuthConfig{JWTSecret: "secret", JWTIssuer: "budget-pipeline", AccessTokenTTL: time.Hour}
	e := newTestServer(t, cfg)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/budget/missing", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	var response handlers.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, "unauthorized", response.Error)

	token, err := auth.NewTokenManager("secret", "budget-pipeline", time.Hour).NewAccessToken("ops")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/budget/missing", nil)
	req.Header.Set("Authorization", "Bearer "+token.Value)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

// TestBadgerStorage проверяет сборку на встроенной базе.
func TestBadgerStorage(t *testing.T) {
	cfg := testConfig()
	cfg.Store = config.StoreConfig{Kind: config.StoreBadger, BadgerPath: t.TempDir()}

	storage, err := OpenStorage(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer storage.Close()

	assert.Equal(t, config.StoreBadger, storage.Kind)
	assert.Nil(t, storage.Audit)
}

// TestValidatorMessages проверяет сообщения валидатора с JSON-именами полей.
func TestValidatorMessages(t *testing.T) {
	type request struct {
		BudgetID string `json:"budget_id" validate:"required"`
		Count    int    `json:"count" validate:"gte=0"`
	}

	v := NewValidator()
	assert.EqualError(t, v.Validate(&request{}), "budget_id is required")
	assert.EqualError(t, v.Validate(&request{BudgetID: "x", Count: -1}), "count failed gte validation")
	assert.NoError(t, v.Validate(&request{BudgetID: "x"}))
}
