package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/budget-pipeline/backend/internal/notifications"
	"example.com/budget-pipeline/backend/internal/pipeline"
	"example.com/budget-pipeline/backend/internal/repository"
)

const sampleCSV = "label,amount\nSalary,5000\nRent,-1500\nGroceries,-400\n"

type structValidator struct {
	validate *validator.Validate
}

func (v structValidator) Validate(i interface{}) error {
	return v.validate.Struct(i)
}

func newTestEcho(t *testing.T, uploadMaxBytes int64) *echo.Echo {
	t.Helper()

	store, err := repository.NewMemorySessionRepository(16)
	require.NoError(t, err)

	hub := notifications.NewHub()
	service := pipeline.NewService(pipeline.Deps{Store: store, Events: hub})
	budgets := NewBudgetHandler(service, uploadMaxBytes, nil)
	events := NewEventsHandler(hub, service, nil)

	e := echo.New()
	e.Validator = structValidator{validate: validator.New()}
	e.HTTPErrorHandler = ErrorHandler(nil)

	e.GET("/health", Health("memory", "none"))
	e.POST("/upload", budgets.Upload)
	e.POST("/budget/create", budgets.Create)
	e.GET("/clarification-questions", budgets.ClarificationQuestions)
	e.POST("/submit-answers", budgets.SubmitAnswers)
	e.GET("/summary-and-suggestions", budgets.SummaryAndSuggestions)
	e.GET("/budget/:id", budgets.Get)
	e.PATCH("/budget/:id", budgets.Patch)
	e.GET("/budget/:id/events", events.Stream)
	e.GET("/panic", func(c echo.Context) error {
		return errors.New("database exploded")
	})
	return e
}

func uploadRequest(t *testing.T, filename, content string) *http.Request {
	t.Helper()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = io.WriteString(part, content)
	require.NoError(t, err)
	require.NoError(t, writer.WriteField("user_query", "Can I save more?"))
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload", &body)
	req.Header.Set(echo.HeaderContentType, writer.FormDataContentType())
	return req
}

func jsonRequest(t *testing.T, method, target string, payload any) *http.Request {
	t.Helper()

	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func serve(e *echo.Echo, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

// TestBudgetFlow проверяет полный сценарий через HTTP.
func TestBudgetFlow(t *testing.T) {
	e := newTestEcho(t, 1<<20)

	rec := serve(e, uploadRequest(t, "budget.csv", sampleCSV))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	created := decode[map[string]any](t, rec)
	budgetID, _ := created["budget_id"].(string)
	require.NotEmpty(t, budgetID)
	assert.Equal(t, "uploaded", created["status"])
	assert.Equal(t, "csv", created["detected_format"])
	assert.Equal(t, map[string]any{"total_income": 5000.0, "total_expenses": 1900.0, "surplus": 3100.0}, created["summary_preview"])

	rec = serve(e, httptest.NewRequest(http.MethodGet, "/summary-and-suggestions?budget_id="+budgetID, nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, pipeline.CodeModelNotReady, decode[ErrorResponse](t, rec).Error)

	rec = serve(e, httptest.NewRequest(http.MethodGet, "/clarification-questions?budget_id="+budgetID+"&max_questions=2", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	questions := decode[map[string]any](t, rec)
	assert.Equal(t, true, questions["needs_clarification"])
	assert.Len(t, questions["questions"], 2)
	assert.NotNil(t, questions["partial_model"])
	assert.NotNil(t, questions["provider_metadata"])

	rec = serve(e, jsonRequest(t, http.MethodPost, "/submit-answers", map[string]any{
		"budget_id": budgetID,
		"answers":   map[string]any{"essential_expense-1": true, "essential_expense-42": true},
	}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	submitted := decode[map[string]any](t, rec)
	assert.Equal(t, "ready_for_summary", submitted["status"])
	assert.Equal(t, true, submitted["ready_for_summary"])
	assert.Len(t, submitted["warnings"], 1)

	rec = serve(e, httptest.NewRequest(http.MethodGet, "/summary-and-suggestions?budget_id="+budgetID, nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	summary := decode[map[string]any](t, rec)
	assert.Equal(t, map[string]any{"total_income": 5000.0, "total_expenses": 1900.0, "surplus": 3100.0}, summary["summary"])
	assert.Equal(t, "Can I save more?", summary["user_query"])
	assert.NotEmpty(t, summary["suggestions"])

	rec = serve(e, jsonRequest(t, http.MethodPatch, "/budget/"+budgetID, map[string]any{
		"expenses": []map[string]any{{"id": "expense-1", "monthly_amount": 1400}},
	}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	patched := decode[map[string]any](t, rec)
	assert.Equal(t, "updated", patched["status"])

	rec = serve(e, httptest.NewRequest(http.MethodGet, "/budget/"+budgetID, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	budget := decode[map[string]any](t, rec)
	assert.Equal(t, "final", budget["stage"])
	model, _ := budget["model"].(map[string]any)
	assert.Equal(t, map[string]any{"total_income": 5000.0, "total_expenses": 1800.0, "surplus": 3200.0}, model["summary"])
}

// TestCreateBudget проверяет создание сессии из модели конструктора.
func TestCreateBudget(t *testing.T) {
	e := newTestEcho(t, 1<<20)

	rec := serve(e, jsonRequest(t, http.MethodPost, "/budget/create", map[string]any{
		"unifiedModel": map[string]any{
			"income":   []map[string]any{{"name": "Salary", "monthly_amount": 3000}},
			"expenses": []map[string]any{{"category": "housing", "monthly_amount": 1000}},
		},
		"plannerInputs": map[string]any{"horizon": "12m"},
	}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	created := decode[map[string]any](t, rec)
	assert.Equal(t, "created", created["status"])
	assert.Equal(t, "budget_builder", created["detected_format"])

	rec = serve(e, jsonRequest(t, http.MethodPost, "/budget/create", map[string]any{}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, pipeline.CodeValidation, decode[ErrorResponse](t, rec).Error)
}

// TestErrorEnvelope проверяет коды ошибок и формат ответа.
func TestErrorEnvelope(t *testing.T) {
	e := newTestEcho(t, 1<<20)

	cases := []struct {
		name   string
		req    *http.Request
		status int
		code   string
	}{
		{
			name:   "unknown budget",
			req:    httptest.NewRequest(http.MethodGet, "/budget/missing", nil),
			status: http.StatusNotFound,
			code:   pipeline.CodeNotFound,
		},
		{
			name:   "missing budget id",
			req:    httptest.NewRequest(http.MethodGet, "/clarification-questions", nil),
			status: http.StatusBadRequest,
			code:   pipeline.CodeValidation,
		},
		{
			name:   "bad max questions",
			req:    httptest.NewRequest(http.MethodGet, "/clarification-questions?budget_id=x&max_questions=zero", nil),
			status: http.StatusBadRequest,
			code:   pipeline.CodeValidation,
		},
		{
			name:   "submit without budget id",
			req:    jsonRequest(t, http.MethodPost, "/submit-answers", map[string]any{"answers": map[string]any{}}),
			status: http.StatusBadRequest,
			code:   pipeline.CodeValidation,
		},
		{
			name:   "malformed json",
			req:    httptest.NewRequest(http.MethodPost, "/submit-answers", strings.NewReader("{")),
			status: http.StatusBadRequest,
			code:   pipeline.CodeValidation,
		},
		{
			name:   "upload without file",
			req:    httptest.NewRequest(http.MethodPost, "/upload", nil),
			status: http.StatusBadRequest,
			code:   pipeline.CodeValidation,
		},
		{
			name:   "unparseable upload",
			req:    uploadRequest(t, "budget.csv", "label,amount\nSalary,abc\n"),
			status: http.StatusBadRequest,
			code:   pipeline.CodeValidation,
		},
		{
			name:   "unknown route",
			req:    httptest.NewRequest(http.MethodGet, "/nowhere", nil),
			status: http.StatusNotFound,
			code:   codeRouteNotFound,
		},
		{
			name:   "unexpected error",
			req:    httptest.NewRequest(http.MethodGet, "/panic", nil),
			status: http.StatusInternalServerError,
			code:   pipeline.CodeInternal,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.req.Header.Get(echo.HeaderContentType) == "" && tc.req.Method == http.MethodPost {
				tc.req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
			}
			rec := serve(e, tc.req)
			assert.Equal(t, tc.status, rec.Code, rec.Body.String())

			response := decode[ErrorResponse](t, rec)
			assert.Equal(t, tc.code, response.Error)
			assert.NotEmpty(t, response.Details)
			assert.NotContains(t, response.Details, "exploded")
		})
	}
}

// TestUploadLimit проверяет ограничение размера файла.
func TestUploadLimit(t *testing.T) {
	e := newTestEcho(t, 16)

	rec := serve(e, uploadRequest(t, "budget.csv", sampleCSV))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	response := decode[ErrorResponse](t, rec)
	assert.Equal(t, pipeline.CodeValidation, response.Error)
	assert.Equal(t, "file exceeds upload limit", response.Details)
}

// TestPatchContextOnly проверяет правку контекста до финальной модели.
func TestPatchContextOnly(t *testing.T) {
	e := newTestEcho(t, 1<<20)

	rec := serve(e, uploadRequest(t, "budget.csv", sampleCSV))
	require.Equal(t, http.StatusOK, rec.Code)
	budgetID := decode[map[string]any](t, rec)["budget_id"].(string)

	rec = serve(e, jsonRequest(t, http.MethodPatch, "/budget/"+budgetID, map[string]any{
		"expenses": []map[string]any{{"id": "expense-1", "monthly_amount": 1}},
	}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, pipeline.CodeModelNotReady, decode[ErrorResponse](t, rec).Error)

	rec = serve(e, jsonRequest(t, http.MethodPatch, "/budget/"+budgetID, map[string]any{
		"userQuery":   "Pay off the card first",
		"userProfile": map[string]any{"risk_tolerance": "low"},
	}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	patched := decode[map[string]any](t, rec)
	assert.Equal(t, "context_updated", patched["status"])
	assert.Equal(t, "Pay off the card first", patched["user_query"])
}

// TestHealth проверяет ответ health-check.
func TestHealth(t *testing.T) {
	e := newTestEcho(t, 1<<20)

	rec := serve(e, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, HealthResponse{Status: "ok", Store: "memory", Provider: "none"}, decode[HealthResponse](t, rec))
}
