package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"example.com/budget-pipeline/backend/internal/models"
	"example.com/budget-pipeline/backend/internal/patch"
	"example.com/budget-pipeline/backend/internal/pipeline"
)

// запас на заголовки multipart поверх лимита файла
const multipartOverhead = 64 << 10

type BudgetHandler struct {
	Service        *pipeline.Service
	Logger         *slog.Logger
	UploadMaxBytes int64
}

// NewBudgetHandler создает обработчик сессий бюджета.
func NewBudgetHandler(service *pipeline.Service, uploadMaxBytes int64, logger *slog.Logger) *BudgetHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &BudgetHandler{Service: service, Logger: logger, UploadMaxBytes: uploadMaxBytes}
}

type CreateBudgetRequest struct {
	UnifiedModel  *models.UnifiedModel `json:"unifiedModel"`
	PlannerInputs map[string]any       `json:"plannerInputs"`
	UserQuery     string               `json:"userQuery"`
}

type SubmitAnswersRequest struct {
	BudgetID string         `json:"budget_id" validate:"required"`
	Answers  map[string]any `json:"answers"`
}

type PatchBudgetRequest struct {
	Income              []patch.IncomeUpdate     `json:"income"`
	Expenses            []patch.ExpenseUpdate    `json:"expenses"`
	Debts               []patch.DebtUpdate       `json:"debts"`
	Preferences         *patch.PreferencesUpdate `json:"preferences"`
	UserQuery           *string                  `json:"userQuery"`
	UserProfile         map[string]any           `json:"userProfile"`
	FoundationalContext map[string]any           `json:"foundationalContext"`
}

// Upload принимает файл экспорта и создает сессию.
func (h *BudgetHandler) Upload(c echo.Context) error {
	req := c.Request()
	if h.UploadMaxBytes > 0 {
		req.Body = http.MaxBytesReader(c.Response(), req.Body, h.UploadMaxBytes+multipartOverhead)
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return badRequest(c, "file exceeds upload limit")
		}
		return badRequest(c, "file is required")
	}
	if h.UploadMaxBytes > 0 && fileHeader.Size > h.UploadMaxBytes {
		return badRequest(c, "file exceeds upload limit")
	}

	src, err := fileHeader.Open()
	if err != nil {
		return badRequest(c, "file cannot be read")
	}
	defer src.Close()

	content, err := io.ReadAll(src)
	if err != nil {
		return badRequest(c, "file cannot be read")
	}

	created, err := h.Service.Upload(req.Context(), pipeline.UploadInput{
		Filename:    fileHeader.Filename,
		ContentType: fileHeader.Header.Get(echo.HeaderContentType),
		Content:     content,
		UserQuery:   c.FormValue("user_query"),
	})
	if err != nil {
		return respondError(c, h.Logger, "", err)
	}

	return c.JSON(http.StatusOK, created)
}

// Create создает сессию из готовой модели конструктора бюджета.
func (h *BudgetHandler) Create(c echo.Context) error {
	var req CreateBudgetRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid payload")
	}

	created, err := h.Service.Create(c.Request().Context(), pipeline.CreateInput{
		Model:         req.UnifiedModel,
		PlannerInputs: req.PlannerInputs,
		UserQuery:     req.UserQuery,
	})
	if err != nil {
		return respondError(c, h.Logger, "", err)
	}

	return c.JSON(http.StatusOK, created)
}

// ClarificationQuestions возвращает уточняющие вопросы по частичной модели.
func (h *BudgetHandler) ClarificationQuestions(c echo.Context) error {
	budgetID := strings.TrimSpace(c.QueryParam("budget_id"))

	in := pipeline.QuestionsInput{BudgetID: budgetID}
	if c.QueryParams().Has("user_query") {
		query := c.QueryParam("user_query")
		in.UserQuery = &query
	}
	if raw := strings.TrimSpace(c.QueryParam("max_questions")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			return badRequest(c, "max_questions must be a positive integer")
		}
		in.MaxQuestions = value
	}

	questions, err := h.Service.Questions(c.Request().Context(), in)
	if err != nil {
		return respondError(c, h.Logger, budgetID, err)
	}

	return c.JSON(http.StatusOK, questions)
}

// SubmitAnswers применяет ответы пользователя и фиксирует финальную модель.
func (h *BudgetHandler) SubmitAnswers(c echo.Context) error {
	var req SubmitAnswersRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return badRequest(c, err.Error())
	}

	submitted, err := h.Service.SubmitAnswers(c.Request().Context(), req.BudgetID, req.Answers)
	if err != nil {
		return respondError(c, h.Logger, req.BudgetID, err)
	}

	return c.JSON(http.StatusOK, submitted)
}

// SummaryAndSuggestions возвращает итоги и рекомендации.
func (h *BudgetHandler) SummaryAndSuggestions(c echo.Context) error {
	budgetID := strings.TrimSpace(c.QueryParam("budget_id"))

	summary, err := h.Service.SummaryAndSuggestions(c.Request().Context(), budgetID)
	if err != nil {
		return respondError(c, h.Logger, budgetID, err)
	}

	return c.JSON(http.StatusOK, summary)
}

// Get возвращает текущее состояние сессии.
func (h *BudgetHandler) Get(c echo.Context) error {
	budgetID := c.Param("id")

	budget, err := h.Service.Get(c.Request().Context(), budgetID)
	if err != nil {
		return respondError(c, h.Logger, budgetID, err)
	}

	return c.JSON(http.StatusOK, budget)
}

// Patch вносит точечные правки в модель и контекст сессии.
func (h *BudgetHandler) Patch(c echo.Context) error {
	budgetID := c.Param("id")

	var req PatchBudgetRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid payload")
	}

	patched, err := h.Service.Patch(c.Request().Context(), budgetID, pipeline.PatchInput{
		Model: patch.Request{
			Income:      req.Income,
			Expenses:    req.Expenses,
			Debts:       req.Debts,
			Preferences: req.Preferences,
		},
		UserQuery:           req.UserQuery,
		UserProfile:         req.UserProfile,
		FoundationalContext: req.FoundationalContext,
	})
	if err != nil {
		return respondError(c, h.Logger, budgetID, err)
	}

	return c.JSON(http.StatusOK, patched)
}
