package server

import (
	"github.com/labstack/echo/v4"

	"example.com/budget-pipeline/backend/internal/handlers"
)

func registerRoutes(
	e *echo.Echo,
	health echo.HandlerFunc,
	budgetHandler *handlers.BudgetHandler,
	eventsHandler *handlers.EventsHandler,
	authMiddleware echo.MiddlewareFunc,
	apiRateLimiter echo.MiddlewareFunc,
	aiRateLimiter echo.MiddlewareFunc,
) {
	e.GET("/health", health)

	api := []echo.MiddlewareFunc{apiRateLimiter}
	if authMiddleware != nil {
		api = append(api, authMiddleware)
	}
	// генеративные вызовы ограничиваются отдельно
	generative := append(append([]echo.MiddlewareFunc{}, api...), aiRateLimiter)

	e.POST("/upload", budgetHandler.Upload, api...)
	e.POST("/budget/create", budgetHandler.Create, api...)
	e.GET("/clarification-questions", budgetHandler.ClarificationQuestions, generative...)
	e.POST("/submit-answers", budgetHandler.SubmitAnswers, api...)
	e.GET("/summary-and-suggestions", budgetHandler.SummaryAndSuggestions, generative...)

	e.GET("/budget/:id", budgetHandler.Get, api...)
	e.PATCH("/budget/:id", budgetHandler.Patch, api...)
	e.GET("/budget/:id/events", eventsHandler.Stream, api...)
}
