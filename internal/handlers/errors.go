package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"example.com/budget-pipeline/backend/internal/pipeline"
)

const (
	codeUnauthorized     = "unauthorized"
	codeRouteNotFound    = "not_found"
	codeMethodNotAllowed = "method_not_allowed"
	codeRateLimited      = "rate_limited"
	codeRequestTooLarge  = "request_too_large"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details"`
}

func badRequest(c echo.Context, details string) error {
	return c.JSON(http.StatusBadRequest, ErrorResponse{Error: pipeline.CodeValidation, Details: details})
}

func serverError(c echo.Context) error {
	return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: pipeline.CodeInternal, Details: "internal server error"})
}

// respondError переводит ошибку конвейера в HTTP-ответ.
func respondError(c echo.Context, logger *slog.Logger, budgetID string, err error) error {
	pipelineErr := pipeline.AsError(err)

	status := http.StatusInternalServerError
	switch pipelineErr.Kind {
	case pipeline.KindValidation, pipeline.KindStage:
		status = http.StatusBadRequest
	case pipeline.KindNotFound:
		status = http.StatusNotFound
	}

	if status == http.StatusInternalServerError {
		logger.ErrorContext(c.Request().Context(), "pipeline operation failed",
			slog.String("budget_id", budgetID),
			slog.String("path", c.Path()),
			slog.String("error", err.Error()),
		)
		return serverError(c)
	}

	return c.JSON(status, ErrorResponse{Error: pipelineErr.Code, Details: pipelineErr.Details})
}

// ErrorHandler отдает ошибки Echo и паники в едином формате.
func ErrorHandler(logger *slog.Logger) echo.HTTPErrorHandler {
	if logger == nil {
		logger = slog.Default()
	}

	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status := http.StatusInternalServerError
		response := ErrorResponse{Error: pipeline.CodeInternal, Details: "internal server error"}

		var httpErr *echo.HTTPError
		if errors.As(err, &httpErr) && httpErr.Code < http.StatusInternalServerError {
			status = httpErr.Code
			response = ErrorResponse{Error: httpErrorCode(status), Details: fmt.Sprint(httpErr.Message)}
		} else {
			logger.ErrorContext(c.Request().Context(), "unhandled request error",
				slog.String("method", c.Request().Method),
				slog.String("uri", c.Request().RequestURI),
				slog.String("error", err.Error()),
			)
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, response)
		}
		if err != nil {
			logger.Error("write error response", slog.String("error", err.Error()))
		}
	}
}

func httpErrorCode(status int) string {
	switch status {
	case http.StatusUnauthorized:
		return codeUnauthorized
	case http.StatusNotFound:
		return codeRouteNotFound
	case http.StatusMethodNotAllowed:
		return codeMethodNotAllowed
	case http.StatusTooManyRequests:
		return codeRateLimited
	case http.StatusRequestEntityTooLarge:
		return codeRequestTooLarge
	default:
		return pipeline.CodeValidation
	}
}
