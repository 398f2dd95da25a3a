package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"example.com/budget-pipeline/backend/internal/notifications"
	"example.com/budget-pipeline/backend/internal/pipeline"
)

const keepAliveInterval = 25 * time.Second

type EventsHandler struct {
	Hub     *notifications.Hub
	Service *pipeline.Service
	Logger  *slog.Logger
}

// NewEventsHandler создает SSE-обработчик событий сессии.
func NewEventsHandler(hub *notifications.Hub, service *pipeline.Service, logger *slog.Logger) *EventsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventsHandler{Hub: hub, Service: service, Logger: logger}
}

// Stream открывает SSE-поток событий для сессии бюджета.
func (h *EventsHandler) Stream(c echo.Context) error {
	budgetID := c.Param("id")

	budget, err := h.Service.Get(c.Request().Context(), budgetID)
	if err != nil {
		return respondError(c, h.Logger, budgetID, err)
	}

	flusher, ok := c.Response().Writer.(http.Flusher)
	if !ok {
		return serverError(c)
	}

	c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
	c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
	c.Response().Header().Set(echo.HeaderConnection, "keep-alive")
	c.Response().WriteHeader(http.StatusOK)

	ch, unsubscribe := h.Hub.Subscribe(budgetID)
	defer unsubscribe()

	_ = writeSSE(c, notifications.Event{
		Type:      notifications.EventConnected,
		BudgetID:  budgetID,
		Timestamp: time.Now().UTC(),
		Data:      map[string]any{"stage": budget.Stage},
	})
	flusher.Flush()

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := c.Response().Write([]byte(": keep-alive\n\n")); err != nil {
				return nil
			}
			flusher.Flush()
		case event, ok := <-ch:
			if !ok {
				return nil
			}
			if err := writeSSE(c, event); err != nil {
				return nil
			}
			flusher.Flush()
		}
	}
}

func writeSSE(c echo.Context, event notifications.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	if _, err := c.Response().Write([]byte("event: " + event.Type + "\n")); err != nil {
		return err
	}
	if _, err := c.Response().Write([]byte("data: " + string(payload) + "\n\n")); err != nil {
		return err
	}

	return nil
}
