package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

type HealthResponse struct {
	Status   string `json:"status"`
	Store    string `json:"store"`
	Provider string `json:"provider"`
}

// Health возвращает статус сервиса, тип хранилища сессий и провайдера.
func Health(store, provider string) echo.HandlerFunc {
	response := HealthResponse{Status: "ok", Store: store, Provider: provider}
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, response)
	}
}
