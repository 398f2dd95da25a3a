package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"example.com/budget-pipeline/backend/internal/ai"
	"example.com/budget-pipeline/backend/internal/archive"
	"example.com/budget-pipeline/backend/internal/auth"
	"example.com/budget-pipeline/backend/internal/clarify"
	"example.com/budget-pipeline/backend/internal/config"
	"example.com/budget-pipeline/backend/internal/handlers"
	"example.com/budget-pipeline/backend/internal/normalize"
	"example.com/budget-pipeline/backend/internal/notifications"
	"example.com/budget-pipeline/backend/internal/pipeline"
	"example.com/budget-pipeline/backend/internal/suggest"
)

// New собирает HTTP-сервер Echo с роутами и зависимостями.
func New(cfg config.Config, logger *slog.Logger, storage *Storage) (*echo.Echo, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if storage == nil || storage.Sessions == nil {
		return nil, fmt.Errorf("session storage is required")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = NewValidator()
	e.HTTPErrorHandler = handlers.ErrorHandler(logger)

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(requestLogger(logger))
	if len(cfg.Server.CORSOrigins) > 0 {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: cfg.Server.CORSOrigins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
			AllowHeaders: []string{echo.HeaderContentType, echo.HeaderAuthorization},
		}))
	}

	generator := newGenerator(cfg.AI, storage.Audit, logger)
	notificationHub := notifications.NewHub()

	deps := pipeline.Deps{
		Store:      storage.Sessions,
		Normalizer: normalize.New(nil),
		Clarifier:  clarify.NewEngine(generator, cfg.Pipeline.MaxQuestions, logger),
		Suggester: suggest.NewEngine(generator, suggest.Thresholds{
			CategoryShare: cfg.Pipeline.CategoryShareThreshold,
			InterestRate:  cfg.Pipeline.InterestRateThreshold,
		}, logger),
		Events: notificationHub,
		Logger: logger,
	}
	if cfg.Archive.Enabled() {
		uploads, err := archive.NewS3Archive(cfg.Archive)
		if err != nil {
			return nil, fmt.Errorf("configure upload archive: %w", err)
		}
		deps.Archive = uploads
	}

	service := pipeline.NewService(deps)
	budgetHandler := handlers.NewBudgetHandler(service, cfg.Pipeline.UploadMaxBytes, logger)
	eventsHandler := handlers.NewEventsHandler(notificationHub, service, logger)

	var authMiddleware echo.MiddlewareFunc
	if cfg.Auth.Enabled() {
		tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, cfg.Auth.AccessTokenTTL)
		authMiddleware = auth.JWTMiddleware(tokenManager)
	}

	registerRoutes(
		e,
		handlers.Health(storage.Kind, generator.Provider()),
		budgetHandler,
		eventsHandler,
		authMiddleware,
		apiRateLimiter(cfg.Server),
		aiRateLimiter(cfg.AI),
	)

	logger.Info("pipeline assembled",
		slog.String("store", storage.Kind),
		slog.String("provider", generator.Provider()),
		slog.Bool("archive", cfg.Archive.Enabled()),
		slog.Bool("auth", cfg.Auth.Enabled()),
	)

	return e, nil
}

// NewHTTPServer создает net/http сервер с заданными таймаутами.
func NewHTTPServer(cfg config.ServerConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}

// newGenerator выбирает клиента провайдера; без ключа работает только детерминированный путь.
func newGenerator(cfg config.AIConfig, audit ai.RequestLogger, logger *slog.Logger) *ai.Generator {
	var client ai.Client
	if cfg.Enabled() {
		switch cfg.Provider {
		case config.ProviderGemini:
			gemini, err := ai.NewGeminiClient(context.Background(), cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.Timeout, cfg.MaxOutputTokens)
			if err != nil {
				logger.Warn("gemini client unavailable, using deterministic rules", slog.String("error", err.Error()))
			} else {
				client = gemini
			}
		case config.ProviderGroq:
			client = ai.NewGroqClient(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.Timeout, cfg.MaxOutputTokens)
		}
	}

	return ai.NewGenerator(client, ai.GeneratorConfig{
		Provider:   cfg.Provider,
		Model:      cfg.Model,
		Timeout:    cfg.Timeout,
		MaxRetries: cfg.MaxRetries,
	}, audit, logger)
}

func requestLogger(logger *slog.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []slog.Attr{
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.String("remote_ip", v.RemoteIP),
				slog.String("request_id", v.RequestID),
				slog.Duration("latency", v.Latency),
			}

			if v.Error != nil {
				attrs = append(attrs, slog.String("error", v.Error.Error()))
			}

			msg := "request completed"
			if v.Status >= http.StatusInternalServerError {
				logger.LogAttrs(c.Request().Context(), slog.LevelError, msg, attrs...)
				return nil
			}

			logger.LogAttrs(c.Request().Context(), slog.LevelInfo, msg, attrs...)
			return nil
		},
	})
}

func apiRateLimiter(cfg config.ServerConfig) echo.MiddlewareFunc {
	return newRateLimiter(cfg.RateLimitPerMinute, cfg.RateLimitBurst)
}

func aiRateLimiter(cfg config.AIConfig) echo.MiddlewareFunc {
	return newRateLimiter(cfg.RateLimitPerMinute, cfg.RateLimitBurst)
}

func newRateLimiter(perMinute, burst int) echo.MiddlewareFunc {
	limit := rate.Limit(float64(perMinute) / 60.0)
	store := middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      limit,
		Burst:     burst,
		ExpiresIn: time.Minute,
	})

	return middleware.RateLimiter(store)
}
