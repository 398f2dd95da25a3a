package server

import (
	"context"
	"fmt"
	"log/slog"

	"example.com/budget-pipeline/backend/internal/ai"
	"example.com/budget-pipeline/backend/internal/config"
	"example.com/budget-pipeline/backend/internal/database"
	"example.com/budget-pipeline/backend/internal/pipeline"
	"example.com/budget-pipeline/backend/internal/repository"
)

// Storage is the session store selected by SESSION_STORE plus the provider
// request log when Postgres is available.
type Storage struct {
	Kind     string
	Sessions pipeline.SessionStore
	Audit    ai.RequestLogger
	close    func()
}

// Close освобождает ресурсы хранилища.
func (s *Storage) Close() {
	if s != nil && s.close != nil {
		s.close()
	}
}

// OpenStorage открывает хранилище сессий согласно конфигурации.
func OpenStorage(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Storage, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Store.Kind {
	case config.StorePostgres:
		pool, err := database.Open(ctx, cfg.Database, logger)
		if err != nil {
			return nil, err
		}
		if err := database.EnsureSchema(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		return &Storage{
			Kind:     config.StorePostgres,
			Sessions: repository.NewSessionRepository(pool),
			Audit:    repository.NewProviderLogRepository(pool),
			close:    pool.Close,
		}, nil
	case config.StoreBadger:
		store, err := repository.OpenBadgerSessionRepository(cfg.Store.BadgerPath)
		if err != nil {
			return nil, err
		}
		return &Storage{
			Kind:     config.StoreBadger,
			Sessions: store,
			close: func() {
				if err := store.Close(); err != nil {
					logger.Error("close badger store", slog.String("error", err.Error()))
				}
			},
		}, nil
	case config.StoreMemory:
		store, err := repository.NewMemorySessionRepository(cfg.Store.CacheSize)
		if err != nil {
			return nil, err
		}
		return &Storage{Kind: config.StoreMemory, Sessions: store}, nil
	default:
		return nil, fmt.Errorf("unknown session store %q", cfg.Store.Kind)
	}
}
