package repository

import (
	"context"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"example.com/budget-pipeline/backend/internal/models"
)

const DefaultMemoryCapacity = 1024

// MemorySessionRepository is the single-process fallback store. Sessions live
// only in this process and the least recently used ones are evicted when the
// capacity is reached. It is not shared between instances.
type MemorySessionRepository struct {
	mu    sync.Mutex
	cache *lru.Cache[string, []byte]
}

// NewMemorySessionRepository создает хранилище сессий в памяти процесса.
func NewMemorySessionRepository(capacity int) (*MemorySessionRepository, error) {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	cache, err := lru.New[string, []byte](capacity)
	if err != nil {
		return nil, fmt.Errorf("create session cache: %w", err)
	}
	return &MemorySessionRepository{cache: cache}, nil
}

// Create сохраняет новую сессию.
func (r *MemorySessionRepository) Create(ctx context.Context, session *models.Session) error {
	data, err := encodeSession(session)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cache.Contains(session.ID) {
		return fmt.Errorf("session %s: %w", session.ID, ErrConflict)
	}
	r.cache.Add(session.ID, data)
	return nil
}

// Get возвращает копию сессии.
func (r *MemorySessionRepository) Get(ctx context.Context, id string) (*models.Session, error) {
	r.mu.Lock()
	data, ok := r.cache.Get(id)
	r.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	return decodeSession(data)
}

// UpdatePartial сохраняет сессию с частичной моделью.
func (r *MemorySessionRepository) UpdatePartial(ctx context.Context, session *models.Session) error {
	if err := checkPartial(session); err != nil {
		return err
	}
	return r.replace(session)
}

// UpdateFinal сохраняет сессию с финальной моделью.
func (r *MemorySessionRepository) UpdateFinal(ctx context.Context, session *models.Session) error {
	if err := checkFinal(session); err != nil {
		return err
	}
	return r.replace(session)
}

// UpdateContext сохраняет запрос, профиль и контекст пользователя.
func (r *MemorySessionRepository) UpdateContext(ctx context.Context, session *models.Session) error {
	return r.replace(session)
}

// Len возвращает количество сессий в кэше.
func (r *MemorySessionRepository) Len() int {
	return r.cache.Len()
}

func (r *MemorySessionRepository) replace(session *models.Session) error {
	data, err := encodeSession(session)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.cache.Contains(session.ID) {
		return ErrNotFound
	}
	r.cache.Add(session.ID, data)
	return nil
}
