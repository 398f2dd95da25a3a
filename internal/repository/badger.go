package repository

import (
	"context"
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"

	"example.com/budget-pipeline/backend/internal/models"
)

var sessionKeyPrefix = []byte("session:")

// BadgerSessionRepository хранит сессии во встроенной базе badger.
type BadgerSessionRepository struct {
	db *badger.DB
}

// OpenBadgerSessionRepository открывает базу в каталоге path; пустой path означает хранение в памяти.
func OpenBadgerSessionRepository(path string) (*BadgerSessionRepository, error) {
	options := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		options = options.WithInMemory(true)
	}

	db, err := badger.Open(options)
	if err != nil {
		return nil, fmt.Errorf("open badger session store: %w", err)
	}
	return &BadgerSessionRepository{db: db}, nil
}

// Close закрывает базу.
func (r *BadgerSessionRepository) Close() error {
	return r.db.Close()
}

// Create сохраняет новую сессию.
func (r *BadgerSessionRepository) Create(ctx context.Context, session *models.Session) error {
	data, err := encodeSession(session)
	if err != nil {
		return err
	}

	return r.db.Update(func(txn *badger.Txn) error {
		key := sessionKey(session.ID)
		_, err := txn.Get(key)
		if err == nil {
			return fmt.Errorf("session %s: %w", session.ID, ErrConflict)
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(key, data)
	})
}

// Get возвращает сессию по идентификатору.
func (r *BadgerSessionRepository) Get(ctx context.Context, id string) (*models.Session, error) {
	var data []byte
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(sessionKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return decodeSession(data)
}

// UpdatePartial сохраняет сессию с частичной моделью.
func (r *BadgerSessionRepository) UpdatePartial(ctx context.Context, session *models.Session) error {
	if err := checkPartial(session); err != nil {
		return err
	}
	return r.replace(session)
}

// UpdateFinal сохраняет сессию с финальной моделью.
func (r *BadgerSessionRepository) UpdateFinal(ctx context.Context, session *models.Session) error {
	if err := checkFinal(session); err != nil {
		return err
	}
	return r.replace(session)
}

// UpdateContext сохраняет запрос, профиль и контекст пользователя.
func (r *BadgerSessionRepository) UpdateContext(ctx context.Context, session *models.Session) error {
	return r.replace(session)
}

func (r *BadgerSessionRepository) replace(session *models.Session) error {
	data, err := encodeSession(session)
	if err != nil {
		return err
	}

	return r.db.Update(func(txn *badger.Txn) error {
		key := sessionKey(session.ID)
		if _, err := txn.Get(key); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrNotFound
			}
			return err
		}
		return txn.Set(key, data)
	})
}

func sessionKey(id string) []byte {
	key := make([]byte, 0, len(sessionKeyPrefix)+len(id))
	key = append(key, sessionKeyPrefix...)
	return append(key, id...)
}
