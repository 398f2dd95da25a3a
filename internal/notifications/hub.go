package notifications

import (
	"sync"
	"time"
)

const (
	EventConnected    = "connected"
	EventStageChanged = "stage_changed"
	EventModelPatched = "model_patched"
	EventContext      = "context_updated"
)

type Event struct {
	Type      string      `json:"type"`
	BudgetID  string      `json:"budget_id"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

// Hub fans out session events to SSE subscribers of that session.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan Event]struct{}
}

// NewHub создает хаб для SSE-подписок.
func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[string]map[chan Event]struct{}),
	}
}

// Subscribe подписывает клиента на события сессии и возвращает канал и функцию отписки.
func (h *Hub) Subscribe(budgetID string) (<-chan Event, func()) {
	ch := make(chan Event, 10)

	h.mu.Lock()
	defer h.mu.Unlock()

	sessionSubs, ok := h.subscribers[budgetID]
	if !ok {
		sessionSubs = make(map[chan Event]struct{})
		h.subscribers[budgetID] = sessionSubs
	}
	sessionSubs[ch] = struct{}{}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()

			if subs, exists := h.subscribers[budgetID]; exists {
				delete(subs, ch)
				if len(subs) == 0 {
					delete(h.subscribers, budgetID)
				}
			}
			close(ch)
		})
	}
}

// Publish отправляет событие всем подписчикам сессии. Медленные подписчики пропускают событие.
func (h *Hub) Publish(budgetID string, event Event) {
	if h == nil {
		return
	}

	event.BudgetID = budgetID
	event.Timestamp = time.Now().UTC()

	h.mu.RLock()
	defer h.mu.RUnlock()

	subs, ok := h.subscribers[budgetID]
	if !ok {
		return
	}

	for ch := range subs {
		select {
		case ch <- event:
		default:
		}
	}
}

// Subscribers возвращает число подписчиков сессии.
func (h *Hub) Subscribers(budgetID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[budgetID])
}
