package notifications

import (
	"testing"
	"time"
)

// TestHubPublishSubscribe проверяет доставку событий подписчику.
func TestHubPublishSubscribe(t *testing.T) {
	hub := NewHub()

	ch, unsubscribe := hub.Subscribe("budget-1")
	defer unsubscribe()

	hub.Publish("budget-1", Event{Type: EventStageChanged})

	select {
	case event := <-ch:
		if event.Type != EventStageChanged {
			t.Fatalf("expected event type %s, got %s", EventStageChanged, event.Type)
		}
		if event.BudgetID != "budget-1" {
			t.Fatalf("expected budget id to be set, got %q", event.BudgetID)
		}
		if event.Timestamp.IsZero() {
			t.Fatal("expected timestamp to be set")
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected event to be delivered")
	}
}

// TestHubIsolatesSessions проверяет, что события не уходят подписчикам другой сессии.
func TestHubIsolatesSessions(t *testing.T) {
	hub := NewHub()

	ch, unsubscribe := hub.Subscribe("budget-1")
	defer unsubscribe()

	hub.Publish("budget-2", Event{Type: EventModelPatched})

	select {
	case event := <-ch:
		t.Fatalf("unexpected event %+v", event)
	case <-time.After(50 * time.Millisecond):
	}
}

// TestHubUnsubscribe проверяет закрытие канала после отписки.
func TestHubUnsubscribe(t *testing.T) {
	hub := NewHub()

	ch, unsubscribe := hub.Subscribe("budget-1")
	unsubscribe()
	unsubscribe()

	if _, ok := <-ch; ok {
		t.Fatal("expected channel to be closed")
	}
	if hub.Subscribers("budget-1") != 0 {
		t.Fatal("expected no subscribers left")
	}
}

// TestNilHubPublish проверяет, что публикация без хаба безопасна.
func TestNilHubPublish(t *testing.T) {
	var hub *Hub
	hub.Publish("budget-1", Event{Type: EventStageChanged})
}
