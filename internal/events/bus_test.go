package events

import (
	"encoding/json"
	"testing"
	"time"
)

func TestPublishDeliversToAllSubscribers(t *testing.T) {
	bus := NewBus()
	a := bus.Subscribe(4)
	b := bus.Subscribe(4)
	defer bus.Unsubscribe(a)
	defer bus.Unsubscribe(b)

	bus.Publish(Event{Type: EventExtractionCompleted, Provider: "anthropic"})

	for _, sub := range []*Subscriber{a, b} {
		select {
		case e := <-sub.C:
			if e.Type != EventExtractionCompleted || e.Provider != "anthropic" {
				t.Errorf("unexpected event: %+v", e)
			}
			if e.Timestamp.IsZero() {
				t.Error("timestamp not stamped")
			}
		case <-time.After(time.Second):
			t.Fatal("event not delivered")
		}
	}
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	bus := NewBus()
	s := bus.Subscribe(1)
	defer bus.Unsubscribe(s)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			bus.Publish(Event{Type: EventExtractionFailed})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on slow subscriber")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := NewBus()
	s := bus.Subscribe(4)
	bus.Unsubscribe(s)

	if n := bus.SubscriberCount(); n != 0 {
		t.Errorf("subscriber count = %d, want 0", n)
	}
	bus.Publish(Event{Type: EventCacheCleared})
	select {
	case e, ok := <-s.C:
		if ok {
			t.Errorf("received event after unsubscribe: %+v", e)
		}
	default:
	}
}

func TestEventJSONOmitsEmptyFields(t *testing.T) {
	e := Event{Type: EventBreakerStateChange, Provider: "openai", OldState: "closed", NewState: "open"}
	var decoded map[string]any
	if err := json.Unmarshal(e.JSON(), &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded["new_state"] != "open" {
		t.Errorf("new_state = %v", decoded["new_state"])
	}
	if _, present := decoded["error_category"]; present {
		t.Error("empty error_category should be omitted")
	}
}
