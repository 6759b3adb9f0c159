// Package events is an in-memory pub/sub bus for live gateway events,
// consumed by the admin SSE endpoint.
package events

import (
	"encoding/json"
	"sync"
	"time"
)

// EventType identifies the kind of event.
type EventType string

const (
	EventExtractionCompleted EventType = "extraction_completed"
	EventExtractionFailed    EventType = "extraction_failed"
	EventBreakerStateChange  EventType = "breaker_state_change"
	EventCacheCleared        EventType = "cache_cleared"
	EventVaultUnlocked       EventType = "vault_unlocked"
	EventVaultLocked         EventType = "vault_locked"
)

// Event is a single gateway event published on the bus. Prompt and document
// text never appear in events.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	// Extraction fields.
	Provider      string  `json:"provider,omitempty"`
	Model         string  `json:"model,omitempty"`
	LatencyMs     float64 `json:"latency_ms,omitempty"`
	CacheHit      bool    `json:"cache_hit,omitempty"`
	ErrorCategory string  `json:"error_category,omitempty"`

	// Breaker fields (populated for breaker_state_change).
	OldState string `json:"old_state,omitempty"`
	NewState string `json:"new_state,omitempty"`
}

// JSON returns the event as a JSON byte slice.
func (e *Event) JSON() []byte {
	b, _ := json.Marshal(e)
	return b
}

// Subscriber receives events on a channel.
type Subscriber struct {
	C    chan Event
	done chan struct{}
}

// Bus fans events out to all subscribers. Slow subscribers drop events
// rather than blocking the publisher.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[*Subscriber]struct{}
}

func NewBus() *Bus {
	return &Bus{subscribers: make(map[*Subscriber]struct{})}
}

// Subscribe creates a new subscriber with a buffered channel.
func (b *Bus) Subscribe(bufSize int) *Subscriber {
	if bufSize <= 0 {
		bufSize = 64
	}
	s := &Subscriber{
		C:    make(chan Event, bufSize),
		done: make(chan struct{}),
	}
	b.mu.Lock()
	b.subscribers[s] = struct{}{}
	b.mu.Unlock()
	return s
}

// Unsubscribe removes a subscriber and closes its done channel.
func (b *Bus) Unsubscribe(s *Subscriber) {
	b.mu.Lock()
	delete(b.subscribers, s)
	b.mu.Unlock()
	close(s.done)
}

// Publish sends an event to all subscribers without blocking.
func (b *Bus) Publish(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for s := range b.subscribers {
		select {
		case s.C <- e:
		default:
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
