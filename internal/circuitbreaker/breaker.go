// Package circuitbreaker gates calls to failing dependencies. Each AI
// provider gets its own breaker: after a configurable run of consecutive
// failures the breaker opens and the provider is skipped until a cooldown
// elapses, at which point a single probe request decides whether it closes
// again. A Registry bundles one breaker per provider so one provider's
// outage never affects another's eligibility.
package circuitbreaker

import (
	"sync"
	"time"
)

// State represents the current state of a circuit breaker.
type State int

const (
	// Closed is the normal operating state: calls are allowed.
	Closed State = iota
	// Open means the circuit has tripped: calls are rejected.
	Open
	// HalfOpen allows a single probe call to test whether the dependency
	// has recovered.
	HalfOpen
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

const (
	defaultThreshold = 3
	defaultCooldown  = 30 * time.Second
)

// Breaker is a goroutine-safe circuit breaker tracking consecutive failures
// for one dependency.
type Breaker struct {
	mu               sync.Mutex
	state            State
	failureCount     int
	failureThreshold int
	cooldown         time.Duration
	openedAt         time.Time
	onStateChange    func(from, to State)

	// nowFunc is used for testing; defaults to time.Now.
	nowFunc func() time.Time
}

// Option configures a Breaker.
type Option func(*Breaker)

// WithThreshold sets the number of consecutive failures required to trip the
// breaker from Closed to Open. The default is 3.
func WithThreshold(n int) Option {
	return func(b *Breaker) {
		if n > 0 {
			b.failureThreshold = n
		}
	}
}

// WithCooldown sets how long the breaker stays Open before a probe is
// allowed. The default is 30 seconds.
func WithCooldown(d time.Duration) Option {
	return func(b *Breaker) {
		if d > 0 {
			b.cooldown = d
		}
	}
}

// WithOnStateChange registers a callback fired on every state transition.
// The callback runs with the breaker's mutex held, so it must not call back
// into the breaker.
func WithOnStateChange(fn func(from, to State)) Option {
	return func(b *Breaker) {
		b.onStateChange = fn
	}
}

// WithNowFunc overrides the clock (used in tests).
func WithNowFunc(fn func() time.Time) Option {
	return func(b *Breaker) {
		if fn != nil {
			b.nowFunc = fn
		}
	}
}

// New creates a Breaker in the Closed state.
func New(opts ...Option) *Breaker {
	b := &Breaker{
		state:            Closed,
		failureThreshold: defaultThreshold,
		cooldown:         defaultCooldown,
		nowFunc:          time.Now,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Allow reports whether the next call to the dependency may proceed.
//
// Closed always allows. Open rejects until the cooldown has elapsed, then
// transitions to HalfOpen and allows exactly one probe. HalfOpen rejects
// while that probe is in flight. The transition happens inside the mutex, so
// two concurrent callers can never both win the probe slot.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return true
	case Open:
		if b.nowFunc().After(b.openedAt.Add(b.cooldown)) {
			b.setState(HalfOpen)
			return true
		}
		return false
	case HalfOpen:
		return false
	default:
		return false
	}
}

// RecordSuccess resets the consecutive failure counter and, if a probe was in
// flight, closes the breaker.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failureCount = 0
	if b.state == HalfOpen {
		b.setState(Closed)
	}
}

// RecordFailure increments the consecutive failure counter. In Closed state
// the breaker trips once the threshold is reached; in HalfOpen a failed probe
// reopens it and restarts the cooldown.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failureCount++

	switch b.state {
	case Closed:
		if b.failureCount >= b.failureThreshold {
			b.setState(Open)
			b.openedAt = b.nowFunc()
		}
	case HalfOpen:
		b.setState(Open)
		b.openedAt = b.nowFunc()
	}
}

// ReleaseProbe abandons an in-flight HalfOpen probe without recording an
// outcome. The breaker returns to Open with the failure count untouched;
// since the cooldown has already elapsed, the next Allow immediately grants a
// fresh probe. Called when a probe is cancelled by the client rather than
// answered by the provider. No-op in any other state.
func (b *Breaker) ReleaseProbe() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == HalfOpen {
		b.setState(Open)
	}
}

// CurrentState returns the breaker state. In Open state this does NOT check
// the cooldown timer; use Allow for that.
func (b *Breaker) CurrentState() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Snapshot is a read-only view of a breaker for monitoring endpoints.
type Snapshot struct {
	State        string    `json:"state"`
	FailureCount int       `json:"failure_count"`
	OpenedAt     time.Time `json:"opened_at,omitempty"`
}

// Snapshot returns the current state, failure count and trip time.
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Snapshot{
		State:        b.state.String(),
		FailureCount: b.failureCount,
		OpenedAt:     b.openedAt,
	}
}

// setState transitions the breaker and fires the callback if registered.
// Caller must hold b.mu.
func (b *Breaker) setState(to State) {
	from := b.state
	b.state = to
	if b.onStateChange != nil && from != to {
		b.onStateChange(from, to)
	}
}
