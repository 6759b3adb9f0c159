// Package ratelimit throttles extraction requests per client IP with an
// in-memory token bucket. Provider quota is expensive; the limiter keeps a
// single noisy client from draining it for everyone.
package ratelimit

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Limiter is a per-IP token bucket limiter.
type Limiter struct {
	mu       sync.Mutex
	buckets  map[string]*bucket
	rate     int
	burst    int
	interval time.Duration
	maxKeys  int
	stop     chan struct{}
	counter  prometheus.Counter
	nowFunc  func() time.Time
}

type bucket struct {
	tokens   int
	lastFill time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithCounter sets a Prometheus counter incremented on each rejection.
func WithCounter(c prometheus.Counter) Option {
	return func(l *Limiter) { l.counter = c }
}

// WithMaxKeys caps the number of tracked client IPs.
func WithMaxKeys(n int) Option {
	return func(l *Limiter) {
		if n > 0 {
			l.maxKeys = n
		}
	}
}

// WithNowFunc overrides the clock, for tests.
func WithNowFunc(f func() time.Time) Option {
	return func(l *Limiter) { l.nowFunc = f }
}

// New creates a limiter granting rate tokens per interval with the given
// burst capacity, and starts its background sweep.
func New(rate, burst int, interval time.Duration, opts ...Option) *Limiter {
	l := &Limiter{
		buckets:  make(map[string]*bucket),
		rate:     rate,
		burst:    burst,
		interval: interval,
		maxKeys:  100000,
		stop:     make(chan struct{}),
		nowFunc:  time.Now,
	}
	for _, o := range opts {
		o(l)
	}
	go l.sweep()
	return l
}

// Middleware enforces the limit per client IP, preferring X-Real-IP (set by
// the chi RealIP middleware) over RemoteAddr.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.Header.Get("X-Real-IP")
		if ip == "" {
			ip = r.RemoteAddr
		}
		if !l.Allow(ip) {
			if l.counter != nil {
				l.counter.Inc()
			}
			w.Header().Set("Retry-After", "1")
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Allow reports whether the key may proceed, consuming one token if so.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		if len(l.buckets) >= l.maxKeys {
			l.evictOldestLocked()
		}
		b = &bucket{tokens: l.burst, lastFill: l.nowFunc()}
		l.buckets[key] = b
	}

	elapsed := l.nowFunc().Sub(b.lastFill)
	refill := int(elapsed/l.interval) * l.rate
	if refill > 0 {
		b.tokens += refill
		if b.tokens > l.burst {
			b.tokens = l.burst
		}
		b.lastFill = l.nowFunc()
	}

	if b.tokens <= 0 {
		return false
	}
	b.tokens--
	return true
}

// evictOldestLocked removes the bucket with the oldest lastFill.
func (l *Limiter) evictOldestLocked() {
	var oldestKey string
	var oldestTime time.Time
	first := true
	for k, b := range l.buckets {
		if first || b.lastFill.Before(oldestTime) {
			oldestKey = k
			oldestTime = b.lastFill
			first = false
		}
	}
	if !first {
		delete(l.buckets, oldestKey)
	}
}

// Stop terminates the background sweep goroutine.
func (l *Limiter) Stop() {
	close(l.stop)
}

func (l *Limiter) sweep() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.mu.Lock()
			cutoff := l.nowFunc().Add(-10 * time.Minute)
			for k, b := range l.buckets {
				if b.lastFill.Before(cutoff) {
					delete(l.buckets, k)
				}
			}
			l.mu.Unlock()
		case <-l.stop:
			return
		}
	}
}
