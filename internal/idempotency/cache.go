// Package idempotency replays responses for repeated Idempotency-Key
// submissions, so a client retrying a flaky connection does not trigger a
// second model call for the same extraction.
package idempotency

import (
	"sync"
	"time"
)

// Entry holds one replayable response.
type Entry struct {
	Body       []byte
	StatusCode int
	Headers    map[string]string
	createdAt  time.Time
}

// Cache is a TTL-bounded, size-limited store of replayable responses.
type Cache struct {
	mu         sync.Mutex
	entries    map[string]*Entry
	ttl        time.Duration
	maxEntries int
	stop       chan struct{}
	stopOnce   sync.Once

	// nowFunc is used for testing; defaults to time.Now.
	nowFunc func() time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithNowFunc overrides the clock (used in tests).
func WithNowFunc(fn func() time.Time) Option {
	return func(c *Cache) { c.nowFunc = fn }
}

// New creates a Cache that expires entries after ttl and evicts the oldest
// entry when maxEntries is exceeded. A background goroutine prunes expired
// entries; call Stop to terminate it.
func New(ttl time.Duration, maxEntries int, opts ...Option) *Cache {
	c := &Cache{
		entries:    make(map[string]*Entry),
		ttl:        ttl,
		maxEntries: maxEntries,
		stop:       make(chan struct{}),
		nowFunc:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	go c.pruneLoop()
	return c
}

// Get returns the entry for key if it exists and has not expired.
func (c *Cache) Get(key string) (*Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.nowFunc().Sub(e.createdAt) > c.ttl {
		delete(c.entries, key)
		return nil, false
	}
	return e, true
}

// Set stores a response under key, evicting the oldest entry when at
// capacity.
func (c *Cache) Set(key string, body []byte, statusCode int, headers map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		c.evictOldestLocked()
	}
	c.entries[key] = &Entry{
		Body:       body,
		StatusCode: statusCode,
		Headers:    headers,
		createdAt:  c.nowFunc(),
	}
}

// Len returns the number of live entries, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stop terminates the background prune goroutine. Safe to call twice.
func (c *Cache) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Cache) pruneLoop() {
	interval := c.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.prune()
		case <-c.stop:
			return
		}
	}
}

func (c *Cache) prune() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.nowFunc()
	for k, e := range c.entries {
		if now.Sub(e.createdAt) > c.ttl {
			delete(c.entries, k)
		}
	}
}

// Caller must hold c.mu.
func (c *Cache) evictOldestLocked() {
	var oldestKey string
	var oldestTime time.Time
	first := true
	for k, e := range c.entries {
		if first || e.createdAt.Before(oldestTime) {
			oldestKey = k
			oldestTime = e.createdAt
			first = false
		}
	}
	if !first {
		delete(c.entries, oldestKey)
	}
}
