// Package cache provides a bounded, TTL-aware response cache for extraction
// results. Capacity is fixed at construction; when full, the entry with the
// lowest retention score (a blend of access frequency and time-to-expiry) is
// evicted. All mutations are serialized by a single mutex so the
// check-evict-insert sequence is atomic with respect to concurrent callers.
package cache

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"sync"
	"time"
)

const (
	defaultMaxSize = 256
	defaultTTL     = 15 * time.Minute

	// defaultScoreDivisor scales expiry timestamps down so that access counts
	// and time-to-expiry contribute comparable magnitudes to the retention
	// score. This is a tunable policy knob, not a contract.
	defaultScoreDivisor = 1000
)

// Entry is a stored extraction result.
type entry struct {
	key         string
	value       []byte
	expiresAt   time.Time
	accessCount int64
}

// Stats is the read-only cache accounting surface.
type Stats struct {
	Size    int     `json:"size"`
	MaxSize int     `json:"max_size"`
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	HitRate float64 `json:"hit_rate"`
}

// Cache is a fixed-capacity scored cache. Safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry

	maxSize      int
	ttl          time.Duration
	scoreDivisor int64

	hits   int64
	misses int64

	// nowFunc is used for testing; defaults to time.Now.
	nowFunc func() time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithMaxSize caps the number of entries. The default is 256.
func WithMaxSize(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.maxSize = n
		}
	}
}

// WithTTL sets the default time-to-live for stored entries. The default is
// 15 minutes.
func WithTTL(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.ttl = d
		}
	}
}

// WithScoreDivisor tunes how strongly time-to-expiry weighs against access
// count in the eviction score.
func WithScoreDivisor(n int64) Option {
	return func(c *Cache) {
		if n > 0 {
			c.scoreDivisor = n
		}
	}
}

// WithNowFunc overrides the clock (used in tests).
func WithNowFunc(fn func() time.Time) Option {
	return func(c *Cache) {
		if fn != nil {
			c.nowFunc = fn
		}
	}
}

// New creates an empty cache with the given options.
func New(opts ...Option) *Cache {
	c := &Cache{
		entries:      make(map[string]*entry),
		maxSize:      defaultMaxSize,
		ttl:          defaultTTL,
		scoreDivisor: defaultScoreDivisor,
		nowFunc:      time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Key derives the deterministic cache key for a prompt pair. The prompt and
// system prompt are hashed with a separator plus the combined length, so the
// key stays fixed-size regardless of input size and two different
// concatenations that happen to collide textually still hash apart.
func Key(prompt, systemPrompt string) string {
	h := sha256.New()
	h.Write([]byte(prompt))
	h.Write([]byte{0})
	h.Write([]byte(systemPrompt))
	var lenBuf [8]byte
	binary.BigEndian.PutUint64(lenBuf[:], uint64(len(prompt)+len(systemPrompt)))
	h.Write(lenBuf[:])
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the cached value for key and whether it was present. A hit
// bumps the entry's access count; an expired entry counts as a miss and is
// removed.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}
	if c.nowFunc().After(e.expiresAt) {
		delete(c.entries, key)
		c.misses++
		return nil, false
	}
	e.accessCount++
	c.hits++
	return e.value, true
}

// Put stores value under key with the cache's default TTL.
func (c *Cache) Put(key string, value []byte) {
	c.PutTTL(key, value, c.ttl)
}

// PutTTL stores value under key with an explicit TTL. If the cache is at
// capacity and key is not already present, the lowest-scored entry is evicted
// first.
func (c *Cache) PutTTL(key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.ttl
	}
	now := c.nowFunc()

	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		e.expiresAt = now.Add(ttl)
		return
	}
	if len(c.entries) >= c.maxSize {
		c.evictLocked(now)
	}
	c.entries[key] = &entry{
		key:       key,
		value:     value,
		expiresAt: now.Add(ttl),
	}
}

// evictLocked removes the entry with the lowest retention score. Expired
// entries are dropped outright first; if that frees a slot, no scored
// eviction happens. Caller must hold c.mu.
func (c *Cache) evictLocked(now time.Time) {
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
		}
	}
	if len(c.entries) < c.maxSize {
		return
	}

	var victim string
	lowest := int64(0)
	first := true
	for k, e := range c.entries {
		score := e.accessCount + e.expiresAt.Unix()/c.scoreDivisor
		if first || score < lowest {
			victim, lowest, first = k, score, false
		}
	}
	if victim != "" {
		delete(c.entries, victim)
	}
}

// Invalidate removes a single entry. Used when a caller knows a cached result
// is stale (e.g. the source document was re-OCRed).
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Clear drops every entry but keeps the hit/miss counters, which are
// monotonic for the process lifetime.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]*entry)
	c.mu.Unlock()
}

// Stats returns a snapshot of cache accounting.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		Size:    len(c.entries),
		MaxSize: c.maxSize,
		Hits:    c.hits,
		Misses:  c.misses,
	}
	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total)
	}
	return s
}
