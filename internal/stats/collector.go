// Package stats keeps rolling per-provider aggregates for the monitoring
// endpoints. Snapshots are held in memory for a bounded window and pruned on
// read; the request-log store keeps the durable history.
package stats

import (
	"sort"
	"sync"
	"time"
)

// Snapshot is a single recorded extraction outcome.
type Snapshot struct {
	Timestamp     time.Time
	Provider      string
	LatencyMs     float64
	Success       bool
	CacheHit      bool
	ErrorCategory string
}

// Window is a named aggregation span.
type Window struct {
	Name     string
	Duration time.Duration
}

// DefaultWindows returns the standard rolling windows.
func DefaultWindows() []Window {
	return []Window{
		{Name: "5m", Duration: 5 * time.Minute},
		{Name: "1h", Duration: time.Hour},
		{Name: "24h", Duration: 24 * time.Hour},
	}
}

// Aggregate holds computed stats for one provider in one window.
type Aggregate struct {
	Window       string  `json:"window"`
	Provider     string  `json:"provider,omitempty"`
	RequestCount int     `json:"request_count"`
	ErrorCount   int     `json:"error_count"`
	ErrorRate    float64 `json:"error_rate"`
	CacheHits    int     `json:"cache_hits"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
	P95LatencyMs float64 `json:"p95_latency_ms"`
}

// Collector maintains rolling snapshots. Safe for concurrent use.
type Collector struct {
	mu        sync.Mutex
	snapshots []Snapshot
	maxAge    time.Duration
	windows   []Window
}

// NewCollector creates a collector covering the default windows.
func NewCollector() *Collector {
	return &Collector{
		windows: DefaultWindows(),
		maxAge:  25 * time.Hour, // slightly more than the largest window
	}
}

// Record adds one snapshot. A zero timestamp means now.
func (c *Collector) Record(s Snapshot) {
	if s.Timestamp.IsZero() {
		s.Timestamp = time.Now().UTC()
	}
	c.mu.Lock()
	c.snapshots = append(c.snapshots, s)
	c.mu.Unlock()
}

// Seed bulk-loads historical snapshots (from the store on startup) so the
// dashboard is not empty after a restart.
func (c *Collector) Seed(snapshots []Snapshot) {
	c.mu.Lock()
	c.snapshots = append(c.snapshots, snapshots...)
	sort.Slice(c.snapshots, func(i, j int) bool {
		return c.snapshots[i].Timestamp.Before(c.snapshots[j].Timestamp)
	})
	c.mu.Unlock()
}

// snapshotCopy prunes expired snapshots and returns a copy of the rest.
func (c *Collector) snapshotCopy() []Snapshot {
	cutoff := time.Now().Add(-c.maxAge)
	c.mu.Lock()
	defer c.mu.Unlock()

	i := 0
	for i < len(c.snapshots) && c.snapshots[i].Timestamp.Before(cutoff) {
		i++
	}
	if i > 0 {
		c.snapshots = c.snapshots[i:]
	}
	cp := make([]Snapshot, len(c.snapshots))
	copy(cp, c.snapshots)
	return cp
}

// ByProvider returns aggregates for every window grouped by provider.
func (c *Collector) ByProvider() map[string][]Aggregate {
	snapshots := c.snapshotCopy()
	now := time.Now()
	result := make(map[string][]Aggregate)

	for _, w := range c.windows {
		cutoff := now.Add(-w.Duration)
		groups := make(map[string][]Snapshot)
		for _, s := range snapshots {
			if s.Timestamp.After(cutoff) {
				groups[s.Provider] = append(groups[s.Provider], s)
			}
		}
		for provider, snaps := range groups {
			result[w.Name] = append(result[w.Name], computeAggregate(w.Name, provider, snaps))
		}
	}
	return result
}

// Global returns aggregates across all providers per window.
func (c *Collector) Global() []Aggregate {
	snapshots := c.snapshotCopy()
	now := time.Now()
	var result []Aggregate

	for _, w := range c.windows {
		cutoff := now.Add(-w.Duration)
		var snaps []Snapshot
		for _, s := range snapshots {
			if s.Timestamp.After(cutoff) {
				snaps = append(snaps, s)
			}
		}
		if len(snaps) > 0 {
			result = append(result, computeAggregate(w.Name, "", snaps))
		}
	}
	return result
}

func computeAggregate(window, provider string, snaps []Snapshot) Aggregate {
	a := Aggregate{
		Window:       window,
		Provider:     provider,
		RequestCount: len(snaps),
	}

	var totalLatency float64
	latencies := make([]float64, 0, len(snaps))
	for _, s := range snaps {
		totalLatency += s.LatencyMs
		latencies = append(latencies, s.LatencyMs)
		if !s.Success {
			a.ErrorCount++
		}
		if s.CacheHit {
			a.CacheHits++
		}
	}
	if a.RequestCount > 0 {
		a.AvgLatencyMs = totalLatency / float64(a.RequestCount)
		a.ErrorRate = float64(a.ErrorCount) / float64(a.RequestCount)
	}

	sort.Float64s(latencies)
	if len(latencies) > 0 {
		idx := int(float64(len(latencies)) * 0.95)
		if idx >= len(latencies) {
			idx = len(latencies) - 1
		}
		a.P95LatencyMs = latencies[idx]
	}
	return a
}
