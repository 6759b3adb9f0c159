package stats

import (
	"testing"
	"time"
)

func TestByProviderGroupsAndCounts(t *testing.T) {
	c := NewCollector()
	now := time.Now()

	c.Record(Snapshot{Timestamp: now, Provider: "anthropic", LatencyMs: 100, Success: true})
	c.Record(Snapshot{Timestamp: now, Provider: "anthropic", LatencyMs: 300, Success: false, ErrorCategory: "provider_timeout"})
	c.Record(Snapshot{Timestamp: now, Provider: "openai", LatencyMs: 50, Success: true, CacheHit: true})

	byProvider := c.ByProvider()
	aggs, ok := byProvider["5m"]
	if !ok {
		t.Fatal("expected 5m window aggregates")
	}

	found := map[string]Aggregate{}
	for _, a := range aggs {
		found[a.Provider] = a
	}
	anth := found["anthropic"]
	if anth.RequestCount != 2 || anth.ErrorCount != 1 {
		t.Errorf("anthropic counts: %+v", anth)
	}
	if anth.ErrorRate != 0.5 {
		t.Errorf("error rate: %v", anth.ErrorRate)
	}
	if anth.AvgLatencyMs != 200 {
		t.Errorf("avg latency: %v", anth.AvgLatencyMs)
	}
	if found["openai"].CacheHits != 1 {
		t.Errorf("openai cache hits: %+v", found["openai"])
	}
}

func TestOldSnapshotsExcludedFromShortWindow(t *testing.T) {
	c := NewCollector()
	c.Record(Snapshot{Timestamp: time.Now().Add(-10 * time.Minute), Provider: "openai", LatencyMs: 80, Success: true})
	c.Record(Snapshot{Timestamp: time.Now(), Provider: "openai", LatencyMs: 120, Success: true})

	byProvider := c.ByProvider()
	for _, a := range byProvider["5m"] {
		if a.Provider == "openai" && a.RequestCount != 1 {
			t.Errorf("5m window should only see the recent snapshot: %+v", a)
		}
	}
	for _, a := range byProvider["1h"] {
		if a.Provider == "openai" && a.RequestCount != 2 {
			t.Errorf("1h window should see both: %+v", a)
		}
	}
}

func TestSnapshotsBeyondMaxAgePruned(t *testing.T) {
	c := NewCollector()
	c.Record(Snapshot{Timestamp: time.Now().Add(-48 * time.Hour), Provider: "ollama", LatencyMs: 10, Success: true})
	c.Record(Snapshot{Timestamp: time.Now(), Provider: "ollama", LatencyMs: 10, Success: true})

	c.Global()

	c.mu.Lock()
	n := len(c.snapshots)
	c.mu.Unlock()
	if n != 1 {
		t.Errorf("expected stale snapshot pruned, have %d", n)
	}
}

func TestGlobalP95(t *testing.T) {
	c := NewCollector()
	now := time.Now()
	for i := 1; i <= 100; i++ {
		c.Record(Snapshot{Timestamp: now, Provider: "anthropic", LatencyMs: float64(i), Success: true})
	}

	for _, a := range c.Global() {
		if a.Window == "5m" {
			if a.P95LatencyMs < 95 || a.P95LatencyMs > 97 {
				t.Errorf("p95 out of range: %v", a.P95LatencyMs)
			}
			return
		}
	}
	t.Fatal("no 5m global aggregate")
}

func TestSeedOrdersByTime(t *testing.T) {
	c := NewCollector()
	now := time.Now()
	c.Record(Snapshot{Timestamp: now, Provider: "openai", LatencyMs: 5, Success: true})
	c.Seed([]Snapshot{
		{Timestamp: now.Add(-2 * time.Hour), Provider: "openai", LatencyMs: 5, Success: true},
		{Timestamp: now.Add(-time.Hour), Provider: "openai", LatencyMs: 5, Success: true},
	})

	snaps := c.snapshotCopy()
	for i := 1; i < len(snaps); i++ {
		if snaps[i].Timestamp.Before(snaps[i-1].Timestamp) {
			t.Fatal("snapshots not sorted after Seed")
		}
	}
}
