package circuitbreaker

import (
	"testing"
	"time"
)

func TestClosedAllows(t *testing.T) {
	b := New()
	if !b.Allow() {
		t.Fatal("closed breaker should allow calls")
	}
	if b.CurrentState() != Closed {
		t.Fatalf("expected Closed, got %s", b.CurrentState())
	}
}

func TestTripsAtThreshold(t *testing.T) {
	b := New(WithThreshold(3))

	b.RecordFailure()
	b.RecordFailure()
	if b.CurrentState() != Closed {
		t.Fatalf("two failures must not trip a threshold-3 breaker, got %s", b.CurrentState())
	}

	b.RecordFailure()
	if b.CurrentState() != Open {
		t.Fatalf("expected Open at threshold, got %s", b.CurrentState())
	}
	if b.Allow() {
		t.Fatal("open breaker must reject calls")
	}
}

func TestCooldownAllowsSingleProbe(t *testing.T) {
	now := time.Now()
	b := New(WithThreshold(1), WithCooldown(10*time.Second),
		WithNowFunc(func() time.Time { return now }))

	b.RecordFailure()
	if b.Allow() {
		t.Fatal("should reject during cooldown")
	}

	now = now.Add(11 * time.Second)
	if !b.Allow() {
		t.Fatal("should allow one probe after cooldown")
	}
	if b.CurrentState() != HalfOpen {
		t.Fatalf("expected HalfOpen, got %s", b.CurrentState())
	}
	if b.Allow() {
		t.Fatal("only one probe may be in flight")
	}
}

func TestProbeSuccessClosesAndResets(t *testing.T) {
	now := time.Now()
	b := New(WithThreshold(2), WithCooldown(5*time.Second),
		WithNowFunc(func() time.Time { return now }))

	b.RecordFailure()
	b.RecordFailure()
	now = now.Add(6 * time.Second)
	if !b.Allow() {
		t.Fatal("probe should be allowed")
	}

	b.RecordSuccess()
	if b.CurrentState() != Closed {
		t.Fatalf("expected Closed after probe success, got %s", b.CurrentState())
	}
	if got := b.Snapshot().FailureCount; got != 0 {
		t.Errorf("failure count must reset on success, got %d", got)
	}
}

func TestProbeFailureReopens(t *testing.T) {
	now := time.Now()
	b := New(WithThreshold(1), WithCooldown(5*time.Second),
		WithNowFunc(func() time.Time { return now }))

	b.RecordFailure()
	now = now.Add(6 * time.Second)
	b.Allow() // HalfOpen

	b.RecordFailure()
	if b.CurrentState() != Open {
		t.Fatalf("expected Open after probe failure, got %s", b.CurrentState())
	}
	// The cooldown restarts from the probe failure.
	if b.Allow() {
		t.Fatal("should reject right after reopening")
	}
	now = now.Add(6 * time.Second)
	if !b.Allow() {
		t.Fatal("should allow a new probe after the restarted cooldown")
	}
}

func TestReleaseProbeKeepsProviderEligible(t *testing.T) {
	now := time.Now()
	b := New(WithThreshold(1), WithCooldown(5*time.Second),
		WithNowFunc(func() time.Time { return now }))

	b.RecordFailure()
	now = now.Add(6 * time.Second)
	if !b.Allow() {
		t.Fatal("probe should be allowed")
	}

	// The probe is abandoned (client cancelled) rather than answered.
	b.ReleaseProbe()
	if got := b.Snapshot().FailureCount; got != 1 {
		t.Errorf("abandonment must not change the failure count, got %d", got)
	}

	// The cooldown had already elapsed, so a fresh probe is granted at once.
	if !b.Allow() {
		t.Fatal("a new probe must be allowed after the old one is released")
	}
	b.RecordSuccess()
	if b.CurrentState() != Closed {
		t.Fatalf("expected Closed after probe success, got %s", b.CurrentState())
	}
}

func TestReleaseProbeNoOpOutsideHalfOpen(t *testing.T) {
	b := New(WithThreshold(2))

	b.ReleaseProbe()
	if b.CurrentState() != Closed {
		t.Fatalf("expected Closed, got %s", b.CurrentState())
	}

	b.RecordFailure()
	b.RecordFailure()
	b.ReleaseProbe()
	if b.CurrentState() != Open {
		t.Fatalf("expected Open, got %s", b.CurrentState())
	}
	if got := b.Snapshot().FailureCount; got != 2 {
		t.Errorf("failure count changed, got %d", got)
	}
}

func TestSuccessResetsCounterInClosed(t *testing.T) {
	b := New(WithThreshold(3))

	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()

	b.RecordFailure()
	b.RecordFailure()
	if b.CurrentState() != Closed {
		t.Fatalf("counter should have reset, got %s", b.CurrentState())
	}
}

func TestStateChangeCallback(t *testing.T) {
	var seen []string
	now := time.Now()
	b := New(WithThreshold(1), WithCooldown(time.Second),
		WithNowFunc(func() time.Time { return now }),
		WithOnStateChange(func(from, to State) {
			seen = append(seen, from.String()+"->"+to.String())
		}))

	b.RecordFailure()
	now = now.Add(2 * time.Second)
	b.Allow()
	b.RecordSuccess()

	want := []string{"closed->open", "open->half-open", "half-open->closed"}
	if len(seen) != len(want) {
		t.Fatalf("expected %d transitions, got %v", len(want), seen)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("transition %d: want %s, got %s", i, want[i], seen[i])
		}
	}
}

func TestOptionsIgnoreNonPositive(t *testing.T) {
	b := New(WithThreshold(0), WithCooldown(-time.Second))
	if b.failureThreshold != defaultThreshold {
		t.Errorf("expected default threshold, got %d", b.failureThreshold)
	}
	if b.cooldown != defaultCooldown {
		t.Errorf("expected default cooldown, got %v", b.cooldown)
	}
}

func TestRegistryIsolatesProviders(t *testing.T) {
	r := NewRegistry(WithThreshold(1))

	r.RecordFailure("anthropic")
	if r.Allow("anthropic") {
		t.Error("tripped provider must be ineligible")
	}
	if !r.Allow("openai") {
		t.Error("an unrelated provider must stay eligible")
	}

	snaps := r.Snapshots()
	if snaps["anthropic"].State != "open" {
		t.Errorf("expected anthropic open, got %s", snaps["anthropic"].State)
	}
	if snaps["openai"].State != "closed" {
		t.Errorf("expected openai closed, got %s", snaps["openai"].State)
	}
}

func TestRegistryReturnsSameBreaker(t *testing.T) {
	r := NewRegistry()
	if r.Get("p") != r.Get("p") {
		t.Error("registry must memoize breakers per provider")
	}
}
