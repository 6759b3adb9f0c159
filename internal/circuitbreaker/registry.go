package circuitbreaker

import "sync"

// Registry holds one Breaker per provider, created lazily with a shared set
// of options. Eligibility checks and failure accounting for one provider
// never block another provider's breaker.
type Registry struct {
	mu       sync.Mutex
	breakers map[string]*Breaker
	opts     []Option
}

// NewRegistry creates a Registry whose breakers are all configured with opts.
func NewRegistry(opts ...Option) *Registry {
	return &Registry{
		breakers: make(map[string]*Breaker),
		opts:     opts,
	}
}

// Get returns the breaker for provider, creating it on first use.
func (r *Registry) Get(provider string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.breakers[provider]
	if !ok {
		b = New(r.opts...)
		r.breakers[provider] = b
	}
	return b
}

// Allow reports whether provider may currently be tried.
func (r *Registry) Allow(provider string) bool {
	return r.Get(provider).Allow()
}

// RecordSuccess forwards to the provider's breaker.
func (r *Registry) RecordSuccess(provider string) {
	r.Get(provider).RecordSuccess()
}

// RecordFailure forwards to the provider's breaker.
func (r *Registry) RecordFailure(provider string) {
	r.Get(provider).RecordFailure()
}

// ReleaseProbe forwards to the provider's breaker.
func (r *Registry) ReleaseProbe(provider string) {
	r.Get(provider).ReleaseProbe()
}

// Snapshots returns the current state of every known breaker, keyed by
// provider name.
func (r *Registry) Snapshots() map[string]Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]Snapshot, len(r.breakers))
	for name, b := range r.breakers {
		out[name] = b.Snapshot()
	}
	return out
}
