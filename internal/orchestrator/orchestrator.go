// Package orchestrator is the entry point of the AI extraction layer. It
// composes the validator, SSRF guard, bounded response cache, per-provider
// circuit breakers and provider adapters into a single Extract operation:
// validate, consult the cache, then walk the priority-ordered provider list
// until one succeeds or all are exhausted.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/procurehub/extracthub/internal/cache"
	"github.com/procurehub/extracthub/internal/circuitbreaker"
	"github.com/procurehub/extracthub/internal/ssrf"
	"github.com/procurehub/extracthub/internal/validate"
)

const defaultCallTimeout = 30 * time.Second

// Orchestrator coordinates one extraction request across providers. All
// shared state (cache, breakers) is internally synchronized; Extract may be
// called from any number of goroutines.
type Orchestrator struct {
	providers []Provider
	validator *validate.Validator
	guard     *ssrf.Guard
	cache     *cache.Cache
	breakers  *circuitbreaker.Registry

	callTimeout time.Duration
	recorder    Recorder
	logger      *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithCallTimeout sets the default per-provider deadline used when a request
// does not carry its own. The default is 30 seconds.
func WithCallTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.callTimeout = d
		}
	}
}

// WithRecorder attaches an observability sink for per-request outcomes.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// New creates an Orchestrator over the given providers. The list is copied
// and sorted by ascending priority once; it never changes afterwards.
func New(providers []Provider, v *validate.Validator, g *ssrf.Guard, c *cache.Cache, b *circuitbreaker.Registry, opts ...Option) *Orchestrator {
	ps := make([]Provider, len(providers))
	copy(ps, providers)
	sort.SliceStable(ps, func(i, j int) bool { return ps[i].Priority < ps[j].Priority })

	o := &Orchestrator{
		providers:   ps,
		validator:   v,
		guard:       g,
		cache:       c,
		breakers:    b,
		callTimeout: defaultCallTimeout,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// cachedResult is the wire shape stored in the response cache.
type cachedResult struct {
	Text         string `json:"text"`
	Provider     string `json:"provider"`
	Model        string `json:"model"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
}

// Extract runs one request through the layer and returns either a Result or
// an *Error with exactly one category. Transient provider faults are handled
// by falling through to the next provider; only validation failures,
// cancellation, and total exhaustion reach the caller.
func (o *Orchestrator) Extract(ctx context.Context, req validate.Request) (*Result, error) {
	start := time.Now()

	clean, err := o.validator.Validate(req)
	if err != nil {
		return nil, &Error{Category: CategoryValidation, err: err}
	}

	// Document text rides inside the prompt on the wire; the two fields are
	// bounded separately but providers see a single prompt.
	if clean.Document != "" {
		clean.Prompt = clean.Prompt + "\n\n" + clean.Document
		clean.Document = ""
	}

	key := cache.Key(clean.Prompt, clean.SystemPrompt)
	if raw, ok := o.cache.Get(key); ok {
		var cr cachedResult
		if jsonErr := json.Unmarshal(raw, &cr); jsonErr == nil {
			o.record(Record{Provider: cr.Provider, Model: cr.Model, CacheHit: true, Success: true})
			return &Result{
				Text:         cr.Text,
				Provider:     cr.Provider,
				Model:        cr.Model,
				Cached:       true,
				LatencyMs:    time.Since(start).Milliseconds(),
				InputTokens:  cr.InputTokens,
				OutputTokens: cr.OutputTokens,
			}, nil
		}
		// Unreadable entry: drop it and fall through to the providers.
		o.cache.Invalidate(key)
	}

	timeout := o.callTimeout
	if clean.TimeoutMs > 0 {
		timeout = time.Duration(clean.TimeoutMs) * time.Millisecond
	}

	var lastFailure Category
	attempted := false

	for _, p := range o.providers {
		name := p.Caller.Name()

		if err := o.guard.Allow(ctx, p.Caller.Endpoint()); err != nil {
			// Policy block, not a provider fault: no breaker feedback.
			o.logger.Warn("provider endpoint blocked",
				slog.String("provider", name),
				slog.String("category", string(CategorySSRFBlocked)),
			)
			if lastFailure == "" {
				lastFailure = CategorySSRFBlocked
			}
			continue
		}

		if !o.breakers.Allow(name) {
			o.logger.Debug("provider circuit open", slog.String("provider", name))
			continue
		}

		attempted = true
		callStart := time.Now()
		comp, callErr := o.call(ctx, p, clean, timeout)
		callMs := float64(time.Since(callStart).Milliseconds())

		if callErr == nil {
			o.breakers.RecordSuccess(name)
			o.record(Record{Provider: name, Model: p.Model, LatencyMs: callMs, Success: true})

			res := &Result{
				Text:         comp.Text,
				Provider:     name,
				Model:        p.Model,
				LatencyMs:    time.Since(start).Milliseconds(),
				InputTokens:  comp.InputTokens,
				OutputTokens: comp.OutputTokens,
			}
			buf, jsonErr := json.Marshal(cachedResult{
				Text:         res.Text,
				Provider:     res.Provider,
				Model:        res.Model,
				InputTokens:  res.InputTokens,
				OutputTokens: res.OutputTokens,
			})
			if jsonErr == nil {
				o.cache.Put(key, buf)
			}
			return res, nil
		}

		// Caller withdrew the request: surface distinctly, no breaker
		// feedback, no further providers. If this call held the HalfOpen
		// probe slot, release it so the provider stays eligible.
		if ctx.Err() != nil {
			o.breakers.ReleaseProbe(name)
			o.record(Record{Provider: name, Model: p.Model, LatencyMs: callMs, ErrorCategory: string(CategoryCancelled)})
			return nil, &Error{Category: CategoryCancelled, err: ctx.Err()}
		}

		cat := CategoryProvider
		if errors.Is(callErr, context.DeadlineExceeded) {
			cat = CategoryTimeout
		}
		lastFailure = cat
		o.breakers.RecordFailure(name)
		o.record(Record{Provider: name, Model: p.Model, LatencyMs: callMs, ErrorCategory: string(cat)})
		o.logger.Warn("provider attempt failed",
			slog.String("provider", name),
			slog.String("category", string(cat)),
			slog.Float64("latency_ms", callMs),
		)
	}

	if lastFailure == "" && !attempted {
		lastFailure = "no_eligible_providers"
	}
	o.logger.Error("all providers exhausted", slog.String("last", string(lastFailure)))
	return nil, &Error{Category: CategoryExhausted, Last: lastFailure}
}

// call runs one bounded provider attempt.
func (o *Orchestrator) call(ctx context.Context, p Provider, req validate.Request, timeout time.Duration) (*Completion, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return p.Caller.Call(callCtx, Payload{
		Prompt:       req.Prompt,
		SystemPrompt: req.SystemPrompt,
		Model:        p.Model,
		MaxTokens:    req.MaxTokens,
		Temperature:  req.Temperature,
	})
}

func (o *Orchestrator) record(rec Record) {
	if o.recorder != nil {
		o.recorder.RecordExtraction(rec)
	}
}

// CacheStats exposes the cache accounting surface read-only.
func (o *Orchestrator) CacheStats() cache.Stats {
	return o.cache.Stats()
}

// ClearCache drops every cached response. Used by the admin surface after
// prompt or model changes.
func (o *Orchestrator) ClearCache() {
	o.cache.Clear()
}

// BreakerStates exposes per-provider circuit state read-only.
func (o *Orchestrator) BreakerStates() map[string]circuitbreaker.Snapshot {
	return o.breakers.Snapshots()
}

// Providers lists the configured provider names in priority order.
func (o *Orchestrator) Providers() []string {
	out := make([]string, len(o.providers))
	for i, p := range o.providers {
		out[i] = p.Caller.Name()
	}
	return out
}

// ProviderInfo describes one configured provider for the monitoring surface.
type ProviderInfo struct {
	Name     string `json:"name"`
	Model    string `json:"model"`
	Priority int    `json:"priority"`
}

// ProviderInfos lists the configured providers in priority order.
func (o *Orchestrator) ProviderInfos() []ProviderInfo {
	out := make([]ProviderInfo, len(o.providers))
	for i, p := range o.providers {
		out[i] = ProviderInfo{Name: p.Caller.Name(), Model: p.Model, Priority: p.Priority}
	}
	return out
}
