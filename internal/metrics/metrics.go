// Package metrics exposes the Prometheus instrumentation for the extraction
// gateway.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry bundles the collectors on a private prometheus.Registry so tests
// can create isolated instances.
type Registry struct {
	reg *prometheus.Registry

	ExtractionsTotal  *prometheus.CounterVec
	ExtractionLatency *prometheus.HistogramVec
	CacheLookups      *prometheus.CounterVec
	BreakerState      *prometheus.GaugeVec
	RateLimited       prometheus.Counter
}

// New creates and registers all collectors.
func New() *Registry {
	reg := prometheus.NewRegistry()
	m := &Registry{
		reg: reg,
		ExtractionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "extracthub_extractions_total",
			Help: "Extraction attempts by provider and outcome",
		}, []string{"provider", "status"}),
		ExtractionLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "extracthub_extraction_latency_ms",
			Help:    "Provider call latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 12),
		}, []string{"provider"}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "extracthub_cache_lookups_total",
			Help: "Response cache lookups by result",
		}, []string{"result"}),
		BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "extracthub_breaker_state",
			Help: "Circuit breaker state per provider (0 closed, 1 half-open, 2 open)",
		}, []string{"provider"}),
		RateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "extracthub_rate_limited_total",
			Help: "Requests rejected by the per-IP rate limiter",
		}),
	}
	reg.MustRegister(m.ExtractionsTotal, m.ExtractionLatency, m.CacheLookups, m.BreakerState, m.RateLimited)
	return m
}

// Handler returns the scrape endpoint for this registry.
func (m *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}
