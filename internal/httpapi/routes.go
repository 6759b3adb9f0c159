// Package httpapi exposes the extraction gateway over HTTP: the extraction
// endpoint, the monitoring surface, and the token-guarded admin API.
package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.temporal.io/sdk/client"

	"github.com/procurehub/extracthub/internal/circuitbreaker"
	"github.com/procurehub/extracthub/internal/events"
	"github.com/procurehub/extracthub/internal/idempotency"
	"github.com/procurehub/extracthub/internal/metrics"
	"github.com/procurehub/extracthub/internal/orchestrator"
	"github.com/procurehub/extracthub/internal/stats"
	"github.com/procurehub/extracthub/internal/store"
	"github.com/procurehub/extracthub/internal/vault"
)

// Dependencies carries everything the handlers need. Nil members disable the
// corresponding surface.
type Dependencies struct {
	Orch    *orchestrator.Orchestrator
	Vault   *vault.Vault
	Metrics *metrics.Registry
	Store   store.Store
	Stats   *stats.Collector
	Events  *events.Bus
	Logger  *slog.Logger

	AdminToken  *AdminTokenHolder
	Idempotency *idempotency.Cache

	// Durable dispatch (nil when Temporal is disabled). The breaker guards
	// the Temporal service itself, not the providers.
	TemporalClient    client.Client
	TemporalTaskQueue string
	TemporalBreaker   *circuitbreaker.Breaker
}

func MountRoutes(r chi.Router, d Dependencies) {
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		providers := d.Orch.Providers()
		if len(providers) == 0 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"status":    "unhealthy",
				"providers": 0,
			})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":    "ok",
			"providers": len(providers),
		})
	})

	r.Route("/v1", func(r chi.Router) {
		if d.Idempotency != nil {
			r.Use(idempotency.Middleware(d.Idempotency))
		}
		r.Post("/extract", ExtractHandler(d))
		r.Post("/extract/tender", TenderExtractHandler(d))
		r.Get("/cache/stats", CacheStatsHandler(d))
		r.Get("/providers", ProvidersHandler(d))
	})

	r.Route("/admin/v1", func(r chi.Router) {
		if d.AdminToken != nil {
			r.Use(AdminAuthMiddleware(d.AdminToken))
		}
		r.Post("/vault/unlock", VaultUnlockHandler(d))
		r.Post("/vault/lock", VaultLockHandler(d))
		r.Post("/cache/clear", CacheClearHandler(d))
		r.Get("/stats", StatsHandler(d))
		r.Get("/logs", ExtractionLogsHandler(d))
		r.Get("/audit", AuditLogsHandler(d))
		r.Get("/workflows", WorkflowsListHandler(d))
		r.Get("/workflows/{id}", WorkflowDescribeHandler(d))
		r.Get("/events", EventsHandler(d))
	})

	if d.Metrics != nil {
		r.Handle("/metrics", d.Metrics.Handler())
	}
}
