package app

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/procurehub/extracthub/internal/cache"
	"github.com/procurehub/extracthub/internal/circuitbreaker"
	"github.com/procurehub/extracthub/internal/events"
	"github.com/procurehub/extracthub/internal/httpapi"
	"github.com/procurehub/extracthub/internal/idempotency"
	"github.com/procurehub/extracthub/internal/logging"
	"github.com/procurehub/extracthub/internal/metrics"
	"github.com/procurehub/extracthub/internal/orchestrator"
	"github.com/procurehub/extracthub/internal/providers/anthropic"
	"github.com/procurehub/extracthub/internal/providers/ollama"
	"github.com/procurehub/extracthub/internal/providers/openai"
	"github.com/procurehub/extracthub/internal/ratelimit"
	"github.com/procurehub/extracthub/internal/ssrf"
	"github.com/procurehub/extracthub/internal/stats"
	"github.com/procurehub/extracthub/internal/store"
	"github.com/procurehub/extracthub/internal/temporal"
	"github.com/procurehub/extracthub/internal/tracing"
	"github.com/procurehub/extracthub/internal/validate"
	"github.com/procurehub/extracthub/internal/vault"
)

type Server struct {
	cfg Config

	r *chi.Mux

	orch     *orchestrator.Orchestrator
	vault    *vault.Vault
	store    store.Store
	limiter  *ratelimit.Limiter
	idem     *idempotency.Cache
	temporal *temporal.Manager
	logger   *slog.Logger

	traceShutdown func(context.Context) error
}

func NewServer(cfg Config) (*Server, error) {
	logger := logging.Setup(cfg.LogLevel)

	traceShutdown, err := tracing.Setup(tracing.Config{
		Enabled:     cfg.OTelEnabled,
		Endpoint:    cfg.OTelEndpoint,
		ServiceName: "extracthub",
	})
	if err != nil {
		return nil, err
	}

	db, err := store.NewSQLite(cfg.DBDSN)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	logger.Info("database initialized", slog.String("dsn", cfg.DBDSN))

	v := vault.New(cfg.VaultEnabled)
	if blob, err := db.LoadVaultBlob(context.Background()); err != nil {
		logger.Warn("vault blob load failed", slog.String("error", err.Error()))
	} else if blob != nil {
		if err := v.Import(blob); err != nil {
			logger.Warn("vault blob import failed", slog.String("error", err.Error()))
		}
	}

	m := metrics.New()
	bus := events.NewBus()

	collector := stats.NewCollector()
	seedStats(collector, db, logger)

	c := cache.New(
		cache.WithMaxSize(cfg.MaxCacheSize),
		cache.WithTTL(time.Duration(cfg.CacheTTLSecs)*time.Second),
	)
	breakers := circuitbreaker.NewRegistry(
		circuitbreaker.WithThreshold(cfg.FailureThreshold),
		circuitbreaker.WithCooldown(time.Duration(cfg.CooldownSecs)*time.Second),
	)
	guard := ssrf.New()

	providerList := buildProviders(cfg, logger)

	validator := validate.New(validate.Limits{
		MaxPromptChars:   cfg.MaxPromptChars,
		MaxDocumentChars: cfg.MaxDocumentChars,
		MaxTokensCeiling: cfg.MaxTokensCeiling,
	})

	orch := orchestrator.New(providerList, validator, guard, c, breakers,
		orchestrator.WithCallTimeout(time.Duration(cfg.ProviderTimeoutSecs)*time.Second),
		orchestrator.WithLogger(logger),
		orchestrator.WithRecorder(newRecorder(m, collector, breakers, bus)),
	)

	adminToken, err := httpapi.NewAdminTokenHolder(cfg.AdminToken, logger)
	if err != nil {
		return nil, err
	}

	limiter := ratelimit.New(cfg.RateLimitRPS, cfg.RateLimitBurst, time.Second,
		ratelimit.WithCounter(m.RateLimited))
	idem := idempotency.New(
		time.Duration(cfg.IdempotencyTTLSecs)*time.Second,
		cfg.IdempotencyMaxEntries,
	)

	s := &Server{
		cfg:           cfg,
		orch:          orch,
		vault:         v,
		store:         db,
		limiter:       limiter,
		idem:          idem,
		logger:        logger,
		traceShutdown: traceShutdown,
	}

	deps := httpapi.Dependencies{
		Orch:        orch,
		Vault:       v,
		Metrics:     m,
		Store:       db,
		Stats:       collector,
		Events:      bus,
		Logger:      logger,
		AdminToken:  adminToken,
		Idempotency: idem,
	}

	if cfg.TemporalEnabled {
		mgr, err := temporal.New(temporal.Config{
			HostPort:  cfg.TemporalHostPort,
			Namespace: cfg.TemporalNamespace,
			TaskQueue: cfg.TemporalTaskQueue,
		}, &temporal.Activities{Orch: orch, Store: db})
		if err != nil {
			logger.Warn("temporal disabled: client dial failed", slog.String("error", err.Error()))
		} else if err := mgr.Start(); err != nil {
			logger.Warn("temporal disabled: worker start failed", slog.String("error", err.Error()))
			mgr.Stop()
		} else {
			s.temporal = mgr
			deps.TemporalClient = mgr.Client()
			deps.TemporalTaskQueue = mgr.TaskQueue()
			deps.TemporalBreaker = circuitbreaker.New(
				circuitbreaker.WithThreshold(cfg.FailureThreshold),
				circuitbreaker.WithCooldown(time.Duration(cfg.CooldownSecs)*time.Second),
			)
			logger.Info("temporal dispatch enabled", slog.String("task_queue", cfg.TemporalTaskQueue))
		}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(tracing.Middleware())

	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(limiter.Middleware)

	httpapi.MountRoutes(r, deps)
	s.r = r

	return s, nil
}

func (s *Server) Router() http.Handler { return s.r }

func (s *Server) ListenAddr() string { return s.cfg.ListenAddr }

func (s *Server) Close() error {
	if s.temporal != nil {
		s.temporal.Stop()
	}
	if s.limiter != nil {
		s.limiter.Stop()
	}
	if s.idem != nil {
		s.idem.Stop()
	}
	if s.traceShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.traceShutdown(ctx)
	}
	if s.store != nil {
		return s.store.Close()
	}
	return nil
}

// buildProviders turns the parsed provider config into adapter-backed
// entries. All adapters share one traced HTTP client; request deadlines come
// from the orchestrator's per-call context.
func buildProviders(cfg Config, logger *slog.Logger) []orchestrator.Provider {
	httpClient := &http.Client{Transport: tracing.HTTPTransport(nil)}

	var out []orchestrator.Provider
	for _, p := range cfg.Providers {
		var caller orchestrator.Caller
		switch p.Name {
		case "anthropic":
			base := p.BaseURL
			if base == "" {
				base = "https://api.anthropic.com"
			}
			caller = anthropic.New(p.Name, p.APIKey, base, anthropic.WithHTTPClient(httpClient))
		case "openai":
			base := p.BaseURL
			if base == "" {
				base = "https://api.openai.com"
			}
			caller = openai.New(p.Name, p.APIKey, base, openai.WithHTTPClient(httpClient))
		case "ollama":
			if p.BaseURL == "" {
				logger.Warn("skipping provider without base url", slog.String("provider", p.Name))
				continue
			}
			caller = ollama.New(p.Name, p.BaseURL, ollama.WithHTTPClient(httpClient))
		default:
			// Unknown names speak the OpenAI-compatible dialect.
			if p.BaseURL == "" {
				logger.Warn("skipping unknown provider without base url", slog.String("provider", p.Name))
				continue
			}
			caller = openai.New(p.Name, p.APIKey, p.BaseURL, openai.WithHTTPClient(httpClient))
		}
		out = append(out, orchestrator.Provider{Caller: caller, Model: p.Model, Priority: p.Priority})
		logger.Info("registered provider",
			slog.String("provider", p.Name),
			slog.String("model", p.Model),
			slog.Int("priority", p.Priority),
		)
	}
	return out
}

// newRecorder fans one orchestration outcome out to Prometheus, the rolling
// stats collector, the event bus, and the breaker state gauges.
func newRecorder(m *metrics.Registry, collector *stats.Collector, breakers *circuitbreaker.Registry, bus *events.Bus) orchestrator.Recorder {
	var mu sync.Mutex
	lastState := make(map[string]string)

	return orchestrator.RecorderFunc(func(rec orchestrator.Record) {
		status := "ok"
		if !rec.Success {
			status = rec.ErrorCategory
		}
		m.ExtractionsTotal.WithLabelValues(rec.Provider, status).Inc()
		if rec.Success && !rec.CacheHit {
			m.ExtractionLatency.WithLabelValues(rec.Provider).Observe(rec.LatencyMs)
		}
		if rec.CacheHit {
			m.CacheLookups.WithLabelValues("hit").Inc()
		} else {
			m.CacheLookups.WithLabelValues("miss").Inc()
		}

		collector.Record(stats.Snapshot{
			Provider:      rec.Provider,
			LatencyMs:     rec.LatencyMs,
			Success:       rec.Success,
			CacheHit:      rec.CacheHit,
			ErrorCategory: rec.ErrorCategory,
		})

		evt := events.Event{
			Type:          events.EventExtractionCompleted,
			Provider:      rec.Provider,
			Model:         rec.Model,
			LatencyMs:     rec.LatencyMs,
			CacheHit:      rec.CacheHit,
			ErrorCategory: rec.ErrorCategory,
		}
		if !rec.Success {
			evt.Type = events.EventExtractionFailed
		}
		bus.Publish(evt)

		mu.Lock()
		for name, snap := range breakers.Snapshots() {
			m.BreakerState.WithLabelValues(name).Set(gaugeValue(snap.State))
			if prev, ok := lastState[name]; ok && prev != snap.State {
				bus.Publish(events.Event{
					Type:     events.EventBreakerStateChange,
					Provider: name,
					OldState: prev,
					NewState: snap.State,
				})
			}
			lastState[name] = snap.State
		}
		mu.Unlock()
	})
}

func gaugeValue(state string) float64 {
	switch state {
	case "half-open":
		return 1
	case "open":
		return 2
	default:
		return 0
	}
}

// seedStats warms the rolling windows from the last day of persisted logs so
// a restart does not blank the dashboard.
func seedStats(collector *stats.Collector, db store.Store, logger *slog.Logger) {
	logs, err := db.RecentExtractionLogs(context.Background(), time.Now().Add(-24*time.Hour))
	if err != nil {
		logger.Warn("stats seed failed", slog.String("error", err.Error()))
		return
	}
	snaps := make([]stats.Snapshot, 0, len(logs))
	for _, l := range logs {
		snaps = append(snaps, stats.Snapshot{
			Timestamp:     l.Timestamp,
			Provider:      l.Provider,
			LatencyMs:     float64(l.LatencyMs),
			Success:       l.Success,
			CacheHit:      l.CacheHit,
			ErrorCategory: l.ErrorCategory,
		})
	}
	collector.Seed(snaps)
}
