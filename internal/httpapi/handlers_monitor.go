package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// CacheStatsHandler handles GET /v1/cache/stats.
func CacheStatsHandler(d Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(d.Orch.CacheStats())
	}
}

// ProvidersHandler handles GET /v1/providers: the configured provider list in
// priority order with current circuit state.
func ProvidersHandler(d Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		breakers := d.Orch.BreakerStates()

		type entry struct {
			Name         string `json:"name"`
			Model        string `json:"model"`
			Priority     int    `json:"priority"`
			CircuitState string `json:"circuit_state"`
			FailureCount int    `json:"failure_count"`
		}
		var out []entry
		for _, p := range d.Orch.ProviderInfos() {
			e := entry{Name: p.Name, Model: p.Model, Priority: p.Priority, CircuitState: "closed"}
			if snap, ok := breakers[p.Name]; ok {
				e.CircuitState = snap.State
				e.FailureCount = snap.FailureCount
			}
			out = append(out, e)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"providers": out})
	}
}

// StatsHandler handles GET /admin/v1/stats: rolling per-provider and global
// aggregates.
func StatsHandler(d Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if d.Stats == nil {
			_ = json.NewEncoder(w).Encode(map[string]any{})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"by_provider": d.Stats.ByProvider(),
			"global":      d.Stats.Global(),
		})
	}
}

// ExtractionLogsHandler handles GET /admin/v1/logs?limit=&offset=.
func ExtractionLogsHandler(d Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if d.Store == nil {
			jsonError(w, "unavailable", "no store configured", http.StatusServiceUnavailable)
			return
		}
		limit, offset := parsePagination(r)
		logs, err := d.Store.ListExtractionLogs(r.Context(), limit, offset)
		if err != nil {
			jsonError(w, "store_error", err.Error(), http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"logs": logs})
	}
}

// AuditLogsHandler handles GET /admin/v1/audit?limit=&offset=.
func AuditLogsHandler(d Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if d.Store == nil {
			jsonError(w, "unavailable", "no store configured", http.StatusServiceUnavailable)
			return
		}
		limit, offset := parsePagination(r)
		logs, err := d.Store.ListAuditLogs(r.Context(), limit, offset)
		if err != nil {
			jsonError(w, "store_error", err.Error(), http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"audit": logs})
	}
}

func parsePagination(r *http.Request) (limit, offset int) {
	limit = 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}
