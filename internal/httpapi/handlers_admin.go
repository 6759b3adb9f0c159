package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/procurehub/extracthub/internal/events"
	"github.com/procurehub/extracthub/internal/store"
)

func audit(d Dependencies, r *http.Request, action, resource string) {
	if d.Store == nil {
		return
	}
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	warnOnErr(logger, "log_audit", d.Store.LogAudit(r.Context(), store.AuditEntry{
		Timestamp: time.Now().UTC(),
		Action:    action,
		Resource:  resource,
		RequestID: middleware.GetReqID(r.Context()),
	}))
}

// VaultUnlockHandler handles POST /admin/v1/vault/unlock. The passphrase
// travels in the body and is never logged.
func VaultUnlockHandler(d Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if d.Vault == nil {
			jsonError(w, "unavailable", "vault not configured", http.StatusServiceUnavailable)
			return
		}
		var body struct {
			Passphrase string `json:"passphrase"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			jsonError(w, "bad_request", "bad json", http.StatusBadRequest)
			return
		}
		if err := d.Vault.Unlock([]byte(body.Passphrase)); err != nil {
			jsonError(w, "unauthorized", err.Error(), http.StatusUnauthorized)
			return
		}
		// Persist the (re-)sealed contents so the salt and canary survive
		// restarts.
		if d.Store != nil {
			logger := d.Logger
			if logger == nil {
				logger = slog.Default()
			}
			warnOnErr(logger, "save_vault", d.Store.SaveVaultBlob(r.Context(), d.Vault.Export()))
		}
		audit(d, r, "vault.unlock", "")
		publish(d, events.Event{Type: events.EventVaultUnlocked})
		_ = json.NewEncoder(w).Encode(map[string]any{"locked": false})
	}
}

// VaultLockHandler handles POST /admin/v1/vault/lock.
func VaultLockHandler(d Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if d.Vault == nil {
			jsonError(w, "unavailable", "vault not configured", http.StatusServiceUnavailable)
			return
		}
		d.Vault.Lock()
		audit(d, r, "vault.lock", "")
		publish(d, events.Event{Type: events.EventVaultLocked})
		_ = json.NewEncoder(w).Encode(map[string]any{"locked": true})
	}
}

// CacheClearHandler handles POST /admin/v1/cache/clear.
func CacheClearHandler(d Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d.Orch.ClearCache()
		audit(d, r, "cache.clear", "response-cache")
		publish(d, events.Event{Type: events.EventCacheCleared})
		_ = json.NewEncoder(w).Encode(map[string]any{"cleared": true})
	}
}

func publish(d Dependencies, e events.Event) {
	if d.Events != nil {
		d.Events.Publish(e)
	}
}
