package httpapi

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
)

// AdminTokenHolder provides thread-safe access to the admin bearer token.
type AdminTokenHolder struct {
	mu    sync.RWMutex
	token string
}

// NewAdminTokenHolder resolves the admin token: an explicit operator-provided
// value wins, otherwise a random token is generated and logged as a warning
// so the operator knows to set one.
func NewAdminTokenHolder(configToken string, logger *slog.Logger) (*AdminTokenHolder, error) {
	h := &AdminTokenHolder{token: configToken}
	if h.token == "" {
		raw := make([]byte, 32)
		if _, err := rand.Read(raw); err != nil {
			return nil, fmt.Errorf("generate admin token: %w", err)
		}
		h.token = hex.EncodeToString(raw)
		logger.Warn("EXTRACTHUB_ADMIN_TOKEN not set, generated a random token for this run")
	}
	return h, nil
}

// ConstantTimeEqual reports whether the provided token matches.
func (h *AdminTokenHolder) ConstantTimeEqual(provided string) bool {
	h.mu.RLock()
	current := h.token
	h.mu.RUnlock()
	return subtle.ConstantTimeCompare([]byte(provided), []byte(current)) == 1
}

// Rotate replaces the token with a fresh random one and returns it.
func (h *AdminTokenHolder) Rotate() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	next := hex.EncodeToString(raw)
	h.mu.Lock()
	h.token = next
	h.mu.Unlock()
	return next, nil
}

// AdminAuthMiddleware requires "Authorization: Bearer <token>" on every
// admin route.
func AdminAuthMiddleware(holder *AdminTokenHolder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(auth, "Bearer ")
			if !ok || !holder.ConstantTimeEqual(token) {
				jsonError(w, "unauthorized", "admin token required", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
