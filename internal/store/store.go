package store

import (
	"context"
	"time"
)

// Store is the persistence interface for the extraction gateway.
type Store interface {
	// Extraction log (for audit and the stats dashboard)
	LogExtraction(ctx context.Context, entry ExtractionLog) error
	ListExtractionLogs(ctx context.Context, limit, offset int) ([]ExtractionLog, error)
	RecentExtractionLogs(ctx context.Context, since time.Time) ([]ExtractionLog, error)

	// Vault persistence
	SaveVaultBlob(ctx context.Context, data map[string]string) error
	LoadVaultBlob(ctx context.Context) (map[string]string, error)

	// Audit trail for admin mutations
	LogAudit(ctx context.Context, entry AuditEntry) error
	ListAuditLogs(ctx context.Context, limit, offset int) ([]AuditEntry, error)

	// Schema lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// ExtractionLog captures one extraction attempt's outcome. Prompt and
// document text are never persisted.
type ExtractionLog struct {
	ID            int64     `json:"id"`
	Timestamp     time.Time `json:"timestamp"`
	Provider      string    `json:"provider"`
	Model         string    `json:"model"`
	LatencyMs     int64     `json:"latency_ms"`
	CacheHit      bool      `json:"cache_hit"`
	Success       bool      `json:"success"`
	ErrorCategory string    `json:"error_category,omitempty"`
	RequestID     string    `json:"request_id,omitempty"`
}

// AuditEntry captures an admin mutation.
type AuditEntry struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"`   // e.g. "vault.unlock", "cache.clear"
	Resource  string    `json:"resource"` // e.g. provider name
	Detail    string    `json:"detail,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
}
