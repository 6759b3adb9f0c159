package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using modernc.org/sqlite (pure-Go, no CGO).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens or creates a SQLite database at the given DSN.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite pragmas: %w", err)
	}
	// SQLite allows one writer at a time. Keep the pool small to limit
	// contention while leaving read concurrency.
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS extraction_logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp TEXT NOT NULL,
			provider TEXT NOT NULL,
			model TEXT NOT NULL DEFAULT '',
			latency_ms INTEGER NOT NULL DEFAULT 0,
			cache_hit INTEGER NOT NULL DEFAULT 0,
			success INTEGER NOT NULL DEFAULT 0,
			error_category TEXT NOT NULL DEFAULT '',
			request_id TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_extraction_logs_timestamp ON extraction_logs(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_extraction_logs_provider ON extraction_logs(provider)`,
		`CREATE TABLE IF NOT EXISTS vault_blob (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			data TEXT NOT NULL DEFAULT '{}'
		)`,
		`CREATE TABLE IF NOT EXISTS audit_logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp TEXT NOT NULL,
			action TEXT NOT NULL,
			resource TEXT NOT NULL DEFAULT '',
			detail TEXT NOT NULL DEFAULT '',
			request_id TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_logs_timestamp ON audit_logs(timestamp)`,
	}
	for _, q := range queries {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Extraction logs

func (s *SQLiteStore) LogExtraction(ctx context.Context, entry ExtractionLog) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO extraction_logs (timestamp, provider, model, latency_ms, cache_hit, success, error_category, request_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.Timestamp.UTC().Format(time.RFC3339Nano), entry.Provider, entry.Model,
		entry.LatencyMs, boolInt(entry.CacheHit), boolInt(entry.Success),
		entry.ErrorCategory, entry.RequestID)
	return err
}

func (s *SQLiteStore) ListExtractionLogs(ctx context.Context, limit, offset int) ([]ExtractionLog, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, timestamp, provider, model, latency_ms, cache_hit, success, error_category, request_id
		 FROM extraction_logs ORDER BY timestamp DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanExtractionLogs(rows)
}

// RecentExtractionLogs returns entries at or after the cutoff, oldest first,
// for seeding the in-memory stats collector on startup.
func (s *SQLiteStore) RecentExtractionLogs(ctx context.Context, since time.Time) ([]ExtractionLog, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, timestamp, provider, model, latency_ms, cache_hit, success, error_category, request_id
		 FROM extraction_logs WHERE timestamp >= ? ORDER BY timestamp ASC`,
		since.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanExtractionLogs(rows)
}

func scanExtractionLogs(rows *sql.Rows) ([]ExtractionLog, error) {
	var logs []ExtractionLog
	for rows.Next() {
		var l ExtractionLog
		var ts string
		var cacheHit, success int
		if err := rows.Scan(&l.ID, &ts, &l.Provider, &l.Model, &l.LatencyMs,
			&cacheHit, &success, &l.ErrorCategory, &l.RequestID); err != nil {
			return nil, err
		}
		l.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		l.CacheHit = cacheHit != 0
		l.Success = success != 0
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// Vault persistence

func (s *SQLiteStore) SaveVaultBlob(ctx context.Context, data map[string]string) error {
	j, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal vault data: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO vault_blob (id, data) VALUES (1, ?)
		 ON CONFLICT(id) DO UPDATE SET data=excluded.data`, string(j))
	return err
}

func (s *SQLiteStore) LoadVaultBlob(ctx context.Context) (map[string]string, error) {
	var dataStr string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM vault_blob WHERE id = 1`).Scan(&dataStr)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var data map[string]string
	if err := json.Unmarshal([]byte(dataStr), &data); err != nil {
		return nil, fmt.Errorf("unmarshal vault data: %w", err)
	}
	return data, nil
}

// Audit logs

func (s *SQLiteStore) LogAudit(ctx context.Context, entry AuditEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_logs (timestamp, action, resource, detail, request_id)
		 VALUES (?, ?, ?, ?, ?)`,
		entry.Timestamp.UTC().Format(time.RFC3339Nano),
		entry.Action, entry.Resource, entry.Detail, entry.RequestID)
	return err
}

func (s *SQLiteStore) ListAuditLogs(ctx context.Context, limit, offset int) ([]AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, timestamp, action, resource, detail, request_id
		 FROM audit_logs ORDER BY timestamp DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var logs []AuditEntry
	for rows.Next() {
		var l AuditEntry
		var ts string
		if err := rows.Scan(&l.ID, &ts, &l.Action, &l.Resource, &l.Detail, &l.RequestID); err != nil {
			return nil, err
		}
		l.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
