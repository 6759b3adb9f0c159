// Package app loads configuration from the environment and assembles the
// extraction gateway server.
package app

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ProviderConfig is one entry parsed from EXTRACTHUB_PROVIDERS.
type ProviderConfig struct {
	Name     string
	Priority int
	Model    string
	APIKey   string
	BaseURL  string
}

type Config struct {
	ListenAddr string
	LogLevel   string

	DBDSN string

	VaultEnabled bool

	// Orchestration knobs.
	MaxCacheSize        int
	CacheTTLSecs        int
	FailureThreshold    int
	CooldownSecs        int
	ProviderTimeoutSecs int

	// Idempotency replay window.
	IdempotencyTTLSecs    int
	IdempotencyMaxEntries int

	// Validation ceilings.
	MaxPromptChars   int
	MaxDocumentChars int
	MaxTokensCeiling int

	Providers []ProviderConfig

	// Security & hardening.
	AdminToken     string
	CORSOrigins    []string
	RateLimitRPS   int
	RateLimitBurst int

	// OTel tracing.
	OTelEnabled  bool
	OTelEndpoint string

	// Temporal workflow engine.
	TemporalEnabled   bool
	TemporalHostPort  string
	TemporalNamespace string
	TemporalTaskQueue string
}

func LoadConfig() (Config, error) {
	cfg := Config{
		ListenAddr:   getEnv("EXTRACTHUB_LISTEN_ADDR", ":8080"),
		LogLevel:     getEnv("EXTRACTHUB_LOG_LEVEL", "info"),
		DBDSN:        getEnv("EXTRACTHUB_DB_DSN", "file:/data/extracthub.sqlite"),
		VaultEnabled: getEnvBool("EXTRACTHUB_VAULT_ENABLED", false),

		MaxCacheSize:        getEnvInt("EXTRACTHUB_MAX_CACHE_SIZE", 256),
		CacheTTLSecs:        getEnvInt("EXTRACTHUB_CACHE_TTL_SECS", 900),
		FailureThreshold:    getEnvInt("EXTRACTHUB_FAILURE_THRESHOLD", 3),
		CooldownSecs:        getEnvInt("EXTRACTHUB_COOLDOWN_SECS", 30),
		ProviderTimeoutSecs: getEnvInt("EXTRACTHUB_PROVIDER_TIMEOUT_SECS", 30),

		IdempotencyTTLSecs:    getEnvInt("EXTRACTHUB_IDEMPOTENCY_TTL_SECS", 600),
		IdempotencyMaxEntries: getEnvInt("EXTRACTHUB_IDEMPOTENCY_MAX_ENTRIES", 512),

		MaxPromptChars:   getEnvInt("EXTRACTHUB_MAX_PROMPT_CHARS", 10000),
		MaxDocumentChars: getEnvInt("EXTRACTHUB_MAX_DOCUMENT_CHARS", 100000),
		MaxTokensCeiling: getEnvInt("EXTRACTHUB_MAX_TOKENS_CEILING", 8192),

		AdminToken:     getEnv("EXTRACTHUB_ADMIN_TOKEN", ""),
		CORSOrigins:    getEnvStringSlice("EXTRACTHUB_CORS_ORIGINS", nil),
		RateLimitRPS:   getEnvInt("EXTRACTHUB_RATE_LIMIT_RPS", 30),
		RateLimitBurst: getEnvInt("EXTRACTHUB_RATE_LIMIT_BURST", 60),

		OTelEnabled:  getEnvBool("EXTRACTHUB_OTEL_ENABLED", false),
		OTelEndpoint: getEnv("EXTRACTHUB_OTEL_ENDPOINT", "localhost:4318"),

		TemporalEnabled:   getEnvBool("EXTRACTHUB_TEMPORAL_ENABLED", false),
		TemporalHostPort:  getEnv("EXTRACTHUB_TEMPORAL_HOST", "localhost:7233"),
		TemporalNamespace: getEnv("EXTRACTHUB_TEMPORAL_NAMESPACE", "extracthub"),
		TemporalTaskQueue: getEnv("EXTRACTHUB_TEMPORAL_TASK_QUEUE", "extracthub-tasks"),
	}

	providers, err := parseProviders(os.Getenv("EXTRACTHUB_PROVIDERS"))
	if err != nil {
		return Config{}, err
	}
	cfg.Providers = providers

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// parseProviders parses "name:priority:model" comma-separated entries and
// resolves each provider's key and base URL from its own env vars.
func parseProviders(spec string) ([]ProviderConfig, error) {
	if spec == "" {
		return nil, nil
	}
	var out []ProviderConfig
	for _, entry := range strings.Split(spec, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, ":", 3)
		if len(parts) != 3 {
			return nil, fmt.Errorf("EXTRACTHUB_PROVIDERS entry %q: want name:priority:model", entry)
		}
		priority, err := strconv.Atoi(parts[1])
		if err != nil {
			return nil, fmt.Errorf("EXTRACTHUB_PROVIDERS entry %q: bad priority: %w", entry, err)
		}
		name := strings.ToLower(parts[0])
		prefix := "EXTRACTHUB_" + strings.ToUpper(name)
		out = append(out, ProviderConfig{
			Name:     name,
			Priority: priority,
			Model:    parts[2],
			APIKey:   os.Getenv(prefix + "_API_KEY"),
			BaseURL:  os.Getenv(prefix + "_BASE_URL"),
		})
	}
	return out, nil
}

// Validate checks config values for obviously invalid settings.
func (c Config) Validate() error {
	if c.MaxCacheSize <= 0 {
		return fmt.Errorf("EXTRACTHUB_MAX_CACHE_SIZE must be > 0, got %d", c.MaxCacheSize)
	}
	if c.CacheTTLSecs <= 0 {
		return fmt.Errorf("EXTRACTHUB_CACHE_TTL_SECS must be > 0, got %d", c.CacheTTLSecs)
	}
	if c.FailureThreshold <= 0 {
		return fmt.Errorf("EXTRACTHUB_FAILURE_THRESHOLD must be > 0, got %d", c.FailureThreshold)
	}
	if c.CooldownSecs <= 0 {
		return fmt.Errorf("EXTRACTHUB_COOLDOWN_SECS must be > 0, got %d", c.CooldownSecs)
	}
	if c.ProviderTimeoutSecs <= 0 {
		return fmt.Errorf("EXTRACTHUB_PROVIDER_TIMEOUT_SECS must be > 0, got %d", c.ProviderTimeoutSecs)
	}
	if c.IdempotencyTTLSecs <= 0 {
		return fmt.Errorf("EXTRACTHUB_IDEMPOTENCY_TTL_SECS must be > 0, got %d", c.IdempotencyTTLSecs)
	}
	if c.IdempotencyMaxEntries <= 0 {
		return fmt.Errorf("EXTRACTHUB_IDEMPOTENCY_MAX_ENTRIES must be > 0, got %d", c.IdempotencyMaxEntries)
	}
	if c.RateLimitRPS <= 0 {
		return fmt.Errorf("EXTRACTHUB_RATE_LIMIT_RPS must be > 0, got %d", c.RateLimitRPS)
	}
	if c.RateLimitBurst <= 0 {
		return fmt.Errorf("EXTRACTHUB_RATE_LIMIT_BURST must be > 0, got %d", c.RateLimitBurst)
	}
	seen := make(map[string]bool)
	for _, p := range c.Providers {
		if seen[p.Name] {
			return fmt.Errorf("duplicate provider %q in EXTRACTHUB_PROVIDERS", p.Name)
		}
		seen[p.Name] = true
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return def
}

func getEnvStringSlice(key string, def []string) []string {
	if v := os.Getenv(key); v != "" {
		var result []string
		for _, s := range strings.Split(v, ",") {
			s = strings.TrimSpace(s)
			if s != "" {
				result = append(result, s)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return def
}
