package app

import (
	"testing"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ListenAddr != ":8080" {
		t.Errorf("listen addr: %q", cfg.ListenAddr)
	}
	if cfg.MaxCacheSize != 256 || cfg.CacheTTLSecs != 900 {
		t.Errorf("cache defaults: %d %d", cfg.MaxCacheSize, cfg.CacheTTLSecs)
	}
	if cfg.FailureThreshold != 3 || cfg.CooldownSecs != 30 {
		t.Errorf("breaker defaults: %d %d", cfg.FailureThreshold, cfg.CooldownSecs)
	}
	if cfg.MaxPromptChars != 10000 || cfg.MaxDocumentChars != 100000 || cfg.MaxTokensCeiling != 8192 {
		t.Errorf("validation defaults: %+v", cfg)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("EXTRACTHUB_LISTEN_ADDR", ":9999")
	t.Setenv("EXTRACTHUB_MAX_CACHE_SIZE", "64")
	t.Setenv("EXTRACTHUB_TEMPORAL_ENABLED", "true")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ListenAddr != ":9999" || cfg.MaxCacheSize != 64 || !cfg.TemporalEnabled {
		t.Errorf("overrides not applied: %+v", cfg)
	}
}

func TestParseProviders(t *testing.T) {
	t.Setenv("EXTRACTHUB_ANTHROPIC_API_KEY", "sk-a")
	t.Setenv("EXTRACTHUB_OLLAMA_BASE_URL", "https://llm.example.com")

	providers, err := parseProviders("anthropic:1:claude-sonnet-4-5, ollama:2:llama3")
	if err != nil {
		t.Fatal(err)
	}
	if len(providers) != 2 {
		t.Fatalf("want 2 providers, got %d", len(providers))
	}
	if providers[0].Name != "anthropic" || providers[0].Priority != 1 || providers[0].Model != "claude-sonnet-4-5" {
		t.Errorf("anthropic entry: %+v", providers[0])
	}
	if providers[0].APIKey != "sk-a" {
		t.Errorf("api key not resolved: %+v", providers[0])
	}
	if providers[1].BaseURL != "https://llm.example.com" {
		t.Errorf("base url not resolved: %+v", providers[1])
	}
}

func TestParseProvidersMalformed(t *testing.T) {
	if _, err := parseProviders("anthropic:1"); err == nil {
		t.Error("missing model field should fail")
	}
	if _, err := parseProviders("anthropic:high:claude"); err == nil {
		t.Error("non-numeric priority should fail")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Setenv("EXTRACTHUB_MAX_CACHE_SIZE", "0")
	if _, err := LoadConfig(); err == nil {
		t.Error("zero cache size should fail validation")
	}
}

func TestValidateRejectsDuplicateProviders(t *testing.T) {
	t.Setenv("EXTRACTHUB_PROVIDERS", "openai:1:gpt-4o,openai:2:gpt-4o-mini")
	if _, err := LoadConfig(); err == nil {
		t.Error("duplicate provider names should fail validation")
	}
}
