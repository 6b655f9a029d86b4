package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `
generation:
  provider: anthropic
  api_key: test-key
  model: claude-sonnet-4-20250514
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Generation.MaxTokens != 2000 {
		t.Errorf("MaxTokens = %d, want 2000", cfg.Generation.MaxTokens)
	}
	if cfg.Generation.Temperature != 0.7 {
		t.Errorf("Temperature = %v, want 0.7", cfg.Generation.Temperature)
	}
	if cfg.Generation.TimeoutSeconds != 60 {
		t.Errorf("TimeoutSeconds = %d, want 60", cfg.Generation.TimeoutSeconds)
	}
	if cfg.Generation.MaxRetries != 2 {
		t.Errorf("MaxRetries = %d, want 2", cfg.Generation.MaxRetries)
	}
	if !cfg.Cache.IsEnabled() {
		t.Error("cache should default to enabled")
	}
	if cfg.Cache.RetentionDays != 7 {
		t.Errorf("RetentionDays = %d, want 7", cfg.Cache.RetentionDays)
	}
	if cfg.Conversation.ClarificationExchanges != 3 {
		t.Errorf("ClarificationExchanges = %d, want 3", cfg.Conversation.ClarificationExchanges)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("BLUEPRINTD_TEST_KEY", "sk-from-env")
	path := writeConfig(t, `
generation:
  provider: openai
  api_key: ${BLUEPRINTD_TEST_KEY}
  model: gpt-4o
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Generation.APIKey != "sk-from-env" {
		t.Errorf("APIKey = %q, want sk-from-env", cfg.Generation.APIKey)
	}
}

func TestLoad_CacheDisabled(t *testing.T) {
	path := writeConfig(t, `
generation:
  provider: openai
  api_key: k
  model: gpt-4o
cache:
  enabled: false
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Cache.IsEnabled() {
		t.Error("cache should be disabled by explicit enabled: false")
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg := Default()
		cfg.Generation.APIKey = "k"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid defaults", func(c *Config) {}, false},
		{"missing api key", func(c *Config) { c.Generation.APIKey = "" }, true},
		{"missing model", func(c *Config) { c.Generation.Model = "" }, true},
		{"unknown provider", func(c *Config) { c.Generation.Provider = "cohere" }, true},
		{"max_tokens too low", func(c *Config) { c.Generation.MaxTokens = 100 }, true},
		{"max_tokens too high", func(c *Config) { c.Generation.MaxTokens = 5000 }, true},
		{"max_tokens at lower bound", func(c *Config) { c.Generation.MaxTokens = 500 }, false},
		{"max_tokens at upper bound", func(c *Config) { c.Generation.MaxTokens = 4000 }, false},
		{"temperature too high", func(c *Config) { c.Generation.Temperature = 1.5 }, true},
		{"temperature negative", func(c *Config) { c.Generation.Temperature = -0.1 }, true},
		{"retention zero", func(c *Config) { c.Cache.RetentionDays = -1 }, true},
		{"negative retries", func(c *Config) { c.Generation.MaxRetries = -1 }, true},
		{"log level debug", func(c *Config) { c.LogLevel = "debug" }, false},
		{"log level typo", func(c *Config) { c.LogLevel = "verbose" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestFindConfig_Explicit(t *testing.T) {
	path := writeConfig(t, "data_dir: /tmp\n")
	got, err := FindConfig(path)
	if err != nil {
		t.Fatalf("FindConfig: %v", err)
	}
	if got != path {
		t.Errorf("FindConfig = %q, want %q", got, path)
	}

	if _, err := FindConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing explicit config")
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"info", slog.LevelInfo, false},
		{"TRACE", LevelTrace, false},
		{"debug", slog.LevelDebug, false},
		{"warn", slog.LevelWarn, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"  info  ", slog.LevelInfo, false},
		{"verbose", slog.LevelInfo, true},
	}

	for _, tt := range tests {
		got, err := ParseLogLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLogLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
