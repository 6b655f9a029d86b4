// Package config handles blueprintd configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Provider names accepted by the generation layer.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Bounds for generation parameters. Requests outside these ranges are
// rejected at load time rather than at call time.
const (
	MinMaxTokens = 500
	MaxMaxTokens = 4000
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/blueprintd/config.yaml, /etc/blueprintd/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "blueprintd", "config.yaml"))
	}

	paths = append(paths, "/etc/blueprintd/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all blueprintd configuration.
type Config struct {
	Listen       ListenConfig       `yaml:"listen"`
	Generation   GenerationConfig   `yaml:"generation"`
	Cache        CacheConfig        `yaml:"cache"`
	Conversation ConversationConfig `yaml:"conversation"`
	DataDir      string             `yaml:"data_dir"`
	LogLevel     string             `yaml:"log_level"`
}

// ListenConfig defines the API server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// GenerationConfig defines the text-generation provider settings.
// APIKey supports ${VAR} expansion so credentials can stay out of the file.
type GenerationConfig struct {
	Provider       string  `yaml:"provider"` // openai, anthropic
	APIKey         string  `yaml:"api_key"`
	Model          string  `yaml:"model"`
	MaxTokens      int     `yaml:"max_tokens"`      // 500-4000
	Temperature    float64 `yaml:"temperature"`     // 0.0-1.0
	TimeoutSeconds int     `yaml:"timeout_seconds"` // per-attempt provider call budget
	MaxRetries     int     `yaml:"max_retries"`     // extra attempts after the first
}

// CacheConfig defines the blueprint cache settings.
// Enabled uses a pointer so an absent key means "on" while an explicit
// `enabled: false` turns caching off.
type CacheConfig struct {
	Enabled       *bool `yaml:"enabled"`
	RetentionDays int   `yaml:"retention_days"`
}

// IsEnabled reports whether caching is on (default true).
func (c CacheConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// ConversationConfig defines turn-taking behavior.
type ConversationConfig struct {
	// ClarificationExchanges is how many user+assistant pairs are collected
	// before the manager proposes moving past clarification.
	ClarificationExchanges int `yaml:"clarification_exchanges"`
}

// Load reads configuration from a YAML file, expanding ${VAR} references
// from the environment, and applies defaults for absent fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	return cfg, nil
}

// Default returns a default configuration.
func Default() *Config {
	cfg := &Config{
		Listen: ListenConfig{Port: 8080},
		Generation: GenerationConfig{
			Provider: ProviderOpenAI,
			Model:    "gpt-4o",
		},
	}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults fills zero-valued fields with their documented defaults.
// Called after YAML unmarshal so a partial config file still works.
func (c *Config) applyDefaults() {
	if c.Listen.Port == 0 {
		c.Listen.Port = 8080
	}
	if c.Generation.MaxTokens == 0 {
		c.Generation.MaxTokens = 2000
	}
	if c.Generation.Temperature == 0 {
		// Zero means unset. Callers wanting near-deterministic output can
		// set a small positive value like 0.01.
		c.Generation.Temperature = 0.7
	}
	if c.Generation.TimeoutSeconds == 0 {
		c.Generation.TimeoutSeconds = 60
	}
	if c.Generation.MaxRetries == 0 {
		c.Generation.MaxRetries = 2
	}
	if c.Cache.RetentionDays == 0 {
		c.Cache.RetentionDays = 7
	}
	if c.Conversation.ClarificationExchanges == 0 {
		c.Conversation.ClarificationExchanges = 3
	}
	if c.DataDir == "" {
		c.DataDir = "."
	}
}

// Validate checks the configuration for values the pipeline cannot run
// with. A missing credential or out-of-range generation parameter is a
// configuration error: fail immediately, never retry.
func (c *Config) Validate() error {
	switch c.Generation.Provider {
	case ProviderOpenAI, ProviderAnthropic:
	default:
		return fmt.Errorf("unknown provider %q (valid: %s, %s)",
			c.Generation.Provider, ProviderOpenAI, ProviderAnthropic)
	}

	if c.Generation.APIKey == "" {
		return fmt.Errorf("generation.api_key is required for provider %q", c.Generation.Provider)
	}
	if c.Generation.Model == "" {
		return fmt.Errorf("generation.model is required")
	}
	if c.Generation.MaxTokens < MinMaxTokens || c.Generation.MaxTokens > MaxMaxTokens {
		return fmt.Errorf("generation.max_tokens %d out of range [%d, %d]",
			c.Generation.MaxTokens, MinMaxTokens, MaxMaxTokens)
	}
	if c.Generation.Temperature < 0.0 || c.Generation.Temperature > 1.0 {
		return fmt.Errorf("generation.temperature %.2f out of range [0.0, 1.0]", c.Generation.Temperature)
	}
	if c.Generation.TimeoutSeconds < 1 {
		return fmt.Errorf("generation.timeout_seconds must be positive")
	}
	if c.Generation.MaxRetries < 0 {
		return fmt.Errorf("generation.max_retries must not be negative")
	}
	if c.Cache.RetentionDays < 1 {
		return fmt.Errorf("cache.retention_days must be at least 1")
	}
	if c.Conversation.ClarificationExchanges < 1 {
		return fmt.Errorf("conversation.clarification_exchanges must be at least 1")
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}

	return nil
}
