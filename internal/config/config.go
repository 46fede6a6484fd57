// Package config loads the server configuration: a YAML file merged over
// defaults, then environment overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"

	"github.com/HendryAvila/converge/internal/archive"
	"github.com/HendryAvila/converge/internal/llm"
	"github.com/HendryAvila/converge/internal/reasoning"
)

// Environment variables read by ApplyEnv.
const (
	EnvConfig     = "CONVERGE_CONFIG"
	EnvProvider   = "CONVERGE_PROVIDER"
	EnvModel      = "CONVERGE_MODEL"
	EnvAPIKey     = "CONVERGE_API_KEY"
	EnvBaseURL    = "CONVERGE_BASE_URL"
	EnvLogLevel   = "CONVERGE_LOG_LEVEL"
	EnvDataDir    = "CONVERGE_DATA_DIR"
	EnvMaxRetries = "CONVERGE_MAX_RETRIES"
)

const (
	defaultModel          = "claude-sonnet-4-5"
	defaultMaxRetries     = 2
	defaultRequestTimeout = 2 * time.Minute
)

// ProviderConfig selects and tunes the completion provider.
type ProviderConfig struct {
	Name           string        `yaml:"name"`
	Model          string        `yaml:"model"`
	APIKey         string        `yaml:"api_key,omitempty"`
	BaseURL        string        `yaml:"base_url,omitempty"`
	MaxRetries     *int          `yaml:"max_retries,omitempty"`
	RequestTimeout time.Duration `yaml:"request_timeout,omitempty"`
}

// LogConfig controls the stderr logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// SessionConfig holds the live-session retention policy.
type SessionConfig struct {
	RetainTerminal time.Duration `yaml:"retain_terminal,omitempty"`
	IdleTimeout    time.Duration `yaml:"idle_timeout,omitempty"`
}

// ArchiveConfig controls the SQLite session archive.
type ArchiveConfig struct {
	Enabled *bool  `yaml:"enabled,omitempty"`
	DataDir string `yaml:"data_dir,omitempty"`
}

// Config is the full server configuration.
type Config struct {
	Provider ProviderConfig     `yaml:"provider"`
	Log      LogConfig          `yaml:"log"`
	Sessions SessionConfig      `yaml:"sessions"`
	Archive  ArchiveConfig      `yaml:"archive"`
	Presets  []reasoning.Preset `yaml:"presets,omitempty"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	store := reasoning.DefaultStoreConfig()
	retries := defaultMaxRetries
	enabled := true
	return Config{
		Provider: ProviderConfig{
			Name:           llm.ProviderAnthropic,
			Model:          defaultModel,
			MaxRetries:     &retries,
			RequestTimeout: defaultRequestTimeout,
		},
		Log: LogConfig{Level: "info", Format: "text"},
		Sessions: SessionConfig{
			RetainTerminal: store.RetainTerminal,
			IdleTimeout:    store.IdleTimeout,
		},
		Archive: ArchiveConfig{
			Enabled: &enabled,
			DataDir: archive.DefaultConfig().DataDir,
		},
	}
}

// DefaultPath returns $CONVERGE_CONFIG, or config.yaml in the default data dir.
func DefaultPath() string {
	if p := os.Getenv(EnvConfig); p != "" {
		return p
	}
	return filepath.Join(archive.DefaultConfig().DataDir, "config.yaml")
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	p, sp := &c.Provider, &source.Provider
	if sp.Name != "" {
		p.Name = sp.Name
	}
	if sp.Model != "" {
		p.Model = sp.Model
	}
	if sp.APIKey != "" {
		p.APIKey = sp.APIKey
	}
	if sp.BaseURL != "" {
		p.BaseURL = sp.BaseURL
	}
	if sp.MaxRetries != nil {
		v := *sp.MaxRetries
		p.MaxRetries = &v
	}
	if sp.RequestTimeout > 0 {
		p.RequestTimeout = sp.RequestTimeout
	}

	if source.Log.Level != "" {
		c.Log.Level = source.Log.Level
	}
	if source.Log.Format != "" {
		c.Log.Format = source.Log.Format
	}

	if source.Sessions.RetainTerminal > 0 {
		c.Sessions.RetainTerminal = source.Sessions.RetainTerminal
	}
	if source.Sessions.IdleTimeout > 0 {
		c.Sessions.IdleTimeout = source.Sessions.IdleTimeout
	}

	if source.Archive.Enabled != nil {
		v := *source.Archive.Enabled
		c.Archive.Enabled = &v
	}
	if source.Archive.DataDir != "" {
		c.Archive.DataDir = source.Archive.DataDir
	}

	if len(source.Presets) > 0 {
		c.Presets = source.Presets
	}
}

// Load reads a YAML config file and merges it over the defaults. A missing
// file is not an error: the defaults are returned.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return &cfg, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var loaded Config
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	cfg.Merge(&loaded)
	return &cfg, nil
}

// ApplyEnv overrides fields from environment variables. lookup is usually
// os.Getenv.
func (c *Config) ApplyEnv(lookup func(string) string) error {
	if v := lookup(EnvProvider); v != "" {
		c.Provider.Name = v
	}
	if v := lookup(EnvModel); v != "" {
		c.Provider.Model = v
	}
	if v := lookup(EnvAPIKey); v != "" {
		c.Provider.APIKey = v
	}
	if v := lookup(EnvBaseURL); v != "" {
		c.Provider.BaseURL = v
	}
	if v := lookup(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
	if v := lookup(EnvDataDir); v != "" {
		c.Archive.DataDir = v
	}
	if v := lookup(EnvMaxRetries); v != "" {
		n, err := cast.ToIntE(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvMaxRetries, err)
		}
		c.Provider.MaxRetries = &n
	}
	return nil
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	switch c.Provider.Name {
	case llm.ProviderAnthropic, llm.ProviderOpenAI:
	default:
		return fmt.Errorf("provider.name %q: must be one of: anthropic, openai", c.Provider.Name)
	}
	if strings.TrimSpace(c.Provider.Model) == "" {
		return errors.New("provider.model is required")
	}
	if c.Provider.MaxRetries != nil && *c.Provider.MaxRetries < 0 {
		return fmt.Errorf("provider.max_retries must not be negative, got %d", *c.Provider.MaxRetries)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("log.format %q: must be text or json", c.Log.Format)
	}
	return nil
}

// ArchiveEnabled reports whether sessions should be archived.
func (c *Config) ArchiveEnabled() bool {
	return c.Archive.Enabled == nil || *c.Archive.Enabled
}

// LLMOptions returns the provider options for llm.New.
func (c *Config) LLMOptions() llm.Options {
	retries := -1
	if c.Provider.MaxRetries != nil {
		retries = *c.Provider.MaxRetries
	}
	return llm.Options{
		Provider:       c.Provider.Name,
		Model:          c.Provider.Model,
		APIKey:         c.Provider.APIKey,
		BaseURL:        c.Provider.BaseURL,
		MaxRetries:     retries,
		RequestTimeout: c.Provider.RequestTimeout,
	}
}

// StoreConfig returns the live-session eviction policy.
func (c *Config) StoreConfig() reasoning.StoreConfig {
	return reasoning.StoreConfig{
		RetainTerminal: c.Sessions.RetainTerminal,
		IdleTimeout:    c.Sessions.IdleTimeout,
	}
}

// ArchiveConfig returns the archive settings.
func (c *Config) ArchiveConfig() archive.Config {
	cfg := archive.DefaultConfig()
	if c.Archive.DataDir != "" {
		cfg.DataDir = c.Archive.DataDir
	}
	return cfg
}
