package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/HendryAvila/converge/internal/llm"
	"github.com/HendryAvila/converge/internal/reasoning"
)

// --- DefaultConfig ---

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if cfg.Provider.Name != llm.ProviderAnthropic {
		t.Errorf("Provider = %s, want anthropic", cfg.Provider.Name)
	}
	if !cfg.ArchiveEnabled() {
		t.Error("archive should be enabled by default")
	}
	if got := cfg.StoreConfig(); got != reasoning.DefaultStoreConfig() {
		t.Errorf("StoreConfig = %+v, want defaults", got)
	}
	if opts := cfg.LLMOptions(); opts.MaxRetries != defaultMaxRetries {
		t.Errorf("MaxRetries = %d, want %d", opts.MaxRetries, defaultMaxRetries)
	}
}

// --- Load ---

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Provider.Model != defaultModel {
		t.Errorf("Model = %s, want %s", cfg.Provider.Model, defaultModel)
	}
}

func TestLoad_EmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Level = %s, want info", cfg.Log.Level)
	}
}

func TestLoad_MergesOverDefaults(t *testing.T) {
	path := writeConfig(t, `
provider:
  name: openai
  model: gpt-4o
  max_retries: 0
  request_timeout: 45s
log:
  level: debug
sessions:
  retain_terminal: 30m
archive:
  enabled: false
presets:
  - name: pm-duo
    description: PM and engineer
    mode: review
    agents:
      - name: pm
        system_prompt: You are a product manager.
      - name: engineer
        system_prompt: You are a staff engineer.
        temperature: 0.2
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Provider.Name != llm.ProviderOpenAI || cfg.Provider.Model != "gpt-4o" {
		t.Errorf("provider = %s/%s, want openai/gpt-4o", cfg.Provider.Name, cfg.Provider.Model)
	}
	if cfg.Provider.RequestTimeout != 45*time.Second {
		t.Errorf("RequestTimeout = %v, want 45s", cfg.Provider.RequestTimeout)
	}
	if opts := cfg.LLMOptions(); opts.MaxRetries != 0 {
		t.Errorf("explicit max_retries 0 should survive the merge, got %d", opts.MaxRetries)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "text" {
		t.Errorf("log = %+v, want debug/text", cfg.Log)
	}
	if cfg.Sessions.RetainTerminal != 30*time.Minute {
		t.Errorf("RetainTerminal = %v, want 30m", cfg.Sessions.RetainTerminal)
	}
	if cfg.Sessions.IdleTimeout != reasoning.DefaultStoreConfig().IdleTimeout {
		t.Errorf("IdleTimeout should keep its default, got %v", cfg.Sessions.IdleTimeout)
	}
	if cfg.ArchiveEnabled() {
		t.Error("archive should be disabled")
	}
	if len(cfg.Presets) != 1 || cfg.Presets[0].Mode != reasoning.ModeReview {
		t.Fatalf("presets = %+v", cfg.Presets)
	}
	if temp := cfg.Presets[0].Agents[1].Temperature; temp == nil || *temp != 0.2 {
		t.Errorf("agent temperature = %v, want 0.2", temp)
	}
	if _, err := reasoning.NewPresetRegistry(cfg.Presets...); err != nil {
		t.Errorf("loaded presets should register: %v", err)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "provider: [unclosed")

	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

// --- ApplyEnv ---

func TestApplyEnv_Overrides(t *testing.T) {
	cfg := DefaultConfig()
	env := map[string]string{
		EnvProvider:   "openai",
		EnvModel:      "gpt-4o-mini",
		EnvAPIKey:     "sk-test",
		EnvLogLevel:   "warn",
		EnvDataDir:    "/tmp/converge",
		EnvMaxRetries: "5",
	}

	if err := cfg.ApplyEnv(func(k string) string { return env[k] }); err != nil {
		t.Fatalf("ApplyEnv() error: %v", err)
	}

	opts := cfg.LLMOptions()
	if opts.Provider != "openai" || opts.Model != "gpt-4o-mini" || opts.APIKey != "sk-test" || opts.MaxRetries != 5 {
		t.Errorf("llm options = %+v", opts)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Level = %s, want warn", cfg.Log.Level)
	}
	if got := cfg.ArchiveConfig().DataDir; got != "/tmp/converge" {
		t.Errorf("DataDir = %s, want /tmp/converge", got)
	}
}

func TestApplyEnv_BadRetries(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.ApplyEnv(func(k string) string {
		if k == EnvMaxRetries {
			return "many"
		}
		return ""
	})
	if err == nil {
		t.Fatal("expected error for non-numeric retries")
	}
}

// --- Validate ---

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown provider", func(c *Config) { c.Provider.Name = "mystery" }},
		{"empty model", func(c *Config) { c.Provider.Model = " " }},
		{"negative retries", func(c *Config) { n := -1; c.Provider.MaxRetries = &n }},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
