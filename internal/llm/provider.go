package llm

import (
	"fmt"
	"time"
)

// Supported provider names.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
)

// Options configures a provider-backed Completer.
// MaxRetries is handed to the SDK client; a negative value keeps the SDK default.
type Options struct {
	Provider       string
	Model          string
	APIKey         string
	BaseURL        string
	MaxRetries     int
	RequestTimeout time.Duration
}

// New returns the Completer for opts.Provider.
func New(opts Options) (Completer, error) {
	switch opts.Provider {
	case ProviderAnthropic:
		return NewAnthropicCompleter(opts), nil
	case ProviderOpenAI:
		return NewOpenAICompleter(opts), nil
	default:
		return nil, fmt.Errorf("unknown provider %q: must be one of: anthropic, openai", opts.Provider)
	}
}
