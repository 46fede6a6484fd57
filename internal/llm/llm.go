// Package llm defines the completion capability consumed by reasoning
// sessions and adapts concrete providers (Anthropic, OpenAI) to it.
//
// The orchestrator never sees provider types: it builds a Request and gets
// back a Response or a *ProviderError. Retries and timeouts are configured on
// the provider clients, never in the session state machine.
package llm

import (
	"context"
	"errors"
	"fmt"
)

// Role identifies the speaker of a message in a completion request.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one conversational turn sent to the model.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Request is a provider-agnostic completion request. An empty Model means
// the provider's configured default.
type Request struct {
	Model        string
	SystemPrompt string
	Messages     []Message
	Temperature  float64
	MaxTokens    int
}

// Usage reports token counts for one completion.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Total returns input plus output tokens.
func (u Usage) Total() int {
	return u.InputTokens + u.OutputTokens
}

// Add returns the element-wise sum of u and o.
func (u Usage) Add(o Usage) Usage {
	return Usage{
		InputTokens:  u.InputTokens + o.InputTokens,
		OutputTokens: u.OutputTokens + o.OutputTokens,
	}
}

// Response is the model's reply to a Request.
type Response struct {
	Content string
	Model   string
	Usage   Usage
}

// Completer is the minimal capability the reasoning engine depends on.
type Completer interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// CompleterFunc adapts a plain function to the Completer interface.
type CompleterFunc func(ctx context.Context, req Request) (*Response, error)

// Complete implements Completer.
func (f CompleterFunc) Complete(ctx context.Context, req Request) (*Response, error) {
	return f(ctx, req)
}

// ProviderError wraps a failed call to a concrete provider.
type ProviderError struct {
	Provider string
	Model    string
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Model != "" {
		return fmt.Sprintf("%s (%s): %v", e.Provider, e.Model, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// IsProviderError reports whether err came from a provider adapter.
func IsProviderError(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe)
}
