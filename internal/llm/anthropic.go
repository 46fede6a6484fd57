package llm

import (
	"context"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicCompleter adapts the Anthropic Messages API to Completer.
type AnthropicCompleter struct {
	client       *anthropic.Client
	defaultModel string
}

// NewAnthropicCompleter creates a completer from provider options.
// An empty APIKey falls back to the SDK's ANTHROPIC_API_KEY lookup.
func NewAnthropicCompleter(opts Options) *AnthropicCompleter {
	client := anthropic.NewClient(opts.anthropicOptions()...)
	return NewAnthropicCompleterFromClient(&client, opts.Model)
}

// NewAnthropicCompleterFromClient wraps an existing client.
func NewAnthropicCompleterFromClient(client *anthropic.Client, defaultModel string) *AnthropicCompleter {
	return &AnthropicCompleter{client: client, defaultModel: defaultModel}
}

// Complete implements Completer.
func (c *AnthropicCompleter) Complete(ctx context.Context, req Request) (*Response, error) {
	model := req.Model
	if model == "" {
		model = c.defaultModel
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(model),
		MaxTokens:   int64(req.MaxTokens),
		Messages:    anthropicMessages(req.Messages),
		Temperature: anthropic.Float(req.Temperature),
	}
	if req.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.SystemPrompt}}
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, &ProviderError{Provider: ProviderAnthropic, Model: model, Err: err}
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.AsText().Text)
		}
	}
	if text.Len() == 0 {
		return nil, &ProviderError{Provider: ProviderAnthropic, Model: model, Err: errors.New("response contained no text")}
	}

	return &Response{
		Content: text.String(),
		Model:   string(msg.Model),
		Usage: Usage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
		},
	}, nil
}

// anthropicMessages converts messages, skipping empty ones the API rejects.
func anthropicMessages(msgs []Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		if m.Content == "" {
			continue
		}
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(block))
			continue
		}
		out = append(out, anthropic.NewUserMessage(block))
	}
	return out
}

func (o Options) anthropicOptions() []option.RequestOption {
	var opts []option.RequestOption
	if o.APIKey != "" {
		opts = append(opts, option.WithAPIKey(o.APIKey))
	}
	if o.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(o.BaseURL))
	}
	if o.MaxRetries >= 0 {
		opts = append(opts, option.WithMaxRetries(o.MaxRetries))
	}
	if o.RequestTimeout > 0 {
		opts = append(opts, option.WithRequestTimeout(o.RequestTimeout))
	}
	return opts
}
