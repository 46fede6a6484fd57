package llm

import (
	"context"
	"errors"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAICompleter adapts the OpenAI Chat Completions API to Completer.
type OpenAICompleter struct {
	client       *openai.Client
	defaultModel string
}

// NewOpenAICompleter creates a completer from provider options.
// An empty APIKey falls back to the SDK's OPENAI_API_KEY lookup.
func NewOpenAICompleter(opts Options) *OpenAICompleter {
	client := openai.NewClient(opts.openAIOptions()...)
	return NewOpenAICompleterFromClient(&client, opts.Model)
}

// NewOpenAICompleterFromClient wraps an existing client.
func NewOpenAICompleterFromClient(client *openai.Client, defaultModel string) *OpenAICompleter {
	return &OpenAICompleter{client: client, defaultModel: defaultModel}
}

// Complete implements Completer.
func (c *OpenAICompleter) Complete(ctx context.Context, req Request) (*Response, error) {
	model := req.Model
	if model == "" {
		model = c.defaultModel
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(req.SystemPrompt))
	}
	for _, m := range req.Messages {
		switch m.Role {
		case RoleAssistant:
			messages = append(messages, openai.AssistantMessage(m.Content))
		default:
			messages = append(messages, openai.UserMessage(m.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:       model,
		Messages:    messages,
		Temperature: openai.Float(req.Temperature),
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, &ProviderError{Provider: ProviderOpenAI, Model: model, Err: err}
	}
	if len(resp.Choices) == 0 {
		return nil, &ProviderError{Provider: ProviderOpenAI, Model: model, Err: errors.New("no choices returned")}
	}

	return &Response{
		Content: resp.Choices[0].Message.Content,
		Model:   resp.Model,
		Usage: Usage{
			InputTokens:  int(resp.Usage.PromptTokens),
			OutputTokens: int(resp.Usage.CompletionTokens),
		},
	}, nil
}

func (o Options) openAIOptions() []option.RequestOption {
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
