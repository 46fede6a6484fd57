package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAPI records decoded request bodies and answers with a fixed status and body.
type fakeAPI struct {
	mu     sync.Mutex
	paths  []string
	bodies []map[string]any
	status int
	body   string
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)
	var decoded map[string]any
	_ = json.Unmarshal(raw, &decoded)

	f.mu.Lock()
	f.paths = append(f.paths, r.URL.Path)
	f.bodies = append(f.bodies, decoded)
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(f.status)
	_, _ = io.WriteString(w, f.body)
}

func (f *fakeAPI) requests() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.bodies)
}

func newFakeAPI(t *testing.T, status int, body string) (*fakeAPI, string) {
	t.Helper()
	api := &fakeAPI{status: status, body: body}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	return api, srv.URL
}

func testRequest() Request {
	return Request{
		SystemPrompt: "You are terse.",
		Messages:     []Message{{Role: RoleUser, Content: "Say hello."}},
		Temperature:  0.3,
		MaxTokens:    64,
	}
}

const anthropicOK = `{
  "id": "msg_01",
  "type": "message",
  "role": "assistant",
  "model": "claude-test",
  "content": [{"type": "text", "text": "Hello"}, {"type": "text", "text": " there."}],
  "stop_reason": "end_turn",
  "usage": {"input_tokens": 12, "output_tokens": 7}
}`

const openAIOK = `{
  "id": "chatcmpl-01",
  "object": "chat.completion",
  "created": 1700000000,
  "model": "gpt-test",
  "choices": [{"index": 0, "message": {"role": "assistant", "content": "Hi."}, "finish_reason": "stop"}],
  "usage": {"prompt_tokens": 9, "completion_tokens": 4, "total_tokens": 13}
}`

func TestAnthropicCompleter_Complete(t *testing.T) {
	api, url := newFakeAPI(t, http.StatusOK, anthropicOK)
	c := NewAnthropicCompleter(Options{Model: "claude-test", APIKey: "test-key", BaseURL: url, MaxRetries: 0})

	resp, err := c.Complete(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "Hello there.", resp.Content)
	assert.Equal(t, "claude-test", resp.Model)
	assert.Equal(t, Usage{InputTokens: 12, OutputTokens: 7}, resp.Usage)

	require.Equal(t, 1, api.requests())
	assert.True(t, strings.HasSuffix(api.paths[0], "/messages"), api.paths[0])
	body := api.bodies[0]
	assert.Equal(t, "claude-test", body["model"])
	assert.EqualValues(t, 64, body["max_tokens"])
	assert.InDelta(t, 0.3, body["temperature"], 1e-9)
	assert.Contains(t, toJSON(t, body["system"]), "You are terse.")
	assert.Contains(t, toJSON(t, body["messages"]), "Say hello.")
}

func TestAnthropicCompleter_RequestModelOverridesDefault(t *testing.T) {
	api, url := newFakeAPI(t, http.StatusOK, anthropicOK)
	c := NewAnthropicCompleter(Options{Model: "default-model", APIKey: "k", BaseURL: url})

	req := testRequest()
	req.Model = "agent-model"
	_, err := c.Complete(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "agent-model", api.bodies[0]["model"])
}

func TestAnthropicCompleter_ErrorStatus(t *testing.T) {
	_, url := newFakeAPI(t, http.StatusBadRequest, `{"type":"error","error":{"type":"invalid_request_error","message":"bad"}}`)
	c := NewAnthropicCompleter(Options{Model: "claude-test", APIKey: "k", BaseURL: url, MaxRetries: 0})

	_, err := c.Complete(context.Background(), testRequest())
	require.Error(t, err)
	assert.True(t, IsProviderError(err))

	var perr *ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, ProviderAnthropic, perr.Provider)
	assert.Equal(t, "claude-test", perr.Model)
}

func TestAnthropicCompleter_EmptyText(t *testing.T) {
	_, url := newFakeAPI(t, http.StatusOK, `{"id":"m","type":"message","role":"assistant","model":"claude-test","content":[],"usage":{"input_tokens":1,"output_tokens":0}}`)
	c := NewAnthropicCompleter(Options{Model: "claude-test", APIKey: "k", BaseURL: url})

	_, err := c.Complete(context.Background(), testRequest())
	assert.True(t, IsProviderError(err))
}

func TestOpenAICompleter_Complete(t *testing.T) {
	api, url := newFakeAPI(t, http.StatusOK, openAIOK)
	c := NewOpenAICompleter(Options{Model: "gpt-test", APIKey: "test-key", BaseURL: url, MaxRetries: 0})

	resp, err := c.Complete(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "Hi.", resp.Content)
	assert.Equal(t, "gpt-test", resp.Model)
	assert.Equal(t, 13, resp.Usage.Total())

	require.Equal(t, 1, api.requests())
	assert.True(t, strings.HasSuffix(api.paths[0], "/chat/completions"), api.paths[0])
	body := api.bodies[0]
	assert.Equal(t, "gpt-test", body["model"])
	assert.EqualValues(t, 64, body["max_completion_tokens"])

	msgs := toJSON(t, body["messages"])
	assert.Contains(t, msgs, `"system"`)
	assert.Contains(t, msgs, "You are terse.")
	assert.Contains(t, msgs, "Say hello.")
}

func TestOpenAICompleter_NoChoices(t *testing.T) {
	_, url := newFakeAPI(t, http.StatusOK, `{"id":"c","object":"chat.completion","created":1,"model":"gpt-test","choices":[]}`)
	c := NewOpenAICompleter(Options{Model: "gpt-test", APIKey: "k", BaseURL: url})

	_, err := c.Complete(context.Background(), testRequest())
	assert.True(t, IsProviderError(err))
}

func TestOpenAICompleter_ErrorStatus(t *testing.T) {
	_, url := newFakeAPI(t, http.StatusUnauthorized, `{"error":{"message":"bad key","type":"invalid_request_error"}}`)
	c := NewOpenAICompleter(Options{Model: "gpt-test", APIKey: "k", BaseURL: url, MaxRetries: 0})

	_, err := c.Complete(context.Background(), testRequest())
	var perr *ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, ProviderOpenAI, perr.Provider)
}

func TestNew(t *testing.T) {
	c, err := New(Options{Provider: ProviderAnthropic, APIKey: "k"})
	require.NoError(t, err)
	assert.IsType(t, &AnthropicCompleter{}, c)

	c, err = New(Options{Provider: ProviderOpenAI, APIKey: "k"})
	require.NoError(t, err)
	assert.IsType(t, &OpenAICompleter{}, c)

	_, err = New(Options{Provider: "mystery"})
	assert.Error(t, err)
}

func TestUsage(t *testing.T) {
	u := Usage{InputTokens: 3, OutputTokens: 4}.Add(Usage{InputTokens: 1, OutputTokens: 2})
	assert.Equal(t, Usage{InputTokens: 4, OutputTokens: 6}, u)
	assert.Equal(t, 10, u.Total())
}

func TestCompleterFunc(t *testing.T) {
	var got Request
	c := CompleterFunc(func(ctx context.Context, req Request) (*Response, error) {
		got = req
		return &Response{Content: "ok"}, nil
	})

	resp, err := c.Complete(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, "You are terse.", got.SystemPrompt)
}

func toJSON(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return string(data)
}
