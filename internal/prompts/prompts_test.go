package prompts

import (
	"context"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
)

func promptText(t *testing.T, result *mcp.GetPromptResult) string {
	t.Helper()
	if len(result.Messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(result.Messages))
	}
	tc, ok := result.Messages[0].Content.(mcp.TextContent)
	if !ok {
		t.Fatalf("expected text content, got %T", result.Messages[0].Content)
	}
	return tc.Text
}

func TestSessionPrompt_Definition(t *testing.T) {
	def := NewSessionPrompt().Definition()
	if def.Name != "reasoning-session" {
		t.Errorf("prompt name = %q, want reasoning-session", def.Name)
	}
	if len(def.Arguments) != 2 {
		t.Errorf("expected 2 arguments, got %d", len(def.Arguments))
	}
}

func TestSessionPrompt_Handle_WithTopic(t *testing.T) {
	req := mcp.GetPromptRequest{}
	req.Params.Arguments = map[string]string{"topic": "Define MVP scope", "preset": "structured-debate"}

	result, err := NewSessionPrompt().Handle(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	text := promptText(t, result)
	for _, want := range []string{`"Define MVP scope"`, `"structured-debate"`, "reasoning_start", "reasoning_run", "reasoning_result"} {
		if !strings.Contains(text, want) {
			t.Errorf("prompt should contain %q", want)
		}
	}
}

func TestSessionPrompt_Handle_NoTopic(t *testing.T) {
	result, err := NewSessionPrompt().Handle(context.Background(), mcp.GetPromptRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	text := promptText(t, result)
	if !strings.Contains(text, "Ask me what topic") {
		t.Error("prompt should ask for a topic")
	}
	if !strings.Contains(text, `"consultant-analyst"`) {
		t.Error("prompt should fall back to the default preset")
	}
}
