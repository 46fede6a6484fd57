package server

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/HendryAvila/converge/internal/config"
	"github.com/HendryAvila/converge/internal/reasoning"
	"github.com/mark3labs/mcp-go/server"
)

func testConfig(t *testing.T, archive bool) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Provider.APIKey = "test-key"
	cfg.Archive.DataDir = t.TempDir()
	cfg.Archive.Enabled = &archive
	return &cfg
}

// call sends one JSON-RPC request through the server and returns the
// serialized response.
func call(t *testing.T, s *server.MCPServer, method string, params any) string {
	t.Helper()
	req := map[string]any{"jsonrpc": "2.0", "id": 1, "method": method}
	if params != nil {
		req["params"] = params
	}
	raw, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	resp := s.HandleMessage(context.Background(), raw)
	out, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}
	return string(out)
}

func TestNew_RegistersEverything(t *testing.T) {
	s, cleanup, err := New(testConfig(t, true), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer cleanup()

	toolsList := call(t, s, "tools/list", nil)
	for _, name := range []string{
		"reasoning_start", "reasoning_run", "reasoning_result",
		"reasoning_status", "reasoning_presets", "reasoning_history",
	} {
		if !strings.Contains(toolsList, `"`+name+`"`) {
			t.Errorf("tools/list missing %s", name)
		}
	}

	if got := call(t, s, "prompts/list", nil); !strings.Contains(got, "reasoning-session") {
		t.Errorf("prompts/list missing reasoning-session: %s", got)
	}

	resourcesList := call(t, s, "resources/list", nil)
	for _, uri := range []string{"converge://presets", "converge://sessions"} {
		if !strings.Contains(resourcesList, uri) {
			t.Errorf("resources/list missing %s", uri)
		}
	}
}

func TestNew_PresetsToolServesBuiltins(t *testing.T) {
	s, cleanup, err := New(testConfig(t, false), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer cleanup()

	got := call(t, s, "tools/call", map[string]any{
		"name":      "reasoning_presets",
		"arguments": map[string]any{},
	})
	if !strings.Contains(got, "consultant-analyst") {
		t.Errorf("presets output missing default preset: %s", got)
	}
}

func TestNew_ArchiveDisabledStillRegistersHistory(t *testing.T) {
	s, cleanup, err := New(testConfig(t, false), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer cleanup()

	got := call(t, s, "tools/call", map[string]any{
		"name":      "reasoning_history",
		"arguments": map[string]any{"query": "pricing"},
	})
	if !strings.Contains(got, "archive is disabled") {
		t.Errorf("expected disabled message, got: %s", got)
	}
}

func TestNew_UnknownProvider(t *testing.T) {
	cfg := testConfig(t, false)
	cfg.Provider.Name = "mystery"

	_, cleanup, err := New(cfg, nil)
	if err == nil {
		t.Fatal("expected error for unknown provider")
	}
	if cleanup == nil {
		t.Fatal("cleanup must never be nil")
	}
	cleanup()
}

func TestNew_InvalidPresetRejected(t *testing.T) {
	cfg := testConfig(t, false)
	cfg.Presets = []reasoning.Preset{{Name: "empty", Description: "no agents"}}

	if _, _, err := New(cfg, nil); err == nil {
		t.Fatal("expected error for preset without agents")
	}
}

func TestServerInstructions_DescribeLoop(t *testing.T) {
	got := serverInstructions()
	for _, want := range []string{"reasoning_start", "reasoning_run", "reasoning_result", "Should continue"} {
		if !strings.Contains(got, want) {
			t.Errorf("instructions missing %q", want)
		}
	}
}
