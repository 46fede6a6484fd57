package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/converge/internal/reasoning"
)

// PresetsTool handles the reasoning_presets MCP tool.
type PresetsTool struct {
	presets *reasoning.PresetRegistry
}

// NewPresetsTool creates a PresetsTool.
func NewPresetsTool(presets *reasoning.PresetRegistry) *PresetsTool {
	return &PresetsTool{presets: presets}
}

// Definition returns the MCP tool definition for reasoning_presets.
func (t *PresetsTool) Definition() mcp.Tool {
	return mcp.NewTool("reasoning_presets",
		mcp.WithDescription(
			"List the available agent presets with their agents, dialogue mode and what each is "+
				"recommended for. Pass a preset name to reasoning_start.",
		),
	)
}

// Handle processes the reasoning_presets tool call.
func (t *PresetsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	presets := t.presets.List()

	var sb strings.Builder
	fmt.Fprintf(&sb, "# Reasoning Presets (%d)\n", len(presets))
	for _, p := range presets {
		fmt.Fprintf(&sb, "\n## %s\n\n", p.Name)
		if p.Name == reasoning.DefaultPresetName {
			sb.WriteString("_Default preset._\n\n")
		}
		sb.WriteString(p.Description)
		sb.WriteString("\n\n")
		fmt.Fprintf(&sb, "- **Mode:** %s\n", p.Mode)
		sb.WriteString("- **Agents:**\n")
		for _, a := range p.Agents {
			fmt.Fprintf(&sb, "  - %s (%s): %s\n", a.Name, a.Role, truncate(a.SystemPrompt, 120))
		}
		if len(p.RecommendedFor) > 0 {
			fmt.Fprintf(&sb, "- **Recommended for:** %s\n", strings.Join(p.RecommendedFor, ", "))
		}
	}

	return mcp.NewToolResultText(sb.String()), nil
}
