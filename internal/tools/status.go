package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/converge/internal/reasoning"
)

// StatusTool handles the reasoning_status MCP tool.
type StatusTool struct {
	manager *reasoning.Manager
}

// NewStatusTool creates a StatusTool.
func NewStatusTool(manager *reasoning.Manager) *StatusTool {
	return &StatusTool{manager: manager}
}

// Definition returns the MCP tool definition for reasoning_status.
func (t *StatusTool) Definition() mcp.Tool {
	return mcp.NewTool("reasoning_status",
		mcp.WithDescription(
			"Show the progress of a reasoning session: status, iteration count, current quality "+
				"and the last error if the session failed. Cheap; never calls a model.",
		),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Session ID from reasoning_start"),
		),
	)
}

// Handle processes the reasoning_status tool call.
func (t *StatusTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID := req.GetString("session_id", "")
	if sessionID == "" {
		return mcp.NewToolResultError("'session_id' is required"), nil
	}

	snap, err := t.manager.Status(ctx, sessionID)
	if err != nil {
		return errorResult("getting status", err)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "# Session Status: %s\n\n", snap.Topic)
	fmt.Fprintf(&sb, "- **Session ID:** `%s`\n", snap.SessionID)
	fmt.Fprintf(&sb, "- **Thread ID:** `%s`\n", snap.ThreadID)
	fmt.Fprintf(&sb, "- **Status:** %s\n", snap.Status)
	fmt.Fprintf(&sb, "- **Mode:** %s\n", snap.Mode)
	fmt.Fprintf(&sb, "- **Iteration:** %d / %d\n", snap.CurrentIteration, snap.MaxIterations)
	fmt.Fprintf(&sb, "- **Quality:** %.2f (threshold %.2f)\n", snap.CurrentQuality, snap.QualityThreshold)
	fmt.Fprintf(&sb, "- **Agents:** %s\n", strings.Join(snap.AgentNames, ", "))
	fmt.Fprintf(&sb, "- **Exchanges:** %d\n", snap.ExchangeCount)
	fmt.Fprintf(&sb, "- **Last activity:** %s\n", snap.LastActivity.Format(time.RFC3339))
	if snap.Error != "" {
		fmt.Fprintf(&sb, "- **Error:** %s\n", snap.Error)
	}

	return mcp.NewToolResultText(sb.String()), nil
}
