package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/converge/internal/reasoning"
)

// RunTool handles the reasoning_run MCP tool.
type RunTool struct {
	engine *reasoning.Engine
}

// NewRunTool creates a RunTool.
func NewRunTool(engine *reasoning.Engine) *RunTool {
	return &RunTool{engine: engine}
}

// Definition returns the MCP tool definition for reasoning_run.
func (t *RunTool) Definition() mcp.Tool {
	return mcp.NewTool("reasoning_run",
		mcp.WithDescription(
			"Run the next iteration of a reasoning session: every agent takes one turn, the last "+
				"turn scores the result. Returns the new exchanges, the quality score and whether "+
				"to keep going. Call repeatedly while should_continue is true.",
		),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Session ID from reasoning_start"),
		),
		mcp.WithNumber("iteration",
			mcp.Description("Expected iteration number; must be the next one. Omit to run the next iteration."),
		),
	)
}

// Handle processes the reasoning_run tool call.
func (t *RunTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID := req.GetString("session_id", "")
	if sessionID == "" {
		return mcp.NewToolResultError("'session_id' is required"), nil
	}
	iteration, err := intArg(req, "iteration", 0)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if iteration < 0 {
		return mcp.NewToolResultError("'iteration' must be positive"), nil
	}

	res, err := t.engine.Run(ctx, sessionID, iteration)
	if err != nil {
		return errorResult(fmt.Sprintf("running session %s", sessionID), err)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "# Iteration %d of %d\n\n", res.Iteration, res.MaxIterations)
	fmt.Fprintf(&sb, "- **Quality:** %.2f (threshold %.2f)\n", res.QualityScore, res.Threshold)
	fmt.Fprintf(&sb, "- **Status tag:** %s\n", res.StatusTag)
	fmt.Fprintf(&sb, "- **Session status:** %s\n", res.Status)
	fmt.Fprintf(&sb, "- **Should continue:** %t\n", res.ShouldContinue)

	if len(res.Warnings) > 0 {
		sb.WriteString("\n## Warnings\n\n")
		for _, w := range res.Warnings {
			fmt.Fprintf(&sb, "- %s\n", w)
		}
	}

	sb.WriteString("\n## Exchanges\n")
	for _, ex := range res.Exchanges {
		fmt.Fprintf(&sb, "\n### Turn %d: %s (%s, %s)\n\n", ex.Turn, ex.Agent, ex.Role, ex.State)
		sb.WriteString(strings.TrimSpace(ex.Content))
		sb.WriteString("\n")
	}

	sb.WriteString("\n## Next Step\n\n")
	if res.ShouldContinue {
		fmt.Fprintf(&sb, "Call reasoning_run with session_id %q to execute iteration %d.\n",
			res.SessionID, res.Iteration+1)
	} else {
		fmt.Fprintf(&sb, "The session is %s (%s). Call reasoning_result with session_id %q for the final answer.\n",
			res.Status, res.StatusTag, res.SessionID)
	}

	return mcp.NewToolResultText(sb.String()), nil
}
