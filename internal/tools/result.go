package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/converge/internal/reasoning"
)

// ResultTool handles the reasoning_result MCP tool.
type ResultTool struct {
	formatter *reasoning.Formatter
}

// NewResultTool creates a ResultTool.
func NewResultTool(formatter *reasoning.Formatter) *ResultTool {
	return &ResultTool{formatter: formatter}
}

// Definition returns the MCP tool definition for reasoning_result.
func (t *ResultTool) Definition() mcp.Tool {
	return mcp.NewTool("reasoning_result",
		mcp.WithDescription(
			"Get the current result of a reasoning session: the latest answer, quality metrics "+
				"and token usage. Works at any point, including on failed sessions.",
		),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Session ID from reasoning_start"),
		),
		mcp.WithString("format",
			mcp.Description("Output format (default: markdown)"),
			mcp.Enum(string(reasoning.FormatMarkdown), string(reasoning.FormatJSON), string(reasoning.FormatStructured)),
		),
		mcp.WithBoolean("include_full_exchange",
			mcp.Description("Include every agent turn, not just the final answer (default: false)"),
		),
	)
}

// Handle processes the reasoning_result tool call.
func (t *ResultTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID := req.GetString("session_id", "")
	if sessionID == "" {
		return mcp.NewToolResultError("'session_id' is required"), nil
	}
	full, err := boolArg(req, "include_full_exchange", false)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	format := reasoning.Format(req.GetString("format", string(reasoning.FormatMarkdown)))

	text, _, err := t.formatter.Render(ctx, sessionID, format, full)
	if err != nil {
		return errorResult("getting result", err)
	}
	return mcp.NewToolResultText(text), nil
}
