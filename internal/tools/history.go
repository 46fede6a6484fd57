package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/converge/internal/archive"
)

// HistoryTool handles the reasoning_history MCP tool.
type HistoryTool struct {
	archive *archive.Store
}

// NewHistoryTool creates a HistoryTool. store may be nil when archiving is
// disabled; the tool then reports that no history is kept.
func NewHistoryTool(store *archive.Store) *HistoryTool {
	return &HistoryTool{archive: store}
}

// Definition returns the MCP tool definition for reasoning_history.
func (t *HistoryTool) Definition() mcp.Tool {
	return mcp.NewTool("reasoning_history",
		mcp.WithDescription(
			"Browse archived reasoning sessions. With thread_id, lists the sessions of that "+
				"conversation; with query, full-text searches what agents said in past sessions. "+
				"Archived session IDs also work with reasoning_result and reasoning_status.",
		),
		mcp.WithString("thread_id",
			mcp.Description("Only list sessions of this thread"),
		),
		mcp.WithString("query",
			mcp.Description("Keywords to search for in archived agent turns"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Max results (default: 10, max: 20)"),
		),
	)
}

// Handle processes the reasoning_history tool call.
func (t *HistoryTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if t.archive == nil {
		return mcp.NewToolResultError("session archive is disabled; enable archive in the config to keep history"), nil
	}
	limit, err := intArg(req, "limit", 10)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if query := req.GetString("query", ""); strings.TrimSpace(query) != "" {
		return t.search(ctx, query, limit)
	}
	return t.list(ctx, req.GetString("thread_id", ""), limit)
}

func (t *HistoryTool) search(ctx context.Context, query string, limit int) (*mcp.CallToolResult, error) {
	results, err := t.archive.Search(ctx, query, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}
	if len(results) == 0 {
		return mcp.NewToolResultText("No archived exchanges match your query."), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d archived exchanges:\n\n", len(results))
	for i, r := range results {
		fmt.Fprintf(&b, "[%d] %s, iteration %d turn %d, in %q\n    %s\n    session: %s | thread: %s\n\n",
			i+1, r.Agent, r.Iteration, r.Turn, r.Topic,
			r.Snippet,
			r.SessionID, r.ThreadID,
		)
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (t *HistoryTool) list(ctx context.Context, threadID string, limit int) (*mcp.CallToolResult, error) {
	sessions, err := t.archive.Sessions(ctx, threadID, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("listing sessions failed: %v", err)), nil
	}
	if len(sessions) == 0 {
		return mcp.NewToolResultText("No archived sessions yet."), nil
	}

	var b strings.Builder
	if threadID != "" {
		fmt.Fprintf(&b, "# Thread %s (%d sessions)\n\n", threadID, len(sessions))
	} else {
		fmt.Fprintf(&b, "# Recent Sessions (%d)\n\n", len(sessions))
	}
	b.WriteString("| Session | Topic | Mode | Status | Iterations | Quality | Updated |\n")
	b.WriteString("|---------|-------|------|--------|------------|---------|---------|\n")
	for _, s := range sessions {
		fmt.Fprintf(&b, "| `%s` | %s | %s | %s | %d | %.2f | %s |\n",
			s.SessionID, truncate(s.Topic, 60), s.Mode, s.Status, s.Iterations, s.FinalQuality,
			s.UpdatedAt.Format(time.RFC3339))
	}
	return mcp.NewToolResultText(b.String()), nil
}
