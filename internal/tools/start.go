package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/converge/internal/reasoning"
)

// StartTool handles the reasoning_start MCP tool.
type StartTool struct {
	manager *reasoning.Manager
}

// NewStartTool creates a StartTool.
func NewStartTool(manager *reasoning.Manager) *StartTool {
	return &StartTool{manager: manager}
}

// Definition returns the MCP tool definition for reasoning_start.
func (t *StartTool) Definition() mcp.Tool {
	return mcp.NewTool("reasoning_start",
		mcp.WithDescription(
			"Start a multi-agent reasoning session on a topic. Agents take turns critiquing and "+
				"refining an answer until a quality threshold is met or the iteration budget runs out. "+
				"Use a preset (see reasoning_presets) or pass your own agents. "+
				"Returns a session_id; then call reasoning_run once per iteration.",
		),
		mcp.WithString("topic",
			mcp.Required(),
			mcp.Description("The question or problem the agents should work on"),
		),
		mcp.WithString("context",
			mcp.Description("Background material every agent sees (requirements, constraints, prior decisions)"),
		),
		mcp.WithString("preset",
			mcp.Description("Preset name (default: consultant-analyst). Ignored when agents is given."),
		),
		mcp.WithString("agents",
			mcp.Description(`JSON array of agents: [{"name":"pm","role":"product manager","system_prompt":"...","model":"optional","temperature":0.7,"max_tokens":2048}]`),
		),
		mcp.WithString("mode",
			mcp.Description("Dialogue mode; defaults to the preset's mode"),
			mcp.Enum(string(reasoning.ModeRefinement), string(reasoning.ModeExploration),
				string(reasoning.ModeDebate), string(reasoning.ModeSynthesis), string(reasoning.ModeReview)),
		),
		mcp.WithNumber("max_iterations",
			mcp.Description(fmt.Sprintf("Iteration budget (default: %d, max: %d)",
				reasoning.DefaultMaxIterations, reasoning.MaxIterationsLimit)),
		),
		mcp.WithNumber("quality_threshold",
			mcp.Description(fmt.Sprintf("Convergence target between 0 and 1 (default: %.2f)", reasoning.DefaultQualityThreshold)),
		),
		mcp.WithString("thread_id",
			mcp.Description("Group this session with earlier sessions of the same conversation"),
		),
	)
}

// Handle processes the reasoning_start tool call.
func (t *StartTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	topic := req.GetString("topic", "")
	if strings.TrimSpace(topic) == "" {
		return mcp.NewToolResultError("'topic' is required"), nil
	}

	maxIter, err := intArg(req, "max_iterations", reasoning.DefaultMaxIterations)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if maxIter <= 0 {
		return mcp.NewToolResultError(fmt.Sprintf("'max_iterations' must be positive, got %d", maxIter)), nil
	}
	threshold, err := floatArg(req, "quality_threshold")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	agents, err := agentsArg(req, "agents")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	res, err := t.manager.Start(reasoning.StartParams{
		Topic:            topic,
		Context:          req.GetString("context", ""),
		Agents:           agents,
		Preset:           req.GetString("preset", ""),
		MaxIterations:    maxIter,
		QualityThreshold: threshold,
		Mode:             reasoning.Mode(req.GetString("mode", "")),
		ThreadID:         req.GetString("thread_id", ""),
	})
	if err != nil {
		return errorResult("starting session", err)
	}

	var sb strings.Builder
	sb.WriteString("# Reasoning Session Started\n\n")
	fmt.Fprintf(&sb, "- **Session ID:** `%s`\n", res.SessionID)
	fmt.Fprintf(&sb, "- **Thread ID:** `%s`\n", res.ThreadID)
	fmt.Fprintf(&sb, "- **Status:** %s\n", res.Status)
	fmt.Fprintf(&sb, "- **Mode:** %s\n", res.Mode)
	if res.Preset != "" {
		fmt.Fprintf(&sb, "- **Preset:** %s\n", res.Preset)
	}
	fmt.Fprintf(&sb, "- **Agents:** %s\n", strings.Join(res.AgentNames, ", "))
	fmt.Fprintf(&sb, "- **Budget:** %d iterations, quality threshold %.2f\n", res.MaxIterations, res.QualityThreshold)
	sb.WriteString("\n## Next Step\n\n")
	sb.WriteString(res.NextAction)
	sb.WriteString("\n")

	return mcp.NewToolResultText(sb.String()), nil
}
