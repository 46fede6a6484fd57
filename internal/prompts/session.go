// Package prompts implements MCP prompt handlers for reasoning sessions.
//
// MCP prompts are user-triggered workflows (like slash commands) that
// instruct the AI to execute a specific sequence. Unlike tools (which
// the AI calls), prompts are initiated by the user.
package prompts

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/converge/internal/reasoning"
)

// SessionPrompt handles the reasoning-session MCP prompt.
// It walks the AI through the start → run → result loop.
type SessionPrompt struct{}

// NewSessionPrompt creates a SessionPrompt.
func NewSessionPrompt() *SessionPrompt {
	return &SessionPrompt{}
}

// Definition returns the MCP prompt definition for registration.
func (p *SessionPrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("reasoning-session",
		mcp.WithPromptDescription(
			"Work through a question with a panel of AI agents. "+
				"Starts a reasoning session, runs iterations until the answer converges, "+
				"and presents the final result.",
		),
		mcp.WithArgument("topic",
			mcp.ArgumentDescription("The question or problem to reason about"),
			mcp.RequiredArgument(),
		),
		mcp.WithArgument("preset",
			mcp.ArgumentDescription(
				fmt.Sprintf("Agent preset to use (default: %s). Run reasoning_presets to see all of them.", reasoning.DefaultPresetName),
			),
		),
	)
}

// Handle processes the reasoning-session prompt request.
func (p *SessionPrompt) Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	topic := ""
	preset := reasoning.DefaultPresetName
	if args := req.Params.Arguments; args != nil {
		if t, ok := args["topic"]; ok {
			topic = strings.TrimSpace(t)
		}
		if name, ok := args["preset"]; ok && name != "" {
			preset = name
		}
	}

	topicLine := "Ask me what topic I want to reason about, then continue."
	if topic != "" {
		topicLine = fmt.Sprintf("The topic is: %q", topic)
	}

	return &mcp.GetPromptResult{
		Description: "Multi-Agent Reasoning Session",
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.NewTextContent(fmt.Sprintf(
					"I want a panel of agents to reason through a problem with me.\n\n"+
						"%s\n\n"+
						"Please:\n"+
						"1. Call `reasoning_start` with that topic and preset %q. Add any context I gave you.\n"+
						"2. Call `reasoning_run` with the returned session_id. After each iteration, tell me "+
						"the quality score in one line.\n"+
						"3. Keep calling `reasoning_run` while should_continue is true. Stop as soon as it is false.\n"+
						"4. Call `reasoning_result` and present the final answer, then the quality metrics.\n"+
						"5. If a run fails, call `reasoning_result` anyway: it still shows the partial dialogue "+
						"and the error.",
					topicLine, preset,
				)),
			},
		},
	}, nil
}
