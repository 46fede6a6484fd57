package reasoning

import (
	"fmt"
	"strings"

	"github.com/HendryAvila/converge/internal/llm"
)

// buildTurnRequest assembles the completion request for one agent turn.
// Every turn sees the full transcript: history is never summarized.
// exchanges holds every exchange appended so far, including earlier turns
// of the current iteration.
func buildTurnRequest(s *Session, exchanges []Exchange, agent AgentConfig, iteration, turn int, final bool) llm.Request {
	var sb strings.Builder

	sb.WriteString("# Topic\n\n")
	sb.WriteString(s.Topic)
	sb.WriteString("\n\n")

	if strings.TrimSpace(s.Context) != "" {
		sb.WriteString("## Context\n\n")
		sb.WriteString(s.Context)
		sb.WriteString("\n\n")
	}

	sb.WriteString("## Participants\n\n")
	for _, a := range s.Agents {
		fmt.Fprintf(&sb, "- %s (%s)\n", a.Name, a.Role)
	}
	sb.WriteString("\n")

	if instr := s.Mode.instruction(); instr != "" {
		sb.WriteString("## Dialogue Mode\n\n")
		sb.WriteString(instr)
		sb.WriteString("\n\n")
	}

	sb.WriteString("## Transcript\n\n")
	if len(exchanges) == 0 {
		sb.WriteString("_No prior turns. You open the dialogue._\n\n")
	}
	for _, ex := range exchanges {
		fmt.Fprintf(&sb, "### Iteration %d, turn %d: %s (%s)\n\n", ex.Iteration, ex.Turn, ex.Agent, ex.Role)
		sb.WriteString(strings.TrimSpace(ex.Content))
		sb.WriteString("\n\n")
	}

	sb.WriteString("## Your Turn\n\n")
	fmt.Fprintf(&sb, "You are **%s** (%s). This is iteration %d of %d, turn %d.\n",
		agent.Name, agent.Role, iteration, s.MaxIterations, turn)
	if turn == 1 {
		fmt.Fprintf(&sb, "You open this iteration: deliver the %s the others will respond to.\n", s.Mode.opening())
	}
	if final {
		sb.WriteString("\n")
		sb.WriteString(qualityInstruction())
		sb.WriteString("\n")
	}

	return llm.Request{
		Model:        agent.Model,
		SystemPrompt: agent.SystemPrompt,
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: sb.String()}},
		Temperature:  agent.temperature(),
		MaxTokens:    agent.MaxTokens,
	}
}
