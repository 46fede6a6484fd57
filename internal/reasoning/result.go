package reasoning

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Format selects how a result is rendered.
type Format string

const (
	FormatMarkdown   Format = "markdown"
	FormatJSON       Format = "json"
	FormatStructured Format = "structured"
)

// ValidateFormat returns an error if the format is not recognized.
func ValidateFormat(f Format) error {
	switch f {
	case FormatMarkdown, FormatJSON, FormatStructured:
		return nil
	}
	return fmt.Errorf("%w: invalid format %q: must be one of: markdown, json, structured", ErrInvalidArgument, f)
}

// NoExchangesPlaceholder is the result text of a session that has not run yet.
const NoExchangesPlaceholder = "No exchanges yet. Call reasoning_run to start the dialogue."

// QualityMetrics summarizes a session's convergence and cost.
type QualityMetrics struct {
	FinalQuality     float64  `json:"final_quality"`
	QualityThreshold float64  `json:"quality_threshold"`
	Iterations       int      `json:"iterations"`
	MaxIterations    int      `json:"max_iterations"`
	ExchangeCount    int      `json:"exchange_count"`
	InputTokens      int      `json:"input_tokens"`
	OutputTokens     int      `json:"output_tokens"`
	TotalTokens      int      `json:"total_tokens"`
	AgentsUsed       []string `json:"agents_used"`
	ParseWarnings    int      `json:"parse_warnings"`
}

// Result is the caller-facing view of a session.
type Result struct {
	SessionID      string            `json:"session_id"`
	ThreadID       string            `json:"thread_id"`
	Topic          string            `json:"topic"`
	Mode           Mode              `json:"mode"`
	Status         Status            `json:"status"`
	Error          string            `json:"error,omitempty"`
	Result         string            `json:"result"`
	ResultAgent    string            `json:"result_agent,omitempty"`
	QualityMetrics QualityMetrics    `json:"quality_metrics"`
	Iterations     []IterationRecord `json:"iterations,omitempty"`
	FullExchange   []Exchange        `json:"full_exchange,omitempty"`
}

// Formatter renders sessions. It never mutates them.
type Formatter struct {
	store    Store
	archiver Archiver
}

// NewFormatter creates a Formatter. archiver may be nil.
func NewFormatter(store Store, archiver Archiver) *Formatter {
	return &Formatter{store: store, archiver: archiver}
}

// Get builds the result of a live or archived session.
func (f *Formatter) Get(ctx context.Context, sessionID string, includeFullExchange bool) (*Result, error) {
	sess, err := lookupSession(ctx, f.store, f.archiver, sessionID)
	if err != nil {
		return nil, err
	}
	return buildResult(sess, includeFullExchange), nil
}

// Render builds the result and renders it in the requested format.
func (f *Formatter) Render(ctx context.Context, sessionID string, format Format, includeFullExchange bool) (string, *Result, error) {
	if format == "" {
		format = FormatMarkdown
	}
	if err := ValidateFormat(format); err != nil {
		return "", nil, err
	}
	res, err := f.Get(ctx, sessionID, includeFullExchange)
	if err != nil {
		return "", nil, err
	}
	text, err := res.Render(format)
	if err != nil {
		return "", nil, err
	}
	return text, res, nil
}

func buildResult(s *Session, includeFullExchange bool) *Result {
	res := &Result{
		SessionID:  s.ID,
		ThreadID:   s.ThreadID,
		Topic:      s.Topic,
		Mode:       s.Mode,
		Status:     s.Status,
		Error:      s.Error,
		Result:     NoExchangesPlaceholder,
		Iterations: append([]IterationRecord(nil), s.Iterations...),
	}

	if ex, ok := latestResult(s.Exchanges); ok {
		res.Result = ex.Content
		res.ResultAgent = ex.Agent
	}

	m := QualityMetrics{
		FinalQuality:     s.CurrentQuality,
		QualityThreshold: s.QualityThreshold,
		Iterations:       s.CurrentIteration,
		MaxIterations:    s.MaxIterations,
		ExchangeCount:    len(s.Exchanges),
		AgentsUsed:       []string{},
	}
	seen := make(map[string]bool)
	for _, ex := range s.Exchanges {
		m.InputTokens += ex.Usage.InputTokens
		m.OutputTokens += ex.Usage.OutputTokens
		if !seen[ex.Agent] {
			seen[ex.Agent] = true
			m.AgentsUsed = append(m.AgentsUsed, ex.Agent)
		}
	}
	m.TotalTokens = m.InputTokens + m.OutputTokens
	for _, it := range s.Iterations {
		if it.Warning != "" {
			m.ParseWarnings++
		}
	}
	res.QualityMetrics = m

	if includeFullExchange {
		res.FullExchange = append([]Exchange(nil), s.Exchanges...)
	}
	return res
}

// latestResult picks the most recent responder turn, falling back to the
// most recent turn of any role (single-agent sessions only have initiators).
func latestResult(exchanges []Exchange) (Exchange, bool) {
	for i := len(exchanges) - 1; i >= 0; i-- {
		if exchanges[i].Role == RoleResponder {
			return exchanges[i], true
		}
	}
	if len(exchanges) > 0 {
		return exchanges[len(exchanges)-1], true
	}
	return Exchange{}, false
}

// Render formats the result.
func (r *Result) Render(format Format) (string, error) {
	switch format {
	case FormatJSON:
		data, err := json.MarshalIndent(r, "", "  ")
		if err != nil {
			return "", fmt.Errorf("marshaling result: %w", err)
		}
		return string(data), nil
	case FormatStructured:
		return r.structured(), nil
	case FormatMarkdown, "":
		return r.markdown(), nil
	}
	return "", ValidateFormat(format)
}

func (r *Result) markdown() string {
	m := r.QualityMetrics
	var sb strings.Builder

	fmt.Fprintf(&sb, "# Reasoning Result: %s\n\n", r.Topic)
	fmt.Fprintf(&sb, "**Session:** `%s`\n", r.SessionID)
	fmt.Fprintf(&sb, "**Thread:** `%s`\n", r.ThreadID)
	fmt.Fprintf(&sb, "**Mode:** %s\n", r.Mode)
	fmt.Fprintf(&sb, "**Status:** %s\n", r.Status)
	if r.Error != "" {
		fmt.Fprintf(&sb, "**Error:** %s\n", r.Error)
	}
	sb.WriteString("\n## Quality Metrics\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	fmt.Fprintf(&sb, "| Final quality | %.2f (threshold %.2f) |\n", m.FinalQuality, m.QualityThreshold)
	fmt.Fprintf(&sb, "| Iterations | %d / %d |\n", m.Iterations, m.MaxIterations)
	fmt.Fprintf(&sb, "| Exchanges | %d |\n", m.ExchangeCount)
	fmt.Fprintf(&sb, "| Tokens | %d in / %d out / %d total |\n", m.InputTokens, m.OutputTokens, m.TotalTokens)
	fmt.Fprintf(&sb, "| Agents | %s |\n", joinOrDash(m.AgentsUsed))
	if m.ParseWarnings > 0 {
		fmt.Fprintf(&sb, "| Parse warnings | %d |\n", m.ParseWarnings)
	}

	sb.WriteString("\n## Result\n\n")
	if r.ResultAgent != "" {
		fmt.Fprintf(&sb, "_From %s:_\n\n", r.ResultAgent)
	}
	sb.WriteString(strings.TrimSpace(r.Result))
	sb.WriteString("\n")

	if len(r.FullExchange) > 0 {
		sb.WriteString("\n## Full Exchange\n")
		for _, ex := range r.FullExchange {
			fmt.Fprintf(&sb, "\n### Iteration %d, turn %d: %s (%s)\n\n", ex.Iteration, ex.Turn, ex.Agent, ex.Role)
			sb.WriteString(strings.TrimSpace(ex.Content))
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

func (r *Result) structured() string {
	m := r.QualityMetrics
	var sb strings.Builder

	sb.WriteString("[session]\n")
	fmt.Fprintf(&sb, "id=%s\nthread=%s\ntopic=%s\nmode=%s\nstatus=%s\n", r.SessionID, r.ThreadID, r.Topic, r.Mode, r.Status)
	if r.Error != "" {
		fmt.Fprintf(&sb, "error=%s\n", r.Error)
	}
	sb.WriteString("\n[metrics]\n")
	fmt.Fprintf(&sb, "final_quality=%.2f\nquality_threshold=%.2f\n", m.FinalQuality, m.QualityThreshold)
	fmt.Fprintf(&sb, "iterations=%d\nmax_iterations=%d\nexchanges=%d\n", m.Iterations, m.MaxIterations, m.ExchangeCount)
	fmt.Fprintf(&sb, "input_tokens=%d\noutput_tokens=%d\ntotal_tokens=%d\n", m.InputTokens, m.OutputTokens, m.TotalTokens)
	fmt.Fprintf(&sb, "agents=%s\nparse_warnings=%d\n", strings.Join(m.AgentsUsed, ","), m.ParseWarnings)
	sb.WriteString("\n[result]\n")
	sb.WriteString(strings.TrimSpace(r.Result))
	sb.WriteString("\n")

	for _, ex := range r.FullExchange {
		fmt.Fprintf(&sb, "\n[exchange iteration=%d turn=%d agent=%s role=%s tokens=%d]\n",
			ex.Iteration, ex.Turn, ex.Agent, ex.Role, ex.Usage.Total())
		sb.WriteString(strings.TrimSpace(ex.Content))
		sb.WriteString("\n")
	}
	return sb.String()
}

func joinOrDash(items []string) string {
	if len(items) == 0 {
		return "—"
	}
	return strings.Join(items, ", ")
}
