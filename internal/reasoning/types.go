// Package reasoning implements multi-agent reasoning sessions: a bounded,
// iterative dialogue between configured agent roles that converges toward a
// quality target or exhausts its iteration budget.
//
// This package follows the same layout as the rest of the server:
// - types, presets, store, lifecycle, engine and formatter live in separate files
// - Store is an interface; the engine and manager depend on the abstraction
// - dialogue modes are a closed tag with an ordering strategy per tag
package reasoning

import (
	"fmt"
	"strings"
	"time"

	"github.com/HendryAvila/converge/internal/llm"
)

// --- Dialogue mode enum ---

// Mode selects how agents take turns within an iteration.
type Mode string

const (
	ModeRefinement  Mode = "refinement"
	ModeExploration Mode = "exploration"
	ModeDebate      Mode = "debate"
	ModeSynthesis   Mode = "synthesis"
	ModeReview      Mode = "review"
)

// ValidateMode returns an error if the mode is not recognized.
func ValidateMode(m Mode) error {
	if _, ok := modeStrategies[m]; !ok {
		return fmt.Errorf("%w: invalid mode %q: must be one of: refinement, exploration, debate, synthesis, review",
			ErrInvalidArgument, m)
	}
	return nil
}

// --- Session status enum ---

// Status tracks the lifecycle of a session. Transitions are monotone:
// started -> in_progress -> completed | error.
type Status string

const (
	StatusStarted    Status = "started"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// Terminal reports whether no further exchanges may be appended.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// --- Turn role and observability tags ---

// TurnRole marks whether an exchange opened its iteration or answered it.
type TurnRole string

const (
	RoleInitiator TurnRole = "initiator"
	RoleResponder TurnRole = "responder"
)

// ConsciousnessState is an observability-only tag describing the character
// of a turn. It never influences control flow.
type ConsciousnessState string

const (
	StateAnalyzing    ConsciousnessState = "analyzing"
	StateSynthesizing ConsciousnessState = "synthesizing"
	StateBreakthrough ConsciousnessState = "breakthrough"
	StateReflection   ConsciousnessState = "reflection"
)

// StatusTag explains why a run call did or did not ask for another
// iteration. It is derived per call and never stored on the session.
type StatusTag string

const (
	TagInProgress    StatusTag = "in_progress"
	TagThresholdMet  StatusTag = "threshold_met"
	TagMaxIterations StatusTag = "max_iterations"
)

// --- Core data structures ---

const (
	defaultTemperature = 0.7
	defaultMaxTokens   = 2048
	maxTemperature     = 2.0
)

// AgentConfig describes one participant. It is validated and defaulted when
// a session starts and never changes afterwards.
type AgentConfig struct {
	Name         string   `json:"name" yaml:"name"`
	Role         string   `json:"role" yaml:"role"`
	SystemPrompt string   `json:"system_prompt" yaml:"system_prompt"`
	Model        string   `json:"model,omitempty" yaml:"model,omitempty"`
	Temperature  *float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	MaxTokens    int      `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
}

// Float returns a pointer to v, for optional fields such as
// AgentConfig.Temperature.
func Float(v float64) *float64 { return &v }

// withDefaults fills unset tuning fields. An explicit temperature of 0 is kept.
func (a AgentConfig) withDefaults() AgentConfig {
	if a.Temperature == nil {
		a.Temperature = Float(defaultTemperature)
	}
	if a.MaxTokens == 0 {
		a.MaxTokens = defaultMaxTokens
	}
	if strings.TrimSpace(a.Role) == "" {
		a.Role = a.Name
	}
	return a
}

// temperature returns the sampling temperature, or the default when unset.
func (a AgentConfig) temperature() float64 {
	if a.Temperature == nil {
		return defaultTemperature
	}
	return *a.Temperature
}

// validate rejects malformed agent configs before any model is called.
func (a AgentConfig) validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return fmt.Errorf("%w: agent name is required", ErrInvalidArgument)
	}
	if strings.TrimSpace(a.SystemPrompt) == "" {
		return fmt.Errorf("%w: agent %q has an empty system prompt", ErrInvalidArgument, a.Name)
	}
	if t := a.Temperature; t != nil && (*t < 0 || *t > maxTemperature) {
		return fmt.Errorf("%w: agent %q temperature %.2f out of range [0,2]", ErrInvalidArgument, a.Name, *t)
	}
	if a.MaxTokens < 0 {
		return fmt.Errorf("%w: agent %q max_tokens must be positive", ErrInvalidArgument, a.Name)
	}
	return nil
}

// validateAgents checks the resolved agent list and returns a defaulted copy.
func validateAgents(agents []AgentConfig) ([]AgentConfig, error) {
	if len(agents) == 0 {
		return nil, fmt.Errorf("%w: at least one agent is required", ErrInvalidArgument)
	}
	seen := make(map[string]bool, len(agents))
	out := make([]AgentConfig, 0, len(agents))
	for _, a := range agents {
		if err := a.validate(); err != nil {
			return nil, err
		}
		if seen[a.Name] {
			return nil, fmt.Errorf("%w: duplicate agent name %q", ErrInvalidArgument, a.Name)
		}
		seen[a.Name] = true
		out = append(out, a.withDefaults())
	}
	return out, nil
}

// Exchange is one agent's single turn within one iteration.
type Exchange struct {
	Agent     string             `json:"agent"`
	Role      TurnRole           `json:"role"`
	Turn      int                `json:"turn"`
	Iteration int                `json:"iteration"`
	Content   string             `json:"content"`
	Model     string             `json:"model,omitempty"`
	Usage     llm.Usage          `json:"usage"`
	State     ConsciousnessState `json:"state,omitempty"`
	Timestamp time.Time          `json:"timestamp"`
}

// IterationRecord is the metadata kept for each completed iteration.
type IterationRecord struct {
	Number      int       `json:"number"`
	Quality     float64   `json:"quality"`
	Warning     string    `json:"warning,omitempty"`
	CompletedAt time.Time `json:"completed_at"`
}

// Session is the root record of one bounded dialogue.
type Session struct {
	ID               string            `json:"id"`
	ThreadID         string            `json:"thread_id"`
	Topic            string            `json:"topic"`
	Context          string            `json:"context,omitempty"`
	Preset           string            `json:"preset,omitempty"`
	Agents           []AgentConfig     `json:"agents"`
	Mode             Mode              `json:"mode"`
	MaxIterations    int               `json:"max_iterations"`
	QualityThreshold float64           `json:"quality_threshold"`
	CurrentIteration int               `json:"current_iteration"`
	CurrentQuality   float64           `json:"current_quality"`
	Exchanges        []Exchange        `json:"exchanges"`
	Iterations       []IterationRecord `json:"iterations,omitempty"`
	Status           Status            `json:"status"`
	Error            string            `json:"error,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// AgentNames returns the configured agent names in order.
func (s *Session) AgentNames() []string {
	names := make([]string, len(s.Agents))
	for i, a := range s.Agents {
		names[i] = a.Name
	}
	return names
}

// setQuality stores q clamped to [0,1].
func (s *Session) setQuality(q float64) {
	s.CurrentQuality = clamp01(q)
}

// Clone returns a deep copy safe to hand to readers.
func (s *Session) Clone() *Session {
	c := *s
	c.Agents = append([]AgentConfig(nil), s.Agents...)
	for i, a := range c.Agents {
		if a.Temperature != nil {
			c.Agents[i].Temperature = Float(*a.Temperature)
		}
	}
	c.Exchanges = append([]Exchange(nil), s.Exchanges...)
	c.Iterations = append([]IterationRecord(nil), s.Iterations...)
	return &c
}

// Snapshot is the status view of a session.
type Snapshot struct {
	SessionID        string    `json:"session_id"`
	ThreadID         string    `json:"thread_id"`
	Topic            string    `json:"topic"`
	Mode             Mode      `json:"mode"`
	Status           Status    `json:"status"`
	CurrentIteration int       `json:"current_iteration"`
	MaxIterations    int       `json:"max_iterations"`
	CurrentQuality   float64   `json:"current_quality"`
	QualityThreshold float64   `json:"quality_threshold"`
	AgentNames       []string  `json:"agent_names"`
	ExchangeCount    int       `json:"exchange_count"`
	LastActivity     time.Time `json:"last_activity"`
	Error            string    `json:"error,omitempty"`
}

func snapshotOf(s *Session) Snapshot {
	return Snapshot{
		SessionID:        s.ID,
		ThreadID:         s.ThreadID,
		Topic:            s.Topic,
		Mode:             s.Mode,
		Status:           s.Status,
		CurrentIteration: s.CurrentIteration,
		MaxIterations:    s.MaxIterations,
		CurrentQuality:   s.CurrentQuality,
		QualityThreshold: s.QualityThreshold,
		AgentNames:       s.AgentNames(),
		ExchangeCount:    len(s.Exchanges),
		LastActivity:     s.UpdatedAt,
		Error:            s.Error,
	}
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
