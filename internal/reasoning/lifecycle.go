package reasoning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
)

// Start defaults.
const (
	DefaultMaxIterations    = 3
	DefaultQualityThreshold = 0.85

	// MaxIterationsLimit bounds the budget: every turn replays the full
	// transcript, so cost grows with each iteration.
	MaxIterationsLimit = 10
)

// StartParams is the input to Manager.Start. Zero values select defaults:
// MaxIterations 3, QualityThreshold 0.85 (use a non-nil pointer to ask for
// exactly 0), the preset's mode, a fresh thread id.
type StartParams struct {
	Topic            string
	Context          string
	Agents           []AgentConfig
	Preset           string
	MaxIterations    int
	QualityThreshold *float64
	Mode             Mode
	ThreadID         string
}

// StartResult reports the identifiers of a new session.
type StartResult struct {
	SessionID        string   `json:"session_id"`
	ThreadID         string   `json:"thread_id"`
	Status           Status   `json:"status"`
	Mode             Mode     `json:"mode"`
	Preset           string   `json:"preset,omitempty"`
	AgentNames       []string `json:"agent_names"`
	MaxIterations    int      `json:"max_iterations"`
	QualityThreshold float64  `json:"quality_threshold"`
	NextAction       string   `json:"next_action"`
}

// Manager creates sessions and reports their status.
type Manager struct {
	store    Store
	presets  *PresetRegistry
	archiver Archiver
	logger   *slog.Logger
	newID    func() string
}

// ManagerOption customizes a Manager.
type ManagerOption func(*Manager)

// WithManagerArchiver lets Status fall back to archived sessions.
func WithManagerArchiver(a Archiver) ManagerOption {
	return func(m *Manager) { m.archiver = a }
}

// WithManagerLogger sets the manager's logger.
func WithManagerLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) { m.logger = l }
}

// NewManager creates a Manager over store and presets.
func NewManager(store Store, presets *PresetRegistry, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:   store,
		presets: presets,
		logger:  slog.Default(),
		newID:   newID,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// newID returns a time-ordered UUIDv7 string.
func newID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Start validates p, creates a session and hands it to the store. Nothing is
// stored when validation fails.
func (m *Manager) Start(p StartParams) (*StartResult, error) {
	topic := strings.TrimSpace(p.Topic)
	if topic == "" {
		return nil, fmt.Errorf("%w: topic is required", ErrInvalidArgument)
	}

	maxIter := p.MaxIterations
	if maxIter == 0 {
		maxIter = DefaultMaxIterations
	}
	if maxIter < 0 {
		return nil, fmt.Errorf("%w: max_iterations must be positive, got %d", ErrInvalidArgument, maxIter)
	}
	if maxIter > MaxIterationsLimit {
		return nil, fmt.Errorf("%w: max_iterations must be at most %d, got %d",
			ErrInvalidArgument, MaxIterationsLimit, maxIter)
	}

	threshold := DefaultQualityThreshold
	if p.QualityThreshold != nil {
		threshold = *p.QualityThreshold
	}
	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("%w: quality_threshold must be within [0,1], got %.2f", ErrInvalidArgument, threshold)
	}

	agents, presetName, presetMode, err := m.resolveAgents(p)
	if err != nil {
		return nil, err
	}

	mode := p.Mode
	if mode == "" {
		mode = presetMode
	}
	if mode == "" {
		mode = ModeRefinement
	}
	if err := ValidateMode(mode); err != nil {
		return nil, err
	}

	threadID := strings.TrimSpace(p.ThreadID)
	if threadID == "" {
		threadID = m.newID()
	}

	now := timeNow().UTC()
	sess := &Session{
		ID:               m.newID(),
		ThreadID:         threadID,
		Topic:            topic,
		Context:          p.Context,
		Preset:           presetName,
		Agents:           agents,
		Mode:             mode,
		MaxIterations:    maxIter,
		QualityThreshold: threshold,
		Status:           StatusStarted,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	result := &StartResult{
		SessionID:        sess.ID,
		ThreadID:         sess.ThreadID,
		Status:           sess.Status,
		Mode:             sess.Mode,
		Preset:           sess.Preset,
		AgentNames:       sess.AgentNames(),
		MaxIterations:    sess.MaxIterations,
		QualityThreshold: sess.QualityThreshold,
		NextAction: fmt.Sprintf("Call reasoning_run with session_id %q to execute iteration 1 of %d.",
			sess.ID, sess.MaxIterations),
	}

	if evicted := m.store.Sweep(now); evicted > 0 {
		m.logger.Debug("swept idle sessions", "evicted", evicted)
	}
	if err := m.store.Insert(sess); err != nil {
		return nil, fmt.Errorf("storing session: %w", err)
	}

	m.logger.Info("reasoning session started",
		"session_id", result.SessionID,
		"thread_id", result.ThreadID,
		"mode", result.Mode,
		"agents", strings.Join(result.AgentNames, ","),
		"max_iterations", result.MaxIterations,
	)
	return result, nil
}

// resolveAgents picks explicit agents, then the named preset, then the
// default preset.
func (m *Manager) resolveAgents(p StartParams) ([]AgentConfig, string, Mode, error) {
	if len(p.Agents) > 0 {
		agents, err := validateAgents(p.Agents)
		if err != nil {
			return nil, "", "", err
		}
		return agents, "", "", nil
	}

	name := strings.TrimSpace(p.Preset)
	if name == "" {
		name = DefaultPresetName
	}
	preset, err := m.presets.Get(name)
	if err != nil {
		return nil, "", "", err
	}
	agents, err := validateAgents(preset.Agents)
	if err != nil {
		return nil, "", "", err
	}
	return agents, preset.Name, preset.Mode, nil
}

// Status returns the status snapshot of a live or archived session.
func (m *Manager) Status(ctx context.Context, sessionID string) (*Snapshot, error) {
	sess, err := lookupSession(ctx, m.store, m.archiver, sessionID)
	if err != nil {
		return nil, err
	}
	snap := snapshotOf(sess)
	return &snap, nil
}

// Sessions returns status snapshots of every live session.
func (m *Manager) Sessions() []Snapshot {
	live := m.store.List()
	out := make([]Snapshot, len(live))
	for i, s := range live {
		out[i] = snapshotOf(s)
	}
	return out
}

// lookupSession reads a session from the store, then the archive.
func lookupSession(ctx context.Context, store Store, archiver Archiver, id string) (*Session, error) {
	sess, err := store.Snapshot(id)
	if err == nil {
		return sess, nil
	}
	if !errors.Is(err, ErrNotFound) || archiver == nil {
		return nil, err
	}
	archived, aerr := archiver.Load(ctx, id)
	if aerr != nil {
		if errors.Is(aerr, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("loading archived session %q: %w", id, aerr)
	}
	return archived, nil
}
