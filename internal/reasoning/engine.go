package reasoning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/HendryAvila/converge/internal/llm"
)

// breakthroughDelta is the quality jump that tags a final turn as a breakthrough.
const breakthroughDelta = 0.15

// RunResult reports the outcome of one iteration.
type RunResult struct {
	SessionID      string         `json:"session_id"`
	Iteration      int            `json:"iteration"`
	MaxIterations  int            `json:"max_iterations"`
	Exchanges      []Exchange     `json:"exchanges"`
	QualityScore   float64        `json:"quality_score"`
	Threshold      float64        `json:"quality_threshold"`
	ShouldContinue bool           `json:"should_continue"`
	StatusTag      StatusTag      `json:"status_tag"`
	Status         Status         `json:"session_status"`
	Warnings       []ParseWarning `json:"warnings,omitempty"`
}

// Engine executes one bounded iteration of agent turns per Run call.
type Engine struct {
	store     Store
	completer llm.Completer
	archiver  Archiver
	logger    *slog.Logger
}

// EngineOption customizes an Engine.
type EngineOption func(*Engine)

// WithEngineArchiver archives sessions as soon as they turn terminal.
func WithEngineArchiver(a Archiver) EngineOption {
	return func(e *Engine) { e.archiver = a }
}

// WithEngineLogger sets the engine's logger.
func WithEngineLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// NewEngine creates an Engine over store using completer for agent turns.
func NewEngine(store Store, completer llm.Completer, opts ...EngineOption) *Engine {
	e := &Engine{
		store:     store,
		completer: completer,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// runPlan is the immutable input of one iteration, copied out of the
// session before any provider call.
type runPlan struct {
	sessionID     string
	iteration     int
	maxIterations int
	threshold     float64
	prevQuality   float64
	agents        []AgentConfig
	mode          Mode
}

// Run executes the next iteration of a session. iteration is optional: 0
// means "the next one"; any other value must equal currentIteration+1.
//
// Turns of the iteration are staged and committed together with the
// iteration bookkeeping, so readers never see a half-finished iteration
// unless a provider failure ends the session. In that case the turns that
// did complete are kept and the session moves to error. A caller
// cancellation discards the staged turns and leaves counters untouched.
func (e *Engine) Run(ctx context.Context, sessionID string, iteration int) (*RunResult, error) {
	lease, err := e.lease(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer lease.Release()

	var plan runPlan
	var planErr error
	lease.View(func(s *Session) {
		plan, planErr = planIteration(s, iteration)
	})
	if planErr != nil {
		return nil, planErr
	}

	lease.Update(func(s *Session) {
		if s.Status == StatusStarted {
			s.Status = StatusInProgress
			s.UpdatedAt = timeNow().UTC()
		}
	})

	log := e.logger.With("session_id", sessionID, "iteration", plan.iteration)
	log.Info("reasoning iteration started", "mode", plan.mode, "agents", len(plan.agents))

	order := plan.mode.turnOrder(len(plan.agents), plan.iteration)
	staged := make([]Exchange, 0, len(order))

	for turn, idx := range order {
		agent := plan.agents[idx]
		final := turn == len(order)-1

		var req llm.Request
		lease.View(func(s *Session) {
			history := append(append([]Exchange(nil), s.Exchanges...), staged...)
			req = buildTurnRequest(s, history, agent, plan.iteration, turn+1, final)
		})

		started := time.Now()
		resp, err := e.complete(ctx, req)
		if err != nil {
			if isCancellation(ctx, err) {
				log.Warn("reasoning iteration cancelled", "agent", agent.Name, "discarded_turns", len(staged))
				return nil, fmt.Errorf("%w: session %q iteration %d: %v", ErrCancelled, sessionID, plan.iteration, err)
			}
			return nil, e.fail(ctx, lease, log, staged, agent, plan, err)
		}
		log.Debug("agent turn completed",
			"agent", agent.Name,
			"input_tokens", resp.Usage.InputTokens,
			"output_tokens", resp.Usage.OutputTokens,
			"elapsed", time.Since(started).Round(time.Millisecond).String(),
		)

		ex := Exchange{
			Agent:     agent.Name,
			Role:      RoleResponder,
			Turn:      turn + 1,
			Iteration: plan.iteration,
			Content:   resp.Content,
			Model:     resp.Model,
			Usage:     resp.Usage,
			State:     StateSynthesizing,
			Timestamp: timeNow().UTC(),
		}
		if turn == 0 {
			ex.Role = RoleInitiator
			ex.State = StateAnalyzing
		}
		staged = append(staged, ex)
	}

	return e.commit(ctx, lease, log, staged, plan), nil
}

// lease takes the run lease, falling back to the archive for sessions that
// left the store. Archived terminal sessions are refused like live ones.
// Unfinished ones were archived at shutdown and are restored so they can
// continue.
func (e *Engine) lease(ctx context.Context, sessionID string) (*Lease, error) {
	lease, err := e.store.Lease(ctx, sessionID)
	if err == nil || !errors.Is(err, ErrNotFound) || e.archiver == nil {
		return lease, err
	}

	archived, aerr := e.archiver.Load(ctx, sessionID)
	if aerr != nil {
		if errors.Is(aerr, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("loading archived session %q: %w", sessionID, aerr)
	}
	if archived.Status.Terminal() {
		return nil, fmt.Errorf("%w: session %q is %s", ErrInvalidState, sessionID, archived.Status)
	}

	archived.UpdatedAt = timeNow().UTC()
	if ierr := e.store.Insert(archived); ierr != nil && !errors.Is(ierr, ErrInvalidArgument) {
		return nil, ierr
	}
	e.logger.Info("session restored from archive",
		"session_id", sessionID,
		"status", archived.Status,
		"current_iteration", archived.CurrentIteration,
	)
	return e.store.Lease(ctx, sessionID)
}

// planIteration validates the run request against the session.
func planIteration(s *Session, requested int) (runPlan, error) {
	if s.Status.Terminal() {
		return runPlan{}, fmt.Errorf("%w: session %q is %s", ErrInvalidState, s.ID, s.Status)
	}
	next := s.CurrentIteration + 1
	if requested != 0 && requested != next {
		return runPlan{}, fmt.Errorf("%w: session %q expects iteration %d, got %d", ErrInvalidState, s.ID, next, requested)
	}
	if next > s.MaxIterations {
		return runPlan{}, fmt.Errorf("%w: session %q has used all %d iterations", ErrInvalidState, s.ID, s.MaxIterations)
	}
	return runPlan{
		sessionID:     s.ID,
		iteration:     next,
		maxIterations: s.MaxIterations,
		threshold:     s.QualityThreshold,
		prevQuality:   s.CurrentQuality,
		agents:        append([]AgentConfig(nil), s.Agents...),
		mode:          s.Mode,
	}, nil
}

func (e *Engine) complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resp, err := e.completer.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, errors.New("provider returned no response")
	}
	return resp, nil
}

// isCancellation separates a caller walking away from a provider failure.
// Deadline expiry is a timeout and counts as a provider failure.
func isCancellation(ctx context.Context, err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled)
}

// fail records a provider failure: completed turns stay in the log and the
// session becomes terminal.
func (e *Engine) fail(ctx context.Context, lease *Lease, log *slog.Logger, staged []Exchange, agent AgentConfig, plan runPlan, cause error) error {
	msg := fmt.Sprintf("agent %q failed during iteration %d: %v", agent.Name, plan.iteration, cause)

	var terminal *Session
	lease.Update(func(s *Session) {
		s.Exchanges = append(s.Exchanges, staged...)
		s.Status = StatusError
		s.Error = msg
		s.UpdatedAt = timeNow().UTC()
		terminal = s.Clone()
	})

	log.Error("reasoning iteration failed", "agent", agent.Name, "kept_turns", len(staged), "error", cause)
	e.archive(ctx, log, terminal)
	return fmt.Errorf("%w: %s", ErrProvider, msg)
}

// commit applies a finished iteration in one write.
func (e *Engine) commit(ctx context.Context, lease *Lease, log *slog.Logger, staged []Exchange, plan runPlan) *RunResult {
	final := &staged[len(staged)-1]

	quality := plan.prevQuality
	var warnings []ParseWarning
	if q, ok := ParseQuality(final.Content); ok {
		quality = q
	} else {
		w := ParseWarning{
			Iteration: plan.iteration,
			Agent:     final.Agent,
			Message: fmt.Sprintf("no %s marker in %s's reply; keeping quality %.2f",
				QualityMarker, final.Agent, plan.prevQuality),
		}
		warnings = append(warnings, w)
		log.Warn("quality marker missing", "agent", final.Agent, "kept_quality", plan.prevQuality)
	}
	quality = clamp01(quality)

	switch {
	case len(warnings) == 0 && plan.iteration > 1 && quality-plan.prevQuality >= breakthroughDelta:
		final.State = StateBreakthrough
	case plan.iteration == plan.maxIterations:
		final.State = StateReflection
	}

	shouldContinue := plan.iteration < plan.maxIterations && quality < plan.threshold
	tag := TagInProgress
	switch {
	case quality >= plan.threshold:
		tag = TagThresholdMet
	case !shouldContinue:
		tag = TagMaxIterations
	}

	now := timeNow().UTC()
	record := IterationRecord{Number: plan.iteration, Quality: quality, CompletedAt: now}
	if len(warnings) > 0 {
		record.Warning = warnings[0].Message
	}

	var status Status
	var terminal *Session
	lease.Update(func(s *Session) {
		s.Exchanges = append(s.Exchanges, staged...)
		s.Iterations = append(s.Iterations, record)
		s.CurrentIteration = plan.iteration
		s.setQuality(quality)
		s.UpdatedAt = now
		if !shouldContinue {
			s.Status = StatusCompleted
			terminal = s.Clone()
		}
		status = s.Status
	})

	log.Info("reasoning iteration finished",
		"quality", quality,
		"should_continue", shouldContinue,
		"status_tag", tag,
	)
	if terminal != nil {
		e.archive(ctx, log, terminal)
	}

	return &RunResult{
		SessionID:      plan.sessionID,
		Iteration:      plan.iteration,
		MaxIterations:  plan.maxIterations,
		Exchanges:      append([]Exchange(nil), staged...),
		QualityScore:   quality,
		Threshold:      plan.threshold,
		ShouldContinue: shouldContinue,
		StatusTag:      tag,
		Status:         status,
		Warnings:       warnings,
	}
}

// archive stores a terminal session. Failures are logged, never returned:
// the live store still holds the session.
func (e *Engine) archive(ctx context.Context, log *slog.Logger, s *Session) {
	if e.archiver == nil || s == nil {
		return
	}
	if err := e.archiver.Archive(context.WithoutCancel(ctx), s); err != nil {
		log.Warn("archiving session failed", "error", err)
	}
}
