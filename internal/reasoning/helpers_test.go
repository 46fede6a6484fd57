package reasoning

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/HendryAvila/converge/internal/llm"
	"github.com/stretchr/testify/require"
)

// scriptedCompleter answers each call through respond and records requests.
type scriptedCompleter struct {
	mu      sync.Mutex
	calls   []llm.Request
	respond func(call int, req llm.Request) (*llm.Response, error)
}

func (c *scriptedCompleter) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	c.mu.Lock()
	call := len(c.calls)
	c.calls = append(c.calls, req)
	c.mu.Unlock()
	return c.respond(call, req)
}

func (c *scriptedCompleter) Calls() []llm.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]llm.Request(nil), c.calls...)
}

// isFinalTurn reports whether the request asks for a quality marker.
func isFinalTurn(req llm.Request) bool {
	return strings.Contains(req.Messages[0].Content, QualityMarker+": <score>")
}

// qualitySequence scores final turns with the given values in order and
// answers other turns with a plain critique.
func qualitySequence(scores ...float64) *scriptedCompleter {
	var mu sync.Mutex
	next := 0
	return &scriptedCompleter{
		respond: func(call int, req llm.Request) (*llm.Response, error) {
			if !isFinalTurn(req) {
				return &llm.Response{
					Content: fmt.Sprintf("critique #%d", call),
					Model:   "test-model",
					Usage:   llm.Usage{InputTokens: 10, OutputTokens: 5},
				}, nil
			}
			mu.Lock()
			score := scores[next%len(scores)]
			next++
			mu.Unlock()
			return &llm.Response{
				Content: fmt.Sprintf("revision #%d\n\nQUALITY_ASSESSMENT: %.2f", call, score),
				Model:   "test-model",
				Usage:   llm.Usage{InputTokens: 20, OutputTokens: 8},
			}, nil
		},
	}
}

// memoryArchiver is an in-memory Archiver for tests.
type memoryArchiver struct {
	mu       sync.Mutex
	sessions map[string]*Session
	archived int
}

func newMemoryArchiver() *memoryArchiver {
	return &memoryArchiver{sessions: make(map[string]*Session)}
}

func (a *memoryArchiver) Archive(ctx context.Context, s *Session) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sessions[s.ID] = s.Clone()
	a.archived++
	return nil
}

func (a *memoryArchiver) Load(ctx context.Context, id string) (*Session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: archived session %q", ErrNotFound, id)
	}
	return s.Clone(), nil
}

// fixture wires a store, manager, engine and formatter around completer.
type fixture struct {
	store     *MemoryStore
	manager   *Manager
	engine    *Engine
	formatter *Formatter
	archiver  *memoryArchiver
}

func newFixture(t *testing.T, completer llm.Completer) *fixture {
	t.Helper()
	presets, err := NewPresetRegistry()
	require.NoError(t, err)

	archiver := newMemoryArchiver()
	store := NewMemoryStore(DefaultStoreConfig(), WithArchiver(archiver))
	return &fixture{
		store:     store,
		manager:   NewManager(store, presets, WithManagerArchiver(archiver)),
		engine:    NewEngine(store, completer, WithEngineArchiver(archiver)),
		formatter: NewFormatter(store, archiver),
		archiver:  archiver,
	}
}

// restarted returns a fixture with an empty live store over f's archive,
// as seen by a new process after shutdown.
func (f *fixture) restarted(t *testing.T, completer llm.Completer) *fixture {
	t.Helper()
	presets, err := NewPresetRegistry()
	require.NoError(t, err)

	store := NewMemoryStore(DefaultStoreConfig(), WithArchiver(f.archiver))
	return &fixture{
		store:     store,
		manager:   NewManager(store, presets, WithManagerArchiver(f.archiver)),
		engine:    NewEngine(store, completer, WithEngineArchiver(f.archiver)),
		formatter: NewFormatter(store, f.archiver),
		archiver:  f.archiver,
	}
}

func (f *fixture) start(t *testing.T, p StartParams) string {
	t.Helper()
	res, err := f.manager.Start(p)
	require.NoError(t, err)
	return res.SessionID
}

func threshold(v float64) *float64 { return &v }
