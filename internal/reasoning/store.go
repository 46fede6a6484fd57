package reasoning

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Store owns every live session. The manager and engine reach sessions only
// through it: readers get deep copies, the engine gets a Lease.
type Store interface {
	// Insert takes ownership of s. The caller must not touch s afterwards.
	Insert(s *Session) error
	// Snapshot returns a deep copy of the session or ErrNotFound.
	Snapshot(id string) (*Session, error)
	// Lease grants exclusive run rights on a session until Release.
	Lease(ctx context.Context, id string) (*Lease, error)
	// List returns deep copies of all live sessions, oldest first.
	List() []*Session
	// Sweep evicts idle sessions and reports how many were removed.
	// Unfinished sessions are moved to error before they leave.
	Sweep(now time.Time) int
}

// Archiver persists sessions beyond their time in the Store.
type Archiver interface {
	Archive(ctx context.Context, s *Session) error
	// Load returns an archived session, wrapping ErrNotFound when absent.
	Load(ctx context.Context, id string) (*Session, error)
}

// StoreConfig holds the eviction policy.
type StoreConfig struct {
	// RetainTerminal is how long completed or failed sessions stay live after
	// their last update.
	RetainTerminal time.Duration
	// IdleTimeout is how long an unfinished session may sit without a run.
	IdleTimeout time.Duration
}

// DefaultStoreConfig returns the default eviction policy.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		RetainTerminal: time.Hour,
		IdleTimeout:    24 * time.Hour,
	}
}

// entry pairs a session with its run lease and data lock. run is a 1-slot
// semaphore held for a whole run; mu is held only around in-memory access
// so readers never wait on provider I/O.
type entry struct {
	run     chan struct{}
	mu      sync.RWMutex
	session *Session
}

// MemoryStore is the in-process Store. Operations on different sessions
// never contend beyond the brief map lookup.
type MemoryStore struct {
	mu       sync.RWMutex
	entries  map[string]*entry
	cfg      StoreConfig
	archiver Archiver
	logger   *slog.Logger
}

// StoreOption customizes a MemoryStore.
type StoreOption func(*MemoryStore)

// WithArchiver hands evicted sessions to a.
func WithArchiver(a Archiver) StoreOption {
	return func(s *MemoryStore) { s.archiver = a }
}

// WithStoreLogger sets the logger used for eviction reports.
func WithStoreLogger(l *slog.Logger) StoreOption {
	return func(s *MemoryStore) { s.logger = l }
}

// NewMemoryStore creates an empty store with the given eviction policy.
func NewMemoryStore(cfg StoreConfig, opts ...StoreOption) *MemoryStore {
	s := &MemoryStore{
		entries: make(map[string]*entry),
		cfg:     cfg,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Insert implements Store.
func (s *MemoryStore) Insert(sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[sess.ID]; exists {
		return fmt.Errorf("%w: session %q already exists", ErrInvalidArgument, sess.ID)
	}
	s.entries[sess.ID] = &entry{run: make(chan struct{}, 1), session: sess}
	return nil
}

func (s *MemoryStore) lookup(id string) (*entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	return e, ok
}

// Snapshot implements Store.
func (s *MemoryStore) Snapshot(id string) (*Session, error) {
	e, ok := s.lookup(id)
	if !ok {
		return nil, fmt.Errorf("%w: session %q", ErrNotFound, id)
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.session.Clone(), nil
}

// Lease implements Store. It blocks while another run holds the session and
// gives up with ErrCancelled when ctx ends first.
func (s *MemoryStore) Lease(ctx context.Context, id string) (*Lease, error) {
	e, ok := s.lookup(id)
	if !ok {
		return nil, fmt.Errorf("%w: session %q", ErrNotFound, id)
	}

	select {
	case e.run <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: waiting for session %q: %v", ErrCancelled, id, ctx.Err())
	}

	// The session may have been evicted while we waited.
	if current, ok := s.lookup(id); !ok || current != e {
		<-e.run
		return nil, fmt.Errorf("%w: session %q", ErrNotFound, id)
	}
	return &Lease{e: e}, nil
}

// List implements Store.
func (s *MemoryStore) List() []*Session {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	out := make([]*Session, 0, len(entries))
	for _, e := range entries {
		e.mu.RLock()
		out = append(out, e.session.Clone())
		e.mu.RUnlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Sweep implements Store. Leased sessions are skipped. Unfinished sessions
// past the idle timeout end in error; evicted sessions are archived when an
// Archiver is configured.
func (s *MemoryStore) Sweep(now time.Time) int {
	var evicted []*Session

	s.mu.Lock()
	for id, e := range s.entries {
		select {
		case e.run <- struct{}{}:
		default:
			continue // a run is in flight
		}

		e.mu.Lock()
		expired := s.expired(e.session, now)
		if expired && !e.session.Status.Terminal() {
			expire(e.session, s.cfg.IdleTimeout, now)
		}
		e.mu.Unlock()

		if expired {
			delete(s.entries, id)
			evicted = append(evicted, e.session)
		}
		<-e.run
	}
	s.mu.Unlock()

	for _, sess := range evicted {
		s.logger.Info("session evicted",
			"session_id", sess.ID,
			"status", sess.Status,
			"error", sess.Error,
		)
		s.archive(context.Background(), sess)
	}
	return len(evicted)
}

func (s *MemoryStore) expired(sess *Session, now time.Time) bool {
	idle := now.Sub(sess.UpdatedAt)
	if sess.Status.Terminal() {
		return s.cfg.RetainTerminal > 0 && idle > s.cfg.RetainTerminal
	}
	return s.cfg.IdleTimeout > 0 && idle > s.cfg.IdleTimeout
}

// expire ends an idle session so its archived copy can never be run again.
func expire(sess *Session, idleTimeout time.Duration, now time.Time) {
	sess.Status = StatusError
	sess.Error = fmt.Sprintf("expired after %s without a run", idleTimeout)
	sess.UpdatedAt = now.UTC()
}

// Close archives every live session. It is called on shutdown.
func (s *MemoryStore) Close(ctx context.Context) {
	for _, sess := range s.List() {
		s.archive(ctx, sess)
	}
}

func (s *MemoryStore) archive(ctx context.Context, sess *Session) {
	if s.archiver == nil {
		return
	}
	if err := s.archiver.Archive(ctx, sess); err != nil {
		s.logger.Warn("archiving session failed", "session_id", sess.ID, "error", err)
	}
}

// Lease is the exclusive right to run iterations on one session. All
// mutation of a live session goes through Update.
type Lease struct {
	e        *entry
	released bool
}

// View calls fn with the session under a read lock. fn must not retain s.
func (l *Lease) View(fn func(s *Session)) {
	l.e.mu.RLock()
	defer l.e.mu.RUnlock()
	fn(l.e.session)
}

// Update calls fn with the session under the write lock.
func (l *Lease) Update(fn func(s *Session)) {
	l.e.mu.Lock()
	defer l.e.mu.Unlock()
	fn(l.e.session)
}

// Release returns the lease. It is safe to call more than once.
func (l *Lease) Release() {
	if l.released {
		return
	}
	l.released = true
	<-l.e.run
}
