package reasoning

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStoredSession(t *testing.T, store *MemoryStore, id string, status Status, updated time.Time) {
	t.Helper()
	require.NoError(t, store.Insert(&Session{
		ID:            id,
		Topic:         "topic " + id,
		Agents:        []AgentConfig{{Name: "solo", SystemPrompt: "x"}},
		Mode:          ModeRefinement,
		MaxIterations: 3,
		Status:        status,
		CreatedAt:     updated,
		UpdatedAt:     updated,
	}))
}

func TestMemoryStore_SnapshotIsDeepCopy(t *testing.T) {
	store := NewMemoryStore(DefaultStoreConfig())
	newStoredSession(t, store, "s1", StatusStarted, time.Now())

	snap, err := store.Snapshot("s1")
	require.NoError(t, err)
	snap.Topic = "changed"
	snap.Agents[0].Name = "changed"

	again, err := store.Snapshot("s1")
	require.NoError(t, err)
	assert.Equal(t, "topic s1", again.Topic)
	assert.Equal(t, "solo", again.Agents[0].Name)
}

func TestMemoryStore_InsertDuplicate(t *testing.T) {
	store := NewMemoryStore(DefaultStoreConfig())
	newStoredSession(t, store, "s1", StatusStarted, time.Now())

	err := store.Insert(&Session{ID: "s1"})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestMemoryStore_UnknownSession(t *testing.T) {
	store := NewMemoryStore(DefaultStoreConfig())

	_, err := store.Snapshot("missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.Lease(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_LeaseIsExclusivePerSession(t *testing.T) {
	store := NewMemoryStore(DefaultStoreConfig())
	newStoredSession(t, store, "a", StatusStarted, time.Now())
	newStoredSession(t, store, "b", StatusStarted, time.Now())

	held, err := store.Lease(context.Background(), "a")
	require.NoError(t, err)

	// A different session is not blocked.
	other, err := store.Lease(context.Background(), "b")
	require.NoError(t, err)
	other.Release()

	// The same session waits until the context gives up.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = store.Lease(ctx, "a")
	assert.ErrorIs(t, err, ErrCancelled)

	// Readers are never blocked by a lease.
	_, err = store.Snapshot("a")
	assert.NoError(t, err)

	held.Release()
	held.Release() // idempotent

	again, err := store.Lease(context.Background(), "a")
	require.NoError(t, err)
	again.Release()
}

func TestMemoryStore_SweepEvictsIdleSessions(t *testing.T) {
	archiver := newMemoryArchiver()
	store := NewMemoryStore(StoreConfig{RetainTerminal: time.Hour, IdleTimeout: 24 * time.Hour}, WithArchiver(archiver))

	now := time.Now()
	newStoredSession(t, store, "done-old", StatusCompleted, now.Add(-2*time.Hour))
	newStoredSession(t, store, "done-fresh", StatusCompleted, now.Add(-10*time.Minute))
	newStoredSession(t, store, "idle-old", StatusInProgress, now.Add(-25*time.Hour))
	newStoredSession(t, store, "idle-fresh", StatusStarted, now.Add(-2*time.Hour))

	evicted := store.Sweep(now)
	assert.Equal(t, 2, evicted)

	_, err := store.Snapshot("done-old")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.Snapshot("idle-old")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.Snapshot("done-fresh")
	assert.NoError(t, err)
	_, err = store.Snapshot("idle-fresh")
	assert.NoError(t, err)

	done, err := archiver.Load(context.Background(), "done-old")
	require.NoError(t, err, "evicted sessions are archived")
	assert.Equal(t, StatusCompleted, done.Status)
	assert.Empty(t, done.Error)

	idle, err := archiver.Load(context.Background(), "idle-old")
	require.NoError(t, err)
	assert.Equal(t, StatusError, idle.Status, "unfinished sessions end in error when they expire")
	assert.Contains(t, idle.Error, "expired after 24h0m0s")
}

func TestMemoryStore_SweepSkipsLeasedSessions(t *testing.T) {
	store := NewMemoryStore(StoreConfig{RetainTerminal: time.Minute, IdleTimeout: time.Minute})
	now := time.Now()
	newStoredSession(t, store, "busy", StatusInProgress, now.Add(-time.Hour))

	lease, err := store.Lease(context.Background(), "busy")
	require.NoError(t, err)
	assert.Equal(t, 0, store.Sweep(now))
	lease.Release()

	assert.Equal(t, 1, store.Sweep(now))
}

func TestMemoryStore_LeaseWaiterSeesEviction(t *testing.T) {
	store := NewMemoryStore(StoreConfig{RetainTerminal: time.Minute})
	now := time.Now()
	newStoredSession(t, store, "gone", StatusCompleted, now.Add(-time.Hour))

	held, err := store.Lease(context.Background(), "gone")
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		l, err := store.Lease(context.Background(), "gone")
		if l != nil {
			l.Release()
		}
		errCh <- err
	}()

	// Give the waiter time to block, then evict underneath it.
	time.Sleep(10 * time.Millisecond)
	held.Release()
	for i := 0; i < 100 && store.Sweep(now) == 0; i++ {
		if _, err := store.Snapshot("gone"); err != nil {
			break
		}
		time.Sleep(time.Millisecond)
	}

	select {
	case err := <-errCh:
		// The waiter either won the race before eviction or saw it.
		if err != nil {
			assert.ErrorIs(t, err, ErrNotFound)
		}
	case <-time.After(time.Second):
		t.Fatal("lease waiter never returned")
	}
}

func TestMemoryStore_ListOldestFirst(t *testing.T) {
	store := NewMemoryStore(DefaultStoreConfig())
	now := time.Now()
	newStoredSession(t, store, "second", StatusStarted, now)
	newStoredSession(t, store, "first", StatusStarted, now.Add(-time.Minute))

	list := store.List()
	require.Len(t, list, 2)
	assert.Equal(t, "first", list[0].ID)
	assert.Equal(t, "second", list[1].ID)
}

func TestMemoryStore_CloseArchivesLiveSessions(t *testing.T) {
	archiver := newMemoryArchiver()
	store := NewMemoryStore(DefaultStoreConfig(), WithArchiver(archiver))
	newStoredSession(t, store, "live", StatusInProgress, time.Now())

	store.Close(context.Background())
	_, err := archiver.Load(context.Background(), "live")
	assert.NoError(t, err)
}
