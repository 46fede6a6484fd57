// Package archive persists reasoning sessions to SQLite once they leave the
// live store: on completion, on failure, on eviction and on shutdown.
//
// The schema keeps one row per session and one row per exchange, with an
// FTS5 index over exchange content so past dialogues can be searched.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/HendryAvila/converge/internal/llm"
	"github.com/HendryAvila/converge/internal/reasoning"

	_ "modernc.org/sqlite"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// ─── Config ──────────────────────────────────────────────────────────────────

// Config holds archive settings.
type Config struct {
	DataDir          string
	MaxSearchResults int
}

// DefaultConfig returns the default configuration for the archive.
func DefaultConfig() Config {
	home, _ := os.UserHomeDir()
	return Config{
		DataDir:          filepath.Join(home, ".converge"),
		MaxSearchResults: 20,
	}
}

// ─── Types ───────────────────────────────────────────────────────────────────

// Summary is a compact view of an archived session.
type Summary struct {
	SessionID     string    `json:"session_id"`
	ThreadID      string    `json:"thread_id"`
	Topic         string    `json:"topic"`
	Mode          string    `json:"mode"`
	Status        string    `json:"status"`
	Iterations    int       `json:"iterations"`
	FinalQuality  float64   `json:"final_quality"`
	ExchangeCount int       `json:"exchange_count"`
	UpdatedAt     time.Time `json:"updated_at"`
	ArchivedAt    time.Time `json:"archived_at"`
}

// SearchResult is one archived exchange matching a full-text query.
type SearchResult struct {
	SessionID string  `json:"session_id"`
	ThreadID  string  `json:"thread_id"`
	Topic     string  `json:"topic"`
	Agent     string  `json:"agent"`
	Iteration int     `json:"iteration"`
	Turn      int     `json:"turn"`
	Snippet   string  `json:"snippet"`
	Rank      float64 `json:"rank"`
}

// ─── Store ───────────────────────────────────────────────────────────────────

// Store is the SQLite session archive. It implements reasoning.Archiver.
type Store struct {
	db  *sql.DB
	cfg Config
}

var _ reasoning.Archiver = (*Store)(nil)

// New opens (or creates) the archive database under cfg.DataDir.
func New(cfg Config) (*Store, error) {
	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return nil, fmt.Errorf("archive: create data dir: %w", err)
	}
	if cfg.MaxSearchResults <= 0 {
		cfg.MaxSearchResults = DefaultConfig().MaxSearchResults
	}

	dbPath := filepath.Join(cfg.DataDir, "sessions.db")
	db, err := openDB("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("archive: open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("archive: pragma %q: %w", p, err)
		}
	}

	s := &Store{db: db, cfg: cfg}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("archive: migration: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// ─── Migrations ──────────────────────────────────────────────────────────────

func (s *Store) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS sessions (
			id                TEXT PRIMARY KEY,
			thread_id         TEXT    NOT NULL,
			topic             TEXT    NOT NULL,
			context           TEXT    NOT NULL DEFAULT '',
			preset            TEXT    NOT NULL DEFAULT '',
			mode              TEXT    NOT NULL,
			status            TEXT    NOT NULL,
			error             TEXT    NOT NULL DEFAULT '',
			max_iterations    INTEGER NOT NULL,
			quality_threshold REAL    NOT NULL,
			current_iteration INTEGER NOT NULL,
			current_quality   REAL    NOT NULL,
			agents            TEXT    NOT NULL,
			iterations        TEXT    NOT NULL DEFAULT '[]',
			created_at        TEXT    NOT NULL,
			updated_at        TEXT    NOT NULL,
			archived_at       TEXT    NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_sessions_thread  ON sessions(thread_id, updated_at DESC);
		CREATE INDEX IF NOT EXISTS idx_sessions_updated ON sessions(updated_at DESC);

		CREATE TABLE IF NOT EXISTS exchanges (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id    TEXT    NOT NULL,
			iteration     INTEGER NOT NULL,
			turn          INTEGER NOT NULL,
			agent         TEXT    NOT NULL,
			role          TEXT    NOT NULL,
			content       TEXT    NOT NULL,
			model         TEXT    NOT NULL DEFAULT '',
			input_tokens  INTEGER NOT NULL DEFAULT 0,
			output_tokens INTEGER NOT NULL DEFAULT 0,
			state         TEXT    NOT NULL DEFAULT '',
			created_at    TEXT    NOT NULL,
			UNIQUE (session_id, iteration, turn),
			FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
		);

		CREATE VIRTUAL TABLE IF NOT EXISTS exchanges_fts USING fts5(
			content,
			agent,
			content='exchanges',
			content_rowid='id'
		);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	// Create FTS triggers (idempotent)
	var name string
	err := s.db.QueryRow(
		"SELECT name FROM sqlite_master WHERE type='trigger' AND name='exchanges_fts_insert'",
	).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		triggers := `
			CREATE TRIGGER exchanges_fts_insert AFTER INSERT ON exchanges BEGIN
				INSERT INTO exchanges_fts(rowid, content, agent)
				VALUES (new.id, new.content, new.agent);
			END;

			CREATE TRIGGER exchanges_fts_delete AFTER DELETE ON exchanges BEGIN
				INSERT INTO exchanges_fts(exchanges_fts, rowid, content, agent)
				VALUES ('delete', old.id, old.content, old.agent);
			END;
		`
		if _, err := s.db.Exec(triggers); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}
	return nil
}

// ─── Archiver ────────────────────────────────────────────────────────────────

// Archive stores sess, replacing any earlier copy of the same session.
func (s *Store) Archive(ctx context.Context, sess *reasoning.Session) error {
	agents, err := json.Marshal(sess.Agents)
	if err != nil {
		return fmt.Errorf("archive: encode agents: %w", err)
	}
	iterations := sess.Iterations
	if iterations == nil {
		iterations = []reasoning.IterationRecord{}
	}
	iters, err := json.Marshal(iterations)
	if err != nil {
		return fmt.Errorf("archive: encode iterations: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("archive: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (
			id, thread_id, topic, context, preset, mode, status, error,
			max_iterations, quality_threshold, current_iteration, current_quality,
			agents, iterations, created_at, updated_at, archived_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status            = excluded.status,
			error             = excluded.error,
			current_iteration = excluded.current_iteration,
			current_quality   = excluded.current_quality,
			iterations        = excluded.iterations,
			updated_at        = excluded.updated_at,
			archived_at       = excluded.archived_at`,
		sess.ID, sess.ThreadID, sess.Topic, sess.Context, sess.Preset, string(sess.Mode),
		string(sess.Status), sess.Error,
		sess.MaxIterations, sess.QualityThreshold, sess.CurrentIteration, sess.CurrentQuality,
		string(agents), string(iters),
		formatTime(sess.CreatedAt), formatTime(sess.UpdatedAt), formatTime(timeNow()),
	)
	if err != nil {
		return fmt.Errorf("archive: upsert session %q: %w", sess.ID, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM exchanges WHERE session_id = ?`, sess.ID); err != nil {
		return fmt.Errorf("archive: clear exchanges of %q: %w", sess.ID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO exchanges (
			session_id, iteration, turn, agent, role, content, model,
			input_tokens, output_tokens, state, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("archive: prepare exchange insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, ex := range sess.Exchanges {
		if _, err := stmt.ExecContext(ctx,
			sess.ID, ex.Iteration, ex.Turn, ex.Agent, string(ex.Role), ex.Content, ex.Model,
			ex.Usage.InputTokens, ex.Usage.OutputTokens, string(ex.State), formatTime(ex.Timestamp),
		); err != nil {
			return fmt.Errorf("archive: insert exchange %d.%d of %q: %w", ex.Iteration, ex.Turn, sess.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("archive: commit: %w", err)
	}
	return nil
}

// Load returns an archived session. Unknown ids wrap reasoning.ErrNotFound.
func (s *Store) Load(ctx context.Context, id string) (*reasoning.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, thread_id, topic, context, preset, mode, status, error,
		       max_iterations, quality_threshold, current_iteration, current_quality,
		       agents, iterations, created_at, updated_at
		FROM sessions WHERE id = ?`, id)

	var (
		sess                 reasoning.Session
		mode, status         string
		agents, iters        string
		createdAt, updatedAt string
	)
	err := row.Scan(
		&sess.ID, &sess.ThreadID, &sess.Topic, &sess.Context, &sess.Preset, &mode, &status, &sess.Error,
		&sess.MaxIterations, &sess.QualityThreshold, &sess.CurrentIteration, &sess.CurrentQuality,
		&agents, &iters, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: archived session %q", reasoning.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("archive: load session %q: %w", id, err)
	}

	sess.Mode = reasoning.Mode(mode)
	sess.Status = reasoning.Status(status)
	sess.CreatedAt = parseTime(createdAt)
	sess.UpdatedAt = parseTime(updatedAt)
	if err := json.Unmarshal([]byte(agents), &sess.Agents); err != nil {
		return nil, fmt.Errorf("archive: decode agents of %q: %w", id, err)
	}
	if err := json.Unmarshal([]byte(iters), &sess.Iterations); err != nil {
		return nil, fmt.Errorf("archive: decode iterations of %q: %w", id, err)
	}

	sess.Exchanges, err = s.exchanges(ctx, id)
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *Store) exchanges(ctx context.Context, sessionID string) ([]reasoning.Exchange, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT iteration, turn, agent, role, content, model, input_tokens, output_tokens, state, created_at
		FROM exchanges WHERE session_id = ?
		ORDER BY iteration, turn`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("archive: load exchanges of %q: %w", sessionID, err)
	}
	defer func() { _ = rows.Close() }()

	var out []reasoning.Exchange
	for rows.Next() {
		var (
			ex                 reasoning.Exchange
			role, state, stamp string
			in, outTokens      int
		)
		if err := rows.Scan(&ex.Iteration, &ex.Turn, &ex.Agent, &role, &ex.Content, &ex.Model,
			&in, &outTokens, &state, &stamp); err != nil {
			return nil, err
		}
		ex.Role = reasoning.TurnRole(role)
		ex.State = reasoning.ConsciousnessState(state)
		ex.Usage = llm.Usage{InputTokens: in, OutputTokens: outTokens}
		ex.Timestamp = parseTime(stamp)
		out = append(out, ex)
	}
	return out, rows.Err()
}

// ─── Queries ─────────────────────────────────────────────────────────────────

// Sessions lists archived sessions newest first. An empty threadID lists
// every thread.
func (s *Store) Sessions(ctx context.Context, threadID string, limit int) ([]Summary, error) {
	limit = s.clampLimit(limit)

	query := `
		SELECT s.id, s.thread_id, s.topic, s.mode, s.status, s.current_iteration,
		       s.current_quality, COUNT(e.id), s.updated_at, s.archived_at
		FROM sessions s
		LEFT JOIN exchanges e ON e.session_id = s.id
		WHERE 1=1
	`
	args := []any{}
	if threadID != "" {
		query += " AND s.thread_id = ?"
		args = append(args, threadID)
	}
	query += " GROUP BY s.id ORDER BY s.updated_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("archive: list sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Summary
	for rows.Next() {
		var sum Summary
		var updated, archived string
		if err := rows.Scan(&sum.SessionID, &sum.ThreadID, &sum.Topic, &sum.Mode, &sum.Status,
			&sum.Iterations, &sum.FinalQuality, &sum.ExchangeCount, &updated, &archived); err != nil {
			return nil, err
		}
		sum.UpdatedAt = parseTime(updated)
		sum.ArchivedAt = parseTime(archived)
		out = append(out, sum)
	}
	return out, rows.Err()
}

// Search runs a full-text query over archived exchange content, best match
// first. An empty query returns nothing.
func (s *Store) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	ftsQuery := sanitizeFTS(query)
	if ftsQuery == "" {
		return nil, nil
	}
	limit = s.clampLimit(limit)

	rows, err := s.db.QueryContext(ctx, `
		SELECT e.session_id, s.thread_id, s.topic, e.agent, e.iteration, e.turn,
		       snippet(exchanges_fts, 0, '**', '**', '...', 16), fts.rank
		FROM exchanges_fts fts
		JOIN exchanges e ON e.id = fts.rowid
		JOIN sessions s ON s.id = e.session_id
		WHERE exchanges_fts MATCH ?
		ORDER BY fts.rank LIMIT ?`, ftsQuery, limit)
	if err != nil {
		return nil, fmt.Errorf("archive: search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.SessionID, &r.ThreadID, &r.Topic, &r.Agent, &r.Iteration, &r.Turn,
			&r.Snippet, &r.Rank); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func (s *Store) clampLimit(limit int) int {
	if limit <= 0 {
		limit = 10
	}
	if limit > s.cfg.MaxSearchResults {
		limit = s.cfg.MaxSearchResults
	}
	return limit
}

// sanitizeFTS wraps each word in quotes for safe FTS5 queries.
// "rollout risk" → `"rollout" "risk"`
func sanitizeFTS(query string) string {
	var words []string
	for _, w := range strings.Fields(query) {
		w = strings.ReplaceAll(w, `"`, "")
		if w != "" {
			words = append(words, `"`+w+`"`)
		}
	}
	return strings.Join(words, " ")
}

// timeNow is a package-level var to allow test injection.
var timeNow = func() time.Time { return time.Now().UTC() }

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
