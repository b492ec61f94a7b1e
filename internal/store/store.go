package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	_ "github.com/mattn/go-sqlite3"
)

// Store owns the embedded SQLite event database. It is single-writer: all
// inserts happen on the background refresh worker.
type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time

	openedModTime time.Time
}

// Open creates the database directory if needed, opens the file, and
// initializes the schema. A failure here is the one loud initialization
// error the engine surfaces.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("store: creating DB dir: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("store: opening DB: %w", err)
	}
	if err := configureSQLiteConnection(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: configuring DB: %w", err)
	}

	s := New(db)
	s.path = path
	if err := s.Init(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	if info, statErr := os.Stat(path); statErr == nil {
		s.openedModTime = info.ModTime()
	}
	return s, nil
}

func New(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Init(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS usage_events (
			event_id TEXT PRIMARY KEY,
			timestamp TEXT NOT NULL,
			session_id TEXT NOT NULL,
			model TEXT NOT NULL,
			project TEXT NOT NULL,
			input_tokens INTEGER NOT NULL,
			output_tokens INTEGER NOT NULL,
			cache_write_tokens INTEGER NOT NULL,
			cache_read_tokens INTEGER NOT NULL,
			cost_usd REAL NOT NULL,
			dedupe_key TEXT NOT NULL UNIQUE,
			ingested_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_usage_events_timestamp ON usage_events(timestamp);`,
		`CREATE INDEX IF NOT EXISTS idx_usage_events_session ON usage_events(session_id, timestamp);`,
		`CREATE INDEX IF NOT EXISTS idx_usage_events_project ON usage_events(project);`,
		`CREATE TABLE IF NOT EXISTS ingest_sources (
			path TEXT PRIMARY KEY,
			last_event_at TEXT,
			file_mtime TEXT,
			scanned_at TEXT NOT NULL
		);`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store: init schema: %w", err)
		}
	}
	return nil
}

// InsertBatch writes events in a single transaction, ignoring any row whose
// dedupe key is already present. Batch size bounds write amplification only;
// semantics do not depend on it.
func (s *Store) InsertBatch(ctx context.Context, events []UsageEvent) (BatchResult, error) {
	result := BatchResult{Submitted: len(events)}
	if len(events) == 0 {
		return result, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return result, fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO usage_events (
			event_id, timestamp, session_id, model, project,
			input_tokens, output_tokens, cache_write_tokens, cache_read_tokens,
			cost_usd, dedupe_key, ingested_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(dedupe_key) DO NOTHING
	`)
	if err != nil {
		return result, fmt.Errorf("store: prepare insert: %w", err)
	}
	defer stmt.Close()

	ingestedAt := s.now().UTC().Format(time.RFC3339Nano)
	for _, event := range events {
		res, execErr := stmt.ExecContext(ctx,
			uuid.NewString(),
			event.Timestamp.UTC().Format(time.RFC3339Nano),
			event.SessionID,
			event.Model,
			event.Project,
			event.InputTokens,
			event.OutputTokens,
			event.CacheWriteTokens,
			event.CacheReadTokens,
			event.CostUSD,
			event.DedupeKey,
			ingestedAt,
		)
		if execErr != nil {
			return result, fmt.Errorf("store: insert event: %w", execErr)
		}
		affected, _ := res.RowsAffected()
		if affected > 0 {
			result.Inserted++
		} else {
			result.Deduped++
		}
	}

	if err := tx.Commit(); err != nil {
		return result, fmt.Errorf("store: commit tx: %w", err)
	}
	return result, nil
}

// ListEvents returns every event ordered by timestamp ascending. The
// aggregation pipeline builds all rollups from this single consistent read.
func (s *Store) ListEvents(ctx context.Context) ([]UsageEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT timestamp, session_id, model, project,
		       input_tokens, output_tokens, cache_write_tokens, cache_read_tokens,
		       cost_usd, dedupe_key
		FROM usage_events
		ORDER BY timestamp ASC, dedupe_key ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("store: list events: %w", err)
	}
	defer rows.Close()

	var out []UsageEvent
	for rows.Next() {
		var (
			event UsageEvent
			raw   string
		)
		if err := rows.Scan(
			&raw,
			&event.SessionID,
			&event.Model,
			&event.Project,
			&event.InputTokens,
			&event.OutputTokens,
			&event.CacheWriteTokens,
			&event.CacheReadTokens,
			&event.CostUSD,
			&event.DedupeKey,
		); err != nil {
			return nil, fmt.Errorf("store: scan event: %w", err)
		}
		ts, parseErr := time.Parse(time.RFC3339Nano, raw)
		if parseErr != nil {
			continue
		}
		event.Timestamp = ts
		out = append(out, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate events: %w", err)
	}
	return out, nil
}

// SourceCutoff returns the last ingested event timestamp and recorded file
// mtime for a log file, or zero values when the file has never been scanned.
func (s *Store) SourceCutoff(ctx context.Context, path string) (SourceState, error) {
	var (
		state      SourceState
		lastEvent  sql.NullString
		fileMtime  sql.NullString
		scannedRaw string
	)
	state.Path = path
	err := s.db.QueryRowContext(ctx, `
		SELECT last_event_at, file_mtime, scanned_at FROM ingest_sources WHERE path = ?
	`, path).Scan(&lastEvent, &fileMtime, &scannedRaw)
	if err == sql.ErrNoRows {
		return state, nil
	}
	if err != nil {
		return state, fmt.Errorf("store: source cutoff: %w", err)
	}
	if lastEvent.Valid {
		if ts, parseErr := time.Parse(time.RFC3339Nano, lastEvent.String); parseErr == nil {
			state.LastEventAt = ts
		}
	}
	if fileMtime.Valid {
		if ts, parseErr := time.Parse(time.RFC3339Nano, fileMtime.String); parseErr == nil {
			state.FileModTime = ts
		}
	}
	if ts, parseErr := time.Parse(time.RFC3339Nano, scannedRaw); parseErr == nil {
		state.ScannedAt = ts
	}
	return state, nil
}

// RecordSource upserts the bookkeeping row for a scanned log file.
func (s *Store) RecordSource(ctx context.Context, state SourceState) error {
	var lastEvent interface{}
	if !state.LastEventAt.IsZero() {
		lastEvent = state.LastEventAt.UTC().Format(time.RFC3339Nano)
	}
	var mtime interface{}
	if !state.FileModTime.IsZero() {
		mtime = state.FileModTime.UTC().Format(time.RFC3339Nano)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ingest_sources (path, last_event_at, file_mtime, scanned_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			last_event_at = COALESCE(excluded.last_event_at, last_event_at),
			file_mtime = excluded.file_mtime,
			scanned_at = excluded.scanned_at
	`, state.Path, lastEvent, mtime, s.now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("store: record source: %w", err)
	}
	return nil
}

// Reset deletes all events and scan bookkeeping. This is the explicit
// full-reset operation; nothing else ever deletes rows.
func (s *Store) Reset(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: reset begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		`DELETE FROM usage_events`,
		`DELETE FROM ingest_sources`,
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store: reset: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: reset commit: %w", err)
	}
	return nil
}

func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var (
		stats Stats
		first sql.NullString
		last  sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COUNT(DISTINCT session_id),
		       COUNT(DISTINCT project),
		       MIN(timestamp),
		       MAX(timestamp)
		FROM usage_events
	`).Scan(&stats.EventCount, &stats.SessionCount, &stats.ProjectCount, &first, &last)
	if err != nil {
		return stats, fmt.Errorf("store: stats: %w", err)
	}
	if first.Valid {
		if ts, parseErr := time.Parse(time.RFC3339Nano, first.String); parseErr == nil {
			stats.FirstEventAt = ts
		}
	}
	if last.Valid {
		if ts, parseErr := time.Parse(time.RFC3339Nano, last.String); parseErr == nil {
			stats.LastEventAt = ts
		}
	}
	return stats, nil
}

// StaleSince reports whether the store file on disk has been modified after
// the store was opened. External readers sharing the DB file poll this and
// re-open when it returns true; writes are eventually consistent for them.
func (s *Store) StaleSince() bool {
	if s == nil || strings.TrimSpace(s.path) == "" {
		return false
	}
	info, err := os.Stat(s.path)
	if err != nil {
		return false
	}
	return info.ModTime().After(s.openedModTime)
}

// DefaultDBPath places the store under the XDG state dir, matching where
// the rest of the tool keeps mutable state.
func DefaultDBPath() (string, error) {
	if base := strings.TrimSpace(os.Getenv("XDG_STATE_HOME")); base != "" {
		return filepath.Join(base, "tokenledger", "usage.db"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("store: resolve home dir: %w", err)
	}
	return filepath.Join(home, ".local", "state", "tokenledger", "usage.db"), nil
}
