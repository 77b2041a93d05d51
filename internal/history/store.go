// Package history persists hotkey changes to a local SQLite database so the
// settings UI can offer "recently used" bindings and undo material.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Entry is one recorded hotkey change.
type Entry struct {
	ID string `json:"id"`
	// Control identifies the setting that changed, e.g. "hotkey" for the
	// global accelerator or "viewer:transcript" for a viewer shortcut.
	Control string `json:"control"`
	// Accelerator is the canonical accelerator string; empty means cleared.
	Accelerator string    `json:"accelerator"`
	ChangedAt   time.Time `json:"changed_at"`
}

// Store is a bounded hotkey change log. All methods are safe for concurrent
// use; sql.DB serializes access to the underlying database.
type Store struct {
	db    *sql.DB
	limit int
}

const schema = `
CREATE TABLE IF NOT EXISTS hotkey_changes (
	id          TEXT PRIMARY KEY,
	control     TEXT NOT NULL,
	accelerator TEXT NOT NULL,
	changed_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_hotkey_changes_changed_at
	ON hotkey_changes (changed_at DESC);
`

// timeNowFn is a test seam for deterministic timestamps.
var timeNowFn = time.Now

// Open creates or opens the history database at path. limit bounds the number
// of retained rows; older rows are pruned as new ones are recorded.
func Open(path string, limit int) (*Store, error) {
	if path == "" {
		return nil, errors.New("history path required")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("history limit must be positive, got %d", limit)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("open history: mkdir: %w", err)
	}

	// busy_timeout covers the unlikely second process (e.g. a stale instance
	// shutting down) holding the write lock for a moment.
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(3000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			slog.Warn("[WARN-HISTORY] failed to close database after schema error", "error", closeErr)
		}
		return nil, fmt.Errorf("open history: schema: %w", err)
	}
	return &Store{db: db, limit: limit}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record appends a change row and prunes rows beyond the store's limit.
func (s *Store) Record(ctx context.Context, control string, accelerator string) (Entry, error) {
	if control == "" {
		return Entry{}, errors.New("history control id required")
	}

	entry := Entry{
		ID:          uuid.NewString(),
		Control:     control,
		Accelerator: accelerator,
		ChangedAt:   timeNowFn().UTC(),
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO hotkey_changes (id, control, accelerator, changed_at) VALUES (?, ?, ?, ?)`,
		entry.ID, entry.Control, entry.Accelerator, entry.ChangedAt.UnixNano(),
	)
	if err != nil {
		return Entry{}, fmt.Errorf("record hotkey change: %w", err)
	}

	if err := s.prune(ctx); err != nil {
		// The new row is already durable; retention overshoot fixes itself on
		// the next successful prune.
		slog.Warn("[WARN-HISTORY] prune failed", "error", err)
	}
	return entry, nil
}

// Recent returns up to limit entries, newest first. limit <= 0 means the
// store's retention limit.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 || limit > s.limit {
		limit = s.limit
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, control, accelerator, changed_at
		 FROM hotkey_changes
		 ORDER BY changed_at DESC, rowid DESC
		 LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query hotkey history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var entry Entry
		var changedAtNanos int64
		if err := rows.Scan(&entry.ID, &entry.Control, &entry.Accelerator, &changedAtNanos); err != nil {
			return nil, fmt.Errorf("scan hotkey history row: %w", err)
		}
		entry.ChangedAt = time.Unix(0, changedAtNanos).UTC()
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate hotkey history: %w", err)
	}
	return entries, nil
}

// LastForControl returns the newest entry for one control, or ok=false when
// the control has no history.
func (s *Store) LastForControl(ctx context.Context, control string) (Entry, bool, error) {
	var entry Entry
	var changedAtNanos int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, control, accelerator, changed_at
		 FROM hotkey_changes
		 WHERE control = ?
		 ORDER BY changed_at DESC, rowid DESC
		 LIMIT 1`, control).
		Scan(&entry.ID, &entry.Control, &entry.Accelerator, &changedAtNanos)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("query last hotkey change: %w", err)
	}
	entry.ChangedAt = time.Unix(0, changedAtNanos).UTC()
	return entry, true, nil
}

func (s *Store) prune(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM hotkey_changes WHERE rowid IN (
			SELECT rowid FROM hotkey_changes
			ORDER BY changed_at DESC, rowid DESC
			LIMIT -1 OFFSET ?
		)`, s.limit)
	return err
}
