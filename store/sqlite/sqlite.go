/*
Package sqlite provides a SQLite-backed implementation of generic.KV.

PURPOSE:
  Persists the payroll documents (roster, cycle store, ledger) in a single
  file so the service survives restarts without external infrastructure.

INTERFACES IMPLEMENTED:
  generic.KV: Versioned JSON documents

KEY TABLES:
  documents:    One row per key (value, version, updated_at)
  refresh_runs: History of scheduler passes (what normalization changed)

OPTIMISTIC WRITES:
  A versioned write is a single conditional statement:
    UPDATE documents SET ... WHERE key = ? AND version = ?
  Zero rows affected means another writer got there first and the call
  returns generic.ErrConcurrentModification. Because the check and the
  write are one statement, this also holds across processes sharing the file.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety within the process.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging):
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./payroll.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  repo := payroll.NewRepository(store, payroll.DefaultKeys())

SEE ALSO:
  - generic/store.go: Interface definitions
  - generic/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/dagm95/CXinas-bakery-system/generic"
)

// Store implements generic.KV using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Payroll documents (roster, cycle store, ledger)
	CREATE TABLE IF NOT EXISTS documents (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		version INTEGER NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Scheduler passes
	CREATE TABLE IF NOT EXISTS refresh_runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		started_at TEXT NOT NULL,
		completed_at TEXT NOT NULL,
		status TEXT NOT NULL,
		seeded INTEGER NOT NULL DEFAULT 0,
		archived INTEGER NOT NULL DEFAULT 0,
		relabeled INTEGER NOT NULL DEFAULT 0,
		invalid INTEGER NOT NULL DEFAULT 0,
		error TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_refresh_runs_started
		ON refresh_runs(started_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// DOCUMENT STORE (generic.KV interface)
// =============================================================================

// Get returns the document under key and its version.
func (s *Store) Get(ctx context.Context, key string) ([]byte, generic.Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var value string
	var version int64
	err := s.db.QueryRowContext(ctx,
		`SELECT value, version FROM documents WHERE key = ?`, key,
	).Scan(&value, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return []byte(value), generic.Version(version), nil
}

// Set writes value if the stored version equals expected.
func (s *Store) Set(ctx context.Context, key string, value []byte, expected generic.Version) (generic.Version, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC().Format(time.RFC3339Nano)

	if expected == generic.AnyVersion {
		var version int64
		err := s.db.QueryRowContext(ctx, `
			INSERT INTO documents (key, value, version, updated_at)
			VALUES (?, ?, 1, ?)
			ON CONFLICT(key) DO UPDATE SET
				value = excluded.value,
				version = documents.version + 1,
				updated_at = excluded.updated_at
			RETURNING version
		`, key, string(value), now).Scan(&version)
		if err != nil {
			return 0, fmt.Errorf("failed to write %s: %w", key, err)
		}
		return generic.Version(version), nil
	}

	var res sql.Result
	var err error
	if expected == 0 {
		res, err = s.db.ExecContext(ctx, `
			INSERT INTO documents (key, value, version, updated_at)
			VALUES (?, ?, 1, ?)
			ON CONFLICT(key) DO NOTHING
		`, key, string(value), now)
	} else {
		res, err = s.db.ExecContext(ctx, `
			UPDATE documents SET value = ?, version = version + 1, updated_at = ?
			WHERE key = ? AND version = ?
		`, string(value), now, key, int64(expected))
	}
	if err != nil {
		return 0, fmt.Errorf("failed to write %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to write %s: %w", key, err)
	}
	if n == 0 {
		actual, _ := s.versionLocked(ctx, key)
		return actual, &generic.VersionConflictError{Key: key, Expected: expected, Actual: actual}
	}
	return expected + 1, nil
}

func (s *Store) versionLocked(ctx context.Context, key string) (generic.Version, error) {
	var version int64
	err := s.db.QueryRowContext(ctx, `SELECT version FROM documents WHERE key = ?`, key).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return generic.Version(version), err
}

// Keys lists the stored document keys.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT key FROM documents ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// =============================================================================
// REFRESH RUNS
// =============================================================================

// RefreshRun records one scheduler pass.
type RefreshRun struct {
	ID          int64
	StartedAt   time.Time
	CompletedAt time.Time
	Status      string // completed, failed
	Seeded      int
	Archived    int
	Relabeled   int
	Invalid     int
	Error       string
}

// SaveRefreshRun appends a scheduler pass.
func (s *Store) SaveRefreshRun(ctx context.Context, r RefreshRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_runs (started_at, completed_at, status, seeded, archived, relabeled, invalid, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.StartedAt.UTC().Format(time.RFC3339Nano), r.CompletedAt.UTC().Format(time.RFC3339Nano),
		r.Status, r.Seeded, r.Archived, r.Relabeled, r.Invalid, nullString(r.Error),
	)
	return err
}

// RecentRefreshRuns returns the latest scheduler passes, newest first.
func (s *Store) RecentRefreshRuns(ctx context.Context, limit int) ([]RefreshRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, completed_at, status, seeded, archived, relabeled, invalid, error
		FROM refresh_runs ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []RefreshRun
	for rows.Next() {
		var r RefreshRun
		var started, completed string
		var errText sql.NullString
		if err := rows.Scan(&r.ID, &started, &completed, &r.Status, &r.Seeded, &r.Archived, &r.Relabeled, &r.Invalid, &errText); err != nil {
			return nil, err
		}
		r.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
		r.CompletedAt, _ = time.Parse(time.RFC3339Nano, completed)
		r.Error = errText.String
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range []string{"documents", "refresh_runs"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
