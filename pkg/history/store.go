// Package history keeps the outcome of every test run in a SQLite
// database so flaky tests and regressions can be traced across runs.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ajxudir/asttest/pkg/suite"
	"github.com/ajxudir/asttest/pkg/verbose"

	_ "modernc.org/sqlite"
)

const schemaVersion = 2

const schema = `
CREATE TABLE schema_version (version INTEGER NOT NULL);

CREATE TABLE test_results (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id      TEXT    NOT NULL,
	name        TEXT    NOT NULL,
	status      TEXT    NOT NULL DEFAULT '',
	passed      INTEGER NOT NULL,
	timed_out   INTEGER NOT NULL DEFAULT 0,
	duration_ms INTEGER NOT NULL,
	reasons     TEXT    NOT NULL DEFAULT '[]',
	ast_version TEXT    NOT NULL DEFAULT '',
	started_at  TEXT    NOT NULL
);

CREATE INDEX idx_test_results_name ON test_results(name, started_at);
`

type migration struct {
	version int
	sql     string
}

var migrations = []migration{
	{2, `ALTER TABLE test_results ADD COLUMN ast_version TEXT NOT NULL DEFAULT ''`},
}

// timeFormat keeps sub-second precision so results of one run stay ordered.
const timeFormat = "2006-01-02T15:04:05.000Z"

// Entry is one recorded test result.
type Entry struct {
	ID         int64
	RunID      string
	Name       string
	Status     string
	Passed     bool
	TimedOut   bool
	Duration   time.Duration
	Reasons    []string
	AstVersion string
	StartedAt  time.Time
}

// NewEntry builds the entry for a test result of run runID against
// Asterisk astVersion.
func NewEntry(runID, astVersion string, tr suite.TestResult) Entry {
	started := tr.StartedAt
	if started.IsZero() {
		started = time.Now()
	}
	return Entry{
		RunID:      runID,
		Name:       tr.Name,
		Status:     tr.Status,
		Passed:     tr.Passed,
		TimedOut:   tr.TimedOut,
		Duration:   tr.Duration,
		Reasons:    tr.Reasons,
		AstVersion: astVersion,
		StartedAt:  started,
	}
}

// Store is a SQLite-backed result history.
type Store struct {
	db *sql.DB
}

// Open opens or creates the history database at path and brings its
// schema up to date.
//
// Parameters:
//   - path: Database file
//
// Returns:
//   - *Store: The open store; callers must Close it
//   - error: When the database cannot be opened or migrated
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate history db: %w", err)
	}
	verbose.Debugf("Opened history database %s", path)
	return &Store{db: db}, nil
}

func runMigrations(db *sql.DB) error {
	var hasSchemaTbl int
	if err := db.QueryRow(`SELECT count(*) FROM sqlite_master WHERE type='table' AND name='schema_version'`).Scan(&hasSchemaTbl); err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	if hasSchemaTbl == 0 {
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("apply base schema: %w", err)
		}
		if _, err := db.Exec("INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
			return fmt.Errorf("stamp schema version: %w", err)
		}
		return nil
	}

	var current int
	if err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("migration v%d begin: %w", m.version, err)
		}
		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration v%d: %w", m.version, err)
		}
		if _, err := tx.Exec("UPDATE schema_version SET version = ?", m.version); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration v%d version update: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migration v%d commit: %w", m.version, err)
		}
		current = m.version
	}

	if current > schemaVersion {
		return fmt.Errorf("history schema v%d is newer than this build supports (v%d)", current, schemaVersion)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record inserts e and returns its id.
func (s *Store) Record(ctx context.Context, e Entry) (int64, error) {
	reasons := e.Reasons
	if reasons == nil {
		reasons = []string{}
	}
	encoded, err := json.Marshal(reasons)
	if err != nil {
		return 0, fmt.Errorf("encode reasons: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO test_results (run_id, name, status, passed, timed_out, duration_ms, reasons, ast_version, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.RunID, e.Name, e.Status, boolToInt(e.Passed), boolToInt(e.TimedOut),
		e.Duration.Milliseconds(), string(encoded), e.AstVersion, formatTime(e.StartedAt))
	if err != nil {
		return 0, fmt.Errorf("record %s: %w", e.Name, err)
	}
	return res.LastInsertId()
}

// Latest returns up to limit entries, newest first. A non-empty name
// restricts the result to that test.
func (s *Store) Latest(ctx context.Context, name string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	where := "1=1"
	var args []any
	if name != "" {
		where += " AND name=?"
		args = append(args, name)
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, name, status, passed, timed_out, duration_ms, reasons, ast_version, started_at
		 FROM test_results WHERE `+where+` ORDER BY started_at DESC, id DESC LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var passed, timedOut int
		var durationMs int64
		var reasons, startedAt string
		if err := rows.Scan(&e.ID, &e.RunID, &e.Name, &e.Status, &passed, &timedOut,
			&durationMs, &reasons, &e.AstVersion, &startedAt); err != nil {
			return nil, err
		}
		e.Passed = passed != 0
		e.TimedOut = timedOut != 0
		e.Duration = time.Duration(durationMs) * time.Millisecond
		e.StartedAt = parseTime(startedAt)
		if err := json.Unmarshal([]byte(reasons), &e.Reasons); err != nil {
			verbose.Debugf("Unreadable reasons for history entry %d: %v", e.ID, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeFormat, s)
	return t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
