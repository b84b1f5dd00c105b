package history

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/ajxudir/asttest/pkg/constants"
	"github.com/ajxudir/asttest/pkg/suite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// TestRecordAndLatest tests that recorded entries come back newest first.
func TestRecordAndLatest(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	results := []suite.TestResult{
		{Name: "sip/options", Status: constants.StatusPassed, Passed: true, Duration: 1500 * time.Millisecond, StartedAt: base},
		{Name: "sip/options", Status: constants.StatusTimedOut, TimedOut: true, Duration: 30 * time.Second,
			Reasons: []string{"Reactor timeout: '30s'"}, StartedAt: base.Add(time.Hour)},
		{Name: "channels/basic", Status: constants.StatusFailed, Duration: time.Second,
			Reasons: []string{"Test Condition channel failed", "Fail token present: x"}, StartedAt: base.Add(2 * time.Hour)},
	}
	for _, tr := range results {
		id, err := s.Record(ctx, NewEntry("run-1", "13.1.0", tr))
		require.NoError(t, err)
		assert.Positive(t, id)
	}

	all, err := s.Latest(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "channels/basic", all[0].Name)
	assert.Equal(t, []string{"Test Condition channel failed", "Fail token present: x"}, all[0].Reasons)
	assert.Equal(t, "13.1.0", all[0].AstVersion)
	assert.Equal(t, "run-1", all[0].RunID)

	opts, err := s.Latest(ctx, "sip/options", 10)
	require.NoError(t, err)
	require.Len(t, opts, 2)
	assert.True(t, opts[0].TimedOut)
	assert.False(t, opts[0].Passed)
	assert.Equal(t, 30*time.Second, opts[0].Duration)
	assert.True(t, opts[1].Passed)
	assert.Empty(t, opts[1].Reasons)
	assert.True(t, opts[1].StartedAt.Equal(base))

	limited, err := s.Latest(ctx, "", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

// TestOpen_MigratesOldSchema tests upgrading a database created before ast_version existed.
func TestOpen_MigratesOldSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = db.Exec(`
CREATE TABLE schema_version (version INTEGER NOT NULL);
INSERT INTO schema_version (version) VALUES (1);
CREATE TABLE test_results (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id      TEXT    NOT NULL,
	name        TEXT    NOT NULL,
	status      TEXT    NOT NULL DEFAULT '',
	passed      INTEGER NOT NULL,
	timed_out   INTEGER NOT NULL DEFAULT 0,
	duration_ms INTEGER NOT NULL,
	reasons     TEXT    NOT NULL DEFAULT '[]',
	started_at  TEXT    NOT NULL
);
INSERT INTO test_results (run_id, name, passed, duration_ms, started_at)
VALUES ('old', 'legacy/test', 1, 250, '2025-01-01T00:00:00.000Z');`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	var version int
	require.NoError(t, s.db.QueryRow("SELECT MAX(version) FROM schema_version").Scan(&version))
	assert.Equal(t, schemaVersion, version)

	entries, err := s.Latest(context.Background(), "legacy/test", 5)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "", entries[0].AstVersion)
	assert.Equal(t, 250*time.Millisecond, entries[0].Duration)

	_, err = s.Record(context.Background(), NewEntry("new", "18.0.0", suite.TestResult{Name: "legacy/test", Passed: true}))
	assert.NoError(t, err)
}

// TestOpen_NewerSchema tests that a database from a newer build is refused.
func TestOpen_NewerSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "new.db")
	s, err := Open(path)
	require.NoError(t, err)
	_, err = s.db.Exec("UPDATE schema_version SET version = 99")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = Open(path)
	assert.ErrorContains(t, err, "newer than this build supports")
}
