package db

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openMemory(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	_, err = db.Exec("PRAGMA foreign_keys = ON")
	require.NoError(t, err)
	return db
}

func TestMigrateCreatesTables(t *testing.T) {
	db := openMemory(t)
	require.NoError(t, Migrate(db, nil))

	for _, table := range []string{"schema_migrations", "presentations", "slides", "report_jobs", "report_executions"} {
		var n int
		err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&n)
		require.NoError(t, err)
		assert.Equal(t, 1, n, "table %s should exist", table)
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := openMemory(t)
	require.NoError(t, Migrate(db, nil))
	require.NoError(t, Migrate(db, nil))

	versions, err := AppliedVersions(db)
	require.NoError(t, err)

	files, err := migrationFiles()
	require.NoError(t, err)
	assert.Len(t, versions, len(files))
	assert.Equal(t, "000", versions[0])
}

func TestReportJobsRejectsBrokenBinding(t *testing.T) {
	db := openMemory(t)
	require.NoError(t, Migrate(db, nil))

	insert := `INSERT INTO report_jobs (id, name, content_kind, presentation_id, template_id,
		schedule_kind, cron_expression, recipients, email_template, state, created_at, updated_at)
		VALUES (?, 'n', ?, ?, ?, 'one_time', NULL, '{}', '{}', 'draft', 'now', 'now')`

	_, err := db.Exec(insert, "RJ_ok", "report", "P1", nil)
	require.NoError(t, err)

	_, err = db.Exec(insert, "RJ_both", "report", "P1", "T1")
	assert.Error(t, err, "both ids set must violate the binding check")

	_, err = db.Exec(insert, "RJ_none", "template", nil, nil)
	assert.Error(t, err, "missing template id must violate the binding check")
}

func TestReportJobsRejectsCronOnOneTime(t *testing.T) {
	db := openMemory(t)
	require.NoError(t, Migrate(db, nil))

	_, err := db.Exec(`INSERT INTO report_jobs (id, name, content_kind, presentation_id,
		schedule_kind, cron_expression, recipients, email_template, state, created_at, updated_at)
		VALUES ('RJ_1', 'n', 'report', 'P1', 'one_time', '0 9 * * 1', '{}', '{}', 'draft', 'now', 'now')`)
	assert.Error(t, err)
}

func TestOpenWithMigrationsAndStats(t *testing.T) {
	db, err := OpenWithMigrations(filepath.Join(t.TempDir(), "test.db"), nil)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`INSERT INTO presentations (id, name, created_at, updated_at) VALUES ('P1', 'Weekly', 'now', 'now')`)
	require.NoError(t, err)

	stats, err := Stats(db)
	require.NoError(t, err)
	require.Len(t, stats, 4)
	assert.Equal(t, TableStat{Table: "presentations", Rows: 1}, stats[0])
	assert.Equal(t, int64(0), stats[2].Rows)
}
