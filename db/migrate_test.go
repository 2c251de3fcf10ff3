package db

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunMigrationsIdempotent(t *testing.T) {
	dbx, err := Open(filepath.Join(t.TempDir(), "cookies.db"))
	require.NoError(t, err)
	defer dbx.Close()

	require.NoError(t, RunMigrations(dbx))
	require.NoError(t, RunMigrations(dbx), "second run should be a no-op")

	for _, table := range []string{"user_cookies", "cookie_ledger", "oauth_tokens"} {
		var name string
		err := dbx.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		require.NoError(t, err, "table %s missing", table)
	}

	version, dirty, err := MigrationVersion(dbx)
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.EqualValues(t, 3, version)
}

func TestMigrateDownOneStep(t *testing.T) {
	dbx, err := Open(filepath.Join(t.TempDir(), "cookies.db"))
	require.NoError(t, err)
	defer dbx.Close()

	require.NoError(t, RunMigrations(dbx))
	require.NoError(t, MigrateDown(dbx))

	version, dirty, err := MigrationVersion(dbx)
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.EqualValues(t, 2, version)

	var n int
	err = dbx.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'oauth_tokens'`).Scan(&n)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCheckConstraintRejectsNegativeBalance(t *testing.T) {
	dbx, err := Open(filepath.Join(t.TempDir(), "cookies.db"))
	require.NoError(t, err)
	defer dbx.Close()
	require.NoError(t, RunMigrations(dbx))

	_, err = dbx.Exec(`INSERT INTO user_cookies (principal, balance, last_updated) VALUES ('alice', -1, 0)`)
	assert.Error(t, err)
}

func TestRunMigrationsPostgres(t *testing.T) {
	dsn := os.Getenv("TEST_PG_DSN")
	if dsn == "" {
		t.Skip("TEST_PG_DSN not set; skipping migration test")
	}
	dbx, err := Open(dsn)
	require.NoError(t, err)
	defer dbx.Close()

	require.NoError(t, RunMigrations(dbx))
	require.NoError(t, RunMigrations(dbx))

	var exists bool
	err = dbx.QueryRow(`SELECT EXISTS (SELECT FROM information_schema.tables WHERE table_name = $1)`, "cookie_ledger").Scan(&exists)
	require.NoError(t, err)
	assert.True(t, exists)
}
