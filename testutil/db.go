// Package testutil holds shared helpers for package tests: throwaway databases and a
// mock Twitch API server.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/leojscalabrin/glorpinia-AI/db"
)

// OpenTestDB opens a migrated SQLite database in a temp dir that is removed with the test.
func OpenTestDB(t *testing.T) *db.DB {
	t.Helper()
	dbx, err := db.Open(filepath.Join(t.TempDir(), "cookies.db"))
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = dbx.Close() })
	if err := db.RunMigrations(dbx); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	return dbx
}

// SetupTestDB connects to the PostgreSQL database named by TEST_PG_DSN, runs migrations
// and empties the ledger tables. It skips the test if TEST_PG_DSN is not set.
func SetupTestDB(t *testing.T) *db.DB {
	t.Helper()
	dsn := os.Getenv("TEST_PG_DSN")
	if dsn == "" {
		t.Skip("TEST_PG_DSN not set")
	}
	dbx, err := db.Open(dsn)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if err := db.RunMigrations(dbx); err != nil {
		_ = dbx.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}
	if _, err := dbx.Exec(`TRUNCATE user_cookies, cookie_ledger, oauth_tokens`); err != nil {
		_ = dbx.Close()
		t.Fatalf("failed to truncate tables: %v", err)
	}
	t.Cleanup(func() { _ = dbx.Close() })
	return dbx
}

// Balances returns every stored balance keyed by principal.
func Balances(t *testing.T, dbx *db.DB) map[string]int64 {
	t.Helper()
	rows, err := dbx.Query(`SELECT principal, balance FROM user_cookies`)
	if err != nil {
		t.Fatalf("query balances: %v", err)
	}
	defer rows.Close()
	out := map[string]int64{}
	for rows.Next() {
		var (
			p   string
			bal int64
		)
		if err := rows.Scan(&p, &bal); err != nil {
			t.Fatalf("scan balances: %v", err)
		}
		out[p] = bal
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("iterate balances: %v", err)
	}
	return out
}

// LogSums returns the sum of transaction log deltas per principal.
func LogSums(t *testing.T, dbx *db.DB) map[string]int64 {
	t.Helper()
	rows, err := dbx.Query(`SELECT principal, SUM(delta) FROM cookie_ledger GROUP BY principal`)
	if err != nil {
		t.Fatalf("query log sums: %v", err)
	}
	defer rows.Close()
	out := map[string]int64{}
	for rows.Next() {
		var (
			p   string
			sum int64
		)
		if err := rows.Scan(&p, &sum); err != nil {
			t.Fatalf("scan log sums: %v", err)
		}
		out[p] = sum
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("iterate log sums: %v", err)
	}
	return out
}
