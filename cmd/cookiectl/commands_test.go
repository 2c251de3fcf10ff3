package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() { color.NoColor = true }

func executeCLI(t *testing.T, dsn string, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	if dsn != "" {
		args = append([]string{"--dsn", dsn}, args...)
	}
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func tempDSN(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "cookies.db")
}

func TestGiveTakeBalance(t *testing.T) {
	dsn := tempDSN(t)

	out, _, err := executeCLI(t, dsn, "give", "@Alice", "40")
	require.NoError(t, err)
	assert.Contains(t, out, "alice +40 🍪 (balance 40)")

	out, _, err = executeCLI(t, dsn, "take", "alice", "100")
	require.NoError(t, err)
	assert.Contains(t, out, "only 40 of 100 available")
	assert.Contains(t, out, "alice -40 🍪 (balance 0)")

	out, _, err = executeCLI(t, dsn, "balance", "glorpinia")
	require.NoError(t, err)
	assert.Contains(t, out, "glorpinia: 40 🍪")

	out, _, err = executeCLI(t, dsn, "supply")
	require.NoError(t, err)
	assert.Contains(t, out, "total supply: 40 🍪")
}

func TestHouseFlag(t *testing.T) {
	dsn := tempDSN(t)
	_, _, err := executeCLI(t, dsn, "give", "alice", "10")
	require.NoError(t, err)
	_, _, err = executeCLI(t, dsn, "--house", "casino", "take", "alice", "4")
	require.NoError(t, err)

	out, _, err := executeCLI(t, dsn, "balance", "casino")
	require.NoError(t, err)
	assert.Contains(t, out, "casino: 4 🍪")

	_, _, err = executeCLI(t, dsn, "--house", "casino", "take", "casino", "1")
	require.Error(t, err)
}

func TestRejectsInvalidInput(t *testing.T) {
	dsn := tempDSN(t)
	tests := [][]string{
		{"give", "alice", "0"},
		{"give", "alice", "-5"},
		{"give", "alice", "many"},
		{"give", "nightbot", "5"},
		{"balance", "usuario"},
		{"take", "bad name!", "1"},
		{"balance"},
	}
	for _, args := range tests {
		t.Run(strings.Join(args, " "), func(t *testing.T) {
			_, _, err := executeCLI(t, dsn, args...)
			require.Error(t, err)
		})
	}
}

func TestTopAndHistory(t *testing.T) {
	dsn := tempDSN(t)

	out, _, err := executeCLI(t, dsn, "top")
	require.NoError(t, err)
	assert.Contains(t, out, "no accounts yet")

	for _, args := range [][]string{{"give", "alice", "120"}, {"give", "bob", "80"}, {"give", "carol", "5"}, {"take", "bob", "30"}} {
		_, _, err := executeCLI(t, dsn, args...)
		require.NoError(t, err)
	}

	out, _, err = executeCLI(t, dsn, "top", "-n", "2")
	require.NoError(t, err)
	assert.Contains(t, out, " 1. alice (120)")
	assert.Contains(t, out, " 2. bob (50)")
	assert.NotContains(t, out, "carol")
	assert.NotContains(t, out, "glorpinia")

	out, _, err = executeCLI(t, dsn, "history", "bob")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "-30")
	assert.Contains(t, lines[0], "admin_take")
	assert.Contains(t, lines[1], "+80")
	assert.Contains(t, lines[1], "admin_grant")
}

func TestBonus(t *testing.T) {
	dsn := tempDSN(t)
	_, _, err := executeCLI(t, dsn, "give", "alice", "1")
	require.NoError(t, err)
	_, _, err = executeCLI(t, dsn, "give", "bob", "1")
	require.NoError(t, err)

	out, _, err := executeCLI(t, dsn, "bonus", "--amount", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "credited 5 🍪 to 2 accounts")

	out, _, err = executeCLI(t, dsn, "balance", "bob")
	require.NoError(t, err)
	assert.Contains(t, out, "bob: 6 🍪")

	_, _, err = executeCLI(t, dsn, "bonus", "--amount", "0")
	require.Error(t, err)
}

func TestMigrate(t *testing.T) {
	dsn := tempDSN(t)

	out, _, err := executeCLI(t, dsn, "migrate", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "schema version 0")

	out, _, err = executeCLI(t, dsn, "migrate", "up")
	require.NoError(t, err)
	assert.NotContains(t, out, "schema version 0")
	assert.NotContains(t, out, "dirty")

	out, _, err = executeCLI(t, dsn, "migrate", "down")
	require.NoError(t, err)
	assert.Contains(t, out, "schema version")
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/healthz" {
			http.Error(w, "unhealthy", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	out, _, err := executeCLI(t, "", "health", "--url", srv.URL+"/healthz")
	require.NoError(t, err)
	assert.Contains(t, out, "healthy")

	_, _, err = executeCLI(t, "", "health", "--url", srv.URL+"/down")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}
