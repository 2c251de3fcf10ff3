// Package db provides database connection helpers, schema migration, and small data access helpers.
//
// Two backends are supported behind database/sql: a local SQLite file (the default, via
// modernc.org/sqlite) and PostgreSQL (via pgx) when DB_DSN is a postgres:// URL.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx postgres driver registered as 'pgx'
	_ "modernc.org/sqlite"             // pure-go sqlite driver registered as 'sqlite'

	"github.com/leojscalabrin/glorpinia-AI/crypto"
)

// DefaultDSN is the SQLite file used when DB_DSN is unset.
const DefaultDSN = "glorpinia_cookies.db"

// Dialect identifies the SQL flavour behind a DB handle.
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

// DB is a *sql.DB that remembers its dialect so queries written with '?' placeholders
// can be rebound for PostgreSQL.
type DB struct {
	*sql.DB
	Dialect Dialect
	// Tokens seals OAuth tokens at rest. Nil stores them in plaintext.
	Tokens *crypto.TokenCipher
}

// DialectFor picks the dialect from a DSN.
func DialectFor(dsn string) Dialect {
	lower := strings.ToLower(strings.TrimSpace(dsn))
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") {
		return Postgres
	}
	return SQLite
}

// Open opens and pings a database. SQLite handles are limited to a single connection so
// that writers queue in the pool instead of failing with SQLITE_BUSY.
func Open(dsn string) (*DB, error) {
	dialect := DialectFor(dsn)
	var (
		sqlDB *sql.DB
		err   error
	)
	switch dialect {
	case Postgres:
		sqlDB, err = sql.Open("pgx", dsn)
	default:
		sqlDB, err = openSQLite(dsn)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", dialect, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping %s database: %w", dialect, err)
	}
	return &DB{DB: sqlDB, Dialect: dialect}, nil
}

func openSQLite(path string) (*sql.DB, error) {
	path = strings.TrimPrefix(path, "sqlite://")
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	if path != ":memory:" {
		path = filepath.Clean(path)
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create database dir: %w", err)
			}
		}
	}
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_txlock=immediate"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	return sqlDB, nil
}

// Rebind rewrites '?' placeholders into '$1..$N' when talking to PostgreSQL.
func (d *DB) Rebind(query string) string {
	return Rebind(d.Dialect, query)
}

// Rebind rewrites '?' placeholders for the given dialect.
func Rebind(dialect Dialect, query string) string {
	if dialect != Postgres || !strings.Contains(query, "?") {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// ToMillis converts a time to unix milliseconds in UTC.
func ToMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

// FromMillis converts unix milliseconds to a UTC time. Zero maps to the zero time.
func FromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

// UpsertOAuthToken stores or updates an OAuth token for a provider (e.g. the bot's twitch login).
// Tokens are sealed first when dbx.Tokens is set.
func UpsertOAuthToken(ctx context.Context, dbx *DB, provider, access, refresh string, expiry time.Time, scope string) error {
	q := dbx.Rebind(`INSERT INTO oauth_tokens (provider, access_token, refresh_token, expires_at, scope, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (provider) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			expires_at = excluded.expires_at,
			scope = excluded.scope,
			updated_at = excluded.updated_at`)
	if dbx.Tokens != nil {
		var err error
		if access, err = dbx.Tokens.Seal(access); err != nil {
			return fmt.Errorf("encrypt access token: %w", err)
		}
		if refresh, err = dbx.Tokens.Seal(refresh); err != nil {
			return fmt.Errorf("encrypt refresh token: %w", err)
		}
	}
	_, err := dbx.ExecContext(ctx, q, provider, access, refresh, ToMillis(expiry), scope, ToMillis(time.Now()))
	if err != nil {
		return fmt.Errorf("upsert oauth token %s: %w", provider, err)
	}
	return nil
}

// GetOAuthToken retrieves a stored token row; returns zero values if not found.
// Plaintext rows written before a key was configured are returned as is.
func GetOAuthToken(ctx context.Context, dbx *DB, provider string) (access, refresh string, expiry time.Time, scope string, err error) {
	var expMillis int64
	row := dbx.QueryRowContext(ctx, dbx.Rebind(`SELECT access_token, refresh_token, expires_at, scope FROM oauth_tokens WHERE provider = ?`), provider)
	err = row.Scan(&access, &refresh, &expMillis, &scope)
	if err == sql.ErrNoRows {
		return "", "", time.Time{}, "", nil
	}
	if err != nil {
		return "", "", time.Time{}, "", fmt.Errorf("get oauth token %s: %w", provider, err)
	}
	if crypto.IsSealed(access) || crypto.IsSealed(refresh) {
		if dbx.Tokens == nil {
			return "", "", time.Time{}, "", fmt.Errorf("oauth token %s is encrypted but ENCRYPTION_KEY is not set", provider)
		}
		if access, err = dbx.Tokens.Open(access); err != nil {
			return "", "", time.Time{}, "", fmt.Errorf("decrypt access token %s: %w", provider, err)
		}
		if refresh, err = dbx.Tokens.Open(refresh); err != nil {
			return "", "", time.Time{}, "", fmt.Errorf("decrypt refresh token %s: %w", provider, err)
		}
	}
	return access, refresh, FromMillis(expMillis), scope, nil
}
