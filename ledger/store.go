package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/leojscalabrin/glorpinia-AI/db"
)

// maxTransferAttempts bounds the compare-and-swap retry loop of Transfer.
const maxTransferAttempts = 8

// errStaleBalance signals that the balance changed between the read and the guarded update.
var errStaleBalance = errors.New("stale balance")

// Entry is one row of the leaderboard.
type Entry struct {
	Principal string `json:"principal"`
	Balance   int64  `json:"balance"`
}

// LogEntry is one row of the append-only transaction log.
type LogEntry struct {
	GroupID   string    `json:"group_id"`
	Principal string    `json:"principal"`
	Delta     int64     `json:"delta"`
	Reason    Reason    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

type posting struct {
	principal string
	delta     int64
}

// Store is the SQL-backed balance table plus its transaction log. Every method returns
// storage errors to the caller; principals are expected to be validated already.
type Store struct {
	db  *db.DB
	now func() time.Time
	// beforeDebit runs between the balance read and the guarded update of Transfer.
	beforeDebit func(ctx context.Context, tx *sql.Tx) error
}

// NewStore wraps an open, migrated database.
func NewStore(dbx *db.DB) *Store {
	return &Store{db: dbx, now: time.Now}
}

// Balance returns the stored balance, or 0 when the principal has no row.
func (s *Store) Balance(ctx context.Context, principal string) (int64, error) {
	var bal int64
	err := s.db.QueryRowContext(ctx, s.db.Rebind(`SELECT balance FROM user_cookies WHERE principal = ?`), principal).Scan(&bal)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("select balance: %w", err)
	}
	return bal, nil
}

// Credit adds amount to principal, creating the row if needed, and logs it.
func (s *Store) Credit(ctx context.Context, principal string, amount int64, reason Reason) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	now := db.ToMillis(s.now())
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.credit(ctx, tx, principal, amount, now); err != nil {
			return err
		}
		return s.appendEntries(ctx, tx, reason, now, posting{principal, amount})
	})
}

// Transfer moves up to amount from one principal to another inside one transaction and
// returns the quantity moved. With exact set, a balance below amount fails with
// ErrInsufficientFunds and nothing moves; otherwise the debit is clamped to the balance.
//
// The debit is a compare-and-swap on the balance that was read, so a concurrent writer
// makes the update miss and the whole transaction is retried.
func (s *Store) Transfer(ctx context.Context, from, to string, amount int64, exact bool, reason Reason) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	for attempt := 0; attempt < maxTransferAttempts; attempt++ {
		var moved int64
		now := db.ToMillis(s.now())
		err := s.withTx(ctx, func(tx *sql.Tx) error {
			var bal int64
			err := tx.QueryRowContext(ctx, s.db.Rebind(`SELECT balance FROM user_cookies WHERE principal = ?`), from).Scan(&bal)
			if err != nil && !errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("select balance: %w", err)
			}
			if exact && bal < amount {
				return ErrInsufficientFunds
			}
			take := min(bal, amount)
			if take <= 0 {
				return nil
			}
			if s.beforeDebit != nil {
				if err := s.beforeDebit(ctx, tx); err != nil {
					return err
				}
			}
			res, err := tx.ExecContext(ctx, s.db.Rebind(`UPDATE user_cookies SET balance = balance - ?, last_updated = ?
				WHERE principal = ? AND balance = ?`), take, now, from, bal)
			if err != nil {
				return fmt.Errorf("debit %s: %w", from, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("debit %s rows: %w", from, err)
			}
			if n == 0 {
				return errStaleBalance
			}
			if err := s.credit(ctx, tx, to, take, now); err != nil {
				return err
			}
			if err := s.appendEntries(ctx, tx, reason, now, posting{from, -take}, posting{to, take}); err != nil {
				return err
			}
			moved = take
			return nil
		})
		if errors.Is(err, errStaleBalance) {
			continue
		}
		if err != nil {
			return 0, err
		}
		return moved, nil
	}
	return 0, ErrConflict
}

// ApplyBonus credits amount to every stored account in one bulk update and returns the
// number of accounts touched. Accounts the bonus would overflow are skipped and not logged.
func (s *Store) ApplyBonus(ctx context.Context, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	now := db.ToMillis(s.now())
	ceiling := math.MaxInt64 - amount
	var touched int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		// Log first: the ceiling selects the same rows before the update moves them.
		_, err := tx.ExecContext(ctx, s.db.Rebind(`INSERT INTO cookie_ledger (group_id, principal, delta, reason, created_at)
			SELECT CAST(? AS TEXT), principal, CAST(? AS BIGINT), CAST(? AS TEXT), CAST(? AS BIGINT)
			FROM user_cookies WHERE balance <= CAST(? AS BIGINT)`),
			uuid.NewString(), amount, string(ReasonDailyBonus), now, ceiling)
		if err != nil {
			return fmt.Errorf("bulk bonus log: %w", err)
		}
		res, err := tx.ExecContext(ctx, s.db.Rebind(`UPDATE user_cookies SET balance = balance + ?, last_updated = ?
			WHERE balance <= ?`), amount, now, ceiling)
		if err != nil {
			return fmt.Errorf("bulk bonus: %w", err)
		}
		if touched, err = res.RowsAffected(); err != nil {
			return fmt.Errorf("bulk bonus rows: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return touched, nil
}

// Leaderboard returns the top limit accounts by balance, ties broken by principal,
// skipping the excluded principals.
func (s *Store) Leaderboard(ctx context.Context, limit int, exclude []string) ([]Entry, error) {
	var (
		q    strings.Builder
		args = make([]any, 0, len(exclude)+1)
	)
	q.WriteString(`SELECT principal, balance FROM user_cookies`)
	if len(exclude) > 0 {
		q.WriteString(` WHERE principal NOT IN (`)
		for i, p := range exclude {
			if i > 0 {
				q.WriteString(", ")
			}
			q.WriteString("?")
			args = append(args, p)
		}
		q.WriteString(`)`)
	}
	q.WriteString(` ORDER BY balance DESC, principal ASC LIMIT ?`)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, s.db.Rebind(q.String()), args...)
	if err != nil {
		return nil, fmt.Errorf("query leaderboard: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Principal, &e.Balance); err != nil {
			return nil, fmt.Errorf("scan leaderboard: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// History returns the newest limit log rows for principal.
func (s *Store) History(ctx context.Context, principal string, limit int) ([]LogEntry, error) {
	rows, err := s.db.QueryContext(ctx, s.db.Rebind(`SELECT group_id, principal, delta, reason, created_at
		FROM cookie_ledger WHERE principal = ? ORDER BY created_at DESC, id DESC LIMIT ?`), principal, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []LogEntry
	for rows.Next() {
		var (
			e       LogEntry
			reason  string
			created int64
		)
		if err := rows.Scan(&e.GroupID, &e.Principal, &e.Delta, &reason, &created); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		e.Reason = Reason(reason)
		e.CreatedAt = db.FromMillis(created)
		out = append(out, e)
	}
	return out, rows.Err()
}

// TotalSupply returns the sum of all balances.
func (s *Store) TotalSupply(ctx context.Context) (int64, error) {
	var total int64
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(balance), 0) FROM user_cookies`).Scan(&total); err != nil {
		return 0, fmt.Errorf("sum balances: %w", err)
	}
	return total, nil
}

// credit upserts amount onto principal. SQLite silently turns an overflowing integer sum
// into a REAL, so the update only fires while the result still fits in int64.
func (s *Store) credit(ctx context.Context, tx *sql.Tx, principal string, amount, now int64) error {
	res, err := tx.ExecContext(ctx, s.db.Rebind(`INSERT INTO user_cookies (principal, balance, last_updated) VALUES (?, ?, ?)
		ON CONFLICT (principal) DO UPDATE SET
			balance = user_cookies.balance + excluded.balance,
			last_updated = excluded.last_updated
		WHERE user_cookies.balance <= ?`), principal, amount, now, math.MaxInt64-amount)
	if err != nil {
		return fmt.Errorf("credit %s: %w", principal, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("credit %s rows: %w", principal, err)
	}
	if n == 0 {
		return fmt.Errorf("credit %s: %w", principal, ErrOverflow)
	}
	return nil
}

func (s *Store) appendEntries(ctx context.Context, tx *sql.Tx, reason Reason, now int64, postings ...posting) error {
	groupID := uuid.NewString()
	for _, p := range postings {
		_, err := tx.ExecContext(ctx, s.db.Rebind(`INSERT INTO cookie_ledger (group_id, principal, delta, reason, created_at)
			VALUES (?, ?, ?, ?, ?)`), groupID, p.principal, p.delta, string(reason), now)
		if err != nil {
			return fmt.Errorf("append ledger entry: %w", err)
		}
	}
	return nil
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
