// Package ledger implements the cookie economy: a persistent per-principal balance store
// with an append-only transaction log, the principal validator that gates every mutation,
// and the leaderboard query.
//
// Ledger is the call surface used by chat features. Its methods never return storage
// errors: a failed write is logged, counted as a storage_error and reported to the caller
// as a no-op, so the chat loop keeps running through a database outage. Validated no-ops
// (forbidden principal, non-positive amount) are counted separately as rejected.
//
// Debits are transfers into the house account (the bot's own principal), which keeps the
// economy closed: total supply only grows through explicit credits.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/leojscalabrin/glorpinia-AI/telemetry"
)

const (
	// DefaultLeaderboardLimit is used when callers pass a non-positive limit.
	DefaultLeaderboardLimit = 5
	// MaxLeaderboardLimit caps leaderboard and history reads.
	MaxLeaderboardLimit = 50
)

const tracerName = "ledger"

// Ledger wraps a Store with validation, logging, metrics and tracing.
type Ledger struct {
	store     *Store
	validator *Validator
	house     string
	log       *slog.Logger
}

// New returns a Ledger whose house account is the normalized house principal.
func New(store *Store, validator *Validator, house string, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		store:     store,
		validator: validator,
		house:     Normalize(house),
		log:       logger.With(slog.String("component", "ledger")),
	}
}

// House returns the house principal.
func (l *Ledger) House() string { return l.house }

// Validator returns the validator guarding this ledger.
func (l *Ledger) Validator() *Validator { return l.validator }

// Store exposes the underlying store for background jobs that act on every account.
func (l *Ledger) Store() *Store { return l.store }

// GetBalance returns the balance of principal, or 0 for unknown or invalid principals and
// on storage failure. It never creates an account.
func (l *Ledger) GetBalance(ctx context.Context, principal string) int64 {
	const op = "get_balance"
	p, err := l.validator.Validate(principal)
	if err != nil {
		l.rejected(ctx, op, principal, err)
		return 0
	}
	ctx, span := telemetry.StartSpan(ctx, tracerName, "ledger.GetBalance", telemetry.PrincipalAttr(p))
	defer span.End()

	start := time.Now()
	bal, err := l.store.Balance(ctx, p)
	if err != nil {
		l.storageFailure(ctx, span, op, p, err, time.Since(start))
		return 0
	}
	telemetry.ObserveLedgerOp(op, telemetry.OutcomeApplied, time.Since(start))
	return bal
}

// AddCookies credits amount to principal, creating the account if absent. It reports
// whether the credit landed.
func (l *Ledger) AddCookies(ctx context.Context, principal string, amount int64) bool {
	const op = "add_cookies"
	p, err := l.validator.Validate(principal)
	if err != nil {
		l.rejected(ctx, op, principal, err)
		return false
	}
	if amount <= 0 {
		l.rejected(ctx, op, p, ErrInvalidAmount)
		return false
	}
	reason := reasonFrom(ctx, ReasonCredit)
	ctx, span := telemetry.StartSpan(ctx, tracerName, "ledger.AddCookies", telemetry.PrincipalAttr(p), telemetry.AmountAttr(amount))
	defer span.End()

	start := time.Now()
	if err := l.store.Credit(ctx, p, amount, reason); err != nil {
		if errors.Is(err, ErrOverflow) {
			l.rejected(ctx, op, p, err)
			return false
		}
		l.storageFailure(ctx, span, op, p, err, time.Since(start))
		return false
	}
	telemetry.ObserveLedgerOp(op, telemetry.OutcomeApplied, time.Since(start))
	telemetry.AddMinted(string(reason), amount)
	telemetry.WithCorr(ctx, l.log).Debug("cookies added",
		slog.String("principal", p), slog.Int64("amount", amount), slog.String("reason", string(reason)))
	return true
}

// RemoveCookies moves min(balance, amount) from principal to the house account and
// returns the quantity moved. Both halves land in one transaction or neither does.
// The house account itself and invalid principals are never debited.
func (l *Ledger) RemoveCookies(ctx context.Context, principal string, amount int64) int64 {
	const op = "remove_cookies"
	p, err := l.validator.Validate(principal)
	if err != nil {
		l.rejected(ctx, op, principal, err)
		return 0
	}
	if p == l.house {
		l.rejected(ctx, op, p, ErrHouseAccount)
		return 0
	}
	if amount <= 0 {
		l.rejected(ctx, op, p, ErrInvalidAmount)
		return 0
	}
	reason := reasonFrom(ctx, ReasonTransfer)
	ctx, span := telemetry.StartSpan(ctx, tracerName, "ledger.RemoveCookies", telemetry.PrincipalAttr(p), telemetry.AmountAttr(amount))
	defer span.End()

	start := time.Now()
	moved, err := l.store.Transfer(ctx, p, l.house, amount, false, reason)
	if err != nil {
		l.storageFailure(ctx, span, op, p, err, time.Since(start))
		return 0
	}
	telemetry.ObserveLedgerOp(op, telemetry.OutcomeApplied, time.Since(start))
	telemetry.AddTransferred(string(reason), moved)
	telemetry.WithCorr(ctx, l.log).Debug("cookies removed",
		slog.String("principal", p), slog.Int64("requested", amount), slog.Int64("moved", moved), slog.String("reason", string(reason)))
	return moved
}

// Charge debits exactly amount from principal into the house account, or nothing at all.
// Unlike the other methods it returns an error so callers can tell the player why:
// ErrInvalidPrincipal, ErrHouseAccount, ErrInvalidAmount, ErrInsufficientFunds, or an
// error wrapping ErrStorage.
func (l *Ledger) Charge(ctx context.Context, principal string, amount int64) error {
	const op = "charge"
	p, err := l.validator.Validate(principal)
	if err != nil {
		l.rejected(ctx, op, principal, err)
		return err
	}
	if p == l.house {
		l.rejected(ctx, op, p, ErrHouseAccount)
		return ErrHouseAccount
	}
	if amount <= 0 {
		l.rejected(ctx, op, p, ErrInvalidAmount)
		return ErrInvalidAmount
	}
	reason := reasonFrom(ctx, ReasonTransfer)
	ctx, span := telemetry.StartSpan(ctx, tracerName, "ledger.Charge", telemetry.PrincipalAttr(p), telemetry.AmountAttr(amount))
	defer span.End()

	start := time.Now()
	_, err = l.store.Transfer(ctx, p, l.house, amount, true, reason)
	switch {
	case errors.Is(err, ErrInsufficientFunds):
		l.rejected(ctx, op, p, err)
		return err
	case err != nil:
		l.storageFailure(ctx, span, op, p, err, time.Since(start))
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	telemetry.ObserveLedgerOp(op, telemetry.OutcomeApplied, time.Since(start))
	telemetry.AddTransferred(string(reason), amount)
	return nil
}

// HandleInteraction credits one cookie for a chat message.
func (l *Ledger) HandleInteraction(ctx context.Context, principal string) {
	l.AddCookies(WithReason(ctx, ReasonInteraction), principal, 1)
}

// GetLeaderboard returns the top limit accounts by balance (ties by principal), excluding
// the house account and every forbidden principal.
func (l *Ledger) GetLeaderboard(ctx context.Context, limit int) []Entry {
	const op = "leaderboard"
	limit = clampLimit(limit)
	ctx, span := telemetry.StartSpan(ctx, tracerName, "ledger.GetLeaderboard")
	defer span.End()

	exclude := append(l.validator.Forbidden(), l.house)
	start := time.Now()
	entries, err := l.store.Leaderboard(ctx, limit, exclude)
	if err != nil {
		l.storageFailure(ctx, span, op, "", err, time.Since(start))
		return nil
	}
	telemetry.ObserveLedgerOp(op, telemetry.OutcomeApplied, time.Since(start))
	return entries
}

// History returns the newest transaction log rows for principal, newest first.
func (l *Ledger) History(ctx context.Context, principal string, limit int) []LogEntry {
	const op = "history"
	p := Normalize(principal)
	if p == "" {
		l.rejected(ctx, op, principal, ErrInvalidPrincipal)
		return nil
	}
	limit = clampLimit(limit)
	ctx, span := telemetry.StartSpan(ctx, tracerName, "ledger.History", telemetry.PrincipalAttr(p))
	defer span.End()

	start := time.Now()
	entries, err := l.store.History(ctx, p, limit)
	if err != nil {
		l.storageFailure(ctx, span, op, p, err, time.Since(start))
		return nil
	}
	telemetry.ObserveLedgerOp(op, telemetry.OutcomeApplied, time.Since(start))
	return entries
}

func (l *Ledger) rejected(ctx context.Context, op, principal string, reason error) {
	telemetry.ObserveLedgerOp(op, telemetry.OutcomeRejected, 0)
	telemetry.WithCorr(ctx, l.log).Debug("ledger operation rejected",
		slog.String("op", op), slog.String("principal", principal), slog.String("reason", reason.Error()))
}

func (l *Ledger) storageFailure(ctx context.Context, span trace.Span, op, principal string, err error, d time.Duration) {
	telemetry.RecordError(span, err)
	telemetry.ObserveLedgerOp(op, telemetry.OutcomeStorageError, d)
	telemetry.WithCorr(ctx, l.log).Error("ledger storage failure",
		slog.String("op", op), slog.String("principal", principal), slog.Any("err", err))
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLeaderboardLimit
	}
	return min(limit, MaxLeaderboardLimit)
}
