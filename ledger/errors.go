package ledger

import "errors"

var (
	// ErrInvalidPrincipal is returned when an identifier is empty, malformed or forbidden.
	ErrInvalidPrincipal = errors.New("ledger: invalid principal")
	// ErrInvalidAmount is returned for zero or negative amounts.
	ErrInvalidAmount = errors.New("ledger: amount must be positive")
	// ErrHouseAccount is returned when an operation would debit the house account itself.
	ErrHouseAccount = errors.New("ledger: operation not allowed on the house account")
	// ErrInsufficientFunds is returned by exact debits when the balance is below the amount.
	ErrInsufficientFunds = errors.New("ledger: insufficient funds")
	// ErrOverflow is returned when a credit would push a balance past the int64 range.
	ErrOverflow = errors.New("ledger: balance would overflow")
	// ErrConflict is returned when a compare-and-swap debit keeps losing to concurrent writers.
	ErrConflict = errors.New("ledger: concurrent update conflict")
	// ErrStorage wraps any failure of the underlying database.
	ErrStorage = errors.New("ledger: storage failure")
)
