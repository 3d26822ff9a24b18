package creditgate

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// CreditLedger tracks per-account prepaid balances.
//
// Reserve debits immediately. Commit settles without touching the balance and
// Refund returns the amount. Both are no-ops on a handle that has already
// settled, so failure paths may call Refund more than once.
type CreditLedger interface {
	// Reserve debits amount if the balance covers it. Returns an
	// *InsufficientCreditError otherwise; the amount is never truncated.
	Reserve(ctx context.Context, accountID string, amount decimal.Decimal) (Reservation, error)

	// Commit settles a reservation. The balance is unchanged.
	Commit(ctx context.Context, res Reservation) error

	// Refund returns a pending reservation's amount to the balance.
	Refund(ctx context.Context, res Reservation) error

	// Balance returns the committed balance of an account.
	Balance(ctx context.Context, accountID string) (decimal.Decimal, error)

	// Deposit adds credit, creating the account on first allocation.
	// Returns the new balance.
	Deposit(ctx context.Context, accountID string, amount decimal.Decimal) (decimal.Decimal, error)
}

// Reservation is the handle binding a debited amount to one in-flight operation.
type Reservation struct {
	ID        string
	AccountID string
	Amount    decimal.Decimal
	CreatedAt time.Time
}

// ReservationStatus is the lifecycle state of a reservation.
type ReservationStatus string

const (
	StatusReserved  ReservationStatus = "reserved"
	StatusCommitted ReservationStatus = "committed"
	StatusRefunded  ReservationStatus = "refunded"
)

// AccountStore durably holds committed balances. The in-process ledger
// serializes access per account and persists through this interface.
type AccountStore interface {
	// GetBalance returns the stored balance and whether the account exists.
	GetBalance(ctx context.Context, accountID string) (decimal.Decimal, bool, error)

	// PersistBalance stores a new balance, creating the account if needed.
	PersistBalance(ctx context.Context, accountID string, balance decimal.Decimal) error
}
