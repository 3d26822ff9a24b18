// Package ledger provides the in-process CreditLedger.
//
// Each account gets its own serialized cell; operations on different accounts
// never contend. Balances are read and written through a creditgate.AccountStore
// inside the cell's critical section, so the store always holds the committed
// balance and a crash between Reserve and Commit cannot strand a debit beyond
// the one already persisted.
package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ineyio/creditgate"
)

// Ledger is an in-process CreditLedger backed by an AccountStore.
type Ledger struct {
	mu    sync.RWMutex
	cells map[string]*cell
	store creditgate.AccountStore
	now   func() time.Time
}

// cell serializes every read-modify-write of one account's balance.
type cell struct {
	mu      sync.Mutex
	pending map[string]decimal.Decimal // reservation ID -> debited amount
}

var _ creditgate.CreditLedger = (*Ledger)(nil)

// Option configures Ledger.
type Option func(*Ledger)

// WithStore sets the durable account store (default: in-memory).
func WithStore(s creditgate.AccountStore) Option {
	return func(l *Ledger) { l.store = s }
}

// WithClock overrides the reservation timestamp source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// New creates a new in-process ledger.
func New(opts ...Option) *Ledger {
	l := &Ledger{
		cells: make(map[string]*cell),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.store == nil {
		l.store = NewMemoryAccountStore()
	}
	return l
}

// Reserve debits amount from the account if the balance covers it.
func (l *Ledger) Reserve(ctx context.Context, accountID string, amount decimal.Decimal) (creditgate.Reservation, error) {
	if err := checkAmount(accountID, amount); err != nil {
		return creditgate.Reservation{}, err
	}

	c := l.cell(accountID)
	c.mu.Lock()
	defer c.mu.Unlock()

	balance, _, err := l.store.GetBalance(ctx, accountID)
	if err != nil {
		return creditgate.Reservation{}, fmt.Errorf("creditgate/ledger: reserve: %w", err)
	}
	if balance.LessThan(amount) {
		return creditgate.Reservation{}, &creditgate.InsufficientCreditError{
			AccountID: accountID,
			Requested: amount,
			Available: balance,
		}
	}

	if err := l.store.PersistBalance(ctx, accountID, balance.Sub(amount)); err != nil {
		return creditgate.Reservation{}, fmt.Errorf("creditgate/ledger: reserve: %w", err)
	}

	res := creditgate.Reservation{
		ID:        uuid.New().String(),
		AccountID: accountID,
		Amount:    amount,
		CreatedAt: l.now(),
	}
	c.pending[res.ID] = amount
	return res, nil
}

// Commit settles a reservation. Unknown or settled handles are a no-op.
func (l *Ledger) Commit(_ context.Context, res creditgate.Reservation) error {
	c := l.lookup(res.AccountID)
	if c == nil {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.pending, res.ID)
	return nil
}

// Refund returns a pending reservation's amount. Unknown or settled handles
// are a no-op. If persisting fails the reservation stays pending so the
// caller can retry.
func (l *Ledger) Refund(ctx context.Context, res creditgate.Reservation) error {
	c := l.lookup(res.AccountID)
	if c == nil {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	amount, ok := c.pending[res.ID]
	if !ok {
		return nil
	}

	balance, _, err := l.store.GetBalance(ctx, res.AccountID)
	if err != nil {
		return fmt.Errorf("creditgate/ledger: refund: %w", err)
	}
	if err := l.store.PersistBalance(ctx, res.AccountID, balance.Add(amount)); err != nil {
		return fmt.Errorf("creditgate/ledger: refund: %w", err)
	}

	delete(c.pending, res.ID)
	return nil
}

// Balance returns the committed balance of an account.
func (l *Ledger) Balance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	balance, ok, err := l.store.GetBalance(ctx, accountID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("creditgate/ledger: balance: %w", err)
	}
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %q", creditgate.ErrAccountNotFound, accountID)
	}
	return balance, nil
}

// Deposit adds credit to an account, creating it if needed.
func (l *Ledger) Deposit(ctx context.Context, accountID string, amount decimal.Decimal) (decimal.Decimal, error) {
	if err := checkAmount(accountID, amount); err != nil {
		return decimal.Zero, err
	}

	c := l.cell(accountID)
	c.mu.Lock()
	defer c.mu.Unlock()

	balance, _, err := l.store.GetBalance(ctx, accountID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("creditgate/ledger: deposit: %w", err)
	}
	balance = balance.Add(amount)
	if err := l.store.PersistBalance(ctx, accountID, balance); err != nil {
		return decimal.Zero, fmt.Errorf("creditgate/ledger: deposit: %w", err)
	}
	return balance, nil
}

// Pending returns the number of unsettled reservations for an account.
func (l *Ledger) Pending(accountID string) int {
	c := l.lookup(accountID)
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (l *Ledger) lookup(accountID string) *cell {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cells[accountID]
}

func (l *Ledger) cell(accountID string) *cell {
	if c := l.lookup(accountID); c != nil {
		return c
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.cells[accountID]
	if !ok {
		c = &cell{pending: make(map[string]decimal.Decimal)}
		l.cells[accountID] = c
	}
	return c
}

func checkAmount(accountID string, amount decimal.Decimal) error {
	if accountID == "" {
		return fmt.Errorf("%w: account_id is required", creditgate.ErrMalformedRequest)
	}
	if amount.Sign() <= 0 {
		return fmt.Errorf("%w: amount must be positive, got %s", creditgate.ErrMalformedRequest, amount)
	}
	return nil
}
