// Package postgres provides a PostgreSQL-backed CreditLedger for creditgate.
//
// Each balance is one row; Reserve debits it with a conditional UPDATE so the
// row lock serializes concurrent reservations against the same account. The
// reservation row is written in the same transaction and deleted when the
// reservation settles, which makes Commit and Refund idempotent.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/ineyio/creditgate"
)

// Store is a PostgreSQL-backed CreditLedger.
type Store struct {
	pool        *pgxpool.Pool
	tablePrefix string
}

var _ creditgate.CreditLedger = (*Store)(nil)

// Option configures Store.
type Option func(*Store)

// WithTablePrefix sets the table name prefix (default "creditgate_").
func WithTablePrefix(prefix string) Option {
	return func(s *Store) { s.tablePrefix = prefix }
}

// New creates a new PostgreSQL-backed ledger.
func New(pool *pgxpool.Pool, opts ...Option) *Store {
	s := &Store{
		pool:        pool,
		tablePrefix: "creditgate_",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) balancesTable() string     { return s.tablePrefix + "balances" }
func (s *Store) reservationsTable() string { return s.tablePrefix + "reservations" }

// EnsureSchema creates the required tables if they don't exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	q := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			account_id TEXT PRIMARY KEY,
			balance NUMERIC(20,6) NOT NULL CHECK (balance >= 0),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			account_id TEXT NOT NULL,
			amount NUMERIC(20,6) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
	`, s.balancesTable(), s.reservationsTable())
	_, err := s.pool.Exec(ctx, q)
	if err != nil {
		return fmt.Errorf("creditgate/postgres: ensure schema: %w", err)
	}
	return nil
}

// Reserve debits amount if the balance covers it.
func (s *Store) Reserve(ctx context.Context, accountID string, amount decimal.Decimal) (creditgate.Reservation, error) {
	if amount.Sign() <= 0 {
		return creditgate.Reservation{}, fmt.Errorf("%w: amount must be positive, got %s", creditgate.ErrMalformedRequest, amount)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return creditgate.Reservation{}, fmt.Errorf("creditgate/postgres: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// 1. Conditional debit. The row lock serializes concurrent reserves.
	var after string
	err = tx.QueryRow(ctx,
		fmt.Sprintf(`UPDATE %s SET balance = balance - $1::numeric, updated_at = now()
			WHERE account_id = $2 AND balance >= $1::numeric
			RETURNING balance::text`, s.balancesTable()),
		amount.String(), accountID,
	).Scan(&after)

	if errors.Is(err, pgx.ErrNoRows) {
		available, err := s.balanceTx(ctx, tx, accountID)
		if err != nil && !errors.Is(err, creditgate.ErrAccountNotFound) {
			return creditgate.Reservation{}, err
		}
		return creditgate.Reservation{}, &creditgate.InsufficientCreditError{
			AccountID: accountID,
			Requested: amount,
			Available: available,
		}
	}
	if err != nil {
		return creditgate.Reservation{}, fmt.Errorf("creditgate/postgres: reserve: %w", err)
	}

	// 2. Reservation row, same transaction.
	res := creditgate.Reservation{
		ID:        uuid.New().String(),
		AccountID: accountID,
		Amount:    amount,
		CreatedAt: time.Now().UTC(),
	}
	_, err = tx.Exec(ctx,
		fmt.Sprintf(`INSERT INTO %s (id, account_id, amount, created_at) VALUES ($1, $2, $3::numeric, $4)`,
			s.reservationsTable()),
		res.ID, res.AccountID, amount.String(), res.CreatedAt,
	)
	if err != nil {
		return creditgate.Reservation{}, fmt.Errorf("creditgate/postgres: insert reservation: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return creditgate.Reservation{}, fmt.Errorf("creditgate/postgres: commit: %w", err)
	}
	return res, nil
}

// Commit settles a reservation. The balance was already debited.
func (s *Store) Commit(ctx context.Context, res creditgate.Reservation) error {
	_, err := s.pool.Exec(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, s.reservationsTable()),
		res.ID,
	)
	if err != nil {
		return fmt.Errorf("creditgate/postgres: commit: %w", err)
	}
	return nil
}

// Refund returns a pending reservation's amount. Settled handles are a no-op.
func (s *Store) Refund(ctx context.Context, res creditgate.Reservation) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("creditgate/postgres: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := s.refundTx(ctx, tx, res.ID); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("creditgate/postgres: commit refund: %w", err)
	}
	return nil
}

// refundTx deletes the reservation row and credits its amount back, using the
// account and amount recorded at reserve time rather than the caller's copy.
func (s *Store) refundTx(ctx context.Context, tx pgx.Tx, reservationID string) error {
	var accountID, amount string
	err := tx.QueryRow(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE id = $1 RETURNING account_id, amount::text`, s.reservationsTable()),
		reservationID,
	).Scan(&accountID, &amount)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("creditgate/postgres: refund: %w", err)
	}

	_, err = tx.Exec(ctx,
		fmt.Sprintf(`UPDATE %s SET balance = balance + $1::numeric, updated_at = now() WHERE account_id = $2`,
			s.balancesTable()),
		amount, accountID,
	)
	if err != nil {
		return fmt.Errorf("creditgate/postgres: refund credit: %w", err)
	}
	return nil
}

// Balance returns the committed balance of an account.
func (s *Store) Balance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	return s.balanceTx(ctx, s.pool, accountID)
}

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (s *Store) balanceTx(ctx context.Context, q queryRower, accountID string) (decimal.Decimal, error) {
	var raw string
	err := q.QueryRow(ctx,
		fmt.Sprintf(`SELECT balance::text FROM %s WHERE account_id = $1`, s.balancesTable()),
		accountID,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, fmt.Errorf("%w: %q", creditgate.ErrAccountNotFound, accountID)
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("creditgate/postgres: balance: %w", err)
	}
	return parseNumeric(raw)
}

// Deposit adds credit, creating the account row on first allocation.
func (s *Store) Deposit(ctx context.Context, accountID string, amount decimal.Decimal) (decimal.Decimal, error) {
	if amount.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("%w: amount must be positive, got %s", creditgate.ErrMalformedRequest, amount)
	}

	var raw string
	err := s.pool.QueryRow(ctx,
		fmt.Sprintf(`INSERT INTO %[1]s (account_id, balance) VALUES ($1, $2::numeric)
			ON CONFLICT (account_id) DO UPDATE SET balance = %[1]s.balance + EXCLUDED.balance, updated_at = now()
			RETURNING balance::text`, s.balancesTable()),
		accountID, amount.String(),
	).Scan(&raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("creditgate/postgres: deposit: %w", err)
	}
	return parseNumeric(raw)
}

// RefundStale refunds reservations older than olderThan. A process that dies
// between Reserve and Commit leaves its row behind; this returns the credit.
func (s *Store) RefundStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	rows, err := s.pool.Query(ctx,
		fmt.Sprintf(`SELECT id FROM %s WHERE created_at < $1`, s.reservationsTable()),
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("creditgate/postgres: list stale: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return 0, fmt.Errorf("creditgate/postgres: list stale: %w", err)
	}

	var refunded int64
	for _, id := range ids {
		if err := s.Refund(ctx, creditgate.Reservation{ID: id}); err != nil {
			return refunded, err
		}
		refunded++
	}
	return refunded, nil
}

func parseNumeric(raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("creditgate/postgres: parse numeric %q: %w", raw, err)
	}
	return d, nil
}
