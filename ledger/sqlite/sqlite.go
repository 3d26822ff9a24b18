// Package sqlite provides a durable AccountStore on SQLite for the
// in-process ledger.
//
// The ledger serializes per account in memory; this store only has to keep
// the committed balance. Balances are stored as decimal TEXT to avoid
// floating point drift.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/ineyio/creditgate"
)

// Store is a SQLite-backed AccountStore.
type Store struct {
	db *sql.DB
}

var _ creditgate.AccountStore = (*Store)(nil)

// Open opens (or creates) the database at path and ensures the schema.
// Use ":memory:" for a throwaway store.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("creditgate/sqlite: open: %w", err)
	}

	// SQLite only supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &Store{db: db}
	if err := s.init(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init(ctx context.Context) error {
	stmts := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=FULL",
		`CREATE TABLE IF NOT EXISTS balances (
			account_id TEXT PRIMARY KEY,
			balance TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("creditgate/sqlite: init %q: %w", q, err)
		}
	}
	return nil
}

// GetBalance returns the stored balance and whether the account exists.
func (s *Store) GetBalance(ctx context.Context, accountID string) (decimal.Decimal, bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT balance FROM balances WHERE account_id = ?`, accountID,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("creditgate/sqlite: get balance: %w", err)
	}

	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("creditgate/sqlite: parse balance %q: %w", raw, err)
	}
	return d, true, nil
}

// PersistBalance upserts the account's balance.
func (s *Store) PersistBalance(ctx context.Context, accountID string, balance decimal.Decimal) error {
	if balance.IsNegative() {
		return fmt.Errorf("creditgate/sqlite: refusing negative balance %s for %q", balance, accountID)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO balances (account_id, balance, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(account_id) DO UPDATE SET balance = excluded.balance, updated_at = excluded.updated_at`,
		accountID, balance.String(), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("creditgate/sqlite: persist balance: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
