package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ineyio/creditgate"
)

// MemoryAccountStore is a non-durable AccountStore for tests and single-process use.
type MemoryAccountStore struct {
	mu       sync.RWMutex
	accounts map[string]*accountRecord
}

type accountRecord struct {
	Balance   decimal.Decimal
	UpdatedAt time.Time
}

var _ creditgate.AccountStore = (*MemoryAccountStore)(nil)

// NewMemoryAccountStore creates an empty in-memory account store.
func NewMemoryAccountStore() *MemoryAccountStore {
	return &MemoryAccountStore{accounts: make(map[string]*accountRecord)}
}

func (s *MemoryAccountStore) GetBalance(_ context.Context, accountID string) (decimal.Decimal, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.accounts[accountID]
	if !ok {
		return decimal.Zero, false, nil
	}
	return rec.Balance, true, nil
}

func (s *MemoryAccountStore) PersistBalance(_ context.Context, accountID string, balance decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.accounts[accountID] = &accountRecord{Balance: balance, UpdatedAt: time.Now().UTC()}
	return nil
}

// UpdatedAt returns when the account's balance last changed.
func (s *MemoryAccountStore) UpdatedAt(accountID string) (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.accounts[accountID]
	if !ok {
		return time.Time{}, false
	}
	return rec.UpdatedAt, true
}
