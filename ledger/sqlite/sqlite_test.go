package sqlite_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ineyio/creditgate/ledger"
	"github.com/ineyio/creditgate/ledger/sqlite"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestStore_MissingAccount(t *testing.T) {
	s, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	bal, ok, err := s.GetBalance(context.Background(), "nobody")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, bal.IsZero())
}

func TestStore_PersistRoundTripsExactDecimals(t *testing.T) {
	ctx := context.Background()
	s, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	require.NoError(t, s.PersistBalance(ctx, "acct", dec("0.1")))
	require.NoError(t, s.PersistBalance(ctx, "acct", dec("0.3")))

	bal, ok, err := s.GetBalance(ctx, "acct")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, bal.Equal(dec("0.3")), "balance=%s", bal)

	assert.Error(t, s.PersistBalance(ctx, "acct", dec("-1")))
}

func TestStore_BalanceSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.db")

	s, err := sqlite.Open(ctx, path)
	require.NoError(t, err)

	l := ledger.New(ledger.WithStore(s))
	_, err = l.Deposit(ctx, "acct", dec("5"))
	require.NoError(t, err)
	res, err := l.Reserve(ctx, "acct", dec("2"))
	require.NoError(t, err)
	require.NoError(t, l.Commit(ctx, res))
	require.NoError(t, s.Close())

	s, err = sqlite.Open(ctx, path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	bal, err := ledger.New(ledger.WithStore(s)).Balance(ctx, "acct")
	require.NoError(t, err)
	assert.True(t, bal.Equal(dec("3")), "balance=%s", bal)
}

func TestStore_ConcurrentReservesThroughLedger(t *testing.T) {
	ctx := context.Background()
	s, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	l := ledger.New(ledger.WithStore(s))
	_, err = l.Deposit(ctx, "acct", dec("4"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	granted := 0
	for range 12 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.Reserve(ctx, "acct", dec("0.5")); err == nil {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 8, granted)
	bal, _, err := s.GetBalance(ctx, "acct")
	require.NoError(t, err)
	assert.True(t, bal.IsZero(), "balance=%s", bal)
}
