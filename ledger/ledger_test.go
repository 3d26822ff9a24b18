package ledger_test

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ineyio/creditgate"
	"github.com/ineyio/creditgate/ledger"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newFunded(t *testing.T, accountID string, balance string) *ledger.Ledger {
	t.Helper()
	l := ledger.New()
	_, err := l.Deposit(context.Background(), accountID, dec(balance))
	require.NoError(t, err)
	return l
}

func TestReserve_DebitsImmediately(t *testing.T) {
	ctx := context.Background()
	l := newFunded(t, "acct", "5.0")

	res, err := l.Reserve(ctx, "acct", dec("2.0"))
	require.NoError(t, err)
	assert.NotEmpty(t, res.ID)
	assert.Equal(t, "acct", res.AccountID)

	bal, err := l.Balance(ctx, "acct")
	require.NoError(t, err)
	assert.True(t, bal.Equal(dec("3.0")), "balance=%s", bal)

	require.NoError(t, l.Commit(ctx, res))
	bal, _ = l.Balance(ctx, "acct")
	assert.True(t, bal.Equal(dec("3.0")), "commit must not move balance, got %s", bal)
	assert.Equal(t, 0, l.Pending("acct"))
}

func TestReserve_InsufficientCredit(t *testing.T) {
	ctx := context.Background()
	l := newFunded(t, "acct", "0.5")

	_, err := l.Reserve(ctx, "acct", dec("1.0"))
	require.Error(t, err)
	assert.ErrorIs(t, err, creditgate.ErrInsufficientCredit)

	var ice *creditgate.InsufficientCreditError
	require.ErrorAs(t, err, &ice)
	assert.Equal(t, "acct", ice.AccountID)
	assert.True(t, ice.Requested.Equal(dec("1.0")))
	assert.True(t, ice.Available.Equal(dec("0.5")))

	bal, _ := l.Balance(ctx, "acct")
	assert.True(t, bal.Equal(dec("0.5")))
	assert.Equal(t, 0, l.Pending("acct"))
}

func TestReserve_UnknownAccountHasNothing(t *testing.T) {
	l := ledger.New()

	_, err := l.Reserve(context.Background(), "ghost", dec("1"))
	var ice *creditgate.InsufficientCreditError
	require.ErrorAs(t, err, &ice)
	assert.True(t, ice.Available.IsZero())

	_, err = l.Balance(context.Background(), "ghost")
	assert.ErrorIs(t, err, creditgate.ErrAccountNotFound)
}

func TestReserve_RejectsNonPositiveAmount(t *testing.T) {
	l := newFunded(t, "acct", "5")

	for _, amt := range []string{"0", "-1"} {
		_, err := l.Reserve(context.Background(), "acct", dec(amt))
		assert.ErrorIs(t, err, creditgate.ErrMalformedRequest, amt)
	}
	_, err := l.Deposit(context.Background(), "acct", dec("0"))
	assert.ErrorIs(t, err, creditgate.ErrMalformedRequest)
}

func TestRefund_Idempotent(t *testing.T) {
	ctx := context.Background()
	l := newFunded(t, "acct", "5")

	res, err := l.Reserve(ctx, "acct", dec("2"))
	require.NoError(t, err)

	require.NoError(t, l.Refund(ctx, res))
	require.NoError(t, l.Refund(ctx, res))

	bal, _ := l.Balance(ctx, "acct")
	assert.True(t, bal.Equal(dec("5")), "balance=%s", bal)

	// Committing after a refund changes nothing either.
	require.NoError(t, l.Commit(ctx, res))
	bal, _ = l.Balance(ctx, "acct")
	assert.True(t, bal.Equal(dec("5")))
}

func TestRefund_AfterCommitIsNoop(t *testing.T) {
	ctx := context.Background()
	l := newFunded(t, "acct", "5")

	res, err := l.Reserve(ctx, "acct", dec("2"))
	require.NoError(t, err)
	require.NoError(t, l.Commit(ctx, res))
	require.NoError(t, l.Refund(ctx, res))

	bal, _ := l.Balance(ctx, "acct")
	assert.True(t, bal.Equal(dec("3")), "balance=%s", bal)
}

func TestRefund_UnknownHandleIsNoop(t *testing.T) {
	ctx := context.Background()
	l := newFunded(t, "acct", "5")

	require.NoError(t, l.Refund(ctx, creditgate.Reservation{ID: "nope", AccountID: "acct", Amount: dec("100")}))
	require.NoError(t, l.Refund(ctx, creditgate.Reservation{ID: "nope", AccountID: "other", Amount: dec("100")}))

	bal, _ := l.Balance(ctx, "acct")
	assert.True(t, bal.Equal(dec("5")))
}

func TestConcurrentReserves_NoOverAllocation(t *testing.T) {
	ctx := context.Background()
	l := newFunded(t, "acct", "10")

	var wg sync.WaitGroup
	var mu sync.Mutex
	success := 0

	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.Reserve(ctx, "acct", dec("1")); err == nil {
				mu.Lock()
				success++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, success)
	bal, _ := l.Balance(ctx, "acct")
	assert.True(t, bal.IsZero(), "balance=%s", bal)
}

// With randomized amounts the balance only falls while reserves run, so every
// denied reservation must be larger than what is finally left, and the granted
// amounts must add up to exactly what was debited.
func TestConcurrentReserves_RandomizedInterleavings(t *testing.T) {
	ctx := context.Background()

	for round := range 20 {
		rng := rand.New(rand.NewPCG(uint64(round), 42))
		initial := decimal.NewFromInt(int64(10 + rng.IntN(40)))
		l := newFunded(t, "acct", initial.String())

		n := 30 + rng.IntN(40)
		amounts := make([]decimal.Decimal, n)
		for i := range amounts {
			// 0.25 .. 5.00 in quarter steps
			amounts[i] = decimal.NewFromInt(int64(1 + rng.IntN(20))).Div(decimal.NewFromInt(4))
		}

		granted := make([]bool, n)
		var wg sync.WaitGroup
		for i := range amounts {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := l.Reserve(ctx, "acct", amounts[i])
				if err == nil {
					granted[i] = true
					return
				}
				if !errors.Is(err, creditgate.ErrInsufficientCredit) {
					t.Errorf("unexpected error: %v", err)
				}
			}(i)
		}
		wg.Wait()

		final, err := l.Balance(ctx, "acct")
		require.NoError(t, err)
		require.False(t, final.IsNegative(), "round %d: negative balance %s", round, final)

		sum := decimal.Zero
		for i, ok := range granted {
			if ok {
				sum = sum.Add(amounts[i])
			} else {
				assert.True(t, amounts[i].GreaterThan(final),
					"round %d: denied %s while %s remained", round, amounts[i], final)
			}
		}
		assert.True(t, initial.Sub(sum).Equal(final), "round %d: initial=%s granted=%s final=%s", round, initial, sum, final)
	}
}

func TestConcurrentAccounts_Independent(t *testing.T) {
	ctx := context.Background()
	l := ledger.New()
	for _, id := range []string{"a", "b", "c"} {
		_, err := l.Deposit(ctx, id, dec("3"))
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	for _, id := range []string{"a", "b", "c"} {
		for range 5 {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				res, err := l.Reserve(ctx, id, dec("1"))
				if err == nil {
					_ = l.Refund(ctx, res)
				}
			}(id)
		}
	}
	wg.Wait()

	for _, id := range []string{"a", "b", "c"} {
		bal, err := l.Balance(ctx, id)
		require.NoError(t, err)
		assert.True(t, bal.Equal(dec("3")), "%s: %s", id, bal)
		assert.Equal(t, 0, l.Pending(id))
	}
}

type failingStore struct {
	*ledger.MemoryAccountStore
	failPersist bool
}

func (s *failingStore) PersistBalance(ctx context.Context, id string, b decimal.Decimal) error {
	if s.failPersist {
		return errors.New("disk full")
	}
	return s.MemoryAccountStore.PersistBalance(ctx, id, b)
}

func TestRefund_PersistFailureKeepsReservationPending(t *testing.T) {
	ctx := context.Background()
	store := &failingStore{MemoryAccountStore: ledger.NewMemoryAccountStore()}
	l := ledger.New(ledger.WithStore(store))

	_, err := l.Deposit(ctx, "acct", dec("5"))
	require.NoError(t, err)
	res, err := l.Reserve(ctx, "acct", dec("2"))
	require.NoError(t, err)

	store.failPersist = true
	require.Error(t, l.Refund(ctx, res))
	assert.Equal(t, 1, l.Pending("acct"))

	store.failPersist = false
	require.NoError(t, l.Refund(ctx, res))
	bal, _ := l.Balance(ctx, "acct")
	assert.True(t, bal.Equal(dec("5")))
}

func TestReserve_PersistFailureDoesNotDebit(t *testing.T) {
	ctx := context.Background()
	store := &failingStore{MemoryAccountStore: ledger.NewMemoryAccountStore()}
	l := ledger.New(ledger.WithStore(store))

	_, err := l.Deposit(ctx, "acct", dec("5"))
	require.NoError(t, err)

	store.failPersist = true
	_, err = l.Reserve(ctx, "acct", dec("2"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, creditgate.ErrInsufficientCredit)

	bal, _ := l.Balance(ctx, "acct")
	assert.True(t, bal.Equal(dec("5")))
	assert.Equal(t, 0, l.Pending("acct"))
}

func TestMemoryAccountStore_UpdatedAt(t *testing.T) {
	s := ledger.NewMemoryAccountStore()
	_, ok := s.UpdatedAt("acct")
	assert.False(t, ok)

	require.NoError(t, s.PersistBalance(context.Background(), "acct", dec("1")))
	at, ok := s.UpdatedAt("acct")
	assert.True(t, ok)
	assert.False(t, at.IsZero())
}
