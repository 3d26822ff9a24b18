// Package redis provides a Redis-backed CreditLedger for creditgate.
//
// Balances are stored as integer micro-credits so the Lua scripts can compare
// and adjust them exactly. Each script runs atomically on the server, which
// serializes reservations against the same account across instances.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/ineyio/creditgate"
)

// scale is the number of decimal places kept for balances.
const scale = 6

// Store is a Redis-backed CreditLedger.
type Store struct {
	client         goredis.Cmdable
	keyPrefix      string
	reservationTTL time.Duration
}

var _ creditgate.CreditLedger = (*Store)(nil)

// Option configures Store.
type Option func(*Store)

// WithKeyPrefix sets the Redis key prefix (default "creditgate:").
func WithKeyPrefix(prefix string) Option {
	return func(s *Store) { s.keyPrefix = prefix }
}

// WithReservationTTL bounds how long an unsettled reservation key lives
// (default 24h). An expired key makes later Commit/Refund calls no-ops.
func WithReservationTTL(d time.Duration) Option {
	return func(s *Store) { s.reservationTTL = d }
}

// New creates a new Redis-backed ledger.
// The client must be a connected *goredis.Client or *goredis.ClusterClient.
func New(client goredis.Cmdable, opts ...Option) *Store {
	s := &Store{
		client:         client,
		keyPrefix:      "creditgate:",
		reservationTTL: 24 * time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Keys share a hash tag per account so cluster deployments keep the balance
// and its reservations in one slot.
func (s *Store) balanceKey(accountID string) string {
	return s.keyPrefix + "{" + accountID + "}:balance"
}

func (s *Store) reservationKey(accountID, id string) string {
	return s.keyPrefix + "{" + accountID + "}:res:" + id
}

// reserveScript is a Lua script for atomic reserve.
// KEYS[1] = balance key
// KEYS[2] = reservation key
// ARGV[1] = amount (micro-credits)
// ARGV[2] = reservation ttl (seconds)
//
// Returns {1, new_balance} on success, {0, available} when insufficient.
var reserveScript = goredis.NewScript(`
local balance = tonumber(redis.call("GET", KEYS[1]) or "0")
local amount = tonumber(ARGV[1])

if balance < amount then
    return {0, balance}
end

local after = redis.call("DECRBY", KEYS[1], amount)
redis.call("SET", KEYS[2], amount, "EX", tonumber(ARGV[2]))
return {1, after}
`)

// commitScript atomically settles a reservation.
// KEYS[1] = reservation key
var commitScript = goredis.NewScript(`
redis.call("DEL", KEYS[1])
return 1
`)

// refundScript atomically refunds a pending reservation.
// KEYS[1] = balance key
// KEYS[2] = reservation key
//
// Returns 1 if credit was returned, 0 if the reservation had already settled.
var refundScript = goredis.NewScript(`
local amount = redis.call("GET", KEYS[2])
if not amount then
    return 0
end
redis.call("DEL", KEYS[2])
redis.call("INCRBY", KEYS[1], tonumber(amount))
return 1
`)

// Reserve debits amount if the balance covers it.
func (s *Store) Reserve(ctx context.Context, accountID string, amount decimal.Decimal) (creditgate.Reservation, error) {
	if amount.Sign() <= 0 {
		return creditgate.Reservation{}, fmt.Errorf("%w: amount must be positive, got %s", creditgate.ErrMalformedRequest, amount)
	}

	id := uuid.New().String()
	result, err := reserveScript.Run(ctx, s.client,
		[]string{s.balanceKey(accountID), s.reservationKey(accountID, id)},
		toMicros(amount), int64(s.reservationTTL.Seconds()),
	).Int64Slice()
	if err != nil {
		return creditgate.Reservation{}, fmt.Errorf("creditgate/redis: reserve: %w", err)
	}
	if len(result) != 2 {
		return creditgate.Reservation{}, fmt.Errorf("creditgate/redis: unexpected reserve result: %v", result)
	}

	if result[0] == 0 {
		return creditgate.Reservation{}, &creditgate.InsufficientCreditError{
			AccountID: accountID,
			Requested: amount,
			Available: fromMicros(result[1]),
		}
	}

	return creditgate.Reservation{
		ID:        id,
		AccountID: accountID,
		Amount:    amount,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// Commit settles a reservation. The balance was already debited.
func (s *Store) Commit(ctx context.Context, res creditgate.Reservation) error {
	_, err := commitScript.Run(ctx, s.client,
		[]string{s.reservationKey(res.AccountID, res.ID)},
	).Result()
	if err != nil {
		return fmt.Errorf("creditgate/redis: commit: %w", err)
	}
	return nil
}

// Refund returns a pending reservation's amount. The refunded amount is the
// one recorded at reserve time.
func (s *Store) Refund(ctx context.Context, res creditgate.Reservation) error {
	_, err := refundScript.Run(ctx, s.client,
		[]string{s.balanceKey(res.AccountID), s.reservationKey(res.AccountID, res.ID)},
	).Result()
	if err != nil {
		return fmt.Errorf("creditgate/redis: refund: %w", err)
	}
	return nil
}

// Balance returns the committed balance of an account.
func (s *Store) Balance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	micros, err := s.client.Get(ctx, s.balanceKey(accountID)).Int64()
	if errors.Is(err, goredis.Nil) {
		return decimal.Zero, fmt.Errorf("%w: %q", creditgate.ErrAccountNotFound, accountID)
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("creditgate/redis: balance: %w", err)
	}
	return fromMicros(micros), nil
}

// Deposit adds credit, creating the balance key on first allocation.
func (s *Store) Deposit(ctx context.Context, accountID string, amount decimal.Decimal) (decimal.Decimal, error) {
	if amount.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("%w: amount must be positive, got %s", creditgate.ErrMalformedRequest, amount)
	}
	micros, err := s.client.IncrBy(ctx, s.balanceKey(accountID), toMicros(amount)).Result()
	if err != nil {
		return decimal.Zero, fmt.Errorf("creditgate/redis: deposit: %w", err)
	}
	return fromMicros(micros), nil
}

// toMicros rounds up so a fractional amount is never under-charged.
func toMicros(d decimal.Decimal) int64 {
	return d.Shift(scale).Ceil().IntPart()
}

func fromMicros(v int64) decimal.Decimal {
	return decimal.New(v, -scale)
}
