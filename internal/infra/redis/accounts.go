// Package redis implements ledger.AccountStore on Redis hashes. Each account
// lives under account:{id} with fields user_id, name and balance; deltas are
// applied by a server-side script so the existence check and the increment
// run as one atomic step.
package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/fundnote-ledger/internal/domain"
	"github.com/dvloznov/fundnote-ledger/internal/ledger"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const (
	keyPrefix    = "account:"
	fieldUserID  = "user_id"
	fieldName    = "name"
	fieldBalance = "balance"
)

var applyDeltaScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return false
end
return redis.call('HINCRBYFLOAT', KEYS[1], 'balance', ARGV[1])
`)

var createAccountScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
redis.call('HSET', KEYS[1], 'user_id', ARGV[1], 'name', ARGV[2], 'balance', ARGV[3])
return 1
`)

// AccountStore implements ledger.AccountStore.
type AccountStore struct {
	client redis.UniversalClient
}

// NewAccountStore creates an AccountStore on client.
func NewAccountStore(client redis.UniversalClient) *AccountStore {
	return &AccountStore{client: client}
}

// Dial connects to addr and verifies the connection.
func Dial(ctx context.Context, addr, password string, db int) (*AccountStore, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("Dial: ping %s: %w", addr, classify(err))
	}
	return NewAccountStore(client), nil
}

// Close closes the underlying client.
func (s *AccountStore) Close() error {
	return s.client.Close()
}

func accountKey(accountID string) string {
	return keyPrefix + accountID
}

// GetAccount implements ledger.AccountStore.
func (s *AccountStore) GetAccount(ctx context.Context, accountID string) (*domain.Account, error) {
	fields, err := s.client.HGetAll(ctx, accountKey(accountID)).Result()
	if err != nil {
		return nil, fmt.Errorf("GetAccount: %w", classify(err))
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("GetAccount: account %s: %w", accountID, domain.ErrNotFound)
	}

	balance, err := decimal.NewFromString(fields[fieldBalance])
	if err != nil {
		return nil, fmt.Errorf("GetAccount: parsing balance %q: %w", fields[fieldBalance], err)
	}
	return &domain.Account{
		AccountID: accountID,
		UserID:    fields[fieldUserID],
		Name:      fields[fieldName],
		Balance:   balance,
	}, nil
}

// ApplyDelta implements ledger.AccountStore. Balances use Redis float
// arithmetic, which is exact up to about 17 significant digits.
func (s *AccountStore) ApplyDelta(ctx context.Context, accountID string, delta decimal.Decimal) (decimal.Decimal, error) {
	out, err := applyDeltaScript.Run(ctx, s.client, []string{accountKey(accountID)}, delta.String()).Text()
	if errors.Is(err, redis.Nil) {
		return decimal.Zero, fmt.Errorf("ApplyDelta: account %s: %w", accountID, domain.ErrNotFound)
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("ApplyDelta: %w", classify(err))
	}

	balance, err := decimal.NewFromString(out)
	if err != nil {
		return decimal.Zero, fmt.Errorf("ApplyDelta: parsing balance %q: %w", out, err)
	}
	return balance, nil
}

// CreateAccount stores a new account. It fails with domain.ErrConflict if the
// id is taken.
func (s *AccountStore) CreateAccount(ctx context.Context, acc *domain.Account) error {
	created, err := createAccountScript.Run(ctx, s.client, []string{accountKey(acc.AccountID)},
		acc.UserID, acc.Name, acc.Balance.String()).Int()
	if err != nil {
		return fmt.Errorf("CreateAccount: %w", classify(err))
	}
	if created == 0 {
		return fmt.Errorf("CreateAccount: account %s: %w", acc.AccountID, domain.ErrConflict)
	}
	return nil
}

// classify maps go-redis errors onto domain error kinds.
func classify(err error) error {
	if errors.Is(err, redis.Nil) {
		return fmt.Errorf("%v: %w", err, domain.ErrNotFound)
	}
	if errors.Is(err, redis.TxFailedErr) {
		return fmt.Errorf("%v: %w", err, domain.ErrConflict)
	}
	return fmt.Errorf("%v: %w", err, domain.ErrStoreUnavailable)
}

var _ ledger.AccountStore = (*AccountStore)(nil)
