package resilient

import (
	"context"
	"time"

	"github.com/dvloznov/fundnote-ledger/internal/domain"
	"github.com/dvloznov/fundnote-ledger/internal/ledger"
	"github.com/dvloznov/fundnote-ledger/internal/metrics"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// AccountStore guards a ledger.AccountStore.
type AccountStore struct {
	next ledger.AccountStore
	*breaker
}

// NewAccountStore wraps next. name labels logs and metrics.
func NewAccountStore(name string, next ledger.AccountStore, cfg Config, rec metrics.Recorder, log zerolog.Logger) *AccountStore {
	return &AccountStore{next: next, breaker: newBreaker(name, cfg, rec, log)}
}

func (s *AccountStore) GetAccount(ctx context.Context, accountID string) (*domain.Account, error) {
	return do(ctx, s.breaker, "get_account", func(ctx context.Context) (*domain.Account, error) {
		return s.next.GetAccount(ctx, accountID)
	})
}

func (s *AccountStore) ApplyDelta(ctx context.Context, accountID string, delta decimal.Decimal) (decimal.Decimal, error) {
	return do(ctx, s.breaker, "apply_delta", func(ctx context.Context) (decimal.Decimal, error) {
		return s.next.ApplyDelta(ctx, accountID, delta)
	})
}

// TransactionStore guards a ledger.TransactionStore.
type TransactionStore struct {
	next ledger.TransactionStore
	*breaker
}

// NewTransactionStore wraps next. name labels logs and metrics.
func NewTransactionStore(name string, next ledger.TransactionStore, cfg Config, rec metrics.Recorder, log zerolog.Logger) *TransactionStore {
	return &TransactionStore{next: next, breaker: newBreaker(name, cfg, rec, log)}
}

func (s *TransactionStore) Get(ctx context.Context, transactionID string) (*domain.Transaction, error) {
	return do(ctx, s.breaker, "get", func(ctx context.Context) (*domain.Transaction, error) {
		return s.next.Get(ctx, transactionID)
	})
}

func (s *TransactionStore) Put(ctx context.Context, t *domain.Transaction) (time.Time, error) {
	return do(ctx, s.breaker, "put", func(ctx context.Context) (time.Time, error) {
		return s.next.Put(ctx, t)
	})
}

func (s *TransactionStore) Delete(ctx context.Context, transactionID string, version int64) (time.Time, error) {
	return do(ctx, s.breaker, "delete", func(ctx context.Context) (time.Time, error) {
		return s.next.Delete(ctx, transactionID, version)
	})
}

func (s *TransactionStore) QueryByOwner(ctx context.Context, ownerID string, filter ledger.Filter) ([]*domain.Transaction, error) {
	return do(ctx, s.breaker, "query_by_owner", func(ctx context.Context) ([]*domain.Transaction, error) {
		return s.next.QueryByOwner(ctx, ownerID, filter)
	})
}

func (s *TransactionStore) BatchDelete(ctx context.Context, transactionIDs []string) (int, error) {
	return do(ctx, s.breaker, "batch_delete", func(ctx context.Context) (int, error) {
		return s.next.BatchDelete(ctx, transactionIDs)
	})
}

var (
	_ ledger.AccountStore     = (*AccountStore)(nil)
	_ ledger.TransactionStore = (*TransactionStore)(nil)
)
