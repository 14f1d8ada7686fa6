// Package memory provides in-memory implementations of the ledger stores.
// They are safe for concurrent use and lose all data on restart.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dvloznov/fundnote-ledger/internal/domain"
	"github.com/dvloznov/fundnote-ledger/internal/ledger"
	"github.com/shopspring/decimal"
)

// AccountStore is an in-memory implementation of ledger.AccountStore.
type AccountStore struct {
	mu       sync.RWMutex
	accounts map[string]*domain.Account
}

// NewAccountStore creates a new in-memory account store.
func NewAccountStore() *AccountStore {
	return &AccountStore{
		accounts: make(map[string]*domain.Account),
	}
}

// CreateAccount seeds an account. It fails if the id is taken.
func (s *AccountStore) CreateAccount(ctx context.Context, acc *domain.Account) error {
	if acc.AccountID == "" {
		return fmt.Errorf("CreateAccount: account ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accounts[acc.AccountID]; exists {
		return fmt.Errorf("CreateAccount: account %s: %w", acc.AccountID, domain.ErrConflict)
	}

	c := *acc
	s.accounts[acc.AccountID] = &c
	return nil
}

// GetAccount implements ledger.AccountStore.
func (s *AccountStore) GetAccount(ctx context.Context, accountID string) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acc, exists := s.accounts[accountID]
	if !exists {
		return nil, fmt.Errorf("account %s: %w", accountID, domain.ErrNotFound)
	}

	c := *acc
	return &c, nil
}

// ApplyDelta implements ledger.AccountStore. The increment happens under the
// write lock.
func (s *AccountStore) ApplyDelta(ctx context.Context, accountID string, delta decimal.Decimal) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, exists := s.accounts[accountID]
	if !exists {
		return decimal.Zero, fmt.Errorf("account %s: %w", accountID, domain.ErrNotFound)
	}

	acc.Balance = acc.Balance.Add(delta)
	return acc.Balance, nil
}

// ListAccounts returns the accounts owned by userID ordered by id.
func (s *AccountStore) ListAccounts(ctx context.Context, userID string) ([]*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Account
	for _, acc := range s.accounts {
		if acc.UserID != userID {
			continue
		}
		c := *acc
		result = append(result, &c)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].AccountID < result[j].AccountID
	})
	return result, nil
}

var _ ledger.AccountStore = (*AccountStore)(nil)
