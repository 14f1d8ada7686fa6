package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dvloznov/fundnote-ledger/internal/domain"
	"github.com/dvloznov/fundnote-ledger/internal/ledger"
)

// TransactionStore is an in-memory implementation of ledger.TransactionStore.
type TransactionStore struct {
	mu    sync.RWMutex
	txns  map[string]*domain.Transaction
	clock func() time.Time
}

// NewTransactionStore creates a new in-memory transaction store.
func NewTransactionStore() *TransactionStore {
	return &TransactionStore{
		txns:  make(map[string]*domain.Transaction),
		clock: time.Now,
	}
}

// Get implements ledger.TransactionStore.
func (s *TransactionStore) Get(ctx context.Context, transactionID string) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, exists := s.txns[transactionID]
	if !exists {
		return nil, fmt.Errorf("transaction %s: %w", transactionID, domain.ErrNotFound)
	}
	return t.Clone(), nil
}

// Put implements ledger.TransactionStore.
func (s *TransactionStore) Put(ctx context.Context, t *domain.Transaction) (time.Time, error) {
	if t.TransactionID == "" {
		return time.Time{}, fmt.Errorf("Put: %w", domain.Invalid(domain.ReasonMissingID, "transaction_id"))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.txns[t.TransactionID]
	switch {
	case t.Version == 0 && exists:
		return time.Time{}, fmt.Errorf("Put: transaction %s already exists: %w", t.TransactionID, domain.ErrConflict)
	case t.Version != 0 && (!exists || current.Version != t.Version):
		return time.Time{}, fmt.Errorf("Put: transaction %s changed since version %d: %w", t.TransactionID, t.Version, domain.ErrConflict)
	}

	ts := s.clock().UTC()
	c := t.Clone()
	c.UpdatedAt = ts
	c.Version = t.Version + 1
	s.txns[t.TransactionID] = c
	return ts, nil
}

// Delete implements ledger.TransactionStore.
func (s *TransactionStore) Delete(ctx context.Context, transactionID string, version int64) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.txns[transactionID]
	if !exists || current.Version != version {
		return time.Time{}, fmt.Errorf("Delete: transaction %s changed since version %d: %w", transactionID, version, domain.ErrConflict)
	}
	delete(s.txns, transactionID)
	return s.clock().UTC(), nil
}

// QueryByOwner implements ledger.TransactionStore.
func (s *TransactionStore) QueryByOwner(ctx context.Context, ownerID string, filter ledger.Filter) ([]*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Transaction
	for _, t := range s.txns {
		if t.UserID != ownerID || !filter.Match(t) {
			continue
		}
		result = append(result, t.Clone())
	}
	return result, nil
}

// BatchDelete implements ledger.TransactionStore. Either every id is removed
// or none is.
func (s *TransactionStore) BatchDelete(ctx context.Context, transactionIDs []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range transactionIDs {
		if _, exists := s.txns[id]; !exists {
			return 0, fmt.Errorf("BatchDelete: transaction %s: %w", id, domain.ErrNotFound)
		}
	}
	for _, id := range transactionIDs {
		delete(s.txns, id)
	}
	return len(transactionIDs), nil
}

var _ ledger.TransactionStore = (*TransactionStore)(nil)
