package ledger

import (
	"context"
	"time"

	"github.com/dvloznov/fundnote-ledger/internal/domain"
	"github.com/shopspring/decimal"
)

// AccountStore provides the account operations the engine consumes.
type AccountStore interface {
	// GetAccount returns the account or an error wrapping domain.ErrNotFound.
	GetAccount(ctx context.Context, accountID string) (*domain.Account, error)

	// ApplyDelta atomically adds delta to the stored balance of one account and
	// returns the balance after the increment. Implementations must never
	// read the balance, compute in the caller and write it back.
	ApplyDelta(ctx context.Context, accountID string, delta decimal.Decimal) (decimal.Decimal, error)
}

// TransactionStore provides the transaction record operations the engine consumes.
type TransactionStore interface {
	// Get returns the record or an error wrapping domain.ErrNotFound.
	Get(ctx context.Context, transactionID string) (*domain.Transaction, error)

	// Put writes the record and returns the write timestamp. A zero
	// t.Version inserts and fails with domain.ErrConflict if the id exists.
	// Otherwise the stored record is replaced only while its version still
	// equals t.Version, and the stored version is incremented; any other
	// state fails with domain.ErrConflict.
	Put(ctx context.Context, t *domain.Transaction) (time.Time, error)

	// Delete removes the record only while its version equals version and
	// returns the write timestamp. A changed or missing record fails with
	// domain.ErrConflict.
	Delete(ctx context.Context, transactionID string, version int64) (time.Time, error)

	// QueryByOwner returns the owner's records matching filter.
	QueryByOwner(ctx context.Context, ownerID string, filter Filter) ([]*domain.Transaction, error)

	// BatchDelete removes all ids in one all-or-nothing write and returns the
	// number of removed records.
	BatchDelete(ctx context.Context, transactionIDs []string) (int, error)
}

// Filter is the predicate of an owner query. Zero fields do not constrain.
type Filter struct {
	From     time.Time // inclusive lower bound on DateCreated
	To       time.Time // exclusive upper bound on DateCreated
	Category string
}

// Match reports whether t satisfies the filter.
func (f Filter) Match(t *domain.Transaction) bool {
	if !f.From.IsZero() && t.DateCreated.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !t.DateCreated.Before(f.To) {
		return false
	}
	if f.Category != "" && t.Category != f.Category {
		return false
	}
	return true
}

// Reconciler accepts compensating effects the engine could not apply inline.
type Reconciler interface {
	// ScheduleReconciliation hands effects over for automatic application.
	ScheduleReconciliation(ctx context.Context, operationID, userID string, effects []domain.Effect, cause error) (string, error)

	// RecordUnresolved files effects that must not be applied automatically
	// because the delta they compensate may or may not have landed.
	RecordUnresolved(ctx context.Context, operationID, userID string, effects []domain.Effect, cause error) (string, error)
}

// Archiver exports records before a destructive purge and returns the
// location of the export.
type Archiver interface {
	ArchivePurge(ctx context.Context, userID string, txs []*domain.Transaction) (string, error)
}
