// Package ledger implements the balance-consistency engine: every create,
// update and delete of a transaction is paired with atomic balance deltas on
// the accounts it references, and a failed operation is compensated so that
// balances always match the transaction log.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dvloznov/fundnote-ledger/internal/domain"
	"github.com/dvloznov/fundnote-ledger/internal/metrics"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Payload is the caller-supplied part of a transaction. Identity, owner and
// timestamps are always assigned by the engine.
type Payload struct {
	Type          domain.TransactionType
	Amount        decimal.Decimal
	FromAccountID string
	ToAccountID   string
	Category      string
	Description   string
}

// WriteResult is returned by every successful mutation.
type WriteResult struct {
	TransactionID string    `json:"transaction_id"`
	Timestamp     time.Time `json:"timestamp"`
}

// PurgeResult is returned by PurgeMine.
type PurgeResult struct {
	Removed     int    `json:"removed"`
	NothingToDo bool   `json:"nothing_to_do"`
	ArchiveURI  string `json:"archive_uri,omitempty"`
}

// Options configures an Engine. Zero values select defaults.
type Options struct {
	// Location defines month boundaries for ListMineByMonth. Defaults to UTC.
	Location *time.Location

	// Clock assigns creation timestamps. Defaults to time.Now.
	Clock func() time.Time

	// NewID assigns transaction and operation ids. Defaults to uuid.NewString.
	NewID func() string

	Logger     zerolog.Logger
	Metrics    metrics.Recorder
	Reconciler Reconciler

	// Archiver, when set, exports records before PurgeMine deletes them.
	Archiver Archiver
}

// Engine is the balance-consistency engine. It holds no mutable state of its
// own; all state lives in the stores.
type Engine struct {
	accounts AccountStore
	txns     TransactionStore

	loc        *time.Location
	clock      func() time.Time
	newID      func() string
	log        zerolog.Logger
	metrics    metrics.Recorder
	reconciler Reconciler
	archiver   Archiver
}

// New creates an Engine over the given stores.
func New(accounts AccountStore, txns TransactionStore, opts Options) *Engine {
	e := &Engine{
		accounts:   accounts,
		txns:       txns,
		loc:        opts.Location,
		clock:      opts.Clock,
		newID:      opts.NewID,
		log:        opts.Logger,
		metrics:    opts.Metrics,
		reconciler: opts.Reconciler,
		archiver:   opts.Archiver,
	}
	if e.loc == nil {
		e.loc = time.UTC
	}
	if e.clock == nil {
		e.clock = time.Now
	}
	if e.newID == nil {
		e.newID = uuid.NewString
	}
	if e.metrics == nil {
		e.metrics = metrics.NoOp{}
	}
	return e
}

// Location returns the zone used for month boundaries.
func (e *Engine) Location() *time.Location {
	return e.loc
}

// Create validates payload, applies its balance effects and persists it as a
// new transaction owned by callerID.
func (e *Engine) Create(ctx context.Context, callerID string, payload Payload) (res WriteResult, err error) {
	defer e.observe("create", time.Now(), &err)

	if callerID == "" {
		return WriteResult{}, fmt.Errorf("Create: %w", domain.ErrUnauthorized)
	}

	tx := payload.transaction()
	tx.TransactionID = e.newID()
	tx.UserID = callerID
	tx.DateCreated = e.clock().UTC()

	if err := domain.Validate(tx); err != nil {
		return WriteResult{}, fmt.Errorf("Create: %w", err)
	}

	// Mutations run to completion once started so that compensation is never
	// cut short by a cancelled request.
	mctx := context.WithoutCancel(ctx)
	op := e.begin("create", callerID, tx.TransactionID)

	if err := op.apply(mctx, domain.ComputeEffects(tx)); err != nil {
		return WriteResult{}, op.abort(mctx, fmt.Errorf("Create: apply effects: %w", err))
	}

	ts, err := e.txns.Put(mctx, tx)
	if err != nil {
		return WriteResult{}, op.abort(mctx, fmt.Errorf("Create: put transaction: %w", err))
	}

	return WriteResult{TransactionID: tx.TransactionID, Timestamp: ts}, nil
}

// GetByID returns the caller's transaction.
func (e *Engine) GetByID(ctx context.Context, callerID, transactionID string) (_ *domain.Transaction, err error) {
	defer e.observe("get", time.Now(), &err)

	return e.fetchOwned(ctx, "GetByID", callerID, transactionID)
}

// ListMine returns all of the caller's transactions ordered by creation time.
func (e *Engine) ListMine(ctx context.Context, callerID string) (_ []*domain.Transaction, err error) {
	defer e.observe("list", time.Now(), &err)

	return e.queryMine(ctx, "ListMine", callerID, Filter{})
}

// ListMineByMonth returns the caller's transactions created within the given
// calendar month in the engine's location.
func (e *Engine) ListMineByMonth(ctx context.Context, callerID string, year, month int) (_ []*domain.Transaction, err error) {
	defer e.observe("list_month", time.Now(), &err)

	from, to, err := MonthRange(year, month, e.loc)
	if err != nil {
		return nil, fmt.Errorf("ListMineByMonth: %w", err)
	}
	return e.queryMine(ctx, "ListMineByMonth", callerID, Filter{From: from, To: to})
}

// ListMineByCategory returns the caller's transactions with exactly the given
// category.
func (e *Engine) ListMineByCategory(ctx context.Context, callerID, category string) (_ []*domain.Transaction, err error) {
	defer e.observe("list_category", time.Now(), &err)

	if strings.TrimSpace(category) == "" {
		return nil, fmt.Errorf("ListMineByCategory: %w", domain.Invalid(domain.ReasonMissingCategory, "category"))
	}
	return e.queryMine(ctx, "ListMineByCategory", callerID, Filter{Category: category})
}

// ListByUser lists transactions of an arbitrary user without an ownership
// check. It is a maintenance path; callers must gate it on an admin role.
func (e *Engine) ListByUser(ctx context.Context, userID string) (_ []*domain.Transaction, err error) {
	defer e.observe("admin_list", time.Now(), &err)

	if userID == "" {
		return nil, fmt.Errorf("ListByUser: %w", domain.Invalid(domain.ReasonMissingUserID, "user_id"))
	}
	txs, err := e.txns.QueryByOwner(ctx, userID, Filter{})
	if err != nil {
		return nil, fmt.Errorf("ListByUser: query: %w", err)
	}
	sortByCreation(txs)
	return txs, nil
}

// GetAccount returns the caller's account with its cached balance.
func (e *Engine) GetAccount(ctx context.Context, callerID, accountID string) (_ *domain.Account, err error) {
	defer e.observe("get_account", time.Now(), &err)

	if accountID == "" {
		return nil, fmt.Errorf("GetAccount: %w", domain.ErrNotFound)
	}
	acc, err := e.accounts.GetAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("GetAccount: %w", err)
	}
	if err := assertOwns(acc, callerID); err != nil {
		return nil, fmt.Errorf("GetAccount: %w", err)
	}
	return acc, nil
}

// Update replaces the caller's transaction with payload. The old effects are
// reversed in full and the new effects applied in full. The record write only
// succeeds against the version that was read, so a concurrent Update or
// Delete of the same record makes this call compensate and fail with
// domain.ErrConflict.
func (e *Engine) Update(ctx context.Context, callerID, transactionID string, payload Payload) (res WriteResult, err error) {
	defer e.observe("update", time.Now(), &err)

	existing, err := e.fetchOwned(ctx, "Update", callerID, transactionID)
	if err != nil {
		return WriteResult{}, err
	}

	next := payload.transaction()
	next.TransactionID = existing.TransactionID
	next.UserID = callerID
	next.DateCreated = existing.DateCreated
	next.Version = existing.Version

	if err := domain.Validate(next); err != nil {
		return WriteResult{}, fmt.Errorf("Update: %w", err)
	}

	mctx := context.WithoutCancel(ctx)
	op := e.begin("update", callerID, transactionID)

	if err := op.apply(mctx, domain.Reverse(domain.ComputeEffects(existing))); err != nil {
		return WriteResult{}, op.abort(mctx, fmt.Errorf("Update: reverse old effects: %w", err))
	}
	if err := op.apply(mctx, domain.ComputeEffects(next)); err != nil {
		return WriteResult{}, op.abort(mctx, fmt.Errorf("Update: apply new effects: %w", err))
	}

	ts, err := e.txns.Put(mctx, next)
	if err != nil {
		return WriteResult{}, op.abort(mctx, fmt.Errorf("Update: put transaction: %w", err))
	}

	return WriteResult{TransactionID: next.TransactionID, Timestamp: ts}, nil
}

// Delete reverses the caller's transaction effects and then removes it, with
// the same version check as Update.
func (e *Engine) Delete(ctx context.Context, callerID, transactionID string) (res WriteResult, err error) {
	defer e.observe("delete", time.Now(), &err)

	existing, err := e.fetchOwned(ctx, "Delete", callerID, transactionID)
	if err != nil {
		return WriteResult{}, err
	}

	mctx := context.WithoutCancel(ctx)
	op := e.begin("delete", callerID, transactionID)

	if err := op.apply(mctx, domain.Reverse(domain.ComputeEffects(existing))); err != nil {
		return WriteResult{}, op.abort(mctx, fmt.Errorf("Delete: reverse effects: %w", err))
	}

	ts, err := e.txns.Delete(mctx, transactionID, existing.Version)
	if err != nil {
		return WriteResult{}, op.abort(mctx, fmt.Errorf("Delete: delete transaction: %w", err))
	}

	return WriteResult{TransactionID: transactionID, Timestamp: ts}, nil
}

// PurgeMine removes every transaction of the caller in one all-or-nothing
// batch. Balances are not touched.
func (e *Engine) PurgeMine(ctx context.Context, callerID string) (res PurgeResult, err error) {
	defer e.observe("purge", time.Now(), &err)

	txs, err := e.queryMine(ctx, "PurgeMine", callerID, Filter{})
	if err != nil {
		return PurgeResult{}, err
	}
	if len(txs) == 0 {
		return PurgeResult{NothingToDo: true}, nil
	}

	if e.archiver != nil {
		uri, err := e.archiver.ArchivePurge(ctx, callerID, txs)
		if err != nil {
			return PurgeResult{}, fmt.Errorf("PurgeMine: archive: %w", err)
		}
		res.ArchiveURI = uri
	}

	ids := make([]string, len(txs))
	for i, t := range txs {
		ids[i] = t.TransactionID
	}

	removed, err := e.txns.BatchDelete(context.WithoutCancel(ctx), ids)
	if err != nil {
		return PurgeResult{}, fmt.Errorf("PurgeMine: batch delete: %w", err)
	}

	e.log.Info().
		Str("user_id", callerID).
		Int("removed", removed).
		Str("archive_uri", res.ArchiveURI).
		Msg("Purged user transactions")

	res.Removed = removed
	return res, nil
}

func (e *Engine) fetchOwned(ctx context.Context, op, callerID, transactionID string) (*domain.Transaction, error) {
	if transactionID == "" {
		return nil, fmt.Errorf("%s: %w", op, domain.Invalid(domain.ReasonMissingID, "transaction_id"))
	}
	tx, err := e.txns.Get(ctx, transactionID)
	if err != nil {
		return nil, fmt.Errorf("%s: get transaction: %w", op, err)
	}
	if err := assertOwns(tx, callerID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return tx, nil
}

func (e *Engine) queryMine(ctx context.Context, op, callerID string, filter Filter) ([]*domain.Transaction, error) {
	if callerID == "" {
		return nil, fmt.Errorf("%s: %w", op, domain.ErrUnauthorized)
	}
	txs, err := e.txns.QueryByOwner(ctx, callerID, filter)
	if err != nil {
		return nil, fmt.Errorf("%s: query: %w", op, err)
	}
	sortByCreation(txs)
	return txs, nil
}

func (e *Engine) observe(operation string, start time.Time, err *error) {
	e.metrics.RecordOperation(operation, Outcome(*err), time.Since(start))
}

func (p Payload) transaction() *domain.Transaction {
	return &domain.Transaction{
		Type:          p.Type,
		Amount:        p.Amount,
		FromAccountID: strings.TrimSpace(p.FromAccountID),
		ToAccountID:   strings.TrimSpace(p.ToAccountID),
		Category:      strings.TrimSpace(p.Category),
		Description:   p.Description,
	}
}

func sortByCreation(txs []*domain.Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		return txs[i].DateCreated.Before(txs[j].DateCreated)
	})
}

// Outcome maps err to the label used for operation metrics.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrValidation):
		return "validation"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, domain.ErrConflict):
		return "conflict"
	case errors.Is(err, domain.ErrStoreUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}
