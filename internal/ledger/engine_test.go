package ledger_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dvloznov/fundnote-ledger/internal/domain"
	"github.com/dvloznov/fundnote-ledger/internal/ledger"
	"github.com/dvloznov/fundnote-ledger/internal/store/memory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

type fixture struct {
	accounts *flakyAccounts
	txns     *flakyTransactions
	engine   *ledger.Engine
	now      time.Time
	recon    *recordingReconciler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	f := &fixture{
		accounts: &flakyAccounts{AccountStore: memory.NewAccountStore()},
		txns:     &flakyTransactions{TransactionStore: memory.NewTransactionStore()},
		now:      time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC),
		recon:    &recordingReconciler{},
	}
	for _, acc := range []*domain.Account{
		{AccountID: "acc-1", UserID: "alice", Name: "Checking"},
		{AccountID: "acc-2", UserID: "alice", Name: "Savings"},
		{AccountID: "acc-9", UserID: "bob", Name: "Bob's"},
	} {
		require.NoError(t, f.accounts.CreateAccount(ctx, acc))
	}

	f.engine = ledger.New(f.accounts, f.txns, ledger.Options{
		Clock:      func() time.Time { return f.now },
		Reconciler: f.recon,
	})
	return f
}

func (f *fixture) balance(t *testing.T, accountID string) string {
	t.Helper()
	acc, err := f.accounts.GetAccount(context.Background(), accountID)
	require.NoError(t, err)
	return acc.Balance.String()
}

func income(amount int64, to string) ledger.Payload {
	return ledger.Payload{Type: domain.TypeIncome, Amount: decimal.NewFromInt(amount), ToAccountID: to, Category: "Salary"}
}

func expense(amount int64, from string) ledger.Payload {
	return ledger.Payload{Type: domain.TypeExpense, Amount: decimal.NewFromInt(amount), FromAccountID: from, Category: "Food"}
}

func TestEngine_CreateIncomeThenExpense(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.Create(ctx, "alice", income(100, "acc-1"))
	require.NoError(t, err)
	assert.Equal(t, "100", f.balance(t, "acc-1"))

	_, err = f.engine.Create(ctx, "alice", expense(40, "acc-1"))
	require.NoError(t, err)
	assert.Equal(t, "60", f.balance(t, "acc-1"))
}

func TestEngine_Create_AssignsIdentity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.engine.Create(ctx, "alice", income(5, "acc-1"))
	require.NoError(t, err)
	assert.NotEmpty(t, res.TransactionID)
	assert.False(t, res.Timestamp.IsZero())

	tx, err := f.engine.GetByID(ctx, "alice", res.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, "alice", tx.UserID)
	assert.Equal(t, f.now, tx.DateCreated)
}

func TestEngine_Create_ValidationBeforeMutation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.Create(ctx, "alice", ledger.Payload{Type: domain.TypeExpense, Amount: decimal.NewFromInt(10), FromAccountID: "acc-1"})
	require.Error(t, err)
	reason, ok := domain.ReasonOf(err)
	require.True(t, ok)
	assert.Equal(t, domain.ReasonMissingCategory, reason)
	assert.Equal(t, "0", f.balance(t, "acc-1"))
	assert.Zero(t, f.accounts.deltaCalls())
}

func TestEngine_Create_UnknownAccount(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Create(context.Background(), "alice", income(10, "nope"))
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestEngine_Create_ForeignAccount(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Create(context.Background(), "alice", income(10, "acc-9"))
	assert.True(t, errors.Is(err, domain.ErrUnauthorized))
	assert.Equal(t, "0", f.balance(t, "acc-9"))
}

func TestEngine_Create_EmptyCaller(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Create(context.Background(), "", income(10, "acc-1"))
	assert.True(t, errors.Is(err, domain.ErrUnauthorized))
}

func TestEngine_Note_HasNoBalanceEffect(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Create(context.Background(), "alice", ledger.Payload{Type: domain.TypeNote, Amount: decimal.NewFromInt(3), Description: "reminder"})
	require.NoError(t, err)
	assert.Zero(t, f.accounts.deltaCalls())
}

func TestEngine_Transfer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.Create(ctx, "alice", ledger.Payload{
		Type: domain.TypeTransfer, Amount: decimal.NewFromInt(25), FromAccountID: "acc-1", ToAccountID: "acc-2",
	})
	require.NoError(t, err)
	assert.Equal(t, "-25", f.balance(t, "acc-1"))
	assert.Equal(t, "25", f.balance(t, "acc-2"))
}

func TestEngine_Transfer_ForeignDestinationIsCompensated(t *testing.T) {
	f := newFixture(t)

	// acc-1 sorts before acc-9, so its debit commits before the ownership
	// check on acc-9 fails.
	_, err := f.engine.Create(context.Background(), "alice", ledger.Payload{
		Type: domain.TypeTransfer, Amount: decimal.NewFromInt(25), FromAccountID: "acc-1", ToAccountID: "acc-9",
	})
	assert.True(t, errors.Is(err, domain.ErrUnauthorized))
	assert.Equal(t, "0", f.balance(t, "acc-1"))
	assert.Equal(t, "0", f.balance(t, "acc-9"))
}

func TestEngine_Scenario_IncomeUpdateToExpenseDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.engine.Create(ctx, "alice", income(100, "acc-1"))
	require.NoError(t, err)
	assert.Equal(t, "100", f.balance(t, "acc-1"))

	_, err = f.engine.Update(ctx, "alice", res.TransactionID, expense(30, "acc-1"))
	require.NoError(t, err)
	assert.Equal(t, "-30", f.balance(t, "acc-1"))

	tx, err := f.engine.GetByID(ctx, "alice", res.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, domain.TypeExpense, tx.Type)
	assert.Equal(t, f.now, tx.DateCreated)

	_, err = f.engine.Delete(ctx, "alice", res.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, "0", f.balance(t, "acc-1"))

	_, err = f.engine.GetByID(ctx, "alice", res.TransactionID)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestEngine_Update_SamePayloadIsIdempotentOnBalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.engine.Create(ctx, "alice", expense(17, "acc-2"))
	require.NoError(t, err)

	_, err = f.engine.Update(ctx, "alice", res.TransactionID, expense(17, "acc-2"))
	require.NoError(t, err)
	assert.Equal(t, "-17", f.balance(t, "acc-2"))
}

func TestEngine_Update_MovesBetweenAccounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.engine.Create(ctx, "alice", income(50, "acc-1"))
	require.NoError(t, err)

	_, err = f.engine.Update(ctx, "alice", res.TransactionID, income(50, "acc-2"))
	require.NoError(t, err)
	assert.Equal(t, "0", f.balance(t, "acc-1"))
	assert.Equal(t, "50", f.balance(t, "acc-2"))
}

func TestEngine_Update_InvalidPayloadLeavesStateUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.engine.Create(ctx, "alice", income(50, "acc-1"))
	require.NoError(t, err)
	calls := f.accounts.deltaCalls()

	_, err = f.engine.Update(ctx, "alice", res.TransactionID, ledger.Payload{Type: "REFUND", Amount: decimal.NewFromInt(1)})
	assert.True(t, errors.Is(err, domain.ErrValidation))
	assert.Equal(t, calls, f.accounts.deltaCalls())
	assert.Equal(t, "50", f.balance(t, "acc-1"))
}

func TestEngine_Update_ForeignAccountRestoresOldEffects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.engine.Create(ctx, "alice", income(50, "acc-1"))
	require.NoError(t, err)

	_, err = f.engine.Update(ctx, "alice", res.TransactionID, income(50, "acc-9"))
	assert.True(t, errors.Is(err, domain.ErrUnauthorized))
	assert.Equal(t, "50", f.balance(t, "acc-1"))
	assert.Equal(t, "0", f.balance(t, "acc-9"))
}

func TestEngine_OtherUsersTransaction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.engine.Create(ctx, "alice", income(10, "acc-1"))
	require.NoError(t, err)

	tx, err := f.engine.GetByID(ctx, "bob", res.TransactionID)
	assert.True(t, errors.Is(err, domain.ErrUnauthorized))
	assert.Nil(t, tx)

	_, err = f.engine.Update(ctx, "bob", res.TransactionID, income(10, "acc-9"))
	assert.True(t, errors.Is(err, domain.ErrUnauthorized))

	_, err = f.engine.Delete(ctx, "bob", res.TransactionID)
	assert.True(t, errors.Is(err, domain.ErrUnauthorized))

	assert.Equal(t, "10", f.balance(t, "acc-1"))
}

func TestEngine_NotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.GetByID(ctx, "alice", "missing")
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	_, err = f.engine.Update(ctx, "alice", "missing", income(1, "acc-1"))
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	_, err = f.engine.Delete(ctx, "alice", "missing")
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	_, err = f.engine.GetAccount(ctx, "alice", "missing")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestEngine_GetAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.Create(ctx, "alice", income(12, "acc-1"))
	require.NoError(t, err)

	acc, err := f.engine.GetAccount(ctx, "alice", "acc-1")
	require.NoError(t, err)
	assert.Equal(t, "12", acc.Balance.String())

	_, err = f.engine.GetAccount(ctx, "bob", "acc-1")
	assert.True(t, errors.Is(err, domain.ErrUnauthorized))
}

func TestEngine_ConcurrentExpenses(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.Create(ctx, "alice", income(100, "acc-1"))
	require.NoError(t, err)

	var g errgroup.Group
	for i := 0; i < 2; i++ {
		g.Go(func() error {
			_, err := f.engine.Create(ctx, "alice", expense(10, "acc-1"))
			return err
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, "80", f.balance(t, "acc-1"))
}

func newRendezvousEngine(t *testing.T, f *fixture) (*ledger.Engine, *rendezvousTransactions, string) {
	t.Helper()
	txns := newRendezvousTransactions(2)
	engine := ledger.New(f.accounts, txns, ledger.Options{
		Clock:      func() time.Time { return f.now },
		Reconciler: f.recon,
	})
	res, err := engine.Create(context.Background(), "alice", income(100, "acc-1"))
	require.NoError(t, err)
	return engine, txns, res.TransactionID
}

// runPair runs both calls concurrently and returns their errors in order.
func runPair(first, second func() error) (error, error) {
	var errs [2]error
	var g errgroup.Group
	g.Go(func() error { errs[0] = first(); return nil })
	g.Go(func() error { errs[1] = second(); return nil })
	_ = g.Wait()
	return errs[0], errs[1]
}

func TestEngine_ConcurrentUpdatesOfSameRecord(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	engine, txns, id := newRendezvousEngine(t, f)

	err30, err50 := runPair(
		func() error { _, err := engine.Update(ctx, "alice", id, income(30, "acc-1")); return err },
		func() error { _, err := engine.Update(ctx, "alice", id, income(50, "acc-1")); return err },
	)
	require.True(t, (err30 == nil) != (err50 == nil), "exactly one update wins: %v, %v", err30, err50)
	for _, err := range []error{err30, err50} {
		if err != nil {
			assert.True(t, errors.Is(err, domain.ErrConflict))
		}
	}

	stored, err := txns.TransactionStore.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, stored.Amount.String(), f.balance(t, "acc-1"), "balance follows the surviving record")
	assert.Equal(t, int64(2), stored.Version)
	assert.Empty(t, f.recon.scheduled)
}

func TestEngine_ConcurrentUpdateAndDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	engine, txns, id := newRendezvousEngine(t, f)

	updateErr, deleteErr := runPair(
		func() error { _, err := engine.Update(ctx, "alice", id, income(30, "acc-1")); return err },
		func() error { _, err := engine.Delete(ctx, "alice", id); return err },
	)
	require.True(t, (updateErr == nil) != (deleteErr == nil), "exactly one write wins: %v, %v", updateErr, deleteErr)

	stored, err := txns.TransactionStore.Get(ctx, id)
	if deleteErr == nil {
		assert.True(t, errors.Is(updateErr, domain.ErrConflict))
		assert.True(t, errors.Is(err, domain.ErrNotFound), "losing update must not bring the record back")
		assert.Equal(t, "0", f.balance(t, "acc-1"))
		return
	}
	assert.True(t, errors.Is(deleteErr, domain.ErrConflict))
	require.NoError(t, err)
	assert.Equal(t, "30", stored.Amount.String())
	assert.Equal(t, "30", f.balance(t, "acc-1"))
}

func TestEngine_ListMineByMonth(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, ts := range []time.Time{
		time.Date(2024, 2, 29, 23, 59, 59, 0, time.UTC),
		time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 31, 23, 59, 59, 0, time.UTC),
		time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
	} {
		f.now = ts
		_, err := f.engine.Create(ctx, "alice", income(1, "acc-1"))
		require.NoError(t, err)
	}

	txs, err := f.engine.ListMineByMonth(ctx, "alice", 2024, 3)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), txs[0].DateCreated)
	assert.Equal(t, time.Date(2024, 3, 31, 23, 59, 59, 0, time.UTC), txs[1].DateCreated)

	_, err = f.engine.ListMineByMonth(ctx, "alice", 2024, 13)
	reason, ok := domain.ReasonOf(err)
	require.True(t, ok)
	assert.Equal(t, domain.ReasonInvalidMonth, reason)
}

func TestEngine_ListMineAndCategory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.now = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	_, err := f.engine.Create(ctx, "alice", expense(5, "acc-1"))
	require.NoError(t, err)
	f.now = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err = f.engine.Create(ctx, "alice", income(5, "acc-1"))
	require.NoError(t, err)
	_, err = f.engine.Create(ctx, "bob", income(5, "acc-9"))
	require.NoError(t, err)

	mine, err := f.engine.ListMine(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, domain.TypeIncome, mine[0].Type, "ordered by creation time")

	food, err := f.engine.ListMineByCategory(ctx, "alice", "Food")
	require.NoError(t, err)
	require.Len(t, food, 1)
	assert.Equal(t, domain.TypeExpense, food[0].Type)

	bobs, err := f.engine.ListByUser(ctx, "bob")
	require.NoError(t, err)
	assert.Len(t, bobs, 1)
}

func TestEngine_PurgeMine(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.engine.PurgeMine(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, res.NothingToDo)

	for i := 0; i < 3; i++ {
		_, err := f.engine.Create(ctx, "alice", income(10, "acc-1"))
		require.NoError(t, err)
	}
	_, err = f.engine.Create(ctx, "bob", income(10, "acc-9"))
	require.NoError(t, err)

	res, err = f.engine.PurgeMine(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 3, res.Removed)
	assert.False(t, res.NothingToDo)

	// Purge is destructive maintenance and does not reverse balances.
	assert.Equal(t, "30", f.balance(t, "acc-1"))

	left, err := f.engine.ListByUser(ctx, "bob")
	require.NoError(t, err)
	assert.Len(t, left, 1)
}

func TestEngine_PurgeMine_ArchivesFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	arch := &recordingArchiver{uri: "gs://bucket/purges/alice.jsonl"}
	engine := ledger.New(f.accounts, f.txns, ledger.Options{Archiver: arch})

	_, err := engine.Create(ctx, "alice", income(10, "acc-1"))
	require.NoError(t, err)

	res, err := engine.PurgeMine(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, arch.uri, res.ArchiveURI)
	assert.Len(t, arch.archived, 1)

	arch.err = errors.New("bucket gone")
	_, err = engine.Create(ctx, "alice", income(10, "acc-1"))
	require.NoError(t, err)
	_, err = engine.PurgeMine(ctx, "alice")
	require.Error(t, err)

	left, err := engine.ListMine(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, left, 1, "failed archive must abort the purge")
}

func TestEngine_PutFailureIsCompensated(t *testing.T) {
	f := newFixture(t)
	f.txns.putErr = fmt.Errorf("write timed out: %w", domain.ErrStoreUnavailable)

	_, err := f.engine.Create(context.Background(), "alice", income(100, "acc-1"))
	assert.True(t, errors.Is(err, domain.ErrStoreUnavailable))
	assert.Equal(t, "0", f.balance(t, "acc-1"))
	assert.Empty(t, f.recon.scheduled)
}

func TestEngine_DeleteFailureIsCompensated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.engine.Create(ctx, "alice", expense(20, "acc-1"))
	require.NoError(t, err)

	f.txns.deleteErr = domain.ErrConflict
	_, err = f.engine.Delete(ctx, "alice", res.TransactionID)
	assert.True(t, errors.Is(err, domain.ErrConflict))
	assert.Equal(t, "-20", f.balance(t, "acc-1"))
}

func TestEngine_UpdatePutFailureRestoresOriginal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.engine.Create(ctx, "alice", income(100, "acc-1"))
	require.NoError(t, err)

	f.txns.putErr = domain.ErrStoreUnavailable
	_, err = f.engine.Update(ctx, "alice", res.TransactionID, expense(30, "acc-2"))
	require.Error(t, err)
	assert.Equal(t, "100", f.balance(t, "acc-1"))
	assert.Equal(t, "0", f.balance(t, "acc-2"))
}

func TestEngine_FailedCompensationIsScheduled(t *testing.T) {
	f := newFixture(t)
	f.txns.putErr = domain.ErrStoreUnavailable
	// First delta succeeds, the compensating delta fails.
	f.accounts.failFrom = 2

	_, err := f.engine.Create(context.Background(), "alice", income(100, "acc-1"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrStoreUnavailable))

	var cerr *ledger.CompensationError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, "job-1", cerr.JobID)
	require.Len(t, cerr.Pending, 1)
	assert.Equal(t, "acc-1", cerr.Pending[0].AccountID)
	assert.Equal(t, "-100", cerr.Pending[0].Delta.String())

	require.Len(t, f.recon.scheduled, 1)
	assert.Equal(t, "alice", f.recon.scheduled[0].userID)
}

func TestEngine_UnknownDeltaOutcomeIsRecorded(t *testing.T) {
	f := newFixture(t)
	// The debit of acc-1 commits, the credit of acc-2 times out.
	f.accounts.failAt = 2
	f.accounts.failErr = domain.ErrStoreUnavailable

	_, err := f.engine.Create(context.Background(), "alice", ledger.Payload{
		Type: domain.TypeTransfer, Amount: decimal.NewFromInt(25), FromAccountID: "acc-1", ToAccountID: "acc-2",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrStoreUnavailable))
	assert.Equal(t, "0", f.balance(t, "acc-1"), "committed debit is compensated")

	require.Len(t, f.recon.unresolved, 1)
	got := f.recon.unresolved[0]
	assert.Equal(t, "alice", got.userID)
	require.Len(t, got.effects, 1)
	assert.Equal(t, "acc-2", got.effects[0].AccountID)
	assert.Equal(t, "-25", got.effects[0].Delta.String())
	assert.Empty(t, f.recon.scheduled)
}

func TestEngine_RejectedDeltaIsNotRecorded(t *testing.T) {
	f := newFixture(t)
	f.accounts.failAt = 1
	f.accounts.failErr = domain.ErrConflict

	_, err := f.engine.Create(context.Background(), "alice", income(10, "acc-1"))
	assert.True(t, errors.Is(err, domain.ErrConflict))
	assert.Empty(t, f.recon.unresolved)
	assert.Equal(t, "0", f.balance(t, "acc-1"))
}

func TestEngine_CancelledContextStillCompensates(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	f.txns.putErr = domain.ErrStoreUnavailable
	f.accounts.onDelta = cancel

	_, err := f.engine.Create(ctx, "alice", income(40, "acc-1"))
	require.Error(t, err)
	assert.Equal(t, "0", f.balance(t, "acc-1"))
}

func TestMonthRange(t *testing.T) {
	start, end, err := ledger.MonthRange(2024, 12, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), end)

	berlin, err := time.LoadLocation("Europe/Berlin")
	if err == nil {
		start, _, err = ledger.MonthRange(2024, 3, berlin)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2024, 2, 29, 23, 0, 0, 0, time.UTC), start.UTC())
	}

	_, _, err = ledger.MonthRange(2024, 0, time.UTC)
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, "ok", ledger.Outcome(nil))
	assert.Equal(t, "validation", ledger.Outcome(domain.Invalid(domain.ReasonUnknownType, "type")))
	assert.Equal(t, "not_found", ledger.Outcome(fmt.Errorf("x: %w", domain.ErrNotFound)))
	assert.Equal(t, "unauthorized", ledger.Outcome(domain.ErrUnauthorized))
	assert.Equal(t, "conflict", ledger.Outcome(domain.ErrConflict))
	assert.Equal(t, "unavailable", ledger.Outcome(domain.ErrStoreUnavailable))
	assert.Equal(t, "error", ledger.Outcome(errors.New("boom")))
}

// flakyAccounts injects ApplyDelta failures starting with call number failFrom,
// or only at call number failAt with failErr, and runs onDelta after every
// committed delta.
type flakyAccounts struct {
	*memory.AccountStore

	mu       sync.Mutex
	calls    int
	failFrom int
	failAt   int
	failErr  error
	onDelta  func()
}

func (a *flakyAccounts) ApplyDelta(ctx context.Context, accountID string, delta decimal.Decimal) (decimal.Decimal, error) {
	a.mu.Lock()
	a.calls++
	n := a.calls
	hook := a.onDelta
	a.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}
	if a.failFrom > 0 && n >= a.failFrom {
		return decimal.Zero, fmt.Errorf("injected: %w", domain.ErrStoreUnavailable)
	}
	if a.failAt > 0 && n == a.failAt {
		return decimal.Zero, fmt.Errorf("injected: %w", a.failErr)
	}
	balance, err := a.AccountStore.ApplyDelta(ctx, accountID, delta)
	if hook != nil {
		hook()
	}
	return balance, err
}

func (a *flakyAccounts) deltaCalls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

type flakyTransactions struct {
	*memory.TransactionStore
	putErr    error
	deleteErr error
}

func (s *flakyTransactions) Put(ctx context.Context, t *domain.Transaction) (time.Time, error) {
	if s.putErr != nil {
		return time.Time{}, s.putErr
	}
	return s.TransactionStore.Put(ctx, t)
}

func (s *flakyTransactions) Delete(ctx context.Context, id string, version int64) (time.Time, error) {
	if s.deleteErr != nil {
		return time.Time{}, s.deleteErr
	}
	return s.TransactionStore.Delete(ctx, id, version)
}

// rendezvousTransactions holds every Get until parties callers have read, so
// that they all act on the same snapshot of the record.
type rendezvousTransactions struct {
	*memory.TransactionStore
	arrived sync.WaitGroup
}

func newRendezvousTransactions(parties int) *rendezvousTransactions {
	s := &rendezvousTransactions{TransactionStore: memory.NewTransactionStore()}
	s.arrived.Add(parties)
	return s
}

func (s *rendezvousTransactions) Get(ctx context.Context, id string) (*domain.Transaction, error) {
	t, err := s.TransactionStore.Get(ctx, id)
	s.arrived.Done()
	s.arrived.Wait()
	return t, err
}

type scheduledJob struct {
	operationID string
	userID      string
	effects     []domain.Effect
}

type recordingReconciler struct {
	mu         sync.Mutex
	scheduled  []scheduledJob
	unresolved []scheduledJob
}

func (r *recordingReconciler) ScheduleReconciliation(ctx context.Context, operationID, userID string, effects []domain.Effect, cause error) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scheduled = append(r.scheduled, scheduledJob{operationID: operationID, userID: userID, effects: effects})
	return fmt.Sprintf("job-%d", len(r.scheduled)), nil
}

func (r *recordingReconciler) RecordUnresolved(ctx context.Context, operationID, userID string, effects []domain.Effect, cause error) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unresolved = append(r.unresolved, scheduledJob{operationID: operationID, userID: userID, effects: effects})
	return fmt.Sprintf("unresolved-%d", len(r.unresolved)), nil
}

type recordingArchiver struct {
	uri      string
	err      error
	archived []*domain.Transaction
}

func (a *recordingArchiver) ArchivePurge(ctx context.Context, userID string, txs []*domain.Transaction) (string, error) {
	if a.err != nil {
		return "", a.err
	}
	a.archived = append(a.archived, txs...)
	return a.uri, nil
}
