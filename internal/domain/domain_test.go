package domain

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	amt := decimal.NewFromInt(25)

	tests := []struct {
		name   string
		tx     Transaction
		reason Reason
	}{
		{
			name: "valid income",
			tx:   Transaction{Type: TypeIncome, Amount: amt, ToAccountID: "acc-1"},
		},
		{
			name:   "income without destination",
			tx:     Transaction{Type: TypeIncome, Amount: amt},
			reason: ReasonMissingDestination,
		},
		{
			name:   "income with source",
			tx:     Transaction{Type: TypeIncome, Amount: amt, ToAccountID: "acc-1", FromAccountID: "acc-2"},
			reason: ReasonUnexpectedSource,
		},
		{
			name: "valid expense",
			tx:   Transaction{Type: TypeExpense, Amount: amt, FromAccountID: "acc-1", Category: "Food"},
		},
		{
			name:   "expense without source",
			tx:     Transaction{Type: TypeExpense, Amount: amt, Category: "Food"},
			reason: ReasonMissingSource,
		},
		{
			name:   "expense without category",
			tx:     Transaction{Type: TypeExpense, Amount: amt, FromAccountID: "acc-1", Category: "   "},
			reason: ReasonMissingCategory,
		},
		{
			name:   "zero amount",
			tx:     Transaction{Type: TypeIncome, Amount: decimal.Zero, ToAccountID: "acc-1"},
			reason: ReasonAmountNotPositive,
		},
		{
			name:   "negative amount",
			tx:     Transaction{Type: TypeExpense, Amount: decimal.NewFromInt(-3), FromAccountID: "acc-1", Category: "Food"},
			reason: ReasonAmountNotPositive,
		},
		{
			name: "amount at full scale",
			tx:   Transaction{Type: TypeIncome, Amount: decimal.RequireFromString("0.000000001"), ToAccountID: "acc-1"},
		},
		{
			name: "trailing zeros beyond scale",
			tx:   Transaction{Type: TypeIncome, Amount: decimal.RequireFromString("1.50000000000"), ToAccountID: "acc-1"},
		},
		{
			name:   "amount finer than scale",
			tx:     Transaction{Type: TypeIncome, Amount: decimal.RequireFromString("1.0000000001"), ToAccountID: "acc-1"},
			reason: ReasonAmountScale,
		},
		{
			name: "valid transfer",
			tx:   Transaction{Type: TypeTransfer, Amount: amt, FromAccountID: "acc-1", ToAccountID: "acc-2"},
		},
		{
			name:   "transfer to same account",
			tx:     Transaction{Type: TypeTransfer, Amount: amt, FromAccountID: "acc-1", ToAccountID: "acc-1"},
			reason: ReasonSameAccount,
		},
		{
			name: "valid note",
			tx:   Transaction{Type: TypeNote, Amount: amt},
		},
		{
			name:   "note referencing an account",
			tx:     Transaction{Type: TypeNote, Amount: amt, ToAccountID: "acc-1"},
			reason: ReasonUnexpectedDestination,
		},
		{
			name:   "unknown type",
			tx:     Transaction{Type: "REFUND", Amount: amt},
			reason: ReasonUnknownType,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(&tt.tx)
			if tt.reason == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrValidation))
			reason, ok := ReasonOf(err)
			require.True(t, ok)
			assert.Equal(t, tt.reason, reason)
		})
	}
}

func TestComputeEffects(t *testing.T) {
	amt := decimal.RequireFromString("12.50")

	income := ComputeEffects(&Transaction{Type: TypeIncome, Amount: amt, ToAccountID: "x"})
	require.Len(t, income, 1)
	assert.Equal(t, "x", income[0].AccountID)
	assert.True(t, income[0].Delta.Equal(amt))

	expense := ComputeEffects(&Transaction{Type: TypeExpense, Amount: amt, FromAccountID: "x"})
	require.Len(t, expense, 1)
	assert.True(t, expense[0].Delta.Equal(amt.Neg()))

	assert.Empty(t, ComputeEffects(&Transaction{Type: TypeNote, Amount: amt}))
	assert.Empty(t, ComputeEffects(&Transaction{Type: "UNKNOWN", Amount: amt}))
}

func TestComputeEffects_TransferOrderedByAccountID(t *testing.T) {
	amt := decimal.NewFromInt(40)
	effects := ComputeEffects(&Transaction{Type: TypeTransfer, Amount: amt, FromAccountID: "b", ToAccountID: "a"})

	require.Len(t, effects, 2)
	assert.Equal(t, "a", effects[0].AccountID)
	assert.True(t, effects[0].Delta.Equal(amt))
	assert.Equal(t, "b", effects[1].AccountID)
	assert.True(t, effects[1].Delta.Equal(amt.Neg()))
}

func TestReverse_IsNetZero(t *testing.T) {
	for _, typ := range KnownTypes() {
		t.Run(string(typ), func(t *testing.T) {
			tx := &Transaction{Type: typ, Amount: decimal.RequireFromString("7.35"), FromAccountID: "a", ToAccountID: "b"}
			totals := map[string]decimal.Decimal{}
			for _, e := range append(ComputeEffects(tx), Reverse(ComputeEffects(tx))...) {
				totals[e.AccountID] = totals[e.AccountID].Add(e.Delta)
			}
			for id, total := range totals {
				assert.True(t, total.IsZero(), "account %s not net-zero: %s", id, total)
			}
		})
	}
}

func TestParseTransactionType(t *testing.T) {
	assert.Equal(t, TypeIncome, ParseTransactionType(" income "))
	assert.Equal(t, TypeExpense, ParseTransactionType("Expense"))
	assert.Equal(t, TransactionType("BOGUS"), ParseTransactionType("bogus"))
}
