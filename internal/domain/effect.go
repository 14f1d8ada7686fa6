package domain

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Effect is a signed balance delta a transaction applies to one account.
type Effect struct {
	AccountID string          `json:"account_id"`
	Delta     decimal.Decimal `json:"delta"`
}

// Negate returns the effect with its delta sign flipped.
func (e Effect) Negate() Effect {
	return Effect{AccountID: e.AccountID, Delta: e.Delta.Neg()}
}

type effectRule func(t *Transaction) []Effect

var effectRules = map[TransactionType]effectRule{
	TypeIncome: func(t *Transaction) []Effect {
		return []Effect{{AccountID: t.ToAccountID, Delta: t.Amount}}
	},
	TypeExpense: func(t *Transaction) []Effect {
		return []Effect{{AccountID: t.FromAccountID, Delta: t.Amount.Neg()}}
	},
	TypeTransfer: func(t *Transaction) []Effect {
		return []Effect{
			{AccountID: t.FromAccountID, Delta: t.Amount.Neg()},
			{AccountID: t.ToAccountID, Delta: t.Amount},
		}
	},
}

// ComputeEffects maps a transaction to the balance deltas it produces,
// ordered by ascending account id. Types without a rule (NOTE, unknown types)
// produce no effects. ComputeEffects is pure and deterministic.
func ComputeEffects(t *Transaction) []Effect {
	rule, ok := effectRules[t.Type]
	if !ok {
		return nil
	}
	effects := rule(t)
	sort.SliceStable(effects, func(i, j int) bool {
		return effects[i].AccountID < effects[j].AccountID
	})
	return effects
}

// Reverse negates every effect, keeping the order. Applying effects and then
// Reverse(effects) is always net-zero.
func Reverse(effects []Effect) []Effect {
	out := make([]Effect, len(effects))
	for i, e := range effects {
		out[i] = e.Negate()
	}
	return out
}
