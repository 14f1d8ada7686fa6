package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// MaxAmountScale is the largest number of fractional digits an amount may
// carry. It matches the scale of every supported store.
const MaxAmountScale = 9

// Fields is the part of a transaction a type validator inspects.
type Fields struct {
	Amount        decimal.Decimal
	FromAccountID string
	ToAccountID   string
	Category      string
}

// Validator checks Fields for one transaction type and fails fast with the
// first violated rule.
type Validator func(f Fields) error

// validators maps every known type to its rule set. Adding a type means adding
// a constant, an entry here and an entry in effectRules.
var validators = map[TransactionType]Validator{
	TypeIncome:   validateIncome,
	TypeExpense:  validateExpense,
	TypeTransfer: validateTransfer,
	TypeNote:     validateNote,
}

// Validate runs the structural validation selected by t.Type.
func Validate(t *Transaction) error {
	v, ok := validators[t.Type]
	if !ok {
		return Invalid(ReasonUnknownType, "type")
	}
	return v(Fields{
		Amount:        t.Amount,
		FromAccountID: strings.TrimSpace(t.FromAccountID),
		ToAccountID:   strings.TrimSpace(t.ToAccountID),
		Category:      strings.TrimSpace(t.Category),
	})
}

// KnownTypes lists the registered transaction types.
func KnownTypes() []TransactionType {
	return []TransactionType{TypeIncome, TypeExpense, TypeTransfer, TypeNote}
}

func validateIncome(f Fields) error {
	if err := requirePositive(f.Amount); err != nil {
		return err
	}
	if f.ToAccountID == "" {
		return Invalid(ReasonMissingDestination, "to_account_id")
	}
	if f.FromAccountID != "" {
		return Invalid(ReasonUnexpectedSource, "from_account_id")
	}
	return nil
}

func validateExpense(f Fields) error {
	if err := requirePositive(f.Amount); err != nil {
		return err
	}
	if f.FromAccountID == "" {
		return Invalid(ReasonMissingSource, "from_account_id")
	}
	if f.ToAccountID != "" {
		return Invalid(ReasonUnexpectedDestination, "to_account_id")
	}
	if f.Category == "" {
		return Invalid(ReasonMissingCategory, "category")
	}
	return nil
}

func validateTransfer(f Fields) error {
	if err := requirePositive(f.Amount); err != nil {
		return err
	}
	if f.FromAccountID == "" {
		return Invalid(ReasonMissingSource, "from_account_id")
	}
	if f.ToAccountID == "" {
		return Invalid(ReasonMissingDestination, "to_account_id")
	}
	if f.FromAccountID == f.ToAccountID {
		return Invalid(ReasonSameAccount, "to_account_id")
	}
	return nil
}

func validateNote(f Fields) error {
	if err := requirePositive(f.Amount); err != nil {
		return err
	}
	if f.FromAccountID != "" {
		return Invalid(ReasonUnexpectedSource, "from_account_id")
	}
	if f.ToAccountID != "" {
		return Invalid(ReasonUnexpectedDestination, "to_account_id")
	}
	return nil
}

func requirePositive(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return Invalid(ReasonAmountNotPositive, "amount")
	}
	// Trailing zeros beyond the scale are fine.
	if !amount.Equal(amount.Truncate(MaxAmountScale)) {
		return Invalid(ReasonAmountScale, "amount")
	}
	return nil
}
