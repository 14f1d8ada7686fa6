package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType selects how a transaction is validated and which balance
// effects it produces.
type TransactionType string

const (
	// TypeIncome credits the destination account.
	TypeIncome TransactionType = "INCOME"
	// TypeExpense debits the source account.
	TypeExpense TransactionType = "EXPENSE"
	// TypeTransfer moves the amount from the source to the destination account.
	TypeTransfer TransactionType = "TRANSFER"
	// TypeNote records an entry with no balance impact.
	TypeNote TransactionType = "NOTE"
)

// ParseTransactionType normalizes s into a TransactionType. Unknown values are
// returned as-is so that validation can report them.
func ParseTransactionType(s string) TransactionType {
	return TransactionType(strings.ToUpper(strings.TrimSpace(s)))
}

// Transaction is a single user-owned record in the transaction log.
type Transaction struct {
	TransactionID string          `json:"transaction_id"`
	UserID        string          `json:"user_id"`
	Type          TransactionType `json:"type"`
	Amount        decimal.Decimal `json:"amount"`

	FromAccountID string `json:"from_account_id,omitempty"` // source, EXPENSE and TRANSFER
	ToAccountID   string `json:"to_account_id,omitempty"`   // destination, INCOME and TRANSFER

	Category    string `json:"category,omitempty"`
	Description string `json:"description,omitempty"`

	DateCreated time.Time `json:"date_created"`        // immutable after creation
	UpdatedAt   time.Time `json:"updated_at,omitzero"` // write timestamp reported by the store

	// Version is assigned by the store: 1 on insert, incremented on every
	// replace. Zero means the record has not been stored yet.
	Version int64 `json:"version,omitempty"`
}

// Owner implements the ownership relation used by the ledger guard.
func (t *Transaction) Owner() string {
	return t.UserID
}

// Clone returns a copy that shares no mutable state with t.
func (t *Transaction) Clone() *Transaction {
	c := *t
	return &c
}

// Account is a user-owned balance holder.
type Account struct {
	AccountID string          `json:"account_id"`
	UserID    string          `json:"user_id"`
	Name      string          `json:"name,omitempty"`
	Balance   decimal.Decimal `json:"balance"`
}

// Owner implements the ownership relation used by the ledger guard.
func (a *Account) Owner() string {
	return a.UserID
}
