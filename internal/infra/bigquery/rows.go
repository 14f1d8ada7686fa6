package bigquery

import (
	"fmt"
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/fundnote-ledger/internal/domain"
	"github.com/shopspring/decimal"
)

// numericScale is the fixed scale of the BigQuery NUMERIC type.
const numericScale = domain.MaxAmountScale

type AccountRow struct {
	AccountID string   `bigquery:"account_id"` // REQUIRED
	UserID    string   `bigquery:"user_id"`    // REQUIRED
	Name      string   `bigquery:"name"`       // NULLABLE
	Balance   *big.Rat `bigquery:"balance"`    // REQUIRED NUMERIC

	CreatedTS time.Time              `bigquery:"created_ts"` // REQUIRED
	UpdatedTS bigquery.NullTimestamp `bigquery:"updated_ts"` // NULLABLE
}

type TransactionRow struct {
	TransactionID string   `bigquery:"transaction_id"` // REQUIRED
	UserID        string   `bigquery:"user_id"`        // REQUIRED
	Type          string   `bigquery:"type"`           // REQUIRED
	Amount        *big.Rat `bigquery:"amount"`         // REQUIRED NUMERIC

	FromAccountID bigquery.NullString `bigquery:"from_account_id"` // NULLABLE
	ToAccountID   bigquery.NullString `bigquery:"to_account_id"`   // NULLABLE
	Category      bigquery.NullString `bigquery:"category"`        // NULLABLE
	Description   bigquery.NullString `bigquery:"description"`     // NULLABLE

	DateCreated time.Time              `bigquery:"date_created"` // REQUIRED
	UpdatedTS   bigquery.NullTimestamp `bigquery:"updated_ts"`   // NULLABLE
	Version     int64                  `bigquery:"version"`      // NULLABLE, read through COALESCE
}

func ratToDecimal(r *big.Rat) (decimal.Decimal, error) {
	if r == nil {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(r.FloatString(numericScale))
	if err != nil {
		return decimal.Zero, fmt.Errorf("converting NUMERIC %s: %w", r.String(), err)
	}
	return d, nil
}

func nullString(s string) bigquery.NullString {
	return bigquery.NullString{StringVal: s, Valid: s != ""}
}

func (r *AccountRow) toDomain() (*domain.Account, error) {
	balance, err := ratToDecimal(r.Balance)
	if err != nil {
		return nil, err
	}
	return &domain.Account{
		AccountID: r.AccountID,
		UserID:    r.UserID,
		Name:      r.Name,
		Balance:   balance,
	}, nil
}

func transactionRowFrom(t *domain.Transaction, updated time.Time) *TransactionRow {
	return &TransactionRow{
		TransactionID: t.TransactionID,
		UserID:        t.UserID,
		Type:          string(t.Type),
		Amount:        t.Amount.Rat(),
		FromAccountID: nullString(t.FromAccountID),
		ToAccountID:   nullString(t.ToAccountID),
		Category:      nullString(t.Category),
		Description:   nullString(t.Description),
		DateCreated:   t.DateCreated.UTC(),
		UpdatedTS:     bigquery.NullTimestamp{Timestamp: updated, Valid: !updated.IsZero()},
		Version:       t.Version,
	}
}

func (r *TransactionRow) toDomain() (*domain.Transaction, error) {
	amount, err := ratToDecimal(r.Amount)
	if err != nil {
		return nil, err
	}
	t := &domain.Transaction{
		TransactionID: r.TransactionID,
		UserID:        r.UserID,
		Type:          domain.TransactionType(r.Type),
		Amount:        amount,
		FromAccountID: r.FromAccountID.StringVal,
		ToAccountID:   r.ToAccountID.StringVal,
		Category:      r.Category.StringVal,
		Description:   r.Description.StringVal,
		DateCreated:   r.DateCreated.UTC(),
		Version:       r.Version,
	}
	if r.UpdatedTS.Valid {
		t.UpdatedAt = r.UpdatedTS.Timestamp.UTC()
	}
	return t, nil
}
