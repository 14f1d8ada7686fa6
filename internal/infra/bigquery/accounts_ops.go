package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/fundnote-ledger/internal/domain"
	"github.com/shopspring/decimal"
	"google.golang.org/api/iterator"
)

const accountColumns = `account_id, user_id, name, balance, created_ts, updated_ts`

// GetAccount implements ledger.AccountStore.
func (s *Store) GetAccount(ctx context.Context, accountID string) (*domain.Account, error) {
	q := s.client.Query(`
		SELECT ` + accountColumns + `
		FROM ` + s.table(accountsTable) + `
		WHERE account_id = @account_id
		LIMIT 1
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "account_id", Value: accountID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("GetAccount: reading query: %w", classify(err))
	}

	var row AccountRow
	err = it.Next(&row)
	if err == iterator.Done {
		return nil, fmt.Errorf("GetAccount: account %s: %w", accountID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("GetAccount: iterating: %w", classify(err))
	}

	acc, err := row.toDomain()
	if err != nil {
		return nil, fmt.Errorf("GetAccount: %w", err)
	}
	return acc, nil
}

// ApplyDelta implements ledger.AccountStore with a single UPDATE statement.
// The returned balance is read after the update and may already include
// concurrent deltas.
func (s *Store) ApplyDelta(ctx context.Context, accountID string, delta decimal.Decimal) (decimal.Decimal, error) {
	affected, err := s.runDML(ctx, `
		UPDATE `+s.table(accountsTable)+`
		SET balance = balance + @delta,
		    updated_ts = CURRENT_TIMESTAMP()
		WHERE account_id = @account_id
	`, []bigquery.QueryParameter{
		{Name: "delta", Value: delta.Rat()},
		{Name: "account_id", Value: accountID},
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("ApplyDelta: %w", err)
	}
	if affected == 0 {
		return decimal.Zero, fmt.Errorf("ApplyDelta: account %s: %w", accountID, domain.ErrNotFound)
	}

	acc, err := s.GetAccount(ctx, accountID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("ApplyDelta: reading balance: %w", err)
	}
	return acc.Balance, nil
}

// CreateAccount inserts a new account with an initial balance.
func (s *Store) CreateAccount(ctx context.Context, acc *domain.Account) error {
	_, err := s.runDML(ctx, `
		INSERT INTO `+s.table(accountsTable)+` (`+accountColumns+`)
		VALUES (@account_id, @user_id, @name, @balance, @created_ts, NULL)
	`, []bigquery.QueryParameter{
		{Name: "account_id", Value: acc.AccountID},
		{Name: "user_id", Value: acc.UserID},
		{Name: "name", Value: acc.Name},
		{Name: "balance", Value: acc.Balance.Rat()},
		{Name: "created_ts", Value: time.Now().UTC()},
	})
	if err != nil {
		return fmt.Errorf("CreateAccount: %w", err)
	}
	return nil
}

// ListAccounts returns the accounts owned by userID.
func (s *Store) ListAccounts(ctx context.Context, userID string) ([]*domain.Account, error) {
	q := s.client.Query(`
		SELECT ` + accountColumns + `
		FROM ` + s.table(accountsTable) + `
		WHERE user_id = @user_id
		ORDER BY account_id
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListAccounts: reading query: %w", classify(err))
	}

	var accounts []*domain.Account
	for {
		var row AccountRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListAccounts: iterating: %w", classify(err))
		}
		acc, err := row.toDomain()
		if err != nil {
			return nil, fmt.Errorf("ListAccounts: %w", err)
		}
		accounts = append(accounts, acc)
	}

	return accounts, nil
}
