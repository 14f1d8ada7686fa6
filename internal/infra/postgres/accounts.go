package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/fundnote-ledger/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// GetAccount implements ledger.AccountStore.
func (s *Store) GetAccount(ctx context.Context, accountID string) (*domain.Account, error) {
	var (
		acc     domain.Account
		balance string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT account_id, user_id, COALESCE(name, ''), balance::text
		 FROM accounts
		 WHERE account_id = $1`,
		accountID,
	).Scan(&acc.AccountID, &acc.UserID, &acc.Name, &balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("GetAccount: account %s: %w", accountID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("GetAccount: %w", classify(err))
	}

	acc.Balance, err = decimal.NewFromString(balance)
	if err != nil {
		return nil, fmt.Errorf("GetAccount: parsing balance %q: %w", balance, err)
	}
	return &acc, nil
}

// ApplyDelta implements ledger.AccountStore. The row lock taken by UPDATE
// serialises concurrent increments.
func (s *Store) ApplyDelta(ctx context.Context, accountID string, delta decimal.Decimal) (decimal.Decimal, error) {
	var balance string
	err := s.pool.QueryRow(ctx,
		`UPDATE accounts
		 SET balance = balance + $2::numeric, updated_at = now()
		 WHERE account_id = $1
		 RETURNING balance::text`,
		accountID, delta.String(),
	).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, fmt.Errorf("ApplyDelta: account %s: %w", accountID, domain.ErrNotFound)
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("ApplyDelta: %w", classify(err))
	}
	return decimal.NewFromString(balance)
}

// CreateAccount inserts a new account.
func (s *Store) CreateAccount(ctx context.Context, acc *domain.Account) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO accounts (account_id, user_id, name, balance)
		 VALUES ($1, $2, NULLIF($3, ''), $4::numeric)`,
		acc.AccountID, acc.UserID, acc.Name, acc.Balance.String(),
	)
	if err != nil {
		return fmt.Errorf("CreateAccount: %w", classify(err))
	}
	return nil
}

// ListAccounts returns the accounts owned by userID.
func (s *Store) ListAccounts(ctx context.Context, userID string) ([]*domain.Account, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT account_id, user_id, COALESCE(name, ''), balance::text
		 FROM accounts
		 WHERE user_id = $1
		 ORDER BY account_id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("ListAccounts: %w", classify(err))
	}
	defer rows.Close()

	var out []*domain.Account
	for rows.Next() {
		var (
			acc     domain.Account
			balance string
		)
		if err := rows.Scan(&acc.AccountID, &acc.UserID, &acc.Name, &balance); err != nil {
			return nil, fmt.Errorf("ListAccounts: scan: %w", classify(err))
		}
		if acc.Balance, err = decimal.NewFromString(balance); err != nil {
			return nil, fmt.Errorf("ListAccounts: parsing balance %q: %w", balance, err)
		}
		out = append(out, &acc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListAccounts: %w", classify(err))
	}
	return out, nil
}
