package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dvloznov/fundnote-ledger/internal/domain"
	"github.com/dvloznov/fundnote-ledger/internal/ledger"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const selectTransaction = `SELECT transaction_id, user_id, type, amount::text,
		COALESCE(from_account_id, ''), COALESCE(to_account_id, ''),
		COALESCE(category, ''), COALESCE(description, ''),
		date_created, updated_at, version
	FROM transactions`

// Get implements ledger.TransactionStore.
func (s *Store) Get(ctx context.Context, transactionID string) (*domain.Transaction, error) {
	t, err := scanTransaction(s.pool.QueryRow(ctx, selectTransaction+` WHERE transaction_id = $1`, transactionID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("Get: transaction %s: %w", transactionID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("Get: %w", classify(err))
	}
	return t, nil
}

// Put implements ledger.TransactionStore. A zero version inserts; otherwise
// the row is replaced only while its version matches. Owner and creation time
// are never overwritten.
func (s *Store) Put(ctx context.Context, t *domain.Transaction) (time.Time, error) {
	var (
		updated time.Time
		err     error
	)
	if t.Version == 0 {
		err = s.pool.QueryRow(ctx,
			`INSERT INTO transactions (transaction_id, user_id, type, amount, from_account_id, to_account_id,
				category, description, date_created, updated_at, version)
			 VALUES ($1, $2, $3, $4::numeric, NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, ''), $9, now(), 1)
			 ON CONFLICT (transaction_id) DO NOTHING
			 RETURNING updated_at`,
			t.TransactionID, t.UserID, string(t.Type), t.Amount.String(),
			t.FromAccountID, t.ToAccountID, t.Category, t.Description, t.DateCreated.UTC(),
		).Scan(&updated)
	} else {
		err = s.pool.QueryRow(ctx,
			`UPDATE transactions SET
				type = $2,
				amount = $3::numeric,
				from_account_id = NULLIF($4, ''),
				to_account_id = NULLIF($5, ''),
				category = NULLIF($6, ''),
				description = NULLIF($7, ''),
				updated_at = now(),
				version = version + 1
			 WHERE transaction_id = $1 AND version = $8
			 RETURNING updated_at`,
			t.TransactionID, string(t.Type), t.Amount.String(),
			t.FromAccountID, t.ToAccountID, t.Category, t.Description, t.Version,
		).Scan(&updated)
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, fmt.Errorf("Put: transaction %s changed since version %d: %w", t.TransactionID, t.Version, domain.ErrConflict)
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("Put: %w", classify(err))
	}
	return updated.UTC(), nil
}

// Delete implements ledger.TransactionStore.
func (s *Store) Delete(ctx context.Context, transactionID string, version int64) (time.Time, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM transactions WHERE transaction_id = $1 AND version = $2`, transactionID, version)
	if err != nil {
		return time.Time{}, fmt.Errorf("Delete: %w", classify(err))
	}
	if tag.RowsAffected() == 0 {
		return time.Time{}, fmt.Errorf("Delete: transaction %s changed since version %d: %w", transactionID, version, domain.ErrConflict)
	}
	return time.Now().UTC(), nil
}

// QueryByOwner implements ledger.TransactionStore.
func (s *Store) QueryByOwner(ctx context.Context, ownerID string, filter ledger.Filter) ([]*domain.Transaction, error) {
	sql, args := ownerQuery(ownerID, filter)
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("QueryByOwner: %w", classify(err))
	}
	defer rows.Close()

	var out []*domain.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("QueryByOwner: scan: %w", classify(err))
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("QueryByOwner: %w", classify(err))
	}
	return out, nil
}

// BatchDelete implements ledger.TransactionStore inside one database
// transaction. If any id is missing nothing is deleted.
func (s *Store) BatchDelete(ctx context.Context, transactionIDs []string) (int, error) {
	if len(transactionIDs) == 0 {
		return 0, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("BatchDelete: begin: %w", classify(err))
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `DELETE FROM transactions WHERE transaction_id = ANY($1)`, transactionIDs)
	if err != nil {
		return 0, fmt.Errorf("BatchDelete: %w", classify(err))
	}
	if int(tag.RowsAffected()) != len(transactionIDs) {
		return 0, fmt.Errorf("BatchDelete: %d of %d transactions present: %w",
			tag.RowsAffected(), len(transactionIDs), domain.ErrNotFound)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("BatchDelete: commit: %w", classify(err))
	}
	return len(transactionIDs), nil
}

// ownerQuery builds the SELECT and its positional arguments for filter.
func ownerQuery(ownerID string, filter ledger.Filter) (string, []any) {
	var b strings.Builder
	b.WriteString(selectTransaction + ` WHERE user_id = $1`)
	args := []any{ownerID}

	add := func(clause string, v any) {
		args = append(args, v)
		b.WriteString(" AND " + clause + " $" + strconv.Itoa(len(args)))
	}
	if !filter.From.IsZero() {
		add("date_created >=", filter.From.UTC())
	}
	if !filter.To.IsZero() {
		add("date_created <", filter.To.UTC())
	}
	if filter.Category != "" {
		add("category =", filter.Category)
	}
	b.WriteString(" ORDER BY date_created")
	return b.String(), args
}

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var (
		t       domain.Transaction
		typ     string
		amount  string
		updated *time.Time
	)
	if err := row.Scan(&t.TransactionID, &t.UserID, &typ, &amount,
		&t.FromAccountID, &t.ToAccountID, &t.Category, &t.Description,
		&t.DateCreated, &updated, &t.Version); err != nil {
		return nil, err
	}

	var err error
	if t.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("parsing amount %q: %w", amount, err)
	}
	t.Type = domain.TransactionType(typ)
	t.DateCreated = t.DateCreated.UTC()
	if updated != nil {
		t.UpdatedAt = updated.UTC()
	}
	return &t, nil
}
