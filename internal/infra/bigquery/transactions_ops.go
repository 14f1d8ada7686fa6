package bigquery

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/fundnote-ledger/internal/domain"
	"github.com/dvloznov/fundnote-ledger/internal/ledger"
	"google.golang.org/api/iterator"
)

const transactionColumns = `transaction_id, user_id, type, amount, from_account_id, to_account_id,
			category, description, date_created, updated_ts`

// Rows written before the version column existed read as version 1.
const selectTransactionColumns = transactionColumns + `, COALESCE(version, 1) AS version`

// Get implements ledger.TransactionStore.
func (s *Store) Get(ctx context.Context, transactionID string) (*domain.Transaction, error) {
	q := s.client.Query(`
		SELECT ` + selectTransactionColumns + `
		FROM ` + s.table(transactionsTable) + `
		WHERE transaction_id = @transaction_id
		LIMIT 1
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "transaction_id", Value: transactionID},
	}

	rows, err := readTransactions(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("Get: transaction %s: %w", transactionID, domain.ErrNotFound)
	}
	return rows[0], nil
}

// Put implements ledger.TransactionStore. A zero version inserts through a
// MERGE that never touches an existing row; otherwise the row is replaced only
// while its version matches. An unaffected row is reported as a conflict.
func (s *Store) Put(ctx context.Context, t *domain.Transaction) (time.Time, error) {
	now := time.Now().UTC()
	row := transactionRowFrom(t, now)

	var sql string
	if t.Version == 0 {
		sql = `
		MERGE ` + s.table(transactionsTable) + ` T
		USING (SELECT @transaction_id AS transaction_id) S
		ON T.transaction_id = S.transaction_id
		WHEN NOT MATCHED THEN INSERT (` + transactionColumns + `, version)
		VALUES (@transaction_id, @user_id, @type, @amount, @from_account_id, @to_account_id,
			@category, @description, @date_created, @updated_ts, @next_version)
	`
	} else {
		sql = `
		MERGE ` + s.table(transactionsTable) + ` T
		USING (SELECT @transaction_id AS transaction_id) S
		ON T.transaction_id = S.transaction_id
		WHEN MATCHED AND COALESCE(T.version, 1) = @version THEN UPDATE SET
			type = @type,
			amount = @amount,
			from_account_id = @from_account_id,
			to_account_id = @to_account_id,
			category = @category,
			description = @description,
			updated_ts = @updated_ts,
			version = @next_version
	`
	}

	affected, err := s.runDML(ctx, sql, []bigquery.QueryParameter{
		{Name: "transaction_id", Value: row.TransactionID},
		{Name: "user_id", Value: row.UserID},
		{Name: "type", Value: row.Type},
		{Name: "amount", Value: row.Amount},
		{Name: "from_account_id", Value: row.FromAccountID},
		{Name: "to_account_id", Value: row.ToAccountID},
		{Name: "category", Value: row.Category},
		{Name: "description", Value: row.Description},
		{Name: "date_created", Value: row.DateCreated},
		{Name: "updated_ts", Value: row.UpdatedTS},
		{Name: "version", Value: t.Version},
		{Name: "next_version", Value: t.Version + 1},
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("Put: %w", err)
	}
	if affected == 0 {
		return time.Time{}, fmt.Errorf("Put: transaction %s changed since version %d: %w", t.TransactionID, t.Version, domain.ErrConflict)
	}
	return now, nil
}

// Delete implements ledger.TransactionStore.
func (s *Store) Delete(ctx context.Context, transactionID string, version int64) (time.Time, error) {
	affected, err := s.runDML(ctx, `
		DELETE FROM `+s.table(transactionsTable)+`
		WHERE transaction_id = @transaction_id
		  AND COALESCE(version, 1) = @version
	`, []bigquery.QueryParameter{
		{Name: "transaction_id", Value: transactionID},
		{Name: "version", Value: version},
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("Delete: %w", err)
	}
	if affected == 0 {
		return time.Time{}, fmt.Errorf("Delete: transaction %s changed since version %d: %w", transactionID, version, domain.ErrConflict)
	}
	return time.Now().UTC(), nil
}

// QueryByOwner implements ledger.TransactionStore.
func (s *Store) QueryByOwner(ctx context.Context, ownerID string, filter ledger.Filter) ([]*domain.Transaction, error) {
	sql, params := ownerQuery(s.table(transactionsTable), ownerID, filter)
	q := s.client.Query(sql)
	q.Parameters = params

	rows, err := readTransactions(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("QueryByOwner: %w", err)
	}
	return rows, nil
}

// BatchDelete implements ledger.TransactionStore. A single DML statement is
// atomic, so the batch is all-or-nothing.
func (s *Store) BatchDelete(ctx context.Context, transactionIDs []string) (int, error) {
	if len(transactionIDs) == 0 {
		return 0, nil
	}
	affected, err := s.runDML(ctx, `
		DELETE FROM `+s.table(transactionsTable)+`
		WHERE transaction_id IN UNNEST(@transaction_ids)
	`, []bigquery.QueryParameter{
		{Name: "transaction_ids", Value: transactionIDs},
	})
	if err != nil {
		return 0, fmt.Errorf("BatchDelete: %w", err)
	}
	return int(affected), nil
}

// ownerQuery builds the SELECT for an owner filter.
func ownerQuery(table, ownerID string, filter ledger.Filter) (string, []bigquery.QueryParameter) {
	var b strings.Builder
	b.WriteString("SELECT " + selectTransactionColumns + "\n\t\tFROM " + table + "\n\t\tWHERE user_id = @user_id")
	params := []bigquery.QueryParameter{{Name: "user_id", Value: ownerID}}

	if !filter.From.IsZero() {
		b.WriteString("\n\t\t  AND date_created >= @from_ts")
		params = append(params, bigquery.QueryParameter{Name: "from_ts", Value: filter.From.UTC()})
	}
	if !filter.To.IsZero() {
		b.WriteString("\n\t\t  AND date_created < @to_ts")
		params = append(params, bigquery.QueryParameter{Name: "to_ts", Value: filter.To.UTC()})
	}
	if filter.Category != "" {
		b.WriteString("\n\t\t  AND category = @category")
		params = append(params, bigquery.QueryParameter{Name: "category", Value: filter.Category})
	}
	b.WriteString("\n\t\tORDER BY date_created")
	return b.String(), params
}

func readTransactions(ctx context.Context, q *bigquery.Query) ([]*domain.Transaction, error) {
	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("query read: %w", classify(err))
	}

	var txs []*domain.Transaction
	for {
		var r TransactionRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iter next: %w", classify(err))
		}
		t, err := r.toDomain()
		if err != nil {
			return nil, err
		}
		txs = append(txs, t)
	}
	return txs, nil
}
