// Package bigquery implements the ledger stores on BigQuery. Balance deltas
// are single DML statements, so BigQuery serialises concurrent increments on
// the same row.
package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/fundnote-ledger/internal/domain"
	"google.golang.org/api/googleapi"
)

const (
	accountsTable     = "accounts"
	transactionsTable = "transactions"
)

// Store holds a shared BigQuery client and implements both
// ledger.AccountStore and ledger.TransactionStore.
type Store struct {
	client    *bigquery.Client
	projectID string
	datasetID string
}

// NewStore creates a Store with its own client.
func NewStore(ctx context.Context, projectID, datasetID string) (*Store, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewStore: creating client: %w", err)
	}
	return NewStoreWithClient(client, projectID, datasetID), nil
}

// NewStoreWithClient creates a Store on an existing client.
func NewStoreWithClient(client *bigquery.Client, projectID, datasetID string) *Store {
	return &Store{client: client, projectID: projectID, datasetID: datasetID}
}

// Close closes the BigQuery client connection.
func (s *Store) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// table returns the fully qualified, backquoted table name.
func (s *Store) table(name string) string {
	return "`" + s.projectID + "." + s.datasetID + "." + name + "`"
}

// runDML runs a DML statement and returns the number of affected rows.
func (s *Store) runDML(ctx context.Context, sql string, params []bigquery.QueryParameter) (int64, error) {
	q := s.client.Query(sql)
	q.Parameters = params

	job, err := q.Run(ctx)
	if err != nil {
		return 0, fmt.Errorf("running query: %w", classify(err))
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return 0, fmt.Errorf("waiting for job: %w", classify(err))
	}
	if err := status.Err(); err != nil {
		return 0, fmt.Errorf("job error: %w", classify(err))
	}

	return affectedRows(status), nil
}

func affectedRows(status *bigquery.JobStatus) int64 {
	if status == nil || status.Statistics == nil {
		return 0
	}
	if qs, ok := status.Statistics.Details.(*bigquery.QueryStatistics); ok {
		return qs.NumDMLAffectedRows
	}
	return 0
}

// classify maps BigQuery API errors onto domain error kinds.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%v: %w", err, domain.ErrStoreUnavailable)
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusNotFound:
			return fmt.Errorf("%v: %w", err, domain.ErrNotFound)
		case apiErr.Code == http.StatusConflict, isConcurrentUpdate(apiErr.Message):
			return fmt.Errorf("%v: %w", err, domain.ErrConflict)
		}
	}
	if isConcurrentUpdate(err.Error()) {
		return fmt.Errorf("%v: %w", err, domain.ErrConflict)
	}
	return fmt.Errorf("%v: %w", err, domain.ErrStoreUnavailable)
}

// isConcurrentUpdate recognises BigQuery's DML serialisation failure.
func isConcurrentUpdate(msg string) bool {
	msg = strings.ToLower(msg)
	return strings.Contains(msg, "could not serialize access") ||
		strings.Contains(msg, "concurrent update")
}
