// Package postgres implements the ledger stores on PostgreSQL with pgx.
// Balance deltas are single UPDATE ... RETURNING statements.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/fundnote-ledger/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgreSQL error codes the store distinguishes.
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeUniqueViolation      = "23505"
)

const schema = `
CREATE TABLE IF NOT EXISTS accounts (
	account_id  TEXT PRIMARY KEY,
	user_id     TEXT NOT NULL,
	name        TEXT,
	balance     NUMERIC(38, 9) NOT NULL DEFAULT 0,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS accounts_user_id_idx ON accounts (user_id);

CREATE TABLE IF NOT EXISTS transactions (
	transaction_id   TEXT PRIMARY KEY,
	user_id          TEXT NOT NULL,
	type             TEXT NOT NULL,
	amount           NUMERIC(38, 9) NOT NULL,
	from_account_id  TEXT,
	to_account_id    TEXT,
	category         TEXT,
	description      TEXT,
	date_created     TIMESTAMPTZ NOT NULL,
	updated_at       TIMESTAMPTZ,
	version          BIGINT NOT NULL DEFAULT 1
);

ALTER TABLE transactions ADD COLUMN IF NOT EXISTS version BIGINT NOT NULL DEFAULT 1;

CREATE INDEX IF NOT EXISTS transactions_user_date_idx ON transactions (user_id, date_created);
`

// Store implements ledger.AccountStore and ledger.TransactionStore.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects a pool to dsn.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("Open: creating pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("Open: ping: %w", err)
	}
	return NewStore(pool), nil
}

// NewStore creates a Store on an existing pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// EnsureSchema creates the tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("EnsureSchema: %w", classify(err))
	}
	return nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// classify maps pgx errors onto domain error kinds.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%v: %w", err, domain.ErrNotFound)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeSerializationFailure, codeDeadlockDetected, codeUniqueViolation:
			return fmt.Errorf("%v: %w", err, domain.ErrConflict)
		}
	}
	return fmt.Errorf("%v: %w", err, domain.ErrStoreUnavailable)
}
