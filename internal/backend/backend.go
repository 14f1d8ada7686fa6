// Package backend opens the account and transaction stores selected by
// configuration.
package backend

import (
	"context"
	"fmt"

	"github.com/dvloznov/fundnote-ledger/internal/config"
	"github.com/dvloznov/fundnote-ledger/internal/domain"
	infraBQ "github.com/dvloznov/fundnote-ledger/internal/infra/bigquery"
	"github.com/dvloznov/fundnote-ledger/internal/infra/postgres"
	infraRedis "github.com/dvloznov/fundnote-ledger/internal/infra/redis"
	"github.com/dvloznov/fundnote-ledger/internal/ledger"
	"github.com/dvloznov/fundnote-ledger/internal/store/memory"
	"github.com/rs/zerolog"
)

// Accounts is an account store that can also provision accounts.
type Accounts interface {
	ledger.AccountStore
	CreateAccount(ctx context.Context, acc *domain.Account) error
}

// AccountLister is implemented by account stores that can list by owner.
type AccountLister interface {
	ListAccounts(ctx context.Context, userID string) ([]*domain.Account, error)
}

// Stores are the opened, unwrapped stores.
type Stores struct {
	Accounts     Accounts
	Transactions ledger.TransactionStore

	// AccountsName and TransactionsName label the stores in logs and metrics.
	AccountsName     string
	TransactionsName string

	closers []func() error
}

// Close releases every opened client.
func (s *Stores) Close() error {
	var first error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Open connects to the backends named by cfg.
func Open(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Stores, error) {
	s := &Stores{}

	switch cfg.Backend {
	case config.BackendMemory:
		log.Warn().Msg("Using the in-memory backend, all data is lost on restart")
		s.Accounts = memory.NewAccountStore()
		s.Transactions = memory.NewTransactionStore()

	case config.BackendBigQuery:
		bq, err := infraBQ.NewStore(ctx, cfg.BQProject, cfg.BQDataset)
		if err != nil {
			return nil, fmt.Errorf("open bigquery: %w", err)
		}
		s.closers = append(s.closers, bq.Close)
		s.Accounts, s.Transactions = bq, bq

	case config.BackendPostgres:
		pg, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		s.closers = append(s.closers, func() error { pg.Close(); return nil })
		if err := pg.EnsureSchema(ctx); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		s.Accounts, s.Transactions = pg, pg

	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
	s.AccountsName, s.TransactionsName = cfg.Backend, cfg.Backend

	if cfg.AccountBackend == config.BackendRedis {
		rs, err := infraRedis.Dial(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("open redis: %w", err)
		}
		s.closers = append(s.closers, rs.Close)
		s.Accounts = rs
		s.AccountsName = config.BackendRedis
	}

	log.Info().
		Str("accounts", s.AccountsName).
		Str("transactions", s.TransactionsName).
		Msg("Stores opened")
	return s, nil
}
