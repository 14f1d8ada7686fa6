// Package config loads service configuration from flags with environment
// fallbacks.
package config

import (
	"flag"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

// Backends accepted by -backend.
const (
	BackendMemory   = "memory"
	BackendBigQuery = "bigquery"
	BackendPostgres = "postgres"
)

// BackendRedis is the only value accepted by -account-backend besides "".
const BackendRedis = "redis"

// Config is the API server configuration.
type Config struct {
	Port           string
	Backend        string
	AccountBackend string

	BQProject   string
	BQDataset   string
	PostgresDSN string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	JWTSecret     string
	ArchiveBucket string
	Timezone      string

	StoreTimeout    time.Duration
	BreakerFailures uint
	LogLevel        string
	JobRetries      int
}

// Load parses the API server flags from args, falling back to getenv for
// unset flags.
func Load(name string, args []string, getenv func(string) string) (*Config, error) {
	cfg, err := parse(name, args, getenv)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadStore is Load for tools that only open the stores. The JWT secret is
// not required.
func LoadStore(name string, args []string, getenv func(string) string) (*Config, error) {
	cfg, err := parse(name, args, getenv)
	if err != nil {
		return nil, err
	}
	if err := cfg.ValidateStore(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parse(name string, args []string, getenv func(string) string) (*Config, error) {
	env := func(key, def string) string {
		if v := getenv(key); v != "" {
			return v
		}
		return def
	}

	cfg := &Config{}
	fs := flag.NewFlagSet(name, flag.ContinueOnError)

	fs.StringVar(&cfg.Port, "port", env("PORT", "8080"), "HTTP server port (or set PORT env)")
	fs.StringVar(&cfg.Backend, "backend", env("LEDGER_BACKEND", BackendMemory), "store backend: memory, bigquery or postgres (or set LEDGER_BACKEND env)")
	fs.StringVar(&cfg.AccountBackend, "account-backend", env("LEDGER_ACCOUNT_BACKEND", ""), "optional account backend override: redis (or set LEDGER_ACCOUNT_BACKEND env)")
	fs.StringVar(&cfg.BQProject, "bq-project", env("LEDGER_BQ_PROJECT", ""), "BigQuery project ID (or set LEDGER_BQ_PROJECT env)")
	fs.StringVar(&cfg.BQDataset, "bq-dataset", env("LEDGER_BQ_DATASET", "ledger"), "BigQuery dataset (or set LEDGER_BQ_DATASET env)")
	fs.StringVar(&cfg.PostgresDSN, "postgres-dsn", env("LEDGER_POSTGRES_DSN", ""), "PostgreSQL connection string (or set LEDGER_POSTGRES_DSN env)")
	fs.StringVar(&cfg.RedisAddr, "redis-addr", env("LEDGER_REDIS_ADDR", "localhost:6379"), "Redis address (or set LEDGER_REDIS_ADDR env)")
	fs.StringVar(&cfg.RedisPassword, "redis-password", env("LEDGER_REDIS_PASSWORD", ""), "Redis password (or set LEDGER_REDIS_PASSWORD env)")
	fs.StringVar(&cfg.JWTSecret, "jwt-secret", env("LEDGER_JWT_SECRET", ""), "HS256 secret for bearer tokens (or set LEDGER_JWT_SECRET env)")
	fs.StringVar(&cfg.ArchiveBucket, "archive-bucket", env("LEDGER_ARCHIVE_BUCKET", ""), "GCS bucket for purge exports, empty disables (or set LEDGER_ARCHIVE_BUCKET env)")
	fs.StringVar(&cfg.Timezone, "timezone", env("LEDGER_TIMEZONE", "UTC"), "IANA zone for month boundaries (or set LEDGER_TIMEZONE env)")
	fs.StringVar(&cfg.LogLevel, "log-level", env("LOG_LEVEL", "info"), "log level (or set LOG_LEVEL env)")

	redisDB, err := envInt(getenv, "LEDGER_REDIS_DB", 0)
	if err != nil {
		return nil, err
	}
	fs.IntVar(&cfg.RedisDB, "redis-db", redisDB, "Redis database number (or set LEDGER_REDIS_DB env)")

	timeout, err := envDuration(getenv, "LEDGER_STORE_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}
	fs.DurationVar(&cfg.StoreTimeout, "store-timeout", timeout, "per-call store timeout (or set LEDGER_STORE_TIMEOUT env)")

	failures, err := envInt(getenv, "LEDGER_BREAKER_FAILURES", 5)
	if err != nil {
		return nil, err
	}
	fs.UintVar(&cfg.BreakerFailures, "breaker-failures", uint(failures), "consecutive failures before a store circuit opens (or set LEDGER_BREAKER_FAILURES env)")

	retries, err := envInt(getenv, "LEDGER_JOB_RETRIES", 5)
	if err != nil {
		return nil, err
	}
	fs.IntVar(&cfg.JobRetries, "job-retries", retries, "conflict retries per reconciliation job (or set LEDGER_JOB_RETRIES env)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the full API server configuration.
func (c *Config) Validate() error {
	if err := c.ValidateStore(); err != nil {
		return err
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("config: -jwt-secret is required")
	}
	return nil
}

// ValidateStore checks that the selected backends have what they need.
func (c *Config) ValidateStore() error {
	switch c.Backend {
	case BackendMemory:
	case BackendBigQuery:
		if c.BQProject == "" {
			return fmt.Errorf("config: -bq-project is required for the bigquery backend")
		}
	case BackendPostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("config: -postgres-dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("config: unknown backend %q", c.Backend)
	}

	if c.AccountBackend != "" && c.AccountBackend != BackendRedis {
		return fmt.Errorf("config: unknown account backend %q", c.AccountBackend)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("config: invalid log level %q: %w", c.LogLevel, err)
	}
	if c.StoreTimeout <= 0 {
		return fmt.Errorf("config: -store-timeout must be positive")
	}
	return nil
}

// Location loads the configured timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("config: invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func envInt(getenv func(string) string, key string, def int) (int, error) {
	v := getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return n, nil
}

func envDuration(getenv func(string) string, key string, def time.Duration) (time.Duration, error) {
	v := getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return d, nil
}
