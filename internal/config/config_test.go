package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("api", []string{"-jwt-secret", "x"}, envMap(nil))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, BackendMemory, cfg.Backend)
	assert.Equal(t, "ledger", cfg.BQDataset)
	assert.Equal(t, 5*time.Second, cfg.StoreTimeout)
	assert.Equal(t, uint(5), cfg.BreakerFailures)
	assert.Equal(t, "info", cfg.LogLevel)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)
}

func TestLoad_EnvFallbackAndFlagPrecedence(t *testing.T) {
	env := envMap(map[string]string{
		"PORT":                    "9000",
		"LEDGER_BACKEND":          "postgres",
		"LEDGER_POSTGRES_DSN":     "postgres://localhost/ledger",
		"LEDGER_JWT_SECRET":       "env-secret",
		"LEDGER_STORE_TIMEOUT":    "250ms",
		"LEDGER_BREAKER_FAILURES": "3",
		"LEDGER_TIMEZONE":         "Europe/Berlin",
	})

	cfg, err := Load("api", []string{"-port", "9100"}, env)
	require.NoError(t, err)

	assert.Equal(t, "9100", cfg.Port)
	assert.Equal(t, BackendPostgres, cfg.Backend)
	assert.Equal(t, "env-secret", cfg.JWTSecret)
	assert.Equal(t, 250*time.Millisecond, cfg.StoreTimeout)
	assert.Equal(t, uint(3), cfg.BreakerFailures)
	assert.Equal(t, "Europe/Berlin", cfg.Timezone)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		args []string
		env  map[string]string
	}{
		{"missing secret", nil, nil},
		{"unknown backend", []string{"-jwt-secret", "x", "-backend", "mongo"}, nil},
		{"bigquery without project", []string{"-jwt-secret", "x", "-backend", "bigquery"}, nil},
		{"postgres without dsn", []string{"-jwt-secret", "x", "-backend", "postgres"}, nil},
		{"unknown account backend", []string{"-jwt-secret", "x", "-account-backend", "memcached"}, nil},
		{"bad timezone", []string{"-jwt-secret", "x", "-timezone", "Mars/Olympus"}, nil},
		{"bad log level", []string{"-jwt-secret", "x", "-log-level", "loud"}, nil},
		{"bad env duration", []string{"-jwt-secret", "x"}, map[string]string{"LEDGER_STORE_TIMEOUT": "soon"}},
		{"bad env int", []string{"-jwt-secret", "x"}, map[string]string{"LEDGER_BREAKER_FAILURES": "many"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load("api", tt.args, envMap(tt.env))
			assert.Error(t, err)
		})
	}
}

func TestLoad_UnknownFlag(t *testing.T) {
	_, err := Load("api", []string{"-jwt-secret", "x", "-nope"}, envMap(nil))
	assert.Error(t, err)
}

func TestLoadStore_SkipsSecret(t *testing.T) {
	cfg, err := LoadStore("cli", []string{"-backend", "bigquery", "-bq-project", "p"}, envMap(nil))
	require.NoError(t, err)
	assert.Equal(t, "p", cfg.BQProject)

	_, err = LoadStore("cli", []string{"-backend", "bigquery"}, envMap(nil))
	assert.Error(t, err)
}
