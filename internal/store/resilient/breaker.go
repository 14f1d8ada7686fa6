// Package resilient wraps ledger stores with a per-call timeout and a circuit
// breaker. Infrastructure failures surface as domain.ErrStoreUnavailable;
// store-level answers such as NotFound or Conflict pass through unchanged and
// do not count against the breaker.
package resilient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/fundnote-ledger/internal/domain"
	"github.com/dvloznov/fundnote-ledger/internal/metrics"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// Config configures the timeout and circuit breaker of one store.
type Config struct {
	// Timeout bounds each store call. Zero disables it.
	Timeout time.Duration

	// MaxRequests is the number of trial calls allowed while half-open.
	MaxRequests uint32

	// Interval is the cyclic period after which closed-state counts are cleared.
	Interval time.Duration

	// OpenTimeout is how long the breaker stays open before going half-open.
	OpenTimeout time.Duration

	// ConsecutiveFailures trips the breaker.
	ConsecutiveFailures uint32
}

// DefaultConfig returns the defaults used by cmd/api.
func DefaultConfig() Config {
	return Config{
		Timeout:             5 * time.Second,
		MaxRequests:         1,
		Interval:            60 * time.Second,
		OpenTimeout:         30 * time.Second,
		ConsecutiveFailures: 5,
	}
}

type breaker struct {
	name    string
	cb      *gobreaker.CircuitBreaker
	timeout time.Duration
	metrics metrics.Recorder
	log     zerolog.Logger
}

func newBreaker(name string, cfg Config, rec metrics.Recorder, log zerolog.Logger) *breaker {
	if rec == nil {
		rec = metrics.NoOp{}
	}
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = DefaultConfig().ConsecutiveFailures
	}

	b := &breaker{
		name:    name,
		timeout: cfg.Timeout,
		metrics: rec,
		log:     log.With().Str("store", name).Logger(),
	}

	b.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		IsSuccessful: isSuccessful,
		OnStateChange: func(name string, from, to gobreaker.State) {
			b.log.Warn().
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
			b.metrics.RecordCircuitState(name, circuitState(to))
		},
	})

	b.metrics.RecordCircuitState(name, metrics.CircuitClosed)
	return b
}

// isSuccessful treats definitive store answers as healthy responses.
func isSuccessful(err error) bool {
	return err == nil ||
		errors.Is(err, domain.ErrNotFound) ||
		errors.Is(err, domain.ErrConflict) ||
		errors.Is(err, domain.ErrValidation) ||
		errors.Is(err, domain.ErrUnauthorized)
}

func circuitState(s gobreaker.State) metrics.CircuitState {
	switch s {
	case gobreaker.StateOpen:
		return metrics.CircuitOpen
	case gobreaker.StateHalfOpen:
		return metrics.CircuitHalfOpen
	default:
		return metrics.CircuitClosed
	}
}

// State reports the breaker state.
func (b *breaker) State() metrics.CircuitState {
	return circuitState(b.cb.State())
}

// do runs fn through the breaker with the configured timeout.
func do[T any](ctx context.Context, b *breaker, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	result, err := b.cb.Execute(func() (interface{}, error) {
		return fn(ctx)
	})
	if err == nil {
		return result.(T), nil
	}

	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		b.log.Warn().Str("op", op).Msg("Circuit breaker open, request rejected")
		return zero, fmt.Errorf("%s %s: %v: %w", b.name, op, err, domain.ErrStoreUnavailable)
	case errors.Is(err, context.DeadlineExceeded):
		b.log.Warn().Str("op", op).Dur("timeout", b.timeout).Msg("Store call timed out")
		return zero, fmt.Errorf("%s %s: timed out: %w", b.name, op, domain.ErrStoreUnavailable)
	case isSuccessful(err) || errors.Is(err, domain.ErrStoreUnavailable):
		return zero, err
	default:
		b.log.Error().Err(err).Str("op", op).Msg("Store call failed")
		return zero, fmt.Errorf("%s %s: %v: %w", b.name, op, err, domain.ErrStoreUnavailable)
	}
}
