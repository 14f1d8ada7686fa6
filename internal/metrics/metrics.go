package metrics

import (
	"time"
)

// Recorder collects ledger metrics. Implementations export them to a backend.
type Recorder interface {
	// RecordOperation records one engine operation with its outcome label.
	RecordOperation(operation, outcome string, duration time.Duration)

	// RecordDelta records one committed balance delta ("credit" or "debit").
	RecordDelta(direction string)

	// RecordCompensation records a compensation outcome: "compensated",
	// "scheduled", "unresolved" or "unreconciled".
	RecordCompensation(result string)

	// RecordCircuitState records the circuit breaker state of a store.
	RecordCircuitState(store string, state CircuitState)
}

// CircuitState represents the state of a store circuit breaker.
type CircuitState int

const (
	// CircuitClosed means calls pass through.
	CircuitClosed CircuitState = iota
	// CircuitOpen means calls are rejected.
	CircuitOpen
	// CircuitHalfOpen means trial calls are allowed.
	CircuitHalfOpen
)

// String returns the string representation of the circuit state.
func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// NoOp is the default Recorder.
type NoOp struct{}

func (NoOp) RecordOperation(operation, outcome string, duration time.Duration) {}
func (NoOp) RecordDelta(direction string)                                      {}
func (NoOp) RecordCompensation(result string)                                  {}
func (NoOp) RecordCircuitState(store string, state CircuitState)               {}
