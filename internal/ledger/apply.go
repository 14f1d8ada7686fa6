package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/fundnote-ledger/internal/domain"
	"github.com/rs/zerolog"
)

// CompensationError is returned when an operation failed after committing
// balance deltas and the inline compensation could not be completed. Pending
// holds the compensating effects that were not applied; JobID identifies the
// reconciliation job they were handed to, if any.
type CompensationError struct {
	Cause   error
	Pending []domain.Effect
	JobID   string
}

func (e *CompensationError) Error() string {
	if e.JobID == "" {
		return fmt.Sprintf("%v (compensation incomplete, %d effects unreconciled)", e.Cause, len(e.Pending))
	}
	return fmt.Sprintf("%v (compensation incomplete, reconciliation job %s)", e.Cause, e.JobID)
}

// Unwrap exposes the original failure so its kind is preserved.
func (e *CompensationError) Unwrap() error {
	return e.Cause
}

// operation tracks the deltas committed by one engine call.
type operation struct {
	e         *Engine
	id        string
	name      string
	callerID  string
	committed []domain.Effect
	log       zerolog.Logger
}

func (e *Engine) begin(name, callerID, transactionID string) *operation {
	id := e.newID()
	return &operation{
		e:        e,
		id:       id,
		name:     name,
		callerID: callerID,
		log: e.log.With().
			Str("operation", name).
			Str("operation_id", id).
			Str("user_id", callerID).
			Str("transaction_id", transactionID).
			Logger(),
	}
}

// apply applies effects in order. Each account is fetched and checked for
// ownership immediately before its delta.
func (op *operation) apply(ctx context.Context, effects []domain.Effect) error {
	for _, eff := range effects {
		if err := op.applyOne(ctx, eff); err != nil {
			return err
		}
	}
	return nil
}

func (op *operation) applyOne(ctx context.Context, eff domain.Effect) error {
	acc, err := op.e.accounts.GetAccount(ctx, eff.AccountID)
	if err != nil {
		return fmt.Errorf("account %s: %w", eff.AccountID, err)
	}
	if err := assertOwns(acc, op.callerID); err != nil {
		return fmt.Errorf("account %s: %w", eff.AccountID, err)
	}

	balance, err := op.e.accounts.ApplyDelta(ctx, eff.AccountID, eff.Delta)
	if err != nil {
		// A failed delta is never recorded as committed, so compensation
		// skips it. When the store cannot say whether it landed, an operator
		// has to decide.
		op.log.Warn().Err(err).
			Str("account_id", eff.AccountID).
			Str("delta", eff.Delta.String()).
			Msg("Balance delta failed")
		if !notApplied(err) {
			op.recordUnresolved(ctx, eff, err)
		}
		return fmt.Errorf("account %s: apply delta: %w", eff.AccountID, err)
	}

	op.committed = append(op.committed, eff)
	op.e.metrics.RecordDelta(direction(eff))
	op.log.Debug().
		Str("account_id", eff.AccountID).
		Str("delta", eff.Delta.String()).
		Str("balance", balance.String()).
		Msg("Balance delta applied")
	return nil
}

// abort undoes the committed deltas in reverse order and returns cause, or a
// CompensationError wrapping cause when some compensation could not be applied.
func (op *operation) abort(ctx context.Context, cause error) error {
	if len(op.committed) == 0 {
		return cause
	}

	pending := make([]domain.Effect, 0, len(op.committed))
	for i := len(op.committed) - 1; i >= 0; i-- {
		pending = append(pending, op.committed[i].Negate())
	}

	for i, eff := range pending {
		if _, err := op.e.accounts.ApplyDelta(ctx, eff.AccountID, eff.Delta); err != nil {
			return op.handOff(ctx, cause, pending[i:], err)
		}
		op.e.metrics.RecordDelta(direction(eff))
	}

	op.committed = nil
	op.e.metrics.RecordCompensation("compensated")
	op.log.Warn().Err(cause).Int("effects", len(pending)).Msg("Operation compensated")
	return cause
}

func (op *operation) handOff(ctx context.Context, cause error, remaining []domain.Effect, compErr error) error {
	cerr := &CompensationError{Cause: cause, Pending: remaining}

	if op.e.reconciler == nil {
		op.e.metrics.RecordCompensation("unreconciled")
		op.log.Error().Err(compErr).
			AnErr("cause", cause).
			Interface("pending", remaining).
			Msg("Compensation failed and no reconciler is configured")
		return cerr
	}

	jobID, err := op.e.reconciler.ScheduleReconciliation(ctx, op.id, op.callerID, remaining, cause)
	if err != nil {
		op.e.metrics.RecordCompensation("unreconciled")
		op.log.Error().Err(err).
			AnErr("cause", cause).
			Interface("pending", remaining).
			Msg("Failed to schedule reconciliation")
		return cerr
	}

	cerr.JobID = jobID
	op.e.metrics.RecordCompensation("scheduled")
	op.log.Error().Err(compErr).
		AnErr("cause", cause).
		Str("job_id", jobID).
		Int("pending", len(remaining)).
		Msg("Compensation failed, reconciliation scheduled")
	return cerr
}

// notApplied reports whether err is a definitive store answer that guarantees
// the delta was not applied.
func notApplied(err error) bool {
	return errors.Is(err, domain.ErrConflict) ||
		errors.Is(err, domain.ErrNotFound) ||
		errors.Is(err, domain.ErrValidation) ||
		errors.Is(err, domain.ErrUnauthorized)
}

// recordUnresolved files the compensating delta of eff, whose outcome is
// unknown, as a failed reconciliation job.
func (op *operation) recordUnresolved(ctx context.Context, eff domain.Effect, cause error) {
	if op.e.reconciler == nil {
		op.e.metrics.RecordCompensation("unreconciled")
		op.log.Error().Err(cause).
			Str("account_id", eff.AccountID).
			Str("delta", eff.Delta.String()).
			Msg("Balance delta outcome unknown and no reconciler is configured")
		return
	}

	jobID, err := op.e.reconciler.RecordUnresolved(ctx, op.id, op.callerID, []domain.Effect{eff.Negate()}, cause)
	if err != nil {
		op.e.metrics.RecordCompensation("unreconciled")
		op.log.Error().Err(err).
			AnErr("cause", cause).
			Str("account_id", eff.AccountID).
			Msg("Failed to record unresolved balance delta")
		return
	}

	op.e.metrics.RecordCompensation("unresolved")
	op.log.Error().Err(cause).
		Str("job_id", jobID).
		Str("account_id", eff.AccountID).
		Str("delta", eff.Delta.String()).
		Msg("Balance delta outcome unknown, recorded for manual reconciliation")
}

func direction(eff domain.Effect) string {
	if eff.Delta.IsNegative() {
		return "debit"
	}
	return "credit"
}
