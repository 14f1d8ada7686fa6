package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/fundnote-ledger/internal/domain"
	"github.com/dvloznov/fundnote-ledger/internal/ledger"
	"github.com/dvloznov/fundnote-ledger/internal/logger"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Reconciler implements ledger.Reconciler by publishing jobs. Unresolved
// effects are saved straight to the store as failed jobs.
type Reconciler struct {
	publisher  Publisher
	store      JobStore
	maxRetries int
}

// NewReconciler creates a Reconciler. maxRetries bounds conflict retries per job.
func NewReconciler(publisher Publisher, store JobStore, maxRetries int) *Reconciler {
	return &Reconciler{publisher: publisher, store: store, maxRetries: maxRetries}
}

// ScheduleReconciliation implements ledger.Reconciler.
func (r *Reconciler) ScheduleReconciliation(ctx context.Context, operationID, userID string, effects []domain.Effect, cause error) (string, error) {
	job := &ReconcileEffectsJob{
		OperationID: operationID,
		UserID:      userID,
		Effects:     append([]domain.Effect(nil), effects...),
		MaxRetries:  r.maxRetries,
	}
	if cause != nil {
		job.Cause = cause.Error()
	}
	if err := r.publisher.PublishReconciliation(ctx, job); err != nil {
		return "", fmt.Errorf("ScheduleReconciliation: %w", err)
	}
	return job.JobID, nil
}

// RecordUnresolved implements ledger.Reconciler. The job is never published;
// it only shows up in the failed job listing.
func (r *Reconciler) RecordUnresolved(ctx context.Context, operationID, userID string, effects []domain.Effect, cause error) (string, error) {
	if r.store == nil {
		return "", fmt.Errorf("RecordUnresolved: no job store configured")
	}

	now := time.Now().UTC()
	job := &ReconcileEffectsJob{
		JobID:       uuid.NewString(),
		OperationID: operationID,
		UserID:      userID,
		Effects:     append([]domain.Effect(nil), effects...),
		Status:      JobStatusFailed,
		CreatedAt:   now,
		CompletedAt: &now,
		Error:       "balance delta outcome unknown",
	}
	if cause != nil {
		job.Cause = cause.Error()
	}
	if err := r.store.SaveJob(ctx, job); err != nil {
		return "", fmt.Errorf("RecordUnresolved: %w", err)
	}
	return job.JobID, nil
}

// NewReconcileHandler returns a handler that applies the job's remaining
// effects. Only a conflict, which guarantees the delta was not applied, is
// retried. Any other failure leaves the outcome unknown and fails the job
// for manual reconciliation.
func NewReconcileHandler(accounts ledger.AccountStore, log zerolog.Logger) JobHandler {
	return func(ctx context.Context, job *ReconcileEffectsJob) error {
		jlog := logger.WithFields(log, map[string]interface{}{
			"job_id":       job.JobID,
			"operation_id": job.OperationID,
			"user_id":      job.UserID,
		})

		for job.Applied < len(job.Effects) {
			eff := job.Effects[job.Applied]
			balance, err := accounts.ApplyDelta(ctx, eff.AccountID, eff.Delta)
			if err != nil {
				jlog.Warn().Err(err).
					Str("account_id", eff.AccountID).
					Str("delta", eff.Delta.String()).
					Msg("Reconciliation delta failed")
				if errors.Is(err, domain.ErrConflict) {
					return fmt.Errorf("reconcile account %s: %w", eff.AccountID, err)
				}
				return Permanent(fmt.Errorf("reconcile account %s: %w", eff.AccountID, err))
			}
			job.Applied++
			jlog.Info().
				Str("account_id", eff.AccountID).
				Str("delta", eff.Delta.String()).
				Str("balance", balance.String()).
				Msg("Reconciliation delta applied")
		}
		return nil
	}
}

var _ ledger.Reconciler = (*Reconciler)(nil)
