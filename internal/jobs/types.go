package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/dvloznov/fundnote-ledger/internal/domain"
)

// JobStatus represents the current status of a job.
type JobStatus string

const (
	// JobStatusPending indicates the job is waiting to be processed.
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates the job is currently being processed.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates the job completed successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the job failed and needs manual reconciliation.
	JobStatusFailed JobStatus = "failed"
	// JobStatusRetrying indicates the job failed and is being retried.
	JobStatusRetrying JobStatus = "retrying"
)

// ReconcileEffectsJob carries compensating effects for one failed operation.
type ReconcileEffectsJob struct {
	// JobID is the unique identifier for this job.
	JobID string `json:"job_id"`

	// OperationID identifies the engine operation that failed.
	OperationID string `json:"operation_id"`

	// UserID is the caller of the failed operation.
	UserID string `json:"user_id"`

	// Effects are the compensating deltas, in application order.
	Effects []domain.Effect `json:"effects"`

	// Applied counts the leading Effects already applied. Retries resume here.
	Applied int `json:"applied"`

	// Cause is the error that made the operation fail.
	Cause string `json:"cause,omitempty"`

	// Status is the current status of the job.
	Status JobStatus `json:"status"`

	// CreatedAt is when the job was created.
	CreatedAt time.Time `json:"created_at"`

	// StartedAt is when the job started processing.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// CompletedAt is when the job completed (success or failure).
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Error contains error details if the job failed.
	Error string `json:"error,omitempty"`

	// RetryCount is the number of times this job has been retried.
	RetryCount int `json:"retry_count"`

	// MaxRetries is the maximum number of retries allowed.
	MaxRetries int `json:"max_retries"`
}

// Clone returns a deep copy of the job.
func (j *ReconcileEffectsJob) Clone() *ReconcileEffectsJob {
	c := *j
	c.Effects = append([]domain.Effect(nil), j.Effects...)
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// Publisher defines the interface for publishing jobs to a queue.
type Publisher interface {
	// PublishReconciliation enqueues a reconciliation job.
	PublishReconciliation(ctx context.Context, job *ReconcileEffectsJob) error

	// Close closes the publisher and releases resources.
	Close() error
}

// Consumer defines the interface for consuming jobs from a queue.
type Consumer interface {
	// Start begins consuming jobs from the queue.
	// The handler function is called for each job received.
	Start(ctx context.Context, handler JobHandler) error

	// Stop stops consuming jobs and waits for in-flight jobs to complete.
	Stop(ctx context.Context) error
}

// JobHandler processes a job. A returned error is retried unless it is
// marked with Permanent.
type JobHandler func(ctx context.Context, job *ReconcileEffectsJob) error

// JobStore defines the interface for storing and retrieving job status.
type JobStore interface {
	// SaveJob saves or updates a job's state.
	SaveJob(ctx context.Context, job *ReconcileEffectsJob) error

	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID string) (*ReconcileEffectsJob, error)

	// ListJobs retrieves jobs with optional filtering.
	ListJobs(ctx context.Context, filter JobFilter) ([]*ReconcileEffectsJob, error)
}

// JobFilter defines filtering criteria for listing jobs.
type JobFilter struct {
	// UserID filters jobs by the user of the failed operation.
	UserID string

	// Status filters jobs by status.
	Status JobStatus

	// Limit limits the number of results.
	Limit int

	// Offset for pagination.
	Offset int
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not retryable.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}
