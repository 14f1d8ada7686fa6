package inmemory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dvloznov/fundnote-ledger/internal/jobs"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Config configures a Queue.
type Config struct {
	// BufferSize is how many jobs can be queued before publishing blocks.
	BufferSize int

	// Workers is the number of concurrent handlers.
	Workers int

	// Backoff is the base retry delay, multiplied by the retry count.
	Backoff time.Duration

	// MaxRetries is used for jobs published without one.
	MaxRetries int
}

// DefaultConfig returns the defaults used by cmd/api.
func DefaultConfig() Config {
	return Config{
		BufferSize: 100,
		Workers:    2,
		Backoff:    time.Second,
		MaxRetries: 5,
	}
}

// Queue is an in-memory implementation of job publisher and consumer.
// It uses Go channels for job distribution and is safe for concurrent use.
// It suits single-instance deployments and tests.
type Queue struct {
	cfg       Config
	jobChan   chan *jobs.ReconcileEffectsJob
	closeChan chan struct{}
	wg        sync.WaitGroup
	mu        sync.RWMutex
	store     jobs.JobStore
	log       zerolog.Logger
	closed    bool
}

// NewQueue creates a new in-memory job queue.
func NewQueue(cfg Config, store jobs.JobStore, log zerolog.Logger) *Queue {
	def := DefaultConfig()
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = def.Backoff
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	return &Queue{
		cfg:       cfg,
		jobChan:   make(chan *jobs.ReconcileEffectsJob, cfg.BufferSize),
		closeChan: make(chan struct{}),
		store:     store,
		log:       log,
	}
}

// PublishReconciliation implements the Publisher interface.
func (q *Queue) PublishReconciliation(ctx context.Context, job *jobs.ReconcileEffectsJob) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return fmt.Errorf("queue is closed")
	}

	if job.JobID == "" {
		job.JobID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = jobs.JobStatusPending
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	if job.MaxRetries == 0 {
		job.MaxRetries = q.cfg.MaxRetries
	}

	if q.store != nil {
		if err := q.store.SaveJob(ctx, job); err != nil {
			return fmt.Errorf("failed to save job: %w", err)
		}
	}

	select {
	case q.jobChan <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-q.closeChan:
		return fmt.Errorf("queue is closed")
	}
}

// Start implements the Consumer interface.
func (q *Queue) Start(ctx context.Context, handler jobs.JobHandler) error {
	q.mu.RLock()
	if q.closed {
		q.mu.RUnlock()
		return fmt.Errorf("queue is closed")
	}
	q.mu.RUnlock()

	for i := 0; i < q.cfg.Workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, handler)
	}
	return nil
}

func (q *Queue) worker(ctx context.Context, handler jobs.JobHandler) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.closeChan:
			return
		case job := <-q.jobChan:
			if job == nil {
				return
			}
			q.processJob(ctx, job, handler)
		}
	}
}

// processJob executes a single job with retry logic.
func (q *Queue) processJob(ctx context.Context, job *jobs.ReconcileEffectsJob, handler jobs.JobHandler) {
	job.Status = jobs.JobStatusRunning
	now := time.Now().UTC()
	job.StartedAt = &now
	q.save(ctx, job)

	err := handler(ctx, job)

	completedAt := time.Now().UTC()
	job.CompletedAt = &completedAt

	switch {
	case err == nil:
		job.Status = jobs.JobStatusCompleted
		job.Error = ""
	case !jobs.IsPermanent(err) && job.RetryCount < job.MaxRetries:
		job.Error = err.Error()
		job.RetryCount++
		job.Status = jobs.JobStatusRetrying
		q.save(ctx, job)

		// The timer owns job from here on.
		backoff := time.Duration(job.RetryCount) * q.cfg.Backoff
		time.AfterFunc(backoff, func() {
			job.Status = jobs.JobStatusPending
			job.StartedAt = nil
			job.CompletedAt = nil
			if err := q.PublishReconciliation(ctx, job); err != nil {
				q.log.Error().Err(err).Str("job_id", job.JobID).Msg("Failed to re-enqueue job")
			}
		})
		return
	default:
		job.Error = err.Error()
		job.Status = jobs.JobStatusFailed
		q.log.Error().Err(err).
			Str("job_id", job.JobID).
			Str("operation_id", job.OperationID).
			Int("applied", job.Applied).
			Int("effects", len(job.Effects)).
			Msg("Reconciliation failed, manual reconciliation required")
	}

	q.save(ctx, job)
}

func (q *Queue) save(ctx context.Context, job *jobs.ReconcileEffectsJob) {
	if q.store == nil {
		return
	}
	if err := q.store.SaveJob(ctx, job); err != nil {
		q.log.Warn().Err(err).Str("job_id", job.JobID).Msg("Failed to save job state")
	}
}

// Stop implements the Consumer interface.
// It stops the queue and waits for all in-flight jobs to complete.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.closeChan)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close implements the Publisher interface.
func (q *Queue) Close() error {
	return q.Stop(context.Background())
}

// Ensure Queue implements both Publisher and Consumer interfaces.
var _ jobs.Publisher = (*Queue)(nil)
var _ jobs.Consumer = (*Queue)(nil)
