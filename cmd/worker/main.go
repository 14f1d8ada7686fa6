// Command worker replays reconciliation jobs exported from
// GET /api/admin/jobs against the configured account store.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/fundnote-ledger/internal/backend"
	"github.com/dvloznov/fundnote-ledger/internal/config"
	"github.com/dvloznov/fundnote-ledger/internal/jobs"
	"github.com/dvloznov/fundnote-ledger/internal/jobs/inmemory"
	"github.com/dvloznov/fundnote-ledger/internal/logger"
)

func main() {
	// Initialize logger
	log := logger.New()

	file := flag.String("file", "", "JSON export of GET /api/admin/jobs")
	retries := flag.Int("retries", 5, "conflict retries per job")
	flag.Parse()

	if *file == "" {
		log.Fatal().Msg("Usage: worker -file JOBS.json")
	}

	pending, err := readJobs(*file)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read jobs")
	}

	cfg, err := config.LoadStore("worker", nil, os.Getenv)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	// Create context that cancels on interrupt
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	stores, err := backend.Open(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open stores")
	}
	defer stores.Close()

	queueCfg := inmemory.DefaultConfig()
	queueCfg.MaxRetries = *retries
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(queueCfg, jobStore, log)

	// Start consuming jobs
	if err := jobQueue.Start(ctx, jobs.NewReconcileHandler(stores.Accounts, log)); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job consumer")
	}

	log.Info().Int("jobs", len(pending)).Msg("Replaying reconciliation jobs")

	for _, job := range pending {
		if err := jobQueue.PublishReconciliation(ctx, resetForReplay(job, *retries)); err != nil {
			log.Fatal().Err(err).Str("job_id", job.JobID).Msg("Failed to enqueue job")
		}
	}

	done := waitForJobs(ctx, jobStore, len(pending))

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Stop the queue and wait for in-flight jobs
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during graceful shutdown")
	}

	failed := 0
	for _, job := range done {
		if job.Status != jobs.JobStatusCompleted {
			failed++
			fmt.Printf("%s  %-9s applied %d/%d  %s\n", job.JobID, job.Status, job.Applied, len(job.Effects), job.Error)
		}
	}
	log.Info().Int("jobs", len(done)).Int("failed", failed).Msg("Worker exited")
	if failed > 0 {
		os.Exit(1)
	}
}

func readJobs(path string) ([]*jobs.ReconcileEffectsJob, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var export struct {
		Jobs []*jobs.ReconcileEffectsJob `json:"jobs"`
	}
	if err := json.Unmarshal(data, &export); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return export.Jobs, nil
}

// resetForReplay keeps the job's identity and progress but clears its
// terminal state.
func resetForReplay(job *jobs.ReconcileEffectsJob, retries int) *jobs.ReconcileEffectsJob {
	job = job.Clone()
	job.Status = jobs.JobStatusPending
	job.Error = ""
	job.RetryCount = 0
	job.MaxRetries = retries
	job.StartedAt = nil
	job.CompletedAt = nil
	return job
}

// waitForJobs polls the store until every job is terminal or ctx ends.
func waitForJobs(ctx context.Context, store jobs.JobStore, n int) []*jobs.ReconcileEffectsJob {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		list, _ := store.ListJobs(ctx, jobs.JobFilter{})
		terminal := 0
		for _, job := range list {
			if job.Status == jobs.JobStatusCompleted || job.Status == jobs.JobStatusFailed {
				terminal++
			}
		}
		if terminal >= n {
			return list
		}

		select {
		case <-ctx.Done():
			return list
		case <-ticker.C:
		}
	}
}
