package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/fundnote-ledger/internal/api"
	"github.com/dvloznov/fundnote-ledger/internal/archive"
	"github.com/dvloznov/fundnote-ledger/internal/auth"
	"github.com/dvloznov/fundnote-ledger/internal/backend"
	"github.com/dvloznov/fundnote-ledger/internal/config"
	"github.com/dvloznov/fundnote-ledger/internal/jobs"
	"github.com/dvloznov/fundnote-ledger/internal/jobs/inmemory"
	"github.com/dvloznov/fundnote-ledger/internal/ledger"
	"github.com/dvloznov/fundnote-ledger/internal/logger"
	"github.com/dvloznov/fundnote-ledger/internal/metrics"
	"github.com/dvloznov/fundnote-ledger/internal/store/resilient"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// Initialize logger
	log := logger.New()

	cfg, err := config.Load("api", os.Args[1:], os.Getenv)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid log level")
	}
	log = log.Level(level)

	loc, err := cfg.Location()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid timezone")
	}

	ctx := context.Background()

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.NewPrometheusRecorder("ledger")
	if err := recorder.Register(registry); err != nil {
		log.Fatal().Err(err).Msg("Failed to register metrics")
	}

	// Initialize stores
	stores, err := backend.Open(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open stores")
	}
	defer stores.Close()

	breakerCfg := resilient.DefaultConfig()
	breakerCfg.Timeout = cfg.StoreTimeout
	breakerCfg.ConsecutiveFailures = uint32(cfg.BreakerFailures)
	accounts := resilient.NewAccountStore(stores.AccountsName+"_accounts", stores.Accounts, breakerCfg, recorder, log)
	transactions := resilient.NewTransactionStore(stores.TransactionsName+"_transactions", stores.Transactions, breakerCfg, recorder, log)

	// Initialize job infrastructure
	queueCfg := inmemory.DefaultConfig()
	queueCfg.MaxRetries = cfg.JobRetries
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(queueCfg, jobStore, log)

	// Start worker in background to process reconciliation jobs. It talks to
	// the raw store so that an open breaker is not mistaken for a failed delta.
	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	if err := jobQueue.Start(workerCtx, jobs.NewReconcileHandler(stores.Accounts, log)); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job worker")
	}

	opts := ledger.Options{
		Location:   loc,
		Logger:     log,
		Metrics:    recorder,
		Reconciler: jobs.NewReconciler(jobQueue, jobStore, cfg.JobRetries),
	}

	if cfg.ArchiveBucket != "" {
		gcs, err := archive.NewGCSStorage(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create archive storage")
		}
		defer gcs.Close()
		opts.Archiver = archive.New(gcs, cfg.ArchiveBucket, nil)
	} else {
		log.Warn().Msg("No archive bucket configured - purges will not be exported")
	}

	verifier, err := auth.NewVerifier(cfg.JWTSecret)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create token verifier")
	}

	handler := api.NewRouter(api.Deps{
		Engine:   ledger.New(accounts, transactions, opts),
		Jobs:     jobStore,
		Verifier: verifier,
		Log:      log,
		Metrics:  promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Str("port", cfg.Port).Str("backend", cfg.Backend).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Stop job queue and wait for in-flight reconciliations
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}
	cancelWorker()

	log.Info().Msg("Server exited")
}
