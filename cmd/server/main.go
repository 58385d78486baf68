// CredGuard - Multi-Tenant Credit Scoring and Batch Ingestion Platform
// Copyright 2026 CredGuard Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/credguard/credguard

// Package main is the entry point for the CredGuard server.
//
// CredGuard is a multi-tenant credit scoring platform. Tenants upload
// CSV files of customer purchase history, the pipeline aggregates rows
// per CPF, applies exclusion rules, scores eligible customers through a
// Python subprocess model, enriches with bureau data, and exports a
// result CSV with score bands.
//
// Startup order:
//
//  1. Configuration: Koanf v2 layered sources (env > file > defaults)
//  2. Logging: zerolog, json or console format
//  3. Database: DuckDB with the tenant-scoped schema
//  4. Progress store: BadgerDB (or in-memory for ephemeral deployments)
//  5. Bureau client: circuit breaker + rate limiter around the HTTP API
//  6. Supervisor tree: HTTP server and the periodic drift scheduler
//
// The server handles graceful shutdown on SIGINT and SIGTERM: it stops
// accepting connections, drains in-flight requests, and closes the
// progress store and database. Batch jobs interrupted by shutdown resume
// from their persisted progress on the next start.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"golang.org/x/crypto/bcrypt"

	"github.com/credguard/credguard/internal/api"
	"github.com/credguard/credguard/internal/batch"
	"github.com/credguard/credguard/internal/bureau"
	"github.com/credguard/credguard/internal/config"
	"github.com/credguard/credguard/internal/database"
	"github.com/credguard/credguard/internal/drift"
	"github.com/credguard/credguard/internal/logging"
	"github.com/credguard/credguard/internal/scoring"
	"github.com/credguard/credguard/internal/supervisor"
)

func main() {
	cfg, err := config.LoadWithKoanf()
	if err != nil {
		// Config is not available yet, so this uses the default logger.
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("environment", cfg.Server.Environment).
		Str("db_path", cfg.Database.Path).
		Str("progress_store", cfg.Batch.ProgressStore).
		Bool("drift_enabled", cfg.Drift.Enabled).
		Msg("Starting CredGuard")

	db, err := database.New(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()
	logging.Info().Msg("Database initialized")

	if err := bootstrapTenant(context.Background(), db, &cfg.Bootstrap); err != nil {
		logging.Fatal().Err(err).Msg("Failed to bootstrap tenant")
	}

	progress, closeProgress, err := newProgressTracker(&cfg.Batch)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open progress store")
	}
	defer closeProgress()

	bureauClient := bureau.NewBreakerClient(bureau.NewHTTPClient(&cfg.Bureau))
	enricher := bureau.NewService(db, bureauClient, &cfg.Bureau)

	scorer := scoring.NewSubprocessScorer(&cfg.Scoring)
	processor := batch.NewProcessor(db, scorer, enricher, progress, &cfg.Batch)
	recoverInterruptedJobs(processor, db)
	detector := drift.NewDetector(db, &cfg.Drift)

	handler := api.NewHandler(db, processor, detector, cfg)
	router := api.NewRouter(handler, api.NewChiMiddleware(api.NewChiMiddlewareFromConfig(&cfg.API)))

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router.Setup(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.Timeout,
		WriteTimeout:      cfg.Server.Timeout,
		IdleTimeout:       2 * cfg.Server.Timeout,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// sutureslog wants slog; this bridges it to the zerolog backend.
	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddAPIService(supervisor.NewHTTPService(server, 10*time.Second))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")

	if cfg.Drift.Enabled {
		tree.AddMaintenanceService(drift.NewScheduler(detector, db, &cfg.Drift))
		logging.Info().Dur("interval", cfg.Drift.CheckInterval).Msg("Drift scheduler service added")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	errCh := tree.ServeBackground(ctx)
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("CredGuard stopped")
}

// newProgressTracker opens the configured batch progress store. The
// returned closer is a no-op for the in-memory tracker.
func newProgressTracker(cfg *config.BatchConfig) (batch.ProgressTracker, func(), error) {
	switch cfg.ProgressStore {
	case "memory":
		logging.Warn().Msg("In-memory progress store: interrupted jobs will not resume across restarts")
		return batch.NewInMemoryProgress(), func() {}, nil
	case "badger", "":
		opts := badger.DefaultOptions(cfg.ProgressPath).WithLogger(nil)
		bdb, err := badger.Open(opts)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open badger at %s: %w", cfg.ProgressPath, err)
		}
		closer := func() {
			if err := bdb.Close(); err != nil {
				logging.Error().Err(err).Msg("Error closing progress store")
			}
		}
		return batch.NewBadgerProgress(bdb), closer, nil
	default:
		return nil, nil, fmt.Errorf("unknown progress store %q", cfg.ProgressStore)
	}
}

// recoverInterruptedJobs re-enters jobs a previous run left in a
// non-terminal state. Each resumed job skips its already-persisted
// customers via the saved progress, so recovery never double-writes.
func recoverInterruptedJobs(processor *batch.Processor, db *database.DB) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	jobs, err := db.ListInterruptedJobs(ctx)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to list interrupted jobs")
		return
	}
	for i := range jobs {
		processor.Resume(&jobs[i])
	}
	if len(jobs) > 0 {
		logging.Info().Int("count", len(jobs)).Msg("Recovering interrupted batch jobs")
	}
}

// bootstrapTenant seeds the first tenant when the table is empty and a
// bootstrap API key is configured. Without it a fresh deployment has no
// way to authenticate.
func bootstrapTenant(ctx context.Context, db *database.DB, cfg *config.BootstrapConfig) error {
	if cfg.APIKey == "" {
		return nil
	}

	tenants, err := db.ListTenants(ctx)
	if err != nil {
		return fmt.Errorf("failed to list tenants: %w", err)
	}
	if len(tenants) > 0 {
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.APIKey), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash bootstrap API key: %w", err)
	}

	name := cfg.TenantName
	if name == "" {
		name = "default"
	}
	tenant, err := db.CreateTenant(ctx, name, string(hash))
	if err != nil {
		return fmt.Errorf("failed to create bootstrap tenant: %w", err)
	}

	logging.Info().
		Int64("tenant_id", tenant.ID).
		Str("name", tenant.Name).
		Msg("Bootstrap tenant created")
	return nil
}
