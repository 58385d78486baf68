// CredGuard - Multi-Tenant Credit Scoring and Batch Ingestion Platform
// Copyright 2026 CredGuard Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/credguard/credguard

package drift

import (
	"context"
	"time"

	"github.com/credguard/credguard/internal/config"
	"github.com/credguard/credguard/internal/logging"
	"github.com/credguard/credguard/internal/models"
)

// SchedulerStore extends Store with the enumeration and maintenance
// queries the periodic scheduler needs.
type SchedulerStore interface {
	Store
	ListTenants(ctx context.Context) ([]models.Tenant, error)
	PruneBureauCache(ctx context.Context, cutoff time.Time) (int64, error)
}

// Scheduler runs drift checks for every tenant and model on a fixed
// interval and prunes expired bureau cache entries on the same cadence.
// It implements suture.Service.
type Scheduler struct {
	detector *Detector
	store    SchedulerStore
	interval time.Duration
}

// NewScheduler creates the periodic drift scheduler.
func NewScheduler(detector *Detector, store SchedulerStore, cfg *config.DriftConfig) *Scheduler {
	return &Scheduler{
		detector: detector,
		store:    store,
		interval: cfg.CheckInterval,
	}
}

// Serve runs the scheduling loop until the context is canceled. The first
// sweep happens one interval after startup so batch traffic settles first.
func (s *Scheduler) Serve(ctx context.Context) error {
	logging.Info().Dur("interval", s.interval).Msg("Drift scheduler started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Info().Msg("Drift scheduler stopping")
			return ctx.Err()
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// sweep runs one full pass: a drift check per tenant and model, then
// bureau cache maintenance. Per-check failures are logged and skipped so
// one tenant's bad data cannot starve the rest.
func (s *Scheduler) sweep(ctx context.Context) {
	tenants, err := s.store.ListTenants(ctx)
	if err != nil {
		logging.Error().Err(err).Msg("Drift sweep failed to list tenants")
		return
	}

	for _, tenant := range tenants {
		for _, model := range models.ModelCatalog() {
			if _, err := s.detector.Check(ctx, tenant.ID, model.Version); err != nil {
				logging.Error().Err(err).
					Int64("tenant_id", tenant.ID).
					Str("model", model.Version).
					Msg("Scheduled drift check failed")
			}
		}
	}

	pruned, err := s.store.PruneBureauCache(ctx, time.Now())
	if err != nil {
		logging.Error().Err(err).Msg("Bureau cache prune failed")
		return
	}
	if pruned > 0 {
		logging.Info().Int64("pruned", pruned).Msg("Pruned expired bureau cache entries")
	}
}

// String implements fmt.Stringer for supervisor logging.
func (s *Scheduler) String() string {
	return "drift-scheduler"
}
