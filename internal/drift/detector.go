// CredGuard - Multi-Tenant Credit Scoring and Batch Ingestion Platform
// Copyright 2026 CredGuard Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/credguard/credguard

package drift

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/credguard/credguard/internal/config"
	"github.com/credguard/credguard/internal/logging"
	"github.com/credguard/credguard/internal/metrics"
	"github.com/credguard/credguard/internal/models"
)

// Score windows compared by a drift check.
const (
	baselineWindowStart = 60 * 24 * time.Hour // 60 days ago
	baselineWindowEnd   = 30 * 24 * time.Hour // 30 days ago
	currentWindow       = 7 * 24 * time.Hour  // last 7 days
)

// Store is the persistence surface the detector needs.
type Store interface {
	InternalScoresBetween(ctx context.Context, tenantID int64, modelVersion string, from, to time.Time, limit int) ([]float64, error)
	SaveDriftCheck(ctx context.Context, check *models.DriftCheck) error
}

// Report is the outcome of one drift check.
type Report struct {
	DriftDetected  bool    `json:"drift_detected"`
	PSI            float64 `json:"psi"`
	Status         string  `json:"status"`
	BaselineCount  int     `json:"baseline_count"`
	CurrentCount   int     `json:"current_count"`
	Recommendation string  `json:"recommendation"`
}

// Detector runs PSI drift checks over persisted internal scores.
type Detector struct {
	store      Store
	minSamples int
	maxSamples int
	now        func() time.Time
}

// NewDetector creates a drift detector.
func NewDetector(store Store, cfg *config.DriftConfig) *Detector {
	return &Detector{
		store:      store,
		minSamples: cfg.MinSamples,
		maxSamples: cfg.MaxSamples,
		now:        time.Now,
	}
}

// Check compares the baseline window (60-30 days ago) against the current
// window (last 7 days) for one tenant and model. Both windows need at
// least the configured minimum sample count or the check reports
// insufficient data instead of a bogus PSI. Every outcome is persisted.
func (d *Detector) Check(ctx context.Context, tenantID int64, modelVersion string) (*Report, error) {
	now := d.now()

	baseline, err := d.store.InternalScoresBetween(ctx, tenantID, modelVersion,
		now.Add(-baselineWindowStart), now.Add(-baselineWindowEnd), d.maxSamples)
	if err != nil {
		return nil, fmt.Errorf("failed to load baseline scores: %w", err)
	}

	current, err := d.store.InternalScoresBetween(ctx, tenantID, modelVersion,
		now.Add(-currentWindow), now, d.maxSamples)
	if err != nil {
		return nil, fmt.Errorf("failed to load current scores: %w", err)
	}

	report := &Report{
		BaselineCount: len(baseline),
		CurrentCount:  len(current),
	}

	if len(baseline) < d.minSamples || len(current) < d.minSamples {
		report.Status = models.DriftInsufficientData
		report.Recommendation = RecommendationFor(report.Status)
	} else {
		report.PSI = PSI(baseline, current)
		report.Status = StatusFor(report.PSI)
		report.DriftDetected = report.Status != models.DriftStable
		report.Recommendation = RecommendationFor(report.Status)
	}

	check := &models.DriftCheck{
		TenantID:      tenantID,
		ModelVersion:  modelVersion,
		PSI:           report.PSI,
		Status:        report.Status,
		BaselineCount: report.BaselineCount,
		CurrentCount:  report.CurrentCount,
		Details:       report.Recommendation,
	}
	if err := d.store.SaveDriftCheck(ctx, check); err != nil {
		return nil, fmt.Errorf("failed to persist drift check: %w", err)
	}

	metrics.RecordDriftCheck("tenant_"+strconv.FormatInt(tenantID, 10), modelVersion, report.Status, report.PSI)
	logging.Info().
		Int64("tenant_id", tenantID).
		Str("model", modelVersion).
		Str("status", report.Status).
		Float64("psi", report.PSI).
		Int("baseline_count", report.BaselineCount).
		Int("current_count", report.CurrentCount).
		Msg("Drift check completed")

	return report, nil
}
