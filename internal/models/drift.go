// CredGuard - Multi-Tenant Credit Scoring and Batch Ingestion Platform
// Copyright 2026 CredGuard Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/credguard/credguard

package models

import "time"

// Drift check outcomes.
const (
	DriftStable           = "stable"
	DriftWarning          = "warning"
	DriftCritical         = "critical"
	DriftInsufficientData = "insufficient_data"
)

// DriftCheck is one persisted PSI drift check result.
type DriftCheck struct {
	ID            int64     `json:"id"`
	TenantID      int64     `json:"tenant_id"`
	ModelVersion  string    `json:"model_version"`
	PSI           float64   `json:"psi"`
	Status        string    `json:"status"`
	BaselineCount int       `json:"baseline_count"`
	CurrentCount  int       `json:"current_count"`
	Details       string    `json:"details,omitempty"`
	CheckedAt     time.Time `json:"checked_at"`
}
