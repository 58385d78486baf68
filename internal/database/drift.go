// CredGuard - Multi-Tenant Credit Scoring and Batch Ingestion Platform
// Copyright 2026 CredGuard Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/credguard/credguard

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/credguard/credguard/internal/metrics"
	"github.com/credguard/credguard/internal/models"
)

// SaveDriftCheck persists one drift check result.
func (db *DB) SaveDriftCheck(ctx context.Context, check *models.DriftCheck) error {
	start := time.Now()
	query := `INSERT INTO drift_checks
		(tenant_id, model_version, psi, status, baseline_count, current_count, details)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id, checked_at`

	err := db.conn.QueryRowContext(ctx, query,
		check.TenantID,
		check.ModelVersion,
		check.PSI,
		check.Status,
		check.BaselineCount,
		check.CurrentCount,
		nullableString(check.Details),
	).Scan(&check.ID, &check.CheckedAt)
	metrics.RecordDBQuery("insert", "drift_checks", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to insert drift check: %w", err)
	}
	return nil
}

// ListDriftChecks returns a tenant's drift history, newest first.
func (db *DB) ListDriftChecks(ctx context.Context, tenantID int64, limit int) ([]models.DriftCheck, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, tenant_id, model_version, psi, status, baseline_count,
			current_count, COALESCE(details, ''), checked_at
		FROM drift_checks
		WHERE tenant_id = ?
		ORDER BY checked_at DESC
		LIMIT ?`

	rows, err := db.conn.QueryContext(ctx, query, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query drift checks: %w", err)
	}
	defer closeWithLog(rows, "drift check rows")

	var checks []models.DriftCheck
	for rows.Next() {
		var c models.DriftCheck
		if err := rows.Scan(
			&c.ID,
			&c.TenantID,
			&c.ModelVersion,
			&c.PSI,
			&c.Status,
			&c.BaselineCount,
			&c.CurrentCount,
			&c.Details,
			&c.CheckedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan drift check: %w", err)
		}
		checks = append(checks, c)
	}
	return checks, rows.Err()
}
