// CredGuard - Multi-Tenant Credit Scoring and Batch Ingestion Platform
// Copyright 2026 CredGuard Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/credguard/credguard

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/credguard/credguard/internal/metrics"
	"github.com/credguard/credguard/internal/models"
)

// scanTenantRow scans a single tenant row.
func scanTenantRow(scanner interface {
	Scan(dest ...interface{}) error
}, t *models.Tenant) error {
	return scanner.Scan(&t.ID, &t.Name, &t.APIKeyHash, &t.CreatedAt)
}

// CreateTenant inserts a tenant with the given bcrypt API key hash.
func (db *DB) CreateTenant(ctx context.Context, name, apiKeyHash string) (*models.Tenant, error) {
	start := time.Now()
	query := `INSERT INTO tenants (name, api_key_hash)
		VALUES (?, ?)
		RETURNING id, name, api_key_hash, created_at`

	tenant := &models.Tenant{}
	err := scanTenantRow(db.conn.QueryRowContext(ctx, query, name, apiKeyHash), tenant)
	metrics.RecordDBQuery("insert", "tenants", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to insert tenant: %w", err)
	}
	return tenant, nil
}

// GetTenant retrieves a tenant by ID.
func (db *DB) GetTenant(ctx context.Context, id int64) (*models.Tenant, error) {
	query := `SELECT id, name, api_key_hash, created_at FROM tenants WHERE id = ?`

	tenant := &models.Tenant{}
	err := scanTenantRow(db.conn.QueryRowContext(ctx, query, id), tenant)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTenantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}
	return tenant, nil
}

// ListTenants returns all tenants ordered by creation time.
// API key authentication compares the presented key against every hash, so
// the tenant count is expected to stay small.
func (db *DB) ListTenants(ctx context.Context) ([]models.Tenant, error) {
	query := `SELECT id, name, api_key_hash, created_at FROM tenants ORDER BY created_at`

	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query tenants: %w", err)
	}
	defer closeWithLog(rows, "tenant rows")

	var tenants []models.Tenant
	for rows.Next() {
		var t models.Tenant
		if err := scanTenantRow(rows, &t); err != nil {
			return nil, fmt.Errorf("failed to scan tenant: %w", err)
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

// GetBureauConfig returns the tenant's bureau settings, or disabled defaults
// when the tenant has never configured enrichment.
func (db *DB) GetBureauConfig(ctx context.Context, tenantID int64) (*models.TenantBureauConfig, error) {
	query := `SELECT tenant_id, enabled, provider, api_token, timeout_ms, updated_at
		FROM tenant_bureau_config WHERE tenant_id = ?`

	cfg := &models.TenantBureauConfig{}
	err := db.conn.QueryRowContext(ctx, query, tenantID).Scan(
		&cfg.TenantID,
		&cfg.Enabled,
		&cfg.Provider,
		&cfg.APIToken,
		&cfg.TimeoutMS,
		&cfg.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return &models.TenantBureauConfig{
			TenantID:  tenantID,
			Enabled:   false,
			Provider:  "serasa_apibrasil",
			TimeoutMS: 5000,
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get bureau config: %w", err)
	}
	return cfg, nil
}

// UpsertBureauConfig writes the tenant's bureau settings.
func (db *DB) UpsertBureauConfig(ctx context.Context, cfg *models.TenantBureauConfig) error {
	start := time.Now()
	query := `INSERT INTO tenant_bureau_config (tenant_id, enabled, provider, api_token, timeout_ms, updated_at)
		VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (tenant_id) DO UPDATE SET
			enabled = EXCLUDED.enabled,
			provider = EXCLUDED.provider,
			api_token = EXCLUDED.api_token,
			timeout_ms = EXCLUDED.timeout_ms,
			updated_at = CURRENT_TIMESTAMP`

	_, err := db.conn.ExecContext(ctx, query,
		cfg.TenantID, cfg.Enabled, cfg.Provider, cfg.APIToken, cfg.TimeoutMS)
	metrics.RecordDBQuery("upsert", "tenant_bureau_config", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to upsert bureau config: %w", err)
	}
	return nil
}
