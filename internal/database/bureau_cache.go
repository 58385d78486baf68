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

// GetCachedBureau returns the newest unexpired cache entry for (tenant, cpf),
// or nil when no live entry exists. The table is append-only, so stale rows
// are skipped by the expiry predicate rather than deleted in the read path.
func (db *DB) GetCachedBureau(ctx context.Context, tenantID int64, cpfDigits string, now time.Time) (*models.BureauCacheEntry, error) {
	query := `SELECT id, tenant_id, cpf, score, pendencias, protestos,
			valor_total_divida, cadastro_positivo, fetched_at, expires_at
		FROM bureau_cache
		WHERE tenant_id = ? AND cpf = ? AND expires_at > ?
		ORDER BY fetched_at DESC
		LIMIT 1`

	stmt, err := db.prepared(ctx, query)
	if err != nil {
		return nil, err
	}

	entry := &models.BureauCacheEntry{}
	err = stmt.QueryRowContext(ctx, tenantID, cpfDigits, now).Scan(
		&entry.ID,
		&entry.TenantID,
		&entry.CPF,
		&entry.Data.Score,
		&entry.Data.PendenciasFinanceiras,
		&entry.Data.Protestos,
		&entry.Data.ValorTotalDivida,
		&entry.Data.CadastroPositivo,
		&entry.FetchedAt,
		&entry.ExpiresAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get bureau cache entry: %w", err)
	}
	return entry, nil
}

// AppendBureauCache inserts a fresh cache entry. Only successful bureau
// responses reach this point; failures are never cached.
func (db *DB) AppendBureauCache(ctx context.Context, entry *models.BureauCacheEntry) error {
	start := time.Now()
	query := `INSERT INTO bureau_cache
		(tenant_id, cpf, score, pendencias, protestos, valor_total_divida, cadastro_positivo, fetched_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`

	stmt, err := db.prepared(ctx, query)
	if err != nil {
		return err
	}

	err = stmt.QueryRowContext(ctx,
		entry.TenantID,
		entry.CPF,
		entry.Data.Score,
		entry.Data.PendenciasFinanceiras,
		entry.Data.Protestos,
		entry.Data.ValorTotalDivida,
		entry.Data.CadastroPositivo,
		entry.FetchedAt,
		entry.ExpiresAt,
	).Scan(&entry.ID)
	metrics.RecordDBQuery("insert", "bureau_cache", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to append bureau cache entry: %w", err)
	}
	return nil
}

// PruneBureauCache deletes entries expired before the cutoff. Called
// opportunistically by the drift scheduler so the append-only table does not
// grow without bound.
func (db *DB) PruneBureauCache(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM bureau_cache WHERE expires_at <= ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune bureau cache: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned bureau cache entries: %w", err)
	}
	return n, nil
}

// BureauCacheStats summarizes cache state for the bureau metrics endpoint.
type BureauCacheStats struct {
	TotalEntries int `json:"total_entries"`
	LiveEntries  int `json:"live_entries"`
}

// GetBureauCacheStats counts total and unexpired entries for a tenant.
func (db *DB) GetBureauCacheStats(ctx context.Context, tenantID int64, now time.Time) (*BureauCacheStats, error) {
	stats := &BureauCacheStats{}
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(*) FILTER (WHERE expires_at > ?) FROM bureau_cache WHERE tenant_id = ?`,
		now, tenantID).Scan(&stats.TotalEntries, &stats.LiveEntries)
	if err != nil {
		return nil, fmt.Errorf("failed to get bureau cache stats: %w", err)
	}
	return stats, nil
}
