// CredGuard - Multi-Tenant Credit Scoring and Batch Ingestion Platform
// Copyright 2026 CredGuard Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/credguard/credguard

/*
schema.go - Database Schema Management

Tables (all tenant-scoped except tenants itself):
  - tenants: platform tenants with bcrypt-hashed API keys
  - tenant_bureau_config: per-tenant bureau enrichment settings
  - batch_jobs: CSV upload jobs and their lifecycle state
  - customer_records: aggregated purchase behavior per customer per job
  - customer_scores: scoring outcomes, one row per customer per job
  - bureau_cache: append-only cache of bureau responses with TTL
  - drift_checks: persisted PSI drift check history

All columns are defined in the initial CREATE TABLE statements; integer IDs
come from explicit sequences because DuckDB has no auto-increment column type.

Index Strategy:
Indexes cover the hot paths: job listing per tenant by recency, score lookups
per job, bureau cache reads per (tenant, cpf) filtered on expiry, and the
drift detector's windowed score scans.
*/

//nolint:staticcheck // File documentation, not package doc
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/credguard/credguard/internal/logging"
)

// schemaContext returns a context with timeout for schema operations.
func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 60*time.Second)
}

// createTables creates sequences, tables, and indexes.
func (db *DB) createTables() error {
	ctx, cancel := schemaContext()
	defer cancel()

	for _, query := range tableCreationQueries() {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute schema query: %s: %w", query, err)
		}
	}

	// Force a checkpoint after creating tables to flush the WAL.
	if _, err := db.conn.ExecContext(ctx, "CHECKPOINT"); err != nil {
		logging.Warn().Err(err).Msg("Failed to checkpoint after schema initialization")
	}

	return nil
}

// tableCreationQueries returns the schema DDL statements in execution order.
func tableCreationQueries() []string {
	return []string{
		`CREATE SEQUENCE IF NOT EXISTS tenants_id_seq`,
		`CREATE SEQUENCE IF NOT EXISTS customer_records_id_seq`,
		`CREATE SEQUENCE IF NOT EXISTS customer_scores_id_seq`,
		`CREATE SEQUENCE IF NOT EXISTS bureau_cache_id_seq`,
		`CREATE SEQUENCE IF NOT EXISTS drift_checks_id_seq`,

		`CREATE TABLE IF NOT EXISTS tenants (
			id INTEGER PRIMARY KEY DEFAULT nextval('tenants_id_seq'),
			name TEXT NOT NULL UNIQUE,
			api_key_hash TEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS tenant_bureau_config (
			tenant_id INTEGER PRIMARY KEY,
			enabled BOOLEAN DEFAULT false,
			provider TEXT DEFAULT 'serasa_apibrasil',
			api_token TEXT DEFAULT '',
			timeout_ms INTEGER DEFAULT 5000,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS batch_jobs (
			id UUID PRIMARY KEY,
			tenant_id INTEGER NOT NULL,
			file_name TEXT NOT NULL,
			file_size BIGINT NOT NULL,
			product TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'queued',
			total_records INTEGER DEFAULT 0,
			processed_records INTEGER DEFAULT 0,
			excluded_records INTEGER DEFAULT 0,
			error_message TEXT,
			result_csv TEXT,
			csv_data TEXT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS customer_records (
			id INTEGER PRIMARY KEY DEFAULT nextval('customer_records_id_seq'),
			tenant_id INTEGER NOT NULL,
			job_id UUID NOT NULL,
			cpf TEXT NOT NULL,
			name TEXT NOT NULL,
			email TEXT,
			phone TEXT,
			birth_date DATE,
			income DOUBLE,
			product TEXT NOT NULL,
			months_of_history INTEGER NOT NULL,
			months_since_last_movement INTEGER NOT NULL,
			total_purchases INTEGER NOT NULL,
			total_value DOUBLE NOT NULL,
			avg_ticket DOUBLE NOT NULL,
			on_time_rate DOUBLE NOT NULL,
			max_delay_days INTEGER NOT NULL,
			purchase_frequency DOUBLE NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS customer_scores (
			id INTEGER PRIMARY KEY DEFAULT nextval('customer_scores_id_seq'),
			tenant_id INTEGER NOT NULL,
			job_id UUID NOT NULL,
			cpf TEXT NOT NULL,
			internal_score DOUBLE,
			bureau_score INTEGER,
			final_score DOUBLE,
			band TEXT,
			model_version TEXT NOT NULL,
			bureau_source TEXT NOT NULL DEFAULT 'disabled',
			exclusion_reason TEXT,
			pendencias INTEGER,
			protestos INTEGER,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS bureau_cache (
			id INTEGER PRIMARY KEY DEFAULT nextval('bureau_cache_id_seq'),
			tenant_id INTEGER NOT NULL,
			cpf TEXT NOT NULL,
			score INTEGER NOT NULL,
			pendencias INTEGER NOT NULL DEFAULT 0,
			protestos INTEGER NOT NULL DEFAULT 0,
			valor_total_divida DOUBLE NOT NULL DEFAULT 0,
			cadastro_positivo BOOLEAN NOT NULL DEFAULT false,
			fetched_at TIMESTAMP NOT NULL,
			expires_at TIMESTAMP NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS drift_checks (
			id INTEGER PRIMARY KEY DEFAULT nextval('drift_checks_id_seq'),
			tenant_id INTEGER NOT NULL,
			model_version TEXT NOT NULL,
			psi DOUBLE NOT NULL,
			status TEXT NOT NULL,
			baseline_count INTEGER NOT NULL,
			current_count INTEGER NOT NULL,
			details TEXT,
			checked_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE INDEX IF NOT EXISTS idx_jobs_tenant_created ON batch_jobs(tenant_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_status ON batch_jobs(status)`,
		`CREATE INDEX IF NOT EXISTS idx_records_job ON customer_records(job_id)`,
		`CREATE INDEX IF NOT EXISTS idx_scores_job ON customer_scores(job_id)`,
		`CREATE INDEX IF NOT EXISTS idx_scores_tenant_model_created ON customer_scores(tenant_id, model_version, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_bureau_cache_lookup ON bureau_cache(tenant_id, cpf, expires_at)`,
		`CREATE INDEX IF NOT EXISTS idx_drift_tenant_checked ON drift_checks(tenant_id, checked_at DESC)`,
	}
}
