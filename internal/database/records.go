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

// SaveRecordWithScore persists one customer's record and score as a single
// transaction. A crash mid-job never leaves a record without its score row
// or vice versa.
func (db *DB) SaveRecordWithScore(ctx context.Context, record *models.CustomerRecord, score *models.CustomerScore) error {
	start := time.Now()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	recordQuery := `INSERT INTO customer_records
		(tenant_id, job_id, cpf, name, email, phone, birth_date, income, product,
		 months_of_history, months_since_last_movement, total_purchases, total_value,
		 avg_ticket, on_time_rate, max_delay_days, purchase_frequency)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`

	recordStmt, err := db.prepared(ctx, recordQuery)
	if err != nil {
		return err
	}

	err = tx.StmtContext(ctx, recordStmt).QueryRowContext(ctx,
		record.TenantID,
		record.JobID,
		record.CPF,
		record.Name,
		nullableString(record.Email),
		nullableString(record.Phone),
		record.BirthDate,
		record.Income,
		record.Product,
		record.MonthsOfHistory,
		record.MonthsSinceLastMovement,
		record.TotalPurchases,
		record.TotalValue,
		record.AvgTicket,
		record.OnTimeRate,
		record.MaxDelayDays,
		record.PurchaseFrequency,
	).Scan(&record.ID)
	if err != nil {
		metrics.RecordDBQuery("insert", "customer_records", time.Since(start), err)
		return fmt.Errorf("failed to insert customer record: %w", err)
	}

	scoreQuery := `INSERT INTO customer_scores
		(tenant_id, job_id, cpf, internal_score, bureau_score, final_score, band,
		 model_version, bureau_source, exclusion_reason, pendencias, protestos)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`

	scoreStmt, err := db.prepared(ctx, scoreQuery)
	if err != nil {
		return err
	}

	err = tx.StmtContext(ctx, scoreStmt).QueryRowContext(ctx,
		score.TenantID,
		score.JobID,
		score.CPF,
		score.InternalScore,
		score.BureauScore,
		score.FinalScore,
		score.Band,
		score.ModelVersion,
		score.BureauSource,
		score.ExclusionReason,
		score.Pendencias,
		score.Protestos,
	).Scan(&score.ID)
	if err != nil {
		metrics.RecordDBQuery("insert", "customer_scores", time.Since(start), err)
		return fmt.Errorf("failed to insert customer score: %w", err)
	}

	err = tx.Commit()
	metrics.RecordDBQuery("insert", "customer_scores", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to commit record and score: %w", err)
	}
	return nil
}

// nullableString maps empty strings to NULL.
func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// ScoredRow is one job score joined with the customer name for export.
type ScoredRow struct {
	Score models.CustomerScore
	Name  string
}

// GetScoredRows retrieves score rows with customer names for result export.
func (db *DB) GetScoredRows(ctx context.Context, tenantID int64, jobID string) ([]ScoredRow, error) {
	query := `SELECT s.id, s.tenant_id, s.job_id, s.cpf, s.internal_score, s.bureau_score,
			s.final_score, s.band, s.model_version, s.bureau_source, s.exclusion_reason,
			s.pendencias, s.protestos, s.created_at, r.name
		FROM customer_scores s
		JOIN customer_records r ON s.tenant_id = r.tenant_id AND s.job_id = r.job_id AND s.cpf = r.cpf
		WHERE s.job_id = ? AND s.tenant_id = ?
		ORDER BY s.id`

	rows, err := db.conn.QueryContext(ctx, query, jobID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query scored rows: %w", err)
	}
	defer closeWithLog(rows, "scored rows")

	var result []ScoredRow
	for rows.Next() {
		var row ScoredRow
		if err := rows.Scan(
			&row.Score.ID,
			&row.Score.TenantID,
			&row.Score.JobID,
			&row.Score.CPF,
			&row.Score.InternalScore,
			&row.Score.BureauScore,
			&row.Score.FinalScore,
			&row.Score.Band,
			&row.Score.ModelVersion,
			&row.Score.BureauSource,
			&row.Score.ExclusionReason,
			&row.Score.Pendencias,
			&row.Score.Protestos,
			&row.Score.CreatedAt,
			&row.Name,
		); err != nil {
			return nil, fmt.Errorf("failed to scan scored row: %w", err)
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

// InternalScoresBetween returns non-excluded internal scores for a tenant and
// model produced within [from, to), capped at limit. Used by the drift
// detector's baseline and current windows.
func (db *DB) InternalScoresBetween(ctx context.Context, tenantID int64, modelVersion string, from, to time.Time, limit int) ([]float64, error) {
	query := `SELECT internal_score FROM customer_scores
		WHERE tenant_id = ? AND model_version = ?
		  AND internal_score IS NOT NULL
		  AND created_at >= ? AND created_at < ?
		ORDER BY created_at DESC
		LIMIT ?`

	rows, err := db.conn.QueryContext(ctx, query, tenantID, modelVersion, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query internal scores: %w", err)
	}
	defer closeWithLog(rows, "score window rows")

	var scores []float64
	for rows.Next() {
		var s float64
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("failed to scan internal score: %w", err)
		}
		scores = append(scores, s)
	}
	return scores, rows.Err()
}

// BureauSourceCounts tallies a tenant's score rows by bureau source.
// Feeds the bureau metrics endpoint: cache rows over cache+API rows gives
// the cache hit rate.
func (db *DB) BureauSourceCounts(ctx context.Context, tenantID int64) (map[string]int, error) {
	query := `SELECT bureau_source, COUNT(*) FROM customer_scores
		WHERE tenant_id = ? GROUP BY bureau_source`

	rows, err := db.conn.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query bureau source counts: %w", err)
	}
	defer closeWithLog(rows, "bureau source rows")

	counts := make(map[string]int)
	for rows.Next() {
		var source string
		var count int
		if err := rows.Scan(&source, &count); err != nil {
			return nil, fmt.Errorf("failed to scan bureau source count: %w", err)
		}
		counts[source] = count
	}
	return counts, rows.Err()
}
