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

const jobSelectColumns = `id, tenant_id, file_name, file_size, product, status,
	total_records, processed_records, excluded_records, error_message, result_csv,
	created_at, updated_at`

// scanJobRow scans a single batch job row with nullable fields handling.
func scanJobRow(scanner interface {
	Scan(dest ...interface{}) error
}, job *models.BatchJob) error {
	var errorMessage, resultCSV sql.NullString
	var status string

	if err := scanner.Scan(
		&job.ID,
		&job.TenantID,
		&job.FileName,
		&job.FileSize,
		&job.Product,
		&status,
		&job.TotalRecords,
		&job.ProcessedRecords,
		&job.ExcludedRecords,
		&errorMessage,
		&resultCSV,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		return err
	}

	job.Status = models.JobStatus(status)
	if errorMessage.Valid {
		job.ErrorMessage = &errorMessage.String
	}
	if resultCSV.Valid {
		job.ResultCSV = &resultCSV.String
	}
	return nil
}

// CreateJob inserts a new batch job in the queued state. The raw CSV
// upload is staged in csv_data so an interrupted job can be re-run from
// storage after a restart.
func (db *DB) CreateJob(ctx context.Context, job *models.BatchJob) error {
	start := time.Now()
	query := `INSERT INTO batch_jobs (id, tenant_id, file_name, file_size, product, status, total_records, csv_data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := db.conn.ExecContext(ctx, query,
		job.ID, job.TenantID, job.FileName, job.FileSize, job.Product,
		string(models.JobQueued), job.TotalRecords, job.CSVData)
	metrics.RecordDBQuery("insert", "batch_jobs", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to insert batch job: %w", err)
	}
	job.Status = models.JobQueued
	return nil
}

// GetJob retrieves a job scoped to the tenant.
func (db *DB) GetJob(ctx context.Context, tenantID int64, jobID string) (*models.BatchJob, error) {
	query := `SELECT ` + jobSelectColumns + ` FROM batch_jobs WHERE id = ? AND tenant_id = ?`

	job := &models.BatchJob{}
	err := scanJobRow(db.conn.QueryRowContext(ctx, query, jobID, tenantID), job)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// JobFilter controls ListJobs filtering and pagination.
type JobFilter struct {
	Status  models.JobStatus
	OrderBy string
	Desc    bool
	Limit   int
	Offset  int
}

// validJobOrderColumns whitelists ORDER BY columns to keep the query
// parameterization safe.
var validJobOrderColumns = map[string]bool{
	"created_at": true,
	"updated_at": true,
	"file_name":  true,
	"status":     true,
}

// ListJobs retrieves a tenant's jobs with optional filtering.
// User values use parameterized queries; ORDER BY columns are validated
// against validJobOrderColumns.
func (db *DB) ListJobs(ctx context.Context, tenantID int64, filter JobFilter) ([]models.BatchJob, error) {
	query := `SELECT ` + jobSelectColumns + ` FROM batch_jobs WHERE tenant_id = ?`
	args := []interface{}{tenantID}

	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, string(filter.Status))
	}

	orderBy := "created_at"
	if filter.OrderBy != "" && validJobOrderColumns[filter.OrderBy] {
		orderBy = filter.OrderBy
	}
	direction := "DESC"
	if filter.OrderBy != "" && !filter.Desc {
		direction = "ASC"
	}
	query += fmt.Sprintf(" ORDER BY %s %s", orderBy, direction)

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, filter.Offset)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	defer closeWithLog(rows, "job rows")

	var jobs []models.BatchJob
	for rows.Next() {
		var job models.BatchJob
		if err := scanJobRow(rows, &job); err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// CountJobs returns the number of a tenant's jobs matching the filter.
func (db *DB) CountJobs(ctx context.Context, tenantID int64, filter JobFilter) (int, error) {
	query := `SELECT COUNT(*) FROM batch_jobs WHERE tenant_id = ?`
	args := []interface{}{tenantID}
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, string(filter.Status))
	}

	var count int
	if err := db.conn.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count jobs: %w", err)
	}
	return count, nil
}

// TransitionJob moves a job to a new status, enforcing the state machine.
// The transition runs in a transaction so a concurrent transition cannot
// slip between the read and the write.
func (db *DB) TransitionJob(ctx context.Context, tenantID int64, jobID string, to models.JobStatus, errorMessage string) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var current string
	err = tx.QueryRowContext(ctx,
		`SELECT status FROM batch_jobs WHERE id = ? AND tenant_id = ?`, jobID, tenantID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrJobNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read job status: %w", err)
	}

	if err := models.ValidateTransition(models.JobStatus(current), to); err != nil {
		return err
	}

	query := `UPDATE batch_jobs SET status = ?, updated_at = CURRENT_TIMESTAMP`
	args := []interface{}{string(to)}
	if errorMessage != "" {
		query += ", error_message = ?"
		args = append(args, errorMessage)
	}
	if to.IsTerminal() {
		// The staged upload is only needed for restart recovery.
		query += ", csv_data = NULL"
	}
	query += ` WHERE id = ? AND tenant_id = ?`
	args = append(args, jobID, tenantID)

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}

	return tx.Commit()
}

// ListInterruptedJobs returns jobs across all tenants left in a
// non-terminal state by a previous run, each carrying its staged CSV so
// the startup recovery pass can re-enter processing.
func (db *DB) ListInterruptedJobs(ctx context.Context) ([]models.BatchJob, error) {
	query := `SELECT ` + jobSelectColumns + `, csv_data FROM batch_jobs
		WHERE status IN (?, ?)
		ORDER BY created_at`

	rows, err := db.conn.QueryContext(ctx, query, string(models.JobQueued), string(models.JobProcessing))
	if err != nil {
		return nil, fmt.Errorf("failed to query interrupted jobs: %w", err)
	}
	defer closeWithLog(rows, "interrupted job rows")

	var jobs []models.BatchJob
	for rows.Next() {
		var job models.BatchJob
		var errorMessage, resultCSV, csvData sql.NullString
		var status string
		if err := rows.Scan(
			&job.ID,
			&job.TenantID,
			&job.FileName,
			&job.FileSize,
			&job.Product,
			&status,
			&job.TotalRecords,
			&job.ProcessedRecords,
			&job.ExcludedRecords,
			&errorMessage,
			&resultCSV,
			&job.CreatedAt,
			&job.UpdatedAt,
			&csvData,
		); err != nil {
			return nil, fmt.Errorf("failed to scan interrupted job: %w", err)
		}
		job.Status = models.JobStatus(status)
		if errorMessage.Valid {
			job.ErrorMessage = &errorMessage.String
		}
		if resultCSV.Valid {
			job.ResultCSV = &resultCSV.String
		}
		if csvData.Valid {
			job.CSVData = &csvData.String
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// UpdateJobProgress records counts as rows are processed.
func (db *DB) UpdateJobProgress(ctx context.Context, tenantID int64, jobID string, total, processed, excluded int) error {
	query := `UPDATE batch_jobs
		SET total_records = ?, processed_records = ?, excluded_records = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND tenant_id = ?`

	res, err := db.conn.ExecContext(ctx, query, total, processed, excluded, jobID, tenantID)
	if err != nil {
		return fmt.Errorf("failed to update job progress: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrJobNotFound
	}
	return nil
}

// SetJobResult stores the exported result CSV for a completed job.
func (db *DB) SetJobResult(ctx context.Context, tenantID int64, jobID, resultCSV string) error {
	query := `UPDATE batch_jobs SET result_csv = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND tenant_id = ?`

	res, err := db.conn.ExecContext(ctx, query, resultCSV, jobID, tenantID)
	if err != nil {
		return fmt.Errorf("failed to set job result: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrJobNotFound
	}
	return nil
}

// DashboardStats summarizes a tenant's activity for the dashboard endpoint.
type DashboardStats struct {
	TotalJobs        int            `json:"total_jobs"`
	JobsByStatus     map[string]int `json:"jobs_by_status"`
	TotalScored      int            `json:"total_scored"`
	TotalExcluded    int            `json:"total_excluded"`
	BandDistribution map[string]int `json:"band_distribution"`
}

// GetDashboardStats aggregates job and score counts for a tenant.
func (db *DB) GetDashboardStats(ctx context.Context, tenantID int64) (*DashboardStats, error) {
	stats := &DashboardStats{
		JobsByStatus:     make(map[string]int),
		BandDistribution: make(map[string]int),
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM batch_jobs WHERE tenant_id = ? GROUP BY status`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query job stats: %w", err)
	}
	defer closeWithLog(rows, "job stat rows")
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan job stats: %w", err)
		}
		stats.JobsByStatus[status] = count
		stats.TotalJobs += count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	bandRows, err := db.conn.QueryContext(ctx,
		`SELECT COALESCE(band, ''), COUNT(*) FROM customer_scores WHERE tenant_id = ? GROUP BY band`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query band stats: %w", err)
	}
	defer closeWithLog(bandRows, "band stat rows")
	for bandRows.Next() {
		var band string
		var count int
		if err := bandRows.Scan(&band, &count); err != nil {
			return nil, fmt.Errorf("failed to scan band stats: %w", err)
		}
		if band == "" {
			stats.TotalExcluded += count
			continue
		}
		stats.BandDistribution[band] = count
		stats.TotalScored += count
	}
	return stats, bandRows.Err()
}
