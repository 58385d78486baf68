// CredGuard - Multi-Tenant Credit Scoring and Batch Ingestion Platform
// Copyright 2026 CredGuard Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/credguard/credguard

package batch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/credguard/credguard/internal/bureau"
	"github.com/credguard/credguard/internal/config"
	"github.com/credguard/credguard/internal/database"
	"github.com/credguard/credguard/internal/logging"
	"github.com/credguard/credguard/internal/metrics"
	"github.com/credguard/credguard/internal/models"
	"github.com/credguard/credguard/internal/scoring"
)

// Store is the persistence surface the processor needs.
type Store interface {
	TransitionJob(ctx context.Context, tenantID int64, jobID string, to models.JobStatus, errorMessage string) error
	UpdateJobProgress(ctx context.Context, tenantID int64, jobID string, total, processed, excluded int) error
	SaveRecordWithScore(ctx context.Context, record *models.CustomerRecord, score *models.CustomerScore) error
	SetJobResult(ctx context.Context, tenantID int64, jobID, resultCSV string) error
	GetScoredRows(ctx context.Context, tenantID int64, jobID string) ([]database.ScoredRow, error)
}

// Enricher resolves bureau data for one CPF.
type Enricher interface {
	Enrich(ctx context.Context, tenantID int64, cpf string) *bureau.Result
}

// Processor runs batch jobs through the scoring pipeline. Customers
// within a job are processed strictly sequentially so the output order is
// deterministic; separate jobs run concurrently, one goroutine each.
type Processor struct {
	store      Store
	scorer     scoring.Scorer
	enricher   Enricher
	progress   ProgressTracker
	jobTimeout time.Duration
	now        func() time.Time
}

// NewProcessor creates a batch processor.
func NewProcessor(store Store, scorer scoring.Scorer, enricher Enricher, progress ProgressTracker, cfg *config.BatchConfig) *Processor {
	return &Processor{
		store:      store,
		scorer:     scorer,
		enricher:   enricher,
		progress:   progress,
		jobTimeout: cfg.JobTimeout,
		now:        time.Now,
	}
}

// Start runs the job in the background with a detached context so the
// upload request can return immediately. The job timeout bounds the whole
// run.
func (p *Processor) Start(job *models.BatchJob, csvData string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), p.jobTimeout)
		defer cancel()

		if err := p.Process(ctx, job, csvData); err != nil {
			logging.Error().Err(err).
				Str("job_id", job.ID).
				Int64("tenant_id", job.TenantID).
				Msg("Batch job failed")
		}
	}()
}

// Resume re-runs a job found in a non-terminal state at startup.
// Already-persisted customers are skipped via the saved progress, so a
// resumed job continues where the interrupted run stopped. A job whose
// staged upload is missing cannot be re-run and is failed instead.
func (p *Processor) Resume(job *models.BatchJob) {
	if job.CSVData == nil || *job.CSVData == "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := p.store.TransitionJob(ctx, job.TenantID, job.ID, models.JobFailed, "interrupted with no staged upload"); err != nil {
			logging.Error().Err(err).Str("job_id", job.ID).Msg("Failed to mark unrecoverable job failed")
		}
		return
	}

	logging.Info().
		Str("job_id", job.ID).
		Int64("tenant_id", job.TenantID).
		Str("status", string(job.Status)).
		Msg("Recovering interrupted batch job")
	p.Start(job, *job.CSVData)
}

// Process runs one job to a terminal state. Any returned error has
// already been recorded on the job as its failure message.
func (p *Processor) Process(ctx context.Context, job *models.BatchJob, csvData string) error {
	start := p.now()
	tenantLabel := fmt.Sprintf("tenant_%d", job.TenantID)

	logging.Info().
		Str("job_id", job.ID).
		Int64("tenant_id", job.TenantID).
		Str("file", job.FileName).
		Msg("Batch job started")

	if err := p.store.TransitionJob(ctx, job.TenantID, job.ID, models.JobProcessing, ""); err != nil {
		return fmt.Errorf("failed to start job: %w", err)
	}

	model, err := models.ModelForProduct(job.Product)
	if err != nil {
		return p.fail(ctx, job, tenantLabel, start, err)
	}

	customers, err := Parse(csvData)
	if err != nil {
		return p.fail(ctx, job, tenantLabel, start, err)
	}

	// Resume past customers already written by an interrupted run.
	resumeFrom := 0
	excluded := 0
	if saved, err := p.progress.Load(ctx, job.ID); err != nil {
		logging.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to load job progress, starting from scratch")
	} else if saved != nil {
		resumeFrom = saved.Processed
		excluded = saved.Excluded
		logging.Info().Str("job_id", job.ID).Int("resume_from", resumeFrom).Msg("Resuming batch job")
	}

	total := len(customers)
	now := p.now()

	for i, customer := range customers {
		if i < resumeFrom {
			continue
		}
		if ctx.Err() != nil {
			return p.fail(ctx, job, tenantLabel, start, fmt.Errorf("job canceled: %w", ctx.Err()))
		}

		record := BuildRecord(customer, job.TenantID, job.ID, now)
		score := p.scoreCustomer(ctx, job, customer, model, now)
		if score.Excluded() {
			excluded++
			metrics.BatchRecordsExcluded.WithLabelValues(tenantLabel, *score.ExclusionReason).Inc()
		}

		if err := p.store.SaveRecordWithScore(ctx, record, score); err != nil {
			return p.fail(ctx, job, tenantLabel, start, fmt.Errorf("failed to persist customer %s: %w", customer.CPF, err))
		}
		metrics.BatchRecordsProcessed.WithLabelValues(tenantLabel).Inc()

		processed := i + 1
		if err := p.progress.Save(ctx, &JobProgress{JobID: job.ID, Processed: processed, Excluded: excluded}); err != nil {
			logging.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to save job progress")
		}
		if err := p.store.UpdateJobProgress(ctx, job.TenantID, job.ID, total, processed, excluded); err != nil {
			return p.fail(ctx, job, tenantLabel, start, fmt.Errorf("failed to update job progress: %w", err))
		}
	}

	if err := p.exportResult(ctx, job); err != nil {
		return p.fail(ctx, job, tenantLabel, start, err)
	}

	if err := p.store.TransitionJob(ctx, job.TenantID, job.ID, models.JobCompleted, ""); err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}
	if err := p.progress.Clear(ctx, job.ID); err != nil {
		logging.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to clear job progress")
	}

	metrics.RecordBatchJob(tenantLabel, string(models.JobCompleted), p.now().Sub(start))
	logging.Info().
		Str("job_id", job.ID).
		Int("total", total).
		Int("excluded", excluded).
		Dur("duration", p.now().Sub(start)).
		Msg("Batch job completed")
	return nil
}

// scoreCustomer produces the score row for one customer: exclusion,
// scoring with neutral fallback, bureau enrichment, and blending.
func (p *Processor) scoreCustomer(ctx context.Context, job *models.BatchJob, customer *Customer, model string, now time.Time) *models.CustomerScore {
	score := &models.CustomerScore{
		TenantID:     job.TenantID,
		JobID:        job.ID,
		CPF:          customer.CPF,
		ModelVersion: model,
		BureauSource: models.BureauSourceDisabled,
	}

	if reason := Classify(customer, now); reason != "" {
		score.ExclusionReason = &reason
		return score
	}

	payload := BuildPayload(customer)
	prediction, err := p.scorer.Score(ctx, payload)
	if err != nil {
		reason := "exec"
		if errors.Is(err, context.DeadlineExceeded) {
			reason = "timeout"
		}
		metrics.ScorerFallbacks.WithLabelValues(model, reason).Inc()
		logging.Warn().Err(err).
			Str("job_id", job.ID).
			Str("cpf", payload.CPF).
			Msg("Scorer failed, using neutral fallback")
		prediction = scoring.Fallback(payload, err.Error())
	} else if prediction.Failed() {
		// The scorer answered with an error payload. Its score is the
		// neutral fallback, so record it as one.
		metrics.ScorerFallbacks.WithLabelValues(model, "reported").Inc()
		logging.Warn().
			Str("job_id", job.ID).
			Str("cpf", payload.CPF).
			Str("error", prediction.Erro).
			Msg("Scorer returned an error payload")
	}
	if prediction.Modelo != "" {
		score.ModelVersion = prediction.Modelo
	}

	internal := prediction.Score
	score.InternalScore = &internal

	result := p.enricher.Enrich(ctx, job.TenantID, customer.CPF)
	score.BureauSource = result.Source
	var bureauScore *int
	if result.Data != nil {
		bs := result.Data.Score
		pend := result.Data.PendenciasFinanceiras
		prot := result.Data.Protestos
		bureauScore = &bs
		score.BureauScore = &bs
		score.Pendencias = &pend
		score.Protestos = &prot
	}

	final := scoring.Blend(internal, result.Source, bureauScore)
	band := scoring.BandFor(final)
	score.FinalScore = &final
	score.Band = &band
	return score
}

// exportResult renders the downloadable CSV from the persisted rows and
// attaches it to the job. Reading back from storage keeps resumed jobs
// complete: rows written before an interruption are included.
func (p *Processor) exportResult(ctx context.Context, job *models.BatchJob) error {
	scored, err := p.store.GetScoredRows(ctx, job.TenantID, job.ID)
	if err != nil {
		return fmt.Errorf("failed to load scored rows: %w", err)
	}

	rows := make([]OutputRow, len(scored))
	for i := range scored {
		rows[i] = OutputRow{
			Name:    scored[i].Name,
			Product: job.Product,
			Score:   scored[i].Score,
		}
	}

	resultCSV, err := RenderCSV(rows, p.now())
	if err != nil {
		return fmt.Errorf("failed to render result CSV: %w", err)
	}
	if err := p.store.SetJobResult(ctx, job.TenantID, job.ID, resultCSV); err != nil {
		return fmt.Errorf("failed to store result CSV: %w", err)
	}
	return nil
}

// fail moves the job to failed with the error message, using a fresh
// context so a canceled job context cannot block the final write.
func (p *Processor) fail(ctx context.Context, job *models.BatchJob, tenantLabel string, start time.Time, cause error) error {
	failCtx := ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		failCtx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
	}

	if err := p.store.TransitionJob(failCtx, job.TenantID, job.ID, models.JobFailed, cause.Error()); err != nil {
		logging.Error().Err(err).Str("job_id", job.ID).Msg("Failed to mark job failed")
	}
	if err := p.progress.Clear(failCtx, job.ID); err != nil {
		logging.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to clear job progress")
	}

	metrics.RecordBatchJob(tenantLabel, string(models.JobFailed), p.now().Sub(start))
	return cause
}
