// CredGuard - Multi-Tenant Credit Scoring and Batch Ingestion Platform
// Copyright 2026 CredGuard Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/credguard/credguard

package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/credguard/credguard/internal/batch"
	"github.com/credguard/credguard/internal/config"
	"github.com/credguard/credguard/internal/database"
	"github.com/credguard/credguard/internal/drift"
	"github.com/credguard/credguard/internal/logging"
	"github.com/credguard/credguard/internal/models"
	"github.com/credguard/credguard/internal/validation"
)

// Handler carries the dependencies the HTTP endpoints need.
type Handler struct {
	db        *database.DB
	processor *batch.Processor
	detector  *drift.Detector
	cfg       *config.Config
}

// NewHandler builds the endpoint set over the given dependencies.
func NewHandler(db *database.DB, processor *batch.Processor, detector *drift.Detector, cfg *config.Config) *Handler {
	return &Handler{
		db:        db,
		processor: processor,
		detector:  detector,
		cfg:       cfg,
	}
}

// decodeBody decodes and validates a JSON request body. On failure it has
// already written the error response and returns false.
func decodeBody(rw *ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		rw.BadRequest("Invalid JSON body: " + err.Error())
		return false
	}
	if verr := validation.ValidateStruct(dst); verr != nil {
		apiErr := verr.ToAPIError()
		rw.ValidationError(apiErr.Message, apiErr.Details)
		return false
	}
	return true
}

// getIntParam extracts an integer query parameter with a default value.
func getIntParam(r *http.Request, key string, defaultValue int) int {
	value := r.URL.Query().Get(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

// pageParams clamps limit/offset query parameters to the configured bounds.
func (h *Handler) pageParams(r *http.Request) (limit, offset int) {
	limit = getIntParam(r, "limit", h.cfg.API.DefaultPageSize)
	if limit <= 0 {
		limit = h.cfg.API.DefaultPageSize
	}
	if limit > h.cfg.API.MaxPageSize {
		limit = h.cfg.API.MaxPageSize
	}
	offset = getIntParam(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// createBatchRequest is the upload payload. The CSV travels inline; the
// configured max file size bounds it.
type createBatchRequest struct {
	FileName string `json:"fileName" validate:"required,max=255"`
	FileSize int64  `json:"fileSize" validate:"min=0"`
	Product  string `json:"product" validate:"required"`
	CSVData  string `json:"csvData" validate:"required"`
}

// CreateBatch accepts a CSV upload and starts scoring it in the background.
//
// Method: POST
// Path: /api/v1/batches
// Request: {"fileName": "clients.csv", "fileSize": 1024, "product": "CARTAO", "csvData": "..."}
// Response:
//   - 202: the queued job
//   - 400: unknown product, oversized upload, or invalid body
func (h *Handler) CreateBatch(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	tenant, ok := requireTenant(w, r)
	if !ok {
		return
	}

	var req createBatchRequest
	if !decodeBody(rw, r, &req) {
		return
	}
	if int64(len(req.CSVData)) > h.cfg.Batch.MaxFileSize {
		rw.BadRequest(fmt.Sprintf("CSV data exceeds the %d byte limit", h.cfg.Batch.MaxFileSize))
		return
	}
	if _, err := models.ModelForProduct(req.Product); err != nil {
		rw.BadRequest(fmt.Sprintf("Unknown product %q, expected one of %v", req.Product, models.Products()))
		return
	}

	job := &models.BatchJob{
		ID:       uuid.New().String(),
		TenantID: tenant.ID,
		FileName: req.FileName,
		FileSize: req.FileSize,
		Product:  req.Product,
		Status:   models.JobQueued,
		CSVData:  &req.CSVData,
	}
	if err := h.db.CreateJob(r.Context(), job); err != nil {
		rw.DatabaseError(err)
		return
	}

	h.processor.Start(job, req.CSVData)

	logger := logging.Ctx(r.Context())
	logger.Info().
		Str("job_id", job.ID).
		Int64("tenant_id", tenant.ID).
		Str("product", job.Product).
		Msg("Batch job accepted")
	rw.Accepted(job)
}

// ListBatches lists the tenant's jobs, newest first.
//
// Method: GET
// Path: /api/v1/batches?status=&limit=&offset=
// Response:
//   - 200: paginated job list
func (h *Handler) ListBatches(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	tenant, ok := requireTenant(w, r)
	if !ok {
		return
	}

	limit, offset := h.pageParams(r)
	filter := database.JobFilter{
		OrderBy: "created_at",
		Desc:    true,
		Limit:   limit,
		Offset:  offset,
	}
	if status := r.URL.Query().Get("status"); status != "" {
		js := models.JobStatus(status)
		if !js.Valid() {
			rw.BadRequest(fmt.Sprintf("Unknown status %q", status))
			return
		}
		filter.Status = js
	}

	jobs, err := h.db.ListJobs(r.Context(), tenant.ID, filter)
	if err != nil {
		rw.DatabaseError(err)
		return
	}
	total, err := h.db.CountJobs(r.Context(), tenant.ID, filter)
	if err != nil {
		rw.DatabaseError(err)
		return
	}

	rw.SuccessWithPagination(jobs, &PaginationMeta{
		Total:   total,
		Count:   len(jobs),
		Offset:  offset,
		Limit:   limit,
		HasMore: offset+len(jobs) < total,
	})
}

// GetBatch returns one job with its live progress.
//
// Method: GET
// Path: /api/v1/batches/{id}
// Response:
//   - 200: the job
//   - 404: no such job for this tenant
func (h *Handler) GetBatch(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	tenant, ok := requireTenant(w, r)
	if !ok {
		return
	}

	jobID := chi.URLParam(r, "id")
	job, err := h.db.GetJob(r.Context(), tenant.ID, jobID)
	if errors.Is(err, database.ErrJobNotFound) {
		rw.NotFound("Batch job not found")
		return
	}
	if err != nil {
		rw.DatabaseError(err)
		return
	}
	rw.Success(job)
}

// DownloadBatch streams the result CSV of a completed job.
//
// Method: GET
// Path: /api/v1/batches/{id}/download
// Response:
//   - 200: text/csv attachment
//   - 404: no such job for this tenant
//   - 409: job is not completed yet
func (h *Handler) DownloadBatch(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	tenant, ok := requireTenant(w, r)
	if !ok {
		return
	}

	jobID := chi.URLParam(r, "id")
	job, err := h.db.GetJob(r.Context(), tenant.ID, jobID)
	if errors.Is(err, database.ErrJobNotFound) {
		rw.NotFound("Batch job not found")
		return
	}
	if err != nil {
		rw.DatabaseError(err)
		return
	}
	if job.Status != models.JobCompleted || job.ResultCSV == nil {
		rw.Conflict(fmt.Sprintf("Job is %s, results are only available once completed", job.Status))
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "result_"+job.ID+".csv"))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(*job.ResultCSV)); err != nil {
		logger := logging.Ctx(r.Context())
		logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to stream result CSV")
	}
}

// ListModels returns the scoring model catalog.
//
// Method: GET
// Path: /api/v1/models
// Response:
//   - 200: model version, product, and description per entry
func (h *Handler) ListModels(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	rw.Success(models.ModelCatalog())
}

type driftDetectRequest struct {
	ModelVersion string `json:"modelVersion" validate:"required"`
}

// DriftDetect runs a PSI drift check for one model version on demand.
//
// Method: POST
// Path: /api/v1/drift/detect
// Request: {"modelVersion": "fa_12"}
// Response:
//   - 200: the drift report
//   - 400: unknown model version
func (h *Handler) DriftDetect(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	tenant, ok := requireTenant(w, r)
	if !ok {
		return
	}

	var req driftDetectRequest
	if !decodeBody(rw, r, &req) {
		return
	}
	if !knownModelVersion(req.ModelVersion) {
		rw.BadRequest(fmt.Sprintf("Unknown model version %q", req.ModelVersion))
		return
	}

	report, err := h.detector.Check(r.Context(), tenant.ID, req.ModelVersion)
	if err != nil {
		rw.InternalError("Drift check failed")
		logger := logging.Ctx(r.Context())
		logger.Error().Err(err).
			Str("model_version", req.ModelVersion).
			Msg("Drift check failed")
		return
	}
	rw.Success(report)
}

func knownModelVersion(version string) bool {
	for _, info := range models.ModelCatalog() {
		if info.Version == version {
			return true
		}
	}
	return false
}

// DriftHistory lists past drift checks, newest first.
//
// Method: GET
// Path: /api/v1/drift/history?limit=
// Response:
//   - 200: recorded drift checks
func (h *Handler) DriftHistory(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	tenant, ok := requireTenant(w, r)
	if !ok {
		return
	}

	limit := getIntParam(r, "limit", 50)
	if limit <= 0 || limit > h.cfg.API.MaxPageSize {
		limit = 50
	}
	checks, err := h.db.ListDriftChecks(r.Context(), tenant.ID, limit)
	if err != nil {
		rw.DatabaseError(err)
		return
	}
	rw.Success(checks)
}

// BureauConfigGet returns the tenant's bureau enrichment settings. The API
// token is never echoed back.
//
// Method: GET
// Path: /api/v1/bureau/config
// Response:
//   - 200: current settings, defaults when never configured
func (h *Handler) BureauConfigGet(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	tenant, ok := requireTenant(w, r)
	if !ok {
		return
	}

	cfg, err := h.db.GetBureauConfig(r.Context(), tenant.ID)
	if err != nil {
		rw.DatabaseError(err)
		return
	}
	rw.Success(cfg)
}

type bureauConfigRequest struct {
	Enabled   bool   `json:"enabled"`
	Provider  string `json:"provider" validate:"required,max=64"`
	APIToken  string `json:"apiToken"`
	TimeoutMS int    `json:"timeoutMS" validate:"min=100,max=60000"`
}

// BureauConfigPut replaces the tenant's bureau enrichment settings.
//
// Method: PUT
// Path: /api/v1/bureau/config
// Request: {"enabled": true, "provider": "serasa_apibrasil", "apiToken": "...", "timeoutMS": 5000}
// Response:
//   - 200: the stored settings
//   - 400: invalid body
func (h *Handler) BureauConfigPut(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	tenant, ok := requireTenant(w, r)
	if !ok {
		return
	}

	var req bureauConfigRequest
	if !decodeBody(rw, r, &req) {
		return
	}

	cfg := &models.TenantBureauConfig{
		TenantID:  tenant.ID,
		Enabled:   req.Enabled,
		Provider:  req.Provider,
		APIToken:  req.APIToken,
		TimeoutMS: req.TimeoutMS,
	}
	if err := h.db.UpsertBureauConfig(r.Context(), cfg); err != nil {
		rw.DatabaseError(err)
		return
	}

	stored, err := h.db.GetBureauConfig(r.Context(), tenant.ID)
	if err != nil {
		rw.DatabaseError(err)
		return
	}
	logger := logging.Ctx(r.Context())
	logger.Info().
		Int64("tenant_id", tenant.ID).
		Bool("enabled", stored.Enabled).
		Str("provider", stored.Provider).
		Msg("Bureau config updated")
	rw.Success(stored)
}

// bureauMetricsResponse summarizes cache effectiveness for the tenant.
type bureauMetricsResponse struct {
	CacheEntries int            `json:"cache_entries"`
	LiveEntries  int            `json:"live_entries"`
	Lookups      map[string]int `json:"lookups_by_source"`
	CacheHitRate float64        `json:"cache_hit_rate"`
}

// BureauMetrics reports cache size and the cache hit rate over all scored
// rows. The hit rate only counts lookups that could have hit the cache, so
// disabled and failed lookups are left out of the denominator.
//
// Method: GET
// Path: /api/v1/bureau/metrics
// Response:
//   - 200: cache entry counts, per-source lookup counts, hit rate
func (h *Handler) BureauMetrics(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	tenant, ok := requireTenant(w, r)
	if !ok {
		return
	}

	stats, err := h.db.GetBureauCacheStats(r.Context(), tenant.ID, time.Now().UTC())
	if err != nil {
		rw.DatabaseError(err)
		return
	}
	counts, err := h.db.BureauSourceCounts(r.Context(), tenant.ID)
	if err != nil {
		rw.DatabaseError(err)
		return
	}

	resp := bureauMetricsResponse{
		CacheEntries: stats.TotalEntries,
		LiveEntries:  stats.LiveEntries,
		Lookups:      counts,
	}
	hits := counts[models.BureauSourceCache]
	misses := counts[models.BureauSourceAPI]
	if hits+misses > 0 {
		resp.CacheHitRate = float64(hits) / float64(hits+misses)
	}
	rw.Success(resp)
}

// DashboardStats aggregates the tenant's job and scoring activity.
//
// Method: GET
// Path: /api/v1/dashboard/stats
// Response:
//   - 200: job counts by status, scored and excluded totals, band distribution
func (h *Handler) DashboardStats(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	tenant, ok := requireTenant(w, r)
	if !ok {
		return
	}

	stats, err := h.db.GetDashboardStats(r.Context(), tenant.ID)
	if err != nil {
		rw.DatabaseError(err)
		return
	}
	rw.Success(stats)
}

// Health reports overall service health including database reachability.
//
// Method: GET
// Path: /health
// Response:
//   - 200: {"status": "ok"}
//   - 503: {"status": "degraded"} when the database does not respond
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if err := h.db.Ping(r.Context()); err != nil {
		logger := logging.Ctx(r.Context())
		logger.Error().Err(err).Msg("Health check database ping failed")
		rw.writeJSON(http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
		return
	}
	rw.writeJSON(http.StatusOK, map[string]string{"status": "ok"})
}

// HealthLive is the liveness probe: the process is up.
//
// Method: GET
// Path: /health/live
// Response:
//   - 200: {"status": "alive"}
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	rw.writeJSON(http.StatusOK, map[string]string{"status": "alive"})
}

// HealthReady is the readiness probe: dependencies answer.
//
// Method: GET
// Path: /health/ready
// Response:
//   - 200: {"status": "ready"}
//   - 503: {"status": "not ready"}
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if err := h.db.Ping(r.Context()); err != nil {
		rw.writeJSON(http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
		return
	}
	rw.writeJSON(http.StatusOK, map[string]string{"status": "ready"})
}
