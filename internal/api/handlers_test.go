// CredGuard - Multi-Tenant Credit Scoring and Batch Ingestion Platform
// Copyright 2026 CredGuard Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/credguard/credguard

package api

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/credguard/credguard/internal/batch"
	"github.com/credguard/credguard/internal/bureau"
	"github.com/credguard/credguard/internal/config"
	"github.com/credguard/credguard/internal/database"
	"github.com/credguard/credguard/internal/drift"
	"github.com/credguard/credguard/internal/models"
	"github.com/credguard/credguard/internal/scoring"
)

const (
	testAPIKey = "test-api-key"

	csvHeader = "cpf,nome,email,telefone,data_nascimento,renda,produto,data_compra,valor_compra,data_pagamento,status_pagamento,dias_atraso"

	// Valid check digits; well past the minimum history window.
	cpfAna = "52998224725"
)

// testDBSemaphore serializes DuckDB creation. Concurrent CGO calls from
// parallel tests can hang under CI resource pressure.
var testDBSemaphore = make(chan struct{}, 1)

type stubScorer struct{}

func (s *stubScorer) Score(ctx context.Context, customer scoring.CustomerPayload) (*scoring.Prediction, error) {
	return &scoring.Prediction{Score: 0.2, Modelo: "fa_12"}, nil
}

func (s *stubScorer) ScoreBatch(ctx context.Context, customers []scoring.CustomerPayload) ([]scoring.Prediction, error) {
	out := make([]scoring.Prediction, len(customers))
	for i := range customers {
		out[i] = scoring.Prediction{Score: 0.2, Modelo: "fa_12"}
	}
	return out, nil
}

type stubEnricher struct{}

func (e *stubEnricher) Enrich(ctx context.Context, tenantID int64, cpf string) *bureau.Result {
	return &bureau.Result{Source: models.BureauSourceDisabled}
}

type testAPI struct {
	handler http.Handler
	db      *database.DB
	tenant  *models.Tenant
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	testDBSemaphore <- struct{}{}
	t.Cleanup(func() {
		<-testDBSemaphore
	})

	db, err := database.New(&config.DatabaseConfig{Path: ":memory:", MaxMemory: "1GB"})
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("failed to close test database: %v", err)
		}
	})

	tenant, err := db.CreateTenant(context.Background(), "acme", hashKey(t, testAPIKey))
	if err != nil {
		t.Fatalf("failed to create tenant: %v", err)
	}

	cfg := &config.Config{
		Batch: config.BatchConfig{
			MaxFileSize: 1 << 20,
			JobTimeout:  time.Minute,
		},
		Drift: config.DriftConfig{
			MinSamples: 10,
			MaxSamples: 1000,
		},
		API: config.APIConfig{
			DefaultPageSize:   20,
			MaxPageSize:       100,
			RateLimitDisabled: true,
		},
	}

	processor := batch.NewProcessor(db, &stubScorer{}, &stubEnricher{}, batch.NewInMemoryProgress(), &cfg.Batch)
	detector := drift.NewDetector(db, &cfg.Drift)
	handler := NewHandler(db, processor, detector, cfg)
	router := NewRouter(handler, NewChiMiddleware(NewChiMiddlewareFromConfig(&cfg.API)))

	return &testAPI{handler: router.Setup(), db: db, tenant: tenant}
}

// do issues an authenticated request against the route tree.
func (a *testAPI) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(apiKeyHeader, testAPIKey)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *APIError       `json:"error"`
	Meta    *APIMeta        `json:"meta"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("failed to decode response %q: %v", rec.Body.String(), err)
	}
	return env
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) envelope {
	t.Helper()
	env := decodeEnvelope(t, rec)
	if !env.Success {
		t.Fatalf("response not successful: %s", rec.Body.String())
	}
	if err := json.Unmarshal(env.Data, dst); err != nil {
		t.Fatalf("failed to decode data %q: %v", string(env.Data), err)
	}
	return env
}

func TestHealthEndpoints(t *testing.T) {
	a := newTestAPI(t)

	for _, path := range []string{"/health", "/health/live", "/health/ready"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		a.handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, rec.Code)
		}
	}
}

func TestAPIRequiresKey(t *testing.T) {
	a := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/models", nil)
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	if env.Success || env.Error == nil || env.Error.Code != ErrCodeUnauthorized {
		t.Fatalf("unexpected error envelope: %s", rec.Body.String())
	}
}

func TestListModels(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, http.MethodGet, "/api/v1/models", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var catalog []models.ModelInfo
	decodeData(t, rec, &catalog)
	if len(catalog) != 3 {
		t.Fatalf("catalog size = %d, want 3", len(catalog))
	}
}

func TestCreateBatchLifecycle(t *testing.T) {
	a := newTestAPI(t)

	// Dates are relative to now so the history and inactivity rules always
	// see an eligible customer.
	oldPurchase := time.Now().AddDate(-1, 0, 0).Format("2006-01-02")
	oldPayment := time.Now().AddDate(-1, 1, 0).Format("2006-01-02")
	recent := time.Now().AddDate(0, -1, 0).Format("2006-01-02")
	csvData := strings.Join([]string{
		csvHeader,
		cpfAna + ",Ana Silva,ana@example.com,,,,CARTAO," + oldPurchase + ",150.00," + oldPayment + ",pago,0",
		cpfAna + ",Ana Silva,ana@example.com,,,,CARTAO," + recent + ",250.00," + recent + ",pago,0",
	}, "\n")

	body, err := json.Marshal(map[string]interface{}{
		"fileName": "clients.csv",
		"fileSize": len(csvData),
		"product":  "CARTAO",
		"csvData":  csvData,
	})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}

	rec := a.do(t, http.MethodPost, "/api/v1/batches", string(body))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body.String())
	}

	var job models.BatchJob
	decodeData(t, rec, &job)
	if job.ID == "" || job.Status != models.JobQueued {
		t.Fatalf("unexpected accepted job: %+v", job)
	}

	// The job runs in the background; poll until it finishes.
	deadline := time.Now().Add(5 * time.Second)
	for {
		rec = a.do(t, http.MethodGet, "/api/v1/batches/"+job.ID, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("GET batch = %d: %s", rec.Code, rec.Body.String())
		}
		decodeData(t, rec, &job)
		if job.Status.IsTerminal() {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("job still %s after deadline", job.Status)
		}
		time.Sleep(10 * time.Millisecond)
	}

	if job.Status != models.JobCompleted {
		t.Fatalf("job status = %s, error = %v", job.Status, job.ErrorMessage)
	}
	if job.TotalRecords != 1 || job.ProcessedRecords != 1 {
		t.Errorf("progress = %d/%d, want 1/1", job.ProcessedRecords, job.TotalRecords)
	}

	rec = a.do(t, http.MethodGet, "/api/v1/batches/"+job.ID+"/download", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("download = %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); !strings.Contains(ct, "text/csv") {
		t.Errorf("Content-Type = %q", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, job.ID) {
		t.Errorf("Content-Disposition = %q", cd)
	}
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("result CSV has %d lines, want header plus one row", len(lines))
	}
	if !strings.Contains(lines[1], "Ana Silva") {
		t.Errorf("result row = %q", lines[1])
	}
}

func TestCreateBatchUnknownProduct(t *testing.T) {
	a := newTestAPI(t)

	body := `{"fileName":"x.csv","fileSize":10,"product":"CONSORCIO","csvData":"` + csvHeader + `"}`
	rec := a.do(t, http.MethodPost, "/api/v1/batches", body)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400: %s", rec.Code, rec.Body.String())
	}
	env := decodeEnvelope(t, rec)
	if env.Error == nil || !strings.Contains(env.Error.Message, "CONSORCIO") {
		t.Fatalf("error = %+v", env.Error)
	}
}

func TestCreateBatchMissingFields(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, http.MethodPost, "/api/v1/batches", `{"product":"CARTAO"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400: %s", rec.Code, rec.Body.String())
	}
	env := decodeEnvelope(t, rec)
	if env.Error == nil || env.Error.Code != ErrCodeValidationFailed {
		t.Fatalf("error = %+v", env.Error)
	}
}

func TestListBatchesPagination(t *testing.T) {
	a := newTestAPI(t)

	for i := 0; i < 3; i++ {
		job := &models.BatchJob{
			ID:       uuid.New().String(),
			TenantID: a.tenant.ID,
			FileName: "clients.csv",
			Product:  "CARTAO",
		}
		if err := a.db.CreateJob(context.Background(), job); err != nil {
			t.Fatalf("seed job: %v", err)
		}
	}

	rec := a.do(t, http.MethodGet, "/api/v1/batches?limit=2", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var jobs []models.BatchJob
	env := decodeData(t, rec, &jobs)
	if len(jobs) != 2 {
		t.Fatalf("returned %d jobs, want 2", len(jobs))
	}
	p := env.Meta.Pagination
	if p == nil || p.Total != 3 || p.Count != 2 || !p.HasMore {
		t.Fatalf("pagination = %+v", p)
	}

	rec = a.do(t, http.MethodGet, "/api/v1/batches?status=bogus", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bogus status filter = %d, want 400", rec.Code)
	}
}

func TestGetBatchNotFound(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, http.MethodGet, "/api/v1/batches/"+uuid.New().String(), "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestDownloadBeforeCompletion(t *testing.T) {
	a := newTestAPI(t)

	job := &models.BatchJob{
		ID:       uuid.New().String(),
		TenantID: a.tenant.ID,
		FileName: "clients.csv",
		Product:  "CARTAO",
	}
	if err := a.db.CreateJob(context.Background(), job); err != nil {
		t.Fatalf("seed job: %v", err)
	}

	rec := a.do(t, http.MethodGet, "/api/v1/batches/"+job.ID+"/download", "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409: %s", rec.Code, rec.Body.String())
	}
}

func TestDriftDetect(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, http.MethodPost, "/api/v1/drift/detect", `{"modelVersion":"fa_99"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown model = %d, want 400", rec.Code)
	}

	rec = a.do(t, http.MethodPost, "/api/v1/drift/detect", `{"modelVersion":"fa_12"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var report drift.Report
	decodeData(t, rec, &report)
	if report.Status != models.DriftInsufficientData {
		t.Fatalf("status = %s, want insufficient_data on an empty tenant", report.Status)
	}

	// The check is persisted and shows up in history.
	rec = a.do(t, http.MethodGet, "/api/v1/drift/history", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("history = %d: %s", rec.Code, rec.Body.String())
	}
	var checks []models.DriftCheck
	decodeData(t, rec, &checks)
	if len(checks) != 1 || checks[0].ModelVersion != "fa_12" {
		t.Fatalf("history = %+v", checks)
	}
}

func TestBureauConfigRoundTrip(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, http.MethodGet, "/api/v1/bureau/config", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var cfg models.TenantBureauConfig
	decodeData(t, rec, &cfg)
	if cfg.Enabled || cfg.Provider != "serasa_apibrasil" || cfg.TimeoutMS != 5000 {
		t.Fatalf("defaults = %+v", cfg)
	}

	body := `{"enabled":true,"provider":"serasa_apibrasil","apiToken":"secret-token","timeoutMS":3000}`
	rec = a.do(t, http.MethodPut, "/api/v1/bureau/config", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("put = %d: %s", rec.Code, rec.Body.String())
	}
	decodeData(t, rec, &cfg)
	if !cfg.Enabled || cfg.TimeoutMS != 3000 {
		t.Fatalf("stored = %+v", cfg)
	}
	if strings.Contains(rec.Body.String(), "secret-token") {
		t.Error("API token echoed back in the response")
	}

	rec = a.do(t, http.MethodPut, "/api/v1/bureau/config", `{"enabled":true,"provider":"x","timeoutMS":5}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("sub-minimum timeout = %d, want 400", rec.Code)
	}
}

func TestBureauMetricsEmpty(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, http.MethodGet, "/api/v1/bureau/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var m bureauMetricsResponse
	decodeData(t, rec, &m)
	if m.CacheEntries != 0 || m.CacheHitRate != 0 {
		t.Fatalf("metrics = %+v", m)
	}
}

func TestDashboardStats(t *testing.T) {
	a := newTestAPI(t)

	job := &models.BatchJob{
		ID:       uuid.New().String(),
		TenantID: a.tenant.ID,
		FileName: "clients.csv",
		Product:  "CARTAO",
	}
	if err := a.db.CreateJob(context.Background(), job); err != nil {
		t.Fatalf("seed job: %v", err)
	}

	rec := a.do(t, http.MethodGet, "/api/v1/dashboard/stats", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var stats database.DashboardStats
	decodeData(t, rec, &stats)
	if stats.TotalJobs != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	if stats.JobsByStatus[string(models.JobQueued)] != 1 {
		t.Fatalf("jobs by status = %+v", stats.JobsByStatus)
	}
}
