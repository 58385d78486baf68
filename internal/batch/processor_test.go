// CredGuard - Multi-Tenant Credit Scoring and Batch Ingestion Platform
// Copyright 2026 CredGuard Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/credguard/credguard

package batch

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/credguard/credguard/internal/bureau"
	"github.com/credguard/credguard/internal/config"
	"github.com/credguard/credguard/internal/database"
	"github.com/credguard/credguard/internal/models"
	"github.com/credguard/credguard/internal/scoring"
)

// fakeJobStore enforces the job state machine the way the real store
// does, so a transition the database would reject fails here too.
type fakeJobStore struct {
	mu          sync.Mutex
	status      models.JobStatus
	transitions []models.JobStatus
	failMessage string
	records     []*models.CustomerRecord
	scores      []*models.CustomerScore
	resultCSV   string
	lastTotal   int
	lastDone    int
	saveErr     error
}

func (f *fakeJobStore) TransitionJob(_ context.Context, _ int64, _ string, to models.JobStatus, errorMessage string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	from := f.status
	if from == "" {
		from = models.JobQueued
	}
	if err := models.ValidateTransition(from, to); err != nil {
		return err
	}
	f.status = to
	f.transitions = append(f.transitions, to)
	if to == models.JobFailed {
		f.failMessage = errorMessage
	}
	return nil
}

func (f *fakeJobStore) currentStatus() models.JobStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeJobStore) UpdateJobProgress(_ context.Context, _ int64, _ string, total, processed, _ int) error {
	f.lastTotal = total
	f.lastDone = processed
	return nil
}

func (f *fakeJobStore) SaveRecordWithScore(_ context.Context, record *models.CustomerRecord, score *models.CustomerScore) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.records = append(f.records, record)
	f.scores = append(f.scores, score)
	return nil
}

func (f *fakeJobStore) SetJobResult(_ context.Context, _ int64, _, resultCSV string) error {
	f.resultCSV = resultCSV
	return nil
}

func (f *fakeJobStore) GetScoredRows(_ context.Context, _ int64, _ string) ([]database.ScoredRow, error) {
	rows := make([]database.ScoredRow, len(f.scores))
	for i := range f.scores {
		rows[i] = database.ScoredRow{Score: *f.scores[i], Name: f.records[i].Name}
	}
	return rows, nil
}

type fakeScorer struct {
	score func(scoring.CustomerPayload) (*scoring.Prediction, error)
	calls int
}

func (f *fakeScorer) Score(_ context.Context, payload scoring.CustomerPayload) (*scoring.Prediction, error) {
	f.calls++
	return f.score(payload)
}

func (f *fakeScorer) ScoreBatch(ctx context.Context, payloads []scoring.CustomerPayload) ([]scoring.Prediction, error) {
	out := make([]scoring.Prediction, 0, len(payloads))
	for _, p := range payloads {
		pred, err := f.Score(ctx, p)
		if err != nil {
			return nil, err
		}
		out = append(out, *pred)
	}
	return out, nil
}

type fakeEnricher struct {
	result *bureau.Result
	calls  int
}

func (f *fakeEnricher) Enrich(_ context.Context, _ int64, _ string) *bureau.Result {
	f.calls++
	return f.result
}

func steadyScorer(score float64, model string) *fakeScorer {
	return &fakeScorer{score: func(p scoring.CustomerPayload) (*scoring.Prediction, error) {
		return &scoring.Prediction{
			Score:  score,
			Faixa:  "BAIXO",
			Modelo: model,
			CPF:    p.CPF,
		}, nil
	}}
}

func disabledEnricher() *fakeEnricher {
	return &fakeEnricher{result: &bureau.Result{Source: models.BureauSourceDisabled}}
}

func newTestProcessor(store Store, scorer scoring.Scorer, enricher Enricher) *Processor {
	p := NewProcessor(store, scorer, enricher, NewInMemoryProgress(), &config.BatchConfig{
		JobTimeout: time.Minute,
	})
	p.now = func() time.Time { return date(2026, 3, 15) }
	return p
}

func testJob() *models.BatchJob {
	return &models.BatchJob{
		ID:       uuid.New().String(),
		TenantID: 1,
		FileName: "clients.csv",
		Product:  "CARTAO",
		Status:   models.JobQueued,
	}
}

// One customer with plenty of history, one too recent to score.
func testCSV() string {
	return strings.Join([]string{
		testHeader,
		cpfAna + ",Ana Silva,ana@example.com,,,,CARTAO,2025-06-10,150.00,2025-07-10,pago,0",
		cpfAna + ",Ana Silva,ana@example.com,,,,CARTAO,2026-02-10,250.00,2026-02-12,pago,0",
		cpfBruno + ",Bruno Costa,bruno@example.com,,,,CARTAO,2026-02-20,99.00,,aberto,",
	}, "\n")
}

func TestProcessCompletesJob(t *testing.T) {
	store := &fakeJobStore{}
	scorer := steadyScorer(0.2, "fa_12")
	enricher := &fakeEnricher{result: &bureau.Result{
		Source: models.BureauSourceAPI,
		Data:   &models.BureauData{Score: 800, PendenciasFinanceiras: 2, Protestos: 0},
	}}

	p := newTestProcessor(store, scorer, enricher)
	if err := p.Process(context.Background(), testJob(), testCSV()); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	want := []models.JobStatus{models.JobProcessing, models.JobCompleted}
	if len(store.transitions) != 2 || store.transitions[0] != want[0] || store.transitions[1] != want[1] {
		t.Fatalf("Unexpected transitions: %v", store.transitions)
	}
	if len(store.scores) != 2 {
		t.Fatalf("Expected 2 persisted scores, got %d", len(store.scores))
	}
	if store.lastTotal != 2 || store.lastDone != 2 {
		t.Errorf("Expected progress 2/2, got %d/%d", store.lastDone, store.lastTotal)
	}

	ana := store.scores[0]
	if ana.Excluded() {
		t.Fatalf("Expected first customer scored, got exclusion %v", *ana.ExclusionReason)
	}
	if ana.InternalScore == nil || *ana.InternalScore != 0.2 {
		t.Errorf("Expected internal score 0.2, got %v", ana.InternalScore)
	}
	if ana.FinalScore == nil || math.Abs(*ana.FinalScore-0.38) > 1e-9 {
		t.Errorf("Expected blended score 0.38, got %v", ana.FinalScore)
	}
	if ana.Band == nil || *ana.Band != "B" {
		t.Errorf("Expected band B, got %v", ana.Band)
	}
	if ana.BureauScore == nil || *ana.BureauScore != 800 {
		t.Errorf("Expected bureau score 800, got %v", ana.BureauScore)
	}
	if ana.BureauSource != models.BureauSourceAPI {
		t.Errorf("Expected bureau source %s, got %s", models.BureauSourceAPI, ana.BureauSource)
	}
	if ana.ModelVersion != "fa_12" {
		t.Errorf("Expected model fa_12, got %s", ana.ModelVersion)
	}

	bruno := store.scores[1]
	if !bruno.Excluded() || *bruno.ExclusionReason != models.ExclusionShortHistory {
		t.Fatalf("Expected second customer excluded for short history, got %+v", bruno)
	}
	if bruno.InternalScore != nil || bruno.FinalScore != nil || bruno.Band != nil {
		t.Error("Excluded customer must not carry scores")
	}
	if bruno.BureauSource != models.BureauSourceDisabled {
		t.Errorf("Expected bureau source disabled for excluded customer, got %s", bruno.BureauSource)
	}

	// Excluded customers never reach the scorer or the bureau.
	if scorer.calls != 1 {
		t.Errorf("Expected 1 scorer call, got %d", scorer.calls)
	}
	if enricher.calls != 1 {
		t.Errorf("Expected 1 bureau lookup, got %d", enricher.calls)
	}

	if store.resultCSV == "" {
		t.Fatal("Expected result CSV attached to job")
	}
	parsed := strings.Split(strings.TrimSpace(store.resultCSV), "\n")
	if len(parsed) != 3 {
		t.Fatalf("Expected header plus 2 result rows, got %d", len(parsed))
	}
	if !strings.Contains(parsed[1], "0.3800") {
		t.Errorf("Expected blended score in result row: %s", parsed[1])
	}
	if !strings.Contains(parsed[2], models.ExclusionShortHistory) {
		t.Errorf("Expected exclusion reason in result row: %s", parsed[2])
	}

	saved, err := p.progress.Load(context.Background(), "any")
	if err != nil || saved != nil {
		t.Errorf("Expected no lingering progress, got %+v err %v", saved, err)
	}
}

func TestProcessScorerFallback(t *testing.T) {
	store := &fakeJobStore{}
	scorer := &fakeScorer{score: func(scoring.CustomerPayload) (*scoring.Prediction, error) {
		return nil, errors.New("scorer process failed")
	}}

	p := newTestProcessor(store, scorer, disabledEnricher())
	if err := p.Process(context.Background(), testJob(), testCSV()); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	ana := store.scores[0]
	if ana.InternalScore == nil || *ana.InternalScore != scoring.NeutralScore {
		t.Errorf("Expected neutral fallback score, got %v", ana.InternalScore)
	}
	if ana.ModelVersion != scoring.FallbackModel {
		t.Errorf("Expected fallback model tag, got %s", ana.ModelVersion)
	}
	if ana.FinalScore == nil || *ana.FinalScore != scoring.NeutralScore {
		t.Errorf("Expected pass-through neutral score, got %v", ana.FinalScore)
	}
	if ana.Band == nil || *ana.Band != "C" {
		t.Errorf("Expected band C for neutral score, got %v", ana.Band)
	}
}

// The scorer can answer without a Go error but with an error payload
// carrying the neutral fallback. The job still completes.
func TestProcessScorerErrorPayload(t *testing.T) {
	store := &fakeJobStore{}
	scorer := &fakeScorer{score: func(p scoring.CustomerPayload) (*scoring.Prediction, error) {
		return scoring.Fallback(p, "modelo indisponivel"), nil
	}}

	p := newTestProcessor(store, scorer, disabledEnricher())
	if err := p.Process(context.Background(), testJob(), testCSV()); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if store.currentStatus() != models.JobCompleted {
		t.Fatalf("Expected job completed, status %s", store.currentStatus())
	}
	ana := store.scores[0]
	if ana.InternalScore == nil || *ana.InternalScore != scoring.NeutralScore {
		t.Errorf("Expected neutral score from error payload, got %v", ana.InternalScore)
	}
	if ana.ModelVersion != scoring.FallbackModel {
		t.Errorf("Expected fallback model tag, got %s", ana.ModelVersion)
	}
}

func TestProcessUnknownProductFails(t *testing.T) {
	store := &fakeJobStore{}
	p := newTestProcessor(store, steadyScorer(0.2, "fa_12"), disabledEnricher())

	job := testJob()
	job.Product = "CONSORCIO"
	if err := p.Process(context.Background(), job, testCSV()); err == nil {
		t.Fatal("Expected error for unknown product")
	}

	if len(store.transitions) != 2 || store.transitions[1] != models.JobFailed {
		t.Fatalf("Expected job to fail, transitions: %v", store.transitions)
	}
	if store.failMessage == "" {
		t.Error("Expected failure message recorded on job")
	}
}

func TestProcessBadHeaderFails(t *testing.T) {
	store := &fakeJobStore{}
	p := newTestProcessor(store, steadyScorer(0.2, "fa_12"), disabledEnricher())

	err := p.Process(context.Background(), testJob(), "cpf,nome\n"+cpfAna+",Ana")
	if err == nil {
		t.Fatal("Expected error for invalid header")
	}
	if store.transitions[len(store.transitions)-1] != models.JobFailed {
		t.Fatalf("Expected job failed, transitions: %v", store.transitions)
	}
	if !strings.Contains(store.failMessage, "missing required columns") {
		t.Errorf("Expected failure message to explain header problem, got: %s", store.failMessage)
	}
}

func TestProcessPersistFailureFailsJob(t *testing.T) {
	store := &fakeJobStore{saveErr: errors.New("disk full")}
	p := newTestProcessor(store, steadyScorer(0.2, "fa_12"), disabledEnricher())

	if err := p.Process(context.Background(), testJob(), testCSV()); err == nil {
		t.Fatal("Expected error when persistence fails")
	}
	if store.transitions[len(store.transitions)-1] != models.JobFailed {
		t.Fatalf("Expected job failed, transitions: %v", store.transitions)
	}
	if !strings.Contains(store.failMessage, "disk full") {
		t.Errorf("Expected cause in failure message, got: %s", store.failMessage)
	}
}

func TestProcessResumesFromSavedProgress(t *testing.T) {
	store := &fakeJobStore{}
	scorer := steadyScorer(0.2, "fa_12")
	p := newTestProcessor(store, scorer, disabledEnricher())

	job := testJob()
	// A previous run already wrote the first customer.
	if err := p.progress.Save(context.Background(), &JobProgress{JobID: job.ID, Processed: 1, Excluded: 0}); err != nil {
		t.Fatalf("Failed to seed progress: %v", err)
	}

	if err := p.Process(context.Background(), job, testCSV()); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if len(store.scores) != 1 {
		t.Fatalf("Expected only the second customer persisted, got %d", len(store.scores))
	}
	if store.scores[0].CPF != cpfBruno {
		t.Errorf("Expected resumed run to process %s, got %s", cpfBruno, store.scores[0].CPF)
	}
	if store.transitions[len(store.transitions)-1] != models.JobCompleted {
		t.Fatalf("Expected job completed, transitions: %v", store.transitions)
	}
}

// A job found mid-processing after a restart must be able to re-enter
// processing and finish from its saved progress.
func TestProcessReentersInterruptedJob(t *testing.T) {
	store := &fakeJobStore{status: models.JobProcessing}
	p := newTestProcessor(store, steadyScorer(0.2, "fa_12"), disabledEnricher())

	job := testJob()
	job.Status = models.JobProcessing
	if err := p.progress.Save(context.Background(), &JobProgress{JobID: job.ID, Processed: 1, Excluded: 0}); err != nil {
		t.Fatalf("Failed to seed progress: %v", err)
	}

	if err := p.Process(context.Background(), job, testCSV()); err != nil {
		t.Fatalf("Process failed on interrupted job: %v", err)
	}

	if store.currentStatus() != models.JobCompleted {
		t.Fatalf("Expected job completed, status %s", store.currentStatus())
	}
	if len(store.scores) != 1 || store.scores[0].CPF != cpfBruno {
		t.Fatalf("Expected only the unprocessed customer persisted, got %d scores", len(store.scores))
	}
}

func TestResumeRunsStagedUpload(t *testing.T) {
	store := &fakeJobStore{status: models.JobProcessing}
	p := newTestProcessor(store, steadyScorer(0.2, "fa_12"), disabledEnricher())

	job := testJob()
	job.Status = models.JobProcessing
	csv := testCSV()
	job.CSVData = &csv

	p.Resume(job)

	deadline := time.Now().Add(5 * time.Second)
	for store.currentStatus() != models.JobCompleted {
		if time.Now().After(deadline) {
			t.Fatalf("Resumed job never completed, status %s", store.currentStatus())
		}
		time.Sleep(10 * time.Millisecond)
	}
	if len(store.scores) != 2 {
		t.Fatalf("Expected 2 persisted scores after resume, got %d", len(store.scores))
	}
}

func TestResumeWithoutStagedUploadFailsJob(t *testing.T) {
	store := &fakeJobStore{status: models.JobProcessing}
	p := newTestProcessor(store, steadyScorer(0.2, "fa_12"), disabledEnricher())

	job := testJob()
	job.Status = models.JobProcessing

	p.Resume(job)

	if store.currentStatus() != models.JobFailed {
		t.Fatalf("Expected unrecoverable job failed, status %s", store.currentStatus())
	}
	if !strings.Contains(store.failMessage, "no staged upload") {
		t.Errorf("Expected failure message to explain missing upload, got: %s", store.failMessage)
	}
}
