// CredGuard - Multi-Tenant Credit Scoring and Batch Ingestion Platform
// Copyright 2026 CredGuard Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/credguard/credguard

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus instrumentation for:
// - Database query performance (DuckDB)
// - API endpoint latency and throughput
// - Batch job throughput and outcomes
// - ML scorer latency and fallbacks
// - Bureau client calls and cache efficiency
// - Drift detection results

var (
	// Database Metrics
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "duckdb_query_duration_seconds",
			Help:    "Duration of DuckDB queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duckdb_query_errors_total",
			Help: "Total number of DuckDB query errors",
		},
		[]string{"operation", "table"},
	)

	// API Endpoint Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Current number of active API requests",
		},
	)

	// Batch Job Metrics
	BatchJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batch_jobs_total",
			Help: "Total number of batch jobs by final status",
		},
		[]string{"tenant", "status"},
	)

	BatchJobDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "batch_job_duration_seconds",
			Help:    "Duration of batch job processing in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		},
	)

	BatchRecordsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batch_records_processed_total",
			Help: "Total number of customer records processed",
		},
		[]string{"tenant"},
	)

	BatchRecordsExcluded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batch_records_excluded_total",
			Help: "Total number of customer records excluded by rule",
		},
		[]string{"tenant", "reason"},
	)

	// ML Scorer Metrics
	ScorerDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scorer_invocation_duration_seconds",
			Help:    "Duration of ML scorer invocations in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"model", "mode"}, // mode: "single", "batch"
	)

	ScorerFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scorer_fallbacks_total",
			Help: "Total number of neutral-score fallbacks after scorer failure",
		},
		[]string{"model", "reason"}, // reason: "timeout", "exec", "parse"
	)

	// Bureau Metrics
	BureauRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bureau_requests_total",
			Help: "Total number of bureau lookups by result source",
		},
		[]string{"tenant", "source"}, // source: serasa_apibrasil, cache, disabled, error, timeout
	)

	BureauRequestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bureau_request_duration_seconds",
			Help:    "Duration of outbound bureau API calls in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
	)

	BureauCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bureau_cache_hits_total",
			Help: "Total number of bureau cache hits",
		},
	)

	BureauCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bureau_cache_misses_total",
			Help: "Total number of bureau cache misses",
		},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTrips = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_trips_total",
			Help: "Total number of circuit breaker open transitions",
		},
		[]string{"name"},
	)

	// Drift Detection Metrics
	DriftPSI = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "drift_psi",
			Help: "Latest population stability index per tenant and model",
		},
		[]string{"tenant", "model"},
	)

	DriftChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drift_checks_total",
			Help: "Total number of drift checks by outcome",
		},
		[]string{"tenant", "model", "status"},
	)
)

// RecordDBQuery records a database query metric.
func RecordDBQuery(operation, table string, duration time.Duration, err error) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
	if err != nil {
		DBQueryErrors.WithLabelValues(operation, table).Inc()
	}
}

// RecordAPIRequest records an API request metric.
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest tracks active API requests.
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordBatchJob records a finished batch job.
func RecordBatchJob(tenant, status string, duration time.Duration) {
	BatchJobsTotal.WithLabelValues(tenant, status).Inc()
	BatchJobDuration.Observe(duration.Seconds())
}

// RecordBureauLookup records one bureau enrichment attempt by source.
func RecordBureauLookup(tenant, source string) {
	BureauRequestsTotal.WithLabelValues(tenant, source).Inc()
	switch source {
	case "cache":
		BureauCacheHits.Inc()
	case "serasa_apibrasil", "error", "timeout":
		BureauCacheMisses.Inc()
	}
}

// RecordDriftCheck records the result of a drift check.
func RecordDriftCheck(tenant, model, status string, psi float64) {
	DriftChecksTotal.WithLabelValues(tenant, model, status).Inc()
	if status != "insufficient_data" {
		DriftPSI.WithLabelValues(tenant, model).Set(psi)
	}
}
