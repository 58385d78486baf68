// CredGuard - Multi-Tenant Credit Scoring and Batch Ingestion Platform
// Copyright 2026 CredGuard Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/credguard/credguard

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/credguard/credguard/internal/middleware"
)

// Router assembles the chi mux from the handler set and middleware config.
type Router struct {
	handler *Handler
	cm      *ChiMiddleware
}

// NewRouter wires handlers to the middleware stack.
func NewRouter(handler *Handler, cm *ChiMiddleware) *Router {
	return &Router{handler: handler, cm: cm}
}

// Setup builds the full route tree.
//
// Health and Prometheus endpoints are unauthenticated. Everything under
// /api/v1 requires a tenant API key and is rate limited; uploads and drift
// checks carry tighter per-route limits.
func (rt *Router) Setup() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(rt.cm.CORS())

	r.Route("/health", func(r chi.Router) {
		r.Use(rt.cm.RateLimitHealthChecks())
		r.Get("/", rt.handler.Health)
		r.Get("/live", rt.handler.HealthLive)
		r.Get("/ready", rt.handler.HealthReady)
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(rt.cm.RateLimit())
		r.Use(APISecurityHeaders())
		r.Use(middleware.PrometheusMetrics)
		r.Use(Authenticate(rt.handler.db))

		r.With(rt.cm.RateLimitUploads()).Post("/batches", rt.handler.CreateBatch)
		r.Get("/batches", rt.handler.ListBatches)
		r.Get("/batches/{id}", rt.handler.GetBatch)
		r.With(middleware.Compression).Get("/batches/{id}/download", rt.handler.DownloadBatch)

		r.Get("/models", rt.handler.ListModels)

		r.With(rt.cm.RateLimitDriftChecks()).Post("/drift/detect", rt.handler.DriftDetect)
		r.Get("/drift/history", rt.handler.DriftHistory)

		r.Get("/bureau/config", rt.handler.BureauConfigGet)
		r.Put("/bureau/config", rt.handler.BureauConfigPut)
		r.Get("/bureau/metrics", rt.handler.BureauMetrics)

		r.Get("/dashboard/stats", rt.handler.DashboardStats)
	})

	return r
}
