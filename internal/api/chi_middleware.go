// CredGuard - Multi-Tenant Credit Scoring and Batch Ingestion Platform
// Copyright 2026 CredGuard Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/credguard/credguard

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/credguard/credguard/internal/config"
)

// ChiMiddlewareConfig holds configuration for the middleware factories.
type ChiMiddlewareConfig struct {
	CORSAllowedOrigins []string

	RateLimitRequests int
	RateLimitWindow   time.Duration
	RateLimitDisabled bool
}

// DefaultChiMiddlewareConfig returns a secure default. CORS origins are
// empty by default so a deployment must opt in explicitly.
func DefaultChiMiddlewareConfig() *ChiMiddlewareConfig {
	return &ChiMiddlewareConfig{
		CORSAllowedOrigins: []string{},
		RateLimitRequests:  100,
		RateLimitWindow:    time.Minute,
	}
}

// NewChiMiddlewareFromConfig builds the middleware config from the
// application configuration.
func NewChiMiddlewareFromConfig(cfg *config.APIConfig) *ChiMiddlewareConfig {
	mw := DefaultChiMiddlewareConfig()
	mw.CORSAllowedOrigins = cfg.CORSOrigins
	if cfg.RateLimitReqs > 0 {
		mw.RateLimitRequests = cfg.RateLimitReqs
	}
	if cfg.RateLimitWindow > 0 {
		mw.RateLimitWindow = cfg.RateLimitWindow
	}
	mw.RateLimitDisabled = cfg.RateLimitDisabled
	return mw
}

// ChiMiddleware provides chi-compatible middleware factories built on the
// production-hardened go-chi ecosystem packages.
type ChiMiddleware struct {
	config *ChiMiddlewareConfig
	cors   func(http.Handler) http.Handler
}

// NewChiMiddleware creates the middleware factory.
func NewChiMiddleware(cfg *ChiMiddlewareConfig) *ChiMiddleware {
	if cfg == nil {
		cfg = DefaultChiMiddlewareConfig()
	}

	corsHandler := cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", apiKeyHeader},
		MaxAge:         86400,
	})

	return &ChiMiddleware{config: cfg, cors: corsHandler}
}

// CORS returns the CORS middleware. It must be global so OPTIONS
// preflights reach it.
func (m *ChiMiddleware) CORS() func(http.Handler) http.Handler {
	return m.cors
}

// RateLimitConfig defines rate limit parameters for a route group.
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

// Endpoint group rate limits, tuned to each group's cost.
var (
	// RateLimitUpload is strict for batch uploads, which start a full
	// scoring run per request.
	RateLimitUpload = RateLimitConfig{Requests: 10, Window: time.Minute}

	// RateLimitDrift bounds on-demand drift checks, which scan two score
	// windows per call.
	RateLimitDrift = RateLimitConfig{Requests: 30, Window: time.Minute}

	// RateLimitHealth is permissive so monitoring probes never starve.
	RateLimitHealth = RateLimitConfig{Requests: 1000, Window: time.Minute}
)

// RateLimit returns the default IP-based limiter for API endpoints.
func (m *ChiMiddleware) RateLimit() func(http.Handler) http.Handler {
	return m.RateLimitCustom(RateLimitConfig{
		Requests: m.config.RateLimitRequests,
		Window:   m.config.RateLimitWindow,
	})
}

// RateLimitCustom returns an IP-based limiter with specific parameters.
func (m *ChiMiddleware) RateLimitCustom(cfg RateLimitConfig) func(http.Handler) http.Handler {
	if m.config.RateLimitDisabled {
		return func(next http.Handler) http.Handler {
			return next
		}
	}
	return httprate.LimitByIP(cfg.Requests, cfg.Window)
}

// RateLimitUploads returns the strict limiter for batch submission.
func (m *ChiMiddleware) RateLimitUploads() func(http.Handler) http.Handler {
	return m.RateLimitCustom(RateLimitUpload)
}

// RateLimitDriftChecks returns the limiter for on-demand drift detection.
func (m *ChiMiddleware) RateLimitDriftChecks() func(http.Handler) http.Handler {
	return m.RateLimitCustom(RateLimitDrift)
}

// RateLimitHealthChecks returns the permissive limiter for health probes.
func (m *ChiMiddleware) RateLimitHealthChecks() func(http.Handler) http.Handler {
	return m.RateLimitCustom(RateLimitHealth)
}

// APISecurityHeaders adds security headers to API responses. CSP is
// omitted since the API serves no HTML.
func APISecurityHeaders() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

			if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
				w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}

			next.ServeHTTP(w, r)
		})
	}
}
