// CredGuard - Multi-Tenant Credit Scoring and Batch Ingestion Platform
// Copyright 2026 CredGuard Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/credguard/credguard

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/credguard/credguard/internal/logging"
)

func TestRequestIDGeneratesUUID(t *testing.T) {
	var captured string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = GetRequestID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/batches", nil))

	if captured == "" {
		t.Fatal("Expected request ID in context")
	}
	if _, err := uuid.Parse(captured); err != nil {
		t.Errorf("Expected UUID request ID, got %q: %v", captured, err)
	}
	if got := rec.Header().Get("X-Request-ID"); got != captured {
		t.Errorf("Expected response header %q, got %q", captured, got)
	}
}

func TestRequestIDHonorsUpstreamHeader(t *testing.T) {
	var captured string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = GetRequestID(r.Context())
		if got := logging.RequestIDFromContext(r.Context()); got != captured {
			t.Errorf("Logging context has %q, middleware context has %q", got, captured)
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/batches", nil)
	req.Header.Set("X-Request-ID", "proxy-assigned-id")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if captured != "proxy-assigned-id" {
		t.Errorf("Expected upstream ID preserved, got %q", captured)
	}
	if got := rec.Header().Get("X-Request-ID"); got != "proxy-assigned-id" {
		t.Errorf("Expected upstream ID in response header, got %q", got)
	}
}

func TestGetRequestIDMissing(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if got := GetRequestID(req.Context()); got != "" {
		t.Errorf("Expected empty ID for bare context, got %q", got)
	}
}
