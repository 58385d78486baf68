// CredGuard - Multi-Tenant Credit Scoring and Batch Ingestion Platform
// Copyright 2026 CredGuard Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/credguard/credguard

package middleware

import (
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const sampleCSV = "cpf,nome,produto,score_prob_inadimplencia\n52998224725,Ana Silva,CARTAO,0.3800\n"

func TestCompressionGzipsAcceptingClients(t *testing.T) {
	handler := Compression(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte(sampleCSV)); err != nil {
			t.Errorf("Write failed: %v", err)
		}
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/batches/abc/download", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("Content-Encoding"); got != "gzip" {
		t.Fatalf("Expected gzip encoding, got %q", got)
	}

	gz, err := gzip.NewReader(rec.Body)
	if err != nil {
		t.Fatalf("Body is not valid gzip: %v", err)
	}
	defer func() {
		if err := gz.Close(); err != nil {
			t.Errorf("Close failed: %v", err)
		}
	}()

	decoded, err := io.ReadAll(gz)
	if err != nil {
		t.Fatalf("Failed to decompress body: %v", err)
	}
	if string(decoded) != sampleCSV {
		t.Errorf("Decompressed body does not match original:\n%s", decoded)
	}
}

func TestCompressionSkipsNonAcceptingClients(t *testing.T) {
	handler := Compression(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte(sampleCSV)); err != nil {
			t.Errorf("Write failed: %v", err)
		}
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/batches/abc/download", nil))

	if got := rec.Header().Get("Content-Encoding"); got != "" {
		t.Fatalf("Expected identity encoding, got %q", got)
	}
	if !strings.Contains(rec.Body.String(), "52998224725") {
		t.Errorf("Expected plain body, got: %s", rec.Body.String())
	}
}

func TestCompressionPreservesStatusCode(t *testing.T) {
	handler := Compression(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/batches", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Errorf("Expected status 202, got %d", rec.Code)
	}
}
