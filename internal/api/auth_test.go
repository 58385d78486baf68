// CredGuard - Multi-Tenant Credit Scoring and Batch Ingestion Platform
// Copyright 2026 CredGuard Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/credguard/credguard

package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/credguard/credguard/internal/models"
)

type fakeTenantStore struct {
	tenants []models.Tenant
	err     error
}

func (s *fakeTenantStore) ListTenants(ctx context.Context) ([]models.Tenant, error) {
	return s.tenants, s.err
}

func hashKey(t *testing.T, key string) string {
	t.Helper()
	// MinCost keeps the bcrypt compares in these tests fast.
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt hash failed: %v", err)
	}
	return string(hash)
}

// authProbe records the tenant the middleware resolved.
func authProbe(got **models.Tenant) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if tenant, ok := TenantFromContext(r.Context()); ok {
			*got = tenant
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthenticateMissingKey(t *testing.T) {
	store := &fakeTenantStore{}
	var got *models.Tenant
	handler := Authenticate(store)(authProbe(&got))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/models", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if got != nil {
		t.Error("tenant leaked into context without a key")
	}
}

func TestAuthenticateInvalidKey(t *testing.T) {
	store := &fakeTenantStore{tenants: []models.Tenant{
		{ID: 1, Name: "acme", APIKeyHash: hashKey(t, "right-key")},
	}}
	var got *models.Tenant
	handler := Authenticate(store)(authProbe(&got))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/models", nil)
	req.Header.Set(apiKeyHeader, "wrong-key")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if got != nil {
		t.Error("tenant resolved from a wrong key")
	}
}

func TestAuthenticateValidKey(t *testing.T) {
	store := &fakeTenantStore{tenants: []models.Tenant{
		{ID: 7, Name: "other", APIKeyHash: hashKey(t, "other-key")},
		{ID: 9, Name: "acme", APIKeyHash: hashKey(t, "acme-key")},
	}}
	var got *models.Tenant
	handler := Authenticate(store)(authProbe(&got))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/models", nil)
	req.Header.Set(apiKeyHeader, "acme-key")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got == nil || got.ID != 9 || got.Name != "acme" {
		t.Fatalf("resolved tenant = %+v, want acme", got)
	}
}

func TestAuthenticateStoreUnavailable(t *testing.T) {
	store := &fakeTenantStore{err: errors.New("db down")}
	var got *models.Tenant
	handler := Authenticate(store)(authProbe(&got))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/models", nil)
	req.Header.Set(apiKeyHeader, "any-key")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}
