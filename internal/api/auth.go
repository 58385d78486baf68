// CredGuard - Multi-Tenant Credit Scoring and Batch Ingestion Platform
// Copyright 2026 CredGuard Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/credguard/credguard

package api

import (
	"context"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"github.com/credguard/credguard/internal/logging"
	"github.com/credguard/credguard/internal/models"
)

// apiKeyHeader carries the tenant credential on every authenticated request.
const apiKeyHeader = "X-API-Key"

type tenantContextKey struct{}

// TenantStore resolves API keys to tenants.
type TenantStore interface {
	ListTenants(ctx context.Context) ([]models.Tenant, error)
}

// TenantFromContext returns the authenticated tenant, if any.
func TenantFromContext(ctx context.Context) (*models.Tenant, bool) {
	tenant, ok := ctx.Value(tenantContextKey{}).(*models.Tenant)
	return tenant, ok
}

// ContextWithTenant attaches the tenant identity to the context.
func ContextWithTenant(ctx context.Context, tenant *models.Tenant) context.Context {
	return context.WithValue(ctx, tenantContextKey{}, tenant)
}

// Authenticate resolves the X-API-Key header to a tenant via bcrypt
// comparison against every stored key hash. Keys are high entropy, so the
// comparison loop is bounded by the tenant count, not an attacker's
// guesses per request.
func Authenticate(store TenantStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiKey := r.Header.Get(apiKeyHeader)
			if apiKey == "" {
				NewResponseWriter(w, r).Unauthorized("Missing API key")
				return
			}

			tenants, err := store.ListTenants(r.Context())
			if err != nil {
				logging.Error().Err(err).Msg("Failed to load tenants for authentication")
				NewResponseWriter(w, r).ServiceUnavailable("Authentication unavailable")
				return
			}

			for i := range tenants {
				if bcrypt.CompareHashAndPassword([]byte(tenants[i].APIKeyHash), []byte(apiKey)) == nil {
					ctx := ContextWithTenant(r.Context(), &tenants[i])
					next.ServeHTTP(w, r.WithContext(ctx))
					return
				}
			}

			logging.Warn().
				Str("path", r.URL.Path).
				Str("remote_addr", r.RemoteAddr).
				Msg("Rejected request with invalid API key")
			NewResponseWriter(w, r).Unauthorized("Invalid API key")
		})
	}
}

// requireTenant fetches the tenant placed in context by Authenticate.
// Routes outside the authenticated group have no tenant; that is a
// programming error, reported as 401 rather than a panic.
func requireTenant(w http.ResponseWriter, r *http.Request) (*models.Tenant, bool) {
	tenant, ok := TenantFromContext(r.Context())
	if !ok {
		NewResponseWriter(w, r).Unauthorized("Missing tenant identity")
		return nil, false
	}
	return tenant, true
}
