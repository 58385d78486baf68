// CredGuard - Multi-Tenant Credit Scoring and Batch Ingestion Platform
// Copyright 2026 CredGuard Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/credguard/credguard

// Package bureau enriches customer rows with external credit bureau data
// using a cache-aside strategy over the bureau_cache table.
package bureau

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/credguard/credguard/internal/config"
	"github.com/credguard/credguard/internal/logging"
	"github.com/credguard/credguard/internal/metrics"
	"github.com/credguard/credguard/internal/models"
)

// Store is the persistence surface the enrichment service needs.
type Store interface {
	GetBureauConfig(ctx context.Context, tenantID int64) (*models.TenantBureauConfig, error)
	GetCachedBureau(ctx context.Context, tenantID int64, cpf string, now time.Time) (*models.BureauCacheEntry, error)
	AppendBureauCache(ctx context.Context, entry *models.BureauCacheEntry) error
}

// Result is the outcome of one enrichment attempt. Data is nil unless
// Source is a successful fetch or cache hit.
type Result struct {
	Source string             `json:"source"`
	Data   *models.BureauData `json:"data,omitempty"`
}

// Service performs cache-aside bureau enrichment. Failures never propagate:
// a row that cannot be enriched scores on internal data alone.
type Service struct {
	store    Store
	client   Client
	cacheTTL time.Duration
	now      func() time.Time
}

// NewService creates the enrichment service.
func NewService(store Store, client Client, cfg *config.BureauConfig) *Service {
	return &Service{
		store:    store,
		client:   client,
		cacheTTL: cfg.CacheTTL,
		now:      time.Now,
	}
}

// Enrich resolves bureau data for one CPF.
//
// Flow:
//  1. Tenant has bureau disabled -> source "disabled", no network, no cache.
//  2. Unexpired cache entry -> source "cache", no network.
//  3. API call. Timeout -> "timeout", other failure -> "error"; neither is
//     cached so transient failures don't poison the cache for the TTL.
//  4. Success -> cached with TTL, source "serasa_apibrasil".
func (s *Service) Enrich(ctx context.Context, tenantID int64, cpf string) *Result {
	tenantLabel := tenantLabel(tenantID)

	cfg, err := s.store.GetBureauConfig(ctx, tenantID)
	if err != nil || !cfg.Enabled || cfg.APIToken == "" {
		if err != nil {
			logging.Warn().Err(err).Int64("tenant_id", tenantID).Msg("Failed to load bureau config, treating as disabled")
		}
		metrics.RecordBureauLookup(tenantLabel, models.BureauSourceDisabled)
		return &Result{Source: models.BureauSourceDisabled}
	}

	now := s.now()
	cached, err := s.store.GetCachedBureau(ctx, tenantID, cpf, now)
	if err != nil {
		logging.Warn().Err(err).Int64("tenant_id", tenantID).Msg("Bureau cache read failed, falling through to API")
	}
	if cached != nil {
		metrics.RecordBureauLookup(tenantLabel, models.BureauSourceCache)
		data := cached.Data
		return &Result{Source: models.BureauSourceCache, Data: &data}
	}

	timeout := time.Duration(cfg.TimeoutMS) * time.Millisecond
	data, err := s.client.Fetch(ctx, cfg.APIToken, cpf, timeout)
	if err != nil {
		source := models.BureauSourceError
		if errors.Is(err, ErrTimeout) {
			source = models.BureauSourceTimeout
		}
		logging.Warn().Err(err).
			Int64("tenant_id", tenantID).
			Str("source", source).
			Msg("Bureau fetch failed, scoring without enrichment")
		metrics.RecordBureauLookup(tenantLabel, source)
		return &Result{Source: source}
	}

	entry := &models.BureauCacheEntry{
		TenantID:  tenantID,
		CPF:       cpf,
		Data:      *data,
		FetchedAt: now,
		ExpiresAt: now.Add(s.cacheTTL),
	}
	if err := s.store.AppendBureauCache(ctx, entry); err != nil {
		// The fetched data is still good; only the next lookup pays again.
		logging.Warn().Err(err).Int64("tenant_id", tenantID).Msg("Failed to cache bureau response")
	}

	metrics.RecordBureauLookup(tenantLabel, models.BureauSourceAPI)
	return &Result{Source: models.BureauSourceAPI, Data: data}
}

func tenantLabel(tenantID int64) string {
	return "tenant_" + strconv.FormatInt(tenantID, 10)
}
