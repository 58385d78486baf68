// CredGuard - Multi-Tenant Credit Scoring and Batch Ingestion Platform
// Copyright 2026 CredGuard Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/credguard/credguard

package models

import "time"

// Bureau result sources reported per score row.
const (
	BureauSourceAPI      = "serasa_apibrasil"
	BureauSourceCache    = "cache"
	BureauSourceDisabled = "disabled"
	BureauSourceError    = "error"
	BureauSourceTimeout  = "timeout"
)

// BureauData is a successful bureau response for one CPF.
type BureauData struct {
	Score                 int     `json:"score"`
	PendenciasFinanceiras int     `json:"pendencias_financeiras"`
	Protestos             int     `json:"protestos"`
	ValorTotalDivida      float64 `json:"valor_total_divida"`
	CadastroPositivo      bool    `json:"cadastro_positivo"`
}

// BureauCacheEntry is one cached bureau response. Entries are append-only;
// readers filter on ExpiresAt and take the newest row per (tenant, cpf).
type BureauCacheEntry struct {
	ID        int64      `json:"id"`
	TenantID  int64      `json:"tenant_id"`
	CPF       string     `json:"cpf"`
	Data      BureauData `json:"data"`
	FetchedAt time.Time  `json:"fetched_at"`
	ExpiresAt time.Time  `json:"expires_at"`
}

// Expired reports whether the entry is past its TTL at the given instant.
func (e *BureauCacheEntry) Expired(now time.Time) bool {
	return !e.ExpiresAt.After(now)
}

// TenantBureauConfig holds per-tenant bureau enrichment settings.
type TenantBureauConfig struct {
	TenantID  int64     `json:"tenant_id"`
	Enabled   bool      `json:"enabled"`
	Provider  string    `json:"provider"`
	APIToken  string    `json:"-"`
	TimeoutMS int       `json:"timeout_ms"`
	UpdatedAt time.Time `json:"updated_at"`
}
