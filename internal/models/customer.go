// CredGuard - Multi-Tenant Credit Scoring and Batch Ingestion Platform
// Copyright 2026 CredGuard Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/credguard/credguard

package models

import "time"

// Exclusion reasons assigned during row classification.
const (
	ExclusionShortHistory = "menos_3_meses"
	ExclusionInactive     = "inativo_8_meses"
	ExclusionInvalidCPF   = "cpf_invalido"
	ExclusionMalformed    = "linha_invalida"
)

// CustomerRecord is one customer's aggregated purchase behavior within a job.
type CustomerRecord struct {
	ID                      int64      `json:"id"`
	TenantID                int64      `json:"tenant_id"`
	JobID                   string     `json:"job_id"`
	CPF                     string     `json:"cpf"`
	Name                    string     `json:"name"`
	Email                   string     `json:"email,omitempty"`
	Phone                   string     `json:"phone,omitempty"`
	BirthDate               *time.Time `json:"birth_date,omitempty"`
	Income                  *float64   `json:"income,omitempty"`
	Product                 string     `json:"product"`
	MonthsOfHistory         int        `json:"months_of_history"`
	MonthsSinceLastMovement int        `json:"months_since_last_movement"`
	TotalPurchases          int        `json:"total_purchases"`
	TotalValue              float64    `json:"total_value"`
	AvgTicket               float64    `json:"avg_ticket"`
	OnTimeRate              float64    `json:"on_time_rate"`
	MaxDelayDays            int        `json:"max_delay_days"`
	PurchaseFrequency       float64    `json:"purchase_frequency"`
	CreatedAt               time.Time  `json:"created_at"`
}

// CustomerScore is the scoring outcome for one customer within a job.
// Optional enrichment fields are pointers: nil means the value was never
// produced (excluded row, bureau disabled, scorer fallback without bureau).
type CustomerScore struct {
	ID              int64     `json:"id"`
	TenantID        int64     `json:"tenant_id"`
	JobID           string    `json:"job_id"`
	CPF             string    `json:"cpf"`
	InternalScore   *float64  `json:"internal_score,omitempty"`
	BureauScore     *int      `json:"bureau_score,omitempty"`
	FinalScore      *float64  `json:"final_score,omitempty"`
	Band            *string   `json:"band,omitempty"`
	ModelVersion    string    `json:"model_version"`
	BureauSource    string    `json:"bureau_source"`
	ExclusionReason *string   `json:"exclusion_reason,omitempty"`
	Pendencias      *int      `json:"pendencias,omitempty"`
	Protestos       *int      `json:"protestos,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// Excluded reports whether the score row represents an excluded customer.
func (s *CustomerScore) Excluded() bool {
	return s.ExclusionReason != nil && *s.ExclusionReason != ""
}
