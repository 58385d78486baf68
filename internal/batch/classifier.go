// CredGuard - Multi-Tenant Credit Scoring and Batch Ingestion Platform
// Copyright 2026 CredGuard Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/credguard/credguard

package batch

import (
	"time"

	"github.com/credguard/credguard/internal/cpf"
	"github.com/credguard/credguard/internal/models"
	"github.com/credguard/credguard/internal/scoring"
)

// Exclusion thresholds. A customer needs at least 3 months of purchase
// history and movement within the last 8 months to be scored. Exactly 3
// months of history and exactly 8 months since movement both pass.
const (
	minHistoryMonths    = 3
	maxInactivityMonths = 8
)

// Classify applies the exclusion policy, first match wins. It returns the
// exclusion reason, or "" when the customer is eligible for scoring.
func Classify(customer *Customer, now time.Time) string {
	if !cpf.Valid(customer.CPF) {
		return models.ExclusionInvalidCPF
	}
	if customer.Malformed {
		return models.ExclusionMalformed
	}
	if monthsBetween(customer.FirstPurchase, now) < minHistoryMonths {
		return models.ExclusionShortHistory
	}
	if monthsBetween(customer.LastMovement, now) > maxInactivityMonths {
		return models.ExclusionInactive
	}
	return ""
}

// monthsBetween returns the number of whole months from one date to a
// later one. A partial month does not count.
func monthsBetween(from, to time.Time) int {
	if from.After(to) {
		return 0
	}
	months := (to.Year()-from.Year())*12 + int(to.Month()) - int(from.Month())
	if to.Day() < from.Day() {
		months--
	}
	if months < 0 {
		return 0
	}
	return months
}

// BuildRecord converts the aggregate into the persisted customer record.
func BuildRecord(customer *Customer, tenantID int64, jobID string, now time.Time) *models.CustomerRecord {
	record := &models.CustomerRecord{
		TenantID:                tenantID,
		JobID:                   jobID,
		CPF:                     customer.CPF,
		Name:                    customer.Nome,
		Email:                   customer.Email,
		Phone:                   customer.Telefone,
		BirthDate:               customer.BirthDate,
		Income:                  customer.Renda,
		Product:                 customer.Produto,
		TotalPurchases:          customer.TotalCompras,
		TotalValue:              customer.ValorTotal,
		MaxDelayDays:            customer.MaiorAtraso,
		MonthsOfHistory:         monthsBetween(customer.FirstPurchase, now),
		MonthsSinceLastMovement: monthsBetween(customer.LastMovement, now),
	}
	if customer.TotalCompras > 0 {
		record.AvgTicket = customer.ValorTotal / float64(customer.TotalCompras)
		record.OnTimeRate = float64(customer.PagamentosEmDia) / float64(customer.TotalCompras)
	}
	if record.MonthsOfHistory > 0 {
		record.PurchaseFrequency = float64(customer.TotalCompras) / float64(record.MonthsOfHistory)
	} else {
		record.PurchaseFrequency = float64(customer.TotalCompras)
	}
	return record
}

// BuildPayload converts the aggregate into the ML scorer's feature payload.
func BuildPayload(customer *Customer) scoring.CustomerPayload {
	return scoring.CustomerPayload{
		CPF:                customer.CPF,
		Nome:               customer.Nome,
		Produto:            customer.Produto,
		DataPrimeiraCompra: customer.FirstPurchase.Format(dateLayout),
		DataUltimaCompra:   customer.LastPurchase.Format(dateLayout),
		TotalCompras:       customer.TotalCompras,
		ValorTotalCompras:  customer.ValorTotal,
		PagamentosEmDia:    customer.PagamentosEmDia,
		TotalAtrasos:       customer.TotalAtrasos,
		MaiorAtraso:        customer.MaiorAtraso,
	}
}
