// CredGuard - Multi-Tenant Credit Scoring and Batch Ingestion Platform
// Copyright 2026 CredGuard Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/credguard/credguard

// Package drift monitors score distribution stability using the Population
// Stability Index over fixed probability bins.
package drift

import (
	"math"

	"github.com/credguard/credguard/internal/models"
)

// binEdges are the fixed PSI bins over the [0,1] probability range. The
// last bin includes its upper edge so a score of exactly 1.0 is counted.
var binEdges = [6]float64{0, 0.2, 0.4, 0.6, 0.8, 1.0}

// fractionFloor replaces empty-bin fractions to avoid ln(0).
const fractionFloor = 0.0001

// PSI computes the Population Stability Index between a baseline and a
// current score distribution:
//
//	PSI = Σ (current% - baseline%) * ln(current% / baseline%)
//
// Identical distributions yield 0; the value grows with divergence.
func PSI(baseline, current []float64) float64 {
	if len(baseline) == 0 || len(current) == 0 {
		return 0
	}

	var psi float64
	for i := 0; i < len(binEdges)-1; i++ {
		basePct := binFraction(baseline, binEdges[i], binEdges[i+1], i == len(binEdges)-2)
		curPct := binFraction(current, binEdges[i], binEdges[i+1], i == len(binEdges)-2)
		psi += (curPct - basePct) * math.Log(curPct/basePct)
	}
	return psi
}

func binFraction(scores []float64, lo, hi float64, inclusive bool) float64 {
	count := 0
	for _, s := range scores {
		if s >= lo && (s < hi || (inclusive && s == hi)) {
			count++
		}
	}
	pct := float64(count) / float64(len(scores))
	if pct == 0 {
		return fractionFloor
	}
	return pct
}

// StatusFor classifies a PSI value.
func StatusFor(psi float64) string {
	switch {
	case psi < 0.1:
		return models.DriftStable
	case psi < 0.25:
		return models.DriftWarning
	default:
		return models.DriftCritical
	}
}

// RecommendationFor returns the operator guidance for a drift status.
func RecommendationFor(status string) string {
	switch status {
	case models.DriftCritical:
		return "Retreinamento urgente recomendado"
	case models.DriftWarning:
		return "Monitorar de perto, retreinamento pode ser necessário em breve"
	case models.DriftInsufficientData:
		return "Aguarde mais dados serem processados"
	default:
		return "Modelo estável"
	}
}
