// CredGuard - Multi-Tenant Credit Scoring and Batch Ingestion Platform
// Copyright 2026 CredGuard Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/credguard/credguard

package scoring

import "github.com/credguard/credguard/internal/models"

// Blend weights for the hybrid score.
const (
	internalWeight = 0.7
	bureauWeight   = 0.3

	// Bureau scores arrive in the 0-1000 range and are normalized to [0,1].
	bureauScale = 1000.0
)

// Blend combines the internal default probability with a bureau score.
// Without a successful bureau fetch the internal score passes through
// unchanged. The result is clamped to [0,1].
func Blend(internalScore float64, bureauSource string, bureauScore *int) float64 {
	if bureauSource != models.BureauSourceAPI && bureauSource != models.BureauSourceCache {
		return clamp01(internalScore)
	}
	if bureauScore == nil {
		return clamp01(internalScore)
	}
	normalized := float64(*bureauScore) / bureauScale
	return clamp01(internalWeight*internalScore + bureauWeight*normalized)
}

// BandFor maps a blended score to its letter band.
func BandFor(score float64) string {
	switch {
	case score <= 0.2:
		return "A"
	case score <= 0.4:
		return "B"
	case score <= 0.6:
		return "C"
	case score <= 0.8:
		return "D"
	default:
		return "E"
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
