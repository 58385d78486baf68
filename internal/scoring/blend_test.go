// CredGuard - Multi-Tenant Credit Scoring and Batch Ingestion Platform
// Copyright 2026 CredGuard Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/credguard/credguard

package scoring

import (
	"math"
	"testing"

	"github.com/credguard/credguard/internal/models"
)

func intPtr(v int) *int { return &v }

func TestBlend(t *testing.T) {
	tests := []struct {
		name     string
		internal float64
		source   string
		bureau   *int
		want     float64
	}{
		{"disabled passes internal through", 0.5, models.BureauSourceDisabled, nil, 0.5},
		{"error passes internal through", 0.3, models.BureauSourceError, intPtr(800), 0.3},
		{"timeout passes internal through", 0.3, models.BureauSourceTimeout, intPtr(800), 0.3},
		{"api source blends 70/30", 0.2, models.BureauSourceAPI, intPtr(800), 0.7*0.2 + 0.3*0.8},
		{"cache source blends 70/30", 0.2, models.BureauSourceCache, intPtr(800), 0.7*0.2 + 0.3*0.8},
		{"api source without score passes through", 0.2, models.BureauSourceAPI, nil, 0.2},
		{"max inputs clamp to 1", 1.5, models.BureauSourceAPI, intPtr(2000), 1.0},
		{"negative internal clamps to 0", -0.5, models.BureauSourceDisabled, nil, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Blend(tt.internal, tt.source, tt.bureau)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Blend(%v, %s, %v) = %v, want %v", tt.internal, tt.source, tt.bureau, got, tt.want)
			}
		})
	}
}

func TestBandFor(t *testing.T) {
	tests := []struct {
		score float64
		want  string
	}{
		{0.0, "A"},
		{0.2, "A"},
		{0.21, "B"},
		{0.4, "B"},
		{0.41, "C"},
		{0.6, "C"},
		{0.61, "D"},
		{0.8, "D"},
		{0.81, "E"},
		{1.0, "E"},
	}
	for _, tt := range tests {
		if got := BandFor(tt.score); got != tt.want {
			t.Errorf("BandFor(%v) = %s, want %s", tt.score, got, tt.want)
		}
	}
}

func TestFallback(t *testing.T) {
	customer := CustomerPayload{CPF: "52998224725", Nome: "Maria", Produto: "CARTAO"}
	p := Fallback(customer, "scorer process failed")

	if p.Score != NeutralScore {
		t.Errorf("fallback score = %v, want %v", p.Score, NeutralScore)
	}
	if p.Modelo != FallbackModel || p.Faixa != FallbackFaixa {
		t.Errorf("fallback tags = %s/%s", p.Modelo, p.Faixa)
	}
	if !p.Failed() {
		t.Error("fallback prediction must report failure")
	}
	if p.CPF != customer.CPF {
		t.Errorf("fallback lost customer identity: %s", p.CPF)
	}
}
