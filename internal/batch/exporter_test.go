// CredGuard - Multi-Tenant Credit Scoring and Batch Ingestion Platform
// Copyright 2026 CredGuard Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/credguard/credguard

package batch

import (
	"encoding/csv"
	"strings"
	"testing"

	"github.com/credguard/credguard/internal/models"
)

func TestRenderCSV(t *testing.T) {
	internal := 0.2
	final := 0.38
	band := "B"
	bureauScore := 800
	pendencias := 2
	protestos := 0
	exclusion := models.ExclusionShortHistory

	rows := []OutputRow{
		{
			Name:    "Ana Silva",
			Product: "CARTAO",
			Score: models.CustomerScore{
				CPF:           cpfAna,
				InternalScore: &internal,
				BureauScore:   &bureauScore,
				FinalScore:    &final,
				Band:          &band,
				Pendencias:    &pendencias,
				Protestos:     &protestos,
				BureauSource:  models.BureauSourceAPI,
			},
		},
		{
			Name:    "Bruno Costa",
			Product: "CARTAO",
			Score: models.CustomerScore{
				CPF:             cpfBruno,
				ExclusionReason: &exclusion,
				BureauSource:    models.BureauSourceDisabled,
			},
		},
	}

	out, err := RenderCSV(rows, date(2026, 3, 15))
	if err != nil {
		t.Fatalf("RenderCSV failed: %v", err)
	}

	parsed, err := csv.NewReader(strings.NewReader(out)).ReadAll()
	if err != nil {
		t.Fatalf("Output is not valid CSV: %v", err)
	}
	if len(parsed) != 3 {
		t.Fatalf("Expected header plus 2 rows, got %d lines", len(parsed))
	}

	wantHeader := "cpf,nome,produto,score_prob_inadimplencia,faixa_score,motivo_exclusao,score_interno,score_serasa,pendencias,protestos,bureau_source,data_processamento"
	if got := strings.Join(parsed[0], ","); got != wantHeader {
		t.Errorf("Unexpected header:\n got %s\nwant %s", got, wantHeader)
	}

	scored := parsed[1]
	if scored[0] != cpfAna || scored[1] != "Ana Silva" || scored[2] != "CARTAO" {
		t.Errorf("Unexpected identity columns: %v", scored[:3])
	}
	if scored[3] != "0.3800" {
		t.Errorf("Expected final score 0.3800, got %s", scored[3])
	}
	if scored[4] != "B" || scored[5] != "" {
		t.Errorf("Expected band B with empty exclusion, got %q %q", scored[4], scored[5])
	}
	if scored[6] != "0.2000" || scored[7] != "800" {
		t.Errorf("Unexpected component scores: %q %q", scored[6], scored[7])
	}
	if scored[8] != "2" || scored[9] != "0" {
		t.Errorf("Unexpected bureau detail columns: %q %q", scored[8], scored[9])
	}
	if scored[10] != models.BureauSourceAPI {
		t.Errorf("Expected bureau source %s, got %s", models.BureauSourceAPI, scored[10])
	}
	if scored[11] != "2026-03-15" {
		t.Errorf("Expected processing date 2026-03-15, got %s", scored[11])
	}

	excluded := parsed[2]
	if excluded[5] != models.ExclusionShortHistory {
		t.Errorf("Expected exclusion reason, got %q", excluded[5])
	}
	for _, i := range []int{3, 4, 6, 7, 8, 9} {
		if excluded[i] != "" {
			t.Errorf("Expected empty score column %d for excluded customer, got %q", i, excluded[i])
		}
	}
}

func TestRenderCSVEmpty(t *testing.T) {
	out, err := RenderCSV(nil, date(2026, 3, 15))
	if err != nil {
		t.Fatalf("RenderCSV failed: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 1 {
		t.Fatalf("Expected header only, got %d lines", len(lines))
	}
}
