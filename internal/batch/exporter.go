// CredGuard - Multi-Tenant Credit Scoring and Batch Ingestion Platform
// Copyright 2026 CredGuard Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/credguard/credguard

package batch

import (
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/credguard/credguard/internal/models"
)

// outputColumns is the result CSV schema, one row per customer.
var outputColumns = []string{
	"cpf", "nome", "produto", "score_prob_inadimplencia", "faixa_score",
	"motivo_exclusao", "score_interno", "score_serasa", "pendencias",
	"protestos", "bureau_source", "data_processamento",
}

// OutputRow pairs a persisted score with the customer name for export.
type OutputRow struct {
	Name    string
	Product string
	Score   models.CustomerScore
}

// RenderCSV builds the downloadable result CSV. Excluded customers keep
// empty score columns so the exclusion is visible, not silently dropped.
func RenderCSV(rows []OutputRow, processedAt time.Time) (string, error) {
	var out strings.Builder
	w := csv.NewWriter(&out)

	if err := w.Write(outputColumns); err != nil {
		return "", fmt.Errorf("failed to write CSV header: %w", err)
	}

	stamp := processedAt.Format(dateLayout)
	for i := range rows {
		row := &rows[i]
		record := []string{
			row.Score.CPF,
			row.Name,
			row.Product,
			formatFloat(row.Score.FinalScore),
			formatString(row.Score.Band),
			formatString(row.Score.ExclusionReason),
			formatFloat(row.Score.InternalScore),
			formatInt(row.Score.BureauScore),
			formatInt(row.Score.Pendencias),
			formatInt(row.Score.Protestos),
			row.Score.BureauSource,
			stamp,
		}
		if err := w.Write(record); err != nil {
			return "", fmt.Errorf("failed to write CSV row %d: %w", i+1, err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("failed to flush CSV: %w", err)
	}
	return out.String(), nil
}

func formatFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', 4, 64)
}

func formatInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func formatString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
