// CredGuard - Multi-Tenant Credit Scoring and Batch Ingestion Platform
// Copyright 2026 CredGuard Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/credguard/credguard

package models

import "fmt"

// ModelInfo describes one scoring model in the catalog.
type ModelInfo struct {
	Version     string `json:"version"`
	Product     string `json:"product"`
	Description string `json:"description"`
}

// productModels maps an uploaded product line to its scoring model version.
var productModels = map[string]string{
	"CARTAO":             "fa_12",
	"CARNE":              "fa_11",
	"EMPRESTIMO_PESSOAL": "fa_15",
}

// ModelForProduct resolves the scoring model for a product line.
func ModelForProduct(product string) (string, error) {
	model, ok := productModels[product]
	if !ok {
		return "", fmt.Errorf("unknown product %q", product)
	}
	return model, nil
}

// ModelCatalog returns the known models in a stable order.
func ModelCatalog() []ModelInfo {
	return []ModelInfo{
		{Version: "fa_11", Product: "CARNE", Description: "Installment booklet portfolio model"},
		{Version: "fa_12", Product: "CARTAO", Description: "Store card portfolio model"},
		{Version: "fa_15", Product: "EMPRESTIMO_PESSOAL", Description: "Personal loan portfolio model"},
	}
}

// Products returns the accepted product identifiers in a stable order.
func Products() []string {
	return []string{"CARNE", "CARTAO", "EMPRESTIMO_PESSOAL"}
}
