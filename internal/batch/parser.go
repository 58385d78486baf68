// CredGuard - Multi-Tenant Credit Scoring and Batch Ingestion Platform
// Copyright 2026 CredGuard Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/credguard/credguard

// Package batch implements the CSV ingestion pipeline: parsing, per-CPF
// aggregation, exclusion classification, scoring, enrichment, and result
// export, driven by the batch job state machine.
package batch

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/credguard/credguard/internal/cpf"
)

// dateLayout is the wire format of all date columns.
const dateLayout = "2006-01-02"

// requiredColumns are the input header columns every upload must carry.
var requiredColumns = []string{
	"cpf", "nome", "email", "telefone", "data_nascimento", "renda",
	"produto", "data_compra", "valor_compra", "data_pagamento",
	"status_pagamento", "dias_atraso",
}

// Customer aggregates every input row sharing one CPF into the behavioral
// features the scorer consumes. Rows arrive one per purchase; customers
// keep their first-appearance order so output is deterministic.
type Customer struct {
	CPF       string // normalized digits, possibly invalid
	Nome      string
	Email     string
	Telefone  string
	Produto   string
	BirthDate *time.Time
	Renda     *float64

	FirstPurchase   time.Time
	LastPurchase    time.Time
	LastMovement    time.Time // latest payment date, else latest purchase
	TotalCompras    int
	ValorTotal      float64
	PagamentosEmDia int
	TotalAtrasos    int
	MaiorAtraso     int

	// Malformed marks a customer with at least one unparseable row.
	// The row index and cause are kept for the error report.
	Malformed    bool
	MalformedRow int
	MalformedErr string
}

// Parse reads the upload, validates the header, and aggregates rows per
// CPF. Structural problems (unreadable CSV, missing required columns)
// fail the whole file; a malformed value inside a row only marks that
// customer, so the rest of the file still processes.
func Parse(csvData string) ([]*Customer, error) {
	reader := csv.NewReader(strings.NewReader(csvData))
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	colIndex, err := indexColumns(header)
	if err != nil {
		return nil, err
	}

	byCPF := make(map[string]*Customer)
	var order []*Customer

	for line := 2; ; line++ {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV line %d: %w", line, err)
		}

		rawCPF := row[colIndex["cpf"]]
		key := cpf.Normalize(rawCPF)
		if key == "" {
			key = rawCPF
		}

		customer, seen := byCPF[key]
		if !seen {
			customer = &Customer{
				CPF:      key,
				Nome:     row[colIndex["nome"]],
				Email:    row[colIndex["email"]],
				Telefone: row[colIndex["telefone"]],
				Produto:  row[colIndex["produto"]],
			}
			if birth, err := parseOptionalDate(row[colIndex["data_nascimento"]]); err == nil {
				customer.BirthDate = birth
			}
			if renda := strings.TrimSpace(row[colIndex["renda"]]); renda != "" {
				if v, err := strconv.ParseFloat(renda, 64); err == nil {
					customer.Renda = &v
				}
			}
			byCPF[key] = customer
			order = append(order, customer)
		}

		if err := accumulate(customer, row, colIndex); err != nil && !customer.Malformed {
			customer.Malformed = true
			customer.MalformedRow = line
			customer.MalformedErr = err.Error()
		}
	}

	if len(order) == 0 {
		return nil, fmt.Errorf("CSV contains no data rows")
	}
	return order, nil
}

// indexColumns maps required column names to their positions.
func indexColumns(header []string) (map[string]int, error) {
	colIndex := make(map[string]int, len(header))
	for i, name := range header {
		colIndex[strings.ToLower(strings.TrimSpace(name))] = i
	}

	var missing []string
	for _, name := range requiredColumns {
		if _, ok := colIndex[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("CSV header missing required columns: %s", strings.Join(missing, ", "))
	}
	return colIndex, nil
}

// accumulate folds one purchase row into the customer aggregate.
func accumulate(customer *Customer, row []string, colIndex map[string]int) error {
	purchase, err := time.Parse(dateLayout, strings.TrimSpace(row[colIndex["data_compra"]]))
	if err != nil {
		return fmt.Errorf("invalid data_compra %q", row[colIndex["data_compra"]])
	}

	valor, err := strconv.ParseFloat(strings.TrimSpace(row[colIndex["valor_compra"]]), 64)
	if err != nil {
		return fmt.Errorf("invalid valor_compra %q", row[colIndex["valor_compra"]])
	}

	payment, err := parseOptionalDate(row[colIndex["data_pagamento"]])
	if err != nil {
		return fmt.Errorf("invalid data_pagamento %q", row[colIndex["data_pagamento"]])
	}

	diasAtraso := 0
	if raw := strings.TrimSpace(row[colIndex["dias_atraso"]]); raw != "" {
		diasAtraso, err = strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("invalid dias_atraso %q", raw)
		}
	}

	if customer.TotalCompras == 0 || purchase.Before(customer.FirstPurchase) {
		customer.FirstPurchase = purchase
	}
	if purchase.After(customer.LastPurchase) {
		customer.LastPurchase = purchase
	}

	movement := purchase
	if payment != nil {
		movement = *payment
	}
	if movement.After(customer.LastMovement) {
		customer.LastMovement = movement
	}

	customer.TotalCompras++
	customer.ValorTotal += valor
	if diasAtraso > 0 {
		customer.TotalAtrasos++
		if diasAtraso > customer.MaiorAtraso {
			customer.MaiorAtraso = diasAtraso
		}
	} else if payment != nil {
		customer.PagamentosEmDia++
	}
	return nil
}

func parseOptionalDate(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
