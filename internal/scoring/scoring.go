// CredGuard - Multi-Tenant Credit Scoring and Batch Ingestion Platform
// Copyright 2026 CredGuard Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/credguard/credguard

// Package scoring invokes the out-of-process ML scorer and blends its
// output with bureau data into a final score and letter band.
//
// The scorer is an external collaborator. It can fail, time out, or
// return an error payload; every failure degrades to a neutral score
// instead of aborting the batch that triggered it.
package scoring

import "context"

// Neutral fallback values used when the scorer cannot produce a result.
const (
	NeutralScore  = 0.5
	FallbackModel = "fallback"
	FallbackFaixa = "MÉDIO"
)

// CustomerPayload is the feature payload handed to the ML scorer.
// Field names follow the scorer's wire contract.
type CustomerPayload struct {
	CPF                string  `json:"cpf"`
	Nome               string  `json:"nome"`
	Produto            string  `json:"produto"`
	DataPrimeiraCompra string  `json:"data_primeira_compra"`
	DataUltimaCompra   string  `json:"data_ultima_compra"`
	TotalCompras       int     `json:"total_compras"`
	ValorTotalCompras  float64 `json:"valor_total_compras"`
	PagamentosEmDia    int     `json:"total_pagamentos_em_dia"`
	TotalAtrasos       int     `json:"total_atrasos"`
	MaiorAtraso        int     `json:"maior_atraso"`
}

// Prediction is the scorer's answer for one customer.
type Prediction struct {
	Score   float64 `json:"score_prob_inadimplencia"`
	Faixa   string  `json:"faixa_score"`
	Modelo  string  `json:"modelo_utilizado"`
	Erro    string  `json:"erro,omitempty"`
	CPF     string  `json:"cpf,omitempty"`
	Nome    string  `json:"nome,omitempty"`
	Produto string  `json:"produto,omitempty"`
}

// Failed reports whether the prediction carries an error from the scorer.
func (p *Prediction) Failed() bool {
	return p.Erro != ""
}

// Scorer produces default-probability predictions for customers.
type Scorer interface {
	Score(ctx context.Context, customer CustomerPayload) (*Prediction, error)
	ScoreBatch(ctx context.Context, customers []CustomerPayload) ([]Prediction, error)
}

// Fallback builds the neutral prediction used when the scorer fails.
func Fallback(customer CustomerPayload, reason string) *Prediction {
	return &Prediction{
		Score:   NeutralScore,
		Faixa:   FallbackFaixa,
		Modelo:  FallbackModel,
		Erro:    reason,
		CPF:     customer.CPF,
		Nome:    customer.Nome,
		Produto: customer.Produto,
	}
}
