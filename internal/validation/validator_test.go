// CredGuard - Multi-Tenant Credit Scoring and Batch Ingestion Platform
// Copyright 2026 CredGuard Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/credguard/credguard

package validation

import (
	"strings"
	"testing"
)

type uploadRequest struct {
	FileName string `validate:"required,max=255"`
	Product  string `validate:"required,oneof=CARTAO CARNE EMPRESTIMO_PESSOAL"`
}

type cpfHolder struct {
	CPF string `validate:"required,cpf"`
}

func TestValidateStructPasses(t *testing.T) {
	req := uploadRequest{FileName: "clients.csv", Product: "CARTAO"}
	if verr := ValidateStruct(&req); verr != nil {
		t.Fatalf("expected valid struct, got %v", verr)
	}
}

func TestValidateStructFailures(t *testing.T) {
	req := uploadRequest{FileName: "", Product: "FINANCIAMENTO"}
	verr := ValidateStruct(&req)
	if verr == nil {
		t.Fatal("expected validation errors")
	}
	if len(verr.Errors()) != 2 {
		t.Fatalf("expected 2 errors, got %d: %v", len(verr.Errors()), verr)
	}

	apiErr := verr.ToAPIError()
	if apiErr.Code != "VALIDATION_ERROR" {
		t.Errorf("Code = %q", apiErr.Code)
	}
	if !strings.Contains(apiErr.Message, "FileName is required") {
		t.Errorf("message missing required hint: %q", apiErr.Message)
	}
	if !strings.Contains(apiErr.Message, "must be one of") {
		t.Errorf("message missing oneof hint: %q", apiErr.Message)
	}
}

func TestCustomCPFTag(t *testing.T) {
	if verr := ValidateStruct(&cpfHolder{CPF: "52998224725"}); verr != nil {
		t.Errorf("valid CPF rejected: %v", verr)
	}

	verr := ValidateStruct(&cpfHolder{CPF: "11111111111"})
	if verr == nil {
		t.Fatal("repeated-digit CPF accepted")
	}
	if verr.Errors()[0].Tag() != "cpf" {
		t.Errorf("tag = %q, want cpf", verr.Errors()[0].Tag())
	}
}
