// CredGuard - Multi-Tenant Credit Scoring and Batch Ingestion Platform
// Copyright 2026 CredGuard Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/credguard/credguard

package models

import "time"

// Tenant is one isolated customer of the platform. API keys are stored as
// bcrypt hashes; the plaintext key is only returned once at creation.
type Tenant struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	APIKeyHash string    `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
}
