// CredGuard - Multi-Tenant Credit Scoring and Batch Ingestion Platform
// Copyright 2026 CredGuard Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/credguard/credguard

package database

import (
	"errors"
	"io"

	"github.com/credguard/credguard/internal/logging"
)

// Sentinel errors returned by store methods.
var (
	ErrJobNotFound    = errors.New("batch job not found")
	ErrTenantNotFound = errors.New("tenant not found")
)

// closeWithLog closes a resource and logs any error.
// Use this where a Close failure should be acknowledged but not fail the operation.
func closeWithLog(closer io.Closer, resourceType string) {
	if closer == nil {
		return
	}
	if err := closer.Close(); err != nil {
		logging.Warn().Str("type", resourceType).Err(err).Msg("Failed to close resource")
	}
}

// closeQuietly closes a resource and explicitly ignores any error.
// Use this in error paths where Close() errors are not actionable.
func closeQuietly(closer io.Closer) {
	if closer != nil {
		_ = closer.Close() // Explicitly ignore error - cleanup is best-effort
	}
}
