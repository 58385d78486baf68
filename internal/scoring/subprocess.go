// CredGuard - Multi-Tenant Credit Scoring and Batch Ingestion Platform
// Copyright 2026 CredGuard Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/credguard/credguard

package scoring

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"

	json "github.com/goccy/go-json"

	"github.com/credguard/credguard/internal/config"
	"github.com/credguard/credguard/internal/logging"
	"github.com/credguard/credguard/internal/metrics"
	"github.com/credguard/credguard/internal/models"
)

// SubprocessScorer runs the Python ML service as a child process per call.
// The payload travels as a single JSON argv argument and the prediction
// comes back on stdout. Stderr carries the service's own logs.
type SubprocessScorer struct {
	cfg *config.ScoringConfig
}

// NewSubprocessScorer creates a scorer backed by the configured Python
// script.
func NewSubprocessScorer(cfg *config.ScoringConfig) *SubprocessScorer {
	return &SubprocessScorer{cfg: cfg}
}

// Score predicts the default probability for a single customer.
func (s *SubprocessScorer) Score(ctx context.Context, customer CustomerPayload) (*Prediction, error) {
	start := time.Now()

	payload, err := json.Marshal(customer)
	if err != nil {
		return nil, fmt.Errorf("failed to encode scorer payload: %w", err)
	}

	stdout, err := s.run(ctx, s.cfg.SingleTimeout, payload)
	metrics.ScorerDuration.WithLabelValues(modelLabel(customer.Produto), "single").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}

	var prediction Prediction
	if err := json.Unmarshal(stdout, &prediction); err != nil {
		return nil, fmt.Errorf("failed to decode scorer response: %w", err)
	}
	return &prediction, nil
}

// ScoreBatch predicts default probabilities for multiple customers in one
// invocation. The response preserves input order.
func (s *SubprocessScorer) ScoreBatch(ctx context.Context, customers []CustomerPayload) ([]Prediction, error) {
	if len(customers) == 0 {
		return nil, nil
	}
	start := time.Now()

	payload, err := json.Marshal(customers)
	if err != nil {
		return nil, fmt.Errorf("failed to encode scorer batch payload: %w", err)
	}

	stdout, err := s.run(ctx, s.cfg.BatchTimeout, payload)
	metrics.ScorerDuration.WithLabelValues("batch", "batch").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}

	var predictions []Prediction
	if err := json.Unmarshal(stdout, &predictions); err != nil {
		return nil, fmt.Errorf("failed to decode scorer batch response: %w", err)
	}
	if len(predictions) != len(customers) {
		return nil, fmt.Errorf("scorer returned %d predictions for %d customers", len(predictions), len(customers))
	}
	return predictions, nil
}

// modelLabel resolves the metric label for a product line, falling back to
// the raw product name for products outside the catalog.
func modelLabel(product string) string {
	model, err := models.ModelForProduct(product)
	if err != nil {
		return product
	}
	return model
}

func (s *SubprocessScorer) run(ctx context.Context, timeout time.Duration, payload []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, s.cfg.PythonBin, s.cfg.ScriptPath, string(payload))
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if stderr.Len() > 0 {
		logging.Debug().
			Str("component", "scorer").
			Str("stderr", stderr.String()).
			Msg("ML service log output")
	}
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("scorer timed out after %s: %w", timeout, ctx.Err())
		}
		return nil, fmt.Errorf("scorer process failed: %w", err)
	}
	return stdout.Bytes(), nil
}
