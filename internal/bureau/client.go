// CredGuard - Multi-Tenant Credit Scoring and Batch Ingestion Platform
// Copyright 2026 CredGuard Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/credguard/credguard

/*
client.go - Serasa API Brasil Client

This file provides the HTTP client for the external credit bureau API.

Client Features:
  - Bearer token authentication with per-tenant tokens
  - Bounded request timeout (per-tenant override, 5s default)
  - Automatic HTTP 429 rate limit handling with exponential backoff
  - Outbound request rate limiting via token bucket
  - Context support for cancellation

Resilience Mechanisms:
  - Rate Limiting: Exponential backoff (1s, 2s, 4s, 8s, 16s) on HTTP 429
  - Retries: Max 5 attempts for rate-limited requests
  - Timeouts surface as ErrTimeout so callers can report the source
    distinctly from other failures

Related Files:
  - breaker.go: circuit breaker wrapper over this client
  - service.go: cache-aside enrichment built on the breaker
*/

//nolint:staticcheck // File documentation, not package doc
package bureau

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/credguard/credguard/internal/config"
	"github.com/credguard/credguard/internal/metrics"
	"github.com/credguard/credguard/internal/models"
)

// queryPath is the full-report CPF consultation endpoint.
const queryPath = "/v1/serasa/completo"

// maxErrorBodySize limits the maximum amount of response body read for
// error reporting to prevent unbounded memory allocation.
const maxErrorBodySize = 64 * 1024 // 64KB

// ErrTimeout reports that the bureau call hit its deadline. Callers map it
// to the "timeout" source instead of "error".
var ErrTimeout = errors.New("bureau request timed out")

// Client fetches credit reports from the bureau API.
type Client interface {
	Fetch(ctx context.Context, apiToken, cpf string, timeout time.Duration) (*models.BureauData, error)
}

// HTTPClient is the production bureau client.
//
// Thread Safety: safe for concurrent use. The shared rate limiter bounds
// outbound request rate across all tenants.
type HTTPClient struct {
	baseURL        string
	client         *http.Client
	limiter        *rate.Limiter
	maxRetries     int
	retryBaseDelay time.Duration
}

// NewHTTPClient creates a bureau client from configuration.
func NewHTTPClient(cfg *config.BureauConfig) *HTTPClient {
	return &HTTPClient{
		baseURL: cfg.BaseURL,
		client: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		limiter:        rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
		maxRetries:     cfg.MaxRetries,
		retryBaseDelay: 1 * time.Second,
	}
}

// bureauResponse is the wire format of a successful consultation.
type bureauResponse struct {
	Score                 int     `json:"score"`
	PendenciasFinanceiras int     `json:"pendencias_financeiras"`
	Protestos             int     `json:"protestos"`
	ValorTotalDivida      float64 `json:"valor_total_divida"`
	CadastroPositivo      bool    `json:"cadastro_positivo"`
}

// Fetch queries the bureau for one CPF. The timeout bounds the whole call
// including backoff waits; zero means the client default applies.
func (c *HTTPClient) Fetch(ctx context.Context, apiToken, cpf string, timeout time.Duration) (*models.BureauData, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, classifyErr(err)
	}

	payload, err := json.Marshal(map[string]string{"cpf": cpf})
	if err != nil {
		return nil, fmt.Errorf("failed to encode bureau request: %w", err)
	}

	start := time.Now()
	resp, err := c.doRequestWithRateLimit(ctx, apiToken, payload)
	metrics.BureauRequestDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, classifyErr(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body := readBodyForError(resp.Body)
		return nil, fmt.Errorf("bureau request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var parsed bureauResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode bureau response: %w", err)
	}

	return &models.BureauData{
		Score:                 parsed.Score,
		PendenciasFinanceiras: parsed.PendenciasFinanceiras,
		Protestos:             parsed.Protestos,
		ValorTotalDivida:      parsed.ValorTotalDivida,
		CadastroPositivo:      parsed.CadastroPositivo,
	}, nil
}

// doRequestWithRateLimit performs the POST with automatic HTTP 429 handling.
// Implements exponential backoff (1s, 2s, 4s, 8s, 16s) honoring Retry-After.
func (c *HTTPClient) doRequestWithRateLimit(ctx context.Context, apiToken string, payload []byte) (*http.Response, error) {
	reqURL := c.baseURL + queryPath
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+apiToken)

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("HTTP request failed: %w", err)
		}

		if resp.StatusCode != http.StatusTooManyRequests {
			return resp, nil
		}

		_ = resp.Body.Close()

		if attempt == c.maxRetries {
			lastErr = fmt.Errorf("rate limit exceeded after %d retries (HTTP 429)", c.maxRetries)
			break
		}

		delay := c.retryBaseDelay * time.Duration(1<<uint(attempt))
		if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
			if seconds, err := time.ParseDuration(retryAfter + "s"); err == nil {
				delay = seconds
			}
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, lastErr
}

// classifyErr maps deadline and network timeout errors to ErrTimeout.
func classifyErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return err
}

// readBodyForError reads the response body for error reporting (max 64KB).
func readBodyForError(r io.Reader) []byte {
	limitedReader := io.LimitReader(r, maxErrorBodySize)
	body, err := io.ReadAll(limitedReader)
	if err != nil {
		return []byte("(failed to read response body)")
	}
	if len(body) == maxErrorBodySize {
		return append(body, []byte("\n... (truncated)")...)
	}
	return body
}
