// Castellan - Threat Intelligence Synchronization and Security Case Management
// Copyright 2026 Castellan Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/castellan-io/castellan

package feed

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/castellan-io/castellan/internal/metrics"
)

// maxErrorBodySize limits how much of an error response body is read for
// diagnostics.
const maxErrorBodySize = 64 * 1024 // 64KB

// Fetcher is the surface the sync orchestrator needs from a feed client.
// Implemented by Client and CircuitBreakerClient for production use, and by
// test fakes.
type Fetcher interface {
	// SearchEvents retrieves published events modified since the given date,
	// capped at limit.
	SearchEvents(ctx context.Context, since time.Time, limit int) ([]RawEvent, error)

	// Ping verifies connectivity and credentials.
	Ping(ctx context.Context) error
}

// Config carries the per-server connection settings for one feed client.
// The API key arrives here already decrypted; it never touches the database
// in clear text.
type Config struct {
	BaseURL   string
	APIKey    string
	VerifySSL bool
	Timeout   time.Duration

	// RequestsPerSecond caps outbound request rate for this server.
	// Zero selects the default of 5.
	RequestsPerSecond float64

	// MaxRetries caps how many times an HTTP 429 response is retried.
	// Zero selects the default of 5.
	MaxRetries int

	// RetryDelay is the base for the exponential retry backoff.
	// Zero selects the default of 1s.
	RetryDelay time.Duration
}

// Client is an HTTP client for one MISP-compatible server.
//
// Resilience: requests pass a client-side rate limiter before hitting the
// wire, and HTTP 429 responses are retried up to MaxRetries times with
// exponential backoff doubling from RetryDelay, honoring Retry-After when
// present. Wrap with NewCircuitBreakerClient for failure isolation on top.
//
// Thread safety: safe for concurrent use.
type Client struct {
	baseURL        string
	apiKey         string
	client         *http.Client
	limiter        *rate.Limiter
	maxRetries     int
	retryBaseDelay time.Duration
}

// NewClient creates a feed client for one server.
//
// TLS verification is controlled per server: operators routinely run
// internal MISP instances on self-signed certificates, so VerifySSL=false
// must work rather than be papered over.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	burst := int(rps) * 2
	if burst < 1 {
		burst = 1
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 5
	}
	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = 1 * time.Second
	}

	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: !cfg.VerifySSL, //nolint:gosec // Operator-controlled per-server setting
			MinVersion:         tls.VersionTLS12,
		},
	}

	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		client: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		limiter:        rate.NewLimiter(rate.Limit(rps), burst),
		maxRetries:     maxRetries,
		retryBaseDelay: retryDelay,
	}
}

// SearchEvents retrieves published events modified since the given date.
// The request follows the MISP REST search contract: POST /events/restSearch
// with a JSON body, events wrapped in a response envelope.
func (c *Client) SearchEvents(ctx context.Context, since time.Time, limit int) ([]RawEvent, error) {
	start := time.Now()
	defer func() {
		metrics.FeedFetchDuration.Observe(time.Since(start).Seconds())
	}()

	body := searchRequest{
		ReturnFormat: "json",
		From:         since.Format("2006-01-02"),
		Limit:        limit,
		Published:    true,
	}

	resp, err := c.doRequestWithRateLimit(ctx, http.MethodPost, c.baseURL+"/events/restSearch", body)
	if err != nil {
		return nil, fmt.Errorf("event search failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("event search failed with status %d: %s", resp.StatusCode, readBodyForError(resp.Body))
	}

	var envelope searchEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("failed to decode event search response: %w", err)
	}

	events := make([]RawEvent, 0, len(envelope.Response))
	for _, wrapped := range envelope.Response {
		events = append(events, wrapped.Event)
	}
	return events, nil
}

// Ping verifies connectivity and credentials against the server version
// endpoint.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.doRequestWithRateLimit(ctx, http.MethodGet, c.baseURL+"/servers/getVersion", nil)
	if err != nil {
		return fmt.Errorf("failed to ping feed server: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("feed server ping failed with status %d", resp.StatusCode)
	}
	return nil
}

// doRequestWithRateLimit performs one authenticated request, waiting on the
// client-side limiter first and retrying HTTP 429 with exponential backoff.
func (c *Client) doRequestWithRateLimit(ctx context.Context, method, reqURL string, payload any) (*http.Response, error) {
	var encoded []byte
	if payload != nil {
		var err error
		encoded, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
	}

	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		var reqBody io.Reader = http.NoBody
		if encoded != nil {
			reqBody = bytes.NewReader(encoded)
		}

		req, err := http.NewRequestWithContext(ctx, method, reqURL, reqBody)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Authorization", c.apiKey)
		req.Header.Set("Accept", "application/json")
		if encoded != nil {
			req.Header.Set("Content-Type", "application/json")
		}

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

// readBodyForError reads at most maxErrorBodySize bytes for diagnostics.
func readBodyForError(r io.Reader) []byte {
	body, err := io.ReadAll(io.LimitReader(r, maxErrorBodySize))
	if err != nil {
		return []byte("(failed to read response body)")
	}
	if len(body) == maxErrorBodySize {
		return append(body, []byte("\n... (truncated)")...)
	}
	return body
}
