// Copyright (C) 2025 Driftline Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package validate gates rendered diagrams behind an external mermaid
// syntax checker before they are allowed to reach a design document.
package validate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// CheckError is a syntactic rejection from the checker. Any other error
// returned by a SyntaxChecker is a transport or availability failure.
type CheckError struct {
	Message string
}

func (e *CheckError) Error() string {
	return fmt.Sprintf("diagram rejected by syntax checker: %s", e.Message)
}

// SyntaxChecker decides whether a diagram is syntactically valid.
//
// Check returns nil for a valid diagram, a *CheckError for a rejected
// one, and any other error when the checker itself could not be
// reached.
type SyntaxChecker interface {
	Check(ctx context.Context, text string) error
}

// CheckerFunc adapts a function to the SyntaxChecker interface.
type CheckerFunc func(ctx context.Context, text string) error

func (f CheckerFunc) Check(ctx context.Context, text string) error { return f(ctx, text) }

// HTTPChecker validates diagrams against a checker service endpoint.
//
// Requests are rate limited and transport failures are retried with
// exponential backoff; a syntactic rejection is returned immediately
// and never retried.
//
// Thread Safety: safe for concurrent use.
type HTTPChecker struct {
	endpoint string
	client   *http.Client
	limiter  *rate.Limiter
	retries  int
	backoff  time.Duration
}

// HTTPCheckerOption configures an HTTPChecker.
type HTTPCheckerOption func(*HTTPChecker)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) HTTPCheckerOption {
	return func(h *HTTPChecker) { h.client = c }
}

// WithRateLimit caps checker requests per second.
func WithRateLimit(rps float64, burst int) HTTPCheckerOption {
	return func(h *HTTPChecker) { h.limiter = rate.NewLimiter(rate.Limit(rps), burst) }
}

// WithRetries sets the transport retry count and initial backoff.
func WithRetries(n int, initial time.Duration) HTTPCheckerOption {
	return func(h *HTTPChecker) {
		h.retries = n
		h.backoff = initial
	}
}

// NewHTTPChecker builds a checker client for the given endpoint.
func NewHTTPChecker(endpoint string, opts ...HTTPCheckerOption) *HTTPChecker {
	h := &HTTPChecker{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 10 * time.Second},
		limiter:  rate.NewLimiter(rate.Limit(5), 10),
		retries:  3,
		backoff:  500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type checkRequest struct {
	Diagram string `json:"diagram"`
}

type checkResponse struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

// Check submits the diagram text to the checker service.
func (h *HTTPChecker) Check(ctx context.Context, text string) error {
	if err := h.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("checker rate limit: %w", err)
	}

	body, err := json.Marshal(checkRequest{Diagram: text})
	if err != nil {
		return fmt.Errorf("encode checker request: %w", err)
	}

	backoff := h.backoff
	var lastErr error
	for attempt := 0; attempt <= h.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		var rejection *CheckError
		rejection, lastErr = h.post(ctx, body)
		if lastErr == nil {
			if rejection != nil {
				return rejection
			}
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return fmt.Errorf("syntax checker unreachable after %d attempts: %w", h.retries+1, lastErr)
}

func (h *HTTPChecker) post(ctx context.Context, body []byte) (*CheckError, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build checker request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read checker response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		var out checkResponse
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, fmt.Errorf("decode checker response: %w", err)
		}
		if !out.Valid {
			return &CheckError{Message: out.Error}, nil
		}
		return nil, nil
	case resp.StatusCode == http.StatusUnprocessableEntity:
		var out checkResponse
		if err := json.Unmarshal(data, &out); err != nil {
			return &CheckError{Message: string(data)}, nil
		}
		return &CheckError{Message: out.Error}, nil
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("checker returned %s", resp.Status)
	default:
		return nil, fmt.Errorf("checker returned unexpected status %s: %s", resp.Status, string(data))
	}
}
