// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// =============================================================================
// REMOTE SINK
// =============================================================================

// Sink delivers one entry to the remote audit collector.
type Sink interface {
	Deliver(ctx context.Context, e Entry) error
}

// HTTPSink posts entries as JSON to the collector endpoint.
type HTTPSink struct {
	baseURL string
	client  *http.Client
	token   func() string
}

// HTTPSinkOption configures an HTTPSink.
type HTTPSinkOption func(*HTTPSink)

// WithHTTPClient substitutes the HTTP client.
func WithHTTPClient(c *http.Client) HTTPSinkOption {
	return func(s *HTTPSink) { s.client = c }
}

// WithToken attaches a bearer token to each request, resolved per call
// so a refreshed access token is picked up automatically.
func WithToken(token func() string) HTTPSinkOption {
	return func(s *HTTPSink) { s.token = token }
}

// NewHTTPSink creates a sink posting to baseURL + "/audit-logs".
func NewHTTPSink(baseURL string, opts ...HTTPSinkOption) *HTTPSink {
	s := &HTTPSink{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Deliver posts the entry. Any non-2xx response is an error; the syncer
// decides what a failure means for the entry's status.
func (s *HTTPSink) Deliver(ctx context.Context, e Entry) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode audit entry: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/audit-logs", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build audit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != nil {
		if tok := s.token(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("deliver audit entry: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("audit sink rejected entry: status %d", resp.StatusCode)
	}
	return nil
}
