// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/AleutianAI/AleutianChat/pkg/stream"
)

// HTTPConfig configures an HTTP chat backend.
type HTTPConfig struct {
	// StreamURL receives streamed turns (SSE or line-delimited).
	StreamURL string

	// CompleteURL receives non-streamed turns and answers
	// {"response": "..."}. Defaults to StreamURL.
	CompleteURL string

	// Timeout bounds Complete calls. Streams are bounded by their context.
	Timeout time.Duration

	Transport stream.TransportConfig
}

// HTTP is a chat backend reached over HTTP.
type HTTP struct {
	cfg       HTTPConfig
	transport *stream.Transport
	client    *http.Client
	opts      options
}

// NewHTTP creates an HTTP backend.
func NewHTTP(cfg HTTPConfig, opts ...Option) *HTTP {
	o := buildOptions(opts)
	if cfg.CompleteURL == "" {
		cfg.CompleteURL = cfg.StreamURL
	}
	topts := []stream.Option{
		stream.WithHTTPClient(o.client),
		stream.WithTransportLogger(o.logger),
	}
	if o.observer != nil {
		topts = append(topts, stream.WithTransportObserver(o.observer))
	}
	return &HTTP{
		cfg:       cfg,
		transport: stream.NewTransport(cfg.Transport, topts...),
		client:    o.client,
		opts:      o,
	}
}

// Name implements Backend.
func (h *HTTP) Name() string { return "http" }

// Stream implements Backend.
func (h *HTTP) Stream(ctx context.Context, req Request) (*stream.Session, error) {
	return h.transport.Open(ctx, stream.Request{URL: h.cfg.StreamURL, Body: req})
}

// completeResponse is the non-streaming reply body.
type completeResponse struct {
	Response string `json:"response"`
}

// Complete implements Backend. Failures are *stream.TransportError, the
// same as for streamed turns.
func (h *HTTP) Complete(ctx context.Context, req Request) (string, error) {
	if h.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.cfg.Timeout)
		defer cancel()
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("encode request body: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.cfg.CompleteURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	for k, v := range h.cfg.Transport.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := h.client.Do(httpReq)
	if err != nil {
		return "", &stream.TransportError{Op: "request", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", &stream.TransportError{
			Op:         "status",
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(snippet)),
		}
	}

	var out completeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", &stream.TransportError{Op: "read", Err: fmt.Errorf("decode response: %w", err)}
	}
	h.opts.logger.Debug("completion received", "bytes", len(out.Response))
	return out.Response, nil
}
