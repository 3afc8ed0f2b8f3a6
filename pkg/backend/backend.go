// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package backend connects chat turns to the service that writes the
// replies. Every backend streams through a stream.Session, so the pipeline
// never sees which one is in use.
package backend

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/AleutianAI/AleutianChat/pkg/config"
	"github.com/AleutianAI/AleutianChat/pkg/stream"
)

// Message is one prior turn sent as context.
type Message struct {
	Role    string `json:"role" validate:"required,oneof=user assistant system"`
	Content string `json:"content" validate:"required"`
}

// Request is one user turn.
type Request struct {
	Tenant    string    `json:"tenant_id,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
	Message   string    `json:"message"`
	History   []Message `json:"history,omitempty"`
}

// Backend produces replies.
type Backend interface {
	// Name identifies the backend in logs and spans.
	Name() string

	// Stream starts a streamed reply. Only request construction errors
	// are returned; everything after that arrives on the session.
	Stream(ctx context.Context, req Request) (*stream.Session, error)

	// Complete returns the whole reply at once.
	Complete(ctx context.Context, req Request) (string, error)
}

// Option configures a backend.
type Option func(*options)

type options struct {
	observer stream.Observer
	logger   *slog.Logger
	client   *http.Client
}

// WithObserver attaches session lifecycle notifications.
func WithObserver(o stream.Observer) Option {
	return func(opts *options) { opts.observer = o }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(opts *options) { opts.logger = l }
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(opts *options) { opts.client = c }
}

func buildOptions(opts []Option) options {
	o := options{
		logger: slog.New(slog.DiscardHandler),
		client: &http.Client{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.DiscardHandler)
	}
	if o.client == nil {
		o.client = &http.Client{}
	}
	return o
}

// FromConfig builds the backend selected in cfg.
func FromConfig(cfg config.BackendConfig, sc config.StreamConfig, opts ...Option) (Backend, error) {
	switch cfg.Kind {
	case config.BackendHTTP, "":
		return NewHTTP(HTTPConfig{
			StreamURL:   cfg.URL,
			CompleteURL: cfg.CompletionURL(),
			Timeout:     cfg.Timeout,
			Transport: stream.TransportConfig{
				Format:      stream.ParseFormat(sc.Format),
				Charset:     sc.Charset,
				BufferSize:  sc.BufferSize,
				EventBuffer: sc.EventBuffer,
				Headers:     cfg.Headers,
			},
		}, opts...), nil
	case config.BackendOpenAI:
		return NewOpenAI(OpenAIConfig{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.URL,
			Model:       cfg.Model,
			EventBuffer: sc.EventBuffer,
		}, opts...)
	default:
		return nil, fmt.Errorf("unknown backend kind %q", cfg.Kind)
	}
}
