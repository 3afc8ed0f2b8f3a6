// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package stream delivers a completion backend's streamed response as
// ordered frames.
//
// A Transport opens an HTTP request and returns a Session. The session
// decodes response bytes (holding back split multi-byte sequences), splits
// the text into newline-delimited frames, interprets each frame (SSE
// fields, JSON envelopes, plain text) and yields the data frames in order,
// followed by exactly one terminal event.
//
// Single Responsibility:
//
//	This package only moves text. It does not look at message content;
//	payload detection and classification happen downstream.
//
// Example:
//
//	transport := stream.NewTransport(stream.TransportConfig{})
//	session, err := transport.Open(ctx, stream.Request{URL: url, Body: body})
//	if err != nil {
//	    return err
//	}
//	for ev := range session.Events() {
//	    switch ev.Kind {
//	    case stream.EventChunk:
//	        fmt.Print(ev.Frame.Text)
//	    case stream.EventError:
//	        return ev.Err
//	    }
//	}
package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// =============================================================================
// Errors
// =============================================================================

// TransportError reports a failure to obtain or read the streamed
// response. It is the only pipeline error surfaced to the user.
type TransportError struct {
	// Op is the failing step: "request", "status", "read", "decode" or
	// "backend" for in-band error frames.
	Op string

	// StatusCode is the HTTP status for Op "status".
	StatusCode int

	// Message is a short server-provided detail, if any.
	Message string

	// Err is the underlying error.
	Err error
}

// Error implements error.
func (e *TransportError) Error() string {
	var b strings.Builder
	b.WriteString("stream ")
	b.WriteString(e.Op)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, ": http %d", e.StatusCode)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTransportError reports whether err is or wraps a *TransportError.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// =============================================================================
// Frame Reading
// =============================================================================

// ReadOptions controls ReadFrames.
type ReadOptions struct {
	// Format selects the line grammar. FormatAuto is resolved from
	// ContentType.
	Format Format

	// ContentType is the response Content-Type, used for the charset and
	// for FormatAuto.
	ContentType string

	// Charset overrides the charset from ContentType.
	Charset string

	// BufferSize is the read size in bytes. Default: 4096.
	BufferSize int
}

// ReadFrames reads r to completion, calling emit for every data frame.
//
// It returns nil when r ends or a terminal frame arrives; lines after a
// terminal frame are not read. An in-band error frame returns a
// *TransportError with Op "backend". If emit returns false, ReadFrames
// stops and returns nil.
func ReadFrames(ctx context.Context, r io.Reader, opts ReadOptions, emit func(Frame) bool) error {
	dec := NewDecoderForContentType(opts.ContentType)
	if opts.Charset != "" {
		d, err := NewDecoderForCharset(opts.Charset)
		if err != nil {
			return &TransportError{Op: "decode", Err: err}
		}
		dec = d
	}
	size := opts.BufferSize
	if size <= 0 {
		size = 4096
	}

	parser := NewFrameParser(ResolveFormat(opts.Format, opts.ContentType))
	framer := &LineFramer{}

	// handle returns true when reading must stop.
	handle := func(line string, last bool) (bool, error) {
		frame, kind := parser.ParseLine(line, last)
		switch kind {
		case FrameData:
			return !emit(frame), nil
		case FrameTerminal:
			return true, nil
		case FrameError:
			return true, &TransportError{Op: "backend", Message: frame.Err}
		default:
			return false, nil
		}
	}
	push := func(text string) (bool, error) {
		for _, line := range framer.Push(text) {
			if stop, err := handle(line, false); stop || err != nil {
				return true, err
			}
		}
		return false, nil
	}

	buf := make([]byte, size)
	for {
		n, readErr := r.Read(buf)
		if n > 0 {
			text, err := dec.Decode(buf[:n])
			if err != nil {
				return &TransportError{Op: "decode", Err: err}
			}
			if stop, err := push(text); stop || err != nil {
				return err
			}
		}
		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return &TransportError{Op: "read", Err: ctxErr}
			}
			return &TransportError{Op: "read", Err: readErr}
		}
	}

	tail, err := dec.Flush()
	if err != nil {
		return &TransportError{Op: "decode", Err: err}
	}
	if stop, err := push(tail); stop || err != nil {
		return err
	}
	if line, ok := framer.Flush(); ok {
		if _, err := handle(line, true); err != nil {
			return err
		}
	}
	return nil
}

// ReaderProducer returns a Producer that streams frames from r.
func ReaderProducer(r io.Reader, opts ReadOptions) Producer {
	return func(ctx context.Context, emit func(Frame) bool) error {
		return ReadFrames(ctx, r, opts, emit)
	}
}

// =============================================================================
// HTTP Transport
// =============================================================================

// TransportConfig configures a Transport.
type TransportConfig struct {
	// Format forces a line grammar. Default: FormatAuto.
	Format Format

	// Charset overrides the response charset.
	Charset string

	// BufferSize is the body read size in bytes. Default: 4096.
	BufferSize int

	// EventBuffer is how many events may queue ahead of the consumer.
	// Default: 64.
	EventBuffer int

	// Headers are added to every request.
	Headers map[string]string
}

// Request describes one streamed completion request.
type Request struct {
	// Method defaults to POST.
	Method string

	// URL is the backend endpoint.
	URL string

	// Body is sent as JSON unless it is already []byte or io.Reader.
	Body any

	// Header is merged over TransportConfig.Headers.
	Header http.Header
}

// Option configures a Transport.
type Option func(*Transport)

// WithHTTPClient sets the HTTP client. Streaming requests must not use a
// client-wide Timeout; use the context instead.
func WithHTTPClient(c *http.Client) Option {
	return func(t *Transport) {
		if c != nil {
			t.client = c
		}
	}
}

// WithTransportObserver sets the Observer given to every session.
func WithTransportObserver(o Observer) Option {
	return func(t *Transport) {
		t.observer = o
	}
}

// WithTransportLogger sets the logger given to every session.
func WithTransportLogger(l *slog.Logger) Option {
	return func(t *Transport) {
		if l != nil {
			t.logger = l
		}
	}
}

// Transport opens streamed HTTP requests. It is safe for concurrent use;
// each Open returns an independent Session.
type Transport struct {
	cfg      TransportConfig
	client   *http.Client
	observer Observer
	logger   *slog.Logger
}

// NewTransport creates a Transport.
func NewTransport(cfg TransportConfig, opts ...Option) *Transport {
	t := &Transport{
		cfg:    cfg,
		client: &http.Client{},
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Open starts the request and returns its session.
//
// Open itself only fails when the request cannot be built. Connection
// failures and non-2xx statuses arrive as the session's EventError.
func (t *Transport) Open(ctx context.Context, req Request) (*Session, error) {
	method := req.Method
	if method == "" {
		method = http.MethodPost
	}
	body, err := encodeBody(req.Body)
	if err != nil {
		return nil, fmt.Errorf("encode request body: %w", err)
	}
	// Validate the request before starting a session.
	if _, err := http.NewRequest(method, req.URL, nil); err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	producer := func(ctx context.Context, emit func(Frame) bool) error {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, reader)
		if err != nil {
			return &TransportError{Op: "request", Err: err}
		}
		if body != nil {
			httpReq.Header.Set("Content-Type", "application/json")
		}
		httpReq.Header.Set("Accept", "text/event-stream, application/x-ndjson, text/plain")
		for k, v := range t.cfg.Headers {
			httpReq.Header.Set(k, v)
		}
		for k, vs := range req.Header {
			httpReq.Header.Del(k)
			for _, v := range vs {
				httpReq.Header.Add(k, v)
			}
		}

		resp, err := t.client.Do(httpReq)
		if err != nil {
			return &TransportError{Op: "request", Err: err}
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return &TransportError{
				Op:         "status",
				StatusCode: resp.StatusCode,
				Message:    strings.TrimSpace(string(snippet)),
			}
		}

		return ReadFrames(ctx, resp.Body, ReadOptions{
			Format:      t.cfg.Format,
			ContentType: resp.Header.Get("Content-Type"),
			Charset:     t.cfg.Charset,
			BufferSize:  t.cfg.BufferSize,
		}, emit)
	}

	return NewSession(ctx, producer,
		WithObserver(t.observer),
		WithLogger(t.logger),
		WithBuffer(t.cfg.EventBuffer),
	), nil
}

func encodeBody(body any) ([]byte, error) {
	switch v := body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	case io.Reader:
		return io.ReadAll(v)
	default:
		return json.Marshal(v)
	}
}
