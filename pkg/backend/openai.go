// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package backend

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sashabaranov/go-openai"

	"github.com/AleutianAI/AleutianChat/pkg/stream"
)

const defaultSystemPrompt = "You are a helpful assistant."

// OpenAIConfig configures the OpenAI-compatible backend.
type OpenAIConfig struct {
	APIKey string

	// BaseURL overrides the API base, e.g. a local OpenAI-compatible
	// server. Empty uses the public API.
	BaseURL string

	Model        string
	SystemPrompt string
	EventBuffer  int
}

// OpenAI streams replies from an OpenAI-compatible chat completion API.
type OpenAI struct {
	client *openai.Client
	cfg    OpenAIConfig
	opts   options
}

// NewOpenAI creates an OpenAI backend. The API key is required.
func NewOpenAI(cfg OpenAIConfig, opts ...Option) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("OPENAI_API_KEY is not set")
	}
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = defaultSystemPrompt
	}
	o := buildOptions(opts)

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	clientCfg.HTTPClient = o.client

	o.logger.Info("Initializing OpenAI backend", "model", cfg.Model)
	return &OpenAI{
		client: openai.NewClientWithConfig(clientCfg),
		cfg:    cfg,
		opts:   o,
	}, nil
}

// Name implements Backend.
func (b *OpenAI) Name() string { return "openai" }

func (b *OpenAI) request(req Request, streamed bool) openai.ChatCompletionRequest {
	msgs := make([]openai.ChatCompletionMessage, 0, len(req.History)+2)
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: b.cfg.SystemPrompt})
	for _, m := range req.History {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Message})
	return openai.ChatCompletionRequest{
		Model:    b.cfg.Model,
		Messages: msgs,
		Stream:   streamed,
		User:     req.Tenant,
	}
}

// Stream implements Backend. Each content delta becomes one frame.
func (b *OpenAI) Stream(ctx context.Context, req Request) (*stream.Session, error) {
	ccr := b.request(req, true)

	producer := func(ctx context.Context, emit func(stream.Frame) bool) error {
		s, err := b.client.CreateChatCompletionStream(ctx, ccr)
		if err != nil {
			return transportError(err)
		}
		defer s.Close()

		for {
			resp, err := s.Recv()
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return transportError(err)
			}
			if len(resp.Choices) == 0 {
				continue
			}
			delta := resp.Choices[0].Delta.Content
			if delta == "" {
				continue
			}
			if !emit(stream.Frame{Text: delta}) {
				return nil
			}
		}
	}

	sopts := []stream.SessionOption{
		stream.WithLogger(b.opts.logger),
		stream.WithBuffer(b.cfg.EventBuffer),
	}
	if b.opts.observer != nil {
		sopts = append(sopts, stream.WithObserver(b.opts.observer))
	}
	return stream.NewSession(ctx, producer, sopts...), nil
}

// Complete implements Backend.
func (b *OpenAI) Complete(ctx context.Context, req Request) (string, error) {
	resp, err := b.client.CreateChatCompletion(ctx, b.request(req, false))
	if err != nil {
		b.opts.logger.Error("OpenAI API call failed", "error", err)
		return "", transportError(err)
	}
	if len(resp.Choices) == 0 {
		return "", &stream.TransportError{Op: "read", Message: "no choices returned"}
	}
	return resp.Choices[0].Message.Content, nil
}

// transportError maps client errors onto *stream.TransportError so the
// pipeline treats every backend alike.
func transportError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &stream.TransportError{Op: "status", StatusCode: apiErr.HTTPStatusCode, Message: apiErr.Message, Err: err}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &stream.TransportError{Op: "status", StatusCode: reqErr.HTTPStatusCode, Err: err}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &stream.TransportError{Op: "request", Err: fmt.Errorf("openai: %w", err)}
}
