// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianChat/pkg/config"
	"github.com/AleutianAI/AleutianChat/pkg/stream"
)

// collect drains a session into its text and terminal error.
func collect(t *testing.T, s *stream.Session) (string, error) {
	t.Helper()
	var b strings.Builder
	var err error
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range s.Events() {
			switch ev.Kind {
			case stream.EventChunk:
				b.WriteString(ev.Frame.Text)
			case stream.EventError:
				err = ev.Err
			}
		}
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("session did not finish")
	}
	return b.String(), err
}

// ============================================================================
// HTTP
// ============================================================================

func TestHTTP_Stream(t *testing.T) {
	var got Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: Hello\n\ndata:  world\n\ndata: [DONE]\n\n")
	}))
	defer srv.Close()

	b := NewHTTP(HTTPConfig{StreamURL: srv.URL})
	s, err := b.Stream(context.Background(), Request{Tenant: "acme", Message: "hi"})
	require.NoError(t, err)

	text, err := collect(t, s)
	require.NoError(t, err)
	assert.Equal(t, "Hello world", text)
	assert.Equal(t, "acme", got.Tenant)
	assert.Equal(t, "hi", got.Message)
	assert.Equal(t, "http", b.Name())
}

func TestHTTP_StreamStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	s, err := NewHTTP(HTTPConfig{StreamURL: srv.URL}).Stream(context.Background(), Request{Message: "hi"})
	require.NoError(t, err)

	_, err = collect(t, s)
	var te *stream.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.StatusServiceUnavailable, te.StatusCode)
}

func TestHTTP_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/complete", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"response":"1. **Step**: do it"}`)
	}))
	defer srv.Close()

	b := NewHTTP(HTTPConfig{
		StreamURL:   srv.URL + "/stream",
		CompleteURL: srv.URL + "/complete",
		Transport:   stream.TransportConfig{Headers: map[string]string{"X-Api-Key": "secret"}},
	})
	out, err := b.Complete(context.Background(), Request{Message: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "1. **Step**: do it", out)
}

func TestHTTP_CompleteErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		op      string
	}{
		{
			name:    "status",
			handler: func(w http.ResponseWriter, r *http.Request) { http.Error(w, "nope", http.StatusBadGateway) },
			op:      "status",
		},
		{
			name:    "bad body",
			handler: func(w http.ResponseWriter, r *http.Request) { fmt.Fprint(w, "not json") },
			op:      "read",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			_, err := NewHTTP(HTTPConfig{StreamURL: srv.URL}).Complete(context.Background(), Request{Message: "x"})
			var te *stream.TransportError
			require.ErrorAs(t, err, &te)
			assert.Equal(t, tt.op, te.Op)
		})
	}
}

func TestHTTP_CompleteTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	_, err := NewHTTP(HTTPConfig{StreamURL: srv.URL, Timeout: 50 * time.Millisecond}).
		Complete(context.Background(), Request{Message: "x"})
	assert.True(t, stream.IsTransportError(err))
}

// ============================================================================
// OpenAI
// ============================================================================

func openAIServer(t *testing.T, deltas []string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var req map[string]any
		assert.NoError(t, json.Unmarshal(body, &req))

		if req["stream"] != true {
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprintf(w, `{"id":"c1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":%q},"finish_reason":"stop"}]}`,
				strings.Join(deltas, ""))
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, d := range deltas {
			fmt.Fprintf(w, "data: {\"id\":\"c1\",\"object\":\"chat.completion.chunk\",\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", d)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
}

func TestOpenAI_Stream(t *testing.T) {
	srv := openAIServer(t, []string{"Open ", "9-5 ", "daily"})
	defer srv.Close()

	b, err := NewOpenAI(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL + "/v1", Model: "test-model"})
	require.NoError(t, err)

	s, err := b.Stream(context.Background(), Request{Message: "hours?"})
	require.NoError(t, err)
	text, err := collect(t, s)
	require.NoError(t, err)
	assert.Equal(t, "Open 9-5 daily", text)
}

func TestOpenAI_Complete(t *testing.T) {
	srv := openAIServer(t, []string{"all ", "at once"})
	defer srv.Close()

	b, err := NewOpenAI(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)

	out, err := b.Complete(context.Background(), Request{Message: "x", History: []Message{{Role: "user", Content: "earlier"}}})
	require.NoError(t, err)
	assert.Equal(t, "all at once", out)
}

func TestOpenAI_StatusBecomesTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"message":"slow down","type":"rate_limit"}}`)
	}))
	defer srv.Close()

	b, err := NewOpenAI(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)

	s, err := b.Stream(context.Background(), Request{Message: "x"})
	require.NoError(t, err)
	_, err = collect(t, s)

	var te *stream.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.StatusTooManyRequests, te.StatusCode)
}

func TestOpenAI_RequiresKey(t *testing.T) {
	_, err := NewOpenAI(OpenAIConfig{})
	assert.Error(t, err)
}

func TestTransportError_PassesCancellation(t *testing.T) {
	assert.True(t, errors.Is(transportError(context.Canceled), context.Canceled))
	assert.False(t, stream.IsTransportError(transportError(context.Canceled)))
}

// ============================================================================
// FromConfig
// ============================================================================

func TestFromConfig(t *testing.T) {
	b, err := FromConfig(config.Default().Backend, config.Default().Stream)
	require.NoError(t, err)
	assert.Equal(t, "http", b.Name())

	_, err = FromConfig(config.BackendConfig{Kind: config.BackendOpenAI}, config.StreamConfig{})
	assert.Error(t, err)

	b, err = FromConfig(config.BackendConfig{Kind: config.BackendOpenAI, APIKey: "k", Model: "m"}, config.StreamConfig{})
	require.NoError(t, err)
	assert.Equal(t, "openai", b.Name())

	_, err = FromConfig(config.BackendConfig{Kind: "carrier-pigeon"}, config.StreamConfig{})
	assert.Error(t, err)
}
