// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianChat/pkg/payload"
	"github.com/AleutianAI/AleutianChat/pkg/pipeline"
	"github.com/AleutianAI/AleutianChat/pkg/textstruct"
)

// Event types written to clients.
const (
	EventProse     = "prose"
	EventReset     = "reset"
	EventPayload   = "payload"
	EventStructure = "structure"
	EventDone      = "done"
	EventError     = "error"
	EventSession   = "session"
)

// StreamEvent is one event sent to a client, over SSE or WebSocket.
type StreamEvent struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	CreatedAt int64  `json:"created_at"`
	TurnID    string `json:"turn_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`

	// Delta is appended prose for "prose" and the full replacement for
	// "reset".
	Delta string `json:"delta,omitempty"`

	Payload   *payload.Payload   `json:"payload,omitempty"`
	Structure textstruct.Content `json:"structure,omitempty"`
	Result    *pipeline.Result   `json:"result,omitempty"`

	// Error is the user-facing message of an "error" event.
	Error string `json:"error,omitempty"`
}

// eventFromUpdate converts a pipeline update into the event sent to the
// client. ID and CreatedAt are set by the writer.
func eventFromUpdate(turnID string, u pipeline.Update) StreamEvent {
	ev := StreamEvent{Type: u.Kind.String(), TurnID: turnID}
	switch u.Kind {
	case pipeline.UpdateProse:
		ev.Delta = u.Delta
		if u.Reset {
			ev.Type = EventReset
		}
	case pipeline.UpdatePayload:
		ev.Payload = u.Payload
	case pipeline.UpdateStructure:
		ev.Structure = u.Structure
	case pipeline.UpdateDone:
		ev.Result = u.Result
	case pipeline.UpdateFailed:
		ev.Result = u.Result
		if u.Result != nil {
			ev.Error = u.Result.Apology
		}
	}
	return ev
}

// stamp fills the event's ID and creation time.
func stamp(ev StreamEvent) StreamEvent {
	ev.ID = uuid.NewString()
	ev.CreatedAt = time.Now().UnixMilli()
	return ev
}

// =============================================================================
// SSE
// =============================================================================

// SSEWriter writes Server-Sent Events to an HTTP response.
//
// # Description
//
// Events are written as "event: <type>\ndata: <json>\n\n" and flushed
// immediately. Keep-alives are SSE comments, which clients ignore.
//
// # Thread Safety
//
// Safe for concurrent use. The heartbeat goroutine and the turn loop share
// one writer.
//
// # Assumptions
//
//   - SetSSEHeaders was called before the first write.
type SSEWriter interface {
	// WriteEvent stamps and writes one event.
	WriteEvent(event StreamEvent) error

	// WriteKeepAlive writes a comment line to keep proxies from closing an
	// idle connection.
	WriteKeepAlive() error
}

type sseWriter struct {
	writer  http.ResponseWriter
	flusher http.Flusher
	mu      sync.Mutex
}

// NewSSEWriter wraps w, which must support http.Flusher.
func NewSSEWriter(w http.ResponseWriter) (SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("ResponseWriter does not support http.Flusher")
	}
	return &sseWriter{writer: w, flusher: flusher}, nil
}

func (w *sseWriter) WriteEvent(event StreamEvent) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	event = stamp(event)
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, err := fmt.Fprintf(w.writer, "event: %s\ndata: %s\n\n", event.Type, data); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	w.flusher.Flush()
	return nil
}

func (w *sseWriter) WriteKeepAlive() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := fmt.Fprint(w.writer, ": ping\n\n"); err != nil {
		return fmt.Errorf("write keepalive: %w", err)
	}
	w.flusher.Flush()
	return nil
}

// SetSSEHeaders sets the headers for an event stream response.
func SetSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

var _ SSEWriter = (*sseWriter)(nil)
