// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package stream

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// ErrCancelled is returned by Session.Err after Cancel.
var ErrCancelled = errors.New("stream: session cancelled")

// =============================================================================
// Events
// =============================================================================

// EventKind identifies a session event.
type EventKind int

const (
	// EventChunk delivers one data frame.
	EventChunk EventKind = iota

	// EventDone is the natural end of the stream.
	EventDone

	// EventError reports a transport failure. It is terminal.
	EventError
)

// String returns "chunk", "done" or "error".
func (k EventKind) String() string {
	switch k {
	case EventChunk:
		return "chunk"
	case EventDone:
		return "done"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is one item of a session's event sequence.
type Event struct {
	Kind  EventKind
	Frame Frame
	Err   error
}

// Handler is the callback form of a session consumer.
//
// OnChunk is called for every data frame in order; then exactly one of
// OnDone or OnError, unless the session is cancelled first.
type Handler interface {
	OnChunk(frame Frame)
	OnDone()
	OnError(err error)
}

// HandlerFuncs adapts plain functions to Handler. Nil fields are skipped.
type HandlerFuncs struct {
	Chunk func(Frame)
	Done  func()
	Error func(error)
}

// OnChunk implements Handler.
func (h HandlerFuncs) OnChunk(frame Frame) {
	if h.Chunk != nil {
		h.Chunk(frame)
	}
}

// OnDone implements Handler.
func (h HandlerFuncs) OnDone() {
	if h.Done != nil {
		h.Done()
	}
}

// OnError implements Handler.
func (h HandlerFuncs) OnError(err error) {
	if h.Error != nil {
		h.Error(err)
	}
}

// =============================================================================
// Observer
// =============================================================================

// Observer receives session lifecycle notifications. The observability
// package provides the Prometheus implementation.
type Observer interface {
	SessionOpened()
	FrameDelivered(bytes int)
	SessionClosed(outcome string, duration time.Duration)
}

type nopObserver struct{}

func (nopObserver) SessionOpened()                      {}
func (nopObserver) FrameDelivered(int)                  {}
func (nopObserver) SessionClosed(string, time.Duration) {}

// Session outcomes reported to Observer.SessionClosed.
const (
	OutcomeDone      = "done"
	OutcomeError     = "error"
	OutcomeCancelled = "cancelled"
)

// =============================================================================
// Session
// =============================================================================

// Producer feeds frames into a session.
//
// emit returns false once the session no longer wants frames (it was
// cancelled); the producer should then return promptly. A nil return means
// the stream ended normally, either by closing or by a terminal frame.
type Producer func(ctx context.Context, emit func(Frame) bool) error

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithObserver attaches lifecycle notifications.
func WithObserver(o Observer) SessionOption {
	return func(s *Session) {
		if o != nil {
			s.observer = o
		}
	}
}

// WithLogger sets the session logger.
func WithLogger(l *slog.Logger) SessionOption {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithBuffer sets how many events may queue ahead of the consumer.
func WithBuffer(n int) SessionOption {
	return func(s *Session) {
		if n > 0 {
			s.buffer = n
		}
	}
}

// WithOnRelease registers a hook that runs once when the session's
// resources are released.
func WithOnRelease(fn func()) SessionOption {
	return func(s *Session) {
		if fn != nil {
			s.releaseHooks = append(s.releaseHooks, fn)
		}
	}
}

// Session is one streamed response.
//
// A goroutine started by NewSession runs the Producer and queues events;
// the consumer reads them through Events or Deliver from a single
// goroutine. Sessions share nothing, so cancelling one never affects
// another.
//
// # Lifecycle
//
// Resources (the request context, the response body, observer gauges) are
// released exactly once, on whichever of done, error or cancel comes first.
//
// # Thread Safety
//
// Cancel, Text, Err, ID and Done are safe from any goroutine, including
// from inside the consumer loop. Events must be iterated at most once.
type Session struct {
	id       string
	ctx      context.Context
	cancel   context.CancelFunc
	events   chan Event
	buffer   int
	observer Observer
	logger   *slog.Logger
	started  time.Time

	cancelled atomic.Bool
	finished  atomic.Bool

	mu   sync.Mutex
	text strings.Builder
	err  error

	releaseOnce  sync.Once
	releaseHooks []func()
	released     chan struct{}
}

// NewSession starts a session that runs producer in its own goroutine.
func NewSession(ctx context.Context, producer Producer, opts ...SessionOption) *Session {
	sctx, cancel := context.WithCancel(ctx)
	s := &Session{
		id:       uuid.New().String(),
		ctx:      sctx,
		cancel:   cancel,
		buffer:   64,
		observer: nopObserver{},
		logger:   slog.New(slog.DiscardHandler),
		started:  time.Now(),
		released: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.events = make(chan Event, s.buffer)
	s.observer.SessionOpened()

	go s.pump(producer)
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Text returns the text accumulated from all delivered frames.
func (s *Session) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.text.String()
}

// Err returns the terminal error: nil while running or after a normal end,
// ErrCancelled after Cancel, or the transport error.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Done is closed once the session's resources have been released.
func (s *Session) Done() <-chan struct{} {
	return s.released
}

// Cancel stops the session. No event is delivered after Cancel returns.
// Calling it more than once, or after the session finished, is a no-op.
func (s *Session) Cancel() {
	if !s.cancelled.CompareAndSwap(false, true) {
		return
	}
	if s.finished.Load() {
		// The pump may still be blocked handing over the terminal event.
		s.cancel()
		return
	}
	s.mu.Lock()
	if s.err == nil {
		s.err = ErrCancelled
	}
	s.mu.Unlock()
	s.release(OutcomeCancelled)
}

// Events returns the session's event sequence: zero or more EventChunk
// followed by one EventDone or EventError. The sequence stops early,
// without a terminal event, if the session is cancelled.
//
// Breaking out of the loop cancels the session.
func (s *Session) Events() iter.Seq[Event] {
	return func(yield func(Event) bool) {
		for ev := range s.events {
			if s.cancelled.Load() {
				return
			}
			if !yield(ev) {
				s.Cancel()
				return
			}
			if ev.Kind != EventChunk {
				return
			}
		}
	}
}

// Deliver drives h from the event sequence and returns when the session
// has finished or been cancelled.
func (s *Session) Deliver(h Handler) {
	for ev := range s.Events() {
		switch ev.Kind {
		case EventChunk:
			h.OnChunk(ev.Frame)
		case EventDone:
			h.OnDone()
		case EventError:
			h.OnError(ev.Err)
		}
	}
}

func (s *Session) pump(producer Producer) {
	defer close(s.events)

	index := 0
	emit := func(frame Frame) bool {
		if s.cancelled.Load() {
			return false
		}
		frame.Index = index
		index++

		s.mu.Lock()
		s.text.WriteString(frame.Text)
		s.mu.Unlock()
		s.observer.FrameDelivered(len(frame.Text))

		select {
		case s.events <- Event{Kind: EventChunk, Frame: frame}:
			return true
		case <-s.ctx.Done():
			return false
		}
	}

	err := producer(s.ctx, emit)
	if s.cancelled.Load() {
		return
	}

	s.finished.Store(true)
	terminal := Event{Kind: EventDone}
	outcome := OutcomeDone
	if err != nil {
		terminal = Event{Kind: EventError, Err: err}
		outcome = OutcomeError
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		s.logger.Warn("stream session failed", "session_id", s.id, "error", err)
	}

	select {
	case s.events <- terminal:
	case <-s.ctx.Done():
	}
	s.release(outcome)
}

func (s *Session) release(outcome string) {
	s.releaseOnce.Do(func() {
		s.cancel()
		for _, hook := range s.releaseHooks {
			hook()
		}
		s.observer.SessionClosed(outcome, time.Since(s.started))
		s.logger.Debug("stream session released",
			"session_id", s.id,
			"outcome", outcome,
			"duration_ms", time.Since(s.started).Milliseconds())
		close(s.released)
	})
}
