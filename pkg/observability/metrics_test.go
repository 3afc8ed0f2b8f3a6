// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package observability

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"github.com/AleutianAI/AleutianChat/pkg/render"
	"github.com/AleutianAI/AleutianChat/pkg/stream"
)

// newTestMetrics registers metrics on an isolated registry.
func newTestMetrics(t *testing.T) (*Metrics, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return NewMetrics(reg), reg
}

// ============================================================================
// stream.Observer
// ============================================================================

func TestMetrics_SessionLifecycle(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.SessionOpened()
	m.SessionOpened()
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ActiveSessions))

	m.FrameDelivered(5)
	m.FrameDelivered(7)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.FramesTotal))
	assert.Equal(t, 12.0, testutil.ToFloat64(m.FrameBytesTotal))

	m.SessionClosed(stream.OutcomeDone, time.Second)
	m.SessionClosed(stream.OutcomeCancelled, time.Second)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ActiveSessions))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionsTotal.WithLabelValues("done")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionsTotal.WithLabelValues("cancelled")))
}

func TestMetrics_WithSession(t *testing.T) {
	m, _ := newTestMetrics(t)

	s := stream.NewSession(context.Background(), func(ctx context.Context, emit func(stream.Frame) bool) error {
		emit(stream.Frame{Text: "hello"})
		return nil
	}, stream.WithObserver(m))
	for range s.Events() {
	}
	<-s.Done()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.FramesTotal))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.FrameBytesTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionsTotal.WithLabelValues("done")))
}

// ============================================================================
// render.Observer
// ============================================================================

func TestMetrics_RenderObserver(t *testing.T) {
	m, _ := newTestMetrics(t)
	reg := render.NewBuilder().
		Register("", "broken", render.Func("broken", func(context.Context, render.Element) (render.View, error) {
			panic("no")
		})).
		Build()
	d := render.NewDispatcher(reg, render.WithObserver(m))

	d.Render(context.Background(), render.Element{ContentType: "broken", Data: "x"})
	d.Render(context.Background(), render.Element{ContentType: "other", Data: "y"})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RenderLookupsTotal.WithLabelValues("base")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RenderLookupsTotal.WithLabelValues("generic")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RenderFallbacksTotal.WithLabelValues("broken")))
}

// ============================================================================
// Helpers
// ============================================================================

func TestMetrics_TurnHelpers(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordTurn("", StatusSuccess, 2*time.Second)
	m.RecordTurn("acme", StatusError, time.Second)
	m.RecordPayload("opening_hours")
	m.RecordMalformedPayload()
	m.RecordShape("numbered")
	m.RecordLinks("web", 3)
	m.RecordLinks("email", 0)
	m.RecordFirstChunk(300 * time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.TurnsTotal.WithLabelValues("default", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TurnsTotal.WithLabelValues("acme", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PayloadsTotal.WithLabelValues("opening_hours")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MalformedPayloadsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ClassificationsTotal.WithLabelValues("numbered")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.LinksTotal.WithLabelValues("web")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.LinksTotal))
	assert.Equal(t, 1, testutil.CollectAndCount(m.TimeToFirstChunkSeconds))
}

func TestMetrics_GatewayHelpers(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordRequest("chat_stream", 200)
	m.RecordRequest("chat_stream", 429)
	m.RecordRequest("chat", 502)
	m.RecordRateLimited("")
	m.RecordKeepAlive()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("chat_stream", "2xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("chat_stream", "4xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("chat", "5xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RateLimitedTotal.WithLabelValues("default")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.KeepAlivesTotal))
}

func TestMetrics_Names(t *testing.T) {
	m, reg := newTestMetrics(t)
	m.RecordKeepAlive()

	err := testutil.GatherAndCompare(reg, strings.NewReader(`
# HELP aleutian_chat_keepalives_total Total SSE keep-alive comments sent
# TYPE aleutian_chat_keepalives_total counter
aleutian_chat_keepalives_total 1
`), "aleutian_chat_keepalives_total")
	assert.NoError(t, err)
}

// ============================================================================
// Tracing
// ============================================================================

func TestInitTracing_Stdout(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := InitTracing(context.Background(), TracingConfig{
		ServiceName: "chat-test",
		Exporter:    ExporterStdout,
		Writer:      &buf,
	})
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "turn")
	span.End()

	require.NoError(t, shutdown(context.Background()))
	assert.Contains(t, buf.String(), `"Name":"turn"`)
}

func TestInitTracing_NoneAndUnknown(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), TracingConfig{Exporter: ExporterNone})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))

	_, err = InitTracing(context.Background(), TracingConfig{Exporter: "zipkin"})
	assert.ErrorIs(t, err, ErrUnknownExporter)
}
