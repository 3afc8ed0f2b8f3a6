// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability provides metrics and tracing for chat turns.
//
// # Description
//
// Prometheus metrics cover the whole response pipeline:
//   - Stream sessions (opened, closed by outcome, frames, bytes, active)
//   - Payload detection (payloads by kind, malformed candidates)
//   - Classification (shapes) and link extraction (links by kind)
//   - Rendering (lookup level, fallbacks)
//   - Turns (duration, time to first chunk) and gateway requests
//
// Metrics implements stream.Observer and render.Observer, so sessions and
// the dispatcher report without knowing about Prometheus.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/AleutianAI/AleutianChat/pkg/render"
	"github.com/AleutianAI/AleutianChat/pkg/stream"
)

// =============================================================================
// Metric Definitions
// =============================================================================

// Namespace for all metrics
const metricsNamespace = "aleutian"

// Subsystem for chat pipeline metrics
const chatSubsystem = "chat"

// Metrics holds all Prometheus metrics for the chat pipeline.
//
// # Description
//
// Create once at startup with NewMetrics. Tests pass their own registry.
//
// # Thread Safety
//
// All operations are thread-safe.
type Metrics struct {
	// SessionsTotal counts sessions by outcome.
	// Labels: outcome (done, error, cancelled)
	SessionsTotal *prometheus.CounterVec

	// ActiveSessions tracks currently open sessions.
	ActiveSessions prometheus.Gauge

	// SessionDurationSeconds measures session lifetime.
	// Labels: outcome
	SessionDurationSeconds *prometheus.HistogramVec

	// FramesTotal counts delivered frames.
	FramesTotal prometheus.Counter

	// FrameBytesTotal counts delivered text bytes.
	FrameBytesTotal prometheus.Counter

	// PayloadsTotal counts detected payload components.
	// Labels: kind (opening_hours, contact_card, ..., unknown)
	PayloadsTotal *prometheus.CounterVec

	// MalformedPayloadsTotal counts JSON-shaped messages that did not parse.
	MalformedPayloadsTotal prometheus.Counter

	// ClassificationsTotal counts final message shapes.
	// Labels: shape (simple, numbered, bulleted)
	ClassificationsTotal *prometheus.CounterVec

	// LinksTotal counts extracted links.
	// Labels: kind (web, email)
	LinksTotal *prometheus.CounterVec

	// RenderLookupsTotal counts renderer lookups by the level that matched.
	// Labels: match (exact, tenant_default, generic)
	RenderLookupsTotal *prometheus.CounterVec

	// RenderFallbacksTotal counts elements shown by the fallback renderer.
	// Labels: content_type
	RenderFallbacksTotal *prometheus.CounterVec

	// TurnsTotal counts finished turns.
	// Labels: tenant, status (success, error, cancelled)
	TurnsTotal *prometheus.CounterVec

	// TurnDurationSeconds measures turns from request to done.
	// Labels: status
	TurnDurationSeconds *prometheus.HistogramVec

	// TimeToFirstChunkSeconds measures latency to the first chunk.
	TimeToFirstChunkSeconds prometheus.Histogram

	// RequestsTotal counts gateway requests.
	// Labels: endpoint, status (HTTP status code)
	RequestsTotal *prometheus.CounterVec

	// RateLimitedTotal counts requests rejected by the rate limiter.
	// Labels: tenant
	RateLimitedTotal *prometheus.CounterVec

	// KeepAlivesTotal counts SSE keep-alive comments sent.
	KeepAlivesTotal prometheus.Counter
}

// NewMetrics creates and registers all metrics.
//
// # Description
//
// Metrics are registered with reg, or with the default Prometheus registry
// when reg is nil.
//
// # Inputs
//
//   - reg: registerer, may be nil.
//
// # Outputs
//
//   - *Metrics: ready to use.
//
// # Limitations
//
//   - Panics if the same registry is used twice (duplicate registration).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		SessionsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "sessions_total",
				Help:      "Total stream sessions by outcome",
			},
			[]string{"outcome"},
		),

		ActiveSessions: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "active_sessions",
				Help:      "Number of currently open stream sessions",
			},
		),

		SessionDurationSeconds: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "session_duration_seconds",
				Help:      "Stream session lifetime in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
			},
			[]string{"outcome"},
		),

		FramesTotal: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "frames_total",
				Help:      "Total frames delivered to consumers",
			},
		),

		FrameBytesTotal: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "frame_bytes_total",
				Help:      "Total text bytes delivered in frames",
			},
		),

		PayloadsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "payload_components_total",
				Help:      "Total payload components detected by kind",
			},
			[]string{"kind"},
		),

		MalformedPayloadsTotal: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "malformed_payloads_total",
				Help:      "Total messages shaped like a payload that failed to parse",
			},
		),

		ClassificationsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "classifications_total",
				Help:      "Total final messages by structure shape",
			},
			[]string{"shape"},
		),

		LinksTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "links_total",
				Help:      "Total links extracted by kind",
			},
			[]string{"kind"},
		),

		RenderLookupsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "render_lookups_total",
				Help:      "Total renderer lookups by matched level",
			},
			[]string{"match"},
		),

		RenderFallbacksTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "render_fallbacks_total",
				Help:      "Total elements rendered by the fallback after a renderer failed",
			},
			[]string{"content_type"},
		),

		TurnsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "turns_total",
				Help:      "Total chat turns by tenant and status",
			},
			[]string{"tenant", "status"},
		),

		TurnDurationSeconds: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "turn_duration_seconds",
				Help:      "Chat turn duration in seconds",
				Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"status"},
		),

		TimeToFirstChunkSeconds: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "time_to_first_chunk_seconds",
				Help:      "Time from turn start to the first chunk in seconds",
				Buckets:   []float64{0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
			},
		),

		RequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "requests_total",
				Help:      "Total gateway requests by endpoint and status code",
			},
			[]string{"endpoint", "status"},
		),

		RateLimitedTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "rate_limited_total",
				Help:      "Total requests rejected by the per-tenant rate limiter",
			},
			[]string{"tenant"},
		),

		KeepAlivesTotal: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "keepalives_total",
				Help:      "Total SSE keep-alive comments sent",
			},
		),
	}
}

// =============================================================================
// Turn Status
// =============================================================================

// Status labels a finished turn.
type Status string

const (
	StatusSuccess   Status = "success"
	StatusError     Status = "error"
	StatusCancelled Status = "cancelled"
)

// =============================================================================
// stream.Observer
// =============================================================================

var _ stream.Observer = (*Metrics)(nil)

// SessionOpened implements stream.Observer.
func (m *Metrics) SessionOpened() {
	m.ActiveSessions.Inc()
}

// FrameDelivered implements stream.Observer.
func (m *Metrics) FrameDelivered(bytes int) {
	m.FramesTotal.Inc()
	m.FrameBytesTotal.Add(float64(bytes))
}

// SessionClosed implements stream.Observer.
func (m *Metrics) SessionClosed(outcome string, d time.Duration) {
	m.ActiveSessions.Dec()
	m.SessionsTotal.WithLabelValues(outcome).Inc()
	m.SessionDurationSeconds.WithLabelValues(outcome).Observe(d.Seconds())
}

// =============================================================================
// render.Observer
// =============================================================================

var _ render.Observer = (*Metrics)(nil)

// Resolved implements render.Observer.
func (m *Metrics) Resolved(match render.Match) {
	m.RenderLookupsTotal.WithLabelValues(match.String()).Inc()
}

// Fallback implements render.Observer.
func (m *Metrics) Fallback(contentType string) {
	m.RenderFallbacksTotal.WithLabelValues(contentType).Inc()
}

// =============================================================================
// Pipeline Helpers
// =============================================================================

// RecordPayload records one detected component by content type.
func (m *Metrics) RecordPayload(contentType string) {
	m.PayloadsTotal.WithLabelValues(contentType).Inc()
}

// RecordMalformedPayload records a payload-shaped message that failed to
// parse.
func (m *Metrics) RecordMalformedPayload() {
	m.MalformedPayloadsTotal.Inc()
}

// RecordShape records the final structure shape of a message.
func (m *Metrics) RecordShape(shape string) {
	m.ClassificationsTotal.WithLabelValues(shape).Inc()
}

// RecordLinks records n extracted links of a kind.
func (m *Metrics) RecordLinks(kind string, n int) {
	if n > 0 {
		m.LinksTotal.WithLabelValues(kind).Add(float64(n))
	}
}

// RecordTurn records a finished turn.
//
// # Inputs
//
//   - tenant: tenant ID, "" is recorded as "default".
//   - status: how the turn ended.
//   - d: turn duration.
func (m *Metrics) RecordTurn(tenant string, status Status, d time.Duration) {
	if tenant == "" {
		tenant = "default"
	}
	m.TurnsTotal.WithLabelValues(tenant, string(status)).Inc()
	m.TurnDurationSeconds.WithLabelValues(string(status)).Observe(d.Seconds())
}

// RecordFirstChunk records the time to the first chunk.
func (m *Metrics) RecordFirstChunk(d time.Duration) {
	m.TimeToFirstChunkSeconds.Observe(d.Seconds())
}

// =============================================================================
// Gateway Helpers
// =============================================================================

// RecordRequest records a gateway request.
func (m *Metrics) RecordRequest(endpoint string, status int) {
	m.RequestsTotal.WithLabelValues(endpoint, statusLabel(status)).Inc()
}

// RecordRateLimited records a request rejected by the rate limiter.
func (m *Metrics) RecordRateLimited(tenant string) {
	if tenant == "" {
		tenant = "default"
	}
	m.RateLimitedTotal.WithLabelValues(tenant).Inc()
}

// RecordKeepAlive increments the keep-alive counter.
func (m *Metrics) RecordKeepAlive() {
	m.KeepAlivesTotal.Inc()
}

func statusLabel(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
