// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package extensions

import (
	"context"
	"log/slog"
	"time"
)

// Audit outcomes.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
	OutcomeRefused   = "refused"
)

// AuditEvent records what happened to one turn.
type AuditEvent struct {
	Timestamp time.Time
	Subject   string
	Tenant    string
	SessionID string
	TurnID    string
	Endpoint  string

	// Outcome is one of the Outcome constants.
	Outcome string

	// Reason explains a refusal or failure. Never the message text.
	Reason string

	// Redactions counts policy matches removed from the message.
	Redactions int
}

// AuditLogger records turn outcomes.
type AuditLogger interface {
	Log(ctx context.Context, event AuditEvent) error
}

// NopAuditLogger discards events.
type NopAuditLogger struct{}

// Log implements AuditLogger.
func (l *NopAuditLogger) Log(_ context.Context, _ AuditEvent) error {
	return nil
}

// SlogAuditLogger writes events as structured log records.
type SlogAuditLogger struct {
	logger *slog.Logger
}

// NewSlogAuditLogger writes audit records to logger under the "audit"
// component.
func NewSlogAuditLogger(logger *slog.Logger) *SlogAuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogAuditLogger{logger: logger.With("component", "audit")}
}

// Log implements AuditLogger.
func (l *SlogAuditLogger) Log(ctx context.Context, e AuditEvent) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	attrs := []slog.Attr{
		slog.Time("at", e.Timestamp.UTC()),
		slog.String("subject", e.Subject),
		slog.String("tenant", e.Tenant),
		slog.String("session_id", e.SessionID),
		slog.String("endpoint", e.Endpoint),
		slog.String("outcome", e.Outcome),
	}
	if e.TurnID != "" {
		attrs = append(attrs, slog.String("turn_id", e.TurnID))
	}
	if e.Reason != "" {
		attrs = append(attrs, slog.String("reason", e.Reason))
	}
	if e.Redactions > 0 {
		attrs = append(attrs, slog.Int("redactions", e.Redactions))
	}
	l.logger.LogAttrs(ctx, slog.LevelInfo, "chat turn", attrs...)
	return nil
}

var (
	_ AuditLogger = (*NopAuditLogger)(nil)
	_ AuditLogger = (*SlogAuditLogger)(nil)
)
