// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package gateway

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/AleutianChat/pkg/backend"
	"github.com/AleutianAI/AleutianChat/pkg/extensions"
	"github.com/AleutianAI/AleutianChat/pkg/observability"
	"github.com/AleutianAI/AleutianChat/pkg/pipeline"
	"github.com/AleutianAI/AleutianChat/pkg/validation"
)

var chatValidate *validator.Validate

func init() {
	chatValidate = validator.New()
	_ = validation.Register(chatValidate)
}

// ChatRequest is the body of a chat turn.
type ChatRequest struct {
	Tenant    string            `json:"tenant_id" validate:"omitempty,tenant_id"`
	SessionID string            `json:"session_id,omitempty" validate:"omitempty,max=128"`
	Message   string            `json:"message" validate:"required"`
	History   []backend.Message `json:"history,omitempty" validate:"omitempty,max=100,dive"`
}

// errMessageTooLarge is returned for messages over the configured limit.
var errMessageTooLarge = errors.New("message too large")

// Validate checks the request against its tags and the size limit.
func (r *ChatRequest) Validate(maxBytes int) error {
	if err := chatValidate.Struct(r); err != nil {
		return err
	}
	if maxBytes > 0 && len(r.Message) > maxBytes {
		return errMessageTooLarge
	}
	return nil
}

// refusal is a turn the gateway will not run.
type refusal struct {
	status int
	msg    string
}

// admit validates req, fills in defaults, checks the tenant grant, applies
// the message policy and the rate limit. It returns the number of policy
// redactions, or the refusal. Refusals are audited here.
func (s *Server) admit(ctx context.Context, endpoint string, auth *extensions.AuthInfo, req *ChatRequest) (int, *refusal) {
	refuse := func(status int, msg string) (int, *refusal) {
		ev := turnEvent(endpoint, auth, req)
		ev.Outcome = extensions.OutcomeRefused
		ev.Reason = msg
		s.audit(ctx, ev)
		return 0, &refusal{status: status, msg: msg}
	}

	if err := req.Validate(s.cfg.Server.MaxMessageBytes); err != nil {
		if errors.Is(err, errMessageTooLarge) {
			return refuse(http.StatusRequestEntityTooLarge, "message too large")
		}
		return refuse(http.StatusBadRequest, "invalid request: validation failed")
	}
	if req.Tenant == "" {
		req.Tenant = s.cfg.Tenants.Default
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}
	if !auth.Allows(req.Tenant) {
		return refuse(http.StatusForbidden, "tenant not allowed")
	}

	filtered, err := s.ext.Filter.FilterInput(ctx, req.Message)
	if err != nil {
		s.logger.Error("message filter failed", "error", err, "tenant", req.Tenant)
		return refuse(http.StatusInternalServerError, "message could not be checked")
	}
	if filtered.WasBlocked {
		return refuse(http.StatusUnprocessableEntity, filtered.BlockReason)
	}
	redactions := 0
	if filtered.WasModified {
		req.Message = filtered.Filtered
		redactions = len(filtered.Detections)
		s.logger.Info("message redacted", "tenant", req.Tenant, "redactions", redactions)
	}

	if !s.limiter.Allow(req.Tenant) {
		if s.deps.Metrics != nil {
			s.deps.Metrics.RecordRateLimited(req.Tenant)
		}
		return refuse(http.StatusTooManyRequests, "rate limit exceeded")
	}
	return redactions, nil
}

// turnEvent starts an audit event for req.
func turnEvent(endpoint string, auth *extensions.AuthInfo, req *ChatRequest) extensions.AuditEvent {
	ev := extensions.AuditEvent{
		Endpoint:  endpoint,
		Tenant:    req.Tenant,
		SessionID: req.SessionID,
	}
	if auth != nil {
		ev.Subject = auth.Subject
	}
	return ev
}

func (req ChatRequest) backendRequest() backend.Request {
	return backend.Request{
		Tenant:    req.Tenant,
		SessionID: req.SessionID,
		Message:   req.Message,
		History:   req.History,
	}
}

// handleChatStream streams one turn as Server-Sent Events.
//
// # Description
//
//  1. Parse the request and admit it: tenant grant, message policy and
//     rate limit.
//  2. Open the backend stream. Failing here is a 502 before any event.
//  3. Run the pipeline, writing one event per update, with keep-alive
//     comments in between.
//
// The stream always ends with a "done" or "error" event unless the client
// goes away first, in which case the backend stream is cancelled.
func (s *Server) handleChatStream(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	ctx := c.Request.Context()
	auth := getAuthInfo(c)
	redactions, refused := s.admit(ctx, c.FullPath(), auth, &req)
	if refused != nil {
		c.JSON(refused.status, gin.H{"error": refused.msg})
		return
	}

	turnID := uuid.NewString()
	ev := turnEvent(c.FullPath(), auth, &req)
	ev.TurnID = turnID
	ev.Redactions = redactions

	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String("chat.tenant", req.Tenant),
		attribute.String("chat.session_id", req.SessionID),
	)

	session, err := s.deps.Backend.Stream(ctx, req.backendRequest())
	if err != nil {
		s.logger.Error("failed to open backend stream", "error", err, "tenant", req.Tenant)
		ev.Outcome, ev.Reason = extensions.OutcomeFailed, "backend unavailable"
		s.audit(ctx, ev)
		c.JSON(http.StatusBadGateway, gin.H{"error": pipeline.Apology})
		return
	}

	SetSSEHeaders(c.Writer)
	c.Status(http.StatusOK)
	writer, err := NewSSEWriter(c.Writer)
	if err != nil {
		session.Cancel()
		s.logger.Error("streaming not supported", "error", err)
		return
	}

	var heartbeat sync.WaitGroup
	done := make(chan struct{})
	defer heartbeat.Wait()
	defer close(done)
	heartbeat.Go(func() { s.runHeartbeat(ctx, writer, done) })

	var last pipeline.Update
	defer func() {
		ev.Outcome = outcomeOf(last.Terminal(), last.Kind == pipeline.UpdateFailed)
		s.audit(context.WithoutCancel(ctx), ev)
	}()

	if err := writer.WriteEvent(StreamEvent{Type: EventSession, TurnID: turnID, SessionID: req.SessionID}); err != nil {
		session.Cancel()
		return
	}
	turn := pipeline.TurnRequest{TurnID: turnID, Tenant: req.Tenant}
	for u := range s.deps.Pipeline.Stream(ctx, turn, session) {
		last = u
		if err := writer.WriteEvent(eventFromUpdate(turnID, u)); err != nil {
			s.logger.Debug("client went away", "turn_id", turnID, "error", err)
			last = pipeline.Update{}
			return
		}
	}
}

// runHeartbeat writes keep-alive comments until done is closed or the
// request ends.
func (s *Server) runHeartbeat(ctx context.Context, writer SSEWriter, done <-chan struct{}) {
	interval := s.cfg.Server.KeepAlive
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := writer.WriteKeepAlive(); err != nil {
				s.logger.Debug("failed to write keepalive", "error", err)
				return
			}
			if s.deps.Metrics != nil {
				s.deps.Metrics.RecordKeepAlive()
			}
		}
	}
}

// handleChat runs one turn without streaming and returns the Result.
// A backend failure answers 502 with the failed Result, apology included.
func (s *Server) handleChat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	ctx := c.Request.Context()
	auth := getAuthInfo(c)
	redactions, refused := s.admit(ctx, c.FullPath(), auth, &req)
	if refused != nil {
		c.JSON(refused.status, gin.H{"error": refused.msg})
		return
	}

	start := time.Now()
	turn := pipeline.TurnRequest{TurnID: uuid.NewString(), Tenant: req.Tenant}
	ev := turnEvent(c.FullPath(), auth, &req)
	ev.TurnID = turn.TurnID
	ev.Redactions = redactions

	text, err := s.deps.Backend.Complete(ctx, req.backendRequest())
	if err != nil {
		res := s.deps.Pipeline.Fail(turn, "", err)
		if s.deps.Metrics != nil {
			s.deps.Metrics.RecordTurn(req.Tenant, observability.StatusError, time.Since(start))
		}
		ev.Outcome = extensions.OutcomeFailed
		s.audit(ctx, ev)
		c.JSON(http.StatusBadGateway, res)
		return
	}
	res := s.deps.Pipeline.Process(ctx, turn, text)
	ev.Outcome = extensions.OutcomeCompleted
	s.audit(ctx, ev)
	c.JSON(http.StatusOK, res)
}
