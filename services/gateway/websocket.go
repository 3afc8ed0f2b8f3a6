// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package gateway

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/AleutianAI/AleutianChat/pkg/extensions"
	"github.com/AleutianAI/AleutianChat/pkg/pipeline"
	"github.com/AleutianAI/AleutianChat/pkg/stream"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,
}

// handleChatWebSocket runs turns over one WebSocket connection. The client
// sends ChatRequest messages; each turn answers with the same events as
// the SSE endpoint. Turns on one connection run one at a time.
func (s *Server) handleChatWebSocket(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Error("failed to upgrade the websocket", "error", err)
		return
	}
	defer ws.Close()

	sessionID := uuid.NewString()
	s.logger.Info("websocket client connected", "session_id", sessionID)
	if err := ws.WriteJSON(stamp(StreamEvent{Type: EventSession, SessionID: sessionID})); err != nil {
		return
	}

	ctx := c.Request.Context()
	auth := getAuthInfo(c)
	endpoint := c.FullPath()
	for {
		var req ChatRequest
		if err := ws.ReadJSON(&req); err != nil {
			s.logger.Info("websocket client disconnected", "session_id", sessionID, "error", err.Error())
			return
		}
		if req.SessionID == "" {
			req.SessionID = sessionID
		}
		redactions, refused := s.admit(ctx, endpoint, auth, &req)
		if refused != nil {
			if err := ws.WriteJSON(stamp(StreamEvent{Type: EventError, SessionID: sessionID, Error: refused.msg})); err != nil {
				return
			}
			continue
		}

		turnID := uuid.NewString()
		audit := turnEvent(endpoint, auth, &req)
		audit.TurnID = turnID
		audit.Redactions = redactions

		session, err := s.deps.Backend.Stream(ctx, req.backendRequest())
		if err != nil {
			s.logger.Error("failed to open backend stream", "error", err, "tenant", req.Tenant)
			audit.Outcome, audit.Reason = extensions.OutcomeFailed, "backend unavailable"
			s.audit(ctx, audit)
			if err := ws.WriteJSON(stamp(StreamEvent{Type: EventError, SessionID: sessionID, Error: pipeline.Apology})); err != nil {
				return
			}
			continue
		}

		if !s.streamTurn(ctx, ws, audit, pipeline.TurnRequest{TurnID: turnID, Tenant: req.Tenant}, req.SessionID, session) {
			return
		}
	}
}

// streamTurn writes one turn's events and audits its outcome. It returns
// false when the connection can no longer be written.
func (s *Server) streamTurn(ctx context.Context, ws *websocket.Conn, audit extensions.AuditEvent, turn pipeline.TurnRequest, sessionID string, session *stream.Session) bool {
	var last pipeline.Update
	ok := true
	for u := range s.deps.Pipeline.Stream(ctx, turn, session) {
		last = u
		ev := eventFromUpdate(turn.TurnID, u)
		ev.SessionID = sessionID
		if err := ws.WriteJSON(stamp(ev)); err != nil {
			s.logger.Debug("websocket write failed", "session_id", sessionID, "error", err)
			last, ok = pipeline.Update{}, false
			break
		}
	}
	audit.Outcome = outcomeOf(last.Terminal(), last.Kind == pipeline.UpdateFailed)
	s.audit(context.WithoutCancel(ctx), audit)
	return ok
}
