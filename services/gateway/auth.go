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
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianChat/pkg/extensions"
)

const authInfoKey = "aleutian_chat_auth_info"

func setAuthInfo(c *gin.Context, info *extensions.AuthInfo) {
	c.Set(authInfoKey, info)
}

func getAuthInfo(c *gin.Context) *extensions.AuthInfo {
	if info, exists := c.Get(authInfoKey); exists {
		if authInfo, ok := info.(*extensions.AuthInfo); ok {
			return authInfo
		}
	}
	return nil
}

// authenticate validates the bearer token and stores the caller on the
// context. Browsers cannot set headers on a WebSocket handshake, so the
// access_token query parameter is accepted as well.
func (s *Server) authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractBearerToken(c)
		if token == "" {
			token = c.Query("access_token")
		}

		info, err := s.ext.Auth.Validate(c.Request.Context(), token)
		if err != nil {
			reason := "authentication failed"
			if errors.Is(err, extensions.ErrUnauthorized) {
				reason = "unauthorized"
			}
			s.audit(c.Request.Context(), extensions.AuditEvent{
				Endpoint: c.FullPath(),
				Outcome:  extensions.OutcomeRefused,
				Reason:   reason,
			})
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": reason})
			return
		}

		setAuthInfo(c, info)
		c.Next()
	}
}

func extractBearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// audit records e. Audit failures are logged, never returned to the caller.
func (s *Server) audit(ctx context.Context, e extensions.AuditEvent) {
	if err := s.ext.Audit.Log(ctx, e); err != nil {
		s.logger.Warn("failed to write audit event", "error", err, "outcome", e.Outcome)
	}
}

// outcomeOf maps the last pipeline update of a turn to an audit outcome.
func outcomeOf(terminal bool, failed bool) string {
	switch {
	case !terminal:
		return extensions.OutcomeCancelled
	case failed:
		return extensions.OutcomeFailed
	default:
		return extensions.OutcomeCompleted
	}
}
