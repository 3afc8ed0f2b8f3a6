// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package gateway serves chat turns over HTTP.
//
// # Routes
//
//	POST /v1/chat/stream   streamed turn as Server-Sent Events
//	POST /v1/chat          whole turn as one JSON Result
//	GET  /v1/chat/ws       streamed turns over a WebSocket
//	GET  /health
//	GET  /metrics          Prometheus exposition
//
// The /v1 routes authenticate the caller with a bearer token, check the
// tenant grant, apply the message policy and rate limit per tenant. Every
// turn's outcome goes to the audit log.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/AleutianChat/pkg/backend"
	"github.com/AleutianAI/AleutianChat/pkg/config"
	"github.com/AleutianAI/AleutianChat/pkg/extensions"
	"github.com/AleutianAI/AleutianChat/pkg/observability"
	"github.com/AleutianAI/AleutianChat/pkg/pipeline"
)

// Deps are the server's collaborators.
type Deps struct {
	// Backend produces replies. Required.
	Backend backend.Backend

	// Pipeline processes turns. Required.
	Pipeline *pipeline.Pipeline

	// Metrics may be nil, which disables recording.
	Metrics *observability.Metrics

	// Gatherer serves /metrics. Nil uses the default gatherer.
	Gatherer prometheus.Gatherer

	// Logger may be nil.
	Logger *slog.Logger

	// Extensions are the access hooks. Nil hooks allow everything.
	Extensions extensions.Options
}

// Server is the chat gateway.
type Server struct {
	cfg     config.Config
	deps    Deps
	logger  *slog.Logger
	ext     extensions.Options
	limiter *tenantLimiter
	router  *gin.Engine
}

// New creates a Server and its routes.
func New(cfg config.Config, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}
	s := &Server{
		cfg:     cfg,
		deps:    deps,
		logger:  logger,
		ext:     deps.Extensions.WithDefaults(),
		limiter: newTenantLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst),
	}
	s.router = s.setupRoutes()
	return s
}

// Router returns the HTTP handler.
func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) setupRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(s.cfg.Telemetry.ServiceName))
	router.Use(s.requestMetrics())

	router.GET("/health", s.handleHealth)
	if s.cfg.Telemetry.MetricsEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{})))
	}

	v1 := router.Group("/v1")
	v1.Use(s.authenticate())
	{
		v1.POST("/chat/stream", s.handleChatStream)
		v1.POST("/chat", s.handleChat)
		v1.GET("/chat/ws", s.handleChatWebSocket)
	}
	return router
}

// requestMetrics records every request by route and status class.
func (s *Server) requestMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if s.deps.Metrics == nil {
			return
		}
		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		s.deps.Metrics.RecordRequest(endpoint, c.Writer.Status())
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"backend": s.deps.Backend.Name(),
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

// Run serves until ctx is cancelled, then shuts down gracefully.
//
// # Description
//
// The listener and the shutdown watcher run in one errgroup. Cancelling
// ctx gives in-flight turns ShutdownTimeout to finish; streams still open
// after that are closed.
//
// # Outputs
//
//   - error: listener failure, or nil after a clean shutdown.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Server.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: s.cfg.Server.ReadHeaderTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("chat gateway listening", "addr", srv.Addr, "backend", s.deps.Backend.Name())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		timeout := s.cfg.Server.ShutdownTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		s.logger.Info("chat gateway shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
