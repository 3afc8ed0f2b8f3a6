// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianChat/pkg/config"
	"github.com/AleutianAI/AleutianChat/pkg/extensions"
	"github.com/AleutianAI/AleutianChat/pkg/logging"
	"github.com/AleutianAI/AleutianChat/pkg/observability"
	"github.com/AleutianAI/AleutianChat/services/gateway"
)

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := logging.New(cfg.LoggerConfig("chatflow"))
	defer logger.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfig{
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
		Exporter:       cfg.Telemetry.TraceExporter,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
	})
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Error("failed to shut down tracing", "error", err)
		}
	}()

	a, err := buildApp(cfg, logger, true)
	if err != nil {
		return err
	}

	ext, err := accessOptions(cfg.Access, logger)
	if err != nil {
		return err
	}

	srv := gateway.New(cfg, gateway.Deps{
		Backend:    a.backend,
		Pipeline:   a.pipeline,
		Metrics:    a.metrics,
		Gatherer:   a.registry,
		Logger:     logger.Slog(),
		Extensions: ext,
	})
	return srv.Run(ctx)
}

// accessOptions builds the gateway's access hooks from the access section.
func accessOptions(cfg config.AccessConfig, logger *logging.Logger) (extensions.Options, error) {
	opts := extensions.DefaultOptions()

	if cfg.TokensFile != "" {
		tokens, err := extensions.LoadTokens(cfg.TokensFile)
		if err != nil {
			return opts, err
		}
		opts = opts.WithAuth(tokens)
	} else {
		logger.Warn("no tokens file configured, the gateway accepts every caller")
	}

	switch {
	case cfg.PolicyFile != "":
		policy, err := extensions.LoadPolicy(cfg.PolicyFile)
		if err != nil {
			return opts, err
		}
		opts = opts.WithFilter(policy)
	case cfg.Policy:
		policy, err := extensions.NewPolicyFilter()
		if err != nil {
			return opts, err
		}
		opts = opts.WithFilter(policy)
	}

	if cfg.Audit {
		opts = opts.WithAudit(extensions.NewSlogAuditLogger(logger.Slog()))
	}
	return opts, nil
}
