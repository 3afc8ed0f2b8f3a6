// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/AleutianAI/AleutianChat/pkg/backend"
	"github.com/AleutianAI/AleutianChat/pkg/config"
	"github.com/AleutianAI/AleutianChat/pkg/logging"
	"github.com/AleutianAI/AleutianChat/pkg/observability"
	"github.com/AleutianAI/AleutianChat/pkg/payload"
	"github.com/AleutianAI/AleutianChat/pkg/pipeline"
	"github.com/AleutianAI/AleutianChat/pkg/render"
	"github.com/AleutianAI/AleutianChat/pkg/tenant"
	"github.com/AleutianAI/AleutianChat/pkg/textstruct"
	"github.com/AleutianAI/AleutianChat/pkg/validation"
)

// app holds the wired components shared by the commands.
type app struct {
	cfg      config.Config
	logger   *logging.Logger
	registry *prometheus.Registry
	metrics  *observability.Metrics
	pipeline *pipeline.Pipeline
	backend  backend.Backend
}

// loadConfig reads the config file and applies the log level flag.
func loadConfig() (config.Config, error) {
	cfg, created, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, err
	}
	if created {
		fmt.Fprintln(rootCmd.ErrOrStderr(), "Created default config at ~/.aleutian/chat.yaml")
	}
	if logLevel != "" {
		if _, ok := logging.ParseLevel(logLevel); !ok {
			return config.Config{}, fmt.Errorf("unknown log level %q", logLevel)
		}
		cfg.Logging.Level = logLevel
	}
	return cfg, nil
}

// buildApp wires the pipeline from cfg. The backend is only built when
// withBackend is set, so offline commands work without one.
func buildApp(cfg config.Config, logger *logging.Logger, withBackend bool) (*app, error) {
	a := &app{cfg: cfg, logger: logger, registry: prometheus.NewRegistry()}
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.metrics = observability.NewMetrics(a.registry)

	var overrides *tenant.File
	if cfg.Tenants.File != "" {
		f, err := tenant.LoadFile(cfg.Tenants.File)
		if err != nil {
			return nil, err
		}
		overrides = f
	}
	tenants, err := tenant.BuildRegistry(tenant.BuiltinModules(), overrides)
	if err != nil {
		return nil, fmt.Errorf("build renderer registry: %w", err)
	}
	logger.Debug("renderer registry ready", "tenants", tenants.Tenants())

	dispatcher := render.NewDispatcher(tenants,
		render.WithObserver(a.metrics),
		render.WithLogger(logger.Slog()),
	)

	var detectorOpts []payload.DetectorOption
	if cfg.Payload.RepairOnFinish {
		detectorOpts = append(detectorOpts, payload.WithRepairOnFinish())
	}
	if cfg.Payload.MaxParseBytes > 0 {
		detectorOpts = append(detectorOpts, payload.WithMaxParseBytes(cfg.Payload.MaxParseBytes))
	}

	a.pipeline = pipeline.New(
		pipeline.Deps{Dispatcher: dispatcher, Metrics: a.metrics, Logger: logger.Slog()},
		pipeline.WithClassifier(textstruct.Classifier{MinLength: cfg.Classifier.MinLength}),
		pipeline.WithDetectorOptions(detectorOpts...),
	)

	if withBackend {
		b, err := backend.FromConfig(cfg.Backend, cfg.Stream,
			backend.WithObserver(a.metrics),
			backend.WithLogger(logger.Slog()),
		)
		if err != nil {
			return nil, fmt.Errorf("configure backend: %w", err)
		}
		a.backend = b
	}
	return a, nil
}

// tenantOrDefault returns the --tenant flag, normalized, else the
// configured default.
func (a *app) tenantOrDefault() (string, error) {
	if tenantID == "" {
		return a.cfg.Tenants.Default, nil
	}
	id, err := validation.SanitizeTenantID(tenantID)
	if err != nil {
		return "", fmt.Errorf("--tenant: %w", err)
	}
	return id, nil
}
