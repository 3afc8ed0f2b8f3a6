// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianChat/pkg/backend"
	"github.com/AleutianAI/AleutianChat/pkg/logging"
	"github.com/AleutianAI/AleutianChat/pkg/observability"
	"github.com/AleutianAI/AleutianChat/pkg/pipeline"
	"github.com/AleutianAI/AleutianChat/pkg/ux"
)

var errTurnFailed = errors.New("reply failed")

func runChat(cmd *cobra.Command, args []string) error {
	message, err := messageFrom(cmd.InOrStdin(), args)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := logging.New(cfg.LoggerConfig("chatflow"))
	defer logger.Close()

	a, err := buildApp(cfg, logger, true)
	if err != nil {
		return err
	}

	tenant, err := a.tenantOrDefault()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	turn := pipeline.TurnRequest{TurnID: uuid.NewString(), Tenant: tenant}
	req := backend.Request{Tenant: turn.Tenant, SessionID: uuid.NewString(), Message: message}
	presenter := ux.NewPresenter(cmd.OutOrStdout(), presenterMode(cmd.OutOrStdout()))

	if noStream {
		text, err := a.backend.Complete(ctx, req)
		if err != nil {
			a.metrics.RecordTurn(turn.Tenant, observability.StatusError, 0)
			res := a.pipeline.Fail(turn, "", err)
			if perr := presenter.PrintResult(res); perr != nil {
				return perr
			}
			return fmt.Errorf("%w: %v", errTurnFailed, err)
		}
		return presenter.PrintResult(a.pipeline.Process(ctx, turn, text))
	}

	session, err := a.backend.Stream(ctx, req)
	if err != nil {
		return fmt.Errorf("open stream: %w", err)
	}
	for u := range a.pipeline.Stream(ctx, turn, session) {
		if err := presenter.OnUpdate(u); err != nil {
			session.Cancel()
			return err
		}
		if u.Kind == pipeline.UpdateFailed {
			return fmt.Errorf("%w: %v", errTurnFailed, u.Result.Err)
		}
	}
	return nil
}

// runRender shows how a complete reply read from stdin would be presented.
// No backend is contacted.
func runRender(cmd *cobra.Command, _ []string) error {
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return fmt.Errorf("read stdin: %w", err)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := logging.New(cfg.LoggerConfig("chatflow"))
	defer logger.Close()

	a, err := buildApp(cfg, logger, false)
	if err != nil {
		return err
	}
	tenant, err := a.tenantOrDefault()
	if err != nil {
		return err
	}
	res := a.pipeline.Process(cmd.Context(), pipeline.TurnRequest{Tenant: tenant}, string(data))
	return ux.NewPresenter(cmd.OutOrStdout(), presenterMode(cmd.OutOrStdout())).PrintResult(res)
}

func presenterMode(w io.Writer) ux.Mode {
	switch {
	case jsonOutput:
		return ux.ModeMachine
	case outputMode != "":
		return ux.ParseMode(outputMode)
	default:
		return ux.DetectMode(w)
	}
}

func messageFrom(stdin io.Reader, args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	message := strings.TrimSpace(string(data))
	if message == "" {
		return "", errors.New("no message given")
	}
	return message, nil
}
