// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianChat/pkg/links"
	"github.com/AleutianAI/AleutianChat/pkg/payload"
	"github.com/AleutianAI/AleutianChat/pkg/textstruct"
	"github.com/AleutianAI/AleutianChat/pkg/ux"
)

// The tool commands read stdin and never touch the config file.

type classifyOutput struct {
	Shape     string             `json:"shape"`
	Structure textstruct.Content `json:"structure"`
}

type detectOutput struct {
	Prose     string           `json:"prose"`
	Payload   *payload.Payload `json:"payload,omitempty"`
	Finalized bool             `json:"finalized"`
	Attempts  int              `json:"attempts"`
	Error     string           `json:"error,omitempty"`
}

func readStdin(cmd *cobra.Command) (string, error) {
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return string(data), nil
}

func runClassify(cmd *cobra.Command, _ []string) error {
	text, err := readStdin(cmd)
	if err != nil {
		return err
	}
	c := textstruct.Classifier{MinLength: minLength}.Classify(text)
	return ux.WriteJSON(cmd.OutOrStdout(), classifyOutput{Shape: c.Shape().String(), Structure: c})
}

func runLinks(cmd *cobra.Command, _ []string) error {
	text, err := readStdin(cmd)
	if err != nil {
		return err
	}
	items := links.Extract(text)
	if items == nil {
		items = []links.Item{}
	}
	return ux.WriteJSON(cmd.OutOrStdout(), items)
}

func runDetect(cmd *cobra.Command, _ []string) error {
	text, err := readStdin(cmd)
	if err != nil {
		return err
	}
	var opts []payload.DetectorOption
	if repairPayloads {
		opts = append(opts, payload.WithRepairOnFinish())
	}
	det := payload.NewDetector(opts...)
	det.Feed(text)
	det.Finish()

	out := detectOutput{
		Prose:     det.Prose(),
		Payload:   det.Payload(),
		Finalized: det.Finalized(),
		Attempts:  det.Attempts(),
	}
	if err := det.LastError(); err != nil && out.Payload == nil {
		out.Error = err.Error()
	}
	return ux.WriteJSON(cmd.OutOrStdout(), out)
}
