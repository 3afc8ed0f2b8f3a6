// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var (
	configPath string
	logLevel   string
	tenantID   string
	jsonOutput bool
	outputMode string

	noStream       bool
	minLength      int
	repairPayloads bool

	rootCmd = &cobra.Command{
		Use:           "chatflow",
		Short:         "Serve and inspect streamed chat replies",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the chat gateway",
		Args:  cobra.NoArgs,
		RunE:  runServe, // Defined in cmd_serve.go
	}

	chatCmd = &cobra.Command{
		Use:   "chat [message...]",
		Short: "Send one message to the backend and show the reply",
		Long: `Sends one message to the configured backend and prints the reply as it
streams. Structured replies (tables, cards, link lists) are shown once the
reply is complete. With no arguments the message is read from stdin.`,
		RunE: runChat, // Defined in cmd_chat.go
	}

	renderCmd = &cobra.Command{
		Use:   "render",
		Short: "Run a complete reply from stdin through the pipeline and show it",
		Args:  cobra.NoArgs,
		RunE:  runRender, // Defined in cmd_chat.go
	}

	classifyCmd = &cobra.Command{
		Use:   "classify",
		Short: "Print the text structure of stdin as JSON",
		Args:  cobra.NoArgs,
		RunE:  runClassify, // Defined in cmd_tools.go
	}

	linksCmd = &cobra.Command{
		Use:   "links",
		Short: "Print the links found in stdin as JSON",
		Args:  cobra.NoArgs,
		RunE:  runLinks, // Defined in cmd_tools.go
	}

	detectCmd = &cobra.Command{
		Use:   "detect",
		Short: "Run payload detection on stdin and print the result as JSON",
		Args:  cobra.NoArgs,
		RunE:  runDetect, // Defined in cmd_tools.go
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.aleutian/chat.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&tenantID, "tenant", "", "tenant whose renderers to use")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print machine-readable JSON")

	chatCmd.Flags().BoolVar(&noStream, "no-stream", false, "wait for the whole reply instead of streaming")
	chatCmd.Flags().StringVar(&outputMode, "output", "", "output style: rich, plain or machine (default: detect)")
	renderCmd.Flags().StringVar(&outputMode, "output", "", "output style: rich, plain or machine (default: detect)")

	classifyCmd.Flags().IntVar(&minLength, "min-length", 0, "texts shorter than this are always simple (default 10)")
	detectCmd.Flags().BoolVar(&repairPayloads, "repair", false, "repair almost-JSON payloads at the end of the message")

	rootCmd.AddCommand(serveCmd, chatCmd, renderCmd, classifyCmd, linksCmd, detectCmd)
}
