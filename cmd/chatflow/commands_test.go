// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianChat/pkg/config"
	"github.com/AleutianAI/AleutianChat/pkg/extensions"
	"github.com/AleutianAI/AleutianChat/pkg/logging"
)

const openingHours = `{"text":"Hours:","component":"OpeningHoursTable","data":{"monday":"9-17","tuesday":"9-17","sunday":"closed"}}`

// execute runs the root command with args and stdin, returning stdout.
// Flag variables are package globals, so they are reset first.
func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	configPath, logLevel, tenantID, outputMode = "", "", "", ""
	jsonOutput, noStream, repairPayloads = false, false, false
	minLength = 0

	var out, errOut bytes.Buffer
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

// writeConfig writes a config file pointing the backend at url.
func writeConfig(t *testing.T, url string) string {
	t.Helper()
	t.Setenv(config.EnvConfigPath, "")
	t.Setenv(config.EnvBackendURL, "")
	t.Setenv(config.EnvAPIKey, "")
	path := filepath.Join(t.TempDir(), "chat.yaml")
	body := fmt.Sprintf("backend:\n  url: %s/stream\n  complete_url: %s/complete\nlogging:\n  level: error\n", url, url)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

type shownResult struct {
	TurnID string `json:"turn_id"`
	Prose  string `json:"prose"`
	Failed bool   `json:"failed"`
	Views  []struct {
		Renderer string     `json:"renderer"`
		Rows     [][]string `json:"rows"`
	} `json:"views"`
}

func renderers(r shownResult) []string {
	out := make([]string, len(r.Views))
	for i, v := range r.Views {
		out[i] = v.Renderer
	}
	return out
}

// =============================================================================
// Tool Commands
// =============================================================================

func TestClassifyCommand(t *testing.T) {
	tests := []struct {
		name  string
		input string
		args  []string
		shape string
	}{
		{name: "numbered", input: "Steps:\n1. **Install**: run it\n2. **Start**: go", shape: "numbered"},
		{name: "bulleted", input: "Bring:\n- water\n- snacks\n- a map", shape: "bulleted"},
		{name: "plain", input: "Just a sentence about nothing much.", shape: "simple"},
		{name: "min length", input: "- a\n- b", args: []string{"--min-length", "100"}, shape: "simple"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, tt.input, append([]string{"classify"}, tt.args...)...)
			require.NoError(t, err)

			var got struct {
				Shape     string         `json:"shape"`
				Structure map[string]any `json:"structure"`
			}
			require.NoError(t, json.Unmarshal([]byte(out), &got))
			assert.Equal(t, tt.shape, got.Shape)
			assert.Equal(t, tt.shape, got.Structure["shape"])
		})
	}
}

func TestLinksCommand(t *testing.T) {
	out, err := execute(t, "See [Docs](https://example.com/docs) or mail help@example.com", "links")
	require.NoError(t, err)

	var got []map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got, 2)
	assert.Equal(t, "https://example.com/docs", got[0]["url"])
	assert.Equal(t, "Docs", got[0]["display_title"])
	assert.Equal(t, "email", got[1]["kind"])
}

func TestLinksCommand_NoneIsEmptyArray(t *testing.T) {
	out, err := execute(t, "nothing here", "links")
	require.NoError(t, err)
	assert.Equal(t, "[]", strings.TrimSpace(out))
}

func TestDetectCommand(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		args      []string
		prose     string
		component string
		hasError  bool
	}{
		{name: "payload", input: openingHours, prose: "Hours:", component: "OpeningHoursTable"},
		{name: "payload with trailing text", input: openingHours + " see above", prose: "Hours: see above", component: "OpeningHoursTable"},
		{name: "plain prose", input: "Hello there", prose: "Hello there"},
		{name: "malformed", input: `{"text": "oops", }`, prose: `{"text": "oops", }`, hasError: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, tt.input, append([]string{"detect"}, tt.args...)...)
			require.NoError(t, err)

			var got struct {
				Prose   string `json:"prose"`
				Payload *struct {
					Descriptors []struct {
						ComponentType string `json:"component_type"`
					} `json:"descriptors"`
				} `json:"payload"`
				Error string `json:"error"`
			}
			require.NoError(t, json.Unmarshal([]byte(out), &got))
			assert.Equal(t, tt.prose, got.Prose)
			if tt.component == "" {
				assert.Nil(t, got.Payload)
			} else {
				require.NotNil(t, got.Payload)
				require.NotEmpty(t, got.Payload.Descriptors)
				assert.Equal(t, tt.component, got.Payload.Descriptors[0].ComponentType)
			}
			assert.Equal(t, tt.hasError, got.Error != "")
		})
	}
}

// =============================================================================
// Chat and Render
// =============================================================================

func TestRenderCommand_Machine(t *testing.T) {
	path := writeConfig(t, "http://127.0.0.1:1")

	out, err := execute(t, openingHours, "render", "--config", path, "--json")
	require.NoError(t, err)

	var got shownResult
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "Hours:", got.Prose)
	assert.Equal(t, []string{"paragraphs", "table"}, renderers(got))
}

func TestRenderCommand_Plain(t *testing.T) {
	path := writeConfig(t, "http://127.0.0.1:1")

	out, err := execute(t, openingHours, "render", "--config", path, "--output", "plain")
	require.NoError(t, err)
	assert.Contains(t, out, "Hours:")
	assert.Contains(t, out, "closed")
}

func TestChatCommand_Streams(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprintf(w, "data: %s\n\ndata: [DONE]\n\n", openingHours)
	}))
	defer srv.Close()
	path := writeConfig(t, srv.URL)

	out, err := execute(t, "", "chat", "--config", path, "--json", "--tenant", "acme", "when", "are", "you", "open?")
	require.NoError(t, err)

	var res shownResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "Hours:", res.Prose)
	assert.Equal(t, []string{"paragraphs", "table"}, renderers(res))
	assert.NotEmpty(t, res.TurnID)
	assert.Equal(t, "when are you open?", got["message"])
	assert.Equal(t, "acme", got["tenant_id"])
}

func TestChatCommand_NoStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/complete", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"response":"1. **Install**: run it\n2. **Start**: go"}`)
	}))
	defer srv.Close()
	path := writeConfig(t, srv.URL)

	out, err := execute(t, "how do I start?", "chat", "--config", path, "--no-stream", "--json")
	require.NoError(t, err)

	var res shownResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, []string{"numbered_list"}, renderers(res))
}

func TestChatCommand_BackendFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	path := writeConfig(t, srv.URL)

	out, err := execute(t, "", "chat", "--config", path, "--output", "plain", "hello")
	require.ErrorIs(t, err, errTurnFailed)
	assert.Contains(t, out, "Sorry, something went wrong")
}

func TestChatCommand_EmptyMessage(t *testing.T) {
	_, err := execute(t, "   \n", "chat")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no message")
}

func TestAccessOptions(t *testing.T) {
	opts, err := accessOptions(config.AccessConfig{Policy: true, Audit: true}, logging.Discard())
	require.NoError(t, err)
	assert.IsType(t, &extensions.NopAuthProvider{}, opts.Auth)
	assert.IsType(t, &extensions.PolicyFilter{}, opts.Filter)
	assert.IsType(t, &extensions.SlogAuditLogger{}, opts.Audit)

	opts, err = accessOptions(config.AccessConfig{}, logging.Discard())
	require.NoError(t, err)
	assert.IsType(t, &extensions.NopMessageFilter{}, opts.Filter)
	assert.IsType(t, &extensions.NopAuditLogger{}, opts.Audit)

	tokens := filepath.Join(t.TempDir(), "tokens.yaml")
	require.NoError(t, os.WriteFile(tokens, []byte("tokens:\n  - token: t\n    tenants: [kiosk]\n"), 0o600))
	opts, err = accessOptions(config.AccessConfig{TokensFile: tokens}, logging.Discard())
	require.NoError(t, err)
	assert.IsType(t, &extensions.StaticTokens{}, opts.Auth)

	_, err = accessOptions(config.AccessConfig{PolicyFile: filepath.Join(t.TempDir(), "missing.yaml")}, logging.Discard())
	assert.Error(t, err)
}

func TestRenderCommand_BadTenant(t *testing.T) {
	path := writeConfig(t, "http://127.0.0.1:1")

	_, err := execute(t, "hello", "render", "--config", path, "--tenant", "not a tenant")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--tenant")
}
