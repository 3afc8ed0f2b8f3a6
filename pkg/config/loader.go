// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianChat/pkg/validation"
)

// Environment variables that override the file.
const (
	EnvAPIKey     = "OPENAI_API_KEY"
	EnvBackendURL = "ALEUTIAN_CHAT_BACKEND_URL"
	EnvConfigPath = "ALEUTIAN_CHAT_CONFIG"
)

var configValidate *validator.Validate

func init() {
	configValidate = validator.New()
	_ = validation.Register(configValidate)
}

// DefaultPath returns ~/.aleutian/chat.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not find the user's home directory: %w", err)
	}
	return filepath.Join(home, ".aleutian", "chat.yaml"), nil
}

// Load reads the config at path.
//
// # Description
//
// An empty path means $ALEUTIAN_CHAT_CONFIG, then DefaultPath. When the
// default file does not exist it is created from Default. An explicit
// path that does not exist is an error. Fields missing from the file keep
// their defaults; environment overrides are applied last, then the result
// is validated.
//
// # Outputs
//
//   - Config: the validated config.
//   - bool: true if the file was created by this call.
//   - error: read, parse or validation failure.
func Load(path string) (Config, bool, error) {
	created := false
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return Config{}, false, err
		}
		path = p
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			if err := createDefault(path); err != nil {
				return Config{}, false, err
			}
			created = true
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, false, fmt.Errorf("failed to read the config file: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, false, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, created, nil
}

// Parse decodes YAML over Default, applies environment overrides and
// validates. Unknown keys are rejected.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.ApplyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnv applies environment overrides using getenv.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv(EnvAPIKey); v != "" {
		c.Backend.APIKey = v
	}
	if v := getenv(EnvBackendURL); v != "" {
		c.Backend.URL = v
	}
}

// Validate checks struct tags and cross-field rules.
func (c Config) Validate() error {
	if err := configValidate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Backend.Kind == BackendHTTP && c.Backend.URL == "" {
		return errors.New("invalid config: backend.url is required for the http backend")
	}
	return nil
}

// Save writes the config as YAML, creating parent directories.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create the config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

func createDefault(path string) error {
	return Save(path, Default())
}
