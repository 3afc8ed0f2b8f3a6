// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config loads the chat service configuration from YAML.
package config

import (
	"time"

	"github.com/AleutianAI/AleutianChat/pkg/logging"
)

// Backend kinds.
const (
	BackendHTTP   = "http"
	BackendOpenAI = "openai"
)

// Config is the root of chat.yaml.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Backend    BackendConfig    `yaml:"backend"`
	Stream     StreamConfig     `yaml:"stream"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Payload    PayloadConfig    `yaml:"payload"`
	Tenants    TenantsConfig    `yaml:"tenants"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Logging    LoggingConfig    `yaml:"logging"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	Access     AccessConfig     `yaml:"access"`
}

// ServerConfig configures the gateway listener.
type ServerConfig struct {
	Addr              string        `yaml:"addr" validate:"required,hostname_port"`
	KeepAlive         time.Duration `yaml:"keep_alive" validate:"gte=0"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" validate:"gte=0"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout" validate:"gte=0"`
	MaxMessageBytes   int           `yaml:"max_message_bytes" validate:"gt=0"`
}

// BackendConfig selects where replies come from.
type BackendConfig struct {
	// Kind is "http" for a streaming chat backend or "openai" for an
	// OpenAI-compatible completion API.
	Kind string `yaml:"kind" validate:"required,oneof=http openai"`

	// URL is the streaming endpoint for "http", or an optional base URL
	// for "openai".
	URL string `yaml:"url" validate:"omitempty,url"`

	// CompleteURL is the non-streaming endpoint returning {"response": ...}.
	// Defaults to URL.
	CompleteURL string `yaml:"complete_url,omitempty" validate:"omitempty,url"`

	Model   string            `yaml:"model,omitempty" validate:"required_if=Kind openai"`
	Timeout time.Duration     `yaml:"timeout" validate:"gte=0"`
	Headers map[string]string `yaml:"headers,omitempty"`

	// APIKey is read from OPENAI_API_KEY and never written to disk.
	APIKey string `yaml:"-"`
}

// StreamConfig configures frame decoding.
type StreamConfig struct {
	Format      string `yaml:"format" validate:"oneof=auto sse lines"`
	Charset     string `yaml:"charset,omitempty"`
	BufferSize  int    `yaml:"buffer_size" validate:"gte=0"`
	EventBuffer int    `yaml:"event_buffer" validate:"gte=0"`
}

// ClassifierConfig configures structure classification.
type ClassifierConfig struct {
	MinLength int `yaml:"min_length" validate:"gte=0"`
}

// PayloadConfig configures payload detection.
type PayloadConfig struct {
	RepairOnFinish bool `yaml:"repair_on_finish"`
	MaxParseBytes  int  `yaml:"max_parse_bytes" validate:"gte=0"`
}

// TenantsConfig points at the tenant override file.
type TenantsConfig struct {
	File    string `yaml:"file,omitempty"`
	Default string `yaml:"default,omitempty" validate:"omitempty,tenant_id"`
}

// TelemetryConfig configures metrics and tracing.
type TelemetryConfig struct {
	ServiceName    string `yaml:"service_name" validate:"required"`
	TraceExporter  string `yaml:"trace_exporter" validate:"oneof=none otlp stdout"`
	OTLPEndpoint   string `yaml:"otlp_endpoint" validate:"required_if=TraceExporter otlp"`
	MetricsEnabled bool   `yaml:"metrics_enabled"`
}

// LoggingConfig configures pkg/logging.
type LoggingConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn warning error"`
	JSON  bool   `yaml:"json"`
	Dir   string `yaml:"dir,omitempty"`
}

// RateLimitConfig configures the per-tenant token bucket. Zero
// RequestsPerSecond disables limiting.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" validate:"gte=0"`
	Burst             int     `yaml:"burst" validate:"gte=0"`
}

// AccessConfig configures authentication, message policy and auditing.
// An empty TokensFile leaves the gateway open.
type AccessConfig struct {
	TokensFile string `yaml:"tokens_file,omitempty"`
	PolicyFile string `yaml:"policy_file,omitempty"`
	Policy     bool   `yaml:"policy"`
	Audit      bool   `yaml:"audit"`
}

// Default returns the configuration written on first run.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:              "127.0.0.1:8095",
			KeepAlive:         15 * time.Second,
			ReadHeaderTimeout: 10 * time.Second,
			ShutdownTimeout:   10 * time.Second,
			MaxMessageBytes:   32 * 1024,
		},
		Backend: BackendConfig{
			Kind:    BackendHTTP,
			URL:     "http://localhost:12210/v1/chat/stream",
			Timeout: 2 * time.Minute,
		},
		Stream: StreamConfig{
			Format:      "auto",
			BufferSize:  4096,
			EventBuffer: 64,
		},
		Classifier: ClassifierConfig{MinLength: 10},
		Payload:    PayloadConfig{RepairOnFinish: true, MaxParseBytes: 1 << 20},
		Telemetry: TelemetryConfig{
			ServiceName:    "aleutian-chat",
			TraceExporter:  "none",
			OTLPEndpoint:   "localhost:4317",
			MetricsEnabled: true,
		},
		Logging: LoggingConfig{Level: "info"},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 5,
			Burst:             10,
		},
		Access: AccessConfig{Policy: true, Audit: true},
	}
}

// LoggerConfig converts the logging section for logging.New.
func (c Config) LoggerConfig(service string) logging.Config {
	level, ok := logging.ParseLevel(c.Logging.Level)
	if !ok {
		level = logging.LevelInfo
	}
	return logging.Config{
		Level:   level,
		Service: service,
		JSON:    c.Logging.JSON,
		LogDir:  c.Logging.Dir,
	}
}

// CompletionURL returns the non-streaming endpoint.
func (b BackendConfig) CompletionURL() string {
	if b.CompleteURL != "" {
		return b.CompleteURL
	}
	return b.URL
}
