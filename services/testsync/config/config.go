// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads testsync settings from YAML.
//
// Every value has a default, so a missing or partial file is fine. Load
// overlays the file on Default and validates the result with struct tags.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/AleutianAI/testsync/pkg/logging"
	"github.com/AleutianAI/testsync/services/testsync/journal"
	"github.com/AleutianAI/testsync/services/testsync/telemetry"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig wraps every validation failure. The validator's
// ValidationErrors are wrapped alongside it.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the root of the YAML document.
type Config struct {
	Logging    LoggingConfig    `yaml:"logging"`
	Journal    JournalConfig    `yaml:"journal"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Collection CollectionConfig `yaml:"collection"`
}

// LoggingConfig controls pkg/logging.
type LoggingConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level" validate:"oneof=debug info warn warning error"`

	// Format is auto, text or json. auto picks JSON when stderr is not
	// a terminal.
	Format string `yaml:"format" validate:"oneof=auto text json"`

	// Dir enables JSON file logging.
	Dir string `yaml:"dir"`

	Service string `yaml:"service" validate:"required"`
}

// JournalConfig controls the durable op log.
type JournalConfig struct {
	Path     string `yaml:"path" validate:"required_without=InMemory"`
	InMemory bool   `yaml:"in_memory"`

	// Stream names the op log inside the database.
	Stream string `yaml:"stream" validate:"required,excludesall=:"`

	SyncWrites    bool          `yaml:"sync_writes"`
	MaxBytes      int64         `yaml:"max_bytes" validate:"gte=0"`
	SkipCorrupted bool          `yaml:"skip_corrupted"`
	GCInterval    time.Duration `yaml:"gc_interval" validate:"gte=0"`
}

// TelemetryConfig controls OpenTelemetry export.
type TelemetryConfig struct {
	TraceExporter  string `yaml:"trace_exporter" validate:"oneof=none stdout otlp"`
	MetricExporter string `yaml:"metric_exporter" validate:"oneof=none stdout prometheus"`
	OTLPEndpoint   string `yaml:"otlp_endpoint" validate:"required_if=TraceExporter otlp"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
}

// CollectionConfig controls the collection engine.
type CollectionConfig struct {
	// DanglingTagDiagnostics logs items referencing unregistered tags.
	DanglingTagDiagnostics bool `yaml:"dangling_tag_diagnostics"`

	// MaxRuns bounds the result store.
	MaxRuns int `yaml:"max_runs" validate:"gte=1"`
}

// Default returns a complete configuration.
func Default() Config {
	jc := journal.DefaultConfig()
	tc := telemetry.DefaultConfig()
	return Config{
		Logging: LoggingConfig{
			Level:   "info",
			Format:  "auto",
			Service: "testsync",
		},
		Journal: JournalConfig{
			Path:       ".testsync/journal",
			Stream:     jc.Stream,
			SyncWrites: jc.SyncWrites,
			MaxBytes:   jc.MaxJournalBytes,
			GCInterval: jc.GCInterval,
		},
		Telemetry: TelemetryConfig{
			TraceExporter:  tc.TraceExporter,
			MetricExporter: tc.MetricExporter,
			OTLPEndpoint:   tc.OTLPEndpoint,
			OTLPInsecure:   tc.OTLPInsecure,
		},
		Collection: CollectionConfig{
			MaxRuns: 128,
		},
	}
}

// Load reads path over Default and validates the result. An empty path
// returns the validated defaults.
//
// Unknown keys are rejected so typos surface instead of being ignored.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, cfg.Validate()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := cfg.decode(data); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) decode(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks struct tags. The returned error wraps ErrInvalidConfig
// and, for tag failures, validator.ValidationErrors.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// Marshal renders c as YAML.
func (c Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// =============================================================================
// Conversions
// =============================================================================

// LoggingOptions converts the logging section.
func (c LoggingConfig) LoggingOptions() (logging.Config, error) {
	level, err := logging.ParseLevel(c.Level)
	if err != nil {
		return logging.Config{}, err
	}
	out := logging.Config{Level: level, LogDir: c.Dir, Service: c.Service}
	switch c.Format {
	case "json":
		out.JSON = true
	case "auto":
		out.JSON = logging.ShouldUseJSON(os.Stderr)
	}
	return out, nil
}

// JournalOptions converts the journal section.
func (c JournalConfig) JournalOptions(logger *slog.Logger) journal.Config {
	return journal.Config{
		Path:            c.Path,
		Stream:          c.Stream,
		SyncWrites:      c.SyncWrites,
		MaxJournalBytes: c.MaxBytes,
		SkipCorrupted:   c.SkipCorrupted,
		InMemory:        c.InMemory,
		GCInterval:      c.GCInterval,
		Logger:          logger,
	}
}

// TelemetryOptions converts the telemetry section.
func (c TelemetryConfig) TelemetryOptions(serviceName, version string) telemetry.Config {
	return telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: version,
		TraceExporter:  c.TraceExporter,
		MetricExporter: c.MetricExporter,
		OTLPEndpoint:   c.OTLPEndpoint,
		OTLPInsecure:   c.OTLPInsecure,
	}
}
