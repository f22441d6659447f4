// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/AleutianAI/testsync/pkg/logging"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "testsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadEmptyPath(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: debug
journal:
  stream: ci
  gc_interval: 90s
collection:
  dangling_tag_diagnostics: true
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "testsync", cfg.Logging.Service, "untouched keys keep defaults")
	assert.Equal(t, "ci", cfg.Journal.Stream)
	assert.Equal(t, 90*time.Second, cfg.Journal.GCInterval)
	assert.Equal(t, Default().Journal.MaxBytes, cfg.Journal.MaxBytes)
	assert.True(t, cfg.Collection.DanglingTagDiagnostics)
	assert.Equal(t, 128, cfg.Collection.MaxRuns)
}

func TestLoadEmptyFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	_, err := Load(writeConfig(t, "journal:\n  streem: x\n"))
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		edit  func(*Config)
		field string
	}{
		{"bad level", func(c *Config) { c.Logging.Level = "trace" }, "Level"},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, "Format"},
		{"stream with colon", func(c *Config) { c.Journal.Stream = "a:b" }, "Stream"},
		{"empty stream", func(c *Config) { c.Journal.Stream = "" }, "Stream"},
		{"no path on disk", func(c *Config) { c.Journal.Path = "" }, "Path"},
		{"negative size", func(c *Config) { c.Journal.MaxBytes = -1 }, "MaxBytes"},
		{"bad exporter", func(c *Config) { c.Telemetry.TraceExporter = "zipkin" }, "TraceExporter"},
		{"otlp without endpoint", func(c *Config) {
			c.Telemetry.TraceExporter = "otlp"
			c.Telemetry.OTLPEndpoint = ""
		}, "OTLPEndpoint"},
		{"zero runs", func(c *Config) { c.Collection.MaxRuns = 0 }, "MaxRuns"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.edit(&cfg)
			err := cfg.Validate()
			require.ErrorIs(t, err, ErrInvalidConfig)

			var verrs validator.ValidationErrors
			require.True(t, errors.As(err, &verrs))
			assert.Equal(t, tt.field, verrs[0].Field())
		})
	}
}

func TestInMemoryJournalNeedsNoPath(t *testing.T) {
	cfg := Default()
	cfg.Journal.Path = ""
	cfg.Journal.InMemory = true
	assert.NoError(t, cfg.Validate())
}

func TestMarshalRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Journal.Stream = "nightly"
	data, err := cfg.Marshal()
	require.NoError(t, err)

	back, err := Load(writeConfig(t, string(data)))
	require.NoError(t, err)
	assert.Equal(t, cfg, back)
}

func TestConversions(t *testing.T) {
	cfg := Default()
	cfg.Logging.Level = "warn"
	cfg.Logging.Format = "json"

	lc, err := cfg.Logging.LoggingOptions()
	require.NoError(t, err)
	assert.Equal(t, logging.LevelWarn, lc.Level)
	assert.True(t, lc.JSON)

	jc := cfg.Journal.JournalOptions(nil)
	assert.Equal(t, cfg.Journal.Stream, jc.Stream)
	assert.Equal(t, cfg.Journal.MaxBytes, jc.MaxJournalBytes)
	assert.NoError(t, jc.Validate())

	tc := cfg.Telemetry.TelemetryOptions("testsync", "1.0.0")
	assert.Equal(t, "none", tc.TraceExporter)
	assert.Equal(t, "1.0.0", tc.ServiceVersion)
}
