// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"

	"github.com/AleutianAI/testsync/pkg/logging"
	"github.com/AleutianAI/testsync/pkg/ux"
	"github.com/AleutianAI/testsync/services/testsync/config"
	"github.com/AleutianAI/testsync/services/testsync/telemetry"
	"github.com/spf13/cobra"
)

// app holds state shared by every subcommand for one invocation.
type app struct {
	configPath string
	logLevel   string
	jsonLogs   bool
	plain      bool

	cfg      config.Config
	logger   *logging.Logger
	printer  *ux.Printer
	shutdown func(context.Context) error
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "testsync",
		Short:         "Replay and store incremental test-collection op logs",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.teardown(cmd.Context())
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "path to a YAML config file")
	flags.StringVar(&a.logLevel, "log-level", "", "override the log level (debug, info, warn, error)")
	flags.BoolVar(&a.jsonLogs, "json-logs", false, "write logs as JSON")
	flags.BoolVar(&a.plain, "plain", false, "plain, tab-separated output without styling")

	root.AddCommand(newReplayCmd(a), newJournalCmd(a))
	return root
}

// setup loads configuration, applies flag overrides, and starts logging
// and telemetry.
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	if a.jsonLogs {
		cfg.Logging.Format = "json"
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	lc, err := cfg.Logging.LoggingOptions()
	if err != nil {
		return err
	}
	lc.Output = cmd.ErrOrStderr()
	if a.logger, err = logging.New(lc); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}

	a.shutdown, err = telemetry.Init(cmd.Context(), cfg.Telemetry.TelemetryOptions(cfg.Logging.Service, version))
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}

	a.printer = ux.NewPrinter(cmd.OutOrStdout(), a.plain)
	return nil
}

func (a *app) teardown(ctx context.Context) error {
	var err error
	if a.shutdown != nil {
		err = a.shutdown(ctx)
	}
	if a.logger != nil {
		if cerr := a.logger.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
