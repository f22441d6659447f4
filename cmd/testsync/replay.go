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
	"fmt"
	"path/filepath"

	"github.com/AleutianAI/testsync/services/testsync/telemetry"
	"github.com/spf13/cobra"
)

func newReplayCmd(a *app) *cobra.Command {
	var tree, metrics bool

	cmd := &cobra.Command{
		Use:   "replay FILE...",
		Short: "Apply op logs to an empty collection, one batch per file",
		Long: `Replay decodes each JSON Lines op log concurrently, then applies them
to a fresh collection in argument order. Each file is one batch.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, span := telemetry.StartSpan(cmd.Context(), "testsync.cli", "replay")
			defer span.End()

			batches, err := decodeLogs(ctx, args)
			if err != nil {
				telemetry.RecordError(span, err)
				return err
			}

			e := newEngine(a, "replay")
			for i, ops := range batches {
				if err := e.apply(ctx, filepath.Base(args[i]), ops); err != nil {
					telemetry.RecordError(span, err)
					return err
				}
			}
			e.run.Seal()

			a.printer.Success(fmt.Sprintf("replayed %d file(s)", len(args)))
			printSummary(a.printer, e, len(batches))
			if tree {
				printTree(a.printer, e)
			}
			if metrics {
				return telemetry.WriteMetrics(cmd.OutOrStdout())
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&tree, "tree", false, "print the resulting collection")
	cmd.Flags().BoolVar(&metrics, "metrics", false, "dump Prometheus metrics after replay")
	return cmd
}
