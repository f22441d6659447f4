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
	"path/filepath"

	"github.com/AleutianAI/testsync/services/testsync/journal"
	"github.com/spf13/cobra"
)

func newJournalCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Manage the durable op journal",
	}
	cmd.AddCommand(
		newJournalImportCmd(a),
		newJournalShowCmd(a),
		newJournalCompactCmd(a),
	)
	return cmd
}

func (a *app) openJournal(ctx context.Context) (*journal.Journal, error) {
	cfg := a.cfg.Journal.JournalOptions(a.logger.Slog())
	j, err := journal.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	return j, nil
}

// rebuild replays the journal into a fresh engine.
func (a *app) rebuild(ctx context.Context, j *journal.Journal) (*engine, int, error) {
	batches, err := j.Replay(ctx)
	if err != nil {
		return nil, 0, err
	}
	e := newEngine(a, "journal")
	for _, b := range batches {
		if err := e.apply(ctx, fmt.Sprintf("seq %d", b.Seq), b.Ops); err != nil {
			return nil, 0, err
		}
	}
	return e, len(batches), nil
}

func newJournalImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE...",
		Short: "Append op logs to the journal, one entry per file",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			batches, err := decodeLogs(ctx, args)
			if err != nil {
				return err
			}

			j, err := a.openJournal(ctx)
			if err != nil {
				return err
			}
			defer j.Close()

			for i, ops := range batches {
				seq, err := j.Append(ctx, ops)
				if err != nil {
					return fmt.Errorf("append %s: %w", args[i], err)
				}
				a.printer.Info(fmt.Sprintf("%s -> seq %d (%d ops)", filepath.Base(args[i]), seq, len(ops)))
			}
			a.printer.Success(fmt.Sprintf("imported %d file(s)", len(args)))
			printJournalStats(a.printer, j.Stats())
			return nil
		},
	}
}

func newJournalShowCmd(a *app) *cobra.Command {
	var tree bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Replay the journal and print the resulting collection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			j, err := a.openJournal(ctx)
			if err != nil {
				return err
			}
			defer j.Close()

			e, n, err := a.rebuild(ctx, j)
			if err != nil {
				return err
			}
			printSummary(a.printer, e, n)
			printJournalStats(a.printer, j.Stats())
			if tree {
				printTree(a.printer, e)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&tree, "tree", false, "print the resulting collection")
	return cmd
}

func newJournalCompactCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "compact",
		Short: "Replace journal history with a single entry rebuilding the current collection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			j, err := a.openJournal(ctx)
			if err != nil {
				return err
			}
			defer j.Close()

			e, n, err := a.rebuild(ctx, j)
			if err != nil {
				return err
			}
			if err := j.Compact(ctx, e.coll.ReviverDiff()); err != nil {
				return fmt.Errorf("compact journal: %w", err)
			}
			a.printer.Success(fmt.Sprintf("compacted %d entries into one", n))
			printJournalStats(a.printer, j.Stats())
			return nil
		},
	}
}
