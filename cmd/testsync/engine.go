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
	"log/slog"
	"net/url"
	"os"
	"runtime"

	"github.com/AleutianAI/testsync/services/testsync/collection"
	"github.com/AleutianAI/testsync/services/testsync/diff"
	"github.com/AleutianAI/testsync/services/testsync/results"
	"golang.org/x/sync/errgroup"
)

// engine is a collection with a result run mirroring its tree.
type engine struct {
	coll   *collection.Collection
	store  *results.Store
	run    *results.Run
	logger *slog.Logger
	totals collection.BatchStats
}

func newEngine(a *app, name string) *engine {
	logger := a.logger.Slog()
	e := &engine{
		store:  results.NewStore(a.cfg.Collection.MaxRuns),
		run:    results.NewRun(name, results.WithRunLogger(logger)),
		logger: logger,
	}
	e.store.Push(e.run)

	tests := collection.CollectorFuncs{
		OnAdd: func(node *collection.Node) {
			if err := e.run.AddTest(node.ID(), node.Item.Label); err != nil {
				logger.Debug("result item not added", "item_id", node.ID().Display(), "error", err)
			}
		},
	}

	e.coll = collection.New(
		collection.WithLogger(logger),
		collection.WithCollector(collection.MultiCollector{tests, e.run.Collector()}),
		collection.WithRetireHandler(e.store.RetireHandler()),
		collection.WithDocumentSyncedHandler(e.documentSynced),
		collection.WithDanglingTagDiagnostics(a.cfg.Collection.DanglingTagDiagnostics),
	)
	return e
}

func (e *engine) documentSynced(uri *url.URL, v *int) {
	if v != nil {
		e.logger.Debug("document synced", "uri", uri.String(), "version", *v)
		return
	}
	e.logger.Debug("document synced", "uri", uri.String())
}

// apply applies one batch and accumulates its stats.
func (e *engine) apply(ctx context.Context, source string, ops []diff.Op) error {
	stats, err := e.coll.Apply(ctx, ops)
	if err != nil {
		return fmt.Errorf("apply %s: %w", source, err)
	}
	e.totals.Applied += stats.Applied
	e.totals.Dropped += stats.Dropped
	e.totals.Ignored += stats.Ignored
	e.logger.Info("applied batch",
		"source", source,
		"ops", len(ops),
		"applied", stats.Applied,
		"dropped", stats.Dropped,
		"ignored", stats.Ignored,
	)
	return nil
}

// decodeLogs decodes every op log concurrently. The result is indexed
// like paths so batches can be applied in argument order.
func decodeLogs(ctx context.Context, paths []string) ([][]diff.Op, error) {
	batches := make([][]diff.Op, len(paths))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, path := range paths {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			ops, err := decodeFile(path)
			if err != nil {
				return err
			}
			batches[i] = ops
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return batches, nil
}

func decodeFile(path string) ([]diff.Op, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open op log: %w", err)
	}
	defer f.Close()

	ops, err := diff.DecodeAll(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return ops, nil
}
