// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package collection implements the incremental test collection engine.
//
// A Collection holds a tree of test items replicated from a producer. The
// producer ships an ordered log of diff operations; Apply consumes one batch
// of that log strictly in order, mutating the tree, keeping derived counters
// current, and reporting every structural change to a Collector.
//
// # Tree Shape
//
// Parent/child relationships are derived from identifiers (see package
// ident). Each node records the identifiers of its direct children and
// nothing else. No node holds a reference to another node.
//
// # Failure Handling
//
// Tree-consistency problems never fail a batch:
//
//   - Add for an identifier whose parent is absent, or that is already
//     live, is dropped and logged at Warn.
//   - Update, Remove and Retire for unknown identifiers are ignored and
//     logged at Debug. They are expected when removals race with updates.
//   - Tags referenced by nodes need not be registered.
//
// The only error Apply returns is ErrNilOp, before anything is applied.
//
// # Thread Safety
//
// A Collection is not safe for concurrent use. Batches must be applied by a
// single consumer, one at a time, in log order. Collector hooks must not
// call Apply on the same Collection.
package collection

import (
	"context"
	"log/slog"
	"net/url"
	"slices"

	"github.com/AleutianAI/testsync/services/testsync/diff"
	"github.com/AleutianAI/testsync/services/testsync/ident"
	"github.com/AleutianAI/testsync/services/testsync/model"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// RetireHandler is called for Retire operations on live nodes.
type RetireHandler func(id ident.ID)

// DocumentSyncedHandler is called for every DocumentSynced operation.
type DocumentSyncedHandler func(uri *url.URL, version *int)

// Option configures a Collection.
type Option func(*Collection)

// WithLogger sets the logger for diagnostics. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Collection) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithCollectorFactory sets the function that creates a fresh Collector
// for each batch. Defaults to a NopCollector.
func WithCollectorFactory(factory func() Collector) Option {
	return func(c *Collection) {
		if factory != nil {
			c.newCollector = factory
		}
	}
}

// WithCollector uses the same collector for every batch.
func WithCollector(collector Collector) Option {
	return WithCollectorFactory(func() Collector { return collector })
}

// WithRetireHandler sets the handler for Retire operations.
func WithRetireHandler(fn RetireHandler) Option {
	return func(c *Collection) {
		c.onRetire = fn
	}
}

// WithDocumentSyncedHandler sets the handler for DocumentSynced operations.
func WithDocumentSyncedHandler(fn DocumentSyncedHandler) Option {
	return func(c *Collection) {
		c.onDocumentSynced = fn
	}
}

// WithDanglingTagDiagnostics logs, at Debug, tags referenced by added or
// updated nodes that are not in the registry.
func WithDanglingTagDiagnostics(enabled bool) Option {
	return func(c *Collection) {
		c.danglingTags = enabled
	}
}

// BatchStats summarises one call to Apply.
type BatchStats struct {
	// Applied counts operations that took effect.
	Applied int

	// Dropped counts structurally invalid Add operations.
	Dropped int

	// Ignored counts operations referencing unknown identifiers.
	Ignored int
}

// Collection is the replicated test tree.
type Collection struct {
	nodes   map[ident.ID]*Node
	roots   map[ident.ID]struct{}
	tags    *TagRegistry
	busy    int
	pending int

	newCollector     func() Collector
	onRetire         RetireHandler
	onDocumentSynced DocumentSyncedHandler
	danglingTags     bool
	logger           *slog.Logger
}

// New creates an empty collection.
func New(opts ...Option) *Collection {
	c := &Collection{
		nodes:        make(map[ident.ID]*Node),
		roots:        make(map[ident.ID]struct{}),
		tags:         newTagRegistry(),
		newCollector: func() Collector { return NopCollector{} },
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// =============================================================================
// Apply
// =============================================================================

// Apply consumes one batch of operations in order.
//
// Description:
//
//	Each operation is applied in turn and reported to a Collector obtained
//	from the collector factory. After the last operation the collector's
//	Complete hook fires exactly once, also for an empty batch.
//
// Inputs:
//
//	ctx - Used for tracing only. Apply never blocks and is not cancellable.
//	ops - The batch, in log order.
//
// Outputs:
//
//	BatchStats - Counts of applied, dropped and ignored operations.
//	error - ErrNilOp if ops holds a nil element. Nothing is applied then.
//
// Thread Safety:
//
//	Not safe for concurrent use.
func (c *Collection) Apply(ctx context.Context, ops []diff.Op) (BatchStats, error) {
	_, span := tracer.Start(ctx, "Collection.Apply",
		trace.WithAttributes(attribute.Int("ops", len(ops))),
	)
	defer span.End()

	if err := diff.Validate(ops); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "nil op")
		return BatchStats{}, err
	}

	batchSize.Observe(float64(len(ops)))

	collector := c.newCollector()
	var stats BatchStats
	for _, op := range ops {
		opsTotal.WithLabelValues(op.Type().String()).Inc()

		switch c.applyOne(op, collector) {
		case outcomeApplied:
			stats.Applied++
		case outcomeDropped:
			stats.Dropped++
		case outcomeIgnored:
			stats.Ignored++
		}
	}
	collector.Complete()

	span.SetAttributes(
		attribute.Int("applied", stats.Applied),
		attribute.Int("dropped", stats.Dropped),
		attribute.Int("ignored", stats.Ignored),
		attribute.Int("busy", c.busy),
		attribute.Int("pending", c.pending),
	)
	return stats, nil
}

type outcome int

const (
	outcomeApplied outcome = iota
	outcomeDropped
	outcomeIgnored
)

func (c *Collection) applyOne(op diff.Op, collector Collector) outcome {
	switch o := op.(type) {
	case diff.Add:
		return c.add(o, collector)
	case diff.Update:
		return c.update(o, collector)
	case diff.Remove:
		return c.remove(o, collector)
	case diff.Retire:
		return c.retire(o)
	case diff.IncrementPendingRoots:
		c.pending += o.Delta
		return outcomeApplied
	case diff.AddTag:
		c.tags.add(o.Tag)
		return outcomeApplied
	case diff.RemoveTag:
		c.tags.remove(o.ID)
		return outcomeApplied
	case diff.DocumentSynced:
		if c.onDocumentSynced != nil {
			c.onDocumentSynced(o.URI, o.Version)
		}
		return outcomeApplied
	default:
		// Unreachable while the Op set is closed.
		c.logger.Error("unhandled diff operation", slog.String("op", op.Type().String()))
		return outcomeIgnored
	}
}

func (c *Collection) add(op diff.Add, collector Collector) outcome {
	id := op.Item.ID()

	if _, exists := c.nodes[id]; exists {
		opsDropped.WithLabelValues(dropDuplicate).Inc()
		c.logger.Warn("dropping add for live test item",
			slog.String("op", diff.OpAdd.String()),
			slog.String("item_id", id.Display()),
		)
		return outcomeDropped
	}

	node := newNode(op.Item.Clone())
	if parentID, ok := ident.ParentOf(id); ok {
		parent, found := c.nodes[parentID]
		if !found {
			opsDropped.WithLabelValues(dropOrphan).Inc()
			c.logger.Warn("dropping add for test item with missing parent",
				slog.String("op", diff.OpAdd.String()),
				slog.String("item_id", id.Display()),
				slog.String("parent_id", parentID.Display()),
			)
			return outcomeDropped
		}
		parent.children[id] = struct{}{}
	} else {
		c.roots[id] = struct{}{}
	}

	c.nodes[id] = node
	if node.Expand == model.BusyExpanding {
		c.busy++
	}
	c.checkTags(node)

	collector.Add(node)
	return outcomeApplied
}

func (c *Collection) update(op diff.Update, collector Collector) outcome {
	node, ok := c.nodes[op.Patch.ID]
	if !ok {
		c.ignoreStale(diff.OpUpdate, op.Patch.ID)
		return outcomeIgnored
	}

	before := node.Expand
	op.Patch.ApplyTo(&node.InternalItem)
	after := node.Expand

	if before != after {
		if before == model.BusyExpanding {
			c.busy--
		}
		if after == model.BusyExpanding {
			c.busy++
		}
	}
	if op.Patch.Item.Tags.IsSet() {
		c.checkTags(node)
	}

	collector.Update(node)
	return outcomeApplied
}

func (c *Collection) remove(op diff.Remove, collector Collector) outcome {
	target, ok := c.nodes[op.ID]
	if !ok {
		c.ignoreStale(diff.OpRemove, op.ID)
		return outcomeIgnored
	}

	if parentID, hasParent := target.Parent(); hasParent {
		if parent, found := c.nodes[parentID]; found {
			delete(parent.children, op.ID)
		}
	} else {
		delete(c.roots, op.ID)
	}

	// Pre-order: every node is reported before its descendants.
	stack := []*Node{target}
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		delete(c.nodes, node.ID())
		if node.Expand == model.BusyExpanding {
			c.busy--
		}
		collector.Remove(node, node != target)

		children := node.Children()
		for i := len(children) - 1; i >= 0; i-- {
			if child, found := c.nodes[children[i]]; found {
				stack = append(stack, child)
			}
		}
	}
	return outcomeApplied
}

func (c *Collection) retire(op diff.Retire) outcome {
	if _, ok := c.nodes[op.ID]; !ok {
		c.ignoreStale(diff.OpRetire, op.ID)
		return outcomeIgnored
	}
	if c.onRetire != nil {
		c.onRetire(op.ID)
	}
	return outcomeApplied
}

func (c *Collection) ignoreStale(op diff.OpType, id ident.ID) {
	opsDropped.WithLabelValues(dropStale).Inc()
	c.logger.Debug("ignoring operation for unknown test item",
		slog.String("op", op.String()),
		slog.String("item_id", id.Display()),
	)
}

func (c *Collection) checkTags(node *Node) {
	if !c.danglingTags {
		return
	}
	for _, tag := range node.Item.Tags {
		if !c.tags.Has(tag) {
			c.logger.Debug("test item references unregistered tag",
				slog.String("item_id", node.ID().Display()),
				slog.String("tag_id", tag),
			)
		}
	}
}

// =============================================================================
// Accessors
// =============================================================================

// Get returns the live node with id. The node must be treated as read-only.
func (c *Collection) Get(id ident.ID) (*Node, bool) {
	n, ok := c.nodes[id]
	return n, ok
}

// Len returns the number of live nodes.
func (c *Collection) Len() int {
	return len(c.nodes)
}

// Roots returns the root identifiers in sorted order.
func (c *Collection) Roots() []ident.ID {
	out := make([]ident.ID, 0, len(c.roots))
	for id := range c.roots {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// BusyControllerCount returns the number of live nodes in BusyExpanding.
func (c *Collection) BusyControllerCount() int {
	return c.busy
}

// PendingRootCount returns the outstanding pending root count.
func (c *Collection) PendingRootCount() int {
	return c.pending
}

// Tags returns the tag registry.
func (c *Collection) Tags() *TagRegistry {
	return c.tags
}

// Walk visits every node in pre-order, roots and siblings sorted by
// identifier. depth is 0 for roots. Returning false from fn skips the
// node's subtree.
func (c *Collection) Walk(fn func(node *Node, depth int) bool) {
	var visit func(id ident.ID, depth int)
	visit = func(id ident.ID, depth int) {
		node, ok := c.nodes[id]
		if !ok {
			return
		}
		if !fn(node, depth) {
			return
		}
		for _, child := range node.Children() {
			visit(child, depth+1)
		}
	}
	for _, root := range c.Roots() {
		visit(root, 0)
	}
}

// ReviverDiff returns a batch that rebuilds this collection when applied
// to an empty one: the pending root count, every tag, then every node
// with parents before children.
func (c *Collection) ReviverDiff() []diff.Op {
	ops := make([]diff.Op, 0, 1+c.tags.Len()+len(c.nodes))
	ops = append(ops, diff.IncrementPendingRoots{Delta: c.pending})
	for _, tag := range c.tags.List() {
		ops = append(ops, diff.AddTag{Tag: tag})
	}
	c.Walk(func(node *Node, _ int) bool {
		ops = append(ops, diff.Add{Item: node.InternalItem.Clone()})
		return true
	})
	return ops
}
