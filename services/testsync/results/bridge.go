// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package results

import (
	"slices"

	"github.com/AleutianAI/testsync/services/testsync/collection"
)

// runCollector keeps a run in step with the test tree.
type runCollector struct {
	collection.NopCollector
	run *Run
}

// Collector returns a collection.Collector that mirrors tree changes into
// the run: label changes are copied to existing result items, and removed
// nodes take their results with them. Sealed runs are left untouched.
func (r *Run) Collector() collection.Collector {
	return &runCollector{run: r}
}

func (c *runCollector) Add(node *collection.Node) {
	c.relabel(node)
}

func (c *runCollector) Update(node *collection.Node) {
	c.relabel(node)
}

func (c *runCollector) relabel(node *collection.Node) {
	r := c.run
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return
	}
	if item, ok := r.items[node.ID()]; ok {
		item.label = node.Item.Label
	}
}

func (c *runCollector) Remove(node *collection.Node, nested bool) {
	// Descendants go with their removed ancestor.
	if nested {
		return
	}
	r := c.run
	r.mu.Lock()
	if r.sealed {
		r.mu.Unlock()
		return
	}
	changes := r.removeLocked(node.ID())
	listeners := slices.Clone(r.listeners)
	r.mu.Unlock()

	r.emit(listeners, changes)
}
