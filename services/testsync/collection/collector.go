// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package collection

// Collector observes structural mutations made by Apply.
//
// Description:
//
//	Apply calls Add, Update and Remove as it mutates the tree and calls
//	Complete exactly once after the whole batch, marking a consistent
//	point. Embed NopCollector to implement only the hooks you need.
//
//	Nodes passed to hooks are owned by the collection and must be treated
//	as read-only. Hooks must not call Apply on the same collection.
type Collector interface {
	// Add is called after node is inserted.
	Add(node *Node)

	// Update is called after a patch is merged into node.
	Update(node *Node)

	// Remove is called once per removed node. nested is false for the node
	// targeted by the Remove operation and true for descendants removed
	// with it.
	Remove(node *Node, nested bool)

	// Complete is called once per batch after every operation is applied.
	Complete()
}

// NopCollector implements Collector with no-op hooks.
type NopCollector struct{}

func (NopCollector) Add(*Node)          {}
func (NopCollector) Update(*Node)       {}
func (NopCollector) Remove(*Node, bool) {}
func (NopCollector) Complete()          {}

// CollectorFuncs adapts optional functions to a Collector. Nil fields are
// no-ops.
type CollectorFuncs struct {
	OnAdd      func(node *Node)
	OnUpdate   func(node *Node)
	OnRemove   func(node *Node, nested bool)
	OnComplete func()
}

func (f CollectorFuncs) Add(node *Node) {
	if f.OnAdd != nil {
		f.OnAdd(node)
	}
}

func (f CollectorFuncs) Update(node *Node) {
	if f.OnUpdate != nil {
		f.OnUpdate(node)
	}
}

func (f CollectorFuncs) Remove(node *Node, nested bool) {
	if f.OnRemove != nil {
		f.OnRemove(node, nested)
	}
}

func (f CollectorFuncs) Complete() {
	if f.OnComplete != nil {
		f.OnComplete()
	}
}

// MultiCollector fans every hook out to each collector in order.
type MultiCollector []Collector

func (m MultiCollector) Add(node *Node) {
	for _, c := range m {
		c.Add(node)
	}
}

func (m MultiCollector) Update(node *Node) {
	for _, c := range m {
		c.Update(node)
	}
}

func (m MultiCollector) Remove(node *Node, nested bool) {
	for _, c := range m {
		c.Remove(node, nested)
	}
}

func (m MultiCollector) Complete() {
	for _, c := range m {
		c.Complete()
	}
}
