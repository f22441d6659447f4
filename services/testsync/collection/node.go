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

import (
	"slices"

	"github.com/AleutianAI/testsync/services/testsync/ident"
	"github.com/AleutianAI/testsync/services/testsync/model"
)

// Node is one live entry of the collection: the replicated item plus the
// identifiers of its direct children.
//
// Children are tracked by identifier only. Subtree membership is derived
// by following children through the collection map.
type Node struct {
	model.InternalItem

	children map[ident.ID]struct{}
}

// newNode wraps item. The controller ID is always reset to the root
// segment of the identifier, whatever the producer sent.
func newNode(item model.InternalItem) *Node {
	item.ControllerID = string(ident.RootOf(item.ID()))
	return &Node{InternalItem: item, children: make(map[ident.ID]struct{})}
}

// Parent returns the parent identifier, or false for a root.
func (n *Node) Parent() (ident.ID, bool) {
	return ident.ParentOf(n.ID())
}

// Children returns the direct child identifiers in sorted order.
func (n *Node) Children() []ident.ID {
	out := make([]ident.ID, 0, len(n.children))
	for id := range n.children {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// ChildCount returns the number of direct children.
func (n *Node) ChildCount() int {
	return len(n.children)
}
