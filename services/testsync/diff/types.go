// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package diff defines the diff operation log: the closed set of mutations
// that replicate a test collection from a producer to a consumer.
//
// Each operation kind is its own struct implementing Op. Consumers dispatch
// with a single type switch; the unexported marker method keeps the set
// closed to this package.
//
// Wire conversion lives in wire.go and the line-delimited stream codec in
// codec.go. Queue (queue.go) is the producer-side buffer that coalesces
// redundant operations before a batch is shipped.
package diff

import (
	"fmt"
	"net/url"

	"github.com/AleutianAI/testsync/services/testsync/ident"
	"github.com/AleutianAI/testsync/services/testsync/model"
)

// OpType is the wire discriminator of an operation.
type OpType int

const (
	// OpAdd inserts a node.
	OpAdd OpType = iota

	// OpUpdate applies a partial patch to a node.
	OpUpdate

	// OpRemove removes a node and its subtree.
	OpRemove

	// OpRetire marks results for a node as stale.
	OpRetire

	// OpIncrementPendingRoots adjusts the pending root counter.
	OpIncrementPendingRoots

	// OpAddTag registers a tag.
	OpAddTag

	// OpRemoveTag unregisters a tag.
	OpRemoveTag

	// OpDocumentSynced is a per-document synchronization checkpoint.
	OpDocumentSynced
)

// String returns a short lowercase name, also used as a metric label.
func (t OpType) String() string {
	switch t {
	case OpAdd:
		return "add"
	case OpUpdate:
		return "update"
	case OpRemove:
		return "remove"
	case OpRetire:
		return "retire"
	case OpIncrementPendingRoots:
		return "increment_pending_roots"
	case OpAddTag:
		return "add_tag"
	case OpRemoveTag:
		return "remove_tag"
	case OpDocumentSynced:
		return "document_synced"
	default:
		return fmt.Sprintf("op(%d)", int(t))
	}
}

// Op is one diff operation. Implementations are value types and must not
// be mutated after they are appended to a log.
type Op interface {
	// Type returns the discriminator of the operation.
	Type() OpType

	isOp()
}

// =============================================================================
// Operations
// =============================================================================

// Add inserts Item into the collection. The parent is derived from the
// item identifier and must already be present unless the item is a root.
type Add struct {
	Item model.InternalItem
}

// Update merges Patch into an existing node.
type Update struct {
	Patch model.ItemUpdate
}

// Remove deletes the node and every descendant.
type Remove struct {
	ID ident.ID
}

// Retire marks results for the node as stale without touching the tree.
type Retire struct {
	ID ident.ID
}

// IncrementPendingRoots adds Delta, which may be negative, to the pending
// root counter.
type IncrementPendingRoots struct {
	Delta int
}

// AddTag registers Tag in the tag registry.
type AddTag struct {
	Tag model.Tag
}

// RemoveTag unregisters the tag with ID.
type RemoveTag struct {
	ID string
}

// DocumentSynced signals that the producer has finished processing the
// document at URI, optionally at a specific Version.
type DocumentSynced struct {
	URI     *url.URL
	Version *int
}

func (Add) Type() OpType                   { return OpAdd }
func (Update) Type() OpType                { return OpUpdate }
func (Remove) Type() OpType                { return OpRemove }
func (Retire) Type() OpType                { return OpRetire }
func (IncrementPendingRoots) Type() OpType { return OpIncrementPendingRoots }
func (AddTag) Type() OpType                { return OpAddTag }
func (RemoveTag) Type() OpType             { return OpRemoveTag }
func (DocumentSynced) Type() OpType        { return OpDocumentSynced }

func (Add) isOp()                   {}
func (Update) isOp()                {}
func (Remove) isOp()                {}
func (Retire) isOp()                {}
func (IncrementPendingRoots) isOp() {}
func (AddTag) isOp()                {}
func (RemoveTag) isOp()             {}
func (DocumentSynced) isOp()        {}

// TargetID returns the node identifier an operation refers to, if any.
func TargetID(op Op) (ident.ID, bool) {
	switch o := op.(type) {
	case Add:
		return o.Item.ID(), true
	case Update:
		return o.Patch.ID, true
	case Remove:
		return o.ID, true
	case Retire:
		return o.ID, true
	default:
		return "", false
	}
}

// Validate returns ErrNilOp if any element of ops is nil.
func Validate(ops []Op) error {
	for i, op := range ops {
		if op == nil {
			return fmt.Errorf("%w: index %d", ErrNilOp, i)
		}
	}
	return nil
}
