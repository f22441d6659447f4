// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package model

import (
	"net/url"
	"slices"

	"github.com/AleutianAI/testsync/services/testsync/ident"
)

// ItemPatch is a partial change to an Item.
//
// Description:
//
//	Only fields that are set (Opt.IsSet) change the target. A set field
//	fully replaces the old value, including when it holds nil or "".
//	The item ID is never patched.
type ItemPatch struct {
	Label       Opt[string]
	Tags        Opt[[]string]
	Busy        Opt[bool]
	URI         Opt[*url.URL]
	Range       Opt[*Range]
	Description Opt[string]
	Error       Opt[*Message]
	SortText    Opt[string]
}

// IsEmpty reports whether the patch changes nothing.
func (p ItemPatch) IsEmpty() bool {
	return !p.Label.IsSet() &&
		!p.Tags.IsSet() &&
		!p.Busy.IsSet() &&
		!p.URI.IsSet() &&
		!p.Range.IsSet() &&
		!p.Description.IsSet() &&
		!p.Error.IsSet() &&
		!p.SortText.IsSet()
}

// ApplyTo shallow-merges the set fields of p into item. Reference values
// are copied so item shares no memory with p.
func (p ItemPatch) ApplyTo(item *Item) {
	if v, ok := p.Label.Get(); ok {
		item.Label = v
	}
	if v, ok := p.Tags.Get(); ok {
		item.Tags = slices.Clone(v)
	}
	if v, ok := p.Busy.Get(); ok {
		item.Busy = v
	}
	if v, ok := p.URI.Get(); ok {
		item.URI = clonePtr(v)
	}
	if v, ok := p.Range.Get(); ok {
		item.Range = clonePtr(v)
	}
	if v, ok := p.Description.Get(); ok {
		item.Description = v
	}
	if v, ok := p.Error.Get(); ok {
		item.Error = clonePtr(v)
	}
	if v, ok := p.SortText.Get(); ok {
		item.SortText = v
	}
}

// Merge returns a patch equivalent to applying p and then later.
func (p ItemPatch) Merge(later ItemPatch) ItemPatch {
	out := p
	if later.Label.IsSet() {
		out.Label = later.Label
	}
	if later.Tags.IsSet() {
		out.Tags = later.Tags
	}
	if later.Busy.IsSet() {
		out.Busy = later.Busy
	}
	if later.URI.IsSet() {
		out.URI = later.URI
	}
	if later.Range.IsSet() {
		out.Range = later.Range
	}
	if later.Description.IsSet() {
		out.Description = later.Description
	}
	if later.Error.IsSet() {
		out.Error = later.Error
	}
	if later.SortText.IsSet() {
		out.SortText = later.SortText
	}
	return out
}

// ItemUpdate is a partial change to one node, keyed by its identifier.
type ItemUpdate struct {
	// ID identifies the node to change.
	ID ident.ID

	// Expand is the new expand state, if it changed.
	Expand Opt[ExpandState]

	// Item carries the changed payload fields.
	Item ItemPatch
}

// ApplyTo merges the update into n. The caller is responsible for any
// bookkeeping tied to expand-state transitions.
func (u ItemUpdate) ApplyTo(n *InternalItem) {
	if v, ok := u.Expand.Get(); ok {
		n.Expand = v
	}
	u.Item.ApplyTo(&n.Item)
}

// Merge returns an update equivalent to applying u and then later.
// The identifier of u is kept.
func (u ItemUpdate) Merge(later ItemUpdate) ItemUpdate {
	out := u
	if later.Expand.IsSet() {
		out.Expand = later.Expand
	}
	out.Item = u.Item.Merge(later.Item)
	return out
}

func clonePtr[T any](v *T) *T {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
