// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package model defines the payload of a test tree node and its wire form.
//
// # In-memory vs wire
//
// In-memory values use rich Go types (url.URL, zero-based Range, Message).
// Wire values (the Serialized* types in wire.go) are plain JSON structures.
// Every Serialize* function has a Deserialize* inverse and the pair is
// lossless for every serialized field.
//
// # Ownership
//
// Values in this package are plain data. Item and InternalItem are copied
// by value; slices and pointers inside them must not be mutated after they
// are handed to a collection. Use Clone when a private copy is needed.
package model

import (
	"fmt"
	"net/url"
	"slices"

	"github.com/AleutianAI/testsync/services/testsync/ident"
)

// =============================================================================
// Expand State
// =============================================================================

// ExpandState describes whether a node can reveal more children.
type ExpandState int

const (
	// NotExpandable nodes have no lazily-discovered children.
	NotExpandable ExpandState = iota

	// Expandable nodes may have children that are not yet discovered.
	Expandable

	// BusyExpanding nodes are currently discovering children.
	BusyExpanding

	// Expanded nodes have discovered all their children.
	Expanded
)

// String returns the state name.
func (s ExpandState) String() string {
	switch s {
	case NotExpandable:
		return "not_expandable"
	case Expandable:
		return "expandable"
	case BusyExpanding:
		return "busy_expanding"
	case Expanded:
		return "expanded"
	default:
		return fmt.Sprintf("expand_state(%d)", int(s))
	}
}

// Valid reports whether s is one of the defined states.
func (s ExpandState) Valid() bool {
	return s >= NotExpandable && s <= Expanded
}

// =============================================================================
// Locations
// =============================================================================

// Position is a zero-based line/character offset.
type Position struct {
	Line      int
	Character int
}

// Before reports whether p sorts strictly before other.
func (p Position) Before(other Position) bool {
	return p.Line < other.Line || (p.Line == other.Line && p.Character < other.Character)
}

// Range is a zero-based, end-exclusive span in a document.
type Range struct {
	Start Position
	End   Position
}

// IsEmpty reports whether the range covers no characters.
func (r Range) IsEmpty() bool {
	return r.Start == r.End
}

// Contains reports whether p lies inside r.
func (r Range) Contains(p Position) bool {
	return !p.Before(r.Start) && p.Before(r.End)
}

// =============================================================================
// Messages
// =============================================================================

// Message is human-readable text that is either plain or markdown.
type Message struct {
	// Value is the text.
	Value string

	// Markdown marks Value as markdown rather than plain text.
	Markdown bool

	// IsTrusted allows command links inside markdown.
	IsTrusted bool

	// SupportThemeIcons allows $(icon) syntax inside markdown.
	SupportThemeIcons bool
}

// PlainText returns a plain text message.
func PlainText(s string) *Message {
	return &Message{Value: s}
}

// Markdown returns a markdown message.
func Markdown(s string) *Message {
	return &Message{Value: s, Markdown: true}
}

// String returns the raw text.
func (m *Message) String() string {
	if m == nil {
		return ""
	}
	return m.Value
}

// =============================================================================
// Tags
// =============================================================================

// Tag is a category label that nodes can reference by ID.
type Tag struct {
	// ID identifies the tag. Usually namespaced with ident.NamespaceTag.
	ID string `json:"id"`
}

// =============================================================================
// Item
// =============================================================================

// Item is the user-visible payload of a test tree node.
type Item struct {
	// ID is the full identifier of the node.
	ID ident.ID

	// Label is the display name.
	Label string

	// Tags lists the tag IDs applied to the node.
	Tags []string

	// Busy marks the node as doing work (e.g. resolving children).
	Busy bool

	// URI locates the source document, or nil.
	URI *url.URL

	// Range locates the node inside URI, or nil.
	Range *Range

	// Description is optional secondary text.
	Description string

	// Error is a discovery error shown in place of children, or nil.
	Error *Message

	// SortText overrides Label for ordering when non-empty.
	SortText string
}

// Clone returns a deep copy of the item.
func (i Item) Clone() Item {
	out := i
	out.Tags = slices.Clone(i.Tags)
	out.URI = clonePtr(i.URI)
	out.Range = clonePtr(i.Range)
	out.Error = clonePtr(i.Error)
	return out
}

// SortKey returns SortText when set, otherwise Label.
func (i Item) SortKey() string {
	if i.SortText != "" {
		return i.SortText
	}
	return i.Label
}

// HasTag reports whether the item references tagID.
func (i Item) HasTag(tagID string) bool {
	return slices.Contains(i.Tags, tagID)
}

// =============================================================================
// Internal Item
// =============================================================================

// InternalItem is the replicated state of one tree node.
//
// Description:
//
//	Pairs an Item with the owning controller and the expand state. The
//	children of a node are not part of this value; the collection engine
//	tracks them separately from the identifier scheme.
type InternalItem struct {
	// ControllerID names the owning controller. It always equals the
	// root segment of Item.ID.
	ControllerID string

	// Expand is the node's expand state.
	Expand ExpandState

	// Item is the node payload.
	Item Item
}

// NewInternalItem builds an InternalItem with the controller derived from
// the item identifier.
func NewInternalItem(item Item, expand ExpandState) InternalItem {
	return InternalItem{
		ControllerID: string(ident.RootOf(item.ID)),
		Expand:       expand,
		Item:         item,
	}
}

// ID returns the node identifier.
func (n InternalItem) ID() ident.ID {
	return n.Item.ID
}

// Clone returns a deep copy.
func (n InternalItem) Clone() InternalItem {
	n.Item = n.Item.Clone()
	return n
}
