// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ident implements the test identifier scheme.
//
// A test identifier is an opaque string that encodes the full path from a
// controller root down to a test item. Segments are joined with a reserved
// delimiter (NUL) that is never permitted inside a segment, so the parent of
// any identifier can be computed by pure string manipulation:
//
//	"ctrl"                 root (no delimiter)
//	"ctrl\x00suite"        child of "ctrl"
//	"ctrl\x00suite\x00t1"  child of "ctrl\x00suite"
//
// No lookup is ever needed to answer "who is my parent?". The collection
// engine relies on this and never trusts a parent supplied from elsewhere.
//
// # Thread Safety
//
// All functions are pure and safe for concurrent use.
package ident

import (
	"fmt"
	"strings"
)

// Delimiter separates identifier segments.
const Delimiter = '\x00'

// displaySeparator is used by Display to render identifiers for humans.
const displaySeparator = " ▸ "

// ID is a delimiter-joined test identifier.
//
// The zero value is not a valid identifier.
type ID string

// =============================================================================
// Construction
// =============================================================================

// New joins segments into an identifier.
//
// Description:
//
//	Validates every segment and joins them with Delimiter. The first
//	segment is the controller root.
//
// Inputs:
//
//	segments - One or more non-empty segments without the delimiter.
//
// Outputs:
//
//	ID - The joined identifier.
//	error - ErrEmptySegment or ErrInvalidSegment on bad input.
func New(segments ...string) (ID, error) {
	if len(segments) == 0 {
		return "", fmt.Errorf("%w: no segments", ErrEmptySegment)
	}
	for i, s := range segments {
		if err := validateSegment(s); err != nil {
			return "", fmt.Errorf("segment %d: %w", i, err)
		}
	}
	return ID(strings.Join(segments, string(Delimiter))), nil
}

// MustNew is like New but panics on invalid input.
//
// Intended for tests and static identifiers.
func MustNew(segments ...string) ID {
	id, err := New(segments...)
	if err != nil {
		panic(err)
	}
	return id
}

// Child returns the identifier of a direct child of id.
func (id ID) Child(local string) (ID, error) {
	if err := validateSegment(local); err != nil {
		return "", err
	}
	return id + ID(Delimiter) + ID(local), nil
}

func validateSegment(s string) error {
	if s == "" {
		return ErrEmptySegment
	}
	if strings.ContainsRune(s, Delimiter) {
		return fmt.Errorf("%w: %q", ErrInvalidSegment, s)
	}
	return nil
}

// =============================================================================
// Structure
// =============================================================================

// ParentOf returns the parent identifier of id.
//
// Description:
//
//	Strips everything from the last delimiter onward. Returns false when
//	id contains no delimiter, meaning it is a root.
func ParentOf(id ID) (ID, bool) {
	i := strings.LastIndexByte(string(id), Delimiter)
	if i < 0 {
		return "", false
	}
	return id[:i], true
}

// RootOf returns the first segment of id, which names the owning controller.
func RootOf(id ID) ID {
	if i := strings.IndexByte(string(id), Delimiter); i >= 0 {
		return id[:i]
	}
	return id
}

// Parent is the method form of ParentOf.
func (id ID) Parent() (ID, bool) { return ParentOf(id) }

// Root is the method form of RootOf.
func (id ID) Root() ID { return RootOf(id) }

// IsRoot reports whether id has no parent.
func (id ID) IsRoot() bool {
	return strings.IndexByte(string(id), Delimiter) < 0
}

// LocalID returns the last segment of id.
func (id ID) LocalID() string {
	i := strings.LastIndexByte(string(id), Delimiter)
	return string(id[i+1:])
}

// Segments splits id into its path segments.
func (id ID) Segments() []string {
	if id == "" {
		return nil
	}
	return strings.Split(string(id), string(Delimiter))
}

// Depth returns the number of ancestors of id. Roots have depth 0.
func (id ID) Depth() int {
	return strings.Count(string(id), string(Delimiter))
}

// Ancestors returns the ancestors of id ordered from the root downward.
// The identifier itself is not included.
func (id ID) Ancestors() []ID {
	var out []ID
	for i := 0; i < len(id); i++ {
		if id[i] == Delimiter {
			out = append(out, id[:i])
		}
	}
	return out
}

// String returns the raw identifier.
func (id ID) String() string { return string(id) }

// Display renders id with a visible separator, for logs and terminals.
func (id ID) Display() string {
	return strings.ReplaceAll(string(id), string(Delimiter), displaySeparator)
}

// =============================================================================
// Relationships
// =============================================================================

// IsPrefixOf reports whether a is b or an ancestor of b.
//
// The comparison is segment-aware: "ctrl\x00a" is not a prefix of
// "ctrl\x00ab".
func IsPrefixOf(a, b ID) bool {
	if len(a) > len(b) || !strings.HasPrefix(string(b), string(a)) {
		return false
	}
	return len(a) == len(b) || b[len(a)] == Delimiter
}

// IsChild reports whether child is a strict descendant of parent.
func IsChild(parent, child ID) bool {
	return len(child) > len(parent) && IsPrefixOf(parent, child)
}

// Position describes how two identifiers relate in the tree.
type Position int

const (
	// PositionDisconnected means neither identifier contains the other.
	PositionDisconnected Position = iota

	// PositionSame means the identifiers are equal.
	PositionSame

	// PositionParent means the first identifier is an ancestor of the second.
	PositionParent

	// PositionChild means the first identifier is a descendant of the second.
	PositionChild
)

// String returns the position name.
func (p Position) String() string {
	switch p {
	case PositionSame:
		return "same"
	case PositionParent:
		return "parent"
	case PositionChild:
		return "child"
	default:
		return "disconnected"
	}
}

// Compare classifies the relationship of a to b.
func Compare(a, b ID) Position {
	switch {
	case a == b:
		return PositionSame
	case IsChild(a, b):
		return PositionParent
	case IsChild(b, a):
		return PositionChild
	default:
		return PositionDisconnected
	}
}

// CommonPrefixLength returns how many leading segments a and b share.
func CommonPrefixLength(a, b ID) int {
	as, bs := a.Segments(), b.Segments()
	n := 0
	for n < len(as) && n < len(bs) && as[n] == bs[n] {
		n++
	}
	return n
}

// =============================================================================
// Tags
// =============================================================================

// NamespaceTag scopes a controller-local tag id to its controller.
func NamespaceTag(controllerID, tagID string) string {
	return controllerID + string(Delimiter) + tagID
}

// DenamespaceTag splits a namespaced tag id. When tag carries no namespace
// the controller id is empty and the whole input is returned as the tag id.
func DenamespaceTag(tag string) (controllerID, tagID string) {
	i := strings.IndexByte(tag, Delimiter)
	if i < 0 {
		return "", tag
	}
	return tag[:i], tag[i+1:]
}
