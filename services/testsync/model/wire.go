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
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/AleutianAI/testsync/services/testsync/ident"
)

// =============================================================================
// URI
// =============================================================================

// URIComponents is the wire form of a URI.
//
// Path, Query and Fragment hold the escaped forms so that encoded
// delimiters such as %2F survive the trip. Authority carries userinfo
// when present. Opaque marks URIs like untitled:Untitled-1 whose Path is
// the opaque part.
type URIComponents struct {
	Scheme    string `json:"scheme"`
	Authority string `json:"authority,omitempty"`
	Path      string `json:"path,omitempty"`
	Query     string `json:"query,omitempty"`
	Fragment  string `json:"fragment,omitempty"`
	Opaque    bool   `json:"opaque,omitempty"`
}

// SerializeURI flattens u into components. Returns nil for a nil URI.
func SerializeURI(u *url.URL) *URIComponents {
	if u == nil {
		return nil
	}
	c := &URIComponents{
		Scheme:    u.Scheme,
		Authority: u.Host,
		Query:     u.RawQuery,
		Fragment:  u.EscapedFragment(),
	}
	if u.User != nil {
		c.Authority = u.User.String() + "@" + u.Host
	}
	if u.Opaque != "" {
		c.Path = u.Opaque
		c.Opaque = true
	} else {
		c.Path = u.EscapedPath()
	}
	return c
}

// DeserializeURI revives components into a URI. Returns nil for nil input.
func DeserializeURI(c *URIComponents) *url.URL {
	if c == nil {
		return nil
	}
	u := &url.URL{Scheme: c.Scheme, Host: c.Authority, RawQuery: c.Query}
	if i := strings.LastIndex(c.Authority, "@"); i >= 0 {
		u.Host = c.Authority[i+1:]
		u.User = parseUserinfo(c.Authority[:i])
	}
	if c.Opaque {
		u.Opaque = c.Path
	} else {
		u.Path, u.RawPath = unescapeComponent(c.Path, func(s string) string {
			return (&url.URL{Path: s}).EscapedPath()
		})
	}
	u.Fragment, u.RawFragment = unescapeComponent(c.Fragment, func(s string) string {
		return (&url.URL{Fragment: s}).EscapedFragment()
	})
	return u
}

// unescapeComponent decodes an escaped path or fragment. The raw form is
// kept only when re-escaping the decoded value would not reproduce it,
// the same rule net/url applies while parsing.
func unescapeComponent(escaped string, escape func(string) string) (decoded, raw string) {
	decoded, err := url.PathUnescape(escaped)
	if err != nil {
		return escaped, ""
	}
	if escape(decoded) == escaped {
		return decoded, ""
	}
	return decoded, escaped
}

func parseUserinfo(s string) *url.Userinfo {
	u, err := url.Parse("//" + s + "@host")
	if err != nil || u.User == nil {
		return url.User(s)
	}
	return u.User
}

// =============================================================================
// Range
// =============================================================================

// WireRange is the one-based wire form of a Range.
type WireRange struct {
	StartLineNumber int `json:"startLineNumber"`
	StartColumn     int `json:"startColumn"`
	EndLineNumber   int `json:"endLineNumber"`
	EndColumn       int `json:"endColumn"`
}

// SerializeRange converts a zero-based range to the one-based wire form.
func SerializeRange(r *Range) *WireRange {
	if r == nil {
		return nil
	}
	return &WireRange{
		StartLineNumber: r.Start.Line + 1,
		StartColumn:     r.Start.Character + 1,
		EndLineNumber:   r.End.Line + 1,
		EndColumn:       r.End.Character + 1,
	}
}

// DeserializeRange converts a one-based wire range to a zero-based Range.
func DeserializeRange(w *WireRange) *Range {
	if w == nil {
		return nil
	}
	return &Range{
		Start: Position{Line: w.StartLineNumber - 1, Character: w.StartColumn - 1},
		End:   Position{Line: w.EndLineNumber - 1, Character: w.EndColumn - 1},
	}
}

// =============================================================================
// Message
// =============================================================================

type wireMarkdown struct {
	Value             string `json:"value"`
	IsTrusted         bool   `json:"isTrusted,omitempty"`
	SupportThemeIcons bool   `json:"supportThemeIcons,omitempty"`
}

// MarshalJSON encodes plain messages as a JSON string and markdown
// messages as an object.
func (m Message) MarshalJSON() ([]byte, error) {
	if !m.Markdown {
		return json.Marshal(m.Value)
	}
	return json.Marshal(wireMarkdown{
		Value:             m.Value,
		IsTrusted:         m.IsTrusted,
		SupportThemeIcons: m.SupportThemeIcons,
	})
}

// UnmarshalJSON accepts either a string (plain) or an object (markdown).
func (m *Message) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*m = Message{Value: s}
		return nil
	}
	var md wireMarkdown
	if err := json.Unmarshal(data, &md); err != nil {
		return fmt.Errorf("decode markdown message: %w", err)
	}
	*m = Message{
		Value:             md.Value,
		Markdown:          true,
		IsTrusted:         md.IsTrusted,
		SupportThemeIcons: md.SupportThemeIcons,
	}
	return nil
}

// =============================================================================
// Item
// =============================================================================

// SerializedItem is the wire form of an Item.
//
// Empty tag sets travel as [] and are revived as nil.
type SerializedItem struct {
	ExtID       string         `json:"extId"`
	Label       string         `json:"label"`
	Tags        []string       `json:"tags"`
	Busy        bool           `json:"busy"`
	URI         *URIComponents `json:"uri,omitempty"`
	Range       *WireRange     `json:"range"`
	Description *string        `json:"description"`
	Error       *Message       `json:"error"`
	SortText    *string        `json:"sortText"`
}

// SerializeItem converts an Item to its wire form.
func SerializeItem(i Item) SerializedItem {
	tags := i.Tags
	if tags == nil {
		tags = []string{}
	}
	return SerializedItem{
		ExtID:       string(i.ID),
		Label:       i.Label,
		Tags:        tags,
		Busy:        i.Busy,
		URI:         SerializeURI(i.URI),
		Range:       SerializeRange(i.Range),
		Description: optionalString(i.Description),
		Error:       i.Error,
		SortText:    optionalString(i.SortText),
	}
}

// DeserializeItem revives an Item from its wire form.
func DeserializeItem(s SerializedItem) (Item, error) {
	if s.ExtID == "" {
		return Item{}, fmt.Errorf("%w: missing extId", ErrInvalidItem)
	}
	var tags []string
	if len(s.Tags) > 0 {
		tags = s.Tags
	}
	return Item{
		ID:          ident.ID(s.ExtID),
		Label:       s.Label,
		Tags:        tags,
		Busy:        s.Busy,
		URI:         DeserializeURI(s.URI),
		Range:       DeserializeRange(s.Range),
		Description: derefString(s.Description),
		Error:       s.Error,
		SortText:    derefString(s.SortText),
	}, nil
}

// SerializedInternalItem is the wire form of an InternalItem.
type SerializedInternalItem struct {
	ControllerID string         `json:"controllerId"`
	Expand       ExpandState    `json:"expand"`
	Item         SerializedItem `json:"item"`
}

// SerializeInternalItem converts an InternalItem to its wire form.
func SerializeInternalItem(n InternalItem) SerializedInternalItem {
	return SerializedInternalItem{
		ControllerID: n.ControllerID,
		Expand:       n.Expand,
		Item:         SerializeItem(n.Item),
	}
}

// DeserializeInternalItem revives an InternalItem. The controller ID is
// always derived from the item identifier; the wire value is not trusted.
func DeserializeInternalItem(s SerializedInternalItem) (InternalItem, error) {
	if !s.Expand.Valid() {
		return InternalItem{}, fmt.Errorf("%w: %s", ErrInvalidExpandState, s.Expand)
	}
	item, err := DeserializeItem(s.Item)
	if err != nil {
		return InternalItem{}, err
	}
	return NewInternalItem(item, s.Expand), nil
}

// =============================================================================
// Partial Updates
// =============================================================================

// SerializedItemPatch is the wire form of an ItemPatch. Absent fields are
// omitted from the JSON object; cleared fields are encoded as null.
type SerializedItemPatch struct {
	Label       Opt[string]         `json:"label,omitzero"`
	Tags        Opt[[]string]       `json:"tags,omitzero"`
	Busy        Opt[bool]           `json:"busy,omitzero"`
	URI         Opt[*URIComponents] `json:"uri,omitzero"`
	Range       Opt[*WireRange]     `json:"range,omitzero"`
	Description Opt[*string]        `json:"description,omitzero"`
	Error       Opt[*Message]       `json:"error,omitzero"`
	SortText    Opt[*string]        `json:"sortText,omitzero"`
}

// SerializeItemPatch converts only the set fields of p.
func SerializeItemPatch(p ItemPatch) SerializedItemPatch {
	return SerializedItemPatch{
		Label:       p.Label,
		Tags:        p.Tags,
		Busy:        p.Busy,
		URI:         mapOpt(p.URI, SerializeURI),
		Range:       mapOpt(p.Range, SerializeRange),
		Description: mapOpt(p.Description, optionalString),
		Error:       p.Error,
		SortText:    mapOpt(p.SortText, optionalString),
	}
}

// DeserializeItemPatch revives a patch, keeping absent fields absent.
func DeserializeItemPatch(s SerializedItemPatch) ItemPatch {
	return ItemPatch{
		Label:       s.Label,
		Tags:        s.Tags,
		Busy:        s.Busy,
		URI:         mapOpt(s.URI, DeserializeURI),
		Range:       mapOpt(s.Range, DeserializeRange),
		Description: mapOpt(s.Description, derefString),
		Error:       s.Error,
		SortText:    mapOpt(s.SortText, derefString),
	}
}

// SerializedItemUpdate is the wire form of an ItemUpdate.
type SerializedItemUpdate struct {
	ExtID  string               `json:"extId"`
	Expand Opt[ExpandState]     `json:"expand,omitzero"`
	Item   *SerializedItemPatch `json:"item,omitempty"`
}

// SerializeItemUpdate converts an update. An empty payload patch is
// omitted entirely.
func SerializeItemUpdate(u ItemUpdate) SerializedItemUpdate {
	out := SerializedItemUpdate{
		ExtID:  string(u.ID),
		Expand: u.Expand,
	}
	if !u.Item.IsEmpty() {
		p := SerializeItemPatch(u.Item)
		out.Item = &p
	}
	return out
}

// DeserializeItemUpdate revives an update.
func DeserializeItemUpdate(s SerializedItemUpdate) (ItemUpdate, error) {
	if s.ExtID == "" {
		return ItemUpdate{}, fmt.Errorf("%w: update missing extId", ErrInvalidItem)
	}
	if v, ok := s.Expand.Get(); ok && !v.Valid() {
		return ItemUpdate{}, fmt.Errorf("%w: %s", ErrInvalidExpandState, v)
	}
	out := ItemUpdate{ID: ident.ID(s.ExtID), Expand: s.Expand}
	if s.Item != nil {
		out.Item = DeserializeItemPatch(*s.Item)
	}
	return out, nil
}

// =============================================================================
// Helpers
// =============================================================================

// optionalString maps "" to nil so empty strings travel as null.
func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
