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
	"net/url"
	"testing"

	"github.com/AleutianAI/testsync/services/testsync/ident"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fullItem() Item {
	return Item{
		ID:          ident.MustNew("ctrl", "suite", "t1"),
		Label:       "t1",
		Tags:        []string{"ctrl\x00slow"},
		Busy:        true,
		URI:         &url.URL{Scheme: "file", Path: "/src/a_test.go"},
		Range:       &Range{Start: Position{Line: 3, Character: 0}, End: Position{Line: 9, Character: 1}},
		Description: "table test",
		Error:       Markdown("**boom**"),
		SortText:    "0001",
	}
}

// =============================================================================
// Opt
// =============================================================================

func TestOpt(t *testing.T) {
	t.Run("absent", func(t *testing.T) {
		o := None[string]()
		_, ok := o.Get()
		assert.False(t, ok)
		assert.True(t, o.IsZero())
		assert.Equal(t, "fallback", o.OrElse("fallback"))
	})

	t.Run("present zero value", func(t *testing.T) {
		o := Some("")
		v, ok := o.Get()
		assert.True(t, ok)
		assert.Equal(t, "", v)
		assert.False(t, o.IsZero())
	})

	t.Run("omitzero drops absent fields and keeps null", func(t *testing.T) {
		type wrapper struct {
			A Opt[string]  `json:"a,omitzero"`
			B Opt[*string] `json:"b,omitzero"`
		}
		data, err := json.Marshal(wrapper{B: Some[*string](nil)})
		require.NoError(t, err)
		assert.JSONEq(t, `{"b":null}`, string(data))

		var back wrapper
		require.NoError(t, json.Unmarshal(data, &back))
		assert.False(t, back.A.IsSet())
		assert.True(t, back.B.IsSet())
		v, _ := back.B.Get()
		assert.Nil(t, v)
	})
}

// =============================================================================
// Item
// =============================================================================

func TestExpandState(t *testing.T) {
	assert.Equal(t, "busy_expanding", BusyExpanding.String())
	assert.True(t, Expanded.Valid())
	assert.False(t, ExpandState(9).Valid())
	assert.Equal(t, "expand_state(9)", ExpandState(9).String())
}

func TestRange(t *testing.T) {
	r := Range{Start: Position{Line: 1, Character: 2}, End: Position{Line: 3, Character: 0}}
	assert.True(t, r.Contains(Position{Line: 1, Character: 2}))
	assert.True(t, r.Contains(Position{Line: 2, Character: 80}))
	assert.False(t, r.Contains(Position{Line: 3, Character: 0}))
	assert.False(t, r.IsEmpty())
	assert.True(t, Range{}.IsEmpty())
}

func TestItemClone(t *testing.T) {
	orig := fullItem()
	clone := orig.Clone()
	require.Equal(t, orig, clone)

	clone.Tags[0] = "changed"
	clone.Range.Start.Line = 100
	clone.URI.Path = "/elsewhere"
	assert.Equal(t, "ctrl\x00slow", orig.Tags[0])
	assert.Equal(t, 3, orig.Range.Start.Line)
	assert.Equal(t, "/src/a_test.go", orig.URI.Path)
}

func TestItemHelpers(t *testing.T) {
	item := fullItem()
	assert.Equal(t, "0001", item.SortKey())
	item.SortText = ""
	assert.Equal(t, "t1", item.SortKey())
	assert.True(t, item.HasTag("ctrl\x00slow"))
	assert.False(t, item.HasTag("fast"))
}

func TestNewInternalItemDerivesController(t *testing.T) {
	n := NewInternalItem(fullItem(), Expandable)
	assert.Equal(t, "ctrl", n.ControllerID)
	assert.Equal(t, ident.MustNew("ctrl", "suite", "t1"), n.ID())
}

// =============================================================================
// Patches
// =============================================================================

func TestItemPatchApplyTo(t *testing.T) {
	item := Item{ID: "x", Label: "x", Description: "d", Busy: true}

	ItemPatch{Label: Some("y")}.ApplyTo(&item)
	assert.Equal(t, "y", item.Label)
	assert.Equal(t, "d", item.Description, "absent fields are untouched")
	assert.True(t, item.Busy)

	ItemPatch{Description: Some(""), Busy: Some(false)}.ApplyTo(&item)
	assert.Equal(t, "", item.Description, "present empty value is a real change")
	assert.False(t, item.Busy)
}

func TestItemPatchApplyToCopiesReferences(t *testing.T) {
	tags := []string{"c\x00slow"}
	uri := &url.URL{Scheme: "file", Path: "/a_test.go"}
	rng := &Range{End: Position{Line: 3}}
	msg := PlainText("boom")

	var item Item
	ItemPatch{Tags: Some(tags), URI: Some(uri), Range: Some(rng), Error: Some(msg)}.ApplyTo(&item)

	tags[0] = "c\x00fast"
	uri.Path = "/b_test.go"
	rng.End.Line = 9
	msg.Value = "changed"

	assert.Equal(t, []string{"c\x00slow"}, item.Tags)
	assert.Equal(t, "/a_test.go", item.URI.Path)
	assert.Equal(t, 3, item.Range.End.Line)
	assert.Equal(t, "boom", item.Error.Value)

	ItemPatch{URI: Some[*url.URL](nil), Tags: Some[[]string](nil)}.ApplyTo(&item)
	assert.Nil(t, item.URI)
	assert.Nil(t, item.Tags)
}

func TestItemPatchMerge(t *testing.T) {
	first := ItemPatch{Label: Some("a"), Busy: Some(true)}
	second := ItemPatch{Label: Some("b"), Description: Some("d")}

	merged := first.Merge(second)
	assert.Equal(t, "b", merged.Label.OrElse(""))
	assert.True(t, merged.Busy.OrElse(false))
	assert.Equal(t, "d", merged.Description.OrElse(""))
	assert.False(t, merged.Tags.IsSet())
}

func TestItemUpdateApplyTo(t *testing.T) {
	n := NewInternalItem(Item{ID: "c", Label: "c"}, Expandable)
	ItemUpdate{ID: "c", Expand: Some(Expanded), Item: ItemPatch{Label: Some("C")}}.ApplyTo(&n)
	assert.Equal(t, Expanded, n.Expand)
	assert.Equal(t, "C", n.Item.Label)

	ItemUpdate{ID: "c"}.ApplyTo(&n)
	assert.Equal(t, Expanded, n.Expand)
}

func TestItemPatchIsEmpty(t *testing.T) {
	assert.True(t, ItemPatch{}.IsEmpty())
	assert.False(t, ItemPatch{URI: Some[*url.URL](nil)}.IsEmpty())
}
