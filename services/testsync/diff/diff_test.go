// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package diff

import (
	"bytes"
	"net/url"
	"strings"
	"testing"

	"github.com/AleutianAI/testsync/services/testsync/ident"
	"github.com/AleutianAI/testsync/services/testsync/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func sampleAdd() Add {
	return Add{Item: model.NewInternalItem(model.Item{
		ID:          ident.MustNew("ctrl", "pkg", "TestFoo"),
		Label:       "TestFoo",
		Tags:        []string{"ctrl\x00slow"},
		URI:         &url.URL{Scheme: "file", Path: "/src/foo_test.go"},
		Range:       &model.Range{Start: model.Position{Line: 10}, End: model.Position{Line: 20, Character: 1}},
		Description: "covers foo",
		Error:       model.PlainText("compile error"),
		SortText:    "a",
	}, model.Expandable)}
}

// sampleOps returns one operation of every kind.
func sampleOps() []Op {
	return []Op{
		sampleAdd(),
		Update{Patch: model.ItemUpdate{
			ID:     ident.MustNew("ctrl", "pkg", "TestFoo"),
			Expand: model.Some(model.BusyExpanding),
			Item: model.ItemPatch{
				Label:       model.Some("TestFoo (2)"),
				Busy:        model.Some(true),
				Description: model.Some(""),
				Error:       model.Some[*model.Message](nil),
				Tags:        model.Some([]string{"ctrl\x00fast"}),
			},
		}},
		Remove{ID: ident.MustNew("ctrl", "pkg")},
		Retire{ID: ident.MustNew("ctrl")},
		IncrementPendingRoots{Delta: -2},
		IncrementPendingRoots{Delta: 0},
		AddTag{Tag: model.Tag{ID: "ctrl\x00slow"}},
		RemoveTag{ID: "ctrl\x00slow"},
		DocumentSynced{URI: &url.URL{Scheme: "file", Path: "/src/foo_test.go"}, Version: intPtr(7)},
		DocumentSynced{URI: &url.URL{Scheme: "untitled", Opaque: "Untitled-1"}},
	}
}

// =============================================================================
// Wire envelope
// =============================================================================

func TestRoundTripEveryOp(t *testing.T) {
	for _, op := range sampleOps() {
		t.Run(op.Type().String(), func(t *testing.T) {
			data, err := Marshal(op)
			require.NoError(t, err)

			back, err := Unmarshal(data)
			require.NoError(t, err)
			assert.Equal(t, op, back)
		})
	}
}

func TestRoundTripKeepsURIForms(t *testing.T) {
	for _, raw := range []string{
		"untitled:Untitled-1",
		"https://user@host:8080/x_test.go",
		"file:///src/a%2Fb_test.go",
	} {
		t.Run(raw, func(t *testing.T) {
			u, err := url.Parse(raw)
			require.NoError(t, err)
			add := sampleAdd()
			add.Item.Item.URI = u

			for _, op := range []Op{add, DocumentSynced{URI: u}} {
				data, err := Marshal(op)
				require.NoError(t, err)
				back, err := Unmarshal(data)
				require.NoError(t, err)
				assert.Equal(t, op, back)
			}

			data, err := Marshal(add)
			require.NoError(t, err)
			back, err := Unmarshal(data)
			require.NoError(t, err)
			assert.Equal(t, raw, back.(Add).Item.Item.URI.String())
		})
	}
}

func TestSerializeNil(t *testing.T) {
	_, err := Serialize(nil)
	assert.ErrorIs(t, err, ErrNilOp)
}

func TestDeserializeRejects(t *testing.T) {
	tests := []struct {
		name string
		json string
		want error
	}{
		{"unknown code", `{"op":99}`, ErrUnknownOp},
		{"add without item", `{"op":0}`, ErrMalformedOp},
		{"update without payload", `{"op":1}`, ErrMalformedOp},
		{"remove without id", `{"op":2}`, ErrMalformedOp},
		{"pending roots without amount", `{"op":4}`, ErrMalformedOp},
		{"tag without id", `{"op":5,"tag":{"id":""}}`, ErrMalformedOp},
		{"document without uri", `{"op":7}`, ErrMalformedOp},
		{"not json", `{"op":`, ErrMalformedOp},
		{"bad expand", `{"op":0,"item":{"expand":12,"item":{"extId":"c"}}}`, model.ErrInvalidExpandState},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Unmarshal([]byte(tt.json))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestUpdateWireOmitsAbsentFields(t *testing.T) {
	data, err := Marshal(Update{Patch: model.ItemUpdate{
		ID:   "c",
		Item: model.ItemPatch{Label: model.Some("y")},
	}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"op":1,"update":{"extId":"c","item":{"label":"y"}}}`, string(data))
}

func TestBatchHelpers(t *testing.T) {
	ws, err := SerializeBatch(sampleOps())
	require.NoError(t, err)
	ops, err := DeserializeBatch(ws)
	require.NoError(t, err)
	assert.Equal(t, sampleOps(), ops)

	_, err = SerializeBatch([]Op{Remove{ID: "a"}, nil})
	assert.ErrorIs(t, err, ErrNilOp)
}

func TestValidateAndTargetID(t *testing.T) {
	assert.NoError(t, Validate(sampleOps()))
	assert.ErrorIs(t, Validate([]Op{Remove{ID: "a"}, nil}), ErrNilOp)

	id, ok := TargetID(sampleAdd())
	assert.True(t, ok)
	assert.Equal(t, ident.MustNew("ctrl", "pkg", "TestFoo"), id)

	_, ok = TargetID(AddTag{Tag: model.Tag{ID: "x"}})
	assert.False(t, ok)
}

// =============================================================================
// Codec
// =============================================================================

func TestCodecRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewEncoder(&buf).EncodeAll(sampleOps()))
	assert.Equal(t, len(sampleOps()), strings.Count(buf.String(), "\n"))

	ops, err := DecodeAll(&buf)
	require.NoError(t, err)
	assert.Equal(t, sampleOps(), ops)
}

func TestDecoderSkipsBlankLinesAndReportsLine(t *testing.T) {
	input := "{\"op\":3,\"itemId\":\"a\"}\n\n   \n{\"op\":42}\n"
	ops, err := DecodeAll(strings.NewReader(input))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownOp)
	assert.Contains(t, err.Error(), "line 4")
	assert.Equal(t, []Op{Retire{ID: "a"}}, ops)
}

func TestDecodeAllEmpty(t *testing.T) {
	ops, err := DecodeAll(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, ops)
}

// =============================================================================
// Queue
// =============================================================================

func TestQueueKeepsUpdateAfterAdd(t *testing.T) {
	q := NewQueue()
	add := sampleAdd()
	update := Update{Patch: model.ItemUpdate{
		ID:     add.Item.ID(),
		Expand: model.Some(model.Expanded),
		Item:   model.ItemPatch{Busy: model.Some(true)},
	}}
	require.NoError(t, q.Push(add, update))

	ops := q.Drain()
	require.Len(t, ops, 2)
	assert.Equal(t, add, ops[0])
	assert.Equal(t, update, ops[1])
}

func TestQueueMergesConsecutiveUpdates(t *testing.T) {
	q := NewQueue()
	require.NoError(t, q.Push(
		Update{Patch: model.ItemUpdate{ID: "a", Item: model.ItemPatch{Label: model.Some("1")}}},
		Update{Patch: model.ItemUpdate{ID: "a", Item: model.ItemPatch{Busy: model.Some(true)}}},
		Update{Patch: model.ItemUpdate{ID: "b", Item: model.ItemPatch{Busy: model.Some(true)}}},
		Update{Patch: model.ItemUpdate{ID: "a", Item: model.ItemPatch{Label: model.Some("2")}}},
	))

	ops := q.Drain()
	require.Len(t, ops, 3)
	first := ops[0].(Update).Patch
	assert.Equal(t, "1", first.Item.Label.OrElse(""))
	assert.True(t, first.Item.Busy.OrElse(false))
	assert.Equal(t, ident.ID("b"), ops[1].(Update).Patch.ID)
	assert.Equal(t, "2", ops[2].(Update).Patch.Item.Label.OrElse(""))
}

func TestQueueDoesNotFoldAcrossOtherIDs(t *testing.T) {
	q := NewQueue()
	add := sampleAdd()
	require.NoError(t, q.Push(add, Remove{ID: "x"}, Update{Patch: model.ItemUpdate{ID: add.Item.ID()}}))
	assert.Equal(t, 3, q.Len())
}

func TestQueueKeepsLatestDocumentSynced(t *testing.T) {
	doc := &url.URL{Scheme: "file", Path: "/a.go"}
	other := &url.URL{Scheme: "file", Path: "/b.go"}

	q := NewQueue()
	require.NoError(t, q.Push(
		DocumentSynced{URI: doc, Version: intPtr(1)},
		DocumentSynced{URI: other, Version: intPtr(1)},
		Remove{ID: "x"},
		DocumentSynced{URI: doc, Version: intPtr(2)},
	))

	ops := q.Drain()
	require.Len(t, ops, 3)
	assert.Equal(t, other, ops[0].(DocumentSynced).URI)
	assert.Equal(t, Remove{ID: "x"}, ops[1])
	assert.Equal(t, 2, *ops[2].(DocumentSynced).Version)
}

func TestQueueDrain(t *testing.T) {
	q := NewQueue()
	assert.Nil(t, q.Drain())

	require.NoError(t, q.Push(Retire{ID: "a"}))
	assert.Len(t, q.Drain(), 1)
	assert.Equal(t, 0, q.Len())

	assert.ErrorIs(t, q.Push(Retire{ID: "a"}, nil, Retire{ID: "b"}), ErrNilOp)
	assert.Equal(t, 1, q.Len())
}

func TestOpTypeString(t *testing.T) {
	assert.Equal(t, "increment_pending_roots", OpIncrementPendingRoots.String())
	assert.Equal(t, "op(99)", OpType(99).String())
}
