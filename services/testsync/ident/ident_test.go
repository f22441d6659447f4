// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ident

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("joins segments", func(t *testing.T) {
		id, err := New("ctrl", "suite", "t1")
		require.NoError(t, err)
		assert.Equal(t, ID("ctrl\x00suite\x00t1"), id)
	})

	t.Run("rejects empty input", func(t *testing.T) {
		_, err := New()
		assert.ErrorIs(t, err, ErrEmptySegment)
	})

	t.Run("rejects empty segment", func(t *testing.T) {
		_, err := New("ctrl", "")
		assert.ErrorIs(t, err, ErrEmptySegment)
	})

	t.Run("rejects delimiter inside segment", func(t *testing.T) {
		_, err := New("ctrl", "a\x00b")
		assert.ErrorIs(t, err, ErrInvalidSegment)
	})

	t.Run("MustNew panics", func(t *testing.T) {
		assert.Panics(t, func() { MustNew("") })
	})
}

func TestParentOf(t *testing.T) {
	tests := []struct {
		name     string
		id       ID
		want     ID
		wantHave bool
	}{
		{"root", MustNew("ctrl"), "", false},
		{"child", MustNew("ctrl", "a"), MustNew("ctrl"), true},
		{"grandchild", MustNew("ctrl", "a", "b"), MustNew("ctrl", "a"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParentOf(tt.id)
			assert.Equal(t, tt.wantHave, ok)
			assert.Equal(t, tt.want, got)

			got, ok = tt.id.Parent()
			assert.Equal(t, tt.wantHave, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRootOf(t *testing.T) {
	assert.Equal(t, ID("ctrl"), RootOf(MustNew("ctrl")))
	assert.Equal(t, ID("ctrl"), RootOf(MustNew("ctrl", "a", "b")))
	assert.Equal(t, ID("ctrl"), MustNew("ctrl", "a").Root())
}

func TestStructure(t *testing.T) {
	id := MustNew("ctrl", "suite", "t1")

	assert.False(t, id.IsRoot())
	assert.True(t, MustNew("ctrl").IsRoot())
	assert.Equal(t, "t1", id.LocalID())
	assert.Equal(t, "ctrl", MustNew("ctrl").LocalID())
	assert.Equal(t, []string{"ctrl", "suite", "t1"}, id.Segments())
	assert.Nil(t, ID("").Segments())
	assert.Equal(t, 2, id.Depth())
	assert.Equal(t, 0, MustNew("ctrl").Depth())
	assert.Equal(t, []ID{MustNew("ctrl"), MustNew("ctrl", "suite")}, id.Ancestors())
	assert.Empty(t, MustNew("ctrl").Ancestors())
	assert.Equal(t, "ctrl ▸ suite ▸ t1", id.Display())
}

func TestChild(t *testing.T) {
	child, err := MustNew("ctrl").Child("a")
	require.NoError(t, err)
	assert.Equal(t, MustNew("ctrl", "a"), child)

	_, err = MustNew("ctrl").Child("")
	assert.ErrorIs(t, err, ErrEmptySegment)
}

func TestIsPrefixOf(t *testing.T) {
	a := MustNew("ctrl", "a")

	assert.True(t, IsPrefixOf(a, a))
	assert.True(t, IsPrefixOf(a, MustNew("ctrl", "a", "b")))
	assert.True(t, IsPrefixOf(MustNew("ctrl"), a))
	assert.False(t, IsPrefixOf(a, MustNew("ctrl", "ab")), "prefix must respect segment boundaries")
	assert.False(t, IsPrefixOf(a, MustNew("ctrl")))
	assert.False(t, IsPrefixOf(a, MustNew("other", "a")))
}

func TestIsChild(t *testing.T) {
	a := MustNew("ctrl", "a")
	assert.True(t, IsChild(MustNew("ctrl"), a))
	assert.False(t, IsChild(a, a))
	assert.False(t, IsChild(a, MustNew("ctrl")))
}

func TestCompare(t *testing.T) {
	tests := []struct {
		a, b ID
		want Position
	}{
		{MustNew("c", "a"), MustNew("c", "a"), PositionSame},
		{MustNew("c"), MustNew("c", "a"), PositionParent},
		{MustNew("c", "a", "b"), MustNew("c", "a"), PositionChild},
		{MustNew("c", "a"), MustNew("c", "b"), PositionDisconnected},
	}

	for _, tt := range tests {
		t.Run(tt.want.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, Compare(tt.a, tt.b))
		})
	}
}

func TestCommonPrefixLength(t *testing.T) {
	assert.Equal(t, 2, CommonPrefixLength(MustNew("c", "a", "x"), MustNew("c", "a", "y")))
	assert.Equal(t, 0, CommonPrefixLength(MustNew("c"), MustNew("d")))
	assert.Equal(t, 1, CommonPrefixLength(MustNew("c"), MustNew("c", "a")))
}

func TestTagNamespacing(t *testing.T) {
	ns := NamespaceTag("ctrl", "slow")
	ctrl, tag := DenamespaceTag(ns)
	assert.Equal(t, "ctrl", ctrl)
	assert.Equal(t, "slow", tag)

	ctrl, tag = DenamespaceTag("plain")
	assert.Empty(t, ctrl)
	assert.Equal(t, "plain", tag)
}
