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
	"cmp"
	"slices"

	"github.com/AleutianAI/testsync/services/testsync/model"
)

// TagRegistry is the set of tags known to a collection.
//
// It is a display aid, not a constraint: nodes may reference tags the
// registry does not hold. Only the owning Collection mutates it.
type TagRegistry struct {
	tags map[string]model.Tag
}

func newTagRegistry() *TagRegistry {
	return &TagRegistry{tags: make(map[string]model.Tag)}
}

// add inserts or refreshes tag. Returns true if the id was new.
func (r *TagRegistry) add(tag model.Tag) bool {
	_, existed := r.tags[tag.ID]
	r.tags[tag.ID] = tag
	return !existed
}

// remove deletes the tag. Returns true if it was present.
func (r *TagRegistry) remove(id string) bool {
	if _, ok := r.tags[id]; !ok {
		return false
	}
	delete(r.tags, id)
	return true
}

// Get returns the tag with id.
func (r *TagRegistry) Get(id string) (model.Tag, bool) {
	t, ok := r.tags[id]
	return t, ok
}

// Has reports whether id is registered.
func (r *TagRegistry) Has(id string) bool {
	_, ok := r.tags[id]
	return ok
}

// List returns every tag sorted by id.
func (r *TagRegistry) List() []model.Tag {
	out := make([]model.Tag, 0, len(r.tags))
	for _, t := range r.tags {
		out = append(out, t)
	}
	slices.SortFunc(out, func(a, b model.Tag) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

// Len returns the number of registered tags.
func (r *TagRegistry) Len() int {
	return len(r.tags)
}
