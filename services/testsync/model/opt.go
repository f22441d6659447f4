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

import "encoding/json"

// Opt is a value that may or may not be present.
//
// Description:
//
//	Opt distinguishes "field absent" from "field present with a zero or
//	nil value". Partial patches depend on that difference: an absent field
//	leaves the target untouched, while Some(nil) or Some("") clears it.
//
//	When used as a struct field with the `omitzero` JSON option, an absent
//	Opt is omitted from the encoded object and a present one is encoded as
//	its value, including `null`. Decoding any literal (null included) marks
//	the Opt present.
type Opt[T any] struct {
	value T
	ok    bool
}

// Some returns a present Opt holding v.
func Some[T any](v T) Opt[T] {
	return Opt[T]{value: v, ok: true}
}

// None returns an absent Opt.
func None[T any]() Opt[T] {
	return Opt[T]{}
}

// Get returns the value and whether it is present.
func (o Opt[T]) Get() (T, bool) {
	return o.value, o.ok
}

// IsSet reports whether the value is present.
func (o Opt[T]) IsSet() bool {
	return o.ok
}

// OrElse returns the value if present, otherwise fallback.
func (o Opt[T]) OrElse(fallback T) T {
	if o.ok {
		return o.value
	}
	return fallback
}

// IsZero reports absence. It drives the `omitzero` JSON option.
func (o Opt[T]) IsZero() bool {
	return !o.ok
}

// MarshalJSON encodes the held value. Absent values encode as null, but
// callers normally omit them with `omitzero`.
func (o Opt[T]) MarshalJSON() ([]byte, error) {
	if !o.ok {
		return []byte("null"), nil
	}
	return json.Marshal(o.value)
}

// UnmarshalJSON marks the Opt present and decodes the value.
func (o *Opt[T]) UnmarshalJSON(data []byte) error {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	o.value = v
	o.ok = true
	return nil
}

// mapOpt converts a present value with fn and keeps absence as absence.
func mapOpt[T, U any](o Opt[T], fn func(T) U) Opt[U] {
	v, ok := o.Get()
	if !ok {
		return None[U]()
	}
	return Some(fn(v))
}
