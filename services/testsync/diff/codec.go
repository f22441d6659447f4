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
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// maxLineBytes bounds a single encoded operation. Large Add payloads with
// long descriptions fit comfortably.
const maxLineBytes = 4 * 1024 * 1024

// Encoder writes operations as JSON lines.
type Encoder struct {
	enc *json.Encoder
}

// NewEncoder returns an Encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &Encoder{enc: enc}
}

// Encode writes one operation followed by a newline.
func (e *Encoder) Encode(op Op) error {
	w, err := Serialize(op)
	if err != nil {
		return err
	}
	return e.enc.Encode(w)
}

// EncodeAll writes every operation in order, stopping at the first error.
func (e *Encoder) EncodeAll(ops []Op) error {
	for i, op := range ops {
		if err := e.Encode(op); err != nil {
			return fmt.Errorf("op %d: %w", i, err)
		}
	}
	return nil
}

// Decoder reads JSON-line operations. Blank lines are skipped.
type Decoder struct {
	scanner *bufio.Scanner
	line    int
}

// NewDecoder returns a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	return &Decoder{scanner: s}
}

// Decode returns the next operation, or io.EOF when the stream is exhausted.
// Errors carry the one-based line number.
func (d *Decoder) Decode() (Op, error) {
	for d.scanner.Scan() {
		d.line++
		line := bytes.TrimSpace(d.scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		op, err := Unmarshal(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", d.line, err)
		}
		return op, nil
	}
	if err := d.scanner.Err(); err != nil {
		return nil, fmt.Errorf("line %d: %w", d.line+1, err)
	}
	return nil, io.EOF
}

// DecodeAll reads every operation from r.
func DecodeAll(r io.Reader) ([]Op, error) {
	dec := NewDecoder(r)
	var ops []Op
	for {
		op, err := dec.Decode()
		if errors.Is(err, io.EOF) {
			return ops, nil
		}
		if err != nil {
			return ops, err
		}
		ops = append(ops, op)
	}
}
