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

import "errors"

// Sentinel errors for diff operations.
var (
	// ErrNilOp is returned when a nil operation is passed where one is required.
	ErrNilOp = errors.New("nil diff operation")

	// ErrUnknownOp is returned when a wire envelope carries an unknown op code.
	ErrUnknownOp = errors.New("unknown diff operation")

	// ErrMalformedOp is returned when a wire envelope lacks the fields its
	// op code requires.
	ErrMalformedOp = errors.New("malformed diff operation")
)
