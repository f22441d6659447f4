// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package journal

import "errors"

var (
	// ErrJournalClosed is returned when operations are called on a closed journal.
	ErrJournalClosed = errors.New("journal is closed")

	// ErrJournalCorrupted is returned when an entry fails its integrity check.
	ErrJournalCorrupted = errors.New("journal entry corrupted")

	// ErrJournalFull is returned when the journal exceeds MaxJournalBytes.
	// Compacting frees space.
	ErrJournalFull = errors.New("journal size limit exceeded")

	// ErrJournalSequenceGap is returned when replay finds a missing entry.
	ErrJournalSequenceGap = errors.New("journal sequence number gap detected")

	// ErrEmptyBatch is returned when appending a batch with no operations.
	ErrEmptyBatch = errors.New("batch must not be empty")
)
