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
	"sync"
)

// Queue buffers operations on the producer side until they are drained as
// one batch.
//
// Description:
//
//	Push coalesces redundant operations so the shipped batch is smaller
//	but applies to the same end state:
//
//	  - An Update immediately following an Update for the same identifier
//	    is merged into it.
//	  - A DocumentSynced for a URI replaces any earlier DocumentSynced for
//	    the same URI still in the queue. The checkpoint moves to the end.
//
//	An Update is never folded into a preceding Add. The engine drops an
//	Add for an identifier that is already live, and the Update must still
//	reach that live item.
//
//	No other reordering takes place.
//
// Thread Safety:
//
//	Safe for concurrent use.
type Queue struct {
	mu  sync.Mutex
	ops []Op
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Push appends ops in order. A nil op is rejected and nothing after it is
// queued.
func (q *Queue) Push(ops ...Op) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, op := range ops {
		if op == nil {
			return ErrNilOp
		}
		q.push(op)
	}
	return nil
}

func (q *Queue) push(op Op) {
	switch o := op.(type) {
	case Update:
		if n := len(q.ops); n > 0 {
			if prev, ok := q.ops[n-1].(Update); ok && prev.Patch.ID == o.Patch.ID {
				q.ops[n-1] = Update{Patch: prev.Patch.Merge(o.Patch)}
				return
			}
		}

	case DocumentSynced:
		key := uriKey(o)
		kept := q.ops[:0]
		for _, existing := range q.ops {
			if ds, ok := existing.(DocumentSynced); ok && uriKey(ds) == key {
				continue
			}
			kept = append(kept, existing)
		}
		q.ops = kept
	}

	q.ops = append(q.ops, op)
}

// Len returns the number of queued operations.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ops)
}

// Drain returns the queued operations and empties the queue. Returns nil
// when nothing is queued.
func (q *Queue) Drain() []Op {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.ops) == 0 {
		return nil
	}
	out := q.ops
	q.ops = nil
	return out
}

func uriKey(ds DocumentSynced) string {
	if ds.URI == nil {
		return ""
	}
	return ds.URI.String()
}
