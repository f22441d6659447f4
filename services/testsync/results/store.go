// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package results

import (
	"sync"

	"github.com/AleutianAI/testsync/services/testsync/collection"
	"github.com/AleutianAI/testsync/services/testsync/ident"
)

// DefaultMaxRuns is the number of runs a Store keeps when none is given.
const DefaultMaxRuns = 128

// Store keeps the newest runs, newest first.
//
// Thread Safety:
//
//	Safe for concurrent use.
type Store struct {
	mu   sync.RWMutex
	runs []*Run
	max  int
}

// NewStore creates a store holding at most maxRuns runs. Values below one
// select DefaultMaxRuns.
func NewStore(maxRuns int) *Store {
	if maxRuns < 1 {
		maxRuns = DefaultMaxRuns
	}
	return &Store{max: maxRuns}
}

// Push adds run as the newest and evicts the oldest runs over capacity.
// Returns the evicted runs.
func (s *Store) Push(run *Run) []*Run {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs = append([]*Run{run}, s.runs...)
	if len(s.runs) <= s.max {
		return nil
	}
	evicted := append([]*Run(nil), s.runs[s.max:]...)
	s.runs = s.runs[:s.max]
	return evicted
}

// Runs returns the stored runs, newest first.
func (s *Store) Runs() []*Run {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*Run(nil), s.runs...)
}

// Latest returns the newest run.
func (s *Store) Latest() (*Run, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.runs) == 0 {
		return nil, false
	}
	return s.runs[0], true
}

// Get returns the run with id.
func (s *Store) Get(id string) (*Run, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.runs {
		if r.ID() == id {
			return r, true
		}
	}
	return nil, false
}

// Len returns the number of stored runs.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.runs)
}

// Retire marks results for id and its descendants stale in every run.
// Returns the total number of items newly retired.
func (s *Store) Retire(id ident.ID) int {
	total := 0
	for _, r := range s.Runs() {
		total += r.Retire(id)
	}
	return total
}

// RetireHandler adapts Retire for collection.WithRetireHandler.
func (s *Store) RetireHandler() collection.RetireHandler {
	return func(id ident.ID) {
		s.Retire(id)
	}
}
