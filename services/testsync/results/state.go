// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package results layers run results on top of the test tree.
//
// A Run records, for each test that took part in it, one TaskState per
// execution task. Each test's own state is the highest-priority task
// state, and its computed state additionally folds in the computed states
// of its children. Both are maintained bottom-up as results arrive.
//
// A Store keeps the newest runs and can retire results across all of them.
package results

import (
	"fmt"
	"time"

	"github.com/AleutianAI/testsync/services/testsync/model"
)

// State is the result state of a test in one task.
type State int

const (
	Unset State = iota
	Queued
	Running
	Passed
	Failed
	Skipped
	Errored
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case Unset:
		return "unset"
	case Queued:
		return "queued"
	case Running:
		return "running"
	case Passed:
		return "passed"
	case Failed:
		return "failed"
	case Skipped:
		return "skipped"
	case Errored:
		return "errored"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	return s >= Unset && s <= Errored
}

// IsSettled reports whether s is a final outcome.
func (s State) IsSettled() bool {
	switch s {
	case Passed, Failed, Skipped, Errored:
		return true
	default:
		return false
	}
}

// States lists every state in enum order.
var States = []State{Unset, Queued, Running, Passed, Failed, Skipped, Errored}

// priority orders states for rollups. In-flight states dominate settled
// ones, failures dominate passes, Unset is the bottom.
var priority = [...]int{
	Unset:   0,
	Skipped: 1,
	Passed:  2,
	Failed:  3,
	Errored: 4,
	Queued:  5,
	Running: 6,
}

// Priority returns the rollup priority of s. Unknown states rank lowest.
func Priority(s State) int {
	if !s.Valid() {
		return -1
	}
	return priority[s]
}

// MaxPriority returns whichever of a and b has the higher priority.
func MaxPriority(a, b State) State {
	if Priority(b) > Priority(a) {
		return b
	}
	return a
}

// ComputeOwnState folds per-task states into one state. No tasks yields
// Unset.
func ComputeOwnState(tasks []TaskState) State {
	out := Unset
	for _, t := range tasks {
		out = MaxPriority(out, t.State)
	}
	return out
}

// ComputeRollupState folds own together with the computed states of the
// children.
func ComputeRollupState(own State, children []State) State {
	out := own
	for _, s := range children {
		out = MaxPriority(out, s)
	}
	return out
}

// =============================================================================
// Task State
// =============================================================================

// MessageKind distinguishes failure messages from captured output.
type MessageKind int

const (
	MessageError MessageKind = iota
	MessageOutput
)

// TestMessage is a message attached to a test result.
type TestMessage struct {
	Kind     MessageKind
	Message  model.Message
	Expected string
	Actual   string
	Location *model.Range
}

// TaskState is the state of one test within one task.
type TaskState struct {
	State    State
	Duration *time.Duration
	Messages []TestMessage
}

func (t TaskState) clone() TaskState {
	out := t
	if t.Duration != nil {
		d := *t.Duration
		out.Duration = &d
	}
	if t.Messages != nil {
		out.Messages = append([]TestMessage(nil), t.Messages...)
	}
	return out
}
