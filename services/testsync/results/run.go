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
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/AleutianAI/testsync/services/testsync/ident"
	"github.com/google/uuid"
)

// =============================================================================
// Types
// =============================================================================

// Task is one execution task within a run, such as a single test process.
type Task struct {
	ID      string
	Name    string
	Running bool
}

// Item is a snapshot of one test's results within a run.
type Item struct {
	ID            ident.ID
	Label         string
	Tasks         []TaskState
	OwnState      State
	ComputedState State
	Retired       bool
	Children      []ident.ID
}

// ChangeKind describes what changed on a result item.
type ChangeKind int

const (
	// ChangeAdded fires when a test joins the run.
	ChangeAdded ChangeKind = iota

	// ChangeOwnState fires when a task state changes the item's own state.
	ChangeOwnState

	// ChangeComputedState fires when the rollup changed.
	ChangeComputedState

	// ChangeRetired fires when the item is marked stale.
	ChangeRetired

	// ChangeRemoved fires when the item leaves the run with its tree node.
	ChangeRemoved

	// ChangeOutput fires for new messages and durations.
	ChangeOutput
)

// Change is delivered to run listeners.
type Change struct {
	Kind ChangeKind
	ID   ident.ID
}

type resultItem struct {
	id       ident.ID
	label    string
	tasks    []TaskState
	own      State
	computed State
	retired  bool
	children map[ident.ID]struct{}
}

func (r *resultItem) snapshot() Item {
	out := Item{
		ID:            r.id,
		Label:         r.label,
		Tasks:         make([]TaskState, len(r.tasks)),
		OwnState:      r.own,
		ComputedState: r.computed,
		Retired:       r.retired,
		Children:      make([]ident.ID, 0, len(r.children)),
	}
	for i, t := range r.tasks {
		out.Tasks[i] = t.clone()
	}
	for id := range r.children {
		out.Children = append(out.Children, id)
	}
	slices.Sort(out.Children)
	return out
}

// RunOption configures a Run.
type RunOption func(*Run)

// WithRunLogger sets the run logger. Defaults to slog.Default().
func WithRunLogger(logger *slog.Logger) RunOption {
	return func(r *Run) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithClock overrides time.Now for start and seal timestamps.
func WithClock(now func() time.Time) RunOption {
	return func(r *Run) {
		if now != nil {
			r.now = now
		}
	}
}

// Run holds the results of one test execution.
//
// Description:
//
//	Tests join a run with AddTest, which also creates result items for
//	any missing ancestors. Task states arrive through UpdateState and are
//	rolled up bottom-up immediately. Once sealed, a run rejects every
//	mutation except Retire.
//
// Thread Safety:
//
//	Safe for concurrent use. Listeners are called without the lock held,
//	in the order changes occurred, from the goroutine that caused them.
type Run struct {
	mu        sync.RWMutex
	id        string
	name      string
	startedAt time.Time
	sealedAt  time.Time
	sealed    bool
	tasks     []Task
	items     map[ident.ID]*resultItem
	listeners []func(Change)
	logger    *slog.Logger
	now       func() time.Time
}

// NewRun creates an empty, unsealed run with a random identifier.
func NewRun(name string, opts ...RunOption) *Run {
	r := &Run{
		id:     uuid.NewString(),
		name:   name,
		items:  make(map[ident.ID]*resultItem),
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.startedAt = r.now()
	return r
}

// ID returns the run identifier.
func (r *Run) ID() string { return r.id }

// Name returns the run name.
func (r *Run) Name() string { return r.name }

// StartedAt returns when the run was created.
func (r *Run) StartedAt() time.Time { return r.startedAt }

// OnChange registers a listener for item changes.
func (r *Run) OnChange(fn func(Change)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

func (r *Run) emit(listeners []func(Change), changes []Change) {
	for _, c := range changes {
		for _, fn := range listeners {
			fn(c)
		}
	}
}

// =============================================================================
// Tasks
// =============================================================================

// StartTask adds a task. Every existing item gains an Unset entry for it.
func (r *Run) StartTask(taskID, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return ErrRunSealed
	}
	if r.taskIndex(taskID) >= 0 {
		return fmt.Errorf("task %q already started", taskID)
	}
	r.tasks = append(r.tasks, Task{ID: taskID, Name: name, Running: true})
	for _, item := range r.items {
		item.tasks = append(item.tasks, TaskState{})
	}
	return nil
}

// EndTask marks a task finished. Tests still Queued or Running in it are
// reset to Unset since they never reported.
func (r *Run) EndTask(taskID string) error {
	r.mu.Lock()
	if r.sealed {
		r.mu.Unlock()
		return ErrRunSealed
	}
	idx := r.taskIndex(taskID)
	if idx < 0 {
		r.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrUnknownTask, taskID)
	}
	changes := r.endTaskLocked(idx)
	listeners := slices.Clone(r.listeners)
	r.mu.Unlock()

	r.emit(listeners, changes)
	return nil
}

func (r *Run) endTaskLocked(idx int) []Change {
	r.tasks[idx].Running = false
	var changes []Change
	for _, id := range r.sortedIDs() {
		item := r.items[id]
		if s := item.tasks[idx].State; s == Queued || s == Running {
			item.tasks[idx].State = Unset
			changes = append(changes, r.refreshLocked(item)...)
		}
	}
	return changes
}

// Tasks returns the tasks in start order.
func (r *Run) Tasks() []Task {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.tasks)
}

func (r *Run) taskIndex(taskID string) int {
	return slices.IndexFunc(r.tasks, func(t Task) bool { return t.ID == taskID })
}

// =============================================================================
// Tests
// =============================================================================

// AddTest adds a test and any missing ancestors to the run. Adding a test
// already present only refreshes its label.
func (r *Run) AddTest(id ident.ID, label string) error {
	r.mu.Lock()
	if r.sealed {
		r.mu.Unlock()
		return ErrRunSealed
	}

	var changes []Change
	var child *resultItem
	for _, cur := range append(id.Ancestors(), id) {
		if existing, ok := r.items[cur]; ok {
			if cur == id {
				existing.label = label
			}
			child = existing
			continue
		}
		item := &resultItem{
			id:       cur,
			label:    cur.LocalID(),
			tasks:    make([]TaskState, len(r.tasks)),
			children: make(map[ident.ID]struct{}),
		}
		if cur == id {
			item.label = label
		}
		r.items[cur] = item
		if child != nil {
			child.children[cur] = struct{}{}
		}
		child = item
		changes = append(changes, Change{Kind: ChangeAdded, ID: cur})
	}
	listeners := slices.Clone(r.listeners)
	r.mu.Unlock()

	r.emit(listeners, changes)
	return nil
}

// UpdateState sets the state of a test in a task and refreshes rollups.
func (r *Run) UpdateState(id ident.ID, taskID string, state State) error {
	if !state.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidState, int(state))
	}

	r.mu.Lock()
	item, idx, err := r.lookupLocked(id, taskID)
	if err != nil {
		r.mu.Unlock()
		return err
	}
	item.tasks[idx].State = state
	changes := r.refreshLocked(item)
	listeners := slices.Clone(r.listeners)
	r.mu.Unlock()

	r.emit(listeners, changes)
	return nil
}

// AppendMessage attaches a message to a test in a task.
func (r *Run) AppendMessage(id ident.ID, taskID string, msg TestMessage) error {
	r.mu.Lock()
	item, idx, err := r.lookupLocked(id, taskID)
	if err != nil {
		r.mu.Unlock()
		return err
	}
	item.tasks[idx].Messages = append(item.tasks[idx].Messages, msg)
	listeners := slices.Clone(r.listeners)
	r.mu.Unlock()

	r.emit(listeners, []Change{{Kind: ChangeOutput, ID: id}})
	return nil
}

// SetDuration records how long a test took in a task.
func (r *Run) SetDuration(id ident.ID, taskID string, d time.Duration) error {
	r.mu.Lock()
	item, idx, err := r.lookupLocked(id, taskID)
	if err != nil {
		r.mu.Unlock()
		return err
	}
	item.tasks[idx].Duration = &d
	listeners := slices.Clone(r.listeners)
	r.mu.Unlock()

	r.emit(listeners, []Change{{Kind: ChangeOutput, ID: id}})
	return nil
}

func (r *Run) lookupLocked(id ident.ID, taskID string) (*resultItem, int, error) {
	if r.sealed {
		return nil, 0, ErrRunSealed
	}
	item, ok := r.items[id]
	if !ok {
		return nil, 0, fmt.Errorf("%w: %s", ErrUnknownTest, id.Display())
	}
	idx := r.taskIndex(taskID)
	if idx < 0 {
		return nil, 0, fmt.Errorf("%w: %q", ErrUnknownTask, taskID)
	}
	return item, idx, nil
}

// refreshLocked recomputes item's own state and propagates computed
// states up the ancestor chain, stopping at the first unchanged rollup.
func (r *Run) refreshLocked(item *resultItem) []Change {
	var changes []Change

	if own := ComputeOwnState(item.tasks); own != item.own {
		item.own = own
		changes = append(changes, Change{Kind: ChangeOwnState, ID: item.id})
	}

	for cur := item; cur != nil; {
		computed := ComputeRollupState(cur.own, r.childStatesLocked(cur))
		if computed == cur.computed {
			break
		}
		cur.computed = computed
		changes = append(changes, Change{Kind: ChangeComputedState, ID: cur.id})

		parentID, ok := ident.ParentOf(cur.id)
		if !ok {
			break
		}
		cur = r.items[parentID]
	}
	return changes
}

func (r *Run) childStatesLocked(item *resultItem) []State {
	out := make([]State, 0, len(item.children))
	for id := range item.children {
		if child, ok := r.items[id]; ok {
			out = append(out, child.computed)
		}
	}
	return out
}

// removeLocked drops an item and its descendants, then refreshes the
// rollup of the surviving parent.
func (r *Run) removeLocked(id ident.ID) []Change {
	item, ok := r.items[id]
	if !ok {
		return nil
	}

	var changes []Change
	stack := []*resultItem{item}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		delete(r.items, cur.id)
		changes = append(changes, Change{Kind: ChangeRemoved, ID: cur.id})
		for childID := range cur.children {
			if child, found := r.items[childID]; found {
				stack = append(stack, child)
			}
		}
	}

	if parentID, hasParent := ident.ParentOf(id); hasParent {
		if parent, found := r.items[parentID]; found {
			delete(parent.children, id)
			changes = append(changes, r.refreshLocked(parent)...)
		}
	}
	return changes
}

// =============================================================================
// Retire and Seal
// =============================================================================

// Retire marks the item with id and all its descendants as stale. It is
// permitted on sealed runs. Returns the number of items newly retired.
func (r *Run) Retire(id ident.ID) int {
	r.mu.Lock()
	var changes []Change
	for _, itemID := range r.sortedIDs() {
		item := r.items[itemID]
		if item.retired || !ident.IsPrefixOf(id, itemID) {
			continue
		}
		item.retired = true
		changes = append(changes, Change{Kind: ChangeRetired, ID: itemID})
	}
	listeners := slices.Clone(r.listeners)
	r.mu.Unlock()

	r.emit(listeners, changes)
	return len(changes)
}

// Seal ends every running task and freezes the run. Sealing twice is a
// no-op.
func (r *Run) Seal() {
	r.mu.Lock()
	if r.sealed {
		r.mu.Unlock()
		return
	}
	var changes []Change
	for i, t := range r.tasks {
		if t.Running {
			changes = append(changes, r.endTaskLocked(i)...)
		}
	}
	r.sealed = true
	r.sealedAt = r.now()
	count := len(r.items)
	listeners := slices.Clone(r.listeners)
	r.mu.Unlock()

	r.logger.Debug("test run sealed",
		slog.String("run_id", r.id),
		slog.Int("items", count),
	)
	r.emit(listeners, changes)
}

// Sealed reports whether the run is sealed.
func (r *Run) Sealed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sealed
}

// SealedAt returns when the run was sealed, or the zero time.
func (r *Run) SealedAt() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sealedAt
}

// =============================================================================
// Queries
// =============================================================================

// Item returns a snapshot of one result item.
func (r *Run) Item(id ident.ID) (Item, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	item, ok := r.items[id]
	if !ok {
		return Item{}, false
	}
	return item.snapshot(), true
}

// Items returns snapshots of every item sorted by identifier.
func (r *Run) Items() []Item {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Item, 0, len(r.items))
	for _, id := range r.sortedIDs() {
		out = append(out, r.items[id].snapshot())
	}
	return out
}

// Len returns the number of result items.
func (r *Run) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

// Counts returns how many leaf items are in each own state.
func (r *Run) Counts() map[State]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[State]int, len(States))
	for _, item := range r.items {
		if len(item.children) == 0 {
			out[item.own]++
		}
	}
	return out
}

func (r *Run) sortedIDs() []ident.ID {
	ids := make([]ident.ID, 0, len(r.items))
	for id := range r.items {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
