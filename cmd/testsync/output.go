// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"cmp"
	"fmt"

	"github.com/AleutianAI/testsync/pkg/ux"
	"github.com/AleutianAI/testsync/services/testsync/collection"
	"github.com/AleutianAI/testsync/services/testsync/journal"
)

// printSummary prints the engine's totals and tree shape.
func printSummary(p *ux.Printer, e *engine, batches int) {
	p.Summary(
		ux.Stat{Label: "batches", Value: batches},
		ux.Stat{Label: "items", Value: e.coll.Len()},
		ux.Stat{Label: "roots", Value: len(e.coll.Roots())},
		ux.Stat{Label: "tags", Value: e.coll.Tags().Len()},
		ux.Stat{Label: "applied", Value: e.totals.Applied},
		ux.Stat{Label: "dropped", Value: e.totals.Dropped},
		ux.Stat{Label: "ignored", Value: e.totals.Ignored},
		ux.Stat{Label: "busy", Value: e.coll.BusyControllerCount()},
		ux.Stat{Label: "pending", Value: e.coll.PendingRootCount()},
	)
	if e.totals.Dropped > 0 {
		p.Warning(fmt.Sprintf("%d operations dropped as structurally invalid", e.totals.Dropped))
	}
}

// printTree prints the collection pre-order with each node's rolled-up
// result state.
func printTree(p *ux.Printer, e *engine) {
	p.Title("Collection")
	e.coll.Walk(func(node *collection.Node, depth int) bool {
		state := "unset"
		if item, ok := e.run.Item(node.ID()); ok {
			state = item.ComputedState.String()
		}
		label := cmp.Or(node.Item.Label, node.ID().LocalID())
		detail := node.Expand.String()
		if n := node.ChildCount(); n > 0 {
			detail = fmt.Sprintf("%s (%d)", detail, n)
		}
		p.TreeLine(depth, ux.StateIcon(state), label, detail)
		return true
	})
}

func printJournalStats(p *ux.Printer, s journal.Stats) {
	p.Summary(
		ux.Stat{Label: "entries", Value: int(s.Batches)},
		ux.Stat{Label: "bytes", Value: int(s.TotalBytes)},
		ux.Stat{Label: "base", Value: int(s.BaseSeq)},
		ux.Stat{Label: "last", Value: int(s.LastSeq)},
		ux.Stat{Label: "corrupted", Value: int(s.Corrupted)},
		ux.Stat{Label: "disk_bytes", Value: int(s.DiskBytes)},
	)
}
