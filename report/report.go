// SPDX-FileCopyrightText: © 2026 kikosim contributors
// SPDX-License-Identifier: MIT

// Package report prints human-readable, column-aligned summaries of a run's
// routing table and final state, the way compute's word-frequency report
// aligns its columns (spec.md §6 "Run lifecycle signals").
package report

import (
	"fmt"
	"io"
	"sort"

	"github.com/rivo/uniseg"

	"github.com/kikosim/vtcore/directory"
	"github.com/kikosim/vtcore/timeservice"
)

// RoutingTable writes one line per handler in dir.Routes to w, with the
// handler column padded to the widest entry's user-perceived width so
// principal/task_type/duration line up regardless of Unicode width.
func RoutingTable(w io.Writer, dir *directory.Config) {
	handlers := make([]string, 0, len(dir.Routes))
	maxlen := 0
	for h := range dir.Routes {
		handlers = append(handlers, h)
		if l := uniseg.StringWidth(h); l > maxlen {
			maxlen = l
		}
	}
	sort.Strings(handlers)

	fmt.Fprintf(w, "Routing table (%d handlers):\n", len(handlers))
	for _, h := range handlers {
		r := dir.Routes[h]
		pool, _ := dir.PoolFor(r.Principal, r.TaskType)
		pad := maxlen - uniseg.StringWidth(h) + 1
		fmt.Fprintf(w, "%s%*s-> principal=%s task_type=%s duration=%.4fd±%.4fd strategy=%s ras=%v\n",
			h, pad, " ", r.Principal, r.TaskType, r.Duration.Mean, r.Duration.Stddev, pool.Strategy, pool.RAs)
	}
}

// FinalState writes the TimeService's shutdown record to w.
func FinalState(w io.Writer, fs timeservice.FinalState) {
	fmt.Fprintf(w, "Final state: round=%d virtual_time=%.6fd\n", fs.Round, fs.VirtualTime)
}
