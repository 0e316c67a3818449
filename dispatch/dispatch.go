// SPDX-FileCopyrightText: © 2026 kikosim contributors
// SPDX-License-Identifier: MIT

// Package dispatch implements the Deferred-Reaction Dispatch layer: it
// intercepts a business handler's call for resource work, defers the actual
// execution to a Resource Agent, and resumes the caller when that work
// completes (spec.md §4.3).
package dispatch

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/google/uuid"

	"github.com/kikosim/vtcore/clog"
	"github.com/kikosim/vtcore/directory"
	"github.com/kikosim/vtcore/protocol"
	"github.com/kikosim/vtcore/transport"
)

// Dispatcher is the deferred-reaction layer for one business principal: it
// owns that principal's transport endpoint, routes intercepted handler calls
// to the right Resource Agent pool, and resumes suspended callers on
// CompleteTask (spec.md §4.3 steps 1-4).
type Dispatcher struct {
	*clog.CLogger
	name string
	dir  *directory.Config
	tr   transport.Transport
	ch   <-chan transport.Envelope

	mu      sync.Mutex
	cursors map[directory.PoolKey]int
	pending map[string]chan protocol.CompleteTask
}

// New creates a Dispatcher for the principal named name, registered on tr
// under that same name.
func New(name string, dir *directory.Config, tr transport.Transport) *Dispatcher {
	return &Dispatcher{
		CLogger: clog.New("Dispatch[%s] ", name),
		name:    name,
		dir:     dir,
		tr:      tr,
		ch:      tr.Register(name),
		cursors: make(map[directory.PoolKey]int),
		pending: make(map[string]chan protocol.CompleteTask),
	}
}

// Run delivers CompleteTask messages to their waiting Dispatch call until
// ctx is cancelled or the inbox closes. It must run concurrently with any
// in-flight Dispatch calls.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-d.ch:
			if !ok {
				return
			}
			d.handle(env)
		}
	}
}

func (d *Dispatcher) handle(env transport.Envelope) {
	if env.Type != protocol.TypeCompleteTask {
		d.Errorf("%s", clog.Fields("event", "unexpected_message", "type", env.Type))
		return
	}
	msg, ok := env.Payload.(protocol.CompleteTask)
	if !ok {
		d.Errorf("%s", clog.Fields("event", "malformed_complete_task"))
		return
	}

	d.mu.Lock()
	resume, ok := d.pending[msg.TaskID]
	if ok {
		delete(d.pending, msg.TaskID)
	}
	d.mu.Unlock()

	if !ok {
		// A second CompleteTask for a task already resumed (or never
		// dispatched from here): idempotent no-op (spec.md §4.3 "idempotent
		// completions").
		d.Printf("%s", clog.Fields("event", "duplicate_completion", "task_id", msg.TaskID))
		return
	}
	resume <- msg
}

// Intercepted reports whether handler is routed to a Resource Agent rather
// than passed straight through (spec.md §4.3 "non-interception passthrough
// for unrouted handlers").
func (d *Dispatcher) Intercepted(handler string) bool {
	_, ok := d.dir.Routes[handler]
	return ok
}

// Dispatch defers handler's work to a Resource Agent chosen from its
// routed pool, and blocks until that Resource Agent reports completion or
// ctx is cancelled. caseID identifies the business-protocol enactment this
// task belongs to.
func (d *Dispatcher) Dispatch(ctx context.Context, handler, caseID string) (protocol.CompleteTask, error) {
	route, ok := d.dir.Routes[handler]
	if !ok {
		return protocol.CompleteTask{}, fmt.Errorf("dispatch: no route for handler %q", handler)
	}

	// spec.md §4.3 step 3: derive case_id from the enactment context,
	// falling back to "unknown" only if truly absent.
	if caseID == "" {
		d.Errorf("%s", clog.Fields("event", "missing_case_id", "handler", handler))
		caseID = "unknown"
	}
	pool, ok := d.dir.PoolFor(route.Principal, route.TaskType)
	if !ok || len(pool.RAs) == 0 {
		return protocol.CompleteTask{}, fmt.Errorf("dispatch: no resource pool for principal %q task_type %q", route.Principal, route.TaskType)
	}

	ra := d.pickRA(pool)
	taskID := uuid.New().String()

	resume := make(chan protocol.CompleteTask, 1)
	d.mu.Lock()
	d.pending[taskID] = resume
	d.mu.Unlock()

	env := transport.Envelope{
		Type: protocol.TypeGiveTask,
		From: d.name,
		Payload: protocol.GiveTask{
			TaskID:   taskID,
			CaseID:   caseID,
			TaskType: route.TaskType,
			Duration: durationString(route),
		},
	}
	if err := d.tr.Send(ra, env); err != nil {
		d.mu.Lock()
		delete(d.pending, taskID)
		d.mu.Unlock()
		return protocol.CompleteTask{}, fmt.Errorf("dispatch: send GiveTask to %q: %w", ra, err)
	}
	d.Printf("%s", clog.Fields("event", "task_dispatched", "handler", handler, "task_id", taskID, "case_id", caseID, "ra", ra))

	select {
	case <-ctx.Done():
		d.mu.Lock()
		delete(d.pending, taskID)
		d.mu.Unlock()
		return protocol.CompleteTask{}, ctx.Err()
	case msg := <-resume:
		return msg, nil
	}
}

// NewCaseID generates a fresh business-protocol enactment id.
func NewCaseID() string {
	return uuid.New().String()
}

// pickRA selects one Resource Agent endpoint from pool according to its
// configured strategy (spec.md §4.3 "Pool selection strategies").
func (d *Dispatcher) pickRA(pool directory.Pool) string {
	switch pool.Strategy {
	case directory.Random:
		return pool.RAs[rand.IntN(len(pool.RAs))]
	default: // directory.RoundRobin and unset
		key := directory.PoolKey{Principal: pool.Principal, TaskType: pool.TaskType}
		d.mu.Lock()
		idx := d.cursors[key] % len(pool.RAs)
		d.cursors[key] = idx + 1
		d.mu.Unlock()
		return pool.RAs[idx]
	}
}

// durationString renders a route's duration spec back into the "<n>d" or
// "<n>d±<n>d" form GiveTask carries on the wire, since the Resource Agent
// parses it independently of the directory (spec.md §4.2, §4.5).
func durationString(route directory.Route) string {
	if route.Duration.Stddev > 0 {
		return fmt.Sprintf("%vd±%vd", route.Duration.Mean, route.Duration.Stddev)
	}
	return fmt.Sprintf("%vd", route.Duration.Mean)
}
