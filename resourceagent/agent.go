// SPDX-FileCopyrightText: © 2026 kikosim contributors
// SPDX-License-Identifier: MIT

// Package resourceagent implements the Resource Agent: a per-resource FIFO
// task queue that executes at most one task at a time, ticked by the
// TimeService's virtual clock (spec.md §4.2).
package resourceagent

import (
	"context"
	"fmt"

	"github.com/kikosim/vtcore/clog"
	"github.com/kikosim/vtcore/directory"
	"github.com/kikosim/vtcore/duration"
	"github.com/kikosim/vtcore/protocol"
	"github.com/kikosim/vtcore/transport"
)

// State is the Resource Agent's execution state (spec.md §4.2 "States").
type State int

const (
	Idle State = iota
	Executing
)

func (s State) String() string {
	if s == Executing {
		return "executing"
	}
	return "idle"
}

// queuedTask is one FIFO entry: a task enqueued by GiveTask but not yet
// running.
type queuedTask struct {
	TaskID   string
	CaseID   string
	TaskType string
	Owner    string // transport endpoint to report CompleteTask back to
	Spec     duration.Spec
}

// activeTask is the single task currently executing, with the virtual
// completion time sampled when it started.
type activeTask struct {
	queuedTask
	CompletionTime float64
}

// Agent is one Resource Agent instance. All mutable state is touched only
// from the goroutine running Run (spec.md §5).
type Agent struct {
	*clog.CLogger
	name string
	tr   transport.Transport
	ch   <-chan transport.Envelope

	virtualTime float64
	state       State
	queue       []queuedTask
	active      *activeTask

	// seen deduplicates GiveTask by task id, so a redelivered message is a
	// no-op rather than a second enqueue (spec.md §4.2 "duplicate
	// GiveTask").
	seen map[string]bool
}

// New creates a Resource Agent registered under name. Its logger prefix is
// derived from name via directory.SplitRAName when it follows the
// RA_<AgentType>_<Principal>_<N> convention, mirroring the original source's
// human-readable logger naming (see SPEC_FULL.md §4); it falls back to the
// raw name otherwise.
func New(name string, tr transport.Transport) *Agent {
	return &Agent{
		CLogger: clog.New("%s ", loggerName(name)),
		name:    name,
		tr:      tr,
		ch:      tr.Register(name),
		seen:    make(map[string]bool),
	}
}

func loggerName(name string) string {
	principal, agentType, instanceID, ok := directory.SplitRAName(name)
	if !ok {
		return fmt.Sprintf("RA[%s]", name)
	}
	return fmt.Sprintf("RA[%s_%s_%s]", principal, agentType, instanceID)
}

// Run processes GiveTask and TimeUpdate messages until ctx is cancelled or
// the transport inbox is closed.
func (a *Agent) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-a.ch:
			if !ok {
				return
			}
			a.handle(env)
		}
	}
}

func (a *Agent) handle(env transport.Envelope) {
	switch env.Type {
	case protocol.TypeGiveTask:
		a.handleGiveTask(env)
	case protocol.TypeTimeUpdate:
		a.handleTimeUpdate(env)
	default:
		a.Errorf("%s", clog.Fields("event", "unexpected_message", "type", env.Type))
	}
}

// handleGiveTask enqueues a task (spec.md §4.2 "GiveTask enqueues only, it
// never starts execution directly").
func (a *Agent) handleGiveTask(env transport.Envelope) {
	msg, ok := env.Payload.(protocol.GiveTask)
	if !ok {
		a.Errorf("%s", clog.Fields("event", "malformed_give_task"))
		return
	}
	if a.seen[msg.TaskID] {
		a.Printf("%s", clog.Fields("event", "duplicate_give_task", "task_id", msg.TaskID))
		return
	}
	spec, err := duration.Parse(msg.Duration)
	if err != nil {
		a.Errorf("%s", clog.Fields("event", "invalid_duration", "task_id", msg.TaskID, "err", err))
		return
	}

	a.seen[msg.TaskID] = true
	a.queue = append(a.queue, queuedTask{
		TaskID:   msg.TaskID,
		CaseID:   msg.CaseID,
		TaskType: msg.TaskType,
		Owner:    env.From,
		Spec:     spec,
	})
	a.Printf("%s", clog.Fields("event", "task_queued", "task_id", msg.TaskID, "case_id", msg.CaseID, "queue_len", len(a.queue)))
}

// handleTimeUpdate is the collapsed GiveTask/TimeUpdate/Reminder tick
// handler sanctioned by spec.md §9: every TimeUpdate both completes a
// finished task and starts the next queued one, then replies Hold/Passivate.
func (a *Agent) handleTimeUpdate(env transport.Envelope) {
	msg, ok := env.Payload.(protocol.TimeUpdate)
	if !ok {
		a.Errorf("%s", clog.Fields("event", "malformed_time_update"))
		return
	}
	a.virtualTime = msg.Now
	a.tick()
	a.reply(msg.RoundID)
}

func (a *Agent) tick() {
	if a.active != nil && a.virtualTime >= a.active.CompletionTime {
		a.completeActive()
	}
	if a.active == nil && len(a.queue) > 0 {
		a.startNext()
	}
}

func (a *Agent) completeActive() {
	t := a.active
	a.active = nil
	a.state = Idle
	env := transport.Envelope{
		Type: protocol.TypeCompleteTask,
		From: a.name,
		Payload: protocol.CompleteTask{
			TaskID:   t.TaskID,
			CaseID:   t.CaseID,
			TaskType: t.TaskType,
		},
	}
	if err := a.tr.Send(t.Owner, env); err != nil {
		a.Errorf("%s", clog.Fields("event", "complete_task_send_failed", "task_id", t.TaskID, "owner", t.Owner, "err", err))
	}
	a.Printf("%s", clog.Fields("event", "task_completed", "task_id", t.TaskID, "case_id", t.CaseID, "virtual_time", a.virtualTime))
}

func (a *Agent) startNext() {
	next := a.queue[0]
	a.queue = a.queue[1:]
	d := duration.Sample(next.Spec)
	a.active = &activeTask{queuedTask: next, CompletionTime: a.virtualTime + d}
	a.state = Executing
	a.Printf("%s", clog.Fields("event", "task_started", "task_id", next.TaskID, "case_id", next.CaseID, "duration", d, "completion_time", a.active.CompletionTime))
}

func (a *Agent) reply(roundID string) {
	if a.active != nil {
		env := transport.Envelope{
			Type: protocol.TypeHold,
			From: a.name,
			Payload: protocol.Hold{
				RoundID:   roundID,
				AgentName: a.name,
				NextTime:  a.active.CompletionTime,
			},
		}
		if err := a.tr.Send(timeServiceEndpoint, env); err != nil {
			a.Errorf("%s", clog.Fields("event", "hold_send_failed", "err", err))
		}
		return
	}
	env := transport.Envelope{
		Type: protocol.TypePassivate,
		From: a.name,
		Payload: protocol.Passivate{
			RoundID:   roundID,
			AgentName: a.name,
		},
	}
	if err := a.tr.Send(timeServiceEndpoint, env); err != nil {
		a.Errorf("%s", clog.Fields("event", "passivate_send_failed", "err", err))
	}
}

// timeServiceEndpoint is the well-known transport name the TimeService
// registers under (timeservice.Name); duplicated here as a literal to avoid
// an import cycle between resourceagent and timeservice.
const timeServiceEndpoint = "TimeService"
