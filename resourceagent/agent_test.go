// SPDX-FileCopyrightText: © 2026 kikosim contributors
// SPDX-License-Identifier: MIT

package resourceagent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kikosim/vtcore/protocol"
	"github.com/kikosim/vtcore/transport"
)

func recv(t *testing.T, ch <-chan transport.Envelope) transport.Envelope {
	t.Helper()
	select {
	case env := <-ch:
		return env
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for envelope")
		return transport.Envelope{}
	}
}

func giveTask(tr transport.Transport, ra, owner, taskID, duration string) {
	_ = tr.Send(ra, transport.Envelope{
		Type: protocol.TypeGiveTask,
		From: owner,
		Payload: protocol.GiveTask{
			TaskID:   taskID,
			CaseID:   "case-1",
			TaskType: "packing",
			Duration: duration,
		},
	})
}

func timeUpdate(tr transport.Transport, ra string, round int, now float64) {
	_ = tr.Send(ra, transport.Envelope{
		Type: protocol.TypeTimeUpdate,
		From: "TimeService",
		Payload: protocol.TimeUpdate{
			RoundID: protocol.RoundID(round, ra),
			Now:     now,
		},
	})
}

func TestAtMostOneExecutionFIFOOrder(t *testing.T) {
	tr := transport.NewLoopback(16)
	ownerCh := tr.Register("Owner")
	tsCh := tr.Register("TimeService")

	agent := New("RA1", tr)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go agent.Run(ctx)

	giveTask(tr, "RA1", "Owner", "t1", "1d")
	giveTask(tr, "RA1", "Owner", "t2", "1d")

	timeUpdate(tr, "RA1", 0, 0)
	hold := recv(t, tsCh)
	require.Equal(t, protocol.TypeHold, hold.Type)
	h := hold.Payload.(protocol.Hold)
	require.InDelta(t, 1.0, h.NextTime, 1e-9, "t1 should start immediately and complete one day later")

	timeUpdate(tr, "RA1", 1, 1)
	complete := recv(t, ownerCh)
	require.Equal(t, protocol.TypeCompleteTask, complete.Type)
	require.Equal(t, "t1", complete.Payload.(protocol.CompleteTask).TaskID, "t1 must complete before t2 starts (FIFO)")

	hold2 := recv(t, tsCh)
	h2 := hold2.Payload.(protocol.Hold)
	require.InDelta(t, 2.0, h2.NextTime, 1e-9, "t2 starts at virtual time 1, completes at 2")

	timeUpdate(tr, "RA1", 2, 2)
	complete2 := recv(t, ownerCh)
	require.Equal(t, "t2", complete2.Payload.(protocol.CompleteTask).TaskID)

	passivate := recv(t, tsCh)
	require.Equal(t, protocol.TypePassivate, passivate.Type, "idle RA with an empty queue must Passivate")
}

func TestNoCompletionBeforeDuration(t *testing.T) {
	tr := transport.NewLoopback(16)
	tsCh := tr.Register("TimeService")
	ownerCh := tr.Register("Owner")

	agent := New("RA1", tr)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go agent.Run(ctx)

	giveTask(tr, "RA1", "Owner", "t1", "3d")

	timeUpdate(tr, "RA1", 0, 0)
	recv(t, tsCh) // Hold, NextTime=3

	timeUpdate(tr, "RA1", 1, 1)
	hold := recv(t, tsCh)
	require.Equal(t, protocol.TypeHold, hold.Type, "task not yet due: must still Hold, not complete")

	select {
	case <-ownerCh:
		t.Fatal("task must not complete before its sampled duration elapses")
	case <-time.After(50 * time.Millisecond):
	}

	timeUpdate(tr, "RA1", 2, 3)
	complete := recv(t, ownerCh)
	require.Equal(t, "t1", complete.Payload.(protocol.CompleteTask).TaskID)
}

func TestDuplicateGiveTaskIsNoOp(t *testing.T) {
	tr := transport.NewLoopback(16)
	tsCh := tr.Register("TimeService")
	ownerCh := tr.Register("Owner")

	agent := New("RA1", tr)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go agent.Run(ctx)

	giveTask(tr, "RA1", "Owner", "t1", "1d")
	giveTask(tr, "RA1", "Owner", "t1", "1d") // redelivered, same task id

	timeUpdate(tr, "RA1", 0, 0)
	recv(t, tsCh) // Hold, t1 started

	timeUpdate(tr, "RA1", 1, 1)
	recv(t, ownerCh) // t1 completes

	// If the duplicate had been enqueued as a second entry, the agent would
	// now dequeue and start it, replying Hold instead of Passivate.
	reply := recv(t, tsCh)
	require.Equal(t, protocol.TypePassivate, reply.Type, "duplicate GiveTask must not enqueue a second entry")
}
