// SPDX-FileCopyrightText: © 2026 kikosim contributors
// SPDX-License-Identifier: MIT

// Package protocol defines the wire messages exchanged between the
// TimeService, Resource Agents, and business principals, and the
// round correlator format threaded through them.
package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// Message type tags, carried alongside a Message's payload so that a
// Transport implementation can route without reflecting on the Go type.
const (
	TypeTimeUpdate   = "TimeUpdate"
	TypeHold         = "Hold"
	TypePassivate    = "Passivate"
	TypeReminder     = "Reminder"
	TypeGiveTask     = "GiveTask"
	TypeCompleteTask = "CompleteTask"
)

// TimeUpdate is sent by the TimeService to every live participant at the
// start of a round.
type TimeUpdate struct {
	RoundID string
	Now     float64
}

// Hold is sent by a participant to the TimeService: it will not act before
// NextTime.
type Hold struct {
	RoundID   string
	AgentName string
	NextTime  float64
}

// Passivate is sent by a participant to the TimeService: it has no work
// scheduled for this round.
type Passivate struct {
	RoundID   string
	AgentName string
}

// Reminder is a Resource Agent's self-addressed deferred trigger, sent once
// per TimeUpdate it processes.
type Reminder struct {
	RoundID string
}

// GiveTask is sent by a principal to a Resource Agent to enqueue work.
type GiveTask struct {
	TaskID   string
	CaseID   string // business-protocol enactment id ("id" in spec.md)
	TaskType string
	Duration string // raw duration spec, string or numeric-as-string
}

// CompleteTask is sent by a Resource Agent back to the principal that owns
// it, reporting that a task has finished.
type CompleteTask struct {
	TaskID   string
	CaseID   string
	TaskType string
}

// RoundID formats the per-TimeUpdate correlator used on Hold/Passivate
// replies: round_<R>_<agent>.
func RoundID(round int, agent string) string {
	return fmt.Sprintf("round_%d_%s", round, agent)
}

// ParseRound extracts the authoritative round number embedded in a round_id.
// It rejects any correlator that doesn't match round_<int>_<agent>.
func ParseRound(roundID string) (int, error) {
	parts := strings.SplitN(roundID, "_", 3)
	if len(parts) != 3 || parts[0] != "round" {
		return 0, fmt.Errorf("protocol: malformed round id %q", roundID)
	}
	r, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("protocol: malformed round id %q: %w", roundID, err)
	}
	return r, nil
}
