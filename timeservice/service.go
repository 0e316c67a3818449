// SPDX-FileCopyrightText: © 2026 kikosim contributors
// SPDX-License-Identifier: MIT

// Package timeservice implements the round-based barrier scheduler that
// drives the deterministic virtual clock shared by every agent in a run
// (spec.md §4.1).
package timeservice

import (
	"context"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kikosim/vtcore/clog"
	"github.com/kikosim/vtcore/directory"
	"github.com/kikosim/vtcore/protocol"
	"github.com/kikosim/vtcore/transport"
)

const (
	// DefaultPhaseDelay is the real-time gap between the business-agent and
	// resource-agent broadcast phases of a single round (spec.md §4.1 step 1).
	DefaultPhaseDelay = 50 * time.Millisecond
	// DefaultRoundTimeout is the real-time watchdog deadline for a round
	// (spec.md §4.1 "Watchdog").
	DefaultRoundTimeout = 30 * time.Second
	// DefaultLivenessThreshold is K in spec.md's liveness check: rounds of
	// silence before an agent is logged (not evicted) as possibly
	// unresponsive.
	DefaultLivenessThreshold = 5
	// DefaultHeartbeatInterval is how often the background heartbeat line is
	// logged, independent of round activity.
	DefaultHeartbeatInterval = 30 * time.Second
	// Name is the transport endpoint this service registers itself under.
	Name = "TimeService"
)

// FinalState is the record emitted on normal shutdown (spec.md §4.1 step 4,
// §6 "Run lifecycle signals").
type FinalState struct {
	Round       int
	VirtualTime float64
}

// Options configures a Service's tunables; zero values of the duration and
// threshold fields fall back to the package defaults. MaxRounds has no
// default: a zero MaxRounds ends the run after the first round advance.
type Options struct {
	MaxRounds         int
	PhaseDelay        time.Duration
	RoundTimeout      time.Duration
	LivenessThreshold int
	HeartbeatInterval time.Duration
}

func (o Options) withDefaults() Options {
	if o.PhaseDelay <= 0 {
		o.PhaseDelay = DefaultPhaseDelay
	}
	if o.RoundTimeout <= 0 {
		o.RoundTimeout = DefaultRoundTimeout
	}
	if o.LivenessThreshold <= 0 {
		o.LivenessThreshold = DefaultLivenessThreshold
	}
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = DefaultHeartbeatInterval
	}
	return o
}

// Service owns the virtual clock T and round counter R. All of its mutable
// state is touched only from the goroutine running Run, per spec.md §5 ("no
// shared memory between participants... neither is accessed concurrently").
type Service struct {
	*clog.CLogger
	opts Options
	dir  *directory.Config
	tr   transport.Transport
	ch   <-chan transport.Envelope

	virtualTime float64
	round       int

	// participants is the live snapshot taken at startup (spec.md §4.4);
	// only watchdog eviction removes entries afterward.
	participants []string

	// resp and next are reset at the start of every round.
	resp map[string]bool
	next map[string]float64

	// lastResponse is the last round each agent replied in, for the K-round
	// liveness check.
	lastResponse map[string]int
}

// New creates a Service ready for Run. It snapshots participants from every
// agent playing a principal or resource-agent role in dir (spec.md §4.4).
func New(dir *directory.Config, tr transport.Transport, opts Options) *Service {
	s := &Service{
		CLogger:      clog.New("%s ", Name),
		opts:         opts.withDefaults(),
		dir:          dir,
		tr:           tr,
		participants: dir.Participants(),
		lastResponse: make(map[string]int),
	}
	s.ch = tr.Register(Name)
	return s
}

// Run drives the barrier scheduler to completion: max_rounds reached, or
// every participant lost. It returns the final record (spec.md §4.1 step 4,
// §7 "max_rounds reached").
func (s *Service) Run(ctx context.Context) FinalState {
	s.startRound()

	timer := time.NewTimer(s.opts.RoundTimeout)
	defer timer.Stop()

	heartbeat := time.NewTicker(s.opts.HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return s.finalState()

		case <-heartbeat.C:
			s.Printf("%s", clog.Fields("event", "heartbeat", "round", s.round, "virtual_time", s.virtualTime, "participants", len(s.participants)))

		case env, ok := <-s.ch:
			if !ok {
				return s.finalState()
			}
			advanced := s.handleEnvelope(env)
			if advanced {
				if s.round >= s.opts.MaxRounds {
					s.Printf("%s", clog.Fields("event", "max_rounds_reached", "round", s.round, "virtual_time", s.virtualTime))
					return s.finalState()
				}
				if len(s.participants) == 0 {
					s.Errorf("%s", clog.Fields("event", "all_participants_lost"))
					return s.finalState()
				}
				resetTimer(timer, s.opts.RoundTimeout)
			}

		case <-timer.C:
			s.forceAdvance()
			if s.round >= s.opts.MaxRounds || len(s.participants) == 0 {
				return s.finalState()
			}
			resetTimer(timer, s.opts.RoundTimeout)
		}
	}
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}

func (s *Service) finalState() FinalState {
	fs := FinalState{Round: s.round, VirtualTime: s.virtualTime}
	s.Printf("%s", clog.Fields("event", "final_state", "round", fs.Round, "virtual_time", fs.VirtualTime))
	return fs
}

// handleEnvelope processes one inbound Hold/Passivate and returns true if it
// completed the round (spec.md §4.1 step 2-3).
func (s *Service) handleEnvelope(env transport.Envelope) bool {
	switch env.Type {
	case protocol.TypeHold:
		msg := env.Payload.(protocol.Hold)
		return s.recordReply(msg.RoundID, msg.AgentName, &msg.NextTime)
	case protocol.TypePassivate:
		msg := env.Payload.(protocol.Passivate)
		return s.recordReply(msg.RoundID, msg.AgentName, nil)
	default:
		s.Errorf("%s", clog.Fields("event", "unexpected_message", "type", env.Type))
		return false
	}
}

// recordReply applies §7's error disposition for stale/malformed/duplicate
// replies, then advances the round if complete.
func (s *Service) recordReply(roundID, agent string, nextTime *float64) bool {
	r, err := protocol.ParseRound(roundID)
	if err != nil {
		s.Errorf("%s", clog.Fields("event", "malformed_round_id", "round_id", roundID, "agent", agent))
		return false
	}
	if r != s.round {
		s.Printf("%s", clog.Fields("event", "stale_reply", "agent", agent, "reply_round", r, "current_round", s.round))
		return false
	}
	if s.resp[agent] {
		s.Printf("%s", clog.Fields("event", "duplicate_reply", "agent", agent, "round", s.round))
		return false
	}

	s.resp[agent] = true
	s.lastResponse[agent] = s.round
	if nextTime != nil {
		s.next[agent] = *nextTime
	}

	if len(s.resp) == len(s.participants) {
		s.advance()
		return true
	}
	return false
}

// advance realizes spec.md §4.1 step 3: T ← max(T, min(N[R])), clamping any
// backwards request, then starts the next round.
func (s *Service) advance() {
	if len(s.next) > 0 {
		requested := minValue(s.next)
		if requested < s.virtualTime {
			s.Printf("%s", clog.Fields("event", "clock_anomaly_clamped", "requested", requested, "virtual_time", s.virtualTime))
		}
		s.virtualTime = maxFloat(s.virtualTime, requested)
	} else {
		s.Printf("%s", clog.Fields("event", "no_specific_time_requested", "virtual_time", s.virtualTime))
	}
	s.checkLiveness()
	s.round++
	s.startRound()
}

// forceAdvance is the watchdog's round-timeout path (spec.md §4.1
// "Watchdog"): missing participants are evicted and the round is force
// advanced using only the survivors' replies.
func (s *Service) forceAdvance() {
	missing := make([]string, 0)
	survivors := s.participants[:0:0]
	for _, p := range s.participants {
		if s.resp[p] {
			survivors = append(survivors, p)
		} else {
			missing = append(missing, p)
		}
	}
	for _, m := range missing {
		s.Errorf("%s", clog.Fields("event", "round_timeout_eviction", "agent", m, "round", s.round))
	}
	s.participants = survivors

	if len(s.participants) == 0 {
		s.Errorf("%s", clog.Fields("event", "all_participants_dead"))
		return
	}
	s.advance()
}

// checkLiveness implements the background liveness check (spec.md §4.1
// "Watchdog", K=5 default): warn-only, never evicts.
func (s *Service) checkLiveness() {
	for _, p := range s.participants {
		last := s.lastResponse[p]
		if s.round-last > s.opts.LivenessThreshold {
			s.Printf("%s", clog.Fields("event", "possibly_unresponsive", "agent", p, "rounds_silent", s.round-last))
		}
	}
}

// startRound resets per-round bookkeeping and broadcasts TimeUpdate to every
// live participant in two phases (spec.md §4.1 step 1).
func (s *Service) startRound() {
	s.resp = make(map[string]bool, len(s.participants))
	s.next = make(map[string]float64, len(s.participants))

	business := make([]string, 0, len(s.participants))
	ras := make([]string, 0, len(s.participants))
	for _, p := range s.participants {
		if s.dir.IsResourceAgent(p) {
			ras = append(ras, p)
		} else {
			business = append(business, p)
		}
	}
	sort.Strings(business)
	sort.Strings(ras)

	s.broadcastPhase(business)
	time.Sleep(s.opts.PhaseDelay)
	s.broadcastPhase(ras)
}

// broadcastPhase fans TimeUpdate out to names concurrently, tolerating
// per-agent endpoint resolution failures without aborting the rest of the
// round (spec.md §4.1 "Fatal conditions").
func (s *Service) broadcastPhase(names []string) {
	var g errgroup.Group
	roundID, now, round := s.round, s.virtualTime, s.round
	for _, name := range names {
		name := name
		g.Go(func() error {
			agent, ok := s.dir.Agents[name]
			if !ok {
				s.Errorf("%s", clog.Fields("event", "unknown_endpoint", "agent", name))
				return nil
			}
			env := transport.Envelope{
				Type: protocol.TypeTimeUpdate,
				From: Name,
				Payload: protocol.TimeUpdate{
					RoundID: protocol.RoundID(round, name),
					Now:     now,
				},
			}
			if err := s.tr.Send(agent.Endpoint, env); err != nil {
				s.Errorf("%s", clog.Fields("event", "send_failed", "agent", name, "round_id", roundID, "err", err))
			}
			return nil
		})
	}
	_ = g.Wait() // errors are already logged per-agent; never abort the round
}

func minValue(m map[string]float64) float64 {
	first := true
	var v float64
	for _, x := range m {
		if first || x < v {
			v = x
			first = false
		}
	}
	return v
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
