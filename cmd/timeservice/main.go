// SPDX-FileCopyrightText: © 2026 kikosim contributors
// SPDX-License-Identifier: MIT

/*
Starts a TimeService that drives a virtual-time simulation run: it loads an
Agent Directory and routing table from YAML, spins up one Resource Agent per
configured resource, fires one synthetic dispatched task per routed handler
as a smoke-test driver, then runs the round barrier to completion.

For usage details, run timeservice with the command line flag -h or --help.
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/kikosim/vtcore/clog"
	"github.com/kikosim/vtcore/directory"
	"github.com/kikosim/vtcore/dispatch"
	"github.com/kikosim/vtcore/report"
	"github.com/kikosim/vtcore/resourceagent"
	"github.com/kikosim/vtcore/timeservice"
	"github.com/kikosim/vtcore/transport"
)

func main() {
	var configDir, configFile, globPattern string
	var defaultPrincipal, defaultHandlers string
	var maxRounds int
	var roundTimeout time.Duration
	var help, log bool

	flag.Usage = usage
	flag.StringVar(&configDir, "d", "", "directory containing Agent Directory/routing YAML fragments")
	flag.StringVar(&configFile, "f", "", "single Agent Directory/routing YAML file (overrides -d)")
	flag.StringVar(&globPattern, "g", "*.yaml", "doublestar glob (relative to -d) matching config fragments")
	flag.StringVar(&defaultPrincipal, "default-principal", "", "synthesize a one-RA default config (see directory.DefaultConfig) for this principal instead of loading YAML")
	flag.StringVar(&defaultHandlers, "default-handlers", "", "comma-separated handler names routed to -default-principal")
	flag.IntVar(&maxRounds, "max-rounds", 1000, "maximum number of rounds before the run is stopped")
	flag.DurationVar(&roundTimeout, "timeout", timeservice.DefaultRoundTimeout, "per-round watchdog timeout")
	flag.BoolVar(&help, "h", false, "Show usage information")
	flag.BoolVar(&log, "l", false, "Show logging output (for debugging)")
	flag.Parse()

	if help || (configDir == "" && configFile == "" && defaultPrincipal == "") {
		usage()
		os.Exit(0)
	}

	if log {
		clog.Enable()
	}

	var dir *directory.Config
	var err error
	switch {
	case configFile != "":
		dir, err = directory.LoadFile(configFile)
	case configDir != "":
		dir, err = directory.Load(configDir, globPattern)
	default:
		handlers := strings.Split(defaultHandlers, ",")
		funcToPrincipal := make(map[string]string, len(handlers))
		for _, h := range handlers {
			if h = strings.TrimSpace(h); h != "" {
				funcToPrincipal[h] = defaultPrincipal
			}
		}
		dir, err = directory.DefaultConfig(
			map[string][]string{defaultPrincipal: handlers},
			funcToPrincipal,
		)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "timeservice: %v\n", err)
		os.Exit(1)
	}

	report.RoutingTable(os.Stdout, dir)

	tr := transport.NewLoopback(256)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for name, agent := range dir.Agents {
		if agent.Role == directory.RoleResourceAgent {
			ra := resourceagent.New(name, tr)
			go ra.Run(ctx)
		}
	}

	for name, agent := range dir.Agents {
		if agent.Role != directory.RolePrincipal {
			continue
		}
		d := dispatch.New(name, dir, tr)
		go d.Run(ctx)
		go driveSyntheticTasks(ctx, d, dir, name)
	}

	// Handle SIGTERM.
	signaled := make(chan struct{})
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		defer close(signaled)
		fmt.Printf("Terminating timeservice on signal %v...\n", <-sigCh)
	}()

	completed := make(chan timeservice.FinalState, 1)
	ts := timeservice.New(dir, tr, timeservice.Options{MaxRounds: maxRounds, RoundTimeout: roundTimeout})
	go func() {
		completed <- ts.Run(ctx)
	}()

	for {
		select {
		case <-signaled:
			signaled = nil
			cancel()
		case fs := <-completed:
			report.FinalState(os.Stdout, fs)
			return
		}
	}
}

// driveSyntheticTasks dispatches one synthetic task per handler routed to
// principal, logging its completion. It stands in for the business-protocol
// handler invocations that a BSPL adapter would otherwise trigger.
func driveSyntheticTasks(ctx context.Context, d *dispatch.Dispatcher, dir *directory.Config, principal string) {
	caseID := dispatch.NewCaseID()
	for handler, route := range dir.Routes {
		if route.Principal != principal {
			continue
		}
		handler := handler
		go func() {
			msg, err := d.Dispatch(ctx, handler, caseID)
			if err != nil {
				fmt.Fprintf(os.Stderr, "timeservice: dispatch %s: %v\n", handler, err)
				return
			}
			fmt.Printf("completed: handler=%s task_id=%s case_id=%s\n", handler, msg.TaskID, msg.CaseID)
		}()
	}
}

func usage() {
	fmt.Printf(`usage: timeservice [-h|--help] [-l] {-d configDir [-g globPattern] | -f configFile | -default-principal name [-default-handlers h1,h2,...]} [-max-rounds n] [-timeout d]

Starts a TimeService-driven simulation run loaded from an Agent Directory and
routing table configuration, or from a synthesized one-RA default config
when -default-principal is given instead of -d/-f.

Flags:
`)
	flag.PrintDefaults()
}
