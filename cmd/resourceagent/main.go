// SPDX-FileCopyrightText: © 2026 kikosim contributors
// SPDX-License-Identifier: MIT

/*
Starts the given number of Resource Agent components bound to an in-process
Loopback transport, for standalone testing of the Resource Agent's FIFO
queue and at-most-one execution behavior outside a full timeservice-driven
run.

For usage details, run resourceagent with the command line flag -h or --help.
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/kikosim/vtcore/clog"
	"github.com/kikosim/vtcore/resourceagent"
	"github.com/kikosim/vtcore/transport"
)

const (
	defaultCount = 1   // default number of Resource Agents
	maxCount     = 100 // maximum number of Resource Agents
)

func main() {
	var name string
	var count int
	var help, log bool

	flag.Usage = usage
	flag.StringVar(&name, "name", "", "Resource Agent base name, e.g. RA_Packing_Seller")
	flag.IntVar(&count, "count", defaultCount, "number of Resource Agent instances to start")
	flag.BoolVar(&help, "h", false, "Show usage information")
	flag.BoolVar(&log, "l", false, "Show logging output (for debugging)")
	flag.Parse()

	if help || name == "" || count < 1 || count > maxCount {
		usage()
		os.Exit(0)
	}

	if log {
		clog.Enable()
	}

	// A standalone process has no peers to receive its replies until wired
	// to a real network Transport implementation (see transport package
	// doc); this binary is the component launcher that implementation
	// would embed.
	tr := transport.NewLoopback(256)

	names := make([]string, count)
	if count == 1 {
		names[0] = name
	} else {
		for i := range names {
			names[i] = fmt.Sprintf("%s_%d", name, i+1)
		}
	}

	// Handle SIGTERM.
	signaled := make(chan struct{})
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		defer close(signaled)
		fmt.Printf("Terminating %d resourceagent(s) on signal %v...\n", count, <-sigCh)
	}()

	fmt.Printf("Starting %d Resource Agent(s)...\n", count)

	ctx, cancel := context.WithCancel(context.Background()) // triggers graceful shutdown of all agents
	var g errgroup.Group
	for _, n := range names {
		n := n
		g.Go(func() error {
			resourceagent.New(n, tr).Run(ctx)
			return nil
		})
	}

	// Wait for the first termination signal, then cancel all agents and wait
	// for them to shut down.
	<-signaled
	cancel()
	_ = g.Wait()
}

func usage() {
	fmt.Printf(`usage: resourceagent [-h|--help] [-l] -name agentName [-count n]

Starts the given number of Resource Agent components (default %d, maximum %d).

Flags:
`, defaultCount, maxCount)
	flag.PrintDefaults()
}
