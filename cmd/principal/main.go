// SPDX-FileCopyrightText: © 2026 kikosim contributors
// SPDX-License-Identifier: MIT

/*
Starts a single business principal's Deferred-Reaction Dispatch layer bound
to an in-process Loopback transport, for standalone testing of routing,
pool selection, and suspend/resume behavior outside a full
timeservice-driven run.

For usage details, run principal with the command line flag -h or --help.
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kikosim/vtcore/clog"
	"github.com/kikosim/vtcore/directory"
	"github.com/kikosim/vtcore/dispatch"
	"github.com/kikosim/vtcore/transport"
)

func main() {
	var name, configDir, configFile, globPattern string
	var help, log bool

	flag.Usage = usage
	flag.StringVar(&name, "name", "", "principal name, e.g. Seller")
	flag.StringVar(&configDir, "d", "", "directory containing Agent Directory/routing YAML fragments")
	flag.StringVar(&configFile, "f", "", "single Agent Directory/routing YAML file (overrides -d)")
	flag.StringVar(&globPattern, "g", "*.yaml", "doublestar glob (relative to -d) matching config fragments")
	flag.BoolVar(&help, "h", false, "Show usage information")
	flag.BoolVar(&log, "l", false, "Show logging output (for debugging)")
	flag.Parse()

	if help || name == "" || (configDir == "" && configFile == "") {
		usage()
		os.Exit(0)
	}

	if log {
		clog.Enable()
	}

	var dir *directory.Config
	var err error
	if configFile != "" {
		dir, err = directory.LoadFile(configFile)
	} else {
		dir, err = directory.Load(configDir, globPattern)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "principal: %v\n", err)
		os.Exit(1)
	}

	// A standalone process has no peer Resource Agents to receive GiveTask
	// until wired to a real network Transport implementation (see
	// transport package doc); this binary is the component launcher that
	// implementation would embed.
	tr := transport.NewLoopback(256)
	d := dispatch.New(name, dir, tr)

	signaled := make(chan struct{})
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		defer close(signaled)
		fmt.Printf("Terminating principal %s on signal %v...\n", name, <-sigCh)
	}()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		d.Run(ctx)
	}()

	fmt.Printf("Principal %s dispatcher running...\n", name)
	<-signaled
	cancel()
	<-done
}

func usage() {
	fmt.Printf(`usage: principal [-h|--help] [-l] -name principalName {-d configDir [-g globPattern] | -f configFile}

Starts a single business principal's dispatch layer.

Flags:
`)
	flag.PrintDefaults()
}
