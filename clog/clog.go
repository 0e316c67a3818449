// SPDX-FileCopyrightText: © 2026 kikosim contributors
// SPDX-License-Identifier: MIT

// Package clog provides global conditional logging for simulation components.
package clog

import (
	"fmt"
	"log"
	"strings"
)

var enabled = false

// Enable turns on conditional log output.
func Enable() {
	enabled = true
}

// A CLogger represents a logger object that logs output in the manner of the
// standard logger but can be conditionally enabled. By default, conditional
// logging is disabled.
type CLogger struct {
	logger *log.Logger // standard logger with prefix
}

// New creates a new conditional logger with the given prefix.
func New(prefixFormat string, prefixArgs ...any) *CLogger {
	return &CLogger{
		log.New(
			log.Default().Writer(),
			fmt.Sprintf(prefixFormat, prefixArgs...),
			log.Ldate|log.Ltime|log.Lmicroseconds|log.Lmsgprefix,
		),
	}
}

// Printf logs output conditionally (if enabled with -l command line option) in
// the manner of log.Printf.
func (c *CLogger) Printf(format string, a ...any) {
	if !enabled {
		return
	}
	c.logger.Printf(format, a...)
}

// Errorf logs output unconditionally, i.e. always, in the manner of log.Printf.
func (c *CLogger) Errorf(format string, a ...any) {
	c.logger.Printf(format, a...)
}

// Fields renders key=value pairs (round numbers, task ids, case ids, ...) as a
// single trailing string, for appending to a Printf/Errorf message. Values are
// formatted with %v; an odd number of arguments panics, as it indicates a
// mismatched call site.
func Fields(kv ...any) string {
	if len(kv)%2 != 0 {
		panic("clog: Fields called with an odd number of arguments")
	}
	var b strings.Builder
	for i := 0; i < len(kv); i += 2 {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%v=%v", kv[i], kv[i+1])
	}
	return b.String()
}
