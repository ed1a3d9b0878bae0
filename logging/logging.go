// File: logging/logging.go
// Package logging centralizes logrus setup (SPEC_FULL.md §4.11): a
// text formatter for interactive use, structured fields for worker
// slot/pid so multi-process log lines stay attributable, and a level
// parsed from the static config's log_level directive.
//
// Author: reactorcore contributors
// License: Apache-2.0
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// New builds a logger at the given level (falling back to Info on an
// unparseable level string rather than failing startup over a typo).
func New(level string) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)
	return log
}

// WithWorker returns a logger that tags every entry with the worker's
// slot and PID, the fields every worker-side log line carries per
// spec.md §4.9 "attributable multi-process logging".
func WithWorker(log *logrus.Logger, slot, pid int) *logrus.Entry {
	return log.WithFields(logrus.Fields{"slot": slot, "pid": pid})
}
