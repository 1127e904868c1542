// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package logger defines the logging interface taken by workers, so
// tests can capture what a worker logs.
package logger

import (
	"github.com/juju/loggo"
)

// Logger is the logging interface used throughout herdmode.
type Logger interface {
	Criticalf(message string, args ...any)
	Errorf(message string, args ...any)
	Warningf(message string, args ...any)
	Infof(message string, args ...any)
	Debugf(message string, args ...any)
	Tracef(message string, args ...any)
}

// GetLogger returns the named loggo logger as a Logger.
func GetLogger(name string) Logger {
	return loggo.GetLogger(name)
}
