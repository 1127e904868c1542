// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package dispatcher sends mode change commands to connected machines.
package dispatcher

import (
	"github.com/juju/errors"

	"github.com/herdmode/herdmode/core/logger"
	"github.com/herdmode/herdmode/core/mode"
	"github.com/herdmode/herdmode/core/session"
	"github.com/herdmode/herdmode/internal/metrics"
	"github.com/herdmode/herdmode/internal/protocol"
	"github.com/herdmode/herdmode/internal/registry"
)

// Metrics records the outcome of every command.
type Metrics interface {
	CommandDispatched(result string)
}

// Config holds the dependencies of a Dispatcher.
type Config struct {
	Registry *registry.Registry
	Session  *session.Session
	Logger   logger.Logger
	Metrics  Metrics
}

// Validate ensures the config is usable.
func (c Config) Validate() error {
	if c.Registry == nil {
		return errors.NotValidf("nil Registry")
	}
	if c.Session == nil {
		return errors.NotValidf("nil Session")
	}
	if c.Logger == nil {
		return errors.NotValidf("nil Logger")
	}
	return nil
}

// Dispatcher sends mode change frames. Commands are fire and forget: a
// nil error means the frame was handed to the transport, not that the
// machine applied the mode.
type Dispatcher struct {
	config Config
}

// New returns a Dispatcher.
func New(config Config) (*Dispatcher, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return &Dispatcher{config: config}, nil
}

// SendModeChange asks the machine to switch to the mode with the given
// selector. It returns a NotValid error for an unknown selector and a
// NotFound error when the machine has no open connection; nothing is
// sent in either case.
func (d *Dispatcher) SendModeChange(machine, selector int) (mode.Mode, error) {
	m, err := mode.FromSelector(selector)
	if err != nil {
		d.record(metrics.CommandRejected)
		return "", errors.Trace(err)
	}
	h, ok := d.config.Registry.Get(machine)
	if !ok {
		d.record(metrics.CommandRejected)
		return "", errors.NotFoundf("connection for machine %d", machine)
	}

	frame := protocol.NewModeChange(d.config.Session.Snapshot(), m)
	if err := h.Send(frame); err != nil {
		d.record(metrics.CommandFailed)
		return "", errors.Annotatef(err, "changing machine %d to %s", machine, m)
	}
	d.record(metrics.CommandSent)
	d.config.Logger.Infof("sent mode %q to machine %d", m, machine)
	return m, nil
}

func (d *Dispatcher) record(result string) {
	if d.config.Metrics != nil {
		d.config.Metrics.CommandDispatched(result)
	}
}
