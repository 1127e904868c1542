// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package keepalive provides a worker that periodically sends an
// IdlePoll frame to every connected machine so the controllers do not
// drop idle sessions.
package keepalive

import (
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/worker/v4"
	"github.com/juju/worker/v4/catacomb"

	"github.com/herdmode/herdmode/core/logger"
	"github.com/herdmode/herdmode/internal/protocol"
	"github.com/herdmode/herdmode/internal/registry"
)

// Metrics records the outcome of every probe.
type Metrics interface {
	KeepaliveSent(machine int)
	KeepaliveFailed(machine int)
}

// Config holds the dependencies of the keepalive worker.
type Config struct {
	Registry *registry.Registry
	Clock    clock.Clock
	Logger   logger.Logger

	// Metrics is optional.
	Metrics Metrics

	// Interval is the time between two probe rounds.
	Interval time.Duration
}

// Validate ensures that the configuration is
// correctly populated for worker operation.
func (config Config) Validate() error {
	if config.Registry == nil {
		return errors.NotValidf("nil Registry")
	}
	if config.Clock == nil {
		return errors.NotValidf("nil Clock")
	}
	if config.Logger == nil {
		return errors.NotValidf("nil Logger")
	}
	if config.Interval <= 0 {
		return errors.NotValidf("interval %v", config.Interval)
	}
	return nil
}

type keepaliveWorker struct {
	catacomb catacomb.Catacomb
	config   Config
}

// NewWorker returns a worker that probes every registered connection
// once per interval.
func NewWorker(config Config) (worker.Worker, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	w := &keepaliveWorker{config: config}
	if err := catacomb.Invoke(catacomb.Plan{
		Site: &w.catacomb,
		Work: w.loop,
	}); err != nil {
		return nil, errors.Trace(err)
	}
	return w, nil
}

// Kill is part of the worker.Worker interface.
func (w *keepaliveWorker) Kill() {
	w.catacomb.Kill(nil)
}

// Wait is part of the worker.Worker interface.
func (w *keepaliveWorker) Wait() error {
	return w.catacomb.Wait()
}

func (w *keepaliveWorker) loop() error {
	timer := w.config.Clock.NewTimer(w.config.Interval)
	defer timer.Stop()

	for {
		select {
		case <-w.catacomb.Dying():
			return w.catacomb.ErrDying()
		case <-timer.Chan():
			w.probe()
			timer.Reset(w.config.Interval)
		}
	}
}

// probe sends one IdlePoll to each handle registered right now. A
// failed send is left for the connection's own read loop to notice.
func (w *keepaliveWorker) probe() {
	frame := protocol.NewIdlePoll()
	for _, h := range w.config.Registry.Handles() {
		machine := h.Machine()
		if err := h.Send(frame); err != nil {
			w.config.Logger.Warningf("[machine %d] keepalive failed: %v", machine, err)
			if w.config.Metrics != nil {
				w.config.Metrics.KeepaliveFailed(machine)
			}
			continue
		}
		w.config.Logger.Tracef("[machine %d] sent %s", machine, frame.MessType())
		if w.config.Metrics != nil {
			w.config.Metrics.KeepaliveSent(machine)
		}
	}
}
