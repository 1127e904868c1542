// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package apiserver exposes the operator HTTP surface: mode change
// commands, a fleet listing and Prometheus metrics.
package apiserver

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/juju/errors"
	"github.com/juju/loggo"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/herdmode/herdmode/core/mode"
	"github.com/herdmode/herdmode/internal/registry"
)

var logger = loggo.GetLogger("herdmode.apiserver")

// ModeDispatcher sends mode change commands.
type ModeDispatcher interface {
	SendModeChange(machine, selector int) (mode.Mode, error)
}

// Connections looks up the open connection of a machine.
type Connections interface {
	Get(machine int) (*registry.Handle, bool)
}

// States reports the last known mode of a machine.
type States interface {
	State(machine int) (string, bool)
}

// Config holds the dependencies of the HTTP handlers.
type Config struct {
	Dispatcher  ModeDispatcher
	Connections Connections
	States      States

	// Endpoints lists every machine endpoint by index.
	Endpoints []string

	// Gatherer is served on /metrics. It is optional.
	Gatherer prometheus.Gatherer
}

// Validate ensures the config is usable.
func (c Config) Validate() error {
	if c.Dispatcher == nil {
		return errors.NotValidf("nil Dispatcher")
	}
	if c.Connections == nil {
		return errors.NotValidf("nil Connections")
	}
	if c.States == nil {
		return errors.NotValidf("nil States")
	}
	return nil
}

// NewHandler returns the router serving every route.
func NewHandler(config Config) (http.Handler, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}

	router := mux.NewRouter()
	router.Handle("/mode/{code}", &modeHandler{dispatcher: config.Dispatcher}).Methods(http.MethodGet)
	router.Handle("/machines", &machinesHandler{
		endpoints:   append([]string(nil), config.Endpoints...),
		connections: config.Connections,
		states:      config.States,
	}).Methods(http.MethodGet)
	if config.Gatherer != nil {
		router.Handle("/metrics", promhttp.HandlerFor(config.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
	return router, nil
}
