// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package httpserver runs an HTTP server as a worker.
package httpserver

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/juju/errors"
	"github.com/juju/worker/v4"
	"github.com/juju/worker/v4/catacomb"

	"github.com/herdmode/herdmode/core/logger"
)

// DefaultShutdownTimeout bounds how long in-flight requests may run
// once the worker is killed.
const DefaultShutdownTimeout = 5 * time.Second

// Config holds the configuration of the HTTP server worker.
type Config struct {
	// ListenAddress is the host:port the server binds to.
	ListenAddress string

	Handler http.Handler
	Logger  logger.Logger

	// ShutdownTimeout defaults to DefaultShutdownTimeout.
	ShutdownTimeout time.Duration
}

// Validate ensures that the configuration is
// correctly populated for worker operation.
func (config Config) Validate() error {
	if config.ListenAddress == "" {
		return errors.NotValidf("empty ListenAddress")
	}
	if config.Handler == nil {
		return errors.NotValidf("nil Handler")
	}
	if config.Logger == nil {
		return errors.NotValidf("nil Logger")
	}
	if config.ShutdownTimeout < 0 {
		return errors.NotValidf("shutdown timeout %v", config.ShutdownTimeout)
	}
	return nil
}

// Worker serves HTTP until it is killed.
type Worker struct {
	catacomb catacomb.Catacomb
	config   Config

	listener net.Listener
	server   *http.Server
}

// NewWorker binds the listen address and starts serving. A bind failure
// is returned directly.
func NewWorker(config Config) (*Worker, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	if config.ShutdownTimeout == 0 {
		config.ShutdownTimeout = DefaultShutdownTimeout
	}

	listener, err := net.Listen("tcp", config.ListenAddress)
	if err != nil {
		return nil, errors.Annotatef(err, "listening on %s", config.ListenAddress)
	}

	w := &Worker{
		config:   config,
		listener: listener,
		server: &http.Server{
			Handler:           config.Handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
	if err := catacomb.Invoke(catacomb.Plan{
		Site: &w.catacomb,
		Work: w.loop,
	}); err != nil {
		_ = listener.Close()
		return nil, errors.Trace(err)
	}
	return w, nil
}

// Addr returns the address the server is listening on.
func (w *Worker) Addr() net.Addr {
	return w.listener.Addr()
}

// Kill is part of the worker.Worker interface.
func (w *Worker) Kill() {
	w.catacomb.Kill(nil)
}

// Wait is part of the worker.Worker interface.
func (w *Worker) Wait() error {
	return w.catacomb.Wait()
}

func (w *Worker) loop() error {
	w.config.Logger.Infof("serving HTTP on %s", w.listener.Addr())

	served := make(chan error, 1)
	go func() {
		served <- w.server.Serve(w.listener)
	}()

	select {
	case <-w.catacomb.Dying():
		ctx, cancel := context.WithTimeout(context.Background(), w.config.ShutdownTimeout)
		defer cancel()
		if err := w.server.Shutdown(ctx); err != nil {
			w.config.Logger.Warningf("HTTP server shutdown: %v", err)
			_ = w.server.Close()
		}
		<-served
		return w.catacomb.ErrDying()
	case err := <-served:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Annotate(err, "serving HTTP")
	}
}

var _ worker.Worker = (*Worker)(nil)
