// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package fleet provides the root worker: it logs in once, then runs a
// connection worker per machine alongside the keepalive worker and the
// operator HTTP server.
package fleet

import (
	"context"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/retry"
	"github.com/juju/worker/v4"
	"github.com/juju/worker/v4/catacomb"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/herdmode/herdmode/apiserver"
	"github.com/herdmode/herdmode/core/logger"
	"github.com/herdmode/herdmode/core/session"
	"github.com/herdmode/herdmode/internal/auth"
	"github.com/herdmode/herdmode/internal/classifier"
	"github.com/herdmode/herdmode/internal/dispatcher"
	"github.com/herdmode/herdmode/internal/metrics"
	"github.com/herdmode/herdmode/internal/registry"
	"github.com/herdmode/herdmode/internal/transport"
	"github.com/herdmode/herdmode/internal/worker/httpserver"
	"github.com/herdmode/herdmode/internal/worker/keepalive"
	"github.com/herdmode/herdmode/internal/worker/machineconn"
)

// Config holds everything the fleet needs to run.
type Config struct {
	// Endpoints lists the machine endpoints; the index is the machine.
	Endpoints []string

	Username string
	Password string

	Tokens auth.TokenSource
	Dialer transport.Dialer
	Clock  clock.Clock

	// NewLogger returns the logger for a named component.
	NewLogger func(name string) logger.Logger

	// Metrics and Gatherer are optional. Gatherer is served on
	// /metrics.
	Metrics  *metrics.Collector
	Gatherer prometheus.Gatherer

	// ListenAddress is where the operator HTTP server binds. No server
	// is started when it is empty.
	ListenAddress string

	LoginAttempts   int
	LoginRetryDelay time.Duration

	RetryDelay        time.Duration
	AuthMessageDelay  time.Duration
	KeepaliveInterval time.Duration
	WriteTimeout      time.Duration
}

// Validate ensures that the configuration is
// correctly populated for worker operation.
func (config Config) Validate() error {
	if len(config.Endpoints) == 0 {
		return errors.NotValidf("empty Endpoints")
	}
	if config.Tokens == nil {
		return errors.NotValidf("nil Tokens")
	}
	if config.Dialer == nil {
		return errors.NotValidf("nil Dialer")
	}
	if config.Clock == nil {
		return errors.NotValidf("nil Clock")
	}
	if config.NewLogger == nil {
		return errors.NotValidf("nil NewLogger")
	}
	if config.LoginAttempts < 1 {
		return errors.NotValidf("login attempts %d", config.LoginAttempts)
	}
	if config.LoginRetryDelay <= 0 {
		return errors.NotValidf("login retry delay %v", config.LoginRetryDelay)
	}
	return nil
}

// Worker is the root of the fleet.
type Worker struct {
	catacomb catacomb.Catacomb
	config   Config
	logger   logger.Logger

	session    *session.Session
	registry   *registry.Registry
	tracker    *classifier.Tracker
	dispatcher *dispatcher.Dispatcher
}

// NewWorker returns a fleet worker. Nothing is dialled until the login
// has succeeded.
func NewWorker(config Config) (*Worker, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}

	w := &Worker{
		config:   config,
		logger:   config.NewLogger("herdmode.fleet"),
		session:  session.New(),
		registry: registry.New(),
	}

	trackerConfig := classifier.Config{
		Session: w.session,
		Clock:   config.Clock,
		Logger:  config.NewLogger("herdmode.classifier"),
	}
	dispatcherConfig := dispatcher.Config{
		Registry: w.registry,
		Session:  w.session,
		Logger:   config.NewLogger("herdmode.dispatcher"),
	}
	if config.Metrics != nil {
		trackerConfig.Metrics = config.Metrics
		dispatcherConfig.Metrics = config.Metrics
	}

	var err error
	if w.tracker, err = classifier.NewTracker(trackerConfig); err != nil {
		return nil, errors.Trace(err)
	}
	if w.dispatcher, err = dispatcher.New(dispatcherConfig); err != nil {
		return nil, errors.Trace(err)
	}

	if err := catacomb.Invoke(catacomb.Plan{
		Site: &w.catacomb,
		Work: w.loop,
	}); err != nil {
		return nil, errors.Trace(err)
	}
	return w, nil
}

// Kill is part of the worker.Worker interface.
func (w *Worker) Kill() {
	w.catacomb.Kill(nil)
}

// Wait is part of the worker.Worker interface.
func (w *Worker) Wait() error {
	return w.catacomb.Wait()
}

// Session returns the process-wide session state.
func (w *Worker) Session() *session.Session {
	return w.session
}

// Registry returns the open connections.
func (w *Worker) Registry() *registry.Registry {
	return w.registry
}

// Tracker returns the per machine state tracker.
func (w *Worker) Tracker() *classifier.Tracker {
	return w.tracker
}

// Dispatcher returns the mode change dispatcher.
func (w *Worker) Dispatcher() *dispatcher.Dispatcher {
	return w.dispatcher
}

func (w *Worker) loop() error {
	ctx, cancel := w.scopedContext()
	defer cancel()

	if err := w.login(ctx); err != nil {
		return errors.Trace(err)
	}

	for machine, endpoint := range w.config.Endpoints {
		if err := w.startMachine(machine, endpoint); err != nil {
			return errors.Annotatef(err, "starting machine %d", machine)
		}
	}
	if err := w.startKeepalive(); err != nil {
		return errors.Annotate(err, "starting keepalive")
	}
	if w.config.ListenAddress != "" {
		if err := w.startHTTPServer(); err != nil {
			return errors.Annotate(err, "starting HTTP server")
		}
	}

	<-w.catacomb.Dying()
	return w.catacomb.ErrDying()
}

func (w *Worker) scopedContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-w.catacomb.Dying():
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// login authenticates against the identity provider, retrying a fixed
// number of times.
func (w *Worker) login(ctx context.Context) error {
	err := retry.Call(retry.CallArgs{
		Func: func() error {
			return auth.Authenticate(ctx, w.config.Tokens, w.session, w.config.Username, w.config.Password)
		},
		NotifyFunc: func(err error, attempt int) {
			w.logger.Warningf("login attempt %d failed: %v", attempt, err)
		},
		Attempts: w.config.LoginAttempts,
		Delay:    w.config.LoginRetryDelay,
		Clock:    w.config.Clock,
		Stop:     w.catacomb.Dying(),
	})
	if retry.IsRetryStopped(err) {
		return w.catacomb.ErrDying()
	}
	if err != nil {
		return errors.Annotatef(retry.LastError(err), "logging in as %q", w.config.Username)
	}
	w.logger.Infof("logged in as %q", w.config.Username)
	return nil
}

func (w *Worker) startMachine(machine int, endpoint string) error {
	config := machineconn.Config{
		Machine:          machine,
		Endpoint:         endpoint,
		Dialer:           w.config.Dialer,
		Session:          w.session,
		Registry:         w.registry,
		Handler:          w.tracker,
		Clock:            w.config.Clock,
		Logger:           w.config.NewLogger("herdmode.machineconn"),
		RetryDelay:       w.config.RetryDelay,
		AuthMessageDelay: w.config.AuthMessageDelay,
		WriteTimeout:     w.config.WriteTimeout,
	}
	if w.config.Metrics != nil {
		config.Metrics = w.config.Metrics
	}
	conn, err := machineconn.NewWorker(config)
	if err != nil {
		return errors.Trace(err)
	}
	return w.catacomb.Add(conn)
}

func (w *Worker) startKeepalive() error {
	config := keepalive.Config{
		Registry: w.registry,
		Clock:    w.config.Clock,
		Logger:   w.config.NewLogger("herdmode.keepalive"),
		Interval: w.config.KeepaliveInterval,
	}
	if w.config.Metrics != nil {
		config.Metrics = w.config.Metrics
	}
	probe, err := keepalive.NewWorker(config)
	if err != nil {
		return errors.Trace(err)
	}
	return w.catacomb.Add(probe)
}

func (w *Worker) startHTTPServer() error {
	handler, err := apiserver.NewHandler(apiserver.Config{
		Dispatcher:  w.dispatcher,
		Connections: w.registry,
		States:      w.tracker,
		Endpoints:   w.config.Endpoints,
		Gatherer:    w.config.Gatherer,
	})
	if err != nil {
		return errors.Trace(err)
	}
	server, err := httpserver.NewWorker(httpserver.Config{
		ListenAddress: w.config.ListenAddress,
		Handler:       handler,
		Logger:        w.config.NewLogger("herdmode.httpserver"),
	})
	if err != nil {
		return errors.Trace(err)
	}
	return w.catacomb.Add(server)
}

var _ worker.Worker = (*Worker)(nil)
