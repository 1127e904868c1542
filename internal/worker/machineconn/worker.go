// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package machineconn provides a worker that keeps one authenticated
// websocket connection open to a single machine, reconnecting for as
// long as the worker lives.
package machineconn

import (
	"context"
	"sync"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/worker/v4"
	"github.com/juju/worker/v4/catacomb"

	"github.com/herdmode/herdmode/core/logger"
	"github.com/herdmode/herdmode/core/session"
	"github.com/herdmode/herdmode/internal/classifier"
	"github.com/herdmode/herdmode/internal/protocol"
	"github.com/herdmode/herdmode/internal/registry"
	"github.com/herdmode/herdmode/internal/transport"
)

// State describes where a connection is in its lifecycle.
type State string

const (
	Disconnected   State = "disconnected"
	Connecting     State = "connecting"
	Authenticating State = "authenticating"
	Active         State = "active"
	Closing        State = "closing"
)

// FrameHandler consumes every frame read from the machine.
type FrameHandler interface {
	Handle(machine int, raw []byte) classifier.Class
}

// Metrics records connection lifecycle events.
type Metrics interface {
	Connected(machine int)
	Disconnected(machine int, seconds float64)
	ConnectFailed(machine int)
}

// Config holds the dependencies and tunables of a connection worker.
type Config struct {
	Machine  int
	Endpoint string

	Dialer   transport.Dialer
	Session  *session.Session
	Registry *registry.Registry
	Handler  FrameHandler
	Clock    clock.Clock
	Logger   logger.Logger

	// Metrics is optional.
	Metrics Metrics

	// RetryDelay is the pause between a failed or closed connection
	// and the next attempt.
	RetryDelay time.Duration

	// AuthMessageDelay is waited before each frame of the
	// authorization sequence.
	AuthMessageDelay time.Duration

	// WriteTimeout bounds every frame written to the machine.
	WriteTimeout time.Duration
}

// Validate ensures that the configuration is
// correctly populated for worker operation.
func (config Config) Validate() error {
	if config.Machine < 0 {
		return errors.NotValidf("machine %d", config.Machine)
	}
	if config.Endpoint == "" {
		return errors.NotValidf("empty Endpoint")
	}
	if config.Dialer == nil {
		return errors.NotValidf("nil Dialer")
	}
	if config.Session == nil {
		return errors.NotValidf("nil Session")
	}
	if config.Registry == nil {
		return errors.NotValidf("nil Registry")
	}
	if config.Handler == nil {
		return errors.NotValidf("nil Handler")
	}
	if config.Clock == nil {
		return errors.NotValidf("nil Clock")
	}
	if config.Logger == nil {
		return errors.NotValidf("nil Logger")
	}
	if config.RetryDelay <= 0 {
		return errors.NotValidf("retry delay %v", config.RetryDelay)
	}
	if config.AuthMessageDelay < 0 {
		return errors.NotValidf("auth message delay %v", config.AuthMessageDelay)
	}
	if config.WriteTimeout <= 0 {
		return errors.NotValidf("write timeout %v", config.WriteTimeout)
	}
	return nil
}

// Worker supervises the connection to one machine.
type Worker struct {
	catacomb catacomb.Catacomb
	config   Config

	mu    sync.Mutex
	state State
}

// NewWorker starts a connection worker for the configured machine.
func NewWorker(config Config) (*Worker, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	w := &Worker{
		config: config,
		state:  Disconnected,
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

// Machine returns the index of the supervised machine.
func (w *Worker) Machine() int {
	return w.config.Machine
}

// State returns the current lifecycle state of the connection.
func (w *Worker) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

func (w *Worker) setState(state State) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.state = state
}

func (w *Worker) loop() error {
	defer w.setState(Disconnected)

	ctx, cancel := w.scopedContext()
	defer cancel()

	machine := w.config.Machine
	for {
		err := w.connect(ctx)
		select {
		case <-w.catacomb.Dying():
			return w.catacomb.ErrDying()
		default:
		}
		if err != nil {
			w.config.Logger.Errorf("[machine %d] connection error: %v", machine, err)
		}
		w.setState(Disconnected)
		w.config.Logger.Infof("[machine %d] reconnecting in %v", machine, w.config.RetryDelay)

		select {
		case <-w.catacomb.Dying():
			return w.catacomb.ErrDying()
		case <-w.config.Clock.After(w.config.RetryDelay):
		}
	}
}

// scopedContext returns a context that is cancelled when the worker
// starts dying.
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

// connect runs one connection from dial to close. It returns nil when
// the machine closed the connection cleanly.
func (w *Worker) connect(ctx context.Context) error {
	machine := w.config.Machine

	w.setState(Connecting)
	w.config.Logger.Infof("[machine %d] connecting to %s", machine, w.config.Endpoint)
	conn, err := w.config.Dialer.Dial(ctx, w.config.Endpoint)
	if err != nil {
		if w.config.Metrics != nil {
			w.config.Metrics.ConnectFailed(machine)
		}
		return errors.Trace(err)
	}

	handle, err := registry.NewHandle(registry.HandleParams{
		Machine:      machine,
		Endpoint:     w.config.Endpoint,
		Conn:         conn,
		Clock:        w.config.Clock,
		WriteTimeout: w.config.WriteTimeout,
	})
	if err != nil {
		_ = conn.Close()
		return errors.Trace(err)
	}
	defer w.closeHandle(handle)

	w.setState(Authenticating)
	if err := w.authorize(handle); err != nil {
		return errors.Trace(err)
	}

	if err := w.config.Registry.Register(handle); err != nil {
		return errors.Trace(err)
	}
	if w.config.Metrics != nil {
		w.config.Metrics.Connected(machine)
	}
	w.setState(Active)
	w.config.Logger.Infof("[machine %d] connected and authorized", machine)

	return w.readLoop(handle)
}

// authorize sends the authorization sequence, pausing before each
// frame.
func (w *Worker) authorize(handle *registry.Handle) error {
	for _, frame := range protocol.AuthSequence(w.config.Session.Snapshot()) {
		select {
		case <-w.catacomb.Dying():
			return w.catacomb.ErrDying()
		case <-w.config.Clock.After(w.config.AuthMessageDelay):
		}
		if err := handle.Send(frame); err != nil {
			return errors.Trace(err)
		}
		w.config.Logger.Debugf("[machine %d] sent %s", w.config.Machine, frame.MessType())
	}
	return nil
}

func (w *Worker) readLoop(handle *registry.Handle) error {
	machine := w.config.Machine

	done := make(chan error, 1)
	go func() {
		for {
			data, err := handle.ReadMessage()
			if err != nil {
				done <- err
				return
			}
			w.config.Handler.Handle(machine, data)
		}
	}()

	select {
	case <-w.catacomb.Dying():
		w.setState(Closing)
		_ = handle.Close()
		<-done
		return w.catacomb.ErrDying()
	case err := <-done:
		if transport.IsNormalClose(err) {
			w.config.Logger.Infof("[machine %d] connection closed by peer", machine)
			return nil
		}
		return errors.Annotate(err, "reading")
	}
}

func (w *Worker) closeHandle(handle *registry.Handle) {
	machine := w.config.Machine
	w.setState(Closing)

	registered := w.config.Registry.Unregister(handle)
	_ = handle.Close()

	if !registered {
		return
	}
	uptime := handle.Uptime()
	if w.config.Metrics != nil {
		w.config.Metrics.Disconnected(machine, uptime.Seconds())
	}
	w.config.Logger.Infof("[machine %d] disconnected after %v", machine, uptime.Round(time.Second))
}

var _ worker.Worker = (*Worker)(nil)
