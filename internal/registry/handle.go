// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package registry

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"

	"github.com/herdmode/herdmode/internal/protocol"
	"github.com/herdmode/herdmode/internal/transport"
)

// HandleParams holds what is needed to create a Handle.
type HandleParams struct {
	Machine      int
	Endpoint     string
	Conn         transport.Conn
	Clock        clock.Clock
	WriteTimeout time.Duration
}

// Validate ensures the params are usable.
func (p HandleParams) Validate() error {
	if p.Machine < 0 {
		return errors.NotValidf("machine %d", p.Machine)
	}
	if p.Conn == nil {
		return errors.NotValidf("nil Conn")
	}
	if p.Clock == nil {
		return errors.NotValidf("nil Clock")
	}
	if p.WriteTimeout <= 0 {
		return errors.NotValidf("write timeout %v", p.WriteTimeout)
	}
	return nil
}

// Handle is an open connection to one machine. Sends from any goroutine
// are serialized; reading is left to the owning supervisor.
type Handle struct {
	machine      int
	endpoint     string
	conn         transport.Conn
	clock        clock.Clock
	writeTimeout time.Duration
	openedAt     time.Time

	mu sync.Mutex
}

// NewHandle returns a Handle, stamped as opened now.
func NewHandle(params HandleParams) (*Handle, error) {
	if err := params.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return &Handle{
		machine:      params.Machine,
		endpoint:     params.Endpoint,
		conn:         params.Conn,
		clock:        params.Clock,
		writeTimeout: params.WriteTimeout,
		openedAt:     params.Clock.Now(),
	}, nil
}

// Machine returns the machine index the handle is connected to.
func (h *Handle) Machine() int {
	return h.machine
}

// Endpoint returns the URL the handle is connected to.
func (h *Handle) Endpoint() string {
	return h.endpoint
}

// OpenedAt returns when the connection was opened.
func (h *Handle) OpenedAt() time.Time {
	return h.openedAt
}

// Uptime returns how long the connection has been open.
func (h *Handle) Uptime() time.Duration {
	return h.clock.Now().Sub(h.openedAt)
}

// Send encodes the frame and writes it to the machine. A write never
// blocks for longer than the write timeout.
func (h *Handle) Send(frame protocol.Frame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return errors.Annotatef(err, "encoding %s", frame.MessType())
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.conn.SetWriteDeadline(h.clock.Now().Add(h.writeTimeout)); err != nil {
		return errors.Annotatef(err, "setting write deadline for machine %d", h.machine)
	}
	if err := h.conn.WriteMessage(transport.TextMessage, data); err != nil {
		return errors.Annotatef(err, "sending %s to machine %d", frame.MessType(), h.machine)
	}
	return nil
}

// ReadMessage blocks until the next message arrives from the machine.
// Only the owning supervisor reads.
func (h *Handle) ReadMessage() ([]byte, error) {
	_, data, err := h.conn.ReadMessage()
	return data, err
}

// Close closes the connection.
func (h *Handle) Close() error {
	return h.conn.Close()
}
