// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package transporttest provides an in-memory transport.Conn for tests.
package transporttest

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/juju/errors"

	"github.com/herdmode/herdmode/internal/transport"
)

// ErrClosed is returned by reads and writes on a closed Conn.
const ErrClosed = errors.ConstError("use of closed connection")

type readResult struct {
	data []byte
	err  error
}

// Conn is an in-memory transport.Conn. Frames pushed with Deliver are
// returned by ReadMessage in order; written frames are recorded.
type Conn struct {
	mu        sync.Mutex
	written   [][]byte
	writeErr  error
	deadlines []time.Time

	reads     chan readResult
	writes    chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

// NewConn returns an open Conn.
func NewConn() *Conn {
	return &Conn{
		reads:  make(chan readResult, 16),
		writes: make(chan []byte, 64),
		closed: make(chan struct{}),
	}
}

// ReadMessage is part of the transport.Conn interface.
func (c *Conn) ReadMessage() (int, []byte, error) {
	select {
	case r := <-c.reads:
		if r.err != nil {
			return 0, nil, r.err
		}
		return transport.TextMessage, r.data, nil
	case <-c.closed:
		return 0, nil, ErrClosed
	}
}

// WriteMessage is part of the transport.Conn interface.
func (c *Conn) WriteMessage(_ int, data []byte) error {
	select {
	case <-c.closed:
		return ErrClosed
	default:
	}

	c.mu.Lock()
	err := c.writeErr
	if err == nil {
		c.written = append(c.written, append([]byte(nil), data...))
	}
	c.mu.Unlock()
	if err != nil {
		return err
	}

	select {
	case c.writes <- data:
	default:
	}
	return nil
}

// SetWriteDeadline is part of the transport.Conn interface.
func (c *Conn) SetWriteDeadline(t time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deadlines = append(c.deadlines, t)
	return nil
}

// Close is part of the transport.Conn interface.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

// Deliver queues a frame to be read by the connection owner.
func (c *Conn) Deliver(frame string) {
	c.reads <- readResult{data: []byte(frame)}
}

// FailRead makes the next read return err, as a dropped connection
// would.
func (c *Conn) FailRead(err error) {
	c.reads <- readResult{err: err}
}

// SetWriteError makes every following write fail with err.
func (c *Conn) SetWriteError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeErr = err
}

// Writes returns a channel receiving each successfully written frame.
func (c *Conn) Writes() <-chan []byte {
	return c.writes
}

// Written returns every successfully written frame.
func (c *Conn) Written() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	result := make([]string, len(c.written))
	for i, data := range c.written {
		result[i] = string(data)
	}
	return result
}

// WrittenTypes returns the messType of every written frame.
func (c *Conn) WrittenTypes() []string {
	var types []string
	for _, frame := range c.Written() {
		var doc struct {
			Type string `json:"messType"`
		}
		_ = json.Unmarshal([]byte(frame), &doc)
		types = append(types, doc.Type)
	}
	return types
}

// Deadlines returns the write deadlines that were set.
func (c *Conn) Deadlines() []time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Time(nil), c.deadlines...)
}

// IsClosed reports whether Close has been called.
func (c *Conn) IsClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}
