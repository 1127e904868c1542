// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package transport opens the WebSocket connections to machine
// controllers.
package transport

import (
	"context"
	"crypto/tls"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/juju/errors"
)

// TextMessage is the frame type used for every JSON message.
const TextMessage = websocket.TextMessage

// Conn is the part of a WebSocket connection used by the fleet.
// *websocket.Conn satisfies it.
type Conn interface {
	// ReadMessage blocks until the next message arrives.
	ReadMessage() (messageType int, p []byte, err error)

	// WriteMessage writes a single message. At most one goroutine may
	// write at a time.
	WriteMessage(messageType int, data []byte) error

	// SetWriteDeadline bounds the next writes.
	SetWriteDeadline(t time.Time) error

	// Close closes the underlying network connection, unblocking any
	// pending read.
	Close() error
}

// Dialer opens connections to machine endpoints.
type Dialer interface {
	Dial(ctx context.Context, endpoint string) (Conn, error)
}

// Config controls how connections are opened.
type Config struct {
	// Origin and UserAgent are sent on the upgrade request; controllers
	// refuse clients that do not look like the vendor web UI.
	Origin    string
	UserAgent string

	// InsecureSkipVerify disables certificate verification. Controllers
	// present certificates that are not publicly trusted.
	InsecureSkipVerify bool

	HandshakeTimeout time.Duration
}

// WebSocketDialer is a Dialer backed by gorilla/websocket.
type WebSocketDialer struct {
	dialer websocket.Dialer
	header http.Header
}

// NewDialer returns a Dialer for the given config.
func NewDialer(config Config) *WebSocketDialer {
	header := http.Header{}
	if config.UserAgent != "" {
		header.Set("User-Agent", config.UserAgent)
	}
	if config.Origin != "" {
		header.Set("Origin", config.Origin)
	}
	return &WebSocketDialer{
		dialer: websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: config.HandshakeTimeout,
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: config.InsecureSkipVerify,
			},
		},
		header: header,
	}
}

// Dial is part of the Dialer interface.
func (d *WebSocketDialer) Dial(ctx context.Context, endpoint string) (Conn, error) {
	conn, resp, err := d.dialer.DialContext(ctx, endpoint, d.header.Clone())
	if err != nil {
		if resp != nil {
			return nil, errors.Annotatef(err, "dialing %s (status %s)", endpoint, resp.Status)
		}
		return nil, errors.Annotatef(err, "dialing %s", endpoint)
	}
	return conn, nil
}

// IsNormalClose reports whether err is the peer closing the connection
// with a normal or going-away close frame.
func IsNormalClose(err error) bool {
	return websocket.IsCloseError(errors.Cause(err), websocket.CloseNormalClosure, websocket.CloseGoingAway)
}
