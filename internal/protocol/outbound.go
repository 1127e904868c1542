// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package protocol holds the JSON frames exchanged with machine
// controllers. Every frame is an object discriminated by "messType".
package protocol

import (
	"encoding/json"

	"github.com/herdmode/herdmode/core/mode"
	"github.com/herdmode/herdmode/core/session"
)

// Message types understood by machine controllers.
const (
	TypeSubscribeModel = "WebMuuiSubscribeMsModelReq"
	TypeAuthorize      = "AuthorizeReq"
	TypeFullModel      = "WebMuuiMsModelReq"
	TypeIdlePoll       = "IdlePoll"
	TypeModeChange     = "WebMuuiModeReq"
)

// Frame is a single outbound message.
type Frame interface {
	// MessType returns the discriminator of the frame.
	MessType() string
}

// SubscribeModel asks the controller to stream model updates.
type SubscribeModel struct {
	Type string `json:"messType"`
}

// MessType is part of the Frame interface.
func (f SubscribeModel) MessType() string { return f.Type }

// Authorize presents the bearer token and session user.
type Authorize struct {
	Type      string      `json:"messType"`
	Token     string      `json:"token"`
	IsPromise bool        `json:"isPromise"`
	User      SessionUser `json:"rcSessionUser"`
}

// MessType is part of the Frame interface.
func (f Authorize) MessType() string { return f.Type }

// FullModel requests the complete machine model.
type FullModel struct {
	Type string `json:"messType"`
}

// MessType is part of the Frame interface.
func (f FullModel) MessType() string { return f.Type }

// IdlePoll is the no-op probe that keeps idle connections open.
type IdlePoll struct {
	Type string `json:"messType"`
}

// MessType is part of the Frame interface.
func (f IdlePoll) MessType() string { return f.Type }

// ModeChange asks the machine to switch mode.
type ModeChange struct {
	Type string      `json:"messType"`
	User SessionUser `json:"rcSessionUser"`
	Mode mode.Mode   `json:"mode"`
}

// MessType is part of the Frame interface.
func (f ModeChange) MessType() string { return f.Type }

// AuthSequence returns the frames sent, in order, once a connection to a
// machine opens. An empty snapshot user is sent as an empty object.
func AuthSequence(snap session.Snapshot) []Frame {
	user := snapshotUser(snap)
	return []Frame{
		SubscribeModel{Type: TypeSubscribeModel},
		Authorize{Type: TypeAuthorize, Token: snap.Token, IsPromise: true, User: user},
		Authorize{Type: TypeAuthorize, Token: snap.Token, IsPromise: false, User: user},
		FullModel{Type: TypeFullModel},
	}
}

// NewIdlePoll returns a keepalive probe.
func NewIdlePoll() IdlePoll {
	return IdlePoll{Type: TypeIdlePoll}
}

// NewModeChange returns a mode change frame for the snapshot user.
func NewModeChange(snap session.Snapshot, m mode.Mode) ModeChange {
	return ModeChange{
		Type: TypeModeChange,
		User: snapshotUser(snap),
		Mode: m,
	}
}

// SessionUser is the "rcSessionUser" attached to authorization and
// command frames. Before any user is known it is sent as an empty object.
type SessionUser struct {
	user *session.User
}

// User returns the attached user, if any.
func (u SessionUser) User() (session.User, bool) {
	if u.user == nil {
		return session.User{}, false
	}
	return *u.user, true
}

// MarshalJSON implements json.Marshaler.
func (u SessionUser) MarshalJSON() ([]byte, error) {
	if u.user == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(*u.user)
}

func snapshotUser(snap session.Snapshot) SessionUser {
	if !snap.HasUser {
		return SessionUser{}
	}
	user := snap.User.Clone()
	return SessionUser{user: &user}
}
