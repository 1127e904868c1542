// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package protocol

import (
	"encoding/json"

	"github.com/juju/errors"
)

// StallActive is the value of a stall flag that is switched on.
const StallActive = "active"

// Inbound is a frame received from a machine controller.
type Inbound struct {
	fields map[string]json.RawMessage
}

// Decode parses a raw frame. Anything other than a JSON object is
// reported as not valid.
func Decode(raw []byte) (Inbound, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Inbound{}, errors.NewNotValid(err, "decoding frame")
	}
	if fields == nil {
		return Inbound{}, errors.NotValidf("null frame")
	}
	return Inbound{fields: fields}, nil
}

// MessType returns the frame discriminator, or "" if there is none.
func (in Inbound) MessType() string {
	var t string
	in.decodeField("messType", &t)
	return t
}

// IsIdlePoll reports whether the frame acknowledges a keepalive probe.
func (in Inbound) IsIdlePoll() bool {
	return in.MessType() == TypeIdlePoll
}

// AckUser is the user descriptor carried by an authorization
// acknowledgement.
type AckUser struct {
	FirstName string   `json:"firstName"`
	LastName  string   `json:"lastName"`
	Username  string   `json:"username"`
	UUID      string   `json:"uuid"`
	Roles     []string `json:"roles"`
	Language  string   `json:"language"`
}

// AuthAck returns the user of a successful authorization acknowledgement:
// a frame with "isOk" true and a "user" object that carries a uuid.
func (in Inbound) AuthAck() (AckUser, bool) {
	var ok bool
	if !in.decodeField("isOk", &ok) || !ok {
		return AckUser{}, false
	}
	var userFields map[string]json.RawMessage
	if !in.decodeField("user", &userFields) {
		return AckUser{}, false
	}
	if _, found := userFields["uuid"]; !found {
		return AckUser{}, false
	}
	var user AckUser
	raw := in.fields["user"]
	if err := json.Unmarshal(raw, &user); err != nil {
		// Mistyped optional fields should not hide the ack; fall back
		// to the fields that decode cleanly.
		user = AckUser{}
		decodeInto(userFields, "firstName", &user.FirstName)
		decodeInto(userFields, "lastName", &user.LastName)
		decodeInto(userFields, "username", &user.Username)
		decodeInto(userFields, "uuid", &user.UUID)
		decodeInto(userFields, "roles", &user.Roles)
		decodeInto(userFields, "language", &user.Language)
	}
	return user, true
}

// MachineStatus is the "ms" sub structure describing the machine.
type MachineStatus struct {
	// MainMode is the reported operating mode, "" when absent.
	MainMode string

	// ManualClosedStall is the manual closed stall flag, "" when absent.
	ManualClosedStall string

	// Orientation is set on the periodic stall status updates.
	Orientation bool
}

// ClosedStallActive reports whether the manual closed stall is on.
func (s MachineStatus) ClosedStallActive() bool {
	return s.ManualClosedStall == StallActive
}

// MachineStatus returns the machine status carried by the frame, if any.
func (in Inbound) MachineStatus() (MachineStatus, bool) {
	var ms map[string]json.RawMessage
	if !in.decodeField("ms", &ms) {
		return MachineStatus{}, false
	}
	var status MachineStatus
	decodeInto(ms, "mainMode", &status.MainMode)

	var stall map[string]json.RawMessage
	if decodeInto(ms, "stall", &stall) {
		decodeInto(stall, "manualClosedStall", &status.ManualClosedStall)
		_, status.Orientation = stall["orientation"]
	}
	return status, true
}

// IsRoutineStatus reports whether the frame is one of the periodic stall
// status updates that machines send continuously.
func (in Inbound) IsRoutineStatus() bool {
	status, ok := in.MachineStatus()
	return ok && status.Orientation
}

func (in Inbound) decodeField(name string, target interface{}) bool {
	return decodeInto(in.fields, name, target)
}

// decodeInto decodes fields[name] into target, reporting false when the
// field is missing, null or of the wrong type.
func decodeInto(fields map[string]json.RawMessage, name string, target interface{}) bool {
	raw, found := fields[name]
	if !found || string(raw) == "null" {
		return false
	}
	return json.Unmarshal(raw, target) == nil
}
