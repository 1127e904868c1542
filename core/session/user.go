// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package session

import (
	"encoding/json"

	"github.com/juju/collections/set"
)

// User describes the authenticated operator. It is attached to every
// authorization and command frame sent to a machine.
type User struct {
	FirstName string
	LastName  string
	Username  string
	UUID      string
	Roles     set.Strings
	Language  string

	// SessionCreated is in milliseconds since the Unix epoch.
	SessionCreated int64
	Locked         bool
}

// userDoc is the wire form of User.
type userDoc struct {
	FirstName      string   `json:"firstName"`
	LastName       string   `json:"lastName"`
	Username       string   `json:"username"`
	UUID           string   `json:"uuid"`
	Roles          []string `json:"roles"`
	Language       string   `json:"language"`
	SessionCreated int64    `json:"sessionCreated"`
	Locked         bool     `json:"rcLocked"`
}

// MarshalJSON implements json.Marshaler. Roles are written sorted so
// the same user always produces the same frame.
func (u User) MarshalJSON() ([]byte, error) {
	roles := u.Roles.SortedValues()
	if roles == nil {
		roles = []string{}
	}
	return json.Marshal(userDoc{
		FirstName:      u.FirstName,
		LastName:       u.LastName,
		Username:       u.Username,
		UUID:           u.UUID,
		Roles:          roles,
		Language:       u.Language,
		SessionCreated: u.SessionCreated,
		Locked:         u.Locked,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (u *User) UnmarshalJSON(data []byte) error {
	var doc userDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	*u = User{
		FirstName:      doc.FirstName,
		LastName:       doc.LastName,
		Username:       doc.Username,
		UUID:           doc.UUID,
		Roles:          set.NewStrings(doc.Roles...),
		Language:       doc.Language,
		SessionCreated: doc.SessionCreated,
		Locked:         doc.Locked,
	}
	return nil
}

// Clone returns a deep copy of the user.
func (u User) Clone() User {
	clone := u
	clone.Roles = set.NewStrings(u.Roles.Values()...)
	return clone
}
