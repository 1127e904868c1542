// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package session

import (
	"sync/atomic"
)

// Snapshot is an immutable view of the operator session. A snapshot is
// never modified after it has been stored; updates replace it whole.
type Snapshot struct {
	// Token is the bearer token presented on every authorization frame.
	Token string

	// User is only meaningful when HasUser is true.
	User    User
	HasUser bool
}

// Session holds the current Snapshot for the whole fleet. It is safe for
// concurrent use; readers always observe a fully written snapshot.
type Session struct {
	current atomic.Pointer[Snapshot]
}

// New returns an empty session.
func New() *Session {
	s := &Session{}
	s.current.Store(&Snapshot{})
	return s
}

// Snapshot returns the current snapshot. The user is deep copied so
// callers may hold on to it freely.
func (s *Session) Snapshot() Snapshot {
	snap := *s.current.Load()
	if snap.HasUser {
		snap.User = snap.User.Clone()
	}
	return snap
}

// Replace swaps in a new snapshot in one step.
func (s *Session) Replace(snap Snapshot) {
	if snap.HasUser {
		snap.User = snap.User.Clone()
	}
	s.current.Store(&snap)
}

// AdoptUser sets the user if no user has been set yet, keeping the
// current token. It reports whether the user was adopted.
func (s *Session) AdoptUser(user User) bool {
	user = user.Clone()
	for {
		old := s.current.Load()
		if old.HasUser {
			return false
		}
		next := &Snapshot{
			Token:   old.Token,
			User:    user,
			HasUser: true,
		}
		if s.current.CompareAndSwap(old, next) {
			return true
		}
	}
}

// ReplaceToken swaps in a new token, keeping whatever user is current.
func (s *Session) ReplaceToken(token string) {
	for {
		old := s.current.Load()
		next := &Snapshot{
			Token:   token,
			User:    old.User,
			HasUser: old.HasUser,
		}
		if s.current.CompareAndSwap(old, next) {
			return
		}
	}
}
