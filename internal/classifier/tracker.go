// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package classifier decodes frames received from machines, keeps the
// last known mode of every machine and decides which frames are worth
// logging.
package classifier

import (
	"sort"
	"sync"

	"github.com/juju/clock"
	"github.com/juju/collections/set"
	"github.com/juju/errors"

	"github.com/herdmode/herdmode/core/logger"
	"github.com/herdmode/herdmode/core/mode"
	"github.com/herdmode/herdmode/core/session"
	"github.com/herdmode/herdmode/internal/protocol"
)

// Class is how a frame was classified.
type Class string

const (
	ClassUndecodable Class = "undecodable"
	ClassAuthAck     Class = "auth-ack"
	ClassRoutine     Class = "routine"
	ClassIdlePoll    Class = "idle-poll"
	ClassEvent       Class = "event"
)

// Metrics receives a count of every classified frame.
type Metrics interface {
	FrameReceived(machine int, class Class)
}

// Config holds the dependencies of a Tracker.
type Config struct {
	Session *session.Session
	Clock   clock.Clock
	Logger  logger.Logger
	Metrics Metrics
}

// Validate ensures the config is usable.
func (c Config) Validate() error {
	if c.Session == nil {
		return errors.NotValidf("nil Session")
	}
	if c.Clock == nil {
		return errors.NotValidf("nil Clock")
	}
	if c.Logger == nil {
		return errors.NotValidf("nil Logger")
	}
	return nil
}

// Tracker classifies inbound frames and holds the mode of each machine.
// Frames of a single machine must be handed over in arrival order;
// frames of different machines may be handled concurrently.
type Tracker struct {
	config Config

	mu     sync.RWMutex
	states map[int]string
}

// NewTracker returns a Tracker with no known machine states.
func NewTracker(config Config) (*Tracker, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return &Tracker{
		config: config,
		states: make(map[int]string),
	}, nil
}

// Handle processes one raw frame received from the machine.
func (t *Tracker) Handle(machine int, raw []byte) Class {
	class := t.handle(machine, raw)
	if t.config.Metrics != nil {
		t.config.Metrics.FrameReceived(machine, class)
	}
	return class
}

func (t *Tracker) handle(machine int, raw []byte) Class {
	in, err := protocol.Decode(raw)
	if err != nil {
		t.config.Logger.Warningf("[machine %d] failed to decode message: %v: %q", machine, err, raw)
		return ClassUndecodable
	}

	class := ClassEvent
	if ack, ok := in.AuthAck(); ok && t.adoptUser(machine, ack) {
		class = ClassAuthAck
	} else {
		switch {
		case in.IsRoutineStatus():
			class = ClassRoutine
			t.config.Logger.Tracef("[machine %d] %s", machine, raw)
		case in.IsIdlePoll():
			class = ClassIdlePoll
			t.config.Logger.Tracef("[machine %d] idle poll acknowledged", machine)
		default:
			t.config.Logger.Infof("[machine %d] %s", machine, raw)
		}
	}

	if status, ok := in.MachineStatus(); ok {
		t.updateState(machine, status)
	}
	return class
}

// adoptUser takes the session user from the first authorization
// acknowledgement seen while no user is known.
func (t *Tracker) adoptUser(machine int, ack protocol.AckUser) bool {
	user := session.User{
		FirstName:      ack.FirstName,
		LastName:       ack.LastName,
		Username:       ack.Username,
		UUID:           ack.UUID,
		Roles:          set.NewStrings(ack.Roles...),
		Language:       ack.Language,
		SessionCreated: t.config.Clock.Now().UnixMilli(),
		Locked:         false,
	}
	if !t.config.Session.AdoptUser(user) {
		return false
	}
	t.config.Logger.Infof("[machine %d] session user set to %q (%s)", machine, user.Username, user.UUID)
	return true
}

func (t *Tracker) updateState(machine int, status protocol.MachineStatus) {
	var next string
	switch {
	case status.ClosedStallActive():
		next = string(mode.ActivateManualClosedStall)
	case status.MainMode != "":
		next = status.MainMode
	default:
		return
	}
	if !mode.Mode(next).IsKnown() {
		t.config.Logger.Warningf("[machine %d] unknown main mode %q", machine, next)
	}

	t.mu.Lock()
	previous, known := t.states[machine]
	t.states[machine] = next
	t.mu.Unlock()

	if !known || previous != next {
		t.config.Logger.Debugf("[machine %d] mode %q -> %q", machine, previous, next)
	}
}

// State returns the last known mode of the machine.
func (t *Tracker) State(machine int) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	state, ok := t.states[machine]
	return state, ok
}

// States returns the last known mode of every machine that reported one.
func (t *Tracker) States() map[int]string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	result := make(map[int]string, len(t.states))
	for machine, state := range t.states {
		result[machine] = state
	}
	return result
}

// Machines returns the indexes of machines with a known mode, in order.
func (t *Tracker) Machines() []int {
	t.mu.RLock()
	machines := make([]int, 0, len(t.states))
	for machine := range t.states {
		machines = append(machines, machine)
	}
	t.mu.RUnlock()
	sort.Ints(machines)
	return machines
}
