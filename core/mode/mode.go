// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package mode

import (
	"github.com/juju/errors"
)

// Mode is the operating behaviour selected on a machine.
type Mode string

const (
	// Auto lets the machine run unattended.
	Auto Mode = "auto"

	// Manual hands control of the machine to the operator.
	Manual Mode = "manual"

	// ActivateDelayedRelease activates delayed release of the stall.
	ActivateDelayedRelease Mode = "activatedelayedrel"

	// ActivateManualClosedStall closes the stall and keeps it closed
	// until the operator opens it again.
	ActivateManualClosedStall Mode = "activatemanualclosedstall"
)

// all is indexed by mode selector. The order is part of the operator
// code format and must not change.
var all = []Mode{
	Auto,
	Manual,
	ActivateDelayedRelease,
	ActivateManualClosedStall,
}

// All returns every mode in selector order.
func All() []Mode {
	result := make([]Mode, len(all))
	copy(result, all)
	return result
}

// FromSelector returns the mode for the given selector index.
func FromSelector(selector int) (Mode, error) {
	if selector < 0 || selector >= len(all) {
		return "", errors.NotValidf("mode selector %d", selector)
	}
	return all[selector], nil
}

// Selector returns the selector index of the mode.
func (m Mode) Selector() (int, error) {
	for i, candidate := range all {
		if candidate == m {
			return i, nil
		}
	}
	return -1, errors.NotValidf("mode %q", string(m))
}

// IsKnown reports whether m is one of the enumerated modes.
func (m Mode) IsKnown() bool {
	_, err := m.Selector()
	return err == nil
}

// String implements fmt.Stringer.
func (m Mode) String() string {
	return string(m)
}
