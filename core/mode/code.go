// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package mode

import (
	"github.com/juju/errors"
)

// ParseCode decodes a two character operator code. The first character
// is the decimal machine index, the second the decimal mode selector.
//
// Only the shape of the code is checked here; whether the selector names
// a known mode or the machine is connected is decided by the dispatcher.
func ParseCode(code string) (machineIndex, selector int, err error) {
	if len(code) != 2 {
		return 0, 0, errors.NotValidf("code %q", code)
	}
	machineIndex, ok := digit(code[0])
	if !ok {
		return 0, 0, errors.NotValidf("machine in code %q", code)
	}
	selector, ok = digit(code[1])
	if !ok {
		return 0, 0, errors.NotValidf("mode in code %q", code)
	}
	return machineIndex, selector, nil
}

func digit(b byte) (int, bool) {
	if b < '0' || b > '9' {
		return 0, false
	}
	return int(b - '0'), true
}
