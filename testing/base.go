// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package testing holds helpers shared by the test suites.
package testing

import (
	"time"

	jujutesting "github.com/juju/testing"
)

const (
	// ShortWait is a reasonable amount of time to block waiting for
	// something that shouldn't happen.
	ShortWait = 50 * time.Millisecond

	// LongWait is used when something should have already happened, or
	// happens quickly, but we want to make sure we just haven't missed
	// it. As in, the test suite should proceed without sleeping at all,
	// but just in case. It is long so that we don't have spurious
	// failures without actually slowing down the test suite.
	LongWait = 10 * time.Second
)

// BaseSuite isolates tests from the environment and resets logging
// between tests.
type BaseSuite struct {
	jujutesting.IsolationSuite
}
