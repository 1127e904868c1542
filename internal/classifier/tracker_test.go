// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package classifier_test

import (
	"fmt"
	"sync"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/juju/errors"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/herdmode/herdmode/core/session"
	"github.com/herdmode/herdmode/internal/classifier"
	coretesting "github.com/herdmode/herdmode/testing"
)

type countingMetrics struct {
	mu     sync.Mutex
	counts map[string]int
}

func (m *countingMetrics) FrameReceived(machine int, class classifier.Class) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counts == nil {
		m.counts = make(map[string]int)
	}
	m.counts[fmt.Sprintf("%d/%s", machine, class)]++
}

type trackerSuite struct {
	coretesting.BaseSuite

	clock   *testclock.Clock
	session *session.Session
	logger  *coretesting.RecordingLogger
	metrics *countingMetrics
	tracker *classifier.Tracker
}

var _ = gc.Suite(&trackerSuite{})

func (s *trackerSuite) SetUpTest(c *gc.C) {
	s.BaseSuite.SetUpTest(c)
	s.clock = testclock.NewClock(time.UnixMilli(1767250800000))
	s.session = session.New()
	s.session.Replace(session.Snapshot{Token: "tok"})
	s.logger = &coretesting.RecordingLogger{}
	s.metrics = &countingMetrics{}

	var err error
	s.tracker, err = classifier.NewTracker(classifier.Config{
		Session: s.session,
		Clock:   s.clock,
		Logger:  s.logger,
		Metrics: s.metrics,
	})
	c.Assert(err, jc.ErrorIsNil)
}

func (s *trackerSuite) TestConfigValidation(c *gc.C) {
	_, err := classifier.NewTracker(classifier.Config{})
	c.Check(errors.Is(err, errors.NotValid), jc.IsTrue)
}

func (s *trackerSuite) TestStallTakesPrecedence(c *gc.C) {
	s.tracker.Handle(1, []byte(`{"ms":{"stall":{"manualClosedStall":"active"}, "mainMode":"manual"}}`))

	state, ok := s.tracker.State(1)
	c.Check(ok, jc.IsTrue)
	c.Check(state, gc.Equals, "activatemanualclosedstall")
}

func (s *trackerSuite) TestMainModeWithoutStall(c *gc.C) {
	s.tracker.Handle(1, []byte(`{"ms":{"mainMode":"auto"}}`))

	state, ok := s.tracker.State(1)
	c.Check(ok, jc.IsTrue)
	c.Check(state, gc.Equals, "auto")
}

func (s *trackerSuite) TestInactiveStallUsesMainMode(c *gc.C) {
	s.tracker.Handle(2, []byte(`{"ms":{"stall":{"manualClosedStall":"inactive"},"mainMode":"manual"}}`))

	state, _ := s.tracker.State(2)
	c.Check(state, gc.Equals, "manual")
}

func (s *trackerSuite) TestNoModeLeavesStateUnchanged(c *gc.C) {
	s.tracker.Handle(1, []byte(`{"ms":{"mainMode":"manual"}}`))
	s.tracker.Handle(1, []byte(`{"ms":{"stall":{"orientation":"left"}}}`))
	s.tracker.Handle(1, []byte(`{"ms":{"mainMode":""}}`))
	s.tracker.Handle(1, []byte(`{"messType":"Other"}`))

	state, _ := s.tracker.State(1)
	c.Check(state, gc.Equals, "manual")

	_, ok := s.tracker.State(2)
	c.Check(ok, jc.IsFalse)
}

func (s *trackerSuite) TestUndecodableDropped(c *gc.C) {
	s.tracker.Handle(1, []byte(`{"ms":{"mainMode":"auto"}}`))
	class := s.tracker.Handle(1, []byte(`{"ms":{"mainMode":"manu`))

	c.Check(class, gc.Equals, classifier.ClassUndecodable)
	state, _ := s.tracker.State(1)
	c.Check(state, gc.Equals, "auto")
	c.Check(s.logger.MessagesAt("WARNING"), gc.HasLen, 1)
	c.Check(s.logger.MessagesAt("WARNING")[0], gc.Matches, `\[machine 1\] failed to decode message: .*`)
}

func (s *trackerSuite) TestUnknownModeStoredAndWarned(c *gc.C) {
	s.tracker.Handle(4, []byte(`{"ms":{"mainMode":"service"}}`))

	state, _ := s.tracker.State(4)
	c.Check(state, gc.Equals, "service")
	c.Check(s.logger.MessagesAt("WARNING"), jc.DeepEquals, []string{`[machine 4] unknown main mode "service"`})
}

func (s *trackerSuite) TestFirstAuthAckAdoptsUser(c *gc.C) {
	class := s.tracker.Handle(0, []byte(`{"isOk":true,"user":{"uuid":"u-1","firstName":"Ada",
		"lastName":"Lovelace","username":"ada","roles":["admin","operator"],"language":"en"}}`))
	c.Check(class, gc.Equals, classifier.ClassAuthAck)

	snap := s.session.Snapshot()
	c.Assert(snap.HasUser, jc.IsTrue)
	c.Check(snap.Token, gc.Equals, "tok")
	c.Check(snap.User.UUID, gc.Equals, "u-1")
	c.Check(snap.User.FirstName, gc.Equals, "Ada")
	c.Check(snap.User.LastName, gc.Equals, "Lovelace")
	c.Check(snap.User.Username, gc.Equals, "ada")
	c.Check(snap.User.Roles.SortedValues(), jc.DeepEquals, []string{"admin", "operator"})
	c.Check(snap.User.Language, gc.Equals, "en")
	c.Check(snap.User.SessionCreated, gc.Equals, int64(1767250800000))
	c.Check(snap.User.Locked, jc.IsFalse)
}

func (s *trackerSuite) TestLaterAuthAcksIgnored(c *gc.C) {
	s.tracker.Handle(0, []byte(`{"isOk":true,"user":{"uuid":"u-1","username":"first"}}`))
	class := s.tracker.Handle(1, []byte(`{"isOk":true,"user":{"uuid":"u-2","username":"second"}}`))

	c.Check(class, gc.Equals, classifier.ClassEvent)
	c.Check(s.session.Snapshot().User.Username, gc.Equals, "first")
	// The ignored ack is logged like any other event.
	c.Check(s.logger.MessagesAt("INFO"), jc.DeepEquals, []string{
		`[machine 0] session user set to "first" (u-1)`,
		`[machine 1] {"isOk":true,"user":{"uuid":"u-2","username":"second"}}`,
	})
}

func (s *trackerSuite) TestRoutineAndIdlePollNotLogged(c *gc.C) {
	c.Check(s.tracker.Handle(1, []byte(`{"ms":{"stall":{"orientation":"left"},"mainMode":"auto"}}`)),
		gc.Equals, classifier.ClassRoutine)
	c.Check(s.tracker.Handle(1, []byte(`{"messType":"IdlePoll"}`)), gc.Equals, classifier.ClassIdlePoll)
	c.Check(s.tracker.Handle(1, []byte(`{"messType":"WebMuuiModeRes","ok":true}`)), gc.Equals, classifier.ClassEvent)

	c.Check(s.logger.MessagesAt("INFO"), jc.DeepEquals, []string{
		`[machine 1] {"messType":"WebMuuiModeRes","ok":true}`,
	})
	// Routine updates still carry the mode.
	state, _ := s.tracker.State(1)
	c.Check(state, gc.Equals, "auto")
}

func (s *trackerSuite) TestMetrics(c *gc.C) {
	s.tracker.Handle(1, []byte(`{"messType":"IdlePoll"}`))
	s.tracker.Handle(1, []byte(`{"messType":"IdlePoll"}`))
	s.tracker.Handle(2, []byte(`nope`))

	c.Check(s.metrics.counts, jc.DeepEquals, map[string]int{
		"1/idle-poll":   2,
		"2/undecodable": 1,
	})
}

func (s *trackerSuite) TestStatesAndMachines(c *gc.C) {
	s.tracker.Handle(3, []byte(`{"ms":{"mainMode":"auto"}}`))
	s.tracker.Handle(1, []byte(`{"ms":{"mainMode":"manual"}}`))

	c.Check(s.tracker.States(), jc.DeepEquals, map[int]string{1: "manual", 3: "auto"})
	c.Check(s.tracker.Machines(), jc.DeepEquals, []int{1, 3})
}

func (s *trackerSuite) TestConcurrentMachines(c *gc.C) {
	var wg sync.WaitGroup
	for machine := 0; machine < 8; machine++ {
		wg.Add(1)
		go func(machine int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				s.tracker.Handle(machine, []byte(`{"ms":{"mainMode":"manual"}}`))
				_ = s.tracker.States()
			}
			s.tracker.Handle(machine, []byte(`{"ms":{"mainMode":"auto"}}`))
		}(machine)
	}
	wg.Wait()

	for machine := 0; machine < 8; machine++ {
		state, _ := s.tracker.State(machine)
		c.Check(state, gc.Equals, "auto")
	}
}
