// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package metrics_test

import (
	"strings"

	jc "github.com/juju/testing/checkers"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	gc "gopkg.in/check.v1"

	"github.com/herdmode/herdmode/internal/classifier"
	"github.com/herdmode/herdmode/internal/metrics"
)

type collectorSuite struct{}

var _ = gc.Suite(&collectorSuite{})

func (s *collectorSuite) TestRegisters(c *gc.C) {
	registry := prometheus.NewPedanticRegistry()
	err := registry.Register(metrics.NewCollector())
	c.Assert(err, jc.ErrorIsNil)
}

func (s *collectorSuite) TestConnections(c *gc.C) {
	collector := metrics.NewCollector()
	collector.Connected(1)
	collector.Connected(2)
	collector.Disconnected(1, 12)
	collector.ConnectFailed(3)

	err := testutil.CollectAndCompare(collector, strings.NewReader(`
# HELP herdmode_connections The number of authenticated machine connections.
# TYPE herdmode_connections gauge
herdmode_connections 1
# HELP herdmode_connects_total The number of successful connections per machine.
# TYPE herdmode_connects_total counter
herdmode_connects_total{machine="1"} 1
herdmode_connects_total{machine="2"} 1
# HELP herdmode_connect_failures_total The number of failed connection attempts per machine.
# TYPE herdmode_connect_failures_total counter
herdmode_connect_failures_total{machine="3"} 1
`), "herdmode_connections", "herdmode_connects_total", "herdmode_connect_failures_total")
	c.Assert(err, jc.ErrorIsNil)
}

func (s *collectorSuite) TestFramesKeepaliveAndCommands(c *gc.C) {
	collector := metrics.NewCollector()
	collector.FrameReceived(1, classifier.ClassEvent)
	collector.FrameReceived(1, classifier.ClassEvent)
	collector.FrameReceived(2, classifier.ClassUndecodable)
	collector.KeepaliveSent(1)
	collector.KeepaliveFailed(2)
	collector.CommandDispatched(metrics.CommandSent)
	collector.CommandDispatched(metrics.CommandRejected)

	err := testutil.CollectAndCompare(collector, strings.NewReader(`
# HELP herdmode_frames_received_total The number of frames received, by machine and class.
# TYPE herdmode_frames_received_total counter
herdmode_frames_received_total{class="event",machine="1"} 2
herdmode_frames_received_total{class="undecodable",machine="2"} 1
# HELP herdmode_keepalive_sent_total The number of keepalive probes sent.
# TYPE herdmode_keepalive_sent_total counter
herdmode_keepalive_sent_total 1
# HELP herdmode_keepalive_failures_total The number of keepalive probes that could not be sent.
# TYPE herdmode_keepalive_failures_total counter
herdmode_keepalive_failures_total{machine="2"} 1
# HELP herdmode_mode_commands_total The number of mode change commands, by result.
# TYPE herdmode_mode_commands_total counter
herdmode_mode_commands_total{result="rejected"} 1
herdmode_mode_commands_total{result="sent"} 1
`),
		"herdmode_frames_received_total",
		"herdmode_keepalive_sent_total",
		"herdmode_keepalive_failures_total",
		"herdmode_mode_commands_total",
	)
	c.Assert(err, jc.ErrorIsNil)
}
