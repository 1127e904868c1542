// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/herdmode/herdmode/internal/classifier"
)

const metricsNamespace = "herdmode"

// Command results recorded by CommandDispatched.
const (
	CommandSent     = "sent"
	CommandRejected = "rejected"
	CommandFailed   = "failed"
)

// Collector is a prometheus.Collector that collects metrics about the
// machine connections of the fleet.
type Collector struct {
	connections     prometheus.Gauge
	connects        *prometheus.CounterVec
	connectFailures *prometheus.CounterVec
	connectionTime  prometheus.Histogram
	framesReceived  *prometheus.CounterVec
	keepaliveSent   prometheus.Counter
	keepaliveFailed *prometheus.CounterVec
	commands        *prometheus.CounterVec
}

// NewCollector returns a new Collector.
func NewCollector() *Collector {
	return &Collector{
		connections: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "connections",
				Help:      "The number of authenticated machine connections.",
			},
		),
		connects: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "connects_total",
				Help:      "The number of successful connections per machine.",
			}, []string{"machine"},
		),
		connectFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "connect_failures_total",
				Help:      "The number of failed connection attempts per machine.",
			}, []string{"machine"},
		),
		connectionTime: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "connection_seconds",
				Help:      "How long machine connections stayed open.",
				Buckets:   []float64{1, 10, 60, 300, 1800, 3600, 21600, 86400},
			},
		),
		framesReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "frames_received_total",
				Help:      "The number of frames received, by machine and class.",
			}, []string{"machine", "class"},
		),
		keepaliveSent: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "keepalive_sent_total",
				Help:      "The number of keepalive probes sent.",
			},
		),
		keepaliveFailed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "keepalive_failures_total",
				Help:      "The number of keepalive probes that could not be sent.",
			}, []string{"machine"},
		),
		commands: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "mode_commands_total",
				Help:      "The number of mode change commands, by result.",
			}, []string{"result"},
		),
	}
}

func label(machine int) string {
	return strconv.Itoa(machine)
}

// Connected records a connection that completed authentication.
func (c *Collector) Connected(machine int) {
	c.connections.Inc()
	c.connects.WithLabelValues(label(machine)).Inc()
}

// Disconnected records the end of an authenticated connection.
func (c *Collector) Disconnected(machine int, seconds float64) {
	c.connections.Dec()
	c.connectionTime.Observe(seconds)
}

// ConnectFailed records a failed connection attempt.
func (c *Collector) ConnectFailed(machine int) {
	c.connectFailures.WithLabelValues(label(machine)).Inc()
}

// FrameReceived is part of the classifier.Metrics interface.
func (c *Collector) FrameReceived(machine int, class classifier.Class) {
	c.framesReceived.WithLabelValues(label(machine), string(class)).Inc()
}

// KeepaliveSent records a probe handed to the transport.
func (c *Collector) KeepaliveSent(machine int) {
	c.keepaliveSent.Inc()
}

// KeepaliveFailed records a probe that could not be sent.
func (c *Collector) KeepaliveFailed(machine int) {
	c.keepaliveFailed.WithLabelValues(label(machine)).Inc()
}

// CommandDispatched records the result of a mode change command.
func (c *Collector) CommandDispatched(result string) {
	c.commands.WithLabelValues(result).Inc()
}

// Describe is part of the prometheus.Collector interface.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.connections.Describe(ch)
	c.connects.Describe(ch)
	c.connectFailures.Describe(ch)
	c.connectionTime.Describe(ch)
	c.framesReceived.Describe(ch)
	c.keepaliveSent.Describe(ch)
	c.keepaliveFailed.Describe(ch)
	c.commands.Describe(ch)
}

// Collect is part of the prometheus.Collector interface.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.connections.Collect(ch)
	c.connects.Collect(ch)
	c.connectFailures.Collect(ch)
	c.connectionTime.Collect(ch)
	c.framesReceived.Collect(ch)
	c.keepaliveSent.Collect(ch)
	c.keepaliveFailed.Collect(ch)
	c.commands.Collect(ch)
}
