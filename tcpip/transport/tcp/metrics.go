// Copyright 2016 The Netstack Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tcp

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// dropReason labels why process_segment dropped a segment without mutating
// state, per the error taxonomy of spec.md section 7.
type dropReason string

const (
	dropInvalidSeq  dropReason = "invalid_seq"
	dropOutOfRange  dropReason = "ack_out_of_range"
	dropAllocFailed dropReason = "alloc_failed"
	dropUnknownFlag dropReason = "unknown_flags"
	dropStaleData   dropReason = "stale_data"
)

// Metrics is a prometheus.Collector tracking every live connection, in the
// Describe/Collect style of runZeroInc-sockstats' pkg/exporter.
// TCPInfoCollector: a locked map of tracked objects plus a fixed set of
// metric descriptions produced from it on each Collect.
type Metrics struct {
	mu    sync.Mutex
	conns map[*Conn]struct{}

	segmentsProcessed *prometheus.Desc
	segmentsDropped   *prometheus.Desc
	retransmitsArmed  *prometheus.Desc
	stateTransitions  *prometheus.Desc
	ofoQueueDepth     *prometheus.Desc

	processedTotal  uint64
	droppedTotal    map[dropReason]uint64
	retransmitTotal uint64
	transitionTotal uint64
}

// NewMetrics returns a Metrics collector with no connections tracked yet.
// Register it with a prometheus.Registry to expose it.
func NewMetrics() *Metrics {
	return &Metrics{
		conns:        make(map[*Conn]struct{}),
		droppedTotal: make(map[dropReason]uint64),
		segmentsProcessed: prometheus.NewDesc(
			"tcpcore_segments_processed_total",
			"Total segments handed to process_segment.",
			nil, nil,
		),
		segmentsDropped: prometheus.NewDesc(
			"tcpcore_segments_dropped_total",
			"Total segments dropped without mutating connection state, by reason.",
			[]string{"reason"}, nil,
		),
		retransmitsArmed: prometheus.NewDesc(
			"tcpcore_retransmits_armed_total",
			"Total retransmit timers armed.",
			nil, nil,
		),
		stateTransitions: prometheus.NewDesc(
			"tcpcore_state_transitions_total",
			"Total connection state transitions.",
			nil, nil,
		),
		ofoQueueDepth: prometheus.NewDesc(
			"tcpcore_ofo_queue_depth",
			"Current number of out-of-order reassembly entries, summed across tracked connections.",
			nil, nil,
		),
	}
}

// Track registers a connection with the collector.
func (m *Metrics) Track(c *Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conns[c] = struct{}{}
}

// Untrack removes a connection from the collector, called once it reaches
// CLOSED and is released.
func (m *Metrics) Untrack(c *Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.conns, c)
}

func (m *Metrics) recordProcessed() {
	m.mu.Lock()
	m.processedTotal++
	m.mu.Unlock()
}

func (m *Metrics) recordDropped(reason dropReason) {
	m.mu.Lock()
	m.droppedTotal[reason]++
	m.mu.Unlock()
}

func (m *Metrics) recordRetransmitArmed() {
	m.mu.Lock()
	m.retransmitTotal++
	m.mu.Unlock()
}

func (m *Metrics) recordTransition() {
	m.mu.Lock()
	m.transitionTotal++
	m.mu.Unlock()
}

// Describe implements prometheus.Collector.
func (m *Metrics) Describe(descs chan<- *prometheus.Desc) {
	descs <- m.segmentsProcessed
	descs <- m.segmentsDropped
	descs <- m.retransmitsArmed
	descs <- m.stateTransitions
	descs <- m.ofoQueueDepth
}

// Collect implements prometheus.Collector.
func (m *Metrics) Collect(metrics chan<- prometheus.Metric) {
	m.mu.Lock()
	defer m.mu.Unlock()

	metrics <- prometheus.MustNewConstMetric(m.segmentsProcessed, prometheus.CounterValue, float64(m.processedTotal))
	for reason, n := range m.droppedTotal {
		metrics <- prometheus.MustNewConstMetric(m.segmentsDropped, prometheus.CounterValue, float64(n), string(reason))
	}
	metrics <- prometheus.MustNewConstMetric(m.retransmitsArmed, prometheus.CounterValue, float64(m.retransmitTotal))
	metrics <- prometheus.MustNewConstMetric(m.stateTransitions, prometheus.CounterValue, float64(m.transitionTotal))

	var depth int
	for c := range m.conns {
		depth += c.ofoLen()
	}
	metrics <- prometheus.MustNewConstMetric(m.ofoQueueDepth, prometheus.GaugeValue, float64(depth))
}
