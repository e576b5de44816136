// Copyright 2016 The Netstack Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tcp

import (
	"github.com/sirupsen/logrus"

	"github.com/zxysbsbzxy/usertcp/tcpip/header"
)

// LoggingEmitter is an Emitter that records what a real wire-level sender
// (out of this core's scope, per spec.md section 1) would have been asked
// to transmit. It's what cmd/tcpcoredemo wires up so a scripted scenario's
// emitted control packets are visible to a human.
type LoggingEmitter struct {
	log *logrus.Entry
}

// NewLoggingEmitter returns an Emitter that logs every requested control
// packet at Info level, in the style of runZeroInc-sockstats/cmd/get's
// logrus.Infof call sites.
func NewLoggingEmitter(log *logrus.Entry) *LoggingEmitter {
	return &LoggingEmitter{log: log}
}

// SendControl implements Emitter.
func (e *LoggingEmitter) SendControl(c *Conn, flags header.Flags) {
	e.log.WithFields(logrus.Fields{
		"local":  c.tuple().LocalAddr,
		"remote": c.tuple().RemoteAddr,
		"flags":  flags.String(),
		"seq":    uint32(c.sndNxt),
		"ack":    uint32(c.rcvNxt),
		"wnd":    uint32(c.rcvWnd),
	}).Info("emit control segment")
}

// RecordingEmitter is an Emitter that appends every requested control
// packet to an in-memory log instead of sending anything, for use in
// tests that assert on spec.md section 8's end-to-end scenarios.
type RecordingEmitter struct {
	Sent []SentSegment
}

// SentSegment records one request to emit a control packet.
type SentSegment struct {
	Flags header.Flags
	Seq   uint32
	Ack   uint32
	Wnd   uint32
}

// SendControl implements Emitter.
func (e *RecordingEmitter) SendControl(c *Conn, flags header.Flags) {
	e.Sent = append(e.Sent, SentSegment{
		Flags: flags,
		Seq:   uint32(c.sndNxt),
		Ack:   uint32(c.rcvNxt),
		Wnd:   uint32(c.rcvWnd),
	})
}
