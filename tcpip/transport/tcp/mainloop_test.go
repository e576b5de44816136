// Copyright 2016 The Netstack Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tcp

import (
	"testing"
	"time"

	"github.com/zxysbsbzxy/usertcp/tcpip/buffer"
	"github.com/zxysbsbzxy/usertcp/tcpip/header"
)

func TestLoopProcessesQueuedSegments(t *testing.T) {
	cfg, registry, metrics, emitter := testHarness()
	c := newEstablishedConn(cfg, registry, metrics, emitter, 2000)

	l := NewLoop(c)
	go l.Run()

	l.Enqueue(&ControlBlock{Flags: header.FlagPsh | header.FlagAck, Seq: 2000, Ack: c.SndNxt(), Payload: buffer.View("AB")})
	l.Enqueue(&ControlBlock{Flags: header.FlagPsh | header.FlagAck, Seq: 2002, Ack: c.SndNxt(), Payload: buffer.View("CD")})

	deadline := time.Now().Add(time.Second)
	for c.RcvNxt() != 2004 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if got, want := c.RcvNxt(), uint32(2004); uint32(got) != want {
		t.Fatalf("rcv_nxt = %d, want %d", got, want)
	}

	l.RequestClose()
}
