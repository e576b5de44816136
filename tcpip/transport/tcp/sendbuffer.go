// Copyright 2016 The Netstack Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tcp

import (
	"github.com/zxysbsbzxy/usertcp/tcpip/buffer"
	"github.com/zxysbsbzxy/usertcp/tcpip/seqnum"
)

// appendSendBuffer retains an outbound segment for possible retransmission
// (spec.md section 3, invariant 2) and arms the retransmit timer if none is
// running yet (spec.md section 4.6: "called when an outbound segment is
// appended to the send buffer"). Called with c.mu held.
func (c *Conn) appendSendBuffer(seq, seqEnd seqnum.Value, full buffer.View) {
	c.sendBuf.PushBack(&sendBufferEntry{seq: seq, seqEnd: seqEnd, segment: full})
	c.timers.armRetransmit(uint32(seq))
	if c.metrics != nil {
		c.metrics.recordRetransmitArmed()
	}
}

// popAcked implements the cumulative-ack contract of spec.md section 4.3:
// walk send_buf from the head and, for every entry with entry.seqEnd <=
// cb.ack, advance snd_una, remove the entry, and free its payload. It stops
// at the first entry that the ack doesn't cover. Idempotent under duplicate
// ACKs: a duplicate ack walks the list, finds nothing qualifying, and
// leaves snd_una/send_buf untouched.
//
// Called with c.mu held.
func (c *Conn) popAcked(ack seqnum.Value) {
	popped := false
	for e := c.sendBuf.Front(); e != nil; {
		entry := e.Value.(*sendBufferEntry)
		if ack.LessThan(entry.seqEnd) {
			break
		}
		next := e.Next()
		c.sendBuf.Remove(e)
		c.sndUna = entry.seqEnd
		popped = true
		e = next
	}
	if !popped {
		return
	}
	// The entry (or entries) the running retransmit timer covered are
	// gone; cancel it and, if there's still unacked data, start timing
	// the new head.
	c.timers.cancelRetransmit()
	if head := c.sendBuf.Front(); head != nil {
		entry := head.Value.(*sendBufferEntry)
		c.timers.armRetransmit(uint32(entry.seq))
	}
}
