// Copyright 2016 The Netstack Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tcp

import (
	"github.com/zxysbsbzxy/usertcp/tcpip/header"
	"github.com/zxysbsbzxy/usertcp/tcpip/seqnum"
	"github.com/zxysbsbzxy/usertcp/tcpip/stack"
)

// maxOf1 mirrors the source's "max(tsk->rcv_wnd, 1)" in is_tcp_seq_valid:
// a zero advertised window still accepts a one-byte probe.
func maxOf1(wnd seqnum.Size) seqnum.Size {
	if wnd < 1 {
		return 1
	}
	return wnd
}

// validSeq is the receive-window acceptance test of spec.md section 4.1,
// grounded directly on tcp_in.c's is_tcp_seq_valid: rcv_end = rcv_nxt +
// max(rcv_wnd, 1); valid iff seq < rcv_end and rcv_nxt <= seq_end.
func (c *Conn) validSeq(seq, seqEnd seqnum.Value) bool {
	rcvEnd := c.rcvNxt.Add(maxOf1(c.rcvWnd))
	return seq.LessThan(rcvEnd) && c.rcvNxt.LessThanEq(seqEnd)
}

// Process is the single entry point of this core: process_segment(conn, cb,
// raw) from spec.md section 2. It is invoked once per validated inbound
// segment and takes only the parsed cb; cb.Payload is not retained, and any
// payload bytes this core keeps past return (OFO insertion, the receive
// ring) are copied, never aliased (spec.md section 6).
func (c *Conn) Process(cb *ControlBlock) {
	if c.metrics != nil {
		c.metrics.recordProcessed()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	seqEnd := cb.SeqEnd()

	// Data-bearing segments are validated against the receive window
	// before anything else mutates state (spec.md section 4.1). Pure
	// control segments (no payload) are left to the state machine to
	// accept or reject, matching the source, which only calls
	// is_tcp_seq_valid from the caller side for data segments.
	if len(cb.Payload) > 0 && !c.validSeq(cb.Seq, seqEnd) {
		c.logf().WithField("seq", cb.Seq).Error("received segment with invalid seq, dropping")
		if c.metrics != nil {
			c.metrics.recordDropped(dropInvalidSeq)
		}
		return
	}

	// Peer window update and send-buffer pop (spec.md section 4.2/4.3),
	// gated on the ACK bit actually being set -- the Open Questions in
	// spec.md section 9 flag the source's "(cb->flags) | TCP_ACK" as
	// almost certainly meant to be "&", and recommend gating the whole
	// ACK-driven block on it. This implementation takes that
	// recommendation.
	//
	// An ack outside [snd_una, snd_nxt] skips both the window update and
	// the send-buffer pop (spec.md section 7): accepting it would jump
	// snd_una forward and discard unacknowledged, retransmittable data
	// that was never actually acked.
	if cb.Flags.Contains(header.FlagAck) {
		if c.ackInRange(cb.Ack) {
			c.updateWindow(cb)
			c.popAcked(cb.Ack)
		} else {
			c.logf().WithField("ack", cb.Ack).Warn("received ack outside snd_una/snd_nxt, skipping window update and send-buffer pop")
			if c.metrics != nil {
				c.metrics.recordDropped(dropOutOfRange)
			}
		}
	}

	// Pre-dispatch bookkeeping (spec.md section 4.4): rcv_nxt advances
	// over SYN/FIN/ACK control bytes for every flag combination except
	// PSH|ACK, whose data path manages rcv_nxt itself so out-of-order
	// arrivals don't spuriously advance it.
	//
	// The source advances rcv_nxt unconditionally here, which the Open
	// Questions in spec.md section 9 note is only correct when the
	// segment is in-order (a stale retransmitted SYN/FIN would otherwise
	// rewind rcv_nxt). This implementation takes the suggested fix: only
	// advance when the segment is actually the next expected one.
	if cb.Flags != (header.FlagPsh|header.FlagAck) && cb.Seq == c.rcvNxt {
		c.rcvNxt = seqEnd
	}

	switch cb.Flags {
	case header.FlagSyn:
		c.dispatchSyn(cb)
	case header.FlagSyn | header.FlagAck:
		c.dispatchSynAck(cb)
	case header.FlagAck:
		c.dispatchAck(cb)
	case header.FlagPsh | header.FlagAck:
		c.dispatchData(cb)
	case header.FlagFin | header.FlagAck:
		c.dispatchFinAck(cb)
	case header.FlagFin:
		c.dispatchFin(cb)
	default:
		c.logf().WithField("flags", cb.Flags.String()).Debug("dropping unrecognized flag combination")
		if c.metrics != nil {
			c.metrics.recordDropped(dropUnknownFlag)
		}
	}
}

// ackInRange reports whether ack falls within [snd_una, snd_nxt], the
// acceptable-ack test spec.md sections 4.2/4.3/7 both gate on.
func (c *Conn) ackInRange(ack seqnum.Value) bool {
	return c.sndUna.LessThanEq(ack) && ack.LessThanEq(c.sndNxt)
}

// updateWindow implements spec.md section 4.2: adopt the peer's advertised
// window, and if the window was previously closed, wake a sender blocked on
// it. The caller must have already checked ackInRange.
func (c *Conn) updateWindow(cb *ControlBlock) {
	wasZero := c.sndWnd == 0
	c.sndWnd = cb.RWnd
	if wasZero && c.sndWnd != 0 {
		c.waitSend.Wake()
	}
}

// dispatchSyn handles a bare SYN, spec.md section 4.4 "SYN only, in
// LISTEN". A SYN in any other state is a no-op in this core (a production
// stack would RST; spec.md section 9 notes this as the baseline contract).
func (c *Conn) dispatchSyn(cb *ControlBlock) {
	if c.state != StateListen {
		return
	}

	child := newConn(c.cfg, c.registry, c.metrics, c.emitter, c.log)
	child.LocalAddr, child.LocalPort = cb.DstAddr, cb.DstPort
	child.RemoteAddr, child.RemotePort = cb.SrcAddr, cb.SrcPort
	child.parent = c
	child.iss = newISS()
	child.sndUna = c.sndUna
	child.rcvNxt = cb.SeqEnd()
	child.sndNxt = child.iss
	child.setState(StateSynRecv)

	c.registry.HashTuple(child.tuple(), child)
	c.listenQueue = append(c.listenQueue, child)

	c.emitter.SendControl(child, header.FlagSyn|header.FlagAck)
}

// dispatchSynAck handles spec.md section 4.4 "SYN|ACK, in SYN_SENT". The
// final ACK and the transition to ESTABLISHED are, per spec, normally
// driven by the socket layer that owns the connect() call; since that layer
// is out of this core's scope (spec.md section 1), this standalone
// implementation folds both in here, as spec.md explicitly permits.
func (c *Conn) dispatchSynAck(cb *ControlBlock) {
	if c.state != StateSynSent {
		return
	}
	c.irs = cb.Seq
	c.rcvNxt = cb.SeqEnd()
	c.setState(StateEstablished)
	c.emitter.SendControl(c, header.FlagAck)
	c.waitConnect.Wake()
}

// dispatchAck handles spec.md section 4.4 "ACK only".
func (c *Conn) dispatchAck(cb *ControlBlock) {
	switch c.state {
	case StateSynRecv:
		c.setState(StateEstablished)
		if c.parent != nil {
			c.parent.promoteToAcceptQueue(c)
		}
	case StateEstablished:
		c.waitSend.Wake()
	case StateFinWait1:
		c.setState(StateFinWait2)
	case StateLastAck:
		c.setState(StateClosed)
		c.unhash()
	default:
		// Other states: ignore, per spec.md section 4.4.
	}
}

// promoteToAcceptQueue implements invariant 4: moving a child out of
// listen_queue and into accept_queue happens atomically with its state
// transition to ESTABLISHED, and wakes a blocked Accept() caller.
func (parent *Conn) promoteToAcceptQueue(child *Conn) {
	parent.mu.Lock()
	defer parent.mu.Unlock()
	for i, q := range parent.listenQueue {
		if q == child {
			parent.listenQueue = append(parent.listenQueue[:i], parent.listenQueue[i+1:]...)
			break
		}
	}
	parent.acceptQueue = append(parent.acceptQueue, child)
	parent.waitAccept.Wake()
}

// dispatchData handles spec.md section 4.4 "PSH|ACK (data segment)".
func (c *Conn) dispatchData(cb *ControlBlock) {
	if c.state == StateSynRecv {
		c.setState(StateEstablished)
		if c.parent != nil {
			c.parent.promoteToAcceptQueue(c)
		}
	}

	seqEnd := c.rcvNxt
	switch {
	case cb.Seq == seqEnd:
		c.rcvBuf.Write(cb.Payload)
		seqEnd = cb.SeqEnd()
		seqEnd = c.drainOFO(seqEnd)
		c.rcvNxt = seqEnd
	case seqEnd.LessThan(cb.Seq):
		view := make([]byte, len(cb.Payload))
		copy(view, cb.Payload)
		c.insertOFO(cb.Seq, cb.SeqEnd(), view)
	default:
		// cb.Seq < seqEnd: stale retransmission, drop the payload
		// silently (spec.md section 4.4 step 5).
		if c.metrics != nil {
			c.metrics.recordDropped(dropStaleData)
		}
	}

	if c.waitRecv.Sleeping() {
		c.waitRecv.Wake()
	}
	c.emitter.SendControl(c, header.FlagAck)
	if c.waitSend.Sleeping() {
		c.waitSend.Wake()
	}
}

// dispatchFinAck handles spec.md section 4.4 "FIN|ACK". The source and this
// core only handle it in FIN_WAIT_1; FIN_WAIT_2 and simultaneous close are
// explicitly out of scope (spec.md section 9).
func (c *Conn) dispatchFinAck(cb *ControlBlock) {
	if c.state != StateFinWait1 {
		return
	}
	c.setState(StateTimeWait)
	c.emitter.SendControl(c, header.FlagAck)
	c.timers.armTimeWait(c.cfg.TimeWaitDuration)
}

// dispatchFin handles spec.md section 4.4 "FIN only".
func (c *Conn) dispatchFin(cb *ControlBlock) {
	switch c.state {
	case StateEstablished:
		c.setState(StateLastAck)
		c.emitter.SendControl(c, header.FlagAck|header.FlagFin)
		c.timers.armTimeWait(c.cfg.TimeWaitDuration)
	case StateFinWait2:
		c.setState(StateTimeWait)
		c.emitter.SendControl(c, header.FlagAck)
		c.timers.armTimeWait(c.cfg.TimeWaitDuration)
	default:
		// Other states: ignore.
	}
}

// unhash implements invariant 5: reaching CLOSED removes the connection
// from the 4-tuple lookup, and from the bind-hash too if it has no parent
// (a child's local port belongs to the listener, not to it).
func (c *Conn) unhash() {
	c.registry.UnhashTuple(c.tuple())
	if c.parent == nil {
		c.registry.UnhashBind(stack.BindIdentity{LocalAddr: c.LocalAddr, LocalPort: c.LocalPort})
	}
	if c.metrics != nil {
		c.metrics.Untrack(c)
	}
}

// onRetransmitTimeout is the retransmit timer callback (spec.md section
// 4.6): while the send buffer is non-empty, it asks the emitter for an ACK
// control segment and re-arms the timer for the head entry. The retained
// bytes of that entry are not themselves re-sent.
func (c *Conn) onRetransmitTimeout() {
	c.mu.Lock()
	defer c.mu.Unlock()

	head := c.sendBuf.Front()
	if head == nil {
		return
	}
	entry := head.Value.(*sendBufferEntry)
	c.emitter.SendControl(c, header.FlagAck)
	c.timers.armRetransmit(uint32(entry.seq))
	if c.metrics != nil {
		c.metrics.recordRetransmitArmed()
	}
}

// onTimeWaitExpired is the time-wait timer callback (spec.md section 4.6):
// transition to CLOSED and unhash, the same contract as the LAST_ACK->
// CLOSED transition in dispatchAck.
func (c *Conn) onTimeWaitExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateTimeWait && c.state != StateLastAck {
		return
	}
	c.setState(StateClosed)
	c.unhash()
}
