// Copyright 2016 The Netstack Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tcp

import (
	"testing"
	"time"

	"github.com/zxysbsbzxy/usertcp/internal/config"
	"github.com/zxysbsbzxy/usertcp/tcpip/buffer"
	"github.com/zxysbsbzxy/usertcp/tcpip/header"
	"github.com/zxysbsbzxy/usertcp/tcpip/seqnum"
	"github.com/zxysbsbzxy/usertcp/tcpip/stack"
)

func testHarness() (config.Config, *stack.Registry, *Metrics, *RecordingEmitter) {
	cfg := config.Default()
	cfg.RetransmitTimeout = time.Hour
	cfg.TimeWaitDuration = time.Hour
	return cfg, stack.NewRegistry(), NewMetrics(), &RecordingEmitter{}
}

// scenario 1: passive open (spec.md section 8).
func TestPassiveOpen(t *testing.T) {
	cfg, registry, metrics, emitter := testHarness()
	listener := NewListener(cfg, registry, metrics, emitter, nil, "10.0.0.1", 80)

	listener.Process(&ControlBlock{
		SrcAddr: "10.0.0.2", SrcPort: 5000,
		DstAddr: "10.0.0.1", DstPort: 80,
		Flags: header.FlagSyn, Seq: 1000,
	})

	if got := listener.State(); got != StateListen {
		t.Fatalf("listener state = %v, want LISTEN", got)
	}
	if len(listener.listenQueue) != 1 {
		t.Fatalf("listen queue len = %d, want 1", len(listener.listenQueue))
	}

	child := listener.listenQueue[0]
	if got, want := child.State(), StateSynRecv; got != want {
		t.Fatalf("child state = %v, want %v", got, want)
	}
	if got, want := child.RcvNxt(), seqnum.Value(1001); got != want {
		t.Fatalf("child rcv_nxt = %d, want %d", got, want)
	}
	if got, want := child.SndNxt(), child.iss; got != want {
		t.Fatalf("child snd_nxt = %d, want iss %d", got, want)
	}
	if len(emitter.Sent) != 1 || emitter.Sent[0].Flags != header.FlagSyn|header.FlagAck {
		t.Fatalf("expected one SYN|ACK emitted, got %+v", emitter.Sent)
	}

	child.Process(&ControlBlock{
		SrcAddr: "10.0.0.2", SrcPort: 5000,
		DstAddr: "10.0.0.1", DstPort: 80,
		Flags: header.FlagAck, Seq: 1001, Ack: child.iss.Add(1),
	})

	if got, want := child.State(), StateEstablished; got != want {
		t.Fatalf("child state after ACK = %v, want %v", got, want)
	}
	if listener.AcceptQueueLen() != 1 {
		t.Fatalf("accept queue len = %d, want 1", listener.AcceptQueueLen())
	}
	if len(listener.listenQueue) != 0 {
		t.Fatalf("listen queue should be empty after promotion, got %d", len(listener.listenQueue))
	}
}

// scenario 2: in-order data (spec.md section 8).
func TestInOrderData(t *testing.T) {
	cfg, registry, metrics, emitter := testHarness()
	c := newEstablishedConn(cfg, registry, metrics, emitter, 2000)

	c.Process(&ControlBlock{Flags: header.FlagPsh | header.FlagAck, Seq: 2000, Ack: c.sndNxt, Payload: buffer.View("ABCD")})

	if got, want := c.RcvNxt(), seqnum.Value(2004); got != want {
		t.Fatalf("rcv_nxt = %d, want %d", got, want)
	}
	buf := make([]byte, 16)
	n := c.ReadRecv(buf)
	if string(buf[:n]) != "ABCD" {
		t.Fatalf("delivered = %q, want ABCD", buf[:n])
	}
	if len(emitter.Sent) != 1 {
		t.Fatalf("expected exactly one ack emitted, got %d", len(emitter.Sent))
	}
}

// scenario 3: OFO then fill (spec.md section 8).
func TestOFOThenFill(t *testing.T) {
	cfg, registry, metrics, emitter := testHarness()
	c := newEstablishedConn(cfg, registry, metrics, emitter, 2000)

	c.Process(&ControlBlock{Flags: header.FlagPsh | header.FlagAck, Seq: 2004, Ack: c.sndNxt, Payload: buffer.View("EF")})
	if got, want := c.ofoBuf.Len(), 1; got != want {
		t.Fatalf("ofo len = %d, want %d", got, want)
	}
	if got, want := c.RcvNxt(), seqnum.Value(2000); got != want {
		t.Fatalf("rcv_nxt after OFO arrival = %d, want unchanged %d", got, want)
	}

	c.Process(&ControlBlock{Flags: header.FlagPsh | header.FlagAck, Seq: 2000, Ack: c.sndNxt, Payload: buffer.View("ABCD")})
	if got, want := c.RcvNxt(), seqnum.Value(2006); got != want {
		t.Fatalf("rcv_nxt after fill = %d, want %d", got, want)
	}
	if got := c.ofoBuf.Len(); got != 0 {
		t.Fatalf("ofo len after fill = %d, want 0", got)
	}
	buf := make([]byte, 16)
	n := c.ReadRecv(buf)
	if string(buf[:n]) != "ABCDEF" {
		t.Fatalf("delivered = %q, want ABCDEF", buf[:n])
	}
}

// A newcomer that partially overlaps the tail of an existing OFO entry
// must be trimmed, not queued alongside it (spec.md section 4.4 step 4,
// invariant 3): otherwise drainOFO would write the overlapping bytes
// twice.
func TestOFOPartialOverlapTrimmed(t *testing.T) {
	cfg, registry, metrics, emitter := testHarness()
	c := newEstablishedConn(cfg, registry, metrics, emitter, 2000)

	// existing: [2100, 2150), new: [2140, 2210) overlaps the tail by 10 bytes.
	c.insertOFO(2100, 2150, buffer.View(make([]byte, 50)))
	c.insertOFO(2140, 2210, buffer.View(make([]byte, 70)))

	if got, want := c.ofoBuf.Len(), 2; got != want {
		t.Fatalf("ofo len = %d, want %d", got, want)
	}

	var total int
	for e := c.ofoBuf.Front(); e != nil; e = e.Next() {
		entry := e.Value.(*ofoEntry)
		total += len(entry.payload)
	}
	// 110 bytes span [2100, 2210); overlap must not double-count any of it.
	if total != 110 {
		t.Fatalf("total queued ofo bytes = %d, want 110 (no duplicated overlap)", total)
	}

	seqEnd := c.drainOFO(2100)
	if got, want := seqEnd, seqnum.Value(2210); got != want {
		t.Fatalf("drained seqEnd = %d, want %d", got, want)
	}
	if got := c.ofoBuf.Len(); got != 0 {
		t.Fatalf("ofo len after drain = %d, want 0", got)
	}
	buf := make([]byte, 256)
	n := c.ReadRecv(buf)
	if n != 110 {
		t.Fatalf("delivered %d bytes, want 110 (overlap must not duplicate bytes)", n)
	}
}

// An ack outside [snd_una, snd_nxt] must not pop the send buffer or move
// snd_una (spec.md section 7).
func TestOutOfRangeAckLeavesSendBufferAlone(t *testing.T) {
	cfg, registry, metrics, emitter := testHarness()
	c := newEstablishedConn(cfg, registry, metrics, emitter, 2000)
	c.sndUna = 50
	c.sndNxt = 300
	c.appendSendBuffer(50, 100, buffer.View("a"))
	c.appendSendBuffer(100, 200, buffer.View("b"))
	c.sndWnd = 1234

	// ack is beyond snd_nxt: out of range.
	c.Process(&ControlBlock{Flags: header.FlagAck, Seq: c.rcvNxt, Ack: 500, RWnd: 9999})

	if got, want := c.sndUna, seqnum.Value(50); got != want {
		t.Fatalf("snd_una = %d, want unchanged %d", got, want)
	}
	if got, want := c.sendBuf.Len(), 2; got != want {
		t.Fatalf("send buf len = %d, want unchanged %d", got, want)
	}
	if got, want := c.sndWnd, seqnum.Size(1234); got != want {
		t.Fatalf("snd_wnd = %d, want unchanged %d (window update must also be skipped)", got, want)
	}
}

// scenario 4: cumulative ACK pop (spec.md section 8).
func TestCumulativeAckPop(t *testing.T) {
	cfg, registry, metrics, emitter := testHarness()
	c := newEstablishedConn(cfg, registry, metrics, emitter, 2000)
	c.sndUna = 50
	c.sndNxt = 300
	c.appendSendBuffer(50, 100, buffer.View("a"))
	c.appendSendBuffer(100, 200, buffer.View("b"))
	c.appendSendBuffer(200, 300, buffer.View("c"))

	c.Process(&ControlBlock{Flags: header.FlagAck, Seq: c.rcvNxt, Ack: 250})

	if got, want := c.sndUna, seqnum.Value(200); got != want {
		t.Fatalf("snd_una = %d, want %d", got, want)
	}
	if got, want := c.sendBuf.Len(), 1; got != want {
		t.Fatalf("send buf len = %d, want %d", got, want)
	}

	// Replaying the same ack must be a no-op (idempotence law).
	c.Process(&ControlBlock{Flags: header.FlagAck, Seq: c.rcvNxt, Ack: 250})
	if got, want := c.sndUna, seqnum.Value(200); got != want {
		t.Fatalf("snd_una after replay = %d, want unchanged %d", got, want)
	}
	if got, want := c.sendBuf.Len(), 1; got != want {
		t.Fatalf("send buf len after replay = %d, want unchanged %d", got, want)
	}
}

// scenario 5: active close ladder (spec.md section 8).
func TestActiveCloseLadder(t *testing.T) {
	cfg, registry, metrics, emitter := testHarness()
	c := newEstablishedConn(cfg, registry, metrics, emitter, 2000)
	c.setState(StateFinWait1)

	c.Process(&ControlBlock{Flags: header.FlagFin | header.FlagAck, Seq: c.rcvNxt, Ack: c.sndNxt})

	if got, want := c.State(), StateTimeWait; got != want {
		t.Fatalf("state = %v, want %v", got, want)
	}

	c.onTimeWaitExpired()
	if got, want := c.State(), StateClosed; got != want {
		t.Fatalf("state after timer expiry = %v, want %v", got, want)
	}
	if _, ok := registry.LookupTuple(c.tuple()); ok {
		t.Fatalf("connection should be unhashed after CLOSED")
	}
}

// scenario 6: zero-window wake (spec.md section 8).
func TestZeroWindowWake(t *testing.T) {
	cfg, registry, metrics, emitter := testHarness()
	c := newEstablishedConn(cfg, registry, metrics, emitter, 2000)
	c.sndWnd = 0
	c.sndUna = 100
	c.sndNxt = 200

	woken := make(chan struct{}, 1)
	go func() {
		c.waitSend.Block()
		woken <- struct{}{}
	}()

	// Give the blocker a moment to actually park.
	for !c.waitSend.Sleeping() {
		time.Sleep(time.Millisecond)
	}

	c.Process(&ControlBlock{Flags: header.FlagAck, Seq: c.rcvNxt, Ack: 150, RWnd: 4096})

	select {
	case <-woken:
	case <-time.After(time.Second):
		t.Fatalf("wait_send was not woken within 1s of the window opening")
	}
	if got, want := c.sndWnd, seqnum.Size(4096); got != want {
		t.Fatalf("snd_wnd = %d, want %d", got, want)
	}
}

// newEstablishedConn builds a Conn already in ESTABLISHED with the given
// rcv_nxt, for tests that only exercise the data/ack paths.
func newEstablishedConn(cfg config.Config, registry *stack.Registry, metrics *Metrics, emitter Emitter, rcvNxt seqnum.Value) *Conn {
	c := newConn(cfg, registry, metrics, emitter, nil)
	c.LocalAddr, c.LocalPort = "10.0.0.1", 80
	c.RemoteAddr, c.RemotePort = "10.0.0.2", 5000
	c.iss = 5000
	c.sndUna = 5000
	c.sndNxt = 5000
	c.rcvNxt = rcvNxt
	c.setState(StateEstablished)
	registry.HashTuple(c.tuple(), c)
	return c
}
