// Copyright 2016 The Netstack Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tcp

import (
	"container/list"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/zxysbsbzxy/usertcp/internal/config"
	"github.com/zxysbsbzxy/usertcp/tcpip/header"
	"github.com/zxysbsbzxy/usertcp/tcpip/seqnum"
	"github.com/zxysbsbzxy/usertcp/tcpip/stack"
)

// Emitter is the control-packet emission contract of spec.md section 6: the
// core asks for a flagged control segment to be sent, and the emitter
// builds the wire header from the connection's current snd_nxt, rcv_nxt,
// rcv_wnd. It must not block the caller (spec.md section 5).
//
// SendControl is usually invoked while c's internal mutex is held (from
// Process, Send, CloseActive and the retransmit timer; Dial calls it
// without the lock, and the SYN-in-LISTEN rule calls it for a child while
// holding only the listener's mutex). Implementations may read c's exported
// accessors' backing fields directly but must not call back into any Conn
// method that acquires c.mu, or they will deadlock.
type Emitter interface {
	SendControl(c *Conn, flags header.Flags)
}

// Conn is the per-connection state block described by spec.md section 3.
// A single mutex serializes process_segment per connection (spec.md
// section 5): at most one segment is in flight for a given Conn at a time.
type Conn struct {
	mu sync.Mutex

	handle stack.Handle

	LocalAddr, RemoteAddr string
	LocalPort, RemotePort uint16

	state State

	// Send Sequence Space.
	iss    seqnum.Value
	sndUna seqnum.Value
	sndNxt seqnum.Value
	sndWnd seqnum.Size

	// Receive Sequence Space.
	irs    seqnum.Value
	rcvNxt seqnum.Value
	rcvWnd seqnum.Size

	sendBuf *list.List // of *sendBufferEntry, ordered by seq ascending
	ofoBuf  *list.List // of *ofoEntry, ordered by seq ascending
	rcvBuf  *ringBuffer

	waitConnect *waitObject
	waitAccept  *waitObject
	waitSend    *waitObject
	waitRecv    *waitObject

	parent      *Conn
	listenQueue []*Conn // children in SYN_RECV, invariant 4
	acceptQueue []*Conn // children promoted to ESTABLISHED, awaiting accept

	timers *timerSet

	emitter  Emitter
	registry *stack.Registry
	metrics  *Metrics
	cfg      config.Config
	log      *logrus.Entry
}

// Handle satisfies stack.Registrant.
func (c *Conn) Handle() stack.Handle { return c.handle }

// newConn allocates a Conn in CLOSED state with fresh buffers and waiters.
// It does not register the connection anywhere; callers (NewListener, the
// SYN-in-LISTEN rule, or Dial) do that once identity
// fields are populated.
func newConn(cfg config.Config, registry *stack.Registry, metrics *Metrics, emitter Emitter, log *logrus.Entry) *Conn {
	c := &Conn{
		handle:      stack.NewHandle(),
		state:       StateClosed,
		rcvWnd:      seqnum.Size(cfg.RecvWindow),
		sendBuf:     list.New(),
		ofoBuf:      list.New(),
		rcvBuf:      newRingBuffer(cfg.RecvWindow),
		waitConnect: newWaitObject(),
		waitAccept:  newWaitObject(),
		waitSend:    newWaitObject(),
		waitRecv:    newWaitObject(),
		emitter:     emitter,
		registry:    registry,
		metrics:     metrics,
		cfg:         cfg,
		log:         log,
	}
	c.timers = newTimerSet(cfg.RetransmitTimeout, c.onRetransmitTimeout, c.onTimeWaitExpired)
	if metrics != nil {
		metrics.Track(c)
	}
	return c
}

// NewListener returns a Conn in LISTEN state bound to localAddr:localPort.
func NewListener(cfg config.Config, registry *stack.Registry, metrics *Metrics, emitter Emitter, log *logrus.Entry, localAddr string, localPort uint16) *Conn {
	c := newConn(cfg, registry, metrics, emitter, log)
	c.LocalAddr = localAddr
	c.LocalPort = localPort
	c.state = StateListen
	registry.HashBind(stack.BindIdentity{LocalAddr: localAddr, LocalPort: localPort}, c)
	return c
}

// tuple returns the 4-tuple identity this connection is (or will be) hashed
// under.
func (c *Conn) tuple() stack.TupleIdentity {
	return stack.TupleIdentity{
		LocalAddr:  c.LocalAddr,
		LocalPort:  c.LocalPort,
		RemoteAddr: c.RemoteAddr,
		RemotePort: c.RemotePort,
	}
}

// State returns the connection's current state. Safe for concurrent use.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// RcvNxt returns the next sequence number expected from the peer.
func (c *Conn) RcvNxt() seqnum.Value {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rcvNxt
}

// SndNxt returns the next sequence number this side will send.
func (c *Conn) SndNxt() seqnum.Value {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sndNxt
}

// SndUna returns the oldest unacknowledged sequence number sent.
func (c *Conn) SndUna() seqnum.Value {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sndUna
}

// ReadRecv drains up to len(p) bytes from the receive ring buffer into p.
func (c *Conn) ReadRecv(p []byte) int {
	return c.rcvBuf.Read(p)
}

// AcceptQueueLen reports how many ESTABLISHED children are waiting to be
// accepted. Meaningful only on a LISTEN connection.
func (c *Conn) AcceptQueueLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.acceptQueue)
}

// Accept pops the oldest ESTABLISHED child off the accept queue, or returns
// nil if none is waiting.
func (c *Conn) Accept() *Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.acceptQueue) == 0 {
		return nil
	}
	child := c.acceptQueue[0]
	c.acceptQueue = c.acceptQueue[1:]
	return child
}

// BlockAccept parks the caller until a child is promoted into the accept
// queue. Nothing else wakes it; closing the listener does not.
func (c *Conn) BlockAccept() { c.waitAccept.Block() }

// BlockConnect parks the caller until the connect handshake resolves.
func (c *Conn) BlockConnect() { c.waitConnect.Block() }

// BlockRecv parks the caller until more bytes are available to read.
func (c *Conn) BlockRecv() { c.waitRecv.Block() }

// BlockSend parks the caller until send-window space may have opened.
func (c *Conn) BlockSend() { c.waitSend.Block() }

func (c *Conn) ofoLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ofoBuf.Len()
}

func (c *Conn) logf() *logrus.Entry {
	if c.log != nil {
		return c.log.WithFields(logrus.Fields{
			"local":  c.LocalAddr,
			"remote": c.RemoteAddr,
			"state":  c.state.String(),
		})
	}
	return logrus.NewEntry(logrus.StandardLogger())
}

// setState transitions the connection and records the transition with the
// metrics collector.
func (c *Conn) setState(s State) {
	c.state = s
	if c.metrics != nil {
		c.metrics.recordTransition()
	}
}
