// Copyright 2016 The Netstack Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tcp

import (
	"github.com/sirupsen/logrus"

	"github.com/zxysbsbzxy/usertcp/internal/config"
	"github.com/zxysbsbzxy/usertcp/tcpip/header"
	"github.com/zxysbsbzxy/usertcp/tcpip/seqnum"
	"github.com/zxysbsbzxy/usertcp/tcpip/stack"
)

// The real socket API (accept/connect/send/recv as presented to
// applications) is an external collaborator per spec.md section 1 and is
// not part of this core. The thin surface below exists only so this
// repository's own tests and cmd/tcpcoredemo can drive the state machine
// end-to-end without a second module standing in for that layer.

// Dial creates a connection in SYN_SENT, registers it, and emits the
// initial SYN, mirroring the "active" branch of
// coolheart77-netstack/tcpip/transport/tcp/connect.go's handshake, reduced
// to what spec.md's scope covers (no MSS/window-scale option negotiation).
func Dial(cfg config.Config, registry *stack.Registry, metrics *Metrics, emitter Emitter, log *logrus.Entry, localAddr string, localPort uint16, remoteAddr string, remotePort uint16) *Conn {
	c := newConn(cfg, registry, metrics, emitter, log)
	c.LocalAddr, c.LocalPort = localAddr, localPort
	c.RemoteAddr, c.RemotePort = remoteAddr, remotePort
	c.iss = newISS()
	c.sndUna = c.iss
	c.sndNxt = c.iss.Add(1)
	c.setState(StateSynSent)

	registry.HashTuple(c.tuple(), c)
	emitter.SendControl(c, header.FlagSyn)
	return c
}

// Send appends data to the send buffer, retaining it for retransmission,
// and emits it as a PSH|ACK. It does not itself enforce send-window flow
// control; a full socket layer would block the caller when the peer's
// advertised window (snd_wnd) is exhausted (spec.md section 1 scopes window-based flow
// control to the ACK/window-update machinery this core implements, not the
// blocking write call itself).
func (c *Conn) Send(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateEstablished {
		return
	}
	seq := c.sndNxt
	view := make([]byte, len(data))
	copy(view, data)
	c.appendSendBuffer(seq, seq.Add(seqnum.Size(len(data))), view)
	c.sndNxt = seq.Add(seqnum.Size(len(data)))
	c.emitter.SendControl(c, header.FlagPsh|header.FlagAck)
}

// CloseActive begins the active-close FIN ladder (spec.md section 4.4's
// FIN_WAIT_1/FIN_WAIT_2 transitions are reached from here).
func (c *Conn) CloseActive() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateEstablished {
		return
	}
	c.setState(StateFinWait1)
	c.emitter.SendControl(c, header.FlagFin)
	c.sndNxt = c.sndNxt.Add(1)
}
