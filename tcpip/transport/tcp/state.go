// Copyright 2016 The Netstack Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tcp

// State is one of the connection states named in spec.md section 3. Unlike
// a full RFC 793 implementation, there is no CLOSE_WAIT/CLOSING/simultaneous
// close: the linear FIN ladder is the only one modeled (spec.md section 1,
// Non-goals).
type State int

const (
	StateClosed State = iota
	StateListen
	StateSynSent
	StateSynRecv
	StateEstablished
	StateFinWait1
	StateFinWait2
	StateTimeWait
	StateLastAck
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateListen:
		return "LISTEN"
	case StateSynSent:
		return "SYN_SENT"
	case StateSynRecv:
		return "SYN_RECV"
	case StateEstablished:
		return "ESTABLISHED"
	case StateFinWait1:
		return "FIN_WAIT_1"
	case StateFinWait2:
		return "FIN_WAIT_2"
	case StateTimeWait:
		return "TIME_WAIT"
	case StateLastAck:
		return "LAST_ACK"
	default:
		return "UNKNOWN"
	}
}
