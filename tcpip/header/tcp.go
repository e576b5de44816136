// Copyright 2016 The Netstack Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package header holds the wire-level constants this core needs to agree
// with its caller on: TCP flag bit assignments and the maximum segment
// size convention. It does not parse or serialize TCP segments itself --
// that is the demultiplexer's job, out of scope per spec.md section 1.
package header

// Flags is the set of TCP control bits carried by a segment, following the
// bit assignments of RFC 793.
type Flags uint8

// TCP flag bits, matching the constants used throughout tcpip/transport/tcp
// and named the way the original Lab13 tcp_in.c names them (TCP_SYN, ...).
const (
	FlagFin Flags = 1 << 0
	FlagSyn Flags = 1 << 1
	FlagRst Flags = 1 << 2
	FlagPsh Flags = 1 << 3
	FlagAck Flags = 1 << 4
	FlagUrg Flags = 1 << 5
)

// Contains reports whether f has every bit of want set.
func (f Flags) Contains(want Flags) bool {
	return f&want == want
}

// String renders the flag set the way tcpdump-style tools do, e.g. "SA" for
// SYN|ACK.
func (f Flags) String() string {
	var b []byte
	add := func(c byte, bit Flags) {
		if f.Contains(bit) {
			b = append(b, c)
		}
	}
	add('F', FlagFin)
	add('S', FlagSyn)
	add('R', FlagRst)
	add('P', FlagPsh)
	add('A', FlagAck)
	add('U', FlagUrg)
	if len(b) == 0 {
		return "."
	}
	return string(b)
}

// DefaultMSS is the MSS assumed when none was negotiated, per RFC 1122 page
// 85: "If an MSS option is not received at connection setup, TCP MUST
// assume a default send MSS of 536." This core treats MSS as a constant
// (spec.md section 1 excludes options negotiation beyond this).
const DefaultMSS = 536
