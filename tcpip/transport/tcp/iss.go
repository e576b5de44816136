// Copyright 2016 The Netstack Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tcp

import (
	"crypto/rand"
	"encoding/binary"
	"sync"
	"sync/atomic"

	"github.com/zxysbsbzxy/usertcp/tcpip/seqnum"
)

// issCounter backs newISS: a monotonically increasing counter combined with
// a random offset drawn once per process, matching the "choose a new iss
// (monotonically increasing with a random offset)" rule of spec.md section
// 4.4's SYN-in-LISTEN case. The source's tcp_new_iss() does the analogous
// thing with a timer tick plus a hashed salt; connect.go's
// handshake.resetState() instead draws the ISS from crypto/rand outright.
// Here both the active-open path (Dial) and LISTEN-spawned children use
// newISS, so successive values don't repeat until the 32-bit counter wraps.
var (
	issCounter  uint64
	issSalt     uint32
	issSaltOnce sync.Once
)

// newISS returns a fresh initial sequence number for a connection created
// by Dial or by the SYN-in-LISTEN rule.
func newISS() seqnum.Value {
	issSaltOnce.Do(func() {
		var b [4]byte
		_, _ = rand.Read(b[:])
		issSalt = binary.BigEndian.Uint32(b[:])
	})
	n := atomic.AddUint64(&issCounter, 1)
	return seqnum.Value(uint32(n) + issSalt)
}
