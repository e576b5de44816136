// Copyright 2016 The Netstack Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tcp

import (
	"github.com/zxysbsbzxy/usertcp/tcpip/buffer"
	"github.com/zxysbsbzxy/usertcp/tcpip/seqnum"
)

// insertOFO inserts a received-but-not-yet-deliverable segment into the
// out-of-order buffer, keeping it sorted by seq ascending and pairwise
// non-overlapping (spec.md section 3, invariant 3; section 4.4 step 4 "MUST
// NOT leave overlapping entries"). Wherever the newcomer overlaps an
// existing entry, the existing entry wins the overlapping bytes ("prefer
// the first received") and the newcomer is trimmed down to whatever
// non-overlapping range remains, possibly disappearing entirely. Called
// with c.mu held.
func (c *Conn) insertOFO(seq, seqEnd seqnum.Value, payload buffer.View) {
	for e := c.ofoBuf.Front(); e != nil; e = e.Next() {
		existing := e.Value.(*ofoEntry)

		// No overlap with this entry yet: either it belongs right
		// before it, or we haven't reached its range yet.
		if seqEnd.LessThanEq(existing.seq) {
			c.ofoBuf.InsertBefore(&ofoEntry{seq: seq, seqEnd: seqEnd, payload: payload}, e)
			return
		}
		if existing.seqEnd.LessThanEq(seq) {
			continue
		}

		// Overlap: trim the newcomer's leading edge out of
		// existing's range and place whatever comes before it, if
		// any.
		if seq.LessThan(existing.seq) {
			lead := int(seq.Size(existing.seq))
			c.ofoBuf.InsertBefore(&ofoEntry{seq: seq, seqEnd: existing.seq, payload: payload[:lead]}, e)
		}

		// Whatever trails past existing.seqEnd still needs placing
		// against the rest of the list.
		if existing.seqEnd.LessThan(seqEnd) {
			trimmed := int(seq.Size(existing.seqEnd))
			payload = payload[trimmed:]
			seq = existing.seqEnd
			continue
		}

		// Nothing left past existing: fully absorbed.
		return
	}
	c.ofoBuf.PushBack(&ofoEntry{seq: seq, seqEnd: seqEnd, payload: payload})
}

// drainOFO copies every OFO entry that is now contiguous with seqEnd into
// rcvBuf, removing each as it's consumed, and returns the new rcv_nxt.
// Called with c.mu held.
func (c *Conn) drainOFO(seqEnd seqnum.Value) seqnum.Value {
	for {
		head := c.ofoBuf.Front()
		if head == nil {
			break
		}
		entry := head.Value.(*ofoEntry)
		if seqEnd.LessThan(entry.seq) {
			break
		}
		c.rcvBuf.Write(entry.payload)
		if !entry.seqEnd.LessThan(seqEnd) {
			seqEnd = entry.seqEnd
		}
		c.ofoBuf.Remove(head)
	}
	return seqEnd
}
