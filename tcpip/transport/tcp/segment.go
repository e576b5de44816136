// Copyright 2016 The Netstack Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tcp

import (
	"github.com/zxysbsbzxy/usertcp/tcpip/buffer"
	"github.com/zxysbsbzxy/usertcp/tcpip/header"
	"github.com/zxysbsbzxy/usertcp/tcpip/seqnum"
)

// ControlBlock is the parsed, input-only view of an inbound segment that
// process_segment is handed, as per spec.md section 3 ("Control Block (Cb)
// -- input only"). It is produced by a parser outside this core's scope.
type ControlBlock struct {
	SrcAddr string
	DstAddr string
	SrcPort uint16
	DstPort uint16

	Flags   header.Flags
	Seq     seqnum.Value
	Ack     seqnum.Value
	RWnd    seqnum.Size
	Payload buffer.View
}

// SeqEnd returns cb.Seq + logical length, per spec.md section 3: data
// segments consume pl_len sequence numbers, SYN/FIN segments each consume
// exactly one.
func (cb *ControlBlock) SeqEnd() seqnum.Value {
	if cb.Flags.Contains(header.FlagSyn) || cb.Flags.Contains(header.FlagFin) {
		return cb.Seq.Add(seqnum.Size(len(cb.Payload))).Add(1)
	}
	return cb.Seq.Add(seqnum.Size(len(cb.Payload)))
}

// sendBufferEntry is a retained unacknowledged outbound segment, per
// spec.md section 3 ("Send-buffer entry").
type sendBufferEntry struct {
	seq     seqnum.Value
	seqEnd  seqnum.Value
	segment buffer.View // bytes kept for retransmission; Send stores the payload only, with no TCP header
}

// ofoEntry is a received-but-not-yet-deliverable segment held in the
// out-of-order reassembly buffer, per spec.md section 3 ("OFO entry").
type ofoEntry struct {
	seq     seqnum.Value
	seqEnd  seqnum.Value
	payload buffer.View
}
