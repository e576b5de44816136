// Copyright 2016 The Netstack Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package seqnum defines the types and arithmetic for TCP sequence numbers
// that are used by the transport/tcp module.
package seqnum

// Value represents the value of a sequence number.
type Value uint32

// Size represents the size of a sequence number window.
type Size uint32

// SizeFromLength converts the given length into a Size.
func SizeFromLength(l int) Size {
	return Size(uint32(l))
}

// Add calculates the sequence number following the [v, v+s) window.
func (v Value) Add(s Size) Value {
	return v + Value(s)
}

// Size calculates the size of the window specified by [v, w).
func (v Value) Size(w Value) Size {
	return Size(w - v)
}

// LessThan checks if v is before w, in the sequence number space that wraps
// around after 2**32-1. The comparison is defined as in RFC 793, page 25:
// "A new acknowledgment (called an "acceptable ack"), is one for which the
// inequality ... is satisfied" — the modular, signed-difference comparison.
func (v Value) LessThan(w Value) bool {
	return int32(v-w) < 0
}

// LessThanEq checks if v is before or equal to w, in the sequence number
// space that wraps around after 2**32-1.
func (v Value) LessThanEq(w Value) bool {
	return v == w || v.LessThan(w)
}

// InRange checks if v is in the range [a, b) modulo 2**32.
func (v Value) InRange(a, b Value) bool {
	return v.InWindow(a, a.Size(b))
}

// InWindow checks if v is in the window that starts at 'first' and spans
// 'size' sequence numbers.
func (v Value) InWindow(first Value, size Size) bool {
	if size == 0 {
		return false
	}
	diff := Size(v - first)
	return diff < size
}

// UpdateForward updates v such that it becomes v + s.
func (v *Value) UpdateForward(s Size) {
	*v += Value(s)
}
