// Copyright 2016 The Netstack Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package buffer holds the owned byte-slice type used for payloads that
// outlive the packet they arrived in. Per spec.md section 6, the core must
// copy incoming payload bytes rather than alias the caller's raw packet
// buffer, since the caller reclaims it once process_segment returns.
package buffer

// View is a slice of bytes that is owned by whoever holds it, as opposed to
// a slice of another owner's backing array.
type View []byte

// NewViewFromBytes returns a new View that is an owned copy of b.
func NewViewFromBytes(b []byte) View {
	if len(b) == 0 {
		return nil
	}
	v := make(View, len(b))
	copy(v, b)
	return v
}

// Size returns the number of bytes in the view.
func (v View) Size() int {
	return len(v)
}
