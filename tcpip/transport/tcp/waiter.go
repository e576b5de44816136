// Copyright 2016 The Netstack Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tcp

import "sync"

// waitObject is the "opaque blockable signal" spec.md sections 3 and 4.5
// describe: application tasks (accept/connect/send/recv) Block on one,
// process_segment Wakes it. Per Design Notes section 9, it's modeled as a
// condition variable plus a sleeper-count flag, rather than conflating wake
// with a state transition.
//
// Waking is edge-triggered and may be spurious: a woken blocker must
// re-check its own predicate and re-block if it still doesn't hold (spec.md
// section 4.5).
type waitObject struct {
	mu       sync.Mutex
	cond     *sync.Cond
	sleepers int
}

func newWaitObject() *waitObject {
	w := &waitObject{}
	w.cond = sync.NewCond(&w.mu)
	return w
}

// Sleeping reports whether at least one goroutine is currently blocked in
// Block.
func (w *waitObject) Sleeping() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sleepers > 0
}

// Wake unblocks every goroutine currently parked in Block. It is always
// safe to call, whether or not anyone is sleeping (spec.md section 4.5
// tolerates spurious wakeups, and symmetrically tolerates wakes with no
// sleepers).
func (w *waitObject) Wake() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.cond.Broadcast()
}

// Block parks the calling goroutine until Wake is called at least once.
// Callers are expected to re-check their predicate after Block returns,
// since the wake may be spurious or may have been meant for a different
// waiter sharing the same predicate.
func (w *waitObject) Block() {
	w.mu.Lock()
	w.sleepers++
	w.cond.Wait()
	w.sleepers--
	w.mu.Unlock()
}
