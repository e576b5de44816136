// Copyright 2016 The Netstack Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tcp

import (
	"sync"

	"github.com/zxysbsbzxy/usertcp/sleep"
)

// Waker ids for a Loop's Sleeper, mirroring the historical
// wakerForNotification/wakerForNewSegment split: one goroutine processes
// everything a Conn needs done outside of a direct, synchronous Process
// call, so at most one segment is ever in flight for it at a time (spec.md
// section 5).
const (
	wakerForNewSegment = iota
	wakerForNotification
)

// notifyClose is the only notification bit this core raises; a full stack
// would add others (e.g. a pending reset) here.
const notifyClose = 1 << 0

// Loop drives a Conn's segment processing off of a queue instead of direct
// Process calls, for callers (such as a real socket layer) that receive
// segments concurrently with other work. It is optional: the demo commands
// and most tests call Conn.Process directly and never construct a Loop.
type Loop struct {
	conn *Conn

	sleeper         sleep.Sleeper
	newSegmentWaker sleep.Waker
	notifyWaker     sleep.Waker

	mu          sync.Mutex
	queue       []*ControlBlock
	notifyFlags uint32
}

// NewLoop builds a Loop over c and wires up its wakers. The caller must
// still call Run (typically in its own goroutine) to start draining the
// queue.
func NewLoop(c *Conn) *Loop {
	l := &Loop{conn: c}
	l.sleeper.AddWaker(&l.newSegmentWaker, wakerForNewSegment)
	l.sleeper.AddWaker(&l.notifyWaker, wakerForNotification)
	return l
}

// Enqueue hands a segment to the loop for asynchronous processing and wakes
// it if it's parked.
func (l *Loop) Enqueue(cb *ControlBlock) {
	l.mu.Lock()
	l.queue = append(l.queue, cb)
	l.mu.Unlock()
	l.newSegmentWaker.Assert()
}

// RequestClose asks Run to return after the queue currently pending has
// been drained.
func (l *Loop) RequestClose() {
	l.mu.Lock()
	l.notifyFlags |= notifyClose
	l.mu.Unlock()
	l.notifyWaker.Assert()
}

func (l *Loop) take() *ControlBlock {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return nil
	}
	cb := l.queue[0]
	l.queue = l.queue[1:]
	return cb
}

func (l *Loop) hasQueued() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue) > 0
}

func (l *Loop) closeRequested() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.notifyFlags&notifyClose != 0
}

// Run processes queued segments until RequestClose is called and the queue
// has drained, then releases the Sleeper and returns. It is meant to be run
// in its own goroutine, one per Conn, matching the single-mutex-per-Conn
// serialization invariant (spec.md section 5).
func (l *Loop) Run() {
	defer l.sleeper.Done()

	for {
		id, _ := l.sleeper.Fetch(true)
		switch id {
		case wakerForNewSegment:
			budget := l.conn.cfg.MaxSegmentsPerWake
			for i := 0; i < budget; i++ {
				cb := l.take()
				if cb == nil {
					break
				}
				l.conn.Process(cb)
			}
			// More than a wake's budget arrived; come back around
			// instead of parking with work still queued.
			if l.hasQueued() {
				l.newSegmentWaker.Assert()
			}
		case wakerForNotification:
			if l.closeRequested() {
				for cb := l.take(); cb != nil; cb = l.take() {
					l.conn.Process(cb)
				}
				return
			}
		}
	}
}
