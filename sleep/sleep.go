// Copyright 2016 The Netstack Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package sleep allows a goroutine to efficiently sleep on multiple sources
// of notifications (wakers).
//
// A Waker object is used to wake a sleeping goroutine up, or prevent it from
// going to sleep next. A Sleeper object is used to receive notifications
// from wakers, and if none are available, to optionally sleep until one
// becomes available.
//
// A Waker can be associated with at most one Sleeper, but a Sleeper can be
// associated with multiple Wakers. A Sleeper has a set of asserted (ready)
// wakers; when Fetch is called repeatedly, ids from this set are returned
// until it becomes empty, at which point the goroutine goes to sleep. When
// Assert is called on a Waker, it adds itself to the Sleeper's asserted set
// and wakes the sleeper up if it's sleeping.
//
// Sleeper objects are expected to be used as follows, with just one
// goroutine executing this code:
//
//	// One time set-up.
//	s := sleep.Sleeper{}
//	s.AddWaker(&w1, constant1)
//	s.AddWaker(&w2, constant2)
//
//	// Called repeatedly.
//	for {
//		switch id, _ := s.Fetch(true); id {
//		case constant1:
//			// Do work triggered by w1 being asserted.
//		case constant2:
//			// Do work triggered by w2 being asserted.
//		}
//	}
//
// The notifications are edge-triggered: if a Waker calls Assert several
// times before the sleeper fetches the notification, it is only delivered
// once, and the handler is expected to perform all pending work.
//
// This package intentionally does not reach for go:linkname tricks into the
// runtime scheduler (as the historical implementation of this package did,
// via gopark/goready) -- the asm half of that mechanism isn't something a
// downstream module can reproduce, and it buys nothing a sync.Cond doesn't
// already give a single-sleeper, multi-waker design. The public surface
// (AddWaker/Fetch/Assert/Clear/Done) is unchanged so call sites read the
// same.
package sleep

import "sync"

// Waker represents a source of wake-up notifications to be sent to
// sleepers. A Waker can be associated with at most one Sleeper at a time,
// and is either in asserted or non-asserted state.
//
// Once asserted, a Waker remains so until cleared or until a Sleeper
// consumes the assertion.
//
// Waker is safe for concurrent use by multiple goroutines.
type Waker struct {
	mu       sync.Mutex
	asserted bool
	s        *Sleeper
	id       int
}

// Assert moves the waker to an asserted state, if it isn't asserted yet.
// When asserted, the waker will cause its matching sleeper to wake up.
func (w *Waker) Assert() {
	w.mu.Lock()
	already := w.asserted
	w.asserted = true
	s := w.s
	w.mu.Unlock()

	if already || s == nil {
		return
	}
	s.wake(w)
}

// Clear moves the waker to the non-asserted state and returns whether it
// was asserted before being cleared.
func (w *Waker) Clear() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	was := w.asserted
	w.asserted = false
	return was
}

// IsAsserted returns whether the waker is currently asserted.
func (w *Waker) IsAsserted() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.asserted
}

func (w *Waker) attach(s *Sleeper, id int) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.s = s
	w.id = id
	return w.asserted
}

func (w *Waker) detach() {
	w.mu.Lock()
	w.s = nil
	w.mu.Unlock()
}

// Sleeper allows a goroutine to sleep and receive wake-up notifications from
// Wakers in an efficient way.
//
// Only one goroutine is allowed to call Fetch on a given Sleeper at a time.
type Sleeper struct {
	mu      sync.Mutex
	cond    *sync.Cond
	wakers  []*Waker
	pending map[*Waker]int
	done    bool
}

func (s *Sleeper) init() {
	if s.cond == nil {
		s.cond = sync.NewCond(&s.mu)
		s.pending = make(map[*Waker]int)
	}
}

// AddWaker associates the given waker with the sleeper. id is the value
// returned by Fetch when the sleeper is woken by this waker.
func (s *Sleeper) AddWaker(w *Waker, id int) {
	s.mu.Lock()
	s.init()
	s.wakers = append(s.wakers, w)
	s.mu.Unlock()

	if w.attach(s, id) {
		s.wake(w)
	}
}

// wake records w as a pending (asserted) waker and wakes up a blocked
// Fetch, if any.
func (s *Sleeper) wake(w *Waker) {
	s.mu.Lock()
	s.init()
	if s.done {
		s.mu.Unlock()
		return
	}
	w.mu.Lock()
	id := w.id
	w.mu.Unlock()
	s.pending[w] = id
	s.cond.Signal()
	s.mu.Unlock()
}

// Fetch fetches the next wake-up notification. If one is immediately
// available, it is returned right away; otherwise, if block is true, the
// caller blocks until one arrives, then returns it; if block is false, ok
// is returned as false.
func (s *Sleeper) Fetch(block bool) (id int, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.init()

	for {
		for w, wid := range s.pending {
			if !w.IsAsserted() {
				delete(s.pending, w)
				continue
			}
			delete(s.pending, w)
			w.Clear()
			return wid, true
		}

		if !block {
			return -1, false
		}
		s.cond.Wait()
	}
}

// Done indicates that the caller won't use this Sleeper anymore. Any Wakers
// still associated with it are detached.
func (s *Sleeper) Done() {
	s.mu.Lock()
	s.init()
	s.done = true
	wakers := s.wakers
	s.wakers = nil
	s.pending = nil
	s.mu.Unlock()

	for _, w := range wakers {
		w.detach()
	}
}
