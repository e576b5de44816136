// Copyright 2016 The Netstack Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package stack provides the shared connection registry that the transport
// core consumes: the 4-tuple hash table and the bind-hash table described
// in spec.md sections 3 and 6. Demultiplexing a raw packet into a tuple
// lookup happens above this package (out of scope per spec.md section 1);
// this package only owns the table itself and the handle scheme used to
// reference entries without pinning them with raw pointers (Design Notes
// section 9).
package stack

import (
	"sync"

	"github.com/rs/xid"
)

// Handle is a stable, sortable reference to a registered connection. Handles
// are used for parent/child links so that releasing the arena slot a
// connection occupies is decoupled from any reference still held to it, per
// Design Notes section 9.
type Handle = xid.ID

// NewHandle mints a fresh handle for a newly created connection, in the
// style of runZeroInc-sockstats' use of xid.New() to tag tracked
// connections for its prometheus collector.
func NewHandle() Handle {
	return xid.New()
}

// TupleIdentity is the four-tuple (plus local bind) a connection is keyed
// by.
type TupleIdentity struct {
	LocalAddr  string
	LocalPort  uint16
	RemoteAddr string
	RemotePort uint16
}

// BindIdentity is the local-only key used for the bind-hash table: sockets
// that are merely bound (LISTEN) or whose peer isn't yet fixed.
type BindIdentity struct {
	LocalAddr string
	LocalPort uint16
}

// Registrant is anything that can be registered in the Registry. Conn
// satisfies this in tcpip/transport/tcp.
type Registrant interface {
	Handle() Handle
}

// Registry is the shared 4-tuple and bind hash tables. Mutations (child
// registration on the SYN rule, unhashing on CLOSED) take the registry's
// own lock, per spec.md section 5 ("Shared state").
type Registry struct {
	mu    sync.Mutex
	tuple map[TupleIdentity]Handle
	bind  map[BindIdentity]Handle
	conns map[Handle]Registrant
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		tuple: make(map[TupleIdentity]Handle),
		bind:  make(map[BindIdentity]Handle),
		conns: make(map[Handle]Registrant),
	}
}

// HashTuple inserts r under the given 4-tuple, making it discoverable by
// future demultiplexed segments.
func (reg *Registry) HashTuple(t TupleIdentity, r Registrant) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.tuple[t] = r.Handle()
	reg.conns[r.Handle()] = r
}

// HashBind inserts r under the given local bind identity (used by LISTEN
// sockets and by a connection's local port reservation).
func (reg *Registry) HashBind(b BindIdentity, r Registrant) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.bind[b] = r.Handle()
	reg.conns[r.Handle()] = r
}

// LookupTuple finds the connection registered under the given 4-tuple.
func (reg *Registry) LookupTuple(t TupleIdentity) (Registrant, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	h, ok := reg.tuple[t]
	if !ok {
		return nil, false
	}
	r, ok := reg.conns[h]
	return r, ok
}

// UnhashTuple removes the 4-tuple entry for t, if any. It is a no-op if the
// tuple isn't present (idempotent, so double-CLOSED cleanup is safe).
func (reg *Registry) UnhashTuple(t TupleIdentity) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	h, ok := reg.tuple[t]
	if !ok {
		return
	}
	delete(reg.tuple, t)
	reg.releaseIfUnreferenced(h)
}

// UnhashBind removes the bind entry for b, if any.
func (reg *Registry) UnhashBind(b BindIdentity) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	h, ok := reg.bind[b]
	if !ok {
		return
	}
	delete(reg.bind, b)
	reg.releaseIfUnreferenced(h)
}

// releaseIfUnreferenced drops the arena slot for h once neither hash table
// still names it. Caller must hold reg.mu.
func (reg *Registry) releaseIfUnreferenced(h Handle) {
	for _, v := range reg.tuple {
		if v == h {
			return
		}
	}
	for _, v := range reg.bind {
		if v == h {
			return
		}
	}
	delete(reg.conns, h)
}
