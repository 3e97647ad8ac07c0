// Package dataobj implements the Data Object (DO): the core's single
// reference-counted, shared-ownership type (spec.md §4.1). Every other
// handle in the system (cells, waiter callbacks, IOM backends) holds a
// DO by value and shares the underlying allocation through Clone/Release.
/*
 * Copyright (c) 2024, Sandia National Laboratories.
 */
package dataobj

import (
	"sync/atomic"

	"github.com/sandialabs/kelpie/cmn"
)

// MemoryKind distinguishes RDMA registration timing: Eager buffers are
// registered immediately on allocation, Lazy buffers on first transport
// use (spec.md §3 "Memory is either eager ... or lazy").
type MemoryKind int

const (
	Lazy MemoryKind = iota
	Eager
)

type shared struct {
	typeID  uint16
	flags   uint16
	meta    []byte
	data    []byte
	kind    MemoryKind
	refc    int32
	rdmaReg bool
}

// DO is a small value type wrapping a pointer to the shared, refcounted
// allocation. Copying a DO (via Clone) increments the refcount; the
// underlying allocation is released when the count reaches zero.
type DO struct {
	s *shared
}

// New constructs a DO owning meta and data directly (no copy): the
// caller transfers ownership of both slices to the DO. Refcount starts
// at 1.
func New(typeID uint16, meta, data []byte, kind MemoryKind) (DO, error) {
	if len(meta) > cmn.MaxMetaSize {
		return DO{}, cmn.NewErr(cmn.InvalidArg, "meta size %d exceeds max %d", len(meta), cmn.MaxMetaSize)
	}
	if int64(len(data)) > cmn.MaxDataSize {
		return DO{}, cmn.NewErr(cmn.InvalidArg, "data size %d exceeds max %d", len(data), cmn.MaxDataSize)
	}
	s := &shared{typeID: typeID, meta: meta, data: data, kind: kind, refc: 1}
	d := DO{s: s}
	if kind == Eager {
		registerRDMA(&d)
	}
	return d, nil
}

// IsNil reports whether this DO handle is unbound (e.g. zero value).
func (d DO) IsNil() bool { return d.s == nil }

// Clone shares ownership: increments the refcount and returns a new
// handle to the same allocation.
func (d DO) Clone() DO {
	if d.s == nil {
		return d
	}
	atomic.AddInt32(&d.s.refc, 1)
	return DO{s: d.s}
}

// Release drops this handle's share of ownership. When the refcount
// reaches zero the allocation is unregistered (if it was RDMA-
// registered) and dropped for GC.
func (d DO) Release() {
	if d.s == nil {
		return
	}
	if atomic.AddInt32(&d.s.refc, -1) == 0 {
		if d.s.rdmaReg {
			unregisterRDMA(&d)
		}
		d.s.meta = nil
		d.s.data = nil
	}
}

func (d DO) RefCount() int32 {
	if d.s == nil {
		return 0
	}
	return atomic.LoadInt32(&d.s.refc)
}

func (d DO) TypeID() uint16 { return d.s.typeID }
func (d DO) Flags() uint16  { return d.s.flags }
func (d DO) SetFlags(f uint16) {
	if d.s != nil {
		d.s.flags = f
	}
}

// MetaBytes/DataBytes borrow the underlying slices; callers must not
// mutate them once the DO has been handed to a put (spec.md §5 "Shared
// resources").
func (d DO) MetaBytes() []byte { return d.s.meta }
func (d DO) DataBytes() []byte { return d.s.data }

func (d DO) MetaSize() int   { return len(d.s.meta) }
func (d DO) DataSize() int   { return len(d.s.data) }
func (d DO) UserSize() int   { return d.MetaSize() + d.DataSize() }
func (d DO) WireSize() int   { return cmn.HeaderSize + d.UserSize() }
func (d DO) Kind() MemoryKind { return d.s.kind }

// Equal performs a bytewise comparison of type, meta, and data - used by
// round-trip tests (spec.md §8 "Round-trip laws").
func (d DO) Equal(o DO) bool {
	if d.s == nil || o.s == nil {
		return d.s == o.s
	}
	if d.TypeID() != o.TypeID() {
		return false
	}
	if string(d.MetaBytes()) != string(o.MetaBytes()) {
		return false
	}
	return string(d.DataBytes()) == string(o.DataBytes())
}

// RDMA registration hooks, installed once at process startup (spec.md
// §4.1 "register/unregister as RDMA buffer via callbacks installed at
// process startup"). Defaults are no-ops: registration is meaningful
// only once a real Transport implementation is wired in, which this
// module's xport.Loopback deliberately does not need.
var (
	registerRDMAHook   func(*DO) error
	unregisterRDMAHook func(*DO) error
)

// InstallRDMAHooks wires the process-wide register/unregister callbacks.
// Call once at startup, before any Eager-kind DOs are constructed.
func InstallRDMAHooks(register, unregister func(*DO) error) {
	registerRDMAHook = register
	unregisterRDMAHook = unregister
}

func registerRDMA(d *DO) {
	if registerRDMAHook == nil {
		return
	}
	if err := registerRDMAHook(d); err == nil {
		d.s.rdmaReg = true
	}
}

func unregisterRDMA(d *DO) {
	if unregisterRDMAHook == nil || !d.s.rdmaReg {
		return
	}
	unregisterRDMAHook(d) //nolint:errcheck
	d.s.rdmaReg = false
}
