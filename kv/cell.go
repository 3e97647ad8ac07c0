// Package kv implements the local 2-D sparse key/value engine (LKV):
// LocalKV (table) -> LocalKVRow (row) -> LocalKVCell (cell), exactly as
// spec.md §3–§6 describe. This is the single largest component of the
// core (spec.md §2 budgets it at 35%).
/*
 * Copyright (c) 2024, Sandia National Laboratories.
 */
package kv

import (
	"time"

	"github.com/sandialabs/kelpie/cmn"
	"github.com/sandialabs/kelpie/dataobj"
)

// Availability is a cell's discrete lifecycle state (spec.md §3).
type Availability int

const (
	Unavailable Availability = iota
	Requested
	InLocalMemory
	InRemoteMemory
	InDisk
)

func (a Availability) String() string {
	switch a {
	case Unavailable:
		return "Unavailable"
	case Requested:
		return "Requested"
	case InLocalMemory:
		return "InLocalMemory"
	case InRemoteMemory:
		return "InRemoteMemory"
	case InDisk:
		return "InDisk"
	default:
		return "?"
	}
}

// CallbackFunc is a "want" registration: invoked once, synchronously,
// when the awaited object becomes available (spec.md §4.6).
type CallbackFunc func(key cmn.Key, do dataobj.DO, info ObjectInfo)

// ObjectInfo is returned to callers of Info/Put/List (spec.md §3
// "Object info").
type ObjectInfo struct {
	ColAvailability Availability
	ColUserBytes    int
	ColDependencies int
	RowNumColumns   int
	RowUserBytes    int
}

// Cell is the per-(row,col) state (spec.md §3 "Cell").
//
// Invariant: ldo.IsNil() == false iff Availability == InLocalMemory.
// A cell with no waiters and Availability == Unavailable is removable.
//
// Cells are always accessed under their owning Row's lock; Cell itself
// carries no lock of its own.
type Cell struct {
	availability Availability
	ldo          dataobj.DO
	timePosted   int64 // UnixNano, set when a DO first occupies the cell

	mailboxWaiters  []string
	callbackWaiters []CallbackFunc
}

func newCell() *Cell { return &Cell{availability: Unavailable} }

func (c *Cell) isEmpty() bool {
	return c.availability == Unavailable && len(c.mailboxWaiters) == 0 && len(c.callbackWaiters) == 0
}

func (c *Cell) userBytes() int {
	if c.availability == InLocalMemory {
		return c.ldo.UserSize()
	}
	return 0
}

func (c *Cell) dependencyCount() int {
	return len(c.mailboxWaiters) + len(c.callbackWaiters)
}

func (c *Cell) info() ObjectInfo {
	return ObjectInfo{
		ColAvailability: c.availability,
		ColUserBytes:    c.userBytes(),
		ColDependencies: c.dependencyCount(),
	}
}

// MailboxNotifier is the opaque transport-level wakeup hook: the core
// hands it a mailbox id and guarantees at most one notify per
// registration, but treats delivery itself as the transport's concern
// (spec.md §4.6, §9 "Coroutine-like want").
type MailboxNotifier interface {
	Notify(mailboxID string)
}

// triggerDependencies drains both waiter lists under the caller's held
// row lock: every mailbox id is handed to notifier exactly once, every
// callback is invoked synchronously with (key, do, info), and both
// lists are cleared atomically before this returns (spec.md §4.6).
func (c *Cell) triggerDependencies(notifier MailboxNotifier, key cmn.Key, rowInfo func() (int, int)) {
	if len(c.mailboxWaiters) == 0 && len(c.callbackWaiters) == 0 {
		return
	}
	mailboxes := c.mailboxWaiters
	callbacks := c.callbackWaiters
	c.mailboxWaiters = nil
	c.callbackWaiters = nil

	numCols, rowBytes := rowInfo()
	info := c.info()
	info.ColDependencies = 0 // waiters were just drained
	info.RowNumColumns = numCols
	info.RowUserBytes = rowBytes

	if notifier != nil {
		for _, id := range mailboxes {
			notifier.Notify(id)
		}
	}
	for _, cb := range callbacks {
		cb(key, c.ldo.Clone(), info)
	}
}

func nowNano() int64 { return time.Now().UnixNano() }
