/*
 * Copyright (c) 2024, Sandia National Laboratories.
 */
package xport

import (
	"strconv"
	"sync"
	"time"

	"github.com/teris-io/shortid"

	"github.com/sandialabs/kelpie/cmn"
	"github.com/sandialabs/kelpie/dataobj"
	"github.com/sandialabs/kelpie/kv"
)

// NewMailboxID mints a compact, cluster-internal identifier for a
// parked want, the way the teacher mints xaction UUIDs
// (cmd/cli/cli/object.go's xaction-id handling) — short, unambiguous,
// safe to log.
func NewMailboxID() string {
	id, err := shortid.Generate()
	if err != nil {
		// shortid.Generate only fails on generator exhaustion/clock
		// skew; a nanosecond-stamped id keeps separate calls on separate
		// mailboxes, it is just not as pretty in logs.
		return "mbx-fallback-" + strconv.FormatInt(time.Now().UnixNano(), 36)
	}
	return "mbx-" + id
}

// Loopback is the in-process Transport spec.md §1 treats as opaque:
// "sending" to a node writes straight into that node's LocalKV, and
// mailbox notification is a single at-most-once-fired registration
// table rather than a real wire protocol. It exists so the Pool can be
// exercised end to end without RDMA hardware (SPEC_FULL.md §4.10).
type Loopback struct {
	nodes    []*kv.LocalKV
	mu       sync.Mutex
	handlers map[string]func()
	fired    sync.Map // mailboxID -> struct{}, enforces at-most-once
}

// NewLoopback wires a fixed list of local nodes, index-addressed the
// same way StaticDirectory.Resolve returns node indices.
func NewLoopback(nodes []*kv.LocalKV) *Loopback {
	return &Loopback{
		nodes:    nodes,
		handlers: make(map[string]func()),
	}
}

// Notify implements kv.MailboxNotifier: each local Put that drains a
// cell's waiter list calls this with the parked mailbox id.
func (l *Loopback) Notify(mailboxID string) {
	if _, already := l.fired.LoadOrStore(mailboxID, struct{}{}); already {
		return
	}
	l.mu.Lock()
	fn, ok := l.handlers[mailboxID]
	if ok {
		delete(l.handlers, mailboxID)
	}
	l.mu.Unlock()
	if ok {
		fn()
	}
}

// RegisterMailbox arranges for fn to run the first time Notify(mailboxID)
// is observed. If that notification already fired, fn runs immediately.
func (l *Loopback) RegisterMailbox(mailboxID string, fn func()) {
	if _, already := l.fired.Load(mailboxID); already {
		fn()
		return
	}
	l.mu.Lock()
	l.handlers[mailboxID] = fn
	l.mu.Unlock()
}

// Send delivers do into node's LocalKV directly, simulating a remote
// publish landing on its owning node (spec.md §4.7 "the callback fires
// when the send completes and the remote's put acknowledges" — here
// completion is synchronous since there is no wire in between).
func (l *Loopback) Send(node int, bucket cmn.Bucket, key cmn.Key, do dataobj.DO) error {
	if node < 0 || node >= len(l.nodes) {
		return cmn.NewErr(cmn.InvalidArg, "loopback: node index %d out of range [0,%d)", node, len(l.nodes))
	}
	_, kind, err := l.nodes[node].Put(bucket, key, do, true, false, nil, l)
	if err != nil {
		return err
	}
	if kind != cmn.Ok {
		return cmn.NewErr(cmn.IOError, "loopback: put to node %d returned %v", node, kind)
	}
	return nil
}

// Fetch reads directly from node's LocalKV, simulating a synchronous
// remote pull (no network round trip to model in-process).
func (l *Loopback) Fetch(node int, bucket cmn.Bucket, key cmn.Key) (dataobj.DO, error) {
	if node < 0 || node >= len(l.nodes) {
		return dataobj.DO{}, cmn.NewErr(cmn.InvalidArg, "loopback: node index %d out of range [0,%d)", node, len(l.nodes))
	}
	do, kind := l.nodes[node].Get(bucket, key)
	if kind != cmn.Ok {
		return dataobj.DO{}, cmn.NewErr(cmn.NotFound, "loopback: no such object %v on node %d", key, node)
	}
	return do, nil
}

var _ Transport = (*Loopback)(nil)
var _ Fetcher = (*Loopback)(nil)
var _ kv.MailboxNotifier = (*Loopback)(nil)
