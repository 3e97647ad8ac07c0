// Package pool is the front-end spec.md §4.7 describes: a thin, policy-
// driven wrapper that routes put/get/list across kv.LocalKV, an
// optional iom.Backend, and an optional xport.Transport. Nothing here
// touches a row or cell directly — every operation bottoms out in a
// kv.LocalKV call, the way the teacher's ais/prxs3.go handlers bottom
// out in a single backend/bucket-owner call rather than reimplementing
// storage logic at the handler layer.
/*
 * Copyright (c) 2024, Sandia National Laboratories.
 */
package pool

import (
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/sandialabs/kelpie/cmn"
	"github.com/sandialabs/kelpie/cmn/debug"
	"github.com/sandialabs/kelpie/cmn/nlog"
	"github.com/sandialabs/kelpie/cmn/stats"
	"github.com/sandialabs/kelpie/dataobj"
	"github.com/sandialabs/kelpie/iom"
	"github.com/sandialabs/kelpie/kv"
	"github.com/sandialabs/kelpie/xport"
)

// Behavior is the bitset of routing flags spec.md §4.7 enumerates.
type Behavior uint8

const (
	WriteToLocal Behavior = 1 << iota
	WriteToRemote
	WriteToIOM
	ReadToLocal
	ReadToRemote
	EnableOverwrites
)

// Standard presets (spec.md §4.7).
const (
	DefaultBaseClass = WriteToLocal | ReadToLocal
	DefaultLocal     = WriteToLocal | ReadToLocal
	DefaultLocalIOM  = WriteToLocal | WriteToIOM | ReadToLocal
	DefaultRemote    = WriteToRemote | ReadToRemote
)

func (b Behavior) Has(flag Behavior) bool { return b&flag != 0 }

// Pool is the API the rest of the system uses (spec.md §4.7): a
// resolved Behavior, a LocalKV, an optional IOM (named by iom_hash,
// resolved lazily against registry so a Pool survives IOM
// registration/deregistration across its lifetime), and an optional
// Transport/DirectoryService pair for remote routing.
type Pool struct {
	behavior  Behavior
	local     *kv.LocalKV
	registry  *iom.Registry
	iomHash   uint32
	transport xport.Transport
	directory xport.DirectoryService
	sf        singleflight.Group
	stats     *stats.Tracker
}

// WithStats attaches a metrics tracker; every subsequent Publish/Need
// call records its outcome against it. Optional — a nil tracker (the
// zero value, never calling WithStats) makes every record a no-op.
func (p *Pool) WithStats(t *stats.Tracker) *Pool {
	p.stats = t
	return p
}

func (p *Pool) recordOp(op string, kind cmn.Kind) {
	if p.stats != nil {
		p.stats.Op(op, kind.String())
	}
}

func (p *Pool) observeIOM(op string, start time.Time) {
	if p.stats != nil {
		p.stats.ObserveIOM(op, start)
	}
}

// New constructs a Pool. iomName may be empty for a pool with no IOM.
func New(behavior Behavior, local *kv.LocalKV, registry *iom.Registry, iomName string,
	transport xport.Transport, directory xport.DirectoryService,
) *Pool {
	debug.Assert(local != nil, "pool requires a non-nil LocalKV")
	p := &Pool{behavior: behavior, local: local, registry: registry, transport: transport, directory: directory}
	if iomName != "" {
		p.iomHash = iom.NameHash(iomName)
	}
	nlog.Infof("pool: opened with behavior=%08b iom=%q", behavior, iomName)
	return p
}

func (p *Pool) backend() iom.Backend {
	if p.registry == nil || p.iomHash == 0 {
		return nil
	}
	b, _ := p.registry.LookupHash(p.iomHash)
	return b
}

// Publish routes a put per behavior (spec.md §4.7 "Flow for a
// publish"): local write first (if WriteToLocal), then a remote send
// (if WriteToRemote) to the node DirectoryService resolves. cb, if
// non-nil, is invoked once with the first error encountered (nil on
// success) — synchronously, since neither LocalKV.Put nor the in-
// process Transport actually suspends the caller.
func (p *Pool) Publish(bucket cmn.Bucket, key cmn.Key, do dataobj.DO, cb func(error)) {
	notify := func(err error) {
		p.recordOp("put", cmn.KindOf(err))
		if cb != nil {
			cb(err)
		}
	}
	if p.behavior.Has(WriteToLocal) {
		backend := p.backend()
		start := time.Now()
		_, kind, err := p.local.Put(bucket, key, do, p.behavior.Has(EnableOverwrites), p.behavior.Has(WriteToIOM), backend, p.transport)
		if p.behavior.Has(WriteToIOM) && backend != nil {
			p.observeIOM("write", start)
		}
		if err != nil {
			notify(err)
			return
		}
		if kind == cmn.Exists {
			notify(cmn.NewErr(cmn.Exists, "object %v already published, overwrites disabled", key))
			return
		}
	}
	if p.behavior.Has(WriteToRemote) {
		if p.transport == nil || p.directory == nil {
			notify(cmn.NewErr(cmn.InvalidArg, "remote pool has no transport/directory configured"))
			return
		}
		node := p.directory.Resolve(bucket, key)
		if err := p.transport.Send(node, bucket, key, do); err != nil {
			nlog.Warnf("publish %s/%v to node %d: %v", bucket, key, node, err)
			notify(err)
			return
		}
		notify(nil)
		return
	}
	notify(nil)
}

// PublishBatch fans a slice of puts out across local memory and the
// IOM concurrently via errgroup, so a caller publishing many objects at
// once pays the IOM's batch-write latency only once rather than once
// per object (grounded on spec.md §4.3's WriteObjects batch contract).
func (p *Pool) PublishBatch(bucket cmn.Bucket, items []iom.KeyVal) error {
	var g errgroup.Group
	if p.behavior.Has(WriteToLocal) {
		for _, it := range items {
			it := it
			g.Go(func() error {
				_, _, err := p.local.Put(bucket, it.Key, it.DO, p.behavior.Has(EnableOverwrites), false, nil, p.transport)
				return err
			})
		}
	}
	if p.behavior.Has(WriteToIOM) {
		if backend := p.backend(); backend != nil {
			g.Go(func() error {
				defer p.observeIOM("write", time.Now())
				return backend.WriteObjects(bucket, items)
			})
		}
	}
	return g.Wait()
}

// Need is the blocking get (spec.md §4.7 "Flow for a need"): consult
// LocalKV with a freshly-minted mailbox id; on a local miss, collapse
// concurrent fetches for the same key via singleflight and try a
// direct remote fetch if the Transport supports one; failing that,
// park on the local mailbox and block until it fires. The core itself
// never times this out (spec.md §5 "Cancellation and timeouts") — a
// caller wanting a deadline wraps Need in its own timer.
func (p *Pool) Need(bucket cmn.Bucket, key cmn.Key) (dataobj.DO, error) {
	mailboxID := xport.NewMailboxID()
	backend := p.backend()
	start := time.Now()
	do, kind, err := p.local.GetForOp(bucket, key, mailboxID, backend, p.behavior.Has(ReadToRemote), p.transport)
	if backend != nil {
		p.observeIOM("read", start)
	}
	if err != nil {
		p.recordOp("get", cmn.IOError)
		return dataobj.DO{}, err
	}
	if kind == cmn.Ok {
		if p.stats != nil {
			p.stats.CacheHit()
		}
		p.recordOp("get", kind)
		return do, nil
	}
	if p.stats != nil {
		p.stats.CacheMiss()
	}

	if p.behavior.Has(ReadToRemote) && p.transport != nil && p.directory != nil {
		if fetcher, ok := p.transport.(xport.Fetcher); ok {
			node := p.directory.Resolve(bucket, key)
			v, err, _ := p.sf.Do(bucket.Hex()+key.Pup(), func() (interface{}, error) {
				return fetcher.Fetch(node, bucket, key)
			})
			if err == nil {
				fetched := v.(dataobj.DO)
				p.local.Put(bucket, key, fetched, false, false, nil, p.transport)
				p.recordOp("get", cmn.Ok)
				return fetched, nil
			}
		}
	}

	if p.transport == nil {
		p.recordOp("get", cmn.NotFound)
		return dataobj.DO{}, cmn.NewErr(cmn.NotFound, "object %v not available and no transport configured to wait on", key)
	}
	nlog.Debugf("need %s/%v: parked on mailbox %s", bucket, key, mailboxID)
	woken := make(chan struct{})
	p.transport.RegisterMailbox(mailboxID, func() { close(woken) })
	<-woken

	do, kind = p.local.Get(bucket, key)
	if kind != cmn.Ok {
		p.recordOp("get", cmn.IOError)
		return dataobj.DO{}, cmn.NewErr(cmn.IOError, "mailbox %s fired but %v still unavailable", mailboxID, key)
	}
	p.recordOp("get", cmn.Ok)
	return do, nil
}

func (p *Pool) Info(bucket cmn.Bucket, key cmn.Key) (kv.ObjectInfo, cmn.Kind) {
	return p.local.Info(bucket, key, p.backend())
}

func (p *Pool) Drop(bucket cmn.Bucket, key cmn.Key) cmn.Kind {
	kind := p.local.Drop(bucket, key)
	p.recordOp("drop", kind)
	return kind
}

func (p *Pool) List(bucket cmn.Bucket, pattern cmn.Key) (iom.ObjectCapacities, cmn.Kind) {
	oc, kind := p.local.List(bucket, pattern, p.backend())
	p.recordOp("list", kind)
	return oc, kind
}
