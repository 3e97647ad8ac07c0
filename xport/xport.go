// Package xport is the transport/directory collaborator spec.md §1
// keeps opaque to the core: a Transport moves bytes between nodes and
// delivers completion notifications, a DirectoryService resolves
// (bucket, key) to an owning node. The mailbox bookkeeping idiom here
// — a registration table drained at-most-once per id — follows the
// same shape as SK-Kadam-aistore/transport/collect.go's stream
// registry, scaled down to a single in-process table instead of a
// ticked min-heap of live streams.
/*
 * Copyright (c) 2024, Sandia National Laboratories.
 */
package xport

import (
	"github.com/sandialabs/kelpie/cmn"
	"github.com/sandialabs/kelpie/dataobj"
)

// Transport is the opaque send/notify collaborator spec.md §1 carves
// out of the core. Send delivers a DO to the node owning (bucket,
// key); the core never blocks a lock-held thread on it (spec.md §4.7
// "Suspension points").
type Transport interface {
	Send(node int, bucket cmn.Bucket, key cmn.Key, do dataobj.DO) error
	// RegisterMailbox arranges for fn to run at most once when
	// mailboxID is next notified, by any node's local delivery.
	RegisterMailbox(mailboxID string, fn func())
}

// DirectoryService resolves (bucket, key) to an owning node id
// (spec.md §1).
type DirectoryService interface {
	Resolve(bucket cmn.Bucket, key cmn.Key) int
}

// Fetcher is an optional Transport capability a pool configured with
// ReadToRemote uses to pull an object synchronously from its owning
// node, rather than only waiting on a mailbox (spec.md §4.7 "it issues
// a remote request"). Not every Transport can support a synchronous
// pull; pools type-assert for it and fall back to mailbox-only waiting
// when absent.
type Fetcher interface {
	Fetch(node int, bucket cmn.Bucket, key cmn.Key) (dataobj.DO, error)
}
