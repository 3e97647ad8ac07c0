/*
 * Copyright (c) 2024, Sandia National Laboratories.
 */
package pool

import (
	"sync"

	"github.com/sandialabs/kelpie/cmn"
	"github.com/sandialabs/kelpie/dataobj"
)

// ComputeFunc is a named, pure computation over the objects currently
// available for a key (spec.md §4.8): it never blocks on an absent
// object, it just sees whatever getAvailable already returned.
type ComputeFunc func(bucket cmn.Bucket, key cmn.Key, ldos map[cmn.Key]*dataobj.DO, args []byte) (*dataobj.DO, error)

var (
	computeMu sync.RWMutex
	computes  = map[string]ComputeFunc{}
)

// RegisterCompute makes a computation invocable by name from
// Pool.Compute. Typically called at process startup.
func RegisterCompute(name string, fn ComputeFunc) {
	computeMu.Lock()
	defer computeMu.Unlock()
	computes[name] = fn
}

func lookupCompute(name string) (ComputeFunc, bool) {
	computeMu.RLock()
	defer computeMu.RUnlock()
	fn, ok := computes[name]
	return fn, ok
}

// Compute snapshots every currently-available object matching key via
// LocalKV.GetAvailable, then invokes the named computation against that
// snapshot (spec.md §4.8). It never waits for an object that is not yet
// present.
func (p *Pool) Compute(name string, args []byte, bucket cmn.Bucket, key cmn.Key) (dataobj.DO, error) {
	fn, ok := lookupCompute(name)
	if !ok {
		return dataobj.DO{}, cmn.NewErr(cmn.InvalidArg, "unknown compute %q", name)
	}
	avail, err := p.local.GetAvailable(bucket, key)
	if err != nil {
		return dataobj.DO{}, err
	}
	ldos := make(map[cmn.Key]*dataobj.DO, len(avail))
	for k, do := range avail {
		d := do
		ldos[k] = &d
	}
	result, err := fn(bucket, key, ldos, args)
	if err != nil {
		return dataobj.DO{}, err
	}
	if result == nil {
		return dataobj.DO{}, cmn.NewErr(cmn.IOError, "compute %q returned no result", name)
	}
	return *result, nil
}
