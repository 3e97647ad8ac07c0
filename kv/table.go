/*
 * Copyright (c) 2024, Sandia National Laboratories.
 */
package kv

import (
	"strings"
	"sync"

	cuckoo "github.com/seiflotfy/cuckoofilter"
	"github.com/tidwall/btree"

	"github.com/sandialabs/kelpie/cmn"
	"github.com/sandialabs/kelpie/cmn/debug"
	"github.com/sandialabs/kelpie/cmn/nlog"
	"github.com/sandialabs/kelpie/dataobj"
	"github.com/sandialabs/kelpie/iom"
)

// OpFlags controls do_row_op/do_col_op per spec.md §4.5.
type OpFlags uint8

const (
	CreateIfMissing OpFlags = 1 << iota
	TriggerDependencies
)

type rowEntry struct {
	name string
	row  *Row
}

func rowLess(a, b rowEntry) bool { return a.name < b.name }

// LocalKV is the top-level 2-D store (spec.md §3 "Table", §4.5). Rows
// are keyed by "bucket_hex || K1" so buckets are disjoint and prefix
// searches within a bucket are contiguous (spec.md §4.5 "Row-name
// construction").
type LocalKV struct {
	mu   sync.RWMutex
	rows *btree.BTreeG[rowEntry]
}

// Init constructs an empty table (spec.md §3 "configured once via
// Init(config)"). The core's own config is not consulted here — it only
// governs logging/stats, wired by the caller (pool.Pool).
func Init() *LocalKV {
	return &LocalKV{rows: btree.NewBTreeG(rowLess)}
}

// WipeAll drops every row under the table write lock.
func (t *LocalKV) WipeAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rows = btree.NewBTreeG(rowLess)
}

func fullRowName(bucket cmn.Bucket, k1 string) string { return bucket.Hex() + k1 }

// doColOp is the shared workhorse every column-granularity operation
// (put/get/getForOp/want) funnels through (spec.md §4.5). It implements
// the two-level locking discipline verbatim: acquire the table lock for
// reading, create the row under the write lock only if requested and
// missing, then hand off to the row lock before releasing the table
// lock.
func (t *LocalKV) doColOp(
	bucket cmn.Bucket, key cmn.Key, flags OpFlags, write bool, notifier MailboxNotifier,
	fn func(row *Row, cell *Cell) (transitioned bool, kind cmn.Kind, err error),
) (cmn.Kind, error) {
	full := fullRowName(bucket, key.K1)

	t.mu.RLock()
	e, ok := t.rows.Get(rowEntry{name: full})
	if ok {
		lockRow(e.row, write)
		t.mu.RUnlock()
	} else {
		t.mu.RUnlock()
		if flags&CreateIfMissing == 0 {
			return cmn.NotFound, cmn.NewErr(cmn.NotFound, "row %q not found", key.K1)
		}
		t.mu.Lock()
		e, ok = t.rows.Get(rowEntry{name: full})
		if !ok {
			e = rowEntry{name: full, row: newRow(key.K1)}
			t.rows.Set(e)
		}
		lockRow(e.row, write)
		t.mu.Unlock()
	}
	row := e.row
	defer unlockRow(row, write)

	var cell *Cell
	if flags&CreateIfMissing != 0 {
		cell = row.getOrCreateCell(key.K2)
	} else {
		c, found := row.getCell(key.K2)
		if !found {
			return cmn.NotFound, cmn.NewErr(cmn.NotFound, "key %v not found", key)
		}
		cell = c
	}

	transitioned, kind, err := fn(row, cell)
	if flags&TriggerDependencies != 0 && transitioned {
		cell.triggerDependencies(notifier, key, row.rowInfo)
	}
	return kind, err
}

func lockRow(r *Row, write bool) {
	if write {
		r.mu.Lock()
	} else {
		r.mu.RLock()
	}
}

func unlockRow(r *Row, write bool) {
	if write {
		r.mu.Unlock()
	} else {
		r.mu.RUnlock()
	}
}

//
// put
//

// Put implements spec.md §4.5 "put". WriteToLocal is implicit (this IS
// the local-write path); CreateIfMissing and TriggerDependencies are
// always set.
func (t *LocalKV) Put(
	bucket cmn.Bucket, key cmn.Key, newDO dataobj.DO, enableOverwrites, writeToIOM bool,
	backend iom.Backend, notifier MailboxNotifier,
) (ObjectInfo, cmn.Kind, error) {
	if !key.IsValid() || key.IsRowWildcard() || key.IsColWildcard() {
		return ObjectInfo{}, cmn.InvalidArg, cmn.NewErr(cmn.InvalidArg, "put requires a non-wildcard, valid key: %v", key)
	}
	var info ObjectInfo
	kind, err := t.doColOp(bucket, key, CreateIfMissing|TriggerDependencies, true, notifier,
		func(row *Row, cell *Cell) (bool, cmn.Kind, error) {
			if cell.availability == InLocalMemory && !enableOverwrites {
				info = cell.info()
				nc, ub := row.rowInfo()
				info.RowNumColumns, info.RowUserBytes = nc, ub
				return false, cmn.Exists, nil
			}
			cell.availability = InLocalMemory
			cell.ldo = newDO.Clone()
			cell.timePosted = nowNano()

			resultKind := cmn.Ok
			var opErr error
			if writeToIOM {
				if backend == nil {
					resultKind, opErr = cmn.IOError, cmn.NewErr(cmn.IOError, "WriteToIOM requested but no IOM configured")
				} else if werr := backend.WriteObject(bucket, key, newDO); werr != nil {
					resultKind, opErr = cmn.IOError, werr
				}
			}
			info = cell.info()
			nc, ub := row.rowInfo()
			info.RowNumColumns, info.RowUserBytes = nc, ub
			debug.Assert(cell.ldo.IsNil() == (cell.availability != InLocalMemory), "cell ldo/availability out of sync")
			return true, resultKind, opErr
		})
	if err != nil {
		nlog.Warnf("put %s/%v: %v", bucket, key, err)
	} else {
		nlog.Debugf("put %s/%v: %s", bucket, key, kind)
	}
	return info, kind, err
}

//
// get
//

// Get implements spec.md §4.5 "get": does not create, does not trigger.
func (t *LocalKV) Get(bucket cmn.Bucket, key cmn.Key) (dataobj.DO, cmn.Kind) {
	var result dataobj.DO
	kind, _ := t.doColOp(bucket, key, 0, false, nil, func(_ *Row, cell *Cell) (bool, cmn.Kind, error) {
		if cell.availability != InLocalMemory {
			return false, cmn.NotFound, nil
		}
		result = cell.ldo.Clone()
		return false, cmn.Ok, nil
	})
	return result, kind
}

// Info returns ObjectInfo for an exact key without creating or
// mutating anything. On a local miss, it falls back to backend.GetInfo
// the same way GetForOp falls back to backend.ReadObject, so a pool
// with an attached IOM can still answer InDisk after the in-memory
// cell has been dropped.
func (t *LocalKV) Info(bucket cmn.Bucket, key cmn.Key, backend iom.Backend) (ObjectInfo, cmn.Kind) {
	var info ObjectInfo
	kind, _ := t.doColOp(bucket, key, 0, false, nil, func(row *Row, cell *Cell) (bool, cmn.Kind, error) {
		info = cell.info()
		nc, ub := row.rowInfo()
		info.RowNumColumns, info.RowUserBytes = nc, ub
		return false, cmn.Ok, nil
	})
	if kind == cmn.NotFound || info.ColAvailability == Unavailable {
		if backend != nil {
			if bi, err := backend.GetInfo(bucket, key); err == nil && bi.Availability == iom.InDisk {
				return ObjectInfo{ColAvailability: InDisk, ColUserBytes: int(bi.UserBytes)}, cmn.Ok
			}
		}
		return ObjectInfo{ColAvailability: Unavailable}, cmn.Ok
	}
	return info, kind
}

// GetAvailable tolerates a column wildcard (row wildcard is rejected)
// and returns every currently-in-memory match (spec.md §4.5
// "getAvailable").
func (t *LocalKV) GetAvailable(bucket cmn.Bucket, key cmn.Key) (map[cmn.Key]dataobj.DO, error) {
	if key.IsRowWildcard() {
		return nil, cmn.NewErr(cmn.InvalidArg, "getAvailable: row wildcard not permitted: %v", key)
	}
	out := map[cmn.Key]dataobj.DO{}
	full := fullRowName(bucket, key.K1)
	t.mu.RLock()
	e, ok := t.rows.Get(rowEntry{name: full})
	t.mu.RUnlock()
	if !ok {
		return out, nil
	}
	row := e.row
	row.mu.RLock()
	row.forEachCol(key.ColPrefix(), key.IsColWildcard(), func(k2 string, cell *Cell) bool {
		if cell.availability == InLocalMemory {
			out[cmn.NewKey(key.K1, k2)] = cell.ldo.Clone()
		}
		return true
	})
	row.mu.RUnlock()
	return out, nil
}

//
// getForOp
//

// GetForOp implements spec.md §4.5 "getForOp": a get that, on miss,
// consults backend when one is given (returning IOError if the backend
// read fails), and otherwise parks mailboxID on the cell's waiter list.
func (t *LocalKV) GetForOp(
	bucket cmn.Bucket, key cmn.Key, mailboxID string, backend iom.Backend, readToRemote bool, notifier MailboxNotifier,
) (dataobj.DO, cmn.Kind, error) {
	var result dataobj.DO
	kind, err := t.doColOp(bucket, key, CreateIfMissing|TriggerDependencies, true, notifier,
		func(_ *Row, cell *Cell) (bool, cmn.Kind, error) {
			if cell.availability == InLocalMemory {
				result = cell.ldo.Clone()
				return false, cmn.Ok, nil
			}
			if backend != nil {
				do, rerr := backend.ReadObject(bucket, key)
				if rerr != nil {
					return false, cmn.IOError, rerr
				}
				result = do.Clone()
				if readToRemote {
					cell.ldo = do
					cell.availability = InLocalMemory
					cell.timePosted = nowNano()
					return true, cmn.Ok, nil
				}
				cell.availability = InDisk
				return false, cmn.Ok, nil
			}
			if cell.availability == Unavailable {
				cell.availability = Requested
			}
			cell.mailboxWaiters = append(cell.mailboxWaiters, mailboxID)
			return false, cmn.NotFound, nil
		})
	return result, kind, err
}

//
// want
//

// WantLocal implements spec.md §4.5/§4.6 "wantLocal".
func (t *LocalKV) WantLocal(bucket cmn.Bucket, key cmn.Key, callerWillFetchIfMissing bool, cb CallbackFunc) cmn.Kind {
	kind, _ := t.doColOp(bucket, key, CreateIfMissing, true, nil, func(row *Row, cell *Cell) (bool, cmn.Kind, error) {
		if cell.availability == InLocalMemory {
			info := cell.info()
			nc, ub := row.rowInfo()
			info.RowNumColumns, info.RowUserBytes = nc, ub
			cb(key, cell.ldo.Clone(), info)
			return false, cmn.Ok, nil
		}
		isFirst := cell.dependencyCount() == 0
		cell.callbackWaiters = append(cell.callbackWaiters, cb)
		if callerWillFetchIfMissing && cell.availability != Requested {
			cell.availability = Requested
		}
		if isFirst {
			return false, cmn.NotFound, nil
		}
		return false, cmn.Waiting, nil
	})
	return kind
}

//
// drop
//

// Drop implements spec.md §4.5 "drop".
func (t *LocalKV) Drop(bucket cmn.Bucket, key cmn.Key) cmn.Kind {
	rowWild, colWild := key.IsRowWildcard(), key.IsColWildcard()
	rowPrefix, colPrefix := key.RowPrefix(), key.ColPrefix()

	type candidate struct {
		name string
		row  *Row
	}
	var candidates []candidate

	if rowWild {
		prefix := bucket.Hex() + rowPrefix
		t.mu.RLock()
		t.rows.Ascend(rowEntry{name: prefix}, func(e rowEntry) bool {
			if !strings.HasPrefix(e.name, prefix) {
				return false
			}
			candidates = append(candidates, candidate{name: e.name, row: e.row})
			return true
		})
		t.mu.RUnlock()
	} else {
		full := fullRowName(bucket, key.K1)
		t.mu.RLock()
		e, ok := t.rows.Get(rowEntry{name: full})
		t.mu.RUnlock()
		if !ok {
			return cmn.NotFound
		}
		candidates = append(candidates, candidate{name: full, row: e.row})
	}

	anyRemoved := false
	toRecheck := make([]string, 0, len(candidates))
	for _, c := range candidates {
		c.row.mu.Lock()
		var removed []string
		if colWild {
			if matchesCol("", colPrefix, true) && c.row.colSingle != nil {
				removed = append(removed, "")
			}
			c.row.cols.Scan(func(e colEntry) bool {
				if matchesCol(e.k2, colPrefix, true) {
					removed = append(removed, e.k2)
				}
				return true
			})
		} else if _, ok := c.row.getCell(colPrefix); ok {
			removed = append(removed, colPrefix)
		}
		for _, k2 := range removed {
			c.row.deleteCell(k2)
			anyRemoved = true
		}
		empty := c.row.isEmpty()
		c.row.mu.Unlock()
		if empty {
			toRecheck = append(toRecheck, c.name)
		}
	}

	if len(toRecheck) > 0 {
		t.mu.Lock()
		for _, name := range toRecheck {
			e, ok := t.rows.Get(rowEntry{name: name})
			if !ok {
				continue
			}
			e.row.mu.RLock()
			empty := e.row.isEmpty()
			e.row.mu.RUnlock()
			if empty {
				t.rows.Delete(rowEntry{name: name})
			}
		}
		t.mu.Unlock()
	}

	if anyRemoved {
		nlog.Debugf("drop %s/%v: removed %d candidate row(s)", bucket, key, len(candidates))
		return cmn.Ok
	}
	return cmn.NotFound
}

//
// list
//

// List implements spec.md §4.5 "list", merging in-memory results with
// an optional IOM's results and de-duplicating with a cuckoo filter as
// a fast pre-check ahead of an exact fallback (spec.md's own wording:
// "de-duplication").
func (t *LocalKV) List(bucket cmn.Bucket, pattern cmn.Key, backend iom.Backend) (iom.ObjectCapacities, cmn.Kind) {
	rowWild, colWild := pattern.IsRowWildcard(), pattern.IsColWildcard()
	rowPrefix, colPrefix := pattern.RowPrefix(), pattern.ColPrefix()

	var out iom.ObjectCapacities

	visit := func(rowName string, row *Row) {
		row.mu.RLock()
		row.forEachCol(colPrefix, colWild, func(k2 string, cell *Cell) bool {
			if cell.availability == InLocalMemory {
				out.Keys = append(out.Keys, cmn.NewKey(rowName, k2))
				out.Capacities = append(out.Capacities, int64(cell.userBytes()))
			}
			return true
		})
		row.mu.RUnlock()
	}

	if rowWild {
		prefix := bucket.Hex() + rowPrefix
		t.mu.RLock()
		var rows []rowEntry
		t.rows.Ascend(rowEntry{name: prefix}, func(e rowEntry) bool {
			if !strings.HasPrefix(e.name, prefix) {
				return false
			}
			rows = append(rows, e)
			return true
		})
		t.mu.RUnlock()
		for _, e := range rows {
			visit(e.row.rowName, e.row)
		}
	} else {
		full := fullRowName(bucket, key1(pattern))
		t.mu.RLock()
		e, ok := t.rows.Get(rowEntry{name: full})
		t.mu.RUnlock()
		if ok {
			visit(e.row.rowName, e.row)
		}
	}

	if backend != nil && (colWild || len(out.Keys) == 1) {
		mergeIOMList(&out, bucket, pattern, backend)
	}

	if len(out.Keys) > 0 {
		return out, cmn.Ok
	}
	return out, cmn.NotFound
}

func key1(k cmn.Key) string { return k.K1 }

func mergeIOMList(out *iom.ObjectCapacities, bucket cmn.Bucket, pattern cmn.Key, backend iom.Backend) {
	ioCaps, err := backend.List(bucket, pattern)
	if err != nil {
		return
	}
	filter := cuckoo.NewFilter(1024)
	seen := make(map[cmn.Key]bool, len(out.Keys))
	for _, k := range out.Keys {
		seen[k] = true
		filter.InsertUnique([]byte(k.String()))
	}
	for i, k := range ioCaps.Keys {
		kb := []byte(k.String())
		if filter.Lookup(kb) && seen[k] {
			continue // confirmed duplicate
		}
		out.Keys = append(out.Keys, k)
		out.Capacities = append(out.Capacities, ioCaps.Capacities[i])
		seen[k] = true
		filter.InsertUnique(kb)
	}
}
