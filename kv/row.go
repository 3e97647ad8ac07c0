/*
 * Copyright (c) 2024, Sandia National Laboratories.
 */
package kv

import (
	"sync"

	"github.com/tidwall/btree"
)

// colEntry is the ordered-map item for a row's column set, keyed by K2.
type colEntry struct {
	k2   string
	cell *Cell
}

func colLess(a, b colEntry) bool { return a.k2 < b.k2 }

// Row is LocalKVRow (spec.md §3): an ordered column set for one row,
// with a fast-path "single unnamed column" slot that coexists with the
// ordered-column map. Per the resolved Open Question (SPEC_FULL.md §9),
// colSingle matches the empty K2 exactly and "" is never also inserted
// into cols.
type Row struct {
	mu sync.RWMutex

	rowName  string // K1 only; bucket qualification lives in the table's key
	colSingle *Cell
	cols      *btree.BTreeG[colEntry]
}

func newRow(rowName string) *Row {
	return &Row{rowName: rowName, cols: btree.NewBTreeG(colLess)}
}

// getCell returns the cell for k2 without creating it.
func (r *Row) getCell(k2 string) (*Cell, bool) {
	if k2 == "" {
		if r.colSingle == nil {
			return nil, false
		}
		return r.colSingle, true
	}
	e, ok := r.cols.Get(colEntry{k2: k2})
	if !ok {
		return nil, false
	}
	return e.cell, true
}

// getOrCreateCell returns the cell for k2, creating an empty one if
// absent.
func (r *Row) getOrCreateCell(k2 string) *Cell {
	if cell, ok := r.getCell(k2); ok {
		return cell
	}
	cell := newCell()
	if k2 == "" {
		r.colSingle = cell
	} else {
		r.cols.Set(colEntry{k2: k2, cell: cell})
	}
	return cell
}

// deleteCell removes the column entirely (used by drop).
func (r *Row) deleteCell(k2 string) {
	if k2 == "" {
		r.colSingle = nil
		return
	}
	r.cols.Delete(colEntry{k2: k2})
}

// isEmpty reports whether both slots are vacant (spec.md §3 "row is
// empty iff both slots vacant").
func (r *Row) isEmpty() bool {
	return r.colSingle == nil && r.cols.Len() == 0
}

// numColumns is (colSingle? 1:0) + cols.len() (spec.md §3).
func (r *Row) numColumns() int {
	n := r.cols.Len()
	if r.colSingle != nil {
		n++
	}
	return n
}

// userBytes sums cell.UserSize() over InLocalMemory cells (spec.md §3
// "row_user_bytes").
func (r *Row) userBytes() int {
	total := 0
	if r.colSingle != nil {
		total += r.colSingle.userBytes()
	}
	r.cols.Scan(func(e colEntry) bool {
		total += e.cell.userBytes()
		return true
	})
	return total
}

// rowInfo returns (numColumns, userBytes) atomically under the caller's
// held lock, used to populate ObjectInfo.RowNumColumns/RowUserBytes.
func (r *Row) rowInfo() (int, int) { return r.numColumns(), r.userBytes() }

// forEachCol visits every (k2, cell) pair matching the (possibly
// wildcarded) column pattern, in K2 order, with colSingle folded in at
// its correct sort position ("" sorts first).
func (r *Row) forEachCol(colPrefix string, colWildcard bool, visit func(k2 string, cell *Cell) bool) {
	if matchesCol("", colPrefix, colWildcard) && r.colSingle != nil {
		if !visit("", r.colSingle) {
			return
		}
	}
	r.cols.Scan(func(e colEntry) bool {
		if !matchesCol(e.k2, colPrefix, colWildcard) {
			// cols is sorted; once we've passed the prefix range for a
			// wildcard scan, nothing further can match.
			if colWildcard && e.k2 > colPrefix && len(e.k2) >= len(colPrefix) {
				return false
			}
			return true
		}
		return visit(e.k2, e.cell)
	})
}

func matchesCol(k2, pattern string, wildcard bool) bool {
	if wildcard {
		return len(k2) >= len(pattern) && k2[:len(pattern)] == pattern
	}
	return k2 == pattern
}
