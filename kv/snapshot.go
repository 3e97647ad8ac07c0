/*
 * Copyright (c) 2024, Sandia National Laboratories.
 */
package kv

// ColSnapshot is one column's read-only view, used by the status
// package's HTML views (spec.md §6 "status views").
type ColSnapshot struct {
	K2           string
	Availability Availability
	UserBytes    int
	Dependencies int
}

// RowSnapshot is one row's read-only view.
type RowSnapshot struct {
	K1      string
	Columns []ColSnapshot
}

// Snapshot walks every row and column under their respective read
// locks and returns a point-in-time copy safe to render without
// holding the table lock (spec.md §6). It never blocks a concurrent
// writer for longer than a single row's lock hold.
func (t *LocalKV) Snapshot() []RowSnapshot {
	t.mu.RLock()
	rows := make([]rowEntry, 0, t.rows.Len())
	t.rows.Scan(func(e rowEntry) bool {
		rows = append(rows, e)
		return true
	})
	t.mu.RUnlock()

	out := make([]RowSnapshot, 0, len(rows))
	for _, e := range rows {
		row := e.row
		row.mu.RLock()
		rs := RowSnapshot{K1: row.rowName}
		if row.colSingle != nil {
			rs.Columns = append(rs.Columns, colSnapshot("", row.colSingle))
		}
		row.cols.Scan(func(e colEntry) bool {
			rs.Columns = append(rs.Columns, colSnapshot(e.k2, e.cell))
			return true
		})
		row.mu.RUnlock()
		if len(rs.Columns) > 0 {
			out = append(out, rs)
		}
	}
	return out
}

func colSnapshot(k2 string, c *Cell) ColSnapshot {
	return ColSnapshot{
		K2:           k2,
		Availability: c.availability,
		UserBytes:    c.userBytes(),
		Dependencies: c.dependencyCount(),
	}
}

// NumRows reports the current row count.
func (t *LocalKV) NumRows() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.rows.Len()
}
