// Package resource holds the continuously mutated capacity table. It is one
// of the two shared mutable stores in the pipeline; everything else works on
// snapshots taken here.
package resource

import (
	"sync"

	"github.com/m-mizutani/triagent/pkg/model"
)

// Table keeps one logical row per unit. Updates are monotonic per unit by
// timestamp; snapshots are deep copies so readers never race writers.
type Table struct {
	mu   sync.RWMutex
	rows map[model.UnitID]*model.ResourceState
}

// New creates an empty capacity table
func New() *Table {
	return &Table{
		rows: make(map[model.UnitID]*model.ResourceState),
	}
}

// ApplyUpdate installs a capacity row. An update with a timestamp not newer
// than the stored row is discarded and reported as false; out-of-order
// delivery is expected and is not an error.
func (t *Table) ApplyUpdate(state *model.ResourceState) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if cur, ok := t.rows[state.UnitID]; ok && !state.UpdatedAt.After(cur.UpdatedAt) {
		return false
	}
	t.rows[state.UnitID] = state.Clone()
	return true
}

// Snapshot returns a consistent copy of all current rows. The returned map
// and rows are owned by the caller.
func (t *Table) Snapshot() map[model.UnitID]*model.ResourceState {
	t.mu.RLock()
	defer t.mu.RUnlock()

	snap := make(map[model.UnitID]*model.ResourceState, len(t.rows))
	for id, row := range t.rows {
		snap[id] = row.Clone()
	}
	return snap
}

// Len returns the number of known units
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rows)
}
