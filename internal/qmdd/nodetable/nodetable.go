// Package nodetable implements the NodeTable component of the QMDD core:
// a concurrent unique table of (var, low, high) triples, with reachability
// marking for the mark-sweep GC in the gc package.
//
// Structurally this generalizes the teacher's circuit DAG unique-node map
// (qc/dag/dag.go's map[NodeID]*Node + atomic ID counter) from "one node per
// gate application" to "one node per distinct variable decomposition",
// keyed on the full (var, low, high) triple as q-sylvan's llmsset_lookup
// does for QDD nodes (src/sylvan_qdd.c, qdd_makenode/_qdd_makenode).
package nodetable

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/kegliz/qmdd/internal/qmdd/weight"
)

// Handle references a node, or the distinguished Terminal sentinel (0).
type Handle uint64

// Terminal is the unique leaf; every complete path ends here.
const Terminal Handle = 0

// Edge is the (weight, target) reference unit exposed to clients; it is a
// value type — copying an Edge is free, and an Edge carries no ownership
// of the node/weight it names.
type Edge struct {
	Weight weight.Handle
	Target Handle
}

// ErrTableFull is returned by LookupOrInsert when no free slot is found
// within the bounded probe sequence.
type ErrTableFull struct{ Capacity uint64 }

func (e *ErrTableFull) Error() string {
	return fmt.Sprintf("nodetable: table full (capacity %d)", e.Capacity)
}

// ErrInvalidHandle is returned by Get for a stale or out-of-range handle.
type ErrInvalidHandle struct{ Handle Handle }

func (e *ErrInvalidHandle) Error() string {
	return fmt.Sprintf("nodetable: invalid handle %d", e.Handle)
}

const numStripes = 256

type nodeKey struct {
	v      uint32
	lowW   weight.Handle
	lowT   Handle
	highW  weight.Handle
	highT  Handle
}

// Slot states: empty slots have never held a node and terminate probe
// chains; tombstones are slots freed by Sweep that later inserts probe
// through (and reclaim), so a surviving node further down an open-
// addressing chain stays findable — deleting in place would let a
// LookupOrInsert stop at the hole and create a duplicate, breaking
// invariant 3 (unique nodes).
const (
	slotEmpty uint32 = iota
	slotOccupied
	slotTombstone
)

type slot struct {
	state  uint32
	marked uint32
	key    nodeKey
}

// Table is the concurrent unique-node table.
type Table struct {
	mu         [numStripes]sync.Mutex
	slots      []slot
	probeBound int
	count      atomic.Uint64
}

// Options configures a new Table.
type Options struct {
	Capacity   uint64
	ProbeBound int
}

// New allocates an empty Table.
func New(opts Options) *Table {
	if opts.Capacity == 0 {
		opts.Capacity = 1 << 20
	}
	if opts.ProbeBound <= 0 {
		opts.ProbeBound = 64
	}
	return &Table{
		slots:      make([]slot, opts.Capacity),
		probeBound: opts.ProbeBound,
	}
}

// Count returns the number of occupied (live) node slots.
func (t *Table) Count() uint64 { return t.count.Load() }

// Capacity returns the table's fixed slot count.
func (t *Table) Capacity() uint64 { return uint64(len(t.slots)) }

func (t *Table) hash(k nodeKey) uint64 {
	h := uint64(k.v) * 0x9E3779B97F4A7C15
	h ^= uint64(k.lowW)*0xC2B2AE3D27D4EB4F + uint64(k.lowT)
	h ^= uint64(k.highW)*0x165667B19E3779F9 + uint64(k.highT)<<1
	h ^= h >> 33
	h *= 0xff51afd7ed558ccd
	h ^= h >> 33
	return h % uint64(len(t.slots))
}

func (t *Table) stripe(idx uint64) *sync.Mutex { return &t.mu[idx%numStripes] }

// LookupOrInsert returns the handle of the unique node for (var, low,
// high), creating it if none exists. Safe under parallel callers.
//
// The probe scan runs the full chain before inserting: an existing key
// may sit past any number of tombstones, so only an empty slot (or the
// probe bound) proves absence. New nodes reclaim the first tombstone
// seen, falling back to the terminating empty slot. Because the scan
// releases each bucket lock before claiming, the claim re-checks the
// slot and the whole probe restarts if a concurrent insert of a
// different key took it first; same-key racers converge on the same
// slot and get the same handle.
func (t *Table) LookupOrInsert(v uint32, low, high Edge) (Handle, error) {
	k := nodeKey{v: v, lowW: low.Weight, lowT: low.Target, highW: high.Weight, highT: high.Target}
	start := t.hash(k)
	n := uint64(len(t.slots))

	for {
		firstTomb := int64(-1)
		var emptyIdx uint64
		sawEmpty := false

		for step := 0; step < t.probeBound && !sawEmpty; step++ {
			idx := (start + uint64(step)) % n
			mu := t.stripe(idx)
			mu.Lock()
			s := &t.slots[idx]
			switch s.state {
			case slotOccupied:
				if s.key == k {
					mu.Unlock()
					return Handle(idx + 1), nil
				}
			case slotTombstone:
				if firstTomb < 0 {
					firstTomb = int64(idx)
				}
			case slotEmpty:
				emptyIdx = idx
				sawEmpty = true
			}
			mu.Unlock()
		}

		target := emptyIdx
		if firstTomb >= 0 {
			target = uint64(firstTomb)
		} else if !sawEmpty {
			return 0, &ErrTableFull{Capacity: t.Capacity()}
		}
		if h, ok := t.claim(target, k); ok {
			return h, nil
		}
	}
}

// claim installs k into a slot the probe scan saw as free, unless a
// concurrent insert took it first. ok=false means a different key now
// holds the slot and the caller must rescan.
func (t *Table) claim(idx uint64, k nodeKey) (Handle, bool) {
	mu := t.stripe(idx)
	mu.Lock()
	defer mu.Unlock()
	s := &t.slots[idx]
	switch s.state {
	case slotEmpty, slotTombstone:
		s.key = k
		s.state = slotOccupied
		s.marked = 0
		t.count.Add(1)
		return Handle(idx + 1), true
	case slotOccupied:
		if s.key == k {
			return Handle(idx + 1), true
		}
	}
	return 0, false
}

// Get returns the (var, low, high) triple for h.
func (t *Table) Get(h Handle) (v uint32, low, high Edge, err error) {
	if h == Terminal || uint64(h) > uint64(len(t.slots)) {
		return 0, Edge{}, Edge{}, &ErrInvalidHandle{Handle: h}
	}
	idx := uint64(h) - 1
	mu := t.stripe(idx)
	mu.Lock()
	defer mu.Unlock()
	s := &t.slots[idx]
	if s.state != slotOccupied {
		return 0, Edge{}, Edge{}, &ErrInvalidHandle{Handle: h}
	}
	k := s.key
	return k.v, Edge{Weight: k.lowW, Target: k.lowT}, Edge{Weight: k.highW, Target: k.highT}, nil
}

// Mark sets the reachability bit for h, returning true iff it was
// previously unset — callers use this to prune DAG traversal during the
// GC mark phase.
func (t *Table) Mark(h Handle) bool {
	if h == Terminal {
		return false
	}
	idx := uint64(h) - 1
	if idx >= uint64(len(t.slots)) {
		return false
	}
	mu := t.stripe(idx)
	mu.Lock()
	defer mu.Unlock()
	s := &t.slots[idx]
	if s.state != slotOccupied || s.marked != 0 {
		return false
	}
	s.marked = 1
	return true
}

// IsMarked reports whether h is currently marked reachable.
func (t *Table) IsMarked(h Handle) bool {
	if h == Terminal {
		return true
	}
	idx := uint64(h) - 1
	if idx >= uint64(len(t.slots)) {
		return false
	}
	mu := t.stripe(idx)
	mu.Lock()
	defer mu.Unlock()
	return t.slots[idx].state == slotOccupied && t.slots[idx].marked != 0
}

// UnmarkAll clears every node's reachability bit. Must only be called
// while no Apply operation is in flight (GC quiescence, spec §5).
func (t *Table) UnmarkAll() {
	for i := range t.slots {
		mu := t.stripe(uint64(i))
		mu.Lock()
		t.slots[i].marked = 0
		mu.Unlock()
	}
}

// Sweep deallocates every unmarked, occupied node and returns the number
// of nodes freed. Freed slots become tombstones, not empties, so probe
// chains through them stay intact for the survivors behind them; later
// inserts reclaim tombstones. Must only be called under the same
// quiescence requirement as UnmarkAll.
func (t *Table) Sweep() uint64 {
	var freed uint64
	for i := range t.slots {
		mu := t.stripe(uint64(i))
		mu.Lock()
		s := &t.slots[i]
		if s.state == slotOccupied && s.marked == 0 {
			*s = slot{state: slotTombstone}
			freed++
		}
		mu.Unlock()
	}
	if freed > 0 {
		t.count.Add(^(freed - 1)) // atomic subtract
	}
	return freed
}

// ForEachLive calls fn for every currently occupied node handle. Used by
// the weight-table rebuild (spec §4.9) to rewrite child-edge weights.
func (t *Table) ForEachLive(fn func(h Handle, v uint32, low, high Edge)) {
	for i := range t.slots {
		mu := t.stripe(uint64(i))
		mu.Lock()
		s := t.slots[i]
		mu.Unlock()
		if s.state == slotOccupied {
			fn(Handle(i+1), s.key.v, Edge{Weight: s.key.lowW, Target: s.key.lowT}, Edge{Weight: s.key.highW, Target: s.key.highT})
		}
	}
}

// RewriteWeights replaces the stored (lowW, highW) handles for node h.
// Used exclusively by the weight-table rebuild to renumber handles
// in-place without disturbing the node's identity/position in the table.
func (t *Table) RewriteWeights(h Handle, lowW, highW weight.Handle) error {
	idx := uint64(h) - 1
	if h == Terminal || idx >= uint64(len(t.slots)) {
		return &ErrInvalidHandle{Handle: h}
	}
	mu := t.stripe(idx)
	mu.Lock()
	defer mu.Unlock()
	s := &t.slots[idx]
	if s.state != slotOccupied {
		return &ErrInvalidHandle{Handle: h}
	}
	s.key.lowW = lowW
	s.key.highW = highW
	return nil
}
