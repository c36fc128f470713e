// Package opcache implements the OpCache component of the QMDD core: a
// lossy memoization table for recursive Apply kernels, keyed by opcode
// plus up to three edge operands and a packed integer parameter word.
//
// The generation-stamped entry design lets a wholesale invalidation (GC
// sweep, weight-table rebuild, dynamic-gate-id wraparound — spec §4.8,
// §4.9, §4.7) be an O(1) atomic bump instead of a full table clear, while
// still satisfying "eviction never returns a stale edge after a GC": a
// reader that observes an entry whose generation doesn't match the
// current generation treats it as a miss, which is the idiomatic Go
// rendering of the spec's "readers may observe torn entries and MUST
// validate" requirement (§5).
package opcache

import (
	"sync"
	"sync/atomic"

	"github.com/kegliz/qmdd/internal/qmdd/nodetable"
)

// Key identifies one memoized subproblem. Params packs any small integer
// arguments the operation needs beyond its edge operands (gate id, qubit
// indices, recursion level).
type Key struct {
	Op     uint8
	A, B, C nodetable.Edge
	Params uint64
}

type entry struct {
	gen    uint64
	result nodetable.Edge
}

// Cache is the concurrent, generation-versioned operation cache.
type Cache struct {
	m   sync.Map // Key -> *entry
	gen atomic.Uint64
	len atomic.Int64
}

// New returns an empty Cache.
func New() *Cache {
	c := &Cache{}
	c.gen.Store(1)
	return c
}

// Get returns the cached result for key, if any and still current.
func (c *Cache) Get(key Key) (nodetable.Edge, bool) {
	v, ok := c.m.Load(key)
	if !ok {
		return nodetable.Edge{}, false
	}
	e := v.(*entry)
	if e.gen != c.gen.Load() {
		return nodetable.Edge{}, false // stale generation: treat as miss
	}
	return e.result, true
}

// Put records result for key. Lossy: callers must not rely on a
// subsequent Get succeeding.
func (c *Cache) Put(key Key, result nodetable.Edge) {
	_, loaded := c.m.LoadOrStore(key, &entry{gen: c.gen.Load(), result: result})
	if !loaded {
		c.len.Add(1)
		return
	}
	c.m.Store(key, &entry{gen: c.gen.Load(), result: result})
}

// Flush invalidates every cached entry in O(1) by bumping the generation
// counter. Required after: node GC sweep, weight-table rebuild, and
// dynamic gate-id pool wraparound (spec §4.7/§4.8/§4.9).
func (c *Cache) Flush() {
	c.gen.Add(1)
	c.len.Store(0)
}

// Len returns an approximate live-entry count (for introspection/stats;
// not exact across concurrent Put/Flush).
func (c *Cache) Len() int64 { return c.len.Load() }
