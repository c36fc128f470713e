// Package gc implements the garbage-collection component of the QMDD
// core: stop-the-world mark-from-roots node reclamation (spec §4.8) and
// the separate weight-table rebuild operation (spec §4.9).
package gc

import (
	"github.com/kegliz/qmdd/internal/qmdd/nodetable"
	"github.com/kegliz/qmdd/internal/qmdd/opcache"
	"github.com/kegliz/qmdd/internal/qmdd/weight"
)

// RootSource enumerates every edge that must survive a collection:
// externally held references, protected (pinned) edges, and edges live
// on the in-flight Apply recursion stack. Callers supply one of these per
// Collect call; Collector has no opinion on where roots come from.
type RootSource func(yield func(nodetable.Edge))

// Collector ties a mark-sweep pass to the NodeTable it operates on and
// the OpCache it must invalidate afterward.
type Collector struct {
	Nodes *nodetable.Table
	Cache *opcache.Cache
}

// New returns a Collector for the given tables.
func New(nodes *nodetable.Table, cache *opcache.Cache) *Collector {
	return &Collector{Nodes: nodes, Cache: cache}
}

// Collect runs one stop-the-world mark-sweep cycle: every node reachable
// from roots is marked, everything else is swept, and the OpCache is
// flushed if anything was freed (a freed node's handle can be reused by a
// later MakeEdge, so any stale cache entry referencing it would
// misattribute results). Callers MUST ensure no Apply call is concurrently
// in flight — GC requires quiescence (spec §5).
func (c *Collector) Collect(roots RootSource) uint64 {
	c.Nodes.UnmarkAll()
	roots(func(e nodetable.Edge) {
		c.markNode(e.Target)
	})
	freed := c.Nodes.Sweep()
	if freed > 0 {
		c.Cache.Flush()
	}
	return freed
}

func (c *Collector) markNode(h nodetable.Handle) {
	if h == nodetable.Terminal {
		return
	}
	if !c.Nodes.Mark(h) {
		return // already marked, or stale handle — prune traversal either way
	}
	_, low, high, err := c.Nodes.Get(h)
	if err != nil {
		return
	}
	c.markNode(low.Target)
	c.markNode(high.Target)
}

// RebuildWeights implements the weight-table rebuild operation (spec
// §4.9): a fresh WeightStore is allocated, every weight referenced by a
// live node is re-interned into it, and every live node's child-edge
// weight handles are rewritten in place to the new handles — node
// identity and position in the NodeTable are untouched, only the weight
// handles they carry change. The OpCache is flushed unconditionally since
// every cached edge embeds now-stale weight handles.
//
// This is a distinct operation from Collect: it does not touch node
// reachability and runs even when no node is garbage, because its purpose
// is reclaiming weight-table slots (the weight table has no mark-sweep of
// its own). Callers holding any
// externally-cached edge must re-derive its weight against the returned
// Store; RootSource-supplied roots are not enough since edges themselves
// are immutable values, not rewritten in place.
func (c *Collector) RebuildWeights(oldStore *weight.Store, opts weight.Options) (*weight.Store, error) {
	newStore := weight.New(opts)

	var firstErr error
	c.Nodes.ForEachLive(func(h nodetable.Handle, _ uint32, low, high nodetable.Edge) {
		if firstErr != nil {
			return
		}
		lowVal, err := oldStore.Get(low.Weight)
		if err != nil {
			firstErr = err
			return
		}
		highVal, err := oldStore.Get(high.Weight)
		if err != nil {
			firstErr = err
			return
		}
		newLowW, err := newStore.Intern(lowVal)
		if err != nil {
			firstErr = err
			return
		}
		newHighW, err := newStore.Intern(highVal)
		if err != nil {
			firstErr = err
			return
		}
		if err := c.Nodes.RewriteWeights(h, newLowW, newHighW); err != nil {
			firstErr = err
		}
	})
	if firstErr != nil {
		return nil, firstErr
	}

	c.Cache.Flush()
	return newStore, nil
}

// RewriteRootWeight re-interns an externally-held root edge's weight
// against newStore after a RebuildWeights call, returning the
// equivalent edge under the new store. The node-table target is
// unaffected by a rebuild and is returned unchanged.
func RewriteRootWeight(oldStore, newStore *weight.Store, e nodetable.Edge) (nodetable.Edge, error) {
	val, err := oldStore.Get(e.Weight)
	if err != nil {
		return nodetable.Edge{}, err
	}
	w, err := newStore.Intern(val)
	if err != nil {
		return nodetable.Edge{}, err
	}
	return nodetable.Edge{Weight: w, Target: e.Target}, nil
}
