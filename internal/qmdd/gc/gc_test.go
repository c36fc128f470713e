package gc

import (
	"testing"

	"github.com/kegliz/qmdd/internal/qmdd/canon"
	"github.com/kegliz/qmdd/internal/qmdd/nodetable"
	"github.com/kegliz/qmdd/internal/qmdd/normalizer"
	"github.com/kegliz/qmdd/internal/qmdd/opcache"
	"github.com/kegliz/qmdd/internal/qmdd/weight"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testRig struct {
	nodes *nodetable.Table
	w     *weight.Store
	cache *opcache.Cache
	b     *canon.Builder
	c     *Collector
}

func newTestRig(t *testing.T) testRig {
	t.Helper()
	w := weight.New(weight.Options{Capacity: 1 << 10, Tolerance: 1e-9})
	n := nodetable.New(nodetable.Options{Capacity: 1 << 10})
	cache := opcache.New()
	b := canon.New(n, w, normalizer.Largest)
	return testRig{nodes: n, w: w, cache: cache, b: b, c: New(n, cache)}
}

func (r testRig) basisState(t *testing.T, n int, bits []int) nodetable.Edge {
	t.Helper()
	e := nodetable.Edge{Weight: r.w.One, Target: nodetable.Terminal}
	zero := r.b.ZeroEdge()
	for level := n - 1; level >= 0; level-- {
		var err error
		if bits[level] == 0 {
			e, err = r.b.MakeEdge(uint32(level), e, zero)
		} else {
			e, err = r.b.MakeEdge(uint32(level), zero, e)
		}
		require.NoError(t, err)
	}
	return e
}

func TestCollectKeepsReachableNodes(t *testing.T) {
	r := newTestRig(t)
	root := r.basisState(t, 2, []int{1, 0})
	before := r.nodes.Count()
	require.Greater(t, before, uint64(0))

	freed := r.c.Collect(func(yield func(nodetable.Edge)) { yield(root) })

	assert.Equal(t, uint64(0), freed, "the only root is reachable, nothing should be freed")
	assert.Equal(t, before, r.nodes.Count())
}

func TestCollectSweepsUnreachableNodes(t *testing.T) {
	r := newTestRig(t)
	garbage := r.basisState(t, 2, []int{1, 1})
	_ = garbage
	survivor := r.basisState(t, 1, []int{0})
	before := r.nodes.Count()

	freed := r.c.Collect(func(yield func(nodetable.Edge)) { yield(survivor) })

	assert.Greater(t, freed, uint64(0), "the garbage edge's nodes must be swept")
	assert.Less(t, r.nodes.Count(), before)
}

func TestCollectFlushesCacheOnlyWhenSomethingFreed(t *testing.T) {
	r := newTestRig(t)
	root := r.basisState(t, 1, []int{0})
	key := opcache.Key{Op: 1, A: root}
	r.cache.Put(key, root)

	freed := r.c.Collect(func(yield func(nodetable.Edge)) { yield(root) })
	require.Equal(t, uint64(0), freed)

	_, ok := r.cache.Get(key)
	assert.True(t, ok, "cache must survive a collection that freed nothing")
}

func TestCollectFlushesCacheWhenNodesFreed(t *testing.T) {
	r := newTestRig(t)
	garbage := r.basisState(t, 2, []int{1, 1})
	survivor := r.basisState(t, 1, []int{0})
	key := opcache.Key{Op: 1, A: garbage}
	r.cache.Put(key, garbage)

	freed := r.c.Collect(func(yield func(nodetable.Edge)) { yield(survivor) })
	require.Greater(t, freed, uint64(0))

	_, ok := r.cache.Get(key)
	assert.False(t, ok, "cache must be flushed once any node is reclaimed")
}

func TestRebuildWeightsPreservesAmplitudes(t *testing.T) {
	r := newTestRig(t)
	hw, _ := r.w.FindOrPut(complex(0.6, 0.2))
	low := nodetable.Edge{Weight: r.w.One, Target: nodetable.Terminal}
	high := nodetable.Edge{Weight: hw, Target: nodetable.Terminal}
	root, err := r.b.MakeEdge(0, low, high)
	require.NoError(t, err)

	newStore, err := r.c.RebuildWeights(r.w, weight.Options{Capacity: 1 << 10, Tolerance: 1e-9})
	require.NoError(t, err)

	newRoot, err := RewriteRootWeight(r.w, newStore, root)
	require.NoError(t, err)

	_, newLow, newHigh, err := r.nodes.Get(newRoot.Target)
	require.NoError(t, err)

	rootVal, err := newStore.Get(newRoot.Weight)
	require.NoError(t, err)
	assert.InDelta(t, 1, real(rootVal), 1e-9)

	lowVal, err := newStore.Get(newLow.Weight)
	require.NoError(t, err)
	assert.InDelta(t, 1, real(lowVal), 1e-9)

	highVal, err := newStore.Get(newHigh.Weight)
	require.NoError(t, err)
	assert.InDelta(t, 0.6, real(highVal), 1e-9)
	assert.InDelta(t, 0.2, imag(highVal), 1e-9)
}

func TestRebuildWeightsFlushesCache(t *testing.T) {
	r := newTestRig(t)
	root := r.basisState(t, 1, []int{0})
	key := opcache.Key{Op: 1, A: root}
	r.cache.Put(key, root)

	_, err := r.c.RebuildWeights(r.w, weight.Options{Capacity: 1 << 10, Tolerance: 1e-9})
	require.NoError(t, err)

	_, ok := r.cache.Get(key)
	assert.False(t, ok, "a weight rebuild invalidates every cached edge unconditionally")
}
