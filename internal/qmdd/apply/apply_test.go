package apply

import (
	"testing"

	"github.com/kegliz/qmdd/internal/qmdd/canon"
	"github.com/kegliz/qmdd/internal/qmdd/gatelib"
	"github.com/kegliz/qmdd/internal/qmdd/nodetable"
	"github.com/kegliz/qmdd/internal/qmdd/normalizer"
	"github.com/kegliz/qmdd/internal/qmdd/opcache"
	"github.com/kegliz/qmdd/internal/qmdd/weight"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testRig struct {
	k *Kernels
	b *canon.Builder
	w *weight.Store
}

func newTestRig(t *testing.T, strategy normalizer.Strategy) testRig {
	t.Helper()
	w := weight.New(weight.Options{Capacity: 1 << 14, Tolerance: 1e-9})
	n := nodetable.New(nodetable.Options{Capacity: 1 << 14})
	c := opcache.New()
	b := canon.New(n, w, strategy)
	gates, err := gatelib.New(w)
	require.NoError(t, err)
	k := New(n, w, c, b, gates)
	return testRig{k: k, b: b, w: w}
}

// basisState builds the n-qubit computational-basis state named by bits,
// mirroring context.go's BasisState without importing the façade package
// (which would create an import cycle back into apply).
func (r testRig) basisState(t *testing.T, n int, bits []int) Edge {
	t.Helper()
	e := Edge{Weight: r.w.One, Target: nodetable.Terminal}
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

func (r testRig) amplitudeAtZero(t *testing.T, e Edge, n int, bits []int) complex128 {
	t.Helper()
	cur := e
	for level := 0; level < n; level++ {
		if cur.Target == nodetable.Terminal {
			if bits[level] == 0 {
				continue
			}
			return 0
		}
		v, low, high, err := r.k.Nodes.Get(cur.Target)
		require.NoError(t, err)
		require.Equal(t, uint32(level), v)
		var next nodetable.Edge
		if bits[level] == 0 {
			next = low
		} else {
			next = high
		}
		nw, err := r.w.Mul(cur.Weight, next.Weight)
		require.NoError(t, err)
		cur = nodetable.Edge{Weight: nw, Target: next.Target}
	}
	val, err := r.w.Get(cur.Weight)
	require.NoError(t, err)
	return val
}

func TestGateXFlipsBasisState(t *testing.T) {
	r := newTestRig(t, normalizer.Largest)
	zero := r.basisState(t, 1, []int{0})

	one, err := r.k.Gate(zero, gatelib.X, 0)
	require.NoError(t, err)

	v := r.amplitudeAtZero(t, one, 1, []int{1})
	assert.InDelta(t, 1, real(v), 1e-9)
	v0 := r.amplitudeAtZero(t, one, 1, []int{0})
	assert.InDelta(t, 0, real(v0), 1e-9)
}

func TestGateHTwiceIsIdentity(t *testing.T) {
	r := newTestRig(t, normalizer.Largest)
	zero := r.basisState(t, 1, []int{0})

	h1, err := r.k.Gate(zero, gatelib.H, 0)
	require.NoError(t, err)
	h2, err := r.k.Gate(h1, gatelib.H, 0)
	require.NoError(t, err)

	v0 := r.amplitudeAtZero(t, h2, 1, []int{0})
	v1 := r.amplitudeAtZero(t, h2, 1, []int{1})
	assert.InDelta(t, 1, real(v0), 1e-9)
	assert.InDelta(t, 0, real(v1), 1e-9)
}

func TestGateOnSecondQubitOfThreeLeavesOthersAlone(t *testing.T) {
	r := newTestRig(t, normalizer.Largest)
	base := r.basisState(t, 3, []int{0, 0, 0})

	flipped, err := r.k.Gate(base, gatelib.X, 1)
	require.NoError(t, err)

	v := r.amplitudeAtZero(t, flipped, 3, []int{0, 1, 0})
	assert.InDelta(t, 1, real(v), 1e-9)
}

func TestCGateControlZeroLeavesTargetUnchanged(t *testing.T) {
	r := newTestRig(t, normalizer.Largest)
	base := r.basisState(t, 2, []int{0, 0}) // control=0

	out, err := r.k.CGate(base, gatelib.X, 0, 1)
	require.NoError(t, err)

	v := r.amplitudeAtZero(t, out, 2, []int{0, 0})
	assert.InDelta(t, 1, real(v), 1e-9)
}

func TestCGateControlOneFlipsTarget(t *testing.T) {
	r := newTestRig(t, normalizer.Largest)
	base := r.basisState(t, 2, []int{1, 0}) // control=1

	out, err := r.k.CGate(base, gatelib.X, 0, 1)
	require.NoError(t, err)

	v := r.amplitudeAtZero(t, out, 2, []int{1, 1})
	assert.InDelta(t, 1, real(v), 1e-9)
}

func TestCGateControlBelowTargetFlipsOnSetControl(t *testing.T) {
	r := newTestRig(t, normalizer.Largest)
	base := r.basisState(t, 2, []int{0, 1}) // control on qubit 1 = 1

	out, err := r.k.CGate(base, gatelib.X, 1, 0)
	require.NoError(t, err)

	v := r.amplitudeAtZero(t, out, 2, []int{1, 1})
	assert.InDelta(t, 1, real(v), 1e-9, "CX with control below target must flip the target")
}

func TestCGateControlBelowTargetIdleOnClearControl(t *testing.T) {
	r := newTestRig(t, normalizer.Largest)
	base := r.basisState(t, 2, []int{1, 0}) // control on qubit 1 = 0

	out, err := r.k.CGate(base, gatelib.X, 1, 0)
	require.NoError(t, err)

	assert.Equal(t, base, out, "clear control must leave the state's canonical edge unchanged")
}

func TestCGateMultiControlsStraddlingTarget(t *testing.T) {
	r := newTestRig(t, normalizer.Largest)
	base := r.basisState(t, 3, []int{1, 0, 1}) // controls 0 and 2 set

	out, err := r.k.CGateMulti(base, gatelib.X, []uint32{0, 2}, 1)
	require.NoError(t, err)
	v := r.amplitudeAtZero(t, out, 3, []int{1, 1, 1})
	assert.InDelta(t, 1, real(v), 1e-9, "target between the controls must flip when both are 1")

	partial := r.basisState(t, 3, []int{1, 0, 0}) // only the upper control set
	out2, err := r.k.CGateMulti(partial, gatelib.X, []uint32{0, 2}, 1)
	require.NoError(t, err)
	assert.Equal(t, partial, out2)
}

func TestPlusIsCommutative(t *testing.T) {
	r := newTestRig(t, normalizer.Largest)
	a := r.basisState(t, 1, []int{0})
	b := r.basisState(t, 1, []int{1})

	ab, err := r.k.Plus(a, b)
	require.NoError(t, err)
	ba, err := r.k.Plus(b, a)
	require.NoError(t, err)
	assert.Equal(t, ab, ba)
}

func TestPlusCachesRepeatedCalls(t *testing.T) {
	r := newTestRig(t, normalizer.Largest)
	a := r.basisState(t, 2, []int{0, 0})
	b := r.basisState(t, 2, []int{1, 1})

	first, err := r.k.Plus(a, b)
	require.NoError(t, err)
	lenAfterFirst := r.k.Cache.Len()

	second, err := r.k.Plus(a, b)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, lenAfterFirst, r.k.Cache.Len(), "a cache hit must not grow the cache")
}

func TestCGateMultiAllControlsRequired(t *testing.T) {
	r := newTestRig(t, normalizer.Largest)
	base := r.basisState(t, 3, []int{1, 0, 0}) // only one of two controls set

	out, err := r.k.CGateMulti(base, gatelib.X, []uint32{0, 1}, 2)
	require.NoError(t, err)
	v := r.amplitudeAtZero(t, out, 3, []int{1, 0, 0})
	assert.InDelta(t, 1, real(v), 1e-9, "target must be untouched when not all controls are 1")

	base2 := r.basisState(t, 3, []int{1, 1, 0})
	out2, err := r.k.CGateMulti(base2, gatelib.X, []uint32{0, 1}, 2)
	require.NoError(t, err)
	v2 := r.amplitudeAtZero(t, out2, 3, []int{1, 1, 1})
	assert.InDelta(t, 1, real(v2), 1e-9, "target must flip when all controls are 1")
}
