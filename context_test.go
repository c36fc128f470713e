package qmdd

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestContext(t *testing.T, seed int64) *Context {
	t.Helper()
	ctx, err := New(Options{
		NodeCapacity:   1 << 16,
		WeightCapacity: 1 << 16,
		CacheCapacity:  1 << 16,
		Tolerance:      1e-9,
		NormStrategy:   NormLargest,
		RandSource:     rand.NewSource(seed),
	})
	require.NoError(t, err)
	t.Cleanup(ctx.Shutdown)
	return ctx
}

// --- canonicity / ordering / non-redundancy (spec §8) -----------------

func TestCanonicityIdenticalStatesProduceEqualEdges(t *testing.T) {
	ctx := newTestContext(t, 1)
	a, err := ctx.AllZeroState(3)
	require.NoError(t, err)
	a, err = ctx.Gate(a, H, 0)
	require.NoError(t, err)
	a, err = ctx.CGate(a, X, 0, 1)
	require.NoError(t, err)

	b, err := ctx.AllZeroState(3)
	require.NoError(t, err)
	b, err = ctx.Gate(b, H, 0)
	require.NoError(t, err)
	b, err = ctx.CGate(b, X, 0, 1)
	require.NoError(t, err)

	assert.True(t, EdgesEqual(a, b), "two independently-built identical states must canonicalize to the same edge")
}

func TestNonRedundancyIdentityMatrixGrowsLinearly(t *testing.T) {
	ctx := newTestContext(t, 2)
	m, err := ctx.IdentityMatrix(3)
	require.NoError(t, err)
	// Two-level-per-qubit encoding contributes exactly 3 nodes per qubit
	// (row-select, two column nodes); a dense 2^3x2^3 identity matrix
	// would otherwise cost far more than this linear bound.
	assert.Equal(t, uint64(3*3), ctx.NodeCount(m))
}

func TestOrderingNodesStrictlyIncreaseAlongEveryPath(t *testing.T) {
	ctx := newTestContext(t, 3)
	e, err := ctx.BasisState(3, []int{1, 0, 1})
	require.NoError(t, err)

	var walk func(edge Edge, minVar int)
	walk = func(edge Edge, minVar int) {
		if edge.Target == Terminal {
			return
		}
		n, ok := ctx.Node(edge.Target)
		require.True(t, ok)
		assert.GreaterOrEqual(t, int(n.Var), minVar, "variable order must strictly increase along any path")
		walk(n.Low, int(n.Var)+1)
		walk(n.High, int(n.Var)+1)
	}
	walk(e, 0)
}

// --- probability normalization / round-trip laws (spec §8) ------------

func TestProbabilityNormalizationHolds(t *testing.T) {
	ctx := newTestContext(t, 4)
	e, err := ctx.AllZeroState(3)
	require.NoError(t, err)
	e, err = ctx.Gate(e, H, 0)
	require.NoError(t, err)
	e, err = ctx.Gate(e, H, 1)
	require.NoError(t, err)
	e, err = ctx.Gate(e, H, 2)
	require.NoError(t, err)

	p, err := ctx.ProbSum(e, 3)
	require.NoError(t, err)
	assert.InDelta(t, 1, p, 1e-9)
}

func TestRoundTripPauliXSelfInverse(t *testing.T) {
	ctx := newTestContext(t, 5)
	e, err := ctx.AllZeroState(1)
	require.NoError(t, err)
	e, err = ctx.Gate(e, X, 0)
	require.NoError(t, err)
	e, err = ctx.Gate(e, X, 0)
	require.NoError(t, err)

	zero, err := ctx.AllZeroState(1)
	require.NoError(t, err)
	assert.True(t, EdgesEqual(e, zero), "X*X == I")
}

func TestRoundTripHadamardSelfInverse(t *testing.T) {
	ctx := newTestContext(t, 6)
	e, err := ctx.AllZeroState(1)
	require.NoError(t, err)
	e, err = ctx.Gate(e, H, 0)
	require.NoError(t, err)
	e, err = ctx.Gate(e, H, 0)
	require.NoError(t, err)

	zero, err := ctx.AllZeroState(1)
	require.NoError(t, err)
	assert.True(t, EdgesEqual(e, zero), "H*H == I")
}

func TestRoundTripMatVecWithIdentityIsNoOp(t *testing.T) {
	ctx := newTestContext(t, 7)
	v, err := ctx.AllZeroState(2)
	require.NoError(t, err)
	v, err = ctx.Gate(v, H, 0)
	require.NoError(t, err)

	id, err := ctx.IdentityMatrix(2)
	require.NoError(t, err)

	out, err := ctx.MatVec(id, v, 2)
	require.NoError(t, err)
	assert.True(t, EdgesEqual(v, out))
}

func TestRoundTripPlusIsCommutative(t *testing.T) {
	ctx := newTestContext(t, 8)
	a, err := ctx.BasisState(2, []int{0, 0})
	require.NoError(t, err)
	b, err := ctx.BasisState(2, []int{1, 1})
	require.NoError(t, err)

	ab, err := ctx.Plus(a, b)
	require.NoError(t, err)
	ba, err := ctx.Plus(b, a)
	require.NoError(t, err)
	assert.True(t, EdgesEqual(ab, ba))
}

func TestRoundTripFiveQubitCliffordAndInverse(t *testing.T) {
	ctx := newTestContext(t, 9)
	e, err := ctx.AllZeroState(5)
	require.NoError(t, err)
	for q := 0; q < 5; q++ {
		e, err = ctx.Gate(e, H, q)
		require.NoError(t, err)
	}
	for q := 0; q < 4; q++ {
		e, err = ctx.CGate(e, X, q, q+1)
		require.NoError(t, err)
	}
	// undo in reverse order
	for q := 3; q >= 0; q-- {
		e, err = ctx.CGate(e, X, q, q+1)
		require.NoError(t, err)
	}
	for q := 4; q >= 0; q-- {
		e, err = ctx.Gate(e, H, q)
		require.NoError(t, err)
	}

	zero, err := ctx.AllZeroState(5)
	require.NoError(t, err)
	assert.True(t, EdgesEqual(e, zero), "applying a Clifford sequence then its inverse must return |00000>")
}

// --- boundary cases (spec §8) -------------------------------------------

func TestRkZeroIsIdentity(t *testing.T) {
	ctx := newTestContext(t, 10)
	id, err := ctx.Rk(0)
	require.NoError(t, err)
	e, err := ctx.AllZeroState(1)
	require.NoError(t, err)
	e, err = ctx.Gate(e, H, 0)
	require.NoError(t, err)

	out, err := ctx.Gate(e, id, 0)
	require.NoError(t, err)
	assert.True(t, EdgesEqual(e, out))
}

func TestRkOneIsPauliZ(t *testing.T) {
	ctx := newTestContext(t, 11)
	rk1, err := ctx.Rk(1)
	require.NoError(t, err)
	e, err := ctx.AllZeroState(1)
	require.NoError(t, err)
	e, err = ctx.Gate(e, H, 0)
	require.NoError(t, err)

	viaRk, err := ctx.Gate(e, rk1, 0)
	require.NoError(t, err)
	viaZ, err := ctx.Gate(e, Z, 0)
	require.NoError(t, err)
	assert.True(t, EdgesEqual(viaRk, viaZ))
}

func TestWeightRebuildPreservesAmplitudes(t *testing.T) {
	ctx := newTestContext(t, 12)
	e, err := ctx.AllZeroState(2)
	require.NoError(t, err)
	e, err = ctx.Gate(e, H, 0)
	require.NoError(t, err)
	e, err = ctx.CGate(e, X, 0, 1)
	require.NoError(t, err)

	before, err := ctx.GetAmplitude(e, []int{1, 1})
	require.NoError(t, err)

	translated, err := ctx.RebuildWeights(e)
	require.NoError(t, err)
	require.Len(t, translated, 1)

	after, err := ctx.GetAmplitude(translated[0], []int{1, 1})
	require.NoError(t, err)
	assert.InDelta(t, real(before), real(after), 1e-9)
	assert.InDelta(t, imag(before), imag(after), 1e-9)
}

func TestGateAfterWeightRebuild(t *testing.T) {
	ctx := newTestContext(t, 14)
	e, err := ctx.AllZeroState(2)
	require.NoError(t, err)
	e, err = ctx.Gate(e, H, 0)
	require.NoError(t, err)

	translated, err := ctx.RebuildWeights(e)
	require.NoError(t, err)
	require.Len(t, translated, 1)
	e = translated[0]

	// gate application after a rebuild must see re-interned matrix
	// entries, not slot numbers into the dropped store
	e, err = ctx.Gate(e, H, 0)
	require.NoError(t, err)
	amp, err := ctx.GetAmplitude(e, []int{0, 0})
	require.NoError(t, err)
	assert.InDelta(t, 1, real(amp), 1e-9, "H then rebuild then H must return to |00>")

	e, err = ctx.CGate(e, X, 0, 1)
	require.NoError(t, err)
	p, err := ctx.ProbSum(e, 2)
	require.NoError(t, err)
	assert.InDelta(t, 1, p, 1e-9)
}

func TestCanonicityHoldsAfterCollect(t *testing.T) {
	ctx := newTestContext(t, 15)
	bell, err := ctx.AllZeroState(2)
	require.NoError(t, err)
	bell, err = ctx.Gate(bell, H, 0)
	require.NoError(t, err)
	bell, err = ctx.CGate(bell, X, 0, 1)
	require.NoError(t, err)
	ctx.Protect(bell)

	garbage, err := ctx.AllZeroState(5)
	require.NoError(t, err)
	garbage, err = ctx.Gate(garbage, H, 4)
	require.NoError(t, err)
	_ = garbage

	freed := ctx.Collect()
	require.Greater(t, freed, uint64(0))

	// rebuilding the identical state after the sweep must land on the
	// surviving nodes, not insert duplicates into freed slots
	again, err := ctx.AllZeroState(2)
	require.NoError(t, err)
	again, err = ctx.Gate(again, H, 0)
	require.NoError(t, err)
	again, err = ctx.CGate(again, X, 0, 1)
	require.NoError(t, err)
	assert.True(t, EdgesEqual(bell, again), "canonicity must survive a collection")
}

func TestCollectFreesOnlyUnreachableNodes(t *testing.T) {
	ctx := newTestContext(t, 13)
	survivor, err := ctx.AllZeroState(2)
	require.NoError(t, err)
	survivor, err = ctx.Gate(survivor, H, 0)
	require.NoError(t, err)
	ctx.Protect(survivor)

	garbage, err := ctx.AllZeroState(4)
	require.NoError(t, err)
	garbage, err = ctx.Gate(garbage, H, 3)
	require.NoError(t, err)
	_ = garbage

	freed := ctx.Collect()
	assert.Greater(t, freed, uint64(0))

	survivorAmplitude, err := ctx.GetAmplitude(survivor, []int{0, 0})
	require.NoError(t, err)
	assert.InDelta(t, 1/math.Sqrt2, real(survivorAmplitude), 1e-9)
}

// --- concrete scenarios (spec §8) ---------------------------------------

func TestScenarioHadamardOnOneQubit(t *testing.T) {
	ctx := newTestContext(t, 20)
	e, err := ctx.AllZeroState(1)
	require.NoError(t, err)
	e, err = ctx.Gate(e, H, 0)
	require.NoError(t, err)

	v0, err := ctx.GetAmplitude(e, []int{0})
	require.NoError(t, err)
	v1, err := ctx.GetAmplitude(e, []int{1})
	require.NoError(t, err)
	assert.InDelta(t, 1/math.Sqrt2, real(v0), 1e-9)
	assert.InDelta(t, 1/math.Sqrt2, real(v1), 1e-9)
}

func TestScenarioBellState(t *testing.T) {
	ctx := newTestContext(t, 21)
	e, err := ctx.AllZeroState(2)
	require.NoError(t, err)
	e, err = ctx.Gate(e, H, 0)
	require.NoError(t, err)
	e, err = ctx.CGate(e, X, 0, 1)
	require.NoError(t, err)

	v00, err := ctx.GetAmplitude(e, []int{0, 0})
	require.NoError(t, err)
	v11, err := ctx.GetAmplitude(e, []int{1, 1})
	require.NoError(t, err)
	v01, err := ctx.GetAmplitude(e, []int{0, 1})
	require.NoError(t, err)
	v10, err := ctx.GetAmplitude(e, []int{1, 0})
	require.NoError(t, err)

	assert.InDelta(t, 1/math.Sqrt2, real(v00), 1e-9)
	assert.InDelta(t, 1/math.Sqrt2, real(v11), 1e-9)
	assert.InDelta(t, 0, real(v01), 1e-9)
	assert.InDelta(t, 0, real(v10), 1e-9)
}

func TestScenarioTripleEqualSuperposition(t *testing.T) {
	ctx := newTestContext(t, 22)
	e, err := ctx.AllZeroState(3)
	require.NoError(t, err)
	for q := 0; q < 3; q++ {
		e, err = ctx.Gate(e, H, q)
		require.NoError(t, err)
	}

	for _, bits := range [][]int{{0, 0, 0}, {1, 0, 1}, {1, 1, 1}} {
		v, err := ctx.GetAmplitude(e, bits)
		require.NoError(t, err)
		assert.InDelta(t, 1.0/math.Sqrt(8), real(v), 1e-9)
	}
}

func TestScenarioRepeatedPlusHitsOpCache(t *testing.T) {
	ctx := newTestContext(t, 23)
	a, err := ctx.BasisState(2, []int{0, 1})
	require.NoError(t, err)
	b, err := ctx.BasisState(2, []int{1, 0})
	require.NoError(t, err)

	_, err = ctx.Plus(a, b)
	require.NoError(t, err)
	statsAfterFirst := ctx.TableStats()

	_, err = ctx.Plus(a, b)
	require.NoError(t, err)
	statsAfterSecond := ctx.TableStats()

	assert.Equal(t, statsAfterFirst.CacheLen, statsAfterSecond.CacheLen, "a repeated identical Plus call must hit the cache, not grow it")
}

func TestScenarioGrover3QubitTwoIterations(t *testing.T) {
	ctx := newTestContext(t, 24)
	e, err := ctx.AllZeroState(3)
	require.NoError(t, err)
	for q := 0; q < 3; q++ {
		e, err = ctx.Gate(e, H, q)
		require.NoError(t, err)
	}

	ccz := func(state Edge) (Edge, error) {
		var err error
		state, err = ctx.Gate(state, H, 2)
		if err != nil {
			return Edge{}, err
		}
		state, err = ctx.CGateMulti(state, X, []int{0, 1}, 2)
		if err != nil {
			return Edge{}, err
		}
		return ctx.Gate(state, H, 2)
	}
	diffuse := func(state Edge) (Edge, error) {
		var err error
		for q := 0; q < 3; q++ {
			state, err = ctx.Gate(state, H, q)
			if err != nil {
				return Edge{}, err
			}
			state, err = ctx.Gate(state, X, q)
			if err != nil {
				return Edge{}, err
			}
		}
		state, err = ccz(state)
		if err != nil {
			return Edge{}, err
		}
		for q := 0; q < 3; q++ {
			state, err = ctx.Gate(state, X, q)
			if err != nil {
				return Edge{}, err
			}
			state, err = ctx.Gate(state, H, q)
			if err != nil {
				return Edge{}, err
			}
		}
		return state, nil
	}

	for i := 0; i < 2; i++ {
		e, err = ccz(e)
		require.NoError(t, err)
		e, err = diffuse(e)
		require.NoError(t, err)
	}

	target, err := ctx.GetAmplitude(e, []int{1, 1, 1})
	require.NoError(t, err)
	p := real(target)*real(target) + imag(target)*imag(target)
	assert.Greater(t, p, 0.8, "2 Grover iterations over 3 qubits must amplify the marked state near certainty")
}

// --- shutdown semantics --------------------------------------------------

func TestShutdownRejectsFurtherOperations(t *testing.T) {
	ctx := newTestContext(t, 25)
	ctx.Shutdown()

	_, err := ctx.AllZeroState(1)
	require.Error(t, err)
	var shutdownErr *ErrShutdown
	assert.ErrorAs(t, err, &shutdownErr)
}
