package nodetable

import (
	"testing"

	"github.com/kegliz/qmdd/internal/qmdd/weight"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTable(t *testing.T) *Table {
	t.Helper()
	return New(Options{Capacity: 1 << 10})
}

func TestLookupOrInsertDedup(t *testing.T) {
	tbl := newTestTable(t)
	low := Edge{Weight: weight.Handle(1), Target: Terminal}
	high := Edge{Weight: weight.Handle(2), Target: Terminal}

	h1, err := tbl.LookupOrInsert(0, low, high)
	require.NoError(t, err)

	h2, err := tbl.LookupOrInsert(0, low, high)
	require.NoError(t, err)

	assert.Equal(t, h1, h2, "identical (var,low,high) triples must return the same handle")
	assert.Equal(t, uint64(1), tbl.Count())
}

func TestLookupOrInsertDistinctTriples(t *testing.T) {
	tbl := newTestTable(t)
	lowA := Edge{Weight: weight.Handle(1), Target: Terminal}
	highA := Edge{Weight: weight.Handle(2), Target: Terminal}
	highB := Edge{Weight: weight.Handle(3), Target: Terminal}

	h1, err := tbl.LookupOrInsert(0, lowA, highA)
	require.NoError(t, err)
	h2, err := tbl.LookupOrInsert(0, lowA, highB)
	require.NoError(t, err)

	assert.NotEqual(t, h1, h2)
	assert.Equal(t, uint64(2), tbl.Count())
}

func TestGetRoundTrip(t *testing.T) {
	tbl := newTestTable(t)
	low := Edge{Weight: weight.Handle(5), Target: Terminal}
	high := Edge{Weight: weight.Handle(6), Target: Terminal}

	h, err := tbl.LookupOrInsert(3, low, high)
	require.NoError(t, err)

	v, gotLow, gotHigh, err := tbl.Get(h)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), v)
	assert.Equal(t, low, gotLow)
	assert.Equal(t, high, gotHigh)
}

func TestMarkSweepCollectsUnreachable(t *testing.T) {
	tbl := newTestTable(t)
	low := Edge{Weight: weight.Handle(1), Target: Terminal}
	high := Edge{Weight: weight.Handle(2), Target: Terminal}

	kept, err := tbl.LookupOrInsert(0, low, high)
	require.NoError(t, err)
	_, err = tbl.LookupOrInsert(1, low, high)
	require.NoError(t, err)

	before := tbl.Count()
	assert.Equal(t, uint64(2), before)

	tbl.UnmarkAll()
	tbl.Mark(kept)
	freed := tbl.Sweep()

	assert.Equal(t, uint64(1), freed)
	assert.Equal(t, uint64(1), tbl.Count())

	_, _, _, err = tbl.Get(kept)
	assert.NoError(t, err, "kept handle must survive sweep")
}

func TestSweepLeavesSurvivorsFindable(t *testing.T) {
	// a tiny table forces every insert onto overlapping probe chains, so
	// survivors routinely sit behind freed slots
	tbl := New(Options{Capacity: 8, ProbeBound: 8})

	type triple struct {
		v         uint32
		low, high Edge
	}
	triples := make([]triple, 6)
	handles := make([]Handle, 6)
	for i := range triples {
		triples[i] = triple{
			v:    uint32(i),
			low:  Edge{Weight: weight.Handle(i + 1), Target: Terminal},
			high: Edge{Weight: weight.Handle(2*i + 1), Target: Terminal},
		}
		h, err := tbl.LookupOrInsert(triples[i].v, triples[i].low, triples[i].high)
		require.NoError(t, err)
		handles[i] = h
	}

	// keep the odd-indexed nodes, sweep the rest
	tbl.UnmarkAll()
	for i := 1; i < len(handles); i += 2 {
		tbl.Mark(handles[i])
	}
	freed := tbl.Sweep()
	require.Equal(t, uint64(3), freed)

	for i := 1; i < len(triples); i += 2 {
		h, err := tbl.LookupOrInsert(triples[i].v, triples[i].low, triples[i].high)
		require.NoError(t, err)
		assert.Equal(t, handles[i], h, "a survivor behind freed slots must be found, not duplicated")
	}
	assert.Equal(t, uint64(3), tbl.Count(), "re-looking-up survivors must not grow the table")
}

func TestInsertReclaimsSweptSlots(t *testing.T) {
	tbl := New(Options{Capacity: 4, ProbeBound: 4})
	low := Edge{Weight: weight.Handle(1), Target: Terminal}
	high := Edge{Weight: weight.Handle(2), Target: Terminal}

	for v := uint32(0); v < 4; v++ {
		_, err := tbl.LookupOrInsert(v, low, high)
		require.NoError(t, err)
	}
	_, err := tbl.LookupOrInsert(9, low, high)
	require.Error(t, err, "a full table must reject a fifth distinct node")

	tbl.UnmarkAll()
	freed := tbl.Sweep()
	require.Equal(t, uint64(4), freed)

	// every freed slot is a tombstone now; new inserts must reuse them
	for v := uint32(10); v < 14; v++ {
		_, err := tbl.LookupOrInsert(v, low, high)
		require.NoError(t, err)
	}
	assert.Equal(t, uint64(4), tbl.Count())
}

func TestForEachLiveVisitsSurvivors(t *testing.T) {
	tbl := newTestTable(t)
	low := Edge{Weight: weight.Handle(1), Target: Terminal}
	high := Edge{Weight: weight.Handle(2), Target: Terminal}

	h, err := tbl.LookupOrInsert(0, low, high)
	require.NoError(t, err)

	seen := make(map[Handle]struct{})
	tbl.ForEachLive(func(handle Handle, v uint32, l, hi Edge) {
		seen[handle] = struct{}{}
	})
	_, ok := seen[h]
	assert.True(t, ok)
}

func TestRewriteWeights(t *testing.T) {
	tbl := newTestTable(t)
	low := Edge{Weight: weight.Handle(1), Target: Terminal}
	high := Edge{Weight: weight.Handle(2), Target: Terminal}

	h, err := tbl.LookupOrInsert(0, low, high)
	require.NoError(t, err)

	require.NoError(t, tbl.RewriteWeights(h, weight.Handle(10), weight.Handle(20)))

	_, gotLow, gotHigh, err := tbl.Get(h)
	require.NoError(t, err)
	assert.Equal(t, weight.Handle(10), gotLow.Weight)
	assert.Equal(t, weight.Handle(20), gotHigh.Weight)
}
