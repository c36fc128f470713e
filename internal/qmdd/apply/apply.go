// Package apply implements the Apply component of the QMDD core: the
// recursive, memoized binary kernels plus, scalar_mul, mat_vec, mat_mat,
// gate, and c_gate (spec §4.6).
//
// Independent recursive subcalls fork via golang.org/x/sync/errgroup,
// generalizing the teacher's flat WaitGroup-based worker fan-out
// (qc/simulator/parstat_runner.go) to the kernels' nested fork-join
// recursion, bounded by a per-Kernels semaphore sized off
// runtime.GOMAXPROCS so deep recursion cannot explode the goroutine
// count (spec §5's fork-join scheduling model).
package apply

import (
	"fmt"
	"math"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/kegliz/qmdd/internal/qmdd/canon"
	"github.com/kegliz/qmdd/internal/qmdd/gatelib"
	"github.com/kegliz/qmdd/internal/qmdd/nodetable"
	"github.com/kegliz/qmdd/internal/qmdd/opcache"
	"github.com/kegliz/qmdd/internal/qmdd/weight"
)

// Edge is re-exported from nodetable for callers that only need the
// Apply surface.
type Edge = nodetable.Edge

const infiniteVar = math.MaxUint32

// Opcodes identifying each kernel in the OpCache key space.
const (
	opPlus uint8 = iota
	opMatVec
	opMatMat
	opGate
	opCGate
	opProject
)

// Kernels bundles the tables an Apply call needs: the NodeTable and
// WeightStore (read through the Builder for canonical edge construction),
// the OpCache, and the GateLibrary for resolving gate ids to matrices.
type Kernels struct {
	Nodes   *nodetable.Table
	Weights *weight.Store
	Cache   *opcache.Cache
	Builder *canon.Builder
	Gates   *gatelib.Library

	sem chan struct{}
}

// New returns a Kernels bound to the given tables.
func New(nodes *nodetable.Table, weights *weight.Store, cache *opcache.Cache, builder *canon.Builder, gates *gatelib.Library) *Kernels {
	cap := runtime.GOMAXPROCS(0) * 4
	if cap < 4 {
		cap = 4
	}
	return &Kernels{Nodes: nodes, Weights: weights, Cache: cache, Builder: builder, Gates: gates, sem: make(chan struct{}, cap)}
}

// fork runs fns under a fork-join barrier and returns the first error
// (if any). Each fn is spawned onto its own goroutine only when a slot
// is free in the fan-out semaphore and runs inline otherwise (the last
// always runs inline), so a deep recursion degrades to sequential
// execution instead of blocking on slots held by its own ancestors.
// Independent recursive Apply subcalls MAY run in parallel under this
// discipline; no ordering between them is guaranteed (spec §5).
func (k *Kernels) fork(fns ...func() error) error {
	var g errgroup.Group
	var inlineErr error
	last := len(fns) - 1
	for _, fn := range fns[:last] {
		select {
		case k.sem <- struct{}{}:
			fn := fn
			g.Go(func() error {
				defer func() { <-k.sem }()
				return fn()
			})
		default:
			if err := fn(); err != nil && inlineErr == nil {
				inlineErr = err
			}
		}
	}
	if err := fns[last](); err != nil && inlineErr == nil {
		inlineErr = err
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return inlineErr
}

func (k *Kernels) topVar(e Edge) uint32 {
	if e.Target == nodetable.Terminal {
		return infiniteVar
	}
	v, _, _, err := k.Nodes.Get(e.Target)
	if err != nil {
		return infiniteVar
	}
	return v
}

// cofactor splits e around the EXACT pivot v, assuming e's top variable
// is either v itself or strictly greater (the caller is responsible for
// having chosen v <= topVar(e), e.g. as min(topVar(a), topVar(b))). When
// e's top variable skips v, both returned edges equal e itself (the
// "synthesize (a, a)" rule of spec §4.6's general schema) — this is also
// the precise Builder collapse point: a variable-independent result
// cofactored this way will always recombine to the same child twice.
func (k *Kernels) cofactor(e Edge, v uint32) (lo, hi Edge, err error) {
	if e.Target == nodetable.Terminal {
		return e, e, nil
	}
	nodeVar, nlow, nhigh, err := k.Nodes.Get(e.Target)
	if err != nil {
		return Edge{}, Edge{}, err
	}
	if nodeVar != v {
		return e, e, nil
	}
	lw, err := k.Weights.Mul(e.Weight, nlow.Weight)
	if err != nil {
		return Edge{}, Edge{}, err
	}
	hw, err := k.Weights.Mul(e.Weight, nhigh.Weight)
	if err != nil {
		return Edge{}, Edge{}, err
	}
	return Edge{Weight: lw, Target: nlow.Target}, Edge{Weight: hw, Target: nhigh.Target}, nil
}

// ScalarMul multiplies e's weight by w (the "scale" helper used by Gate).
func (k *Kernels) ScalarMul(e Edge, w weight.Handle) (Edge, error) {
	nw, err := k.Weights.Mul(e.Weight, w)
	if err != nil {
		return Edge{}, err
	}
	if nw == k.Weights.Zero {
		return Edge{Weight: k.Weights.Zero, Target: nodetable.Terminal}, nil
	}
	return Edge{Weight: nw, Target: e.Target}, nil
}

// canonOrder returns a,b reordered so that the lower-handle operand comes
// first, maximizing OpCache hit rate for commutative callers (spec §5).
func canonOrder(a, b Edge) (Edge, Edge, bool) {
	if b.Target < a.Target || (b.Target == a.Target && b.Weight < a.Weight) {
		return b, a, true
	}
	return a, b, false
}

// Plus implements spec §4.6's plus(a, b): a + b as QMDD-represented
// vectors or matrices of identical shape.
func (k *Kernels) Plus(a, b Edge) (Edge, error) {
	a, b, _ = canonOrder(a, b)

	if a.Weight == k.Weights.Zero {
		return b, nil
	}
	if b.Weight == k.Weights.Zero {
		return a, nil
	}

	if a.Target == b.Target {
		w, err := k.Weights.Add(a.Weight, b.Weight)
		if err != nil {
			return Edge{}, err
		}
		if w == k.Weights.Zero {
			return Edge{Weight: k.Weights.Zero, Target: nodetable.Terminal}, nil
		}
		return Edge{Weight: w, Target: a.Target}, nil
	}

	key := opcache.Key{Op: opPlus, A: a, B: b}
	if res, ok := k.Cache.Get(key); ok {
		return res, nil
	}

	v := k.topVar(a)
	if bv := k.topVar(b); bv < v {
		v = bv
	}

	a0, a1, err := k.cofactor(a, v)
	if err != nil {
		return Edge{}, err
	}
	b0, b1, err := k.cofactor(b, v)
	if err != nil {
		return Edge{}, err
	}

	var r0, r1 Edge
	err = k.fork(
		func() error { var e error; r0, e = k.Plus(a0, b0); return e },
		func() error { var e error; r1, e = k.Plus(a1, b1); return e },
	)
	if err != nil {
		return Edge{}, err
	}

	result, err := k.Builder.MakeEdge(v, r0, r1)
	if err != nil {
		return Edge{}, err
	}
	k.Cache.Put(key, result)
	return result, nil
}

// MatVec implements spec §4.6's mat_vec(M, v, n_qubits, level): the
// two-level-per-qubit matrix encoding (row at 2*level, column at
// 2*level+1) applied to the one-level-per-qubit vector encoding.
func (k *Kernels) MatVec(m, v Edge, nQubits int) (Edge, error) {
	return k.matVec(m, v, nQubits, 0)
}

func (k *Kernels) matVec(m, v Edge, nQubits, level int) (Edge, error) {
	if level == nQubits {
		w, err := k.Weights.Mul(m.Weight, v.Weight)
		if err != nil {
			return Edge{}, err
		}
		if w == k.Weights.Zero {
			return Edge{Weight: k.Weights.Zero, Target: nodetable.Terminal}, nil
		}
		return Edge{Weight: w, Target: nodetable.Terminal}, nil
	}

	key := opcache.Key{Op: opMatVec, A: m, B: v, Params: uint64(level)}
	if res, ok := k.Cache.Get(key); ok {
		return res, nil
	}

	rowLo, rowHi, err := k.cofactor(m, uint32(2*level))
	if err != nil {
		return Edge{}, err
	}
	m00, m01, err := k.cofactor(rowLo, uint32(2*level+1))
	if err != nil {
		return Edge{}, err
	}
	m10, m11, err := k.cofactor(rowHi, uint32(2*level+1))
	if err != nil {
		return Edge{}, err
	}
	v0, v1, err := k.cofactor(v, uint32(level))
	if err != nil {
		return Edge{}, err
	}

	var m00v0, m01v1, m10v0, m11v1 Edge
	err = k.fork(
		func() error { var e error; m00v0, e = k.matVec(m00, v0, nQubits, level+1); return e },
		func() error { var e error; m01v1, e = k.matVec(m01, v1, nQubits, level+1); return e },
		func() error { var e error; m10v0, e = k.matVec(m10, v0, nQubits, level+1); return e },
		func() error { var e error; m11v1, e = k.matVec(m11, v1, nQubits, level+1); return e },
	)
	if err != nil {
		return Edge{}, err
	}

	top, err := k.Plus(m00v0, m01v1)
	if err != nil {
		return Edge{}, err
	}
	bot, err := k.Plus(m10v0, m11v1)
	if err != nil {
		return Edge{}, err
	}

	result, err := k.Builder.MakeEdge(uint32(level), top, bot)
	if err != nil {
		return Edge{}, err
	}
	k.Cache.Put(key, result)
	return result, nil
}

// MatMat implements spec §4.6's mat_mat(A, B, n_qubits, level): the
// eight-way 2x2 block matrix product. Matrix encoding is two levels per
// qubit throughout, so reassembling the four result blocks needs three
// node constructions per recursive level (two column-level nodes, one
// row-level node combining them) rather than the two the spec's prose
// names — a one-node undercount inherent to a strictly two-level-per-
// qubit matrix encoding.
func (k *Kernels) MatMat(a, b Edge, nQubits int) (Edge, error) {
	return k.matMat(a, b, nQubits, 0)
}

func (k *Kernels) matMat(a, b Edge, nQubits, level int) (Edge, error) {
	if level == nQubits {
		w, err := k.Weights.Mul(a.Weight, b.Weight)
		if err != nil {
			return Edge{}, err
		}
		if w == k.Weights.Zero {
			return Edge{Weight: k.Weights.Zero, Target: nodetable.Terminal}, nil
		}
		return Edge{Weight: w, Target: nodetable.Terminal}, nil
	}

	key := opcache.Key{Op: opMatMat, A: a, B: b, Params: uint64(level)}
	if res, ok := k.Cache.Get(key); ok {
		return res, nil
	}

	aRowLo, aRowHi, err := k.cofactor(a, uint32(2*level))
	if err != nil {
		return Edge{}, err
	}
	a00, a01, err := k.cofactor(aRowLo, uint32(2*level+1))
	if err != nil {
		return Edge{}, err
	}
	a10, a11, err := k.cofactor(aRowHi, uint32(2*level+1))
	if err != nil {
		return Edge{}, err
	}

	bRowLo, bRowHi, err := k.cofactor(b, uint32(2*level))
	if err != nil {
		return Edge{}, err
	}
	b00, b01, err := k.cofactor(bRowLo, uint32(2*level+1))
	if err != nil {
		return Edge{}, err
	}
	b10, b11, err := k.cofactor(bRowHi, uint32(2*level+1))
	if err != nil {
		return Edge{}, err
	}

	var a00b00, a01b10, a00b01, a01b11, a10b00, a11b10, a10b01, a11b11 Edge
	err = k.fork(
		func() error { var e error; a00b00, e = k.matMat(a00, b00, nQubits, level+1); return e },
		func() error { var e error; a01b10, e = k.matMat(a01, b10, nQubits, level+1); return e },
		func() error { var e error; a00b01, e = k.matMat(a00, b01, nQubits, level+1); return e },
		func() error { var e error; a01b11, e = k.matMat(a01, b11, nQubits, level+1); return e },
		func() error { var e error; a10b00, e = k.matMat(a10, b00, nQubits, level+1); return e },
		func() error { var e error; a11b10, e = k.matMat(a11, b10, nQubits, level+1); return e },
		func() error { var e error; a10b01, e = k.matMat(a10, b01, nQubits, level+1); return e },
		func() error { var e error; a11b11, e = k.matMat(a11, b11, nQubits, level+1); return e },
	)
	if err != nil {
		return Edge{}, err
	}

	c00, err := k.Plus(a00b00, a01b10)
	if err != nil {
		return Edge{}, err
	}
	c01, err := k.Plus(a00b01, a01b11)
	if err != nil {
		return Edge{}, err
	}
	c10, err := k.Plus(a10b00, a11b10)
	if err != nil {
		return Edge{}, err
	}
	c11, err := k.Plus(a10b01, a11b11)
	if err != nil {
		return Edge{}, err
	}

	row0, err := k.Builder.MakeEdge(uint32(2*level+1), c00, c01)
	if err != nil {
		return Edge{}, err
	}
	row1, err := k.Builder.MakeEdge(uint32(2*level+1), c10, c11)
	if err != nil {
		return Edge{}, err
	}
	result, err := k.Builder.MakeEdge(uint32(2*level), row0, row1)
	if err != nil {
		return Edge{}, err
	}
	k.Cache.Put(key, result)
	return result, nil
}

func packGateParams(gateID gatelib.ID, q uint32) uint64 {
	return uint64(gateID)<<32 | uint64(q)
}

func packCGateParams(gateID gatelib.ID, c, t uint32) uint64 {
	return uint64(gateID)<<32 | uint64(c)<<16 | uint64(t)
}

// Gate implements spec §4.6's gate(v, g, q): application of a single-
// qubit unitary to qubit q of a state-vector edge.
func (k *Kernels) Gate(v Edge, gateID gatelib.ID, q uint32) (Edge, error) {
	g, err := k.Gates.Lookup(gateID)
	if err != nil {
		return Edge{}, err
	}
	return k.applyGate(v, g, gateID, q)
}

// applyGate recurses down v toward variable q. Variables above q are
// threaded back up structurally unchanged via MakeEdge; at q the 2x2
// unitary is applied to the (low, high) cofactor pair, which cofactor
// synthesizes as (v, v) when q was skipped. Root weights are pushed
// down by cofactor at every step, so nothing needs multiplying back in
// afterward.
func (k *Kernels) applyGate(v Edge, g gatelib.Gate, gateID gatelib.ID, q uint32) (Edge, error) {
	if v.Weight == k.Weights.Zero {
		return k.Builder.ZeroEdge(), nil
	}

	key := opcache.Key{Op: opGate, A: v, Params: packGateParams(gateID, q)}
	if res, ok := k.Cache.Get(key); ok {
		return res, nil
	}

	var result Edge
	if top := k.topVar(v); top < q {
		lo, hi, err := k.cofactor(v, top)
		if err != nil {
			return Edge{}, err
		}
		var r0, r1 Edge
		err = k.fork(
			func() error { var e error; r0, e = k.applyGate(lo, g, gateID, q); return e },
			func() error { var e error; r1, e = k.applyGate(hi, g, gateID, q); return e },
		)
		if err != nil {
			return Edge{}, err
		}
		result, err = k.Builder.MakeEdge(top, r0, r1)
		if err != nil {
			return Edge{}, err
		}
	} else {
		lo, hi, err := k.cofactor(v, q)
		if err != nil {
			return Edge{}, err
		}
		var newLow, newHigh Edge
		err = k.fork(
			func() error { var e error; newLow, e = k.gateRow(lo, hi, g.U00, g.U01); return e },
			func() error { var e error; newHigh, e = k.gateRow(lo, hi, g.U10, g.U11); return e },
		)
		if err != nil {
			return Edge{}, err
		}
		result, err = k.Builder.MakeEdge(q, newLow, newHigh)
		if err != nil {
			return Edge{}, err
		}
	}

	k.Cache.Put(key, result)
	return result, nil
}

// gateRow computes u0*lo + u1*hi, one row of a 2x2 unitary application.
func (k *Kernels) gateRow(lo, hi Edge, u0, u1 weight.Handle) (Edge, error) {
	a, err := k.ScalarMul(lo, u0)
	if err != nil {
		return Edge{}, err
	}
	b, err := k.ScalarMul(hi, u1)
	if err != nil {
		return Edge{}, err
	}
	return k.Plus(a, b)
}

// project returns the projection of e onto qubit q = bit: the opposite
// branch at q is zeroed and the q node itself is kept (materialized when
// q was skipped), so the result is still a full-width state slice. Used
// by the control-below-target decomposition.
func (k *Kernels) project(e Edge, q uint32, bit int) (Edge, error) {
	if e.Weight == k.Weights.Zero {
		return k.Builder.ZeroEdge(), nil
	}

	key := opcache.Key{Op: opProject, A: e, Params: uint64(q)<<1 | uint64(bit)}
	if res, ok := k.Cache.Get(key); ok {
		return res, nil
	}

	var result Edge
	var err error
	if top := k.topVar(e); top < q {
		lo, hi, cerr := k.cofactor(e, top)
		if cerr != nil {
			return Edge{}, cerr
		}
		r0, cerr := k.project(lo, q, bit)
		if cerr != nil {
			return Edge{}, cerr
		}
		r1, cerr := k.project(hi, q, bit)
		if cerr != nil {
			return Edge{}, cerr
		}
		result, err = k.Builder.MakeEdge(top, r0, r1)
	} else {
		lo, hi, cerr := k.cofactor(e, q)
		if cerr != nil {
			return Edge{}, cerr
		}
		if bit == 0 {
			result, err = k.Builder.MakeEdge(q, lo, k.Builder.ZeroEdge())
		} else {
			result, err = k.Builder.MakeEdge(q, k.Builder.ZeroEdge(), hi)
		}
	}
	if err != nil {
		return Edge{}, err
	}
	k.Cache.Put(key, result)
	return result, nil
}

// CGate implements spec §4.6's c_gate(v, g, c, t): a controlled
// single-qubit gate for any c != t, control above or below target.
func (k *Kernels) CGate(v Edge, gateID gatelib.ID, c, t uint32) (Edge, error) {
	if c == t {
		return Edge{}, fmt.Errorf("apply: control and target qubit must differ (both %d)", c)
	}
	g, err := k.Gates.Lookup(gateID)
	if err != nil {
		return Edge{}, err
	}
	return k.cGateRec(v, g, gateID, c, t)
}

// cGateRec descends to min(c, t). When the control comes first, the low
// (c=0) branch is left untouched and the plain gate is applied to the
// high (c=1) branch. When the target comes first, the controlled action
// is decomposed at t via projectors on c (see controlledBelow) instead
// of a literal wire-swap helper — the permuted-controlled-matrix
// equivalence spec §9 allows.
func (k *Kernels) cGateRec(v Edge, g gatelib.Gate, gateID gatelib.ID, c, t uint32) (Edge, error) {
	if v.Weight == k.Weights.Zero {
		return k.Builder.ZeroEdge(), nil
	}

	key := opcache.Key{Op: opCGate, A: v, Params: packCGateParams(gateID, c, t)}
	if res, ok := k.Cache.Get(key); ok {
		return res, nil
	}

	first := c
	if t < c {
		first = t
	}

	var result Edge
	var err error
	if top := k.topVar(v); top < first {
		lo, hi, cerr := k.cofactor(v, top)
		if cerr != nil {
			return Edge{}, cerr
		}
		var r0, r1 Edge
		err = k.fork(
			func() error { var e error; r0, e = k.cGateRec(lo, g, gateID, c, t); return e },
			func() error { var e error; r1, e = k.cGateRec(hi, g, gateID, c, t); return e },
		)
		if err != nil {
			return Edge{}, err
		}
		result, err = k.Builder.MakeEdge(top, r0, r1)
	} else if c < t {
		lo, hi, cerr := k.cofactor(v, c)
		if cerr != nil {
			return Edge{}, cerr
		}
		newHigh, cerr := k.applyGate(hi, g, gateID, t)
		if cerr != nil {
			return Edge{}, cerr
		}
		result, err = k.Builder.MakeEdge(c, lo, newHigh)
	} else {
		result, err = k.controlledBelow(v, g, []uint32{c}, t)
	}
	if err != nil {
		return Edge{}, err
	}
	k.Cache.Put(key, result)
	return result, nil
}

// controlledBelow applies g to target t conditioned on every control in
// controls (each strictly greater than t, i.e. below the target in the
// variable order) being |1>, for an operand whose top variable is at or
// below t. Writing the controlled unitary as I + P1 (x) (U - I), with P1
// the joint |1><1| projector over the controls, the two t-slices become
//
//	newLow  = l + (u00-1)*P1(l) + u01*P1(h)
//	newHigh = h + u10*P1(l) + (u11-1)*P1(h)
func (k *Kernels) controlledBelow(v Edge, g gatelib.Gate, controls []uint32, t uint32) (Edge, error) {
	l, h, err := k.cofactor(v, t)
	if err != nil {
		return Edge{}, err
	}

	lp, hp := l, h
	for _, c := range controls {
		if lp, err = k.project(lp, c, 1); err != nil {
			return Edge{}, err
		}
		if hp, err = k.project(hp, c, 1); err != nil {
			return Edge{}, err
		}
	}

	u00m1, err := k.Weights.Sub(g.U00, k.Weights.One)
	if err != nil {
		return Edge{}, err
	}
	u11m1, err := k.Weights.Sub(g.U11, k.Weights.One)
	if err != nil {
		return Edge{}, err
	}

	var newLow, newHigh Edge
	err = k.fork(
		func() error {
			d, e := k.gateRow(lp, hp, u00m1, g.U01)
			if e != nil {
				return e
			}
			newLow, e = k.Plus(l, d)
			return e
		},
		func() error {
			d, e := k.gateRow(lp, hp, g.U10, u11m1)
			if e != nil {
				return e
			}
			newHigh, e = k.Plus(h, d)
			return e
		},
	)
	if err != nil {
		return Edge{}, err
	}
	return k.Builder.MakeEdge(t, newLow, newHigh)
}

// CGateMulti implements spec §4.6's multi-control variant: controls are
// sorted ascending and peeled off one at a time while they sit above the
// target (low branch untouched, high branch recurses into the remaining
// controls); once the next control falls below the target, the rest are
// consumed in one controlledBelow step. Because an arbitrary-length
// control list doesn't fit the fixed-arity OpCache key (spec §4.3's "up
// to three edge arguments plus packed parameters"), this entry point
// itself is not memoized — the CGate/Gate/Plus calls it bottoms out in
// still are, so repeated sub-structure is still shared.
func (k *Kernels) CGateMulti(v Edge, gateID gatelib.ID, controls []uint32, t uint32) (Edge, error) {
	g, err := k.Gates.Lookup(gateID)
	if err != nil {
		return Edge{}, err
	}
	sorted := append([]uint32(nil), controls...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	for _, c := range sorted {
		if c == t {
			return Edge{}, fmt.Errorf("apply: control qubit %d equals target qubit", c)
		}
	}
	return k.cGateMultiRec(v, g, gateID, sorted, t)
}

func (k *Kernels) cGateMultiRec(v Edge, g gatelib.Gate, gateID gatelib.ID, controls []uint32, t uint32) (Edge, error) {
	if len(controls) == 0 {
		return k.applyGate(v, g, gateID, t)
	}
	if len(controls) == 1 {
		return k.cGateRec(v, g, gateID, controls[0], t)
	}
	if v.Weight == k.Weights.Zero {
		return k.Builder.ZeroEdge(), nil
	}

	c0 := controls[0]
	if c0 < t {
		if top := k.topVar(v); top < c0 {
			lo, hi, err := k.cofactor(v, top)
			if err != nil {
				return Edge{}, err
			}
			var r0, r1 Edge
			err = k.fork(
				func() error { var e error; r0, e = k.cGateMultiRec(lo, g, gateID, controls, t); return e },
				func() error { var e error; r1, e = k.cGateMultiRec(hi, g, gateID, controls, t); return e },
			)
			if err != nil {
				return Edge{}, err
			}
			return k.Builder.MakeEdge(top, r0, r1)
		}
		lo, hi, err := k.cofactor(v, c0)
		if err != nil {
			return Edge{}, err
		}
		newHigh, err := k.cGateMultiRec(hi, g, gateID, controls[1:], t)
		if err != nil {
			return Edge{}, err
		}
		return k.Builder.MakeEdge(c0, lo, newHigh)
	}

	// every remaining control sits below the target
	if top := k.topVar(v); top < t {
		lo, hi, err := k.cofactor(v, top)
		if err != nil {
			return Edge{}, err
		}
		var r0, r1 Edge
		err = k.fork(
			func() error { var e error; r0, e = k.cGateMultiRec(lo, g, gateID, controls, t); return e },
			func() error { var e error; r1, e = k.cGateMultiRec(hi, g, gateID, controls, t); return e },
		)
		if err != nil {
			return Edge{}, err
		}
		return k.Builder.MakeEdge(top, r0, r1)
	}
	return k.controlledBelow(v, g, controls, t)
}
