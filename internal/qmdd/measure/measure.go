// Package measure implements the Measurement component of the QMDD core:
// prob_sum, measure_qubit, and measure_all (spec §4.10).
//
// Randomness is injected by the caller as an explicit sample in [0, 1)
// rather than owned by this package, so every measurement routine here is
// a pure function of its inputs — the Context façade is the one place
// that owns an actual random source.
package measure

import (
	"fmt"
	"math"
	"sync"

	"github.com/kegliz/qmdd/internal/qmdd/canon"
	"github.com/kegliz/qmdd/internal/qmdd/nodetable"
	"github.com/kegliz/qmdd/internal/qmdd/weight"
)

// Measurer ties a NodeTable, WeightStore, and Builder to a memo table for
// ProbSum.
type Measurer struct {
	Nodes   *nodetable.Table
	Weights *weight.Store
	Builder *canon.Builder

	mu    sync.Mutex
	cache map[probKey]float64
}

type probKey struct {
	target  nodetable.Handle
	level   int
	nQubits int
}

// New returns a Measurer bound to the given tables.
func New(nodes *nodetable.Table, weights *weight.Store, builder *canon.Builder) *Measurer {
	return &Measurer{Nodes: nodes, Weights: weights, Builder: builder, cache: make(map[probKey]float64)}
}

// Flush drops the memoized probability masses. Must be called after a
// node GC sweep: a freed node's handle may be reused by a later
// MakeEdge for a node with different mass.
func (m *Measurer) Flush() {
	m.mu.Lock()
	m.cache = make(map[probKey]float64)
	m.mu.Unlock()
}

// cofactor mirrors apply.Kernels.cofactor (an exact split around a pivot
// at or above e's top variable); duplicated here rather than imported so
// that measure has no dependency on apply, keeping the two Apply-adjacent
// packages independently testable.
func (m *Measurer) cofactor(e nodetable.Edge, v uint32) (lo, hi nodetable.Edge, err error) {
	if e.Target == nodetable.Terminal {
		return e, e, nil
	}
	nodeVar, nlow, nhigh, err := m.Nodes.Get(e.Target)
	if err != nil {
		return nodetable.Edge{}, nodetable.Edge{}, err
	}
	if nodeVar != v {
		return e, e, nil
	}
	lw, err := m.Weights.Mul(e.Weight, nlow.Weight)
	if err != nil {
		return nodetable.Edge{}, nodetable.Edge{}, err
	}
	hw, err := m.Weights.Mul(e.Weight, nhigh.Weight)
	if err != nil {
		return nodetable.Edge{}, nodetable.Edge{}, err
	}
	return nodetable.Edge{Weight: lw, Target: nlow.Target}, nodetable.Edge{Weight: hw, Target: nhigh.Target}, nil
}

// unweightedProbSum returns the squared-magnitude mass reachable from
// target over levels [level, nQubits), treating the incoming edge weight
// as ONE. A node whose variable skips ahead of level contributes the same
// sub-mass to both values of every skipped qubit, hence the doubling —
// this mirrors q-sylvan's probability-mass accumulation for
// qdd_measure_qubit (src/sylvan_qdd.c), generalized from "adjacent
// variable" to "arbitrarily many skipped variables" since this module's
// NodeTable compresses runs of skipped qubits the same way.
func (m *Measurer) unweightedProbSum(target nodetable.Handle, level, nQubits int) (float64, error) {
	if level == nQubits {
		return 1, nil
	}

	key := probKey{target: target, level: level, nQubits: nQubits}
	m.mu.Lock()
	if v, ok := m.cache[key]; ok {
		m.mu.Unlock()
		return v, nil
	}
	m.mu.Unlock()

	var result float64
	if target == nodetable.Terminal {
		result = math.Pow(2, float64(nQubits-level))
	} else {
		nodeVar, low, high, err := m.Nodes.Get(target)
		if err != nil {
			return 0, err
		}
		if nodeVar > uint32(level) {
			sub, err := m.unweightedProbSum(target, level+1, nQubits)
			if err != nil {
				return 0, err
			}
			result = 2 * sub
		} else {
			lowW2, err := m.Weights.SquaredMagnitude(low.Weight)
			if err != nil {
				return 0, err
			}
			lowSub, err := m.unweightedProbSum(low.Target, level+1, nQubits)
			if err != nil {
				return 0, err
			}
			highW2, err := m.Weights.SquaredMagnitude(high.Weight)
			if err != nil {
				return 0, err
			}
			highSub, err := m.unweightedProbSum(high.Target, level+1, nQubits)
			if err != nil {
				return 0, err
			}
			result = lowW2*lowSub + highW2*highSub
		}
	}

	m.mu.Lock()
	m.cache[key] = result
	m.mu.Unlock()
	return result, nil
}

// ProbSum returns the total squared-magnitude mass reachable from e,
// given that qubits below level are already fixed and nQubits is the
// total qubit count (spec §4.10).
func (m *Measurer) ProbSum(e nodetable.Edge, level, nQubits int) (float64, error) {
	w2, err := m.Weights.SquaredMagnitude(e.Weight)
	if err != nil {
		return 0, err
	}
	sub, err := m.unweightedProbSum(e.Target, level, nQubits)
	if err != nil {
		return 0, err
	}
	return w2 * sub, nil
}

// Result is the outcome of measuring a single qubit.
type Result struct {
	Qubit       int
	Outcome     int
	Probability float64
	Edge        nodetable.Edge
}

// ErrNotUnitary reports that a measurement observed a probability sum
// outside tolerance of 1, meaning the edge being measured was not a
// valid (normalized) quantum state.
type ErrNotUnitary struct {
	Observed  float64
	Tolerance float64
}

func (e *ErrNotUnitary) Error() string {
	return fmt.Sprintf("measure: probability sum %.9f outside tolerance %.2e of 1", e.Observed, e.Tolerance)
}

// outcomeMass returns the probability mass of observing qubit q = 0 and
// q = 1 in e, descending from level through every variable above q and
// summing the two branch masses at each step (skipped variables
// contribute both identical halves, which is exactly the doubling the
// underlying state calls for).
func (m *Measurer) outcomeMass(e nodetable.Edge, level, q, nQubits int) (p0, p1 float64, err error) {
	if level == q {
		lo, hi, err := m.cofactor(e, uint32(q))
		if err != nil {
			return 0, 0, err
		}
		if p0, err = m.ProbSum(lo, q+1, nQubits); err != nil {
			return 0, 0, err
		}
		if p1, err = m.ProbSum(hi, q+1, nQubits); err != nil {
			return 0, 0, err
		}
		return p0, p1, nil
	}

	lo, hi, err := m.cofactor(e, uint32(level))
	if err != nil {
		return 0, 0, err
	}
	a0, a1, err := m.outcomeMass(lo, level+1, q, nQubits)
	if err != nil {
		return 0, 0, err
	}
	b0, b1, err := m.outcomeMass(hi, level+1, q, nQubits)
	if err != nil {
		return 0, 0, err
	}
	return a0 + b0, a1 + b1, nil
}

// collapse rebuilds e with qubit q pinned to outcome: the discarded
// branch at q is replaced by the zero edge, the surviving branch's
// weight is multiplied by scale (1/sqrt(p) renormalization), and every
// variable above q is threaded back up structurally unchanged.
func (m *Measurer) collapse(e nodetable.Edge, level, q, outcome int, scale weight.Handle) (nodetable.Edge, error) {
	if level == q {
		lo, hi, err := m.cofactor(e, uint32(q))
		if err != nil {
			return nodetable.Edge{}, err
		}
		survivor := lo
		if outcome == 1 {
			survivor = hi
		}
		scaledWeight, err := m.Weights.Mul(survivor.Weight, scale)
		if err != nil {
			return nodetable.Edge{}, err
		}
		scaled := nodetable.Edge{Weight: scaledWeight, Target: survivor.Target}
		zero := m.Builder.ZeroEdge()
		if outcome == 0 {
			return m.Builder.MakeEdge(uint32(q), scaled, zero)
		}
		return m.Builder.MakeEdge(uint32(q), zero, scaled)
	}

	lo, hi, err := m.cofactor(e, uint32(level))
	if err != nil {
		return nodetable.Edge{}, err
	}
	r0, err := m.collapse(lo, level+1, q, outcome, scale)
	if err != nil {
		return nodetable.Edge{}, err
	}
	r1, err := m.collapse(hi, level+1, q, outcome, scale)
	if err != nil {
		return nodetable.Edge{}, err
	}
	return m.Builder.MakeEdge(uint32(level), r0, r1)
}

// MeasureQubit implements spec §4.10's measure_qubit: weigh the two
// outcome masses for qubit q, pick an outcome against sample
// (caller-supplied, in [0, 1)), and rebuild the state with q pinned to
// the observed outcome, renormalized so its own ProbSum is exactly 1.
// The result is a full nQubits-qubit state — variables above q keep
// their place, the discarded branch at q becomes the zero edge — ready
// to be measured again at another qubit by MeasureAll or
// amplitude-queried at the original width.
//
// Beyond the global phase removal below, the collapsed edge's phase is left exactly as
// renormalization produces it — the spec does not mandate anything
// further, only that probabilities are consistent.
func (m *Measurer) MeasureQubit(e nodetable.Edge, q, nQubits int, sample float64) (Result, error) {
	p0, p1, err := m.outcomeMass(e, 0, q, nQubits)
	if err != nil {
		return Result{}, err
	}

	total := p0 + p1
	const unitarityTol = 1e-6
	if math.Abs(total-1) > unitarityTol {
		return Result{}, &ErrNotUnitary{Observed: total, Tolerance: unitarityTol}
	}

	outcome, prob := 0, p0
	if sample >= p0/total {
		outcome, prob = 1, p1
	}
	if prob <= 0 {
		return Result{}, fmt.Errorf("measure: selected outcome %d for qubit %d has zero probability", outcome, q)
	}

	scaleHandle, err := m.Weights.Intern(complex(1/math.Sqrt(prob), 0))
	if err != nil {
		return Result{}, err
	}
	collapsed, err := m.collapse(e, 0, q, outcome, scaleHandle)
	if err != nil {
		return Result{}, err
	}

	// Global phase removal: the root weight normalizer.Apply extracted
	// when combining the two (one real, one zero) children may carry an
	// arbitrary phase; replace it with its absolute value since global
	// phase is unobservable and the spec calls for a canonical result.
	absWeight, err := m.Weights.Abs(collapsed.Weight)
	if err != nil {
		return Result{}, err
	}
	collapsed.Weight = absWeight

	return Result{
		Qubit:       q,
		Outcome:     outcome,
		Probability: prob / total,
		Edge:        collapsed,
	}, nil
}

// AllResult is the outcome of measuring every qubit in order.
type AllResult struct {
	Bits        []int
	Probability float64
	Edge        nodetable.Edge
}

// MeasureAll implements spec §4.10's measure_all: qubits are collapsed
// one at a time, in ascending order, each against its own caller-supplied
// sample.
func (m *Measurer) MeasureAll(e nodetable.Edge, nQubits int, samples []float64) (AllResult, error) {
	if len(samples) != nQubits {
		return AllResult{}, fmt.Errorf("measure: need %d samples, got %d", nQubits, len(samples))
	}

	bits := make([]int, nQubits)
	prob := 1.0
	cur := e
	for q := 0; q < nQubits; q++ {
		res, err := m.MeasureQubit(cur, q, nQubits, samples[q])
		if err != nil {
			return AllResult{}, err
		}
		bits[q] = res.Outcome
		prob *= res.Probability
		cur = res.Edge
	}
	return AllResult{Bits: bits, Probability: prob, Edge: cur}, nil
}

// Amplitude returns the complex amplitude of the basis state named by
// bits (one entry per qubit, 0 or 1), by cofactoring down through every
// qubit and reading the terminal weight.
func (m *Measurer) Amplitude(e nodetable.Edge, bits []int) (complex128, error) {
	cur := e
	for q, b := range bits {
		lo, hi, err := m.cofactor(cur, uint32(q))
		if err != nil {
			return 0, err
		}
		if b == 0 {
			cur = lo
		} else {
			cur = hi
		}
	}
	if cur.Target != nodetable.Terminal {
		return 0, fmt.Errorf("measure: amplitude query did not reach terminal (missing bits for remaining qubits)")
	}
	return m.Weights.Get(cur.Weight)
}
