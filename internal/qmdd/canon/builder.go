// Package canon implements the Builder component of the QMDD core
// (spec §4.5's make_edge): the sole producer of non-terminal edges in the
// entire system. Every Apply kernel and every external gate/measurement
// operation constructs edges exclusively through Builder.MakeEdge so the
// canonical-form invariants of spec §3 hold everywhere.
package canon

import (
	"github.com/kegliz/qmdd/internal/qmdd/nodetable"
	"github.com/kegliz/qmdd/internal/qmdd/normalizer"
	"github.com/kegliz/qmdd/internal/qmdd/weight"
)

// Builder ties together a NodeTable, a WeightStore, and a fixed
// Normalizer strategy.
type Builder struct {
	Nodes    *nodetable.Table
	Weights  *weight.Store
	Strategy normalizer.Strategy
}

// New returns a Builder for the given tables and strategy. The strategy
// is fixed for the Builder's lifetime (spec §4.4/§9).
func New(nodes *nodetable.Table, weights *weight.Store, strategy normalizer.Strategy) *Builder {
	return &Builder{Nodes: nodes, Weights: weights, Strategy: strategy}
}

// MakeEdge implements the five-step algorithm of spec §4.5:
//  1. force zero-weight children to target the terminal,
//  2. return low directly when low == high (the "no redundant node" rule),
//  3. normalize the remaining pair via the configured Normalizer,
//  4. look up or insert the (var, low', high') node,
//  5. return the edge (w, node).
func (b *Builder) MakeEdge(v uint32, low, high nodetable.Edge) (nodetable.Edge, error) {
	if low.Weight == b.Weights.Zero {
		low.Target = nodetable.Terminal
	}
	if high.Weight == b.Weights.Zero {
		high.Target = nodetable.Terminal
	}

	if low == high {
		return low, nil
	}

	w, lowP, highP, err := normalizer.Apply(b.Strategy, b.Weights, low, high)
	if err != nil {
		return nodetable.Edge{}, err
	}

	node, err := b.Nodes.LookupOrInsert(v, lowP, highP)
	if err != nil {
		return nodetable.Edge{}, err
	}

	return nodetable.Edge{Weight: w, Target: node}, nil
}

// ZeroEdge returns the canonical zero edge (spec invariant 5).
func (b *Builder) ZeroEdge() nodetable.Edge {
	return nodetable.Edge{Weight: b.Weights.Zero, Target: nodetable.Terminal}
}

// IsZero reports whether e is the canonical zero edge.
func (b *Builder) IsZero(e nodetable.Edge) bool {
	return e.Weight == b.Weights.Zero
}
