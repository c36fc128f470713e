// Package normalizer implements the Normalizer component of the QMDD
// core: given a pair of child edges, factor out a common weight so the
// remaining pair satisfies one of two canonical forms.
//
// Both strategies are direct Go renderings of q-sylvan's
// qdd_amp_normalize_low and qdd_amp_normalize_largest
// (src/sylvan_qdd.c).
package normalizer

import (
	"github.com/kegliz/qmdd/internal/qmdd/nodetable"
	"github.com/kegliz/qmdd/internal/qmdd/weight"
)

// Strategy selects which canonical form the Normalizer targets. Exactly
// one strategy must be fixed for the lifetime of a Context (spec §4.4,
// §9): nodes built under different strategies are incomparable.
type Strategy int

const (
	// Low normalizes on the low child's weight when it is non-zero,
	// otherwise on the high child's weight.
	Low Strategy = iota
	// Largest normalizes on whichever child weight has the larger
	// squared magnitude, ties broken by choosing low.
	Largest
)

func (s Strategy) String() string {
	switch s {
	case Low:
		return "low"
	case Largest:
		return "largest"
	default:
		return "unknown"
	}
}

// Apply factors a common weight w out of (low, high), returning w and the
// normalized pair (low', high') with low'.Target == low.Target and
// high'.Target == high.Target unchanged — only the weight components
// change. Callers must not invoke Apply when low == high (the Builder's
// "no redundant node" rule, invariant 2, handles that case directly) nor
// when both children carry the zero weight (invariant 5 canonicalizes
// that to the terminal edge before normalization is ever reached).
func Apply(strategy Strategy, store *weight.Store, low, high nodetable.Edge) (w weight.Handle, lowP, highP nodetable.Edge, err error) {
	switch strategy {
	case Low:
		return applyLow(store, low, high)
	case Largest:
		return applyLargest(store, low, high)
	default:
		return applyLargest(store, low, high)
	}
}

func applyLow(store *weight.Store, low, high nodetable.Edge) (weight.Handle, nodetable.Edge, nodetable.Edge, error) {
	if low.Weight != store.Zero {
		w := low.Weight
		hw, err := store.Div(high.Weight, w)
		if err != nil {
			return 0, nodetable.Edge{}, nodetable.Edge{}, err
		}
		return w, nodetable.Edge{Weight: store.One, Target: low.Target},
			nodetable.Edge{Weight: hw, Target: high.Target}, nil
	}
	w := high.Weight
	return w, nodetable.Edge{Weight: store.Zero, Target: low.Target},
		nodetable.Edge{Weight: store.One, Target: high.Target}, nil
}

func applyLargest(store *weight.Store, low, high nodetable.Edge) (weight.Handle, nodetable.Edge, nodetable.Edge, error) {
	if low.Weight == high.Weight {
		w := low.Weight
		return w, nodetable.Edge{Weight: store.One, Target: low.Target},
			nodetable.Edge{Weight: store.One, Target: high.Target}, nil
	}

	lowMag, err := store.SquaredMagnitude(low.Weight)
	if err != nil {
		return 0, nodetable.Edge{}, nodetable.Edge{}, err
	}
	highMag, err := store.SquaredMagnitude(high.Weight)
	if err != nil {
		return 0, nodetable.Edge{}, nodetable.Edge{}, err
	}

	if lowMag >= highMag {
		w := low.Weight
		hw, err := store.Div(high.Weight, w)
		if err != nil {
			return 0, nodetable.Edge{}, nodetable.Edge{}, err
		}
		return w, nodetable.Edge{Weight: store.One, Target: low.Target},
			nodetable.Edge{Weight: hw, Target: high.Target}, nil
	}

	w := high.Weight
	lw, err := store.Div(low.Weight, w)
	if err != nil {
		return 0, nodetable.Edge{}, nodetable.Edge{}, err
	}
	return w, nodetable.Edge{Weight: lw, Target: low.Target},
		nodetable.Edge{Weight: store.One, Target: high.Target}, nil
}
