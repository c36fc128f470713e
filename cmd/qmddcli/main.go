// Command qmddcli demonstrates the qmdd façade the way the teacher's
// cmd/cli demonstrated its statevector simulator: a Bell state and a
// couple of Grover searches, this time built directly out of Context
// operations and measured with MeasureAll over repeated shots.
package main

import (
	"flag"
	"fmt"
	"sort"

	qmdd "github.com/kegliz/qmdd"
)

func main() {
	shots := flag.Int("shots", 1024, "number of measurement shots per demo")
	flag.Parse()

	ctx, err := qmdd.New(qmdd.Options{
		NodeCapacity:   1 << 16,
		WeightCapacity: 1 << 16,
		CacheCapacity:  1 << 16,
		Tolerance:      1e-9,
		NormStrategy:   qmdd.NormLargest,
	})
	if err != nil {
		fmt.Println("error building qmdd context:", err)
		return
	}
	defer ctx.Shutdown()

	fmt.Println("--- Bell State ---")
	bell, err := buildBellState(ctx)
	if err != nil {
		fmt.Println("error building Bell state:", err)
		return
	}
	sample(ctx, bell, 2, *shots)

	fmt.Println("\n--- 2-Qubit Grover (|11>) ---")
	g2, err := buildGrover2Qubit(ctx)
	if err != nil {
		fmt.Println("error building 2-qubit Grover circuit:", err)
		return
	}
	sample(ctx, g2, 2, *shots)

	fmt.Println("\n--- 3-Qubit Grover (|111>) ---")
	g3, err := buildGrover3Qubit(ctx)
	if err != nil {
		fmt.Println("error building 3-qubit Grover circuit:", err)
		return
	}
	sample(ctx, g3, 3, *shots)
}

// buildBellState prepares the |Phi+> Bell state.
func buildBellState(ctx *qmdd.Context) (qmdd.Edge, error) {
	e, err := ctx.AllZeroState(2)
	if err != nil {
		return qmdd.Edge{}, err
	}
	e, err = ctx.Gate(e, qmdd.H, 0)
	if err != nil {
		return qmdd.Edge{}, err
	}
	return ctx.CGate(e, qmdd.X, 0, 1)
}

// buildGrover2Qubit amplifies |11> via a single Grover iteration over a
// 2-qubit search space: superposition, CZ oracle, CZ-sandwiched diffusion.
func buildGrover2Qubit(ctx *qmdd.Context) (qmdd.Edge, error) {
	e, err := ctx.AllZeroState(2)
	if err != nil {
		return qmdd.Edge{}, err
	}
	e, err = applyEach(ctx, e, qmdd.H, 0, 1)
	if err != nil {
		return qmdd.Edge{}, err
	}
	if e, err = ctx.CGate(e, qmdd.Z, 0, 1); err != nil { // oracle marks |11>
		return qmdd.Edge{}, err
	}
	if e, err = diffuse2(ctx, e); err != nil {
		return qmdd.Edge{}, err
	}
	return e, nil
}

func diffuse2(ctx *qmdd.Context, e qmdd.Edge) (qmdd.Edge, error) {
	var err error
	if e, err = applyEach(ctx, e, qmdd.H, 0, 1); err != nil {
		return qmdd.Edge{}, err
	}
	if e, err = applyEach(ctx, e, qmdd.X, 0, 1); err != nil {
		return qmdd.Edge{}, err
	}
	if e, err = ctx.CGate(e, qmdd.Z, 0, 1); err != nil {
		return qmdd.Edge{}, err
	}
	if e, err = applyEach(ctx, e, qmdd.X, 0, 1); err != nil {
		return qmdd.Edge{}, err
	}
	return applyEach(ctx, e, qmdd.H, 0, 1)
}

// buildGrover3Qubit amplifies |111> using a CCZ oracle (built from H +
// Toffoli-equivalent CGateMulti) and the matching 3-qubit diffusion.
func buildGrover3Qubit(ctx *qmdd.Context) (qmdd.Edge, error) {
	e, err := ctx.AllZeroState(3)
	if err != nil {
		return qmdd.Edge{}, err
	}
	if e, err = applyEach(ctx, e, qmdd.H, 0, 1, 2); err != nil {
		return qmdd.Edge{}, err
	}
	if e, err = ccz(ctx, e, 0, 1, 2); err != nil {
		return qmdd.Edge{}, err
	}
	if e, err = applyEach(ctx, e, qmdd.H, 0, 1, 2); err != nil {
		return qmdd.Edge{}, err
	}
	if e, err = applyEach(ctx, e, qmdd.X, 0, 1, 2); err != nil {
		return qmdd.Edge{}, err
	}
	if e, err = ccz(ctx, e, 0, 1, 2); err != nil {
		return qmdd.Edge{}, err
	}
	if e, err = applyEach(ctx, e, qmdd.X, 0, 1, 2); err != nil {
		return qmdd.Edge{}, err
	}
	return applyEach(ctx, e, qmdd.H, 0, 1, 2)
}

// ccz applies a doubly-controlled phase flip to target via
// H(target) CGateMulti(X, controls, target) H(target).
func ccz(ctx *qmdd.Context, e qmdd.Edge, c1, c2, target int) (qmdd.Edge, error) {
	var err error
	if e, err = ctx.Gate(e, qmdd.H, target); err != nil {
		return qmdd.Edge{}, err
	}
	if e, err = ctx.CGateMulti(e, qmdd.X, []int{c1, c2}, target); err != nil {
		return qmdd.Edge{}, err
	}
	return ctx.Gate(e, qmdd.H, target)
}

func applyEach(ctx *qmdd.Context, e qmdd.Edge, gateID qmdd.GateID, qubits ...int) (qmdd.Edge, error) {
	var err error
	for _, q := range qubits {
		e, err = ctx.Gate(e, gateID, q)
		if err != nil {
			return qmdd.Edge{}, err
		}
	}
	return e, nil
}

// sample draws shots measurements of e over nQubits qubits and prints a
// sorted histogram, mirroring the teacher's pretty().
func sample(ctx *qmdd.Context, e qmdd.Edge, nQubits, shots int) {
	hist := make(map[string]int)
	for i := 0; i < shots; i++ {
		res, err := ctx.MeasureAll(e, nQubits)
		if err != nil {
			fmt.Println("measurement error:", err)
			return
		}
		hist[bitsKey(res.Bits)]++
	}
	pretty(hist, shots)
}

func bitsKey(bits []int) string {
	buf := make([]byte, len(bits))
	for i, b := range bits {
		if b == 0 {
			buf[i] = '0'
		} else {
			buf[i] = '1'
		}
	}
	return string(buf)
}

func pretty(hist map[string]int, shots int) {
	keys := make([]string, 0, len(hist))
	for k := range hist {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, state := range keys {
		count := hist[state]
		probability := float64(count) / float64(shots)
		fmt.Printf("State |%s>: %d counts (%.2f%%)\n", state, count, probability*100)
	}
}
