// Package qmdd is the façade over the QMDD core: a Context value bundles
// the WeightStore, NodeTable, OpCache, Normalizer/Builder, GateLibrary,
// Apply kernels, GC collector and Measurer (spec §9's "Context, not
// singleton" re-architecture) and exposes the operation surface of
// spec §6 as methods.
package qmdd

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/kegliz/qmdd/internal/logger"
	"github.com/kegliz/qmdd/internal/qmdd/apply"
	"github.com/kegliz/qmdd/internal/qmdd/canon"
	"github.com/kegliz/qmdd/internal/qmdd/gatelib"
	"github.com/kegliz/qmdd/internal/qmdd/gc"
	"github.com/kegliz/qmdd/internal/qmdd/measure"
	"github.com/kegliz/qmdd/internal/qmdd/nodetable"
	"github.com/kegliz/qmdd/internal/qmdd/normalizer"
	"github.com/kegliz/qmdd/internal/qmdd/opcache"
	"github.com/kegliz/qmdd/internal/qmdd/weight"
)

// Concrete data-model types (spec §3 / SPEC_FULL.md §3). WeightHandle and
// NodeHandle are opaque table indices; Edge is the value-type reference
// unit exposed to clients; Node mirrors the (var, low, high) triple for
// introspection/export.
type (
	WeightHandle = weight.Handle
	NodeHandle   = nodetable.Handle
	Edge         = nodetable.Edge
)

// Node is a read-only snapshot of one NodeTable entry, used by
// introspection and DOT/PNG export; it is never the unit of reference
// clients hold (Edge is).
type Node struct {
	Var  uint32
	Low  Edge
	High Edge
}

// Terminal is the unique leaf sentinel; every complete path ends here.
const Terminal = nodetable.Terminal

// NormStrategy selects the Normalizer's canonical form (spec §4.4). Fixed
// for the lifetime of a Context.
type NormStrategy = normalizer.Strategy

const (
	NormLow     = normalizer.Low
	NormLargest = normalizer.Largest
)

// Options configures a new Context (spec §6's init(node_cap, weight_cap,
// cache_cap, tol, norm_strategy)). The OpCache itself is an unbounded
// sync.Map (§4.3 "lossy... may evict arbitrarily" is satisfied trivially
// by never evicting under memory pressure the Go runtime wouldn't also
// feel for the node/weight tables); CacheCapacity is accepted for
// interface parity with spec §6 but is not read: it neither bounds the
// cache nor appears in TableStats, which reports only the cache's current
// entry count.
type Options struct {
	NodeCapacity   uint64
	WeightCapacity uint64
	CacheCapacity  uint64
	Tolerance      float64
	NormStrategy   NormStrategy
	Debug          bool
	// RandSource seeds MeasureQubit/MeasureAll's sampling; nil selects a
	// time-seeded source. Tests that need reproducible measurement
	// outcomes should set this explicitly.
	RandSource rand.Source
}

// Context is the façade over one independent QMDD core instance. All
// core operations are methods on *Context; there is no package-level
// mutable state (spec §9).
type Context struct {
	opts Options
	log  *logger.Logger

	weights *weight.Store
	nodes   *nodetable.Table
	cache   *opcache.Cache
	builder *canon.Builder
	gates   *gatelib.Library
	kernels *apply.Kernels
	coll    *gc.Collector
	meas    *measure.Measurer

	rngMu sync.Mutex
	rng   *rand.Rand

	rootsMu    sync.Mutex
	protect    map[Edge]struct{}
	gateGen    uint64
	shutdownFl bool
}

// New builds a Context per Options (spec §6 init). A norm strategy is
// required to be fixed for the Context's lifetime (spec §4.4/§9); the
// zero value of NormStrategy is NormLow, which is accepted as a valid
// explicit default.
func New(opts Options) (*Context, error) {
	weights := weight.New(weight.Options{Capacity: opts.WeightCapacity, Tolerance: opts.Tolerance})
	nodes := nodetable.New(nodetable.Options{Capacity: opts.NodeCapacity})
	cache := opcache.New()
	builder := canon.New(nodes, weights, opts.NormStrategy)
	gates, err := gatelib.New(weights)
	if err != nil {
		return nil, fmt.Errorf("qmdd: building gate library: %w", err)
	}
	kernels := apply.New(nodes, weights, cache, builder, gates)
	collector := gc.New(nodes, cache)
	meas := measure.New(nodes, weights, builder)

	src := opts.RandSource
	if src == nil {
		src = rand.NewSource(time.Now().UnixNano())
	}

	l := logger.NewLogger(logger.LoggerOptions{Debug: opts.Debug})

	c := &Context{
		opts:    opts,
		log:     l,
		weights: weights,
		nodes:   nodes,
		cache:   cache,
		builder: builder,
		gates:   gates,
		kernels: kernels,
		coll:    collector,
		meas:    meas,
		rng:     rand.New(src),
		protect: make(map[Edge]struct{}),
		gateGen: gates.Generation(),
	}
	c.log.Info().
		Uint64("nodeCapacity", nodes.Capacity()).
		Uint64("weightCapacity", weights.Capacity()).
		Float64("tolerance", weights.Tolerance()).
		Str("normStrategy", opts.NormStrategy.String()).
		Msg("qmdd context initialized")
	return c, nil
}

// Shutdown releases the Context. Afterward the state-construction, gate,
// algebra, measurement, amplitude/ProbSum and Register* methods return
// ErrShutdown, matching the teacher's freeze-after-close convention
// (qc/dag's post-validate immutability) generalized to a hard stop. The
// introspection methods (NodeCount, WeightCount, TableStats, Node,
// WeightValue), Protect/Unprotect, Collect, RebuildWeights and
// Rk/RkDagger do not check for shutdown.
func (c *Context) Shutdown() {
	c.rootsMu.Lock()
	defer c.rootsMu.Unlock()
	c.shutdownFl = true
	c.log.Info().Msg("qmdd context shut down")
}

func (c *Context) checkAlive() error {
	c.rootsMu.Lock()
	defer c.rootsMu.Unlock()
	if c.shutdownFl {
		return &ErrShutdown{}
	}
	return nil
}

// sample draws the next uniform [0,1) value from the Context's private
// random source (guarded since *rand.Rand is not itself concurrency
// safe).
func (c *Context) sample() float64 {
	c.rngMu.Lock()
	defer c.rngMu.Unlock()
	return c.rng.Float64()
}

// --- state construction -----------------------------------------------

// AllZeroState returns the n-qubit |0...0> state (spec §6 all_zero_state).
func (c *Context) AllZeroState(n int) (Edge, error) {
	bits := make([]int, n)
	return c.BasisState(n, bits)
}

// BasisState returns the n-qubit computational-basis state named by bits
// (spec §6 basis_state), built bottom-up: the terminal at level n carries
// weight ONE, and each level's node routes the observed bit's branch to
// the sub-edge and the other branch to the canonical zero edge.
func (c *Context) BasisState(n int, bits []int) (Edge, error) {
	if err := c.checkAlive(); err != nil {
		return Edge{}, err
	}
	if len(bits) != n {
		return Edge{}, fmt.Errorf("qmdd: basis_state needs %d bits, got %d", n, len(bits))
	}
	e := Edge{Weight: c.weights.One, Target: Terminal}
	zero := c.builder.ZeroEdge()
	for level := n - 1; level >= 0; level-- {
		var err error
		switch bits[level] {
		case 0:
			e, err = c.builder.MakeEdge(uint32(level), e, zero)
		case 1:
			e, err = c.builder.MakeEdge(uint32(level), zero, e)
		default:
			return Edge{}, fmt.Errorf("qmdd: basis_state bit %d at qubit %d must be 0 or 1", bits[level], level)
		}
		if err != nil {
			return Edge{}, err
		}
	}
	return e, nil
}

// IdentityMatrix returns the n-qubit identity matrix edge (SPEC_FULL.md
// §4 supplement, used by the mat_vec(identity, v) == v round-trip law of
// spec §8). Matrices use the two-level-per-qubit row/column encoding of
// spec §4.6.
func (c *Context) IdentityMatrix(n int) (Edge, error) {
	if err := c.checkAlive(); err != nil {
		return Edge{}, err
	}
	return c.identityMatrix(n, 0)
}

func (c *Context) identityMatrix(n, level int) (Edge, error) {
	if level == n {
		return Edge{Weight: c.weights.One, Target: Terminal}, nil
	}
	sub, err := c.identityMatrix(n, level+1)
	if err != nil {
		return Edge{}, err
	}
	zero := c.builder.ZeroEdge()
	row0, err := c.builder.MakeEdge(uint32(2*level+1), sub, zero)
	if err != nil {
		return Edge{}, err
	}
	row1, err := c.builder.MakeEdge(uint32(2*level+1), zero, sub)
	if err != nil {
		return Edge{}, err
	}
	return c.builder.MakeEdge(uint32(2*level), row0, row1)
}

// --- gate application ---------------------------------------------------

// Gate applies the single-qubit unitary gateID to qubit target of the
// state-vector edge v (spec §6/§4.6 gate).
func (c *Context) Gate(v Edge, gateID GateID, target int) (Edge, error) {
	if err := c.checkAlive(); err != nil {
		return Edge{}, err
	}
	if target < 0 {
		return Edge{}, fmt.Errorf("qmdd: gate target qubit %d must be >= 0", target)
	}
	r, err := c.kernels.Gate(v, gateID, uint32(target))
	if err != nil {
		return Edge{}, err
	}
	c.log.Debug().Uint64("v", uint64(v.Target)).Uint32("gate", uint32(gateID)).Int("target", target).Msg("gate")
	return r, nil
}

// CGate applies a singly-controlled gateID: control qubit control gates
// application of gateID to qubit target (spec §6/§4.6 c_gate).
func (c *Context) CGate(v Edge, gateID GateID, control, target int) (Edge, error) {
	if err := c.checkAlive(); err != nil {
		return Edge{}, err
	}
	if control == target {
		return Edge{}, fmt.Errorf("qmdd: cgate control and target qubit must differ (both %d)", control)
	}
	r, err := c.kernels.CGate(v, gateID, uint32(control), uint32(target))
	if err != nil {
		return Edge{}, err
	}
	c.log.Debug().Uint32("gate", uint32(gateID)).Int("control", control).Int("target", target).Msg("cgate")
	return r, nil
}

// CGateMulti applies gateID to target controlled on every qubit in
// controls all being |1> (spec §6/§4.6 multi-control variant).
func (c *Context) CGateMulti(v Edge, gateID GateID, controls []int, target int) (Edge, error) {
	if err := c.checkAlive(); err != nil {
		return Edge{}, err
	}
	cs := make([]uint32, len(controls))
	for i, ctrl := range controls {
		if ctrl == target {
			return Edge{}, fmt.Errorf("qmdd: cgate_multi control qubit %d equals target qubit", ctrl)
		}
		cs[i] = uint32(ctrl)
	}
	r, err := c.kernels.CGateMulti(v, gateID, cs, uint32(target))
	if err != nil {
		return Edge{}, err
	}
	c.log.Debug().Uint32("gate", uint32(gateID)).Ints("controls", controls).Int("target", target).Msg("cgate_multi")
	return r, nil
}

// --- algebra -------------------------------------------------------------

// Plus returns a + b (spec §6/§4.6 plus); a and b must represent
// identically-shaped vectors or matrices.
func (c *Context) Plus(a, b Edge) (Edge, error) {
	if err := c.checkAlive(); err != nil {
		return Edge{}, err
	}
	return c.kernels.Plus(a, b)
}

// MatVec applies matrix edge m to vector edge v, both over nQubits
// qubits (spec §6/§4.6 mat_vec). nQubits is required by the recursion's
// termination condition (the two-level-per-qubit matrix encoding cannot
// otherwise tell "no more qubits" from "this qubit's variable was
// skipped") — a necessary concretization of spec §6's abbreviated
// two-argument signature.
func (c *Context) MatVec(m, v Edge, nQubits int) (Edge, error) {
	if err := c.checkAlive(); err != nil {
		return Edge{}, err
	}
	return c.kernels.MatVec(m, v, nQubits)
}

// MatMat multiplies matrix edges a and b, both over nQubits qubits
// (spec §6/§4.6 mat_mat). See MatVec's doc comment for why nQubits is
// required explicitly.
func (c *Context) MatMat(a, b Edge, nQubits int) (Edge, error) {
	if err := c.checkAlive(); err != nil {
		return Edge{}, err
	}
	return c.kernels.MatMat(a, b, nQubits)
}

// --- measurement ---------------------------------------------------------

// MeasureResult is the outcome of measuring a single qubit.
type MeasureResult = measure.Result

// MeasureAllResult is the outcome of measuring every qubit in order.
type MeasureAllResult = measure.AllResult

// MeasureQubit measures qubit q of state-vector edge v, drawing an
// outcome against the Context's private random source (spec §6/§4.10
// measure_qubit).
func (c *Context) MeasureQubit(v Edge, q, nQubits int) (MeasureResult, error) {
	if err := c.checkAlive(); err != nil {
		return MeasureResult{}, err
	}
	res, err := c.meas.MeasureQubit(v, q, nQubits, c.sample())
	if err != nil {
		return MeasureResult{}, err
	}
	c.log.Debug().Int("qubit", q).Int("outcome", res.Outcome).Float64("prob", res.Probability).Msg("measure_qubit")
	return res, nil
}

// MeasureAll measures every qubit of state-vector edge v in ascending
// order (spec §6/§4.10 measure_all).
func (c *Context) MeasureAll(v Edge, nQubits int) (MeasureAllResult, error) {
	if err := c.checkAlive(); err != nil {
		return MeasureAllResult{}, err
	}
	samples := make([]float64, nQubits)
	for i := range samples {
		samples[i] = c.sample()
	}
	res, err := c.meas.MeasureAll(v, nQubits, samples)
	if err != nil {
		return MeasureAllResult{}, err
	}
	c.log.Debug().Ints("bits", res.Bits).Float64("prob", res.Probability).Msg("measure_all")
	return res, nil
}

// GetAmplitude returns the complex amplitude of the basis state named by
// bits (spec §6 get_amplitude).
func (c *Context) GetAmplitude(v Edge, bits []int) (complex128, error) {
	if err := c.checkAlive(); err != nil {
		return 0, err
	}
	return c.meas.Amplitude(v, bits)
}

// ProbSum returns the total squared-magnitude mass reachable from v,
// treating it as a full nQubits-qubit state rooted at level 0 (spec
// §4.10 prob_sum). Exposed for the "probability normalization" testable
// property of spec §8.
func (c *Context) ProbSum(v Edge, nQubits int) (float64, error) {
	if err := c.checkAlive(); err != nil {
		return 0, err
	}
	return c.meas.ProbSum(v, 0, nQubits)
}

// --- gate registration ----------------------------------------------------

// RegisterRx allocates a dynamic gate id for Rx(theta) (spec §6).
func (c *Context) RegisterRx(theta float64) (GateID, error) { return c.registerDynamic(c.gates.RegisterRx, theta) }

// RegisterRy allocates a dynamic gate id for Ry(theta) (spec §6).
func (c *Context) RegisterRy(theta float64) (GateID, error) { return c.registerDynamic(c.gates.RegisterRy, theta) }

// RegisterRz allocates a dynamic gate id for Rz(theta) (spec §6).
func (c *Context) RegisterRz(theta float64) (GateID, error) { return c.registerDynamic(c.gates.RegisterRz, theta) }

func (c *Context) registerDynamic(register func(float64) (GateID, error), theta float64) (GateID, error) {
	if err := c.checkAlive(); err != nil {
		return 0, err
	}
	id, err := register(theta)
	if err != nil {
		return 0, err
	}
	// Dynamic-id pool wraparound bumps the GateLibrary's generation
	// counter; flush the OpCache so a recycled id can't hit a stale
	// cache entry keyed against its previous occupant (spec §4.7/§9).
	if gen := c.gates.Generation(); gen != c.gateGen {
		c.gateGen = gen
		c.cache.Flush()
		c.log.Info().Uint64("generation", gen).Msg("dynamic gate pool wrapped; opcache flushed")
	}
	return id, nil
}

// Rk returns the id of the Rk(k) phase gate (spec §4.7/§8).
func (c *Context) Rk(k int) (GateID, error) { return gatelib.Rk(k) }

// RkDagger returns the id of Rk†(k) (spec §4.7).
func (c *Context) RkDagger(k int) (GateID, error) { return gatelib.RkDagger(k) }

// --- introspection --------------------------------------------------------

// NodeCount returns the number of distinct nodes reachable from edge v
// (spec §6 node_count): a DFS over the DAG counting each node handle
// once, pruning already-visited subtrees exactly as the GC mark phase
// does.
func (c *Context) NodeCount(v Edge) uint64 {
	seen := make(map[NodeHandle]struct{})
	var walk func(h NodeHandle)
	walk = func(h NodeHandle) {
		if h == Terminal {
			return
		}
		if _, ok := seen[h]; ok {
			return
		}
		seen[h] = struct{}{}
		_, low, high, err := c.nodes.Get(h)
		if err != nil {
			return
		}
		walk(low.Target)
		walk(high.Target)
	}
	walk(v.Target)
	return uint64(len(seen))
}

// WeightCount returns the number of distinct weight values currently
// interned (SPEC_FULL.md §4 supplement, ports q-sylvan's weight-table
// occupancy introspection).
func (c *Context) WeightCount() uint64 { return c.weights.Count() }

// TableStats reports occupancy/capacity for the node and weight tables
// plus the operation cache's approximate size (SPEC_FULL.md §4
// supplement / §6 introspection server).
type TableStats struct {
	NodeCount      uint64
	NodeCapacity   uint64
	WeightCount    uint64
	WeightCapacity uint64
	CacheLen       int64
}

func (c *Context) TableStats() TableStats {
	return TableStats{
		NodeCount:      c.nodes.Count(),
		NodeCapacity:   c.nodes.Capacity(),
		WeightCount:    c.weights.Count(),
		WeightCapacity: c.weights.Capacity(),
		CacheLen:       c.cache.Len(),
	}
}

// EdgesEqual reports whether a and b are the same edge — trivial given
// canonical form, but exposed since original_source's QDD_EQUAL macro is
// used pervasively by algorithm drivers and tests (spec §8 "Canonicity",
// SPEC_FULL.md §4 supplement).
func EdgesEqual(a, b Edge) bool { return a == b }

// Node returns a read-only snapshot of the NodeTable entry at h, for
// introspection and DOT/PNG export. Returns ok=false for the terminal or
// a stale handle.
func (c *Context) Node(h NodeHandle) (Node, bool) {
	if h == Terminal {
		return Node{}, false
	}
	v, low, high, err := c.nodes.Get(h)
	if err != nil {
		return Node{}, false
	}
	return Node{Var: v, Low: low, High: high}, true
}

// WeightValue returns the complex value behind a weight handle, for
// introspection and DOT/PNG export.
func (c *Context) WeightValue(h WeightHandle) (complex128, error) { return c.weights.Get(h) }

// --- resource management --------------------------------------------------

// Protect pins e so it survives Collect as a GC root, modelling spec
// §5's "protect table (set of addresses holding live edges)".
func (c *Context) Protect(e Edge) {
	c.rootsMu.Lock()
	defer c.rootsMu.Unlock()
	c.protect[e] = struct{}{}
}

// Unprotect releases a previously-protected edge.
func (c *Context) Unprotect(e Edge) {
	c.rootsMu.Lock()
	defer c.rootsMu.Unlock()
	delete(c.protect, e)
}

// Collect runs one stop-the-world mark-sweep GC cycle (spec §4.8):
// roots are every protected edge plus any extraRoots passed explicitly
// (the Context's equivalent of spec §5's "external reference table" and
// "in-flight Apply operand stack" — Go holds the latter on the call
// stack automatically, so there is nothing additional to walk there).
// Callers MUST ensure no other Apply/measurement call is concurrently in
// flight (GC quiescence, spec §5); the core does not enforce this itself.
func (c *Context) Collect(extraRoots ...Edge) uint64 {
	before := c.nodes.Count()
	roots := func(yield func(nodetable.Edge)) {
		c.rootsMu.Lock()
		for e := range c.protect {
			yield(e)
		}
		c.rootsMu.Unlock()
		for _, e := range extraRoots {
			yield(e)
		}
	}
	freed := c.coll.Collect(roots)
	if freed > 0 {
		c.meas.Flush()
	}
	c.log.Info().Uint64("before", before).Uint64("freed", freed).Uint64("after", c.nodes.Count()).Msg("gc collect")
	return freed
}

// RebuildWeights reclaims WeightStore slots for weights no longer
// referenced by any live node (spec §4.9): a fresh store is built,
// every live node's child weights are rewritten against it, the gate
// library's matrix entries are re-interned (they are long-lived handle
// caches too), and every currently-protected edge is translated and
// re-protected so the caller's held edges remain valid. extraRoots are
// translated but not protected. The OpCache is flushed unconditionally.
// Returns the translated extraRoots in the same order they were given.
func (c *Context) RebuildWeights(extraRoots ...Edge) ([]Edge, error) {
	oldStore := c.weights
	newStore, err := c.coll.RebuildWeights(oldStore, weight.Options{
		Capacity:  oldStore.Capacity(),
		Tolerance: oldStore.Tolerance(),
	})
	if err != nil {
		return nil, err
	}

	if err := c.gates.Rebind(newStore); err != nil {
		return nil, err
	}

	c.rootsMu.Lock()
	newProtect := make(map[Edge]struct{}, len(c.protect))
	for e := range c.protect {
		ne, err := gc.RewriteRootWeight(oldStore, newStore, e)
		if err != nil {
			c.rootsMu.Unlock()
			return nil, err
		}
		newProtect[ne] = struct{}{}
	}
	c.protect = newProtect
	c.rootsMu.Unlock()

	translated := make([]Edge, len(extraRoots))
	for i, e := range extraRoots {
		ne, err := gc.RewriteRootWeight(oldStore, newStore, e)
		if err != nil {
			return nil, err
		}
		translated[i] = ne
	}

	c.weights = newStore
	c.builder.Weights = newStore
	c.kernels.Weights = newStore
	c.meas.Weights = newStore
	c.log.Info().Uint64("weightCount", newStore.Count()).Msg("weight table rebuilt")
	return translated, nil
}
