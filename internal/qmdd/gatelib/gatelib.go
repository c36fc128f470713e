// Package gatelib implements the GateLibrary component of the QMDD core:
// predefined 2x2 unitary ids, the Rk/Rk-dagger phase-gate family, and a
// wrap-around pool of dynamically-allocated ids for Rx/Ry/Rz with
// arbitrary angles (spec §4.7).
package gatelib

import (
	"fmt"
	"math"
	"sync"

	"github.com/kegliz/qmdd/internal/qmdd/weight"
)

// ID identifies a 2x2 unitary: a predefined static gate, a precomputed
// Rk/Rk-dagger phase gate, or a dynamically-registered Rx/Ry/Rz instance.
type ID uint32

// Predefined static gate ids.
const (
	I ID = iota
	X
	Y
	Z
	H
	S
	Sdg
	T
	Tdg
	SqrtX
	SqrtXdg
	SqrtY
	SqrtYdg
	staticCount
)

const (
	// rkBase is the first id of the Rk/Rk-dagger family; 256 values of k,
	// two ids each (Rk(k), Rk†(k)).
	rkBase = 1000
	rkMax  = 256

	// dynamicBase is the first id of the wrap-around dynamic pool.
	dynamicBase = 10000
	dynamicSize = 1000
)

// ErrUnknownGate is returned when a referenced gate id is neither
// predefined nor a live dynamic slot (spec §7).
type ErrUnknownGate struct{ ID ID }

func (e *ErrUnknownGate) Error() string { return fmt.Sprintf("gatelib: unknown gate id %d", e.ID) }

// Gate is four weight handles giving the entries of a 2x2 unitary:
//
//	[ U00  U01 ]
//	[ U10  U11 ]
type Gate struct {
	U00, U01, U10, U11 weight.Handle
}

// Library owns the weight handles backing every gate matrix entry and the
// dynamic-id allocator.
type Library struct {
	weights *weight.Store

	mu      sync.RWMutex
	static  map[ID]Gate
	rk      map[ID]Gate
	dynamic [dynamicSize]Gate
	live    [dynamicSize]bool
	next    int
	// generation increments every time the dynamic pool wraps; callers
	// (the Context) use a change since the last observed value as the
	// signal to flush the OpCache (spec §4.7/§9: "flush OpCache on wrap,
	// or include a gate generation number in the cache key").
	generation uint64
}

// New builds the static and Rk families eagerly against weights, and
// prepares an empty dynamic pool.
func New(weights *weight.Store) (*Library, error) {
	lib := &Library{weights: weights, static: make(map[ID]Gate, staticCount), rk: make(map[ID]Gate, 2*rkMax)}
	if err := lib.buildStatic(); err != nil {
		return nil, err
	}
	if err := lib.buildRk(); err != nil {
		return nil, err
	}
	return lib, nil
}

func (lib *Library) intern4(u00, u01, u10, u11 complex128) (Gate, error) {
	h00, err := lib.weights.Intern(u00)
	if err != nil {
		return Gate{}, err
	}
	h01, err := lib.weights.Intern(u01)
	if err != nil {
		return Gate{}, err
	}
	h10, err := lib.weights.Intern(u10)
	if err != nil {
		return Gate{}, err
	}
	h11, err := lib.weights.Intern(u11)
	if err != nil {
		return Gate{}, err
	}
	return Gate{U00: h00, U01: h01, U10: h10, U11: h11}, nil
}

func (lib *Library) buildStatic() error {
	inv := complex(1/math.Sqrt2, 0)
	defs := map[ID][4]complex128{
		I:       {1, 0, 0, 1},
		X:       {0, 1, 1, 0},
		Y:       {0, complex(0, -1), complex(0, 1), 0},
		Z:       {1, 0, 0, -1},
		H:       {inv, inv, inv, -inv},
		S:       {1, 0, 0, complex(0, 1)},
		Sdg:     {1, 0, 0, complex(0, -1)},
		T:       {1, 0, 0, cmplxExp(math.Pi / 4)},
		Tdg:     {1, 0, 0, cmplxExp(-math.Pi / 4)},
		SqrtX:   {complex(0.5, 0.5), complex(0.5, -0.5), complex(0.5, -0.5), complex(0.5, 0.5)},
		SqrtXdg: {complex(0.5, -0.5), complex(0.5, 0.5), complex(0.5, 0.5), complex(0.5, -0.5)},
		SqrtY:   {complex(0.5, 0.5), complex(-0.5, -0.5), complex(0.5, 0.5), complex(0.5, 0.5)},
		SqrtYdg: {complex(0.5, -0.5), complex(0.5, -0.5), complex(-0.5, 0.5), complex(0.5, -0.5)},
	}
	for id, m := range defs {
		g, err := lib.intern4(m[0], m[1], m[2], m[3])
		if err != nil {
			return err
		}
		lib.static[id] = g
	}
	return nil
}

func cmplxExp(theta float64) complex128 { return complex(math.Cos(theta), math.Sin(theta)) }

// rkID returns the id for Rk(k) (dagger=false) or Rk†(k) (dagger=true).
func rkID(k int, dagger bool) ID {
	base := ID(rkBase + 2*k)
	if dagger {
		return base + 1
	}
	return base
}

func (lib *Library) buildRk() error {
	for k := 0; k < rkMax; k++ {
		angle := 2 * math.Pi / math.Pow(2, float64(k))
		g, err := lib.intern4(1, 0, 0, cmplxExp(angle))
		if err != nil {
			return err
		}
		lib.rk[rkID(k, false)] = g
		gd, err := lib.intern4(1, 0, 0, cmplxExp(-angle))
		if err != nil {
			return err
		}
		lib.rk[rkID(k, true)] = gd
	}
	return nil
}

// Rk returns the id of the Rk(k) phase gate, diag(1, exp(2*pi*i/2^k)).
// Rk(0) is the identity, Rk(1) is Z, Rk(2) is S, Rk(3) is T (spec §8).
func Rk(k int) (ID, error) {
	if k < 0 || k >= rkMax {
		return 0, fmt.Errorf("gatelib: Rk index %d out of [0,%d)", k, rkMax)
	}
	return rkID(k, false), nil
}

// RkDagger returns the id of Rk†(k), diag(1, exp(-2*pi*i/2^k)).
func RkDagger(k int) (ID, error) {
	if k < 0 || k >= rkMax {
		return 0, fmt.Errorf("gatelib: Rk index %d out of [0,%d)", k, rkMax)
	}
	return rkID(k, true), nil
}

// Generation returns the current dynamic-pool wrap generation. Callers
// poll this after RegisterRx/Ry/Rz and flush their OpCache when it has
// advanced since their last observation.
func (lib *Library) Generation() uint64 {
	lib.mu.RLock()
	defer lib.mu.RUnlock()
	return lib.generation
}

// registerDynamic interns the matrix for a newly-allocated dynamic slot,
// wrapping the id counter (and bumping the generation) when the pool is
// exhausted, per spec §4.7/§9.
func (lib *Library) registerDynamic(u00, u01, u10, u11 complex128) (ID, error) {
	g, err := lib.intern4(u00, u01, u10, u11)
	if err != nil {
		return 0, err
	}

	lib.mu.Lock()
	defer lib.mu.Unlock()

	slot := lib.next
	lib.dynamic[slot] = g
	lib.live[slot] = true
	lib.next++
	if lib.next >= dynamicSize {
		lib.next = 0
		lib.generation++
	}
	return ID(dynamicBase + slot), nil
}

// RegisterRx allocates a dynamic gate id for Rx(theta) =
// [[cos(t/2), -i sin(t/2)], [-i sin(t/2), cos(t/2)]].
func (lib *Library) RegisterRx(theta float64) (ID, error) {
	c := complex(math.Cos(theta/2), 0)
	s := complex(0, -math.Sin(theta/2))
	return lib.registerDynamic(c, s, s, c)
}

// RegisterRy allocates a dynamic gate id for Ry(theta) =
// [[cos(t/2), -sin(t/2)], [sin(t/2), cos(t/2)]].
func (lib *Library) RegisterRy(theta float64) (ID, error) {
	c := complex(math.Cos(theta/2), 0)
	s := complex(math.Sin(theta/2), 0)
	return lib.registerDynamic(c, -s, s, c)
}

// RegisterRz allocates a dynamic gate id for
// Rz(theta) = diag(exp(-i*t/2), exp(i*t/2)).
func (lib *Library) RegisterRz(theta float64) (ID, error) {
	return lib.registerDynamic(cmplxExp(-theta/2), 0, 0, cmplxExp(theta/2))
}

// Lookup resolves id to its Gate, returning ErrUnknownGate if id is
// neither predefined nor a currently-live dynamic slot.
func (lib *Library) Lookup(id ID) (Gate, error) {
	lib.mu.RLock()
	defer lib.mu.RUnlock()
	if g, ok := lib.static[id]; ok {
		return g, nil
	}
	if g, ok := lib.rk[id]; ok {
		return g, nil
	}
	if id >= dynamicBase && id < dynamicBase+dynamicSize {
		slot := int(id - dynamicBase)
		if lib.live[slot] {
			return lib.dynamic[slot], nil
		}
	}
	return Gate{}, &ErrUnknownGate{ID: id}
}

// Rebind re-interns every gate matrix entry against newStore and
// repoints the library at it. Gate entries are long-lived weight
// handles — exactly the "long-lived external handle cache" a
// weight-table rebuild invalidates (spec §4.9) — so the rebuild must
// call this before any further gate application. Requires the same
// quiescence as the rebuild itself.
func (lib *Library) Rebind(newStore *weight.Store) error {
	lib.mu.Lock()
	defer lib.mu.Unlock()

	old := lib.weights
	translate := func(g Gate) (Gate, error) {
		var out Gate
		for _, p := range []struct {
			src weight.Handle
			dst *weight.Handle
		}{
			{g.U00, &out.U00},
			{g.U01, &out.U01},
			{g.U10, &out.U10},
			{g.U11, &out.U11},
		} {
			v, err := old.Get(p.src)
			if err != nil {
				return Gate{}, err
			}
			h, err := newStore.Intern(v)
			if err != nil {
				return Gate{}, err
			}
			*p.dst = h
		}
		return out, nil
	}

	for id, g := range lib.static {
		ng, err := translate(g)
		if err != nil {
			return err
		}
		lib.static[id] = ng
	}
	for id, g := range lib.rk {
		ng, err := translate(g)
		if err != nil {
			return err
		}
		lib.rk[id] = ng
	}
	for i := range lib.dynamic {
		if !lib.live[i] {
			continue
		}
		ng, err := translate(lib.dynamic[i])
		if err != nil {
			return err
		}
		lib.dynamic[i] = ng
	}

	lib.weights = newStore
	return nil
}
