// Package weight implements the WeightStore component of the QMDD core:
// a canonicalizing, tolerance-bounded, concurrent table mapping complex
// values to stable handles.
//
// The lookup algorithm — round the incoming value to a tolerance grid to
// compute a bucket, then probe a bounded number of slots comparing against
// the *unrounded* stored value — mirrors q-sylvan's rmap_find_or_put
// (src/edge_weight_storage/rmap.c).
package weight

import (
	"fmt"
	"math"
	"math/cmplx"
	"sync"
	"sync/atomic"
)

// Handle is an opaque reference into a Store. The zero Handle is never
// allocated by FindOrPut; callers may use it as an "unset" sentinel.
type Handle uint64

// ErrTableFull is returned when FindOrPut cannot locate a free slot within
// the bounded probe sequence.
type ErrTableFull struct {
	Capacity uint64
}

func (e *ErrTableFull) Error() string {
	return fmt.Sprintf("weight: table full (capacity %d)", e.Capacity)
}

// ErrInvalidHandle is returned by Get when the handle does not (or no
// longer, e.g. after a rebuild) address a live slot.
type ErrInvalidHandle struct{ Handle Handle }

func (e *ErrInvalidHandle) Error() string {
	return fmt.Sprintf("weight: invalid handle %d", e.Handle)
}

const numStripes = 256

type entry struct {
	occupied uint32 // atomic flag; 0 = empty, 1 = occupied
	value    complex128
}

// Store is the concurrent, tolerance-bounded weight table. Handles are
// stable between table rebuilds (see the gc package) but are renumbered
// by an explicit rebuild; a Store never renumbers on its own.
type Store struct {
	tol        float64
	probeBound int

	mu      [numStripes]sync.Mutex
	slots   []entry
	count   atomic.Uint64
	nextIdx atomic.Uint64 // not read or written by any method

	Zero     Handle
	One      Handle
	MinusOne Handle
}

// Options configures a new Store.
type Options struct {
	Capacity   uint64
	Tolerance  float64 // ε; 0 means strict equality
	ProbeBound int     // bounded probe sequence length; 0 selects a default
}

// New allocates a Store and interns the ZERO/ONE/MINUS_ONE sentinels, per
// spec invariant: these three handles must exist before any client
// insertion.
func New(opts Options) *Store {
	if opts.Capacity == 0 {
		opts.Capacity = 1 << 20
	}
	if opts.ProbeBound <= 0 {
		opts.ProbeBound = 64
	}
	s := &Store{
		tol:        opts.Tolerance,
		probeBound: opts.ProbeBound,
		slots:      make([]entry, opts.Capacity),
	}
	s.Zero, _ = s.FindOrPut(complex(0, 0))
	s.One, _ = s.FindOrPut(complex(1, 0))
	s.MinusOne, _ = s.FindOrPut(complex(-1, 0))
	return s
}

// Tolerance returns the table's configured ε.
func (s *Store) Tolerance() float64 { return s.tol }

// Count returns the number of occupied slots.
func (s *Store) Count() uint64 { return s.count.Load() }

// Capacity returns the table's fixed slot count.
func (s *Store) Capacity() uint64 { return uint64(len(s.slots)) }

func (s *Store) round(c complex128) complex128 {
	if s.tol == 0 {
		return c
	}
	r := math.Round(real(c)/s.tol) * s.tol
	i := math.Round(imag(c)/s.tol) * s.tol
	if r == 0 {
		r = 0 // normalize -0
	}
	if i == 0 {
		i = 0
	}
	return complex(r, i)
}

func (s *Store) closeEnough(a, b complex128) bool {
	if s.tol == 0 {
		return a == b
	}
	return math.Abs(real(a)-real(b)) <= s.tol && math.Abs(imag(a)-imag(b)) <= s.tol
}

// hashIndex computes the starting bucket for the rounded value.
func (s *Store) hashIndex(rounded complex128) uint64 {
	bits := math.Float64bits(real(rounded)) ^ (math.Float64bits(imag(rounded)) * 0x9E3779B97F4A7C15)
	bits ^= bits >> 33
	bits *= 0xff51afd7ed558ccd
	bits ^= bits >> 33
	return bits % uint64(len(s.slots))
}

func (s *Store) stripe(idx uint64) *sync.Mutex {
	return &s.mu[idx%numStripes]
}

// FindOrPut interns c, returning its stable handle. When an existing
// entry's value lies within tolerance of c, that entry's handle is
// returned with created=false and the stored value is left untouched —
// the store keeps the *first* inserter's value (deterministic given
// insertion order, not value-symmetric).
func (s *Store) FindOrPut(c complex128) (Handle, bool) {
	rounded := s.round(c)
	start := s.hashIndex(rounded)
	n := uint64(len(s.slots))

	for step := 0; step < s.probeBound; step++ {
		idx := (start + uint64(step)) % n
		mu := s.stripe(idx)
		mu.Lock()
		e := &s.slots[idx]
		if e.occupied == 0 {
			e.value = c
			e.occupied = 1
			s.count.Add(1)
			mu.Unlock()
			return Handle(idx + 1), true // +1: handle 0 stays reserved
		}
		if s.closeEnough(e.value, c) {
			mu.Unlock()
			return Handle(idx + 1), false
		}
		mu.Unlock()
	}
	return 0, false
}

// intern is FindOrPut without the created flag, for arithmetic helpers.
func (s *Store) intern(c complex128) (Handle, error) {
	h, _ := s.FindOrPut(c)
	if h == 0 {
		return 0, &ErrTableFull{Capacity: s.Capacity()}
	}
	return h, nil
}

// Get returns the complex value stored under handle h.
func (s *Store) Get(h Handle) (complex128, error) {
	if h == 0 || uint64(h) > uint64(len(s.slots)) {
		return 0, &ErrInvalidHandle{Handle: h}
	}
	idx := uint64(h) - 1
	mu := s.stripe(idx)
	mu.Lock()
	defer mu.Unlock()
	e := &s.slots[idx]
	if e.occupied == 0 {
		return 0, &ErrInvalidHandle{Handle: h}
	}
	return e.value, nil
}

// --- arithmetic helpers: compose FindOrPut with complex arithmetic ---

// Add returns the handle for get(a)+get(b), short-circuiting add(ZERO,x)=x.
func (s *Store) Add(a, b Handle) (Handle, error) {
	if a == s.Zero {
		return b, nil
	}
	if b == s.Zero {
		return a, nil
	}
	va, err := s.Get(a)
	if err != nil {
		return 0, err
	}
	vb, err := s.Get(b)
	if err != nil {
		return 0, err
	}
	return s.intern(va + vb)
}

// Sub returns the handle for get(a)-get(b).
func (s *Store) Sub(a, b Handle) (Handle, error) {
	if b == s.Zero {
		return a, nil
	}
	va, err := s.Get(a)
	if err != nil {
		return 0, err
	}
	vb, err := s.Get(b)
	if err != nil {
		return 0, err
	}
	return s.intern(va - vb)
}

// Mul returns the handle for get(a)*get(b), short-circuiting mul(ONE,x)=x
// and mul(ZERO,_)=ZERO.
func (s *Store) Mul(a, b Handle) (Handle, error) {
	if a == s.One {
		return b, nil
	}
	if b == s.One {
		return a, nil
	}
	if a == s.Zero || b == s.Zero {
		return s.Zero, nil
	}
	va, err := s.Get(a)
	if err != nil {
		return 0, err
	}
	vb, err := s.Get(b)
	if err != nil {
		return 0, err
	}
	return s.intern(va * vb)
}

// Div returns the handle for get(a)/get(b), short-circuiting div(x,x)=ONE
// (x != ZERO) and div(ZERO,_)=ZERO.
func (s *Store) Div(a, b Handle) (Handle, error) {
	if a == s.Zero {
		return s.Zero, nil
	}
	if a == b {
		return s.One, nil
	}
	va, err := s.Get(a)
	if err != nil {
		return 0, err
	}
	vb, err := s.Get(b)
	if err != nil {
		return 0, err
	}
	if vb == 0 {
		return 0, fmt.Errorf("weight: division by zero weight")
	}
	return s.intern(va / vb)
}

// Neg returns the handle for -get(a).
func (s *Store) Neg(a Handle) (Handle, error) {
	if a == s.Zero {
		return s.Zero, nil
	}
	va, err := s.Get(a)
	if err != nil {
		return 0, err
	}
	return s.intern(-va)
}

// Conj returns the handle for conj(get(a)).
func (s *Store) Conj(a Handle) (Handle, error) {
	if a == s.Zero {
		return s.Zero, nil
	}
	va, err := s.Get(a)
	if err != nil {
		return 0, err
	}
	return s.intern(cmplx.Conj(va))
}

// Abs returns the handle for |get(a)| (a real-valued weight).
func (s *Store) Abs(a Handle) (Handle, error) {
	if a == s.Zero {
		return s.Zero, nil
	}
	va, err := s.Get(a)
	if err != nil {
		return 0, err
	}
	return s.intern(complex(cmplx.Abs(va), 0))
}

// Sqr returns the handle for the squared magnitude |get(a)|^2.
func (s *Store) Sqr(a Handle) (Handle, error) {
	if a == s.Zero {
		return s.Zero, nil
	}
	va, err := s.Get(a)
	if err != nil {
		return 0, err
	}
	mag := va*cmplx.Conj(va)
	return s.intern(mag)
}

// SquaredMagnitude is a float64 convenience avoiding a round-trip through
// the table for measurement code (spec §4.10 prob_sum).
func (s *Store) SquaredMagnitude(a Handle) (float64, error) {
	if a == s.Zero {
		return 0, nil
	}
	va, err := s.Get(a)
	if err != nil {
		return 0, err
	}
	return real(va)*real(va) + imag(va)*imag(va), nil
}

// Intern is the public composition point used by callers (e.g. the gate
// library, gate-angle registration) that need to insert an arbitrary
// complex value without going through one of the named arithmetic ops.
func (s *Store) Intern(c complex128) (Handle, error) { return s.intern(c) }
