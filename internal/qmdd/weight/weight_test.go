package weight

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return New(Options{Capacity: 1 << 10, Tolerance: 1e-9})
}

func TestSentinelHandles(t *testing.T) {
	s := newTestStore(t)

	v, err := s.Get(s.Zero)
	require.NoError(t, err)
	assert.Equal(t, complex(0, 0), v)

	v, err = s.Get(s.One)
	require.NoError(t, err)
	assert.Equal(t, complex(1, 0), v)

	v, err = s.Get(s.MinusOne)
	require.NoError(t, err)
	assert.Equal(t, complex(-1, 0), v)
}

func TestFindOrPutInterning(t *testing.T) {
	s := newTestStore(t)

	h1, isNew1 := s.FindOrPut(complex(0.5, 0.25))
	assert.True(t, isNew1)

	h2, isNew2 := s.FindOrPut(complex(0.5, 0.25))
	assert.False(t, isNew2)
	assert.Equal(t, h1, h2, "identical values must intern to the same handle")
}

func TestFindOrPutWithinTolerance(t *testing.T) {
	s := New(Options{Capacity: 1 << 10, Tolerance: 1e-6})

	h1, _ := s.FindOrPut(complex(0.3333333, 0))
	h2, _ := s.FindOrPut(complex(0.3333334, 0))
	assert.Equal(t, h1, h2, "values within tolerance must collapse to one handle")
}

func TestFindOrPutKnownSentinels(t *testing.T) {
	s := newTestStore(t)

	h, isNew := s.FindOrPut(complex(0, 0))
	assert.False(t, isNew)
	assert.Equal(t, s.Zero, h)

	h, isNew = s.FindOrPut(complex(1, 0))
	assert.False(t, isNew)
	assert.Equal(t, s.One, h)

	h, isNew = s.FindOrPut(complex(-1, 0))
	assert.False(t, isNew)
	assert.Equal(t, s.MinusOne, h)
}

func TestArithmeticHelpers(t *testing.T) {
	s := newTestStore(t)

	a, _ := s.FindOrPut(complex(2, 1))
	b, _ := s.FindOrPut(complex(1, -1))

	sum, err := s.Add(a, b)
	require.NoError(t, err)
	v, err := s.Get(sum)
	require.NoError(t, err)
	assert.InDelta(t, 3, real(v), 1e-9)
	assert.InDelta(t, 0, imag(v), 1e-9)

	prod, err := s.Mul(a, b)
	require.NoError(t, err)
	v, err = s.Get(prod)
	require.NoError(t, err)
	assert.InDelta(t, real(complex(2, 1)*complex(1, -1)), real(v), 1e-9)
	assert.InDelta(t, imag(complex(2, 1)*complex(1, -1)), imag(v), 1e-9)

	neg, err := s.Neg(a)
	require.NoError(t, err)
	v, err = s.Get(neg)
	require.NoError(t, err)
	assert.InDelta(t, -2, real(v), 1e-9)
	assert.InDelta(t, -1, imag(v), 1e-9)
}

func TestCountReflectsSentinelsPlusInterned(t *testing.T) {
	s := newTestStore(t)
	base := s.Count()
	_, _ = s.FindOrPut(complex(7, 7))
	assert.Equal(t, base+1, s.Count())
	_, _ = s.FindOrPut(complex(7, 7))
	assert.Equal(t, base+1, s.Count(), "re-interning must not grow the table")
}
