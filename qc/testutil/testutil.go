// Package testutil provides testing utilities and constants shared by the
// qmdd package's tests: repurposed from the teacher's circuit-builder test
// scaffolding (kegliz-qplay's qc/testutil) to QMDD table capacities,
// numeric tolerances, and a couple of standard state-construction helpers.
package testutil

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	qmdd "github.com/kegliz/qmdd"
	"github.com/stretchr/testify/require"
)

// Test constants for consistent configuration across tests
const (
	// Test timeouts
	DefaultTestTimeout = 10 * time.Second
	LongTestTimeout    = 30 * time.Second
	BenchmarkTimeout   = 60 * time.Second

	// Table sizing
	DefaultNodeCapacity   = uint64(1 << 16)
	DefaultWeightCapacity = uint64(1 << 16)
	LargeNodeCapacity     = uint64(1 << 20)
	LargeWeightCapacity   = uint64(1 << 20)

	// Circuit parameters
	DefaultQubits = 3
	SmallQubits   = 2
	LargeQubits   = 7

	// Numeric tolerances
	DefaultTolerance = 1e-9  // WeightStore interning tolerance
	StrictTolerance  = 1e-12 // tighter tolerance for canonicity assertions
	StatTolerance    = 0.05  // statistical slack for sampled-measurement tests

	// File testing
	TestFilePrefix = "qc_test_"
	PNGTestSuffix  = ".png"
)

// TestConfig holds configuration for test Context construction.
type TestConfig struct {
	NodeCapacity   uint64
	WeightCapacity uint64
	Qubits         int
	Timeout        time.Duration
	Tolerance      float64
	NormStrategy   qmdd.NormStrategy
}

// Predefined test configurations
var (
	QuickTestConfig = TestConfig{
		NodeCapacity:   DefaultNodeCapacity,
		WeightCapacity: DefaultWeightCapacity,
		Qubits:         SmallQubits,
		Timeout:        DefaultTestTimeout,
		Tolerance:      DefaultTolerance,
		NormStrategy:   qmdd.NormLargest,
	}

	StandardTestConfig = TestConfig{
		NodeCapacity:   DefaultNodeCapacity,
		WeightCapacity: DefaultWeightCapacity,
		Qubits:         DefaultQubits,
		Timeout:        DefaultTestTimeout,
		Tolerance:      DefaultTolerance,
		NormStrategy:   qmdd.NormLargest,
	}

	BenchmarkTestConfig = TestConfig{
		NodeCapacity:   LargeNodeCapacity,
		WeightCapacity: LargeWeightCapacity,
		Qubits:         LargeQubits,
		Timeout:        BenchmarkTimeout,
		Tolerance:      StrictTolerance,
		NormStrategy:   qmdd.NormLargest,
	}
)

// NewContext builds a *qmdd.Context from a TestConfig, failing the test on
// error.
func NewContext(t *testing.T, cfg TestConfig) *qmdd.Context {
	t.Helper()
	ctx, err := qmdd.New(qmdd.Options{
		NodeCapacity:   cfg.NodeCapacity,
		WeightCapacity: cfg.WeightCapacity,
		CacheCapacity:  cfg.NodeCapacity,
		Tolerance:      cfg.Tolerance,
		NormStrategy:   cfg.NormStrategy,
	})
	require.NoError(t, err, "failed to build qmdd.Context")
	return ctx
}

// WithTimeout creates a context with timeout for test operations
func WithTimeout(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}

// TempFile creates a temporary test file and returns cleanup function
func TempFile(t *testing.T, suffix string) (string, func()) {
	t.Helper()

	tempDir := t.TempDir()
	filename := TestFilePrefix + t.Name() + suffix
	path := filepath.Join(tempDir, filename)

	cleanup := func() {
		if _, err := os.Stat(path); err == nil {
			os.Remove(path)
		}
	}

	return path, cleanup
}

// TempFileB creates a temporary test file for benchmarks and returns cleanup function
func TempFileB(b *testing.B, suffix string) (string, func()) {
	b.Helper()

	tempDir := os.TempDir()
	filename := TestFilePrefix + b.Name() + suffix
	path := filepath.Join(tempDir, filename)

	cleanup := func() {
		if _, err := os.Stat(path); err == nil {
			os.Remove(path)
		}
	}

	return path, cleanup
}

// NewBellState builds the 2-qubit Bell state (|00>+|11>)/sqrt(2) edge in
// ctx, for tests exercising measurement/amplitude round trips.
func NewBellState(t *testing.T, ctx *qmdd.Context) qmdd.Edge {
	t.Helper()
	e, err := ctx.AllZeroState(2)
	require.NoError(t, err, "failed to build |00>")
	e, err = ctx.Gate(e, qmdd.H, 0)
	require.NoError(t, err, "failed to apply H")
	e, err = ctx.CGate(e, qmdd.X, 0, 1)
	require.NoError(t, err, "failed to apply CNOT")
	return e
}

// AssertHistogramDistribution validates sampled-outcome histograms within tolerance
func AssertHistogramDistribution(t *testing.T, hist map[string]int, expected map[string]float64, totalShots int, tolerance float64) {
	t.Helper()

	for state, expectedProb := range expected {
		actualCount := hist[state]
		actualProb := float64(actualCount) / float64(totalShots)

		if expectedProb == 0 {
			require.Equal(t, 0, actualCount, "state %s should have 0 count", state)
		} else {
			require.InDelta(t, expectedProb, actualProb, tolerance,
				"state %s probability mismatch: expected %.3f, got %.3f",
				state, expectedProb, actualProb)
		}
	}
}

// RequireWithinTimeout runs a function with timeout and fails the test if it times out
func RequireWithinTimeout(t *testing.T, timeout time.Duration, fn func() error, msgAndArgs ...interface{}) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		require.NoError(t, err, msgAndArgs...)
	case <-ctx.Done():
		t.Fatalf("operation timed out after %v: %v", timeout, msgAndArgs)
	}
}

// SkipIfShort skips the test if running with -short flag
func SkipIfShort(t *testing.T, reason string) {
	t.Helper()
	if testing.Short() {
		t.Skipf("skipping test in short mode: %s", reason)
	}
}

// SkipIfCI skips the test if running in CI environment
func SkipIfCI(t *testing.T, reason string) {
	t.Helper()
	if os.Getenv("CI") != "" || os.Getenv("GITHUB_ACTIONS") != "" {
		t.Skipf("skipping test in CI: %s", reason)
	}
}

// Parallel marks the test as safe to run in parallel
func Parallel(t *testing.T) {
	t.Helper()
	t.Parallel()
}
