package renderer

import (
	"bytes"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	qmdd "github.com/kegliz/qmdd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	defaultTestTimeout = 10 * time.Second
	defaultCellSize    = 80
)

func tempTestFile(t *testing.T, filename string) (string, func()) {
	t.Helper()
	tempDir := t.TempDir()
	fullPath := filepath.Join(tempDir, filename)
	cleanup := func() {
		if _, err := os.Stat(fullPath); err == nil {
			os.Remove(fullPath)
		}
	}
	return fullPath, cleanup
}

func withTimeout(t *testing.T, timeout time.Duration, fn func() error) {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- fn() }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(timeout):
		t.Fatalf("operation timed out after %v", timeout)
	}
}

func newTestContext(t *testing.T) *qmdd.Context {
	t.Helper()
	ctx, err := qmdd.New(qmdd.Options{
		NodeCapacity:   1 << 12,
		WeightCapacity: 1 << 12,
		Tolerance:      1e-9,
		NormStrategy:   qmdd.NormLargest,
	})
	require.NoError(t, err)
	return ctx
}

func TestInterfaces(t *testing.T) {
	var _ Renderer = (*GGPNG)(nil)
}

func TestGGPNG_Render(t *testing.T) {
	ctx := newTestContext(t)

	// single-node DAG: |0> with amplitude 1.
	zero, err := ctx.AllZeroState(1)
	require.NoError(t, err)

	r := NewRenderer(defaultCellSize)
	img, err := r.Render(ctx, zero)
	assert.NoError(t, err)
	require.NotNil(t, img)
	assert.Greater(t, img.Bounds().Dx(), 0)
	assert.Greater(t, img.Bounds().Dy(), 0)

	// multi-node DAG: Bell state via H then CNOT.
	bell, err := ctx.AllZeroState(2)
	require.NoError(t, err)
	bell, err = ctx.Gate(bell, qmdd.H, 0)
	require.NoError(t, err)
	bell, err = ctx.CGate(bell, qmdd.X, 0, 1)
	require.NoError(t, err)

	img2, err := r.Render(ctx, bell)
	assert.NoError(t, err)
	require.NotNil(t, img2)
	assert.Greater(t, img2.Bounds().Dx(), 0)
	assert.Greater(t, img2.Bounds().Dy(), 0)
}

func TestGGPNG_Save(t *testing.T) {
	ctx := newTestContext(t)

	zero, err := ctx.AllZeroState(2)
	require.NoError(t, err)
	state, err := ctx.Gate(zero, qmdd.H, 0)
	require.NoError(t, err)
	state, err = ctx.CGate(state, qmdd.X, 0, 1)
	require.NoError(t, err)

	r := NewRenderer(defaultCellSize)
	filePath, cleanup := tempTestFile(t, "ggpng_test1.png")
	defer cleanup()

	require.NoError(t, r.Save(filePath, ctx, state))

	f, err := os.Open(filePath)
	require.NoError(t, err, "file %s should exist", filePath)
	defer f.Close()
	_, err = png.Decode(f)
	assert.NoError(t, err, "file %s should be a valid PNG", filePath)
}

func TestExportPNG(t *testing.T) {
	ctx := newTestContext(t)
	zero, err := ctx.AllZeroState(1)
	require.NoError(t, err)
	state, err := ctx.Gate(zero, qmdd.H, 0)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, ExportPNG(ctx, state, &buf, defaultCellSize))
	_, err = png.Decode(&buf)
	assert.NoError(t, err)
}

func TestExportDOT(t *testing.T) {
	ctx := newTestContext(t)
	zero, err := ctx.AllZeroState(2)
	require.NoError(t, err)
	state, err := ctx.Gate(zero, qmdd.H, 0)
	require.NoError(t, err)
	state, err = ctx.CGate(state, qmdd.X, 0, 1)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, ExportDOT(ctx, state, &buf))
	dot := buf.String()
	assert.True(t, strings.HasPrefix(dot, "digraph qmdd {"))
	assert.Contains(t, dot, "term")
	assert.True(t, strings.HasSuffix(strings.TrimSpace(dot), "}"))
}
