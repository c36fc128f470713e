// Package renderer ports the teacher's gg-based circuit-diagram painter
// (kegliz-qplay's qc/renderer/ggpng.go) to draw QMDD DAG structure instead:
// one box per node labeled with its variable index, a dashed arrow to the
// low child and a solid arrow to the high child (both labeled with the
// child edge's weight), and a single terminal box. DOT export uses the
// same traversal to emit graphviz text instead of pixels.
package renderer

import (
	"fmt"
	"image"
	"image/png"
	"io"
	"math"
	"os"
	"sort"

	"github.com/fogleman/gg" // ✱ pure‑Go 2‑D vector lib

	qmdd "github.com/kegliz/qmdd"
)

// GGPNG draws a QMDD DAG rooted at one edge into a PNG image. Cell is the
// pixel size of one node box; levels run top-to-bottom, siblings within a
// level left-to-right in DFS first-visit order (low child before high).
type GGPNG struct{ Cell float64 }

// NewRenderer returns a renderer that emits lossless PNGs using gg.
func NewRenderer(cellPx int) GGPNG { return GGPNG{Cell: float64(cellPx)} }

// layoutNode is one visited (non-terminal) node plus its column/row.
type layoutNode struct {
	handle qmdd.NodeHandle
	node   qmdd.Node
	row    int
	col    int
}

// walk performs a deterministic DFS over the DAG rooted at root, assigning
// each distinct node handle a (row, col) position by variable level and
// first-visit order, mirroring NodeCount's visited-set traversal.
func walk(ctx *qmdd.Context, root qmdd.Edge) (nodes []layoutNode, byHandle map[qmdd.NodeHandle]int, rootIsTerminal bool) {
	byHandle = make(map[qmdd.NodeHandle]int)
	colByRow := make(map[int]int)

	var visit func(h qmdd.NodeHandle)
	visit = func(h qmdd.NodeHandle) {
		if h == qmdd.Terminal {
			return
		}
		if _, ok := byHandle[h]; ok {
			return
		}
		n, ok := ctx.Node(h)
		if !ok {
			return
		}
		row := int(n.Var)
		col := colByRow[row]
		colByRow[row] = col + 1
		byHandle[h] = len(nodes)
		nodes = append(nodes, layoutNode{handle: h, node: n, row: row, col: col})
		visit(n.Low.Target)
		visit(n.High.Target)
	}

	if root.Target == qmdd.Terminal {
		return nil, byHandle, true
	}
	visit(root.Target)
	return nodes, byHandle, false
}

func weightLabel(ctx *qmdd.Context, w qmdd.WeightHandle) string {
	v, err := ctx.WeightValue(w)
	if err != nil {
		return "?"
	}
	switch {
	case imag(v) == 0:
		return fmt.Sprintf("%.3g", real(v))
	case real(v) == 0:
		return fmt.Sprintf("%.3gi", imag(v))
	default:
		return fmt.Sprintf("%.3g%+.3gi", real(v), imag(v))
	}
}

// Render draws the DAG rooted at root into an image.
func (r GGPNG) Render(ctx *qmdd.Context, root qmdd.Edge) (image.Image, error) {
	nodes, _, isTerminal := walk(ctx, root)

	maxRow, maxCol := 0, 0
	for _, n := range nodes {
		if n.row > maxRow {
			maxRow = n.row
		}
		if n.col > maxCol {
			maxCol = n.col
		}
	}
	rows := maxRow + 2 // + terminal row
	cols := maxCol + 1
	if cols < 1 {
		cols = 1
	}

	w := int(float64(cols) * r.Cell)
	h := int(float64(rows) * r.Cell)
	if isTerminal {
		w, h = int(r.Cell), int(r.Cell)
	}

	dc := gg.NewContext(w, h)
	dc.SetRGB(1, 1, 1)
	dc.Clear()
	dc.SetLineWidth(1)

	pos := func(row, col int) (float64, float64) {
		return float64(col)*r.Cell + r.Cell/2, float64(row)*r.Cell + r.Cell/2
	}

	termRow := maxRow + 1
	termCol := 0
	if isTerminal {
		termRow, termCol = 0, 0
	}
	tx, ty := pos(termRow, termCol)

	posByHandle := make(map[qmdd.NodeHandle][2]float64, len(nodes))
	for _, n := range nodes {
		x, y := pos(n.row, n.col)
		posByHandle[n.handle] = [2]float64{x, y}
	}
	target := func(h qmdd.NodeHandle) (float64, float64) {
		if h == qmdd.Terminal {
			return tx, ty
		}
		p := posByHandle[h]
		return p[0], p[1]
	}

	// draw edges first so boxes paint over the line ends
	for _, n := range nodes {
		x, y := pos(n.row, n.col)
		r.drawEdge(dc, ctx, x, y, n.node.Low, target, false)
		r.drawEdge(dc, ctx, x, y, n.node.High, target, true)
	}

	for _, n := range nodes {
		x, y := pos(n.row, n.col)
		r.drawNodeBox(dc, x, y, fmt.Sprintf("q%d", n.node.Var))
	}

	dc.SetRGB(0, 0, 0)
	r.drawNodeBox(dc, tx, ty, "1")

	return dc.Image(), nil
}

func (r GGPNG) drawEdge(dc *gg.Context, ctx *qmdd.Context, x, y float64, e qmdd.Edge, target func(qmdd.NodeHandle) (float64, float64), solid bool) {
	ex, ey := target(e.Target)
	r.dashedOrSolidLine(dc, x, y, ex, ey, solid)
	dc.DrawStringAnchored(weightLabel(ctx, e.Weight), (x+ex)/2, (y+ey)/2-4, 0.5, 0.5)
}

func (r GGPNG) dashedOrSolidLine(dc *gg.Context, x0, y0, x1, y1 float64, solid bool) {
	dc.SetRGB(0, 0, 0)
	if solid {
		dc.DrawLine(x0, y0, x1, y1)
		dc.Stroke()
		return
	}
	dist := math.Hypot(x1-x0, y1-y0)
	if dist == 0 {
		return
	}
	dashLen := r.Cell * 0.08
	n := int(dist / (2 * dashLen))
	if n < 1 {
		n = 1
	}
	dx, dy := (x1-x0)/float64(n)/2, (y1-y0)/float64(n)/2
	px, py := x0, y0
	for i := 0; i < n; i++ {
		nx, ny := px+dx, py+dy
		dc.DrawLine(px, py, nx, ny)
		dc.Stroke()
		px, py = nx+dx, ny+dy
	}
}

func (r GGPNG) drawNodeBox(dc *gg.Context, x, y float64, label string) {
	size := r.Cell * .6
	dc.DrawRectangle(x-size/2, y-size/2, size, size)
	dc.SetRGB(1, 1, 1)
	dc.FillPreserve()
	dc.SetRGB(0, 0, 0)
	dc.Stroke()
	dc.DrawStringAnchored(label, x, y, 0.5, 0.5)
}

func (r GGPNG) Save(path string, ctx *qmdd.Context, root qmdd.Edge) error {
	img, err := r.Render(ctx, root)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, img)
}

// ExportPNG renders the DAG rooted at e to w as a PNG image (SPEC_FULL.md
// §6 /export/:name/png).
func ExportPNG(ctx *qmdd.Context, e qmdd.Edge, w io.Writer, cellPx int) error {
	r := NewRenderer(cellPx)
	img, err := r.Render(ctx, e)
	if err != nil {
		return err
	}
	return png.Encode(w, img)
}

// ExportDOT writes a graphviz DOT description of the DAG rooted at e to w
// (SPEC_FULL.md §6 /export/:name/dot). Each node is "n<handle>" labeled
// with its variable; the terminal is "term"; low edges are dashed, high
// edges solid, both labeled with their weight's complex value.
func ExportDOT(ctx *qmdd.Context, e qmdd.Edge, w io.Writer) error {
	nodes, _, isTerminal := walk(ctx, e)

	bw := &dotWriter{w: w}
	bw.printf("digraph qmdd {\n")
	bw.printf("  rankdir=TB;\n")
	bw.printf("  node [shape=box];\n")
	bw.printf("  term [label=\"1\", shape=box, peripheries=2];\n")

	sorted := make([]layoutNode, len(nodes))
	copy(sorted, nodes)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].handle < sorted[j].handle })

	for _, n := range sorted {
		bw.printf("  n%d [label=\"q%d\"];\n", n.handle, n.node.Var)
	}
	for _, n := range sorted {
		lowTarget := targetName(n.node.Low.Target)
		highTarget := targetName(n.node.High.Target)
		bw.printf("  n%d -> %s [style=dashed, label=\"%s\"];\n", n.handle, lowTarget, weightLabel(ctx, n.node.Low.Weight))
		bw.printf("  n%d -> %s [style=solid, label=\"%s\"];\n", n.handle, highTarget, weightLabel(ctx, n.node.High.Weight))
	}
	if isTerminal {
		bw.printf("  root -> term [label=\"%s\"];\n", weightLabel(ctx, e.Weight))
		bw.printf("  root [shape=none, label=\"\"];\n")
	}
	bw.printf("}\n")
	return bw.err
}

func targetName(h qmdd.NodeHandle) string {
	if h == qmdd.Terminal {
		return "term"
	}
	return fmt.Sprintf("n%d", h)
}

type dotWriter struct {
	w   io.Writer
	err error
}

func (d *dotWriter) printf(format string, args ...interface{}) {
	if d.err != nil {
		return
	}
	_, d.err = fmt.Fprintf(d.w, format, args...)
}
