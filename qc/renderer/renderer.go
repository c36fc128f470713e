package renderer

import (
	"image"
	"image/color"

	qmdd "github.com/kegliz/qmdd"
)

// Renderer turns a QMDD edge into an immutable image. Strategy pattern
// lets us supply many renderers (PNG, SVG, ASCII…).
type Renderer interface {
	Render(ctx *qmdd.Context, e qmdd.Edge) (image.Image, error)
}

// Default size & look-n-feel knobs
var (
	WireColor  = color.Black
	GateFill   = color.White
	GateStroke = color.Black
)
