package pdfpage

import (
	"math"

	"github.com/sells-group/legislation-cli/internal/geometry"
)

// matrix is a PDF affine transform [a b c d e f].
type matrix [6]float64

var identity = matrix{1, 0, 0, 1, 0, 0}

// mul returns m applied after n (m × n in PDF notation).
func (m matrix) mul(n matrix) matrix {
	return matrix{
		m[0]*n[0] + m[1]*n[2],
		m[0]*n[1] + m[1]*n[3],
		m[2]*n[0] + m[3]*n[2],
		m[2]*n[1] + m[3]*n[3],
		m[4]*n[0] + m[5]*n[2] + n[4],
		m[4]*n[1] + m[5]*n[3] + n[5],
	}
}

func (m matrix) apply(x, y float64) (float64, float64) {
	return m[0]*x + m[2]*y + m[4], m[1]*x + m[3]*y + m[5]
}

type graphicsState struct {
	ctm  matrix
	fill geometry.Color
}

// painter tracks just enough graphics state to report painted rectangles.
type painter struct {
	height   float64
	state    graphicsState
	saved    []graphicsState
	path     []geometry.Rect
	drawings []geometry.Drawing
}

func newPainter(height float64) *painter {
	return &painter{height: height, state: graphicsState{ctm: identity}}
}

// op applies one content stream operator. args is nil when an argument
// was not numeric.
func (p *painter) op(op string, args []float64) {
	switch op {
	case "q":
		p.saved = append(p.saved, p.state)
	case "Q":
		if n := len(p.saved); n > 0 {
			p.state = p.saved[n-1]
			p.saved = p.saved[:n-1]
		}
	case "cm":
		if len(args) == 6 {
			var m matrix
			copy(m[:], args)
			p.state.ctm = m.mul(p.state.ctm)
		}
	case "g":
		if len(args) == 1 {
			p.state.fill = geometry.Color{R: args[0], G: args[0], B: args[0]}
		}
	case "rg":
		if len(args) == 3 {
			p.state.fill = geometry.Color{R: args[0], G: args[1], B: args[2]}
		}
	case "k":
		if len(args) == 4 {
			p.state.fill = cmyk(args)
		}
	case "sc", "scn":
		switch len(args) {
		case 1:
			p.state.fill = geometry.Color{R: args[0], G: args[0], B: args[0]}
		case 3:
			p.state.fill = geometry.Color{R: args[0], G: args[1], B: args[2]}
		case 4:
			p.state.fill = cmyk(args)
		}
	case "re":
		if len(args) == 4 {
			p.path = append(p.path, p.rect(args[0], args[1], args[2], args[3]))
		}
	case "f", "F", "f*", "B", "B*", "b", "b*":
		p.paint(true)
	case "S", "s":
		p.paint(false)
	case "n":
		p.path = p.path[:0]
	}
}

// rect transforms a path rectangle to a top-down bounding box.
func (p *painter) rect(x, y, w, h float64) geometry.Rect {
	x0, y0 := math.Inf(1), math.Inf(1)
	x1, y1 := math.Inf(-1), math.Inf(-1)
	for _, c := range [][2]float64{{x, y}, {x + w, y}, {x, y + h}, {x + w, y + h}} {
		tx, ty := p.state.ctm.apply(c[0], c[1])
		ty = p.height - ty
		x0, x1 = math.Min(x0, tx), math.Max(x1, tx)
		y0, y1 = math.Min(y0, ty), math.Max(y1, ty)
	}
	return geometry.Rect{X0: x0, Y0: y0, X1: x1, Y1: y1}
}

func (p *painter) paint(filled bool) {
	for _, r := range p.path {
		d := geometry.Drawing{Box: r, Filled: filled}
		if filled {
			d.Fill = p.state.fill
		}
		p.drawings = append(p.drawings, d)
	}
	p.path = p.path[:0]
}

func cmyk(v []float64) geometry.Color {
	k := 1 - v[3]
	return geometry.Color{R: (1 - v[0]) * k, G: (1 - v[1]) * k, B: (1 - v[2]) * k}
}
