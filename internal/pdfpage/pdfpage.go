// Package pdfpage reads the words and filled rectangles of every page of a
// PDF, in top-down page coordinates, for layout reconstruction.
package pdfpage

import (
	"bytes"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	pdfmodel "github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/legislation-cli/internal/geometry"
	"github.com/sells-group/legislation-cli/internal/layout"
)

// defaultPageHeight is US Letter, used when a page has no MediaBox.
const defaultPageHeight = 792.0

// Options configures a Reader.
type Options struct {
	// Validate runs structural validation before extraction.
	Validate bool
}

// Reader implements layout.Introspector.
type Reader struct {
	opts Options
}

var _ layout.Introspector = (*Reader)(nil)

// New creates a Reader.
func New(opts Options) *Reader {
	return &Reader{opts: opts}
}

// Validate checks that data is a structurally sound PDF and returns its
// page count.
func Validate(data []byte) (int, error) {
	conf := pdfmodel.NewDefaultConfiguration()
	conf.ValidationMode = pdfmodel.ValidationRelaxed
	if err := api.Validate(bytes.NewReader(data), conf); err != nil {
		return 0, eris.Wrap(err, "pdfpage: validate")
	}
	n, err := api.PageCount(bytes.NewReader(data), conf)
	if err != nil {
		return 0, eris.Wrap(err, "pdfpage: page count")
	}
	return n, nil
}

// Open parses data and returns every page's words and drawings.
func (r *Reader) Open(data []byte) (pages []layout.Page, err error) {
	expected := 0
	if r.opts.Validate {
		n, err := Validate(data)
		if err != nil {
			return nil, err
		}
		expected = n
	}

	// The content parser panics on malformed streams.
	defer func() {
		if rec := recover(); rec != nil {
			pages = nil
			err = eris.Errorf("pdfpage: malformed pdf: %v", rec)
		}
	}()

	rd, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, eris.Wrap(err, "pdfpage: open")
	}

	total := rd.NumPage()
	if expected > 0 && expected != total {
		zap.L().Warn("pdfpage: page count mismatch",
			zap.Int("validated", expected),
			zap.Int("parsed", total),
		)
	}

	pages = make([]layout.Page, 0, total)
	for i := 1; i <= total; i++ {
		p := rd.Page(i)
		if p.V.IsNull() {
			pages = append(pages, layout.Page{})
			continue
		}
		height := pageHeight(p.V)
		pages = append(pages, layout.Page{
			Words:    groupWords(p.Content().Text, height),
			Drawings: collectDrawings(p.V.Key("Contents"), height),
		})
	}
	return pages, nil
}

// pageHeight returns the MediaBox height, following inherited attributes.
func pageHeight(page pdf.Value) float64 {
	for v := page; !v.IsNull(); v = v.Key("Parent") {
		box := v.Key("MediaBox")
		if box.Kind() == pdf.Array && box.Len() == 4 {
			if h := box.Index(3).Float64() - box.Index(1).Float64(); h > 0 {
				return h
			}
		}
	}
	return defaultPageHeight
}

// groupWords joins consecutive glyphs on one baseline into words and flips
// their boxes into top-down coordinates.
func groupWords(glyphs []pdf.Text, height float64) []geometry.Word {
	var words []geometry.Word
	var cur []pdf.Text

	flush := func() {
		if len(cur) == 0 {
			return
		}
		words = append(words, wordFromGlyphs(cur, height))
		cur = cur[:0]
	}

	for _, g := range glyphs {
		if strings.TrimSpace(g.S) == "" {
			flush()
			continue
		}
		if len(cur) > 0 && !continues(cur[len(cur)-1], g) {
			flush()
		}
		cur = append(cur, g)
	}
	flush()
	return words
}

// continues reports whether g directly follows prev in the same word.
func continues(prev, g pdf.Text) bool {
	size := prev.FontSize
	if size <= 0 {
		size = 1
	}
	if abs(g.Y-prev.Y) > size*0.3 {
		return false
	}
	gap := g.X - (prev.X + prev.W)
	return gap <= size*0.15 && gap >= -size*0.5
}

func wordFromGlyphs(glyphs []pdf.Text, height float64) geometry.Word {
	var b strings.Builder
	size := 0.0
	for _, g := range glyphs {
		b.WriteString(g.S)
		size = max(size, g.FontSize)
	}
	first, last := glyphs[0], glyphs[len(glyphs)-1]
	baseline := first.Y
	return geometry.Word{
		Text: norm.NFC.String(b.String()),
		Box: geometry.Rect{
			X0: first.X,
			Y0: height - baseline - size*0.8,
			X1: last.X + last.W,
			Y1: height - baseline + size*0.2,
		},
	}
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

// collectDrawings runs the page's content streams through a painter that
// records rectangles with their fill state.
func collectDrawings(contents pdf.Value, height float64) []geometry.Drawing {
	p := newPainter(height)
	run := func(strm pdf.Value) {
		pdf.Interpret(strm, func(stk *pdf.Stack, op string) {
			n := stk.Len()
			args := make([]pdf.Value, n)
			for i := n - 1; i >= 0; i-- {
				args[i] = stk.Pop()
			}
			p.op(op, operands(args))
		})
	}
	if contents.Kind() == pdf.Array {
		for i := 0; i < contents.Len(); i++ {
			run(contents.Index(i))
		}
	} else if !contents.IsNull() {
		run(contents)
	}
	return p.drawings
}

// operands converts numeric operator arguments. Non-numeric arguments such
// as colour space or pattern names make the slice nil.
func operands(args []pdf.Value) []float64 {
	out := make([]float64, len(args))
	for i, a := range args {
		switch a.Kind() {
		case pdf.Integer, pdf.Real:
			out[i] = a.Float64()
		default:
			return nil
		}
	}
	return out
}
