package pdfpage

import (
	"testing"

	"github.com/ledongthuc/pdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/legislation-cli/internal/geometry"
)

func TestPainter_FilledRectangle(t *testing.T) {
	p := newPainter(792)
	p.op("rg", []float64{0, 0, 0})
	p.op("re", []float64{70, 703, 40, 1})
	p.op("f", nil)

	require.Len(t, p.drawings, 1)
	d := p.drawings[0]
	assert.True(t, d.Filled)
	assert.Equal(t, geometry.Black, d.Fill)
	assert.InDelta(t, 70, d.Box.X0, 1e-9)
	assert.InDelta(t, 110, d.Box.X1, 1e-9)
	assert.InDelta(t, 88, d.Box.Y0, 1e-9)
	assert.InDelta(t, 89, d.Box.Y1, 1e-9)
}

func TestPainter_StrokeAndDiscard(t *testing.T) {
	p := newPainter(100)
	p.op("re", []float64{0, 0, 10, 10})
	p.op("S", nil)
	p.op("re", []float64{0, 0, 5, 5})
	p.op("n", nil)
	p.op("f", nil)

	require.Len(t, p.drawings, 1)
	assert.False(t, p.drawings[0].Filled)
}

func TestPainter_SaveRestoreAndTransform(t *testing.T) {
	p := newPainter(100)
	p.op("q", nil)
	p.op("cm", []float64{2, 0, 0, 2, 10, 10})
	p.op("g", []float64{0.5})
	p.op("re", []float64{0, 0, 5, 1})
	p.op("f", nil)
	p.op("Q", nil)
	p.op("re", []float64{0, 0, 5, 1})
	p.op("f", nil)

	require.Len(t, p.drawings, 2)
	scaled := p.drawings[0]
	assert.Equal(t, geometry.Color{R: 0.5, G: 0.5, B: 0.5}, scaled.Fill)
	assert.Equal(t, geometry.Rect{X0: 10, Y0: 88, X1: 20, Y1: 90}, scaled.Box)

	plain := p.drawings[1]
	assert.Equal(t, geometry.Black, plain.Fill, "fill restored by Q")
	assert.Equal(t, geometry.Rect{X0: 0, Y0: 99, X1: 5, Y1: 100}, plain.Box)
}

func TestPainter_ColourOperators(t *testing.T) {
	tests := []struct {
		name string
		op   string
		args []float64
		want geometry.Color
	}{
		{"cmyk black", "k", []float64{0, 0, 0, 1}, geometry.Black},
		{"cmyk cyan", "k", []float64{1, 0, 0, 0}, geometry.Color{R: 0, G: 1, B: 1}},
		{"sc gray", "sc", []float64{1}, geometry.Color{R: 1, G: 1, B: 1}},
		{"scn rgb", "scn", []float64{1, 0, 0}, geometry.Color{R: 1}},
		{"scn pattern name ignored", "scn", nil, geometry.Black},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newPainter(100)
			p.op(tt.op, tt.args)
			assert.Equal(t, tt.want, p.state.fill)
		})
	}
}

func TestPainter_UnbalancedRestore(t *testing.T) {
	p := newPainter(100)
	assert.NotPanics(t, func() { p.op("Q", nil) })
	assert.Equal(t, identity, p.state.ctm)
}

func TestGroupWords(t *testing.T) {
	glyphs := []pdf.Text{
		{FontSize: 12, X: 72, Y: 700, W: 6, S: "H"},
		{FontSize: 12, X: 78, Y: 700, W: 6, S: "i"},
		{FontSize: 12, X: 84, Y: 700, W: 3, S: " "},
		{FontSize: 12, X: 87, Y: 700, W: 6, S: "y"},
		{FontSize: 12, X: 93, Y: 700, W: 6, S: "o"},
		// Kerned gap without a space glyph starts a new word.
		{FontSize: 12, X: 110, Y: 700, W: 6, S: "u"},
		// Next line.
		{FontSize: 12, X: 72, Y: 686, W: 6, S: "e"},
	}
	words := groupWords(glyphs, 792)
	require.Len(t, words, 4)

	assert.Equal(t, "Hi", words[0].Text)
	assert.InDelta(t, 72, words[0].Box.X0, 1e-9)
	assert.InDelta(t, 84, words[0].Box.X1, 1e-9)
	assert.InDelta(t, 82.4, words[0].Box.Y0, 1e-9)
	assert.InDelta(t, 94.4, words[0].Box.Y1, 1e-9)
	assert.Equal(t, "yo", words[1].Text)
	assert.Equal(t, "u", words[2].Text)
	assert.Equal(t, "e", words[3].Text)
	assert.InDelta(t, 96.4, words[3].Box.Y0, 1e-9)
}

func TestGroupWords_NormalizesToNFC(t *testing.T) {
	glyphs := []pdf.Text{
		{FontSize: 10, X: 0, Y: 10, W: 5, S: "e"},
		{FontSize: 10, X: 5, Y: 10, W: 0, S: "\u0301"},
	}
	words := groupWords(glyphs, 100)
	require.Len(t, words, 1)
	assert.Equal(t, "\u00e9", words[0].Text)
}

func TestGroupWords_Empty(t *testing.T) {
	assert.Empty(t, groupWords(nil, 792))
	assert.Empty(t, groupWords([]pdf.Text{{S: " "}}, 792))
}
