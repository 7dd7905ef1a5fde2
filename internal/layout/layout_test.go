package layout

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/legislation-cli/internal/geometry"
)

func w(x0, y0, x1 float64, text string) geometry.Word {
	return geometry.Word{Box: geometry.Rect{X0: x0, Y0: y0, X1: x1, Y1: y0 + 10}, Text: text}
}

func TestPageText_Empty(t *testing.T) {
	assert.Equal(t, "", PageText(nil, nil, DefaultOptions()))
}

func TestPageText_SameRowJitterJoinedWithSpace(t *testing.T) {
	words := []geometry.Word{
		w(25, 11, 40, "1."),
		w(0, 10, 20, "Section"),
	}
	assert.Equal(t, "Section 1.", PageText(words, nil, DefaultOptions()))
}

func TestPageText_TightGapNoSpace(t *testing.T) {
	words := []geometry.Word{
		w(0, 10, 20, "re"),
		w(21, 10, 40, "enacted"),
	}
	assert.Equal(t, "reenacted", PageText(words, nil, DefaultOptions()))
}

func TestPageText_LineBreak(t *testing.T) {
	words := []geometry.Word{
		w(0, 10, 20, "first"),
		w(0, 25, 20, "second"),
	}
	assert.Equal(t, "first\nsecond", PageText(words, nil, DefaultOptions()))
}

func TestPageText_ParagraphBreak(t *testing.T) {
	words := []geometry.Word{
		w(0, 10, 20, "first"),
		w(0, 35, 20, "second"),
	}
	assert.Equal(t, "first\n\nsecond", PageText(words, nil, DefaultOptions()))
}

func TestPageText_ReadingOrderAcrossRows(t *testing.T) {
	// Extraction order is scrambled and y0 jitters within each row.
	words := []geometry.Word{
		w(30, 25, 50, "line"),
		w(0, 10.5, 20, "The"),
		w(0, 24, 25, "next"),
		w(25, 9, 45, "quick"),
		w(50, 10, 70, "fox"),
	}
	assert.Equal(t, "The quick fox\nnext line", PageText(words, nil, DefaultOptions()))
}

func TestPageText_StruckIncluded(t *testing.T) {
	words := []geometry.Word{
		w(0, 10, 20, "shall"),
		w(25, 10, 40, "not"),
		w(45, 10, 60, "apply"),
	}
	struck := geometry.Set{1: {}}

	out := PageText(words, struck, DefaultOptions())
	assert.Equal(t, "shall ~~not~~ apply", out)
	assert.Equal(t, 1, strings.Count(out, "~~not~~"))
}

func TestPageText_StruckOmitted(t *testing.T) {
	words := []geometry.Word{
		w(0, 10, 20, "shall"),
		w(25, 10, 40, "not"),
		w(45, 10, 60, "apply"),
	}
	struck := geometry.Set{1: {}}
	opts := DefaultOptions()
	opts.IncludeStruck = false

	out := PageText(words, struck, opts)
	assert.Equal(t, "shall apply", out)
	assert.NotContains(t, out, "~~")
}

func TestPageText_StruckAtLineStartOmitted(t *testing.T) {
	words := []geometry.Word{
		w(0, 10, 10, "old"),
		w(15, 10, 30, "new"),
	}
	opts := DefaultOptions()
	opts.IncludeStruck = false

	assert.Equal(t, "new", PageText(words, geometry.Set{0: {}}, opts))
}

func TestRowAnchors_ChainedClusters(t *testing.T) {
	words := []geometry.Word{
		w(0, 10, 5, "a"),
		w(0, 11, 5, "b"),
		w(0, 12.5, 5, "c"),
		w(0, 11, 5, "d"),
		w(0, 30, 5, "e"),
	}
	anchors := RowAnchors(words, 3)
	require.Len(t, anchors, 2)
	assert.InDelta(t, 11.1667, anchors[0], 0.001)
	assert.InDelta(t, 30, anchors[1], 0.001)
}

func TestRenderPage_DetectsStrikes(t *testing.T) {
	page := Page{
		Words: []geometry.Word{
			w(0, 10, 20, "keep"),
			w(25, 10, 45, "drop"),
		},
		Drawings: []geometry.Drawing{
			{Box: geometry.Rect{X0: 24, Y0: 14.5, X1: 46, Y1: 15.5}, Filled: true, Fill: geometry.Black},
		},
	}

	assert.Equal(t, "keep ~~drop~~", RenderPage(page, DefaultOptions()))
	assert.Equal(t, "keep drop", RenderPage(page, PlainOptions()))
}

func TestDocumentText_PageMarkers(t *testing.T) {
	pages := []Page{
		{Words: []geometry.Word{w(0, 10, 20, "one")}},
		{Words: []geometry.Word{w(0, 10, 20, "two")}},
	}

	got := DocumentText(pages, DefaultOptions())
	want := "START OF PAGE 1\none\nEND OF PAGE 1\n\nSTART OF PAGE 2\ntwo\nEND OF PAGE 2"
	assert.Equal(t, want, got)
}

func TestDocumentText_EmptyPage(t *testing.T) {
	got := DocumentText([]Page{{}}, DefaultOptions())
	assert.Equal(t, "START OF PAGE 1\n\nEND OF PAGE 1", got)
}
