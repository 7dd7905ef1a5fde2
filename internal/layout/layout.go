// Package layout rebuilds reading-order text from unordered page words.
//
// Extraction order from a PDF is not reading order. Raw word coordinates
// jitter from glyph to glyph, so vertical start coordinates are clustered into
// row anchors first, every word is snapped to its nearest anchor and words are
// then read row by row, left to right.
package layout

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/sells-group/legislation-cli/internal/geometry"
)

// Options controls page text reconstruction.
type Options struct {
	// IncludeStruck wraps struck words in Marker; when false they are dropped.
	IncludeStruck bool
	// Marker surrounds struck words. Default "~~".
	Marker string
	// RowTolerance merges vertical start coordinates closer than this into one row.
	RowTolerance float64
	// LineBreak is the vertical jump that starts a new line; twice this adds a blank line.
	LineBreak float64
	// SpaceGap is the horizontal gap above which a space separates two words.
	SpaceGap float64
	// DetectStrikes enables strike line detection in RenderPage.
	DetectStrikes bool
	// Strike tunes strike line detection.
	Strike geometry.StrikeOptions
}

// DefaultOptions returns the options used for bill and amendment text.
func DefaultOptions() Options {
	return Options{
		IncludeStruck: true,
		Marker:        "~~",
		RowTolerance:  3,
		LineBreak:     10,
		SpaceGap:      2,
		DetectStrikes: true,
		Strike:        geometry.DefaultStrikeOptions(),
	}
}

// PlainOptions returns options that skip strike detection, used for
// documents such as fiscal notes where drawings carry no meaning.
func PlainOptions() Options {
	opts := DefaultOptions()
	opts.DetectStrikes = false
	return opts
}

// Page holds everything the reconstructor needs from one page.
type Page struct {
	Words    []geometry.Word
	Drawings []geometry.Drawing
}

// Introspector opens a PDF and returns its pages.
type Introspector interface {
	Open(data []byte) ([]Page, error)
}

type placedWord struct {
	word geometry.Word
	row  float64
	idx  int
}

// RenderPage detects struck words (when enabled) and reconstructs page text.
func RenderPage(p Page, opts Options) string {
	opts = applyDefaults(opts)
	struck := geometry.Set{}
	if opts.DetectStrikes {
		struck = geometry.StruckWords(p.Words, p.Drawings, opts.Strike)
	}
	return PageText(p.Words, struck, opts)
}

// PageText reconstructs the reading-order text of one page. Words whose
// index is in struck are wrapped in the marker or dropped per IncludeStruck.
func PageText(words []geometry.Word, struck geometry.Set, opts Options) string {
	if len(words) == 0 {
		return ""
	}
	opts = applyDefaults(opts)

	anchors := RowAnchors(words, opts.RowTolerance)
	placed := make([]placedWord, len(words))
	for i, w := range words {
		placed[i] = placedWord{word: w, row: w.Box.Y0, idx: i}
	}
	sort.SliceStable(placed, func(i, j int) bool {
		return less(placed[i].row, placed[i].word.Box.X0, placed[j].row, placed[j].word.Box.X0)
	})
	for i := range placed {
		placed[i].row = nearest(anchors, placed[i].word.Box.Y0)
	}
	sort.SliceStable(placed, func(i, j int) bool {
		return less(placed[i].row, placed[i].word.Box.X0, placed[j].row, placed[j].word.Box.X0)
	})

	var out []string
	var line strings.Builder
	lastRow := placed[0].row
	lastX1 := placed[0].word.Box.X0

	for i, pw := range placed {
		if pw.row > lastRow+opts.LineBreak {
			out = append(out, strings.TrimSpace(line.String()))
			line.Reset()
			if pw.row > lastRow+opts.LineBreak*2 {
				out = append(out, "")
			}
			lastX1 = pw.word.Box.X0
		}

		if line.Len() > 0 && pw.word.Box.X0 > lastX1+opts.SpaceGap {
			line.WriteByte(' ')
		}

		switch {
		case !struck.Has(pw.idx):
			line.WriteString(pw.word.Text)
		case opts.IncludeStruck:
			line.WriteString(opts.Marker)
			line.WriteString(pw.word.Text)
			line.WriteString(opts.Marker)
		}

		lastRow = pw.row
		lastX1 = pw.word.Box.X1

		if i == len(placed)-1 {
			out = append(out, strings.TrimSpace(line.String()))
		}
	}

	return strings.Join(out, "\n")
}

// RowAnchors clusters the distinct vertical start coordinates of words into
// rows. Coordinates closer than tolerance to the previous member of a cluster
// join it; each cluster is represented by the mean of its members.
func RowAnchors(words []geometry.Word, tolerance float64) []float64 {
	seen := make(map[float64]struct{}, len(words))
	ys := make([]float64, 0, len(words))
	for _, w := range words {
		if _, ok := seen[w.Box.Y0]; ok {
			continue
		}
		seen[w.Box.Y0] = struct{}{}
		ys = append(ys, w.Box.Y0)
	}
	if len(ys) == 0 {
		return nil
	}
	sort.Float64s(ys)

	var anchors []float64
	group := []float64{ys[0]}
	for _, y := range ys[1:] {
		if y-group[len(group)-1] < tolerance {
			group = append(group, y)
			continue
		}
		anchors = append(anchors, mean(group))
		group = []float64{y}
	}
	return append(anchors, mean(group))
}

// DocumentText renders every page and wraps each with page markers.
func DocumentText(pages []Page, opts Options) string {
	parts := make([]string, len(pages))
	for i, p := range pages {
		parts[i] = fmt.Sprintf("START OF PAGE %d\n%s\nEND OF PAGE %d", i+1, RenderPage(p, opts), i+1)
	}
	return strings.Join(parts, "\n\n")
}

func nearest(anchors []float64, y float64) float64 {
	best := anchors[0]
	bestDist := math.Abs(y - best)
	for _, a := range anchors[1:] {
		if d := math.Abs(y - a); d < bestDist {
			best, bestDist = a, d
		}
	}
	return best
}

func less(rowA, xA, rowB, xB float64) bool {
	if rowA != rowB {
		return rowA < rowB
	}
	return xA < xB
}

func mean(vals []float64) float64 {
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

func applyDefaults(opts Options) Options {
	def := DefaultOptions()
	if opts.Marker == "" {
		opts.Marker = def.Marker
	}
	if opts.RowTolerance <= 0 {
		opts.RowTolerance = def.RowTolerance
	}
	if opts.LineBreak <= 0 {
		opts.LineBreak = def.LineBreak
	}
	if opts.SpaceGap <= 0 {
		opts.SpaceGap = def.SpaceGap
	}
	return opts
}
