// Package geometry locates struck-through words on a page from word boxes and
// filled vector rectangles.
package geometry

import "math"

// Rect is an axis-aligned box in top-down page coordinates (y grows downward).
type Rect struct {
	X0 float64 `json:"x0"`
	Y0 float64 `json:"y0"`
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
}

// Width returns the horizontal extent of r.
func (r Rect) Width() float64 { return r.X1 - r.X0 }

// Height returns the vertical extent of r.
func (r Rect) Height() float64 { return r.Y1 - r.Y0 }

// Empty reports whether r has no area.
func (r Rect) Empty() bool { return r.X1 <= r.X0 || r.Y1 <= r.Y0 }

// CenterY returns the vertical midpoint of r.
func (r Rect) CenterY() float64 { return r.Y0 + r.Height()/2 }

// Intersect returns the overlap of r and o. The result is Empty when the
// rectangles do not overlap.
func (r Rect) Intersect(o Rect) Rect {
	return Rect{
		X0: math.Max(r.X0, o.X0),
		Y0: math.Max(r.Y0, o.Y0),
		X1: math.Min(r.X1, o.X1),
		Y1: math.Min(r.Y1, o.Y1),
	}
}

// Word is a piece of literal text and its bounding box.
type Word struct {
	Box  Rect   `json:"box"`
	Text string `json:"text"`
}

// Color is an RGB fill colour with components in [0,1].
type Color struct {
	R float64 `json:"r"`
	G float64 `json:"g"`
	B float64 `json:"b"`
}

// Black is the only fill colour treated as a strike line.
var Black = Color{}

// Drawing is a rectangle painted on the page.
type Drawing struct {
	Box    Rect  `json:"box"`
	Filled bool  `json:"filled"`
	Fill   Color `json:"fill"`
}

// StrikeOptions tunes strike line detection.
type StrikeOptions struct {
	// MaxHeight is the exclusive upper bound on a strike line's height.
	MaxHeight float64
	// MinOverlap is the horizontal overlap that marks a word struck even when
	// less than half of the word is covered.
	MinOverlap float64
}

// DefaultStrikeOptions returns the thresholds used for typeset legislation.
func DefaultStrikeOptions() StrikeOptions {
	return StrikeOptions{MaxHeight: 1.5, MinOverlap: 5}
}

// Set holds the indices of struck words.
type Set map[int]struct{}

// Has reports whether word index i is in the set.
func (s Set) Has(i int) bool {
	_, ok := s[i]
	return ok
}

// StrikeLines filters drawings down to thin, wide, solid black filled bars.
func StrikeLines(drawings []Drawing, opts StrikeOptions) []Rect {
	opts = applyDefaults(opts)
	var lines []Rect
	for _, d := range drawings {
		if !d.Filled || d.Fill != Black {
			continue
		}
		h := d.Box.Height()
		if h <= 0 || h >= opts.MaxHeight {
			continue
		}
		if d.Box.Width() <= h*2 {
			continue
		}
		lines = append(lines, d.Box)
	}
	return lines
}

// StruckWords returns the indices of words crossed by a strike line.
func StruckWords(words []Word, drawings []Drawing, opts StrikeOptions) Set {
	opts = applyDefaults(opts)
	struck := Set{}
	lines := StrikeLines(drawings, opts)
	if len(lines) == 0 || len(words) == 0 {
		return struck
	}

	for i, w := range words {
		if w.Box.Empty() || isBlank(w.Text) {
			continue
		}
		for _, line := range lines {
			if crosses(w.Box, line, opts) {
				struck[i] = struct{}{}
				break
			}
		}
	}
	return struck
}

func crosses(word, line Rect, opts StrikeOptions) bool {
	overlap := word.Intersect(line)
	if overlap.Empty() {
		return false
	}
	if math.Abs(word.CenterY()-line.CenterY()) >= word.Height()/4 {
		return false
	}
	return overlap.Width() > word.Width()*0.5 || overlap.Width() > opts.MinOverlap
}

func applyDefaults(opts StrikeOptions) StrikeOptions {
	def := DefaultStrikeOptions()
	if opts.MaxHeight <= 0 {
		opts.MaxHeight = def.MaxHeight
	}
	if opts.MinOverlap <= 0 {
		opts.MinOverlap = def.MinOverlap
	}
	return opts
}

func isBlank(s string) bool {
	for _, r := range s {
		switch r {
		case ' ', '\t', '\n', '\r', '\f', '\v':
		default:
			return false
		}
	}
	return true
}
