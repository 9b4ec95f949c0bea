package layout

import (
	"github.com/wricardo/charles/game/world"
)

// Band identifies which cave wall a segment belongs to
type Band int

const (
	NorthBand Band = iota
	SouthBand
)

func (b Band) String() string {
	if b == NorthBand {
		return "north"
	}
	return "south"
}

// CaveOptions tunes the cave generator. Zero values select the defaults.
type CaveOptions struct {
	// MarginDivisor bounds the band offset to Height/MarginDivisor rows
	MarginDivisor int
	// MaxSegmentDivisor bounds segment width to Width/MaxSegmentDivisor cells
	MaxSegmentDivisor int
}

const (
	DefaultMarginDivisor     = 3
	DefaultMaxSegmentDivisor = 10
)

func (o CaveOptions) withDefaults() CaveOptions {
	if o.MarginDivisor <= 0 {
		o.MarginDivisor = DefaultMarginDivisor
	}
	if o.MaxSegmentDivisor <= 0 {
		o.MaxSegmentDivisor = DefaultMaxSegmentDivisor
	}
	return o
}

// Segment is one horizontal run of cave wall
type Segment struct {
	Band  Band `json:"band"`
	X     int  `json:"x"`
	Y     int  `json:"y"`
	Width int  `json:"width"`
}

// Cave resets g and builds a wall band near the top and one near the
// bottom. Each band is a sequence of segments tiling x in [2, Width-3]; every
// segment gets its own random width and row offset.
func Cave(g *world.Grid, rng Rand, opts CaveOptions) []Segment {
	opts = opts.withDefaults()
	g.Reset()

	segments := caveBand(g, rng, opts, NorthBand)
	return append(segments, caveBand(g, rng, opts, SouthBand)...)
}

func caveBand(g *world.Grid, rng Rand, opts CaveOptions, band Band) []Segment {
	w, h := g.Width(), g.Height()
	margin := max(h/opts.MarginDivisor, 1)
	maxWidth := max(w/opts.MaxSegmentDivisor, 1)

	var segments []Segment
	for ix := 2; ix <= w-3; {
		width := rng.Intn(min(maxWidth, w-ix-2)) + 1
		dy := rng.Intn(margin) + 2

		y := dy
		if band == NorthBand {
			y = h - 1 - dy
		}

		for x := ix; x < ix+width; x++ {
			_ = g.Set(x, y, world.Wall)
		}
		segments = append(segments, Segment{Band: band, X: ix, Y: y, Width: width})
		ix += width
	}
	return segments
}

// MarginRows returns the inclusive row range a band's segments can occupy on
// a grid of height h
func MarginRows(h int, opts CaveOptions, band Band) (lo, hi int) {
	opts = opts.withDefaults()
	margin := max(h/opts.MarginDivisor, 1)
	if band == NorthBand {
		return h - 2 - margin, h - 3
	}
	return 2, margin + 1
}
