package world

import (
	"errors"
	"fmt"
	"strings"
)

// Cell is the content of a single grid coordinate
type Cell int

const (
	Empty Cell = iota
	Ball
	Wall
)

const (
	DefaultWidth  = 50
	DefaultHeight = 30

	// MinSize is the smallest grid that still has an interior cell
	MinSize = 3
)

// Row glyphs used by Rows and FromRows
const (
	EmptyGlyph = '.'
	BallGlyph  = 'o'
	WallGlyph  = '#'
)

var (
	ErrOutOfBounds = errors.New("outside the grid")
	ErrInvalidSize = errors.New("invalid grid size")
	ErrInvalidRows = errors.New("invalid grid rows")
)

// String returns the lowercase cell name
func (c Cell) String() string {
	switch c {
	case Empty:
		return "empty"
	case Ball:
		return "ball"
	case Wall:
		return "wall"
	default:
		return fmt.Sprintf("cell(%d)", int(c))
	}
}

// Glyph returns the ASCII glyph used in row snapshots
func (c Cell) Glyph() byte {
	switch c {
	case Ball:
		return BallGlyph
	case Wall:
		return WallGlyph
	default:
		return EmptyGlyph
	}
}

// CellFromGlyph is the inverse of Cell.Glyph
func CellFromGlyph(b byte) (Cell, bool) {
	switch b {
	case EmptyGlyph:
		return Empty, true
	case BallGlyph:
		return Ball, true
	case WallGlyph:
		return Wall, true
	}
	return Empty, false
}

// Grid is a fixed-size 2-D array of cells indexed [x][y]
type Grid struct {
	width  int
	height int
	cells  [][]Cell
}

// New creates an all-empty grid. Sizes below MinSize are raised to MinSize.
func New(width, height int) *Grid {
	if width < MinSize {
		width = MinSize
	}
	if height < MinSize {
		height = MinSize
	}

	cells := make([][]Cell, width)
	for x := range cells {
		cells[x] = make([]Cell, height)
	}

	return &Grid{width: width, height: height, cells: cells}
}

// NewBordered creates a grid whose outer ring is wall
func NewBordered(width, height int) *Grid {
	g := New(width, height)
	g.BuildBorder()
	return g
}

// Width returns the number of columns
func (g *Grid) Width() int { return g.width }

// Height returns the number of rows
func (g *Grid) Height() int { return g.height }

// InBounds reports whether (x, y) addresses a cell of the grid
func (g *Grid) InBounds(x, y int) bool {
	return x >= 0 && x < g.width && y >= 0 && y < g.height
}

// IsInterior reports whether (x, y) lies strictly inside the border ring
func (g *Grid) IsInterior(x, y int) bool {
	return x >= 1 && x <= g.width-2 && y >= 1 && y <= g.height-2
}

// At returns the cell at (x, y). Cells outside the grid read as Wall.
func (g *Grid) At(x, y int) Cell {
	if !g.InBounds(x, y) {
		return Wall
	}
	return g.cells[x][y]
}

// Set writes a single cell
func (g *Grid) Set(x, y int, c Cell) error {
	if !g.InBounds(x, y) {
		return fmt.Errorf("set (%d,%d): %w", x, y, ErrOutOfBounds)
	}
	g.cells[x][y] = c
	return nil
}

// Clear sets every cell to Empty
func (g *Grid) Clear() {
	for x := range g.cells {
		for y := range g.cells[x] {
			g.cells[x][y] = Empty
		}
	}
}

// BuildBorder walls off row 0, row Height-1, column 0 and column Width-1
func (g *Grid) BuildBorder() {
	for x := 0; x < g.width; x++ {
		g.cells[x][0] = Wall
		g.cells[x][g.height-1] = Wall
	}
	for y := 1; y < g.height-1; y++ {
		g.cells[0][y] = Wall
		g.cells[g.width-1][y] = Wall
	}
}

// Reset clears the grid and rebuilds the border
func (g *Grid) Reset() {
	g.Clear()
	g.BuildBorder()
}

// PlaceRectangleWalls draws the hollow outline of the rectangle spanning
// x in [left, left+width] and y in [bottom, bottom+height].
func (g *Grid) PlaceRectangleWalls(left, bottom, width, height int) error {
	if width < 0 || height < 0 {
		return fmt.Errorf("rectangle %dx%d: negative size: %w", width, height, ErrOutOfBounds)
	}
	right, top := left+width, bottom+height
	if !g.InBounds(left, bottom) || !g.InBounds(right, top) {
		return fmt.Errorf("rectangle (%d,%d)-(%d,%d): %w", left, bottom, right, top, ErrOutOfBounds)
	}

	for x := left; x <= right; x++ {
		g.cells[x][bottom] = Wall
		g.cells[x][top] = Wall
	}
	for y := bottom; y <= top; y++ {
		g.cells[left][y] = Wall
		g.cells[right][y] = Wall
	}
	return nil
}

// PlaceWallSegment draws count+1 contiguous wall cells starting at
// (left, bottom), along +x when horizontal and along +y otherwise.
func (g *Grid) PlaceWallSegment(left, bottom, count int, horizontal bool) error {
	if count < 0 {
		return fmt.Errorf("wall segment of %d cells: %w", count+1, ErrOutOfBounds)
	}
	endX, endY := left, bottom+count
	if horizontal {
		endX, endY = left+count, bottom
	}
	if !g.InBounds(left, bottom) || !g.InBounds(endX, endY) {
		return fmt.Errorf("wall segment (%d,%d)-(%d,%d): %w", left, bottom, endX, endY, ErrOutOfBounds)
	}

	for i := 0; i <= count; i++ {
		if horizontal {
			g.cells[left+i][bottom] = Wall
		} else {
			g.cells[left][bottom+i] = Wall
		}
	}
	return nil
}

// PlaceBall puts a ball at (x, y). Out-of-range coordinates are ignored.
func (g *Grid) PlaceBall(x, y int) {
	if g.InBounds(x, y) {
		g.cells[x][y] = Ball
	}
}

// CreateBall has the same contract as PlaceBall
func (g *Grid) CreateBall(x, y int) {
	g.PlaceBall(x, y)
}

// Count returns how many cells hold c
func (g *Grid) Count(c Cell) int {
	count := 0
	for x := range g.cells {
		for _, cell := range g.cells[x] {
			if cell == c {
				count++
			}
		}
	}
	return count
}

// HasBorder reports whether the whole outer ring is wall
func (g *Grid) HasBorder() bool {
	for x := 0; x < g.width; x++ {
		if g.cells[x][0] != Wall || g.cells[x][g.height-1] != Wall {
			return false
		}
	}
	for y := 0; y < g.height; y++ {
		if g.cells[0][y] != Wall || g.cells[g.width-1][y] != Wall {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of the grid
func (g *Grid) Clone() *Grid {
	c := New(g.width, g.height)
	for x := range g.cells {
		copy(c.cells[x], g.cells[x])
	}
	return c
}

// CopyFrom overwrites g with the contents of src. Both grids must have the
// same size.
func (g *Grid) CopyFrom(src *Grid) error {
	if src.width != g.width || src.height != g.height {
		return fmt.Errorf("copy %dx%d into %dx%d: %w", src.width, src.height, g.width, g.height, ErrInvalidSize)
	}
	for x := range g.cells {
		copy(g.cells[x], src.cells[x])
	}
	return nil
}

// Rows renders the grid as ASCII rows, top row (y = Height-1) first
func (g *Grid) Rows() []string {
	rows := make([]string, g.height)
	var b strings.Builder
	for y := g.height - 1; y >= 0; y-- {
		b.Reset()
		for x := 0; x < g.width; x++ {
			b.WriteByte(g.cells[x][y].Glyph())
		}
		rows[g.height-1-y] = b.String()
	}
	return rows
}

// String renders the grid one row per line
func (g *Grid) String() string {
	return strings.Join(g.Rows(), "\n")
}

// FromRows parses the output of Rows back into a grid
func FromRows(rows []string) (*Grid, error) {
	if len(rows) < MinSize {
		return nil, fmt.Errorf("%d rows: %w", len(rows), ErrInvalidSize)
	}
	width := len(rows[0])
	if width < MinSize {
		return nil, fmt.Errorf("%d columns: %w", width, ErrInvalidSize)
	}

	g := New(width, len(rows))
	for i, row := range rows {
		if len(row) != width {
			return nil, fmt.Errorf("row %d has %d columns, expected %d: %w", i, len(row), width, ErrInvalidRows)
		}
		y := g.height - 1 - i
		for x := 0; x < width; x++ {
			c, ok := CellFromGlyph(row[x])
			if !ok {
				return nil, fmt.Errorf("invalid glyph %q at row %d, col %d: %w", row[x], i, x, ErrInvalidRows)
			}
			g.cells[x][y] = c
		}
	}
	return g, nil
}
