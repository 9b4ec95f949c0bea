package worldfile

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"github.com/wricardo/charles/game/world"
)

var (
	ErrSyntax  = errors.New("world file syntax error")
	ErrInvalid = errors.New("invalid world description")
)

// MaxRuns caps each wall run count so a corrupt header cannot make the
// decoder allocate without bound
const MaxRuns = 1 << 16

// Run is one straight wall run. It paints Length+1 cells.
type Run struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Length int `json:"length"`
}

// Description is a decoded world file
type Description struct {
	AgentX    int   `json:"agent_x"`
	AgentY    int   `json:"agent_y"`
	Direction int   `json:"direction"`
	BallX     int   `json:"ball_x"`
	BallY     int   `json:"ball_y"`

	// Horizontal runs extend along +x, Vertical along +y
	Horizontal []Run `json:"horizontal"`
	Vertical   []Run `json:"vertical"`
}

type scanner struct {
	r   *bufio.Reader
	err error
}

func (s *scanner) int(field string) int {
	if s.err != nil {
		return 0
	}
	var v int
	if _, err := fmt.Fscan(s.r, &v); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			s.err = fmt.Errorf("%s: unexpected end of file: %w", field, ErrSyntax)
		} else {
			s.err = fmt.Errorf("%s: %v: %w", field, err, ErrSyntax)
		}
	}
	return v
}

func (s *scanner) runs(kind string) []Run {
	count := s.int(kind + " wall count")
	if s.err != nil {
		return nil
	}
	if count < 0 || count > MaxRuns {
		s.err = fmt.Errorf("%s wall count %d out of range: %w", kind, count, ErrSyntax)
		return nil
	}

	runs := make([]Run, 0, count)
	for i := 0; i < count; i++ {
		field := fmt.Sprintf("%s wall %d", kind, i+1)
		run := Run{X: s.int(field + " x"), Y: s.int(field + " y"), Length: s.int(field + " length")}
		if s.err != nil {
			return nil
		}
		runs = append(runs, run)
	}
	return runs
}

// Decode reads a world description. It checks syntax only; use Validate for
// the range checks.
func Decode(r io.Reader) (*Description, error) {
	s := &scanner{r: bufio.NewReader(r)}
	d := &Description{
		AgentX:    s.int("agent x"),
		AgentY:    s.int("agent y"),
		Direction: s.int("direction"),
		BallX:     s.int("ball x"),
		BallY:     s.int("ball y"),
	}
	d.Horizontal = s.runs("horizontal")
	d.Vertical = s.runs("vertical")
	if s.err != nil {
		return nil, s.err
	}
	return d, nil
}

// Encode writes d in the format Decode reads
func Encode(w io.Writer, d *Description) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%d %d %d %d %d\n", d.AgentX, d.AgentY, d.Direction, d.BallX, d.BallY)
	for _, group := range [][]Run{d.Horizontal, d.Vertical} {
		fmt.Fprintf(bw, "%d\n", len(group))
		for _, run := range group {
			fmt.Fprintf(bw, "%d %d %d\n", run.X, run.Y, run.Length)
		}
	}
	return bw.Flush()
}

// Validate checks d against a width x height grid
func Validate(d *Description, width, height int) error {
	if d == nil {
		return fmt.Errorf("nil description: %w", ErrInvalid)
	}
	scratch := world.New(width, height)
	if !scratch.IsInterior(d.AgentX, d.AgentY) {
		return fmt.Errorf("agent position (%d,%d) is not inside the border: %w", d.AgentX, d.AgentY, ErrInvalid)
	}
	if d.Direction < 0 || d.Direction > 3 {
		return fmt.Errorf("direction %d must be between 0 and 3: %w", d.Direction, ErrInvalid)
	}
	if !scratch.InBounds(d.BallX, d.BallY) {
		return fmt.Errorf("reference ball (%d,%d) is outside the grid: %w", d.BallX, d.BallY, ErrInvalid)
	}

	if err := paint(scratch, d); err != nil {
		return err
	}
	if scratch.At(d.AgentX, d.AgentY) == world.Wall {
		return fmt.Errorf("agent position (%d,%d) is covered by a wall: %w", d.AgentX, d.AgentY, ErrInvalid)
	}
	if scratch.At(d.BallX, d.BallY) == world.Wall {
		return fmt.Errorf("reference ball (%d,%d) is covered by a wall: %w", d.BallX, d.BallY, ErrInvalid)
	}
	return nil
}

func paint(g *world.Grid, d *Description) error {
	for i, run := range d.Horizontal {
		if err := g.PlaceWallSegment(run.X, run.Y, run.Length, true); err != nil {
			return fmt.Errorf("horizontal wall %d: %v: %w", i+1, err, ErrInvalid)
		}
	}
	for i, run := range d.Vertical {
		if err := g.PlaceWallSegment(run.X, run.Y, run.Length, false); err != nil {
			return fmt.Errorf("vertical wall %d: %v: %w", i+1, err, ErrInvalid)
		}
	}
	return nil
}

// Apply validates d and then resets g to the bordered layout it describes.
// On error g is untouched.
func Apply(d *Description, g *world.Grid) error {
	if err := Validate(d, g.Width(), g.Height()); err != nil {
		return err
	}
	g.Reset()
	if err := paint(g, d); err != nil {
		return err
	}
	g.PlaceBall(d.BallX, d.BallY)
	return nil
}

// Describe captures the walls of g as horizontal runs, one per maximal run of
// interior wall cells in each row. The border is implied by the format.
func Describe(g *world.Grid, agentX, agentY, direction, ballX, ballY int) *Description {
	d := &Description{
		AgentX:     agentX,
		AgentY:     agentY,
		Direction:  direction,
		BallX:      ballX,
		BallY:      ballY,
		Horizontal: []Run{},
		Vertical:   []Run{},
	}
	for y := 1; y <= g.Height()-2; y++ {
		start := -1
		for x := 1; x <= g.Width()-1; x++ {
			wall := x <= g.Width()-2 && g.At(x, y) == world.Wall
			switch {
			case wall && start < 0:
				start = x
			case !wall && start >= 0:
				d.Horizontal = append(d.Horizontal, Run{X: start, Y: y, Length: x - 1 - start})
				start = -1
			}
		}
	}
	return d
}

// Cells returns every cell a run paints
func (r Run) Cells(horizontal bool) [][2]int {
	cells := make([][2]int, 0, max(r.Length+1, 0))
	for i := 0; i <= r.Length; i++ {
		if horizontal {
			cells = append(cells, [2]int{r.X + i, r.Y})
		} else {
			cells = append(cells, [2]int{r.X, r.Y + i})
		}
	}
	return cells
}
