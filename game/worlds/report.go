package worlds

import (
	"fmt"
	"io"

	"github.com/wricardo/charles/game/engine"
	"github.com/wricardo/charles/game/world"
	"github.com/wricardo/charles/game/worldfile"
)

// Report summarises what a robot can do in a world
type Report struct {
	Width          int             `json:"width"`
	Height         int             `json:"height"`
	Agent          engine.Position `json:"agent"`
	Heading        string          `json:"heading"`
	Ball           engine.Position `json:"ball"`
	WallCells      int             `json:"wall_cells"`
	FreeCells      int             `json:"free_cells"`
	ReachableCells int             `json:"reachable_cells"`
	ReachableBalls int             `json:"reachable_balls"`
	BallReachable  bool            `json:"ball_reachable"`
	Distance       int             `json:"distance"`
}

// Analyze applies d to a fresh width x height grid and measures the area
// reachable from the robot's start
func Analyze(d *worldfile.Description, width, height int) (*Report, error) {
	g := world.New(width, height)
	if err := worldfile.Apply(d, g); err != nil {
		return nil, err
	}

	start := engine.Position{X: d.AgentX, Y: d.AgentY}
	ball := engine.Position{X: d.BallX, Y: d.BallY}
	reach := engine.Reachable(g, start)

	r := &Report{
		Width:          g.Width(),
		Height:         g.Height(),
		Agent:          start,
		Heading:        engine.Direction(d.Direction).String(),
		Ball:           ball,
		WallCells:      g.Count(world.Wall),
		ReachableCells: len(reach),
		ReachableBalls: engine.CountReachableBalls(g, start),
		BallReachable:  reach[ball],
		Distance:       engine.ManhattanDistance(start, ball),
	}
	r.FreeCells = g.Width()*g.Height() - r.WallCells
	return r, nil
}

// AnalyzeFile reads and analyzes the world file at path
func AnalyzeFile(path string, width, height int) (*Report, error) {
	d, err := engine.ReadWorldFile(path)
	if err != nil {
		return nil, err
	}
	return Analyze(d, width, height)
}

// Write prints r as the human readable summary used by the analyze commands
func (r *Report) Write(w io.Writer, name string) error {
	pct := 0.0
	if r.FreeCells > 0 {
		pct = 100 * float64(r.ReachableCells) / float64(r.FreeCells)
	}

	_, err := fmt.Fprintf(w, "=== %s ===\n"+
		"Grid: %d x %d\n"+
		"Robot: (%d,%d) facing %s\n"+
		"Ball: (%d,%d), %d steps away as the crow walks\n"+
		"Walls: %d cells, free: %d cells\n"+
		"Reachable: %d cells (%.0f%% of free), balls in reach: %d\n",
		name, r.Width, r.Height,
		r.Agent.X, r.Agent.Y, r.Heading,
		r.Ball.X, r.Ball.Y, r.Distance,
		r.WallCells, r.FreeCells,
		r.ReachableCells, pct, r.ReachableBalls)
	if err != nil {
		return err
	}

	if r.BallReachable {
		_, err = fmt.Fprintln(w, "OK: the ball is reachable")
	} else {
		_, err = fmt.Fprintln(w, "WARNING: the ball is walled off from the robot")
	}
	return err
}
