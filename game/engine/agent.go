package engine

import (
	"time"

	"github.com/wricardo/charles/game/world"
)

// Agent is the robot. It owns its position, heading and step delay and holds
// a non-owning reference to the grid it walks on.
type Agent struct {
	grid *world.Grid

	pos   Position
	dir   Direction
	delay time.Duration

	startPos Position
	startDir Direction

	renderer Renderer
	sleep    func(time.Duration)
}

// AgentOption configures an Agent
type AgentOption func(*Agent)

// WithRenderer sets the renderer notified after each action
func WithRenderer(r Renderer) AgentOption {
	return func(a *Agent) {
		if r != nil {
			a.renderer = r
		}
	}
}

// WithSleeper replaces time.Sleep for pacing
func WithSleeper(fn func(time.Duration)) AgentOption {
	return func(a *Agent) {
		if fn != nil {
			a.sleep = fn
		}
	}
}

// NewAgent places a robot at (x, y) facing dir. The position must be inside
// the border on a non-wall cell, otherwise ErrInvalidStart is returned.
func NewAgent(grid *world.Grid, x, y int, dir Direction, delay time.Duration, opts ...AgentOption) (*Agent, error) {
	if !grid.IsInterior(x, y) || grid.At(x, y) == world.Wall || !dir.Valid() {
		return nil, ErrInvalidStart
	}

	a := &Agent{
		grid:     grid,
		pos:      Position{X: x, Y: y},
		dir:      dir,
		delay:    max(delay, 0),
		startPos: Position{X: x, Y: y},
		startDir: dir,
		renderer: NopRenderer{},
		sleep:    time.Sleep,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Scene implementation

func (a *Agent) Width() int                { return a.grid.Width() }
func (a *Agent) Height() int               { return a.grid.Height() }
func (a *Agent) At(x, y int) world.Cell    { return a.grid.At(x, y) }
func (a *Agent) AgentPosition() Position   { return a.pos }
func (a *Agent) AgentDirection() Direction { return a.dir }

// Bounds returns the grid size
func (a *Agent) Bounds() (width, height int) { return a.grid.Width(), a.grid.Height() }

// Grid returns the grid the agent walks on
func (a *Agent) Grid() *world.Grid { return a.grid }

// StepDelay returns the pause applied after each successful action
func (a *Agent) StepDelay() time.Duration { return a.delay }

// SetStepDelay sets the pause in milliseconds. Negative values become 0.
func (a *Agent) SetStepDelay(ms int) {
	a.delay = time.Duration(max(ms, 0)) * time.Millisecond
}

// Place moves the robot without any legality check beyond the start rules.
// Generators and loaders use it to put the robot at a layout's entry.
func (a *Agent) Place(x, y int, dir Direction) error {
	if !a.grid.IsInterior(x, y) || a.grid.At(x, y) == world.Wall || !dir.Valid() {
		return ErrInvalidStart
	}
	a.pos = Position{X: x, Y: y}
	a.dir = dir
	return nil
}

// Reset puts the robot back at its start, clears the grid to the bordered
// empty layout and redraws everything
func (a *Agent) Reset() {
	a.grid.Reset()
	a.pos = a.startPos
	a.dir = a.startDir
	a.renderer.RedrawAll(a)
}

func (a *Agent) pace() {
	if a.delay > 0 {
		a.sleep(a.delay)
	}
}
