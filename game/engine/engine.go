package engine

import (
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/wricardo/charles/game/layout"
	"github.com/wricardo/charles/game/world"
)

// Simulation owns one grid and the robot walking on it. Entry points build
// one and hand it to every component that needs the world; there is no
// package level state.
type Simulation struct {
	grid      *world.Grid
	agent     *Agent
	renderers *rendererSet
	rng       *rand.Rand
	logger    *zap.Logger

	worldName      string
	message        string
	history        []HistoryEntry
	totalActions   int
	currentActions int
}

type simOptions struct {
	width, height int
	delay         time.Duration
	sleeper       func(time.Duration)
	renderers     []Renderer
	seed          int64
	seeded        bool
	logger        *zap.Logger
}

// Option configures a Simulation
type Option func(*simOptions)

// WithSize sets the grid size
func WithSize(width, height int) Option {
	return func(o *simOptions) { o.width, o.height = width, height }
}

// WithStepDelay sets the initial pause after each successful action
func WithStepDelay(d time.Duration) Option {
	return func(o *simOptions) { o.delay = d }
}

// WithPacing replaces time.Sleep for the step delay
func WithPacing(fn func(time.Duration)) Option {
	return func(o *simOptions) { o.sleeper = fn }
}

// WithRenderers attaches renderers from the start
func WithRenderers(r ...Renderer) Option {
	return func(o *simOptions) { o.renderers = append(o.renderers, r...) }
}

// WithSeed makes the random layouts reproducible
func WithSeed(seed int64) Option {
	return func(o *simOptions) { o.seed, o.seeded = seed, true }
}

// WithLogger sets the logger used for failed actions and world loads
func WithLogger(l *zap.Logger) Option {
	return func(o *simOptions) { o.logger = l }
}

// NewSimulation creates a bordered empty world with the robot at
// (1, Height-2) facing East
func NewSimulation(opts ...Option) (*Simulation, error) {
	o := simOptions{
		width:  world.DefaultWidth,
		height: world.DefaultHeight,
		delay:  DefaultStepDelayMs * time.Millisecond,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if !o.seeded {
		o.seed = time.Now().UnixNano()
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	grid := world.NewBordered(o.width, o.height)
	renderers := newRendererSet()
	for _, r := range o.renderers {
		renderers.attach(r)
	}

	agent, err := NewAgent(grid, 1, grid.Height()-2, East, o.delay, WithRenderer(renderers), WithSleeper(o.sleeper))
	if err != nil {
		return nil, fmt.Errorf("create robot: %w", err)
	}

	return &Simulation{
		grid:      grid,
		agent:     agent,
		renderers: renderers,
		rng:       rand.New(rand.NewSource(o.seed)),
		logger:    o.logger,
		history:   []HistoryEntry{},
	}, nil
}

// Grid returns the simulation's grid
func (s *Simulation) Grid() *world.Grid { return s.grid }

// Agent returns the simulation's robot
func (s *Simulation) Agent() *Agent { return s.agent }

// Scene returns the read-only view renderers draw from
func (s *Simulation) Scene() Scene { return s.agent }

// Bounds returns the grid size
func (s *Simulation) Bounds() (width, height int) { return s.agent.Bounds() }

// AttachRenderer adds r to the notified renderers and returns a function that
// removes it again
func (s *Simulation) AttachRenderer(r Renderer) (detach func()) {
	detach = s.renderers.attach(r)
	r.RedrawAll(s.agent)
	return detach
}

// Seed restarts the layout random source
func (s *Simulation) Seed(seed int64) {
	s.rng = rand.New(rand.NewSource(seed))
}

// Message returns the message of the last action
func (s *Simulation) Message() string { return s.message }

// WorldName returns the name of the last loaded world or generated layout
func (s *Simulation) WorldName() string { return s.worldName }

func (s *Simulation) record(action string, from Position, err error) error {
	entry := HistoryEntry{
		Action:    action,
		From:      from,
		To:        s.agent.pos,
		Direction: s.agent.dir,
		Success:   err == nil,
		Timestamp: time.Now().Unix(),
		Number:    s.totalActions + 1,
	}
	if err != nil {
		entry.Error = KindOf(err).String()
		s.message = KindOf(err).Message()
		s.logger.Debug("illegal action",
			zap.String("action", action),
			zap.Int("x", from.X),
			zap.Int("y", from.Y),
			zap.Stringer("kind", KindOf(err)))
	} else {
		s.message = ""
	}

	s.history = append(s.history, entry)
	if len(s.history) > MaxHistory {
		s.history = s.history[len(s.history)-MaxHistory:]
	}
	s.totalActions++
	s.currentActions++
	return err
}

// Step moves the robot one cell forward
func (s *Simulation) Step() error {
	from := s.agent.pos
	return s.record("step", from, s.agent.Step())
}

// TurnLeft turns the robot a quarter turn counter-clockwise
func (s *Simulation) TurnLeft() {
	from := s.agent.pos
	s.agent.TurnLeft()
	_ = s.record("turn_left", from, nil)
}

// TurnRight turns the robot a quarter turn clockwise
func (s *Simulation) TurnRight() {
	from := s.agent.pos
	s.agent.TurnRight()
	_ = s.record("turn_right", from, nil)
}

// PickUpBall removes the ball under the robot
func (s *Simulation) PickUpBall() error {
	from := s.agent.pos
	return s.record("get_ball", from, s.agent.PickUpBall())
}

// PutBall drops a ball under the robot
func (s *Simulation) PutBall() error {
	from := s.agent.pos
	return s.record("put_ball", from, s.agent.PutBall())
}

func (s *Simulation) IsOnBall() bool      { return s.agent.IsOnBall() }
func (s *Simulation) IsWallAhead() bool   { return s.agent.IsWallAhead() }
func (s *Simulation) IsFacingNorth() bool { return s.agent.IsFacingNorth() }

// SetStepDelay sets the pacing delay in milliseconds; negatives become 0
func (s *Simulation) SetStepDelay(ms int) { s.agent.SetStepDelay(ms) }

// Actions lists the names accepted by Do
var Actions = []string{"step", "turn_left", "turn_right", "put_ball", "get_ball"}

// Do runs a single named action
func (s *Simulation) Do(action string) error {
	switch action {
	case "step":
		return s.Step()
	case "turn_left", "left":
		s.TurnLeft()
		return nil
	case "turn_right", "right":
		s.TurnRight()
		return nil
	case "put_ball", "put":
		return s.PutBall()
	case "get_ball", "pick_up_ball", "pick":
		return s.PickUpBall()
	}
	return fmt.Errorf("%q: %w", action, ErrUnknownAction)
}

// Reset puts the robot back at the start and clears the world to the
// bordered empty layout. The cumulative history survives; only the current
// action count restarts.
func (s *Simulation) Reset() {
	s.agent.Reset()
	s.worldName = ""
	s.message = ""
	s.currentActions = 0
}

// Clear empties every cell including the border. The robot does not move.
func (s *Simulation) Clear() {
	s.grid.Clear()
	s.renderers.RedrawAll(s.agent)
}

// GenerateBallString puts balls along the interior border ring
func (s *Simulation) GenerateBallString() {
	layout.BallString(s.grid)
	s.worldName = LayoutBallString
	s.renderers.RedrawAll(s.agent)
}

// GenerateBallChaos draws a random ball histogram and returns its bins
func (s *Simulation) GenerateBallChaos() layout.Bins {
	bins := layout.BallChaos(s.grid, s.rng)
	s.worldName = LayoutBallChaos
	s.renderers.RedrawAll(s.agent)
	return bins
}

// GenerateBallPath lays the ball trail and moves the robot to its start
func (s *Simulation) GenerateBallPath() {
	layout.BallPath(s.grid)
	s.placeAtEntry()
	s.worldName = LayoutBallPath
	s.renderers.RedrawAll(s.agent)
}

// GenerateCave builds a random cave and moves the robot to its entry
func (s *Simulation) GenerateCave(opts layout.CaveOptions) []layout.Segment {
	segments := layout.Cave(s.grid, s.rng, opts)
	s.placeAtEntry()
	s.worldName = LayoutCave
	s.renderers.RedrawAll(s.agent)
	return segments
}

// GenerateChurch resets the world and draws a random church
func (s *Simulation) GenerateChurch() (layout.ChurchPlan, error) {
	s.Reset()

	plan, err := layout.Church(s.grid, s.rng)
	if err != nil {
		s.grid.Reset()
		s.renderers.RedrawAll(s.agent)
		return plan, err
	}
	s.worldName = LayoutChurch
	s.renderers.RedrawAll(s.agent)
	return plan, nil
}

// placeAtEntry puts the robot on (1, Height-2) keeping its heading
func (s *Simulation) placeAtEntry() {
	_ = s.agent.Place(1, s.grid.Height()-2, s.agent.dir)
}

// CreateBall puts a ball at (x, y); out-of-range cells are ignored
func (s *Simulation) CreateBall(x, y int) {
	s.grid.CreateBall(x, y)
	if s.grid.InBounds(x, y) {
		s.renderers.RedrawRegion(s.agent, Region{FromX: x, FromY: y, ToX: x, ToY: y})
	}
}

// PlaceRectangleWalls draws a hollow wall rectangle
func (s *Simulation) PlaceRectangleWalls(left, bottom, width, height int) error {
	if err := s.grid.PlaceRectangleWalls(left, bottom, width, height); err != nil {
		return err
	}
	s.renderers.RedrawRegion(s.agent, Region{FromX: left, FromY: bottom, ToX: left + width, ToY: bottom + height})
	return nil
}

// PlaceWallSegment draws count+1 wall cells from (left, bottom)
func (s *Simulation) PlaceWallSegment(left, bottom, count int, horizontal bool) error {
	if err := s.grid.PlaceWallSegment(left, bottom, count, horizontal); err != nil {
		return err
	}
	r := Region{FromX: left, FromY: bottom, ToX: left, ToY: bottom + count}
	if horizontal {
		r = Region{FromX: left, FromY: bottom, ToX: left + count, ToY: bottom}
	}
	s.renderers.RedrawRegion(s.agent, r)
	return nil
}

// History returns a copy of the cumulative action history
func (s *Simulation) History() []HistoryEntry {
	out := make([]HistoryEntry, len(s.history))
	copy(out, s.history)
	return out
}

// LastAction returns the most recent history entry, or nil
func (s *Simulation) LastAction() *HistoryEntry {
	if len(s.history) == 0 {
		return nil
	}
	last := s.history[len(s.history)-1]
	return &last
}

// State returns a snapshot of the world, the robot and the history
func (s *Simulation) State() *State {
	st := s.Snapshot()
	st.History = s.History()
	return st
}

// Snapshot is State without the action history
func (s *Simulation) Snapshot() *State {
	return &State{
		Width:          s.grid.Width(),
		Height:         s.grid.Height(),
		Rows:           s.grid.Rows(),
		Agent:          s.agent.pos,
		Direction:      s.agent.dir,
		Heading:        s.agent.dir.String(),
		StepDelayMs:    s.agent.delay.Milliseconds(),
		Balls:          s.grid.Count(world.Ball),
		Message:        s.message,
		WorldName:      s.worldName,
		History:        []HistoryEntry{},
		TotalActions:   s.totalActions,
		CurrentActions: s.currentActions,
		LocalView:      LocalView(s.grid, s.agent.pos, s.agent.dir),
	}
}

// Restore replaces the world and robot with a previously taken snapshot.
// On error nothing changes.
func (s *Simulation) Restore(st *State) error {
	if st == nil {
		return fmt.Errorf("state cannot be nil")
	}
	if st.Width != s.grid.Width() || st.Height != s.grid.Height() {
		return fmt.Errorf("%dx%d into %dx%d: %w", st.Width, st.Height, s.grid.Width(), s.grid.Height(), ErrStateSizeMismatch)
	}
	g, err := world.FromRows(st.Rows)
	if err != nil {
		return fmt.Errorf("%v: %w", err, ErrInvalidStateLayout)
	}
	if g.Width() != s.grid.Width() || g.Height() != s.grid.Height() {
		return fmt.Errorf("rows are %dx%d: %w", g.Width(), g.Height(), ErrStateSizeMismatch)
	}
	if !st.Direction.Valid() {
		return fmt.Errorf("robot direction %d: %w", st.Direction, ErrInvalidStateLayout)
	}
	if !g.IsInterior(st.Agent.X, st.Agent.Y) || g.At(st.Agent.X, st.Agent.Y) == world.Wall {
		return fmt.Errorf("robot cell (%d,%d) is not free: %w", st.Agent.X, st.Agent.Y, ErrInvalidStateLayout)
	}

	_ = s.grid.CopyFrom(g)
	_ = s.agent.Place(st.Agent.X, st.Agent.Y, st.Direction)
	s.agent.SetStepDelay(int(st.StepDelayMs))
	s.message = st.Message
	s.worldName = st.WorldName
	s.history = append([]HistoryEntry{}, st.History...)
	s.totalActions = st.TotalActions
	s.currentActions = st.CurrentActions
	s.renderers.RedrawAll(s.agent)
	return nil
}
