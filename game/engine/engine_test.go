package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wricardo/charles/game/layout"
	"github.com/wricardo/charles/game/world"
)

func newTestSimulation(t *testing.T, opts ...Option) *Simulation {
	t.Helper()
	opts = append([]Option{WithSeed(1), WithPacing(func(time.Duration) {})}, opts...)
	sim, err := NewSimulation(opts...)
	require.NoError(t, err)
	return sim
}

func TestNewSimulation(t *testing.T) {
	sim := newTestSimulation(t)

	st := sim.State()
	assert.Equal(t, world.DefaultWidth, st.Width)
	assert.Equal(t, world.DefaultHeight, st.Height)
	assert.Equal(t, Position{X: 1, Y: world.DefaultHeight - 2}, st.Agent)
	assert.Equal(t, East, st.Direction)
	assert.Equal(t, int64(DefaultStepDelayMs), st.StepDelayMs)
	assert.True(t, sim.Grid().HasBorder())
	assert.Equal(t, 0, st.Balls)
	assert.Empty(t, st.History)
}

func TestBallStringScenario(t *testing.T) {
	sim := newTestSimulation(t)
	sim.Reset()
	sim.GenerateBallString()

	g := sim.Grid()
	w, h := g.Width(), g.Height()
	for _, c := range [][2]int{{1, 1}, {w - 2, 1}, {1, h - 2}, {w - 2, h - 2}} {
		assert.Equal(t, world.Ball, g.At(c[0], c[1]))
	}
	for _, c := range [][2]int{{0, 0}, {w - 1, 0}, {0, h - 1}, {w - 1, h - 1}} {
		assert.Equal(t, world.Wall, g.At(c[0], c[1]))
	}
	assert.True(t, sim.IsOnBall())
	assert.Equal(t, LayoutBallString, sim.WorldName())
}

func TestSimulationRecordsHistory(t *testing.T) {
	sim := newTestSimulation(t)

	require.NoError(t, sim.Step())
	sim.TurnLeft()
	err := sim.Step()
	assert.ErrorIs(t, err, ErrStepIntoWall)
	assert.Equal(t, StepIntoWall.Message(), sim.Message())

	history := sim.History()
	require.Len(t, history, 3)
	assert.Equal(t, "step", history[0].Action)
	assert.Equal(t, Position{X: 1, Y: 28}, history[0].From)
	assert.Equal(t, Position{X: 2, Y: 28}, history[0].To)
	assert.True(t, history[0].Success)
	assert.Equal(t, "turn_left", history[1].Action)
	assert.Equal(t, North, history[1].Direction)
	assert.False(t, history[2].Success)
	assert.Equal(t, "step_into_wall", history[2].Error)
	assert.Equal(t, 3, history[2].Number)

	last := sim.LastAction()
	require.NotNil(t, last)
	assert.Equal(t, history[2], *last)
}

func TestResetKeepsCumulativeHistory(t *testing.T) {
	sim := newTestSimulation(t)
	require.NoError(t, sim.Step())
	require.NoError(t, sim.PutBall())

	sim.Reset()
	st := sim.State()
	assert.Equal(t, 2, st.TotalActions)
	assert.Equal(t, 0, st.CurrentActions)
	assert.Len(t, st.History, 2)
	assert.Equal(t, Position{X: 1, Y: 28}, st.Agent)
	assert.Equal(t, 0, st.Balls)

	require.NoError(t, sim.Step())
	st = sim.State()
	assert.Equal(t, 3, st.TotalActions)
	assert.Equal(t, 1, st.CurrentActions)
}

func TestDo(t *testing.T) {
	sim := newTestSimulation(t)

	for _, action := range []string{"put_ball", "get_ball", "turn_right", "step", "turn_left"} {
		require.NoError(t, sim.Do(action), action)
	}
	assert.Equal(t, Position{X: 1, Y: 27}, sim.Agent().AgentPosition())
	assert.Equal(t, East, sim.Agent().AgentDirection())

	err := sim.Do("jump")
	assert.ErrorIs(t, err, ErrUnknownAction)
	assert.Equal(t, 5, sim.State().TotalActions, "unknown actions are not recorded")

	assert.ErrorIs(t, sim.Do("get_ball"), ErrPickUpEmptyCell)
}

func TestClearRemovesBorder(t *testing.T) {
	sim := newTestSimulation(t)
	sim.Clear()
	assert.Equal(t, 0, sim.Grid().Count(world.Wall))
	assert.Equal(t, Position{X: 1, Y: 28}, sim.Agent().AgentPosition())
}

func TestGenerateBallPathMovesAgent(t *testing.T) {
	sim := newTestSimulation(t)
	require.NoError(t, sim.Step())
	sim.TurnRight()

	sim.GenerateBallPath()
	assert.Equal(t, Position{X: 1, Y: 28}, sim.Agent().AgentPosition())
	assert.Equal(t, South, sim.Agent().AgentDirection(), "heading is kept")
	assert.True(t, sim.IsOnBall())
}

func TestGenerateCaveMovesAgent(t *testing.T) {
	sim := newTestSimulation(t)
	segments := sim.GenerateCave(layout.CaveOptions{})
	assert.NotEmpty(t, segments)
	assert.Equal(t, Position{X: 1, Y: 28}, sim.Agent().AgentPosition())
	assert.False(t, sim.IsWallAhead())
}

func TestGenerateChurchIsSeeded(t *testing.T) {
	a := newTestSimulation(t, WithSeed(99))
	b := newTestSimulation(t, WithSeed(99))
	b.GenerateBallString()

	planA, err := a.GenerateChurch()
	require.NoError(t, err)
	planB, err := b.GenerateChurch()
	require.NoError(t, err)

	assert.Equal(t, planA, planB)
	assert.Equal(t, a.Grid().Rows(), b.Grid().Rows(), "church resets the world first")
	assert.Equal(t, world.Ball, a.Grid().At(planA.LandmarkX, planA.LandmarkY))
}

func TestGenerateByName(t *testing.T) {
	sim := newTestSimulation(t)
	for _, name := range Layouts {
		res, err := sim.Generate(name)
		require.NoError(t, err, name)
		assert.Equal(t, name, res.Layout)
	}

	res, err := sim.Generate(LayoutBallChaos)
	require.NoError(t, err)
	require.NotNil(t, res.Bins)
	assert.Equal(t, layout.ChaosTrials, res.Bins.Total())

	_, err = sim.Generate("maze")
	assert.ErrorIs(t, err, ErrUnknownLayout)
}

func TestSimulationWallHelpers(t *testing.T) {
	rec := &recorder{}
	sim := newTestSimulation(t, WithRenderers(rec))

	require.NoError(t, sim.PlaceRectangleWalls(5, 5, 4, 3))
	require.NoError(t, sim.PlaceWallSegment(20, 3, 5, false))
	assert.ErrorIs(t, sim.PlaceWallSegment(45, 3, 10, true), world.ErrOutOfBounds)
	sim.CreateBall(30, 10)
	sim.CreateBall(300, 10)

	assert.Equal(t, []Region{
		{FromX: 5, FromY: 5, ToX: 9, ToY: 8},
		{FromX: 20, FromY: 3, ToX: 20, ToY: 8},
		{FromX: 30, FromY: 10, ToX: 30, ToY: 10},
	}, rec.regions)
	assert.Equal(t, world.Ball, sim.Grid().At(30, 10))
}

func TestAttachRenderer(t *testing.T) {
	sim := newTestSimulation(t)
	rec := &recorder{}
	detach := sim.AttachRenderer(rec)
	assert.Equal(t, 1, rec.full, "attach draws the whole scene once")

	require.NoError(t, sim.Step())
	assert.Len(t, rec.regions, 1)

	detach()
	require.NoError(t, sim.Step())
	assert.Len(t, rec.regions, 1)
}

func TestStateRestore(t *testing.T) {
	sim := newTestSimulation(t)
	sim.GenerateBallPath()
	require.NoError(t, sim.Step())
	sim.SetStepDelay(0)
	st := sim.State()

	other := newTestSimulation(t)
	require.NoError(t, other.Restore(st))
	assert.Equal(t, st.Rows, other.Grid().Rows())
	assert.Equal(t, st.Agent, other.Agent().AgentPosition())
	assert.Equal(t, st.TotalActions, other.State().TotalActions)
	assert.Equal(t, time.Duration(0), other.Agent().StepDelay())
}

func TestRestoreRejectsBadState(t *testing.T) {
	sim := newTestSimulation(t)
	before := sim.Grid().Rows()

	small := newTestSimulation(t, WithSize(10, 8)).State()
	assert.ErrorIs(t, sim.Restore(small), ErrStateSizeMismatch)

	st := sim.State()
	st.Agent = Position{X: 0, Y: 0}
	err := sim.Restore(st)
	assert.ErrorIs(t, err, ErrInvalidStateLayout)
	assert.False(t, errors.Is(err, ErrInvalidStart), "a corrupt snapshot is not an illegal robot action")
	assert.Equal(t, Kind(0), KindOf(err))

	st = sim.State()
	st.Direction = Direction(7)
	assert.ErrorIs(t, sim.Restore(st), ErrInvalidStateLayout)

	st = sim.State()
	st.Rows[3] = "bad"
	assert.ErrorIs(t, sim.Restore(st), ErrInvalidStateLayout)

	assert.Error(t, sim.Restore(nil))
	assert.Equal(t, before, sim.Grid().Rows())
}
