package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/wricardo/charles/game/world"
)

// recorder captures renderer notifications
type recorder struct {
	regions []Region
	full    int
}

func (r *recorder) RedrawRegion(_ Scene, reg Region) { r.regions = append(r.regions, reg) }
func (r *recorder) RedrawAll(Scene)                  { r.full++ }

type sleeps struct{ total []time.Duration }

func (s *sleeps) sleep(d time.Duration) { s.total = append(s.total, d) }

func newTestAgent(t *testing.T, x, y int, dir Direction) (*Agent, *recorder, *sleeps) {
	t.Helper()
	g := world.NewBordered(10, 8)
	rec := &recorder{}
	sl := &sleeps{}
	a, err := NewAgent(g, x, y, dir, 60*time.Millisecond, WithRenderer(rec), WithSleeper(sl.sleep))
	if err != nil {
		t.Fatalf("NewAgent failed: %v", err)
	}
	return a, rec, sl
}

func TestNewAgentInvalidStart(t *testing.T) {
	g := world.NewBordered(world.DefaultWidth, world.DefaultHeight)
	if err := g.PlaceWallSegment(5, 5, 0, true); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		x, y int
	}{
		{"corner", 0, 0},
		{"border row", 5, world.DefaultHeight - 1},
		{"border column", world.DefaultWidth - 1, 4},
		{"outside", -2, 4},
		{"wall cell", 5, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := NewAgent(g, tt.x, tt.y, East, 0)
			if !errors.Is(err, ErrInvalidStart) {
				t.Errorf("expected ErrInvalidStart, got %v", err)
			}
			if a != nil {
				t.Error("no agent may exist after a failed start")
			}
		})
	}

	if _, err := NewAgent(g, 1, world.DefaultHeight-2, East, 0); err != nil {
		t.Errorf("default start rejected: %v", err)
	}
}

func TestStepIntoWallIsNoOp(t *testing.T) {
	a, rec, sl := newTestAgent(t, 1, 6, North)

	err := a.Step()
	if !errors.Is(err, ErrStepIntoWall) {
		t.Fatalf("expected ErrStepIntoWall, got %v", err)
	}
	if a.AgentPosition() != (Position{X: 1, Y: 6}) || a.AgentDirection() != North {
		t.Errorf("failed step changed state: %v %s", a.AgentPosition(), a.AgentDirection())
	}
	if len(rec.regions) != 0 || len(sl.total) != 0 {
		t.Error("failed step must not redraw or pause")
	}
}

func TestStepMovesAndRedraws(t *testing.T) {
	a, rec, sl := newTestAgent(t, 1, 6, East)

	if err := a.Step(); err != nil {
		t.Fatalf("step failed: %v", err)
	}
	if a.AgentPosition() != (Position{X: 2, Y: 6}) {
		t.Errorf("position = %v", a.AgentPosition())
	}
	if len(rec.regions) != 1 {
		t.Fatalf("expected one redraw, got %d", len(rec.regions))
	}
	want := Region{FromX: 0, FromY: 5, ToX: 3, ToY: 7}
	if rec.regions[0] != want {
		t.Errorf("redraw region = %+v, want %+v", rec.regions[0], want)
	}
	if len(sl.total) != 1 || sl.total[0] != 60*time.Millisecond {
		t.Errorf("expected one 60ms pause, got %v", sl.total)
	}
}

func TestStepSouthDecreasesY(t *testing.T) {
	a, _, _ := newTestAgent(t, 3, 3, South)
	if err := a.Step(); err != nil {
		t.Fatal(err)
	}
	if a.AgentPosition().Y != 2 {
		t.Errorf("y = %d, want 2", a.AgentPosition().Y)
	}
	if err := a.Step(); err != nil {
		t.Fatal(err)
	}
	if !a.IsWallAhead() {
		t.Error("row 0 is border wall")
	}
}

func TestTurnsAlwaysSucceed(t *testing.T) {
	a, rec, sl := newTestAgent(t, 4, 4, East)
	a.TurnLeft()
	if a.AgentDirection() != North || !a.IsFacingNorth() {
		t.Errorf("left of east = %s", a.AgentDirection())
	}
	a.TurnRight()
	a.TurnRight()
	if a.AgentDirection() != South {
		t.Errorf("direction = %s, want south", a.AgentDirection())
	}
	if len(rec.regions) != 3 || len(sl.total) != 3 {
		t.Errorf("expected 3 redraws and pauses, got %d and %d", len(rec.regions), len(sl.total))
	}
}

func TestPickUpBall(t *testing.T) {
	a, _, _ := newTestAgent(t, 4, 4, East)

	if err := a.PickUpBall(); !errors.Is(err, ErrPickUpEmptyCell) {
		t.Fatalf("expected ErrPickUpEmptyCell, got %v", err)
	}
	if a.At(4, 4) != world.Empty {
		t.Error("failed pick up changed the cell")
	}

	a.Grid().PlaceBall(4, 4)
	if !a.IsOnBall() {
		t.Fatal("expected to stand on a ball")
	}
	if err := a.PickUpBall(); err != nil {
		t.Fatalf("pick up failed: %v", err)
	}
	if a.At(4, 4) != world.Empty || a.IsOnBall() {
		t.Error("ball should be gone")
	}
}

func TestPutBall(t *testing.T) {
	a, _, _ := newTestAgent(t, 4, 4, East)

	if err := a.PutBall(); err != nil {
		t.Fatalf("put failed: %v", err)
	}
	if a.At(4, 4) != world.Ball {
		t.Error("expected a ball")
	}
	if err := a.PutBall(); !errors.Is(err, ErrPutOnOccupiedCell) {
		t.Errorf("second put: expected ErrPutOnOccupiedCell, got %v", err)
	}
	if a.Grid().Count(world.Ball) != 1 {
		t.Error("failed put changed the grid")
	}
}

func TestSetStepDelay(t *testing.T) {
	a, _, sl := newTestAgent(t, 4, 4, East)

	a.SetStepDelay(-5)
	if a.StepDelay() != 0 {
		t.Errorf("negative delay should become 0, got %v", a.StepDelay())
	}
	a.TurnLeft()
	if len(sl.total) != 0 {
		t.Error("zero delay must not pause")
	}

	a.SetStepDelay(250)
	if a.StepDelay() != 250*time.Millisecond {
		t.Errorf("delay = %v", a.StepDelay())
	}
}

func TestAgentReset(t *testing.T) {
	a, rec, _ := newTestAgent(t, 2, 5, West)
	a.TurnLeft()
	_ = a.Step()
	a.Grid().PlaceBall(6, 6)
	_ = a.Grid().PlaceWallSegment(3, 2, 2, true)

	a.Reset()
	if a.AgentPosition() != (Position{X: 2, Y: 5}) || a.AgentDirection() != West {
		t.Errorf("reset state = %v %s", a.AgentPosition(), a.AgentDirection())
	}
	if a.Grid().Count(world.Ball) != 0 || !a.Grid().HasBorder() {
		t.Error("reset must leave a bordered empty grid")
	}
	if a.Grid().Count(world.Wall) != 2*10+2*6 {
		t.Errorf("only the border should be wall, got %d wall cells", a.Grid().Count(world.Wall))
	}
	if rec.full != 1 {
		t.Errorf("expected one full redraw, got %d", rec.full)
	}
}
