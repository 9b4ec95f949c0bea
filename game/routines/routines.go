package routines

import (
	"errors"
	"fmt"

	"github.com/wricardo/charles/game/engine"
)

// ErrBudgetExceeded is returned when a routine runs out of moves before
// reaching its end condition
var ErrBudgetExceeded = errors.New("move budget exceeded")

// DefaultBudget returns the move budget used when a routine is given none:
// twice the number of cells, enough for any trail on the grid
func DefaultBudget(r engine.Robot) int {
	w, h := r.Bounds()
	return 2 * w * h
}

// budget counts moves and fails once the limit is spent
type budget struct {
	left int
}

func newBudget(r engine.Robot, limit int) *budget {
	if limit <= 0 {
		limit = DefaultBudget(r)
	}
	return &budget{left: limit}
}

func (b *budget) spend() error {
	if b.left <= 0 {
		return ErrBudgetExceeded
	}
	b.left--
	return nil
}

// Steps takes n steps forward
func Steps(r engine.Robot, n int) error {
	for i := 0; i < n; i++ {
		if err := r.Step(); err != nil {
			return fmt.Errorf("step %d of %d: %w", i+1, n, err)
		}
	}
	return nil
}

// DrawLineWithBalls puts a ball and steps forward, n times
func DrawLineWithBalls(r engine.Robot, n int) error {
	for i := 0; i < n; i++ {
		if err := r.PutBall(); err != nil {
			return fmt.Errorf("ball %d of %d: %w", i+1, n, err)
		}
		if err := r.Step(); err != nil {
			return fmt.Errorf("ball %d of %d: %w", i+1, n, err)
		}
	}
	return nil
}

// TurnAround makes a half turn
func TurnAround(r engine.Robot) {
	r.TurnLeft()
	r.TurnLeft()
}

// WalkToWall steps until the cell ahead is a wall and returns the number of
// steps taken
func WalkToWall(r engine.Robot) (int, error) {
	steps := 0
	for !r.IsWallAhead() {
		if err := r.Step(); err != nil {
			return steps, err
		}
		steps++
	}
	return steps, nil
}

// FaceNorth turns left until the robot faces North
func FaceNorth(r engine.Robot) {
	for i := 0; i < 4 && !r.IsFacingNorth(); i++ {
		r.TurnLeft()
	}
}

// FaceEast turns the robot to face East
func FaceEast(r engine.Robot) {
	FaceNorth(r)
	r.TurnRight()
}

// FaceWest turns the robot to face West
func FaceWest(r engine.Robot) {
	FaceNorth(r)
	r.TurnLeft()
}
