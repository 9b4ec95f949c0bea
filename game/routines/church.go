package routines

import (
	"fmt"

	"github.com/wricardo/charles/game/engine"
)

// CircleChurch walks East from the entry to the landmark ball, heads South
// to the church and marks the spot with a ball. It then walks around the
// church keeping the wall on its left until it is back on the mark, and
// finally leaves for the North-West corner.
// limit bounds the number of moves around the church; 0 selects DefaultBudget.
func CircleChurch(r engine.Robot, limit int) error {
	b := newBudget(r, limit)

	FaceEast(r)
	for !r.IsOnBall() {
		if err := b.spend(); err != nil {
			return fmt.Errorf("find landmark: %w", err)
		}
		if err := r.Step(); err != nil {
			return fmt.Errorf("find landmark: %w", err)
		}
	}

	r.TurnRight()
	if _, err := WalkToWall(r); err != nil {
		return fmt.Errorf("approach church: %w", err)
	}
	if err := r.PutBall(); err != nil {
		return fmt.Errorf("mark start: %w", err)
	}

	// side-step off the mark so the walk does not end at once
	r.TurnRight()
	if err := r.Step(); err != nil {
		return fmt.Errorf("leave mark: %w", err)
	}
	r.TurnLeft()

	for !r.IsOnBall() {
		if err := b.spend(); err != nil {
			return fmt.Errorf("circle church: %w", err)
		}
		if r.IsWallAhead() {
			r.TurnRight()
			continue
		}
		if err := r.Step(); err != nil {
			return fmt.Errorf("circle church: %w", err)
		}
		r.TurnLeft()
	}

	FaceWest(r)
	if _, err := WalkToWall(r); err != nil {
		return fmt.Errorf("leave west: %w", err)
	}
	r.TurnRight()
	if _, err := WalkToWall(r); err != nil {
		return fmt.Errorf("leave north: %w", err)
	}
	return nil
}
