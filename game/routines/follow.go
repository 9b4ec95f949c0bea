package routines

import (
	"github.com/wricardo/charles/game/engine"
)

// FollowPath walks along a trail of balls starting on its first ball. At each
// cell it tries straight on, then left, then right, and stops where none of
// the three holds a ball. It returns the number of trail cells walked.
// limit bounds the number of moves; 0 selects DefaultBudget.
func FollowPath(r engine.Robot, limit int) (int, error) {
	b := newBudget(r, limit)
	walked := 0
	if !r.IsOnBall() {
		return 0, nil
	}

	for {
		found, err := tryStep(r, b)
		if err != nil {
			return walked, err
		}
		if !found {
			r.TurnLeft()
			found, err = tryStep(r, b)
			if err != nil {
				return walked, err
			}
		}
		if !found {
			TurnAround(r)
			found, err = tryStep(r, b)
			if err != nil {
				return walked, err
			}
		}
		if !found {
			// face the original heading again
			r.TurnLeft()
			return walked, nil
		}
		walked++
	}
}

// tryStep steps forward onto a ball. When the cell ahead holds no ball the
// robot returns to where it was with its heading unchanged.
func tryStep(r engine.Robot, b *budget) (bool, error) {
	if r.IsWallAhead() {
		return false, nil
	}
	if err := b.spend(); err != nil {
		return false, err
	}
	if err := r.Step(); err != nil {
		return false, err
	}
	if r.IsOnBall() {
		return true, nil
	}

	TurnAround(r)
	if err := r.Step(); err != nil {
		return false, err
	}
	TurnAround(r)
	return false, nil
}
