package routines

import (
	"fmt"

	"github.com/wricardo/charles/game/engine"
)

// CaveColumns returns the number of cave columns on a grid of the robot's
// size. Cave bands span x in [2, Width-3].
func CaveColumns(r engine.Robot) int {
	w, _ := r.Bounds()
	return w - 4
}

// FillCave fills the space between the border and both cave bands with
// balls. The robot starts at the cave entry (1, Height-2). The upper band is
// filled first, column by column from the west, then the robot walks back
// along the top row, down the west column and fills the lower band the same
// way. columns <= 0 selects CaveColumns.
func FillCave(r engine.Robot, columns int) error {
	if columns <= 0 {
		columns = CaveColumns(r)
	}

	// upper band: enter the first column facing South
	FaceEast(r)
	if err := r.Step(); err != nil {
		return fmt.Errorf("enter cave: %w", err)
	}
	r.TurnRight()
	if err := fillColumns(r, columns, "upper"); err != nil {
		return err
	}

	// back to the west wall, then down to the bottom row
	FaceWest(r)
	if _, err := WalkToWall(r); err != nil {
		return fmt.Errorf("return west: %w", err)
	}
	r.TurnLeft()
	if _, err := WalkToWall(r); err != nil {
		return fmt.Errorf("descend: %w", err)
	}

	// lower band: enter the first column facing North
	r.TurnLeft()
	if err := r.Step(); err != nil {
		return fmt.Errorf("enter lower cave: %w", err)
	}
	r.TurnLeft()
	return fillColumns(r, columns, "lower")
}

// fillColumns fills columns side by side moving East. The robot starts at
// the open end of the first column facing into it and finishes back at the
// open end of the last column.
func fillColumns(r engine.Robot, columns int, band string) error {
	for col := 0; col < columns; col++ {
		if err := fillColumn(r); err != nil {
			return fmt.Errorf("%s band column %d: %w", band, col+1, err)
		}
		if col == columns-1 {
			break
		}

		// the robot faces back out of the column; side-step East
		if r.IsFacingNorth() {
			r.TurnRight()
			if err := r.Step(); err != nil {
				return fmt.Errorf("%s band column %d: %w", band, col+2, err)
			}
			r.TurnRight()
		} else {
			r.TurnLeft()
			if err := r.Step(); err != nil {
				return fmt.Errorf("%s band column %d: %w", band, col+2, err)
			}
			r.TurnLeft()
		}
	}
	return nil
}

// fillColumn puts balls from the robot's cell up to the wall ahead and walks
// back, ending on the starting cell facing the opposite way
func fillColumn(r engine.Robot) error {
	if err := r.PutBall(); err != nil {
		return err
	}
	for !r.IsWallAhead() {
		if err := r.Step(); err != nil {
			return err
		}
		if err := r.PutBall(); err != nil {
			return err
		}
	}
	TurnAround(r)
	_, err := WalkToWall(r)
	return err
}
