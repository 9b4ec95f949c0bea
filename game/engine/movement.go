package engine

import "github.com/wricardo/charles/game/world"

// ahead returns the cell in front of the robot
func (a *Agent) ahead() Position {
	dx, dy := a.dir.Delta()
	return Position{X: a.pos.X + dx, Y: a.pos.Y + dy}
}

// CanMoveTo reports whether the robot may stand on (x, y)
func (a *Agent) CanMoveTo(x, y int) bool {
	return a.grid.IsInterior(x, y) && a.grid.At(x, y) != world.Wall
}

// TurnLeft rotates a quarter turn counter-clockwise
func (a *Agent) TurnLeft() {
	a.dir = a.dir.Left()
	a.renderer.RedrawRegion(a, RegionAround(a.pos))
	a.pace()
}

// TurnRight rotates a quarter turn clockwise
func (a *Agent) TurnRight() {
	a.dir = a.dir.Right()
	a.renderer.RedrawRegion(a, RegionAround(a.pos))
	a.pace()
}

// Step moves one cell forward. Stepping into a wall returns ErrStepIntoWall
// and changes nothing.
func (a *Agent) Step() error {
	target := a.ahead()
	if !a.CanMoveTo(target.X, target.Y) {
		return ErrStepIntoWall
	}

	from := a.pos
	a.pos = target
	a.renderer.RedrawRegion(a, RegionAround(from).Union(RegionAround(target)))
	a.pace()
	return nil
}

// PickUpBall removes the ball under the robot
func (a *Agent) PickUpBall() error {
	if a.grid.At(a.pos.X, a.pos.Y) != world.Ball {
		return ErrPickUpEmptyCell
	}
	_ = a.grid.Set(a.pos.X, a.pos.Y, world.Empty)
	a.renderer.RedrawRegion(a, RegionAround(a.pos))
	a.pace()
	return nil
}

// PutBall drops a ball on the robot's cell
func (a *Agent) PutBall() error {
	if a.grid.At(a.pos.X, a.pos.Y) != world.Empty {
		return ErrPutOnOccupiedCell
	}
	_ = a.grid.Set(a.pos.X, a.pos.Y, world.Ball)
	a.renderer.RedrawRegion(a, RegionAround(a.pos))
	a.pace()
	return nil
}

// IsOnBall reports whether the robot stands on a ball
func (a *Agent) IsOnBall() bool {
	return a.grid.At(a.pos.X, a.pos.Y) == world.Ball
}

// IsWallAhead reports whether the cell in front is a wall
func (a *Agent) IsWallAhead() bool {
	target := a.ahead()
	return !a.CanMoveTo(target.X, target.Y)
}

// IsFacingNorth reports whether the robot faces North
func (a *Agent) IsFacingNorth() bool {
	return a.dir == North
}
