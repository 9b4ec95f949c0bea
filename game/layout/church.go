package layout

import (
	"fmt"

	"github.com/wricardo/charles/game/world"
)

// ChurchPlan describes the generated church so callers can check or replay it
type ChurchPlan struct {
	Lane   int `json:"lane"`
	Street int `json:"street"`
	Width  int `json:"width"`
	Height int `json:"height"`

	// Landmark is the ball on the top interior row marking the church's street
	LandmarkX int `json:"landmark_x"`
	LandmarkY int `json:"landmark_y"`
}

// Church draws a church outline with a tower and a cross on top, plus a
// landmark ball above it on row Height-2. The grid is not reset.
func Church(g *world.Grid, rng Rand) (ChurchPlan, error) {
	w, h := g.Width(), g.Height()
	c := ChurchPlan{
		Lane:   2 + rng.Intn(max(h/5, 1)),
		Street: 2 + rng.Intn(max(w/5, 1)),
		Width:  3 + rng.Intn(max(w/2, 1)),
		Height: 2 + rng.Intn(max(h/3, 1)),
	}

	top := c.Lane + c.Height
	if err := g.PlaceRectangleWalls(c.Street, c.Lane, c.Width, c.Height); err != nil {
		return c, fmt.Errorf("church nave: %w", err)
	}
	if err := g.PlaceRectangleWalls(c.Street+2, top, 2+c.Width/3, 2+c.Height/3); err != nil {
		return c, fmt.Errorf("church tower: %w", err)
	}
	if err := g.PlaceWallSegment(c.Street+3+c.Width/6, top+c.Height/3+3, 4, false); err != nil {
		return c, fmt.Errorf("church cross: %w", err)
	}
	if err := g.PlaceWallSegment(c.Street+2+c.Width/6, top+c.Height/3+5, 2, true); err != nil {
		return c, fmt.Errorf("church cross: %w", err)
	}

	c.LandmarkX, c.LandmarkY = c.Street, h-2
	g.CreateBall(c.LandmarkX, c.LandmarkY)
	return c, nil
}
