package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/wricardo/charles/game/layout"
	"github.com/wricardo/charles/game/world"
	"github.com/wricardo/charles/game/worldfile"
)

// Layout names accepted by Generate
const (
	LayoutEmpty      = "empty"
	LayoutBallString = "ball_string"
	LayoutBallChaos  = "ball_chaos"
	LayoutBallPath   = "ball_path"
	LayoutCave       = "cave"
	LayoutChurch     = "church"
)

// Layouts lists every generator name in menu order
var Layouts = []string{LayoutEmpty, LayoutBallString, LayoutBallChaos, LayoutBallPath, LayoutCave, LayoutChurch}

// LayoutResult carries what a generator produced. Only the field matching
// the layout is set.
type LayoutResult struct {
	Layout   string             `json:"layout"`
	Bins     *layout.Bins       `json:"bins,omitempty"`
	Segments []layout.Segment   `json:"segments,omitempty"`
	Church   *layout.ChurchPlan `json:"church,omitempty"`
}

// Generate runs the named layout generator
func (s *Simulation) Generate(name string) (*LayoutResult, error) {
	res := &LayoutResult{Layout: name}
	switch name {
	case LayoutEmpty:
		s.Reset()
	case LayoutBallString:
		s.GenerateBallString()
	case LayoutBallChaos:
		bins := s.GenerateBallChaos()
		res.Bins = &bins
	case LayoutBallPath:
		s.GenerateBallPath()
	case LayoutCave:
		res.Segments = s.GenerateCave(layout.CaveOptions{})
	case LayoutChurch:
		plan, err := s.GenerateChurch()
		if err != nil {
			return nil, err
		}
		res.Church = &plan
	default:
		return nil, fmt.Errorf("%q: %w", name, ErrUnknownLayout)
	}
	return res, nil
}

// LoadWorld replaces the world with d and places the robot as the header
// says. Invalid descriptions fail with ErrWorldLoadFailed and change nothing.
func (s *Simulation) LoadWorld(name string, d *worldfile.Description) error {
	if err := worldfile.Apply(d, s.grid); err != nil {
		s.message = WorldLoadFailed.Message()
		s.logger.Warn("world rejected", zap.String("world", name), zap.Error(err))
		return worldLoadFailed(err)
	}
	if err := s.agent.Place(d.AgentX, d.AgentY, Direction(d.Direction)); err != nil {
		return worldLoadFailed(err)
	}

	s.worldName = name
	s.message = ""
	s.renderers.RedrawAll(s.agent)
	s.logger.Debug("world loaded", zap.String("world", name),
		zap.Int("horizontal_walls", len(d.Horizontal)),
		zap.Int("vertical_walls", len(d.Vertical)))
	return nil
}

// LoadFromFile reads a world file from disk and loads it
func (s *Simulation) LoadFromFile(path string) error {
	d, err := ReadWorldFile(path)
	if err != nil {
		s.message = WorldLoadFailed.Message()
		s.logger.Warn("world file unreadable", zap.String("path", path), zap.Error(err))
		return err
	}
	return s.LoadWorld(WorldNameFromPath(path), d)
}

// ReadWorldFile opens and decodes a world file. Failures are reported as
// ErrWorldLoadFailed wrapping the cause.
func ReadWorldFile(path string) (*worldfile.Description, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, worldLoadFailed(err)
	}
	defer f.Close()

	d, err := worldfile.Decode(f)
	if err != nil {
		return nil, worldLoadFailed(fmt.Errorf("%s: %w", path, err))
	}
	return d, nil
}

// WorldNameFromPath strips the directory and the .world extension
func WorldNameFromPath(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

// Describe captures the current walls, robot and reference ball as a world
// description. The ball is the first ball found scanning from the top row,
// or the robot's cell when there is none.
func (s *Simulation) Describe() *worldfile.Description {
	ballX, ballY := s.agent.pos.X, s.agent.pos.Y
	found := false
	for y := s.grid.Height() - 1; y >= 0 && !found; y-- {
		for x := 0; x < s.grid.Width(); x++ {
			if s.grid.At(x, y) == world.Ball {
				ballX, ballY, found = x, y, true
				break
			}
		}
	}
	return worldfile.Describe(s.grid, s.agent.pos.X, s.agent.pos.Y, int(s.agent.dir), ballX, ballY)
}
