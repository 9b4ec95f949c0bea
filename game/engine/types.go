package engine

import (
	"fmt"
	"strings"
)

// Direction is the robot's heading. The numbering matches the world file
// format.
type Direction int

const (
	North Direction = iota
	West
	South
	East
)

const (
	DefaultStepDelayMs = 60
	// MaxHistory bounds the cumulative action history kept per simulation
	MaxHistory = 10000
)

var directionNames = [4]string{"north", "west", "south", "east"}

// Left returns the heading after a quarter turn counter-clockwise
func (d Direction) Left() Direction { return (d + 1) % 4 }

// Right returns the heading after a quarter turn clockwise
func (d Direction) Right() Direction { return (d + 3) % 4 }

// Valid reports whether d is one of the four headings
func (d Direction) Valid() bool { return d >= North && d <= East }

// Delta returns the unit offset of one step in direction d. y grows North.
func (d Direction) Delta() (dx, dy int) {
	switch d {
	case North:
		return 0, 1
	case West:
		return -1, 0
	case South:
		return 0, -1
	case East:
		return 1, 0
	}
	return 0, 0
}

func (d Direction) String() string {
	if d.Valid() {
		return directionNames[d]
	}
	return fmt.Sprintf("direction(%d)", int(d))
}

// ParseDirection accepts a direction name or its single letter
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "north", "n":
		return North, nil
	case "west", "w":
		return West, nil
	case "south", "s":
		return South, nil
	case "east", "e":
		return East, nil
	}
	return 0, fmt.Errorf("invalid direction %q", s)
}

// Position represents x,y coordinates
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Region is an inclusive rectangle of cells
type Region struct {
	FromX int `json:"from_x"`
	FromY int `json:"from_y"`
	ToX   int `json:"to_x"`
	ToY   int `json:"to_y"`
}

// RegionAround returns the 3x3 block centred on p
func RegionAround(p Position) Region {
	return Region{FromX: p.X - 1, FromY: p.Y - 1, ToX: p.X + 1, ToY: p.Y + 1}
}

// Union returns the smallest region covering r and o
func (r Region) Union(o Region) Region {
	return Region{
		FromX: min(r.FromX, o.FromX),
		FromY: min(r.FromY, o.FromY),
		ToX:   max(r.ToX, o.ToX),
		ToY:   max(r.ToY, o.ToY),
	}
}

// Clip limits r to a width x height grid
func (r Region) Clip(width, height int) Region {
	return Region{
		FromX: max(r.FromX, 0),
		FromY: max(r.FromY, 0),
		ToX:   min(r.ToX, width-1),
		ToY:   min(r.ToY, height-1),
	}
}

// HistoryEntry represents a single robot action in the simulation history
type HistoryEntry struct {
	Action    string    `json:"action"`
	From      Position  `json:"from"`
	To        Position  `json:"to"`
	Direction Direction `json:"direction"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
	Timestamp int64     `json:"timestamp"`
	Number    int       `json:"number"`
}

// State is a serialisable snapshot of a simulation
type State struct {
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	Rows        []string  `json:"rows"`
	Agent       Position  `json:"agent"`
	Direction   Direction `json:"direction"`
	Heading     string    `json:"heading"`
	StepDelayMs int64     `json:"step_delay_ms"`
	Balls       int       `json:"balls"`
	Message     string    `json:"message"`
	WorldName   string    `json:"world_name,omitempty"`

	History      []HistoryEntry `json:"history"`
	TotalActions int            `json:"total_actions"`

	// CurrentActions counts only the actions since the last reset while
	// History stays cumulative
	CurrentActions int `json:"current_actions"`

	LocalView []string `json:"local_view,omitempty"`
}
