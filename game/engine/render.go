package engine

import (
	"sync"

	"github.com/wricardo/charles/game/world"
)

// Scene is the read-only view of the world a renderer draws from
type Scene interface {
	Width() int
	Height() int
	At(x, y int) world.Cell
	AgentPosition() Position
	AgentDirection() Direction
}

// Renderer is notified after every successful mutation. RedrawRegion gets an
// inclusive cell rectangle; RedrawAll follows resets and generators.
type Renderer interface {
	RedrawRegion(s Scene, r Region)
	RedrawAll(s Scene)
}

// NopRenderer ignores every notification
type NopRenderer struct{}

func (NopRenderer) RedrawRegion(Scene, Region) {}
func (NopRenderer) RedrawAll(Scene)            {}

// MultiRenderer fans notifications out to several renderers in order
type MultiRenderer []Renderer

func (m MultiRenderer) RedrawRegion(s Scene, r Region) {
	for _, renderer := range m {
		renderer.RedrawRegion(s, r)
	}
}

func (m MultiRenderer) RedrawAll(s Scene) {
	for _, renderer := range m {
		renderer.RedrawAll(s)
	}
}

// rendererSet lets renderers attach and detach while the agent keeps a single
// reference
type rendererSet struct {
	mu        sync.RWMutex
	nextID    int
	renderers map[int]Renderer
	order     []int
}

func newRendererSet() *rendererSet {
	return &rendererSet{renderers: make(map[int]Renderer)}
}

func (rs *rendererSet) attach(r Renderer) func() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	id := rs.nextID
	rs.nextID++
	rs.renderers[id] = r
	rs.order = append(rs.order, id)

	return func() {
		rs.mu.Lock()
		defer rs.mu.Unlock()
		delete(rs.renderers, id)
		for i, v := range rs.order {
			if v == id {
				rs.order = append(rs.order[:i], rs.order[i+1:]...)
				break
			}
		}
	}
}

func (rs *rendererSet) snapshot() MultiRenderer {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	out := make(MultiRenderer, 0, len(rs.order))
	for _, id := range rs.order {
		out = append(out, rs.renderers[id])
	}
	return out
}

func (rs *rendererSet) RedrawRegion(s Scene, r Region) {
	rs.snapshot().RedrawRegion(s, r)
}

func (rs *rendererSet) RedrawAll(s Scene) {
	rs.snapshot().RedrawAll(s)
}

// Robot is the action and sensor surface shared by the navigation routines
// and the script interpreter
type Robot interface {
	Step() error
	TurnLeft()
	TurnRight()
	PickUpBall() error
	PutBall() error
	IsOnBall() bool
	IsWallAhead() bool
	IsFacingNorth() bool
	SetStepDelay(ms int)
	Bounds() (width, height int)
}
