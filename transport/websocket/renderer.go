package websocket

import (
	"strings"

	"github.com/wricardo/charles/game/engine"
)

// SessionRenderer turns simulation redraws into hub messages for one session
type SessionRenderer struct {
	hub       *Hub
	sessionID string
}

// Renderer returns the engine.Renderer that publishes sessionID's redraws
func (h *Hub) Renderer(sessionID string) engine.Renderer {
	return &SessionRenderer{hub: h, sessionID: sessionID}
}

func (r *SessionRenderer) RedrawRegion(s engine.Scene, region engine.Region) {
	region = region.Clip(s.Width(), s.Height())
	r.publish(s, region)
}

func (r *SessionRenderer) RedrawAll(s engine.Scene) {
	r.publish(s, engine.Region{FromX: 0, FromY: 0, ToX: s.Width() - 1, ToY: s.Height() - 1})
}

func (r *SessionRenderer) publish(s engine.Scene, region engine.Region) {
	pos := s.AgentPosition()
	r.hub.Publish(&Message{
		SessionID: r.sessionID,
		Event:     EventRedraw,
		Region:    &region,
		Cells:     regionCells(s, region),
		Agent:     &pos,
		Direction: s.AgentDirection().String(),
	})
}

// regionCells renders the glyphs of region, top row first
func regionCells(s engine.Scene, region engine.Region) []string {
	if region.ToX < region.FromX || region.ToY < region.FromY {
		return nil
	}
	rows := make([]string, 0, region.ToY-region.FromY+1)
	var b strings.Builder
	for y := region.ToY; y >= region.FromY; y-- {
		b.Reset()
		for x := region.FromX; x <= region.ToX; x++ {
			b.WriteByte(s.At(x, y).Glyph())
		}
		rows = append(rows, b.String())
	}
	return rows
}
