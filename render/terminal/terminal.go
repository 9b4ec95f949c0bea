// Package terminal draws a robot world on a tcell screen.
package terminal

import (
	"context"
	"sync"

	"github.com/gdamore/tcell/v2"

	"github.com/wricardo/charles/game/engine"
	"github.com/wricardo/charles/game/world"
)

var (
	wallStyle   = tcell.StyleDefault.Foreground(tcell.ColorGray)
	ballStyle   = tcell.StyleDefault.Foreground(tcell.ColorYellow)
	emptyStyle  = tcell.StyleDefault.Foreground(tcell.ColorDarkSlateGray)
	robotStyle  = tcell.StyleDefault.Foreground(tcell.ColorRed).Bold(true)
	statusStyle = tcell.StyleDefault.Foreground(tcell.ColorWhite)
)

// Robot glyphs indexed by engine.Direction
var arrows = [4]rune{'^', '<', 'v', '>'}

// Renderer implements engine.Renderer on a tcell screen. The world's top row
// (y = Height-1) is drawn on screen row 0; a status line sits below the grid.
type Renderer struct {
	mu     sync.Mutex
	screen tcell.Screen
	status string
	height int
	closed sync.Once
}

// New wraps an initialised screen
func New(screen tcell.Screen) *Renderer {
	return &Renderer{screen: screen}
}

// Open creates and initialises the terminal screen
func Open() (*Renderer, error) {
	screen, err := tcell.NewScreen()
	if err != nil {
		return nil, err
	}
	if err := screen.Init(); err != nil {
		return nil, err
	}
	screen.HideCursor()
	return New(screen), nil
}

// Close restores the terminal. It may be called more than once.
func (r *Renderer) Close() {
	r.closed.Do(r.screen.Fini)
}

func (r *Renderer) RedrawRegion(s engine.Scene, region engine.Region) {
	r.mu.Lock()
	defer r.mu.Unlock()

	region = region.Clip(s.Width(), s.Height())
	r.height = s.Height()
	for y := region.FromY; y <= region.ToY; y++ {
		for x := region.FromX; x <= region.ToX; x++ {
			r.drawCell(s, x, y)
		}
	}
	r.screen.Show()
}

func (r *Renderer) RedrawAll(s engine.Scene) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.screen.Clear()
	r.height = s.Height()
	for y := 0; y < s.Height(); y++ {
		for x := 0; x < s.Width(); x++ {
			r.drawCell(s, x, y)
		}
	}
	r.drawStatus()
	r.screen.Show()
}

// SetStatus shows msg on the line below the grid
func (r *Renderer) SetStatus(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.status = msg
	r.drawStatus()
	r.screen.Show()
}

func (r *Renderer) drawCell(s engine.Scene, x, y int) {
	row := s.Height() - 1 - y
	if pos := s.AgentPosition(); pos.X == x && pos.Y == y {
		r.screen.SetContent(x, row, arrows[s.AgentDirection()], nil, robotStyle)
		return
	}
	switch s.At(x, y) {
	case world.Wall:
		r.screen.SetContent(x, row, '#', nil, wallStyle)
	case world.Ball:
		r.screen.SetContent(x, row, 'o', nil, ballStyle)
	default:
		r.screen.SetContent(x, row, '.', nil, emptyStyle)
	}
}

func (r *Renderer) drawStatus() {
	w, _ := r.screen.Size()
	row := r.height + 1
	col := 0
	for _, ch := range r.status {
		r.screen.SetContent(col, row, ch, nil, statusStyle)
		col++
	}
	for ; col < w; col++ {
		r.screen.SetContent(col, row, ' ', nil, statusStyle)
	}
}

// WaitForKey blocks until Escape, Enter, q or Ctrl-C is pressed, or ctx is
// done
func (r *Renderer) WaitForKey(ctx context.Context) {
	keys := make(chan struct{})
	go func() {
		defer close(keys)
		for {
			ev := r.screen.PollEvent()
			switch ev := ev.(type) {
			case nil:
				return
			case *tcell.EventKey:
				if ev.Key() == tcell.KeyEscape || ev.Key() == tcell.KeyEnter || ev.Key() == tcell.KeyCtrlC ||
					(ev.Key() == tcell.KeyRune && ev.Rune() == 'q') {
					return
				}
			case *tcell.EventResize:
				r.screen.Sync()
			}
		}
	}()

	select {
	case <-keys:
	case <-ctx.Done():
	}
}

// Key bindings of the interactive viewer
const (
	KeyReset = "reset"
	KeyQuit  = "quit"
)

// KeyAction maps a key press to a robot action name, KeyReset or KeyQuit.
// Unbound keys give "".
func KeyAction(ev *tcell.EventKey) string {
	switch ev.Key() {
	case tcell.KeyUp:
		return "step"
	case tcell.KeyLeft:
		return "turn_left"
	case tcell.KeyRight:
		return "turn_right"
	case tcell.KeyEscape, tcell.KeyCtrlC:
		return KeyQuit
	case tcell.KeyRune:
		switch ev.Rune() {
		case 'w', ' ':
			return "step"
		case 'a':
			return "turn_left"
		case 'd':
			return "turn_right"
		case 'p':
			return "put_ball"
		case 'g':
			return "get_ball"
		case 'r':
			return KeyReset
		case 'q':
			return KeyQuit
		}
	}
	return ""
}

// NextKey blocks until a key is pressed. It returns nil once the screen is
// closed.
func (r *Renderer) NextKey() *tcell.EventKey {
	for {
		switch ev := r.screen.PollEvent().(type) {
		case nil:
			return nil
		case *tcell.EventKey:
			return ev
		case *tcell.EventResize:
			r.screen.Sync()
		}
	}
}
