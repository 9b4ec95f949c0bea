// Package remote mirrors a session running on a charles server.
//
// A Viewer fetches the session's state over the REST API, then follows the
// session's WebSocket redraws and replays them on a local engine.Renderer,
// typically the terminal renderer. Actions typed by the user are sent back
// through the API.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	gorilla "github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/wricardo/charles/game/engine"
	"github.com/wricardo/charles/game/service"
	"github.com/wricardo/charles/game/world"
	"github.com/wricardo/charles/transport/websocket"
)

var ErrNoState = errors.New("no state received yet")

// Scene is the local copy of a remote world. It implements engine.Scene.
type Scene struct {
	grid  *world.Grid
	agent engine.Position
	dir   engine.Direction
}

func (s *Scene) Width() int                       { return s.grid.Width() }
func (s *Scene) Height() int                      { return s.grid.Height() }
func (s *Scene) At(x, y int) world.Cell           { return s.grid.At(x, y) }
func (s *Scene) AgentPosition() engine.Position   { return s.agent }
func (s *Scene) AgentDirection() engine.Direction { return s.dir }

// Viewer follows one remote session
type Viewer struct {
	baseURL   string
	sessionID string
	client    *http.Client
	renderer  engine.Renderer
	logger    *zap.Logger

	mu      sync.Mutex
	scene   *Scene
	message string
}

// New creates a viewer of sessionID on the server at baseURL. Updates are
// drawn on renderer.
func New(baseURL, sessionID string, renderer engine.Renderer, logger *zap.Logger) *Viewer {
	if renderer == nil {
		renderer = engine.NopRenderer{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Viewer{
		baseURL:   strings.TrimRight(baseURL, "/"),
		sessionID: sessionID,
		client:    &http.Client{Timeout: 2 * time.Minute},
		renderer:  renderer,
		logger:    logger,
	}
}

// Scene returns a copy of the current local world, or nil before the first
// state
func (v *Viewer) Scene() *Scene {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.scene == nil {
		return nil
	}
	return &Scene{grid: v.scene.grid.Clone(), agent: v.scene.agent, dir: v.scene.dir}
}

// Message returns the server's message after the last action
func (v *Viewer) Message() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.message
}

func (v *Viewer) call(ctx context.Context, method, path string, body, result any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, v.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s", apiErr.Error)
		}
		return fmt.Errorf("API error: %d", resp.StatusCode)
	}
	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}
	return nil
}

func (v *Viewer) sessionPath(suffix string) string {
	return "/api/sessions/" + url.PathEscape(v.sessionID) + suffix
}

// FetchState loads the full state and redraws everything
func (v *Viewer) FetchState(ctx context.Context) error {
	var st engine.State
	if err := v.call(ctx, http.MethodGet, v.sessionPath("/state"), nil, &st); err != nil {
		return err
	}
	return v.ApplyState(&st)
}

// ApplyState replaces the local copy with st
func (v *Viewer) ApplyState(st *engine.State) error {
	grid, err := world.FromRows(st.Rows)
	if err != nil {
		return fmt.Errorf("bad state rows: %w", err)
	}
	scene := &Scene{grid: grid, agent: st.Agent, dir: st.Direction}

	v.mu.Lock()
	v.scene = scene
	v.message = st.Message
	v.mu.Unlock()

	v.renderer.RedrawAll(scene)
	return nil
}

// ApplyRedraw patches the local copy with a redraw message
func (v *Viewer) ApplyRedraw(m *websocket.Message) error {
	if m.Region == nil {
		return fmt.Errorf("redraw without region")
	}
	region := *m.Region

	v.mu.Lock()
	scene := v.scene
	if scene == nil {
		v.mu.Unlock()
		return ErrNoState
	}
	for i, row := range m.Cells {
		y := region.ToY - i
		for j := 0; j < len(row); j++ {
			if c, ok := world.CellFromGlyph(row[j]); ok {
				scene.grid.Set(region.FromX+j, y, c)
			}
		}
	}
	if m.Agent != nil {
		scene.agent = *m.Agent
	}
	if m.Direction != "" {
		if d, err := engine.ParseDirection(m.Direction); err == nil {
			scene.dir = d
		}
	}
	v.mu.Unlock()

	full := region.FromX == 0 && region.FromY == 0 &&
		region.ToX == scene.Width()-1 && region.ToY == scene.Height()-1
	if full {
		v.renderer.RedrawAll(scene)
	} else {
		v.renderer.RedrawRegion(scene, region)
	}
	return nil
}

// Handle applies one WebSocket frame
func (v *Viewer) Handle(data []byte) error {
	var m websocket.Message
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	switch m.Event {
	case websocket.EventState:
		if m.State != nil {
			return v.ApplyState(m.State)
		}
	case websocket.EventRedraw:
		return v.ApplyRedraw(&m)
	case websocket.EventProgram:
		return v.applyProgram(m.Data)
	}
	return nil
}

// applyProgram turns the end of a program run into the viewer's message
func (v *Viewer) applyProgram(data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	var ev websocket.ProgramEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return err
	}

	msg := fmt.Sprintf("Program %s after %d actions", strings.ReplaceAll(ev.StopReason, "_", " "), ev.Actions)
	if ev.Message != "" {
		msg += ": " + ev.Message
	}
	v.mu.Lock()
	v.message = msg
	v.mu.Unlock()
	return nil
}

// wsURL maps the API base URL onto the session's WebSocket endpoint
func (v *Viewer) wsURL() (string, error) {
	u, err := url.Parse(v.baseURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	q := u.Query()
	q.Set("session", v.sessionID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Follow fetches the state, then applies WebSocket frames until ctx is done
// or the connection drops
func (v *Viewer) Follow(ctx context.Context) error {
	target, err := v.wsURL()
	if err != nil {
		return err
	}
	conn, _, err := gorilla.DefaultDialer.DialContext(ctx, target, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}
	defer conn.Close()
	v.logger.Debug("websocket connected", zap.String("session", v.sessionID))

	// connect first so no redraw between the fetch and the dial is lost
	if err := v.FetchState(ctx); err != nil {
		return err
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("websocket read: %w", err)
		}
		if err := v.Handle(data); err != nil {
			v.logger.Warn("bad websocket frame", zap.Error(err))
		}
	}
}

// Act sends an action to the session. "reset" resets the world.
func (v *Viewer) Act(ctx context.Context, action string) (*service.ActionResult, error) {
	if action == "reset" {
		var reset struct {
			Message string `json:"message"`
		}
		if err := v.call(ctx, http.MethodPost, v.sessionPath("/reset"), nil, &reset); err != nil {
			return nil, err
		}
		v.mu.Lock()
		v.message = reset.Message
		v.mu.Unlock()
		return nil, nil
	}

	var result service.ActionResult
	body := map[string]string{"action": action}
	if err := v.call(ctx, http.MethodPost, v.sessionPath("/act"), body, &result); err != nil {
		return nil, err
	}
	v.mu.Lock()
	v.message = result.Message
	v.mu.Unlock()
	return &result, nil
}
