package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wricardo/charles/game/engine"
	"github.com/wricardo/charles/game/script"
	"github.com/wricardo/charles/game/service"
	"github.com/wricardo/charles/game/session"
	"github.com/wricardo/charles/game/worlds"
	wshub "github.com/wricardo/charles/transport/websocket"
)

// MockWorldService implements service.WorldService for testing
type MockWorldService struct {
	CreateSessionFunc func(ctx context.Context, world string) (*service.SessionInfo, error)
	GetSessionFunc    func(ctx context.Context, sessionID string) (*service.SessionInfo, error)
	ListSessionsFunc  func(ctx context.Context) ([]*service.SessionInfo, error)
	DeleteSessionFunc func(ctx context.Context, sessionID string) error

	ActFunc          func(ctx context.Context, sessionID, action string) (*service.ActionResult, error)
	RunProgramFunc   func(ctx context.Context, sessionID, source string) (*service.ProgramResult, error)
	SetStepDelayFunc func(ctx context.Context, sessionID string, ms int) (*engine.State, error)
	ResetFunc        func(ctx context.Context, sessionID string) (*engine.State, error)

	GenerateFunc   func(ctx context.Context, sessionID, layout string, seed *int64) (*service.GenerateResult, error)
	LoadWorldFunc  func(ctx context.Context, sessionID, world string) (*engine.State, error)
	SaveWorldFunc  func(ctx context.Context, sessionID, world string) error
	ListWorldsFunc func(ctx context.Context) ([]*worlds.Info, error)

	GetStateFunc   func(ctx context.Context, sessionID string) (*engine.State, error)
	GetHistoryFunc func(ctx context.Context, sessionID string, opts service.HistoryOptions) (*service.HistoryResponse, error)
}

func testState() *engine.State {
	return &engine.State{Width: 5, Height: 5, Agent: engine.Position{X: 1, Y: 3}, Direction: engine.East, Heading: "east"}
}

func (m *MockWorldService) CreateSession(ctx context.Context, world string) (*service.SessionInfo, error) {
	if m.CreateSessionFunc != nil {
		return m.CreateSessionFunc(ctx, world)
	}
	return &service.SessionInfo{ID: "test", World: world, CreatedAt: time.Now()}, nil
}

func (m *MockWorldService) GetSession(ctx context.Context, sessionID string) (*service.SessionInfo, error) {
	if m.GetSessionFunc != nil {
		return m.GetSessionFunc(ctx, sessionID)
	}
	return &service.SessionInfo{ID: sessionID, World: "empty", CreatedAt: time.Now()}, nil
}

func (m *MockWorldService) ListSessions(ctx context.Context) ([]*service.SessionInfo, error) {
	if m.ListSessionsFunc != nil {
		return m.ListSessionsFunc(ctx)
	}
	return []*service.SessionInfo{}, nil
}

func (m *MockWorldService) DeleteSession(ctx context.Context, sessionID string) error {
	if m.DeleteSessionFunc != nil {
		return m.DeleteSessionFunc(ctx, sessionID)
	}
	return nil
}

func (m *MockWorldService) Act(ctx context.Context, sessionID, action string) (*service.ActionResult, error) {
	if m.ActFunc != nil {
		return m.ActFunc(ctx, sessionID, action)
	}
	return &service.ActionResult{Action: action, Success: true, State: testState()}, nil
}

func (m *MockWorldService) RunProgram(ctx context.Context, sessionID, source string) (*service.ProgramResult, error) {
	if m.RunProgramFunc != nil {
		return m.RunProgramFunc(ctx, sessionID, source)
	}
	return &service.ProgramResult{Success: true, StopReason: service.StopCompleted, State: testState()}, nil
}

func (m *MockWorldService) SetStepDelay(ctx context.Context, sessionID string, ms int) (*engine.State, error) {
	if m.SetStepDelayFunc != nil {
		return m.SetStepDelayFunc(ctx, sessionID, ms)
	}
	st := testState()
	st.StepDelayMs = int64(ms)
	return st, nil
}

func (m *MockWorldService) Reset(ctx context.Context, sessionID string) (*engine.State, error) {
	if m.ResetFunc != nil {
		return m.ResetFunc(ctx, sessionID)
	}
	return testState(), nil
}

func (m *MockWorldService) Generate(ctx context.Context, sessionID, layout string, seed *int64) (*service.GenerateResult, error) {
	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, sessionID, layout, seed)
	}
	return &service.GenerateResult{Layout: &engine.LayoutResult{Layout: layout}, State: testState()}, nil
}

func (m *MockWorldService) LoadWorld(ctx context.Context, sessionID, world string) (*engine.State, error) {
	if m.LoadWorldFunc != nil {
		return m.LoadWorldFunc(ctx, sessionID, world)
	}
	return testState(), nil
}

func (m *MockWorldService) SaveWorld(ctx context.Context, sessionID, world string) error {
	if m.SaveWorldFunc != nil {
		return m.SaveWorldFunc(ctx, sessionID, world)
	}
	return nil
}

func (m *MockWorldService) ListWorlds(ctx context.Context) ([]*worlds.Info, error) {
	if m.ListWorldsFunc != nil {
		return m.ListWorldsFunc(ctx)
	}
	return []*worlds.Info{{Name: "labyrinth", Filename: "labyrinth.world", Agent: "(1,1)", Heading: "east"}}, nil
}

func (m *MockWorldService) GetState(ctx context.Context, sessionID string) (*engine.State, error) {
	if m.GetStateFunc != nil {
		return m.GetStateFunc(ctx, sessionID)
	}
	return testState(), nil
}

func (m *MockWorldService) GetHistory(ctx context.Context, sessionID string, opts service.HistoryOptions) (*service.HistoryResponse, error) {
	if m.GetHistoryFunc != nil {
		return m.GetHistoryFunc(ctx, sessionID, opts)
	}
	return &service.HistoryResponse{Actions: []engine.HistoryEntry{}, Page: opts.Page, PageSize: opts.Limit}, nil
}

func setupTestServer(mockService *MockWorldService) *Server {
	return NewServer(mockService, nil, nil)
}

func makeRequest(method, path string, body any) *http.Request {
	var bodyBytes []byte
	if body != nil {
		bodyBytes, _ = json.Marshal(body)
	}
	req := httptest.NewRequest(method, path, bytes.NewBuffer(bodyBytes))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func parseResponse(t *testing.T, w *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), target); err != nil {
		t.Fatalf("Failed to parse response: %v (%s)", err, w.Body.String())
	}
}

func serve(server *Server, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	server.ServeHTTP(w, req)
	return w
}

func TestCreateSession(t *testing.T) {
	tests := []struct {
		name           string
		body           any
		setupMock      func(*MockWorldService)
		expectedStatus int
		expectedWorld  string
	}{
		{
			name:           "empty body uses the default world",
			body:           nil,
			expectedStatus: http.StatusCreated,
			expectedWorld:  "",
		},
		{
			name:           "named world",
			body:           map[string]string{"world": "labyrinth"},
			expectedStatus: http.StatusCreated,
			expectedWorld:  "labyrinth",
		},
		{
			name: "unknown world",
			body: map[string]string{"world": "nowhere"},
			setupMock: func(m *MockWorldService) {
				m.CreateSessionFunc = func(ctx context.Context, world string) (*service.SessionInfo, error) {
					return nil, fmt.Errorf("world %q: %w", world, worlds.ErrWorldNotFound)
				}
			},
			expectedStatus: http.StatusNotFound,
		},
		{
			name: "service error",
			setupMock: func(m *MockWorldService) {
				m.CreateSessionFunc = func(ctx context.Context, world string) (*service.SessionInfo, error) {
					return nil, fmt.Errorf("service error")
				}
			},
			expectedStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := &MockWorldService{}
			if tt.setupMock != nil {
				tt.setupMock(mockService)
			}

			w := serve(setupTestServer(mockService), makeRequest("POST", "/api/sessions", tt.body))

			if w.Code != tt.expectedStatus {
				t.Fatalf("Expected status %d, got %d: %s", tt.expectedStatus, w.Code, w.Body.String())
			}
			if w.Code == http.StatusCreated {
				var resp service.SessionInfo
				parseResponse(t, w, &resp)
				if resp.World != tt.expectedWorld {
					t.Errorf("Expected world %q, got %q", tt.expectedWorld, resp.World)
				}
			}
		})
	}
}

func TestListSessions(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mockService := &MockWorldService{
		ListSessionsFunc: func(ctx context.Context) ([]*service.SessionInfo, error) {
			return []*service.SessionInfo{
				{ID: "a", CreatedAt: base, LastAccessedAt: base.Add(3 * time.Hour)},
				{ID: "b", CreatedAt: base.Add(time.Hour), LastAccessedAt: base.Add(time.Hour)},
				{ID: "c", CreatedAt: base.Add(2 * time.Hour), LastAccessedAt: base.Add(2 * time.Hour)},
			}, nil
		},
	}
	server := setupTestServer(mockService)

	tests := []struct {
		query string
		ids   []string
		total int
	}{
		{"", []string{"a", "c", "b"}, 3},
		{"?sort=created&order=asc", []string{"a", "b", "c"}, 3},
		{"?sort=created&limit=2", []string{"c", "b"}, 3},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			w := serve(server, makeRequest("GET", "/api/sessions"+tt.query, nil))
			if w.Code != http.StatusOK {
				t.Fatalf("Expected status 200, got %d", w.Code)
			}
			var resp struct {
				Count    int                    `json:"count"`
				Total    int                    `json:"total"`
				Sessions []*service.SessionInfo `json:"sessions"`
			}
			parseResponse(t, w, &resp)

			var ids []string
			for _, s := range resp.Sessions {
				ids = append(ids, s.ID)
			}
			if strings.Join(ids, ",") != strings.Join(tt.ids, ",") {
				t.Errorf("Expected order %v, got %v", tt.ids, ids)
			}
			if resp.Total != tt.total || resp.Count != len(tt.ids) {
				t.Errorf("Expected count %d total %d, got %d %d", len(tt.ids), tt.total, resp.Count, resp.Total)
			}
		})
	}
}

func TestGetAndDeleteSession(t *testing.T) {
	mockService := &MockWorldService{
		GetSessionFunc: func(ctx context.Context, id string) (*service.SessionInfo, error) {
			if id != "ab12" {
				return nil, fmt.Errorf("session %s: %w", id, session.ErrSessionNotFound)
			}
			return &service.SessionInfo{ID: id, World: "empty"}, nil
		},
		DeleteSessionFunc: func(ctx context.Context, id string) error {
			if id != "ab12" {
				return session.ErrSessionNotFound
			}
			return nil
		},
	}
	server := setupTestServer(mockService)

	if w := serve(server, makeRequest("GET", "/api/sessions/ab12", nil)); w.Code != http.StatusOK {
		t.Errorf("GET existing: expected 200, got %d", w.Code)
	}
	if w := serve(server, makeRequest("GET", "/api/sessions/zz99", nil)); w.Code != http.StatusNotFound {
		t.Errorf("GET missing: expected 404, got %d", w.Code)
	}
	if w := serve(server, makeRequest("DELETE", "/api/sessions/ab12", nil)); w.Code != http.StatusOK {
		t.Errorf("DELETE existing: expected 200, got %d", w.Code)
	}
	if w := serve(server, makeRequest("DELETE", "/api/sessions/zz99", nil)); w.Code != http.StatusNotFound {
		t.Errorf("DELETE missing: expected 404, got %d", w.Code)
	}
}

func TestAct(t *testing.T) {
	tests := []struct {
		name           string
		body           any
		setupMock      func(*MockWorldService)
		expectedStatus int
		expectSuccess  bool
	}{
		{
			name:           "legal action",
			body:           map[string]string{"action": "step"},
			expectedStatus: http.StatusOK,
			expectSuccess:  true,
		},
		{
			name: "illegal action is reported in the body",
			body: map[string]string{"action": "step"},
			setupMock: func(m *MockWorldService) {
				m.ActFunc = func(ctx context.Context, id, action string) (*service.ActionResult, error) {
					return &service.ActionResult{
						Action:  action,
						Error:   engine.StepIntoWall.String(),
						Message: engine.StepIntoWall.Message(),
						State:   testState(),
					}, nil
				}
			},
			expectedStatus: http.StatusOK,
			expectSuccess:  false,
		},
		{
			name: "unknown action",
			body: map[string]string{"action": "jump"},
			setupMock: func(m *MockWorldService) {
				m.ActFunc = func(ctx context.Context, id, action string) (*service.ActionResult, error) {
					return nil, fmt.Errorf("%q: %w", action, engine.ErrUnknownAction)
				}
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "missing action",
			body:           map[string]string{},
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := &MockWorldService{}
			if tt.setupMock != nil {
				tt.setupMock(mockService)
			}
			w := serve(setupTestServer(mockService), makeRequest("POST", "/api/sessions/ab12/act", tt.body))
			if w.Code != tt.expectedStatus {
				t.Fatalf("Expected status %d, got %d: %s", tt.expectedStatus, w.Code, w.Body.String())
			}
			if w.Code != http.StatusOK {
				return
			}
			var resp service.ActionResult
			parseResponse(t, w, &resp)
			if resp.Success != tt.expectSuccess {
				t.Errorf("Expected success %v, got %v", tt.expectSuccess, resp.Success)
			}
		})
	}
}

func TestRunProgram(t *testing.T) {
	var gotSource string
	mockService := &MockWorldService{
		RunProgramFunc: func(ctx context.Context, id, source string) (*service.ProgramResult, error) {
			gotSource = source
			if strings.Contains(source, "{{") {
				return nil, fmt.Errorf("%w: unexpected token", script.ErrParse)
			}
			return &service.ProgramResult{
				StopReason: service.StopFailed,
				Error:      engine.StepIntoWall.String(),
				Line:       2,
				Column:     1,
				Stats:      script.Stats{Actions: 4},
				State:      testState(),
			}, nil
		},
	}
	server := setupTestServer(mockService)

	w := serve(server, makeRequest("POST", "/api/sessions/ab12/program", map[string]string{"source": "repeat 3 { step }\nstep"}))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if gotSource != "repeat 3 { step }\nstep" {
		t.Errorf("Source not passed through: %q", gotSource)
	}
	var resp service.ProgramResult
	parseResponse(t, w, &resp)
	if resp.StopReason != service.StopFailed || resp.Line != 2 || resp.Stats.Actions != 4 {
		t.Errorf("Unexpected result %+v", resp)
	}

	w = serve(server, makeRequest("POST", "/api/sessions/ab12/program", map[string]string{"source": "{{"}))
	if w.Code != http.StatusBadRequest {
		t.Errorf("Parse error: expected 400, got %d", w.Code)
	}
}

func TestSetDelayAndReset(t *testing.T) {
	server := setupTestServer(&MockWorldService{})

	w := serve(server, makeRequest("POST", "/api/sessions/ab12/delay", map[string]int{"ms": 75}))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var state engine.State
	parseResponse(t, w, &state)
	if state.StepDelayMs != 75 {
		t.Errorf("Expected delay 75, got %d", state.StepDelayMs)
	}

	if w := serve(server, makeRequest("POST", "/api/sessions/ab12/delay", map[string]string{})); w.Code != http.StatusBadRequest {
		t.Errorf("Missing ms: expected 400, got %d", w.Code)
	}

	w = serve(server, makeRequest("POST", "/api/sessions/ab12/reset", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Reset: expected 200, got %d", w.Code)
	}
	var resp struct {
		Message string        `json:"message"`
		State   *engine.State `json:"state"`
	}
	parseResponse(t, w, &resp)
	if resp.State == nil {
		t.Error("Reset should return the state")
	}
}

func TestGetHistory(t *testing.T) {
	var got service.HistoryOptions
	server := setupTestServer(&MockWorldService{
		GetHistoryFunc: func(ctx context.Context, id string, opts service.HistoryOptions) (*service.HistoryResponse, error) {
			got = opts
			return &service.HistoryResponse{Actions: []engine.HistoryEntry{}}, nil
		},
	})

	tests := []struct {
		query string
		want  service.HistoryOptions
	}{
		{"", service.HistoryOptions{Page: 1, Limit: 20, Order: "desc"}},
		{"?page=3&limit=5&order=asc", service.HistoryOptions{Page: 3, Limit: 5, Order: "asc"}},
		{"?page=-1&limit=x&order=sideways", service.HistoryOptions{Page: 1, Limit: 20, Order: "desc"}},
	}
	for _, tt := range tests {
		w := serve(server, makeRequest("GET", "/api/sessions/ab12/history"+tt.query, nil))
		if w.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", tt.query, w.Code)
		}
		if got != tt.want {
			t.Errorf("%s: expected options %+v, got %+v", tt.query, tt.want, got)
		}
	}
}

func TestGenerate(t *testing.T) {
	var gotSeed *int64
	server := setupTestServer(&MockWorldService{
		GenerateFunc: func(ctx context.Context, id, layout string, seed *int64) (*service.GenerateResult, error) {
			gotSeed = seed
			if layout == "volcano" {
				return nil, fmt.Errorf("%q: %w", layout, engine.ErrUnknownLayout)
			}
			return &service.GenerateResult{Layout: &engine.LayoutResult{Layout: layout}, State: testState()}, nil
		},
	})

	w := serve(server, makeRequest("POST", "/api/sessions/ab12/generate", map[string]any{"layout": "cave", "seed": 7}))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if gotSeed == nil || *gotSeed != 7 {
		t.Errorf("Expected seed 7, got %v", gotSeed)
	}

	w = serve(server, makeRequest("POST", "/api/sessions/ab12/generate", map[string]any{"layout": "volcano"}))
	if w.Code != http.StatusBadRequest {
		t.Errorf("Unknown layout: expected 400, got %d", w.Code)
	}
}

func TestWorlds(t *testing.T) {
	var loaded, saved string
	server := setupTestServer(&MockWorldService{
		LoadWorldFunc: func(ctx context.Context, id, world string) (*engine.State, error) {
			loaded = world
			return testState(), nil
		},
		SaveWorldFunc: func(ctx context.Context, id, world string) error {
			saved = world
			if world == "../x" {
				return worlds.ErrInvalidName
			}
			return nil
		},
	})

	if w := serve(server, makeRequest("GET", "/api/worlds", nil)); w.Code != http.StatusOK {
		t.Errorf("List worlds: expected 200, got %d", w.Code)
	}

	w := serve(server, makeRequest("GET", "/api/worlds/labyrinth.world", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Get world: expected 200, got %d", w.Code)
	}
	var info worlds.Info
	parseResponse(t, w, &info)
	if info.Name != "labyrinth" {
		t.Errorf("Expected labyrinth, got %q", info.Name)
	}

	if w := serve(server, makeRequest("GET", "/api/worlds/nowhere", nil)); w.Code != http.StatusNotFound {
		t.Errorf("Missing world: expected 404, got %d", w.Code)
	}

	if w := serve(server, makeRequest("POST", "/api/sessions/ab12/load", map[string]string{"world": "labyrinth.world"})); w.Code != http.StatusOK {
		t.Errorf("Load: expected 200, got %d", w.Code)
	}
	if loaded != "labyrinth" {
		t.Errorf("Expected extension to be trimmed, got %q", loaded)
	}

	if w := serve(server, makeRequest("POST", "/api/sessions/ab12/save", map[string]string{"world": "mine"})); w.Code != http.StatusCreated {
		t.Errorf("Save: expected 201, got %d", w.Code)
	}
	if saved != "mine" {
		t.Errorf("Expected save as mine, got %q", saved)
	}
	if w := serve(server, makeRequest("POST", "/api/sessions/ab12/save", map[string]string{"world": "../x"})); w.Code != http.StatusBadRequest {
		t.Errorf("Bad name: expected 400, got %d", w.Code)
	}
}

func TestRequestID(t *testing.T) {
	server := setupTestServer(&MockWorldService{})

	w := serve(server, makeRequest("GET", "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Health: expected 200, got %d", w.Code)
	}
	if w.Header().Get(RequestIDHeader) == "" {
		t.Error("Expected a generated request ID")
	}

	req := makeRequest("GET", "/health", nil)
	req.Header.Set(RequestIDHeader, "abc")
	if got := serve(server, req).Header().Get(RequestIDHeader); got != "abc" {
		t.Errorf("Expected request ID to be echoed, got %q", got)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{session.ErrSessionNotFound, http.StatusNotFound},
		{session.ErrSessionAlreadyExists, http.StatusConflict},
		{fmt.Errorf("wrap: %w", engine.ErrWorldLoadFailed), http.StatusBadRequest},
		{service.ErrNoCatalog, http.StatusNotImplemented},
		{context.Canceled, http.StatusRequestTimeout},
		{fmt.Errorf("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestWebSocket(t *testing.T) {
	hub := wshub.NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	mockService := &MockWorldService{
		GetSessionFunc: func(ctx context.Context, id string) (*service.SessionInfo, error) {
			if id != "ab12" {
				return nil, session.ErrSessionNotFound
			}
			return &service.SessionInfo{ID: id}, nil
		},
	}
	ts := httptest.NewServer(NewServer(mockService, hub, nil))
	defer ts.Close()
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"

	if _, resp, err := websocket.DefaultDialer.Dial(wsURL+"?session=zz99", nil); err == nil || resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404 for an unknown session, got %v", err)
	}

	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"?session=ab12", nil)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(time.Second)
	for hub.ClientCount("ab12") != 1 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// an act pushes the new state to viewers
	resp, err := http.Post(ts.URL+"/api/sessions/ab12/act", "application/json", strings.NewReader(`{"action":"step"}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Failed to read: %v", err)
	}
	var msg wshub.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatal(err)
	}
	if msg.Event != wshub.EventState || msg.State == nil {
		t.Errorf("Expected a state event, got %+v", msg)
	}
}

func TestWebSocketAttachDuringProgram(t *testing.T) {
	hub := wshub.NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	var armed atomic.Bool
	var once sync.Once
	started := make(chan struct{})
	release := make(chan struct{})
	pace := func(time.Duration) {
		if !armed.Load() {
			return
		}
		once.Do(func() { close(started) })
		<-release
	}
	manager := session.NewManager(session.WithSimulationOptions(engine.WithSize(10, 8), engine.WithPacing(pace)))
	svc := service.NewWorldService(manager, nil)
	info, err := svc.CreateSession(ctx, "")
	if err != nil {
		t.Fatal(err)
	}

	ts := httptest.NewServer(NewServer(svc, hub, nil))
	defer ts.Close()

	armed.Store(true)
	programDone := make(chan int, 1)
	go func() {
		resp, err := http.Post(ts.URL+"/api/sessions/"+info.ID+"/program", "application/json",
			strings.NewReader(`{"source":"step 3"}`))
		if err != nil {
			programDone <- 0
			return
		}
		resp.Body.Close()
		programDone <- resp.StatusCode
	}()
	<-started

	dialer := websocket.Dialer{HandshakeTimeout: 2 * time.Second}
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?session=" + info.ID
	conn, _, err := dialer.Dial(wsURL, nil)
	if err != nil {
		close(release)
		t.Fatalf("Viewer could not attach while a program runs: %v", err)
	}
	defer conn.Close()

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(ts.URL + "/api/sessions/" + info.ID + "/state")
	if err != nil {
		close(release)
		t.Fatalf("State request waited for the program: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected state 200, got %d", resp.StatusCode)
	}

	close(release)
	if code := <-programDone; code != http.StatusOK {
		t.Errorf("Expected program 200, got %d", code)
	}

	// the final state is followed by the program summary
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("No program event: %v", err)
		}
		var msg wshub.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatal(err)
		}
		if msg.Event != wshub.EventProgram {
			continue
		}
		ev, ok := msg.Data.(map[string]any)
		if !ok || ev["stop_reason"] != service.StopCompleted || ev["actions"] != float64(3) {
			t.Errorf("Unexpected program event %+v", msg.Data)
		}
		break
	}

	resp, err = client.Get(ts.URL + "/api/sessions/" + info.ID)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var got service.SessionInfo
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.Viewers != 1 || got.Busy {
		t.Errorf("Expected one viewer and an idle session, got %+v", got)
	}
}
