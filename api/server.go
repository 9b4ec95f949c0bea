package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/wricardo/charles/game/engine"
	"github.com/wricardo/charles/game/script"
	"github.com/wricardo/charles/game/service"
	"github.com/wricardo/charles/game/session"
	"github.com/wricardo/charles/game/worldfile"
	"github.com/wricardo/charles/game/worlds"
	"github.com/wricardo/charles/transport/websocket"
)

// RequestIDHeader carries the per-request ID set by the server
const RequestIDHeader = "X-Request-ID"

// Server represents the REST API server
type Server struct {
	service service.WorldService
	hub     *websocket.Hub
	router  *mux.Router
	logger  *zap.Logger
}

// NewServer creates a new API server. hub may be nil when no websocket
// viewers are served.
func NewServer(worldService service.WorldService, hub *websocket.Hub, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		service: worldService,
		hub:     hub,
		router:  mux.NewRouter(),
		logger:  logger,
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	s.router.Use(s.requestID)

	api := s.router.PathPrefix("/api").Subrouter()

	// Sessions
	api.HandleFunc("/sessions", s.handleCreateSession).Methods("POST")
	api.HandleFunc("/sessions", s.handleListSessions).Methods("GET")
	api.HandleFunc("/sessions/{id}", s.handleGetSession).Methods("GET")
	api.HandleFunc("/sessions/{id}", s.handleDeleteSession).Methods("DELETE")

	// Robot
	api.HandleFunc("/sessions/{id}/state", s.handleGetState).Methods("GET")
	api.HandleFunc("/sessions/{id}/act", s.handleAct).Methods("POST")
	api.HandleFunc("/sessions/{id}/program", s.handleRunProgram).Methods("POST")
	api.HandleFunc("/sessions/{id}/delay", s.handleSetDelay).Methods("POST")
	api.HandleFunc("/sessions/{id}/reset", s.handleReset).Methods("POST")
	api.HandleFunc("/sessions/{id}/history", s.handleGetHistory).Methods("GET")

	// World
	api.HandleFunc("/sessions/{id}/generate", s.handleGenerate).Methods("POST")
	api.HandleFunc("/sessions/{id}/load", s.handleLoadWorld).Methods("POST")
	api.HandleFunc("/sessions/{id}/save", s.handleSaveWorld).Methods("POST")
	api.HandleFunc("/worlds", s.handleListWorlds).Methods("GET")
	api.HandleFunc("/worlds/{name}", s.handleGetWorld).Methods("GET")
	api.HandleFunc("/layouts", s.handleListLayouts).Methods("GET")

	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// requestID tags every request with an ID and logs it once served
func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)

		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("request",
			zap.String("id", id),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("took", time.Since(start)))
	})
}

// Response helpers
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// statusFor maps service errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrSessionNotFound), errors.Is(err, worlds.ErrWorldNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrSessionAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, script.ErrParse),
		errors.Is(err, engine.ErrUnknownAction),
		errors.Is(err, engine.ErrUnknownLayout),
		errors.Is(err, engine.ErrWorldLoadFailed),
		errors.Is(err, worldfile.ErrInvalid),
		errors.Is(err, worlds.ErrInvalidWorld),
		errors.Is(err, worlds.ErrInvalidName),
		errors.Is(err, session.ErrInvalidSessionID):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrNoCatalog):
		return http.StatusNotImplemented
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout
	}
	return http.StatusInternalServerError
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Error(err))
	}
	respondError(w, status, err.Error())
}

// decode reads an optional JSON body into v. An empty body leaves v as is.
func decode(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %v", err)
	}
	return nil
}

// broadcast pushes a state snapshot to the session's viewers
func (s *Server) broadcast(sessionID string, state *engine.State) {
	if s.hub != nil && state != nil {
		s.hub.BroadcastState(sessionID, state)
	}
}

// Session Handlers

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		World string `json:"world,omitempty"`
	}
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	info, err := s.service.CreateSession(r.Context(), req.World)
	if err != nil {
		s.fail(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, info)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.service.ListSessions(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}

	query := r.URL.Query()
	sortBy := query.Get("sort") // "created" or "accessed"
	if sortBy != "created" {
		sortBy = "accessed"
	}
	order := query.Get("order")
	if order != "asc" {
		order = "desc"
	}

	sort.Slice(sessions, func(i, j int) bool {
		ti, tj := sessions[i].LastAccessedAt, sessions[j].LastAccessedAt
		if sortBy == "created" {
			ti, tj = sessions[i].CreatedAt, sessions[j].CreatedAt
		}
		if order == "asc" {
			return ti.Before(tj)
		}
		return ti.After(tj)
	})

	total := len(sessions)
	if l, err := strconv.Atoi(query.Get("limit")); err == nil && l > 0 && l < len(sessions) {
		sessions = sessions[:l]
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"count":    len(sessions),
		"total":    total,
		"sessions": sessions,
		"sort":     sortBy,
		"order":    order,
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	info, err := s.service.GetSession(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, err)
		return
	}
	if s.hub != nil {
		info.Viewers = s.hub.ClientCount(info.ID)
	}
	respondJSON(w, http.StatusOK, info)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]
	if err := s.service.DeleteSession(r.Context(), sessionID); err != nil {
		s.fail(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("Session %s deleted", sessionID),
	})
}

// Robot Handlers

func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	state, err := s.service.GetState(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, err)
		return
	}
	respondJSON(w, http.StatusOK, state)
}

func (s *Server) handleAct(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	var req struct {
		Action string `json:"action"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Action == "" {
		respondError(w, http.StatusBadRequest, "Invalid request body: action is required")
		return
	}

	result, err := s.service.Act(r.Context(), sessionID, req.Action)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.broadcast(sessionID, result.State)

	s.logger.Info("action",
		zap.String("session", sessionID),
		zap.String("action", result.Action),
		zap.Bool("ok", result.Success),
		zap.String("error", result.Error),
		zap.Int("to_x", result.To.X),
		zap.Int("to_y", result.To.Y))

	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleRunProgram(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	var req struct {
		Source string `json:"source"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := s.service.RunProgram(r.Context(), sessionID, req.Source)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.broadcast(sessionID, result.State)
	if s.hub != nil {
		s.hub.BroadcastEvent(sessionID, websocket.EventProgram, websocket.ProgramEvent{
			StopReason: result.StopReason,
			Actions:    result.Stats.Actions,
			Message:    result.Message,
		})
	}

	s.logger.Info("program",
		zap.String("session", sessionID),
		zap.String("stop", result.StopReason),
		zap.Int("actions", result.Stats.Actions),
		zap.Int("line", result.Line))

	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleSetDelay(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	var req struct {
		Milliseconds *int `json:"ms"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Milliseconds == nil {
		respondError(w, http.StatusBadRequest, "Invalid request body: ms is required")
		return
	}

	state, err := s.service.SetStepDelay(r.Context(), sessionID, *req.Milliseconds)
	if err != nil {
		s.fail(w, err)
		return
	}
	respondJSON(w, http.StatusOK, state)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	state, err := s.service.Reset(r.Context(), sessionID)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.broadcast(sessionID, state)

	respondJSON(w, http.StatusOK, map[string]any{
		"message": "World reset",
		"state":   state,
	})
}

func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	opts := service.HistoryOptions{
		Page:  1,
		Limit: 20,
		Order: "desc",
	}

	query := r.URL.Query()
	if p, err := strconv.Atoi(query.Get("page")); err == nil && p > 0 {
		opts.Page = p
	}
	if l, err := strconv.Atoi(query.Get("limit")); err == nil && l > 0 {
		opts.Limit = l
	}
	if order := query.Get("order"); order == "asc" || order == "desc" {
		opts.Order = order
	}

	history, err := s.service.GetHistory(r.Context(), mux.Vars(r)["id"], opts)
	if err != nil {
		s.fail(w, err)
		return
	}
	respondJSON(w, http.StatusOK, history)
}

// World Handlers

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	var req struct {
		Layout string `json:"layout"`
		Seed   *int64 `json:"seed,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Layout == "" {
		respondError(w, http.StatusBadRequest, "Invalid request body: layout is required")
		return
	}

	result, err := s.service.Generate(r.Context(), sessionID, req.Layout, req.Seed)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.broadcast(sessionID, result.State)
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleLoadWorld(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	var req struct {
		World string `json:"world"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.World == "" {
		respondError(w, http.StatusBadRequest, "Invalid request body: world is required")
		return
	}

	state, err := s.service.LoadWorld(r.Context(), sessionID, strings.TrimSuffix(req.World, worlds.Ext))
	if err != nil {
		s.fail(w, err)
		return
	}
	s.broadcast(sessionID, state)
	respondJSON(w, http.StatusOK, state)
}

func (s *Server) handleSaveWorld(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	var req struct {
		World string `json:"world"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.World == "" {
		respondError(w, http.StatusBadRequest, "Invalid request body: world is required")
		return
	}

	name := strings.TrimSuffix(req.World, worlds.Ext)
	if err := s.service.SaveWorld(r.Context(), sessionID, name); err != nil {
		s.fail(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{
		"message": "World saved",
		"world":   name,
	})
}

func (s *Server) handleListWorlds(w http.ResponseWriter, r *http.Request) {
	list, err := s.service.ListWorlds(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	respondJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetWorld(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSuffix(mux.Vars(r)["name"], worlds.Ext)

	list, err := s.service.ListWorlds(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	for _, info := range list {
		if info.Name == name {
			respondJSON(w, http.StatusOK, info)
			return
		}
	}
	s.fail(w, fmt.Errorf("world %q: %w", name, worlds.ErrWorldNotFound))
}

func (s *Server) handleListLayouts(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"layouts": engine.Layouts})
}

// WebSocket Handler

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		http.Error(w, "websocket viewers are disabled", http.StatusNotImplemented)
		return
	}
	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		http.Error(w, "session parameter required", http.StatusBadRequest)
		return
	}
	if _, err := s.service.GetSession(r.Context(), sessionID); err != nil {
		http.Error(w, "Invalid session", http.StatusNotFound)
		return
	}
	s.hub.ServeWS(w, r, sessionID)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}
