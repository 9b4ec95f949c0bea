package service

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/wricardo/charles/game/engine"
	"github.com/wricardo/charles/game/script"
)

// Session represents one robot world served to clients
type Session struct {
	ID        string
	Sim       *engine.Simulation
	World     string
	CreatedAt time.Time

	// mu serialises everything that drives Sim
	mu       sync.Mutex
	accessed atomic.Int64
	// published is the state readers see while a program holds mu
	published atomic.Pointer[engine.State]
}

// Touch records an access at t
func (s *Session) Touch(t time.Time) { s.accessed.Store(t.UnixNano()) }

// LastAccess returns the time of the last recorded access
func (s *Session) LastAccess() time.Time { return time.Unix(0, s.accessed.Load()) }

// Lock takes the session's simulation lock
func (s *Session) Lock() { s.mu.Lock() }

// Unlock releases the session's simulation lock
func (s *Session) Unlock() { s.mu.Unlock() }

// TryLock takes the simulation lock if it is free
func (s *Session) TryLock() bool { return s.mu.TryLock() }

// Publish makes st the state seen by readers while the simulation is busy.
// nil withdraws it.
func (s *Session) Publish(st *engine.State) { s.published.Store(st) }

// Published returns the last published state, or nil
func (s *Session) Published() *engine.State { return s.published.Load() }

// SessionInfo provides information about a session. Busy is set when a
// running program holds the session; Viewers counts attached WebSocket
// clients and is filled in by the API.
type SessionInfo struct {
	ID             string        `json:"id"`
	World          string        `json:"world"`
	CreatedAt      time.Time     `json:"created_at"`
	LastAccessedAt time.Time     `json:"last_accessed_at"`
	State          *engine.State `json:"state"`
	Busy           bool          `json:"busy,omitempty"`
	Viewers        int           `json:"viewers"`
}

// ActionResult contains the result of a single robot action. Number is the
// action's position in the session history.
type ActionResult struct {
	Action  string          `json:"action"`
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Message string          `json:"message,omitempty"`
	From    engine.Position `json:"from"`
	To      engine.Position `json:"to"`
	Number  int             `json:"number"`
	State   *engine.State   `json:"state"`
}

// Stop reasons reported by RunProgram
const (
	StopCompleted   = "completed"
	StopFailed      = "illegal_action"
	StopActionLimit = "action_limit"
	StopCancelled   = "cancelled"
	StopRoutine     = "routine_failed"
)

// ProgramResult contains the outcome of a script run
type ProgramResult struct {
	Success    bool          `json:"success"`
	StopReason string        `json:"stop_reason"`
	Error      string        `json:"error,omitempty"`
	Message    string        `json:"message,omitempty"`
	Line       int           `json:"line,omitempty"`
	Column     int           `json:"column,omitempty"`
	Stats      script.Stats  `json:"stats"`
	State      *engine.State `json:"state"`
}

// GenerateResult contains a generated layout and the resulting state
type GenerateResult struct {
	Layout *engine.LayoutResult `json:"layout"`
	State  *engine.State        `json:"state"`
}

// HistoryOptions configures action history retrieval
type HistoryOptions struct {
	Page  int    `json:"page"`
	Limit int    `json:"limit"`
	Order string `json:"order"` // "asc" or "desc"
}

// HistoryResponse contains paginated action history
type HistoryResponse struct {
	Actions     []engine.HistoryEntry `json:"actions"`
	Total       int                   `json:"total"`
	Page        int                   `json:"page"`
	PageSize    int                   `json:"page_size"`
	TotalPages  int                   `json:"total_pages"`
	HasNext     bool                  `json:"has_next"`
	HasPrevious bool                  `json:"has_previous"`
}
