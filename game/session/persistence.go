package session

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/wricardo/charles/game/engine"
	"github.com/wricardo/charles/game/service"
)

// SessionPersistence defines the interface for persisting sessions. Save
// reads the session's simulation, so callers hold the session lock.
type SessionPersistence interface {
	// Save persists a session to storage
	Save(session *service.Session) error

	// Load retrieves a session from storage by ID
	Load(id string) (*service.Session, error)

	// Delete removes a session from storage
	Delete(id string) error

	// ListAll returns all persisted session IDs
	ListAll() ([]string, error)

	// Exists checks if a session exists in storage
	Exists(id string) bool
}

// PersistedSessionData represents the JSON structure for persisted sessions
type PersistedSessionData struct {
	ID             string        `json:"id"`
	World          string        `json:"world"`
	CreatedAt      time.Time     `json:"created_at"`
	LastAccessedAt time.Time     `json:"last_accessed_at"`
	State          *engine.State `json:"state"`
}

// codec turns sessions into JSON and back. Restored simulations are built
// with simOpts and sized from the stored state.
type codec struct {
	simOpts []engine.Option
}

func (c codec) marshal(s *service.Session) ([]byte, error) {
	if s == nil {
		return nil, fmt.Errorf("session cannot be nil")
	}
	data := PersistedSessionData{
		ID:             s.ID,
		World:          s.World,
		CreatedAt:      s.CreatedAt,
		LastAccessedAt: s.LastAccess(),
		State:          s.Sim.State(),
	}
	out, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session data: %w", err)
	}
	return out, nil
}

func (c codec) unmarshal(raw []byte) (*service.Session, error) {
	var data PersistedSessionData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session data: %w", err)
	}
	if data.State == nil {
		return nil, fmt.Errorf("session %s has no state", data.ID)
	}

	opts := append(append([]engine.Option{}, c.simOpts...), engine.WithSize(data.State.Width, data.State.Height))
	sim, err := engine.NewSimulation(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create simulation: %w", err)
	}
	if err := sim.Restore(data.State); err != nil {
		return nil, fmt.Errorf("failed to restore state: %w", err)
	}

	s := &service.Session{
		ID:        data.ID,
		Sim:       sim,
		World:     data.World,
		CreatedAt: data.CreatedAt,
	}
	s.Touch(data.LastAccessedAt)
	return s, nil
}

// storageID is the form of id used in file names and keys. Session IDs are
// case-insensitive.
func storageID(id string) string {
	return strings.ToLower(id)
}

// validID rejects IDs that cannot be used as file names or key suffixes
func validID(id string) error {
	if id == "" || strings.ContainsAny(id, `/\:. `) {
		return fmt.Errorf("%q: %w", id, ErrInvalidSessionID)
	}
	return nil
}
