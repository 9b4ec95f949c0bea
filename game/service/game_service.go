package service

import (
	"context"

	"github.com/wricardo/charles/game/engine"
	"github.com/wricardo/charles/game/worldfile"
	"github.com/wricardo/charles/game/worlds"
)

// WorldService defines every session-scoped operation the transports use
type WorldService interface {
	// Session Management
	CreateSession(ctx context.Context, world string) (*SessionInfo, error)
	GetSession(ctx context.Context, sessionID string) (*SessionInfo, error)
	ListSessions(ctx context.Context) ([]*SessionInfo, error)
	DeleteSession(ctx context.Context, sessionID string) error

	// Robot Operations
	Act(ctx context.Context, sessionID, action string) (*ActionResult, error)
	RunProgram(ctx context.Context, sessionID, source string) (*ProgramResult, error)
	SetStepDelay(ctx context.Context, sessionID string, ms int) (*engine.State, error)
	Reset(ctx context.Context, sessionID string) (*engine.State, error)

	// World Operations
	Generate(ctx context.Context, sessionID, layout string, seed *int64) (*GenerateResult, error)
	LoadWorld(ctx context.Context, sessionID, world string) (*engine.State, error)
	SaveWorld(ctx context.Context, sessionID, world string) error
	ListWorlds(ctx context.Context) ([]*worlds.Info, error)

	// State
	GetState(ctx context.Context, sessionID string) (*engine.State, error)
	GetHistory(ctx context.Context, sessionID string, opts HistoryOptions) (*HistoryResponse, error)
}

// SessionManager defines session storage operations. Create builds a fresh
// simulation and loads d into it when d is not nil.
type SessionManager interface {
	Create(id, world string, d *worldfile.Description) (*Session, error)
	Get(id string) (*Session, error)
	List() []*Session
	Delete(id string) error
	UpdateLastAccessed(id string) error
	Save(id string) error
}

// WorldCatalog gives access to the named world files
type WorldCatalog interface {
	Load(name string) (*worldfile.Description, error)
	List() ([]*worlds.Info, error)
	Save(name string, d *worldfile.Description) error
}
