package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wricardo/charles/game/engine"
	"github.com/wricardo/charles/game/service"
	"github.com/wricardo/charles/game/worldfile"
)

var (
	ErrSessionNotFound      = errors.New("session not found")
	ErrSessionAlreadyExists = errors.New("session already exists")
	ErrInvalidSessionID     = errors.New("invalid session ID")
)

// RendererFactory builds the renderer attached to a session's simulation
// when the session enters memory
type RendererFactory func(sessionID string) engine.Renderer

// Manager handles session lifecycle
type Manager struct {
	sessions    map[string]*service.Session
	detach      map[string]func()
	persistence SessionPersistence
	simOpts     []engine.Option
	renderers   RendererFactory
	logger      *zap.Logger
	mu          sync.RWMutex
}

// Option configures a Manager
type Option func(*Manager)

// WithPersistence stores sessions through p
func WithPersistence(p SessionPersistence) Option {
	return func(m *Manager) { m.persistence = p }
}

// WithSimulationOptions configures the simulations of new sessions
func WithSimulationOptions(opts ...engine.Option) Option {
	return func(m *Manager) { m.simOpts = append(m.simOpts, opts...) }
}

// WithRendererFactory attaches a renderer to every session's simulation
func WithRendererFactory(f RendererFactory) Option {
	return func(m *Manager) { m.renderers = f }
}

// WithLogger sets the manager's logger
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewManager creates a new session manager
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		sessions: make(map[string]*service.Session),
		detach:   make(map[string]func()),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// add stores s under its lower-cased ID and attaches the renderer. Callers
// hold m.mu.
func (m *Manager) add(s *service.Session) {
	key := storageID(s.ID)
	m.sessions[key] = s
	if m.renderers != nil {
		m.detach[key] = s.Sim.AttachRenderer(m.renderers(s.ID))
	}
}

// remove drops a session from memory and detaches its renderer. Callers
// hold m.mu.
func (m *Manager) remove(key string) {
	delete(m.sessions, key)
	if detach, ok := m.detach[key]; ok {
		detach()
		delete(m.detach, key)
	}
}

// Create creates a new session. An empty id gets a generated one. When d is
// not nil it is loaded into the new simulation under the name world.
func (m *Manager) Create(id, world string, d *worldfile.Description) (*service.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id == "" {
		id = m.generateSessionID()
	} else if err := validID(id); err != nil {
		return nil, err
	}

	if m.sessionExists(id) {
		return nil, ErrSessionAlreadyExists
	}

	sim, err := engine.NewSimulation(m.simOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create simulation: %w", err)
	}
	if d != nil {
		if err := sim.LoadWorld(world, d); err != nil {
			return nil, err
		}
	}

	now := time.Now()
	session := &service.Session{
		ID:        id,
		Sim:       sim,
		World:     world,
		CreatedAt: now,
	}
	session.Touch(now)
	m.add(session)

	if m.persistence != nil {
		if err := m.persistence.Save(session); err != nil {
			m.logger.Warn("failed to persist session", zap.String("session", id), zap.Error(err))
		}
	}
	return session, nil
}

// Get retrieves a session by ID (case-insensitive), loading it from
// persistence when it is not in memory
func (m *Manager) Get(id string) (*service.Session, error) {
	m.mu.RLock()
	session, exists := m.sessions[storageID(id)]
	m.mu.RUnlock()
	if exists {
		return session, nil
	}

	key := storageID(id)
	if m.persistence == nil || !m.persistence.Exists(key) {
		return nil, ErrSessionNotFound
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if session, exists := m.sessions[key]; exists {
		return session, nil
	}
	session, err := m.persistence.Load(key)
	if err != nil {
		return nil, fmt.Errorf("failed to load persisted session: %w", err)
	}
	m.add(session)
	return session, nil
}

// List returns all sessions in memory
func (m *Manager) List() []*service.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*service.Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		result = append(result, session)
	}
	return result
}

// Delete removes a session from memory and from persistence
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := storageID(id)
	_, inMemory := m.sessions[key]
	if inMemory {
		m.remove(key)
	}

	if m.persistence != nil && m.persistence.Exists(key) {
		if err := m.persistence.Delete(key); err != nil {
			return fmt.Errorf("failed to delete persisted session: %w", err)
		}
		return nil
	}

	if !inMemory {
		return ErrSessionNotFound
	}
	return nil
}

// DeleteFromMemory removes a session from memory only
func (m *Manager) DeleteFromMemory(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := storageID(id)
	if _, exists := m.sessions[key]; !exists {
		return ErrSessionNotFound
	}
	m.remove(key)
	return nil
}

// UpdateLastAccessed records an access to a session
func (m *Manager) UpdateLastAccessed(id string) error {
	m.mu.RLock()
	session, exists := m.sessions[storageID(id)]
	m.mu.RUnlock()
	if !exists {
		return ErrSessionNotFound
	}
	session.Touch(time.Now())
	return nil
}

// Save writes a session to persistence. The caller holds the session lock.
func (m *Manager) Save(id string) error {
	if m.persistence == nil {
		return nil
	}

	m.mu.RLock()
	session, exists := m.sessions[storageID(id)]
	m.mu.RUnlock()
	if !exists {
		return ErrSessionNotFound
	}
	return m.persistence.Save(session)
}

// CleanupExpiredSessions removes sessions from memory that have not been
// accessed within maxAge. Persisted copies stay and load again on demand.
func (m *Manager) CleanupExpiredSessions(maxAge time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for key, session := range m.sessions {
		if session.LastAccess().Before(cutoff) {
			m.remove(key)
			removed++
		}
	}
	if removed > 0 {
		m.logger.Info("expired idle sessions", zap.Int("removed", removed))
	}
	return removed
}

// RunCleanup calls CleanupExpiredSessions every interval until ctx is done
func (m *Manager) RunCleanup(ctx context.Context, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.CleanupExpiredSessions(maxAge)
		}
	}
}

// PruneOrphans drops in-memory sessions whose persisted copy has been
// removed outside the manager, e.g. a deleted session file
func (m *Manager) PruneOrphans() int {
	if m.persistence == nil {
		return 0
	}

	pruned := 0
	for _, session := range m.List() {
		if m.persistence.Exists(session.ID) {
			continue
		}
		if err := m.DeleteFromMemory(session.ID); err == nil {
			pruned++
			m.logger.Info("pruned session without persisted copy", zap.String("session", session.ID))
		}
	}
	return pruned
}

// RunPruning calls PruneOrphans every interval until ctx is done
func (m *Manager) RunPruning(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.PruneOrphans()
		}
	}
}

// Count returns the number of sessions in memory
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// generateSessionID returns a random 4-character hex ID not in use
func (m *Manager) generateSessionID() string {
	bytes := make([]byte, 2)
	for {
		rand.Read(bytes)
		id := hex.EncodeToString(bytes)
		if !m.sessionExists(id) {
			return id
		}
	}
}

func (m *Manager) sessionExists(id string) bool {
	_, exists := m.sessions[storageID(id)]
	return exists
}

// LoadPersistedSessions loads all persisted sessions into memory
func (m *Manager) LoadPersistedSessions() error {
	if m.persistence == nil {
		return nil
	}

	ids, err := m.persistence.ListAll()
	if err != nil {
		return fmt.Errorf("failed to list persisted sessions: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	loaded := 0
	for _, id := range ids {
		if m.sessionExists(id) {
			continue
		}
		session, err := m.persistence.Load(id)
		if err != nil {
			m.logger.Warn("failed to load persisted session", zap.String("session", id), zap.Error(err))
			continue
		}
		m.add(session)
		loaded++
	}

	if loaded > 0 {
		m.logger.Info("loaded persisted sessions", zap.Int("count", loaded))
	}
	return nil
}

// SaveAllSessions saves every in-memory session, taking each session's lock
func (m *Manager) SaveAllSessions() error {
	if m.persistence == nil {
		return nil
	}

	sessions := m.List()
	failed := 0
	for _, session := range sessions {
		session.Lock()
		err := m.persistence.Save(session)
		session.Unlock()
		if err != nil {
			m.logger.Warn("failed to save session", zap.String("session", session.ID), zap.Error(err))
			failed++
		}
	}

	if failed > 0 {
		return fmt.Errorf("failed to save %d sessions", failed)
	}
	return nil
}
