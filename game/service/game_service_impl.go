package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wricardo/charles/game/engine"
	"github.com/wricardo/charles/game/script"
	"github.com/wricardo/charles/game/worldfile"
	"github.com/wricardo/charles/game/worlds"
)

var ErrNoCatalog = errors.New("no world catalog configured")

// worldServiceImpl implements the WorldService interface
type worldServiceImpl struct {
	sessions   SessionManager
	worlds     WorldCatalog
	logger     *zap.Logger
	maxActions int

	// mu orders session creation and deletion; each session has its own
	// lock for the simulation
	mu sync.RWMutex
}

// Option configures the service
type Option func(*worldServiceImpl)

// WithLogger sets the service logger
func WithLogger(l *zap.Logger) Option {
	return func(s *worldServiceImpl) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMaxActions caps the actions a single RunProgram call may take
func WithMaxActions(n int) Option {
	return func(s *worldServiceImpl) {
		if n > 0 {
			s.maxActions = n
		}
	}
}

// NewWorldService creates a new service instance. catalog may be nil, in
// which case only the generated layouts are available.
func NewWorldService(sessions SessionManager, catalog WorldCatalog, opts ...Option) WorldService {
	s := &worldServiceImpl{
		sessions:   sessions,
		worlds:     catalog,
		logger:     zap.NewNop(),
		maxActions: script.DefaultMaxActions,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *worldServiceImpl) session(id string) (*Session, error) {
	sess, err := s.sessions.Get(id)
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", id, err)
	}
	if err := s.sessions.UpdateLastAccessed(id); err != nil {
		s.logger.Debug("update last access", zap.String("session", id), zap.Error(err))
	}
	return sess, nil
}

func (s *worldServiceImpl) persist(id string) {
	if err := s.sessions.Save(id); err != nil {
		s.logger.Warn("failed to persist session", zap.String("session", id), zap.Error(err))
	}
}

// snapshot returns the state without the history, which has its own
// paginated endpoint
func snapshot(sim *engine.Simulation) *engine.State {
	return sim.Snapshot()
}

// peek returns the session's state without waiting for a running program.
// busy is set when the state comes from the program's last published
// snapshot; it is nil when nothing was published yet.
func peek(sess *Session) (st *engine.State, busy bool) {
	if !sess.TryLock() {
		return sess.Published(), true
	}
	defer sess.Unlock()
	return snapshot(sess.Sim), false
}

// publishingRobot publishes a snapshot after every action of a program so
// readers can follow it without the simulation lock
type publishingRobot struct {
	engine.Robot
	sess *Session
}

func (r publishingRobot) publish() { r.sess.Publish(snapshot(r.sess.Sim)) }

func (r publishingRobot) Step() error {
	err := r.Robot.Step()
	r.publish()
	return err
}

func (r publishingRobot) TurnLeft() {
	r.Robot.TurnLeft()
	r.publish()
}

func (r publishingRobot) TurnRight() {
	r.Robot.TurnRight()
	r.publish()
}

func (r publishingRobot) PickUpBall() error {
	err := r.Robot.PickUpBall()
	r.publish()
	return err
}

func (r publishingRobot) PutBall() error {
	err := r.Robot.PutBall()
	r.publish()
	return err
}

func (r publishingRobot) SetStepDelay(ms int) {
	r.Robot.SetStepDelay(ms)
	r.publish()
}

func info(sess *Session, st *engine.State) *SessionInfo {
	return &SessionInfo{
		ID:             sess.ID,
		World:          sess.World,
		CreatedAt:      sess.CreatedAt,
		LastAccessedAt: sess.LastAccess(),
		State:          st,
	}
}

// CreateSession creates a session showing a named world file or a layout.
// An empty name gives the bordered empty world.
func (s *worldServiceImpl) CreateSession(ctx context.Context, world string) (*SessionInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if world == "" {
		world = engine.LayoutEmpty
	}

	var d *worldfile.Description
	layout := slices.Contains(engine.Layouts, world)
	if !layout {
		if s.worlds == nil {
			return nil, fmt.Errorf("world %q: %w", world, ErrNoCatalog)
		}
		var err error
		if d, err = s.worlds.Load(world); err != nil {
			return nil, fmt.Errorf("world %q: %w", world, err)
		}
	}

	sess, err := s.sessions.Create("", world, d)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	sess.Lock()
	defer sess.Unlock()
	if layout && world != engine.LayoutEmpty {
		if _, err := sess.Sim.Generate(world); err != nil {
			_ = s.sessions.Delete(sess.ID)
			return nil, fmt.Errorf("generate %s: %w", world, err)
		}
	}
	s.persist(sess.ID)

	s.logger.Info("session created", zap.String("session", sess.ID), zap.String("world", world))
	return info(sess, snapshot(sess.Sim)), nil
}

// GetSession retrieves session information. It does not wait for a running
// program.
func (s *worldServiceImpl) GetSession(ctx context.Context, sessionID string) (*SessionInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}
	st, busy := peek(sess)
	i := info(sess, st)
	i.Busy = busy
	return i, nil
}

// ListSessions returns all active sessions. Sessions busy running a program
// are listed with the program's last published state.
func (s *worldServiceImpl) ListSessions(ctx context.Context) ([]*SessionInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions := s.sessions.List()
	result := make([]*SessionInfo, 0, len(sessions))
	for _, sess := range sessions {
		st, busy := peek(sess)
		i := info(sess, st)
		i.Busy = busy
		result = append(result, i)
	}
	return result, nil
}

// DeleteSession removes a session
func (s *worldServiceImpl) DeleteSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.sessions.Delete(sessionID); err != nil {
		return fmt.Errorf("session %s: %w", sessionID, err)
	}
	s.logger.Info("session deleted", zap.String("session", sessionID))
	return nil
}

// Act runs a single named action. Illegal actions are reported in the
// result, not as an error.
func (s *worldServiceImpl) Act(ctx context.Context, sessionID, action string) (*ActionResult, error) {
	sess, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}
	sess.Lock()
	defer sess.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	from := sess.Sim.Agent().AgentPosition()
	err = sess.Sim.Do(action)
	if errors.Is(err, engine.ErrUnknownAction) {
		return nil, err
	}

	result := &ActionResult{
		Action:  action,
		Success: err == nil,
		From:    from,
		To:      sess.Sim.Agent().AgentPosition(),
		State:   snapshot(sess.Sim),
	}
	if last := sess.Sim.LastAction(); last != nil {
		result.Number = last.Number
	}
	if err != nil {
		kind := engine.KindOf(err)
		result.Error = kind.String()
		result.Message = kind.Message()
	}

	s.persist(sessionID)
	return result, nil
}

// RunProgram parses source and runs it on the session's robot. Syntax errors
// are returned as errors wrapping script.ErrParse; everything that stops a
// parsed program is reported in the result.
func (s *worldServiceImpl) RunProgram(ctx context.Context, sessionID, source string) (*ProgramResult, error) {
	prog, err := script.Parse(source)
	if err != nil {
		return nil, err
	}

	sess, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}
	sess.Lock()
	defer sess.Unlock()
	sess.Publish(snapshot(sess.Sim))
	defer sess.Publish(nil)

	start := time.Now()
	robot := publishingRobot{Robot: sess.Sim, sess: sess}
	runner := script.NewRunner(robot, script.WithMaxActions(s.maxActions), script.WithLogger(s.logger))
	stats, runErr := runner.Run(ctx, prog)

	result := &ProgramResult{
		Success:    runErr == nil,
		StopReason: StopCompleted,
		Stats:      stats,
	}
	if runErr != nil {
		var rerr *script.RuntimeError
		if errors.As(runErr, &rerr) {
			result.Line = rerr.Pos.Line
			result.Column = rerr.Pos.Column
		}

		switch kind := engine.KindOf(runErr); {
		case errors.Is(runErr, context.Canceled), errors.Is(runErr, context.DeadlineExceeded):
			result.StopReason = StopCancelled
		case errors.Is(runErr, script.ErrActionLimit):
			result.StopReason = StopActionLimit
		case kind != 0:
			result.StopReason = StopFailed
			result.Error = kind.String()
			result.Message = kind.Message()
		default:
			result.StopReason = StopRoutine
		}
		if result.Message == "" {
			result.Message = runErr.Error()
		}
	}
	result.State = snapshot(sess.Sim)

	s.persist(sessionID)
	s.logger.Info("program finished",
		zap.String("session", sessionID),
		zap.String("stop", result.StopReason),
		zap.Int("actions", stats.Actions),
		zap.Duration("took", time.Since(start)))
	return result, nil
}

// SetStepDelay changes the pause after each successful action
func (s *worldServiceImpl) SetStepDelay(ctx context.Context, sessionID string, ms int) (*engine.State, error) {
	sess, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}
	sess.Lock()
	defer sess.Unlock()

	sess.Sim.SetStepDelay(ms)
	s.persist(sessionID)
	return snapshot(sess.Sim), nil
}

// Reset clears the session's world and puts the robot back at the start
func (s *worldServiceImpl) Reset(ctx context.Context, sessionID string) (*engine.State, error) {
	sess, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}
	sess.Lock()
	defer sess.Unlock()

	sess.Sim.Reset()
	s.persist(sessionID)
	return snapshot(sess.Sim), nil
}

// Generate runs a layout generator, optionally reseeding the random source
// first
func (s *worldServiceImpl) Generate(ctx context.Context, sessionID, layout string, seed *int64) (*GenerateResult, error) {
	sess, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}
	sess.Lock()
	defer sess.Unlock()

	if seed != nil {
		sess.Sim.Seed(*seed)
	}
	res, err := sess.Sim.Generate(layout)
	if err != nil {
		return nil, err
	}

	s.persist(sessionID)
	return &GenerateResult{Layout: res, State: snapshot(sess.Sim)}, nil
}

// LoadWorld replaces the session's world with a named world file
func (s *worldServiceImpl) LoadWorld(ctx context.Context, sessionID, world string) (*engine.State, error) {
	if s.worlds == nil {
		return nil, ErrNoCatalog
	}
	d, err := s.worlds.Load(world)
	if err != nil {
		return nil, fmt.Errorf("world %q: %w", world, err)
	}

	sess, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}
	sess.Lock()
	defer sess.Unlock()

	if err := sess.Sim.LoadWorld(world, d); err != nil {
		return nil, err
	}
	s.persist(sessionID)
	return snapshot(sess.Sim), nil
}

// SaveWorld writes the session's walls, robot and first ball as a world file
func (s *worldServiceImpl) SaveWorld(ctx context.Context, sessionID, world string) error {
	if s.worlds == nil {
		return ErrNoCatalog
	}
	sess, err := s.session(sessionID)
	if err != nil {
		return err
	}

	sess.Lock()
	d := sess.Sim.Describe()
	sess.Unlock()

	return s.worlds.Save(world, d)
}

// ListWorlds returns the available world files
func (s *worldServiceImpl) ListWorlds(ctx context.Context) ([]*worlds.Info, error) {
	if s.worlds == nil {
		return []*worlds.Info{}, nil
	}
	return s.worlds.List()
}

// GetState retrieves the current state without the history
func (s *worldServiceImpl) GetState(ctx context.Context, sessionID string) (*engine.State, error) {
	sess, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}
	if st, _ := peek(sess); st != nil {
		return st, nil
	}
	// a single action holds the lock only briefly
	sess.Lock()
	defer sess.Unlock()
	return snapshot(sess.Sim), nil
}

// GetHistory returns paginated action history
func (s *worldServiceImpl) GetHistory(ctx context.Context, sessionID string, opts HistoryOptions) (*HistoryResponse, error) {
	sess, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}
	sess.Lock()
	history := sess.Sim.History()
	sess.Unlock()

	total := len(history)

	if opts.Page < 1 {
		opts.Page = 1
	}
	if opts.Limit <= 0 {
		opts.Limit = 20
	}
	if opts.Limit > 100 {
		opts.Limit = 100
	}
	if opts.Order == "" {
		opts.Order = "desc"
	}

	totalPages := (total + opts.Limit - 1) / opts.Limit
	if totalPages == 0 {
		totalPages = 1
	}

	start := (opts.Page - 1) * opts.Limit
	end := min(start+opts.Limit, total)

	actions := []engine.HistoryEntry{}
	if opts.Order == "desc" {
		for i := total - 1 - start; i >= 0 && i >= total-end; i-- {
			actions = append(actions, history[i])
		}
	} else if start < total {
		actions = append(actions, history[start:end]...)
	}

	return &HistoryResponse{
		Actions:     actions,
		Total:       total,
		Page:        opts.Page,
		PageSize:    opts.Limit,
		TotalPages:  totalPages,
		HasNext:     opts.Page < totalPages,
		HasPrevious: opts.Page > 1,
	}, nil
}
