package script

import (
	"context"
	"errors"
	"fmt"

	"github.com/alecthomas/participle/v2/lexer"
	"go.uber.org/zap"

	"github.com/wricardo/charles/game/engine"
	"github.com/wricardo/charles/game/routines"
)

var (
	ErrParse       = errors.New("script parse error")
	ErrActionLimit = errors.New("script action limit reached")
)

// DefaultMaxActions bounds a run when the caller sets no limit
const DefaultMaxActions = 100000

// RuntimeError reports the statement that failed. errors.Is matches the
// underlying cause, usually an engine.IllegalAction.
type RuntimeError struct {
	Pos       lexer.Position
	Statement string
	Err       error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Pos, e.Statement, e.Err)
}

func (e *RuntimeError) Unwrap() error { return e.Err }

// Stats summarises a run
type Stats struct {
	Actions    int `json:"actions"`
	Statements int `json:"statements"`
}

// Runner executes programs against a robot
type Runner struct {
	robot      engine.Robot
	maxActions int
	logger     *zap.Logger
}

// RunnerOption configures a Runner
type RunnerOption func(*Runner)

// WithMaxActions caps the number of actions and loop iterations of a run
func WithMaxActions(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.maxActions = n
		}
	}
}

// WithLogger sets the runner's logger
func WithLogger(l *zap.Logger) RunnerOption {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRunner creates a runner driving robot
func NewRunner(robot engine.Robot, opts ...RunnerOption) *Runner {
	r := &Runner{robot: robot, maxActions: DefaultMaxActions, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type blockKind int

const (
	plainBlock blockKind = iota
	repeatBlock
	whileBlock
)

// frame is one open block on the explicit execution stack
type frame struct {
	kind      blockKind
	stmts     []*Statement
	idx       int
	remaining int
	cond      *Condition
}

// Run executes prog until it ends, an action fails, the action limit is
// reached or ctx is done. Blocks are kept on an explicit stack so deeply
// nested or long running programs do not grow the Go stack.
func (r *Runner) Run(ctx context.Context, prog *Program) (Stats, error) {
	var stats Stats
	if prog == nil {
		return stats, nil
	}

	stack := []*frame{{kind: plainBlock, stmts: prog.Statements}}
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return stats, fmt.Errorf("script interrupted: %w", err)
		}

		top := stack[len(stack)-1]
		if top.idx >= len(top.stmts) {
			switch top.kind {
			case repeatBlock:
				top.remaining--
				if top.remaining > 0 {
					top.idx = 0
					continue
				}
			case whileBlock:
				if r.eval(top.cond) {
					if err := r.tick(&stats, 1); err != nil {
						return stats, err
					}
					top.idx = 0
					continue
				}
			}
			stack = stack[:len(stack)-1]
			continue
		}

		s := top.stmts[top.idx]
		top.idx++
		stats.Statements++

		switch {
		case s.Action != nil:
			if err := r.exec(&stats, s.Action); err != nil {
				return stats, err
			}
		case s.Repeat != nil:
			if s.Repeat.Count > 0 && len(s.Repeat.Body) > 0 {
				stack = append(stack, &frame{kind: repeatBlock, stmts: s.Repeat.Body, remaining: s.Repeat.Count})
			}
		case s.While != nil:
			if r.eval(s.While.Cond) {
				if err := r.tick(&stats, 1); err != nil {
					return stats, err
				}
				stack = append(stack, &frame{kind: whileBlock, stmts: s.While.Body, cond: s.While.Cond})
			}
		case s.If != nil:
			body := s.If.Else
			if r.eval(s.If.Cond) {
				body = s.If.Then
			}
			if len(body) > 0 {
				stack = append(stack, &frame{kind: plainBlock, stmts: body})
			}
		}
	}

	r.logger.Debug("script finished",
		zap.Int("actions", stats.Actions),
		zap.Int("statements", stats.Statements))
	return stats, nil
}

// RunSource parses and runs source
func (r *Runner) RunSource(ctx context.Context, source string) (Stats, error) {
	prog, err := Parse(source)
	if err != nil {
		return Stats{}, err
	}
	return r.Run(ctx, prog)
}

func (r *Runner) tick(stats *Stats, n int) error {
	if stats.Actions+n > r.maxActions {
		return fmt.Errorf("%w (%d)", ErrActionLimit, r.maxActions)
	}
	stats.Actions += n
	return nil
}

func (r *Runner) eval(c *Condition) bool {
	var v bool
	switch c.Name {
	case "on_ball":
		v = r.robot.IsOnBall()
	case "wall_ahead":
		v = r.robot.IsWallAhead()
	case "north":
		v = r.robot.IsFacingNorth()
	}
	return v != c.Not
}

func (r *Runner) exec(stats *Stats, a *Action) error {
	count := 1
	if a.Count != nil {
		count = *a.Count
	}

	cost := 1
	switch a.Name {
	case "step", "steps", "draw_line_with_balls":
		cost = max(count, 1)
	}
	if err := r.tick(stats, cost); err != nil {
		return &RuntimeError{Pos: a.Pos, Statement: a.Name, Err: err}
	}

	var err error
	switch a.Name {
	case "step", "steps":
		err = routines.Steps(r.robot, count)
	case "turn_left":
		r.robot.TurnLeft()
	case "turn_right":
		r.robot.TurnRight()
	case "put_ball":
		err = r.robot.PutBall()
	case "get_ball":
		err = r.robot.PickUpBall()
	case "draw_line_with_balls":
		err = routines.DrawLineWithBalls(r.robot, count)
	case "rest":
		r.robot.SetStepDelay(count)
	case "follow_path":
		_, err = routines.FollowPath(r.robot, optional(a.Count))
	case "fill_cave":
		err = routines.FillCave(r.robot, optional(a.Count))
	case "circle_church":
		err = routines.CircleChurch(r.robot, optional(a.Count))
	default:
		err = fmt.Errorf("unknown action %q", a.Name)
	}
	if err != nil {
		return &RuntimeError{Pos: a.Pos, Statement: a.Name, Err: err}
	}
	return nil
}

func optional(n *int) int {
	if n == nil {
		return 0
	}
	return *n
}
