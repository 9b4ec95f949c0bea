package engine

import (
	"errors"
	"fmt"
)

// Kind classifies an illegal robot action
type Kind int

const (
	InvalidStart Kind = iota + 1
	StepIntoWall
	PickUpEmptyCell
	PutOnOccupiedCell
	WorldLoadFailed
)

var kindNames = map[Kind]string{
	InvalidStart:      "invalid_start",
	StepIntoWall:      "step_into_wall",
	PickUpEmptyCell:   "pick_up_empty_cell",
	PutOnOccupiedCell: "put_on_occupied_cell",
	WorldLoadFailed:   "world_load_failed",
}

var kindMessages = map[Kind]string{
	InvalidStart:      "Charles is not allowed at this position.",
	StepIntoWall:      "Charles bumped into a wall...",
	PickUpEmptyCell:   "Charles can not pick up a ball because there is no ball at this position.",
	PutOnOccupiedCell: "Charles can not put a ball here because there is already a ball.",
	WorldLoadFailed:   "It was not possible to open the labyrinth. Probably it is in the wrong directory!",
}

// String returns the snake_case kind name used in JSON and logs
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Message returns the user-facing text for the kind
func (k Kind) Message() string {
	return kindMessages[k]
}

// IllegalAction is returned when the robot is asked to do something the
// world does not allow. The action has had no effect.
type IllegalAction struct {
	Kind Kind
	// Err is the underlying cause, set only for WorldLoadFailed
	Err error
}

func (e *IllegalAction) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s (%v)", e.Kind.Message(), e.Err)
	}
	return e.Kind.Message()
}

func (e *IllegalAction) Unwrap() error { return e.Err }

// Is matches any IllegalAction of the same kind
func (e *IllegalAction) Is(target error) bool {
	t, ok := target.(*IllegalAction)
	return ok && t.Kind == e.Kind
}

var (
	ErrInvalidStart       = &IllegalAction{Kind: InvalidStart}
	ErrStepIntoWall       = &IllegalAction{Kind: StepIntoWall}
	ErrPickUpEmptyCell    = &IllegalAction{Kind: PickUpEmptyCell}
	ErrPutOnOccupiedCell  = &IllegalAction{Kind: PutOnOccupiedCell}
	ErrWorldLoadFailed    = &IllegalAction{Kind: WorldLoadFailed}
	ErrUnknownAction      = errors.New("unknown action")
	ErrUnknownLayout      = errors.New("unknown layout")
	ErrStateSizeMismatch  = errors.New("state does not match the world size")
	ErrInvalidStateLayout = errors.New("invalid state layout")
)

func worldLoadFailed(cause error) error {
	return &IllegalAction{Kind: WorldLoadFailed, Err: cause}
}

// KindOf returns the IllegalAction kind carried by err, or 0 when err is not
// an illegal action
func KindOf(err error) Kind {
	var ia *IllegalAction
	if errors.As(err, &ia) {
		return ia.Kind
	}
	return 0
}
