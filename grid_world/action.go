package grid_world

import (
	"errors"
	"fmt"
	"strings"
)

// Action is one of the four movement directions or the QUIT sentinel.
// The zero value is not a valid action.
type Action int

const (
	UP Action = iota + 1
	DOWN
	LEFT
	RIGHT
	QUIT
)

// Directions are the movement actions, in the canonical order used for ledger
// vectors, training labels and model outputs.
var Directions = [4]Action{UP, DOWN, LEFT, RIGHT}

var actionNames = map[Action]string{
	UP:    "UP",
	DOWN:  "DOWN",
	LEFT:  "LEFT",
	RIGHT: "RIGHT",
	QUIT:  "QUIT",
}

func (a Action) String() string {
	if name, ok := actionNames[a]; ok {
		return name
	}
	return fmt.Sprintf("Action(%d)", int(a))
}

// IsDirection reports whether a moves the player.
func (a Action) IsDirection() bool {
	return a >= UP && a <= RIGHT
}

// delta is the unit displacement of a direction in grid cells. Screen
// coordinates are used, so UP decreases y.
func (a Action) delta() Point {
	switch a {
	case UP:
		return Pt(0, -1)
	case DOWN:
		return Pt(0, 1)
	case LEFT:
		return Pt(-1, 0)
	case RIGHT:
		return Pt(1, 0)
	}
	return Point{}
}

// ParseAction converts an action name (case-insensitive) to an Action.
func ParseAction(name string) (Action, error) {
	upper := strings.ToUpper(strings.TrimSpace(name))
	for action, actionName := range actionNames {
		if actionName == upper {
			return action, nil
		}
	}
	return 0, &InvalidActionError{Symbol: name}
}

// InvalidActionError is returned for actions outside the closed set, whether
// produced by an input symbol with no mapping or by an action source. Failing
// here keeps bad actions out of the ledger.
type InvalidActionError struct {
	Action Action
	Symbol string
}

func (e *InvalidActionError) Error() string {
	if e.Symbol != "" {
		return fmt.Sprintf("invalid action: unmapped symbol %q", e.Symbol)
	}
	return fmt.Sprintf("invalid action: %v", e.Action)
}

var (
	// ErrConfiguration is wrapped by every construction-time validation failure.
	ErrConfiguration = errors.New("invalid simulator configuration")
	// ErrNoEpisode is returned by Move before the first Reset.
	ErrNoEpisode = errors.New("no episode in progress: Reset must be called")
	// ErrLedgerExhausted is returned by Reset when every reachable start/goal pair
	// already has a ledger entry.
	ErrLedgerExhausted = errors.New("route ledger exhausted: no unused start/goal pair")
	// ErrInvalidRoute is returned by ResetTo for routes that cannot start an episode.
	ErrInvalidRoute = errors.New("invalid route")
	// ErrEmptyLedger is returned when exporting a ledger with no entries.
	ErrEmptyLedger = errors.New("route ledger is empty")
)
