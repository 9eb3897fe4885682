package grid_world

import "fmt"

// ESC is the raw symbol sent for the escape key.
const ESC = "\x1b"

// KeyMap translates raw input symbols (key names, characters) into actions.
// It is configuration, not simulator state: the simulator only ever sees
// Actions.
type KeyMap map[string]Action

// DefaultKeyMap maps wasd and vim keys to the four directions, and escape or q to QUIT.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		"w": UP, "k": UP,
		"s": DOWN, "j": DOWN,
		"a": LEFT, "h": LEFT,
		"d": RIGHT, "l": RIGHT,
		ESC: QUIT, "q": QUIT,
	}
}

// KeyMapFromConfig builds a KeyMap from action names to symbols, e.g.
// {"up": ["w", "ArrowUp"]}. An empty config yields the default map.
func KeyMapFromConfig(bindings map[string][]string) (KeyMap, error) {
	if len(bindings) == 0 {
		return DefaultKeyMap(), nil
	}

	km := KeyMap{}
	for name, symbols := range bindings {
		action, err := ParseAction(name)
		if err != nil {
			return nil, fmt.Errorf("keymap: %w", err)
		}
		for _, symbol := range symbols {
			if prev, ok := km[symbol]; ok && prev != action {
				return nil, fmt.Errorf("keymap: symbol %q bound to both %v and %v", symbol, prev, action)
			}
			km[symbol] = action
		}
	}
	return km, nil
}

// Resolve returns the action bound to symbol.
func (km KeyMap) Resolve(symbol string) (Action, error) {
	if action, ok := km[symbol]; ok {
		return action, nil
	}
	return 0, &InvalidActionError{Symbol: symbol}
}

// ActionSource picks the next action from the current player and goal
// positions. Random, scripted, oracle and model-backed policies all share this
// shape, so any of them can drive a Simulator in place of live input.
type ActionSource func(player, goal Point) Action
