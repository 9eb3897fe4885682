package reinforcement

import (
	"fmt"
	"math/rand"

	. "gridchase/grid_world"
)

// RandomPolicy picks uniformly among the four directions. It never quits, so
// episodes driven by it need a step cap or a deadline.
func RandomPolicy(rng *rand.Rand) ActionSource {
	return func(_, _ Point) Action {
		return Directions[rng.Intn(len(Directions))]
	}
}

// OraclePolicy walks the best route: vertical moves first, then horizontal.
// At the goal there is nothing left to do and it quits.
func OraclePolicy(dim int) ActionSource {
	return func(player, goal Point) Action {
		best := BestRoute(player, goal, dim)
		for _, dir := range Directions {
			if best.Get(dir) > 0 {
				return dir
			}
		}
		return QUIT
	}
}

// ScriptedPolicy replays the given actions in order and then quits.
func ScriptedPolicy(actions ...Action) ActionSource {
	i := 0
	return func(_, _ Point) (action Action) {
		if i >= len(actions) {
			return QUIT
		}
		action = actions[i]
		i++
		return
	}
}

// EpsilonPolicy follows exploit, except with probability epsilon it defers to explore.
func EpsilonPolicy(rng *rand.Rand, epsilon float64, explore, exploit ActionSource) ActionSource {
	return func(player, goal Point) Action {
		if rng.Float64() < epsilon {
			return explore(player, goal)
		}
		return exploit(player, goal)
	}
}

// PolicyByName builds one of the built-in policies: random, oracle, or
// epsilon (oracle with random exploration at the given rate).
func PolicyByName(name string, rng *rand.Rand, dim int, epsilon float64) (ActionSource, error) {
	switch name {
	case "", "random":
		return RandomPolicy(rng), nil
	case "oracle":
		return OraclePolicy(dim), nil
	case "epsilon":
		return EpsilonPolicy(rng, epsilon, RandomPolicy(rng), OraclePolicy(dim)), nil
	}
	return nil, fmt.Errorf("unknown policy %q", name)
}
