package grid_world

import "sort"

// MoveCounts holds a number of moves per direction. It is used both for the
// moves an agent actually attempted and for best-route labels.
type MoveCounts struct {
	Up    int `json:"up"`
	Down  int `json:"down"`
	Left  int `json:"left"`
	Right int `json:"right"`
}

// Get returns the count for a direction; non-directions are always zero.
func (mc MoveCounts) Get(a Action) int {
	switch a {
	case UP:
		return mc.Up
	case DOWN:
		return mc.Down
	case LEFT:
		return mc.Left
	case RIGHT:
		return mc.Right
	}
	return 0
}

func (mc *MoveCounts) incr(a Action, n int) {
	switch a {
	case UP:
		mc.Up += n
	case DOWN:
		mc.Down += n
	case LEFT:
		mc.Left += n
	case RIGHT:
		mc.Right += n
	}
}

// Total is the sum over all directions.
func (mc MoveCounts) Total() int {
	return mc.Up + mc.Down + mc.Left + mc.Right
}

// Vector returns the counts in Directions order.
func (mc MoveCounts) Vector() []float64 {
	vec := make([]float64, len(Directions))
	for i, dir := range Directions {
		vec[i] = float64(mc.Get(dir))
	}
	return vec
}

// RouteKey identifies an episode by its starting player and goal positions.
// It is fixed when the episode begins.
type RouteKey struct {
	Player Point `json:"player"`
	Goal   Point `json:"goal"`
}

// BestRoute returns the Manhattan-optimal move counts from player to goal on a
// grid of cell size dim. There are no diagonal moves, so at most one of Up/Down
// and one of Left/Right is non-zero.
func BestRoute(player, goal Point, dim int) (best MoveCounts) {
	diff := goal.Sub(player)
	horz := diff.X / dim
	vert := diff.Y / dim

	if vert < 0 {
		best.Up = -vert
	} else if vert > 0 {
		best.Down = vert
	}
	if horz > 0 {
		best.Right = horz
	} else if horz < 0 {
		best.Left = -horz
	}
	return
}

// Ledger maps each episode's route key to the moves attempted during it.
type Ledger map[RouteKey]MoveCounts

// Keys returns the ledger's keys sorted by player then goal position (y before
// x), giving exports a stable row order.
func (l Ledger) Keys() []RouteKey {
	keys := make([]RouteKey, 0, len(l))
	for key := range l {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.Player != b.Player {
			return lessPoint(a.Player, b.Player)
		}
		return lessPoint(a.Goal, b.Goal)
	})
	return keys
}

func lessPoint(a, b Point) bool {
	if a.Y != b.Y {
		return a.Y < b.Y
	}
	return a.X < b.X
}

// MergeLedgers folds src into dst and returns how many of src's keys were
// already present. Colliding entries have their counts summed.
// Worker ledgers are expected to be disjoint, but nothing guarantees it since
// their keys come from independent random draws.
func MergeLedgers(dst, src Ledger) (collisions int) {
	for key, counts := range src {
		prev, ok := dst[key]
		if ok {
			collisions++
			for _, dir := range Directions {
				prev.incr(dir, counts.Get(dir))
			}
			dst[key] = prev
			continue
		}
		dst[key] = counts
	}
	return
}
