package grid_world

import (
	"fmt"
	"math/rand"
	"time"

	"gonum.org/v1/gonum/mat"
)

// PLAYER_DIM is the default cell size in pixels; player and goal are squares of
// this size and every move displaces the player by one cell.
const PLAYER_DIM = 16

// Config describes the grid. Height and Width are in pixels and must be
// multiples of CellDim.
type Config struct {
	Height  int
	Width   int
	CellDim int

	// Start fixes the player's position at the beginning of every episode.
	// When nil a random cell is chosen on each Reset.
	Start *Point

	Title   string
	Display bool
}

// Simulator is the player/goal chase. It holds the current episode and the
// route ledger of every episode since construction. It is not safe for
// concurrent use; run one Simulator per goroutine.
type Simulator struct {
	height, width, dim int
	start              *Point
	title              string

	rng      *rand.Rand
	renderer Renderer

	player  Point
	goal    Point
	steps   int
	key     RouteKey
	started bool

	routes map[RouteKey]*MoveCounts
	// Number of ledger entries per start position, for exhaustion checks.
	starts map[Point]int
	// Ledger entries whose start is in the play area. ResetTo may add routes
	// from edge starts, which random starts never reach.
	playAreaRoutes int
}

// NewSimulator validates cfg and returns a simulator with an empty ledger. No
// episode is started; call Reset first. A nil rng is seeded from the clock, and
// a nil renderer or cfg.Display == false disables drawing.
func NewSimulator(cfg Config, rng *rand.Rand, renderer Renderer) (*Simulator, error) {
	if cfg.CellDim == 0 {
		cfg.CellDim = PLAYER_DIM
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if renderer == nil || !cfg.Display {
		renderer = NopRenderer()
	}

	var start *Point
	if cfg.Start != nil {
		pt := *cfg.Start
		start = &pt
	}

	return &Simulator{
		height:   cfg.Height,
		width:    cfg.Width,
		dim:      cfg.CellDim,
		start:    start,
		title:    cfg.Title,
		rng:      rng,
		renderer: renderer,
		routes:   map[RouteKey]*MoveCounts{},
		starts:   map[Point]int{},
	}, nil
}

func (cfg Config) validate() error {
	switch {
	case cfg.Height <= 0 || cfg.Width <= 0:
		return fmt.Errorf("%w: dimensions must be positive, got %dx%d", ErrConfiguration, cfg.Width, cfg.Height)
	case cfg.CellDim <= 0:
		return fmt.Errorf("%w: cell size must be positive, got %d", ErrConfiguration, cfg.CellDim)
	case cfg.Height%cfg.CellDim != 0 || cfg.Width%cfg.CellDim != 0:
		return fmt.Errorf("%w: %dx%d is not a multiple of cell size %d", ErrConfiguration, cfg.Width, cfg.Height, cfg.CellDim)
	}
	// Positions are kept a full cell away from the edges, so a grid needs at least
	// two interior cells for a goal to differ from the player.
	if (cfg.Width/cfg.CellDim-1)*(cfg.Height/cfg.CellDim-1) < 2 {
		return fmt.Errorf("%w: %dx%d grid is too small for cell size %d", ErrConfiguration, cfg.Width, cfg.Height, cfg.CellDim)
	}
	if start := cfg.Start; start != nil {
		if !start.IsAligned(cfg.CellDim) {
			return fmt.Errorf("%w: start %v is not aligned to cell size %d", ErrConfiguration, *start, cfg.CellDim)
		}
		if start.X < 0 || start.X >= cfg.Width || start.Y < 0 || start.Y >= cfg.Height {
			return fmt.Errorf("%w: start %v is outside the %dx%d grid", ErrConfiguration, *start, cfg.Width, cfg.Height)
		}
	}
	return nil
}

// Reset begins a new episode: the step count is zeroed, the canvas cleared,
// and a player/goal pair is chosen whose route key is not yet in the ledger.
// The new key gets an empty ledger entry.
func (sim *Simulator) Reset() error {
	player, goal, err := sim.newRoute()
	if err != nil {
		return err
	}
	sim.begin(player, goal)
	return nil
}

// ResetTo begins an episode with a caller-chosen route, e.g. to replay or
// evaluate known routes. The route must be on the grid, have distinct
// endpoints, and not already be in the ledger.
func (sim *Simulator) ResetTo(player, goal Point) error {
	key := RouteKey{Player: player, Goal: goal}
	switch {
	case !player.IsAligned(sim.dim) || !goal.IsAligned(sim.dim):
		return fmt.Errorf("%w: %v -> %v is not aligned to cell size %d", ErrInvalidRoute, player, goal, sim.dim)
	case !sim.inPlayArea(goal) || player.X < 0 || player.X >= sim.width || player.Y < 0 || player.Y >= sim.height:
		return fmt.Errorf("%w: %v -> %v is off the grid", ErrInvalidRoute, player, goal)
	case player == goal:
		return fmt.Errorf("%w: player and goal are both %v", ErrInvalidRoute, player)
	}
	if _, seen := sim.routes[key]; seen {
		return fmt.Errorf("%w: %v -> %v is already in the ledger", ErrInvalidRoute, player, goal)
	}
	sim.begin(player, goal)
	return nil
}

func (sim *Simulator) begin(player, goal Point) {
	sim.steps = 0
	sim.renderer.Clear()

	sim.player = player
	sim.goal = goal
	sim.key = RouteKey{Player: player, Goal: goal}
	sim.routes[sim.key] = &MoveCounts{}
	sim.starts[player]++
	if sim.inPlayArea(player) {
		sim.playAreaRoutes++
	}
	sim.started = true

	sim.renderer.Draw(GOAL, sim.goal)
	sim.renderer.Draw(PLAYER, sim.player)
	sim.renderer.Present()
}

// newRoute picks a start and goal whose key is absent from the ledger.
func (sim *Simulator) newRoute() (player, goal Point, err error) {
	if sim.exhausted() {
		err = ErrLedgerExhausted
		return
	}

	for {
		if sim.start != nil {
			player = *sim.start
		} else {
			player = sim.randomCell()
		}
		// A random start whose goals are all used is simply redrawn.
		if sim.starts[player] >= sim.goalsFrom(player) {
			continue
		}

		goal = player
		for goal == player {
			goal = sim.randomCell()
		}
		if _, seen := sim.routes[RouteKey{Player: player, Goal: goal}]; !seen {
			return
		}
	}
}

// cells is the number of positions a goal or random start can occupy.
func (sim *Simulator) cells() int {
	return (sim.width/sim.dim - 1) * (sim.height/sim.dim - 1)
}

// goalsFrom is the number of distinct goals available for a start position.
func (sim *Simulator) goalsFrom(player Point) int {
	if sim.inPlayArea(player) {
		return sim.cells() - 1
	}
	return sim.cells()
}

func (sim *Simulator) exhausted() bool {
	if sim.start != nil {
		return sim.starts[*sim.start] >= sim.goalsFrom(*sim.start)
	}
	return sim.playAreaRoutes >= sim.cells()*(sim.cells()-1)
}

func (sim *Simulator) inPlayArea(pt Point) bool {
	return sim.inBounds(pt.X, sim.width) && sim.inBounds(pt.Y, sim.height)
}

// randomCell returns a grid-aligned position at least one cell from every edge.
func (sim *Simulator) randomCell() Point {
	maxX := sim.width/sim.dim - 1
	maxY := sim.height/sim.dim - 1
	return Pt(
		(sim.rng.Intn(maxX)+1)*sim.dim,
		(sim.rng.Intn(maxY)+1)*sim.dim,
	)
}

// inBounds reports whether a square of the cell size centered at c along an
// axis of length limit lies fully within [0, limit].
func (sim *Simulator) inBounds(c, limit int) bool {
	half := sim.dim / 2
	return c-half >= 0 && c+half <= limit
}

// Move attempts one move. The attempt is always counted in the ledger under the
// current route key, even when the move is rejected for leaving the screen, in
// which case the player stays put. Only accepted moves count as steps.
func (sim *Simulator) Move(action Action) error {
	if !sim.started {
		return ErrNoEpisode
	}
	if !action.IsDirection() {
		return &InvalidActionError{Action: action}
	}

	sim.routes[sim.key].incr(action, 1)

	candidate := sim.player.Add(action.delta().Scale(sim.dim))
	accepted := false
	switch action {
	case UP, DOWN:
		accepted = sim.inBounds(candidate.Y, sim.height)
	case LEFT, RIGHT:
		accepted = sim.inBounds(candidate.X, sim.width)
	}

	if accepted {
		sim.renderer.Erase(PLAYER, sim.player)
		sim.player = candidate
		sim.steps++
	}
	sim.renderer.Draw(GOAL, sim.goal)
	sim.renderer.Draw(PLAYER, sim.player)
	sim.renderer.Present()
	return nil
}

// IsDone reports whether the player has reached the goal.
func (sim *Simulator) IsDone() bool {
	return sim.started && sim.player == sim.goal
}

// BestRoute returns the optimal move counts between two points on this grid.
// It does not depend on simulator state.
func (sim *Simulator) BestRoute(player, goal Point) MoveCounts {
	return BestRoute(player, goal, sim.dim)
}

// Routes returns a copy of the route ledger.
func (sim *Simulator) Routes() Ledger {
	ledger := make(Ledger, len(sim.routes))
	for key, counts := range sim.routes {
		ledger[key] = *counts
	}
	return ledger
}

// Counts returns the ledger entry for key without copying the ledger.
func (sim *Simulator) Counts(key RouteKey) (counts MoveCounts, ok bool) {
	var entry *MoveCounts
	if entry, ok = sim.routes[key]; ok {
		counts = *entry
	}
	return
}

// ExportTrainingMatrix exports the ledger as features and best-route labels.
func (sim *Simulator) ExportTrainingMatrix() (x, y *mat.Dense, err error) {
	return ExportTrainingMatrix(sim.Routes(), sim.dim)
}

func (sim *Simulator) Player() Point { return sim.player }
func (sim *Simulator) Goal() Point   { return sim.goal }

// Steps is the number of accepted moves in the current episode.
func (sim *Simulator) Steps() int { return sim.steps }

// Key is the current episode's route key, fixed at Reset.
func (sim *Simulator) Key() RouteKey { return sim.key }

func (sim *Simulator) Width() int    { return sim.width }
func (sim *Simulator) Height() int   { return sim.height }
func (sim *Simulator) CellDim() int  { return sim.dim }
func (sim *Simulator) Title() string { return sim.title }

// Observation is the model input for the current state: player x/y, goal x/y.
func (sim *Simulator) Observation() []float64 {
	return []float64{
		float64(sim.player.X), float64(sim.player.Y),
		float64(sim.goal.X), float64(sim.goal.Y),
	}
}

// Distance is the number of moves still needed to reach the goal.
func (sim *Simulator) Distance() int {
	diff := sim.goal.Sub(sim.player)
	return (abs(diff.X) + abs(diff.Y)) / sim.dim
}
