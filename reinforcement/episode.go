package reinforcement

import (
	"context"
	"errors"

	. "gridchase/grid_world"
)

// EpisodeResult summarizes one finished episode.
type EpisodeResult struct {
	Key RouteKey
	// Taken is the ledger entry: every attempted move, accepted or not.
	Taken MoveCounts
	// Best is the optimal route for Key.
	Best      MoveCounts
	Attempts  int
	Accepted  int
	Done      bool
	Quit      bool
	Truncated bool
}

// Efficiency is the ratio of optimal moves to attempted moves, in (0, 1] for an
// episode that reached the goal. Unfinished episodes have efficiency 0.
func (res EpisodeResult) Efficiency() float64 {
	if !res.Done || res.Attempts == 0 {
		return 0
	}
	return float64(res.Best.Total()) / float64(res.Attempts)
}

// RunEpisode drives an already reset episode with actions from source until the
// goal is reached, the source quits, maxSteps attempts have been made, or ctx is
// done. A maxSteps of zero or less means no cap. A source returning anything
// other than a direction or QUIT ends the episode with an *InvalidActionError.
func RunEpisode(
	ctx context.Context,
	sim *Simulator,
	source ActionSource,
	maxSteps int,
) (res EpisodeResult, err error) {
	res.Key = sim.Key()
	res.Best = sim.BestRoute(res.Key.Player, res.Key.Goal)

	for !sim.IsDone() {
		select {
		case <-ctx.Done():
			err = ctx.Err()
			res.Truncated = true
			return
		default:
		}

		if maxSteps > 0 && res.Attempts >= maxSteps {
			res.Truncated = true
			break
		}

		action := source(sim.Player(), sim.Goal())
		if action == QUIT {
			res.Quit = true
			break
		}

		prev := sim.Steps()
		if err = sim.Move(action); err != nil {
			return
		}
		res.Attempts++
		res.Accepted += sim.Steps() - prev
	}

	res.Done = sim.IsDone()
	res.Taken, _ = sim.Counts(res.Key)
	return
}

// EpisodeFunc receives each finished episode from Play. Returning an error stops play.
type EpisodeFunc func(episode int, res EpisodeResult) error

// Play resets sim and runs episodes until the requested number have been played
// (zero or less means until the route ledger is exhausted), the source quits,
// or ctx is done. Exhausting the ledger ends play without error.
func Play(
	ctx context.Context,
	sim *Simulator,
	source ActionSource,
	episodes int,
	maxSteps int,
	onEpisode EpisodeFunc,
) (played int, err error) {
	for episodes <= 0 || played < episodes {
		if err = sim.Reset(); err != nil {
			if errors.Is(err, ErrLedgerExhausted) {
				err = nil
			}
			return
		}

		var res EpisodeResult
		if res, err = RunEpisode(ctx, sim, source, maxSteps); err != nil {
			return
		}
		played++

		if onEpisode != nil {
			if err = onEpisode(played, res); err != nil {
				return
			}
		}
		if res.Quit {
			return
		}
	}
	return
}
