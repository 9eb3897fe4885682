package reinforcement

import (
	"context"
	"fmt"
	"sync/atomic"

	"gridchase/atomic_float"
	. "gridchase/grid_world"

	channerics "github.com/niceyeti/channerics/channels"
	"golang.org/x/sync/errgroup"
)

// ProgressFunc is a callback by which collection can lend progress details,
// while exercising some level of control over its cancellation to prevent blocking.
// ProgressFunc is synchronous/blocking and should be defined to complete quickly.
type ProgressFunc func(context.Context, int)

// CollectConfig sizes a collection run. EpisodesPerWorker of zero or less runs
// each worker until its ledger is exhausted or the context is done.
type CollectConfig struct {
	Workers           int
	EpisodesPerWorker int
	MaxSteps          int
}

// SimulatorFactory builds the private simulator of one worker.
type SimulatorFactory func(worker int) (*Simulator, error)

// SourceFactory builds the action source of one worker, given its simulator.
type SourceFactory func(worker int, sim *Simulator) ActionSource

// Stats aggregates episode results. Fields are updated by the collection
// consumer and may be read concurrently, e.g. from a ProgressFunc.
type Stats struct {
	Episodes  atomic.Int64
	Finished  atomic.Int64
	Truncated atomic.Int64
	Attempts  atomic.Int64
	Optimal   atomic.Int64
	// Collisions is the number of route keys visited by more than one worker.
	Collisions atomic.Int64
	// Abandoned counts ledger entries of episodes that cancellation cut short
	// or dropped before they were counted. They are in the ledger but not in Episodes.
	Abandoned atomic.Int64

	efficiency atomic_float.AtomicFloat64
}

func (stats *Stats) add(res EpisodeResult) {
	stats.Episodes.Add(1)
	if res.Done {
		stats.Finished.Add(1)
	}
	if res.Truncated {
		stats.Truncated.Add(1)
	}
	stats.Attempts.Add(int64(res.Attempts))
	stats.Optimal.Add(int64(res.Best.Total()))
	stats.efficiency.Accumulate(res.Efficiency())
}

// MeanEfficiency is the mean EpisodeResult.Efficiency over all episodes.
func (stats *Stats) MeanEfficiency() float64 {
	n := stats.Episodes.Load()
	if n == 0 {
		return 0
	}
	return stats.efficiency.AtomicRead() / float64(n)
}

// Collection is the result of Collect: the merged ledger of every worker.
// Every ledger entry is accounted for: Episodes + Abandoned equals the
// number of ledger entries plus Collisions.
type Collection struct {
	Ledger Ledger
	Stats  *Stats
}

/*
Collect runs episodes on cfg.Workers goroutines, each owning a private simulator
and action source, so simulators are never shared. Results are fanned in to a
single consumer which updates the stats and reports progress. Once all workers
have returned their ledgers are merged; a key reached by several workers has its
move counts summed.

Cancelling ctx is a normal way to end an unbounded collection: whatever was
collected up to that point is returned without error.
*/
func Collect(
	ctx context.Context,
	cfg CollectConfig,
	newSim SimulatorFactory,
	newSource SourceFactory,
	progressFn ProgressFunc,
) (*Collection, error) {
	if cfg.Workers <= 0 {
		return nil, fmt.Errorf("%w: collection needs at least one worker, got %d", ErrConfiguration, cfg.Workers)
	}

	sims := make([]*Simulator, cfg.Workers)
	for i := range sims {
		sim, err := newSim(i)
		if err != nil {
			return nil, fmt.Errorf("worker %d: %w", i, err)
		}
		sims[i] = sim
	}

	group, groupCtx := errgroup.WithContext(ctx)

	// Each worker plays on its own simulator and sends its results until done.
	worker := func(id int, sim *Simulator) <-chan EpisodeResult {
		results := make(chan EpisodeResult)
		source := newSource(id, sim)
		group.Go(func() error {
			defer close(results)

			_, err := Play(groupCtx, sim, source, cfg.EpisodesPerWorker, cfg.MaxSteps,
				func(_ int, res EpisodeResult) error {
					select {
					case results <- res:
						return nil
					case <-groupCtx.Done():
						return groupCtx.Err()
					}
				})
			// A finished parent context ends collection, it isn't a worker failure.
			if err != nil && ctx.Err() != nil {
				return nil
			}
			if err != nil {
				return fmt.Errorf("worker %d: %w", id, err)
			}
			return nil
		})
		return results
	}

	workers := []<-chan EpisodeResult{}
	for i, sim := range sims {
		workers = append(workers, worker(i, sim))
	}
	results := channerics.Merge(groupCtx.Done(), workers...)

	stats := &Stats{}
	for res := range results {
		stats.add(res)
		if progressFn != nil {
			progressFn(ctx, int(stats.Episodes.Load()))
		}
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}

	ledger := Ledger{}
	entries := 0
	for _, sim := range sims {
		routes := sim.Routes()
		entries += len(routes)
		stats.Collisions.Add(int64(MergeLedgers(ledger, routes)))
	}
	stats.Abandoned.Store(int64(entries) - stats.Episodes.Load())

	return &Collection{
		Ledger: ledger,
		Stats:  stats,
	}, nil
}
