package storage

import (
	"context"
	"sort"
	"time"

	"gridchase/grid_world"

	"github.com/google/uuid"
)

// Run is one collection run: the grid it was collected on and its route ledger.
type Run struct {
	ID        string
	CreatedAt time.Time
	Width     int
	Height    int
	CellDim   int
	Ledger    grid_world.Ledger
}

// Store persists collection runs.
type Store interface {
	Init(ctx context.Context) error
	SaveRun(ctx context.Context, run Run) error
	GetRun(ctx context.Context, id string) (Run, bool, error)
	// ListRuns returns run ids, oldest first.
	ListRuns(ctx context.Context) ([]string, error)
}

func NewRunID() string {
	return uuid.NewString()
}

// RouteRecord is a flat ledger entry, for encodings that cannot key on a struct.
type RouteRecord struct {
	Player grid_world.Point      `json:"player"`
	Goal   grid_world.Point      `json:"goal"`
	Counts grid_world.MoveCounts `json:"counts"`
}

// Records flattens a ledger in key order.
func Records(ledger grid_world.Ledger) []RouteRecord {
	records := make([]RouteRecord, 0, len(ledger))
	for _, key := range ledger.Keys() {
		records = append(records, RouteRecord{
			Player: key.Player,
			Goal:   key.Goal,
			Counts: ledger[key],
		})
	}
	return records
}

func FromRecords(records []RouteRecord) grid_world.Ledger {
	ledger := make(grid_world.Ledger, len(records))
	for _, rec := range records {
		ledger[grid_world.RouteKey{Player: rec.Player, Goal: rec.Goal}] = rec.Counts
	}
	return ledger
}

func copyRun(run Run) Run {
	ledger := make(grid_world.Ledger, len(run.Ledger))
	grid_world.MergeLedgers(ledger, run.Ledger)
	run.Ledger = ledger
	return run
}

func sortRuns(runs []Run) []string {
	sort.Slice(runs, func(i, j int) bool {
		if !runs[i].CreatedAt.Equal(runs[j].CreatedAt) {
			return runs[i].CreatedAt.Before(runs[j].CreatedAt)
		}
		return runs[i].ID < runs[j].ID
	})
	ids := make([]string, len(runs))
	for i, run := range runs {
		ids[i] = run.ID
	}
	return ids
}
