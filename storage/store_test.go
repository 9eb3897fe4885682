package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	. "gridchase/grid_world"

	. "github.com/smartystreets/goconvey/convey"
)

func testRun(id string, createdAt time.Time) Run {
	return Run{
		ID:        id,
		CreatedAt: createdAt,
		Width:     512,
		Height:    512,
		CellDim:   16,
		Ledger: Ledger{
			{Player: Pt(256, 256), Goal: Pt(256, 128)}: {Up: 8},
			{Player: Pt(16, 16), Goal: Pt(64, 480)}:    {Down: 31, Left: 2, Right: 5},
		},
	}
}

func exerciseStore(store Store) {
	ctx := context.Background()
	So(store.Init(ctx), ShouldBeNil)

	Convey("A saved run can be read back", func() {
		created := time.Date(2024, 3, 1, 12, 0, 0, 500, time.UTC)
		run := testRun(NewRunID(), created)
		So(store.SaveRun(ctx, run), ShouldBeNil)

		got, found, err := store.GetRun(ctx, run.ID)
		So(err, ShouldBeNil)
		So(found, ShouldBeTrue)
		So(got.ID, ShouldEqual, run.ID)
		So(got.CreatedAt.Equal(created), ShouldBeTrue)
		So(got.Width, ShouldEqual, 512)
		So(got.CellDim, ShouldEqual, 16)
		So(got.Ledger, ShouldResemble, run.Ledger)
	})

	Convey("Saving a run again replaces it", func() {
		run := testRun("run-1", time.Unix(100, 0))
		So(store.SaveRun(ctx, run), ShouldBeNil)

		run.Ledger = Ledger{{Player: Pt(32, 32), Goal: Pt(48, 32)}: {Right: 1}}
		So(store.SaveRun(ctx, run), ShouldBeNil)

		got, found, err := store.GetRun(ctx, "run-1")
		So(err, ShouldBeNil)
		So(found, ShouldBeTrue)
		So(got.Ledger, ShouldResemble, run.Ledger)
	})

	Convey("A missing run is not found", func() {
		_, found, err := store.GetRun(ctx, "nope")
		So(err, ShouldBeNil)
		So(found, ShouldBeFalse)
	})

	Convey("Runs are listed oldest first", func() {
		So(store.SaveRun(ctx, testRun("b", time.Unix(300, 0))), ShouldBeNil)
		So(store.SaveRun(ctx, testRun("a", time.Unix(200, 0))), ShouldBeNil)
		So(store.SaveRun(ctx, testRun("c", time.Unix(200, 0))), ShouldBeNil)

		ids, err := store.ListRuns(ctx)
		So(err, ShouldBeNil)
		So(ids, ShouldResemble, []string{"a", "c", "b"})
	})
}

func TestMemoryStore(t *testing.T) {
	Convey("Given a memory store", t, func() {
		exerciseStore(NewMemoryStore())
	})

	Convey("Saved ledgers are copied", t, func() {
		ctx := context.Background()
		store := NewMemoryStore()
		So(store.Init(ctx), ShouldBeNil)

		run := testRun("r", time.Now())
		So(store.SaveRun(ctx, run), ShouldBeNil)
		run.Ledger[RouteKey{Player: Pt(16, 16), Goal: Pt(32, 32)}] = MoveCounts{Up: 1}

		got, _, err := store.GetRun(ctx, "r")
		So(err, ShouldBeNil)
		So(len(got.Ledger), ShouldEqual, 2)
	})
}

func TestSQLiteStore(t *testing.T) {
	Convey("Given a sqlite store", t, func() {
		store := NewSQLiteStore(filepath.Join(t.TempDir(), "gridchase.db"))
		Reset(func() {
			So(store.Close(), ShouldBeNil)
		})
		exerciseStore(store)
	})

	Convey("An uninitialized sqlite store errors", t, func() {
		store := NewSQLiteStore(filepath.Join(t.TempDir(), "gridchase.db"))
		_, _, err := store.GetRun(context.Background(), "x")
		So(err, ShouldNotBeNil)

		So(NewSQLiteStore("").Init(context.Background()), ShouldNotBeNil)
	})
}

func TestNewStore(t *testing.T) {
	Convey("When building stores by kind", t, func() {
		store, err := NewStore("", "")
		So(err, ShouldBeNil)
		So(store, ShouldHaveSameTypeAs, &MemoryStore{})
		So(CloseIfSupported(store), ShouldBeNil)

		store, err = NewStore("sqlite", filepath.Join(t.TempDir(), "runs.db"))
		So(err, ShouldBeNil)
		So(store.Init(context.Background()), ShouldBeNil)
		So(CloseIfSupported(store), ShouldBeNil)

		_, err = NewStore("postgres", "")
		So(err, ShouldNotBeNil)
	})
}

func TestRecords(t *testing.T) {
	Convey("Ledgers flatten to records in key order and back", t, func() {
		ledger := testRun("r", time.Now()).Ledger
		records := Records(ledger)
		So(len(records), ShouldEqual, 2)
		So(records[0].Player, ShouldResemble, Pt(16, 16))
		So(records[1].Counts, ShouldResemble, MoveCounts{Up: 8})
		So(FromRecords(records), ShouldResemble, ledger)
	})

	Convey("Run ids are unique", t, func() {
		So(NewRunID(), ShouldNotEqual, NewRunID())
	})
}
