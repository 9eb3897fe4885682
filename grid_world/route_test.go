package grid_world

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestLedger(t *testing.T) {
	Convey("When merging worker ledgers", t, func() {
		a := RouteKey{Player: Pt(16, 16), Goal: Pt(32, 16)}
		b := RouteKey{Player: Pt(32, 32), Goal: Pt(16, 16)}
		c := RouteKey{Player: Pt(48, 16), Goal: Pt(16, 48)}

		dst := Ledger{a: {Right: 1}, b: {Up: 2, Left: 2}}
		src := Ledger{b: {Up: 1, Down: 3}, c: {Left: 4}}

		collisions := MergeLedgers(dst, src)
		So(collisions, ShouldEqual, 1)
		So(len(dst), ShouldEqual, 3)
		So(dst[a], ShouldResemble, MoveCounts{Right: 1})
		So(dst[b], ShouldResemble, MoveCounts{Up: 3, Down: 3, Left: 2})
		So(dst[c], ShouldResemble, MoveCounts{Left: 4})
		// src is untouched
		So(src[b], ShouldResemble, MoveCounts{Up: 1, Down: 3})
	})

	Convey("Keys are ordered by player, then goal, y before x", t, func() {
		ledger := Ledger{
			{Player: Pt(32, 16), Goal: Pt(16, 16)}: {},
			{Player: Pt(16, 32), Goal: Pt(16, 16)}: {},
			{Player: Pt(16, 16), Goal: Pt(32, 32)}: {},
			{Player: Pt(16, 16), Goal: Pt(48, 16)}: {},
		}
		So(ledger.Keys(), ShouldResemble, []RouteKey{
			{Player: Pt(16, 16), Goal: Pt(48, 16)},
			{Player: Pt(16, 16), Goal: Pt(32, 32)},
			{Player: Pt(32, 16), Goal: Pt(16, 16)},
			{Player: Pt(16, 32), Goal: Pt(16, 16)},
		})
	})

	Convey("MoveCounts vectors follow Directions order", t, func() {
		counts := MoveCounts{Up: 1, Down: 2, Left: 3, Right: 4}
		So(counts.Vector(), ShouldResemble, []float64{1, 2, 3, 4})
		So(counts.Total(), ShouldEqual, 10)
		So(counts.Get(QUIT), ShouldEqual, 0)
	})
}
