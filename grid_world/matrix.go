package grid_world

import "gonum.org/v1/gonum/mat"

// Feature and label column counts of the exported training matrix.
const (
	NUM_FEATURES = 4
	NUM_LABELS   = len(Directions)
)

// ExportTrainingMatrix converts a ledger into aligned training tables, one row
// per route key in Keys() order. Row i of x is [player.x, player.y, goal.x,
// goal.y]; row i of y is the best route for that same pair in Directions
// order. The labels are recomputed from the key, not taken from the recorded
// counts, which only reflect what the agent happened to try.
func ExportTrainingMatrix(ledger Ledger, dim int) (x, y *mat.Dense, err error) {
	if len(ledger) == 0 {
		err = ErrEmptyLedger
		return
	}

	keys := ledger.Keys()
	x = mat.NewDense(len(keys), NUM_FEATURES, nil)
	y = mat.NewDense(len(keys), NUM_LABELS, nil)
	for i, key := range keys {
		x.SetRow(i, []float64{
			float64(key.Player.X), float64(key.Player.Y),
			float64(key.Goal.X), float64(key.Goal.Y),
		})
		y.SetRow(i, BestRoute(key.Player, key.Goal, dim).Vector())
	}
	return
}
