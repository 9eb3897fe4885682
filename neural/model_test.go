package neural

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"path/filepath"
	"strings"
	"testing"

	. "gridchase/grid_world"

	. "github.com/smartystreets/goconvey/convey"
	"gonum.org/v1/gonum/mat"
)

// trainingMatrix plays an oracle over every route of a small grid and exports the ledger.
func trainingMatrix() (x, y *mat.Dense) {
	sim, err := NewSimulator(Config{Width: 64, Height: 64, CellDim: 16}, rand.New(rand.NewSource(1)), nil)
	So(err, ShouldBeNil)
	for sim.Reset() == nil {
		for !sim.IsDone() {
			best := sim.BestRoute(sim.Player(), sim.Goal())
			for _, dir := range Directions {
				if best.Get(dir) > 0 {
					So(sim.Move(dir), ShouldBeNil)
					break
				}
			}
		}
	}
	x, y, err = sim.ExportTrainingMatrix()
	So(err, ShouldBeNil)
	return
}

func TestFit(t *testing.T) {
	Convey("Given a model", t, func() {
		cfg := DefaultModelConfig()
		cfg.InputScale = 1.0 / 64
		cfg.OutputScale = 1.0 / 4
		cfg.Epochs = 5
		model := NewModel(cfg)

		Convey("It fits an exported training matrix", func() {
			x, y := trainingMatrix()
			rows, _ := x.Dims()
			So(rows, ShouldEqual, 72)
			So(model.Fit(x, y), ShouldBeNil)

			Convey("Predictions have one count per direction", func() {
				So(len(model.Predict(Pt(16, 16), Pt(48, 48))), ShouldEqual, NUM_LABELS)
			})

			Convey("It acts on the largest predicted count", func() {
				player, goal := Pt(16, 48), Pt(48, 16)
				counts := model.Predict(player, goal)
				best := 0
				for i := range counts {
					if counts[i] > counts[best] {
						best = i
					}
				}
				So(model.Act(player, goal), ShouldEqual, Directions[best])
				So(model.Source()(player, goal), ShouldEqual, Directions[best])
			})
		})

		Convey("Cancellation stops training between epochs", func() {
			x, y := trainingMatrix()
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			epochs := 0
			err := model.FitContext(ctx, x, y, func(epoch int) {
				epochs = epoch
				if epoch == 2 {
					cancel()
				}
			})
			So(errors.Is(err, context.Canceled), ShouldBeTrue)
			So(epochs, ShouldEqual, 2)
		})

		Convey("Misshapen matrices are rejected", func() {
			x := mat.NewDense(2, 3, nil)
			y := mat.NewDense(2, 4, nil)
			So(errors.Is(model.Fit(x, y), ErrShape), ShouldBeTrue)

			x = mat.NewDense(2, 4, nil)
			y = mat.NewDense(2, 2, nil)
			So(errors.Is(model.Fit(x, y), ErrShape), ShouldBeTrue)

			y = mat.NewDense(3, 4, nil)
			So(errors.Is(model.Fit(x, y), ErrShape), ShouldBeTrue)
		})
	})
}

func TestSaveLoad(t *testing.T) {
	Convey("Given a saved model", t, func() {
		cfg := DefaultModelConfig()
		cfg.Hidden = []int{8}
		model := NewModel(cfg)
		buf := &bytes.Buffer{}
		So(model.Save(buf), ShouldBeNil)

		Convey("Loading it reproduces its predictions", func() {
			loaded, err := Load(bytes.NewReader(buf.Bytes()))
			So(err, ShouldBeNil)
			So(loaded.Config(), ShouldResemble, model.Config())
			for _, pair := range [][2]Point{
				{Pt(16, 16), Pt(256, 480)},
				{Pt(480, 32), Pt(64, 64)},
			} {
				So(loaded.Predict(pair[0], pair[1]), ShouldResemble, model.Predict(pair[0], pair[1]))
			}
		})

		Convey("Weights that do not fit the architecture are rejected", func() {
			other := DefaultModelConfig()
			other.Hidden = []int{4}
			wrong := &bytes.Buffer{}
			So(NewModel(other).Save(wrong), ShouldBeNil)

			mixed := savedModel{}
			So(json.Unmarshal(wrong.Bytes(), &mixed), ShouldBeNil)
			mixed.Config = model.Config()
			out, err := json.Marshal(mixed)
			So(err, ShouldBeNil)

			_, err = Load(bytes.NewReader(out))
			So(errors.Is(err, ErrShape), ShouldBeTrue)
		})

		Convey("Files round trip", func() {
			path := filepath.Join(t.TempDir(), "model.json")
			So(model.SaveFile(path), ShouldBeNil)
			loaded, err := LoadFile(path)
			So(err, ShouldBeNil)
			So(loaded.Predict(Pt(32, 32), Pt(64, 16)), ShouldResemble, model.Predict(Pt(32, 32), Pt(64, 16)))
		})

		Convey("Garbage is an error", func() {
			_, err := Load(strings.NewReader("not json"))
			So(err, ShouldNotBeNil)
		})
	})
}
