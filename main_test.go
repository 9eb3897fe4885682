package main

import (
	"context"
	"io"
	"math/rand"
	"path/filepath"
	"testing"

	"gridchase/grid_world"
	"gridchase/reinforcement"
	"gridchase/storage"

	"github.com/charmbracelet/log"
	. "github.com/smartystreets/goconvey/convey"
)

func testApp(t *testing.T) *app {
	cfg := reinforcement.DefaultConfig()
	cfg.Grid.Width = 64
	cfg.Grid.Height = 64
	cfg.Collection.Workers = 2
	cfg.Collection.EpisodesPerWorker = 10
	cfg.Collection.Policy = "oracle"
	cfg.Collection.Seed = 7
	cfg.HyperParams = []reinforcement.HyperParameter{{Key: "epochs", Val: 3}}

	dir := t.TempDir()
	cfg.Storage.Kind = "sqlite"
	cfg.Storage.Path = filepath.Join(dir, "runs.db")
	cfg.Storage.MatrixDir = filepath.Join(dir, "matrix")

	return &app{
		cfg:       cfg,
		logger:    log.New(io.Discard),
		modelPath: filepath.Join(dir, "model.json"),
	}
}

func TestModes(t *testing.T) {
	Convey("Given an app on a small grid", t, func() {
		a := testApp(t)
		ctx := context.Background()

		Convey("Collect saves a run and exports the training matrix", func() {
			So(a.collect(ctx), ShouldBeNil)

			store, err := a.openStore(ctx)
			So(err, ShouldBeNil)
			defer storage.CloseIfSupported(store)
			ids, err := store.ListRuns(ctx)
			So(err, ShouldBeNil)
			So(len(ids), ShouldEqual, 1)

			x, y, err := storage.LoadTrainingMatrix(a.cfg.Storage.MatrixDir)
			So(err, ShouldBeNil)
			xr, _ := x.Dims()
			yr, _ := y.Dims()
			So(xr, ShouldEqual, yr)
			So(xr, ShouldBeGreaterThan, 0)

			Convey("Train fits and saves a model that play can use", func() {
				So(a.train(ctx), ShouldBeNil)

				a.policy = "model"
				a.episodes = 5
				a.cfg.Collection.MaxSteps = 20
				So(a.play(ctx), ShouldBeNil)
			})
		})

		Convey("Play evaluates a built-in policy", func() {
			a.episodes = 20
			So(a.play(ctx), ShouldBeNil)
		})

		Convey("Unknown policies are rejected", func() {
			a.policy = "greedy"
			So(a.play(ctx), ShouldNotBeNil)
			So(a.collect(ctx), ShouldNotBeNil)
		})

		Convey("A model policy without a model file is an error", func() {
			_, err := a.newSource("model", rand.New(rand.NewSource(1)), 16)
			So(err, ShouldNotBeNil)
		})

		Convey("Unknown modes are rejected", func() {
			So(runApp(a, "dance"), ShouldNotBeNil)
		})
	})
}

func TestModelConfig(t *testing.T) {
	Convey("The model config follows the grid and hyperparameters", t, func() {
		a := testApp(t)
		a.cfg.Grid.Width = 512
		a.cfg.Grid.Height = 256
		a.cfg.HyperParams = []reinforcement.HyperParameter{
			{Key: "hidden", Val: 16},
			{Key: "hidden_layers", Val: 3},
			{Key: "learning_rate", Val: 0.2},
		}

		cfg := a.modelConfig()
		So(cfg.Hidden, ShouldResemble, []int{16, 8, 4})
		So(cfg.LearningRate, ShouldEqual, 0.2)
		So(cfg.Epochs, ShouldEqual, 50)
		So(cfg.InputScale, ShouldEqual, 1.0/512)
		So(cfg.OutputScale, ShouldEqual, float64(grid_world.PLAYER_DIM)/512)
	})
}

func TestLoadConfig(t *testing.T) {
	Convey("A missing config file falls back to the defaults", t, func() {
		cfg, err := loadConfig(filepath.Join(t.TempDir(), "config.yaml"), log.New(io.Discard))
		So(err, ShouldBeNil)
		So(cfg, ShouldResemble, reinforcement.DefaultConfig())
	})
}
