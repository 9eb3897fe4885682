/*
Gridchase is a small grid game in which a player square chases a goal square. Every
episode's moves are recorded per route (start and goal), and the recorded routes export
as a training matrix whose labels are the best routes. The modes are:
  - collect: play episodes with a built-in policy on parallel workers, save the run, and
    export the training matrix as CSV.
  - train: fit a neural policy to an exported matrix.
  - play: evaluate a policy headless and report its efficiency.
  - serve: play in the browser, by keyboard or by watching a policy.
*/

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"sync/atomic"
	"time"

	"gridchase/grid_world"
	"gridchase/neural"
	"gridchase/reinforcement"
	"gridchase/server"
	"gridchase/storage"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	channerics "github.com/niceyeti/channerics/channels"
)

// How often long-running modes log progress.
const progressResolution = time.Second * 2

type app struct {
	cfg    *reinforcement.TrainingConfig
	logger *log.Logger

	nworkers  int
	episodes  int
	policy    string
	modelPath string
	addr      string

	model *neural.Model
}

func loadConfig(path string, logger *log.Logger) (*reinforcement.TrainingConfig, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		logger.Warn("no config file, using defaults", "path", path)
		return reinforcement.DefaultConfig(), nil
	}
	return reinforcement.FromYaml(path)
}

func (a *app) simulatorConfig() (grid_world.Config, error) {
	return a.cfg.SimulatorConfig()
}

func (a *app) seed(worker int) int64 {
	if a.cfg.Collection.Seed != 0 {
		return a.cfg.Collection.Seed + int64(worker)
	}
	return time.Now().UnixNano() + int64(worker)
}

// newSource builds a policy by name; "model" uses the trained model.
func (a *app) newSource(name string, rng *rand.Rand, dim int) (grid_world.ActionSource, error) {
	if name == "model" {
		if err := a.loadModel(); err != nil {
			return nil, err
		}
		return a.model.Source(), nil
	}
	epsilon := a.cfg.GetHyperParamOrDefault("epsilon", 0.1)
	return reinforcement.PolicyByName(name, rng, dim, epsilon)
}

func (a *app) loadModel() (err error) {
	if a.model != nil {
		return
	}
	if a.model, err = neural.LoadFile(a.modelPath); err != nil {
		err = fmt.Errorf("loading model: %w", err)
	}
	return
}

func (a *app) openStore(ctx context.Context) (storage.Store, error) {
	store, err := storage.NewStore(a.cfg.Storage.Kind, a.cfg.Storage.Path)
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("init %s store: %w", a.cfg.Storage.Kind, err)
	}
	return store, nil
}

// logProgress logs the count held by counter until done.
func (a *app) logProgress(done <-chan struct{}, what string, counter *atomic.Int64) {
	start := time.Now()
	for range channerics.NewTicker(done, progressResolution) {
		n := counter.Load()
		rate := float64(n) / time.Since(start).Seconds()
		a.logger.Info("progress", what, humanize.Comma(n), "per_sec", humanize.CommafWithDigits(rate, 1))
	}
}

func (a *app) collect(ctx context.Context) (err error) {
	simCfg, err := a.simulatorConfig()
	if err != nil {
		return
	}
	simCfg.Display = false

	cfg := reinforcement.CollectConfig{
		Workers:           a.cfg.Collection.Workers,
		EpisodesPerWorker: a.cfg.Collection.EpisodesPerWorker,
		MaxSteps:          a.cfg.Collection.MaxSteps,
	}
	if a.nworkers > 0 {
		cfg.Workers = a.nworkers
	}
	if a.episodes > 0 {
		cfg.EpisodesPerWorker = a.episodes
	}

	policy := a.cfg.Collection.Policy
	if a.policy != "" {
		policy = a.policy
	}
	// Fail on a bad policy before any worker starts.
	if _, err = a.newSource(policy, rand.New(rand.NewSource(0)), simCfg.CellDim); err != nil {
		return
	}

	trainingCtx, cancel, err := a.cfg.WithTrainingDeadline(ctx)
	if err != nil {
		return
	}
	defer cancel()

	var collected atomic.Int64
	progressDone := make(chan struct{})
	defer close(progressDone)
	go a.logProgress(progressDone, "episodes", &collected)

	a.logger.Info("collecting",
		"workers", cfg.Workers,
		"episodes_per_worker", cfg.EpisodesPerWorker,
		"policy", policy,
		"grid", fmt.Sprintf("%dx%d", simCfg.Width, simCfg.Height))

	start := time.Now()
	collection, err := reinforcement.Collect(
		trainingCtx,
		cfg,
		func(worker int) (*grid_world.Simulator, error) {
			return grid_world.NewSimulator(simCfg, rand.New(rand.NewSource(a.seed(worker))), nil)
		},
		func(worker int, sim *grid_world.Simulator) grid_world.ActionSource {
			// The policy name was checked above.
			source, _ := a.newSource(policy, rand.New(rand.NewSource(a.seed(worker)^0x5eed)), sim.CellDim())
			return source
		},
		func(_ context.Context, n int) {
			collected.Store(int64(n))
		})
	if err != nil {
		return
	}

	stats := collection.Stats
	a.logger.Info("collected",
		"episodes", humanize.Comma(stats.Episodes.Load()),
		"finished", humanize.Comma(stats.Finished.Load()),
		"routes", humanize.Comma(int64(len(collection.Ledger))),
		"collisions", stats.Collisions.Load(),
		"mean_efficiency", fmt.Sprintf("%.3f", stats.MeanEfficiency()),
		"elapsed", time.Since(start).Round(time.Millisecond))

	store, err := a.openStore(ctx)
	if err != nil {
		return
	}
	defer func() {
		if closeErr := storage.CloseIfSupported(store); err == nil {
			err = closeErr
		}
	}()

	run := storage.Run{
		ID:        storage.NewRunID(),
		CreatedAt: time.Now(),
		Width:     simCfg.Width,
		Height:    simCfg.Height,
		CellDim:   simCfg.CellDim,
		Ledger:    collection.Ledger,
	}
	if err = store.SaveRun(ctx, run); err != nil {
		return
	}
	a.logger.Info("saved run", "id", run.ID, "store", a.cfg.Storage.Kind)

	x, y, err := grid_world.ExportTrainingMatrix(collection.Ledger, simCfg.CellDim)
	if err != nil {
		return
	}
	if err = storage.SaveTrainingMatrix(a.cfg.Storage.MatrixDir, x, y); err != nil {
		return
	}
	rows, _ := x.Dims()
	a.logger.Info("exported training matrix", "dir", a.cfg.Storage.MatrixDir, "rows", humanize.Comma(int64(rows)))
	return
}

func (a *app) modelConfig() neural.ModelConfig {
	hp := a.cfg.GetHyperParamOrDefault
	extent := float64(max(a.cfg.Grid.Width, a.cfg.Grid.Height))
	if extent <= 0 {
		extent = 512
	}
	dim := float64(a.cfg.Grid.CellDim)
	if dim == 0 {
		dim = grid_world.PLAYER_DIM
	}

	// Hidden layers halve in width.
	hidden := []int{}
	width := int(hp("hidden", 32))
	for i := 0; i < int(hp("hidden_layers", 2)) && width > 0; i++ {
		hidden = append(hidden, width)
		width /= 2
	}

	return neural.ModelConfig{
		Hidden:       hidden,
		LearningRate: hp("learning_rate", 0.01),
		Momentum:     hp("momentum", 0.5),
		Epochs:       int(hp("epochs", 50)),
		InputScale:   1 / extent,
		// Best-route counts never exceed the number of cells along an axis.
		OutputScale: dim / extent,
	}
}

func (a *app) train(ctx context.Context) (err error) {
	x, y, err := storage.LoadTrainingMatrix(a.cfg.Storage.MatrixDir)
	if err != nil {
		return
	}
	rows, _ := x.Dims()

	trainingCtx, cancel, err := a.cfg.WithTrainingDeadline(ctx)
	if err != nil {
		return
	}
	defer cancel()

	modelCfg := a.modelConfig()
	model := neural.NewModel(modelCfg)
	a.logger.Info("training",
		"rows", humanize.Comma(int64(rows)),
		"hidden", modelCfg.Hidden,
		"epochs", modelCfg.Epochs,
		"learning_rate", modelCfg.LearningRate)

	var epochs atomic.Int64
	progressDone := make(chan struct{})
	defer close(progressDone)
	go a.logProgress(progressDone, "epochs", &epochs)

	err = model.FitContext(trainingCtx, x, y, func(epoch int) {
		epochs.Store(int64(epoch))
	})
	if errors.Is(err, context.DeadlineExceeded) {
		a.logger.Warn("training deadline reached", "epochs", epochs.Load())
		err = nil
	}
	if err != nil {
		return
	}

	if err = model.SaveFile(a.modelPath); err != nil {
		return
	}
	a.logger.Info("saved model", "path", a.modelPath)
	return
}

func (a *app) play(ctx context.Context) (err error) {
	simCfg, err := a.simulatorConfig()
	if err != nil {
		return
	}
	simCfg.Display = false

	rng := rand.New(rand.NewSource(a.seed(0)))
	sim, err := grid_world.NewSimulator(simCfg, rng, nil)
	if err != nil {
		return
	}

	policy := a.policy
	if policy == "" {
		policy = a.cfg.Collection.Policy
	}
	source, err := a.newSource(policy, rng, simCfg.CellDim)
	if err != nil {
		return
	}

	episodes := a.episodes
	if episodes <= 0 {
		episodes = 100
	}

	efficiency, finished := 0.0, 0
	played, err := reinforcement.Play(ctx, sim, source, episodes, a.cfg.Collection.MaxSteps,
		func(n int, res reinforcement.EpisodeResult) error {
			efficiency += res.Efficiency()
			if res.Done {
				finished++
			}
			a.logger.Debug("episode",
				"n", n,
				"player", res.Key.Player,
				"goal", res.Key.Goal,
				"attempts", res.Attempts,
				"best", res.Best.Total(),
				"done", res.Done)
			return nil
		})
	if err != nil {
		return
	}
	if played == 0 {
		return errors.New("no episodes played")
	}

	a.logger.Info("played",
		"policy", policy,
		"episodes", played,
		"finished", finished,
		"mean_efficiency", fmt.Sprintf("%.3f", efficiency/float64(played)))
	return
}

func (a *app) serve(ctx context.Context) (err error) {
	simCfg, err := a.simulatorConfig()
	if err != nil {
		return
	}
	keys, err := a.cfg.KeyBindings()
	if err != nil {
		return
	}
	tick, err := a.cfg.TickInterval()
	if err != nil {
		return
	}

	opts := server.Options{
		Grid:     simCfg,
		Keys:     keys,
		Tick:     tick,
		MaxSteps: a.cfg.Collection.MaxSteps,
	}
	if a.policy != "" {
		// Fail on a bad policy before serving.
		if _, err = a.newSource(a.policy, rand.New(rand.NewSource(0)), simCfg.CellDim); err != nil {
			return
		}
		opts.NewSource = func(sim *grid_world.Simulator) grid_world.ActionSource {
			source, _ := a.newSource(a.policy, rand.New(rand.NewSource(time.Now().UnixNano())), sim.CellDim())
			return source
		}
	}

	store, err := a.openStore(ctx)
	if err != nil {
		return
	}
	defer func() {
		if closeErr := storage.CloseIfSupported(store); err == nil {
			err = closeErr
		}
	}()

	var srv *server.Server
	if srv, err = server.NewServer(a.addr, opts, store, a.logger); err != nil {
		return
	}
	err = srv.Serve(ctx)
	return
}

func runApp(a *app, mode string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	switch mode {
	case "collect":
		return a.collect(ctx)
	case "train":
		return a.train(ctx)
	case "play":
		return a.play(ctx)
	case "serve":
		return a.serve(ctx)
	}
	return fmt.Errorf("unknown mode %q", mode)
}

func main() {
	configPath := flag.String("config", "./config.yaml", "path to the training config")
	mode := flag.String("mode", "collect", "collect | train | play | serve")
	nworkers := flag.Int("nworkers", 0, "number of collection workers; 0 uses the config")
	episodes := flag.Int("episodes", 0, "episodes per worker when collecting, or to play; 0 uses the config")
	policy := flag.String("policy", "", "random | oracle | epsilon | model; serve defaults to keyboard play")
	host := flag.String("host", "", "The host ip")
	port := flag.String("port", "", "The host port, overrides the config")
	modelPath := flag.String("model", "", "model file, overrides the config")
	dbg := flag.Bool("debug", false, "debug logging")
	flag.Parse()

	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          "gridchase",
	})
	if *dbg {
		logger.SetLevel(log.DebugLevel)
	}

	cfg, err := loadConfig(*configPath, logger)
	if err != nil {
		logger.Fatal("config", "err", err)
	}

	a := &app{
		cfg:       cfg,
		logger:    logger,
		nworkers:  *nworkers,
		episodes:  *episodes,
		policy:    *policy,
		modelPath: cfg.Storage.ModelPath,
		addr:      cfg.Server.Host + ":" + cfg.Server.Port,
	}
	if *modelPath != "" {
		a.modelPath = *modelPath
	}
	if *host != "" || *port != "" {
		h, p := cfg.Server.Host, cfg.Server.Port
		if *host != "" {
			h = *host
		}
		if *port != "" {
			p = *port
		}
		a.addr = h + ":" + p
	}

	if err := runApp(a, *mode); err != nil {
		logger.Fatal(*mode, "err", err)
	}
}
