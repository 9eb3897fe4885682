package reinforcement

import (
	"context"
	"fmt"
	"time"

	"gridchase/grid_world"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// OuterConfig is the config file envelope: a kind and a definition whose
// shape depends on the kind.
type OuterConfig struct {
	Kind string      `mapstructure:"kind"`
	Def  interface{} `mapstructure:"def"`
}

// The only kind currently understood.
const TRAINING_KIND = "training"

// TrainingConfig encodes everything about a run outside of code: the grid,
// how episodes are collected, learning hyperparameters, deadlines, input
// bindings, and where results go.
// NOTE: viper lowercases keys, so every yaml key here is snake_case.
type TrainingConfig struct {
	Grid       GridConfig       `yaml:"grid"`
	Collection CollectionConfig `yaml:"collection"`
	// HyperParams is a key-val list of learning parameters, see GetHyperParamOrDefault.
	HyperParams []HyperParameter `yaml:"hyper_params"`
	// TrainingDeadline bounds collection and training, e.g. {duration: 30s}.
	TrainingDeadline map[string]string `yaml:"training_deadline"`
	// KeyMap binds action names to input symbols; empty means grid_world.DefaultKeyMap.
	KeyMap  map[string][]string `yaml:"keymap"`
	Storage StorageConfig       `yaml:"storage"`
	Server  ServerConfig        `yaml:"server"`
}

type GridConfig struct {
	Height  int    `yaml:"height"`
	Width   int    `yaml:"width"`
	CellDim int    `yaml:"cell_dim"`
	Start   []int  `yaml:"start"`
	Title   string `yaml:"title"`
	Display bool   `yaml:"display"`
}

type CollectionConfig struct {
	Workers           int    `yaml:"workers"`
	EpisodesPerWorker int    `yaml:"episodes_per_worker"`
	MaxSteps          int    `yaml:"max_steps"`
	Policy            string `yaml:"policy"`
	Seed              int64  `yaml:"seed"`
}

type StorageConfig struct {
	Kind      string `yaml:"kind"`
	Path      string `yaml:"path"`
	MatrixDir string `yaml:"matrix_dir"`
	ModelPath string `yaml:"model_path"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port string `yaml:"port"`
	// Tick is the interval between actions when a session is driven by a policy.
	Tick string `yaml:"tick"`
}

type HyperParameter struct {
	Key string  `yaml:"key"`
	Val float64 `yaml:"val"`
}

// DefaultConfig is a 512x512 grid with random starts, a random policy, and
// in-memory storage.
func DefaultConfig() *TrainingConfig {
	return &TrainingConfig{
		Grid: GridConfig{
			Height:  512,
			Width:   512,
			CellDim: grid_world.PLAYER_DIM,
			Title:   "Simulator",
		},
		Collection: CollectionConfig{
			Workers:           4,
			EpisodesPerWorker: 1000,
			MaxSteps:          1000,
			Policy:            "random",
		},
		Storage: StorageConfig{
			Kind:      "memory",
			MatrixDir: ".",
			ModelPath: "model.json",
		},
		Server: ServerConfig{
			Port: "8080",
			Tick: "100ms",
		},
	}
}

func (cfg *TrainingConfig) GetHyperParamOrDefault(param string, defaultVal float64) float64 {
	for _, kvp := range cfg.HyperParams {
		if kvp.Key == param {
			return kvp.Val
		}
	}
	return defaultVal
}

// WithTrainingDeadline returns a context extended by the training deadline, if one is specified.
func (cfg *TrainingConfig) WithTrainingDeadline(
	ctx context.Context,
) (context.Context, context.CancelFunc, error) {
	if val, ok := cfg.TrainingDeadline["duration"]; ok {
		duration, err := time.ParseDuration(val)
		if err != nil {
			return nil, nil, fmt.Errorf("training deadline: %w", err)
		}
		innerCtx, cancel := context.WithTimeout(ctx, duration)
		return innerCtx, cancel, nil
	}
	// FUTURE: an absolute deadline key, e.g. {at: <RFC3339 time>}, for scheduled runs.
	defaultCtx, cancel := context.WithCancel(ctx)
	return defaultCtx, cancel, nil
}

// SimulatorConfig converts the grid section to a simulator config.
func (cfg *TrainingConfig) SimulatorConfig() (simCfg grid_world.Config, err error) {
	simCfg = grid_world.Config{
		Height:  cfg.Grid.Height,
		Width:   cfg.Grid.Width,
		CellDim: cfg.Grid.CellDim,
		Title:   cfg.Grid.Title,
		Display: cfg.Grid.Display,
	}
	switch len(cfg.Grid.Start) {
	case 0:
	case 2:
		simCfg.Start = &grid_world.Point{X: cfg.Grid.Start[0], Y: cfg.Grid.Start[1]}
	default:
		err = fmt.Errorf("%w: start must be [x, y], got %v", grid_world.ErrConfiguration, cfg.Grid.Start)
	}
	return
}

// KeyBindings builds the input keymap.
func (cfg *TrainingConfig) KeyBindings() (grid_world.KeyMap, error) {
	return grid_world.KeyMapFromConfig(cfg.KeyMap)
}

// TickInterval parses the server tick, defaulting to 100ms.
func (cfg *TrainingConfig) TickInterval() (time.Duration, error) {
	if cfg.Server.Tick == "" {
		return time.Millisecond * 100, nil
	}
	return time.ParseDuration(cfg.Server.Tick)
}

// FromYaml reads a config file. Viper reads the envelope, and the definition is re-encoded
// as yaml to decode into the typed config, so the definition's shape is free to vary by kind.
func FromYaml(path string) (*TrainingConfig, error) {
	vp := viper.New()
	vp.SetConfigFile(path)
	vp.SetConfigType("yaml")
	var err error
	if err = vp.ReadInConfig(); err != nil {
		return nil, err
	}

	outerConfig := &OuterConfig{}
	if err = vp.Unmarshal(outerConfig); err != nil {
		return nil, err
	}
	if outerConfig.Kind != TRAINING_KIND {
		return nil, fmt.Errorf("unsupported config kind %q in %s", outerConfig.Kind, path)
	}

	var def []byte
	if def, err = yaml.Marshal(outerConfig.Def); err != nil {
		return nil, err
	}

	// Unset fields keep their defaults.
	innerConfig := DefaultConfig()
	if err = yaml.Unmarshal(def, innerConfig); err != nil {
		return nil, err
	}

	return innerConfig, nil
}
