package neural

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	. "gridchase/grid_world"

	"github.com/patrikeh/go-deep"
	"github.com/patrikeh/go-deep/training"
	"gonum.org/v1/gonum/mat"
)

// ErrShape is returned when training data does not have the feature or label
// layout of an exported training matrix.
var ErrShape = errors.New("matrix shape mismatch")

// ModelConfig defines the network architecture and training parameters.
type ModelConfig struct {
	Hidden       []int   `json:"hidden"`
	LearningRate float64 `json:"learning_rate"`
	Momentum     float64 `json:"momentum"`
	Epochs       int     `json:"epochs"`
	// InputScale multiplies every feature, e.g. 1/width to bring pixels near [0, 1].
	InputScale float64 `json:"input_scale"`
	// OutputScale multiplies labels for training; predictions are divided by it.
	OutputScale float64 `json:"output_scale"`
}

func DefaultModelConfig() ModelConfig {
	return ModelConfig{
		Hidden:       []int{32, 16},
		LearningRate: 0.01,
		Momentum:     0.5,
		Epochs:       50,
		InputScale:   1.0 / 512,
		OutputScale:  1.0 / 32,
	}
}

func (cfg *ModelConfig) setDefaults() {
	def := DefaultModelConfig()
	if cfg.LearningRate <= 0 {
		cfg.LearningRate = def.LearningRate
	}
	if cfg.Epochs <= 0 {
		cfg.Epochs = def.Epochs
	}
	if cfg.InputScale == 0 {
		cfg.InputScale = 1
	}
	if cfg.OutputScale == 0 {
		cfg.OutputScale = 1
	}
}

// Model regresses best-route move counts from player and goal positions, and
// acts by taking the direction with the largest predicted count.
// A Model is safe for concurrent use.
type Model struct {
	mu      sync.Mutex
	config  ModelConfig
	network *deep.Neural
}

func NewModel(cfg ModelConfig) *Model {
	cfg.setDefaults()
	return &Model{
		config:  cfg,
		network: newNetwork(cfg),
	}
}

func newNetwork(cfg ModelConfig) *deep.Neural {
	layout := append(append([]int{}, cfg.Hidden...), NUM_LABELS)
	return deep.NewNeural(&deep.Config{
		Inputs:     NUM_FEATURES,
		Layout:     layout,
		Activation: deep.ActivationReLU,
		Mode:       deep.ModeRegression,
		Weight:     deep.NewNormal(0.1, 0.0),
		Loss:       deep.LossMeanSquared,
		Bias:       true,
	})
}

func (m *Model) Config() ModelConfig {
	return m.config
}

// Fit trains on features x (one row per route: player x/y, goal x/y) and labels
// y (best-route counts in UP, DOWN, LEFT, RIGHT order), as produced by
// grid_world.ExportTrainingMatrix.
func (m *Model) Fit(x, y *mat.Dense) error {
	return m.FitContext(context.Background(), x, y, nil)
}

// FitContext is Fit, checking ctx between epochs and calling progressFn after
// each one. Cancellation keeps the epochs already trained and returns ctx.Err().
func (m *Model) FitContext(
	ctx context.Context,
	x, y *mat.Dense,
	progressFn func(epoch int),
) error {
	xr, xc := x.Dims()
	yr, yc := y.Dims()
	switch {
	case xc != NUM_FEATURES:
		return fmt.Errorf("%w: features have %d columns, want %d", ErrShape, xc, NUM_FEATURES)
	case yc != NUM_LABELS:
		return fmt.Errorf("%w: labels have %d columns, want %d", ErrShape, yc, NUM_LABELS)
	case xr != yr:
		return fmt.Errorf("%w: %d feature rows but %d label rows", ErrShape, xr, yr)
	}

	examples := make(training.Examples, 0, xr)
	for i := 0; i < xr; i++ {
		examples = append(examples, training.Example{
			Input:    scale(mat.Row(nil, i, x), m.config.InputScale),
			Response: scale(mat.Row(nil, i, y), m.config.OutputScale),
		})
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	trainer := training.NewTrainer(training.NewSGD(m.config.LearningRate, m.config.Momentum, 0, false), 0)
	for epoch := 1; epoch <= m.config.Epochs; epoch++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		// The trainer shuffles examples every iteration.
		trainer.Train(m.network, examples, nil, 1)
		if progressFn != nil {
			progressFn(epoch)
		}
	}
	return nil
}

func scale(vec []float64, by float64) []float64 {
	for i := range vec {
		vec[i] *= by
	}
	return vec
}

// Predict returns the predicted best-route counts in Directions order.
func (m *Model) Predict(player, goal Point) []float64 {
	input := scale([]float64{
		float64(player.X), float64(player.Y),
		float64(goal.X), float64(goal.Y),
	}, m.config.InputScale)

	m.mu.Lock()
	out := m.network.Predict(input)
	m.mu.Unlock()

	counts := make([]float64, len(out))
	for i, v := range out {
		counts[i] = v / m.config.OutputScale
	}
	return counts
}

// Act returns the direction with the largest predicted count. Ties go to the
// earlier direction in UP, DOWN, LEFT, RIGHT order.
func (m *Model) Act(player, goal Point) Action {
	counts := m.Predict(player, goal)
	best := 0
	for i := range counts {
		if counts[i] > counts[best] {
			best = i
		}
	}
	return Directions[best]
}

// Source adapts the model to drive a simulator.
func (m *Model) Source() ActionSource {
	return m.Act
}

type savedModel struct {
	Config  ModelConfig   `json:"config"`
	Weights [][][]float64 `json:"weights"`
}

// Save writes the config and weights as JSON.
func (m *Model) Save(w io.Writer) error {
	m.mu.Lock()
	weights := m.network.Dump().Weights
	m.mu.Unlock()

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(savedModel{
		Config:  m.config,
		Weights: weights,
	})
}

// Load reads a model written by Save.
func Load(r io.Reader) (*Model, error) {
	saved := savedModel{}
	if err := json.NewDecoder(r).Decode(&saved); err != nil {
		return nil, fmt.Errorf("decoding model: %w", err)
	}

	m := NewModel(saved.Config)
	if err := checkWeights(saved.Weights, m.network); err != nil {
		return nil, err
	}
	m.network.ApplyWeights(saved.Weights)
	return m, nil
}

// checkWeights guards ApplyWeights, which indexes without bounds checks.
func checkWeights(weights [][][]float64, network *deep.Neural) error {
	if len(weights) != len(network.Layers) {
		return fmt.Errorf("%w: %d weight layers, network has %d", ErrShape, len(weights), len(network.Layers))
	}
	for i, layer := range network.Layers {
		if len(weights[i]) != len(layer.Neurons) {
			return fmt.Errorf("%w: layer %d has %d weight rows, want %d", ErrShape, i, len(weights[i]), len(layer.Neurons))
		}
		for j, neuron := range layer.Neurons {
			if len(weights[i][j]) != len(neuron.In) {
				return fmt.Errorf("%w: layer %d neuron %d has %d weights, want %d", ErrShape, i, j, len(weights[i][j]), len(neuron.In))
			}
		}
	}
	return nil
}

func (m *Model) SaveFile(path string) (err error) {
	var f *os.File
	if f, err = os.Create(path); err != nil {
		return
	}
	defer func() {
		if closeErr := f.Close(); err == nil {
			err = closeErr
		}
	}()
	err = m.Save(f)
	return
}

func LoadFile(path string) (*Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f)
}
