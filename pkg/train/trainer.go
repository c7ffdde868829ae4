// Package train runs the epoch loop of the forecaster.
package train

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"go.uber.org/zap"

	"github.com/tunogya/elois/pkg/model"
	"github.com/tunogya/elois/pkg/nn"
	"github.com/tunogya/elois/pkg/tensor"
)

// Config holds the optimization settings
type Config struct {
	Epochs      int     `yaml:"epochs" validate:"min=1"`
	BatchSize   int     `yaml:"batch_size" validate:"min=1"`
	LR          float64 `yaml:"lr" validate:"gt=0"`
	MaxGradNorm float64 `yaml:"max_grad_norm" validate:"gt=0"`
	LogEvery    int     `yaml:"log_every" validate:"min=1"`
	Seed        uint64  `yaml:"seed"`

	// CheckpointPath receives the best checkpoint; empty keeps it in memory only
	CheckpointPath string   `yaml:"checkpoint_path"`
	Window         int      `yaml:"-"`
	Fields         []string `yaml:"-"`
}

// DefaultConfig returns the default training settings
func DefaultConfig() Config {
	return Config{
		Epochs:      1000,
		BatchSize:   1000,
		LR:          1e-3,
		MaxGradNorm: 1e7,
		LogEvery:    10,
		Seed:        42,
	}
}

// EpochStats records one epoch
type EpochStats struct {
	Epoch     int     `json:"epoch"`
	TrainLoss float64 `json:"train_loss"`
	ValLoss   float64 `json:"val_loss"`
	GradNorm  float64 `json:"grad_norm"`
	Improved  bool    `json:"improved"`
}

// Result summarizes a finished run
type Result struct {
	RunID       string
	Epochs      int
	BestEpoch   int
	BestValLoss float64
	Best        *nn.Checkpoint
	History     []EpochStats
}

// CheckpointFunc is called whenever validation improves
type CheckpointFunc func(ctx context.Context, ckpt *nn.Checkpoint, path string) error

// Trainer owns the network, its optimizer and the shuffling rng
type Trainer struct {
	net     *nn.Net
	opt     *tensor.AdamW
	cfg     Config
	rng     *rand.Rand
	runID   string
	logger  *zap.Logger
	metrics *Metrics

	onCheckpoint CheckpointFunc
}

// Option configures a Trainer
type Option func(*Trainer)

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(t *Trainer) { t.logger = l }
}

// WithMetrics sets the prometheus metrics
func WithMetrics(m *Metrics) Option {
	return func(t *Trainer) { t.metrics = m }
}

// WithCheckpointHook registers a callback for saved checkpoints
func WithCheckpointHook(f CheckpointFunc) Option {
	return func(t *Trainer) { t.onCheckpoint = f }
}

// WithRunID overrides the generated run id
func WithRunID(id string) Option {
	return func(t *Trainer) { t.runID = id }
}

// NewTrainer creates a trainer for net
func NewTrainer(net *nn.Net, cfg Config, opts ...Option) *Trainer {
	t := &Trainer{
		net:    net,
		opt:    tensor.NewAdamW(cfg.LR),
		cfg:    cfg,
		rng:    rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
		runID:  nn.NewRunID(),
		logger: zap.NewNop(),
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// RunID returns the id stamped on checkpoints of this run
func (t *Trainer) RunID() string {
	return t.runID
}

// Run trains for the configured number of epochs and keeps the checkpoint with
// the lowest validation loss. Cancellation is checked between batches.
func (t *Trainer) Run(ctx context.Context, trainSet, valSet []*model.TrainingSample) (*Result, error) {
	if len(trainSet) == 0 {
		return nil, fmt.Errorf("%w: training split is empty", ErrNoSamples)
	}
	if len(valSet) == 0 {
		return nil, fmt.Errorf("%w: validation split is empty", ErrNoSamples)
	}

	t.logger.Info("training started",
		zap.String("run_id", t.runID),
		zap.Int("params", t.net.NumParams()),
		zap.Int("train_samples", len(trainSet)),
		zap.Int("val_samples", len(valSet)),
		zap.Int("epochs", t.cfg.Epochs),
	)

	trainLoader := NewLoader(trainSet, t.cfg.BatchSize, true, t.rng)
	valLoader := NewLoader(valSet, t.cfg.BatchSize, false, nil)

	res := &Result{RunID: t.runID, BestValLoss: math.Inf(1), BestEpoch: -1}
	logEvery := max(t.cfg.LogEvery, 1)

	for epoch := 0; epoch < t.cfg.Epochs; epoch++ {
		factor := nn.DropoutFactor(epoch, t.cfg.Epochs)

		trainLoss, gradNorm, err := t.trainEpoch(ctx, trainLoader, factor)
		if err != nil {
			return res, err
		}
		valLoss, err := t.validate(ctx, valLoader)
		if err != nil {
			return res, err
		}

		stats := EpochStats{Epoch: epoch, TrainLoss: trainLoss, ValLoss: valLoss, GradNorm: gradNorm}
		if valLoss < res.BestValLoss {
			stats.Improved = true
			res.BestValLoss = valLoss
			res.BestEpoch = epoch
			res.Best = nn.Snapshot(t.net, t.runID, epoch, valLoss, t.cfg.Window, t.cfg.Fields)
			if err := t.saveCheckpoint(ctx, res.Best); err != nil {
				return res, err
			}
		}
		res.History = append(res.History, stats)
		res.Epochs = epoch + 1
		t.observe(stats, res.BestValLoss)

		if epoch%logEvery == 0 {
			t.logger.Info("epoch",
				zap.Int("epoch", epoch),
				zap.Float64("train_loss", trainLoss),
				zap.Float64("val_loss", valLoss),
				zap.Float64("best_val_loss", res.BestValLoss),
			)
		}
	}

	t.logger.Info("training finished",
		zap.String("run_id", t.runID),
		zap.Int("best_epoch", res.BestEpoch),
		zap.Float64("best_val_loss", res.BestValLoss),
	)
	return res, nil
}

func (t *Trainer) trainEpoch(ctx context.Context, loader *Loader, factor float64) (float64, float64, error) {
	t.net.Train(true)
	params := t.net.Parameters()

	total, gradNorm := 0.0, 0.0
	batches := loader.Batches()
	for _, batch := range batches {
		if err := ctx.Err(); err != nil {
			return 0, 0, err
		}
		values, mask, targets, err := Collate(batch)
		if err != nil {
			return 0, 0, err
		}

		tensor.ZeroGrad(params)
		_, loss, err := t.net.Loss(values, mask, targets, factor)
		if err != nil {
			return 0, 0, err
		}
		tensor.Backward(loss)
		gradNorm = tensor.ClipGradNorm(params, t.cfg.MaxGradNorm)
		t.opt.Step(params)

		total += loss.Item()
		if t.metrics != nil {
			t.metrics.Batches.Inc()
		}
	}
	return total / float64(len(batches)), gradNorm, nil
}

func (t *Trainer) validate(ctx context.Context, loader *Loader) (float64, error) {
	t.net.Train(false)

	total := 0.0
	batches := loader.Batches()
	for _, batch := range batches {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		values, mask, targets, err := Collate(batch)
		if err != nil {
			return 0, err
		}
		_, loss, err := t.net.Loss(values, mask, targets, 0)
		if err != nil {
			return 0, err
		}
		total += loss.Item()
	}
	return total / float64(len(batches)), nil
}

func (t *Trainer) saveCheckpoint(ctx context.Context, ckpt *nn.Checkpoint) error {
	if t.cfg.CheckpointPath != "" {
		if err := ckpt.Save(t.cfg.CheckpointPath); err != nil {
			return fmt.Errorf("failed to save checkpoint: %w", err)
		}
	}
	if t.metrics != nil {
		t.metrics.Checkpoints.Inc()
	}
	if t.onCheckpoint != nil {
		return t.onCheckpoint(ctx, ckpt, t.cfg.CheckpointPath)
	}
	return nil
}

func (t *Trainer) observe(s EpochStats, best float64) {
	if t.metrics == nil {
		return
	}
	t.metrics.Epoch.Set(float64(s.Epoch))
	t.metrics.TrainLoss.Set(s.TrainLoss)
	t.metrics.ValLoss.Set(s.ValLoss)
	t.metrics.BestValLoss.Set(best)
	t.metrics.GradNorm.Set(s.GradNorm)
}

// Predict runs the network in evaluation mode over samples and returns one
// prediction row per sample
func Predict(net *nn.Net, samples []*model.TrainingSample, batchSize int) ([][]float64, error) {
	prev := net.Training()
	net.Train(false)
	defer net.Train(prev)

	out := make([][]float64, 0, len(samples))
	for _, batch := range NewLoader(samples, batchSize, false, nil).Batches() {
		values, mask, _, err := Collate(batch)
		if err != nil {
			return nil, err
		}
		pred, err := net.Forward(values, mask, 0)
		if err != nil {
			return nil, err
		}
		k := pred.Dim(1)
		for i := range batch {
			out = append(out, append([]float64(nil), pred.Data[i*k:(i+1)*k]...))
		}
	}
	return out, nil
}
