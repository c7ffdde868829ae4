package train

import (
	"context"
	"math/rand/v2"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tunogya/elois/pkg/model"
	"github.com/tunogya/elois/pkg/nn"
)

func synthetic(n, width int, seed uint64) []*model.TrainingSample {
	rng := rand.New(rand.NewPCG(seed, seed))
	out := make([]*model.TrainingSample, n)
	for i := range out {
		s := &model.TrainingSample{
			SampleID:  model.GenerateSampleID("C", 2000+i, 3, 1),
			CompanyID: "C",
			Values:    make([]float64, width),
			Mask:      make([]float64, width),
		}
		for j := range s.Values {
			s.Values[j] = rng.NormFloat64()
		}
		s.Target = []float64{s.Values[0] + 0.5*s.Values[1]}
		out[i] = s
	}
	return out
}

func smallNet(t *testing.T, width int) *nn.Net {
	t.Helper()
	cfg := nn.DefaultConfig(width)
	cfg.NHead = 2
	cfg.DropProb = 0
	cfg.HeadDropout = 0
	n, err := nn.New(cfg)
	require.NoError(t, err)
	return n
}

func TestCollate(t *testing.T) {
	samples := synthetic(3, 4, 1)
	values, mask, targets, err := Collate(samples)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 4}, values.Shape)
	assert.Equal(t, []int{3, 4}, mask.Shape)
	assert.Equal(t, []int{3, 1}, targets.Shape)
	assert.Equal(t, samples[1].Values[2], values.Data[6])

	_, _, _, err = Collate(nil)
	assert.ErrorIs(t, err, ErrNoSamples)

	samples[2].Values = samples[2].Values[:3]
	_, _, _, err = Collate(samples)
	assert.ErrorIs(t, err, model.ErrShapeMismatch)

	noTarget := synthetic(2, 4, 1)
	for _, s := range noTarget {
		s.Target = nil
	}
	_, _, targets, err = Collate(noTarget)
	require.NoError(t, err)
	assert.Nil(t, targets)
}

func TestLoaderBatches(t *testing.T) {
	samples := synthetic(10, 2, 1)

	fixed := NewLoader(samples, 4, false, nil)
	batches := fixed.Batches()
	require.Len(t, batches, 3)
	assert.Len(t, batches[2], 2)
	assert.Same(t, samples[0], batches[0][0])

	shuffled := NewLoader(samples, 3, true, rand.New(rand.NewPCG(1, 2)))
	seen := map[*model.TrainingSample]bool{}
	for _, b := range shuffled.Batches() {
		for _, s := range b {
			seen[s] = true
		}
	}
	assert.Len(t, seen, 10)
	assert.Same(t, samples[0], fixed.Batches()[0][0], "caller order untouched")
}

func TestRunReducesValidationLoss(t *testing.T) {
	width := 4
	net := smallNet(t, width)
	cfg := DefaultConfig()
	cfg.Epochs = 60
	cfg.BatchSize = 16
	cfg.LR = 1e-2
	cfg.CheckpointPath = filepath.Join(t.TempDir(), "best.zst")

	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)

	hooked := 0
	tr := NewTrainer(net, cfg,
		WithMetrics(metrics),
		WithRunID("run-1"),
		WithCheckpointHook(func(_ context.Context, ckpt *nn.Checkpoint, path string) error {
			hooked++
			assert.Equal(t, "run-1", ckpt.RunID)
			assert.Equal(t, cfg.CheckpointPath, path)
			return nil
		}),
	)

	res, err := tr.Run(context.Background(), synthetic(64, width, 1), synthetic(32, width, 2))
	require.NoError(t, err)
	require.Len(t, res.History, 60)
	assert.Equal(t, 60, res.Epochs)
	assert.Less(t, res.BestValLoss, res.History[0].ValLoss)
	assert.Equal(t, res.BestValLoss, res.History[res.BestEpoch].ValLoss)
	require.NotNil(t, res.Best)
	assert.Equal(t, res.BestEpoch, res.Best.Epoch)
	assert.Greater(t, hooked, 0)

	assert.Equal(t, 59.0, testutil.ToFloat64(metrics.Epoch))
	assert.Equal(t, res.BestValLoss, testutil.ToFloat64(metrics.BestValLoss))
	assert.Equal(t, float64(60*4), testutil.ToFloat64(metrics.Batches))
	assert.Equal(t, float64(hooked), testutil.ToFloat64(metrics.Checkpoints))

	loaded, err := nn.LoadCheckpoint(cfg.CheckpointPath)
	require.NoError(t, err)
	assert.Equal(t, res.BestEpoch, loaded.Epoch)
}

func TestRunRequiresBothSplits(t *testing.T) {
	tr := NewTrainer(smallNet(t, 4), DefaultConfig())
	_, err := tr.Run(context.Background(), nil, synthetic(2, 4, 1))
	assert.ErrorIs(t, err, ErrNoSamples)
	_, err = tr.Run(context.Background(), synthetic(2, 4, 1), nil)
	assert.ErrorIs(t, err, ErrNoSamples)
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tr := NewTrainer(smallNet(t, 4), DefaultConfig())
	res, err := tr.Run(ctx, synthetic(8, 4, 1), synthetic(4, 4, 2))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, res.History)
}

func TestPredict(t *testing.T) {
	net := smallNet(t, 4)
	net.Train(true)
	samples := synthetic(5, 4, 3)

	preds, err := Predict(net, samples, 2)
	require.NoError(t, err)
	require.Len(t, preds, 5)
	assert.Len(t, preds[0], 1)
	assert.True(t, net.Training())
}
