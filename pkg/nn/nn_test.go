package nn

import (
	"math"
	"math/rand/v2"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tunogya/elois/pkg/tensor"
)

func randInput(rng *rand.Rand, batch, n int, missing float64) (*tensor.Tensor, *tensor.Tensor) {
	values := tensor.Zeros(batch, n)
	mask := tensor.Zeros(batch, n)
	for i := range values.Data {
		if rng.Float64() < missing {
			mask.Data[i] = 1
			continue
		}
		values.Data[i] = rng.NormFloat64()
	}
	return values, mask
}

func smallConfig() Config {
	cfg := DefaultConfig(12)
	cfg.NHead = 4
	return cfg
}

func TestHeadAllMissingIsFinite(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 1))
	h := NewHead(8, 3, rng)

	values := tensor.Zeros(5, 8)
	mask := tensor.Full(1, 5, 8)
	out := h.Forward(values, mask)

	assert.Equal(t, []int{5, 3}, out.Shape)
	for _, v := range out.Data {
		assert.False(t, math.IsNaN(v) || math.IsInf(v, 0))
	}
}

func TestHeadMixesValues(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 1))
	h := NewHead(4, 2, rng)
	copy(h.Proj.Data, []float64{1, 0, 0, 0, 0, 1, 0, 0})

	values := tensor.New([]int{1, 4}, []float64{2, 4, 0, 0})
	mask := tensor.Zeros(1, 4)
	out := h.Forward(values, mask)

	// m = 0 so the coefficients are softmax(I) and every output is
	// 0.1·(softmax row)·v
	e := math.E / (math.E + 1)
	assert.InDelta(t, 0.1*(e*2+(1-e)*4), out.Data[0], 1e-12)
	assert.InDelta(t, 0.1*((1-e)*2+e*4), out.Data[1], 1e-12)
}

func TestFinancialDropoutEvalIsIdentity(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 1))
	values, mask := randInput(rng, 4, 6, 0.3)

	d := FinancialDropout{DropProb: 0.9}
	v, m := d.Apply(values, mask, 1, false, rng)
	assert.Same(t, values, v)
	assert.Same(t, mask, m)
}

func TestFinancialDropoutZeroProbOnlyScales(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 7))
	values := tensor.Full(1, 50, 10)
	mask := tensor.Full(1, 50, 10)

	v, m := FinancialDropout{DropProb: 0}.Apply(values, mask, 1, true, rng)
	for b := 0; b < 50; b++ {
		row := v.Data[b*10 : (b+1)*10]
		for _, x := range row {
			assert.Equal(t, row[0], x, "one scale per sample")
			assert.GreaterOrEqual(t, x, 0.5)
			assert.LessOrEqual(t, x, 2.0)
		}
	}
	assert.Equal(t, mask.Data, m.Data)
}

func TestFinancialDropoutDropsValuesAndMask(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 7))
	values := tensor.Full(1, 20, 50)
	mask := tensor.Full(1, 20, 50)

	v, m := FinancialDropout{DropProb: 0.5}.Apply(values, mask, 1, true, rng)
	dropped := 0
	for i := range v.Data {
		if m.Data[i] == 0 {
			dropped++
			assert.Equal(t, 0.0, v.Data[i])
		}
	}
	assert.InDelta(t, 500, dropped, 80)
	assert.Equal(t, 1.0, values.Data[0], "input untouched")
}

func TestDropoutFactor(t *testing.T) {
	assert.Equal(t, 0.0, DropoutFactor(0, 1000))
	assert.InDelta(t, 1.0, DropoutFactor(1000, 1000), 1e-12)
	assert.InDelta(t, math.Pow(0.5, 0.2), DropoutFactor(500, 1000), 1e-12)
	assert.Equal(t, 0.0, DropoutFactor(3, 0))
}

func TestNetForwardShapesAndLoss(t *testing.T) {
	n, err := New(smallConfig())
	require.NoError(t, err)

	rng := rand.New(rand.NewPCG(3, 3))
	values, mask := randInput(rng, 6, 12, 0.2)
	targets := tensor.Zeros(6, 1)

	n.Train(true)
	pred, loss, err := n.Loss(values, mask, targets, 1)
	require.NoError(t, err)
	assert.Equal(t, []int{6, 1}, pred.Shape)
	assert.GreaterOrEqual(t, loss.Item(), 0.0)

	tensor.Backward(loss)
	nonZero := 0
	for _, p := range n.Parameters() {
		for _, g := range p.Grad {
			if g != 0 {
				nonZero++
				break
			}
		}
	}
	assert.Greater(t, nonZero, len(n.Parameters())/2)

	_, err = n.Forward(tensor.Zeros(2, 5), tensor.Zeros(2, 5), 0)
	assert.ErrorIs(t, err, tensor.ErrShape)
}

func TestNetEvalIsDeterministic(t *testing.T) {
	n, err := New(smallConfig())
	require.NoError(t, err)

	values, mask := randInput(rand.New(rand.NewPCG(3, 3)), 3, 12, 0.2)
	a, err := n.Forward(values, mask, 1)
	require.NoError(t, err)
	b, err := n.Forward(values, mask, 1)
	require.NoError(t, err)
	assert.Equal(t, a.Data, b.Data)

	n.Train(true)
	emb, err := n.Embed(values, mask)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 12}, emb.Shape)
	assert.True(t, n.Training(), "embed restores the mode")
}

func TestNetConfig(t *testing.T) {
	cfg := DefaultConfig(12)
	n, err := New(cfg)
	require.NoError(t, err)
	assert.Equal(t, 12, n.Config.NHead, "head count clamped to n_embd")
	assert.Equal(t, 1, n.Config.HeadSize())

	_, err = New(Config{NEmbd: 0, NHead: 1, NLayer: 1, OutputSize: 1})
	assert.ErrorIs(t, err, ErrConfig)
}

func TestParameterNamesAndCount(t *testing.T) {
	cfg := smallConfig()
	n, err := New(cfg)
	require.NoError(t, err)

	names := map[string]bool{}
	for _, p := range n.NamedParameters() {
		assert.False(t, names[p.Name], "duplicate %s", p.Name)
		names[p.Name] = true
	}
	assert.True(t, names["blocks.0.mh.heads.3.values_proj.weight"])
	assert.True(t, names["lm_head.1.bias"])

	hs := 3
	perHead := hs*12 + 2*hs*hs
	want := 4*perHead + (12*12 + 12) + 2*12 + (12*12 + 12) + (12 + 1)
	assert.Equal(t, want, n.NumParams())
}

func TestCheckpointRoundTrip(t *testing.T) {
	n, err := New(smallConfig())
	require.NoError(t, err)
	n.Head.Bias.Data[0] = 0.75

	path := filepath.Join(t.TempDir(), "ckpt", "best.zst")
	ckpt := Snapshot(n, NewRunID(), 12, 0.5, 3, []string{"a", "b"})
	require.NoError(t, ckpt.Save(path))

	loaded, err := LoadCheckpoint(path)
	require.NoError(t, err)
	assert.Equal(t, ckpt.RunID, loaded.RunID)
	assert.Equal(t, 12, loaded.Epoch)
	assert.Equal(t, 3, loaded.Window)

	restored, err := loaded.Restore()
	require.NoError(t, err)

	values, mask := randInput(rand.New(rand.NewPCG(9, 9)), 4, 12, 0.3)
	want, err := n.Forward(values, mask, 0)
	require.NoError(t, err)
	got, err := restored.Forward(values, mask, 0)
	require.NoError(t, err)
	assert.Equal(t, want.Data, got.Data)

	loaded.Version = 99
	_, err = loaded.Restore()
	assert.ErrorIs(t, err, ErrCheckpointVersion)
}

func TestLoadStateDictErrors(t *testing.T) {
	n, err := New(smallConfig())
	require.NoError(t, err)

	state := n.StateDict()
	state["lm_head.1.bias"] = []float64{1, 2}
	assert.ErrorIs(t, n.LoadStateDict(state), tensor.ErrShape)

	delete(state, "lm_head.1.bias")
	assert.Error(t, n.LoadStateDict(state))
}
