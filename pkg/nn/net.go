package nn

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/tunogya/elois/pkg/tensor"
)

// ErrConfig is returned for an unusable network configuration
var ErrConfig = errors.New("invalid network config")

// Config describes the network shape
type Config struct {
	NEmbd       int     `json:"n_embd" yaml:"n_embd" validate:"min=1"`
	NHead       int     `json:"n_head" yaml:"n_head" validate:"min=1"`
	NLayer      int     `json:"n_layer" yaml:"n_layer" validate:"min=1"`
	OutputSize  int     `json:"output_size" yaml:"output_size" validate:"min=1"`
	DropProb    float64 `json:"drop_prob" yaml:"drop_prob" validate:"min=0,max=1"`
	HeadDropout float64 `json:"head_dropout" yaml:"head_dropout" validate:"min=0,lt=1"`
	Seed        uint64  `json:"seed" yaml:"seed"`
}

// DefaultConfig returns the training defaults for a given input width
func DefaultConfig(nEmbd int) Config {
	return Config{
		NEmbd:       nEmbd,
		NHead:       64,
		NLayer:      1,
		OutputSize:  1,
		DropProb:    0.3,
		HeadDropout: 0.1,
		Seed:        42,
	}
}

// HeadSize returns n_embd / n_head after clamping the head count
func (c Config) HeadSize() int {
	return c.NEmbd / c.NHead
}

func (c Config) normalize() (Config, error) {
	if c.NEmbd < 1 || c.NHead < 1 || c.NLayer < 1 || c.OutputSize < 1 {
		return c, fmt.Errorf("%w: n_embd=%d n_head=%d n_layer=%d output_size=%d",
			ErrConfig, c.NEmbd, c.NHead, c.NLayer, c.OutputSize)
	}
	if c.DropProb < 0 || c.DropProb > 1 || c.HeadDropout < 0 || c.HeadDropout >= 1 {
		return c, fmt.Errorf("%w: dropout out of range", ErrConfig)
	}
	if c.NHead > c.NEmbd {
		c.NHead = c.NEmbd
	}
	return c, nil
}

// Net is the forecaster: financial dropout, a stack of blocks and a GELU + linear head
type Net struct {
	Config  Config
	Dropout FinancialDropout
	Blocks  []*Block
	Head    *Linear

	training bool
	rng      *rand.Rand
}

// New builds a network with seeded initialization
func New(cfg Config) (*Net, error) {
	cfg, err := cfg.normalize()
	if err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed))
	blocks := make([]*Block, cfg.NLayer)
	for i := range blocks {
		blocks[i] = NewBlock(cfg.NEmbd, cfg.NHead, cfg.HeadDropout, rng)
	}

	return &Net{
		Config:  cfg,
		Dropout: FinancialDropout{DropProb: cfg.DropProb},
		Blocks:  blocks,
		Head:    NewLinear(cfg.NEmbd, cfg.OutputSize, rng),
		rng:     rng,
	}, nil
}

// Train switches between training and evaluation behavior
func (n *Net) Train(on bool) {
	n.training = on
}

// Training reports whether the network is in training mode
func (n *Net) Training() bool {
	return n.training
}

// Forward predicts [B, output_size] from values and mask [B, n_embd]
func (n *Net) Forward(values, mask *tensor.Tensor, dropoutFactor float64) (*tensor.Tensor, error) {
	h, err := n.encode(values, mask, dropoutFactor)
	if err != nil {
		return nil, err
	}
	return n.Head.Forward(tensor.GELU(h)), nil
}

// Loss runs Forward and returns the predictions and their mean absolute error
func (n *Net) Loss(values, mask, targets *tensor.Tensor, dropoutFactor float64) (*tensor.Tensor, *tensor.Tensor, error) {
	pred, err := n.Forward(values, mask, dropoutFactor)
	if err != nil {
		return nil, nil, err
	}
	if targets.Size() != pred.Size() {
		return nil, nil, fmt.Errorf("%w: %d targets for %d predictions", tensor.ErrShape, targets.Size(), pred.Size())
	}
	return pred, tensor.L1Loss(pred, targets), nil
}

// Embed returns the final block output [B, n_embd] in evaluation mode
func (n *Net) Embed(values, mask *tensor.Tensor) (*tensor.Tensor, error) {
	prev := n.training
	n.training = false
	defer func() { n.training = prev }()

	h, err := n.encode(values, mask, 0)
	if err != nil {
		return nil, err
	}
	return h.Detach(), nil
}

func (n *Net) encode(values, mask *tensor.Tensor, dropoutFactor float64) (*tensor.Tensor, error) {
	if len(values.Shape) != 2 || values.Dim(1) != n.Config.NEmbd || values.Dim(0) == 0 {
		return nil, fmt.Errorf("%w: values %v, want [B %d]", tensor.ErrShape, values.Shape, n.Config.NEmbd)
	}
	if len(mask.Shape) != 2 || mask.Dim(0) != values.Dim(0) || mask.Dim(1) != values.Dim(1) {
		return nil, fmt.Errorf("%w: mask %v does not match values %v", tensor.ErrShape, mask.Shape, values.Shape)
	}

	values, mask = n.Dropout.Apply(values, mask, dropoutFactor, n.training, n.rng)
	for _, b := range n.Blocks {
		values, mask = b.Forward(values, mask, n.training, n.rng)
	}
	return values, nil
}

// NamedParameters returns every trainable tensor in a stable order
func (n *Net) NamedParameters() []NamedParam {
	var params []NamedParam
	for i, b := range n.Blocks {
		params = append(params, prefixed(fmt.Sprintf("blocks.%d", i), b.Parameters())...)
	}
	return append(params, prefixed("lm_head.1", n.Head.Parameters())...)
}

// Parameters returns every trainable tensor
func (n *Net) Parameters() []*tensor.Tensor {
	named := n.NamedParameters()
	out := make([]*tensor.Tensor, len(named))
	for i, p := range named {
		out[i] = p.Tensor
	}
	return out
}

// NumParams returns the number of trainable scalars
func (n *Net) NumParams() int {
	total := 0
	for _, p := range n.Parameters() {
		total += p.Size()
	}
	return total
}

// StateDict copies every parameter under its name
func (n *Net) StateDict() map[string][]float64 {
	state := make(map[string][]float64)
	for _, p := range n.NamedParameters() {
		state[p.Name] = append([]float64(nil), p.Tensor.Data...)
	}
	return state
}

// LoadStateDict overwrites parameters from a state dict with matching names and sizes
func (n *Net) LoadStateDict(state map[string][]float64) error {
	for _, p := range n.NamedParameters() {
		data, ok := state[p.Name]
		if !ok {
			return fmt.Errorf("missing parameter %s", p.Name)
		}
		if len(data) != p.Tensor.Size() {
			return fmt.Errorf("%w: parameter %s has %d values, want %d", tensor.ErrShape, p.Name, len(data), p.Tensor.Size())
		}
		copy(p.Tensor.Data, data)
	}
	return nil
}
