package nn

import (
	"math/rand/v2"

	"github.com/tunogya/elois/pkg/tensor"
)

const (
	initStd     = 0.02
	layerNormEp = 1e-5
)

// Linear is a dense layer with bias
type Linear struct {
	Weight *tensor.Tensor // [out, in]
	Bias   *tensor.Tensor // [out]
}

// NewLinear creates a dense layer with N(0, 0.02) weights and zero bias
func NewLinear(in, out int, rng *rand.Rand) *Linear {
	return &Linear{
		Weight: tensor.Normal(rng, initStd, out, in),
		Bias:   tensor.Param(tensor.Zeros(out)),
	}
}

// Forward applies the layer
func (l *Linear) Forward(x *tensor.Tensor) *tensor.Tensor {
	return tensor.Linear(x, l.Weight, l.Bias)
}

// Parameters returns the layer weights
func (l *Linear) Parameters() []NamedParam {
	return []NamedParam{{Name: "weight", Tensor: l.Weight}, {Name: "bias", Tensor: l.Bias}}
}

// LayerNorm normalizes the feature dimension
type LayerNorm struct {
	Gamma *tensor.Tensor
	Beta  *tensor.Tensor
}

// NewLayerNorm creates a layer norm with unit scale and zero shift
func NewLayerNorm(n int) *LayerNorm {
	return &LayerNorm{
		Gamma: tensor.Param(tensor.Full(1, n)),
		Beta:  tensor.Param(tensor.Zeros(n)),
	}
}

// Forward applies the normalization
func (l *LayerNorm) Forward(x *tensor.Tensor) *tensor.Tensor {
	return tensor.LayerNorm(x, l.Gamma, l.Beta, layerNormEp)
}

// Parameters returns the scale and shift
func (l *LayerNorm) Parameters() []NamedParam {
	return []NamedParam{{Name: "weight", Tensor: l.Gamma}, {Name: "bias", Tensor: l.Beta}}
}

// MultiHead runs heads in parallel and projects their concatenation back to n_embd
type MultiHead struct {
	Heads   []*Head
	Proj    *Linear
	Norm    *LayerNorm
	Dropout float64
}

// NewMultiHead creates nHead heads of size headSize over nEmbd inputs
func NewMultiHead(nEmbd, nHead, headSize int, dropout float64, rng *rand.Rand) *MultiHead {
	heads := make([]*Head, nHead)
	for i := range heads {
		heads[i] = NewHead(nEmbd, headSize, rng)
	}
	return &MultiHead{
		Heads:   heads,
		Proj:    NewLinear(headSize*nHead, nEmbd, rng),
		Norm:    NewLayerNorm(nEmbd),
		Dropout: dropout,
	}
}

// Forward maps values and mask [B, n_embd] to [B, n_embd]
func (mh *MultiHead) Forward(values, mask *tensor.Tensor, training bool, rng *rand.Rand) *tensor.Tensor {
	outs := make([]*tensor.Tensor, len(mh.Heads))
	for i, h := range mh.Heads {
		outs[i] = h.Forward(values, mask)
	}
	out := tensor.Dropout(mh.Proj.Forward(tensor.Concat(outs...)), mh.Dropout, training, rng)
	return mh.Norm.Forward(out)
}

// Parameters returns every head followed by the projection and the norm
func (mh *MultiHead) Parameters() []NamedParam {
	var params []NamedParam
	for i, h := range mh.Heads {
		params = append(params, prefixed(headName(i), h.Parameters())...)
	}
	params = append(params, prefixed("proj", mh.Proj.Parameters())...)
	params = append(params, prefixed("layerNorm", mh.Norm.Parameters())...)
	return params
}
