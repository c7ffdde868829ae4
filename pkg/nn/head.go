// Package nn holds the masked-attention forecaster built on pkg/tensor.
package nn

import (
	"fmt"
	"math/rand/v2"

	"github.com/tunogya/elois/pkg/tensor"
)

// NamedParam is a trainable tensor with its stable state name
type NamedParam struct {
	Name   string
	Tensor *tensor.Tensor
}

func prefixed(prefix string, params []NamedParam) []NamedParam {
	out := make([]NamedParam, len(params))
	for i, p := range params {
		out[i] = NamedParam{Name: prefix + "." + p.Name, Tensor: p.Tensor}
	}
	return out
}

// Head encodes a value vector together with its missingness mask.
// One projection is shared by the values, the mask and its complement; the
// mask-modulated covariance then weights how the projected values are mixed.
type Head struct {
	Size     int
	Proj     *tensor.Tensor // [hs, n_embd], no bias
	Cov      *tensor.Tensor // [hs, hs]
	Loadings *tensor.Tensor // [hs, hs]
}

// NewHead creates a head projecting nEmbd inputs to headSize outputs
func NewHead(nEmbd, headSize int, rng *rand.Rand) *Head {
	return &Head{
		Size:     headSize,
		Proj:     tensor.Normal(rng, initStd, headSize, nEmbd),
		Cov:      tensor.Param(tensor.Full(0.1, headSize, headSize)),
		Loadings: tensor.Param(tensor.Full(0.1, headSize, headSize)),
	}
}

// Forward maps values and mask [B, n_embd] to [B, hs]
func (h *Head) Forward(values, mask *tensor.Tensor) *tensor.Tensor {
	v := tensor.Linear(values, h.Proj, nil)
	m := tensor.Linear(mask, h.Proj, nil)
	u := tensor.Linear(tensor.OneMinus(mask), h.Proj, nil)

	coef := tensor.SoftmaxRows(tensor.AddEye(tensor.DiagSandwich(m, h.Cov, u)))
	return tensor.BatchMatVec(tensor.MulBroadcast(h.Loadings, coef), v)
}

// Parameters returns the head's trainable tensors in state order
func (h *Head) Parameters() []NamedParam {
	return []NamedParam{
		{Name: "values_proj.weight", Tensor: h.Proj},
		{Name: "cov", Tensor: h.Cov},
		{Name: "loadings", Tensor: h.Loadings},
	}
}

func headName(i int) string {
	return fmt.Sprintf("heads.%d", i)
}
