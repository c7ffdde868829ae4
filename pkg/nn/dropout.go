package nn

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/tunogya/elois/pkg/tensor"
)

// FinancialDropout hides random fields during training and rescales each sample
// so the model learns to forecast from partial and differently sized reports.
type FinancialDropout struct {
	DropProb float64
}

// Apply returns new values and mask tensors. A field is kept when a uniform draw
// exceeds DropProb·factor; kept values are multiplied by a per-sample scale in
// [0.5, 2]. Outside training the inputs are returned unchanged.
func (d FinancialDropout) Apply(values, mask *tensor.Tensor, factor float64, training bool, rng *rand.Rand) (*tensor.Tensor, *tensor.Tensor) {
	if !training {
		return values, mask
	}

	batch, n := values.Dim(0), values.Dim(1)
	threshold := d.DropProb * factor
	scales := distuv.Uniform{Min: 0.5, Max: 2.0, Src: rng}

	v := make([]float64, values.Size())
	m := make([]float64, mask.Size())
	for b := 0; b < batch; b++ {
		scale := scales.Rand()
		for j := 0; j < n; j++ {
			i := b*n + j
			if rng.Float64() > threshold {
				v[i] = values.Data[i] * scale
				m[i] = mask.Data[i]
			}
		}
	}
	return tensor.New(values.Shape, v), tensor.New(mask.Shape, m)
}

// DropoutFactor ramps the drop probability from 0 at the first epoch to 1 at the last
func DropoutFactor(epoch, total int) float64 {
	if total <= 0 || epoch <= 0 {
		return 0
	}
	return math.Pow(float64(epoch), 0.2) / math.Pow(float64(total), 0.2)
}
