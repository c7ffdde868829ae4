package train

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/tunogya/elois/pkg/model"
	"github.com/tunogya/elois/pkg/tensor"
)

// ErrNoSamples is returned when a split has nothing to train or validate on
var ErrNoSamples = errors.New("no samples")

// Collate stacks samples into values, mask and targets tensors. Targets is nil
// when the samples carry none.
func Collate(samples []*model.TrainingSample) (values, mask, targets *tensor.Tensor, err error) {
	if len(samples) == 0 {
		return nil, nil, nil, ErrNoSamples
	}
	width := samples[0].Width()
	outputs := len(samples[0].Target)

	v := make([]float64, 0, len(samples)*width)
	m := make([]float64, 0, len(samples)*width)
	t := make([]float64, 0, len(samples)*outputs)
	for _, s := range samples {
		if s.Width() != width || len(s.Mask) != width || len(s.Target) != outputs {
			return nil, nil, nil, fmt.Errorf("%w: sample %s does not match batch shape", model.ErrShapeMismatch, s.SampleID)
		}
		v = append(v, s.Values...)
		m = append(m, s.Mask...)
		t = append(t, s.Target...)
	}

	values = tensor.New([]int{len(samples), width}, v)
	mask = tensor.New([]int{len(samples), width}, m)
	if outputs > 0 {
		targets = tensor.New([]int{len(samples), outputs}, t)
	}
	return values, mask, targets, nil
}

// Loader splits samples into batches, reshuffling on every pass when enabled
type Loader struct {
	samples   []*model.TrainingSample
	batchSize int
	shuffle   bool
	rng       *rand.Rand
}

// NewLoader creates a loader over a private copy of the sample order
func NewLoader(samples []*model.TrainingSample, batchSize int, shuffle bool, rng *rand.Rand) *Loader {
	if batchSize < 1 {
		batchSize = 1
	}
	return &Loader{
		samples:   append([]*model.TrainingSample(nil), samples...),
		batchSize: batchSize,
		shuffle:   shuffle,
		rng:       rng,
	}
}

// Len returns the number of samples
func (l *Loader) Len() int {
	return len(l.samples)
}

// Batches returns the batches of one pass
func (l *Loader) Batches() [][]*model.TrainingSample {
	if l.shuffle {
		l.rng.Shuffle(len(l.samples), func(i, j int) {
			l.samples[i], l.samples[j] = l.samples[j], l.samples[i]
		})
	}

	batches := make([][]*model.TrainingSample, 0, (len(l.samples)+l.batchSize-1)/l.batchSize)
	for start := 0; start < len(l.samples); start += l.batchSize {
		end := min(start+l.batchSize, len(l.samples))
		batches = append(batches, l.samples[start:end])
	}
	return batches
}
