package nn

import (
	"math/rand/v2"

	"github.com/tunogya/elois/pkg/tensor"
)

// FeedForward is GELU followed by a square linear layer
type FeedForward struct {
	Proj *Linear
}

// NewFeedForward creates a feed-forward layer of width nEmbd
func NewFeedForward(nEmbd int, rng *rand.Rand) *FeedForward {
	return &FeedForward{Proj: NewLinear(nEmbd, nEmbd, rng)}
}

// Forward applies the layer
func (f *FeedForward) Forward(x *tensor.Tensor) *tensor.Tensor {
	return f.Proj.Forward(tensor.GELU(x))
}

// Block is one multi-head layer followed by a feed-forward layer.
// The mask passes through unchanged so blocks can be stacked.
type Block struct {
	MultiHead   *MultiHead
	FeedForward *FeedForward
}

// NewBlock creates a block with nHead heads over nEmbd features
func NewBlock(nEmbd, nHead int, dropout float64, rng *rand.Rand) *Block {
	return &Block{
		MultiHead:   NewMultiHead(nEmbd, nHead, nEmbd/nHead, dropout, rng),
		FeedForward: NewFeedForward(nEmbd, rng),
	}
}

// Forward returns the transformed values and the original mask
func (b *Block) Forward(values, mask *tensor.Tensor, training bool, rng *rand.Rand) (*tensor.Tensor, *tensor.Tensor) {
	out := b.MultiHead.Forward(values, mask, training, rng)
	return b.FeedForward.Forward(out), mask
}

// Parameters returns the block's weights in state order
func (b *Block) Parameters() []NamedParam {
	params := prefixed("mh", b.MultiHead.Parameters())
	return append(params, prefixed("ffwd.net.1", b.FeedForward.Proj.Parameters())...)
}
