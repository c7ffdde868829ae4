// Package tensor implements the small reverse-mode autodiff engine the forecaster trains on.
// Tensors are row-major float64 buffers; matrix products go through gonum.
package tensor

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// ErrShape is returned when operands disagree on shape
var ErrShape = errors.New("tensor shape mismatch")

// Tensor is a node of the computation graph
type Tensor struct {
	Shape []int
	Data  []float64
	Grad  []float64

	requiresGrad bool
	parents      []*Tensor
	backward     func()
}

func numel(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

// New wraps data as a constant tensor. Data is not copied.
func New(shape []int, data []float64) *Tensor {
	if len(data) != numel(shape) {
		panic(fmt.Sprintf("%v: %d values for shape %v", ErrShape, len(data), shape))
	}
	return &Tensor{
		Shape: append([]int(nil), shape...),
		Data:  data,
		Grad:  make([]float64, len(data)),
	}
}

// Zeros creates a constant tensor filled with zeros
func Zeros(shape ...int) *Tensor {
	return New(shape, make([]float64, numel(shape)))
}

// Full creates a constant tensor filled with v
func Full(v float64, shape ...int) *Tensor {
	t := Zeros(shape...)
	for i := range t.Data {
		t.Data[i] = v
	}
	return t
}

// Param marks a tensor as trainable
func Param(t *Tensor) *Tensor {
	t.requiresGrad = true
	return t
}

// Normal creates a trainable tensor drawn from N(0, std)
func Normal(rng *rand.Rand, std float64, shape ...int) *Tensor {
	dist := distuv.Normal{Mu: 0, Sigma: std, Src: rng}
	t := Zeros(shape...)
	for i := range t.Data {
		t.Data[i] = dist.Rand()
	}
	return Param(t)
}

// Size returns the number of elements
func (t *Tensor) Size() int {
	return len(t.Data)
}

// Dim returns the size of dimension i, negative indices count from the end
func (t *Tensor) Dim(i int) int {
	if i < 0 {
		i += len(t.Shape)
	}
	return t.Shape[i]
}

// RequiresGrad reports whether gradients flow into this tensor
func (t *Tensor) RequiresGrad() bool {
	return t.requiresGrad
}

// Item returns the value of a single-element tensor
func (t *Tensor) Item() float64 {
	return t.Data[0]
}

// Detach returns a constant copy of the tensor
func (t *Tensor) Detach() *Tensor {
	return New(t.Shape, append([]float64(nil), t.Data...))
}

// result builds an op output wired to its parents. The backward closure is only
// kept when some parent needs a gradient.
func result(shape []int, data []float64, backward func(out *Tensor), parents ...*Tensor) *Tensor {
	out := New(shape, data)
	for _, p := range parents {
		if p.requiresGrad {
			out.requiresGrad = true
			break
		}
	}
	if out.requiresGrad {
		out.parents = parents
		out.backward = func() { backward(out) }
	}
	return out
}

// Backward propagates gradients from a scalar loss to every tensor that requires them
func Backward(loss *Tensor) {
	if loss.Size() != 1 {
		panic(fmt.Sprintf("%v: backward needs a scalar, got shape %v", ErrShape, loss.Shape))
	}
	order := topo(loss)
	loss.Grad[0] = 1
	for i := len(order) - 1; i >= 0; i-- {
		if order[i].backward != nil {
			order[i].backward()
		}
	}
}

func topo(root *Tensor) []*Tensor {
	var order []*Tensor
	visited := make(map[*Tensor]bool)
	var visit func(t *Tensor)
	visit = func(t *Tensor) {
		if visited[t] {
			return
		}
		visited[t] = true
		for _, p := range t.parents {
			visit(p)
		}
		order = append(order, t)
	}
	visit(root)
	return order
}

// ZeroGrad clears accumulated gradients
func ZeroGrad(params []*Tensor) {
	for _, p := range params {
		clear(p.Grad)
	}
}
