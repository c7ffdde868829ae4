package tensor

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// AdamW implements Adam with decoupled weight decay
type AdamW struct {
	LR          float64
	Beta1       float64
	Beta2       float64
	Eps         float64
	WeightDecay float64

	step int
	m    map[*Tensor][]float64
	v    map[*Tensor][]float64
}

// NewAdamW creates an optimizer with the usual defaults and the given learning rate
func NewAdamW(lr float64) *AdamW {
	return &AdamW{
		LR:          lr,
		Beta1:       0.9,
		Beta2:       0.999,
		Eps:         1e-8,
		WeightDecay: 0.01,
		m:           make(map[*Tensor][]float64),
		v:           make(map[*Tensor][]float64),
	}
}

// Steps returns the number of updates applied so far
func (o *AdamW) Steps() int {
	return o.step
}

// Step updates every parameter from its accumulated gradient
func (o *AdamW) Step(params []*Tensor) {
	o.step++
	c1 := 1 - math.Pow(o.Beta1, float64(o.step))
	c2 := 1 - math.Pow(o.Beta2, float64(o.step))

	for _, p := range params {
		m, ok := o.m[p]
		if !ok {
			m = make([]float64, p.Size())
			o.m[p] = m
		}
		v, ok := o.v[p]
		if !ok {
			v = make([]float64, p.Size())
			o.v[p] = v
		}

		floats.Scale(1-o.LR*o.WeightDecay, p.Data)
		for i, g := range p.Grad {
			m[i] = o.Beta1*m[i] + (1-o.Beta1)*g
			v[i] = o.Beta2*v[i] + (1-o.Beta2)*g*g
			mHat := m[i] / c1
			vHat := v[i] / c2
			p.Data[i] -= o.LR * mHat / (math.Sqrt(vHat) + o.Eps)
		}
	}
}

// ClipGradNorm rescales gradients so their global L2 norm is at most maxNorm.
// It returns the norm before clipping.
func ClipGradNorm(params []*Tensor, maxNorm float64) float64 {
	total := 0.0
	for _, p := range params {
		total += floats.Dot(p.Grad, p.Grad)
	}
	total = math.Sqrt(total)

	coef := maxNorm / (total + 1e-6)
	if coef < 1 {
		for _, p := range params {
			floats.Scale(coef, p.Grad)
		}
	}
	return total
}
