package tensor

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

func mustShape(cond bool, format string, args ...any) {
	if !cond {
		panic(fmt.Sprintf("%v: %s", ErrShape, fmt.Sprintf(format, args...)))
	}
}

// Linear computes x·Wᵀ + b for x [B,in], w [out,in] and an optional bias [out]
func Linear(x, w, b *Tensor) *Tensor {
	mustShape(len(x.Shape) == 2 && len(w.Shape) == 2 && x.Shape[1] == w.Shape[1],
		"linear %v x %v", x.Shape, w.Shape)
	batch, in, outDim := x.Shape[0], x.Shape[1], w.Shape[0]

	X := mat.NewDense(batch, in, x.Data)
	W := mat.NewDense(outDim, in, w.Data)
	data := make([]float64, batch*outDim)
	Y := mat.NewDense(batch, outDim, data)
	Y.Mul(X, W.T())

	parents := []*Tensor{x, w}
	if b != nil {
		mustShape(b.Size() == outDim, "bias %v for %d outputs", b.Shape, outDim)
		for i := 0; i < batch; i++ {
			floats.Add(data[i*outDim:(i+1)*outDim], b.Data)
		}
		parents = append(parents, b)
	}

	return result([]int{batch, outDim}, data, func(out *Tensor) {
		G := mat.NewDense(batch, outDim, out.Grad)
		if x.requiresGrad {
			var dX mat.Dense
			dX.Mul(G, W)
			floats.Add(x.Grad, dX.RawMatrix().Data)
		}
		if w.requiresGrad {
			var dW mat.Dense
			dW.Mul(G.T(), X)
			floats.Add(w.Grad, dW.RawMatrix().Data)
		}
		if b != nil && b.requiresGrad {
			for i := 0; i < batch; i++ {
				floats.Add(b.Grad, out.Grad[i*outDim:(i+1)*outDim])
			}
		}
	}, parents...)
}

// OneMinus computes 1 - x
func OneMinus(x *Tensor) *Tensor {
	data := make([]float64, x.Size())
	for i, v := range x.Data {
		data[i] = 1 - v
	}
	return result(x.Shape, data, func(out *Tensor) {
		floats.Sub(x.Grad, out.Grad)
	}, x)
}

// DiagSandwich computes diag(m_b)·P·diag(u_b) for every row b of m and u [B,h] and P [h,h]
func DiagSandwich(m, p, u *Tensor) *Tensor {
	mustShape(len(m.Shape) == 2 && len(p.Shape) == 2 && len(u.Shape) == 2, "diag sandwich ranks")
	batch, h := m.Shape[0], m.Shape[1]
	mustShape(p.Shape[0] == h && p.Shape[1] == h && u.Shape[0] == batch && u.Shape[1] == h,
		"diag sandwich %v %v %v", m.Shape, p.Shape, u.Shape)

	data := make([]float64, batch*h*h)
	for b := 0; b < batch; b++ {
		for i := 0; i < h; i++ {
			mi := m.Data[b*h+i]
			row := data[(b*h+i)*h : (b*h+i+1)*h]
			for j := 0; j < h; j++ {
				row[j] = mi * p.Data[i*h+j] * u.Data[b*h+j]
			}
		}
	}

	return result([]int{batch, h, h}, data, func(out *Tensor) {
		for b := 0; b < batch; b++ {
			for i := 0; i < h; i++ {
				mi := m.Data[b*h+i]
				g := out.Grad[(b*h+i)*h : (b*h+i+1)*h]
				for j := 0; j < h; j++ {
					pij := p.Data[i*h+j]
					uj := u.Data[b*h+j]
					m.Grad[b*h+i] += g[j] * pij * uj
					p.Grad[i*h+j] += g[j] * mi * uj
					u.Grad[b*h+j] += g[j] * mi * pij
				}
			}
		}
	}, m, p, u)
}

// AddEye adds the identity to every [h,h] matrix of x [B,h,h]
func AddEye(x *Tensor) *Tensor {
	mustShape(len(x.Shape) == 3 && x.Shape[1] == x.Shape[2], "add eye %v", x.Shape)
	batch, h := x.Shape[0], x.Shape[1]
	data := append([]float64(nil), x.Data...)
	for b := 0; b < batch; b++ {
		for i := 0; i < h; i++ {
			data[(b*h+i)*h+i]++
		}
	}
	return result(x.Shape, data, func(out *Tensor) {
		floats.Add(x.Grad, out.Grad)
	}, x)
}

// SoftmaxRows applies a numerically stable softmax over the last dimension
func SoftmaxRows(x *Tensor) *Tensor {
	n := x.Dim(-1)
	rows := x.Size() / n
	data := make([]float64, x.Size())
	for r := 0; r < rows; r++ {
		in := x.Data[r*n : (r+1)*n]
		row := data[r*n : (r+1)*n]
		maxV := floats.Max(in)
		for j, v := range in {
			row[j] = math.Exp(v - maxV)
		}
		floats.Scale(1/floats.Sum(row), row)
	}
	return result(x.Shape, data, func(out *Tensor) {
		for r := 0; r < rows; r++ {
			y := out.Data[r*n : (r+1)*n]
			g := out.Grad[r*n : (r+1)*n]
			dot := floats.Dot(g, y)
			dx := x.Grad[r*n : (r+1)*n]
			for j := range y {
				dx[j] += y[j] * (g[j] - dot)
			}
		}
	}, x)
}

// MulBroadcast multiplies every [h,h] matrix of x [B,h,h] elementwise by p [h,h]
func MulBroadcast(p, x *Tensor) *Tensor {
	mustShape(len(x.Shape) == 3 && p.Size() == x.Shape[1]*x.Shape[2], "mul broadcast %v %v", p.Shape, x.Shape)
	k := p.Size()
	batch := x.Shape[0]
	data := make([]float64, x.Size())
	for b := 0; b < batch; b++ {
		floats.MulTo(data[b*k:(b+1)*k], x.Data[b*k:(b+1)*k], p.Data)
	}
	return result(x.Shape, data, func(out *Tensor) {
		for b := 0; b < batch; b++ {
			g := out.Grad[b*k : (b+1)*k]
			for i := 0; i < k; i++ {
				p.Grad[i] += g[i] * x.Data[b*k+i]
				x.Grad[b*k+i] += g[i] * p.Data[i]
			}
		}
	}, p, x)
}

// BatchMatVec computes out[b,i] = Σ_j a[b,i,j]·v[b,j] for a [B,h,k] and v [B,k]
func BatchMatVec(a, v *Tensor) *Tensor {
	mustShape(len(a.Shape) == 3 && len(v.Shape) == 2 && a.Shape[0] == v.Shape[0] && a.Shape[2] == v.Shape[1],
		"batch matvec %v %v", a.Shape, v.Shape)
	batch, h, k := a.Shape[0], a.Shape[1], a.Shape[2]
	data := make([]float64, batch*h)
	for b := 0; b < batch; b++ {
		vb := v.Data[b*k : (b+1)*k]
		for i := 0; i < h; i++ {
			data[b*h+i] = floats.Dot(a.Data[(b*h+i)*k:(b*h+i+1)*k], vb)
		}
	}
	return result([]int{batch, h}, data, func(out *Tensor) {
		for b := 0; b < batch; b++ {
			vb := v.Data[b*k : (b+1)*k]
			dv := v.Grad[b*k : (b+1)*k]
			for i := 0; i < h; i++ {
				g := out.Grad[b*h+i]
				row := (b*h + i) * k
				floats.AddScaled(a.Grad[row:row+k], g, vb)
				floats.AddScaled(dv, g, a.Data[row:row+k])
			}
		}
	}, a, v)
}

// Concat joins [B,k_i] tensors along the last dimension
func Concat(ts ...*Tensor) *Tensor {
	mustShape(len(ts) > 0, "concat of nothing")
	batch := ts[0].Shape[0]
	width := 0
	for _, t := range ts {
		mustShape(len(t.Shape) == 2 && t.Shape[0] == batch, "concat %v with batch %d", t.Shape, batch)
		width += t.Shape[1]
	}
	data := make([]float64, batch*width)
	for b := 0; b < batch; b++ {
		off := b * width
		for _, t := range ts {
			k := t.Shape[1]
			copy(data[off:off+k], t.Data[b*k:(b+1)*k])
			off += k
		}
	}
	return result([]int{batch, width}, data, func(out *Tensor) {
		for b := 0; b < batch; b++ {
			off := b * width
			for _, t := range ts {
				k := t.Shape[1]
				floats.Add(t.Grad[b*k:(b+1)*k], out.Grad[off:off+k])
				off += k
			}
		}
	}, ts...)
}

// GELU applies the exact erf-based Gaussian error linear unit
func GELU(x *Tensor) *Tensor {
	data := make([]float64, x.Size())
	for i, v := range x.Data {
		data[i] = 0.5 * v * (1 + math.Erf(v/math.Sqrt2))
	}
	return result(x.Shape, data, func(out *Tensor) {
		for i, v := range x.Data {
			cdf := 0.5 * (1 + math.Erf(v/math.Sqrt2))
			pdf := math.Exp(-0.5*v*v) / math.Sqrt(2*math.Pi)
			x.Grad[i] += out.Grad[i] * (cdf + v*pdf)
		}
	}, x)
}

// LayerNorm normalizes each row of x [B,n] and applies gamma and beta [n]
func LayerNorm(x, gamma, beta *Tensor, eps float64) *Tensor {
	n := x.Dim(-1)
	mustShape(gamma.Size() == n && beta.Size() == n, "layer norm %v with %v", x.Shape, gamma.Shape)
	rows := x.Size() / n
	data := make([]float64, x.Size())
	xhat := make([]float64, x.Size())
	invStd := make([]float64, rows)

	for r := 0; r < rows; r++ {
		in := x.Data[r*n : (r+1)*n]
		mean := floats.Sum(in) / float64(n)
		variance := 0.0
		for _, v := range in {
			variance += (v - mean) * (v - mean)
		}
		variance /= float64(n)
		invStd[r] = 1 / math.Sqrt(variance+eps)
		for j, v := range in {
			xh := (v - mean) * invStd[r]
			xhat[r*n+j] = xh
			data[r*n+j] = xh*gamma.Data[j] + beta.Data[j]
		}
	}

	return result(x.Shape, data, func(out *Tensor) {
		dxhat := make([]float64, n)
		for r := 0; r < rows; r++ {
			g := out.Grad[r*n : (r+1)*n]
			xh := xhat[r*n : (r+1)*n]
			for j := range g {
				gamma.Grad[j] += g[j] * xh[j]
				beta.Grad[j] += g[j]
				dxhat[j] = g[j] * gamma.Data[j]
			}
			if !x.requiresGrad {
				continue
			}
			sum := floats.Sum(dxhat)
			dot := floats.Dot(dxhat, xh)
			dx := x.Grad[r*n : (r+1)*n]
			for j := range dx {
				dx[j] += invStd[r] / float64(n) * (float64(n)*dxhat[j] - sum - xh[j]*dot)
			}
		}
	}, x, gamma, beta)
}

// Dropout zeroes elements with probability p and rescales survivors by 1/(1-p).
// It is the identity outside training or when p is 0.
func Dropout(x *Tensor, p float64, training bool, rng *rand.Rand) *Tensor {
	if !training || p <= 0 {
		return x
	}
	scale := 1 / (1 - p)
	keep := make([]float64, x.Size())
	data := make([]float64, x.Size())
	for i, v := range x.Data {
		if rng.Float64() >= p {
			keep[i] = scale
			data[i] = v * scale
		}
	}
	return result(x.Shape, data, func(out *Tensor) {
		for i, g := range out.Grad {
			x.Grad[i] += g * keep[i]
		}
	}, x)
}

// L1Loss returns the mean absolute error between pred and target as a scalar
func L1Loss(pred, target *Tensor) *Tensor {
	mustShape(pred.Size() == target.Size(), "l1 loss %v vs %v", pred.Shape, target.Shape)
	n := float64(pred.Size())
	sum := 0.0
	for i, v := range pred.Data {
		sum += math.Abs(v - target.Data[i])
	}
	return result([]int{1}, []float64{sum / n}, func(out *Tensor) {
		g := out.Grad[0] / n
		for i, v := range pred.Data {
			d := v - target.Data[i]
			switch {
			case d > 0:
				pred.Grad[i] += g
			case d < 0:
				pred.Grad[i] -= g
			}
		}
	}, pred, target)
}
