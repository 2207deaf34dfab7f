// Package gp implements exact Gaussian process regression on gonum matrices.
//
// A GP has a constant mean, a scaled RBF kernel with one lengthscale per
// input dimension (ARD) and Gaussian observation noise bounded below by
// NoiseFloor. Hyperparameters are stored unconstrained (log scale) so they
// can be optimized with any first-order optimizer; NegMLL returns the
// gradients of the loss with respect to them and to the training inputs.
package gp

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// NoiseFloor is the lower bound of the likelihood noise variance.
const NoiseFloor = 1e-4

// Hyper holds the unconstrained hyperparameters of a GP.
type Hyper struct {
	LogLengthscale []float64
	LogOutputscale float64
	// LogNoise parameterizes the noise variance as NoiseFloor+exp(LogNoise).
	LogNoise float64
	Mean     float64
}

// DefaultHyper returns hyperparameters for dim input dimensions with unit-ish
// lengthscales, outputscale and noise (ln 2, matching a softplus(0) start).
func DefaultHyper(dim int) Hyper {
	init := math.Log(math.Ln2)
	h := Hyper{
		LogLengthscale: make([]float64, dim),
		LogOutputscale: init,
		LogNoise:       init,
	}
	for i := range h.LogLengthscale {
		h.LogLengthscale[i] = init
	}
	return h
}

// Lengthscales returns the constrained lengthscales.
func (h Hyper) Lengthscales() []float64 {
	ls := make([]float64, len(h.LogLengthscale))
	for i, v := range h.LogLengthscale {
		ls[i] = math.Exp(v)
	}
	return ls
}

// Outputscale returns the kernel variance.
func (h Hyper) Outputscale() float64 { return math.Exp(h.LogOutputscale) }

// Noise returns the observation noise variance.
func (h Hyper) Noise() float64 { return NoiseFloor + math.Exp(h.LogNoise) }

// Clone returns a deep copy.
func (h Hyper) Clone() Hyper {
	h.LogLengthscale = append([]float64(nil), h.LogLengthscale...)
	return h
}

// Covariance returns the noise-free kernel matrix between the rows of a and b.
func (h Hyper) Covariance(a, b mat.Matrix) *mat.Dense {
	ra, d := a.Dims()
	rb, _ := b.Dims()
	ls := h.Lengthscales()
	scale := h.Outputscale()
	k := mat.NewDense(ra, rb, nil)
	for i := 0; i < ra; i++ {
		for j := 0; j < rb; j++ {
			var dist float64
			for c := 0; c < d; c++ {
				diff := (a.At(i, c) - b.At(j, c)) / ls[c]
				dist += diff * diff
			}
			k.Set(i, j, scale*math.Exp(-0.5*dist))
		}
	}
	return k
}

// SymCovariance returns the kernel matrix of the rows of x with itself plus
// diag on the diagonal.
func (h Hyper) SymCovariance(x mat.Matrix, diag float64) *mat.SymDense {
	n, d := x.Dims()
	ls := h.Lengthscales()
	scale := h.Outputscale()
	k := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		k.SetSym(i, i, scale+diag)
		for j := i + 1; j < n; j++ {
			var dist float64
			for c := 0; c < d; c++ {
				diff := (x.At(i, c) - x.At(j, c)) / ls[c]
				dist += diff * diff
			}
			k.SetSym(i, j, scale*math.Exp(-0.5*dist))
		}
	}
	return k
}

// MeanVector returns the prior mean at n points.
func (h Hyper) MeanVector(n int) []float64 {
	m := make([]float64, n)
	for i := range m {
		m[i] = h.Mean
	}
	return m
}
