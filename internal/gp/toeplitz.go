package gp

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// toeplitzColumn returns the first column of K_train + σ²I when x is a
// single evenly spaced column, in which case the stationary kernel makes the
// matrix symmetric Toeplitz.
func toeplitzColumn(x *mat.Dense, h Hyper) ([]float64, bool) {
	n, d := x.Dims()
	if d != 1 || n < 2 {
		return nil, false
	}
	step := x.At(1, 0) - x.At(0, 0)
	if step == 0 {
		return nil, false
	}
	tol := 1e-9 * math.Abs(step) * float64(n)
	for i := 2; i < n; i++ {
		if math.Abs(x.At(i, 0)-x.At(i-1, 0)-step) > tol {
			return nil, false
		}
	}
	l := h.Lengthscales()[0]
	scale := h.Outputscale()
	col := make([]float64, n)
	for i := range col {
		dist := float64(i) * step / l
		col[i] = scale * math.Exp(-0.5*dist*dist)
	}
	col[0] += h.Noise()
	return col, true
}

// levinson solves T x = b for the symmetric Toeplitz matrix T with first
// column t by Levinson-Durbin recursion. It reports false if a leading minor
// is singular.
func levinson(t, b []float64) ([]float64, bool) {
	n := len(t)
	if t[0] == 0 {
		return nil, false
	}
	f := make([]float64, 1, n) // T_k f = e_1
	x := make([]float64, 1, n)
	f[0] = 1 / t[0]
	x[0] = b[0] / t[0]
	next := make([]float64, n)
	for k := 1; k < n; k++ {
		var ef, ex float64
		for i := 0; i < k; i++ {
			ef += t[k-i] * f[i]
			ex += t[k-i] * x[i]
		}
		denom := 1 - ef*ef
		if denom == 0 || math.IsNaN(denom) {
			return nil, false
		}
		// f_{k+1} = ([f;0] - ef [0;rev(f)]) / (1-ef²); the backward vector of
		// a symmetric Toeplitz matrix is the reversed forward vector.
		next = next[:k+1]
		for i := 0; i <= k; i++ {
			var fi, bi float64
			if i < k {
				fi = f[i]
			}
			if i > 0 {
				bi = f[k-i]
			}
			next[i] = (fi - ef*bi) / denom
		}
		f = append(f[:0], next...)
		x = append(x, 0)
		for i := 0; i <= k; i++ {
			x[i] += (b[k] - ex) * f[k-i]
		}
	}
	return x, true
}
