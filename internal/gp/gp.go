package gp

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Jitter is the first diagonal offset tried when a covariance matrix fails
// to factorize; it grows tenfold up to three times.
const Jitter = 1e-6

// Settings select numerical shortcuts for prediction.
type Settings struct {
	// UseToeplitz solves with Levinson-Durbin recursion when the training
	// inputs are one-dimensional and evenly spaced.
	UseToeplitz bool
	// FastPredVar computes only predictive variances, not the full covariance.
	FastPredVar bool
}

// DefaultSettings returns Settings{FastPredVar: true}.
func DefaultSettings() Settings { return Settings{FastPredVar: true} }

// GP is an exact Gaussian process regressor.
type GP struct {
	Hyper    Hyper
	Settings Settings

	x        *mat.Dense
	y        []float64
	strategy *Strategy
}

// New creates a GP over dim-dimensional inputs with DefaultHyper.
func New(dim int, settings Settings) *GP {
	return &GP{Hyper: DefaultHyper(dim), Settings: settings}
}

// SetTrainData sets the training inputs [n,D] and targets [n], invalidating
// the cached prediction strategy.
func (g *GP) SetTrainData(x *mat.Dense, y []float64) {
	n, _ := x.Dims()
	if n != len(y) {
		panic(errors.Errorf("gp: %d training inputs but %d targets", n, len(y)))
	}
	g.x, g.y = x, y
	g.strategy = nil
}

// TrainData returns the training inputs and targets.
func (g *GP) TrainData() (*mat.Dense, []float64) { return g.x, g.y }

// Invalidate drops the cached prediction strategy, e.g. after the
// hyperparameters changed.
func (g *GP) Invalidate() { g.strategy = nil }

// Gradients of NegMLL.
type Gradients struct {
	LogLengthscale []float64
	LogOutputscale float64
	LogNoise       float64
	Mean           float64
	// X is the gradient with respect to the training inputs, [n,D].
	X *mat.Dense
}

// NegMLL returns the negative exact marginal log likelihood of the training
// data divided by the number of points, and its gradients.
func (g *GP) NegMLL() (float64, Gradients, error) {
	if g.x == nil {
		return 0, Gradients{}, ErrNoTrainingData
	}
	n, d := g.x.Dims()
	kf := g.Hyper.SymCovariance(g.x, 0)
	k := mat.NewSymDense(n, nil)
	k.CopySym(kf)
	noise := g.Hyper.Noise()
	for i := 0; i < n; i++ {
		k.SetSym(i, i, k.At(i, i)+noise)
	}
	chol, err := factorize(k)
	if err != nil {
		return 0, Gradients{}, err
	}

	r := mat.NewVecDense(n, residual(g.y, g.Hyper.Mean))
	var alpha mat.VecDense
	if err := chol.SolveVecTo(&alpha, r); err != nil {
		return 0, Gradients{}, errors.Wrap(err, "gp: solving for alpha")
	}
	mll := -0.5*mat.Dot(r, &alpha) - 0.5*chol.LogDet() - 0.5*float64(n)*math.Log(2*math.Pi)

	var kinv mat.SymDense
	if err := chol.InverseTo(&kinv); err != nil {
		return 0, Gradients{}, errors.Wrap(err, "gp: inverting covariance")
	}
	// W = αα^T - K^{-1}; dMLL/dθ = tr(W dK/dθ)/2.
	w := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			w.Set(i, j, alpha.AtVec(i)*alpha.AtVec(j)-kinv.At(i, j))
		}
	}

	ls := g.Hyper.Lengthscales()
	grads := Gradients{LogLengthscale: make([]float64, d), X: mat.NewDense(n, d, nil)}
	var trace float64
	for i := 0; i < n; i++ {
		trace += w.At(i, i)
		for j := 0; j < n; j++ {
			wk := w.At(i, j) * kf.At(i, j)
			grads.LogOutputscale += 0.5 * wk
			for c := 0; c < d; c++ {
				diff := g.x.At(i, c) - g.x.At(j, c)
				l2 := ls[c] * ls[c]
				grads.LogLengthscale[c] += 0.5 * wk * diff * diff / l2
				grads.X.Set(i, c, grads.X.At(i, c)-wk*diff/l2)
			}
		}
	}
	grads.LogNoise = 0.5 * trace * (noise - NoiseFloor)
	grads.Mean = floats.Sum(alpha.RawVector().Data)

	// Negate and normalize.
	scale := -1 / float64(n)
	floats.Scale(scale, grads.LogLengthscale)
	grads.LogOutputscale *= scale
	grads.LogNoise *= scale
	grads.Mean *= scale
	grads.X.Scale(scale, grads.X)
	return -mll / float64(n), grads, nil
}

func residual(y []float64, mean float64) []float64 {
	r := make([]float64, len(y))
	for i, v := range y {
		r[i] = v - mean
	}
	return r
}

// factorize computes the Cholesky factor of k, retrying with growing
// diagonal jitter.
func factorize(k *mat.SymDense) (*mat.Cholesky, error) {
	var chol mat.Cholesky
	if chol.Factorize(k) {
		return &chol, nil
	}
	n := k.SymmetricDim()
	jittered := mat.NewSymDense(n, nil)
	for jitter := Jitter; jitter <= Jitter*1e3; jitter *= 10 {
		jittered.CopySym(k)
		for i := 0; i < n; i++ {
			jittered.SetSym(i, i, k.At(i, i)+jitter)
		}
		if chol.Factorize(jittered) {
			return &chol, nil
		}
	}
	return nil, errors.Wrapf(ErrNotPositiveDefinite, "%d×%d matrix", n, n)
}
