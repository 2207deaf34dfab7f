package gp

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Strategy caches the factorization of the training covariance
// K_train + σ²I and α = (K_train + σ²I)^{-1}(y - μ). It stays valid until
// the training data or the hyperparameters change.
type Strategy struct {
	hyper  Hyper
	trainX *mat.Dense
	alpha  *mat.VecDense

	chol     *mat.Cholesky
	toeplitz []float64 // first column of a Toeplitz training covariance
}

// Strategy returns the cached prediction strategy, computing it if needed.
func (g *GP) Strategy() (*Strategy, error) {
	if g.strategy != nil {
		return g.strategy, nil
	}
	if g.x == nil {
		return nil, ErrNoTrainingData
	}
	s := &Strategy{hyper: g.Hyper.Clone(), trainX: g.x}
	r := residual(g.y, g.Hyper.Mean)
	if g.Settings.UseToeplitz {
		if col, ok := toeplitzColumn(g.x, g.Hyper); ok {
			if a, ok := levinson(col, r); ok {
				s.toeplitz = col
				s.alpha = mat.NewVecDense(len(a), a)
			}
		}
	}
	if s.alpha == nil {
		k := g.Hyper.SymCovariance(g.x, g.Hyper.Noise())
		chol, err := factorize(k)
		if err != nil {
			return nil, err
		}
		s.chol = chol
		s.alpha = new(mat.VecDense)
		if err := chol.SolveVecTo(s.alpha, mat.NewVecDense(len(r), r)); err != nil {
			return nil, errors.Wrap(err, "gp: solving for alpha")
		}
	}
	g.strategy = s
	return s, nil
}

// Toeplitz reports whether the strategy solves with Levinson recursion.
func (s *Strategy) Toeplitz() bool { return s.toeplitz != nil }

// solve returns (K_train + σ²I)^{-1} b for every column of b.
func (s *Strategy) solve(b *mat.Dense) (*mat.Dense, error) {
	n, m := b.Dims()
	out := mat.NewDense(n, m, nil)
	if s.toeplitz != nil {
		col := make([]float64, n)
		for j := 0; j < m; j++ {
			mat.Col(col, j, b)
			x, ok := levinson(s.toeplitz, col)
			if !ok {
				return nil, errors.Wrap(ErrNotPositiveDefinite, "gp: Levinson recursion broke down")
			}
			out.SetCol(j, x)
		}
		return out, nil
	}
	if err := s.chol.SolveTo(out, b); err != nil {
		return nil, errors.Wrap(err, "gp: triangular solve")
	}
	return out, nil
}

// ExactPrediction conditions a joint prior over [test; train] points on the
// training data. priorMean has m+n entries and priorCov is (m+n)×(m+n) with
// the n training points last. It returns the posterior mean and covariance
// of the m test points.
func (s *Strategy) ExactPrediction(priorMean []float64, priorCov mat.Symmetric) ([]float64, *mat.SymDense, error) {
	n, _ := s.trainX.Dims()
	total := priorCov.SymmetricDim()
	m := total - n
	if m <= 0 || len(priorMean) != total {
		return nil, nil, errors.Errorf("gp: joint prior of size %d does not extend %d training points", total, n)
	}
	// Cross covariance train×test.
	cross := mat.NewDense(n, m, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < m; j++ {
			cross.Set(i, j, priorCov.At(m+i, j))
		}
	}
	mean := make([]float64, m)
	for j := 0; j < m; j++ {
		mean[j] = priorMean[j] + mat.Dot(cross.ColView(j), s.alpha)
	}
	solved, err := s.solve(cross)
	if err != nil {
		return nil, nil, err
	}
	cov := mat.NewSymDense(m, nil)
	for i := 0; i < m; i++ {
		for j := i; j < m; j++ {
			cov.SetSym(i, j, priorCov.At(i, j)-mat.Dot(cross.ColView(i), solved.ColView(j)))
		}
	}
	return mean, cov, nil
}

// Posterior is a multivariate normal over test points. Covariance is nil
// when only the variances were computed.
type Posterior struct {
	Mean       []float64
	Variance   []float64
	Covariance *mat.SymDense
}

// Posterior returns the latent function posterior at the rows of xs,
// excluding observation noise. With Settings.FastPredVar and full false only
// the variances are computed.
func (g *GP) Posterior(xs *mat.Dense, full bool) (*Posterior, error) {
	s, err := g.Strategy()
	if err != nil {
		return nil, err
	}
	m, _ := xs.Dims()
	h := s.hyper
	cross := h.Covariance(s.trainX, xs)
	solved, err := s.solve(cross)
	if err != nil {
		return nil, err
	}
	post := &Posterior{Mean: make([]float64, m), Variance: make([]float64, m)}
	for j := 0; j < m; j++ {
		post.Mean[j] = h.Mean + mat.Dot(cross.ColView(j), s.alpha)
	}
	if g.Settings.FastPredVar && !full {
		scale := h.Outputscale()
		for j := 0; j < m; j++ {
			post.Variance[j] = max(scale-mat.Dot(cross.ColView(j), solved.ColView(j)), 0)
		}
		return post, nil
	}
	prior := h.SymCovariance(xs, 0)
	cov := mat.NewSymDense(m, nil)
	for i := 0; i < m; i++ {
		for j := i; j < m; j++ {
			cov.SetSym(i, j, prior.At(i, j)-mat.Dot(cross.ColView(i), solved.ColView(j)))
		}
		post.Variance[i] = max(cov.At(i, i), 0)
	}
	post.Covariance = cov
	return post, nil
}
