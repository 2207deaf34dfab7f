package gp

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// fixedHyper returns lengthscale 1, outputscale 1, noise 0.1 and mean 0.
func fixedHyper() Hyper {
	return Hyper{
		LogLengthscale: []float64{0},
		LogOutputscale: 0,
		LogNoise:       math.Log(0.1 - NoiseFloor),
	}
}

func TestPosterior_TwoPoints(t *testing.T) {
	g := New(1, DefaultSettings())
	g.Hyper = fixedHyper()
	g.SetTrainData(mat.NewDense(2, 1, []float64{0, 1}), []float64{1, -1})

	// By hand: K = [[1.1, e], [e, 1.1]] with e = exp(-1/2); the test point
	// x*=0 has k* = [1, e].
	e := math.Exp(-0.5)
	det := 1.1*1.1 - e*e
	alpha := []float64{(1.1*1 - e*(-1)) / det, (-e*1 + 1.1*(-1)) / det}
	wantMean := alpha[0] + e*alpha[1]
	kinvK := []float64{(1.1 - e*e) / det, (-e + 1.1*e) / det}
	wantVar := 1 - (kinvK[0] + e*kinvK[1])

	post, err := g.Posterior(mat.NewDense(1, 1, []float64{0}), false)
	require.NoError(t, err)
	assert.InDelta(t, wantMean, post.Mean[0], 1e-12)
	assert.InDelta(t, wantVar, post.Variance[0], 1e-12)
	assert.Nil(t, post.Covariance)

	full, err := g.Posterior(mat.NewDense(1, 1, []float64{0}), true)
	require.NoError(t, err)
	assert.InDelta(t, wantVar, full.Covariance.At(0, 0), 1e-12)
}

func TestNegMLL_Value(t *testing.T) {
	g := New(1, DefaultSettings())
	g.Hyper = fixedHyper()
	g.SetTrainData(mat.NewDense(2, 1, []float64{0, 1}), []float64{1, -1})

	e := math.Exp(-0.5)
	det := 1.1*1.1 - e*e
	quad := (1.1*1 + 2*e + 1.1*1) / det // r^T K^{-1} r with r = [1, -1]
	want := (0.5*quad + 0.5*math.Log(det) + math.Log(2*math.Pi)) / 2

	loss, _, err := g.NegMLL()
	require.NoError(t, err)
	assert.InDelta(t, want, loss, 1e-12)
}

func TestNegMLL_GradientsMatchFiniteDifferences(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	n, d := 6, 2
	x := mat.NewDense(n, d, nil)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		x.Set(i, 0, rng.Float64()*2-1)
		x.Set(i, 1, rng.Float64()*2-1)
		y[i] = math.Sin(3*x.At(i, 0)) + x.At(i, 1)
	}
	g := New(d, DefaultSettings())
	g.Hyper.Mean = 0.3
	g.Hyper.LogLengthscale = []float64{-0.2, 0.4}
	g.SetTrainData(x, y)
	_, grads, err := g.NegMLL()
	require.NoError(t, err)

	const h = 1e-6
	eval := func() float64 {
		loss, _, err := g.NegMLL()
		require.NoError(t, err)
		return loss
	}
	numeric := func(p *float64) float64 {
		orig := *p
		*p = orig + h
		up := eval()
		*p = orig - h
		down := eval()
		*p = orig
		return (up - down) / (2 * h)
	}
	assert.InDelta(t, numeric(&g.Hyper.LogOutputscale), grads.LogOutputscale, 1e-5)
	assert.InDelta(t, numeric(&g.Hyper.LogNoise), grads.LogNoise, 1e-5)
	assert.InDelta(t, numeric(&g.Hyper.Mean), grads.Mean, 1e-5)
	for c := 0; c < d; c++ {
		assert.InDelta(t, numeric(&g.Hyper.LogLengthscale[c]), grads.LogLengthscale[c], 1e-5)
	}
	for i := 0; i < n; i++ {
		for c := 0; c < d; c++ {
			v := x.At(i, c)
			x.Set(i, c, v+h)
			up := eval()
			x.Set(i, c, v-h)
			down := eval()
			x.Set(i, c, v)
			assert.InDelta(t, (up-down)/(2*h), grads.X.At(i, c), 1e-5, "x[%d,%d]", i, c)
		}
	}
}

func TestStrategy_ToeplitzMatchesCholesky(t *testing.T) {
	n := 15
	x := mat.NewDense(n, 1, nil)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		x.Set(i, 0, -1+2*float64(i)/float64(n-1))
		y[i] = math.Cos(2 * x.At(i, 0))
	}
	xs := mat.NewDense(4, 1, []float64{-0.9, -0.1, 0.33, 1.2})

	chol := New(1, Settings{})
	chol.SetTrainData(x, y)
	want, err := chol.Posterior(xs, true)
	require.NoError(t, err)

	toep := New(1, Settings{UseToeplitz: true})
	toep.SetTrainData(x, y)
	s, err := toep.Strategy()
	require.NoError(t, err)
	require.True(t, s.Toeplitz())
	got, err := toep.Posterior(xs, true)
	require.NoError(t, err)

	assert.InDeltaSlice(t, want.Mean, got.Mean, 1e-8)
	assert.InDeltaSlice(t, want.Variance, got.Variance, 1e-8)
}

func TestStrategy_ToeplitzFallsBack(t *testing.T) {
	g := New(1, Settings{UseToeplitz: true})
	g.SetTrainData(mat.NewDense(3, 1, []float64{0, 0.1, 0.5}), []float64{1, 2, 3})
	s, err := g.Strategy()
	require.NoError(t, err)
	assert.False(t, s.Toeplitz())

	g = New(2, Settings{UseToeplitz: true})
	g.SetTrainData(mat.NewDense(2, 2, []float64{0, 0, 1, 1}), []float64{1, 2})
	s, err = g.Strategy()
	require.NoError(t, err)
	assert.False(t, s.Toeplitz())
}

func TestLevinson(t *testing.T) {
	col := []float64{4, 1, 0.5, 0.25}
	b := []float64{1, 2, 3, 4}
	x, ok := levinson(col, b)
	require.True(t, ok)
	tm := mat.NewSymDense(4, nil)
	for i := 0; i < 4; i++ {
		for j := i; j < 4; j++ {
			tm.SetSym(i, j, col[j-i])
		}
	}
	var got mat.VecDense
	got.MulVec(tm, mat.NewVecDense(4, x))
	assert.InDeltaSlice(t, b, got.RawVector().Data, 1e-12)
}

func TestExactPrediction_MatchesPosterior(t *testing.T) {
	x := mat.NewDense(3, 1, []float64{-0.5, 0, 0.7})
	y := []float64{0.2, -0.4, 1}
	g := New(1, DefaultSettings())
	g.SetTrainData(x, y)
	s, err := g.Strategy()
	require.NoError(t, err)

	test := []float64{0.1, -0.3}
	joint := mat.NewDense(5, 1, append(append([]float64{}, test...), x.RawMatrix().Data...))
	mean, cov, err := s.ExactPrediction(g.Hyper.MeanVector(5), g.Hyper.SymCovariance(joint, 0))
	require.NoError(t, err)

	post, err := g.Posterior(mat.NewDense(2, 1, test), true)
	require.NoError(t, err)
	assert.InDeltaSlice(t, post.Mean, mean, 1e-12)
	assert.True(t, mat.EqualApprox(post.Covariance, cov, 1e-12))

	_, _, err = s.ExactPrediction(g.Hyper.MeanVector(3), g.Hyper.SymCovariance(x, 0))
	assert.Error(t, err)
}

func TestPosterior_Sample(t *testing.T) {
	g := New(1, DefaultSettings())
	g.SetTrainData(mat.NewDense(2, 1, []float64{0, 1}), []float64{1, -1})
	post, err := g.Posterior(mat.NewDense(2, 1, []float64{0.5, 3}), true)
	require.NoError(t, err)

	samples, err := post.Sample(20000, rand.New(rand.NewSource(7)))
	require.NoError(t, err)
	require.Len(t, samples, 20000)
	for j := 0; j < 2; j++ {
		col := make([]float64, len(samples))
		for i, s := range samples {
			col[i] = s[j]
		}
		mean, variance := stat.MeanVariance(col, nil)
		assert.InDelta(t, post.Mean[j], mean, 0.05)
		assert.InDelta(t, post.Variance[j], variance, 0.05)
	}

	fast, err := g.Posterior(mat.NewDense(1, 1, []float64{0.5}), false)
	require.NoError(t, err)
	_, err = fast.Sample(1, rand.New(rand.NewSource(1)))
	assert.Error(t, err)
}

func TestNoTrainingData(t *testing.T) {
	g := New(2, DefaultSettings())
	_, _, err := g.NegMLL()
	assert.ErrorIs(t, err, ErrNoTrainingData)
	_, err = g.Posterior(mat.NewDense(1, 2, nil), false)
	assert.ErrorIs(t, err, ErrNoTrainingData)
	assert.InDelta(t, 2*math.Ln2, floats.Sum(g.Hyper.Lengthscales()), 1e-12)
}
