package gp

import (
	"math/rand"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Sample draws n joint samples from the posterior. It needs the full
// covariance: call GP.Posterior with full set.
func (p *Posterior) Sample(n int, rng *rand.Rand) ([][]float64, error) {
	if p.Covariance == nil {
		return nil, errors.New("gp: sampling needs the full posterior covariance")
	}
	chol, err := factorize(p.Covariance)
	if err != nil {
		return nil, err
	}
	var l mat.TriDense
	chol.LTo(&l)
	m := len(p.Mean)
	eps := mat.NewVecDense(m, nil)
	var draw mat.VecDense
	samples := make([][]float64, n)
	for s := range samples {
		for i := 0; i < m; i++ {
			eps.SetVec(i, rng.NormFloat64())
		}
		draw.MulVec(&l, eps)
		sample := make([]float64, m)
		for i := range sample {
			sample[i] = p.Mean[i] + draw.AtVec(i)
		}
		samples[s] = sample
	}
	return samples, nil
}
