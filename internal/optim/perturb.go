package optim

import (
	"math"
	"math/rand"

	"github.com/born-ml/atomnet/internal/nn"
)

// PerturbConfig describes annealed weight noise: at cycle e the noise standard
// deviation is A / (1+e)^Gamma.
type PerturbConfig struct {
	A     float64
	Gamma float64
}

// Sigma returns the noise standard deviation at cycle.
func (c PerturbConfig) Sigma(cycle int) float64 {
	return c.A / math.Pow(1+float64(cycle), c.Gamma)
}

// Perturb adds zero-mean Gaussian noise with standard deviation c.Sigma(cycle)
// to every parameter, drawing from rng. It returns the sigma used.
func Perturb(params []*nn.Parameter, c PerturbConfig, cycle int, rng *rand.Rand) float64 {
	sigma := c.Sigma(cycle)
	if sigma == 0 {
		return 0
	}
	for _, p := range params {
		data := p.Raw().Data()
		for i := range data {
			data[i] += float32(rng.NormFloat64() * sigma)
		}
	}
	return sigma
}
