package optim

import (
	"github.com/born-ml/atomnet/internal/nn"
)

// SWA accumulates a running mean of parameter snapshots (stochastic weight
// averaging). Apply writes the mean back into the parameters.
type SWA struct {
	params []*nn.Parameter
	mean   map[*nn.Parameter][]float64
	n      int
}

// NewSWA creates an empty weight-averaging accumulator over params.
func NewSWA(params []*nn.Parameter) *SWA {
	return &SWA{params: params, mean: make(map[*nn.Parameter][]float64, len(params))}
}

// Update adds the current parameter values to the average.
func (s *SWA) Update() {
	s.n++
	w := 1 / float64(s.n)
	for _, p := range s.params {
		data := p.Raw().Data()
		mean, ok := s.mean[p]
		if !ok {
			mean = make([]float64, len(data))
			s.mean[p] = mean
		}
		for i, v := range data {
			mean[i] += (float64(v) - mean[i]) * w
		}
	}
}

// Count returns the number of snapshots averaged so far.
func (s *SWA) Count() int { return s.n }

// Apply overwrites the parameters with the averaged weights. It reports false
// if no snapshot has been taken.
func (s *SWA) Apply() bool {
	if s.n == 0 {
		return false
	}
	for _, p := range s.params {
		data := p.Raw().Data()
		for i, v := range s.mean[p] {
			data[i] = float32(v)
		}
	}
	return true
}
