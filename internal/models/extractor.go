package models

import (
	"math/rand"

	"github.com/born-ml/atomnet/internal/nn"
)

// DefaultHiddenDims are the hidden widths of the DKL feature extractor.
var DefaultHiddenDims = []int{1000, 500, 50}

// NewFeatureExtractor builds a ReLU MLP mapping [n, inputDim] to
// [n, embedDim]. Empty hiddenDims selects DefaultHiddenDims.
func NewFeatureExtractor(inputDim, embedDim int, hiddenDims []int, rng *rand.Rand) *nn.Sequential {
	if len(hiddenDims) == 0 {
		hiddenDims = DefaultHiddenDims
	}
	var layers []nn.Module
	in := inputDim
	for _, h := range hiddenDims {
		layers = append(layers, nn.NewLinear(in, h, rng), nn.NewReLU())
		in = h
	}
	layers = append(layers, nn.NewLinear(in, embedDim, rng))
	return nn.NewSequential(layers...)
}
