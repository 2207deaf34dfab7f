package nn

import (
	"math"
	"math/rand"

	"github.com/born-ml/atomnet/internal/tensor"
)

// Xavier (Glorot) initialization: U(-sqrt(6/(fan_in + fan_out)), +sqrt(...)).
func Xavier(fanIn, fanOut int, shape tensor.Shape, rng *rand.Rand) *tensor.RawTensor {
	bound := math.Sqrt(6.0 / float64(fanIn+fanOut))
	return uniform(shape, bound, rng)
}

// Kaiming (He) uniform initialization for rectifier networks:
// U(-sqrt(6/fan_in), +sqrt(6/fan_in)).
func Kaiming(fanIn int, shape tensor.Shape, rng *rand.Rand) *tensor.RawTensor {
	return uniform(shape, math.Sqrt(6.0/float64(fanIn)), rng)
}

// Zeros creates a zero-filled parameter tensor, commonly used for biases.
func Zeros(shape tensor.Shape) *tensor.RawTensor {
	return tensor.MustNewRaw(shape, tensor.CPU)
}

func uniform(shape tensor.Shape, bound float64, rng *rand.Rand) *tensor.RawTensor {
	t := tensor.MustNewRaw(shape, tensor.CPU)
	data := t.Data()
	for i := range data {
		//nolint:gosec // weight initialization is not security-critical
		data[i] = float32((rng.Float64()*2.0 - 1.0) * bound)
	}
	return t
}
