package tensor

import (
	"math/rand"

	"github.com/pkg/errors"
)

// Zeros creates a tensor filled with zeros.
func Zeros(shape Shape, b Backend) *Tensor {
	return New(MustNewRaw(shape, b.Device()), b)
}

// Ones creates a tensor filled with ones.
func Ones(shape Shape, b Backend) *Tensor {
	return Full(shape, 1, b)
}

// Full creates a tensor filled with value.
func Full(shape Shape, value float32, b Backend) *Tensor {
	t := Zeros(shape, b)
	t.raw.Fill(value)
	return t
}

// FromSlice creates a tensor from a copy of data.
func FromSlice(data []float32, shape Shape, b Backend) (*Tensor, error) {
	raw, err := FromFloat32(data, shape, b.Device())
	if err != nil {
		return nil, errors.WithMessage(err, "FromSlice")
	}
	return New(raw, b), nil
}

// Randn creates a tensor with standard normal values drawn from rng.
func Randn(shape Shape, rng *rand.Rand, b Backend) *Tensor {
	t := Zeros(shape, b)
	for i := range t.raw.data {
		t.raw.data[i] = float32(rng.NormFloat64())
	}
	return t
}

// Uniform creates a tensor with values uniform in [low, high).
func Uniform(shape Shape, low, high float32, rng *rand.Rand, b Backend) *Tensor {
	t := Zeros(shape, b)
	for i := range t.raw.data {
		t.raw.data[i] = low + (high-low)*rng.Float32()
	}
	return t
}
