// Package nn implements neural network modules on top of internal/tensor.
//
// This package provides the building blocks the segmentation backbones and
// the deep-kernel feature extractors are assembled from:
//   - Module interface, with an explicit Mode for every forward pass
//   - Parameter: trainable tensors, owned independently of any backend
//   - Conv2D, Linear, MaxPool2D, Upsample, Dropout, activations
//   - Sequential container and forward hooks for shape introspection
//   - Loss functions: MSE, BCE, CrossEntropy, Focal, Dice
//   - Flat state dicts and .born checkpoints
//
// Modules never hold a backend. Operations run on the backend of the input
// tensor, so the same model trains under an autodiff backend and predicts on
// a plain one.
package nn

import (
	"github.com/born-ml/atomnet/internal/tensor"
)

// Mode selects the behavior of stochastic layers.
type Mode int

const (
	// Eval disables stochastic layers such as Dropout.
	Eval Mode = iota
	// Train enables stochastic layers.
	Train
)

// String returns "train" or "eval".
func (m Mode) String() string {
	if m == Train {
		return "train"
	}
	return "eval"
}

// Module is the base interface for all neural network components.
//
//	model := nn.NewSequential(
//	    nn.NewLinear(2, 16, rng),
//	    nn.NewReLU(),
//	    nn.NewLinear(16, 1, rng),
//	)
//	out := model.Forward(x, nn.Eval)
type Module interface {
	// Forward computes the output of the module given an input tensor.
	Forward(input *tensor.Tensor, mode Mode) *tensor.Tensor

	// Parameters returns all trainable parameters, including those of
	// nested modules. Modules without parameters return an empty slice.
	Parameters() []*Parameter
}
