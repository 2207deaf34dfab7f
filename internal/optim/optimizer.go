// Package optim implements optimization algorithms for training neural networks.
//
// This package provides:
//   - Optimizer interface: base interface for all optimizers
//   - SGD: stochastic gradient descent with momentum
//   - Adam: adaptive moment estimation
//   - SWA: stochastic weight averaging over the tail of training
//   - Perturb: annealed Gaussian noise added to weights
//
// Parameters are updated in place, so the same model can be bound to any
// backend between steps.
//
// Example usage:
//
//	optimizer := optim.NewAdam(model.Parameters(), optim.AdamConfig{LR: 0.001})
//
//	backend.Tape().StartRecording()
//	out := model.Forward(x.Detach(backend), nn.Train)
//	grads := autodiff.Backward(lossFn.Forward(out, y), backend)
//	optimizer.Step(grads)
//	optimizer.ZeroGrad()
package optim

import (
	"github.com/born-ml/atomnet/internal/nn"
	"github.com/born-ml/atomnet/internal/tensor"
)

// Optimizer is the base interface for all optimization algorithms.
type Optimizer interface {
	// Step applies the gradients of a backward pass to all parameters.
	// Parameters without a gradient are left untouched.
	Step(grads map[*tensor.RawTensor]*tensor.RawTensor)

	// ZeroGrad discards any gradient state held between steps.
	ZeroGrad()

	// GetLR returns the current learning rate.
	GetLR() float32
}

// Kind names a supported optimizer.
type Kind string

// Supported optimizers.
const (
	KindAdam Kind = "adam"
	KindSGD  Kind = "sgd"
)

// New creates the optimizer named by kind with learning rate lr.
func New(kind Kind, params []*nn.Parameter, lr float32) (Optimizer, error) {
	switch kind {
	case KindAdam, "":
		return NewAdam(params, AdamConfig{LR: lr}), nil
	case KindSGD:
		return NewSGD(params, SGDConfig{LR: lr, Momentum: 0.9}), nil
	}
	return nil, ErrUnknownOptimizer
}

func getGradient(param *nn.Parameter, grads map[*tensor.RawTensor]*tensor.RawTensor) []float32 {
	g := param.Grad(grads)
	if g == nil {
		return nil
	}
	return g.Data()
}
