package optim

import (
	"github.com/born-ml/atomnet/internal/nn"
	"github.com/born-ml/atomnet/internal/tensor"
)

// SGD implements stochastic gradient descent with optional momentum.
//
//	velocity = momentum * velocity + g
//	param   -= lr * velocity
type SGD struct {
	params   []*nn.Parameter
	lr       float32
	momentum float32
	velocity map[*nn.Parameter][]float32
}

// SGDConfig holds configuration for SGD optimizer.
type SGDConfig struct {
	LR       float32 // Learning rate
	Momentum float32 // Momentum factor (0 disables momentum)
}

// NewSGD creates a new SGD optimizer.
func NewSGD(params []*nn.Parameter, config SGDConfig) *SGD {
	return &SGD{
		params:   params,
		lr:       config.LR,
		momentum: config.Momentum,
		velocity: make(map[*nn.Parameter][]float32),
	}
}

// Step performs a single optimization step.
func (s *SGD) Step(grads map[*tensor.RawTensor]*tensor.RawTensor) {
	for _, param := range s.params {
		g := getGradient(param, grads)
		if g == nil {
			continue
		}
		data := param.Raw().Data()
		if s.momentum == 0 {
			for i := range data {
				data[i] -= s.lr * g[i]
			}
			continue
		}
		vel, ok := s.velocity[param]
		if !ok {
			vel = make([]float32, len(data))
			s.velocity[param] = vel
		}
		for i := range data {
			vel[i] = s.momentum*vel[i] + g[i]
			data[i] -= s.lr * vel[i]
		}
	}
}

// ZeroGrad is a no-op: gradients are returned fresh by every backward pass.
func (s *SGD) ZeroGrad() {}

// GetLR returns the current learning rate.
func (s *SGD) GetLR() float32 {
	return s.lr
}
