package nn

import (
	"fmt"

	"github.com/born-ml/atomnet/internal/tensor"
)

// Sequential chains modules; the output of each is the input of the next.
// Parameters of child i are named "i.<name>".
type Sequential struct {
	Hooks
	layers []Module
}

// NewSequential creates a container and prefixes child parameter names.
func NewSequential(layers ...Module) *Sequential {
	for i, l := range layers {
		PrefixParameters(fmt.Sprintf("%d", i), l)
	}
	return &Sequential{layers: layers}
}

// Forward runs the layers in order, emitting every intermediate output to the
// installed hook.
func (s *Sequential) Forward(x *tensor.Tensor, mode Mode) *tensor.Tensor {
	for i, l := range s.layers {
		x = l.Forward(x, mode)
		s.Emit(fmt.Sprintf("%d", i), x)
	}
	return x
}

// Parameters returns the parameters of all layers in order.
func (s *Sequential) Parameters() []*Parameter {
	var params []*Parameter
	for _, l := range s.layers {
		params = append(params, l.Parameters()...)
	}
	return params
}

// Layers returns the child modules.
func (s *Sequential) Layers() []Module {
	return s.layers
}
