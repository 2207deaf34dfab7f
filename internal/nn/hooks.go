package nn

import (
	"github.com/pkg/errors"

	"github.com/born-ml/atomnet/internal/tensor"
)

// Hook receives the output of a named sub-layer during a forward pass.
type Hook func(layer string, output *tensor.Tensor)

// Observable is a Module whose sub-layer outputs can be observed, used to
// infer the number of output classes and the spatial downsampling factor of
// a model without knowing its architecture.
type Observable interface {
	Module
	// Observe installs hook for subsequent forward passes; nil removes it.
	Observe(hook Hook)
}

// Hooks implements Observable's hook storage; embed it in containers and call
// Emit after each sub-layer.
type Hooks struct {
	hook Hook
}

// Observe installs hook.
func (h *Hooks) Observe(hook Hook) { h.hook = hook }

// Emit forwards output to the installed hook, if any.
func (h *Hooks) Emit(layer string, output *tensor.Tensor) {
	if h.hook != nil {
		h.hook(layer, output)
	}
}

// LayerShape is one observed sub-layer output.
type LayerShape struct {
	Layer string
	Shape tensor.Shape
}

// ProbeShapes runs one Eval forward pass of m on x and returns the output shape
// of every observed sub-layer, in execution order.
func ProbeShapes(m Observable, x *tensor.Tensor) ([]LayerShape, error) {
	var shapes []LayerShape
	m.Observe(func(layer string, out *tensor.Tensor) {
		shapes = append(shapes, LayerShape{Layer: layer, Shape: out.Shape().Clone()})
	})
	defer m.Observe(nil)
	m.Forward(x, Eval)
	if len(shapes) == 0 {
		return nil, errors.New("model emitted no layer outputs")
	}
	return shapes, nil
}
