package nn

import (
	"github.com/born-ml/atomnet/internal/tensor"
)

// Parameter represents a trainable tensor of a module.
//
// The data lives in a RawTensor and is updated in place by optimizers, so a
// Parameter can be bound to any backend for a forward pass.
type Parameter struct {
	name string
	raw  *tensor.RawTensor
}

// NewParameter creates a new trainable parameter.
func NewParameter(name string, raw *tensor.RawTensor) *Parameter {
	return &Parameter{name: name, raw: raw}
}

// Name returns the parameter name, e.g. "0.weight".
func (p *Parameter) Name() string {
	return p.name
}

// Raw returns the parameter storage.
func (p *Parameter) Raw() *tensor.RawTensor {
	return p.raw
}

// Tensor binds the parameter to backend b.
func (p *Parameter) Tensor(b tensor.Backend) *tensor.Tensor {
	return tensor.New(p.raw, b)
}

// Grad looks up the parameter gradient in the result of a backward pass.
func (p *Parameter) Grad(grads map[*tensor.RawTensor]*tensor.RawTensor) *tensor.RawTensor {
	return grads[p.raw]
}

// PrefixParameters prepends prefix + "." to the names of every parameter of m.
// Containers call it once on each child so state-dict keys are unique.
func PrefixParameters(prefix string, m Module) {
	for _, p := range m.Parameters() {
		p.name = prefix + "." + p.name
	}
}

// CountParameters returns the total number of scalar weights.
func CountParameters(m Module) int {
	n := 0
	for _, p := range m.Parameters() {
		n += p.raw.NumElements()
	}
	return n
}
