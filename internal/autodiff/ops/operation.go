// Package ops defines the differentiable operations recorded on a gradient
// tape and their backward rules.
//
// Each operation keeps references to its inputs and output from the forward
// pass and, given the gradient of the output, returns one gradient per input
// (nil for inputs that receive none, such as integer targets).
package ops

import "github.com/born-ml/atomnet/internal/tensor"

// Operation represents a differentiable operation in the computation graph.
type Operation interface {
	// Backward computes gradients for inputs given the output gradient.
	// The returned slice is aligned with Inputs().
	Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor

	// Inputs returns the input tensors for this operation.
	Inputs() []*tensor.RawTensor

	// Output returns the output tensor produced by this operation.
	Output() *tensor.RawTensor
}

// node stores the tensors every operation refers to.
type node struct {
	inputs []*tensor.RawTensor
	output *tensor.RawTensor
}

func newNode(output *tensor.RawTensor, inputs ...*tensor.RawTensor) node {
	return node{inputs: inputs, output: output}
}

// Inputs returns the input tensors.
func (n *node) Inputs() []*tensor.RawTensor { return n.inputs }

// Output returns the output tensor.
func (n *node) Output() *tensor.RawTensor { return n.output }
