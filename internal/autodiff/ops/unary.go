package ops

import (
	"github.com/born-ml/atomnet/internal/tensor"
)

// ExpOp represents output = e^x, with d/dx = output.
type ExpOp struct{ node }

// NewExpOp creates a new ExpOp.
func NewExpOp(x, output *tensor.RawTensor) *ExpOp { return &ExpOp{newNode(output, x)} }

// Backward computes the input gradient for exp.
func (op *ExpOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{backend.Mul(outputGrad, op.output)}
}

// LogOp represents output = ln(x), with d/dx = 1/x.
type LogOp struct{ node }

// NewLogOp creates a new LogOp.
func NewLogOp(x, output *tensor.RawTensor) *LogOp { return &LogOp{newNode(output, x)} }

// Backward computes the input gradient for log.
func (op *LogOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{backend.Div(outputGrad, op.inputs[0])}
}

// LeakyReLUOp represents output = x for x > 0 and slope*x otherwise.
// ReLU is the slope == 0 case.
type LeakyReLUOp struct {
	node
	slope float32
}

// NewLeakyReLUOp creates a new LeakyReLUOp.
func NewLeakyReLUOp(x, output *tensor.RawTensor, slope float32) *LeakyReLUOp {
	return &LeakyReLUOp{node: newNode(output, x), slope: slope}
}

// Backward masks the output gradient by the sign of the input.
func (op *LeakyReLUOp) Backward(outputGrad *tensor.RawTensor, _ tensor.Backend) []*tensor.RawTensor {
	x := op.inputs[0].Data()
	return []*tensor.RawTensor{mapGrad(outputGrad, func(i int, g float32) float32 {
		if x[i] > 0 {
			return g
		}
		return op.slope * g
	})}
}

// SigmoidOp represents output = σ(x), with d/dx = σ(x)(1-σ(x)).
type SigmoidOp struct{ node }

// NewSigmoidOp creates a new SigmoidOp.
func NewSigmoidOp(x, output *tensor.RawTensor) *SigmoidOp { return &SigmoidOp{newNode(output, x)} }

// Backward computes the input gradient for sigmoid.
func (op *SigmoidOp) Backward(outputGrad *tensor.RawTensor, _ tensor.Backend) []*tensor.RawTensor {
	s := op.output.Data()
	return []*tensor.RawTensor{mapGrad(outputGrad, func(i int, g float32) float32 {
		return g * s[i] * (1 - s[i])
	})}
}

// TanhOp represents output = tanh(x), with d/dx = 1 - tanh²(x).
type TanhOp struct{ node }

// NewTanhOp creates a new TanhOp.
func NewTanhOp(x, output *tensor.RawTensor) *TanhOp { return &TanhOp{newNode(output, x)} }

// Backward computes the input gradient for tanh.
func (op *TanhOp) Backward(outputGrad *tensor.RawTensor, _ tensor.Backend) []*tensor.RawTensor {
	y := op.output.Data()
	return []*tensor.RawTensor{mapGrad(outputGrad, func(i int, g float32) float32 {
		return g * (1 - y[i]*y[i])
	})}
}

// SoftmaxOp represents output = softmax(x) along dim.
//
// Backward pass: grad_x = s * (grad - sum(grad * s, dim)).
type SoftmaxOp struct {
	node
	dim int
}

// NewSoftmaxOp creates a new SoftmaxOp.
func NewSoftmaxOp(x, output *tensor.RawTensor, dim int) *SoftmaxOp {
	return &SoftmaxOp{node: newNode(output, x), dim: x.Shape().NormalizeDim(dim)}
}

// Backward computes the input gradient for softmax.
func (op *SoftmaxOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	s := op.output
	dot := backend.SumDim(backend.Mul(outputGrad, s), op.dim)
	return []*tensor.RawTensor{backend.Mul(s, backend.Sub(outputGrad, dot))}
}
