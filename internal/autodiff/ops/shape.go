package ops

import "github.com/born-ml/atomnet/internal/tensor"

// ReshapeOp represents a change of shape; the gradient is reshaped back.
type ReshapeOp struct{ node }

// NewReshapeOp creates a new ReshapeOp.
func NewReshapeOp(x, output *tensor.RawTensor) *ReshapeOp { return &ReshapeOp{newNode(output, x)} }

// Backward reshapes the gradient to the input shape.
func (op *ReshapeOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{backend.Reshape(outputGrad, op.inputs[0].Shape())}
}

// TransposeOp represents an axis permutation; the gradient applies the
// inverse permutation.
type TransposeOp struct {
	node
	axes []int
}

// NewTransposeOp creates a new TransposeOp. Empty axes mean reversed order.
func NewTransposeOp(x, output *tensor.RawTensor, axes []int) *TransposeOp {
	rank := len(x.Shape())
	if len(axes) == 0 {
		axes = make([]int, rank)
		for i := range axes {
			axes[i] = rank - 1 - i
		}
	}
	return &TransposeOp{node: newNode(output, x), axes: append([]int(nil), axes...)}
}

// Backward applies the inverse permutation to the gradient.
func (op *TransposeOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	inverse := make([]int, len(op.axes))
	for i, a := range op.axes {
		inverse[a] = i
	}
	return []*tensor.RawTensor{backend.Transpose(outputGrad, inverse...)}
}

// CatOp represents concatenation along dim; the gradient is split back.
type CatOp struct {
	node
	dim int
}

// NewCatOp creates a new CatOp.
func NewCatOp(inputs []*tensor.RawTensor, output *tensor.RawTensor, dim int) *CatOp {
	return &CatOp{node: newNode(output, inputs...), dim: output.Shape().NormalizeDim(dim)}
}

// Backward narrows the gradient for each input.
func (op *CatOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	grads := make([]*tensor.RawTensor, len(op.inputs))
	start := 0
	for i, in := range op.inputs {
		size := in.Shape()[op.dim]
		grads[i] = backend.Narrow(outputGrad, op.dim, start, size)
		start += size
	}
	return grads
}

// NarrowOp represents a slice along dim; the gradient is zero-padded back.
type NarrowOp struct {
	node
	dim, start int
}

// NewNarrowOp creates a new NarrowOp.
func NewNarrowOp(x, output *tensor.RawTensor, dim, start int) *NarrowOp {
	return &NarrowOp{node: newNode(output, x), dim: x.Shape().NormalizeDim(dim), start: start}
}

// Backward scatters the gradient into a zero tensor of the input shape.
func (op *NarrowOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	inShape := op.inputs[0].Shape()
	length := outputGrad.Shape()[op.dim]
	parts := make([]*tensor.RawTensor, 0, 3)
	if op.start > 0 {
		s := inShape.Clone()
		s[op.dim] = op.start
		parts = append(parts, tensor.MustNewRaw(s, outputGrad.Device()))
	}
	parts = append(parts, outputGrad)
	if rest := inShape[op.dim] - op.start - length; rest > 0 {
		s := inShape.Clone()
		s[op.dim] = rest
		parts = append(parts, tensor.MustNewRaw(s, outputGrad.Device()))
	}
	if len(parts) == 1 {
		return []*tensor.RawTensor{outputGrad}
	}
	return []*tensor.RawTensor{backend.Cat(parts, op.dim)}
}

// SumOp represents a full reduction to a scalar; the gradient is broadcast.
type SumOp struct{ node }

// NewSumOp creates a new SumOp.
func NewSumOp(x, output *tensor.RawTensor) *SumOp { return &SumOp{newNode(output, x)} }

// Backward broadcasts the scalar gradient to the input shape.
func (op *SumOp) Backward(outputGrad *tensor.RawTensor, _ tensor.Backend) []*tensor.RawTensor {
	grad := tensor.MustNewRaw(op.inputs[0].Shape(), outputGrad.Device())
	grad.Fill(outputGrad.Data()[0])
	return []*tensor.RawTensor{grad}
}

// SumDimOp represents a reduction along dim keeping it with size 1.
type SumDimOp struct{ node }

// NewSumDimOp creates a new SumDimOp.
func NewSumDimOp(x, output *tensor.RawTensor) *SumDimOp { return &SumDimOp{newNode(output, x)} }

// Backward broadcasts the gradient back along the reduced dimension.
func (op *SumDimOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	zeros := tensor.MustNewRaw(op.inputs[0].Shape(), outputGrad.Device())
	return []*tensor.RawTensor{backend.Add(zeros, outputGrad)}
}
