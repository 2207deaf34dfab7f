// Package autodiff implements reverse-mode automatic differentiation as a
// decorator around any tensor.Backend.
//
// AutodiffBackend forwards every operation to the inner backend and, while
// its tape is recording, records the operation so gradients can be computed
// later:
//
//	backend := autodiff.New(cpu.New())
//	backend.Tape().StartRecording()
//	loss := model.Forward(x, nn.Train) ...
//	grads := backend.Tape().Backward(ones, backend)
//	optimizer.Step(grads)
//	backend.Tape().Clear()
package autodiff

import (
	"github.com/born-ml/atomnet/internal/autodiff/ops"
	"github.com/born-ml/atomnet/internal/tensor"
)

// AutodiffBackend wraps a backend and records operations on a GradientTape.
type AutodiffBackend struct {
	inner tensor.Backend
	tape  *GradientTape
}

// New creates an AutodiffBackend with a fresh, non-recording tape.
func New(inner tensor.Backend) *AutodiffBackend {
	return &AutodiffBackend{inner: inner, tape: NewGradientTape()}
}

// Tape returns the gradient tape.
func (b *AutodiffBackend) Tape() *GradientTape { return b.tape }

// Inner returns the wrapped backend.
func (b *AutodiffBackend) Inner() tensor.Backend { return b.inner }

// Name returns the backend name.
func (b *AutodiffBackend) Name() string { return "Autodiff(" + b.inner.Name() + ")" }

// Device returns the inner backend's device.
func (b *AutodiffBackend) Device() tensor.Device { return b.inner.Device() }

func (b *AutodiffBackend) record(op ops.Operation) {
	if b.tape.IsRecording() {
		b.tape.Record(op)
	}
}

// Add performs a + b and records AddOp.
func (b *AutodiffBackend) Add(x, y *tensor.RawTensor) *tensor.RawTensor {
	out := b.inner.Add(x, y)
	b.record(ops.NewAddOp(x, y, out))
	return out
}

// Sub performs a - b and records SubOp.
func (b *AutodiffBackend) Sub(x, y *tensor.RawTensor) *tensor.RawTensor {
	out := b.inner.Sub(x, y)
	b.record(ops.NewSubOp(x, y, out))
	return out
}

// Mul performs a * b and records MulOp.
func (b *AutodiffBackend) Mul(x, y *tensor.RawTensor) *tensor.RawTensor {
	out := b.inner.Mul(x, y)
	b.record(ops.NewMulOp(x, y, out))
	return out
}

// Div performs a / b and records DivOp.
func (b *AutodiffBackend) Div(x, y *tensor.RawTensor) *tensor.RawTensor {
	out := b.inner.Div(x, y)
	b.record(ops.NewDivOp(x, y, out))
	return out
}

// AddScalar performs x + s.
func (b *AutodiffBackend) AddScalar(x *tensor.RawTensor, s float32) *tensor.RawTensor {
	out := b.inner.AddScalar(x, s)
	b.record(ops.NewScalarOp(x, out, 1))
	return out
}

// MulScalar performs x * s.
func (b *AutodiffBackend) MulScalar(x *tensor.RawTensor, s float32) *tensor.RawTensor {
	out := b.inner.MulScalar(x, s)
	b.record(ops.NewScalarOp(x, out, s))
	return out
}

// MatMul performs a @ b and records MatMulOp.
func (b *AutodiffBackend) MatMul(x, y *tensor.RawTensor) *tensor.RawTensor {
	out := b.inner.MatMul(x, y)
	b.record(ops.NewMatMulOp(x, y, out))
	return out
}

// Reshape changes the shape and records ReshapeOp.
func (b *AutodiffBackend) Reshape(x *tensor.RawTensor, shape tensor.Shape) *tensor.RawTensor {
	out := b.inner.Reshape(x, shape)
	b.record(ops.NewReshapeOp(x, out))
	return out
}

// Transpose permutes axes and records TransposeOp.
func (b *AutodiffBackend) Transpose(x *tensor.RawTensor, axes ...int) *tensor.RawTensor {
	out := b.inner.Transpose(x, axes...)
	b.record(ops.NewTransposeOp(x, out, axes))
	return out
}

// Cat concatenates along dim and records CatOp.
func (b *AutodiffBackend) Cat(xs []*tensor.RawTensor, dim int) *tensor.RawTensor {
	out := b.inner.Cat(xs, dim)
	b.record(ops.NewCatOp(xs, out, dim))
	return out
}

// Narrow slices along dim and records NarrowOp.
func (b *AutodiffBackend) Narrow(x *tensor.RawTensor, dim, start, length int) *tensor.RawTensor {
	out := b.inner.Narrow(x, dim, start, length)
	b.record(ops.NewNarrowOp(x, out, dim, start))
	return out
}

// Exp computes e^x and records ExpOp.
func (b *AutodiffBackend) Exp(x *tensor.RawTensor) *tensor.RawTensor {
	out := b.inner.Exp(x)
	b.record(ops.NewExpOp(x, out))
	return out
}

// Log computes ln(x) and records LogOp.
func (b *AutodiffBackend) Log(x *tensor.RawTensor) *tensor.RawTensor {
	out := b.inner.Log(x)
	b.record(ops.NewLogOp(x, out))
	return out
}

// ReLU computes max(0, x).
func (b *AutodiffBackend) ReLU(x *tensor.RawTensor) *tensor.RawTensor {
	out := b.inner.ReLU(x)
	b.record(ops.NewLeakyReLUOp(x, out, 0))
	return out
}

// LeakyReLU computes the leaky rectifier.
func (b *AutodiffBackend) LeakyReLU(x *tensor.RawTensor, slope float32) *tensor.RawTensor {
	out := b.inner.LeakyReLU(x, slope)
	b.record(ops.NewLeakyReLUOp(x, out, slope))
	return out
}

// Sigmoid computes σ(x) and records SigmoidOp.
func (b *AutodiffBackend) Sigmoid(x *tensor.RawTensor) *tensor.RawTensor {
	out := b.inner.Sigmoid(x)
	b.record(ops.NewSigmoidOp(x, out))
	return out
}

// Tanh computes tanh(x) and records TanhOp.
func (b *AutodiffBackend) Tanh(x *tensor.RawTensor) *tensor.RawTensor {
	out := b.inner.Tanh(x)
	b.record(ops.NewTanhOp(x, out))
	return out
}

// Softmax computes softmax along dim and records SoftmaxOp.
func (b *AutodiffBackend) Softmax(x *tensor.RawTensor, dim int) *tensor.RawTensor {
	out := b.inner.Softmax(x, dim)
	b.record(ops.NewSoftmaxOp(x, out, dim))
	return out
}

// Sum reduces to a scalar and records SumOp.
func (b *AutodiffBackend) Sum(x *tensor.RawTensor) *tensor.RawTensor {
	out := b.inner.Sum(x)
	b.record(ops.NewSumOp(x, out))
	return out
}

// SumDim reduces along dim and records SumDimOp.
func (b *AutodiffBackend) SumDim(x *tensor.RawTensor, dim int) *tensor.RawTensor {
	out := b.inner.SumDim(x, dim)
	b.record(ops.NewSumDimOp(x, out))
	return out
}

// Conv2D convolves and records Conv2DOp.
func (b *AutodiffBackend) Conv2D(input, kernel *tensor.RawTensor, p tensor.ConvParams) *tensor.RawTensor {
	out := b.inner.Conv2D(input, kernel, p)
	b.record(ops.NewConv2DOp(input, kernel, out, p))
	return out
}

// Conv2DInputBackward delegates to the inner backend without recording.
func (b *AutodiffBackend) Conv2DInputBackward(input, kernel, grad *tensor.RawTensor, p tensor.ConvParams) *tensor.RawTensor {
	return b.inner.Conv2DInputBackward(input, kernel, grad, p)
}

// Conv2DKernelBackward delegates to the inner backend without recording.
func (b *AutodiffBackend) Conv2DKernelBackward(input, kernel, grad *tensor.RawTensor, p tensor.ConvParams) *tensor.RawTensor {
	return b.inner.Conv2DKernelBackward(input, kernel, grad, p)
}

// MaxPool2D pools and records MaxPool2DOp.
func (b *AutodiffBackend) MaxPool2D(input *tensor.RawTensor, kernelSize, stride int) *tensor.RawTensor {
	out := b.inner.MaxPool2D(input, kernelSize, stride)
	b.record(ops.NewMaxPool2DOp(input, out, kernelSize, stride))
	return out
}

// MaxPool2DBackward delegates to the inner backend without recording.
func (b *AutodiffBackend) MaxPool2DBackward(input, grad *tensor.RawTensor, kernelSize, stride int) *tensor.RawTensor {
	return b.inner.MaxPool2DBackward(input, grad, kernelSize, stride)
}

// Upsample2D upsamples and records Upsample2DOp.
func (b *AutodiffBackend) Upsample2D(input *tensor.RawTensor, scale int) *tensor.RawTensor {
	out := b.inner.Upsample2D(input, scale)
	b.record(ops.NewUpsample2DOp(input, out, scale))
	return out
}

// Upsample2DBackward delegates to the inner backend without recording.
func (b *AutodiffBackend) Upsample2DBackward(grad *tensor.RawTensor, scale int) *tensor.RawTensor {
	return b.inner.Upsample2DBackward(grad, scale)
}

// BCEWithLogits computes the fused binary cross-entropy and records it.
func (b *AutodiffBackend) BCEWithLogits(logits, targets *tensor.RawTensor) *tensor.RawTensor {
	out := b.inner.BCEWithLogits(logits, targets)
	b.record(ops.NewBCEWithLogitsOp(logits, targets, out))
	return out
}

// CrossEntropy computes the fused softmax cross-entropy and records it.
func (b *AutodiffBackend) CrossEntropy(logits, targets *tensor.RawTensor) *tensor.RawTensor {
	out := b.inner.CrossEntropy(logits, targets)
	b.record(ops.NewCrossEntropyOp(logits, targets, out))
	return out
}

// FocalLoss computes the fused focal loss and records it.
func (b *AutodiffBackend) FocalLoss(logits, targets *tensor.RawTensor, alpha, gamma float32) *tensor.RawTensor {
	out := b.inner.FocalLoss(logits, targets, alpha, gamma)
	b.record(ops.NewFocalLossOp(logits, targets, out, alpha, gamma))
	return out
}

// Ensure AutodiffBackend satisfies the Backend contract.
var _ tensor.Backend = (*AutodiffBackend)(nil)
