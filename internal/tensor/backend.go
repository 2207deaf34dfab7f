package tensor

// ConvParams describes a 2D convolution: stride, zero padding and dilation are
// symmetric in height and width.
type ConvParams struct {
	Stride   int
	Padding  int
	Dilation int
}

// DefaultConvParams returns stride 1, no padding, dilation 1.
func DefaultConvParams() ConvParams {
	return ConvParams{Stride: 1, Padding: 0, Dilation: 1}
}

// OutputSize returns the spatial output size for an input of size in and a
// kernel of size k.
func (p ConvParams) OutputSize(in, k int) int {
	return (in+2*p.Padding-p.Dilation*(k-1)-1)/p.Stride + 1
}

// Backend defines the interface that all compute backends must implement.
// Backends are responsible for executing tensor operations on specific devices.
//
// All operations take RawTensors and return new RawTensors. Inputs are never
// modified. Shape violations are programmer errors and panic.
type Backend interface {
	// Element-wise operations with NumPy broadcasting.
	Add(a, b *RawTensor) *RawTensor
	Sub(a, b *RawTensor) *RawTensor
	Mul(a, b *RawTensor) *RawTensor
	Div(a, b *RawTensor) *RawTensor

	// Scalar operations.
	AddScalar(x *RawTensor, s float32) *RawTensor
	MulScalar(x *RawTensor, s float32) *RawTensor

	// Linear algebra on rank-2 tensors.
	MatMul(a, b *RawTensor) *RawTensor

	// Shape operations.
	Reshape(x *RawTensor, shape Shape) *RawTensor
	Transpose(x *RawTensor, axes ...int) *RawTensor
	Cat(xs []*RawTensor, dim int) *RawTensor
	Narrow(x *RawTensor, dim, start, length int) *RawTensor

	// Unary math and activations.
	Exp(x *RawTensor) *RawTensor
	Log(x *RawTensor) *RawTensor
	ReLU(x *RawTensor) *RawTensor
	LeakyReLU(x *RawTensor, slope float32) *RawTensor
	Sigmoid(x *RawTensor) *RawTensor
	Tanh(x *RawTensor) *RawTensor
	Softmax(x *RawTensor, dim int) *RawTensor

	// Reductions.
	Sum(x *RawTensor) *RawTensor
	SumDim(x *RawTensor, dim int) *RawTensor

	// Convolution and pooling over NCHW inputs.
	Conv2D(input, kernel *RawTensor, p ConvParams) *RawTensor
	Conv2DInputBackward(input, kernel, grad *RawTensor, p ConvParams) *RawTensor
	Conv2DKernelBackward(input, kernel, grad *RawTensor, p ConvParams) *RawTensor
	MaxPool2D(input *RawTensor, kernelSize, stride int) *RawTensor
	MaxPool2DBackward(input, grad *RawTensor, kernelSize, stride int) *RawTensor
	Upsample2D(input *RawTensor, scale int) *RawTensor
	Upsample2DBackward(grad *RawTensor, scale int) *RawTensor

	// Fused losses, each returns a scalar mean.
	//
	// BCEWithLogits takes logits and targets of the same shape.
	// CrossEntropy takes logits [N, C, ...] and class indices [N, ...].
	// FocalLoss takes either layout, picked by whether the shapes match.
	BCEWithLogits(logits, targets *RawTensor) *RawTensor
	CrossEntropy(logits, targets *RawTensor) *RawTensor
	FocalLoss(logits, targets *RawTensor, alpha, gamma float32) *RawTensor

	// Metadata.
	Name() string
	Device() Device
}
