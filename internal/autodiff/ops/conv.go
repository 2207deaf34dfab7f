package ops

import "github.com/born-ml/atomnet/internal/tensor"

// Conv2DOp represents a 2D convolution. Gradients come from the backend's
// dedicated input and kernel backward kernels.
type Conv2DOp struct {
	node
	params tensor.ConvParams
}

// NewConv2DOp creates a new Conv2DOp.
func NewConv2DOp(input, kernel, output *tensor.RawTensor, p tensor.ConvParams) *Conv2DOp {
	return &Conv2DOp{node: newNode(output, input, kernel), params: p}
}

// Backward computes gradients for input and kernel.
func (op *Conv2DOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	input, kernel := op.inputs[0], op.inputs[1]
	return []*tensor.RawTensor{
		backend.Conv2DInputBackward(input, kernel, outputGrad, op.params),
		backend.Conv2DKernelBackward(input, kernel, outputGrad, op.params),
	}
}

// MaxPool2DOp represents max pooling; the gradient flows to window maxima.
type MaxPool2DOp struct {
	node
	kernelSize, stride int
}

// NewMaxPool2DOp creates a new MaxPool2DOp.
func NewMaxPool2DOp(input, output *tensor.RawTensor, kernelSize, stride int) *MaxPool2DOp {
	return &MaxPool2DOp{node: newNode(output, input), kernelSize: kernelSize, stride: stride}
}

// Backward routes the gradient to the maxima of each window.
func (op *MaxPool2DOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{backend.MaxPool2DBackward(op.inputs[0], outputGrad, op.kernelSize, op.stride)}
}

// Upsample2DOp represents nearest-neighbour upsampling.
type Upsample2DOp struct {
	node
	scale int
}

// NewUpsample2DOp creates a new Upsample2DOp.
func NewUpsample2DOp(input, output *tensor.RawTensor, scale int) *Upsample2DOp {
	return &Upsample2DOp{node: newNode(output, input), scale: scale}
}

// Backward sums the gradient over each upsampled block.
func (op *Upsample2DOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{backend.Upsample2DBackward(outputGrad, op.scale)}
}
