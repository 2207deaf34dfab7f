package ops

import (
	"github.com/born-ml/atomnet/internal/tensor"
)

// reduceBroadcast reduces a gradient tensor to match the target shape.
// This is necessary when broadcasting was used in the forward pass.
//
//	Forward: a[3,1] + b[3,4] -> c[3,4]  (a was broadcast along dim 1)
//	Backward: grad_c[3,4] -> grad_a[3,1] (sum along dim 1)
func reduceBroadcast(grad *tensor.RawTensor, targetShape tensor.Shape, backend tensor.Backend) *tensor.RawTensor {
	gradShape := grad.Shape()
	if gradShape.Equal(targetShape) {
		return grad
	}
	if targetShape.NumElements() == 1 {
		return backend.Reshape(backend.Sum(grad), targetShape)
	}

	result := grad
	for len(result.Shape()) > len(targetShape) {
		result = backend.SumDim(result, 0)
		result = backend.Reshape(result, result.Shape()[1:])
	}
	for i := range targetShape {
		if targetShape[i] == 1 && result.Shape()[i] > 1 {
			result = backend.SumDim(result, i)
		}
	}
	if !result.Shape().Equal(targetShape) {
		result = backend.Reshape(result, targetShape)
	}
	return result
}

// mapGrad builds a gradient element-wise from the output gradient.
func mapGrad(outputGrad *tensor.RawTensor, f func(i int, g float32) float32) *tensor.RawTensor {
	out := tensor.MustNewRaw(outputGrad.Shape(), outputGrad.Device())
	dst := out.Data()
	for i, g := range outputGrad.Data() {
		dst[i] = f(i, g)
	}
	return out
}
