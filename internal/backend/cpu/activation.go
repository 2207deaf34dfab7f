package cpu

import (
	"github.com/chewxy/math32"

	"github.com/born-ml/atomnet/internal/tensor"
)

// Exp computes e^x element-wise.
func (cpu *CPUBackend) Exp(x *tensor.RawTensor) *tensor.RawTensor {
	return cpu.unary(x, math32.Exp)
}

// Log computes the natural logarithm element-wise.
func (cpu *CPUBackend) Log(x *tensor.RawTensor) *tensor.RawTensor {
	return cpu.unary(x, math32.Log)
}

// ReLU computes max(0, x).
func (cpu *CPUBackend) ReLU(x *tensor.RawTensor) *tensor.RawTensor {
	return cpu.unary(x, func(v float32) float32 {
		if v > 0 {
			return v
		}
		return 0
	})
}

// LeakyReLU computes x for x > 0 and slope*x otherwise.
func (cpu *CPUBackend) LeakyReLU(x *tensor.RawTensor, slope float32) *tensor.RawTensor {
	return cpu.unary(x, func(v float32) float32 {
		if v > 0 {
			return v
		}
		return slope * v
	})
}

// Sigmoid computes 1/(1+e^-x) in a numerically stable way.
func (cpu *CPUBackend) Sigmoid(x *tensor.RawTensor) *tensor.RawTensor {
	return cpu.unary(x, sigmoid32)
}

// Tanh computes tanh(x).
func (cpu *CPUBackend) Tanh(x *tensor.RawTensor) *tensor.RawTensor {
	return cpu.unary(x, math32.Tanh)
}

// Softmax computes exp(x)/sum(exp(x)) along dim, subtracting the maximum first.
func (cpu *CPUBackend) Softmax(x *tensor.RawTensor, dim int) *tensor.RawTensor {
	shape := x.Shape()
	dim = shape.NormalizeDim(dim)
	out := cpu.newRaw(shape)
	outer, size, inner := splitDim(shape, dim)
	src, dst := x.Data(), out.Data()

	cpu.forRows(outer, size*inner, func(o int) {
		for i := 0; i < inner; i++ {
			base := o*size*inner + i
			maxV := src[base]
			for s := 1; s < size; s++ {
				maxV = max(maxV, src[base+s*inner])
			}
			var sum float32
			for s := 0; s < size; s++ {
				e := math32.Exp(src[base+s*inner] - maxV)
				dst[base+s*inner] = e
				sum += e
			}
			for s := 0; s < size; s++ {
				dst[base+s*inner] /= sum
			}
		}
	})
	return out
}

// sigmoid32 is the logistic function for a single value.
func sigmoid32(v float32) float32 {
	if v >= 0 {
		return 1 / (1 + math32.Exp(-v))
	}
	e := math32.Exp(v)
	return e / (1 + e)
}
