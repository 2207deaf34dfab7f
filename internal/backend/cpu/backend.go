// Package cpu implements the CPU backend on plain float32 loops, parallelized
// over batch and channel dimensions.
package cpu

import (
	"github.com/gomlx/exceptions"

	"github.com/born-ml/atomnet/internal/parallel"
	"github.com/born-ml/atomnet/internal/tensor"
)

// CPUBackend implements tensor operations on the host processor.
type CPUBackend struct {
	device tensor.Device
	par    parallel.Config
}

// New creates a new CPU backend using all available cores.
func New() *CPUBackend {
	return &CPUBackend{
		device: tensor.CPU,
		par:    parallel.DefaultConfig(),
	}
}

// NewWithConfig creates a CPU backend with an explicit parallelism policy.
func NewWithConfig(cfg parallel.Config) *CPUBackend {
	return &CPUBackend{device: tensor.CPU, par: cfg}
}

// Name returns the backend name.
func (cpu *CPUBackend) Name() string {
	return "CPU"
}

// Device returns the compute device.
func (cpu *CPUBackend) Device() tensor.Device {
	return cpu.device
}

func (cpu *CPUBackend) newRaw(shape tensor.Shape) *tensor.RawTensor {
	return tensor.MustNewRaw(shape, cpu.device)
}

// Add performs element-wise addition with NumPy-style broadcasting.
func (cpu *CPUBackend) Add(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binary("add", a, b, func(x, y float32) float32 { return x + y })
}

// Sub performs element-wise subtraction with broadcasting.
func (cpu *CPUBackend) Sub(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binary("sub", a, b, func(x, y float32) float32 { return x - y })
}

// Mul performs element-wise multiplication with broadcasting.
func (cpu *CPUBackend) Mul(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binary("mul", a, b, func(x, y float32) float32 { return x * y })
}

// Div performs element-wise division with broadcasting.
func (cpu *CPUBackend) Div(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binary("div", a, b, func(x, y float32) float32 { return x / y })
}

// AddScalar adds s to every element.
func (cpu *CPUBackend) AddScalar(x *tensor.RawTensor, s float32) *tensor.RawTensor {
	return cpu.unary(x, func(v float32) float32 { return v + s })
}

// MulScalar multiplies every element by s.
func (cpu *CPUBackend) MulScalar(x *tensor.RawTensor, s float32) *tensor.RawTensor {
	return cpu.unary(x, func(v float32) float32 { return v * s })
}

func (cpu *CPUBackend) unary(x *tensor.RawTensor, f func(float32) float32) *tensor.RawTensor {
	out := cpu.newRaw(x.Shape())
	src, dst := x.Data(), out.Data()
	for i, v := range src {
		dst[i] = f(v)
	}
	return out
}

func (cpu *CPUBackend) binary(name string, a, b *tensor.RawTensor, f func(x, y float32) float32) *tensor.RawTensor {
	outShape, needsBroadcast, err := tensor.BroadcastShapes(a.Shape(), b.Shape())
	if err != nil {
		exceptions.Panicf("%s: %v", name, err)
	}
	out := cpu.newRaw(outShape)
	ad, bd, od := a.Data(), b.Data(), out.Data()

	switch {
	case !needsBroadcast:
		for i := range od {
			od[i] = f(ad[i], bd[i])
		}
	case len(bd) == 1:
		s := bd[0]
		for i := range od {
			od[i] = f(ad[i], s)
		}
	case len(ad) == 1:
		s := ad[0]
		for i := range od {
			od[i] = f(s, bd[i])
		}
	default:
		aStrides := broadcastStrides(a.Shape(), outShape)
		bStrides := broadcastStrides(b.Shape(), outShape)
		rank := len(outShape)
		idx := make([]int, rank)
		for i := range od {
			aOff, bOff := 0, 0
			for d := 0; d < rank; d++ {
				aOff += idx[d] * aStrides[d]
				bOff += idx[d] * bStrides[d]
			}
			od[i] = f(ad[aOff], bd[bOff])
			for d := rank - 1; d >= 0; d-- {
				idx[d]++
				if idx[d] < outShape[d] {
					break
				}
				idx[d] = 0
			}
		}
	}
	return out
}

// broadcastStrides returns strides of shape aligned to outShape, with zero
// stride on broadcast dimensions.
func broadcastStrides(shape, outShape tensor.Shape) []int {
	strides := make([]int, len(outShape))
	own := shape.ComputeStrides()
	offset := len(outShape) - len(shape)
	for d := range shape {
		if shape[d] != 1 {
			strides[d+offset] = own[d]
		}
	}
	return strides
}

// splitDim decomposes shape around dim into outer × size × inner.
func splitDim(shape tensor.Shape, dim int) (outer, size, inner int) {
	outer, inner = 1, 1
	for i := 0; i < dim; i++ {
		outer *= shape[i]
	}
	for i := dim + 1; i < len(shape); i++ {
		inner *= shape[i]
	}
	return outer, shape[dim], inner
}

// heavy returns the parallel policy for loops whose iterations each carry a
// whole feature map of work.
func (cpu *CPUBackend) heavy() parallel.Config {
	cfg := cpu.par
	cfg.MinChunkSize = 1
	return cfg
}
