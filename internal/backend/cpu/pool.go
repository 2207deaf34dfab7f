package cpu

import (
	"github.com/gomlx/exceptions"

	"github.com/born-ml/atomnet/internal/parallel"
	"github.com/born-ml/atomnet/internal/tensor"
)

func poolGeometry(name string, shape tensor.Shape, kernelSize, stride int) (n, c, h, w, hout, wout int) {
	if len(shape) != 4 {
		exceptions.Panicf("%s: input must be 4D [N,C,H,W], got %v", name, shape)
	}
	if kernelSize <= 0 || stride <= 0 {
		exceptions.Panicf("%s: invalid kernel size %d or stride %d", name, kernelSize, stride)
	}
	n, c, h, w = shape[0], shape[1], shape[2], shape[3]
	hout = (h-kernelSize)/stride + 1
	wout = (w-kernelSize)/stride + 1
	if hout <= 0 || wout <= 0 {
		exceptions.Panicf("%s: input %v too small for kernel %d", name, shape, kernelSize)
	}
	return n, c, h, w, hout, wout
}

// MaxPool2D takes the maximum over kernelSize×kernelSize windows.
func (cpu *CPUBackend) MaxPool2D(input *tensor.RawTensor, kernelSize, stride int) *tensor.RawTensor {
	n, c, h, w, hout, wout := poolGeometry("maxpool2d", input.Shape(), kernelSize, stride)
	out := cpu.newRaw(tensor.Shape{n, c, hout, wout})
	src, dst := input.Data(), out.Data()

	parallel.ForBatch(n, c, func(b, ch int) {
		plane := src[(b*c+ch)*h*w:]
		res := dst[(b*c+ch)*hout*wout:]
		for oy := 0; oy < hout; oy++ {
			for ox := 0; ox < wout; ox++ {
				best := plane[oy*stride*w+ox*stride]
				for ky := 0; ky < kernelSize; ky++ {
					for kx := 0; kx < kernelSize; kx++ {
						best = max(best, plane[(oy*stride+ky)*w+ox*stride+kx])
					}
				}
				res[oy*wout+ox] = best
			}
		}
	}, cpu.heavy())
	return out
}

// MaxPool2DBackward routes each output gradient to the first maximal element
// of its window.
func (cpu *CPUBackend) MaxPool2DBackward(input, grad *tensor.RawTensor, kernelSize, stride int) *tensor.RawTensor {
	n, c, h, w, hout, wout := poolGeometry("maxpool2d backward", input.Shape(), kernelSize, stride)
	out := cpu.newRaw(input.Shape())
	src, gd, dst := input.Data(), grad.Data(), out.Data()

	parallel.ForBatch(n, c, func(b, ch int) {
		plane := src[(b*c+ch)*h*w:]
		gplane := gd[(b*c+ch)*hout*wout:]
		res := dst[(b*c+ch)*h*w:]
		for oy := 0; oy < hout; oy++ {
			for ox := 0; ox < wout; ox++ {
				bestIdx := oy*stride*w + ox*stride
				for ky := 0; ky < kernelSize; ky++ {
					for kx := 0; kx < kernelSize; kx++ {
						idx := (oy*stride+ky)*w + ox*stride + kx
						if plane[idx] > plane[bestIdx] {
							bestIdx = idx
						}
					}
				}
				res[bestIdx] += gplane[oy*wout+ox]
			}
		}
	}, cpu.heavy())
	return out
}

// Upsample2D repeats every pixel scale×scale times.
func (cpu *CPUBackend) Upsample2D(input *tensor.RawTensor, scale int) *tensor.RawTensor {
	shape := input.Shape()
	if len(shape) != 4 || scale <= 0 {
		exceptions.Panicf("upsample2d: invalid input %v or scale %d", shape, scale)
	}
	n, c, h, w := shape[0], shape[1], shape[2], shape[3]
	out := cpu.newRaw(tensor.Shape{n, c, h * scale, w * scale})
	src, dst := input.Data(), out.Data()
	ws := w * scale
	parallel.ForBatch(n, c, func(b, ch int) {
		plane := src[(b*c+ch)*h*w:]
		res := dst[(b*c+ch)*h*w*scale*scale:]
		for y := 0; y < h*scale; y++ {
			for x := 0; x < ws; x++ {
				res[y*ws+x] = plane[(y/scale)*w+x/scale]
			}
		}
	}, cpu.heavy())
	return out
}

// Upsample2DBackward sums the gradient of every scale×scale block.
func (cpu *CPUBackend) Upsample2DBackward(grad *tensor.RawTensor, scale int) *tensor.RawTensor {
	shape := grad.Shape()
	if len(shape) != 4 || scale <= 0 || shape[2]%scale != 0 || shape[3]%scale != 0 {
		exceptions.Panicf("upsample2d backward: invalid gradient %v for scale %d", shape, scale)
	}
	n, c, hs, ws := shape[0], shape[1], shape[2], shape[3]
	h, w := hs/scale, ws/scale
	out := cpu.newRaw(tensor.Shape{n, c, h, w})
	src, dst := grad.Data(), out.Data()
	parallel.ForBatch(n, c, func(b, ch int) {
		plane := src[(b*c+ch)*hs*ws:]
		res := dst[(b*c+ch)*h*w:]
		for y := 0; y < hs; y++ {
			for x := 0; x < ws; x++ {
				res[(y/scale)*w+x/scale] += plane[y*ws+x]
			}
		}
	}, cpu.heavy())
	return out
}
