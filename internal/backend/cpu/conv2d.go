package cpu

import (
	"github.com/gomlx/exceptions"

	"github.com/born-ml/atomnet/internal/parallel"
	"github.com/born-ml/atomnet/internal/tensor"
)

type convGeometry struct {
	n, cin, h, w       int
	cout, kh, kw       int
	hout, wout         int
	stride, pad, dilat int
}

func newConvGeometry(input, kernel *tensor.RawTensor, p tensor.ConvParams) convGeometry {
	is, ks := input.Shape(), kernel.Shape()
	if len(is) != 4 {
		exceptions.Panicf("conv2d: input must be 4D [N,C,H,W], got %v", is)
	}
	if len(ks) != 4 {
		exceptions.Panicf("conv2d: kernel must be 4D [C_out,C_in,K_h,K_w], got %v", ks)
	}
	if is[1] != ks[1] {
		exceptions.Panicf("conv2d: input channels %d != kernel channels %d", is[1], ks[1])
	}
	if p.Stride <= 0 {
		p.Stride = 1
	}
	if p.Dilation <= 0 {
		p.Dilation = 1
	}
	g := convGeometry{
		n: is[0], cin: is[1], h: is[2], w: is[3],
		cout: ks[0], kh: ks[2], kw: ks[3],
		stride: p.Stride, pad: p.Padding, dilat: p.Dilation,
	}
	p.Stride, p.Dilation = g.stride, g.dilat
	g.hout = p.OutputSize(g.h, g.kh)
	g.wout = p.OutputSize(g.w, g.kw)
	if g.hout <= 0 || g.wout <= 0 {
		exceptions.Panicf("conv2d: invalid output dimensions %dx%d for input %v, kernel %v, params %+v", g.hout, g.wout, is, ks, p)
	}
	return g
}

// Conv2D performs a direct 2D cross-correlation.
//
// Input shape: [N, C_in, H, W]
// Kernel shape: [C_out, C_in, K_h, K_w]
// Output shape: [N, C_out, H_out, W_out]
//
// Work is split across (batch, output channel) pairs.
func (cpu *CPUBackend) Conv2D(input, kernel *tensor.RawTensor, p tensor.ConvParams) *tensor.RawTensor {
	g := newConvGeometry(input, kernel, p)
	out := cpu.newRaw(tensor.Shape{g.n, g.cout, g.hout, g.wout})
	in, k, o := input.Data(), kernel.Data(), out.Data()

	parallel.ForBatch(g.n, g.cout, func(n, co int) {
		dst := o[(n*g.cout+co)*g.hout*g.wout : (n*g.cout+co+1)*g.hout*g.wout]
		for ci := 0; ci < g.cin; ci++ {
			src := in[(n*g.cin+ci)*g.h*g.w:]
			kern := k[(co*g.cin+ci)*g.kh*g.kw:]
			for ky := 0; ky < g.kh; ky++ {
				for kx := 0; kx < g.kw; kx++ {
					kv := kern[ky*g.kw+kx]
					for oy := 0; oy < g.hout; oy++ {
						iy := oy*g.stride - g.pad + ky*g.dilat
						if iy < 0 || iy >= g.h {
							continue
						}
						row := src[iy*g.w:]
						for ox := 0; ox < g.wout; ox++ {
							ix := ox*g.stride - g.pad + kx*g.dilat
							if ix < 0 || ix >= g.w {
								continue
							}
							dst[oy*g.wout+ox] += kv * row[ix]
						}
					}
				}
			}
		}
	}, cpu.heavy())
	return out
}

// Conv2DInputBackward computes the gradient of Conv2D with respect to input.
func (cpu *CPUBackend) Conv2DInputBackward(input, kernel, grad *tensor.RawTensor, p tensor.ConvParams) *tensor.RawTensor {
	g := newConvGeometry(input, kernel, p)
	out := cpu.newRaw(input.Shape())
	k, gd, o := kernel.Data(), grad.Data(), out.Data()

	parallel.ForBatch(g.n, g.cin, func(n, ci int) {
		dst := o[(n*g.cin+ci)*g.h*g.w:]
		for co := 0; co < g.cout; co++ {
			src := gd[(n*g.cout+co)*g.hout*g.wout:]
			kern := k[(co*g.cin+ci)*g.kh*g.kw:]
			for ky := 0; ky < g.kh; ky++ {
				for kx := 0; kx < g.kw; kx++ {
					kv := kern[ky*g.kw+kx]
					for oy := 0; oy < g.hout; oy++ {
						iy := oy*g.stride - g.pad + ky*g.dilat
						if iy < 0 || iy >= g.h {
							continue
						}
						for ox := 0; ox < g.wout; ox++ {
							ix := ox*g.stride - g.pad + kx*g.dilat
							if ix < 0 || ix >= g.w {
								continue
							}
							dst[iy*g.w+ix] += kv * src[oy*g.wout+ox]
						}
					}
				}
			}
		}
	}, cpu.heavy())
	return out
}

// Conv2DKernelBackward computes the gradient of Conv2D with respect to kernel.
func (cpu *CPUBackend) Conv2DKernelBackward(input, kernel, grad *tensor.RawTensor, p tensor.ConvParams) *tensor.RawTensor {
	g := newConvGeometry(input, kernel, p)
	out := cpu.newRaw(kernel.Shape())
	in, gd, o := input.Data(), grad.Data(), out.Data()

	parallel.ForBatch(g.cout, g.cin, func(co, ci int) {
		dst := o[(co*g.cin+ci)*g.kh*g.kw:]
		for n := 0; n < g.n; n++ {
			src := in[(n*g.cin+ci)*g.h*g.w:]
			gsrc := gd[(n*g.cout+co)*g.hout*g.wout:]
			for ky := 0; ky < g.kh; ky++ {
				for kx := 0; kx < g.kw; kx++ {
					var acc float32
					for oy := 0; oy < g.hout; oy++ {
						iy := oy*g.stride - g.pad + ky*g.dilat
						if iy < 0 || iy >= g.h {
							continue
						}
						for ox := 0; ox < g.wout; ox++ {
							ix := ox*g.stride - g.pad + kx*g.dilat
							if ix < 0 || ix >= g.w {
								continue
							}
							acc += gsrc[oy*g.wout+ox] * src[iy*g.w+ix]
						}
					}
					dst[ky*g.kw+kx] += acc
				}
			}
		}
	}, cpu.heavy())
	return out
}
