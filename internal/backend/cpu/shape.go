package cpu

import (
	"github.com/gomlx/exceptions"

	"github.com/born-ml/atomnet/internal/parallel"
	"github.com/born-ml/atomnet/internal/tensor"
)

// MatMul multiplies two rank-2 tensors: [M, K] @ [K, N] -> [M, N].
func (cpu *CPUBackend) MatMul(a, b *tensor.RawTensor) *tensor.RawTensor {
	as, bs := a.Shape(), b.Shape()
	if len(as) != 2 || len(bs) != 2 || as[1] != bs[0] {
		exceptions.Panicf("matmul: incompatible shapes %v @ %v", as, bs)
	}
	m, k, n := as[0], as[1], bs[1]
	out := cpu.newRaw(tensor.Shape{m, n})
	ad, bd, od := a.Data(), b.Data(), out.Data()

	cpu.forRows(m, k*n, func(i int) {
		row := od[i*n : (i+1)*n]
		for p := 0; p < k; p++ {
			av := ad[i*k+p]
			if av == 0 {
				continue
			}
			bRow := bd[p*n : (p+1)*n]
			for j, bv := range bRow {
				row[j] += av * bv
			}
		}
	})
	return out
}

// forRows parallelizes over rows only when each row carries enough work.
func (cpu *CPUBackend) forRows(rows, work int, f func(i int)) {
	cfg := cpu.par
	if work < 256 {
		cfg.Enabled = false
	}
	cfg.MinChunkSize = 1
	parallel.For(rows, f, cfg)
}

// Reshape returns a view with a new shape.
func (cpu *CPUBackend) Reshape(x *tensor.RawTensor, shape tensor.Shape) *tensor.RawTensor {
	if shape.NumElements() != x.NumElements() {
		exceptions.Panicf("reshape: cannot reshape %v into %v", x.Shape(), shape)
	}
	return x.View(shape)
}

// Transpose permutes the axes of x. With no axes the order is reversed.
func (cpu *CPUBackend) Transpose(x *tensor.RawTensor, axes ...int) *tensor.RawTensor {
	shape := x.Shape()
	rank := len(shape)
	if len(axes) == 0 {
		axes = make([]int, rank)
		for i := range axes {
			axes[i] = rank - 1 - i
		}
	}
	if len(axes) != rank {
		exceptions.Panicf("transpose: %d axes given for rank %d", len(axes), rank)
	}

	outShape := make(tensor.Shape, rank)
	for i, a := range axes {
		outShape[i] = shape[a]
	}
	out := cpu.newRaw(outShape)
	inStrides := x.Strides()
	src, dst := x.Data(), out.Data()

	idx := make([]int, rank)
	for i := range dst {
		off := 0
		for d := 0; d < rank; d++ {
			off += idx[d] * inStrides[axes[d]]
		}
		dst[i] = src[off]
		for d := rank - 1; d >= 0; d-- {
			idx[d]++
			if idx[d] < outShape[d] {
				break
			}
			idx[d] = 0
		}
	}
	return out
}

// Cat concatenates tensors along dim. All other dimensions must match.
func (cpu *CPUBackend) Cat(xs []*tensor.RawTensor, dim int) *tensor.RawTensor {
	if len(xs) == 0 {
		exceptions.Panicf("cat: no tensors")
	}
	first := xs[0].Shape()
	dim = first.NormalizeDim(dim)
	outShape := first.Clone()
	outShape[dim] = 0
	for _, x := range xs {
		s := x.Shape()
		if len(s) != len(first) {
			exceptions.Panicf("cat: rank mismatch %v vs %v", s, first)
		}
		for d := range s {
			if d != dim && s[d] != first[d] {
				exceptions.Panicf("cat: shape mismatch %v vs %v at dim %d", s, first, d)
			}
		}
		outShape[dim] += s[dim]
	}

	out := cpu.newRaw(outShape)
	outer, total, inner := splitDim(outShape, dim)
	dst := out.Data()
	offset := 0
	for _, x := range xs {
		size := x.Shape()[dim]
		src := x.Data()
		for o := 0; o < outer; o++ {
			copy(dst[(o*total+offset)*inner:(o*total+offset+size)*inner], src[o*size*inner:(o+1)*size*inner])
		}
		offset += size
	}
	return out
}

// Narrow returns the slice [start, start+length) of x along dim.
func (cpu *CPUBackend) Narrow(x *tensor.RawTensor, dim, start, length int) *tensor.RawTensor {
	shape := x.Shape()
	dim = shape.NormalizeDim(dim)
	if start < 0 || length <= 0 || start+length > shape[dim] {
		exceptions.Panicf("narrow: range [%d, %d) out of bounds for dim %d of %v", start, start+length, dim, shape)
	}
	outShape := shape.Clone()
	outShape[dim] = length
	out := cpu.newRaw(outShape)
	outer, size, inner := splitDim(shape, dim)
	src, dst := x.Data(), out.Data()
	for o := 0; o < outer; o++ {
		copy(dst[o*length*inner:(o+1)*length*inner], src[(o*size+start)*inner:(o*size+start+length)*inner])
	}
	return out
}

// Sum reduces every element into a scalar of shape [].
func (cpu *CPUBackend) Sum(x *tensor.RawTensor) *tensor.RawTensor {
	out := cpu.newRaw(tensor.Shape{})
	var acc float64
	for _, v := range x.Data() {
		acc += float64(v)
	}
	out.Data()[0] = float32(acc)
	return out
}

// SumDim sums along dim keeping it with size 1.
func (cpu *CPUBackend) SumDim(x *tensor.RawTensor, dim int) *tensor.RawTensor {
	shape := x.Shape()
	dim = shape.NormalizeDim(dim)
	outShape := shape.Clone()
	outShape[dim] = 1
	out := cpu.newRaw(outShape)
	outer, size, inner := splitDim(shape, dim)
	src, dst := x.Data(), out.Data()
	for o := 0; o < outer; o++ {
		for s := 0; s < size; s++ {
			base := (o*size + s) * inner
			for i := 0; i < inner; i++ {
				dst[o*inner+i] += src[base+i]
			}
		}
	}
	return out
}
