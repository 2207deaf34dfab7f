package augment

import (
	"github.com/chewxy/math32"

	"github.com/born-ml/atomnet/internal/tensor"
)

// resizePlane resamples an h×w plane to nh×nw. Nearest-neighbour is used for
// label maps so class values are preserved.
func resizePlane(src []float32, h, w, nh, nw int, nearest bool) []float32 {
	dst := make([]float32, nh*nw)
	sy := float32(h) / float32(nh)
	sx := float32(w) / float32(nw)
	for y := 0; y < nh; y++ {
		fy := (float32(y)+0.5)*sy - 0.5
		for x := 0; x < nw; x++ {
			fx := (float32(x)+0.5)*sx - 0.5
			if nearest {
				iy := clamp(int(math32.Floor(fy+0.5)), 0, h-1)
				ix := clamp(int(math32.Floor(fx+0.5)), 0, w-1)
				dst[y*nw+x] = src[iy*w+ix]
				continue
			}
			dst[y*nw+x] = bilinear(src, h, w, fy, fx)
		}
	}
	return dst
}

// bilinear samples src at fractional (fy, fx) with edge clamping.
func bilinear(src []float32, h, w int, fy, fx float32) float32 {
	y0 := int(math32.Floor(fy))
	x0 := int(math32.Floor(fx))
	dy, dx := fy-float32(y0), fx-float32(x0)
	at := func(y, x int) float32 { return src[clamp(y, 0, h-1)*w+clamp(x, 0, w-1)] }
	top := at(y0, x0)*(1-dx) + at(y0, x0+1)*dx
	bottom := at(y0+1, x0)*(1-dx) + at(y0+1, x0+1)*dx
	return top*(1-dy) + bottom*dy
}

// cropResize resamples the window [y0, y0+ch) × [x0, x0+cw) of an h×w plane to h×w.
func cropResize(src []float32, h, w, y0, x0, ch, cw int, nearest bool) []float32 {
	crop := make([]float32, ch*cw)
	for y := 0; y < ch; y++ {
		copy(crop[y*cw:(y+1)*cw], src[(y0+y)*w+x0:(y0+y)*w+x0+cw])
	}
	return resizePlane(crop, ch, cw, h, w, nearest)
}

// Resize resamples the spatial dims of x [N,C,H,W] to h×w, bilinear unless
// nearest is set.
func Resize(x *tensor.RawTensor, h, w int, nearest bool) *tensor.RawTensor {
	s := x.Shape()
	if s[2] == h && s[3] == w {
		return x.Clone()
	}
	out := tensor.MustNewRaw(tensor.Shape{s[0], s[1], h, w}, x.Device())
	src, dst := x.Data(), out.Data()
	plane, newPlane := s[2]*s[3], h*w
	for p := 0; p < s[0]*s[1]; p++ {
		copy(dst[p*newPlane:(p+1)*newPlane], resizePlane(src[p*plane:(p+1)*plane], s[2], s[3], h, w, nearest))
	}
	return out
}

// gaussianBlur filters an h×w plane in place with a separable Gaussian kernel.
func gaussianBlur(plane []float32, h, w int, sigma float32) {
	if sigma <= 0 {
		return
	}
	radius := int(math32.Ceil(3 * sigma))
	kernel := make([]float32, 2*radius+1)
	var norm float32
	for i := range kernel {
		d := float32(i - radius)
		kernel[i] = math32.Exp(-d * d / (2 * sigma * sigma))
		norm += kernel[i]
	}
	for i := range kernel {
		kernel[i] /= norm
	}
	tmp := make([]float32, len(plane))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var acc float32
			for k, kv := range kernel {
				acc += kv * plane[y*w+clamp(x+k-radius, 0, w-1)]
			}
			tmp[y*w+x] = acc
		}
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var acc float32
			for k, kv := range kernel {
				acc += kv * tmp[clamp(y+k-radius, 0, h-1)*w+x]
			}
			plane[y*w+x] = acc
		}
	}
}

// rot90 rotates an n×n plane by k quarter turns counter-clockwise.
func rot90(src []float32, n, k int) []float32 {
	dst := make([]float32, len(src))
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			ny, nx := y, x
			for r := 0; r < k%4; r++ {
				ny, nx = n-1-nx, ny
			}
			dst[ny*n+nx] = src[y*n+x]
		}
	}
	return dst
}

func flip(src []float32, h, w int, vertical bool) []float32 {
	dst := make([]float32, len(src))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if vertical {
				dst[(h-1-y)*w+x] = src[y*w+x]
			} else {
				dst[y*w+w-1-x] = src[y*w+x]
			}
		}
	}
	return dst
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
