// Package augment implements on-the-fly data augmentation for segmentation
// training batches.
//
// Geometric transforms (zoom, rotation, resize) move images and labels
// together, resampling labels with nearest-neighbour so class values stay
// intact. Intensity transforms (noise, contrast, blur, background, jitter)
// only touch images.
package augment

import (
	"math"
	"math/rand"

	"github.com/chewxy/math32"
	"github.com/pkg/errors"

	"github.com/born-ml/atomnet/internal/tensor"
)

// Pipeline applies a fixed set of transforms. A nil *Pipeline means no
// augmentation.
type Pipeline struct {
	cfg       Config
	geometric []transform
	intensity []transform
}

// transform updates sample i of images (and labels, for geometric
// transforms) in place.
type transform struct {
	name  string
	apply func(b *planes, rng *rand.Rand)
}

// planes is one sample: C image planes and L label planes of h×w.
type planes struct {
	images, labels [][]float32
	h, w           int
}

// New creates a pipeline for cfg, or returns nil if cfg configures nothing.
func New(cfg Config) *Pipeline {
	if cfg.Empty() {
		return nil
	}
	p := &Pipeline{cfg: cfg}
	if cfg.Zoom {
		p.geometric = append(p.geometric, transform{"zoom", zoom})
	}
	if cfg.Rotation {
		p.geometric = append(p.geometric, transform{"rotation", rotate})
	}
	if r := cfg.Resize; r != nil {
		p.geometric = append(p.geometric, transform{"resize", func(b *planes, rng *rand.Rand) { resize(b, r, rng) }})
	}
	if cfg.Background {
		p.intensity = append(p.intensity, transform{"background", background})
	}
	if r := cfg.Contrast; r != nil {
		p.intensity = append(p.intensity, transform{"contrast", func(b *planes, rng *rand.Rand) {
			gamma := float32(uniform(r, rng))
			eachImage(b, func(v float32) float32 { return math32.Pow(math32.Max(v, 0), gamma) })
		}})
	}
	if r := cfg.Blur; r != nil {
		p.intensity = append(p.intensity, transform{"blur", func(b *planes, rng *rand.Rand) {
			sigma := float32(uniform(r, rng))
			for _, img := range b.images {
				gaussianBlur(img, b.h, b.w, sigma)
			}
		}})
	}
	if r := cfg.GaussNoise; r != nil {
		p.intensity = append(p.intensity, transform{"gauss_noise", func(b *planes, rng *rand.Rand) {
			std := math32.Sqrt(float32(uniform(r, rng)) * 1e-4)
			eachImage(b, func(v float32) float32 { return v + std*float32(rng.NormFloat64()) })
		}})
	}
	if r := cfg.PoissonNoise; r != nil {
		p.intensity = append(p.intensity, transform{"poisson_noise", func(b *planes, rng *rand.Rand) {
			lambda := math32.Max(float32(uniform(r, rng)), 1)
			eachImage(b, func(v float32) float32 { return float32(poisson(float64(math32.Max(v, 0)*lambda), rng)) / lambda })
		}})
	}
	if r := cfg.SaltAndPepper; r != nil {
		p.intensity = append(p.intensity, transform{"salt_and_pepper", func(b *planes, rng *rand.Rand) {
			amount := uniform(r, rng) / 100
			eachImage(b, func(v float32) float32 {
				if rng.Float64() >= amount {
					return v
				}
				if rng.Intn(2) == 0 {
					return 0
				}
				return 1
			})
		}})
	}
	if r := cfg.Jitter; r != nil {
		p.intensity = append(p.intensity, transform{"jitter", func(b *planes, rng *rand.Rand) { jitter(b, r, rng) }})
	}
	return p
}

// Names returns the enabled transforms in application order.
func (p *Pipeline) Names() []string {
	if p == nil {
		return nil
	}
	var names []string
	if p.cfg.Custom != nil {
		names = append(names, "custom")
	}
	for _, t := range append(append([]transform{}, p.geometric...), p.intensity...) {
		names = append(names, t.name)
	}
	return names
}

// Apply augments a batch of images [N,C,H,W] and labels ([N,C,H,W] masks or
// [N,H,W] class indices) and returns new tensors; the inputs are not
// modified. The result only depends on the inputs and seed.
//
// When an intensity transform is enabled each output image is rescaled to
// [0, 1].
func (p *Pipeline) Apply(images, labels *tensor.RawTensor, seed int64) (*tensor.RawTensor, *tensor.RawTensor, error) {
	if p == nil {
		return images, labels, nil
	}
	is := images.Shape()
	if is.Rank() != 4 {
		return nil, nil, errors.Errorf("augment: images must be [N,C,H,W], got %v", is)
	}
	ls := labels.Shape()
	squeeze := false
	switch ls.Rank() {
	case 3:
		squeeze = true
		labels = labels.Clone().View(tensor.Shape{ls[0], 1, ls[1], ls[2]})
	case 4:
		labels = labels.Clone()
	default:
		return nil, nil, errors.Errorf("augment: labels must be [N,H,W] or [N,C,H,W], got %v", ls)
	}
	if labels.Shape()[0] != is[0] || labels.Shape()[2] != is[2] || labels.Shape()[3] != is[3] {
		return nil, nil, errors.Errorf("augment: images %v and labels %v do not match", is, ls)
	}
	images = images.Clone()
	rng := rand.New(rand.NewSource(seed))

	if p.cfg.Custom != nil {
		ci, cl := p.cfg.Custom(images, labels, rng)
		if !ci.Shape().Equal(images.Shape()) || !cl.Shape().Equal(labels.Shape()) {
			return nil, nil, errors.Errorf("augment: custom transform changed shapes to %v and %v", ci.Shape(), cl.Shape())
		}
		images, labels = ci.Clone(), cl.Clone()
	}

	for i := 0; i < is[0]; i++ {
		b := slicePlanes(images, labels, i)
		for _, t := range p.geometric {
			t.apply(b, rng)
		}
		if len(p.intensity) == 0 {
			continue
		}
		for _, img := range b.images {
			rescale(img)
		}
		for _, t := range p.intensity {
			t.apply(b, rng)
		}
		for _, img := range b.images {
			rescale(img)
		}
	}
	if squeeze {
		labels = labels.View(ls)
	}
	return images, labels, nil
}

func slicePlanes(images, labels *tensor.RawTensor, i int) *planes {
	is, ls := images.Shape(), labels.Shape()
	h, w := is[2], is[3]
	plane := h * w
	b := &planes{h: h, w: w}
	for c := 0; c < is[1]; c++ {
		off := (i*is[1] + c) * plane
		b.images = append(b.images, images.Data()[off:off+plane])
	}
	for c := 0; c < ls[1]; c++ {
		off := (i*ls[1] + c) * plane
		b.labels = append(b.labels, labels.Data()[off:off+plane])
	}
	return b
}

// geometric replaces every image plane with fimg(plane) and every label plane
// with flbl(plane).
func (b *planes) geometric(fimg, flbl func([]float32) []float32) {
	for _, img := range b.images {
		copy(img, fimg(img))
	}
	for _, lbl := range b.labels {
		copy(lbl, flbl(lbl))
	}
}

func eachImage(b *planes, f func(float32) float32) {
	for _, img := range b.images {
		for j, v := range img {
			img[j] = f(v)
		}
	}
}

func zoom(b *planes, rng *rand.Rand) {
	z := 1 + 0.5*rng.Float64()
	ch := max(1, int(float64(b.h)/z))
	cw := max(1, int(float64(b.w)/z))
	y0 := rng.Intn(b.h - ch + 1)
	x0 := rng.Intn(b.w - cw + 1)
	b.geometric(
		func(p []float32) []float32 { return cropResize(p, b.h, b.w, y0, x0, ch, cw, false) },
		func(p []float32) []float32 { return cropResize(p, b.h, b.w, y0, x0, ch, cw, true) },
	)
}

func rotate(b *planes, rng *rand.Rand) {
	op := func(p []float32) []float32 { return p }
	switch rng.Intn(3) {
	case 1:
		op = func(p []float32) []float32 { return flip(p, b.h, b.w, false) }
	case 2:
		op = func(p []float32) []float32 { return flip(p, b.h, b.w, true) }
	}
	k := 0
	if b.h == b.w {
		k = rng.Intn(4)
	}
	f := func(p []float32) []float32 {
		out := op(p)
		if k > 0 {
			out = rot90(out, b.h, k)
		}
		return out
	}
	b.geometric(f, f)
}

func resize(b *planes, r []float64, rng *rand.Rand) {
	f := uniform(r, rng)
	nh := max(1, int(math32.Round(float32(float64(b.h)*f))))
	nw := max(1, int(math32.Round(float32(float64(b.w)*f))))
	through := func(nearest bool) func([]float32) []float32 {
		return func(p []float32) []float32 {
			small := resizePlane(p, b.h, b.w, nh, nw, nearest)
			return resizePlane(small, nh, nw, b.h, b.w, nearest)
		}
	}
	b.geometric(through(false), through(true))
}

// background adds a low-frequency field: white noise blurred at a quarter of
// the shorter side, scaled to a random fraction of the image range.
func background(b *planes, rng *rand.Rand) {
	field := make([]float32, b.h*b.w)
	for i := range field {
		field[i] = float32(rng.NormFloat64())
	}
	gaussianBlur(field, b.h, b.w, float32(min(b.h, b.w))/4)
	rescale(field)
	scale := float32(0.1 + 0.4*rng.Float64())
	for _, img := range b.images {
		for j := range img {
			img[j] += scale * field[j]
		}
	}
}

func jitter(b *planes, r []float64, rng *rand.Rand) {
	sigma := uniform(r, rng)
	row := make([]float32, b.w)
	for y := 0; y < b.h; y++ {
		shift := int(math32.Round(float32(rng.NormFloat64() * sigma)))
		if shift == 0 {
			continue
		}
		for _, img := range b.images {
			line := img[y*b.w : (y+1)*b.w]
			for x := range row {
				row[x] = line[clamp(x-shift, 0, b.w-1)]
			}
			copy(line, row)
		}
	}
}

// rescale maps a plane linearly to [0, 1]; constant planes become 0.
func rescale(p []float32) {
	lo, hi := math32.Inf(1), math32.Inf(-1)
	for _, v := range p {
		lo = math32.Min(lo, v)
		hi = math32.Max(hi, v)
	}
	span := hi - lo
	for j, v := range p {
		if span == 0 {
			p[j] = 0
			continue
		}
		p[j] = (v - lo) / span
	}
}

func uniform(r []float64, rng *rand.Rand) float64 {
	return r[0] + (r[1]-r[0])*rng.Float64()
}

// poisson draws from Poisson(lambda): Knuth's method for small lambda and a
// normal approximation above 30.
func poisson(lambda float64, rng *rand.Rand) float64 {
	if lambda <= 0 {
		return 0
	}
	if lambda > 30 {
		return math.Max(0, math.Round(lambda+math.Sqrt(lambda)*rng.NormFloat64()))
	}
	l := math.Exp(-lambda)
	k, p := 0.0, 1.0
	for {
		p *= rng.Float64()
		if p <= l {
			return k
		}
		k++
	}
}
