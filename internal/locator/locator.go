// Package locator extracts object coordinates from per-class probability
// maps: threshold, 8-connected components, weighted centroids and optional
// Gaussian moment refinement.
package locator

import (
	"github.com/chewxy/math32"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"

	"github.com/born-ml/atomnet/internal/tensor"
)

// Coordinate is one detected object.
type Coordinate struct {
	Frame int
	Y, X  float64
	// Sigma is the width of the fitted Gaussian; 0 unless Refined.
	Sigma   float64
	Refined bool
}

// Config configures Locate.
type Config struct {
	// Threshold binarizes the probability maps (default 0.5).
	Threshold float32
	// MinArea drops components with fewer pixels.
	MinArea int
	// RefineWindow is the half-side d of the (2d+1)² refinement window;
	// 0 disables refinement.
	RefineWindow int
	// Source, if set, holds the images [N,H,W] refinement is fitted to,
	// instead of the probability maps.
	Source *tensor.RawTensor
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{Threshold: 0.5}
}

// Locate finds objects in probs [N,H,W,C]. For a single channel the result
// is keyed by class 0. For C > 1 channel 0 is background and is skipped;
// classes are keyed by channel index.
func Locate(probs *tensor.RawTensor, cfg Config) (map[int][]Coordinate, error) {
	s := probs.Shape()
	if s.Rank() != 4 {
		return nil, errors.Errorf("locator: probabilities must be [N,H,W,C], got %v", s)
	}
	if cfg.Threshold == 0 {
		cfg.Threshold = DefaultConfig().Threshold
	}
	n, h, w, c := s[0], s[1], s[2], s[3]
	if src := cfg.Source; src != nil {
		if ss := src.Shape(); ss.NumElements() != n*h*w {
			return nil, errors.Errorf("locator: source images %v do not match probabilities %v", ss, s)
		}
	}
	first := 0
	if c > 1 {
		first = 1
	}
	out := make(map[int][]Coordinate, c-first)
	plane := make([]float32, h*w)
	for ch := first; ch < c; ch++ {
		coords := []Coordinate{}
		for f := 0; f < n; f++ {
			for i := range plane {
				plane[i] = probs.Data()[(f*h*w+i)*c+ch]
			}
			intensity := plane
			if cfg.Source != nil {
				intensity = cfg.Source.Data()[f*h*w : (f+1)*h*w]
			}
			for _, comp := range components(plane, h, w, cfg.Threshold) {
				if len(comp) < cfg.MinArea {
					continue
				}
				coord := centroid(plane, w, comp)
				coord.Frame = f
				if cfg.RefineWindow > 0 {
					coord = refine(intensity, h, w, coord, cfg.RefineWindow)
				}
				coords = append(coords, coord)
			}
		}
		out[ch] = coords
	}
	return out, nil
}

// components returns the pixel indices of every 8-connected component of
// plane > threshold, in row-major order of their first pixel.
func components(plane []float32, h, w int, threshold float32) [][]int {
	visited := make([]bool, len(plane))
	var comps [][]int
	var stack []int
	for start, v := range plane {
		if visited[start] || v <= threshold {
			continue
		}
		visited[start] = true
		stack = append(stack[:0], start)
		var comp []int
		for len(stack) > 0 {
			p := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			comp = append(comp, p)
			py, px := p/w, p%w
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					y, x := py+dy, px+dx
					if y < 0 || y >= h || x < 0 || x >= w {
						continue
					}
					q := y*w + x
					if !visited[q] && plane[q] > threshold {
						visited[q] = true
						stack = append(stack, q)
					}
				}
			}
		}
		comps = append(comps, comp)
	}
	return comps
}

// centroid is the probability-weighted center of mass of a component.
func centroid(plane []float32, w int, comp []int) Coordinate {
	ys := make([]float64, len(comp))
	xs := make([]float64, len(comp))
	weights := make([]float64, len(comp))
	for i, p := range comp {
		ys[i], xs[i] = float64(p/w), float64(p%w)
		weights[i] = float64(plane[p])
	}
	return Coordinate{Y: stat.Mean(ys, weights), X: stat.Mean(xs, weights)}
}

// refine fits a Gaussian by moments to the background-subtracted intensity in
// the (2d+1)² window around c. Windows without signal leave c unrefined.
func refine(intensity []float32, h, w int, c Coordinate, d int) Coordinate {
	cy, cx := int(math32.Round(float32(c.Y))), int(math32.Round(float32(c.X)))
	var ys, xs, weights []float64
	lo := math32.Inf(1)
	for y := max(0, cy-d); y <= min(h-1, cy+d); y++ {
		for x := max(0, cx-d); x <= min(w-1, cx+d); x++ {
			lo = math32.Min(lo, intensity[y*w+x])
		}
	}
	var total float64
	for y := max(0, cy-d); y <= min(h-1, cy+d); y++ {
		for x := max(0, cx-d); x <= min(w-1, cx+d); x++ {
			v := float64(intensity[y*w+x] - lo)
			ys = append(ys, float64(y))
			xs = append(xs, float64(x))
			weights = append(weights, v)
			total += v
		}
	}
	if total <= 0 {
		return c
	}
	my, vy := stat.PopMeanVariance(ys, weights)
	mx, vx := stat.PopMeanVariance(xs, weights)
	c.Y, c.X = my, mx
	c.Sigma = float64(math32.Sqrt(float32((vy + vx) / 2)))
	c.Refined = true
	return c
}
