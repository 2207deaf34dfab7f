package locator

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/atomnet/internal/tensor"
)

// maps builds [n,h,w,c] probabilities from a setter.
func maps(n, h, w, c int, set func(f, y, x, ch int) float32) *tensor.RawTensor {
	raw := tensor.MustNewRaw(tensor.Shape{n, h, w, c}, tensor.CPU)
	for f := 0; f < n; f++ {
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				for ch := 0; ch < c; ch++ {
					raw.Data()[((f*h+y)*w+x)*c+ch] = set(f, y, x, ch)
				}
			}
		}
	}
	return raw
}

func TestLocate_Centroids(t *testing.T) {
	probs := maps(2, 10, 10, 1, func(f, y, x, _ int) float32 {
		switch {
		case y >= 1 && y <= 3 && x >= 1 && x <= 3:
			return 0.9
		case f == 1 && y == 7 && x == 8:
			return 0.8
		}
		return 0.1
	})
	coords, err := Locate(probs, DefaultConfig())
	require.NoError(t, err)
	require.Len(t, coords[0], 3)
	for i, want := range []Coordinate{{Frame: 0, Y: 2, X: 2}, {Frame: 1, Y: 2, X: 2}, {Frame: 1, Y: 7, X: 8}} {
		got := coords[0][i]
		assert.Equal(t, want.Frame, got.Frame)
		assert.InDelta(t, want.Y, got.Y, 1e-9)
		assert.InDelta(t, want.X, got.X, 1e-9)
		assert.False(t, got.Refined)
	}

	coords, err = Locate(probs, Config{MinArea: 2})
	require.NoError(t, err)
	assert.Len(t, coords[0], 2)
}

func TestLocate_DiagonalIsConnected(t *testing.T) {
	probs := maps(1, 4, 4, 1, func(_, y, x, _ int) float32 {
		if y == x {
			return 1
		}
		return 0
	})
	coords, err := Locate(probs, DefaultConfig())
	require.NoError(t, err)
	require.Len(t, coords[0], 1)
	assert.InDelta(t, 1.5, coords[0][0].Y, 1e-12)
}

func TestLocate_MultiClassSkipsBackground(t *testing.T) {
	probs := maps(1, 6, 6, 3, func(_, y, x, ch int) float32 {
		switch {
		case ch == 1 && y == 1 && x == 1, ch == 2 && y == 4 && x == 4:
			return 1
		case ch == 0:
			return 0.9
		}
		return 0
	})
	coords, err := Locate(probs, DefaultConfig())
	require.NoError(t, err)
	assert.NotContains(t, coords, 0)
	require.Len(t, coords[1], 1)
	require.Len(t, coords[2], 1)
	assert.InDelta(t, 4.0, coords[2][0].X, 1e-9)
}

func TestLocate_Refine(t *testing.T) {
	const cy, cx, sigma = 8.3, 7.6, 1.2
	source := tensor.MustNewRaw(tensor.Shape{1, 16, 16}, tensor.CPU)
	probs := maps(1, 16, 16, 1, func(_, y, x, _ int) float32 {
		d2 := (float64(y)-cy)*(float64(y)-cy) + (float64(x)-cx)*(float64(x)-cx)
		v := math.Exp(-d2 / (2 * sigma * sigma))
		source.Data()[y*16+x] = float32(v)
		return float32(v)
	})
	coords, err := Locate(probs, Config{RefineWindow: 5, Source: source})
	require.NoError(t, err)
	require.Len(t, coords[0], 1)
	c := coords[0][0]
	assert.True(t, c.Refined)
	assert.InDelta(t, cy, c.Y, 0.15)
	assert.InDelta(t, cx, c.X, 0.15)
	assert.Greater(t, c.Sigma, 0.5)
	assert.Less(t, c.Sigma, 2.0)
}

func TestLocate_InvalidShape(t *testing.T) {
	_, err := Locate(tensor.MustNewRaw(tensor.Shape{4, 4}, tensor.CPU), DefaultConfig())
	require.Error(t, err)
	_, err = Locate(tensor.MustNewRaw(tensor.Shape{1, 4, 4, 1}, tensor.CPU),
		Config{Source: tensor.MustNewRaw(tensor.Shape{1, 3, 3}, tensor.CPU)})
	require.Error(t, err)
}
