package data_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/atomnet/internal/data"
	"github.com/born-ml/atomnet/internal/tensor"
)

// labels returns n [H,W] label maps whose values cycle through k classes.
func labels(n, h, w, k int) *tensor.RawTensor {
	raw := tensor.MustNewRaw(tensor.Shape{n, h, w}, tensor.CPU)
	for i := range raw.Data() {
		raw.Data()[i] = float32(i % k)
	}
	return raw
}

func images(n, h, w int) *tensor.RawTensor {
	raw := tensor.MustNewRaw(tensor.Shape{n, 1, h, w}, tensor.CPU)
	for i := range raw.Data() {
		raw.Data()[i] = float32(i)
	}
	return raw
}

func TestNormalize_BulkBatchCount(t *testing.T) {
	for _, tc := range []struct{ n, bs int }{{8, 4}, {10, 4}, {7, 7}, {33, 5}} {
		t.Run(fmt.Sprintf("n=%d,bs=%d", tc.n, tc.bs), func(t *testing.T) {
			norm, err := data.Normalize(
				data.Bulk{Array: images(tc.n, 4, 4)}, data.Bulk{Array: labels(tc.n, 4, 4, 2)},
				data.Bulk{Array: images(tc.n, 4, 4)}, data.Bulk{Array: labels(tc.n, 4, 4, 2)},
				tc.bs)
			require.NoError(t, err)
			assert.Equal(t, tc.n/tc.bs, norm.Train.Len())
			assert.Equal(t, tc.n/tc.bs, norm.Test.Len())
			for _, b := range norm.Train.Batches {
				assert.LessOrEqual(t, b.Images.Shape()[0], tc.bs)
				assert.Equal(t, b.Images.Shape()[0], b.Labels.Shape()[0])
			}
		})
	}
}

func TestNormalize_BulkKeepsOrder(t *testing.T) {
	x := images(5, 2, 2)
	norm, err := data.Normalize(data.Bulk{Array: x}, data.Bulk{Array: labels(5, 2, 2, 2)},
		data.Bulk{Array: x}, data.Bulk{Array: labels(5, 2, 2, 2)}, 2)
	require.NoError(t, err)
	require.Equal(t, 2, norm.Train.Len())
	assert.Equal(t, x.Data()[8:16], norm.Train.Batches[1].Images.Data())
}

func TestNormalize_InvalidBatchSize(t *testing.T) {
	for _, bs := range []int{0, -1, 9} {
		_, err := data.Normalize(
			data.Bulk{Array: images(8, 4, 4)}, data.Bulk{Array: labels(8, 4, 4, 2)},
			data.Bulk{Array: images(8, 4, 4)}, data.Bulk{Array: labels(8, 4, 4, 2)},
			bs)
		require.ErrorIs(t, err, data.ErrInvalidBatchSize)
	}
}

func TestNormalize_Cardinality(t *testing.T) {
	for _, tc := range []struct {
		k, want int
		err     error
	}{
		{k: 1, err: data.ErrMissingBackgroundClass},
		{k: 2, want: 1},
		{k: 3, want: 3},
		{k: 5, want: 5},
	} {
		t.Run(fmt.Sprintf("k=%d", tc.k), func(t *testing.T) {
			norm, err := data.Normalize(
				data.Sequence{images(2, 4, 4), images(2, 4, 4)},
				data.Sequence{labels(2, 4, 4, tc.k), labels(2, 4, 4, tc.k)},
				data.Sequence{images(2, 4, 4)},
				data.Sequence{labels(2, 4, 4, tc.k)},
				0)
			if tc.err != nil {
				require.ErrorIs(t, err, tc.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, norm.NumClasses)
		})
	}
}

func TestNormalize_InconsistentClasses(t *testing.T) {
	_, err := data.Normalize(
		data.Sequence{images(2, 4, 4)}, data.Sequence{labels(2, 4, 4, 2)},
		data.Sequence{images(2, 4, 4)}, data.Sequence{labels(2, 4, 4, 3)},
		0)
	require.ErrorIs(t, err, data.ErrInconsistentClasses)
}

func TestNormalize_FormatMismatch(t *testing.T) {
	_, err := data.Normalize(
		data.Sequence{images(2, 4, 4)}, data.Bulk{Array: labels(2, 4, 4, 2)},
		data.Sequence{images(2, 4, 4)}, data.Sequence{labels(2, 4, 4, 2)},
		2)
	require.ErrorIs(t, err, data.ErrFormatMismatch)

	_, err = data.Normalize(
		data.Sequence{images(2, 4, 4), images(2, 4, 4)}, data.Sequence{labels(2, 4, 4, 2)},
		data.Sequence{images(2, 4, 4)}, data.Sequence{labels(2, 4, 4, 2)},
		2)
	require.ErrorIs(t, err, data.ErrFormatMismatch)
}

func TestNormalize_MappingSortedAndRank3Images(t *testing.T) {
	a := tensor.MustNewRaw(tensor.Shape{1, 2, 2}, tensor.CPU)
	b := tensor.MustNewRaw(tensor.Shape{1, 2, 2}, tensor.CPU)
	b.Fill(7)
	norm, err := data.Normalize(
		data.Mapping{"b": b, "a": a}, data.Mapping{"b": labels(1, 2, 2, 2), "a": labels(1, 2, 2, 2)},
		data.Mapping{"x": a}, data.Mapping{"x": labels(1, 2, 2, 2)},
		0)
	require.NoError(t, err)
	require.Equal(t, 2, norm.Train.Len())
	assert.Equal(t, tensor.Shape{1, 1, 2, 2}, norm.Train.Batches[0].Images.Shape())
	assert.Equal(t, float32(0), norm.Train.Batches[0].Images.Data()[0])
	assert.Equal(t, float32(7), norm.Train.Batches[1].Images.Data()[0])
}

func TestLoader(t *testing.T) {
	x := tensor.MustNewRaw(tensor.Shape{7, 2}, tensor.CPU)
	for i := range x.Data() {
		x.Data()[i] = float32(i)
	}
	l, err := data.NewLoader(x, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, l.Len())
	batches := l.Batches()
	require.Len(t, batches, 3)
	assert.Equal(t, tensor.Shape{1, 2}, batches[2].Shape())
	assert.Equal(t, []float32{12, 13}, batches[2].Data())

	_, err = data.NewLoader(x, 0)
	require.ErrorIs(t, err, data.ErrInvalidBatchSize)
}

func TestSplit(t *testing.T) {
	n := 20
	images := tensor.MustNewRaw(tensor.Shape{n, 1, 2, 2}, tensor.CPU)
	labels := tensor.MustNewRaw(tensor.Shape{n, 2, 2}, tensor.CPU)
	for i := 0; i < n; i++ {
		for j := 0; j < 4; j++ {
			images.Data()[i*4+j] = float32(i)
			labels.Data()[i*4+j] = float32(i)
		}
	}
	trainX, trainY, testX, testY, err := data.Split(images, labels, data.DefaultTestFraction, 3)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{17, 1, 2, 2}, trainX.Shape())
	assert.Equal(t, tensor.Shape{17, 2, 2}, trainY.Shape())
	assert.Equal(t, tensor.Shape{3, 1, 2, 2}, testX.Shape())
	assert.Equal(t, tensor.Shape{3, 2, 2}, testY.Shape())

	// Images and labels stay paired and every sample lands in one split.
	seen := map[float32]bool{}
	for _, pair := range [][2]*tensor.RawTensor{{trainX, trainY}, {testX, testY}} {
		for i := 0; i < pair[0].Shape()[0]; i++ {
			v := pair[0].Data()[i*4]
			assert.Equal(t, v, pair[1].Data()[i*4])
			assert.False(t, seen[v])
			seen[v] = true
		}
	}
	assert.Len(t, seen, n)

	again, _, _, _, err := data.Split(images, labels, data.DefaultTestFraction, 3)
	require.NoError(t, err)
	assert.Equal(t, trainX.Data(), again.Data())

	_, _, _, _, err = data.Split(images, labels, 1.5, 3)
	assert.Error(t, err)
	_, _, _, _, err = data.Split(images, tensor.MustNewRaw(tensor.Shape{3, 2, 2}, tensor.CPU), 0.2, 3)
	assert.Error(t, err)
}
