package cpu_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/atomnet/internal/backend/cpu"
	"github.com/born-ml/atomnet/internal/tensor"
)

func raw(t *testing.T, data []float32, shape ...int) *tensor.RawTensor {
	t.Helper()
	r, err := tensor.FromFloat32(data, shape, tensor.CPU)
	require.NoError(t, err)
	return r
}

func floatEqual(a, b float32) bool {
	return math.Abs(float64(a-b)) < 1e-5
}

func assertData(t *testing.T, want []float32, got *tensor.RawTensor) {
	t.Helper()
	require.Len(t, got.Data(), len(want))
	for i := range want {
		if !floatEqual(want[i], got.Data()[i]) {
			t.Fatalf("index %d: expected %v, got %v (all: %v)", i, want[i], got.Data()[i], got.Data())
		}
	}
}

func TestCPUBackend_AddBroadcast(t *testing.T) {
	b := cpu.New()
	a := raw(t, []float32{1, 2, 3, 4, 5, 6}, 2, 3)
	bias := raw(t, []float32{10, 20, 30}, 3)
	out := b.Add(a, bias)
	assert.Equal(t, tensor.Shape{2, 3}, out.Shape())
	assertData(t, []float32{11, 22, 33, 14, 25, 36}, out)

	col := raw(t, []float32{1, 2}, 2, 1)
	assertData(t, []float32{0, 1, 2, 2, 3, 4}, b.Sub(a, col))
}

func TestCPUBackend_MatMul(t *testing.T) {
	b := cpu.New()
	a := raw(t, []float32{1, 2, 3, 4, 5, 6}, 2, 3)
	m := raw(t, []float32{7, 8, 9, 10, 11, 12}, 3, 2)
	out := b.MatMul(a, m)
	assert.Equal(t, tensor.Shape{2, 2}, out.Shape())
	assertData(t, []float32{58, 64, 139, 154}, out)
}

func TestCPUBackend_Transpose(t *testing.T) {
	b := cpu.New()
	a := raw(t, []float32{1, 2, 3, 4, 5, 6}, 2, 3)
	out := b.Transpose(a)
	assert.Equal(t, tensor.Shape{3, 2}, out.Shape())
	assertData(t, []float32{1, 4, 2, 5, 3, 6}, out)

	nchw := raw(t, []float32{1, 2, 3, 4, 5, 6, 7, 8}, 1, 2, 2, 2)
	nhwc := b.Transpose(nchw, 0, 2, 3, 1)
	assertData(t, []float32{1, 5, 2, 6, 3, 7, 4, 8}, nhwc)
}

func TestCPUBackend_CatNarrow(t *testing.T) {
	b := cpu.New()
	x := raw(t, []float32{1, 2, 3, 4}, 1, 2, 2)
	y := raw(t, []float32{5, 6}, 1, 1, 2)
	cat := b.Cat([]*tensor.RawTensor{x, y}, 1)
	assert.Equal(t, tensor.Shape{1, 3, 2}, cat.Shape())
	assertData(t, []float32{1, 2, 3, 4, 5, 6}, cat)
	assertData(t, []float32{3, 4, 5, 6}, b.Narrow(cat, 1, 1, 2))
}

func TestCPUBackend_SoftmaxSumsToOne(t *testing.T) {
	b := cpu.New()
	x := raw(t, []float32{1, 2, 3, -1, 0, 5, 2, 2}, 1, 2, 2, 2)
	s := b.Softmax(x, 1)
	d := s.Data()
	for p := 0; p < 4; p++ {
		assert.InDelta(t, 1.0, float64(d[p]+d[p+4]), 1e-6)
	}
}

func TestCPUBackend_SumDim(t *testing.T) {
	b := cpu.New()
	x := raw(t, []float32{1, 2, 3, 4, 5, 6}, 2, 3)
	assertData(t, []float32{5, 7, 9}, b.SumDim(x, 0))
	assertData(t, []float32{6, 15}, b.SumDim(x, 1))
	assertData(t, []float32{21}, b.Sum(x))
}

func TestCPUBackend_Conv2D(t *testing.T) {
	b := cpu.New()
	input := raw(t, []float32{
		1, 2, 3,
		4, 5, 6,
		7, 8, 9,
	}, 1, 1, 3, 3)
	kernel := raw(t, []float32{1, 0, 0, 1}, 1, 1, 2, 2)
	out := b.Conv2D(input, kernel, tensor.DefaultConvParams())
	assert.Equal(t, tensor.Shape{1, 1, 2, 2}, out.Shape())
	assertData(t, []float32{6, 8, 12, 14}, out)

	padded := b.Conv2D(input, raw(t, []float32{1}, 1, 1, 1, 1), tensor.ConvParams{Stride: 1, Padding: 1, Dilation: 1})
	assert.Equal(t, tensor.Shape{1, 1, 5, 5}, padded.Shape())

	dilated := b.Conv2D(input, kernel, tensor.ConvParams{Stride: 1, Dilation: 2})
	assert.Equal(t, tensor.Shape{1, 1, 1, 1}, dilated.Shape())
	assertData(t, []float32{10}, dilated)
}

func TestCPUBackend_MaxPoolUpsample(t *testing.T) {
	b := cpu.New()
	x := raw(t, []float32{
		1, 2, 5, 0,
		3, 4, 1, 1,
		0, 0, 2, 2,
		9, 0, 2, 3,
	}, 1, 1, 4, 4)
	pooled := b.MaxPool2D(x, 2, 2)
	assertData(t, []float32{4, 5, 9, 3}, pooled)

	grad := b.MaxPool2DBackward(x, raw(t, []float32{1, 1, 1, 1}, 1, 1, 2, 2), 2, 2)
	assertData(t, []float32{
		0, 0, 1, 0,
		0, 1, 0, 0,
		0, 0, 0, 0,
		1, 0, 0, 1,
	}, grad)

	up := b.Upsample2D(pooled, 2)
	assert.Equal(t, tensor.Shape{1, 1, 4, 4}, up.Shape())
	assert.Equal(t, float32(9), up.Data()[12])
	assertData(t, []float32{16, 20, 36, 12}, b.Upsample2DBackward(up, 2))
}

func TestCPUBackend_CrossEntropy(t *testing.T) {
	b := cpu.New()
	// Two pixels, two classes: uniform logits give ln 2 each.
	logits := raw(t, []float32{0, 0, 0, 0}, 1, 2, 2)
	targets := raw(t, []float32{0, 1}, 1, 2)
	assert.InDelta(t, math.Ln2, float64(b.CrossEntropy(logits, targets).Item()), 1e-6)

	bce := b.BCEWithLogits(raw(t, []float32{0, 0}, 2), raw(t, []float32{1, 0}, 2))
	assert.InDelta(t, math.Ln2, float64(bce.Item()), 1e-6)
}

func TestCPUBackend_FocalLoss(t *testing.T) {
	b := cpu.New()
	logits := raw(t, []float32{0, 0}, 1, 1, 2)
	targets := raw(t, []float32{1, 0}, 1, 1, 2)
	// pt = 0.5 everywhere: 0.5 * 0.5^2 * ln 2.
	got := b.FocalLoss(logits, targets, 0.5, 2)
	assert.InDelta(t, 0.125*math.Ln2, float64(got.Item()), 1e-6)

	confident := b.FocalLoss(raw(t, []float32{8, -8}, 1, 1, 2), targets, 0.5, 2)
	assert.Less(t, confident.Item(), got.Item())
}
