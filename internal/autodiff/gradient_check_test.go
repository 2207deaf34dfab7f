package autodiff_test

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/born-ml/atomnet/internal/autodiff"
	"github.com/born-ml/atomnet/internal/backend/cpu"
	"github.com/born-ml/atomnet/internal/tensor"
)

// checkGradients compares tape gradients of sum(f(inputs) * w) against
// central finite differences for every element of the inputs listed in wrt.
func checkGradients(t *testing.T, inputs []*tensor.RawTensor, wrt []int, f func(b tensor.Backend, xs []*tensor.Tensor) *tensor.Tensor) {
	t.Helper()
	rng := rand.New(rand.NewSource(7))
	inner := cpu.New()

	var weights *tensor.RawTensor
	loss := func(b tensor.Backend) *tensor.Tensor {
		xs := make([]*tensor.Tensor, len(inputs))
		for i, in := range inputs {
			xs[i] = tensor.New(in, b)
		}
		out := f(b, xs)
		if weights == nil {
			weights = tensor.Uniform(out.Shape(), 0.5, 1.5, rng, inner).Raw()
		}
		return out.Mul(tensor.New(weights, b)).Sum()
	}

	ad := autodiff.New(inner)
	ad.Tape().StartRecording()
	grads := autodiff.Backward(loss(ad), ad)

	const eps = 1e-2
	for _, idx := range wrt {
		in := inputs[idx]
		grad := grads[in]
		require.NotNil(t, grad, "no gradient for input %d", idx)
		data := in.Data()
		for i := range data {
			orig := data[i]
			data[i] = orig + eps
			plus := float64(loss(inner).Item())
			data[i] = orig - eps
			minus := float64(loss(inner).Item())
			data[i] = orig
			numeric := (plus - minus) / (2 * eps)
			analytic := float64(grad.Data()[i])
			tol := 2e-2 * math.Max(1, math.Abs(numeric))
			if math.Abs(numeric-analytic) > tol {
				t.Fatalf("input %d element %d: analytic %.5f vs numeric %.5f", idx, i, analytic, numeric)
			}
		}
	}
}

func randRaw(rng *rand.Rand, shape ...int) *tensor.RawTensor {
	return tensor.Randn(shape, rng, cpu.New()).Raw()
}

func TestGradients_Elementwise(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	a, b := randRaw(rng, 2, 3), randRaw(rng, 3)
	checkGradients(t, []*tensor.RawTensor{a, b}, []int{0, 1}, func(_ tensor.Backend, xs []*tensor.Tensor) *tensor.Tensor {
		return xs[0].Mul(xs[1]).Add(xs[1]).Sub(xs[0].MulScalar(0.5))
	})

	den := tensor.Uniform(tensor.Shape{2, 1}, 1, 2, rng, cpu.New()).Raw()
	checkGradients(t, []*tensor.RawTensor{a, den}, []int{0, 1}, func(_ tensor.Backend, xs []*tensor.Tensor) *tensor.Tensor {
		return xs[0].Div(xs[1])
	})
}

func TestGradients_Activations(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	x := randRaw(rng, 2, 4)
	checkGradients(t, []*tensor.RawTensor{x}, []int{0}, func(_ tensor.Backend, xs []*tensor.Tensor) *tensor.Tensor {
		return tensor.Cat([]*tensor.Tensor{xs[0].Sigmoid(), xs[0].Tanh(), xs[0].LeakyReLU(0.1), xs[0].Softmax(1)}, 0)
	})

	pos := tensor.Uniform(tensor.Shape{3}, 0.5, 2, rng, cpu.New()).Raw()
	checkGradients(t, []*tensor.RawTensor{pos}, []int{0}, func(_ tensor.Backend, xs []*tensor.Tensor) *tensor.Tensor {
		return xs[0].Log().Add(xs[0].Exp())
	})
}

func TestGradients_MatMulTranspose(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	a, b := randRaw(rng, 3, 4), randRaw(rng, 2, 4)
	checkGradients(t, []*tensor.RawTensor{a, b}, []int{0, 1}, func(_ tensor.Backend, xs []*tensor.Tensor) *tensor.Tensor {
		return xs[0].MatMul(xs[1].Transpose()).Reshape(2, -1).SumDim(1)
	})
}

func TestGradients_Conv2D(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	input, kernel := randRaw(rng, 2, 2, 6, 6), randRaw(rng, 3, 2, 3, 3)
	for _, p := range []tensor.ConvParams{
		{Stride: 1, Padding: 1, Dilation: 1},
		{Stride: 2, Padding: 0, Dilation: 1},
		{Stride: 1, Padding: 2, Dilation: 2},
	} {
		checkGradients(t, []*tensor.RawTensor{input, kernel}, []int{0, 1}, func(_ tensor.Backend, xs []*tensor.Tensor) *tensor.Tensor {
			return xs[0].Conv2D(xs[1], p)
		})
	}
}

func TestGradients_PoolUpsampleCat(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	x := randRaw(rng, 1, 2, 4, 4)
	checkGradients(t, []*tensor.RawTensor{x}, []int{0}, func(_ tensor.Backend, xs []*tensor.Tensor) *tensor.Tensor {
		down := xs[0].MaxPool2D(2, 2).Upsample2D(2)
		return tensor.Cat([]*tensor.Tensor{down, xs[0]}, 1).Narrow(1, 1, 2)
	})
}

func TestGradients_Losses(t *testing.T) {
	rng := rand.New(rand.NewSource(6))
	logits := randRaw(rng, 2, 3, 2, 2)
	classes := make([]float32, 8)
	for i := range classes {
		classes[i] = float32(rng.Intn(3))
	}
	targets, err := tensor.FromFloat32(classes, tensor.Shape{2, 2, 2}, tensor.CPU)
	require.NoError(t, err)

	checkGradients(t, []*tensor.RawTensor{logits, targets}, []int{0}, func(b tensor.Backend, xs []*tensor.Tensor) *tensor.Tensor {
		return tensor.New(b.CrossEntropy(xs[0].Raw(), xs[1].Raw()), b)
	})
	checkGradients(t, []*tensor.RawTensor{logits, targets}, []int{0}, func(b tensor.Backend, xs []*tensor.Tensor) *tensor.Tensor {
		return tensor.New(b.FocalLoss(xs[0].Raw(), xs[1].Raw(), 0.5, 2), b)
	})

	binLogits := randRaw(rng, 2, 1, 2, 2)
	mask := make([]float32, 8)
	for i := range mask {
		mask[i] = float32(rng.Intn(2))
	}
	binTargets, err := tensor.FromFloat32(mask, tensor.Shape{2, 1, 2, 2}, tensor.CPU)
	require.NoError(t, err)
	checkGradients(t, []*tensor.RawTensor{binLogits, binTargets}, []int{0}, func(b tensor.Backend, xs []*tensor.Tensor) *tensor.Tensor {
		return tensor.New(b.BCEWithLogits(xs[0].Raw(), xs[1].Raw()), b)
	})
	checkGradients(t, []*tensor.RawTensor{binLogits, binTargets}, []int{0}, func(b tensor.Backend, xs []*tensor.Tensor) *tensor.Tensor {
		return tensor.New(b.FocalLoss(xs[0].Raw(), xs[1].Raw(), 0.5, 2), b)
	})
}
