package nn_test

import (
	"math"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/atomnet/internal/autodiff"
	"github.com/born-ml/atomnet/internal/backend/cpu"
	"github.com/born-ml/atomnet/internal/nn"
	"github.com/born-ml/atomnet/internal/tensor"
)

func floatEqual(a, b float32) bool {
	return math.Abs(float64(a-b)) < 1e-5
}

func TestLinear_Forward(t *testing.T) {
	backend := cpu.New()
	l := nn.NewLinear(3, 2, rand.New(rand.NewSource(0)))
	x := tensor.Ones(tensor.Shape{4, 3}, backend)
	out := l.Forward(x, nn.Eval)
	assert.Equal(t, tensor.Shape{4, 2}, out.Shape())

	// Zero bias: output row equals the row sums of W.
	w := l.Parameters()[0].Raw().Data()
	if !floatEqual(out.Data()[0], w[0]+w[1]+w[2]) {
		t.Errorf("Expected %v, got %v", w[0]+w[1]+w[2], out.Data()[0])
	}
}

func TestConv2D_SamePadding(t *testing.T) {
	backend := cpu.New()
	c := nn.NewConv2D(1, 4, 3, nn.SamePadding(3, 2), true, rand.New(rand.NewSource(0)))
	out := c.Forward(tensor.Ones(tensor.Shape{2, 1, 8, 8}, backend), nn.Eval)
	assert.Equal(t, tensor.Shape{2, 4, 8, 8}, out.Shape())
}

func TestSequential_ParameterNames(t *testing.T) {
	rng := rand.New(rand.NewSource(0))
	model := nn.NewSequential(nn.NewLinear(2, 4, rng), nn.NewReLU(), nn.NewLinear(4, 1, rng))
	names := make([]string, 0)
	for _, p := range model.Parameters() {
		names = append(names, p.Name())
	}
	assert.Equal(t, []string{"0.weight", "0.bias", "2.weight", "2.bias"}, names)
	assert.Equal(t, 2*4+4+4+1, nn.CountParameters(model))
}

func TestDropout_Modes(t *testing.T) {
	backend := cpu.New()
	d := nn.NewDropout(0.5, rand.New(rand.NewSource(1)))
	x := tensor.Ones(tensor.Shape{1, 64, 2, 2}, backend)

	eval := d.Forward(x, nn.Eval)
	assert.Equal(t, x.Data(), eval.Data())

	train := d.Forward(x, nn.Train).Data()
	zeros := 0
	for c := 0; c < 64; c++ {
		v := train[c*4]
		for i := 1; i < 4; i++ {
			assert.Equal(t, v, train[c*4+i], "whole channels are dropped")
		}
		if v == 0 {
			zeros++
		} else {
			assert.InDelta(t, 2.0, float64(v), 1e-6)
		}
	}
	assert.Greater(t, zeros, 0)
	assert.Less(t, zeros, 64)
}

func TestProbeShapes(t *testing.T) {
	rng := rand.New(rand.NewSource(0))
	model := nn.NewSequential(
		nn.NewConv2D(1, 2, 3, nn.SamePadding(3, 1), true, rng),
		nn.NewMaxPool2D(2, 2),
		nn.NewUpsample(2),
		nn.NewConv2D(2, 3, 1, tensor.DefaultConvParams(), true, rng),
	)
	shapes, err := nn.ProbeShapes(model, tensor.Zeros(tensor.Shape{1, 1, 8, 8}, cpu.New()))
	require.NoError(t, err)
	require.Len(t, shapes, 4)
	assert.Equal(t, tensor.Shape{1, 2, 4, 4}, shapes[1].Shape)
	assert.Equal(t, tensor.Shape{1, 3, 8, 8}, shapes[3].Shape)
}

func TestDiceLoss(t *testing.T) {
	backend := cpu.New()
	target, err := tensor.FromSlice([]float32{1, 0, 1, 0}, tensor.Shape{1, 1, 2, 2}, backend)
	require.NoError(t, err)
	perfect := nn.NewDiceLoss().Forward(target, target)
	assert.InDelta(t, 0.0, float64(perfect.Item()), 1e-6)

	half := tensor.Full(tensor.Shape{1, 1, 2, 2}, 0.5, backend)
	// 1 - 2*1 / (2 + 2)
	assert.InDelta(t, 0.5, float64(nn.NewDiceLoss().Forward(half, target).Item()), 1e-6)
}

func TestOneHot(t *testing.T) {
	idx, err := tensor.FromFloat32([]float32{0, 2, 1, 0}, tensor.Shape{1, 2, 2}, tensor.CPU)
	require.NoError(t, err)
	oh := nn.OneHot(idx, 3)
	assert.Equal(t, tensor.Shape{1, 3, 2, 2}, oh.Shape())
	assert.Equal(t, []float32{1, 0, 0, 1, 0, 0, 1, 0, 0, 1, 0, 0}, oh.Data())
}

func TestLinear_TrainsWithAutodiff(t *testing.T) {
	backend := autodiff.New(cpu.New())
	rng := rand.New(rand.NewSource(3))
	l := nn.NewLinear(1, 1, rng)
	x, err := tensor.FromSlice([]float32{1, 2, 3, 4}, tensor.Shape{4, 1}, backend)
	require.NoError(t, err)
	y, err := tensor.FromSlice([]float32{3, 5, 7, 9}, tensor.Shape{4, 1}, backend)
	require.NoError(t, err)

	loss := nn.NewMSELoss()
	for i := 0; i < 500; i++ {
		backend.Tape().StartRecording()
		out := loss.Forward(l.Forward(x, nn.Train), y)
		grads := autodiff.Backward(out, backend)
		for _, p := range l.Parameters() {
			g := p.Grad(grads)
			require.NotNil(t, g)
			for j, v := range g.Data() {
				p.Raw().Data()[j] -= 0.05 * v
			}
		}
		backend.Tape().Clear()
	}
	w, b := l.Parameters()[0].Raw().Item(), l.Parameters()[1].Raw().Item()
	assert.InDelta(t, 2.0, float64(w), 0.05)
	assert.InDelta(t, 1.0, float64(b), 0.1)
}

func TestSaveLoadWeights(t *testing.T) {
	rng := rand.New(rand.NewSource(0))
	src := nn.NewSequential(nn.NewLinear(2, 3, rng), nn.NewTanh(), nn.NewLinear(3, 1, rng))
	dst := nn.NewSequential(nn.NewLinear(2, 3, rng), nn.NewTanh(), nn.NewLinear(3, 1, rng))
	path := filepath.Join(t.TempDir(), "w.born")
	require.NoError(t, nn.SaveCheckpoint(path, src, nn.Checkpoint{ModelType: "mlp", Epoch: 3, Loss: 0.5}))

	ckpt, err := nn.LoadWeights(path, dst)
	require.NoError(t, err)
	assert.Equal(t, 3, ckpt.Epoch)
	for i, p := range src.Parameters() {
		assert.Equal(t, p.Raw().Data(), dst.Parameters()[i].Raw().Data())
	}

	wrong := nn.NewSequential(nn.NewLinear(2, 4, rng))
	_, err = nn.LoadWeights(path, wrong)
	require.Error(t, err)
}

func TestGuard(t *testing.T) {
	assert.NoError(t, nn.Guard(func() error { return nil }))

	sentinel := errors.New("sentinel")
	assert.ErrorIs(t, nn.Guard(func() error { return sentinel }), sentinel)
	assert.ErrorIs(t, nn.Guard(func() error { panic(errors.Wrap(sentinel, "kernel")) }), sentinel)

	err := nn.Guard(func() error { panic("plain string") })
	require.Error(t, err)
	assert.Equal(t, "panic: plain string", err.Error())

	err = nn.Guard(func() error { panic(42) })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "42")

	err = nn.Guard(func() error {
		var s []int
		_ = s[3]
		return nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "runtime panic")
}
