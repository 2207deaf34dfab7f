package dklgp

import (
	"context"
	"math"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/atomnet/internal/gp"
	"github.com/born-ml/atomnet/internal/models"
	"github.com/born-ml/atomnet/internal/nn"
	"github.com/born-ml/atomnet/internal/tensor"
)

// smoothData returns n points in [-1,1]² with T smooth targets.
func smoothData(n, numOutputs int, seed int64) (x, y *tensor.RawTensor) {
	rng := rand.New(rand.NewSource(seed))
	x = tensor.MustNewRaw(tensor.Shape{n, 2}, tensor.CPU)
	y = tensor.MustNewRaw(tensor.Shape{n, numOutputs}, tensor.CPU)
	for i := 0; i < n; i++ {
		a, b := rng.Float64()*2-1, rng.Float64()*2-1
		x.Data()[2*i], x.Data()[2*i+1] = float32(a), float32(b)
		for t := 0; t < numOutputs; t++ {
			y.Data()[i*numOutputs+t] = float32(math.Sin(2*a+float64(t)) + 0.5*b)
		}
	}
	return x, y
}

func correlatedConfig() Config {
	cfg := DefaultConfig()
	cfg.HiddenDims = []int{16, 8}
	cfg.Seed = 1
	return cfg
}

func TestNew_Validation(t *testing.T) {
	_, err := New(2, 2, Config{CorrelatedOutput: true})
	assert.ErrorIs(t, err, ErrInvalidConfig)
	_, err = New(0, 2, DefaultConfig())
	assert.ErrorIs(t, err, ErrInvalidConfig)

	r, err := New(2, 2, DefaultConfig())
	require.NoError(t, err)
	_, _, err = r.Predict(context.Background(), tensor.MustNewRaw(tensor.Shape{1, 2}, tensor.CPU), 0)
	assert.ErrorIs(t, err, ErrNotFitted)
	assert.ErrorIs(t, r.Save(filepath.Join(t.TempDir(), "m.born")), ErrNotFitted)
}

func TestFit_EmbedDecodeReproducesTargets(t *testing.T) {
	x, y := smoothData(25, 1, 1)
	targets := tensor.Wrap(y.Data(), tensor.Shape{25}, tensor.CPU)
	r, err := New(2, 2, correlatedConfig())
	require.NoError(t, err)
	require.NoError(t, r.Fit(context.Background(), x, targets, FitConfig{TrainingCycles: 400, LR: 0.05, PrintLoss: 100}))

	losses := r.Losses()
	require.Len(t, losses, 400)
	assert.Less(t, losses[len(losses)-1], losses[0])
	assert.Equal(t, 1, r.NumOutputs())

	ctx := context.Background()
	z, err := r.Embed(ctx, x)
	require.NoError(t, err)
	require.Equal(t, tensor.Shape{25, 2}, z.Shape())
	for _, v := range z.Data() {
		assert.LessOrEqual(t, math.Abs(float64(v)), 0.95+1e-5)
	}

	mean, variance, err := r.Decode(ctx, z)
	require.NoError(t, err)
	require.Equal(t, tensor.Shape{25, 1}, mean.Shape())
	assert.InDeltaSlice(t, y.Data(), mean.Data(), 0.1)
	for _, v := range variance.Data() {
		assert.GreaterOrEqual(t, v, float32(0))
	}

	predMean, predVar, err := r.Predict(ctx, x, 7)
	require.NoError(t, err)
	assert.InDeltaSlice(t, predMean.Data(), mean.Data(), 1e-2)
	assert.InDeltaSlice(t, predVar.Data(), variance.Data(), 1e-2)
}

func TestIndependent_Queries(t *testing.T) {
	x, y := smoothData(12, 2, 2)
	r, err := New(2, 2, Config{HiddenDims: []int{8}, Seed: 2, Settings: gp.DefaultSettings()})
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, r.Fit(ctx, x, y, FitConfig{TrainingCycles: 5}))
	assert.Len(t, r.Extractors(), 2)
	assert.Equal(t, 2, r.NumOutputs())

	z, err := r.Embed(ctx, x)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{2, 12, 2}, z.Shape())

	_, _, err = r.Decode(ctx, tensor.MustNewRaw(tensor.Shape{12, 2}, tensor.CPU))
	assert.ErrorIs(t, err, ErrUnsupportedMode)

	xs, _ := smoothData(5, 1, 3)
	mean, variance, err := r.Predict(ctx, xs, 2)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{5, 2}, mean.Shape())
	assert.Equal(t, tensor.Shape{5, 2}, variance.Shape())

	samples, err := r.SampleFromPosterior(ctx, xs, 3)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{3, 2, 5}, samples.Shape())
}

func TestSampleFromPosterior_Correlated(t *testing.T) {
	x, y := smoothData(10, 3, 4)
	r, err := New(2, 1, correlatedConfig())
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, r.Fit(ctx, x, y, FitConfig{TrainingCycles: 3}))
	assert.Len(t, r.Extractors(), 1)

	samples, err := r.SampleFromPosterior(ctx, x, 4)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{4, 3, 10}, samples.Shape())
	for _, v := range samples.Data() {
		assert.False(t, math.IsNaN(float64(v)))
	}
	_, err = r.SampleFromPosterior(ctx, x, 0)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestFit_FreezeWeights(t *testing.T) {
	x, y := smoothData(10, 1, 5)
	ext := models.NewFeatureExtractor(2, 2, []int{4}, rand.New(rand.NewSource(9)))
	before := nn.GetStateDict(ext)

	r, err := New(2, 2, correlatedConfig())
	require.NoError(t, err)
	require.NoError(t, r.Fit(context.Background(), x, y, FitConfig{TrainingCycles: 10, FeatureExtractor: ext, FreezeWeights: true}))

	after := nn.GetStateDict(ext)
	for _, k := range before.Keys() {
		assert.Equal(t, before[k].Data(), after[k].Data(), k)
	}
	assert.NotEqual(t, gp.DefaultHyper(2).LogNoise, r.Hyper(0).LogNoise)
}

func TestFit_ExtractorCountMismatch(t *testing.T) {
	x, y := smoothData(6, 2, 6)
	r, err := New(2, 2, Config{})
	require.NoError(t, err)
	ext := models.NewFeatureExtractor(2, 2, []int{4}, rand.New(rand.NewSource(1)))
	err = r.Fit(context.Background(), x, y, FitConfig{FeatureExtractor: ext})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	err = r.Fit(context.Background(), x, tensor.MustNewRaw(tensor.Shape{5}, tensor.CPU), FitConfig{})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestFit_Canceled(t *testing.T) {
	x, y := smoothData(6, 1, 7)
	r, err := New(2, 2, correlatedConfig())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = r.Fit(ctx, x, y, FitConfig{TrainingCycles: 3})
	assert.ErrorIs(t, err, context.Canceled)
	_, err = r.Embed(context.Background(), x)
	assert.ErrorIs(t, err, ErrNotFitted)
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	x, y := smoothData(15, 2, 8)
	ctx := context.Background()
	r, err := New(2, 2, correlatedConfig())
	require.NoError(t, err)
	require.NoError(t, r.Fit(ctx, x, y, FitConfig{TrainingCycles: 5}))
	path := filepath.Join(t.TempDir(), "dkl.born")
	require.NoError(t, r.Save(path))

	loaded, err := New(2, 2, correlatedConfig())
	require.NoError(t, err)
	require.NoError(t, loaded.Load(path))
	assert.Equal(t, r.Hyper(1), loaded.Hyper(1))

	xs, _ := smoothData(4, 1, 9)
	wantMean, wantVar, err := r.Predict(ctx, xs, 0)
	require.NoError(t, err)
	gotMean, gotVar, err := loaded.Predict(ctx, xs, 0)
	require.NoError(t, err)
	assert.InDeltaSlice(t, wantMean.Data(), gotMean.Data(), 1e-5)
	assert.InDeltaSlice(t, wantVar.Data(), gotVar.Data(), 1e-5)

	other, err := New(2, 3, correlatedConfig())
	require.NoError(t, err)
	assert.ErrorIs(t, other.Load(path), ErrInvalidConfig)
}

// brokenExtractor panics with a plain string on Forward.
type brokenExtractor struct{ w *nn.Parameter }

func (b *brokenExtractor) Forward(*tensor.Tensor, nn.Mode) *tensor.Tensor { panic("extractor bug") }
func (b *brokenExtractor) Parameters() []*nn.Parameter                    { return []*nn.Parameter{b.w} }

func TestFit_ExtractorPanic(t *testing.T) {
	x, y := smoothData(6, 1, 2)
	r, err := New(2, 2, correlatedConfig())
	require.NoError(t, err)
	ext := &brokenExtractor{w: nn.NewParameter("w", tensor.MustNewRaw(tensor.Shape{1}, tensor.CPU))}
	err = r.Fit(context.Background(), x, y, FitConfig{TrainingCycles: 2, FeatureExtractor: ext})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "extractor bug")
	_, _, err = r.Predict(context.Background(), x, 0)
	assert.ErrorIs(t, err, ErrNotFitted)
}

func TestFit_NonFiniteLoss(t *testing.T) {
	x, y := smoothData(6, 1, 2)
	y.Data()[3] = float32(math.NaN())
	r, err := New(2, 2, correlatedConfig())
	require.NoError(t, err)
	err = r.Fit(context.Background(), x, y, FitConfig{TrainingCycles: 3})
	assert.ErrorIs(t, err, ErrNonFiniteLoss)
	assert.Empty(t, r.Losses())
}
