package models

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/atomnet/internal/backend/cpu"
	"github.com/born-ml/atomnet/internal/nn"
	"github.com/born-ml/atomnet/internal/tensor"
)

func downsampling(shapes []nn.LayerShape) int {
	lo, hi := 1<<30, 0
	for _, s := range shapes {
		side := s.Shape[len(s.Shape)-1]
		lo, hi = min(lo, side), max(hi, side)
	}
	return hi / lo
}

func TestUnet_ForwardAndProbe(t *testing.T) {
	backend := cpu.New()
	model := NewUnet(3, Config{Filters: 4, Layers: []int{1, 1, 1, 1}})
	x := tensor.Zeros(tensor.Shape{2, 1, 16, 16}, backend)
	out := model.Forward(x, nn.Eval)
	assert.Equal(t, tensor.Shape{2, 3, 16, 16}, out.Shape())

	shapes, err := nn.ProbeShapes(model, tensor.Zeros(tensor.Shape{1, 1, 16, 16}, backend))
	require.NoError(t, err)
	assert.Equal(t, "px", shapes[len(shapes)-1].Layer)
	assert.Equal(t, 3, shapes[len(shapes)-1].Shape[1])
	assert.Equal(t, 8, downsampling(shapes))
}

func TestUnet_WithDilation(t *testing.T) {
	model := NewUnet(1, Config{Filters: 2, WithDilation: true, Dropout: true})
	out := model.Forward(tensor.Zeros(tensor.Shape{1, 1, 8, 8}, cpu.New()), nn.Train)
	assert.Equal(t, tensor.Shape{1, 1, 8, 8}, out.Shape())
}

func TestDilnet_ForwardAndProbe(t *testing.T) {
	backend := cpu.New()
	model := NewDilnet(1, Config{Filters: 3})
	out := model.Forward(tensor.Zeros(tensor.Shape{1, 1, 12, 12}, backend), nn.Eval)
	assert.Equal(t, tensor.Shape{1, 1, 12, 12}, out.Shape())
	shapes, err := nn.ProbeShapes(model, tensor.Zeros(tensor.Shape{1, 1, 12, 12}, backend))
	require.NoError(t, err)
	assert.Equal(t, 2, downsampling(shapes))
	assert.Equal(t, 1, model.NumClasses())
}

func TestModels_UniqueParameterNames(t *testing.T) {
	for _, m := range []nn.Module{
		NewUnet(2, Config{Filters: 2, WithDilation: true}),
		NewDilnet(2, Config{Filters: 2}),
		NewFeatureExtractor(3, 2, []int{4, 4}, rand.New(rand.NewSource(0))),
	} {
		seen := make(map[string]bool)
		for _, p := range m.Parameters() {
			require.False(t, seen[p.Name()], "duplicate parameter %q", p.Name())
			seen[p.Name()] = true
		}
		assert.Len(t, nn.GetStateDict(m), len(m.Parameters()))
	}
}

func TestModels_SameSeedSameWeights(t *testing.T) {
	a := NewUnet(1, Config{Filters: 2, Seed: 9})
	b := NewUnet(1, Config{Filters: 2, Seed: 9})
	for i, p := range a.Parameters() {
		assert.Equal(t, p.Raw().Data(), b.Parameters()[i].Raw().Data())
	}
}

func TestNew(t *testing.T) {
	typ, err := ParseModelType("Unet")
	require.NoError(t, err)
	assert.Equal(t, TypeUnet, typ)
	m, err := New(typ, 2, Config{Filters: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, m.NumClasses())

	_, err = ParseModelType("resnet")
	require.ErrorIs(t, err, ErrUnsupportedModelType)
	_, err = New("resnet", 2, Config{})
	require.ErrorIs(t, err, ErrUnsupportedModelType)
}

func TestFeatureExtractor(t *testing.T) {
	fe := NewFeatureExtractor(5, 2, []int{8}, rand.New(rand.NewSource(1)))
	out := fe.Forward(tensor.Ones(tensor.Shape{7, 5}, cpu.New()), nn.Eval)
	assert.Equal(t, tensor.Shape{7, 2}, out.Shape())
}
