// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package nn_test

import (
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/atomnet/backend/cpu"
	"github.com/born-ml/atomnet/nn"
	"github.com/born-ml/atomnet/tensor"
)

// tinyNet is a custom Observable model built from public layers.
type tinyNet struct {
	nn.Hooks
	conv *nn.Conv2D
	pool *nn.Sequential
}

func newTinyNet(rng *rand.Rand) *tinyNet {
	return &tinyNet{
		conv: nn.NewConv2D(1, 2, 3, 1, true, rng),
		pool: nn.NewSequential(nn.NewMaxPool2D(2, 2), nn.NewUpsample(2)),
	}
}

func (m *tinyNet) Forward(x *tensor.Tensor, mode nn.Mode) *tensor.Tensor {
	c := m.conv.Forward(x, mode)
	m.Emit("conv", c)
	out := m.pool.Forward(c, mode)
	m.Emit("out", out)
	return out
}

func (m *tinyNet) Parameters() []*nn.Parameter { return m.conv.Parameters() }

func TestModuleInterface(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	tests := []struct {
		name   string
		module nn.Module
		input  tensor.Shape
		output tensor.Shape
	}{
		{"Linear", nn.NewLinear(10, 5, rng), tensor.Shape{2, 10}, tensor.Shape{2, 5}},
		{"Sequential", nn.NewSequential(nn.NewLinear(10, 5, rng), nn.NewReLU()), tensor.Shape{2, 10}, tensor.Shape{2, 5}},
		{"Custom", newTinyNet(rng), tensor.Shape{1, 1, 8, 8}, tensor.Shape{1, 2, 8, 8}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x := tensor.New(tensor.MustNewRaw(tt.input, tensor.CPU), cpu.New())
			assert.Equal(t, tt.output, tt.module.Forward(x, nn.Eval).Shape())
			assert.NotEmpty(t, tt.module.Parameters())
		})
	}
}

func TestProbeShapes_CustomModel(t *testing.T) {
	m := newTinyNet(rand.New(rand.NewSource(2)))
	x := tensor.New(tensor.MustNewRaw(tensor.Shape{1, 1, 8, 8}, tensor.CPU), cpu.New())
	shapes, err := nn.ProbeShapes(m, x)
	require.NoError(t, err)
	require.Len(t, shapes, 2)
	assert.Equal(t, "conv", shapes[0].Layer)
	assert.Equal(t, tensor.Shape{1, 2, 8, 8}, shapes[1].Shape)
}

func TestSaveLoadWeights(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tiny.born")
	src := newTinyNet(rand.New(rand.NewSource(3)))
	require.NoError(t, nn.SaveWeights(path, src, "tiny"))

	dst := newTinyNet(rand.New(rand.NewSource(4)))
	require.NoError(t, nn.LoadWeights(path, dst))
	want, got := nn.GetStateDict(src), nn.GetStateDict(dst)
	for _, k := range want.Keys() {
		assert.Equal(t, want[k].Data(), got[k].Data(), k)
	}
}
