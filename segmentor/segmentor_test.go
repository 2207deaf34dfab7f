// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package segmentor_test

import (
	"context"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/atomnet/models"
	"github.com/born-ml/atomnet/segmentor"
	"github.com/born-ml/atomnet/tensor"
)

func blobs(n, size int, seed int64) (images, masks *tensor.RawTensor) {
	rng := rand.New(rand.NewSource(seed))
	images = tensor.MustNewRaw(tensor.Shape{n, 1, size, size}, tensor.CPU)
	masks = tensor.MustNewRaw(tensor.Shape{n, 1, size, size}, tensor.CPU)
	for i := range masks.Data() {
		if rng.Float64() < 0.3 {
			masks.Data()[i] = 1
		}
		images.Data()[i] = masks.Data()[i] + 0.1*float32(rng.NormFloat64())
	}
	return images, masks
}

var small = models.Config{Filters: 4, Layers: []int{1, 1, 1, 1}, Seed: 1}

func TestSegmentor_FitPredictLoad(t *testing.T) {
	prefix := filepath.Join(t.TempDir(), "seg")
	s := must.M1(segmentor.New(segmentor.Config{Model: "Unet", Backbone: small}))
	images, masks := blobs(10, 16, 1)

	history, err := s.Fit(context.Background(), segmentor.Bulk{Array: images}, segmentor.Bulk{Array: masks}, nil, nil,
		segmentor.FitConfig{
			BatchSize:    2,
			Augmentation: "rotation",
			Training:     segmentor.TrainConfig{TrainingCycles: 4, LR: 1e-2, Filename: prefix, Seed: 2},
		})
	require.NoError(t, err)
	assert.Len(t, history.Train, 4)
	assert.Len(t, history.Test, 4)
	cfg := s.Trainer().Config()
	assert.Equal(t, "unet", cfg.ModelType)

	res, err := s.Predict(context.Background(), images, segmentor.PredictConfig{})
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{10, 16, 16, 1}, res.Probabilities.Shape())

	loaded := must.M1(segmentor.New(segmentor.Config{Backbone: small}))
	require.NoError(t, loaded.LoadWeights(cfg.FinalPath()))
	again, err := loaded.Predict(context.Background(), images, segmentor.PredictConfig{ForceTiling: segmentor.TilingPerSample})
	require.NoError(t, err)
	assert.InDeltaSlice(t, res.Probabilities.Data(), again.Probabilities.Data(), 1e-5)
}

func TestSegmentor_Errors(t *testing.T) {
	_, err := segmentor.New(segmentor.Config{Model: "resnet"})
	assert.ErrorIs(t, err, segmentor.ErrUnsupportedModelType)

	s := must.M1(segmentor.New(segmentor.Config{NumClasses: 3, Backbone: small}))
	images, masks := blobs(4, 16, 2)
	_, err = s.Fit(context.Background(), segmentor.Bulk{Array: images}, segmentor.Bulk{Array: masks},
		segmentor.Bulk{Array: images}, segmentor.Bulk{Array: masks},
		segmentor.FitConfig{BatchSize: 2, Training: segmentor.TrainConfig{TrainingCycles: 1, Filename: filepath.Join(t.TempDir(), "x")}})
	assert.ErrorIs(t, err, segmentor.ErrInconsistentClasses)

	_, err = s.Fit(context.Background(), segmentor.Sequence{images}, segmentor.Sequence{masks}, nil, nil, segmentor.FitConfig{})
	assert.ErrorIs(t, err, segmentor.ErrFormatMismatch)

	_, err = s.Predict(context.Background(), tensor.MustNewRaw(tensor.Shape{5}, tensor.CPU), segmentor.PredictConfig{})
	assert.ErrorIs(t, err, segmentor.ErrInvalidInputShape)
}
