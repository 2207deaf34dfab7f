// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package segmentor trains and applies semantic segmentation models on
// greyscale microscopy images.
//
// Example:
//
//	s, err := segmentor.New(segmentor.Config{Model: "unet", NumClasses: 1})
//	history, err := s.Fit(ctx, segmentor.Bulk{Array: images}, segmentor.Bulk{Array: masks},
//	    nil, nil, segmentor.FitConfig{BatchSize: 32})
//	result, err := s.Predict(ctx, newImages, segmentor.PredictConfig{UseLocator: true})
package segmentor

import (
	"context"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/born-ml/atomnet/internal/augment"
	"github.com/born-ml/atomnet/internal/data"
	"github.com/born-ml/atomnet/internal/loss"
	"github.com/born-ml/atomnet/internal/models"
	"github.com/born-ml/atomnet/internal/nn"
	"github.com/born-ml/atomnet/internal/predictor"
	"github.com/born-ml/atomnet/internal/trainer"
	"github.com/born-ml/atomnet/tensor"
)

// Data sources accepted by Fit.
type (
	Source   = data.Source
	Sequence = data.Sequence
	Mapping  = data.Mapping
	Bulk     = data.Bulk
)

// Training and inference types.
type (
	TrainConfig   = trainer.Config
	PerturbConfig = trainer.PerturbConfig
	History       = trainer.History
	PredictConfig = predictor.Config
	Result        = predictor.Result
	TilingMode    = predictor.TilingMode
	LossKind      = loss.Kind
)

// Loss functions.
const (
	LossCE    = loss.CE
	LossFocal = loss.Focal
	LossDice  = loss.Dice
	LossMSE   = loss.MSE
)

// Tiling modes.
const (
	TilingAuto      = predictor.TilingAuto
	TilingBatch     = predictor.TilingBatch
	TilingPerSample = predictor.TilingPerSample
)

// Errors reported by the toolkit.
var (
	ErrFormatMismatch           = data.ErrFormatMismatch
	ErrInconsistentClasses      = data.ErrInconsistentClasses
	ErrMissingBackgroundClass   = data.ErrMissingBackgroundClass
	ErrUnsupportedModelType     = models.ErrUnsupportedModelType
	ErrUnsupportedLoss          = loss.ErrUnsupportedLoss
	ErrInvalidInputShape        = predictor.ErrInvalidInputShape
	ErrModelIntrospectionFailed = predictor.ErrModelIntrospectionFailed
	ErrNonFiniteLoss            = trainer.ErrNonFiniteLoss
)

// Config selects the model of a Segmentor.
type Config struct {
	// Model is "unet" (default) or "dilnet"; ignored when Custom is set.
	Model string
	// NumClasses is the number of output channels (default 1).
	NumClasses int
	Backbone   models.Config
	// Custom replaces the built-in backbones.
	Custom nn.Module
}

// FitConfig configures Fit.
type FitConfig struct {
	Training TrainConfig
	// BatchSize splits Bulk sources into batches (default 32).
	BatchSize int
	// Augmentation is an augmentation string such as
	// "zoom,gauss_noise=20;60,rotation"; empty disables augmentation.
	Augmentation string
	// TestFraction is held out of Bulk training data when no test data is
	// given (default 0.15).
	TestFraction float64
}

// Segmentor owns a segmentation model across training and inference.
type Segmentor struct {
	model      nn.Module
	modelType  string
	numClasses int
	trainer    *trainer.Trainer
}

// New creates a Segmentor with a freshly initialized model.
func New(cfg Config) (*Segmentor, error) {
	if cfg.NumClasses == 0 {
		cfg.NumClasses = 1
	}
	if cfg.Custom != nil {
		return &Segmentor{model: cfg.Custom, modelType: "custom", numClasses: cfg.NumClasses}, nil
	}
	if cfg.Model == "" {
		cfg.Model = string(models.TypeUnet)
	}
	t, err := models.ParseModelType(cfg.Model)
	if err != nil {
		return nil, err
	}
	m, err := models.New(t, cfg.NumClasses, cfg.Backbone)
	if err != nil {
		return nil, err
	}
	klog.V(1).Infof("segmentor: %s with %d classes, %d parameters", t, cfg.NumClasses, nn.CountParameters(m))
	return &Segmentor{model: m, modelType: string(t), numClasses: cfg.NumClasses}, nil
}

// Model returns the segmentation model.
func (s *Segmentor) Model() nn.Module { return s.model }

// NumClasses returns the number of output channels.
func (s *Segmentor) NumClasses() int { return s.numClasses }

// Trainer returns the trainer of the last Fit, or nil.
func (s *Segmentor) Trainer() *trainer.Trainer { return s.trainer }

// Fit trains the model. With nil test sources, Bulk training data is split
// into train and test sets.
func (s *Segmentor) Fit(ctx context.Context, trainX, trainY, testX, testY Source, cfg FitConfig) (History, error) {
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 32
	}
	if testX == nil && testY == nil {
		var err error
		if trainX, trainY, testX, testY, err = holdOut(trainX, trainY, cfg); err != nil {
			return History{}, err
		}
	}
	ds, err := data.Normalize(trainX, trainY, testX, testY, cfg.BatchSize)
	if err != nil {
		return History{}, err
	}
	if ds.NumClasses != s.numClasses {
		return History{}, errors.Wrapf(ErrInconsistentClasses,
			"labels have %d classes, model was built for %d", ds.NumClasses, s.numClasses)
	}
	tc := cfg.Training
	if tc.ModelType == "" {
		tc.ModelType = s.modelType
	}
	if cfg.Augmentation != "" {
		acfg, err := augment.ParseConfig(cfg.Augmentation)
		if err != nil {
			return History{}, err
		}
		tc.Augment = augment.New(acfg)
	}
	t, err := trainer.New(s.model, ds, tc)
	if err != nil {
		return History{}, err
	}
	s.trainer = t
	err = t.Run(ctx)
	return t.History(), err
}

func holdOut(trainX, trainY Source, cfg FitConfig) (x, y, testX, testY Source, err error) {
	bx, okX := trainX.(Bulk)
	by, okY := trainY.(Bulk)
	if !okX || !okY {
		return nil, nil, nil, nil, errors.Wrap(ErrFormatMismatch, "test data can only be held out of bulk arrays")
	}
	frac := cfg.TestFraction
	if frac == 0 {
		frac = data.DefaultTestFraction
	}
	tx, ty, vx, vy, err := data.Split(bx.Array, by.Array, frac, cfg.Training.Seed)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	return Bulk{Array: tx}, Bulk{Array: ty}, Bulk{Array: vx}, Bulk{Array: vy}, nil
}

// Predict runs the model on images [H,W], [N,H,W] or [N,1,H,W].
func (s *Segmentor) Predict(ctx context.Context, images *tensor.RawTensor, cfg PredictConfig) (*Result, error) {
	if cfg.NumClasses == 0 {
		cfg.NumClasses = s.numClasses
	}
	p, err := predictor.New(s.model, cfg)
	if err != nil {
		return nil, err
	}
	return p.Predict(ctx, images)
}

// LoadWeights reads model weights from a .born file written by training.
func (s *Segmentor) LoadWeights(path string) error {
	ckpt, err := trainer.LoadWeights(path, s.model)
	if err != nil {
		return err
	}
	klog.V(1).Infof("segmentor: loaded %s weights from %q (epoch %d, loss %.4f)", ckpt.ModelType, path, ckpt.Epoch, ckpt.Loss)
	return nil
}
