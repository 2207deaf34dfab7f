// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package models provides the built-in segmentation backbones and the deep
// kernel feature extractor.
//
// Example:
//
//	unet := models.NewUnet(3, models.Config{Dropout: true})
//	dilnet, err := models.New(models.TypeDilnet, 1, models.Config{})
package models

import (
	"math/rand"

	"github.com/born-ml/atomnet/internal/models"
	"github.com/born-ml/atomnet/nn"
)

// Config configures a backbone. Zero fields take per-backbone defaults.
type Config = models.Config

// ModelType names a built-in backbone.
type ModelType = models.ModelType

// Built-in backbones.
const (
	TypeUnet   ModelType = models.TypeUnet
	TypeDilnet ModelType = models.TypeDilnet
)

// ErrUnsupportedModelType is returned for unknown backbone names.
var ErrUnsupportedModelType = models.ErrUnsupportedModelType

// Segmentation is a backbone mapping [N,C,H,W] images to per-class logits.
type Segmentation = models.Segmentation

// Unet is a 3-level encoder/decoder with skip connections.
type Unet = models.Unet

// Dilnet is a shallow network with dilated convolution blocks.
type Dilnet = models.Dilnet

// ParseModelType parses "unet" or "dilnet", case-insensitively.
func ParseModelType(s string) (ModelType, error) { return models.ParseModelType(s) }

// New builds the backbone named by t.
func New(t ModelType, numClasses int, cfg Config) (Segmentation, error) {
	return models.New(t, numClasses, cfg)
}

// NewUnet creates a Unet with numClasses output channels.
func NewUnet(numClasses int, cfg Config) *Unet { return models.NewUnet(numClasses, cfg) }

// NewDilnet creates a Dilnet with numClasses output channels.
func NewDilnet(numClasses int, cfg Config) *Dilnet { return models.NewDilnet(numClasses, cfg) }

// NewFeatureExtractor creates a ReLU MLP from inputDim to embedDim; nil
// hiddenDims uses [1000, 500, 50].
func NewFeatureExtractor(inputDim, embedDim int, hiddenDims []int, rng *rand.Rand) nn.Module {
	return models.NewFeatureExtractor(inputDim, embedDim, hiddenDims, rng)
}
