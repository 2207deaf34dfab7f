// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package nn exposes the module skeleton for custom segmentation models and
// feature extractors.
//
// A model is any Module. Models that also implement Observable let the
// predictor infer their number of output classes and downsampling factor.
//
// Example:
//
//	rng := rand.New(rand.NewSource(1))
//	extractor := nn.NewSequential(
//	    nn.NewLinear(16, 32, rng),
//	    nn.NewReLU(),
//	    nn.NewLinear(32, 2, rng),
//	)
package nn

import (
	"math/rand"

	"github.com/born-ml/atomnet/internal/nn"
	"github.com/born-ml/atomnet/tensor"
)

// Module interface defines the common interface for all neural network modules.
type Module = nn.Module

// Observable is a Module whose sub-layer outputs can be hooked.
type Observable = nn.Observable

// Hook receives named sub-layer outputs.
type Hook = nn.Hook

// Hooks implements Observable hook storage for embedding in custom models.
type Hooks = nn.Hooks

// LayerShape is one observed sub-layer output shape.
type LayerShape = nn.LayerShape

// Mode selects train or eval behavior of stochastic layers.
type Mode = nn.Mode

// Forward pass modes.
const (
	Eval  Mode = nn.Eval
	Train Mode = nn.Train
)

// Parameter represents a trainable parameter in a neural network.
type Parameter = nn.Parameter

// StateDict is a flat name to tensor snapshot of a module.
type StateDict = nn.StateDict

// Loss computes a scalar from a prediction and a target.
type Loss = nn.Loss

// NewParameter creates a new parameter with the given name and storage.
func NewParameter(name string, raw *tensor.RawTensor) *Parameter {
	return nn.NewParameter(name, raw)
}

// Layers

// Linear represents a fully connected (dense) layer.
type Linear = nn.Linear

// NewLinear creates a new linear layer with Xavier initialization.
func NewLinear(inFeatures, outFeatures int, rng *rand.Rand) *Linear {
	return nn.NewLinear(inFeatures, outFeatures, rng)
}

// Conv2D represents a 2D convolutional layer.
type Conv2D = nn.Conv2D

// NewConv2D creates a square-kernel convolution with "same" padding for the
// given dilation.
func NewConv2D(inChannels, outChannels, kernelSize, dilation int, useBias bool, rng *rand.Rand) *Conv2D {
	return nn.NewConv2D(inChannels, outChannels, kernelSize, nn.SamePadding(kernelSize, dilation), useBias, rng)
}

// Sequential chains modules.
type Sequential = nn.Sequential

// NewSequential creates a container running layers in order.
func NewSequential(layers ...Module) *Sequential { return nn.NewSequential(layers...) }

// NewReLU creates a ReLU activation.
func NewReLU() *nn.ReLU { return nn.NewReLU() }

// NewLeakyReLU creates a leaky ReLU activation.
func NewLeakyReLU(slope float32) *nn.LeakyReLU { return nn.NewLeakyReLU(slope) }

// NewMaxPool2D creates a max pooling layer.
func NewMaxPool2D(kernelSize, stride int) *nn.MaxPool2D { return nn.NewMaxPool2D(kernelSize, stride) }

// NewUpsample creates a nearest neighbor upsampling layer.
func NewUpsample(scale int) *nn.Upsample { return nn.NewUpsample(scale) }

// NewDropout creates a channel dropout layer.
func NewDropout(p float32, rng *rand.Rand) *nn.Dropout { return nn.NewDropout(p, rng) }

// ProbeShapes records the output shape of every observed sub-layer of m for
// one forward pass on x.
func ProbeShapes(m Observable, x *tensor.Tensor) ([]LayerShape, error) {
	return nn.ProbeShapes(m, x)
}

// GetStateDict returns copies of the parameters of m.
func GetStateDict(m Module) StateDict { return nn.GetStateDict(m) }

// LoadStateDict copies sd into the parameters of m.
func LoadStateDict(m Module, sd StateDict) error { return nn.LoadStateDict(m, sd) }

// SaveWeights writes the parameters of m to a .born file.
func SaveWeights(path string, m Module, modelType string) error {
	return nn.SaveWeights(path, m, modelType, nil)
}

// LoadWeights reads a .born file into the parameters of m.
func LoadWeights(path string, m Module) error {
	_, err := nn.LoadWeights(path, m)
	return err
}
