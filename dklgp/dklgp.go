// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package dklgp provides deep kernel learning Gaussian process regression.
//
// Example:
//
//	r, err := dklgp.New(inputDim, 2, dklgp.DefaultConfig())
//	err = r.Fit(ctx, x, y, dklgp.FitConfig{TrainingCycles: 200})
//	mean, variance, err := r.Predict(ctx, xNew, 100)
//	z, err := r.Embed(ctx, xNew)
//	zMean, zVariance, err := r.Decode(ctx, z)
package dklgp

import (
	"github.com/born-ml/atomnet/internal/dklgp"
	"github.com/born-ml/atomnet/internal/gp"
)

// Regressor is a DKL-GP model with one GP head per output.
type Regressor = dklgp.Regressor

// Config describes the structure of a Regressor.
type Config = dklgp.Config

// FitConfig configures Regressor.Fit.
type FitConfig = dklgp.FitConfig

// Settings select numerical shortcuts of the GP layer.
type Settings = gp.Settings

// Hyper holds unconstrained GP hyperparameters.
type Hyper = gp.Hyper

// Errors.
var (
	ErrInvalidConfig   = dklgp.ErrInvalidConfig
	ErrUnsupportedMode = dklgp.ErrUnsupportedMode
	ErrNotFitted       = dklgp.ErrNotFitted
	ErrNonFiniteLoss   = dklgp.ErrNonFiniteLoss
)

// New creates an unfitted Regressor.
func New(inputDim, embedDim int, cfg Config) (*Regressor, error) {
	return dklgp.New(inputDim, embedDim, cfg)
}

// DefaultConfig returns a correlated, shared-embedding configuration.
func DefaultConfig() Config { return dklgp.DefaultConfig() }

// DefaultSettings returns the default GP settings.
func DefaultSettings() Settings { return gp.DefaultSettings() }
