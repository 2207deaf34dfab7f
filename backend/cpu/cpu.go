// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package cpu provides the pure Go CPU backend.
//
// Kernels split work over GOMAXPROCS goroutines and block until done.
package cpu

import (
	internalcpu "github.com/born-ml/atomnet/internal/backend/cpu"
	"github.com/born-ml/atomnet/internal/parallel"
	"github.com/born-ml/atomnet/tensor"
)

// Backend represents the CPU backend implementation.
type Backend = internalcpu.CPUBackend

// Compile-time check that Backend implements tensor.Backend.
var _ tensor.Backend = (*Backend)(nil)

// ParallelConfig controls how kernels split work.
type ParallelConfig = parallel.Config

// New creates a new CPU backend.
//
// Example:
//
//	backend := cpu.New()
//	x := tensor.New(tensor.MustNewRaw(tensor.Shape{2, 3}, tensor.CPU), backend)
func New() *Backend {
	return internalcpu.New()
}

// NewWithConfig creates a CPU backend with explicit parallelism settings.
func NewWithConfig(cfg ParallelConfig) *Backend {
	return internalcpu.NewWithConfig(cfg)
}
