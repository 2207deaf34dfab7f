// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the public tensor types of atomnet.
//
// Images, labels, probabilities and regression data all travel as
// RawTensors: dense row-major float32 buffers with a Shape. Tensor binds a
// RawTensor to a compute Backend for model forward passes.
//
// Example:
//
//	images := tensor.MustNewRaw(tensor.Shape{8, 1, 64, 64}, tensor.CPU)
//	x := tensor.New(images, cpu.New())
package tensor

import (
	"github.com/born-ml/atomnet/internal/tensor"
)

// Shape represents the dimensions of a tensor.
// Example: Shape{2, 3, 4} represents a 3D tensor with dimensions 2×3×4.
type Shape = tensor.Shape

// Device represents the device where tensor data resides.
type Device = tensor.Device

// Device constants. Only CPU has a backend.
const (
	CPU   Device = tensor.CPU
	CUDA  Device = tensor.CUDA
	Metal Device = tensor.Metal
)

// RawTensor is a dense float32 buffer with a shape.
type RawTensor = tensor.RawTensor

// Tensor is a RawTensor bound to a Backend.
type Tensor = tensor.Tensor

// Backend executes tensor operations.
type Backend = tensor.Backend

// NewRaw creates a zero-filled RawTensor.
func NewRaw(shape Shape, device Device) (*RawTensor, error) {
	return tensor.NewRaw(shape, device)
}

// MustNewRaw is NewRaw that panics on an invalid shape.
func MustNewRaw(shape Shape, device Device) *RawTensor {
	return tensor.MustNewRaw(shape, device)
}

// FromFloat32 copies data into a new RawTensor; len(data) must match shape.
func FromFloat32(data []float32, shape Shape, device Device) (*RawTensor, error) {
	return tensor.FromFloat32(data, shape, device)
}

// Wrap creates a RawTensor sharing data.
func Wrap(data []float32, shape Shape, device Device) *RawTensor {
	return tensor.Wrap(data, shape, device)
}

// New binds raw to backend b.
func New(raw *RawTensor, b Backend) *Tensor {
	return tensor.New(raw, b)
}

// ParseDevice maps "cpu", "cuda" or "metal" to a Device.
func ParseDevice(s string) (Device, error) {
	return tensor.ParseDevice(s)
}
