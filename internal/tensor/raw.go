package tensor

import (
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
)

// Device represents the compute device holding a tensor.
type Device int

// Known compute devices. Only CPU has a backend in this module.
const (
	CPU Device = iota
	CUDA
	Metal
)

// String returns a human-readable device name.
func (d Device) String() string {
	switch d {
	case CPU:
		return "CPU"
	case CUDA:
		return "CUDA"
	case Metal:
		return "Metal"
	default:
		return "Unknown"
	}
}

// ParseDevice maps "cpu", "cuda" or "metal" to a Device.
func ParseDevice(s string) (Device, error) {
	switch s {
	case "cpu", "CPU", "":
		return CPU, nil
	case "cuda", "CUDA":
		return CUDA, nil
	case "metal", "Metal":
		return Metal, nil
	}
	return CPU, errors.Errorf("unknown device %q", s)
}

// RawTensor is the low-level tensor representation: a dense row-major float32
// buffer with its shape. Backends never write into their inputs, so the buffer
// may be shared between a tensor and its reshaped views.
type RawTensor struct {
	data   []float32
	shape  Shape
	stride []int
	device Device
}

// NewRaw creates a zero-filled RawTensor with the given shape.
func NewRaw(shape Shape, device Device) (*RawTensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, errors.WithMessage(err, "invalid shape")
	}
	return &RawTensor{
		data:   make([]float32, shape.NumElements()),
		shape:  shape.Clone(),
		stride: shape.ComputeStrides(),
		device: device,
	}, nil
}

// MustNewRaw is like NewRaw but panics on an invalid shape. Kernels use it for
// outputs whose shapes were already validated.
func MustNewRaw(shape Shape, device Device) *RawTensor {
	r, err := NewRaw(shape, device)
	if err != nil {
		exceptions.Panicf("tensor: %v", err)
	}
	return r
}

// FromFloat32 creates a RawTensor holding a copy of data.
func FromFloat32(data []float32, shape Shape, device Device) (*RawTensor, error) {
	if shape.NumElements() != len(data) {
		return nil, errors.Errorf("shape %v requires %d elements, but got %d", shape, shape.NumElements(), len(data))
	}
	r, err := NewRaw(shape, device)
	if err != nil {
		return nil, err
	}
	copy(r.data, data)
	return r, nil
}

// Wrap creates a RawTensor that takes ownership of data without copying.
func Wrap(data []float32, shape Shape, device Device) *RawTensor {
	if shape.NumElements() != len(data) {
		exceptions.Panicf("tensor: shape %v requires %d elements, but got %d", shape, shape.NumElements(), len(data))
	}
	return &RawTensor{data: data, shape: shape.Clone(), stride: shape.ComputeStrides(), device: device}
}

// Shape returns the tensor's shape.
func (r *RawTensor) Shape() Shape { return r.shape }

// Strides returns the tensor's row-major strides.
func (r *RawTensor) Strides() []int { return r.stride }

// Device returns the tensor's compute device.
func (r *RawTensor) Device() Device { return r.device }

// NumElements returns the total number of elements.
func (r *RawTensor) NumElements() int { return len(r.data) }

// Data returns the underlying buffer.
// WARNING: Direct access to memory shared with views of this tensor.
func (r *RawTensor) Data() []float32 { return r.data }

// Item returns the single value of a one-element tensor.
func (r *RawTensor) Item() float32 {
	if len(r.data) != 1 {
		exceptions.Panicf("tensor: Item() called on tensor of shape %v", r.shape)
	}
	return r.data[0]
}

// Clone returns a deep copy.
func (r *RawTensor) Clone() *RawTensor {
	data := make([]float32, len(r.data))
	copy(data, r.data)
	return &RawTensor{data: data, shape: r.shape.Clone(), stride: append([]int(nil), r.stride...), device: r.device}
}

// View returns a tensor with a new shape sharing the same buffer.
func (r *RawTensor) View(shape Shape) *RawTensor {
	if shape.NumElements() != len(r.data) {
		exceptions.Panicf("tensor: cannot view shape %v as %v", r.shape, shape)
	}
	return &RawTensor{data: r.data, shape: shape.Clone(), stride: shape.ComputeStrides(), device: r.device}
}

// Fill sets every element to v.
func (r *RawTensor) Fill(v float32) {
	for i := range r.data {
		r.data[i] = v
	}
}
