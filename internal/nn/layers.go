package nn

import (
	"math/rand"
	"sync"

	"github.com/born-ml/atomnet/internal/tensor"
)

// stateless is embedded by layers without parameters.
type stateless struct{}

// Parameters returns no parameters.
func (stateless) Parameters() []*Parameter { return nil }

// ReLU applies max(0, x).
type ReLU struct{ stateless }

// NewReLU creates a ReLU activation.
func NewReLU() *ReLU { return &ReLU{} }

// Forward applies the activation.
func (*ReLU) Forward(x *tensor.Tensor, _ Mode) *tensor.Tensor { return x.ReLU() }

// LeakyReLU applies x for x > 0 and slope*x otherwise.
type LeakyReLU struct {
	stateless
	Slope float32
}

// NewLeakyReLU creates a LeakyReLU activation.
func NewLeakyReLU(slope float32) *LeakyReLU { return &LeakyReLU{Slope: slope} }

// Forward applies the activation.
func (l *LeakyReLU) Forward(x *tensor.Tensor, _ Mode) *tensor.Tensor { return x.LeakyReLU(l.Slope) }

// Sigmoid applies the logistic function.
type Sigmoid struct{ stateless }

// NewSigmoid creates a Sigmoid activation.
func NewSigmoid() *Sigmoid { return &Sigmoid{} }

// Forward applies the activation.
func (*Sigmoid) Forward(x *tensor.Tensor, _ Mode) *tensor.Tensor { return x.Sigmoid() }

// Tanh applies the hyperbolic tangent.
type Tanh struct{ stateless }

// NewTanh creates a Tanh activation.
func NewTanh() *Tanh { return &Tanh{} }

// Forward applies the activation.
func (*Tanh) Forward(x *tensor.Tensor, _ Mode) *tensor.Tensor { return x.Tanh() }

// MaxPool2D halves (or reduces by Stride) the spatial resolution.
type MaxPool2D struct {
	stateless
	KernelSize, Stride int
}

// NewMaxPool2D creates a max-pooling layer.
func NewMaxPool2D(kernelSize, stride int) *MaxPool2D {
	return &MaxPool2D{KernelSize: kernelSize, Stride: stride}
}

// Forward applies pooling.
func (m *MaxPool2D) Forward(x *tensor.Tensor, _ Mode) *tensor.Tensor {
	return x.MaxPool2D(m.KernelSize, m.Stride)
}

// Upsample repeats pixels Scale times along H and W.
type Upsample struct {
	stateless
	Scale int
}

// NewUpsample creates a nearest-neighbour upsampling layer.
func NewUpsample(scale int) *Upsample { return &Upsample{Scale: scale} }

// Forward applies upsampling.
func (u *Upsample) Forward(x *tensor.Tensor, _ Mode) *tensor.Tensor { return x.Upsample2D(u.Scale) }

// Dropout zeroes activations with probability P in Train mode and rescales the
// rest by 1/(1-P). In Eval mode it is the identity.
//
// A dropout mask for NCHW inputs drops whole channels (spatial dropout).
type Dropout struct {
	stateless
	P float32

	mu  sync.Mutex
	rng *rand.Rand
}

// NewDropout creates a dropout layer drawing masks from rng.
func NewDropout(p float32, rng *rand.Rand) *Dropout {
	return &Dropout{P: p, rng: rng}
}

// Forward applies dropout in Train mode.
func (d *Dropout) Forward(x *tensor.Tensor, mode Mode) *tensor.Tensor {
	if mode != Train || d.P <= 0 {
		return x
	}
	shape := x.Shape()
	maskShape := shape.Clone()
	if len(shape) == 4 {
		maskShape[2], maskShape[3] = 1, 1
	}
	mask := tensor.MustNewRaw(maskShape, x.Backend().Device())
	keep := 1 / (1 - d.P)
	d.mu.Lock()
	for i := range mask.Data() {
		if d.rng.Float32() >= d.P {
			mask.Data()[i] = keep
		}
	}
	d.mu.Unlock()
	return x.Mul(tensor.New(mask, x.Backend()))
}
