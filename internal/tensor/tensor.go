package tensor

// Tensor pairs a RawTensor with the backend that executes its operations.
//
// Example:
//
//	backend := cpu.New()
//	t := tensor.Zeros(Shape{3, 4}, backend)
//	result := t.Add(t)
type Tensor struct {
	raw     *RawTensor
	backend Backend
}

// New creates a Tensor from a RawTensor and backend.
func New(raw *RawTensor, b Backend) *Tensor {
	return &Tensor{raw: raw, backend: b}
}

// Raw returns the underlying RawTensor.
func (t *Tensor) Raw() *RawTensor { return t.raw }

// Backend returns the backend executing this tensor's operations.
func (t *Tensor) Backend() Backend { return t.backend }

// Shape returns the tensor's shape.
func (t *Tensor) Shape() Shape { return t.raw.Shape() }

// NumElements returns the total number of elements.
func (t *Tensor) NumElements() int { return t.raw.NumElements() }

// Data returns the underlying buffer.
func (t *Tensor) Data() []float32 { return t.raw.Data() }

// Item returns the single value of a one-element tensor.
func (t *Tensor) Item() float32 { return t.raw.Item() }

// Detach returns a tensor sharing the data but with a different backend, the
// usual way to evaluate without recording on a gradient tape.
func (t *Tensor) Detach(b Backend) *Tensor { return New(t.raw, b) }

func (t *Tensor) wrap(r *RawTensor) *Tensor { return New(r, t.backend) }

// Add returns t + other with broadcasting.
func (t *Tensor) Add(other *Tensor) *Tensor { return t.wrap(t.backend.Add(t.raw, other.raw)) }

// Sub returns t - other with broadcasting.
func (t *Tensor) Sub(other *Tensor) *Tensor { return t.wrap(t.backend.Sub(t.raw, other.raw)) }

// Mul returns t * other with broadcasting.
func (t *Tensor) Mul(other *Tensor) *Tensor { return t.wrap(t.backend.Mul(t.raw, other.raw)) }

// Div returns t / other with broadcasting.
func (t *Tensor) Div(other *Tensor) *Tensor { return t.wrap(t.backend.Div(t.raw, other.raw)) }

// AddScalar returns t + s.
func (t *Tensor) AddScalar(s float32) *Tensor { return t.wrap(t.backend.AddScalar(t.raw, s)) }

// MulScalar returns t * s.
func (t *Tensor) MulScalar(s float32) *Tensor { return t.wrap(t.backend.MulScalar(t.raw, s)) }

// MatMul returns the rank-2 matrix product t @ other.
func (t *Tensor) MatMul(other *Tensor) *Tensor { return t.wrap(t.backend.MatMul(t.raw, other.raw)) }

// Reshape returns a tensor with the same data and a new shape.
// A single -1 dimension is inferred.
func (t *Tensor) Reshape(shape ...int) *Tensor {
	return t.wrap(t.backend.Reshape(t.raw, inferShape(t.raw.NumElements(), shape)))
}

// Transpose permutes the axes. With no axes it reverses them.
func (t *Tensor) Transpose(axes ...int) *Tensor { return t.wrap(t.backend.Transpose(t.raw, axes...)) }

// Narrow returns length elements along dim starting at start.
func (t *Tensor) Narrow(dim, start, length int) *Tensor {
	return t.wrap(t.backend.Narrow(t.raw, dim, start, length))
}

// Exp returns e^t.
func (t *Tensor) Exp() *Tensor { return t.wrap(t.backend.Exp(t.raw)) }

// Log returns ln(t).
func (t *Tensor) Log() *Tensor { return t.wrap(t.backend.Log(t.raw)) }

// ReLU returns max(0, t).
func (t *Tensor) ReLU() *Tensor { return t.wrap(t.backend.ReLU(t.raw)) }

// LeakyReLU returns t where positive and slope*t elsewhere.
func (t *Tensor) LeakyReLU(slope float32) *Tensor { return t.wrap(t.backend.LeakyReLU(t.raw, slope)) }

// Sigmoid returns 1/(1+e^-t).
func (t *Tensor) Sigmoid() *Tensor { return t.wrap(t.backend.Sigmoid(t.raw)) }

// Tanh returns tanh(t).
func (t *Tensor) Tanh() *Tensor { return t.wrap(t.backend.Tanh(t.raw)) }

// Softmax normalizes exponentials along dim.
func (t *Tensor) Softmax(dim int) *Tensor { return t.wrap(t.backend.Softmax(t.raw, dim)) }

// Sum reduces every element to a scalar.
func (t *Tensor) Sum() *Tensor { return t.wrap(t.backend.Sum(t.raw)) }

// SumDim sums along dim, keeping it with size 1.
func (t *Tensor) SumDim(dim int) *Tensor { return t.wrap(t.backend.SumDim(t.raw, dim)) }

// Mean reduces every element to their scalar mean.
func (t *Tensor) Mean() *Tensor {
	return t.Sum().MulScalar(1 / float32(t.raw.NumElements()))
}

// Conv2D convolves an NCHW input with a [Cout, Cin, KH, KW] kernel.
func (t *Tensor) Conv2D(kernel *Tensor, p ConvParams) *Tensor {
	return t.wrap(t.backend.Conv2D(t.raw, kernel.raw, p))
}

// MaxPool2D applies max pooling over the spatial dimensions.
func (t *Tensor) MaxPool2D(kernelSize, stride int) *Tensor {
	return t.wrap(t.backend.MaxPool2D(t.raw, kernelSize, stride))
}

// Upsample2D repeats every pixel scale×scale times (nearest neighbour).
func (t *Tensor) Upsample2D(scale int) *Tensor {
	return t.wrap(t.backend.Upsample2D(t.raw, scale))
}

// Cat concatenates tensors along dim using the first tensor's backend.
func Cat(ts []*Tensor, dim int) *Tensor {
	raws := make([]*RawTensor, len(ts))
	for i, t := range ts {
		raws[i] = t.raw
	}
	return ts[0].wrap(ts[0].backend.Cat(raws, dim))
}

func inferShape(n int, shape []int) Shape {
	out := make(Shape, len(shape))
	infer, known := -1, 1
	for i, d := range shape {
		if d == -1 {
			infer = i
			continue
		}
		out[i] = d
		known *= d
	}
	if infer >= 0 && known > 0 {
		out[infer] = n / known
	}
	return out
}
