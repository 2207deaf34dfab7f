package nn

import (
	"math/rand"

	"github.com/born-ml/atomnet/internal/tensor"
)

// Conv2D is a 2D convolution layer over NCHW inputs.
//
//	out = conv(x, weight) + bias
//
// Weight shape is [out_channels, in_channels, k, k]; bias shape is [out_channels].
type Conv2D struct {
	inChannels, outChannels, kernelSize int
	params                              tensor.ConvParams

	weight *Parameter
	bias   *Parameter
}

// NewConv2D creates a Conv2D layer with Kaiming-initialized weights and zero
// bias. Pass useBias=false for layers followed by a normalization.
func NewConv2D(inChannels, outChannels, kernelSize int, p tensor.ConvParams, useBias bool, rng *rand.Rand) *Conv2D {
	fanIn := inChannels * kernelSize * kernelSize
	c := &Conv2D{
		inChannels:  inChannels,
		outChannels: outChannels,
		kernelSize:  kernelSize,
		params:      p,
		weight:      NewParameter("weight", Kaiming(fanIn, tensor.Shape{outChannels, inChannels, kernelSize, kernelSize}, rng)),
	}
	if useBias {
		c.bias = NewParameter("bias", Zeros(tensor.Shape{outChannels}))
	}
	return c
}

// SamePadding returns convolution parameters that keep H and W unchanged for
// an odd kernel size and the given dilation.
func SamePadding(kernelSize, dilation int) tensor.ConvParams {
	return tensor.ConvParams{Stride: 1, Padding: dilation * (kernelSize - 1) / 2, Dilation: dilation}
}

// Forward applies the convolution.
func (c *Conv2D) Forward(x *tensor.Tensor, _ Mode) *tensor.Tensor {
	b := x.Backend()
	out := x.Conv2D(c.weight.Tensor(b), c.params)
	if c.bias != nil {
		out = out.Add(c.bias.Tensor(b).Reshape(1, c.outChannels, 1, 1))
	}
	return out
}

// Parameters returns weight and, if present, bias.
func (c *Conv2D) Parameters() []*Parameter {
	if c.bias == nil {
		return []*Parameter{c.weight}
	}
	return []*Parameter{c.weight, c.bias}
}

// Weight returns the kernel parameter.
func (c *Conv2D) Weight() *Parameter { return c.weight }

// OutChannels returns the number of output channels.
func (c *Conv2D) OutChannels() int { return c.outChannels }
