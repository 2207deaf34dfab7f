package models

import (
	"fmt"
	"math/rand"

	"github.com/born-ml/atomnet/internal/nn"
	"github.com/born-ml/atomnet/internal/tensor"
)

const (
	leakySlope  = 0.1
	dropoutRate = 0.3
)

// convBlock stacks nLayers 3×3 convolutions, each followed by a leaky ReLU,
// with an optional trailing channel dropout.
func convBlock(in, out, nLayers int, dropout bool, rng *rand.Rand) *nn.Sequential {
	var layers []nn.Module
	for i := 0; i < nLayers; i++ {
		c := in
		if i > 0 {
			c = out
		}
		layers = append(layers, nn.NewConv2D(c, out, 3, nn.SamePadding(3, 1), true, rng), nn.NewLeakyReLU(leakySlope))
	}
	if dropout {
		layers = append(layers, nn.NewDropout(dropoutRate, rng))
	}
	return nn.NewSequential(layers...)
}

// dilatedBlock runs 3×3 convolutions of increasing dilation in series and
// returns the sum of their activations.
type dilatedBlock struct {
	convs   []*nn.Conv2D
	dropout *nn.Dropout
}

func newDilatedBlock(in, out int, dilations []int, dropout bool, rng *rand.Rand) *dilatedBlock {
	b := &dilatedBlock{}
	for i, d := range dilations {
		c := in
		if i > 0 {
			c = out
		}
		conv := nn.NewConv2D(c, out, 3, nn.SamePadding(3, d), true, rng)
		nn.PrefixParameters(fmt.Sprintf("%d", i), conv)
		b.convs = append(b.convs, conv)
	}
	if dropout {
		b.dropout = nn.NewDropout(dropoutRate, rng)
	}
	return b
}

func (b *dilatedBlock) Forward(x *tensor.Tensor, mode nn.Mode) *tensor.Tensor {
	var sum *tensor.Tensor
	for _, conv := range b.convs {
		x = conv.Forward(x, mode).LeakyReLU(leakySlope)
		if sum == nil {
			sum = x
		} else {
			sum = sum.Add(x)
		}
	}
	if b.dropout != nil {
		sum = b.dropout.Forward(sum, mode)
	}
	return sum
}

func (b *dilatedBlock) Parameters() []*nn.Parameter {
	var params []*nn.Parameter
	for _, c := range b.convs {
		params = append(params, c.Parameters()...)
	}
	return params
}

// named is a sub-module registered under a name by its container.
type named struct {
	name string
	m    nn.Module
}

// container is the shared bookkeeping of the backbones: named children with
// prefixed parameters and forward hooks.
type container struct {
	nn.Hooks
	children []named
}

func (c *container) add(name string, m nn.Module) nn.Module {
	nn.PrefixParameters(name, m)
	c.children = append(c.children, named{name, m})
	return m
}

// run forwards x through the child registered as name and emits the output.
func (c *container) run(m nn.Module, name string, x *tensor.Tensor, mode nn.Mode) *tensor.Tensor {
	out := m.Forward(x, mode)
	c.Emit(name, out)
	return out
}

// Parameters returns the parameters of all children in registration order.
func (c *container) Parameters() []*nn.Parameter {
	var params []*nn.Parameter
	for _, ch := range c.children {
		params = append(params, ch.m.Parameters()...)
	}
	return params
}

// Layers returns the children in registration order.
func (c *container) Layers() []nn.Module {
	layers := make([]nn.Module, len(c.children))
	for i, ch := range c.children {
		layers[i] = ch.m
	}
	return layers
}
