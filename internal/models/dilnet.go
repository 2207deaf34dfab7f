package models

import (
	"math/rand"

	"github.com/born-ml/atomnet/internal/nn"
	"github.com/born-ml/atomnet/internal/tensor"
)

// Dilnet keeps most of the computation at half resolution in two dilated
// blocks, which widens the receptive field without further pooling.
type Dilnet struct {
	container
	numClasses int

	c1, at1, at2, up, c2, px nn.Module
	pool                     *nn.MaxPool2D
}

// NewDilnet creates a Dilnet with numClasses output channels.
func NewDilnet(numClasses int, cfg Config) *Dilnet {
	cfg = cfg.withDefaults(25, []int{1, 3, 3, 3})
	rng := rand.New(rand.NewSource(cfg.Seed))
	f, l := cfg.Filters, cfg.Layers
	d := &Dilnet{numClasses: numClasses, pool: nn.NewMaxPool2D(2, 2)}

	d.c1 = d.add("c1", convBlock(cfg.InChannels, f, l[0], false, rng))
	d.at1 = d.add("at1", newDilatedBlock(f, 2*f, dilationRange(l[1]), cfg.Dropout, rng))
	d.at2 = d.add("at2", newDilatedBlock(2*f, 2*f, dilationRange(l[2]), cfg.Dropout, rng))
	d.up = d.add("up1", upsampleBlock(2*f, f, rng))
	d.c2 = d.add("c2", convBlock(2*f, f, l[3], false, rng))
	d.px = d.add("px", nn.NewConv2D(f, numClasses, 1, tensor.DefaultConvParams(), true, rng))
	return d
}

// dilationRange returns the dilations 2, 4, ..., 2n.
func dilationRange(n int) []int {
	d := make([]int, n)
	for i := range d {
		d[i] = 2 * (i + 1)
	}
	return d
}

// Forward maps images [N,C,H,W] to logits [N,numClasses,H,W]. H and W must be
// even.
func (d *Dilnet) Forward(x *tensor.Tensor, mode nn.Mode) *tensor.Tensor {
	c1 := d.run(d.c1, "c1", x, mode)
	d1 := d.run(d.pool, "d1", c1, mode)
	at1 := d.run(d.at1, "at1", d1, mode)
	at2 := d.run(d.at2, "at2", at1, mode)
	up := d.run(d.up, "up1", at2, mode)
	c2 := d.run(d.c2, "c2", tensor.Cat([]*tensor.Tensor{c1, up}, 1), mode)
	return d.run(d.px, "px", c2, mode)
}

// NumClasses returns the number of output channels.
func (d *Dilnet) NumClasses() int { return d.numClasses }
