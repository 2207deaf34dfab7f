package models

import (
	"math/rand"

	"github.com/born-ml/atomnet/internal/nn"
	"github.com/born-ml/atomnet/internal/tensor"
)

// Config configures a segmentation backbone.
type Config struct {
	// InChannels is the number of image channels (default 1).
	InChannels int
	// Filters is the width of the first block, doubled in each deeper block
	// (default 16 for Unet, 25 for Dilnet).
	Filters int
	// Layers is the number of convolutions per encoder block, bottleneck
	// last (default [1, 2, 2, 3] for Unet, [1, 3, 3, 3] for Dilnet).
	Layers []int
	// WithDilation replaces the Unet bottleneck with a dilated block.
	WithDilation bool
	// Dropout adds channel dropout to the inner blocks.
	Dropout bool
	// Seed seeds weight initialization and dropout masks.
	Seed int64
}

func (c Config) withDefaults(filters int, layers []int) Config {
	if c.InChannels == 0 {
		c.InChannels = 1
	}
	if c.Filters == 0 {
		c.Filters = filters
	}
	if len(c.Layers) < 4 {
		c.Layers = layers
	}
	return c
}

// Unet is a 3-level encoder/decoder with skip connections. Each 2× max-pool
// in the encoder is mirrored by a 2× nearest upsampling and a concatenation
// with the encoder output of the same resolution.
type Unet struct {
	container
	numClasses int

	c1, c2, c3, bn, up1, up2, up3, u3, u2, u1, px nn.Module
	pool                                          *nn.MaxPool2D
}

// NewUnet creates a Unet with numClasses output channels.
func NewUnet(numClasses int, cfg Config) *Unet {
	cfg = cfg.withDefaults(16, []int{1, 2, 2, 3})
	rng := rand.New(rand.NewSource(cfg.Seed))
	f, l := cfg.Filters, cfg.Layers
	u := &Unet{numClasses: numClasses, pool: nn.NewMaxPool2D(2, 2)}

	u.c1 = u.add("c1", convBlock(cfg.InChannels, f, l[0], false, rng))
	u.c2 = u.add("c2", convBlock(f, 2*f, l[1], false, rng))
	u.c3 = u.add("c3", convBlock(2*f, 4*f, l[2], cfg.Dropout, rng))
	if cfg.WithDilation {
		u.bn = u.add("bn", newDilatedBlock(4*f, 8*f, []int{2, 4, 6}, cfg.Dropout, rng))
	} else {
		u.bn = u.add("bn", convBlock(4*f, 8*f, l[3], cfg.Dropout, rng))
	}
	u.up3 = u.add("upsample_block1", upsampleBlock(8*f, 4*f, rng))
	u.u3 = u.add("c4", convBlock(8*f, 4*f, l[2], cfg.Dropout, rng))
	u.up2 = u.add("upsample_block2", upsampleBlock(4*f, 2*f, rng))
	u.u2 = u.add("c5", convBlock(4*f, 2*f, l[1], false, rng))
	u.up1 = u.add("upsample_block3", upsampleBlock(2*f, f, rng))
	u.u1 = u.add("c6", convBlock(2*f, f, l[0], false, rng))
	u.px = u.add("px", nn.NewConv2D(f, numClasses, 1, tensor.DefaultConvParams(), true, rng))
	return u
}

// upsampleBlock doubles the spatial size and projects to out channels.
func upsampleBlock(in, out int, rng *rand.Rand) *nn.Sequential {
	return nn.NewSequential(nn.NewUpsample(2), nn.NewConv2D(in, out, 1, tensor.DefaultConvParams(), true, rng))
}

// Forward maps images [N,C,H,W] to logits [N,numClasses,H,W]. H and W must be
// multiples of 8.
func (u *Unet) Forward(x *tensor.Tensor, mode nn.Mode) *tensor.Tensor {
	c1 := u.run(u.c1, "c1", x, mode)
	d1 := u.run(u.pool, "d1", c1, mode)
	c2 := u.run(u.c2, "c2", d1, mode)
	d2 := u.run(u.pool, "d2", c2, mode)
	c3 := u.run(u.c3, "c3", d2, mode)
	d3 := u.run(u.pool, "d3", c3, mode)
	bn := u.run(u.bn, "bn", d3, mode)

	up3 := u.run(u.up3, "upsample_block1", bn, mode)
	u3 := u.run(u.u3, "c4", tensor.Cat([]*tensor.Tensor{c3, up3}, 1), mode)
	up2 := u.run(u.up2, "upsample_block2", u3, mode)
	u2 := u.run(u.u2, "c5", tensor.Cat([]*tensor.Tensor{c2, up2}, 1), mode)
	up1 := u.run(u.up1, "upsample_block3", u2, mode)
	u1 := u.run(u.u1, "c6", tensor.Cat([]*tensor.Tensor{c1, up1}, 1), mode)
	return u.run(u.px, "px", u1, mode)
}

// NumClasses returns the number of output channels.
func (u *Unet) NumClasses() int { return u.numClasses }
