// Package predictor applies a trained segmentation model to image stacks.
//
// A Predictor pads images to the model's downsampling factor, runs them as
// one batch or one image at a time depending on the stack size, converts the
// logits to per-class probabilities in [N,H,W,C] layout and optionally
// extracts object coordinates.
package predictor

import (
	"context"
	"math"
	"time"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/born-ml/atomnet/internal/augment"
	"github.com/born-ml/atomnet/internal/backend/cpu"
	"github.com/born-ml/atomnet/internal/locator"
	"github.com/born-ml/atomnet/internal/loss"
	"github.com/born-ml/atomnet/internal/nn"
	"github.com/born-ml/atomnet/internal/tensor"
)

// TilingMode selects how a stack is split into forward passes.
type TilingMode int

const (
	// TilingAuto runs the stack as one batch if it has fewer than 20 images
	// and both sides are below 512 pixels, and image by image otherwise.
	TilingAuto TilingMode = iota
	// TilingBatch always runs one batch.
	TilingBatch
	// TilingPerSample always runs one image at a time.
	TilingPerSample
)

// Auto tiling limits.
const (
	maxBatchImages = 20
	maxBatchSide   = 512
)

// Config configures a Predictor.
type Config struct {
	// ResizeTo resizes images to [H, W] before inference; zero keeps the size.
	ResizeTo [2]int
	// NumClasses and Downsampling override introspection when positive.
	// Models that do not implement nn.Observable must set both.
	NumClasses   int
	Downsampling int
	// ProbeSize is the side of the dummy image used for introspection
	// (default 64).
	ProbeSize int

	UseLocator bool
	Locator    locator.Config

	// Logits returns the raw network output instead of probabilities.
	Logits bool

	ForceTiling TilingMode
}

// Result of Predict.
type Result struct {
	// Images are the (resized) inputs as [N,H,W,1].
	Images *tensor.RawTensor
	// Probabilities are [N,H,W,C], cropped to the input size.
	Probabilities *tensor.RawTensor
	// Coordinates are set with Config.UseLocator.
	Coordinates map[int][]locator.Coordinate
}

// Predictor runs inference with a model it does not own; parameters are
// never modified.
type Predictor struct {
	model        nn.Module
	cfg          Config
	backend      *cpu.CPUBackend
	numClasses   int
	downsampling int
}

// New creates a Predictor, probing model for its number of output classes
// and downsampling factor unless both are configured.
func New(model nn.Module, cfg Config) (*Predictor, error) {
	if model == nil {
		return nil, errors.Wrap(ErrModelIntrospectionFailed, "nil model")
	}
	if cfg.ProbeSize == 0 {
		cfg.ProbeSize = 64
	}
	p := &Predictor{
		model:        model,
		cfg:          cfg,
		backend:      cpu.New(),
		numClasses:   cfg.NumClasses,
		downsampling: cfg.Downsampling,
	}
	if p.numClasses > 0 && p.downsampling > 0 {
		return p, nil
	}
	obs, ok := model.(nn.Observable)
	if !ok {
		return nil, errors.Wrap(ErrModelIntrospectionFailed,
			"model has no observable layers: set both NumClasses and Downsampling")
	}
	var shapes []nn.LayerShape
	err := nn.Guard(func() error {
		probe := tensor.Zeros(tensor.Shape{1, 1, cfg.ProbeSize, cfg.ProbeSize}, p.backend)
		var err error
		shapes, err = nn.ProbeShapes(obs, probe)
		return err
	})
	if err != nil {
		return nil, errors.Wrapf(ErrModelIntrospectionFailed, "probe forward pass: %v", err)
	}
	classes, factor, err := inspect(shapes)
	if err != nil {
		return nil, err
	}
	if p.numClasses <= 0 {
		p.numClasses = classes
	}
	if p.downsampling <= 0 {
		p.downsampling = factor
	}
	klog.V(1).Infof("predictor: %d classes, downsampling factor %d (%d probed layers)", p.numClasses, p.downsampling, len(shapes))
	return p, nil
}

// inspect derives the class count from the last observed output and the
// downsampling factor from the ratio of the largest and smallest side.
func inspect(shapes []nn.LayerShape) (int, int, error) {
	minSide, maxSide := math.MaxInt, 0
	for _, s := range shapes {
		if s.Shape.Rank() != 4 {
			continue
		}
		side := s.Shape[3]
		minSide, maxSide = min(minSide, side), max(maxSide, side)
	}
	last := shapes[len(shapes)-1].Shape
	if last.Rank() != 4 || maxSide == 0 || minSide == 0 {
		return 0, 0, errors.Wrapf(ErrModelIntrospectionFailed, "last layer output %v is not [N,C,H,W]", last)
	}
	factor := int(math.Ceil(float64(maxSide) / float64(minSide)))
	return last[1], factor, nil
}

// NumClasses returns the number of output channels.
func (p *Predictor) NumClasses() int { return p.numClasses }

// Downsampling returns the factor image sides are padded to.
func (p *Predictor) Downsampling() int { return p.downsampling }

// Predict runs the model on images of shape [H,W], [N,H,W] or [N,1,H,W].
func (p *Predictor) Predict(ctx context.Context, images *tensor.RawTensor) (*Result, error) {
	stack, err := toStack(images)
	if err != nil {
		return nil, err
	}
	if rs := p.cfg.ResizeTo; rs[0] > 0 && rs[1] > 0 {
		stack = augment.Resize(stack, rs[0], rs[1], false)
	}
	start := time.Now()
	var result *Result
	err = nn.Guard(func() error {
		var err error
		result, err = p.run(ctx, stack)
		return err
	})
	if err != nil {
		return nil, err
	}
	n := stack.Shape()[0]
	if n == 1 {
		klog.Infof("1 image was decoded in approximately %.4f seconds", time.Since(start).Seconds())
	} else {
		klog.Infof("%d images were decoded in approximately %.4f seconds", n, time.Since(start).Seconds())
	}

	if p.cfg.UseLocator {
		locCfg := p.cfg.Locator
		if locCfg.Source == nil {
			locCfg.Source = result.Images
		}
		result.Coordinates, err = locator.Locate(result.Probabilities, locCfg)
		if err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (p *Predictor) run(ctx context.Context, stack *tensor.RawTensor) (*Result, error) {
	s := stack.Shape()
	n, h, w := s[0], s[2], s[3]
	padded := padEdges(stack, p.downsampling)
	ph, pw := padded.Shape()[2], padded.Shape()[3]

	perSample := false
	switch p.cfg.ForceTiling {
	case TilingPerSample:
		perSample = true
	case TilingAuto:
		perSample = !(n < maxBatchImages && min(ph, pw) < maxBatchSide)
	}
	chunk := n
	if perSample {
		chunk = 1
	}

	probs := tensor.MustNewRaw(tensor.Shape{n, h, w, p.numClasses}, tensor.CPU)
	for i, images := range splitBatch(padded, chunk) {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrapf(err, "inference interrupted at image %d", i*chunk)
		}
		out := p.forward(images)
		if c := out.Shape()[1]; c != p.numClasses {
			return nil, errors.Wrapf(ErrModelIntrospectionFailed, "model produced %d channels, expected %d", c, p.numClasses)
		}
		toNHWC(out, probs, i*chunk, h, w)
	}
	return &Result{Images: stack.View(tensor.Shape{n, h, w, 1}), Probabilities: probs}, nil
}

// forward runs one Eval-mode pass and applies the output activation.
func (p *Predictor) forward(images *tensor.RawTensor) *tensor.RawTensor {
	out := p.model.Forward(tensor.New(images, p.backend), nn.Eval)
	if p.cfg.Logits {
		return out.Raw()
	}
	return loss.Activate(out, out.Shape()[1]).Raw()
}

func toStack(images *tensor.RawTensor) (*tensor.RawTensor, error) {
	s := images.Shape()
	switch {
	case s.Rank() == 2:
		return images.Clone().View(tensor.Shape{1, 1, s[0], s[1]}), nil
	case s.Rank() == 3:
		return images.Clone().View(tensor.Shape{s[0], 1, s[1], s[2]}), nil
	case s.Rank() == 4 && s[1] == 1:
		return images.Clone(), nil
	}
	return nil, errors.Wrapf(ErrInvalidInputShape, "expected [H,W], [N,H,W] or [N,1,H,W] images, got %v", s)
}

// padEdges pads the bottom and right of x [N,1,H,W] to multiples of factor by
// replicating the last row and column.
func padEdges(x *tensor.RawTensor, factor int) *tensor.RawTensor {
	s := x.Shape()
	n, h, w := s[0], s[2], s[3]
	ph := (h + factor - 1) / factor * factor
	pw := (w + factor - 1) / factor * factor
	if ph == h && pw == w {
		return x
	}
	out := tensor.MustNewRaw(tensor.Shape{n, 1, ph, pw}, x.Device())
	src, dst := x.Data(), out.Data()
	for b := 0; b < n; b++ {
		for y := 0; y < ph; y++ {
			sy := min(y, h-1)
			for xx := 0; xx < pw; xx++ {
				dst[(b*ph+y)*pw+xx] = src[(b*h+sy)*w+min(xx, w-1)]
			}
		}
	}
	return out
}

func splitBatch(x *tensor.RawTensor, size int) []*tensor.RawTensor {
	s := x.Shape()
	stride := s.NumElements() / s[0]
	var out []*tensor.RawTensor
	for start := 0; start < s[0]; start += size {
		end := min(start+size, s[0])
		shape := s.Clone()
		shape[0] = end - start
		out = append(out, tensor.Wrap(x.Data()[start*stride:end*stride], shape, x.Device()))
	}
	return out
}

// toNHWC crops out [b,C,H',W'] to h×w and writes it at sample offset into
// dst [N,h,w,C].
func toNHWC(out, dst *tensor.RawTensor, offset, h, w int) {
	s := out.Shape()
	b, c, oh, ow := s[0], s[1], s[2], s[3]
	src, d := out.Data(), dst.Data()
	for i := 0; i < b; i++ {
		for ch := 0; ch < c; ch++ {
			for y := 0; y < min(h, oh); y++ {
				for x := 0; x < min(w, ow); x++ {
					d[(((offset+i)*h+y)*w+x)*c+ch] = src[((i*c+ch)*oh+y)*ow+x]
				}
			}
		}
	}
}
