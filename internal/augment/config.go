package augment

import (
	"math/rand"

	"github.com/pkg/errors"

	"github.com/born-ml/atomnet/internal/parameters"
	"github.com/born-ml/atomnet/internal/tensor"
)

// CustomFunc is a user transform applied before all built-in transforms. It
// receives images [N,C,H,W] and labels [N,C,H,W] and returns replacements of
// the same shapes.
type CustomFunc func(images, labels *tensor.RawTensor, rng *rand.Rand) (*tensor.RawTensor, *tensor.RawTensor)

// Config selects the transforms of a Pipeline. A nil range or a false flag
// disables the transform. Ranges are [min, max] and a value is drawn
// uniformly from them per image.
type Config struct {
	Custom CustomFunc

	// Zoom crops a random window of 1/z of each side, z in [1, 1.5), and
	// resizes it back.
	Zoom bool
	// GaussNoise adds Gaussian noise of variance v·1e-4.
	GaussNoise []float64
	// Jitter shifts each image row horizontally by N(0, s) pixels.
	Jitter []float64
	// PoissonNoise replaces x by Poisson(x·λ)/λ.
	PoissonNoise []float64
	// Contrast applies the gamma correction x^γ.
	Contrast []float64
	// SaltAndPepper sets a fraction p/100 of the pixels to 0 or 1.
	SaltAndPepper []float64
	// Blur applies a Gaussian filter of standard deviation σ pixels.
	Blur []float64
	// Resize rescales each image by f and back to its size.
	Resize []float64
	// Rotation applies a random flip and, for square images, a random
	// multiple of 90°.
	Rotation bool
	// Background adds a smooth random background.
	Background bool
}

// Default ranges used when a transform is enabled without explicit values.
var (
	DefaultGaussNoise    = []float64{20, 60}
	DefaultJitter        = []float64{0, 1.5}
	DefaultPoissonNoise  = []float64{30, 40}
	DefaultContrast      = []float64{0.5, 1.5}
	DefaultSaltAndPepper = []float64{1, 10}
	DefaultBlur          = []float64{0.5, 2}
	DefaultResize        = []float64{0.5, 1}
)

// Empty reports whether no transform is configured.
func (c Config) Empty() bool {
	return c.Custom == nil && !c.Zoom && !c.Rotation && !c.Background &&
		c.GaussNoise == nil && c.Jitter == nil && c.PoissonNoise == nil &&
		c.Contrast == nil && c.SaltAndPepper == nil && c.Blur == nil && c.Resize == nil
}

// ParseConfig builds a Config from a configuration string such as
// "zoom,gauss_noise=20;60,rotation,blur". Range keys given without a value
// take their default range. Unknown keys are an error.
func ParseConfig(config string) (Config, error) {
	var cfg Config
	params := parameters.NewFromConfigString(config)
	var err error
	flags := []struct {
		key string
		dst *bool
	}{
		{"zoom", &cfg.Zoom},
		{"rotation", &cfg.Rotation},
		{"background", &cfg.Background},
	}
	for _, f := range flags {
		if *f.dst, err = parameters.PopParamOr(params, f.key, false); err != nil {
			return cfg, errors.WithMessage(err, "augmentation config")
		}
	}
	ranges := []struct {
		key string
		def []float64
		dst *[]float64
	}{
		{"gauss_noise", DefaultGaussNoise, &cfg.GaussNoise},
		{"jitter", DefaultJitter, &cfg.Jitter},
		{"poisson_noise", DefaultPoissonNoise, &cfg.PoissonNoise},
		{"contrast", DefaultContrast, &cfg.Contrast},
		{"salt_and_pepper", DefaultSaltAndPepper, &cfg.SaltAndPepper},
		{"blur", DefaultBlur, &cfg.Blur},
		{"resize", DefaultResize, &cfg.Resize},
	}
	for _, r := range ranges {
		values, ok, err := parameters.PopFloatsOr(params, r.key, r.def)
		if err != nil {
			return cfg, errors.WithMessage(err, "augmentation config")
		}
		if !ok {
			continue
		}
		if len(values) != 2 || values[0] > values[1] {
			return cfg, errors.Errorf("augmentation config: %s needs a [min;max] range, got %v", r.key, values)
		}
		*r.dst = values
	}
	if err := parameters.CheckEmpty(params); err != nil {
		return cfg, errors.WithMessage(err, "augmentation config")
	}
	return cfg, nil
}
