package trainer

import (
	"github.com/born-ml/atomnet/internal/augment"
	"github.com/born-ml/atomnet/internal/loss"
	"github.com/born-ml/atomnet/internal/optim"
	"github.com/born-ml/atomnet/internal/tensor"
)

// PerturbConfig controls periodic weight perturbation: every Period cycles
// (never on the first) each weight receives Gaussian noise of standard
// deviation A/(1+e)^Gamma.
type PerturbConfig struct {
	Enabled bool
	A       float64 // default 0.01
	Gamma   float64 // default 1.5
	Period  int     // default 20
}

// Config configures a Trainer. Zero fields take the defaults of DefaultConfig.
type Config struct {
	// Loss is the training objective (default loss.CE).
	Loss loss.Kind
	// Optimizer updates the model parameters. If nil, Adam with learning
	// rate LR is created over the model parameters.
	Optimizer optim.Optimizer
	// LR is the learning rate of the default optimizer (default 1e-3).
	LR float32

	// TrainingCycles is the number of cycles. A cycle is one mini-batch, or
	// every mini-batch with FullEpoch.
	TrainingCycles int
	// BatchSize caps the number of samples used from each batch; 0 uses
	// all of them.
	BatchSize int
	FullEpoch bool

	// SWA averages the weights of the cycles from SWAStart·TrainingCycles
	// on and installs the average at the end of training.
	SWA      bool
	SWAStart float64 // default 0.75

	Perturb PerturbConfig

	// ComputeAccuracy logs the mean IoU of the thresholded test prediction.
	ComputeAccuracy bool
	// PrintLoss logs progress on the first cycle and every PrintLoss-th
	// cycle (default 100).
	PrintLoss int
	// Filename is the prefix of the checkpoint files (default "model").
	Filename string
	// ModelType is recorded in checkpoint headers (default "custom").
	ModelType string

	// Augment transforms every training batch; nil disables augmentation.
	Augment *augment.Pipeline
	// Seed seeds batch selection, augmentation and perturbation.
	Seed int64
	// Device holds the parameters during training; only tensor.CPU is served.
	Device tensor.Device
}

// DefaultConfig returns the configuration defaults.
func DefaultConfig() Config {
	return Config{
		Loss:           loss.CE,
		LR:             1e-3,
		TrainingCycles: 1000,
		SWAStart:       0.75,
		Perturb:        PerturbConfig{A: 0.01, Gamma: 1.5, Period: 20},
		PrintLoss:      100,
		Filename:       "model",
		ModelType:      "custom",
		Device:         tensor.CPU,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Loss == "" {
		c.Loss = def.Loss
	}
	if c.LR == 0 {
		c.LR = def.LR
	}
	if c.SWAStart == 0 {
		c.SWAStart = def.SWAStart
	}
	if c.Perturb.A == 0 {
		c.Perturb.A = def.Perturb.A
	}
	if c.Perturb.Gamma == 0 {
		c.Perturb.Gamma = def.Perturb.Gamma
	}
	if c.Perturb.Period == 0 {
		c.Perturb.Period = def.Perturb.Period
	}
	if c.PrintLoss == 0 {
		c.PrintLoss = def.PrintLoss
	}
	if c.Filename == "" {
		c.Filename = def.Filename
	}
	if c.ModelType == "" {
		c.ModelType = def.ModelType
	}
	return c
}

// BestPath returns the path of the best-test-loss checkpoint.
func (c Config) BestPath() string { return c.withDefaults().Filename + "_test_weights_best.born" }

// FinalPath returns the path of the final checkpoint.
func (c Config) FinalPath() string { return c.withDefaults().Filename + "_weights_final.born" }
