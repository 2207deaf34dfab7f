package dklgp

import (
	"github.com/born-ml/atomnet/internal/gp"
	"github.com/born-ml/atomnet/internal/nn"
)

// Config describes the structure of a Regressor.
type Config struct {
	// CorrelatedOutput evaluates all output heads jointly over one embedding.
	// It requires SharedEmbedding.
	CorrelatedOutput bool
	// SharedEmbedding uses one feature extractor for all outputs, otherwise
	// every output gets its own.
	SharedEmbedding bool
	// HiddenDims are the widths of the default extractor (default [1000, 500, 50]).
	HiddenDims []int
	// Seed seeds extractor initialization and posterior sampling.
	Seed     int64
	Settings gp.Settings
}

// DefaultConfig returns a correlated, shared-embedding configuration.
func DefaultConfig() Config {
	return Config{
		CorrelatedOutput: true,
		SharedEmbedding:  true,
		Settings:         gp.DefaultSettings(),
	}
}

// FitConfig configures Fit.
type FitConfig struct {
	TrainingCycles int
	// LR is the Adam learning rate (default 0.01).
	LR float64
	// PrintLoss logs the loss every PrintLoss cycles (default 10).
	PrintLoss int
	// FeatureExtractor replaces the default extractor when the model has a
	// single one.
	FeatureExtractor nn.Module
	// FeatureExtractors replace the default extractors, one per output, when
	// the embedding is not shared.
	FeatureExtractors []nn.Module
	// FreezeWeights trains only the GP hyperparameters.
	FreezeWeights bool
}

func (c FitConfig) withDefaults() FitConfig {
	if c.TrainingCycles == 0 {
		c.TrainingCycles = 1
	}
	if c.LR == 0 {
		c.LR = 0.01
	}
	if c.PrintLoss == 0 {
		c.PrintLoss = 10
	}
	return c
}
