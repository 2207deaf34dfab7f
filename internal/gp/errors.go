package gp

import "github.com/pkg/errors"

var (
	// ErrNoTrainingData is returned by operations that need SetTrainData first.
	ErrNoTrainingData = errors.New("gp has no training data")

	// ErrNotPositiveDefinite means a covariance matrix could not be factorized,
	// even after adding jitter.
	ErrNotPositiveDefinite = errors.New("covariance matrix is not positive definite")
)
