package dklgp

import "github.com/pkg/errors"

var (
	// ErrInvalidConfig is returned for inconsistent model or fit settings.
	ErrInvalidConfig = errors.New("invalid dkl-gp configuration")

	// ErrUnsupportedMode is returned by Decode for models without a shared
	// embedding space with correlated outputs.
	ErrUnsupportedMode = errors.New("operation not supported in this output mode")

	// ErrNotFitted is returned by queries on a model that was neither fitted
	// nor loaded.
	ErrNotFitted = errors.New("dkl-gp model is not fitted")

	// ErrNonFiniteLoss aborts Fit when the marginal log likelihood is NaN or
	// infinite.
	ErrNonFiniteLoss = errors.New("non-finite loss")
)
