package trainer

import "github.com/pkg/errors"

var (
	// ErrNonFiniteLoss aborts training when a train or test loss is NaN or infinite.
	ErrNonFiniteLoss = errors.New("non-finite loss")

	// ErrInvalidConfig is returned by New for an unusable configuration.
	ErrInvalidConfig = errors.New("invalid trainer configuration")

	// ErrUnsupportedDevice is returned by New for a device other than the CPU.
	ErrUnsupportedDevice = errors.New("unsupported device")
)
