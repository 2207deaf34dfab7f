package optim

import "github.com/pkg/errors"

// ErrUnknownOptimizer is returned by New for an unsupported optimizer name.
var ErrUnknownOptimizer = errors.New("unknown optimizer")
