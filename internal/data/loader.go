package data

import (
	"github.com/pkg/errors"

	"github.com/born-ml/atomnet/internal/tensor"
)

// Loader iterates row-major [n, d] data in order in batches of at most
// BatchSize rows. The last batch may be short.
type Loader struct {
	x         *tensor.RawTensor
	batchSize int
}

// NewLoader creates a loader over x, which must be rank 2.
func NewLoader(x *tensor.RawTensor, batchSize int) (*Loader, error) {
	if x.Shape().Rank() != 2 {
		return nil, errors.Errorf("loader expects [n, d] data, got %v", x.Shape())
	}
	if batchSize <= 0 {
		return nil, errors.Wrapf(ErrInvalidBatchSize, "batch size %d", batchSize)
	}
	return &Loader{x: x, batchSize: batchSize}, nil
}

// Len returns the number of batches.
func (l *Loader) Len() int {
	n := l.x.Shape()[0]
	return (n + l.batchSize - 1) / l.batchSize
}

// Batches returns all batches in order.
func (l *Loader) Batches() []*tensor.RawTensor {
	return SplitRows(l.x, l.batchSize, false)
}
