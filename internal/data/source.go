package data

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/born-ml/atomnet/internal/tensor"
)

// Form tags the shape of a Source.
type Form int

const (
	FormSequence Form = iota
	FormMapping
	FormBulk
)

// String implements fmt.Stringer.
func (f Form) String() string {
	switch f {
	case FormSequence:
		return "sequence"
	case FormMapping:
		return "mapping"
	case FormBulk:
		return "bulk"
	}
	return "unknown"
}

// Source is one of the accepted input forms: Sequence, Mapping or Bulk.
type Source interface {
	// Form returns the input form.
	Form() Form
	// Chunks returns the pre-batched arrays, splitting bulk arrays with batchSize.
	Chunks(batchSize int) ([]*tensor.RawTensor, error)
}

// Sequence is an ordered list of pre-batched arrays.
type Sequence []*tensor.RawTensor

// Form implements Source.
func (Sequence) Form() Form { return FormSequence }

// Chunks implements Source.
func (s Sequence) Chunks(int) ([]*tensor.RawTensor, error) {
	return []*tensor.RawTensor(s), nil
}

// Mapping is a keyed mapping of pre-batched arrays, visited in sorted key order.
type Mapping map[string]*tensor.RawTensor

// Form implements Source.
func (Mapping) Form() Form { return FormMapping }

// Chunks implements Source.
func (m Mapping) Chunks(int) ([]*tensor.RawTensor, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	chunks := make([]*tensor.RawTensor, len(keys))
	for i, k := range keys {
		chunks[i] = m[k]
	}
	return chunks, nil
}

// Bulk is a single array stacked along its first dimension.
type Bulk struct {
	Array *tensor.RawTensor
}

// Form implements Source.
func (Bulk) Form() Form { return FormBulk }

// Chunks splits the array into floor(n/batchSize) batches of batchSize
// samples; the remainder is discarded.
func (b Bulk) Chunks(batchSize int) ([]*tensor.RawTensor, error) {
	if b.Array == nil || b.Array.Shape().Rank() == 0 {
		return nil, errors.Wrap(ErrFormatMismatch, "bulk array must have a leading sample dimension")
	}
	n := b.Array.Shape()[0]
	if batchSize <= 0 || n < batchSize {
		return nil, errors.Wrapf(ErrInvalidBatchSize, "batch size %d for %d samples", batchSize, n)
	}
	return SplitRows(b.Array, batchSize, true), nil
}

// SplitRows splits x along its first dimension into chunks of size rows. The
// last short chunk is dropped when dropLast is set. Chunks are copies.
func SplitRows(x *tensor.RawTensor, size int, dropLast bool) []*tensor.RawTensor {
	shape := x.Shape()
	n := shape[0]
	stride := 1
	if n > 0 {
		stride = x.NumElements() / n
	}
	var chunks []*tensor.RawTensor
	for start := 0; start < n; start += size {
		end := min(start+size, n)
		if end-start < size && dropLast {
			break
		}
		chunkShape := shape.Clone()
		chunkShape[0] = end - start
		chunk := tensor.MustNewRaw(chunkShape, x.Device())
		copy(chunk.Data(), x.Data()[start*stride:end*stride])
		chunks = append(chunks, chunk)
	}
	return chunks
}
