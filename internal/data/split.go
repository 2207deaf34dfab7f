package data

import (
	"math/rand"

	"github.com/pkg/errors"

	"github.com/born-ml/atomnet/internal/tensor"
)

// DefaultTestFraction is the share of samples Split holds out.
const DefaultTestFraction = 0.15

// Split shuffles paired images and labels with seed and holds out
// round(testFraction·n) samples, at least one, as a test set.
func Split(images, labels *tensor.RawTensor, testFraction float64, seed int64) (trainX, trainY, testX, testY *tensor.RawTensor, err error) {
	if images.Shape().Rank() == 0 || labels.Shape().Rank() == 0 {
		return nil, nil, nil, nil, errors.Wrap(ErrFormatMismatch, "split needs a leading sample dimension")
	}
	n := images.Shape()[0]
	if labels.Shape()[0] != n {
		return nil, nil, nil, nil, errors.Errorf("%d images but %d labels", n, labels.Shape()[0])
	}
	if testFraction <= 0 || testFraction >= 1 {
		return nil, nil, nil, nil, errors.Errorf("test fraction %v outside (0, 1)", testFraction)
	}
	nTest := max(int(testFraction*float64(n)+0.5), 1)
	if nTest >= n {
		return nil, nil, nil, nil, errors.Wrapf(ErrInvalidBatchSize, "%d samples are too few to hold out %d", n, nTest)
	}
	perm := rand.New(rand.NewSource(seed)).Perm(n)
	testX, testY = gather(images, perm[:nTest]), gather(labels, perm[:nTest])
	trainX, trainY = gather(images, perm[nTest:]), gather(labels, perm[nTest:])
	return trainX, trainY, testX, testY, nil
}

// gather copies the rows idx of x.
func gather(x *tensor.RawTensor, idx []int) *tensor.RawTensor {
	shape := x.Shape().Clone()
	stride := x.NumElements() / shape[0]
	shape[0] = len(idx)
	out := tensor.MustNewRaw(shape, x.Device())
	for i, row := range idx {
		copy(out.Data()[i*stride:(i+1)*stride], x.Data()[row*stride:(row+1)*stride])
	}
	return out
}
