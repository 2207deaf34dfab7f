// Package data turns user-supplied training data into uniform mini-batches.
//
// Normalize accepts images and labels as a Sequence of pre-batched arrays, a
// Mapping of them, or one Bulk array, and returns paired train and test
// datasets with the number of output classes inferred from the labels.
package data

import (
	"github.com/pkg/errors"

	"github.com/born-ml/atomnet/internal/tensor"
)

// Batch is one mini-batch of images [n,C,H,W] and labels, either [n,C,H,W]
// masks or [n,H,W] class indices.
type Batch struct {
	Images *tensor.RawTensor
	Labels *tensor.RawTensor
}

// Dataset is an ordered list of batches.
type Dataset struct {
	Batches []Batch
}

// Len returns the number of batches.
func (d Dataset) Len() int { return len(d.Batches) }

// Normalized is the result of Normalize.
type Normalized struct {
	Train Dataset
	Test  Dataset
	// NumClasses is the number of model output channels: 1 for binary labels,
	// k for k > 2 classes.
	NumClasses int
}

// Normalize validates and batches training and test data.
//
// All four sources must share a form. Bulk arrays are split into
// floor(n/batchSize) batches; pre-batched forms are used as given. The number
// of distinct label values must be the same in every label chunk; a single
// value is rejected, two values map to one output channel.
//
// Rank-3 image chunks [n,H,W] gain a channel dimension.
func Normalize(trainX, trainY, testX, testY Source, batchSize int) (*Normalized, error) {
	for _, s := range []Source{trainX, trainY, testX, testY} {
		if s == nil {
			return nil, errors.Wrap(ErrFormatMismatch, "nil source")
		}
	}
	form := trainX.Form()
	for _, s := range []Source{trainY, testX, testY} {
		if s.Form() != form {
			return nil, errors.Wrapf(ErrFormatMismatch, "got %s and %s", form, s.Form())
		}
	}

	train, err := pair(trainX, trainY, batchSize)
	if err != nil {
		return nil, errors.WithMessage(err, "training data")
	}
	test, err := pair(testX, testY, batchSize)
	if err != nil {
		return nil, errors.WithMessage(err, "test data")
	}

	counts := make(map[int]struct{})
	for _, ds := range []Dataset{train, test} {
		for _, b := range ds.Batches {
			counts[CountClasses(b.Labels)] = struct{}{}
		}
	}
	if len(counts) != 1 {
		return nil, errors.Wrapf(ErrInconsistentClasses, "found %d different class counts", len(counts))
	}
	var numClasses int
	for k := range counts {
		numClasses = k
	}
	if numClasses == 1 {
		return nil, ErrMissingBackgroundClass
	}
	if numClasses == 2 {
		numClasses = 1
	}
	return &Normalized{Train: train, Test: test, NumClasses: numClasses}, nil
}

func pair(xs, ys Source, batchSize int) (Dataset, error) {
	images, err := xs.Chunks(batchSize)
	if err != nil {
		return Dataset{}, errors.WithMessage(err, "images")
	}
	labels, err := ys.Chunks(batchSize)
	if err != nil {
		return Dataset{}, errors.WithMessage(err, "labels")
	}
	if len(images) != len(labels) {
		return Dataset{}, errors.Wrapf(ErrFormatMismatch, "%d image batches vs %d label batches", len(images), len(labels))
	}
	if len(images) == 0 {
		return Dataset{}, errors.Wrap(ErrFormatMismatch, "no batches")
	}
	ds := Dataset{Batches: make([]Batch, len(images))}
	for i := range images {
		img, lbl := images[i], labels[i]
		if img.Shape().Rank() == 3 {
			s := img.Shape()
			img = img.View(tensor.Shape{s[0], 1, s[1], s[2]})
		}
		if img.Shape().Rank() != 4 {
			return Dataset{}, errors.Wrapf(ErrFormatMismatch, "batch %d: images must be [n,C,H,W], got %v", i, img.Shape())
		}
		if r := lbl.Shape().Rank(); r != 3 && r != 4 {
			return Dataset{}, errors.Wrapf(ErrFormatMismatch, "batch %d: labels must be [n,H,W] or [n,C,H,W], got %v", i, lbl.Shape())
		}
		if img.Shape()[0] != lbl.Shape()[0] {
			return Dataset{}, errors.Wrapf(ErrFormatMismatch, "batch %d: %d images vs %d labels", i, img.Shape()[0], lbl.Shape()[0])
		}
		ds.Batches[i] = Batch{Images: img, Labels: lbl}
	}
	return ds, nil
}

// CountClasses returns the number of distinct values in labels.
func CountClasses(labels *tensor.RawTensor) int {
	seen := make(map[float32]struct{})
	for _, v := range labels.Data() {
		seen[v] = struct{}{}
	}
	return len(seen)
}
