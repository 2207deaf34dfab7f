package data

import "github.com/pkg/errors"

var (
	// ErrFormatMismatch means the four inputs are not all of the same form, or
	// images and labels do not pair up batch by batch.
	ErrFormatMismatch = errors.New("training and test images/labels must be provided in the same format")

	// ErrInconsistentClasses means label chunks disagree on the number of classes.
	ErrInconsistentClasses = errors.New("all ground truth chunks must have the same number of classes")

	// ErrMissingBackgroundClass means the labels contain a single class.
	ErrMissingBackgroundClass = errors.New("labels must contain a class corresponding to background")

	// ErrInvalidBatchSize means a bulk array cannot be split with the requested batch size.
	ErrInvalidBatchSize = errors.New("invalid batch size")
)
