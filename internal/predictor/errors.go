package predictor

import "github.com/pkg/errors"

var (
	// ErrInvalidInputShape is returned by Predict for images that are not
	// [H,W], [N,H,W] or [N,1,H,W].
	ErrInvalidInputShape = errors.New("invalid input shape")

	// ErrModelIntrospectionFailed means the number of classes or the
	// downsampling factor could neither be inferred from the model nor was
	// supplied.
	ErrModelIntrospectionFailed = errors.New("model introspection failed")
)
