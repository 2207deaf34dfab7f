package nn

import (
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
)

// Guard runs fn and turns any panic raised inside it into an error. Panics
// carrying an error are returned as is, other values are formatted.
func Guard(fn func() error) error {
	var fnErr error
	exception := exceptions.Try(func() { fnErr = fn() })
	if exception == nil {
		return fnErr
	}
	if err, ok := exception.(error); ok {
		return err
	}
	return errors.Errorf("panic: %v", exception)
}
