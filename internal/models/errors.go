package models

import "github.com/pkg/errors"

// ErrUnsupportedModelType is returned for a model name other than "unet" or "dilnet".
var ErrUnsupportedModelType = errors.New("unsupported model type: currently implemented models are 'unet' and 'dilnet'")
