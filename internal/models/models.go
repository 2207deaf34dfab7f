// Package models provides the segmentation backbones (Unet, Dilnet) and the
// fully connected feature extractor used by deep kernel learning.
//
// Backbones implement nn.Observable: every sub-block output is emitted to an
// installed hook, which lets the predictor infer the number of classes and
// the downsampling factor of a model it did not build.
package models

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/born-ml/atomnet/internal/nn"
)

// ModelType names a built-in segmentation backbone.
type ModelType string

// Built-in backbones.
const (
	TypeUnet   ModelType = "unet"
	TypeDilnet ModelType = "dilnet"
)

// ParseModelType parses a model name, case-insensitively.
func ParseModelType(s string) (ModelType, error) {
	switch t := ModelType(strings.ToLower(s)); t {
	case TypeUnet, TypeDilnet:
		return t, nil
	}
	return "", errors.Wrapf(ErrUnsupportedModelType, "got %q", s)
}

// Segmentation is a backbone that maps images to per-pixel class logits.
type Segmentation interface {
	nn.Observable
	NumClasses() int
}

// New builds the backbone named by t.
func New(t ModelType, numClasses int, cfg Config) (Segmentation, error) {
	switch t {
	case TypeUnet:
		return NewUnet(numClasses, cfg), nil
	case TypeDilnet:
		return NewDilnet(numClasses, cfg), nil
	}
	return nil, errors.Wrapf(ErrUnsupportedModelType, "got %q", t)
}

var (
	_ Segmentation = (*Unet)(nil)
	_ Segmentation = (*Dilnet)(nil)
)
