// Package loss resolves a segmentation loss name to a loss over model logits
// and integer or binary labels.
//
// Every resolved loss takes raw logits [N,C,H,W]. Labels are [N,1,H,W] or
// [N,H,W] binary masks for a single output channel and [N,H,W] class indices
// otherwise; the loss applies the activation and one-hot encoding it needs.
package loss

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/born-ml/atomnet/internal/nn"
	"github.com/born-ml/atomnet/internal/tensor"
)

// ErrUnsupportedLoss is returned for an unknown loss name.
var ErrUnsupportedLoss = errors.New("unsupported loss: select between 'ce', 'dice', 'focal' and 'mse'")

// Kind names a loss.
type Kind string

// Supported losses.
const (
	MSE   Kind = "mse"
	CE    Kind = "ce"
	Focal Kind = "focal"
	Dice  Kind = "dice"
)

// Parse parses a loss name, case-insensitively.
func Parse(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(s)); k {
	case MSE, CE, Focal, Dice:
		return k, nil
	}
	return "", errors.Wrapf(ErrUnsupportedLoss, "got %q", s)
}

// Segmentation is a loss over logits and labels.
type Segmentation struct {
	kind       Kind
	numClasses int
	inner      nn.Loss
}

// New resolves kind for a model with numClasses output channels:
//   - ce: BCE with logits for one channel, softmax cross-entropy otherwise
//   - focal: sigmoid focal loss for one channel, softmax focal loss otherwise
//   - dice: dice loss of probabilities against one-hot labels
//   - mse: squared error of probabilities against one-hot labels
func New(kind Kind, numClasses int) (*Segmentation, error) {
	if numClasses < 1 {
		return nil, errors.Errorf("loss %q: invalid number of classes %d", kind, numClasses)
	}
	s := &Segmentation{kind: kind, numClasses: numClasses}
	switch kind {
	case CE:
		if numClasses == 1 {
			s.inner = nn.NewBCEWithLogitsLoss()
		} else {
			s.inner = nn.NewCrossEntropyLoss()
		}
	case Focal:
		s.inner = nn.NewFocalLoss()
	case Dice:
		s.inner = nn.NewDiceLoss()
	case MSE:
		s.inner = nn.NewMSELoss()
	default:
		return nil, errors.Wrapf(ErrUnsupportedLoss, "got %q", kind)
	}
	return s, nil
}

// Kind returns the resolved loss name.
func (s *Segmentation) Kind() Kind { return s.kind }

// Forward computes the scalar loss of logits [N,C,H,W] against labels.
func (s *Segmentation) Forward(logits, labels *tensor.Tensor) *tensor.Tensor {
	b := logits.Backend()
	target := s.target(logits.Shape(), labels.Raw())
	switch s.kind {
	case CE, Focal:
		return s.inner.Forward(logits, tensor.New(target, b))
	}
	return s.inner.Forward(Activate(logits, s.numClasses), tensor.New(target, b))
}

// target reshapes labels to what the inner loss expects.
func (s *Segmentation) target(logitShape tensor.Shape, labels *tensor.RawTensor) *tensor.RawTensor {
	n, h, w := logitShape[0], logitShape[2], logitShape[3]
	if s.numClasses == 1 {
		return labels.View(tensor.Shape{n, 1, h, w})
	}
	indices := labels.View(tensor.Shape{n, h, w})
	if s.kind == CE || s.kind == Focal {
		return indices
	}
	return nn.OneHot(indices, s.numClasses)
}

// Activate maps logits to probabilities: a sigmoid for a single channel, a
// softmax over channels otherwise.
func Activate(logits *tensor.Tensor, numClasses int) *tensor.Tensor {
	if numClasses == 1 {
		return logits.Sigmoid()
	}
	return logits.Softmax(1)
}

var _ nn.Loss = (*Segmentation)(nil)
