package nn

import (
	"github.com/born-ml/atomnet/internal/tensor"
)

// Loss maps predictions and targets to a scalar tensor.
type Loss interface {
	Forward(pred, target *tensor.Tensor) *tensor.Tensor
}

// MSELoss is the mean squared error: mean((pred - target)²).
type MSELoss struct{}

// NewMSELoss creates an MSE loss.
func NewMSELoss() *MSELoss { return &MSELoss{} }

// Forward computes the loss.
func (*MSELoss) Forward(pred, target *tensor.Tensor) *tensor.Tensor {
	diff := pred.Sub(target)
	return diff.Mul(diff).Mean()
}

// BCEWithLogitsLoss fuses a sigmoid with binary cross-entropy.
type BCEWithLogitsLoss struct{}

// NewBCEWithLogitsLoss creates a BCE-with-logits loss.
func NewBCEWithLogitsLoss() *BCEWithLogitsLoss { return &BCEWithLogitsLoss{} }

// Forward computes the loss of logits against targets of the same shape.
func (*BCEWithLogitsLoss) Forward(logits, target *tensor.Tensor) *tensor.Tensor {
	b := logits.Backend()
	return tensor.New(b.BCEWithLogits(logits.Raw(), target.Raw()), b)
}

// CrossEntropyLoss fuses a softmax over dim 1 with negative log-likelihood.
// Targets are class indices with the channel dimension removed.
type CrossEntropyLoss struct{}

// NewCrossEntropyLoss creates a cross-entropy loss.
func NewCrossEntropyLoss() *CrossEntropyLoss { return &CrossEntropyLoss{} }

// Forward computes the loss of logits [N, C, ...] against indices [N, ...].
func (*CrossEntropyLoss) Forward(logits, target *tensor.Tensor) *tensor.Tensor {
	b := logits.Backend()
	return tensor.New(b.CrossEntropy(logits.Raw(), target.Raw()), b)
}

// FocalLoss down-weights well-classified pixels: Alpha*(1-pt)^Gamma*(-log pt).
type FocalLoss struct {
	Alpha, Gamma float32
}

// NewFocalLoss creates a focal loss with alpha 0.5 and gamma 2.
func NewFocalLoss() *FocalLoss { return &FocalLoss{Alpha: 0.5, Gamma: 2} }

// Forward computes the loss. Binary masks of the logits' shape use a sigmoid,
// class indices use a softmax over dim 1.
func (f *FocalLoss) Forward(logits, target *tensor.Tensor) *tensor.Tensor {
	b := logits.Backend()
	return tensor.New(b.FocalLoss(logits.Raw(), target.Raw(), f.Alpha, f.Gamma), b)
}

// DiceLoss is 1 - (2·Σ p·t + eps) / (Σ p + Σ t + eps) over probabilities and
// targets of the same shape.
type DiceLoss struct {
	Eps float32
}

// NewDiceLoss creates a dice loss with eps 1e-7.
func NewDiceLoss() *DiceLoss { return &DiceLoss{Eps: 1e-7} }

// Forward computes the loss.
func (d *DiceLoss) Forward(probs, target *tensor.Tensor) *tensor.Tensor {
	intersection := probs.Mul(target).Sum().MulScalar(2).AddScalar(d.Eps)
	union := probs.Sum().Add(target.Sum()).AddScalar(d.Eps)
	return intersection.Div(union).MulScalar(-1).AddScalar(1)
}

// OneHot expands class indices [N, H, W] into [N, classes, H, W].
func OneHot(indices *tensor.RawTensor, classes int) *tensor.RawTensor {
	shape := indices.Shape()
	n := shape[0]
	s := indices.NumElements() / n
	outShape := append(tensor.Shape{n, classes}, shape[1:]...)
	out := tensor.MustNewRaw(outShape, indices.Device())
	src, dst := indices.Data(), out.Data()
	for b := 0; b < n; b++ {
		for p := 0; p < s; p++ {
			c := int(src[b*s+p])
			if c >= 0 && c < classes {
				dst[(b*classes+c)*s+p] = 1
			}
		}
	}
	return out
}
