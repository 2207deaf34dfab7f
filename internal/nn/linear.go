package nn

import (
	"math/rand"

	"github.com/born-ml/atomnet/internal/tensor"
)

// Linear is a fully connected layer: y = x @ Wᵀ + b.
//
// Weight shape is [out_features, in_features], bias shape is [out_features].
type Linear struct {
	inFeatures, outFeatures int
	weight, bias            *Parameter
}

// NewLinear creates a Linear layer with Xavier-initialized weights and zero bias.
func NewLinear(inFeatures, outFeatures int, rng *rand.Rand) *Linear {
	return &Linear{
		inFeatures:  inFeatures,
		outFeatures: outFeatures,
		weight:      NewParameter("weight", Xavier(inFeatures, outFeatures, tensor.Shape{outFeatures, inFeatures}, rng)),
		bias:        NewParameter("bias", Zeros(tensor.Shape{outFeatures})),
	}
}

// Forward computes x @ Wᵀ + b for x of shape [batch, in_features].
func (l *Linear) Forward(x *tensor.Tensor, _ Mode) *tensor.Tensor {
	b := x.Backend()
	return x.MatMul(l.weight.Tensor(b).Transpose()).Add(l.bias.Tensor(b))
}

// Parameters returns weight and bias.
func (l *Linear) Parameters() []*Parameter {
	return []*Parameter{l.weight, l.bias}
}

// InFeatures returns the input width.
func (l *Linear) InFeatures() int { return l.inFeatures }

// OutFeatures returns the output width.
func (l *Linear) OutFeatures() int { return l.outFeatures }
