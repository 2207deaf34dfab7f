package ops

import (
	"github.com/chewxy/math32"

	"github.com/born-ml/atomnet/internal/tensor"
)

// BCEWithLogitsOp represents the fused sigmoid + binary cross-entropy mean.
//
// Backward pass: grad_logits = (σ(x) - y) / N. Targets receive no gradient.
type BCEWithLogitsOp struct{ node }

// NewBCEWithLogitsOp creates a new BCEWithLogitsOp.
func NewBCEWithLogitsOp(logits, targets, output *tensor.RawTensor) *BCEWithLogitsOp {
	return &BCEWithLogitsOp{newNode(output, logits, targets)}
}

// Backward computes the logits gradient.
func (op *BCEWithLogitsOp) Backward(outputGrad *tensor.RawTensor, _ tensor.Backend) []*tensor.RawTensor {
	logits, targets := op.inputs[0], op.inputs[1]
	y := targets.Data()
	scale := outputGrad.Data()[0] / float32(logits.NumElements())
	grad := tensor.MustNewRaw(logits.Shape(), logits.Device())
	g := grad.Data()
	for i, x := range logits.Data() {
		g[i] = (sigmoid(x) - y[i]) * scale
	}
	return []*tensor.RawTensor{grad, nil}
}

// CrossEntropyOp represents the fused log-softmax + negative log-likelihood
// mean over logits [N, C, ...] and class indices [N, ...].
//
// Backward pass: grad_logits = (softmax(x) - onehot(y)) / (N·S).
type CrossEntropyOp struct{ node }

// NewCrossEntropyOp creates a new CrossEntropyOp.
func NewCrossEntropyOp(logits, targets, output *tensor.RawTensor) *CrossEntropyOp {
	return &CrossEntropyOp{newNode(output, logits, targets)}
}

// Backward computes the logits gradient.
func (op *CrossEntropyOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	logits, targets := op.inputs[0], op.inputs[1]
	n, c := logits.Shape()[0], logits.Shape()[1]
	s := targets.NumElements() / n
	scale := outputGrad.Data()[0] / float32(n*s)

	grad := backend.Softmax(logits, 1)
	g, y := grad.Data(), targets.Data()
	for b := 0; b < n; b++ {
		for p := 0; p < s; p++ {
			t := int(y[b*s+p])
			g[b*c*s+t*s+p] -= 1
		}
	}
	for i := range g {
		g[i] *= scale
	}
	return []*tensor.RawTensor{grad, nil}
}

// FocalLossOp represents the fused focal loss alpha*(1-pt)^gamma*(-log pt).
type FocalLossOp struct {
	node
	alpha, gamma float32
}

// NewFocalLossOp creates a new FocalLossOp.
func NewFocalLossOp(logits, targets, output *tensor.RawTensor, alpha, gamma float32) *FocalLossOp {
	return &FocalLossOp{node: newNode(output, logits, targets), alpha: alpha, gamma: gamma}
}

// Backward computes the logits gradient.
//
// Binary case, with s = ±1 the sign of the label:
//
//	dL/dx = -α·s·[(1-pt)^(γ+1) - γ·pt·(1-pt)^γ·log pt]
//
// Multiclass case, for logit j of a pixel with true class t:
//
//	dL/dz_j = -α·[(1-pt)^γ - γ·pt·(1-pt)^(γ-1)·log pt]·(δ_tj - p_j)
func (op *FocalLossOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	logits, targets := op.inputs[0], op.inputs[1]
	alpha, gamma := op.alpha, op.gamma
	y := targets.Data()
	grad := tensor.MustNewRaw(logits.Shape(), logits.Device())
	g := grad.Data()

	if logits.Shape().Equal(targets.Shape()) {
		scale := outputGrad.Data()[0] / float32(logits.NumElements())
		for i, x := range logits.Data() {
			p := sigmoid(x)
			pt, sign := p, float32(1)
			if y[i] <= 0.5 {
				pt, sign = 1-p, -1
			}
			q := 1 - pt
			logPt := math32.Log(max(pt, 1e-7))
			g[i] = -alpha * sign * (math32.Pow(q, gamma+1) - gamma*pt*math32.Pow(q, gamma)*logPt) * scale
		}
		return []*tensor.RawTensor{grad, nil}
	}

	n, c := logits.Shape()[0], logits.Shape()[1]
	s := targets.NumElements() / n
	scale := outputGrad.Data()[0] / float32(n*s)
	probs := backend.Softmax(logits, 1).Data()
	for b := 0; b < n; b++ {
		for px := 0; px < s; px++ {
			base := b*c*s + px
			t := int(y[b*s+px])
			pt := probs[base+t*s]
			q := max(1-pt, 1e-7)
			logPt := math32.Log(max(pt, 1e-7))
			coef := -alpha * (math32.Pow(q, gamma) - gamma*pt*math32.Pow(q, gamma-1)*logPt) * scale
			for j := 0; j < c; j++ {
				delta := float32(0)
				if j == t {
					delta = 1
				}
				g[base+j*s] = coef * (delta - probs[base+j*s])
			}
		}
	}
	return []*tensor.RawTensor{grad, nil}
}

func sigmoid(v float32) float32 {
	if v >= 0 {
		return 1 / (1 + math32.Exp(-v))
	}
	e := math32.Exp(v)
	return e / (1 + e)
}
