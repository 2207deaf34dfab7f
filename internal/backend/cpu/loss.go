package cpu

import (
	"github.com/chewxy/math32"
	"github.com/gomlx/exceptions"

	"github.com/born-ml/atomnet/internal/tensor"
)

// BCEWithLogits computes the mean binary cross-entropy of sigmoid(logits)
// against targets in [0, 1]:
//
//	max(x, 0) - x*y + log(1 + exp(-|x|))
func (cpu *CPUBackend) BCEWithLogits(logits, targets *tensor.RawTensor) *tensor.RawTensor {
	if !logits.Shape().Equal(targets.Shape()) {
		exceptions.Panicf("bce: logits %v and targets %v must have the same shape", logits.Shape(), targets.Shape())
	}
	x, y := logits.Data(), targets.Data()
	var acc float64
	for i, v := range x {
		acc += float64(max(v, 0) - v*y[i] + math32.Log1p(math32.Exp(-math32.Abs(v))))
	}
	return cpu.scalar(float32(acc / float64(len(x))))
}

// CrossEntropy computes the mean softmax cross-entropy of logits [N, C, ...]
// against integer class indices [N, ...] stored as float32.
func (cpu *CPUBackend) CrossEntropy(logits, targets *tensor.RawTensor) *tensor.RawTensor {
	n, c, s := classLayout(logits, targets)
	x, y := logits.Data(), targets.Data()
	var acc float64
	for b := 0; b < n; b++ {
		for p := 0; p < s; p++ {
			base := b*c*s + p
			lse := logSumExp(x, base, c, s)
			t := int(y[b*s+p])
			acc += float64(lse - x[base+t*s])
		}
	}
	return cpu.scalar(float32(acc / float64(n*s)))
}

// FocalLoss computes the mean focal loss alpha*(1-pt)^gamma*(-log pt).
// When targets share the logits' shape pt comes from a per-element sigmoid
// against binary masks; otherwise pt comes from a softmax over C and targets
// are class indices.
func (cpu *CPUBackend) FocalLoss(logits, targets *tensor.RawTensor, alpha, gamma float32) *tensor.RawTensor {
	x, y := logits.Data(), targets.Data()
	var acc float64
	if logits.Shape().Equal(targets.Shape()) {
		for i, v := range x {
			pt := binaryPt(v, y[i])
			acc += float64(alpha * math32.Pow(1-pt, gamma) * -math32.Log(max(pt, 1e-7)))
		}
		return cpu.scalar(float32(acc / float64(len(x))))
	}

	n, c, s := classLayout(logits, targets)
	for b := 0; b < n; b++ {
		for p := 0; p < s; p++ {
			base := b*c*s + p
			t := int(y[b*s+p])
			logPt := x[base+t*s] - logSumExp(x, base, c, s)
			pt := math32.Exp(logPt)
			acc += float64(alpha * math32.Pow(1-pt, gamma) * -logPt)
		}
	}
	return cpu.scalar(float32(acc / float64(n*s)))
}

// binaryPt returns the probability assigned to the true label y in {0, 1}.
func binaryPt(logit, y float32) float32 {
	p := sigmoid32(logit)
	if y > 0.5 {
		return p
	}
	return 1 - p
}

// classLayout validates logits [N, C, ...] against targets [N, ...] and returns
// batch, class and spatial sizes.
func classLayout(logits, targets *tensor.RawTensor) (n, c, s int) {
	ls, ts := logits.Shape(), targets.Shape()
	if len(ls) < 2 || len(ts) != len(ls)-1 || ts[0] != ls[0] {
		exceptions.Panicf("cross entropy: logits %v incompatible with targets %v", ls, ts)
	}
	for d := 2; d < len(ls); d++ {
		if ls[d] != ts[d-1] {
			exceptions.Panicf("cross entropy: logits %v incompatible with targets %v", ls, ts)
		}
	}
	n, c = ls[0], ls[1]
	s = targets.NumElements() / n
	for _, t := range targets.Data() {
		if t < 0 || int(t) >= c {
			exceptions.Panicf("cross entropy: class index %v out of range [0, %d)", t, c)
		}
	}
	return n, c, s
}

func logSumExp(x []float32, base, c, stride int) float32 {
	m := x[base]
	for k := 1; k < c; k++ {
		m = max(m, x[base+k*stride])
	}
	var sum float32
	for k := 0; k < c; k++ {
		sum += math32.Exp(x[base+k*stride] - m)
	}
	return m + math32.Log(sum)
}

func (cpu *CPUBackend) scalar(v float32) *tensor.RawTensor {
	out := cpu.newRaw(tensor.Shape{})
	out.Data()[0] = v
	return out
}
