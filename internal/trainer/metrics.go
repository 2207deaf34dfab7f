package trainer

import (
	"github.com/born-ml/atomnet/internal/tensor"
)

// MeanIoU returns the intersection over union of the thresholded prediction
// averaged over the classes that occur in prediction or labels. A single
// output channel is thresholded at logit 0 (probability 0.5); several
// channels use the argmax. The background class 0 is included for
// multi-class outputs.
func MeanIoU(logits, labels *tensor.RawTensor, numClasses int) float64 {
	s := logits.Shape()
	n, c, plane := s[0], s[1], s[2]*s[3]
	classes := max(numClasses, 2)
	inter := make([]float64, classes)
	union := make([]float64, classes)
	data, lbl := logits.Data(), labels.Data()
	for b := 0; b < n; b++ {
		for p := 0; p < plane; p++ {
			var pred int
			if c == 1 {
				if data[b*plane+p] > 0 {
					pred = 1
				}
			} else {
				best := data[b*c*plane+p]
				for k := 1; k < c; k++ {
					if v := data[(b*c+k)*plane+p]; v > best {
						best, pred = v, k
					}
				}
			}
			truth := int(lbl[b*plane+p])
			if truth == pred {
				inter[truth]++
				union[truth]++
				continue
			}
			if truth >= 0 && truth < classes {
				union[truth]++
			}
			union[pred]++
		}
	}
	first := 0
	if numClasses == 1 {
		first = 1
	}
	var sum float64
	var count int
	for k := first; k < classes; k++ {
		if union[k] > 0 {
			sum += inter[k] / union[k]
			count++
		}
	}
	if count == 0 {
		return 1
	}
	return sum / float64(count)
}
