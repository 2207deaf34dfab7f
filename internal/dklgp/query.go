package dklgp

import (
	"context"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/born-ml/atomnet/internal/data"
	"github.com/born-ml/atomnet/internal/nn"
	"github.com/born-ml/atomnet/internal/tensor"
)

// DefaultBatchSize is used by Predict for non-positive batch sizes.
const DefaultBatchSize = 100

func (r *Regressor) checkInputs(x *tensor.RawTensor) error {
	if err := r.fitted(); err != nil {
		return err
	}
	if s := x.Shape(); s.Rank() != 2 || s[1] != r.inputDim {
		return errors.Wrapf(ErrInvalidConfig, "inputs must be [m,%d], got %v", r.inputDim, s)
	}
	return nil
}

// guard runs fn converting panics into errors.
func guard(fn func() error) error { return nn.Guard(fn) }

// Predict returns the posterior mean and variance [m,T] at x [m,d],
// evaluated batchSize points at a time.
func (r *Regressor) Predict(ctx context.Context, x *tensor.RawTensor, batchSize int) (mean, variance *tensor.RawTensor, err error) {
	if err := r.checkInputs(x); err != nil {
		return nil, nil, err
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	loader, err := data.NewLoader(x, batchSize)
	if err != nil {
		return nil, nil, err
	}
	m, numOutputs := x.Shape()[0], len(r.heads)
	mean = tensor.MustNewRaw(tensor.Shape{m, numOutputs}, tensor.CPU)
	variance = tensor.MustNewRaw(tensor.Shape{m, numOutputs}, tensor.CPU)
	err = guard(func() error {
		offset := 0
		for _, batch := range loader.Batches() {
			if err := ctx.Err(); err != nil {
				return errors.Wrapf(err, "prediction interrupted at point %d", offset)
			}
			z := r.embedAll(batch)
			for t, h := range r.heads {
				post, err := h.gp.Posterior(z[r.extractorOf(t)], false)
				if err != nil {
					return errors.WithMessagef(err, "output %d", t)
				}
				for i := range post.Mean {
					mean.Data()[(offset+i)*numOutputs+t] = float32(post.Mean[i])
					variance.Data()[(offset+i)*numOutputs+t] = float32(post.Variance[i])
				}
			}
			offset += batch.Shape()[0]
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return mean, variance, nil
}

// embedAll returns the scaled embedding of x under every extractor.
func (r *Regressor) embedAll(x *tensor.RawTensor) []*mat.Dense {
	z := make([]*mat.Dense, len(r.extractors))
	for k := range r.extractors {
		z[k] = r.embedScaled(x, k)
	}
	return z
}

// SampleFromPosterior draws numSamples joint posterior samples at x [m,d],
// returned as [S,T,m].
func (r *Regressor) SampleFromPosterior(ctx context.Context, x *tensor.RawTensor, numSamples int) (*tensor.RawTensor, error) {
	if err := r.checkInputs(x); err != nil {
		return nil, err
	}
	if numSamples <= 0 {
		return nil, errors.Wrapf(ErrInvalidConfig, "number of samples %d", numSamples)
	}
	m, numOutputs := x.Shape()[0], len(r.heads)
	out := tensor.MustNewRaw(tensor.Shape{numSamples, numOutputs, m}, tensor.CPU)
	err := guard(func() error {
		z := r.embedAll(x)
		for t, h := range r.heads {
			if err := ctx.Err(); err != nil {
				return errors.Wrapf(err, "sampling interrupted at output %d", t)
			}
			post, err := h.gp.Posterior(z[r.extractorOf(t)], true)
			if err != nil {
				return errors.WithMessagef(err, "output %d", t)
			}
			samples, err := post.Sample(numSamples, r.rng)
			if err != nil {
				return errors.WithMessagef(err, "output %d", t)
			}
			for s, sample := range samples {
				row := out.Data()[(s*numOutputs+t)*m:]
				for i, v := range sample {
					row[i] = float32(v)
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Embed maps x [m,d] to the scaled embedding space: [m,D] with correlated
// outputs, otherwise [T,m,D] with one embedding per output.
func (r *Regressor) Embed(ctx context.Context, x *tensor.RawTensor) (*tensor.RawTensor, error) {
	if err := r.checkInputs(x); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m := x.Shape()[0]
	var out *tensor.RawTensor
	err := guard(func() error {
		z := r.embedAll(x)
		if r.cfg.CorrelatedOutput {
			out = toRaw(z[0])
			return nil
		}
		out = tensor.MustNewRaw(tensor.Shape{len(r.heads), m, r.embedDim}, tensor.CPU)
		for t := range r.heads {
			copy(out.Data()[t*m*r.embedDim:], toRaw(z[r.extractorOf(t)]).Data())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Decode maps points z [m,D] of the scaled embedding space, as returned by
// Embed, to the posterior mean and variance [m,T]. Only correlated models
// with a shared embedding support it.
func (r *Regressor) Decode(ctx context.Context, z *tensor.RawTensor) (mean, variance *tensor.RawTensor, err error) {
	if !r.cfg.CorrelatedOutput {
		return nil, nil, errors.Wrap(ErrUnsupportedMode, "decode needs a shared embedding space with correlated outputs")
	}
	if err := r.fitted(); err != nil {
		return nil, nil, err
	}
	if s := z.Shape(); s.Rank() != 2 || s[1] != r.embedDim {
		return nil, nil, errors.Wrapf(ErrInvalidConfig, "embeddings must be [m,%d], got %v", r.embedDim, s)
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	m, numOutputs := z.Shape()[0], len(r.heads)
	mean = tensor.MustNewRaw(tensor.Shape{m, numOutputs}, tensor.CPU)
	variance = tensor.MustNewRaw(tensor.Shape{m, numOutputs}, tensor.CPU)
	err = guard(func() error {
		for t, h := range r.heads {
			strategy, err := h.gp.Strategy()
			if err != nil {
				return errors.WithMessagef(err, "output %d", t)
			}
			trainZ, _ := h.gp.TrainData()
			n, _ := trainZ.Dims()
			joint := mat.NewDense(m+n, r.embedDim, nil)
			for i := 0; i < m; i++ {
				for c := 0; c < r.embedDim; c++ {
					joint.Set(i, c, float64(z.Data()[i*r.embedDim+c]))
				}
			}
			joint.Slice(m, m+n, 0, r.embedDim).(*mat.Dense).Copy(trainZ)
			hyper := h.gp.Hyper
			mu, cov, err := strategy.ExactPrediction(hyper.MeanVector(m+n), hyper.SymCovariance(joint, 0))
			if err != nil {
				return errors.WithMessagef(err, "output %d", t)
			}
			for i := 0; i < m; i++ {
				mean.Data()[i*numOutputs+t] = float32(mu[i])
				variance.Data()[i*numOutputs+t] = float32(max(cov.At(i, i), 0))
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return mean, variance, nil
}

func toRaw(z *mat.Dense) *tensor.RawTensor {
	rows, cols := z.Dims()
	out := tensor.MustNewRaw(tensor.Shape{rows, cols}, tensor.CPU)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			out.Data()[i*cols+j] = float32(z.At(i, j))
		}
	}
	return out
}
