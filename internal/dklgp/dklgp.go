// Package dklgp implements deep kernel learning Gaussian process regression:
// a fully connected feature extractor maps inputs to a low-dimensional
// embedding, and exact GP heads, one per output, regress the targets on the
// embedding. Extractor weights and GP hyperparameters are trained jointly on
// the exact marginal log likelihood.
package dklgp

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"k8s.io/klog/v2"

	"github.com/born-ml/atomnet/internal/autodiff"
	"github.com/born-ml/atomnet/internal/backend/cpu"
	"github.com/born-ml/atomnet/internal/gp"
	"github.com/born-ml/atomnet/internal/models"
	"github.com/born-ml/atomnet/internal/nn"
	"github.com/born-ml/atomnet/internal/optim"
	"github.com/born-ml/atomnet/internal/tensor"
)

// boundScale is the half-width the embeddings are scaled into.
const boundScale = 0.95

// head is one GP output with its hyperparameters held as parameters so the
// optimizer can update them alongside the extractor weights.
type head struct {
	gp             *gp.GP
	logLengthscale *nn.Parameter
	logOutputscale *nn.Parameter
	logNoise       *nn.Parameter
	mean           *nn.Parameter
}

func newHead(t, embedDim int, settings gp.Settings) *head {
	h := gp.DefaultHyper(embedDim)
	scalar := func(name string, v float64) *nn.Parameter {
		return nn.NewParameter(fmt.Sprintf("gp.%d.%s", t, name),
			tensor.Wrap([]float32{float32(v)}, tensor.Shape{1}, tensor.CPU))
	}
	ls := make([]float32, embedDim)
	for i, v := range h.LogLengthscale {
		ls[i] = float32(v)
	}
	return &head{
		gp: gp.New(embedDim, settings),
		logLengthscale: nn.NewParameter(fmt.Sprintf("gp.%d.log_lengthscale", t),
			tensor.Wrap(ls, tensor.Shape{embedDim}, tensor.CPU)),
		logOutputscale: scalar("log_outputscale", h.LogOutputscale),
		logNoise:       scalar("log_noise", h.LogNoise),
		mean:           scalar("mean", h.Mean),
	}
}

func (h *head) parameters() []*nn.Parameter {
	return []*nn.Parameter{h.logLengthscale, h.logOutputscale, h.logNoise, h.mean}
}

// sync copies the parameter values into the GP hyperparameters.
func (h *head) sync() {
	hy := h.gp.Hyper
	for i, v := range h.logLengthscale.Raw().Data() {
		hy.LogLengthscale[i] = float64(v)
	}
	hy.LogOutputscale = float64(h.logOutputscale.Raw().Item())
	hy.LogNoise = float64(h.logNoise.Raw().Item())
	hy.Mean = float64(h.mean.Raw().Item())
	h.gp.Hyper = hy
	h.gp.Invalidate()
}

// grads writes the hyperparameter gradients into dst.
func (h *head) grads(g gp.Gradients, dst map[*tensor.RawTensor]*tensor.RawTensor) {
	ls := make([]float32, len(g.LogLengthscale))
	for i, v := range g.LogLengthscale {
		ls[i] = float32(v)
	}
	dst[h.logLengthscale.Raw()] = tensor.Wrap(ls, tensor.Shape{len(ls)}, tensor.CPU)
	for p, v := range map[*nn.Parameter]float64{h.logOutputscale: g.LogOutputscale, h.logNoise: g.LogNoise, h.mean: g.Mean} {
		dst[p.Raw()] = tensor.Wrap([]float32{float32(v)}, tensor.Shape{1}, tensor.CPU)
	}
}

// Regressor is a DKL-GP model with one GP head per output.
type Regressor struct {
	inputDim, embedDim int
	cfg                Config
	rng                *rand.Rand

	extractors []nn.Module
	heads      []*head
	// bounds[k] are the training embedding min and max of extractor k.
	bounds [][2]float64

	trainX *tensor.RawTensor
	trainY [][]float64 // per output

	eval  *cpu.CPUBackend
	train *autodiff.AutodiffBackend

	losses []float64
}

// New creates an unfitted Regressor from inputDim features to an embedDim
// embedding space.
func New(inputDim, embedDim int, cfg Config) (*Regressor, error) {
	if inputDim <= 0 || embedDim <= 0 {
		return nil, errors.Wrapf(ErrInvalidConfig, "input dim %d, embedding dim %d", inputDim, embedDim)
	}
	if cfg.CorrelatedOutput && !cfg.SharedEmbedding {
		return nil, errors.Wrap(ErrInvalidConfig, "correlated output requires a shared embedding space")
	}
	eval := cpu.New()
	return &Regressor{
		inputDim: inputDim,
		embedDim: embedDim,
		cfg:      cfg,
		rng:      rand.New(rand.NewSource(cfg.Seed)),
		eval:     eval,
		train:    autodiff.New(eval),
	}, nil
}

// NumOutputs returns the number of GP heads, zero before Fit.
func (r *Regressor) NumOutputs() int { return len(r.heads) }

// Losses returns the training loss of every Fit cycle.
func (r *Regressor) Losses() []float64 { return r.losses }

// Extractors returns the feature extractors, one if the embedding is shared.
func (r *Regressor) Extractors() []nn.Module { return r.extractors }

// Hyper returns the GP hyperparameters of output t.
func (r *Regressor) Hyper(t int) gp.Hyper { return r.heads[t].gp.Hyper.Clone() }

// extractorOf maps output t to its extractor.
func (r *Regressor) extractorOf(t int) int {
	if len(r.extractors) == 1 {
		return 0
	}
	return t
}

func (r *Regressor) fitted() error {
	if r.trainX == nil {
		return ErrNotFitted
	}
	return nil
}

// build creates the extractors and heads for numOutputs outputs.
func (r *Regressor) build(numOutputs int, single nn.Module, many []nn.Module) error {
	numExtractors := numOutputs
	if r.cfg.SharedEmbedding {
		numExtractors = 1
	}
	switch {
	case len(many) > 0:
		if len(many) != numExtractors {
			return errors.Wrapf(ErrInvalidConfig, "got %d feature extractors for %d embedding spaces", len(many), numExtractors)
		}
		r.extractors = many
	case single != nil:
		if numExtractors != 1 {
			return errors.Wrapf(ErrInvalidConfig, "one feature extractor given for %d embedding spaces: use FeatureExtractors", numExtractors)
		}
		r.extractors = []nn.Module{single}
	default:
		r.extractors = make([]nn.Module, numExtractors)
		for k := range r.extractors {
			r.extractors[k] = models.NewFeatureExtractor(r.inputDim, r.embedDim, r.cfg.HiddenDims, r.rng)
		}
	}
	r.heads = make([]*head, numOutputs)
	for t := range r.heads {
		r.heads[t] = newHead(t, r.embedDim, r.cfg.Settings)
	}
	r.bounds = make([][2]float64, numExtractors)
	return nil
}

// Fit initializes a model for the training data X [n,d] and targets y, [n]
// or [n,T], and trains it for cfg.TrainingCycles cycles.
func (r *Regressor) Fit(ctx context.Context, x, y *tensor.RawTensor, cfg FitConfig) error {
	cfg = cfg.withDefaults()
	targets, err := r.checkData(x, y)
	if err != nil {
		return err
	}
	if err := r.build(len(targets), cfg.FeatureExtractor, cfg.FeatureExtractors); err != nil {
		return err
	}
	r.trainX, r.trainY = x.Clone(), targets
	r.losses = r.losses[:0]

	var params []*nn.Parameter
	for _, h := range r.heads {
		params = append(params, h.parameters()...)
	}
	if !cfg.FreezeWeights {
		for _, e := range r.extractors {
			params = append(params, e.Parameters()...)
		}
	}
	optimizer := optim.NewAdam(params, optim.AdamConfig{LR: float32(cfg.LR)})

	start := time.Now()
	err = guard(func() error {
		for e := 0; e < cfg.TrainingCycles; e++ {
			if err := ctx.Err(); err != nil {
				return errors.Wrapf(err, "fit interrupted at cycle %d", e+1)
			}
			loss, grads, err := r.step(!cfg.FreezeWeights)
			if err != nil {
				return errors.WithMessagef(err, "cycle %d", e+1)
			}
			if math.IsNaN(loss) || math.IsInf(loss, 0) {
				return errors.Wrapf(ErrNonFiniteLoss, "loss %v at cycle %d", loss, e+1)
			}
			optimizer.Step(grads)
			optimizer.ZeroGrad()
			r.losses = append(r.losses, loss)
			if e == 0 || (e+1)%cfg.PrintLoss == 0 {
				klog.Infof("Epoch %d/%d ... Training loss: %.4f", e+1, cfg.TrainingCycles, loss)
			}
		}
		return r.finalize()
	})
	if err != nil {
		r.trainX = nil
		return err
	}
	klog.V(1).Infof("dkl-gp: fitted %d outputs in %s", len(r.heads), time.Since(start))
	return nil
}

func (r *Regressor) checkData(x, y *tensor.RawTensor) ([][]float64, error) {
	xs := x.Shape()
	if xs.Rank() != 2 || xs[1] != r.inputDim {
		return nil, errors.Wrapf(ErrInvalidConfig, "training inputs must be [n,%d], got %v", r.inputDim, xs)
	}
	n := xs[0]
	ys := y.Shape()
	numOutputs := 1
	switch {
	case ys.Rank() == 1 && ys[0] == n:
	case ys.Rank() == 2 && ys[0] == n:
		numOutputs = ys[1]
	default:
		return nil, errors.Wrapf(ErrInvalidConfig, "targets must be [%d] or [%d,T], got %v", n, n, ys)
	}
	targets := make([][]float64, numOutputs)
	for t := range targets {
		targets[t] = make([]float64, n)
		for i := range targets[t] {
			targets[t][i] = float64(y.Data()[i*numOutputs+t])
		}
	}
	return targets, nil
}

// step computes the summed negative MLL of all heads and the gradients of
// every trained parameter.
func (r *Regressor) step(trainExtractors bool) (float64, map[*tensor.RawTensor]*tensor.RawTensor, error) {
	tape := r.train.Tape()
	tape.StartRecording()
	defer func() {
		tape.Clear()
		tape.StopRecording()
	}()

	n := r.trainX.Shape()[0]
	embs := make([]*tensor.RawTensor, len(r.extractors))
	zs := make([]*mat.Dense, len(r.extractors))
	dz := make([]*mat.Dense, len(r.extractors))
	for k, ext := range r.extractors {
		embs[k] = ext.Forward(tensor.New(r.trainX, r.train), nn.Train).Raw()
		r.bounds[k] = bounds(embs[k])
		zs[k] = r.scale(embs[k], k)
		dz[k] = mat.NewDense(n, r.embedDim, nil)
	}

	grads := make(map[*tensor.RawTensor]*tensor.RawTensor)
	var total float64
	for t, h := range r.heads {
		k := r.extractorOf(t)
		h.sync()
		h.gp.SetTrainData(zs[k], r.trainY[t])
		loss, g, err := h.gp.NegMLL()
		if err != nil {
			return 0, nil, errors.WithMessagef(err, "output %d", t)
		}
		total += loss
		h.grads(g, grads)
		dz[k].Add(dz[k], g.X)
	}
	if !trainExtractors {
		return total, grads, nil
	}
	for k, emb := range embs {
		// dz/de of the bounds scaling, with the bounds held constant.
		dz[k].Scale(2*boundScale/span(r.bounds[k]), dz[k])
		seed := tensor.MustNewRaw(emb.Shape(), tensor.CPU)
		for i, v := range dz[k].RawMatrix().Data {
			seed.Data()[i] = float32(v)
		}
		for raw, g := range tape.BackwardFrom(emb, seed, r.train) {
			grads[raw] = g
		}
	}
	return total, grads, nil
}

// finalize fixes the training embeddings and bounds used by queries.
func (r *Regressor) finalize() error {
	for k, ext := range r.extractors {
		emb := ext.Forward(tensor.New(r.trainX, r.eval), nn.Eval).Raw()
		r.bounds[k] = bounds(emb)
	}
	for t, h := range r.heads {
		k := r.extractorOf(t)
		h.sync()
		h.gp.SetTrainData(r.embedScaled(r.trainX, k), r.trainY[t])
	}
	return nil
}

// embedScaled runs extractor k in eval mode and scales by its training bounds.
func (r *Regressor) embedScaled(x *tensor.RawTensor, k int) *mat.Dense {
	emb := r.extractors[k].Forward(tensor.New(x, r.eval), nn.Eval).Raw()
	return r.scale(emb, k)
}

// scale maps embeddings e [n,D] to boundScale·[-1,1] using bounds[k].
func (r *Regressor) scale(e *tensor.RawTensor, k int) *mat.Dense {
	s := e.Shape()
	lo, width := r.bounds[k][0], span(r.bounds[k])
	z := mat.NewDense(s[0], s[1], nil)
	data := z.RawMatrix().Data
	for i, v := range e.Data() {
		data[i] = boundScale * (2*(float64(v)-lo)/width - 1)
	}
	return z
}

func bounds(e *tensor.RawTensor) [2]float64 {
	values := make([]float64, e.NumElements())
	for i, v := range e.Data() {
		values[i] = float64(v)
	}
	return [2]float64{floats.Min(values), floats.Max(values)}
}

func span(b [2]float64) float64 {
	return max(b[1]-b[0], 1e-12)
}
