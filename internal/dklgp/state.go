package dklgp

import (
	"fmt"
	"strconv"

	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"

	"github.com/born-ml/atomnet/internal/nn"
	"github.com/born-ml/atomnet/internal/serialization"
	"github.com/born-ml/atomnet/internal/tensor"
)

// ModelType is the model type recorded in saved files.
const ModelType = "dklgp"

// snapshot collects every persisted tensor under a stable name. It is only
// used for state dicts and cannot run forward.
type snapshot struct {
	params []*nn.Parameter
}

func (s *snapshot) Forward(*tensor.Tensor, nn.Mode) *tensor.Tensor {
	exceptions.Panicf("dklgp: snapshot has no forward pass")
	return nil
}

func (s *snapshot) Parameters() []*nn.Parameter { return s.params }

// snapshot exposes the extractor weights, hyperparameters, training data and
// embedding bounds, sharing storage with the model.
func (r *Regressor) snapshot(trainY, bounds *tensor.RawTensor) *snapshot {
	s := &snapshot{}
	for k, e := range r.extractors {
		for _, p := range e.Parameters() {
			s.params = append(s.params, nn.NewParameter(fmt.Sprintf("extractor.%d.%s", k, p.Name()), p.Raw()))
		}
	}
	for _, h := range r.heads {
		s.params = append(s.params, h.parameters()...)
	}
	s.params = append(s.params,
		nn.NewParameter("train.x", r.trainX),
		nn.NewParameter("train.y", trainY),
		nn.NewParameter("scale.bounds", bounds))
	return s
}

// Save writes the fitted model to a .born file.
func (r *Regressor) Save(path string) error {
	if err := r.fitted(); err != nil {
		return err
	}
	n, numOutputs := r.trainX.Shape()[0], len(r.heads)
	trainY := tensor.MustNewRaw(tensor.Shape{n, numOutputs}, tensor.CPU)
	for t, y := range r.trainY {
		for i, v := range y {
			trainY.Data()[i*numOutputs+t] = float32(v)
		}
	}
	bounds := tensor.MustNewRaw(tensor.Shape{len(r.bounds), 2}, tensor.CPU)
	for k, b := range r.bounds {
		bounds.Data()[2*k], bounds.Data()[2*k+1] = float32(b[0]), float32(b[1])
	}
	metadata := map[string]string{
		"input_dim":         strconv.Itoa(r.inputDim),
		"embed_dim":         strconv.Itoa(r.embedDim),
		"num_outputs":       strconv.Itoa(numOutputs),
		"correlated_output": strconv.FormatBool(r.cfg.CorrelatedOutput),
		"shared_embedding":  strconv.FormatBool(r.cfg.SharedEmbedding),
	}
	return nn.SaveWeights(path, r.snapshot(trainY, bounds), ModelType, metadata)
}

// Load restores a model written by Save into r, which must have the same
// dimensions and output mode. Custom extractors used for fitting must be
// given again, otherwise default extractors are built.
func (r *Regressor) Load(path string, extractors ...nn.Module) error {
	sd, header, err := serialization.ReadFile(path)
	if err != nil {
		return err
	}
	if header.ModelType != ModelType {
		return errors.Wrapf(ErrInvalidConfig, "%q holds a %q model", path, header.ModelType)
	}
	want := map[string]string{
		"input_dim":         strconv.Itoa(r.inputDim),
		"embed_dim":         strconv.Itoa(r.embedDim),
		"correlated_output": strconv.FormatBool(r.cfg.CorrelatedOutput),
		"shared_embedding":  strconv.FormatBool(r.cfg.SharedEmbedding),
	}
	for k, v := range want {
		if got := header.Metadata[k]; got != v {
			return errors.Wrapf(ErrInvalidConfig, "%q: %s is %q, model has %q", path, k, got, v)
		}
	}
	trainX, trainY, bounds := sd["train.x"], sd["train.y"], sd["scale.bounds"]
	if trainX == nil || trainY == nil || bounds == nil || trainY.Shape().Rank() != 2 {
		return errors.Errorf("%q is missing training data", path)
	}
	var single nn.Module
	var many []nn.Module
	if len(extractors) == 1 {
		single = extractors[0]
	} else {
		many = extractors
	}
	if err := r.build(trainY.Shape()[1], single, many); err != nil {
		return err
	}
	r.trainX = tensor.MustNewRaw(tensor.Shape{trainY.Shape()[0], r.inputDim}, tensor.CPU)
	snap := r.snapshot(tensor.MustNewRaw(trainY.Shape(), tensor.CPU), tensor.MustNewRaw(tensor.Shape{len(r.bounds), 2}, tensor.CPU))
	if err := nn.LoadStateDict(snap, sd); err != nil {
		r.trainX = nil
		return errors.WithMessagef(err, "loading %q", path)
	}

	numOutputs := trainY.Shape()[1]
	r.trainY = make([][]float64, numOutputs)
	for t := range r.trainY {
		r.trainY[t] = make([]float64, trainY.Shape()[0])
		for i := range r.trainY[t] {
			r.trainY[t][i] = float64(trainY.Data()[i*numOutputs+t])
		}
	}
	for k := range r.bounds {
		r.bounds[k] = [2]float64{float64(bounds.Data()[2*k]), float64(bounds.Data()[2*k+1])}
	}
	for t, h := range r.heads {
		h.sync()
		h.gp.SetTrainData(r.embedScaled(r.trainX, r.extractorOf(t)), r.trainY[t])
	}
	return nil
}
