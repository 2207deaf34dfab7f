// Package trainer drives the training of segmentation models: batch
// selection, augmentation, optimization, evaluation, best/final checkpoints,
// stochastic weight averaging and weight perturbation.
//
// Example:
//
//	ds, err := data.Normalize(data.Bulk{Array: x}, data.Bulk{Array: y}, data.Bulk{Array: xt}, data.Bulk{Array: yt}, 4)
//	model := models.NewUnet(ds.NumClasses, models.Config{})
//	t, err := trainer.New(model, ds, trainer.Config{TrainingCycles: 500, SWA: true})
//	err = t.Run(ctx)
package trainer

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"k8s.io/klog/v2"

	"github.com/born-ml/atomnet/internal/autodiff"
	"github.com/born-ml/atomnet/internal/backend/cpu"
	"github.com/born-ml/atomnet/internal/data"
	"github.com/born-ml/atomnet/internal/loss"
	"github.com/born-ml/atomnet/internal/nn"
	"github.com/born-ml/atomnet/internal/optim"
	"github.com/born-ml/atomnet/internal/tensor"
)

// State is the lifecycle of a Trainer.
type State int

const (
	Initialized State = iota
	Running
	Converged
	Aborted
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case Initialized:
		return "initialized"
	case Running:
		return "running"
	case Converged:
		return "converged"
	case Aborted:
		return "aborted"
	}
	return "unknown"
}

// History holds one train and one test loss per completed cycle.
type History struct {
	Train    []float64
	Test     []float64
	Accuracy []float64 // only with Config.ComputeAccuracy
	// Perturbed lists the (0-based) cycles after which weights were perturbed.
	Perturbed []int
}

// Trainer owns a model and its parameters for the duration of training.
type Trainer struct {
	model nn.Module
	ds    *data.Normalized
	cfg   Config

	loss      *loss.Segmentation
	optimizer optim.Optimizer
	swa       *optim.SWA

	eval  *cpu.CPUBackend
	train *autodiff.AutodiffBackend
	rng   *rand.Rand

	state     State
	history   History
	bestLoss  float64
	bestCycle int
	finalLoss float64

	// afterCycle, if set, is called at the end of every cycle.
	afterCycle func(cycle int)
}

// New validates the configuration and creates a Trainer for model over ds.
func New(model nn.Module, ds *data.Normalized, cfg Config) (*Trainer, error) {
	cfg = cfg.withDefaults()
	switch {
	case model == nil:
		return nil, errors.Wrap(ErrInvalidConfig, "nil model")
	case ds == nil || ds.Train.Len() == 0 || ds.Test.Len() == 0:
		return nil, errors.Wrap(ErrInvalidConfig, "training and test datasets must not be empty")
	case cfg.TrainingCycles <= 0:
		return nil, errors.Wrapf(ErrInvalidConfig, "training cycles must be positive, got %d", cfg.TrainingCycles)
	case cfg.BatchSize < 0:
		return nil, errors.Wrapf(ErrInvalidConfig, "batch size must not be negative, got %d", cfg.BatchSize)
	case cfg.SWAStart < 0 || cfg.SWAStart >= 1:
		return nil, errors.Wrapf(ErrInvalidConfig, "SWA start fraction must be in [0, 1), got %g", cfg.SWAStart)
	case cfg.Perturb.Period < 0:
		return nil, errors.Wrapf(ErrInvalidConfig, "perturbation period must be positive, got %d", cfg.Perturb.Period)
	case cfg.Device != tensor.CPU:
		return nil, errors.Wrapf(ErrUnsupportedDevice, "%s", cfg.Device)
	}
	lossFn, err := loss.New(cfg.Loss, ds.NumClasses)
	if err != nil {
		return nil, err
	}
	if len(model.Parameters()) == 0 {
		return nil, errors.Wrap(ErrInvalidConfig, "model has no trainable parameters")
	}

	eval := cpu.New()
	t := &Trainer{
		model:     model,
		ds:        ds,
		cfg:       cfg,
		loss:      lossFn,
		optimizer: cfg.Optimizer,
		eval:      eval,
		train:     autodiff.New(eval),
		rng:       rand.New(rand.NewSource(cfg.Seed)),
		bestLoss:  math.Inf(1),
		bestCycle: -1,
		finalLoss: math.NaN(),
	}
	if t.optimizer == nil {
		t.optimizer = optim.NewAdam(model.Parameters(), optim.AdamConfig{LR: cfg.LR})
	}
	if cfg.SWA {
		t.swa = optim.NewSWA(model.Parameters())
	}
	return t, nil
}

// State returns the current lifecycle state.
func (t *Trainer) State() State { return t.state }

// History returns the losses recorded so far.
func (t *Trainer) History() History { return t.history }

// Best returns the lowest test loss that produced a best checkpoint and its
// cycle, or (+Inf, -1) if none was written.
func (t *Trainer) Best() (float64, int) { return t.bestLoss, t.bestCycle }

// FinalLoss returns the mean loss over the whole test dataset after
// training, or NaN before convergence.
func (t *Trainer) FinalLoss() float64 { return t.finalLoss }

// Model returns the trained model.
func (t *Trainer) Model() nn.Module { return t.model }

// Config returns the effective configuration, with defaults filled in.
func (t *Trainer) Config() Config { return t.cfg }

// Run executes all training cycles. The context is checked between cycles;
// a cancelled run is Aborted without a final checkpoint.
func (t *Trainer) Run(ctx context.Context) error {
	if t.state != Initialized {
		return errors.Errorf("trainer already %s", t.state)
	}
	t.state = Running
	start := time.Now()
	if err := nn.Guard(func() error { return t.loop(ctx) }); err != nil {
		t.state = Aborted
		return err
	}
	t.state = Converged
	klog.V(1).Infof("training finished in %s", time.Since(start))
	return nil
}

func (t *Trainer) loop(ctx context.Context) error {
	cycles := t.cfg.TrainingCycles
	swaStart := int(t.cfg.SWAStart * float64(cycles))
	for e := 0; e < cycles; e++ {
		if err := ctx.Err(); err != nil {
			return errors.Wrapf(err, "training interrupted before cycle %d", e)
		}
		trainLoss, err := t.trainCycle(e)
		if err != nil {
			return err
		}
		testLoss, accuracy := t.testCycle()
		if !isFinite(trainLoss) || !isFinite(testLoss) {
			return errors.Wrapf(ErrNonFiniteLoss, "cycle %d: train loss %g, test loss %g", e, trainLoss, testLoss)
		}
		t.history.Train = append(t.history.Train, trainLoss)
		t.history.Test = append(t.history.Test, testLoss)
		if t.cfg.ComputeAccuracy {
			t.history.Accuracy = append(t.history.Accuracy, accuracy)
		}

		// The best checkpoint holds the weights testLoss was measured on,
		// so it is written before any perturbation.
		if e > 0 && testLoss < floats.Min(t.history.Test[:e]) {
			if err := t.save(t.cfg.BestPath(), e, testLoss); err != nil {
				return err
			}
			t.bestLoss, t.bestCycle = testLoss, e
		}

		if t.cfg.Perturb.Enabled && e > 0 && (e+1)%t.cfg.Perturb.Period == 0 {
			sigma := optim.Perturb(t.model.Parameters(), optim.PerturbConfig{A: t.cfg.Perturb.A, Gamma: t.cfg.Perturb.Gamma}, e, t.rng)
			t.history.Perturbed = append(t.history.Perturbed, e)
			klog.V(2).Infof("cycle %d: perturbed weights with sigma %.3g", e+1, sigma)
		}

		if t.swa != nil && e >= swaStart {
			t.swa.Update()
		}

		if e == 0 || (e+1)%t.cfg.PrintLoss == 0 {
			t.logProgress(e, trainLoss, testLoss, accuracy)
		}
		if t.afterCycle != nil {
			t.afterCycle(e)
		}
	}

	if t.swa != nil && t.swa.Apply() {
		klog.Infof("Averaged the weights of the last %d cycles", t.swa.Count())
	}
	t.finalLoss = t.evaluate()
	if !isFinite(t.finalLoss) {
		return errors.Wrapf(ErrNonFiniteLoss, "final evaluation loss %g", t.finalLoss)
	}
	if err := t.save(t.cfg.FinalPath(), cycles-1, t.finalLoss); err != nil {
		return err
	}
	klog.Infof("Model (final state) evaluation loss: %.4f", t.finalLoss)
	return nil
}

// trainCycle runs the optimization step(s) of cycle e and returns the
// (mean) training loss.
func (t *Trainer) trainCycle(e int) (float64, error) {
	batches := t.ds.Train.Batches
	if !t.cfg.FullEpoch {
		i := t.rng.Intn(len(batches))
		return t.trainStep(batches[i], t.cfg.Seed+int64(e))
	}
	losses := make([]float64, len(batches))
	for i, b := range batches {
		seed := t.cfg.Seed + int64(e) + int64(i)*int64(t.cfg.TrainingCycles)
		l, err := t.trainStep(b, seed)
		if err != nil {
			return l, err
		}
		losses[i] = l
	}
	return stat.Mean(losses, nil), nil
}

// trainStep runs forward, backward and update on one batch. A non-finite
// loss skips the update.
func (t *Trainer) trainStep(b data.Batch, seed int64) (float64, error) {
	images, labels := t.limit(b)
	if t.cfg.Augment != nil {
		var err error
		if images, labels, err = t.cfg.Augment.Apply(images, labels, seed); err != nil {
			return 0, errors.WithMessage(err, "augmentation")
		}
	}
	tape := t.train.Tape()
	tape.StartRecording()
	defer func() {
		tape.Clear()
		tape.StopRecording()
	}()
	logits := t.model.Forward(tensor.New(images, t.train), nn.Train)
	lossT := t.loss.Forward(logits, tensor.New(labels, t.train))
	value := float64(lossT.Item())
	if !isFinite(value) {
		return value, nil
	}
	grads := autodiff.Backward(lossT, t.train)
	t.optimizer.Step(grads)
	t.optimizer.ZeroGrad()
	return value, nil
}

// testCycle evaluates the test batch(es) of a cycle in Eval mode.
func (t *Trainer) testCycle() (lossValue, accuracy float64) {
	batches := t.ds.Test.Batches
	if !t.cfg.FullEpoch {
		return t.testStep(batches[t.rng.Intn(len(batches))])
	}
	losses := make([]float64, len(batches))
	accs := make([]float64, len(batches))
	for i, b := range batches {
		losses[i], accs[i] = t.testStep(b)
	}
	return stat.Mean(losses, nil), stat.Mean(accs, nil)
}

func (t *Trainer) testStep(b data.Batch) (float64, float64) {
	images, labels := t.limit(b)
	logits := t.model.Forward(tensor.New(images, t.eval), nn.Eval)
	value := float64(t.loss.Forward(logits, tensor.New(labels, t.eval)).Item())
	var acc float64
	if t.cfg.ComputeAccuracy {
		acc = MeanIoU(logits.Raw(), labels, t.ds.NumClasses)
	}
	return value, acc
}

// evaluate returns the mean loss over every test batch.
func (t *Trainer) evaluate() float64 {
	losses := make([]float64, t.ds.Test.Len())
	for i, b := range t.ds.Test.Batches {
		losses[i], _ = t.testStep(b)
	}
	return stat.Mean(losses, nil)
}

// limit returns at most BatchSize samples of b.
func (t *Trainer) limit(b data.Batch) (*tensor.RawTensor, *tensor.RawTensor) {
	n := b.Images.Shape()[0]
	if t.cfg.BatchSize == 0 || n <= t.cfg.BatchSize {
		return b.Images, b.Labels
	}
	return data.SplitRows(b.Images, t.cfg.BatchSize, false)[0], data.SplitRows(b.Labels, t.cfg.BatchSize, false)[0]
}

func (t *Trainer) save(path string, cycle int, testLoss float64) error {
	ckpt := nn.Checkpoint{
		ModelType:       t.cfg.ModelType,
		Epoch:           cycle,
		Loss:            testLoss,
		OptimizerType:   optimizerName(t.optimizer),
		OptimizerConfig: map[string]any{"lr": t.optimizer.GetLR()},
		TrainingMeta: map[string]any{
			"num_classes": t.ds.NumClasses,
			"loss":        string(t.cfg.Loss),
			"train_loss":  t.history.Train[len(t.history.Train)-1],
		},
	}
	if err := nn.SaveCheckpoint(path, t.model, ckpt); err != nil {
		return errors.WithMessagef(err, "cycle %d: saving checkpoint", cycle)
	}
	klog.V(1).Infof("cycle %d: saved %s (test loss %.4f)", cycle+1, path, testLoss)
	return nil
}

func (t *Trainer) logProgress(e int, trainLoss, testLoss, accuracy float64) {
	if t.cfg.ComputeAccuracy {
		klog.Infof("Epoch %d/%d ... Training loss: %.4f ... Test loss: %.4f ... Test accuracy: %.4f",
			e+1, t.cfg.TrainingCycles, trainLoss, testLoss, accuracy)
		return
	}
	klog.Infof("Epoch %d/%d ... Training loss: %.4f ... Test loss: %.4f", e+1, t.cfg.TrainingCycles, trainLoss, testLoss)
}

func optimizerName(o optim.Optimizer) string {
	switch o.(type) {
	case *optim.Adam:
		return string(optim.KindAdam)
	case *optim.SGD:
		return string(optim.KindSGD)
	}
	return "custom"
}

// LoadWeights loads a checkpoint written by a Trainer into model.
func LoadWeights(path string, model nn.Module) (nn.Checkpoint, error) {
	return nn.LoadWeights(path, model)
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
