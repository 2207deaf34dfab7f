package nn

import (
	"github.com/pkg/errors"

	"github.com/born-ml/atomnet/internal/serialization"
)

// Checkpoint is a model snapshot plus the training state it was taken at.
type Checkpoint struct {
	ModelType       string
	Epoch           int
	Loss            float64
	OptimizerType   string
	OptimizerConfig map[string]any
	Metadata        map[string]string
	TrainingMeta    map[string]any
}

// SaveCheckpoint writes the parameters of m and the checkpoint header to path.
func SaveCheckpoint(path string, m Module, ckpt Checkpoint) error {
	header := serialization.Header{
		ModelType: ckpt.ModelType,
		Metadata:  ckpt.Metadata,
		CheckpointMeta: &serialization.CheckpointMeta{
			IsCheckpoint:    true,
			Epoch:           ckpt.Epoch,
			Step:            int64(ckpt.Epoch),
			Loss:            ckpt.Loss,
			OptimizerType:   ckpt.OptimizerType,
			OptimizerConfig: ckpt.OptimizerConfig,
			TrainingMeta:    ckpt.TrainingMeta,
		},
	}
	return serialization.WriteFile(path, GetStateDict(m), header)
}

// SaveWeights writes only the parameters of m to path.
func SaveWeights(path string, m Module, modelType string, metadata map[string]string) error {
	return serialization.WriteFile(path, GetStateDict(m), serialization.Header{ModelType: modelType, Metadata: metadata})
}

// LoadWeights reads path into the parameters of m and returns the file's
// checkpoint information (zero if the file is a plain weights file).
func LoadWeights(path string, m Module) (Checkpoint, error) {
	sd, header, err := serialization.ReadFile(path)
	if err != nil {
		return Checkpoint{}, err
	}
	if err := LoadStateDict(m, sd); err != nil {
		return Checkpoint{}, errors.WithMessagef(err, "loading %q", path)
	}
	ckpt := Checkpoint{ModelType: header.ModelType, Metadata: header.Metadata}
	if cm := header.CheckpointMeta; cm != nil {
		ckpt.Epoch = cm.Epoch
		ckpt.Loss = cm.Loss
		ckpt.OptimizerType = cm.OptimizerType
		ckpt.OptimizerConfig = cm.OptimizerConfig
		ckpt.TrainingMeta = cm.TrainingMeta
	}
	return ckpt, nil
}
