package serialization_test

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/atomnet/internal/serialization"
	"github.com/born-ml/atomnet/internal/tensor"
)

func sampleStateDict(t *testing.T) map[string]*tensor.RawTensor {
	t.Helper()
	w, err := tensor.FromFloat32([]float32{1, -2, 3.5, 4, 5, 6}, tensor.Shape{2, 3}, tensor.CPU)
	require.NoError(t, err)
	b, err := tensor.FromFloat32([]float32{0.25, 0.5}, tensor.Shape{2}, tensor.CPU)
	require.NoError(t, err)
	return map[string]*tensor.RawTensor{"0.weight": w, "0.bias": b}
}

func TestWriteRead_RoundTrip(t *testing.T) {
	sd := sampleStateDict(t)
	path := filepath.Join(t.TempDir(), "model_weights_final.born")
	header := serialization.Header{
		ModelType: "Unet",
		Metadata:  map[string]string{"nb_classes": "1"},
		CheckpointMeta: &serialization.CheckpointMeta{
			IsCheckpoint:  true,
			Epoch:         49,
			Loss:          0.125,
			OptimizerType: "Adam",
		},
	}
	require.NoError(t, serialization.WriteFile(path, sd, header))

	got, h, err := serialization.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Unet", h.ModelType)
	assert.Equal(t, serialization.FormatVersionV2, h.FormatVersion)
	require.NotNil(t, h.CheckpointMeta)
	assert.Equal(t, 49, h.CheckpointMeta.Epoch)
	assert.InDelta(t, 0.125, h.CheckpointMeta.Loss, 1e-12)
	require.Len(t, got, 2)
	for name, want := range sd {
		assert.True(t, got[name].Shape().Equal(want.Shape()), name)
		assert.Equal(t, want.Data(), got[name].Data(), name)
	}
}

func TestRead_ChecksumMismatch(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, serialization.Write(&buf, sampleStateDict(t), serialization.Header{}))
	content := buf.Bytes()
	content[len(content)-1] ^= 0xFF

	_, _, err := serialization.Read(bytes.NewReader(content))
	assert.True(t, errors.Is(err, serialization.ErrChecksumMismatch), "got %v", err)
}

func TestRead_InvalidMagic(t *testing.T) {
	content := make([]byte, serialization.FixedHeaderSizeV2)
	copy(content, "NOPE")
	_, _, err := serialization.Read(bytes.NewReader(content))
	assert.True(t, errors.Is(err, serialization.ErrInvalidMagic))
}

func TestValidateHeader(t *testing.T) {
	tests := []struct {
		name string
		meta serialization.TensorMeta
	}{
		{"traversal", serialization.TensorMeta{Name: "../x", DType: "float32", Shape: []int{1}, Size: 4}},
		{"dtype", serialization.TensorMeta{Name: "x", DType: "int8", Shape: []int{1}, Size: 1}},
		{"size", serialization.TensorMeta{Name: "x", DType: "float32", Shape: []int{2}, Size: 4}},
		{"bounds", serialization.TensorMeta{Name: "x", DType: "float32", Shape: []int{4}, Size: 16}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &serialization.Header{Tensors: []serialization.TensorMeta{tt.meta}}
			var vErr *serialization.ValidationError
			require.ErrorAs(t, serialization.ValidateHeader(h, 8), &vErr)
		})
	}
}
