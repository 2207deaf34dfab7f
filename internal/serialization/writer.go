package serialization

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"io"
	"math"
	"os"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/born-ml/atomnet/internal/tensor"
)

// Write encodes stateDict with header metadata in .born v2 format.
//
// Tensors are stored in sorted name order so identical state produces
// identical data sections. Header.Tensors, FormatVersion, BornVersion and
// CreatedAt are filled in by Write.
func Write(w io.Writer, stateDict map[string]*tensor.RawTensor, header Header) error {
	header.FormatVersion = FormatVersionV2
	header.BornVersion = formatProducer
	header.CreatedAt = time.Now().UTC()
	if header.Metadata == nil {
		header.Metadata = make(map[string]string)
	}

	names := make([]string, 0, len(stateDict))
	for name := range stateDict {
		names = append(names, name)
	}
	sort.Strings(names)

	header.Tensors = make([]TensorMeta, 0, len(names))
	var data []byte
	for _, name := range names {
		raw := stateDict[name]
		size := int64(raw.NumElements() * 4)
		header.Tensors = append(header.Tensors, TensorMeta{
			Name:   name,
			DType:  DTypeFloat32,
			Shape:  []int(raw.Shape().Clone()),
			Offset: int64(len(data)),
			Size:   size,
		})
		data = appendFloat32s(data, raw.Data())
	}
	if err := ValidateHeader(&header, int64(len(data))); err != nil {
		return errors.WithMessage(err, "invalid state dict")
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return errors.Wrap(err, "failed to marshal header")
	}

	fixed := make([]byte, FixedHeaderSizeV2)
	copy(fixed[0:4], MagicBytes)
	binary.LittleEndian.PutUint32(fixed[4:8], uint32(FormatVersionV2))
	var flags uint32
	if len(header.Metadata) > 0 {
		flags |= FlagHasMetadata
	}
	if header.CheckpointMeta != nil && header.CheckpointMeta.OptimizerType != "" {
		flags |= FlagHasOptimizer
	}
	binary.LittleEndian.PutUint32(fixed[8:12], flags)
	binary.LittleEndian.PutUint64(fixed[16:24], uint64(len(headerJSON)))
	binary.LittleEndian.PutUint64(fixed[24:32], uint64(len(data)))
	checksum := ComputeChecksum(data)
	copy(fixed[ChecksumOffsetV2:ChecksumOffsetV2+ChecksumSize], checksum[:])

	pos := int64(FixedHeaderSizeV2 + len(headerJSON))
	padding := (HeaderAlignment - pos%HeaderAlignment) % HeaderAlignment
	for _, chunk := range [][]byte{fixed, headerJSON, make([]byte, padding), data} {
		if _, err := w.Write(chunk); err != nil {
			return errors.Wrap(err, "failed to write .born data")
		}
	}
	return nil
}

// WriteFile writes a .born file atomically: data goes to a temporary file in
// the same directory which is then renamed over path.
func WriteFile(path string, stateDict map[string]*tensor.RawTensor, header Header) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return errors.Wrapf(err, "failed to create %q", tmp)
	}
	bw := bufio.NewWriter(f)
	if err := Write(bw, stateDict, header); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return errors.WithMessagef(err, "writing %q", path)
	}
	if err := bw.Flush(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return errors.Wrapf(err, "failed to flush %q", tmp)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return errors.Wrapf(err, "failed to close %q", tmp)
	}
	return errors.Wrapf(os.Rename(tmp, path), "failed to rename %q", tmp)
}

func appendFloat32s(buf []byte, values []float32) []byte {
	for _, v := range values {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(v))
	}
	return buf
}
