package serialization

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"io"
	"math"
	"os"

	"github.com/pkg/errors"

	"github.com/born-ml/atomnet/internal/tensor"
)

// Read decodes a .born v2 stream, verifying the checksum and header.
func Read(r io.Reader) (map[string]*tensor.RawTensor, Header, error) {
	var header Header
	fixed := make([]byte, FixedHeaderSizeV2)
	if _, err := io.ReadFull(r, fixed); err != nil {
		return nil, header, errors.Wrap(err, "failed to read fixed header")
	}
	if string(fixed[0:4]) != MagicBytes {
		return nil, header, ErrInvalidMagic
	}
	if v := binary.LittleEndian.Uint32(fixed[4:8]); v != FormatVersionV2 {
		return nil, header, errors.Wrapf(ErrUnsupportedVersion, "version %d", v)
	}
	headerSize := binary.LittleEndian.Uint64(fixed[16:24])
	dataSize := binary.LittleEndian.Uint64(fixed[24:32])
	if headerSize > MaxHeaderSize {
		return nil, header, ErrHeaderTooLarge
	}
	var stored [32]byte
	copy(stored[:], fixed[ChecksumOffsetV2:ChecksumOffsetV2+ChecksumSize])

	headerJSON := make([]byte, headerSize)
	if _, err := io.ReadFull(r, headerJSON); err != nil {
		return nil, header, errors.Wrap(err, "failed to read header JSON")
	}
	if err := json.Unmarshal(headerJSON, &header); err != nil {
		return nil, header, errors.Wrap(err, "failed to parse header JSON")
	}

	pos := int64(FixedHeaderSizeV2) + int64(headerSize)
	padding := (HeaderAlignment - pos%HeaderAlignment) % HeaderAlignment
	if _, err := io.CopyN(io.Discard, r, padding); err != nil {
		return nil, header, errors.Wrap(err, "failed to skip padding")
	}
	data := make([]byte, dataSize)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, header, errors.Wrap(err, "failed to read tensor data")
	}
	if err := ValidateChecksum(ComputeChecksum(data), stored); err != nil {
		return nil, header, err
	}
	if err := ValidateHeader(&header, int64(dataSize)); err != nil {
		return nil, header, err
	}

	stateDict := make(map[string]*tensor.RawTensor, len(header.Tensors))
	for _, meta := range header.Tensors {
		raw, err := tensor.NewRaw(meta.Shape, tensor.CPU)
		if err != nil {
			return nil, header, errors.WithMessagef(err, "tensor %q", meta.Name)
		}
		values := raw.Data()
		chunk := data[meta.Offset : meta.Offset+meta.Size]
		for i := range values {
			values[i] = math.Float32frombits(binary.LittleEndian.Uint32(chunk[4*i:]))
		}
		stateDict[meta.Name] = raw
	}
	return stateDict, header, nil
}

// ReadFile reads a .born file from disk.
func ReadFile(path string) (map[string]*tensor.RawTensor, Header, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, Header{}, errors.Wrapf(err, "failed to read %q", path)
	}
	sd, header, err := Read(bytes.NewReader(content))
	if err != nil {
		return nil, header, errors.WithMessagef(err, "reading %q", path)
	}
	return sd, header, nil
}

// ReadHeader reads only the header of a .born file, still verifying the
// checksum.
func ReadHeader(path string) (Header, error) {
	_, header, err := ReadFile(path)
	return header, err
}
