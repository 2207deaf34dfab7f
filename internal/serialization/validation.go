package serialization

import (
	"fmt"
	"sort"
	"strings"
)

// Validation limits.
const (
	MaxHeaderSize    = 100 * 1024 * 1024
	MaxTensorCount   = 100_000
	MaxTensorNameLen = 4096
)

// ValidateHeader checks tensor names, dtypes, sizes and offsets against the
// size of the data section.
func ValidateHeader(h *Header, dataSize int64) error {
	if len(h.Tensors) > MaxTensorCount {
		return &ValidationError{Type: "too_many_tensors", Details: fmt.Sprintf("got %d, max %d", len(h.Tensors), MaxTensorCount)}
	}
	for _, t := range h.Tensors {
		if err := validateTensor(t); err != nil {
			return err
		}
	}

	sorted := make([]TensorMeta, len(h.Tensors))
	copy(sorted, h.Tensors)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Offset < sorted[j].Offset })
	for i, t := range sorted {
		if t.Offset < 0 || t.Offset+t.Size > dataSize {
			return &ValidationError{Type: "out_of_bounds", Tensor: t.Name,
				Details: fmt.Sprintf("offset %d + size %d > data_size %d", t.Offset, t.Size, dataSize)}
		}
		if i+1 < len(sorted) && t.Offset+t.Size > sorted[i+1].Offset {
			return &ValidationError{Type: "offset_overlap", Tensor: t.Name,
				Details: fmt.Sprintf("overlaps %q", sorted[i+1].Name)}
		}
	}
	return nil
}

func validateTensor(t TensorMeta) error {
	switch {
	case t.Name == "" || len(t.Name) > MaxTensorNameLen:
		return &ValidationError{Type: "invalid_name", Tensor: t.Name, Details: "empty or too long"}
	case strings.Contains(t.Name, "..") || strings.ContainsAny(t.Name, "/\\\x00"):
		return &ValidationError{Type: "invalid_name", Tensor: t.Name, Details: "contains a path separator, '..' or a null byte"}
	case t.DType != DTypeFloat32:
		return &ValidationError{Type: "invalid_dtype", Tensor: t.Name, Details: t.DType}
	}
	n := int64(4)
	for _, d := range t.Shape {
		if d <= 0 {
			return &ValidationError{Type: "invalid_shape", Tensor: t.Name, Details: fmt.Sprint(t.Shape)}
		}
		n *= int64(d)
	}
	if n != t.Size {
		return &ValidationError{Type: "size_mismatch", Tensor: t.Name,
			Details: fmt.Sprintf("shape %v needs %d bytes, header says %d", t.Shape, n, t.Size)}
	}
	return nil
}
