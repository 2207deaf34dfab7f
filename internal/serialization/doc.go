// Package serialization implements the .born checkpoint format used for the
// best and final weights of a training run and for fitted DKL models.
//
//	Format Structure (v2):
//	  [0x00: 4 bytes  Magic "BORN"]
//	  [0x04: 4 bytes  Version (uint32 LE)]
//	  [0x08: 4 bytes  Flags (uint32 LE)]
//	  [0x0C: 4 bytes  Reserved]
//	  [0x10: 8 bytes  Header size (uint64 LE)]
//	  [0x18: 8 bytes  Data size (uint64 LE)]
//	  [0x20: 32 bytes SHA-256 of the tensor data]
//	  [Header: JSON metadata]
//	  [Tensor data: float32 LE, 64-byte aligned]
//
// Example usage:
//
//	err := serialization.WriteFile("model_weights_final.born", stateDict, header)
//	stateDict, header, err := serialization.ReadFile("model_weights_final.born")
package serialization
