// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package iht

import (
	"encoding/binary"

	"github.com/luxfi/crypto"
)

// Hasher reduces a key to a 64-bit digest, the iht equivalent of the
// original's std::hash<K> pre_hash. Callers pick a Hasher that matches their
// key type; Uint64Hasher below covers the reference uint64-keyed workload.
type Hasher[K comparable] func(key K) uint64

// Uint64Hasher is the identity hasher used by the reference benchmark
// workload (integer keys).
func Uint64Hasher(key uint64) uint64 { return key }

// levelHash computes the per-depth bucket hash. spec.md §4.2 defines
// level_hash(k, d) = d XOR h(k); Design Note §9-4 flags that XOR against an
// identity hash is weak for adversarial or non-integer keys, and directs a
// reimplementation to plug in a mixing finalizer instead. This folds depth
// and the raw digest through Keccak256 (github.com/luxfi/crypto, the same
// hashing entry point the teacher corpus uses for digesting byte streams)
// so that a key's bucket at depth d+1 is not trivially derivable from its
// bucket at depth d.
func levelHash(raw uint64, depth int) uint64 {
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[0:8], raw)
	binary.LittleEndian.PutUint64(buf[8:16], uint64(depth))
	sum := crypto.Keccak256(buf[:])
	return binary.LittleEndian.Uint64(sum[:8])
}
