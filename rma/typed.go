// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package rma

import (
	"bytes"
	"encoding/gob"
	"fmt"
)

// ReadT is the typed counterpart of Pool.Read: it reads the bytes at p and
// decodes them into a T. Callers use this to take a shadow copy of a remote
// structure before inspecting or mutating it locally.
func ReadT[T any](pool Pool, p RemotePtr[byte], wireSize int) (T, error) {
	var zero T
	raw, err := pool.Read(p, wireSize)
	if err != nil {
		return zero, fmt.Errorf("rma: read typed value at %+v: %w", p, err)
	}
	var out T
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&out); err != nil {
		return zero, fmt.Errorf("rma: decode typed value at %+v: %w", p, err)
	}
	return out, nil
}

// WriteT is the typed counterpart of Pool.Write: it encodes value and
// publishes it to p.
func WriteT[T any](pool Pool, p RemotePtr[byte], value T) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(value); err != nil {
		return fmt.Errorf("rma: encode typed value for %+v: %w", p, err)
	}
	if err := pool.Write(p, buf.Bytes()); err != nil {
		return fmt.Errorf("rma: write typed value at %+v: %w", p, err)
	}
	return nil
}

// AllocateT allocates count slots of wireSize bytes, room for count encoded
// instances of T, and returns an untyped RemotePtr[byte] to the first one.
func AllocateT[T any](pool Pool, wireSize int, count int) (RemotePtr[byte], error) {
	p, err := pool.Allocate(wireSize, count)
	if err != nil {
		return RemotePtr[byte]{}, fmt.Errorf("rma: allocate %d*T: %w", count, err)
	}
	return p, nil
}

// Recast reinterprets a RemotePtr's element type without changing the
// (Owner, Addr) pair it carries. RemotePtr carries no runtime type tag of
// its own, so the caller recasts explicitly where it knows what the memory
// holds; iht uses it to view a freshly allocated 8-byte cell as a
// RemotePtr[uint64] lock word. Bucket children stay RemotePtr[byte] and are
// read as an EList or a PList according to the lock state.
func Recast[From, To any](p RemotePtr[From]) RemotePtr[To] {
	return RemotePtr[To]{Owner: p.Owner, Addr: p.Addr}
}
