// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package rma defines the remote memory access capability that the
// Interlocked Hash Table is built on top of: typed pointers into memory that
// may be owned by a peer node, and the one-sided operations used to read,
// write, and atomically update that memory without the owner's involvement.
//
// rma itself is consumed, not implemented here as a real RDMA transport; see
// rma/local for an in-process reference Pool and rma/netpool for one backed
// by real network round trips.
package rma

import (
	"errors"

	"github.com/luxfi/ids"
)

// ErrTransportFailure is returned by a Pool method when the underlying
// fabric could not complete a one-sided operation. Per the design, this is
// fatal to the calling operation; there is no partial-failure recovery.
var ErrTransportFailure = errors.New("rma: transport failure")

// RemotePtr addresses a value of type T that may live on any node in the
// cluster. Dereference is never implicit: callers go through a Pool.
type RemotePtr[T any] struct {
	Owner ids.NodeID
	Addr  uint64
}

// Nil reports whether p is the null remote pointer.
func (p RemotePtr[T]) Nil() bool {
	var zero RemotePtr[T]
	return p == zero
}

// Local reports whether p names memory owned by self, and is therefore
// directly addressable without a one-sided RMA round trip.
func (p RemotePtr[T]) Local(self ids.NodeID) bool {
	return p.Owner == self
}

// Pool is the set of one-sided primitives an IHT instance is built from.
// Every method may be called with a RemotePtr whose Owner is any node,
// including self; implementations are free to special-case the local case,
// but callers route all access through Pool rather than branching on
// ownership themselves (the branch lives in rma, not in iht).
type Pool interface {
	// Self is the node ID this pool instance runs as.
	Self() ids.NodeID

	// Read copies the remote value at p into a local shadow and returns it.
	Read(p RemotePtr[byte], size int) ([]byte, error)

	// Write publishes a local buffer to the remote address p.
	Write(p RemotePtr[byte], data []byte) error

	// CompareAndSwap performs an atomic compare-and-swap on the 64-bit word
	// at p, returning the value observed before the swap attempt.
	CompareAndSwap(p RemotePtr[uint64], old, new uint64) (observed uint64, err error)

	// AtomicSwap unconditionally swaps the 64-bit word at p, returning the
	// previous value.
	AtomicSwap(p RemotePtr[uint64], new uint64) (previous uint64, err error)

	// Allocate reserves count*size(T) bytes on self and returns a pointer to
	// the first element. The memory belongs to the thread's arena; it is
	// never freed except via Deallocate or pool Close.
	Allocate(size int, count int) (RemotePtr[byte], error)

	// Deallocate releases previously allocated memory. Per design note §9,
	// this is a best-effort optimization, never required for correctness.
	Deallocate(p RemotePtr[byte]) error

	// RegisterThread reserves any per-goroutine resources (e.g. a connection
	// slot) needed before the calling goroutine issues RMA operations. It is
	// a no-op for pools that don't partition resources per thread.
	RegisterThread() error

	// Close releases all resources held by the pool.
	Close() error
}
