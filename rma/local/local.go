// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package local provides an in-process reference implementation of rma.Pool.
// All "nodes" live in the same process and share a Cluster, which holds one
// arena per node; CompareAndSwap and AtomicSwap are backed by real
// sync/atomic operations on the arena's backing array so that concurrency
// tests exercise genuine races rather than a serialized fake.
//
// This stands in for the real RDMA fabric (rma.Pool is the consumed
// capability); it is not a production remote-memory implementation.
package local

import (
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/luxfi/ids"

	"github.com/luxfi/iht/rma"
)

// arenaCapacity bounds one node's address space. The structure only grows
// during a run (never shrinks, never reallocates), so a fixed backing array
// lets word-granularity atomic ops take a stable *uint64 into it.
const arenaCapacity = 1 << 24

// arena is one node's slice of shared memory plus a bump allocator.
type arena struct {
	mu     sync.RWMutex
	mem    []byte
	nextAt uint64
}

func newArena() *arena {
	return &arena{mem: make([]byte, arenaCapacity)}
}

func (a *arena) allocate(size, count int) (uint64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	need := size * count
	if need <= 0 {
		need = size
	}
	if a.nextAt+uint64(need) > arenaCapacity {
		return 0, rma.ErrTransportFailure
	}
	addr := a.nextAt
	a.nextAt += uint64(need)
	return addr, nil
}

func (a *arena) read(addr uint64, n int) []byte {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]byte, n)
	copy(out, a.mem[addr:addr+uint64(n)])
	return out
}

func (a *arena) write(addr uint64, data []byte) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	copy(a.mem[addr:addr+uint64(len(data))], data)
}

// word returns a stable pointer into the arena suitable for sync/atomic
// access; safe because mem is allocated once at its full capacity and never
// reallocated.
func (a *arena) word(addr uint64) *uint64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return (*uint64)(unsafe.Pointer(&a.mem[addr]))
}

// Cluster is the shared backing store for every node in an in-process run.
// It models the memory fabric: each node owns one arena, and every Pool
// handed out by the Cluster can address any node's arena.
type Cluster struct {
	mu     sync.Mutex
	arenas map[ids.NodeID]*arena
}

// NewCluster creates an empty cluster.
func NewCluster() *Cluster {
	return &Cluster{arenas: make(map[ids.NodeID]*arena)}
}

func (c *Cluster) arenaFor(node ids.NodeID) *arena {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.arenas[node]
	if !ok {
		a = newArena()
		c.arenas[node] = a
	}
	return a
}

// Pool hands each worker goroutine its own view of the cluster, scoped to a
// single node identity; RegisterThread is where a pool with a finite
// connection budget would reserve one, matching the teacher's per-thread
// memory-pool remark (spec.md §9).
type Pool struct {
	cluster *Cluster
	self    ids.NodeID
}

// NewPool returns a Pool bound to self within cluster, allocating self's
// arena up front.
func NewPool(cluster *Cluster, self ids.NodeID) *Pool {
	cluster.arenaFor(self)
	return &Pool{cluster: cluster, self: self}
}

func (p *Pool) Self() ids.NodeID { return p.self }

func (p *Pool) Read(ptr rma.RemotePtr[byte], size int) ([]byte, error) {
	return p.cluster.arenaFor(ptr.Owner).read(ptr.Addr, size), nil
}

func (p *Pool) Write(ptr rma.RemotePtr[byte], data []byte) error {
	p.cluster.arenaFor(ptr.Owner).write(ptr.Addr, data)
	return nil
}

// CompareAndSwap attempts a single hardware CAS and reports the value
// observed beforehand; the caller (iht's tryAcquire) is responsible for
// retrying, exactly as in the one-sided RDMA CAS this models.
func (p *Pool) CompareAndSwap(ptr rma.RemotePtr[uint64], old, new uint64) (uint64, error) {
	word := p.cluster.arenaFor(ptr.Owner).word(ptr.Addr)
	if atomic.CompareAndSwapUint64(word, old, new) {
		return old, nil
	}
	return atomic.LoadUint64(word), nil
}

func (p *Pool) AtomicSwap(ptr rma.RemotePtr[uint64], new uint64) (uint64, error) {
	word := p.cluster.arenaFor(ptr.Owner).word(ptr.Addr)
	return atomic.SwapUint64(word, new), nil
}

func (p *Pool) Allocate(size, count int) (rma.RemotePtr[byte], error) {
	addr, err := p.cluster.arenaFor(p.self).allocate(size, count)
	if err != nil {
		return rma.RemotePtr[byte]{}, err
	}
	return rma.RemotePtr[byte]{Owner: p.self, Addr: addr}, nil
}

// Deallocate is a no-op: the arena only grows during a run (spec.md §9).
func (p *Pool) Deallocate(rma.RemotePtr[byte]) error { return nil }

func (p *Pool) RegisterThread() error { return nil }

func (p *Pool) Close() error { return nil }
