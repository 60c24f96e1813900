// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package netpool is a net/rpc-backed implementation of rma.Pool: each node
// runs a Server exposing its local arena over TCP, and a Pool dials a
// peer's Server the first time it addresses that peer's memory. Unlike
// rma/local, a Read or Write against a remote RemotePtr here is a genuine
// network round trip, exercising the same one-sided-operation contract
// real RDMA hardware would.
package netpool

import (
	"fmt"
	"net"
	"net/rpc"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/luxfi/ids"

	"github.com/luxfi/iht/rma"
)

// arenaCapacity bounds one node's address space, matching rma/local's fixed
// bump-allocator arena.
const arenaCapacity = 1 << 24

// arena is one node's slice of memory plus a bump allocator, served to
// peers through the Arena RPC service.
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

func (a *arena) word(addr uint64) *uint64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return (*uint64)(unsafe.Pointer(&a.mem[addr]))
}

// Arena is the RPC service exposing one node's arena to peer Pools. Method
// names and Args/Reply pairs follow net/rpc's convention (exported method,
// two exported-field arguments, error return).
type Arena struct {
	a *arena
}

type ReadArgs struct {
	Addr uint64
	Size int
}

type ReadReply struct {
	Data []byte
}

// Read serves a peer's rma.Pool.Read against this node's arena.
func (s *Arena) Read(args ReadArgs, reply *ReadReply) error {
	reply.Data = s.a.read(args.Addr, args.Size)
	return nil
}

type WriteArgs struct {
	Addr uint64
	Data []byte
}

type WriteReply struct{}

// Write serves a peer's rma.Pool.Write against this node's arena.
func (s *Arena) Write(args WriteArgs, reply *WriteReply) error {
	s.a.write(args.Addr, args.Data)
	return nil
}

type CASArgs struct {
	Addr     uint64
	Old, New uint64
}

type CASReply struct {
	Observed uint64
}

// CompareAndSwap serves a peer's rma.Pool.CompareAndSwap.
func (s *Arena) CompareAndSwap(args CASArgs, reply *CASReply) error {
	word := s.a.word(args.Addr)
	if atomic.CompareAndSwapUint64(word, args.Old, args.New) {
		reply.Observed = args.Old
		return nil
	}
	reply.Observed = atomic.LoadUint64(word)
	return nil
}

type SwapArgs struct {
	Addr uint64
	New  uint64
}

type SwapReply struct {
	Previous uint64
}

// AtomicSwap serves a peer's rma.Pool.AtomicSwap.
func (s *Arena) AtomicSwap(args SwapArgs, reply *SwapReply) error {
	word := s.a.word(args.Addr)
	reply.Previous = atomic.SwapUint64(word, args.New)
	return nil
}

// Server listens for RPC connections from peer Pools, serving this node's
// arena. Allocate is never served remotely: a node only ever allocates its
// own memory, so Pool.Allocate always goes straight to the local arena.
type Server struct {
	listener net.Listener
	arena    *arena
	rpc      *rpc.Server
}

// NewServer allocates a fresh arena, starts an RPC server bound to addr, and
// begins accepting connections in the background.
func NewServer(addr string) (*Server, error) {
	a := newArena()
	srv := rpc.NewServer()
	if err := srv.RegisterName("Arena", &Arena{a: a}); err != nil {
		return nil, fmt.Errorf("netpool: register arena service: %w", err)
	}
	lst, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("netpool: listen on %s: %w", addr, err)
	}
	s := &Server{listener: lst, arena: a, rpc: srv}
	go s.rpc.Accept(s.listener)
	return s, nil
}

// Addr returns the address the server is actually listening on, useful when
// NewServer was called with a ":0" wildcard port.
func (s *Server) Addr() string { return s.listener.Addr().String() }

// Close stops accepting new connections.
func (s *Server) Close() error { return s.listener.Close() }

// Pool implements rma.Pool over net/rpc: reads and writes against self route
// straight to the local arena; everything else dials (and caches) a
// connection to the owning peer's Server.
type Pool struct {
	self  ids.NodeID
	local *arena

	addrs map[ids.NodeID]string

	mu      sync.Mutex
	clients map[ids.NodeID]*rpc.Client
}

// NewPool returns a Pool for self, serving its own memory through server and
// reaching every other node in peerAddrs by address.
func NewPool(self ids.NodeID, server *Server, peerAddrs map[ids.NodeID]string) *Pool {
	return &Pool{
		self:    self,
		local:   server.arena,
		addrs:   peerAddrs,
		clients: make(map[ids.NodeID]*rpc.Client),
	}
}

func (p *Pool) Self() ids.NodeID { return p.self }

// clientFor returns a cached RPC client to owner, dialing lazily on first
// use. It holds p.mu across the lookup and dial so two goroutines racing to
// address the same new peer share one connection rather than leaking a second.
func (p *Pool) clientFor(owner ids.NodeID) (*rpc.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.clients[owner]; ok {
		return c, nil
	}
	addr, ok := p.addrs[owner]
	if !ok {
		return nil, fmt.Errorf("netpool: no address registered for node %s", owner)
	}
	c, err := rpc.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", rma.ErrTransportFailure, addr, err)
	}
	p.clients[owner] = c
	return c, nil
}

func (p *Pool) Read(ptr rma.RemotePtr[byte], size int) ([]byte, error) {
	if ptr.Owner == p.self {
		return p.local.read(ptr.Addr, size), nil
	}
	client, err := p.clientFor(ptr.Owner)
	if err != nil {
		return nil, err
	}
	var reply ReadReply
	if err := client.Call("Arena.Read", ReadArgs{Addr: ptr.Addr, Size: size}, &reply); err != nil {
		return nil, fmt.Errorf("%w: %v", rma.ErrTransportFailure, err)
	}
	return reply.Data, nil
}

func (p *Pool) Write(ptr rma.RemotePtr[byte], data []byte) error {
	if ptr.Owner == p.self {
		p.local.write(ptr.Addr, data)
		return nil
	}
	client, err := p.clientFor(ptr.Owner)
	if err != nil {
		return err
	}
	var reply WriteReply
	if err := client.Call("Arena.Write", WriteArgs{Addr: ptr.Addr, Data: data}, &reply); err != nil {
		return fmt.Errorf("%w: %v", rma.ErrTransportFailure, err)
	}
	return nil
}

func (p *Pool) CompareAndSwap(ptr rma.RemotePtr[uint64], old, new uint64) (uint64, error) {
	if ptr.Owner == p.self {
		word := p.local.word(ptr.Addr)
		if atomic.CompareAndSwapUint64(word, old, new) {
			return old, nil
		}
		return atomic.LoadUint64(word), nil
	}
	client, err := p.clientFor(ptr.Owner)
	if err != nil {
		return 0, err
	}
	var reply CASReply
	if err := client.Call("Arena.CompareAndSwap", CASArgs{Addr: ptr.Addr, Old: old, New: new}, &reply); err != nil {
		return 0, fmt.Errorf("%w: %v", rma.ErrTransportFailure, err)
	}
	return reply.Observed, nil
}

func (p *Pool) AtomicSwap(ptr rma.RemotePtr[uint64], new uint64) (uint64, error) {
	if ptr.Owner == p.self {
		word := p.local.word(ptr.Addr)
		return atomic.SwapUint64(word, new), nil
	}
	client, err := p.clientFor(ptr.Owner)
	if err != nil {
		return 0, err
	}
	var reply SwapReply
	if err := client.Call("Arena.AtomicSwap", SwapArgs{Addr: ptr.Addr, New: new}, &reply); err != nil {
		return 0, fmt.Errorf("%w: %v", rma.ErrTransportFailure, err)
	}
	return reply.Previous, nil
}

// Allocate always reserves memory on self: a node never allocates a peer's
// address space.
func (p *Pool) Allocate(size, count int) (rma.RemotePtr[byte], error) {
	addr, err := p.local.allocate(size, count)
	if err != nil {
		return rma.RemotePtr[byte]{}, err
	}
	return rma.RemotePtr[byte]{Owner: p.self, Addr: addr}, nil
}

// Deallocate is a best-effort no-op, as in rma/local.
func (p *Pool) Deallocate(rma.RemotePtr[byte]) error { return nil }

// RegisterThread pre-dials every known peer so the calling goroutine's first
// real operation doesn't pay a connection-setup round trip; harmless to call
// more than once since clientFor caches by node.
func (p *Pool) RegisterThread() error {
	for node := range p.addrs {
		if _, err := p.clientFor(node); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every cached peer connection. The Server this Pool's local
// arena is served through has its own independent lifecycle and is not
// closed here.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var firstErr error
	for node, c := range p.clients {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(p.clients, node)
	}
	return firstErr
}

var _ rma.Pool = (*Pool)(nil)
