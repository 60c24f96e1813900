// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package controlmock provides a simple in-process double for
// control.Channel, for tests that need a host and its peers to rendezvous
// without a real TCP listener (mirrors the teacher's sendermock hand-rolled
// style rather than a gomock-generated one, since control.Channel's surface
// is small and its tests care about sequencing, not call-count assertions).
package controlmock

import (
	"context"
	"sync"

	"github.com/luxfi/ids"

	"github.com/luxfi/iht/control"
	"github.com/luxfi/iht/rma"
)

// Cluster is shared state backing every Channel handed out by New for one
// logical run: one root exchange and any number of named barriers.
type Cluster struct {
	mu    sync.Mutex
	peers []ids.NodeID

	root      rma.RemotePtr[byte]
	rootReady chan struct{}
	rootOnce  sync.Once

	barriers map[string]*barrier
	drain    *barrier
}

type barrier struct {
	mu      sync.Mutex
	arrived map[ids.NodeID]bool
	target  int
	release chan struct{}
}

func newBarrier(target int) *barrier {
	return &barrier{arrived: make(map[ids.NodeID]bool), target: target, release: make(chan struct{})}
}

func (b *barrier) arrive(node ids.NodeID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.arrived[node] = true
	if len(b.arrived) >= b.target {
		select {
		case <-b.release:
		default:
			close(b.release)
		}
	}
}

// NewCluster builds shared rendezvous state for a run with the given full
// node set (host included).
func NewCluster(nodes []ids.NodeID) *Cluster {
	return &Cluster{
		peers:     nodes,
		rootReady: make(chan struct{}),
		barriers:  make(map[string]*barrier),
		drain:     newBarrier(len(nodes)),
	}
}

func (c *Cluster) barrierFor(stage string) *barrier {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.barriers[stage]
	if !ok {
		b = newBarrier(len(c.peers))
		c.barriers[stage] = b
	}
	return b
}

// Channel is one node's view onto a Cluster.
type Channel struct {
	cluster *Cluster
	self    ids.NodeID
	peers   []ids.NodeID
}

// New returns a Channel for self, whose Peers() excludes self itself.
func New(cluster *Cluster, self ids.NodeID) *Channel {
	var peers []ids.NodeID
	for _, n := range cluster.peers {
		if n != self {
			peers = append(peers, n)
		}
	}
	return &Channel{cluster: cluster, self: self, peers: peers}
}

func (c *Channel) Peers() []ids.NodeID { return c.peers }

func (c *Channel) SendRoot(ctx context.Context, root rma.RemotePtr[byte]) error {
	c.cluster.rootOnce.Do(func() {
		c.cluster.mu.Lock()
		c.cluster.root = root
		c.cluster.mu.Unlock()
		close(c.cluster.rootReady)
	})
	return nil
}

func (c *Channel) RecvRoot(ctx context.Context) (rma.RemotePtr[byte], error) {
	select {
	case <-ctx.Done():
		return rma.RemotePtr[byte]{}, ctx.Err()
	case <-c.cluster.rootReady:
		c.cluster.mu.Lock()
		defer c.cluster.mu.Unlock()
		return c.cluster.root, nil
	}
}

func (c *Channel) Barrier(ctx context.Context, stage string) error {
	b := c.cluster.barrierFor(stage)
	b.arrive(c.self)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-b.release:
		return nil
	}
}

func (c *Channel) DrainAck(ctx context.Context) error {
	c.cluster.drain.arrive(c.self)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.cluster.drain.release:
		return nil
	}
}

func (c *Channel) Close() error { return nil }

var _ control.Channel = (*Channel)(nil)
