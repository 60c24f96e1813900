// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package control defines the bootstrap-time control channel a node uses to
// exchange its table root with its peers and to synchronize phase
// transitions before any rma traffic starts. The wire transport itself
// (original_source/tcp.h's SocketManager/EndpointManager pair) is out of
// scope for this package's contract; control/tcp supplies one concrete
// implementation.
package control

import (
	"context"
	"errors"

	"github.com/luxfi/ids"
	"github.com/luxfi/iht/rma"
)

// ErrChannelClosed is returned by control/tcp's SendRoot, RecvRoot, Barrier
// and DrainAck when called after Close. control/controlmock never returns it.
var ErrChannelClosed = errors.New("control: channel closed")

// Channel is the bootstrap-time rendezvous a node uses to learn its peers'
// identities, publish or receive the table root, and synchronize barriers
// before the measured portion of a run begins. It carries no table
// operations itself -- once every node holds a bound iht.Table, the control
// channel is only used again for the final drain.
type Channel interface {
	// Peers lists every other node this channel was configured to rendezvous
	// with, in a stable order shared by every node.
	Peers() []ids.NodeID

	// SendRoot publishes root to every peer. Called exactly once, by the
	// node that calls iht.Table.InitRoot.
	SendRoot(ctx context.Context, root rma.RemotePtr[byte]) error

	// RecvRoot blocks until the host's root has been received. Called by
	// every non-host node exactly once, before any table operation.
	RecvRoot(ctx context.Context) (rma.RemotePtr[byte], error)

	// Barrier blocks until every peer (and this node) has called Barrier
	// with the same stage name, then releases all of them together.
	Barrier(ctx context.Context, stage string) error

	// DrainAck signals that this node has finished issuing operations and
	// waits for every peer to do the same, so no node closes its Pool while
	// another still has in-flight one-sided RMA targeting it.
	DrainAck(ctx context.Context) error

	// Close releases the channel's resources.
	Close() error
}
