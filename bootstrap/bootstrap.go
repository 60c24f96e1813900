// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package bootstrap wires a rma.Pool and a control.Channel together to
// establish a shared iht.Table root across every node in a run, following
// original_source/iht_ds.h's Init: exactly one node (the host) allocates
// the root PList and publishes its address; every other node (a peer)
// waits to receive it before issuing any table operation.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/luxfi/log"

	"github.com/luxfi/iht/control"
	"github.com/luxfi/iht/iht"
	"github.com/luxfi/iht/rma"
)

// Sentinel errors surfaced by InitAsHost/InitAsPeer.
var (
	// ErrPoolInit is returned when the rma.Pool could not be prepared for
	// this goroutine's use (RegisterThread failed).
	ErrPoolInit = errors.New("bootstrap: pool initialization failed")
	// ErrPeerConnect is returned when the control channel could not be
	// established with the rest of the cluster.
	ErrPeerConnect = errors.New("bootstrap: peer connection failed")
	// ErrRootExchangeTimeout is returned when a peer's context is canceled
	// before the host's root arrives.
	ErrRootExchangeTimeout = errors.New("bootstrap: root exchange timed out")
)

// InitAsHost allocates the table root and publishes it to every peer over
// ch, returning a Table bound to that root and ready for use.
func InitAsHost[K comparable, V any](ctx context.Context, logger log.Logger, pool rma.Pool, cfg iht.Config, hasher iht.Hasher[K], ch control.Channel) (*iht.Table[K, V], error) {
	if err := pool.RegisterThread(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPoolInit, err)
	}
	table, err := iht.NewTable[K, V](pool, cfg, hasher)
	if err != nil {
		return nil, err
	}
	root, err := table.InitRoot()
	if err != nil {
		return nil, fmt.Errorf("bootstrap: allocate root: %w", err)
	}
	if err := ch.SendRoot(ctx, root); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPeerConnect, err)
	}
	logger.Info("bootstrap host ready", log.Int("peers", len(ch.Peers())))
	return table, nil
}

// InitAsPeer waits to receive the host's root over ch and returns a Table
// bound to it.
func InitAsPeer[K comparable, V any](ctx context.Context, logger log.Logger, pool rma.Pool, cfg iht.Config, hasher iht.Hasher[K], ch control.Channel) (*iht.Table[K, V], error) {
	if err := pool.RegisterThread(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPoolInit, err)
	}
	table, err := iht.NewTable[K, V](pool, cfg, hasher)
	if err != nil {
		return nil, err
	}
	root, err := ch.RecvRoot(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ErrRootExchangeTimeout
		}
		return nil, fmt.Errorf("%w: %v", ErrPeerConnect, err)
	}
	table.SetRoot(root)
	logger.Info("bootstrap peer bound to host root")
	return table, nil
}
