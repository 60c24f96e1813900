// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package tcp_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"

	"github.com/luxfi/iht/control"
	"github.com/luxfi/iht/control/tcp"
	"github.com/luxfi/iht/rma"
)

// TestChannelRejectsUseAfterClose exercises Close's effect on a Channel
// built directly (no network round trip), without depending on a live
// listener address being known ahead of time.
func TestChannelRejectsUseAfterClose(t *testing.T) {
	ctx := context.Background()
	logger := log.NewNoOpLogger()
	self := ids.GenerateTestNodeID()

	ch, err := tcp.NewHost(ctx, logger, self, "127.0.0.1:0", nil)
	require.NoError(t, err)

	require.NoError(t, ch.Close())

	err = ch.SendRoot(ctx, rma.RemotePtr[byte]{Owner: self, Addr: 1})
	require.ErrorIs(t, err, control.ErrChannelClosed)

	_, err = ch.RecvRoot(ctx)
	require.ErrorIs(t, err, control.ErrChannelClosed)

	err = ch.Barrier(ctx, "ready")
	require.ErrorIs(t, err, control.ErrChannelClosed)

	err = ch.DrainAck(ctx)
	require.ErrorIs(t, err, control.ErrChannelClosed)
}

// TestHostAndPeerExchangeRoot drives a real TCP host/peer pair over a
// loopback listener, mirroring original_source/tcp.h's SocketManager
// (host) / EndpointManager (peer) roles.
func TestHostAndPeerExchangeRoot(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	logger := log.NewNoOpLogger()

	host := ids.GenerateTestNodeID()
	peer := ids.GenerateTestNodeID()

	hostListenErrCh := make(chan error, 1)
	hostChCh := make(chan *tcp.Channel, 1)

	// A fixed loopback port keeps this test self-contained; tests in this
	// package don't run in parallel with each other, so reuse is safe.
	const addr = "127.0.0.1:18423"

	go func() {
		ch, err := tcp.NewHost(ctx, logger, host, addr, []ids.NodeID{peer})
		hostChCh <- ch
		hostListenErrCh <- err
	}()

	var peerCh *tcp.Channel
	require.Eventually(t, func() bool {
		var err error
		peerCh, err = tcp.NewPeer(ctx, logger, peer, addr, []ids.NodeID{host})
		return err == nil
	}, 2*time.Second, 20*time.Millisecond)

	require.NoError(t, <-hostListenErrCh)
	hostCh := <-hostChCh
	defer hostCh.Close()
	defer peerCh.Close()

	root := rma.RemotePtr[byte]{Owner: host, Addr: 0xABCD}
	require.NoError(t, hostCh.SendRoot(ctx, root))

	got, err := peerCh.RecvRoot(ctx)
	require.NoError(t, err)
	require.Equal(t, root, got)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		require.NoError(t, hostCh.Barrier(ctx, "ready"))
	}()
	go func() {
		defer wg.Done()
		require.NoError(t, peerCh.Barrier(ctx, "ready"))
	}()
	wg.Wait()

	wg.Add(2)
	go func() {
		defer wg.Done()
		require.NoError(t, hostCh.DrainAck(ctx))
	}()
	go func() {
		defer wg.Done()
		require.NoError(t, peerCh.DrainAck(ctx))
	}()
	wg.Wait()
}
