// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package bootstrap_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"

	"github.com/luxfi/iht/bootstrap"
	"github.com/luxfi/iht/control/controlmock"
	"github.com/luxfi/iht/iht"
	"github.com/luxfi/iht/rma/local"
)

func TestInitAsHostAndPeerShareRoot(t *testing.T) {
	ctx := context.Background()
	logger := log.NewNoOpLogger()

	host := ids.GenerateTestNodeID()
	peerA := ids.GenerateTestNodeID()
	peerB := ids.GenerateTestNodeID()
	nodes := []ids.NodeID{host, peerA, peerB}

	cluster := local.NewCluster()
	controlCluster := controlmock.NewCluster(nodes)

	cfg := iht.Config{ElistCapacity: 4, PlistSizeBase: 4}

	var wg sync.WaitGroup
	var mu sync.Mutex
	tables := make(map[ids.NodeID]*iht.Table[uint64, uint64])

	wg.Add(1)
	go func() {
		defer wg.Done()
		pool := local.NewPool(cluster, host)
		ch := controlmock.New(controlCluster, host)
		table, err := bootstrap.InitAsHost[uint64, uint64](ctx, logger, pool, cfg, iht.Uint64Hasher, ch)
		require.NoError(t, err)
		mu.Lock()
		tables[host] = table
		mu.Unlock()
	}()

	for _, p := range []ids.NodeID{peerA, peerB} {
		p := p
		wg.Add(1)
		go func() {
			defer wg.Done()
			pool := local.NewPool(cluster, p)
			ch := controlmock.New(controlCluster, p)
			table, err := bootstrap.InitAsPeer[uint64, uint64](ctx, logger, pool, cfg, iht.Uint64Hasher, ch)
			require.NoError(t, err)
			mu.Lock()
			tables[p] = table
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, tables, 3)
	for _, n := range nodes {
		require.Equal(t, tables[host].Root(), tables[n].Root())
	}

	// A value inserted by one node is visible through any other node's
	// table handle, since they all address the same root.
	outcome, _, err := tables[peerA].Insert(11, 110)
	require.NoError(t, err)
	require.Equal(t, iht.Inserted, outcome)

	outcome, val, err := tables[peerB].Contains(11)
	require.NoError(t, err)
	require.Equal(t, iht.Found, outcome)
	require.Equal(t, uint64(110), val)
}
