// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package local_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/ids"
	"github.com/luxfi/iht/rma"
	"github.com/luxfi/iht/rma/local"
)

func TestPoolReadWriteRoundTrip(t *testing.T) {
	cluster := local.NewCluster()
	self := ids.GenerateTestNodeID()
	pool := local.NewPool(cluster, self)

	ptr, err := pool.Allocate(1, 16)
	require.NoError(t, err)

	require.NoError(t, pool.Write(ptr, []byte("hello world12345")[:16]))
	got, err := pool.Read(ptr, 16)
	require.NoError(t, err)
	require.Equal(t, []byte("hello world12345")[:16], got)
}

func TestPoolCompareAndSwap(t *testing.T) {
	cluster := local.NewCluster()
	self := ids.GenerateTestNodeID()
	pool := local.NewPool(cluster, self)

	bptr, err := pool.Allocate(8, 1)
	require.NoError(t, err)
	lockPtr := rma.Recast[byte, uint64](bptr)

	require.NoError(t, pool.Write(bptr, []byte{1, 0, 0, 0, 0, 0, 0, 0}))

	observed, err := pool.CompareAndSwap(lockPtr, 1, 0)
	require.NoError(t, err)
	require.Equal(t, uint64(1), observed)

	// A second CAS against the old value now fails and reports the current one.
	observed, err = pool.CompareAndSwap(lockPtr, 1, 2)
	require.NoError(t, err)
	require.Equal(t, uint64(0), observed)
}

func TestPoolAtomicSwap(t *testing.T) {
	cluster := local.NewCluster()
	self := ids.GenerateTestNodeID()
	pool := local.NewPool(cluster, self)

	bptr, err := pool.Allocate(8, 1)
	require.NoError(t, err)
	lockPtr := rma.Recast[byte, uint64](bptr)

	prev, err := pool.AtomicSwap(lockPtr, 2)
	require.NoError(t, err)
	require.Equal(t, uint64(0), prev)

	prev, err = pool.AtomicSwap(lockPtr, 9)
	require.NoError(t, err)
	require.Equal(t, uint64(2), prev)
}

func TestPoolCrossNodeAddressing(t *testing.T) {
	cluster := local.NewCluster()
	nodeA := ids.GenerateTestNodeID()
	nodeB := ids.GenerateTestNodeID()
	poolA := local.NewPool(cluster, nodeA)
	poolB := local.NewPool(cluster, nodeB)

	ptr, err := poolA.Allocate(1, 4)
	require.NoError(t, err)
	require.True(t, ptr.Local(nodeA))
	require.False(t, ptr.Local(nodeB))

	require.NoError(t, poolA.Write(ptr, []byte("ABCD")))
	got, err := poolB.Read(ptr, 4)
	require.NoError(t, err)
	require.Equal(t, []byte("ABCD"), got)
}
