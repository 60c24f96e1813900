// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package iht

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/luxfi/ids"
	"github.com/luxfi/iht/rma"
	"github.com/luxfi/iht/rma/local"
	"github.com/luxfi/iht/rma/rmamock"
)

// TestTryAcquireRetriesThroughContention injects one transient ELocked
// observation before the lock frees up, exercising the spin branch of
// tryAcquire (Design Note §9-2's distinct "retry" outcome) without relying
// on real goroutine scheduling to produce the race.
func TestTryAcquireRetriesThroughContention(t *testing.T) {
	ctrl := gomock.NewController(t)
	pool := rmamock.NewPool(ctrl)

	self := ids.GenerateTestNodeID()
	lock := rma.RemotePtr[uint64]{Owner: self, Addr: 64}

	gomock.InOrder(
		pool.EXPECT().CompareAndSwap(lock, uint64(EUnlocked), uint64(ELocked)).Return(uint64(ELocked), nil),
		pool.EXPECT().CompareAndSwap(lock, uint64(EUnlocked), uint64(ELocked)).Return(uint64(EUnlocked), nil),
	)

	result, err := tryAcquire(pool, lock)
	require.NoError(t, err)
	require.Equal(t, acquireSucceeded, result)
}

// TestTryAcquireObservesPermanentDemotion confirms a PUnlocked observation
// is reported as acquireDescend rather than treated as a failed acquire.
func TestTryAcquireObservesPermanentDemotion(t *testing.T) {
	ctrl := gomock.NewController(t)
	pool := rmamock.NewPool(ctrl)

	self := ids.GenerateTestNodeID()
	lock := rma.RemotePtr[uint64]{Owner: self, Addr: 128}

	pool.EXPECT().CompareAndSwap(lock, uint64(EUnlocked), uint64(ELocked)).Return(uint64(PUnlocked), nil)

	result, err := tryAcquire(pool, lock)
	require.NoError(t, err)
	require.Equal(t, acquireDescend, result)
}

// TestDescendRereadsBucketAfterObservingDemotion exercises the race between
// a bucket's readBucket (before tryAcquire) and a concurrent rehash that
// demotes the same bucket and publishes its new child before the CAS
// observes PUnlocked. descend must re-read the bucket after that
// observation and follow the freshly published child, not the pre-rehash
// one it started with.
func TestDescendRereadsBucketAfterObservingDemotion(t *testing.T) {
	ctrl := gomock.NewController(t)
	pool := rmamock.NewPool(ctrl)

	self := ids.GenerateTestNodeID()
	cfg := Config{ElistCapacity: 4, PlistSizeBase: 2}
	table := &Table[int, int]{
		pool:   pool,
		cfg:    cfg,
		hasher: func(k int) uint64 { return uint64(k) },
		root:   rma.RemotePtr[byte]{Owner: self, Addr: 0},
	}

	raw := table.hasher(5)
	b := int(levelHash(raw, 1) % uint64(cfg.PlistSizeBase))
	slot := bucketSlot(table.root, b)
	lock := rma.RemotePtr[uint64]{Owner: self, Addr: 9000}

	staleChild := rma.RemotePtr[byte]{Owner: self, Addr: 100}  // pre-rehash EList
	freshChild := rma.RemotePtr[byte]{Owner: self, Addr: 200} // post-rehash PList

	staleEncoded, err := encodeBucket(Bucket{Child: staleChild, Lock: lock})
	require.NoError(t, err)
	freshEncoded, err := encodeBucket(Bucket{Child: freshChild, Lock: lock})
	require.NoError(t, err)

	childDepth := 2
	childSize := plistSizeAt(cfg.PlistSizeBase, childDepth)
	b2 := int(levelHash(raw, childDepth) % uint64(childSize))
	childLock := rma.RemotePtr[uint64]{Owner: self, Addr: 9500}
	childSlot := bucketSlot(freshChild, b2)
	childEncoded, err := encodeBucket(Bucket{Lock: childLock})
	require.NoError(t, err)

	gomock.InOrder(
		// Initial read sees the bucket before the rehash race resolves.
		pool.EXPECT().Read(slot, bucketWireSize).Return(staleEncoded, nil),
		// tryAcquire's CAS loses the race: the bucket is already demoted.
		pool.EXPECT().CompareAndSwap(lock, uint64(EUnlocked), uint64(ELocked)).Return(uint64(PUnlocked), nil),
		// descend re-reads the same slot and must see the published child.
		pool.EXPECT().Read(slot, bucketWireSize).Return(freshEncoded, nil),
		pool.EXPECT().Read(childSlot, bucketWireSize).Return(childEncoded, nil),
		pool.EXPECT().CompareAndSwap(childLock, uint64(EUnlocked), uint64(ELocked)).Return(uint64(EUnlocked), nil),
	)

	plist, idx, bucket, depth, err := table.descend(5)
	require.NoError(t, err)
	require.Equal(t, 2, depth)
	require.Equal(t, b2, idx)
	require.Equal(t, freshChild, plist.Base, "descend must follow the freshly published child, not the stale pre-rehash one")
	require.Equal(t, childLock, bucket.Lock)
}

// TestBucketLockSerializesConcurrentAcquire drives many real goroutines at
// the same bucket lock over the in-process local.Pool and checks that
// exactly one holds it at a time, using a non-atomic counter as a witness:
// any interleaving bug would show up as counter > 1 at some observation.
func TestBucketLockSerializesConcurrentAcquire(t *testing.T) {
	cluster := local.NewCluster()
	self := ids.GenerateTestNodeID()
	pool := local.NewPool(cluster, self)

	lockBytePtr, err := pool.Allocate(8, 1)
	require.NoError(t, err)
	lock := rma.Recast[byte, uint64](lockBytePtr)
	_, err = pool.AtomicSwap(lock, uint64(EUnlocked))
	require.NoError(t, err)

	const workers = 32
	var holders int32
	var maxObserved int32
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := tryAcquire(pool, lock)
			require.NoError(t, err)
			require.Equal(t, acquireSucceeded, result)

			mu.Lock()
			holders++
			if holders > maxObserved {
				maxObserved = holders
			}
			mu.Unlock()

			mu.Lock()
			holders--
			mu.Unlock()

			require.NoError(t, unlock(pool, lock, EUnlocked))
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), maxObserved)
}
