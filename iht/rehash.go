// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package iht

import (
	"fmt"

	"github.com/luxfi/iht/rma"
)

// elistWireSize is a generous upper bound on the gob encoding of an
// EList[K,V] of the given capacity. Trailing bytes in the reserved slot are
// simply never consumed by the gob decoder, which frames its own message
// length, so over-reserving costs arena space but never correctness.
func elistWireSize(capacity int) int {
	return 512 + capacity*256
}

// rehash implements spec.md §4.3.4: the current EList at bucket is full, so
// install a PList twice the size of the one that holds it one level deeper,
// redistribute the EList's live pairs into fresh ELists hung off that new
// PList, and return the new PList's address so the caller can publish it
// into the bucket and permanently demote the bucket's lock.
//
// The new PList and its children are built and fully populated before
// anything is linked into the table that other goroutines can reach --
// mirroring the original's publish-then-demote ordering (Design Note §9-3):
// a bucket only ever becomes visible as PUnlocked once its child subtree is
// completely written.
func rehash[K comparable, V any](pool rma.Pool, cfg Config, hasher Hasher[K], full *EList[K, V], depth int) (rma.RemotePtr[byte], error) {
	childSize := plistSizeAt(cfg.PlistSizeBase, depth+1)
	child, err := newPList(pool, childSize)
	if err != nil {
		return rma.RemotePtr[byte]{}, fmt.Errorf("iht: rehash: allocate child plist: %w", err)
	}

	wireSize := elistWireSize(cfg.ElistCapacity)
	elistPtrs := make(map[int]rma.RemotePtr[byte], len(full.live()))

	for _, pair := range full.live() {
		raw := hasher(pair.Key)
		b := int(levelHash(raw, depth+1) % uint64(childSize))

		elistPtr, ok := elistPtrs[b]
		if !ok {
			allocated, err := rma.AllocateT[EList[K, V]](pool, wireSize, 1)
			if err != nil {
				return rma.RemotePtr[byte]{}, fmt.Errorf("iht: rehash: allocate elist for bucket %d: %w", b, err)
			}
			if err := rma.WriteT(pool, allocated, *NewEList[K, V](cfg.ElistCapacity)); err != nil {
				return rma.RemotePtr[byte]{}, fmt.Errorf("iht: rehash: init elist for bucket %d: %w", b, err)
			}
			elistPtrs[b] = allocated
			elistPtr = allocated
		}

		e, err := rma.ReadT[EList[K, V]](pool, elistPtr, wireSize)
		if err != nil {
			return rma.RemotePtr[byte]{}, fmt.Errorf("iht: rehash: read elist for bucket %d: %w", b, err)
		}
		// The full EList holds at most ElistCapacity pairs and every new
		// EList has that same capacity, so even if all pairs land in one
		// bucket it fills but never overflows here; the check guards that
		// invariant rather than a reachable case.
		if outcome, _ := e.insert(pair.Key, pair.Val); outcome == elistFull {
			return rma.RemotePtr[byte]{}, fmt.Errorf("iht: rehash: bucket %d overflowed immediately after split", b)
		}
		if err := rma.WriteT(pool, elistPtr, e); err != nil {
			return rma.RemotePtr[byte]{}, fmt.Errorf("iht: rehash: write elist for bucket %d: %w", b, err)
		}
	}

	for b, elistPtr := range elistPtrs {
		bucket, err := readBucket(pool, child, b)
		if err != nil {
			return rma.RemotePtr[byte]{}, fmt.Errorf("iht: rehash: read fresh bucket %d: %w", b, err)
		}
		if err := writeBucketChild(pool, child, b, bucket.Lock, elistPtr); err != nil {
			return rma.RemotePtr[byte]{}, fmt.Errorf("iht: rehash: publish bucket %d: %w", b, err)
		}
	}

	return child.Base, nil
}
