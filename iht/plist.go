// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package iht

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/luxfi/iht/rma"
)

// bucketWireSize is the fixed slot every bucket occupies inside a PList's
// backing allocation. Buckets live at base+i*bucketWireSize so that
// changing one bucket's child pointer never touches its neighbors -- the
// Go analogue of the original's pointer arithmetic into a flat
// plist_pair_t[] array (change_bucket_pointer in original_source/iht_ds.h).
const bucketWireSize = 512

// Bucket pairs a child pointer with the lock word guarding it. The
// discriminant between "child is an EList" and "child is a PList" is never
// carried explicitly: it's implied by the value behind Lock (spec.md §3
// invariant 3). Lock is assigned once at PList init and never changes
// afterward; only Child is ever rewritten, and always by whichever
// goroutine holds Lock.
type Bucket struct {
	Child rma.RemotePtr[byte]
	Lock  rma.RemotePtr[uint64]
}

// PList is an interior node: a handle to an array of buckets indexed by
// level-hash, addressed through Base. It carries no bucket data itself --
// buckets are read and written slot-by-slot through Pool so that a write to
// one bucket can never race with a concurrent write to another.
type PList struct {
	Base rma.RemotePtr[byte]
	Size int
}

// plistSizeAt returns the bucket count of a PList installed at depth d (root
// is depth 1): PlistSizeBase * 2^(d-1).
func plistSizeAt(base int, depth int) int {
	return base << (depth - 1)
}

func encodeBucket(b Bucket) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(b); err != nil {
		return nil, fmt.Errorf("iht: encode bucket: %w", err)
	}
	if buf.Len() > bucketWireSize {
		return nil, fmt.Errorf("iht: encoded bucket (%d bytes) exceeds slot size %d", buf.Len(), bucketWireSize)
	}
	return buf.Bytes(), nil
}

func decodeBucket(raw []byte) (Bucket, error) {
	var b Bucket
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&b); err != nil {
		return Bucket{}, fmt.Errorf("iht: decode bucket: %w", err)
	}
	return b, nil
}

// bucketSlot is the address of bucket index within a PList's allocation.
func bucketSlot(base rma.RemotePtr[byte], index int) rma.RemotePtr[byte] {
	return rma.RemotePtr[byte]{Owner: base.Owner, Addr: base.Addr + uint64(index*bucketWireSize)}
}

// newPList allocates and initializes a PList of the given size: every
// bucket gets a freshly allocated EUnlocked lock cell and a nil child,
// exactly as original_source/iht_ds.h's InitPList.
func newPList(pool rma.Pool, size int) (*PList, error) {
	base, err := pool.Allocate(bucketWireSize, size)
	if err != nil {
		return nil, fmt.Errorf("iht: allocate plist of size %d: %w", size, err)
	}
	for i := 0; i < size; i++ {
		lockPtr, err := pool.Allocate(8, 1)
		if err != nil {
			return nil, fmt.Errorf("iht: allocate lock cell: %w", err)
		}
		lock := rma.Recast[byte, uint64](lockPtr)
		if _, err := pool.AtomicSwap(lock, uint64(EUnlocked)); err != nil {
			return nil, fmt.Errorf("iht: init lock cell: %w", err)
		}
		encoded, err := encodeBucket(Bucket{Lock: lock})
		if err != nil {
			return nil, err
		}
		if err := pool.Write(bucketSlot(base, i), encoded); err != nil {
			return nil, fmt.Errorf("iht: init bucket %d: %w", i, err)
		}
	}
	return &PList{Base: base, Size: size}, nil
}

// readBucket fetches bucket index's current state.
func readBucket(pool rma.Pool, p *PList, index int) (Bucket, error) {
	slot := bucketSlot(p.Base, index)
	raw, err := pool.Read(slot, bucketWireSize)
	if err != nil {
		return Bucket{}, fmt.Errorf("iht: read bucket %d: %w", index, err)
	}
	return decodeBucket(raw)
}

// writeBucketChild publishes a new child for bucket index, preserving its
// (immutable) lock pointer. Safe to call only while that bucket's lock is
// held by the caller.
func writeBucketChild(pool rma.Pool, p *PList, index int, lock rma.RemotePtr[uint64], child rma.RemotePtr[byte]) error {
	encoded, err := encodeBucket(Bucket{Child: child, Lock: lock})
	if err != nil {
		return err
	}
	if err := pool.Write(bucketSlot(p.Base, index), encoded); err != nil {
		return fmt.Errorf("iht: write bucket %d: %w", index, err)
	}
	return nil
}
