// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package iht

import (
	"fmt"

	"github.com/luxfi/iht/rma"
)

// Table is one node's handle onto a (possibly multi-node) Interlocked Hash
// Table. Two or more Tables sharing the same root, each backed by a Pool
// wired to the same cluster, see the same logical map: the table's state
// lives entirely in the memory the Pool addresses, never in the Table
// struct itself.
type Table[K comparable, V any] struct {
	pool   rma.Pool
	cfg    Config
	hasher Hasher[K]
	root   rma.RemotePtr[byte]
}

// NewTable builds a Table bound to pool and cfg but without a root yet; the
// caller (normally package bootstrap) must call InitRoot on exactly one
// node and SetRoot, fed with the value InitRoot returned, on every other
// node before any operation is issued.
func NewTable[K comparable, V any](pool rma.Pool, cfg Config, hasher Hasher[K]) (*Table[K, V], error) {
	if err := cfg.Valid(); err != nil {
		return nil, err
	}
	return &Table[K, V]{pool: pool, cfg: cfg, hasher: hasher}, nil
}

// InitRoot allocates and initializes the depth-1 PList and binds it as this
// Table's root, returning its address so the bootstrap layer can hand it to
// peers over the control channel.
func (t *Table[K, V]) InitRoot() (rma.RemotePtr[byte], error) {
	root, err := newPList(t.pool, t.cfg.PlistSizeBase)
	if err != nil {
		return rma.RemotePtr[byte]{}, fmt.Errorf("iht: init root: %w", err)
	}
	t.root = root.Base
	return t.root, nil
}

// SetRoot binds a root address received from the node that called InitRoot.
func (t *Table[K, V]) SetRoot(root rma.RemotePtr[byte]) {
	t.root = root
}

// Root returns the table's root pointer, valid only after InitRoot or
// SetRoot has been called.
func (t *Table[K, V]) Root() rma.RemotePtr[byte] {
	return t.root
}

// rootPlist returns a handle onto the depth-1 PList.
func (t *Table[K, V]) rootPlist() *PList {
	return &PList{Base: t.root, Size: t.cfg.PlistSizeBase}
}

// descend walks from the root to the first bucket the caller can hold the
// lock on for key, following PUnlocked demotions into deeper PLists exactly
// as spec.md §4.3 describes. It returns the PList, bucket index, and bucket
// state for the held lock; the caller is responsible for unlocking it.
func (t *Table[K, V]) descend(key K) (*PList, int, Bucket, int, error) {
	raw := t.hasher(key)
	plist := t.rootPlist()
	depth := 1
	for {
		b := int(levelHash(raw, depth) % uint64(plist.Size))
		bucket, err := readBucket(t.pool, plist, b)
		if err != nil {
			return nil, 0, Bucket{}, 0, err
		}
		result, err := tryAcquire(t.pool, bucket.Lock)
		if err != nil {
			return nil, 0, Bucket{}, 0, err
		}
		if result == acquireSucceeded {
			return plist, b, bucket, depth, nil
		}
		// acquireDescend: the bucket is permanently demoted and its child is
		// a PList one level deeper. The bucket value read above may predate
		// the goroutine that won the rehash race publishing its child via
		// writeBucketChild, so re-read the bucket now that PUnlocked has
		// been observed, rather than descending into the stale pre-rehash
		// child this tryAcquire call started with.
		fresh, err := readBucket(t.pool, plist, b)
		if err != nil {
			return nil, 0, Bucket{}, 0, err
		}
		depth++
		plist = &PList{Base: fresh.Child, Size: plistSizeAt(t.cfg.PlistSizeBase, depth)}
	}
}

// Contains reports whether key is present and, if so, its value.
func (t *Table[K, V]) Contains(key K) (Outcome, V, error) {
	var zero V
	plist, b, bucket, _, err := t.descend(key)
	if err != nil {
		return NotFound, zero, err
	}
	defer func() { _ = unlock(t.pool, bucket.Lock, EUnlocked) }()

	if bucket.Child.Nil() {
		return NotFound, zero, nil
	}
	wireSize := elistWireSize(t.cfg.ElistCapacity)
	e, err := rma.ReadT[EList[K, V]](t.pool, bucket.Child, wireSize)
	if err != nil {
		return NotFound, zero, err
	}
	if val, ok := e.find(key); ok {
		return Found, val, nil
	}
	_ = plist
	_ = b
	return NotFound, zero, nil
}

// Insert adds (key, val) if key is absent. If key is already present,
// Insert reports AlreadyPresent along with the existing value and leaves
// the table unchanged.
func (t *Table[K, V]) Insert(key K, val V) (Outcome, V, error) {
	var zero V
	for {
		plist, b, bucket, depth, err := t.descend(key)
		if err != nil {
			return AlreadyPresent, zero, err
		}

		wireSize := elistWireSize(t.cfg.ElistCapacity)

		if bucket.Child.Nil() {
			allocated, err := rma.AllocateT[EList[K, V]](t.pool, wireSize, 1)
			if err != nil {
				_ = unlock(t.pool, bucket.Lock, EUnlocked)
				return AlreadyPresent, zero, err
			}
			e := NewEList[K, V](t.cfg.ElistCapacity)
			e.insert(key, val)
			if err := rma.WriteT(t.pool, allocated, *e); err != nil {
				_ = unlock(t.pool, bucket.Lock, EUnlocked)
				return AlreadyPresent, zero, err
			}
			if err := writeBucketChild(t.pool, plist, b, bucket.Lock, allocated); err != nil {
				_ = unlock(t.pool, bucket.Lock, EUnlocked)
				return AlreadyPresent, zero, err
			}
			if err := unlock(t.pool, bucket.Lock, EUnlocked); err != nil {
				return AlreadyPresent, zero, err
			}
			return Inserted, zero, nil
		}

		e, err := rma.ReadT[EList[K, V]](t.pool, bucket.Child, wireSize)
		if err != nil {
			_ = unlock(t.pool, bucket.Lock, EUnlocked)
			return AlreadyPresent, zero, err
		}

		outcome, old := e.insert(key, val)
		switch outcome {
		case elistAlreadyPresent:
			_ = unlock(t.pool, bucket.Lock, EUnlocked)
			return AlreadyPresent, old, nil

		case elistInserted:
			if err := rma.WriteT(t.pool, bucket.Child, e); err != nil {
				_ = unlock(t.pool, bucket.Lock, EUnlocked)
				return AlreadyPresent, zero, err
			}
			if err := unlock(t.pool, bucket.Lock, EUnlocked); err != nil {
				return AlreadyPresent, zero, err
			}
			return Inserted, zero, nil

		case elistFull:
			newChild, err := rehash[K, V](t.pool, t.cfg, t.hasher, &e, depth)
			if err != nil {
				_ = unlock(t.pool, bucket.Lock, EUnlocked)
				return AlreadyPresent, zero, err
			}
			if err := writeBucketChild(t.pool, plist, b, bucket.Lock, newChild); err != nil {
				_ = unlock(t.pool, bucket.Lock, EUnlocked)
				return AlreadyPresent, zero, err
			}
			// Publish-then-demote: the child subtree above is fully written
			// before this bucket is ever observed as PUnlocked.
			if err := unlock(t.pool, bucket.Lock, PUnlocked); err != nil {
				return AlreadyPresent, zero, err
			}
			_ = t.pool.Deallocate(bucket.Child)
			// Retry the same key; it was never written to the old EList, and
			// the new subtree now holds everything that was.
			continue

		default:
			_ = unlock(t.pool, bucket.Lock, EUnlocked)
			return AlreadyPresent, zero, fmt.Errorf("iht: unreachable insert outcome %v", outcome)
		}
	}
}

// Remove deletes key if present, reporting its value.
func (t *Table[K, V]) Remove(key K) (Outcome, V, error) {
	var zero V
	plist, b, bucket, _, err := t.descend(key)
	if err != nil {
		return NotFound, zero, err
	}
	_ = plist
	_ = b
	defer func() { _ = unlock(t.pool, bucket.Lock, EUnlocked) }()

	if bucket.Child.Nil() {
		return NotFound, zero, nil
	}
	wireSize := elistWireSize(t.cfg.ElistCapacity)
	e, err := rma.ReadT[EList[K, V]](t.pool, bucket.Child, wireSize)
	if err != nil {
		return NotFound, zero, err
	}
	val, ok := e.remove(key)
	if !ok {
		return NotFound, zero, nil
	}
	if err := rma.WriteT(t.pool, bucket.Child, e); err != nil {
		return NotFound, zero, err
	}
	return Removed, val, nil
}

// Populate inserts (keyFn(k), valFn(k)) for every k in [lo, hi), seeding a
// table before a measurement run. The number of inserts is always hi-lo;
// there is no separate key count, and no key is drawn at random here.
func (t *Table[K, V]) Populate(lo, hi uint64, keyFn func(uint64) K, valFn func(uint64) V) error {
	for k := lo; k < hi; k++ {
		if _, _, err := t.Insert(keyFn(k), valFn(k)); err != nil {
			return fmt.Errorf("iht: populate key %d: %w", k, err)
		}
	}
	return nil
}
