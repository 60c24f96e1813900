// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package iht

import "github.com/luxfi/iht/rma"

// acquireResult is the outcome of one tryAcquire attempt. Design Note §9-2
// calls out a bug class in the original where a CAS failure for "someone
// else holds this bucket, retry" got conflated with "this bucket is
// permanently demoted, descend" -- the two are kept as distinct results here
// on purpose rather than collapsed into a single bool.
type acquireResult int

const (
	acquireSucceeded acquireResult = iota
	acquireRetry
	acquireDescend
)

// tryAcquire implements spec.md §4.3.1. A single CompareAndSwap(EUnlocked,
// ELocked) both observes the current state and attempts the transition: if
// the fabric reports the pre-swap value was EUnlocked, the swap took effect
// and the caller now holds the lock; if it was PUnlocked, the bucket is
// permanently demoted and the caller must descend into its child PList
// instead of retrying; any other observed value (ELocked, held by another
// goroutine) means retry the same bucket. This folds the original's
// separate "read current value" step into the CAS itself, since the read's
// only purpose was deciding whether the CAS was worth attempting -- and a
// stale read there would just have raced with the CAS anyway.
func tryAcquire(pool rma.Pool, lock rma.RemotePtr[uint64]) (acquireResult, error) {
	for {
		observed, err := pool.CompareAndSwap(lock, uint64(EUnlocked), uint64(ELocked))
		if err != nil {
			return acquireRetry, err
		}
		switch LockState(observed) {
		case EUnlocked:
			return acquireSucceeded, nil
		case PUnlocked:
			return acquireDescend, nil
		default:
			// ELocked: another goroutine holds the bucket transiently. Spin.
		}
	}
}

// unlock implements spec.md §4.3.3's two release forms: an ordinary release
// back to EUnlocked, or a permanent demotion to PUnlocked after a deeper
// PList has been installed and its Write has completed. Either way it's a
// single AtomicSwap, which is the release fence: the caller must have
// already finished (and, for remote children, completed) any write that
// should be visible before this unlock is observed by another goroutine.
func unlock(pool rma.Pool, lock rma.RemotePtr[uint64], next LockState) error {
	_, err := pool.AtomicSwap(lock, uint64(next))
	return err
}
