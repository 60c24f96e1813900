// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package iht implements the Interlocked Hash Table: a lock-per-bucket,
// dynamically-deepening hash index whose nodes live in memory addressed
// through rma.Pool and whose synchronization relies on remote
// compare-and-swap rather than local mutexes.
package iht

import "errors"

// LockState is the three-valued state of a bucket's lock word. PUnlocked is
// absorbing: once a bucket observes it, no goroutine ever contends for that
// bucket's lock again, and its child is permanently a PList.
type LockState uint64

const (
	// ELocked means the bucket is held for exclusive mutation of its EList.
	ELocked LockState = 0
	// EUnlocked means the bucket is free; its child, if any, is an EList.
	EUnlocked LockState = 1
	// PUnlocked means the bucket has been permanently demoted; its child is
	// a PList, and the lock will never be acquired again.
	PUnlocked LockState = 2
)

// Config sizes a Table. ElistCapacity and PlistSizeBase correspond to the
// compile-time constants of the original; promoting them to a runtime value
// (rather than Go generic constants, which can't vary per instantiation)
// lets one process run tables of different shapes in the same binary, as
// original_source/role_client.h's `config{8, 128}` constructor argument did.
type Config struct {
	// ElistCapacity bounds the number of live pairs in one EList.
	ElistCapacity int
	// PlistSizeBase is the bucket count of the root PList; a PList installed
	// at depth d (root is depth 1) has PlistSizeBase << (d-1) buckets.
	PlistSizeBase int
}

// DefaultConfig matches the reference workload harness in
// original_source/role_client.h.
func DefaultConfig() Config {
	return Config{ElistCapacity: 8, PlistSizeBase: 128}
}

// Valid reports whether c can back a working table.
func (c Config) Valid() error {
	switch {
	case c.ElistCapacity <= 0:
		return ErrInvalidElistCapacity
	case c.PlistSizeBase <= 0 || c.PlistSizeBase&(c.PlistSizeBase-1) != 0:
		return ErrInvalidPlistSize
	default:
		return nil
	}
}

// Sentinel configuration errors, fatal at startup.
var (
	ErrInvalidElistCapacity = errors.New("iht: elist capacity must be positive")
	ErrInvalidPlistSize     = errors.New("iht: plist size base must be a positive power of two")
)

// Outcome is the result tag of a Table operation; AlreadyPresent and
// NotFound are normal return values, never errors.
type Outcome int

const (
	// Found/NotFound are Contains outcomes.
	Found Outcome = iota
	NotFound
	// Inserted/AlreadyPresent are Insert outcomes.
	Inserted
	AlreadyPresent
	// Removed is a Remove outcome; Remove otherwise also reports NotFound.
	Removed
)

func (o Outcome) String() string {
	switch o {
	case Found:
		return "Found"
	case NotFound:
		return "NotFound"
	case Inserted:
		return "Inserted"
	case AlreadyPresent:
		return "AlreadyPresent"
	case Removed:
		return "Removed"
	default:
		return "Unknown"
	}
}
