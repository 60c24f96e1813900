// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package config describes one node's participation in a driver run: its
// place in the cluster, the key range and operation mix it draws from, and
// how long or how many operations it issues. This is distinct from
// iht.Config, which sizes the table structure itself.
package config

import (
	"errors"
	"time"

	"github.com/luxfi/ids"
)

// Sentinel configuration errors.
var (
	ErrZeroPeers        = errors.New("config: node count must be at least 1")
	ErrNodeIDOutOfRange = errors.New("config: node id must be less than node count")
	ErrInvalidOpMix     = errors.New("config: contains/insert/remove percentages must sum to 100")
	ErrEmptyKeyRange    = errors.New("config: key hi must be greater than key lo")
)

// Config is one node's run configuration, grounded on the (host, peers)
// argument original_source/role_client.h's Client constructor takes plus
// the percentage-based operation mix original_source/operation.h's IHT_Op
// implies.
type Config struct {
	// NodeID is this node's index in [0, NodeCount).
	NodeID int `json:"node_id"`
	// NodeCount is the total number of nodes sharing one table.
	NodeCount int `json:"node_count"`
	// Threads is the number of goroutines this node runs issuing
	// operations concurrently against its local Table handle.
	Threads int `json:"threads"`

	// KeyLo and KeyHi bound the key space operations are drawn from,
	// [KeyLo, KeyHi).
	KeyLo uint64 `json:"key_lo"`
	KeyHi uint64 `json:"key_hi"`

	// ContainsPct, InsertPct, and RemovePct are the operation mix weights;
	// they must sum to 100.
	ContainsPct int `json:"contains_pct"`
	InsertPct   int `json:"insert_pct"`
	RemovePct   int `json:"remove_pct"`

	// Duration bounds how long a run issues operations; zero means
	// OpCountOrUnlimited governs instead.
	Duration time.Duration `json:"duration"`
	// OpCountOrUnlimited caps the number of operations per thread; zero
	// means unlimited (bounded only by Duration).
	OpCountOrUnlimited uint64 `json:"op_count"`
	// QPSCap bounds the aggregate operation rate across this node's
	// threads; zero means uncapped.
	QPSCap int `json:"qps_cap"`

	// HostAddr is the TCP address of the control-channel host
	// (control/tcp.NewHost listens here; peers dial it).
	HostAddr string `json:"host_addr"`
}

// Default returns the reference workload shape used by
// original_source/role_client.h: a single node, single thread, evenly
// mixed operations, unbounded by rate or count.
func Default() Config {
	return Config{
		NodeID:      0,
		NodeCount:   1,
		Threads:     1,
		KeyLo:       0,
		KeyHi:       1 << 20,
		ContainsPct: 34,
		InsertPct:   33,
		RemovePct:   33,
		Duration:    10 * time.Second,
	}
}

// Local returns a small, fast-converging shape for single-machine
// development runs.
func Local() Config {
	c := Default()
	c.KeyHi = 1 << 12
	c.Duration = 2 * time.Second
	return c
}

// Test returns a tiny, deterministic shape for unit tests: a short, fixed
// operation count rather than a wall-clock duration.
func Test() Config {
	c := Default()
	c.KeyHi = 1 << 8
	c.Duration = 0
	c.OpCountOrUnlimited = 1000
	return c
}

// Valid reports whether c can back a working run.
func (c Config) Valid() error {
	switch {
	case c.NodeCount < 1:
		return ErrZeroPeers
	case c.NodeID < 0 || c.NodeID >= c.NodeCount:
		return ErrNodeIDOutOfRange
	case c.KeyHi <= c.KeyLo:
		return ErrEmptyKeyRange
	case c.ContainsPct+c.InsertPct+c.RemovePct != 100:
		return ErrInvalidOpMix
	default:
		return nil
	}
}

// IsHost reports whether this node is the one responsible for allocating
// the table root (node 0 by convention).
func (c Config) IsHost() bool {
	return c.NodeID == 0
}

// NodeIDFor derives a stable cluster-wide ids.NodeID for node index i,
// letting every participant in a run compute the same identifiers for its
// peers without an out-of-band registry.
func NodeIDFor(i int) ids.NodeID {
	var raw [20]byte
	raw[0] = byte(i)
	raw[1] = byte(i >> 8)
	return ids.NodeID(raw)
}
