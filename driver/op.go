// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package driver applies a stream of table operations against an
// iht.Table and records their outcomes, the Go counterpart of
// original_source/operation.h's IHT_Op and role_client.h's Apply/Operations
// methods. Workload generation, QPS pacing, and result aggregation across
// a fleet of nodes are deliberately not this package's job.
package driver

import (
	"fmt"
	"math/rand"

	"github.com/luxfi/iht/config"
	"github.com/luxfi/iht/internal/ihtmetric"
	"github.com/luxfi/iht/iht"
)

// OpType mirrors original_source/operation.h's CONTAINS/INSERT/REMOVE.
type OpType int

const (
	OpContains OpType = iota
	OpInsert
	OpRemove
)

func (t OpType) String() string {
	switch t {
	case OpContains:
		return "Contains"
	case OpInsert:
		return "Insert"
	case OpRemove:
		return "Remove"
	default:
		return "Unknown"
	}
}

// Op is one operation in a stream: original_source's IHT_Op<K,V>.
type Op[K comparable, V any] struct {
	Type OpType
	Key  K
	Val  V
}

// Driver applies a stream of operations against a Table and records
// instrumentation. A zero Metrics field disables recording, matching the
// teacher's pattern of an optional, nil-safe metrics dependency.
type Driver[K comparable, V any] struct {
	table   *iht.Table[K, V]
	metrics *ihtmetric.Metrics
}

// New returns a Driver over table. metrics may be nil.
func New[K comparable, V any](table *iht.Table[K, V], metrics *ihtmetric.Metrics) *Driver[K, V] {
	return &Driver[K, V]{table: table, metrics: metrics}
}

// Apply performs one operation and returns its outcome, mirroring
// role_client.h's Apply (the per-NoOp callback a workload driver invokes).
func (d *Driver[K, V]) Apply(op Op[K, V]) (iht.Outcome, V, error) {
	switch op.Type {
	case OpContains:
		outcome, val, err := d.table.Contains(op.Key)
		d.record(op.Type, outcome, err)
		return outcome, val, err

	case OpInsert:
		outcome, val, err := d.table.Insert(op.Key, op.Val)
		d.record(op.Type, outcome, err)
		return outcome, val, err

	case OpRemove:
		outcome, val, err := d.table.Remove(op.Key)
		d.record(op.Type, outcome, err)
		return outcome, val, err

	default:
		var zero V
		return 0, zero, fmt.Errorf("driver: unknown op type %v", op.Type)
	}
}

// record increments the per-op-type counter unconditionally and the
// found/not-found counters based on outcome, so a Contains miss and a
// Remove miss both still count toward iht_contains_total/iht_removes_total
// alongside the shared iht_not_found_total.
func (d *Driver[K, V]) record(opType OpType, outcome iht.Outcome, err error) {
	if d.metrics == nil || err != nil {
		return
	}
	switch opType {
	case OpContains:
		d.metrics.Contains.Inc()
	case OpInsert:
		d.metrics.Inserts.Inc()
	case OpRemove:
		d.metrics.Removes.Inc()
	}
	switch outcome {
	case iht.Found:
		d.metrics.Found.Inc()
	case iht.NotFound:
		d.metrics.NotFound.Inc()
	}
}

// Operations runs the fixed, literal sequence original_source/role_client.h
// exercises as its end-to-end smoke test: insert 5, confirm it's found,
// confirm 4 is absent, remove 5, and confirm both are absent afterward.
// Intended for a deployment's self-check, not for measurement.
func Operations[K ~int | ~uint64, V ~int | ~uint64](table *iht.Table[K, V]) error {
	check := func(got iht.Outcome, want iht.Outcome, label string) error {
		if got != want {
			return fmt.Errorf("driver: %s: got %s, want %s", label, got, want)
		}
		return nil
	}

	outcome, _, err := table.Insert(K(5), V(1))
	if err != nil {
		return err
	}
	if err := check(outcome, iht.Inserted, "Insert 5"); err != nil {
		return err
	}

	outcome, _, err = table.Contains(K(5))
	if err != nil {
		return err
	}
	if err := check(outcome, iht.Found, "Contains 5"); err != nil {
		return err
	}

	outcome, _, err = table.Contains(K(4))
	if err != nil {
		return err
	}
	if err := check(outcome, iht.NotFound, "Contains 4"); err != nil {
		return err
	}

	outcome, _, err = table.Remove(K(5))
	if err != nil {
		return err
	}
	if err := check(outcome, iht.Removed, "Remove 5"); err != nil {
		return err
	}

	outcome, _, err = table.Contains(K(5))
	if err != nil {
		return err
	}
	if err := check(outcome, iht.NotFound, "Contains 5 after remove"); err != nil {
		return err
	}

	outcome, _, err = table.Contains(K(4))
	if err != nil {
		return err
	}
	return check(outcome, iht.NotFound, "Contains 4 again")
}

// GenerateStream produces n operations drawn from cfg's key range and
// operation-type mix, the Go counterpart of the original's NoOpStream.
func GenerateStream(cfg config.Config, n int, rng *rand.Rand) []Op[uint64, uint64] {
	ops := make([]Op[uint64, uint64], n)
	span := cfg.KeyHi - cfg.KeyLo
	for i := range ops {
		key := cfg.KeyLo + uint64(rng.Int63n(int64(span)))
		ops[i] = Op[uint64, uint64]{Type: pickOpType(cfg, rng), Key: key, Val: key}
	}
	return ops
}

func pickOpType(cfg config.Config, rng *rand.Rand) OpType {
	roll := rng.Intn(100)
	if roll < cfg.ContainsPct {
		return OpContains
	}
	if roll < cfg.ContainsPct+cfg.InsertPct {
		return OpInsert
	}
	return OpRemove
}
