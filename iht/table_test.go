// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package iht_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/ids"
	"github.com/luxfi/iht/iht"
	"github.com/luxfi/iht/rma/local"
)

func newTestTable(t *testing.T, cfg iht.Config) *iht.Table[uint64, uint64] {
	t.Helper()
	cluster := local.NewCluster()
	self := ids.GenerateTestNodeID()
	pool := local.NewPool(cluster, self)

	table, err := iht.NewTable[uint64, uint64](pool, cfg, iht.Uint64Hasher)
	require.NoError(t, err)
	_, err = table.InitRoot()
	require.NoError(t, err)
	return table
}

func TestTableEmpty(t *testing.T) {
	table := newTestTable(t, iht.DefaultConfig())

	outcome, _, err := table.Contains(42)
	require.NoError(t, err)
	require.Equal(t, iht.NotFound, outcome)
}

func TestTableInsertContainsRemove(t *testing.T) {
	table := newTestTable(t, iht.DefaultConfig())

	outcome, _, err := table.Insert(7, 70)
	require.NoError(t, err)
	require.Equal(t, iht.Inserted, outcome)

	outcome, val, err := table.Contains(7)
	require.NoError(t, err)
	require.Equal(t, iht.Found, outcome)
	require.Equal(t, uint64(70), val)

	outcome, val, err = table.Remove(7)
	require.NoError(t, err)
	require.Equal(t, iht.Removed, outcome)
	require.Equal(t, uint64(70), val)

	outcome, _, err = table.Contains(7)
	require.NoError(t, err)
	require.Equal(t, iht.NotFound, outcome)
}

func TestTableInsertDuplicateIsIdempotent(t *testing.T) {
	table := newTestTable(t, iht.DefaultConfig())

	outcome, _, err := table.Insert(3, 30)
	require.NoError(t, err)
	require.Equal(t, iht.Inserted, outcome)

	outcome, old, err := table.Insert(3, 999)
	require.NoError(t, err)
	require.Equal(t, iht.AlreadyPresent, outcome)
	require.Equal(t, uint64(30), old)

	outcome, val, err := table.Contains(3)
	require.NoError(t, err)
	require.Equal(t, iht.Found, outcome)
	require.Equal(t, uint64(30), val)
}

func TestTableRemoveAbsentIsNotFound(t *testing.T) {
	table := newTestTable(t, iht.DefaultConfig())

	outcome, _, err := table.Remove(123)
	require.NoError(t, err)
	require.Equal(t, iht.NotFound, outcome)
}

func TestTableRemoveIsIdempotent(t *testing.T) {
	table := newTestTable(t, iht.DefaultConfig())

	_, _, err := table.Insert(9, 90)
	require.NoError(t, err)

	outcome, _, err := table.Remove(9)
	require.NoError(t, err)
	require.Equal(t, iht.Removed, outcome)

	outcome, _, err = table.Remove(9)
	require.NoError(t, err)
	require.Equal(t, iht.NotFound, outcome)
}

// TestTableRehashTrigger forces a bucket past ElistCapacity by inserting
// more distinct keys than fit across the root PList's buckets, exercising
// the full rehash path of spec.md §4.3.4. level_hash mixes the digest
// through Keccak256 (hash.go), so which bucket any one key lands in isn't
// predictable from its value; pigeonhole is used instead of a chosen
// collision: 9 keys across 2 buckets guarantees some bucket holds at least
// 5, past a 4-slot EList capacity.
func TestTableRehashTrigger(t *testing.T) {
	cfg := iht.Config{ElistCapacity: 4, PlistSizeBase: 2}
	table := newTestTable(t, cfg)

	keys := []uint64{0, 1, 2, 3, 4, 5, 6, 7, 8}
	for i, k := range keys {
		outcome, _, err := table.Insert(k, k*10)
		require.NoErrorf(t, err, "insert key %d", k)
		require.Equalf(t, iht.Inserted, outcome, "insert key %d (index %d)", k, i)
	}

	for _, k := range keys {
		outcome, val, err := table.Contains(k)
		require.NoErrorf(t, err, "contains key %d", k)
		require.Equalf(t, iht.Found, outcome, "contains key %d", k)
		require.Equal(t, k*10, val)
	}
}

func TestTablePopulateThenScan(t *testing.T) {
	cfg := iht.Config{ElistCapacity: 8, PlistSizeBase: 16}
	table := newTestTable(t, cfg)

	const n = 8 * 16 * 4
	require.NoError(t, table.Populate(0, n, func(k uint64) uint64 { return k }, func(k uint64) uint64 { return k + 1 }))

	for k := uint64(0); k < n; k++ {
		outcome, val, err := table.Contains(k)
		require.NoErrorf(t, err, "contains key %d", k)
		require.Equalf(t, iht.Found, outcome, "contains key %d", k)
		require.Equal(t, k+1, val)
	}

	outcome, _, err := table.Contains(n + 1)
	require.NoError(t, err)
	require.Equal(t, iht.NotFound, outcome)
}

// TestTableConcurrentMixedWorkload runs concurrent inserts, removes, and
// contains across many goroutines sharing one table, recording successful
// inserts and removes in a mutex-guarded reference map, and checks that every
// reference key the table still reports as Found carries the inserted value.
func TestTableConcurrentMixedWorkload(t *testing.T) {
	cfg := iht.Config{ElistCapacity: 4, PlistSizeBase: 8}
	table := newTestTable(t, cfg)

	const keyspace = 256
	const workers = 8
	const opsPerWorker = 200

	var refMu sync.Mutex
	ref := make(map[uint64]uint64)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		w := w
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < opsPerWorker; i++ {
				key := uint64((w*opsPerWorker + i) % keyspace)
				switch i % 3 {
				case 0:
					val := key * 1000
					outcome, _, err := table.Insert(key, val)
					require.NoError(t, err)
					if outcome == iht.Inserted {
						refMu.Lock()
						if _, exists := ref[key]; !exists {
							ref[key] = val
						}
						refMu.Unlock()
					}
				case 1:
					outcome, _, err := table.Remove(key)
					require.NoError(t, err)
					if outcome == iht.Removed {
						refMu.Lock()
						delete(ref, key)
						refMu.Unlock()
					}
				case 2:
					_, _, err := table.Contains(key)
					require.NoError(t, err)
				}
			}
		}()
	}
	wg.Wait()

	// The reference map is updated after each table operation returns, so
	// its order of updates can differ from the table's own order for the
	// same key, and a key in ref may already be gone from the table. Presence
	// is therefore not asserted; only the value of a key that is Found is.
	refMu.Lock()
	defer refMu.Unlock()
	for key, val := range ref {
		outcome, got, err := table.Contains(key)
		require.NoError(t, err)
		if outcome == iht.Found {
			require.Equal(t, val, got)
		}
	}
}
