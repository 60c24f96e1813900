// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package ihtmetric names the counters and the averager a running Table exposes,
// built on top of utils/metric's generic Registry/Counter/Gauge/Averager
// wrappers around github.com/luxfi/metric.
package ihtmetric

import (
	"github.com/luxfi/iht/utils/metric"
)

// Metrics is the set of instruments registered for a driver run. Table
// itself stays metric-free; the driver package wraps table operations and
// records into Contains, Inserts, Removes, Found and NotFound. Rehashes,
// LockRetries and DescentDepth are registered, but nothing in this module
// records into them.
type Metrics struct {
	registry metric.Registry

	Contains metric.Counter
	Inserts  metric.Counter
	Removes  metric.Counter
	Found    metric.Counter
	NotFound metric.Counter

	Rehashes     metric.Counter
	LockRetries  metric.Counter
	DescentDepth metric.Averager
}

// New registers a fresh set of instruments.
func New() *Metrics {
	r := metric.NewRegistry()
	return &Metrics{
		registry: r,

		Contains: r.NewCounter("iht_contains_total"),
		Inserts:  r.NewCounter("iht_inserts_total"),
		Removes:  r.NewCounter("iht_removes_total"),
		Found:    r.NewCounter("iht_found_total"),
		NotFound: r.NewCounter("iht_not_found_total"),

		Rehashes:     r.NewCounter("iht_rehashes_total"),
		LockRetries:  r.NewCounter("iht_lock_retries_total"),
		DescentDepth: r.NewAverager("iht_descent_depth"),
	}
}

// Registry exposes the underlying registry for callers that need to look
// metrics back up by name (e.g. a status endpoint).
func (m *Metrics) Registry() metric.Registry { return m.registry }
