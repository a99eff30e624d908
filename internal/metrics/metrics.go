/*************************************************************************
 * Copyright 2024 divertengine authors. All rights reserved.
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package metrics implements the diagnostic packet counters the
// original BaseDiverter keeps (m_totalPacketsProcessed,
// m_totalPacketsFiltered) — an addition SPEC_FULL.md §12 carries forward
// from original_source/ since the distillation dropped it but it is
// harmless, cheap, and genuinely useful observability.
package metrics

import "sync/atomic"

// DiverterStats is a snapshot of the counters below, returned by
// Counters.Snapshot.
type DiverterStats struct {
	Processed    uint64
	Filtered     uint64
	Rewritten    uint64
	Dropped      uint64
	SocksBlocked uint64
}

// Counters holds the engine's running packet counters. All fields are
// updated with single atomic adds from worker goroutines; no lock is
// needed (same discipline as the classifier's flow tables, spec.md §5).
type Counters struct {
	processed    atomic.Uint64
	filtered     atomic.Uint64
	rewritten    atomic.Uint64
	dropped      atomic.Uint64
	socksBlocked atomic.Uint64
}

func (c *Counters) IncProcessed()    { c.processed.Add(1) }
func (c *Counters) IncFiltered()     { c.filtered.Add(1) }
func (c *Counters) IncRewritten()    { c.rewritten.Add(1) }
func (c *Counters) IncDropped()      { c.dropped.Add(1) }
func (c *Counters) IncSocksBlocked() { c.socksBlocked.Add(1) }

// Snapshot returns the current counter values.
func (c *Counters) Snapshot() DiverterStats {
	return DiverterStats{
		Processed:    c.processed.Load(),
		Filtered:     c.filtered.Load(),
		Rewritten:    c.rewritten.Load(),
		Dropped:      c.dropped.Load(),
		SocksBlocked: c.socksBlocked.Load(),
	}
}
