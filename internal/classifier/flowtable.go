/*************************************************************************
 * Copyright 2024 divertengine authors. All rights reserved.
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package classifier implements the flow classifier and decision table of
// spec.md §4.4: per-packet parsing, SYN-time policy caching, and leg
// determination (return leg / forward leg / pass-through).
package classifier

import "sync/atomic"

// portTable holds the two pieces of per-port state spec.md §3 describes
// as the "flow classification entry": one 65536-slot table per address
// family, each slot at most one 16-bit port owned by one host-side TCP
// endpoint at a time. Single-word atomic access is sufficient — no lock
// is needed because writes only occur at SYN time for the port currently
// live, and stale reads only defer policy effect by microseconds
// (spec.md §5).
type portTable struct {
	shouldFilter [65536]atomic.Bool
	owningPID    [65536]atomic.Int32
}

func (t *portTable) set(port uint16, filter bool, pid int32) {
	t.shouldFilter[port].Store(filter)
	t.owningPID[port].Store(pid)
}

func (t *portTable) filters(port uint16) bool {
	return t.shouldFilter[port].Load()
}

func (t *portTable) pid(port uint16) int32 {
	return t.owningPID[port].Load()
}

// FlowTables holds the two disjoint per-family tables described in
// spec.md §3. Source port alone is a sufficient key within one address
// family because the local host is the flow's endpoint (spec.md §3,
// "Open question" in §9 notes the key would need widening for multi-
// tenant deployments).
type FlowTables struct {
	v4 portTable
	v6 portTable
}

// NewFlowTables allocates both per-family tables. Sized for the full
// 16-bit port space; never grown, never explicitly evicted — stale
// entries are harmless because SYN always overwrites the slot before it
// is read again for a new flow on the same port (spec.md §3).
func NewFlowTables() *FlowTables {
	return &FlowTables{}
}

// SetV4 records the SYN-time decision for an IPv4 flow's source port.
func (f *FlowTables) SetV4(port uint16, filter bool, pid int32) { f.v4.set(port, filter, pid) }

// SetV6 records the SYN-time decision for an IPv6 flow's source port.
func (f *FlowTables) SetV6(port uint16, filter bool, pid int32) { f.v6.set(port, filter, pid) }

// ShouldFilterV4 returns the cached should_filter bit for an IPv4 source
// port.
func (f *FlowTables) ShouldFilterV4(port uint16) bool { return f.v4.filters(port) }

// ShouldFilterV6 returns the cached should_filter bit for an IPv6 source
// port.
func (f *FlowTables) ShouldFilterV6(port uint16) bool { return f.v6.filters(port) }

// OwningPIDV4 returns the PID recorded at SYN time for an IPv4 source
// port.
func (f *FlowTables) OwningPIDV4(port uint16) int32 { return f.v4.pid(port) }

// OwningPIDV6 returns the PID recorded at SYN time for an IPv6 source
// port.
func (f *FlowTables) OwningPIDV6(port uint16) int32 { return f.v6.pid(port) }
