/*************************************************************************
 * Copyright 2024 divertengine authors. All rights reserved.
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package classifier

import (
	"context"

	"github.com/google/gopacket/layers"
	"github.com/divertengine/divertengine/internal/headers"
	"github.com/divertengine/divertengine/internal/socksguard"
)

// Action is the classifier's per-packet verdict (spec.md §4.4 step 3).
type Action int

const (
	// ActionPassThrough leaves the packet entirely unmodified.
	ActionPassThrough Action = iota
	// ActionRewriteReturn is a return leg from our own proxy: src port is
	// a listener port, rewrite and bounce inbound.
	ActionRewriteReturn
	// ActionRewriteForward is a forward leg destined for 80/443 on a
	// filtered flow: rewrite and bounce inbound.
	ActionRewriteForward
	// ActionDrop means the packet must not be reinjected (SOCKS evasion
	// caught by the private-destination carve-out, spec.md §4.4 step 4).
	ActionDrop
)

// PIDResolver is the subset of resolver.Resolver the classifier needs,
// narrowed so tests can supply a fake (spec.md §4.2).
type PIDResolver interface {
	ResolveV4(ctx context.Context, localAddr string, localPort uint16) (int32, error)
	ResolveV6(ctx context.Context, localAddr string, localPort uint16) (int32, error)
	BinaryPath(ctx context.Context, pid int32) string
	IsSystemOwned(pid int32) bool
}

// FirewallAuthority is the subset of firewall.Authority the classifier
// needs (spec.md §4.3).
type FirewallAuthority interface {
	Permits(binaryPath string) bool
}

// Classifier holds the immutable inputs to per-packet classification: the
// listener ports, the two flow tables, the resolver, and the firewall
// authority (spec.md §4.4 "State").
type Classifier struct {
	Ports    *ListenerPorts
	Tables   *FlowTables
	Resolver PIDResolver
	Firewall FirewallAuthority
}

// New builds a Classifier. Firewall may be nil only on platforms where
// the firewall callback is optional; the engine enforces the platform
// requirement before Run (spec.md §7).
func New(ports *ListenerPorts, tables *FlowTables, resolver PIDResolver, fw FirewallAuthority) *Classifier {
	return &Classifier{Ports: ports, Tables: tables, Resolver: resolver, Firewall: fw}
}

// Classify runs the full decision table of spec.md §4.4 against one
// parsed, outbound TCP packet. Any missing header causes ActionPassThrough
// (step 1, "defensive" null handling).
func (c *Classifier) Classify(ctx context.Context, v *headers.View) Action {
	if v.TCP == nil {
		return ActionPassThrough
	}
	if v.IPv4 == nil && v.IPv6 == nil {
		return ActionPassThrough
	}

	srcPort := uint16(v.TCP.SrcPort)
	dstPort := uint16(v.TCP.DstPort)

	if v.TCP.SYN {
		c.classifySYN(ctx, v, srcPort)
	}

	// Step 3: determine leg. Return legs (src port == one of our own
	// listener ports) are checked before the private-destination carve-out
	// below: should_filter is keyed by the *client's* source port, never by
	// the listener's own port, so a return-leg packet would never be
	// "filtered" by that table and the carve-out would wrongly swallow it
	// whenever the client it is bound for has a private address — which,
	// on the endpoint-machine deployment spec.md §1 targets, is virtually
	// always (original_source/.../WinDiverter.cpp's isLocalIpv4 gate is
	// likewise only ever consulted for a flow already recorded as
	// filtered, which a return leg's own src port never is).
	if srcPort == c.Ports.HTTPPort() || srcPort == c.Ports.HTTPSPort() {
		return ActionRewriteReturn
	}

	// Step 4: private-destination carve-out (IPv4 only), gating only the
	// forward leg.
	if v.IPv4 != nil && headers.IsPrivateIPv4(v.IPv4.DstIP) {
		if c.filtered(v, srcPort) {
			if socksguard.IsConnectToFiltered(v.Payload) {
				return ActionDrop
			}
		}
		// Local traffic, filtered or not: never rewritten.
		return ActionPassThrough
	}

	if (dstPort == 80 || dstPort == 443) && c.filtered(v, srcPort) {
		return ActionRewriteForward
	}
	return ActionPassThrough
}

func (c *Classifier) filtered(v *headers.View, srcPort uint16) bool {
	if v.IPv6 != nil {
		return c.Tables.ShouldFilterV6(srcPort)
	}
	return c.Tables.ShouldFilterV4(srcPort)
}

// classifySYN implements spec.md §4.4 step 2: resolve the owning PID,
// decide should_filter, and cache both for the lifetime of the flow's
// source port.
func (c *Classifier) classifySYN(ctx context.Context, v *headers.View, srcPort uint16) {
	var pid int32
	var err error

	if v.IPv6 != nil {
		pid, err = c.Resolver.ResolveV6(ctx, v.IPv6.SrcIP.String(), srcPort)
	} else {
		pid, err = c.Resolver.ResolveV4(ctx, v.IPv4.SrcIP.String(), srcPort)
	}
	if err != nil {
		// Transient table-fetch failure: treat as unknown, don't filter
		// (spec.md §7, "policy soft decisions").
		c.store(v, srcPort, 0, false)
		return
	}

	if c.Resolver.IsSystemOwned(pid) {
		c.store(v, srcPort, pid, false)
		return
	}

	path := c.Resolver.BinaryPath(ctx, pid)
	if path == "" {
		c.store(v, srcPort, pid, false)
		return
	}

	c.store(v, srcPort, pid, c.Firewall != nil && c.Firewall.Permits(path))
}

func (c *Classifier) store(v *headers.View, srcPort uint16, pid int32, filter bool) {
	if v.IPv6 != nil {
		c.Tables.SetV6(srcPort, filter, pid)
		return
	}
	c.Tables.SetV4(srcPort, filter, pid)
}

// RewriteTargetPort returns the port a rewrite action should substitute,
// given the classifier's current listener configuration and whether the
// original destination was 80 or 443 (forward leg) — used by the
// rewriter package so it does not need its own copy of listener state.
func RewriteTargetPort(ports *ListenerPorts, originalDstPort uint16) uint16 {
	if originalDstPort == 80 {
		return ports.HTTPPort()
	}
	return ports.HTTPSPort()
}

// RestoreOriginalPort returns the original port (80 or 443) a return-leg
// rewrite should substitute, given which listener port the packet came
// from.
func RestoreOriginalPort(ports *ListenerPorts, originalSrcPort uint16) layers.TCPPort {
	if originalSrcPort == ports.HTTPPort() {
		return layers.TCPPort(80)
	}
	return layers.TCPPort(443)
}
