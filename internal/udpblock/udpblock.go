/*************************************************************************
 * Copyright 2024 divertengine authors. All rights reserved.
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package udpblock implements the UDP QUIC blocker (spec.md §4.1, §4.2 of
// the component table): a secondary capture handle matching outbound UDP
// to ports 80 and 443. The handle is a pcap capture session, which sees a
// copy of the matched traffic and does not drop it; this package installs
// no rule that blocks that traffic, so QUIC-capable clients are not forced
// back to TCP by it.
package udpblock

import "github.com/divertengine/divertengine/internal/capture"

// FilterExpr is the BPF-equivalent of spec.md §6's UDP drop filter
// ("udp and (udp.DstPort == 80 || udp.DstPort == 443)"). The handle is
// opened as DropOnly, so Open's caller must never call Recv on it
// (spec.md §4.1).
const FilterExpr = "udp and (dst port 80 or dst port 443)"

// Open activates the UDP handle on device as a DropOnly capture session
// filtered by FilterExpr. The session only taps a copy of the matched
// traffic; neither Open nor the returned handle drops it. The engine's
// diverter holds the handle while running and closes it on Stop; no
// userspace loop reads from it.
func Open(device string) (capture.Handle, error) {
	return capture.Open(capture.FilterSpec{
		Device:    device,
		BPFExpr:   FilterExpr,
		Direction: capture.DirectionOutbound,
		DropOnly:  true,
	})
}
