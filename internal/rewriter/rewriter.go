/*************************************************************************
 * Copyright 2024 divertengine authors. All rights reserved.
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package rewriter implements the address rewriter (spec.md §4.4 step 5,
// §4.5): given a classifier Action, swap addresses, rewrite the relevant
// port, flip the packet's direction metadata, and recompute checksums.
package rewriter

import (
	"fmt"

	"github.com/google/gopacket/layers"
	"github.com/divertengine/divertengine/internal/capture"
	"github.com/divertengine/divertengine/internal/classifier"
	"github.com/divertengine/divertengine/internal/headers"
)

// Rewrite mutates v in place per the classifier's action and returns the
// re-serialized wire bytes with checksums recomputed (spec.md §4.4 steps
// 5-6). meta.Direction is flipped from outbound to inbound on success.
// ActionPassThrough and ActionDrop are not valid inputs; callers must
// branch on those before calling Rewrite.
func Rewrite(action classifier.Action, v *headers.View, ports *classifier.ListenerPorts, meta *capture.Metadata) ([]byte, error) {
	switch action {
	case classifier.ActionRewriteReturn:
		rewriteReturnLeg(v, ports)
	case classifier.ActionRewriteForward:
		rewriteForwardLeg(v, ports)
	default:
		return nil, fmt.Errorf("rewriter: action %d is not a rewrite action", action)
	}

	if v.IPv4 != nil {
		headers.SwapV4Addresses(v.IPv4)
	} else if v.IPv6 != nil {
		headers.SwapV6Addresses(v.IPv6)
	}

	out, err := headers.Recompute(v)
	if err != nil {
		return nil, err
	}
	meta.Direction = capture.DirectionInbound
	return out, nil
}

// rewriteReturnLeg handles spec.md §4.4 step 5, "Return leg": src port
// (one of the listener ports) becomes 80 or 443, matching which listener
// it was.
func rewriteReturnLeg(v *headers.View, ports *classifier.ListenerPorts) {
	v.TCP.SrcPort = classifier.RestoreOriginalPort(ports, uint16(v.TCP.SrcPort))
}

// rewriteForwardLeg handles spec.md §4.4 step 5, "Forward leg": dst port
// (80 or 443) becomes whichever listener port corresponds.
func rewriteForwardLeg(v *headers.View, ports *classifier.ListenerPorts) {
	v.TCP.DstPort = layers.TCPPort(classifier.RewriteTargetPort(ports, uint16(v.TCP.DstPort)))
}
