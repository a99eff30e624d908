/*************************************************************************
 * Copyright 2024 divertengine authors. All rights reserved.
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package headers

import (
	"net"
	"testing"

	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParseIP(t *testing.T, s string) net.IP {
	t.Helper()
	ip := net.ParseIP(s)
	require.NotNil(t, ip)
	return ip
}

// TestRecompute_Idempotence exercises spec.md §8's idempotence invariant:
// swapping addresses twice restores the original src/dst, modulo
// checksum recomputation which is deterministic given the same bytes.
func TestRecompute_Idempotence(t *testing.T) {
	data := buildTCPv4Packet(t, 51000, 80, false, []byte("payload"))
	v := Parse(data, layers.LayerTypeIPv4)
	require.NotNil(t, v.IPv4)

	origSrc, origDst := v.IPv4.SrcIP.String(), v.IPv4.DstIP.String()

	SwapV4Addresses(v.IPv4)
	out1, err := Recompute(v)
	require.NoError(t, err)

	v2 := Parse(out1, layers.LayerTypeIPv4)
	require.NotNil(t, v2.IPv4)
	assert.Equal(t, origDst, v2.IPv4.SrcIP.String())
	assert.Equal(t, origSrc, v2.IPv4.DstIP.String())

	SwapV4Addresses(v2.IPv4)
	out2, err := Recompute(v2)
	require.NoError(t, err)

	v3 := Parse(out2, layers.LayerTypeIPv4)
	require.NotNil(t, v3.IPv4)
	assert.Equal(t, origSrc, v3.IPv4.SrcIP.String())
	assert.Equal(t, origDst, v3.IPv4.DstIP.String())
	assert.Equal(t, v.TCP.SrcPort, v3.TCP.SrcPort)
	assert.Equal(t, v.TCP.DstPort, v3.TCP.DstPort)
}

func TestSwapV6Addresses(t *testing.T) {
	ip := &layers.IPv6{
		SrcIP: mustParseIP(t, "2001:db8::1"),
		DstIP: mustParseIP(t, "2001:db8::2"),
	}
	SwapV6Addresses(ip)
	assert.Equal(t, "2001:db8::2", ip.SrcIP.String())
	assert.Equal(t, "2001:db8::1", ip.DstIP.String())
}
