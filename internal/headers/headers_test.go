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

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsPrivateIPv4(t *testing.T) {
	cases := []struct {
		addr    string
		private bool
	}{
		{"10.0.0.1", true},
		{"10.255.255.255", true},
		{"172.16.0.1", true},
		{"172.31.255.255", true},
		{"172.32.0.1", false},
		{"192.168.1.1", true},
		{"192.169.0.1", false},
		{"8.8.8.8", false},
		{"93.184.216.34", false},
	}
	for _, c := range cases {
		assert.Equal(t, c.private, IsPrivateIPv4(net.ParseIP(c.addr)), c.addr)
	}
}

func TestIsPrivateIPv4_NonV4Address(t *testing.T) {
	assert.False(t, IsPrivateIPv4(net.ParseIP("::1")))
}

func TestIsLoopback(t *testing.T) {
	assert.True(t, IsLoopback(net.ParseIP("127.0.0.1")))
	assert.True(t, IsLoopback(net.ParseIP("::1")))
	assert.False(t, IsLoopback(net.ParseIP("10.0.0.1")))
}

func TestParseIPv4(t *testing.T) {
	ip := ParseIPv4([]byte{8, 8, 8, 8})
	require.NotNil(t, ip)
	assert.Equal(t, "8.8.8.8", ip.String())
	assert.Nil(t, ParseIPv4([]byte{8, 8, 8}))
}

func buildTCPv4Packet(t *testing.T, srcPort, dstPort layers.TCPPort, syn bool, payload []byte) []byte {
	t.Helper()
	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: layers.IPProtocolTCP,
		SrcIP:    net.ParseIP("192.0.2.1").To4(),
		DstIP:    net.ParseIP("93.184.216.34").To4(),
	}
	tcp := &layers.TCP{
		SrcPort: srcPort,
		DstPort: dstPort,
		SYN:     syn,
		Window:  65535,
	}
	require.NoError(t, tcp.SetNetworkLayerForChecksum(ip))

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{ComputeChecksums: true, FixLengths: true}
	layerList := []gopacket.SerializableLayer{ip, tcp}
	if len(payload) > 0 {
		layerList = append(layerList, gopacket.Payload(payload))
	}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, layerList...))
	return buf.Bytes()
}

func TestParse_TCPv4(t *testing.T) {
	data := buildTCPv4Packet(t, 51000, 80, true, []byte("hello"))
	v := Parse(data, layers.LayerTypeIPv4)

	require.NotNil(t, v.IPv4)
	require.NotNil(t, v.TCP)
	assert.Nil(t, v.IPv6)
	assert.Nil(t, v.UDP)
	assert.True(t, v.TCP.SYN)
	assert.Equal(t, layers.TCPPort(51000), v.TCP.SrcPort)
	assert.Equal(t, layers.TCPPort(80), v.TCP.DstPort)
	assert.Equal(t, []byte("hello"), v.Payload)
	assert.True(t, v.IsIPv4())
	assert.False(t, v.IsIPv6())
	assert.True(t, v.HasTCP())
}

func TestParse_GarbageBytes(t *testing.T) {
	v := Parse([]byte{0x00, 0x01, 0x02}, layers.LayerTypeIPv4)
	assert.Nil(t, v.IPv4)
	assert.Nil(t, v.TCP)
}
