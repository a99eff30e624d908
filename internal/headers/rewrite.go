/*************************************************************************
 * Copyright 2024 divertengine authors. All rights reserved.
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package headers

import (
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// SwapV4Addresses exchanges the source and destination addresses of an
// IPv4 header in place (spec.md §4.4 step 5).
func SwapV4Addresses(ip *layers.IPv4) {
	ip.SrcIP, ip.DstIP = ip.DstIP, ip.SrcIP
}

// SwapV6Addresses exchanges the source and destination addresses of an
// IPv6 header in place, symmetrically for all 128 bits (spec.md §4.4
// step 5).
func SwapV6Addresses(ip *layers.IPv6) {
	ip.SrcIP, ip.DstIP = ip.DstIP, ip.SrcIP
}

// Recompute re-serializes the packet and recomputes IP/TCP/UDP checksums
// via gopacket's SerializeLayers, standing in for the capture driver's
// "helper" that recomputes checksums on reinjection (spec.md §4.1, §4.4
// step 6). It returns the new wire bytes.
func Recompute(v *View) ([]byte, error) {
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{
		ComputeChecksums: true,
		FixLengths:       true,
	}

	var network gopacket.NetworkLayer
	layerList := make([]gopacket.SerializableLayer, 0, 4)

	switch {
	case v.IPv4 != nil:
		network = v.IPv4
		layerList = append(layerList, v.IPv4)
	case v.IPv6 != nil:
		network = v.IPv6
		layerList = append(layerList, v.IPv6)
	}

	switch {
	case v.TCP != nil:
		if network != nil {
			v.TCP.SetNetworkLayerForChecksum(network)
		}
		layerList = append(layerList, v.TCP)
	case v.UDP != nil:
		if network != nil {
			v.UDP.SetNetworkLayerForChecksum(network)
		}
		layerList = append(layerList, v.UDP)
	}

	if len(v.Payload) > 0 {
		layerList = append(layerList, gopacket.Payload(v.Payload))
	}

	if err := gopacket.SerializeLayers(buf, opts, layerList...); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ParseIPv4 parses a 4-byte big-endian address slice into a net.IP, used
// by the SOCKS guard when reading an embedded destination address out of
// a CONNECT request payload (spec.md §4.5).
func ParseIPv4(b []byte) net.IP {
	if len(b) != 4 {
		return nil
	}
	return net.IPv4(b[0], b[1], b[2], b[3])
}
