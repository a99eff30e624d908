/*************************************************************************
 * Copyright 2024 divertengine authors. All rights reserved.
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package headers provides bounds-checked, read-only views over the L3/L4
// headers of a captured packet, replacing the raw-pointer "helper parser"
// of the original implementation with gopacket's decoding (spec.md §4.4
// step 1, §9 "raw pointers ... become tagged variants").
package headers

import (
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// View is the decoded result of parsing one captured packet. Any field may
// be nil, meaning "no such header" — the classifier treats every nil
// defensively per spec.md §4.4 step 1.
type View struct {
	Packet  gopacket.Packet
	IPv4    *layers.IPv4
	IPv6    *layers.IPv6
	TCP     *layers.TCP
	UDP     *layers.UDP
	Payload []byte
}

// Parse decodes raw bytes captured at the network layer. The caller
// supplies the gopacket.LayerType the link reports (e.g.
// layers.LayerTypeIPv4 for a raw-IP capture with no link header, since the
// capture driver shim strips link-layer framing before handing packets to
// the classifier).
func Parse(data []byte, first gopacket.LayerType) *View {
	pkt := gopacket.NewPacket(data, first, gopacket.DecodeStreamsAsDatagrams)
	v := &View{Packet: pkt}

	if l := pkt.Layer(layers.LayerTypeIPv4); l != nil {
		v.IPv4, _ = l.(*layers.IPv4)
	}
	if l := pkt.Layer(layers.LayerTypeIPv6); l != nil {
		v.IPv6, _ = l.(*layers.IPv6)
	}
	if l := pkt.Layer(layers.LayerTypeTCP); l != nil {
		v.TCP, _ = l.(*layers.TCP)
	}
	if l := pkt.Layer(layers.LayerTypeUDP); l != nil {
		v.UDP, _ = l.(*layers.UDP)
	}
	if l := pkt.ApplicationLayer(); l != nil {
		v.Payload = l.Payload()
	}
	return v
}

// IsIPv4 reports whether the view decoded an IPv4 header.
func (v *View) IsIPv4() bool { return v.IPv4 != nil }

// IsIPv6 reports whether the view decoded an IPv6 header.
func (v *View) IsIPv6() bool { return v.IPv6 != nil }

// HasTCP reports whether the view decoded a TCP header.
func (v *View) HasTCP() bool { return v.TCP != nil }

var privateV4Blocks = func() []*net.IPNet {
	blocks := []string{"10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16"}
	nets := make([]*net.IPNet, 0, len(blocks))
	for _, b := range blocks {
		_, n, err := net.ParseCIDR(b)
		if err != nil {
			panic(err)
		}
		nets = append(nets, n)
	}
	return nets
}()

// IsPrivateIPv4 reports whether addr falls within an RFC1918 private
// range (10/8, 172.16/12, 192.168/16). Shared by the classifier's
// private-destination carve-out (spec.md §4.4 step 4) and the SOCKS guard
// (spec.md §4.5) — grounded on the original's single
// BaseDiverter::IsV4AddressPrivate helper used by both call sites
// (SPEC_FULL.md §12).
func IsPrivateIPv4(addr net.IP) bool {
	v4 := addr.To4()
	if v4 == nil {
		return false
	}
	for _, n := range privateV4Blocks {
		if n.Contains(v4) {
			return true
		}
	}
	return false
}

// IsLoopback reports whether addr is 127.0.0.1 or ::1. The capture filter
// expression (spec.md §6) already excludes these at the kernel; this is a
// defensive check for code paths (tests, fake handles) that bypass the
// real filter.
func IsLoopback(addr net.IP) bool {
	return addr.IsLoopback()
}
