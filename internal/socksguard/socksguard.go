/*************************************************************************
 * Copyright 2024 divertengine authors. All rights reserved.
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package socksguard implements the SOCKS CONNECT evasion detector
// consulted within the classifier's private-destination carve-out
// (spec.md §4.5). It is the one narrow exception to "no payload
// inspection" called out in spec.md §1.
package socksguard

import (
	"encoding/binary"

	"github.com/divertengine/divertengine/internal/headers"
)

func isBlockedPort(port uint16) bool {
	return port == 80 || port == 443
}

// IsConnectToFiltered reports whether payload begins with a SOCKSv4 or
// SOCKSv5 CONNECT request whose destination port is 80 or 443 and, for an
// IPv4 destination (SOCKSv4, or SOCKSv5 ATYP 0x01), whose address is not
// private (spec.md §4.5). Domain-name and IPv6 destinations are matched on
// port alone. Anything else, including truncated or malformed buffers,
// returns false.
func IsConnectToFiltered(payload []byte) bool {
	if len(payload) == 0 {
		return false
	}
	switch payload[0] {
	case 0x04:
		return isSocks4Connect(payload)
	case 0x05:
		return isSocks5Connect(payload)
	}
	return false
}

// SOCKSv4: VN(1) CD(1) DSTPORT(2) DSTIP(4) ...
func isSocks4Connect(p []byte) bool {
	if len(p) < 8 {
		return false
	}
	port := binary.BigEndian.Uint16(p[2:4])
	if !isBlockedPort(port) {
		return false
	}
	dst := headers.ParseIPv4(p[4:8])
	return dst != nil && !headers.IsPrivateIPv4(dst)
}

// SOCKSv5: VER(1) CMD(1) RSV(1) ATYP(1) DST.ADDR(var) DST.PORT(2)
func isSocks5Connect(p []byte) bool {
	if len(p) < 4 || p[1] != 0x01 {
		return false
	}
	switch p[3] {
	case 0x01: // IPv4
		if len(p) < 10 {
			return false
		}
		port := binary.BigEndian.Uint16(p[8:10])
		if !isBlockedPort(port) {
			return false
		}
		dst := headers.ParseIPv4(p[4:8])
		return dst != nil && !headers.IsPrivateIPv4(dst)
	case 0x03: // domain name
		if len(p) < 5 {
			return false
		}
		domLen := int(p[4])
		need := 5 + domLen + 2
		if len(p) < need {
			return false
		}
		port := binary.BigEndian.Uint16(p[5+domLen : 7+domLen])
		return isBlockedPort(port)
	case 0x04: // IPv6
		if len(p) < 22 {
			return false
		}
		port := binary.BigEndian.Uint16(p[20:22])
		return isBlockedPort(port)
	}
	return false
}
