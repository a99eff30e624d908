/*************************************************************************
 * Copyright 2024 divertengine authors. All rights reserved.
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package socksguard

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsConnectToFiltered_Socks5IPv4(t *testing.T) {
	// spec.md §8 scenario 5: 05 01 00 01 08 08 08 08 01 BB -> 8.8.8.8:443
	payload := []byte{0x05, 0x01, 0x00, 0x01, 8, 8, 8, 8, 0x01, 0xBB}
	assert.True(t, IsConnectToFiltered(payload))
}

func TestIsConnectToFiltered_Socks5IPv4Private(t *testing.T) {
	payload := []byte{0x05, 0x01, 0x00, 0x01, 192, 168, 1, 1, 0x01, 0xBB}
	assert.False(t, IsConnectToFiltered(payload), "private destination is not an evasion target")
}

func TestIsConnectToFiltered_Socks5IPv4WrongPort(t *testing.T) {
	payload := []byte{0x05, 0x01, 0x00, 0x01, 8, 8, 8, 8, 0x00, 0x50}
	assert.False(t, IsConnectToFiltered(payload))
}

func TestIsConnectToFiltered_Socks5Domain(t *testing.T) {
	dom := "example.com"
	payload := []byte{0x05, 0x01, 0x00, 0x03, byte(len(dom))}
	payload = append(payload, dom...)
	payload = append(payload, 0x01, 0xBB)
	assert.True(t, IsConnectToFiltered(payload))
}

func TestIsConnectToFiltered_Socks5DomainTruncated(t *testing.T) {
	payload := []byte{0x05, 0x01, 0x00, 0x03, 20, 'a', 'b'}
	assert.False(t, IsConnectToFiltered(payload))
}

func TestIsConnectToFiltered_Socks5IPv6(t *testing.T) {
	payload := make([]byte, 22)
	payload[0] = 0x05
	payload[1] = 0x01
	payload[3] = 0x04
	payload[20] = 0x01
	payload[21] = 0xBB
	assert.True(t, IsConnectToFiltered(payload))
}

func TestIsConnectToFiltered_Socks4(t *testing.T) {
	payload := []byte{0x04, 0x01, 0x01, 0xBB, 8, 8, 8, 8}
	assert.True(t, IsConnectToFiltered(payload))
}

func TestIsConnectToFiltered_Socks4Private(t *testing.T) {
	payload := []byte{0x04, 0x01, 0x01, 0xBB, 10, 0, 0, 1}
	assert.False(t, IsConnectToFiltered(payload))
}

func TestIsConnectToFiltered_Socks4Truncated(t *testing.T) {
	payload := []byte{0x04, 0x01, 0x01}
	assert.False(t, IsConnectToFiltered(payload))
}

func TestIsConnectToFiltered_NotSocks(t *testing.T) {
	assert.False(t, IsConnectToFiltered([]byte("GET / HTTP/1.1\r\n")))
	assert.False(t, IsConnectToFiltered(nil))
}

func TestIsConnectToFiltered_Socks5BindNotConnect(t *testing.T) {
	payload := []byte{0x05, 0x02, 0x00, 0x01, 8, 8, 8, 8, 0x01, 0xBB}
	assert.False(t, IsConnectToFiltered(payload), "CMD 0x02 is BIND, not CONNECT")
}
