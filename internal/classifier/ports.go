/*************************************************************************
 * Copyright 2024 divertengine authors. All rights reserved.
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package classifier

import "sync/atomic"

// ListenerPorts holds the two diverter target ports, read on every packet
// and set only while the engine is stopped (spec.md §3 invariants, §6
// "Port setters are accepted only while stopped"). Plain atomics: no lock
// needed since workers only ever read them, and stop() guarantees no
// writer races a reader.
//
// spec.md §4.4 calls out storing these in network byte order as a
// deliberate choice to avoid a per-packet byte swap in the hot path. That
// concern is specific to reading a raw wire-order struct field directly;
// gopacket's layers.TCP already decodes SrcPort/DstPort into host-order
// values on parse; comparing against a host-order port here is the "or
// eliminate the swap overhead another way" gopacket already provides
// (see DESIGN.md), so the ports are simply stored host-order.
type ListenerPorts struct {
	http  atomic.Uint32
	https atomic.Uint32
}

// SetHTTPPort sets the HTTP listener port.
func (p *ListenerPorts) SetHTTPPort(port uint16) { p.http.Store(uint32(port)) }

// SetHTTPSPort sets the HTTPS listener port.
func (p *ListenerPorts) SetHTTPSPort(port uint16) { p.https.Store(uint32(port)) }

// HTTPPort returns the current HTTP listener port.
func (p *ListenerPorts) HTTPPort() uint16 { return uint16(p.http.Load()) }

// HTTPSPort returns the current HTTPS listener port.
func (p *ListenerPorts) HTTPSPort() uint16 { return uint16(p.https.Load()) }
