/*************************************************************************
 * Copyright 2024 divertengine authors. All rights reserved.
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package capture implements the platform capture driver shim (spec.md
// §4.1): open/close capture handles, submit a filter expression, and
// receive/send raw packets with per-packet direction/interface metadata.
//
// SPEC_FULL.md §11 grounds the implementation on
// github.com/google/gopacket/pcap, the library the teacher uses for all
// of its packet-capture ingesters (networkLog, pcapFileIngester,
// PacketFleet). A literal WinDivert-syntax filter expression ("outbound
// and tcp and ...") has no BPF equivalent one-to-one; Open instead takes
// a structured FilterSpec and builds the matching BPF program plus
// pcap.SetDirection call, so the *semantics* of spec.md §6's filter
// expressions are preserved even though the syntax is platform-native
// (see DESIGN.md).
package capture

import "errors"

// Direction is the direction metadata attached to every captured packet
// (spec.md §3, "Packet").
type Direction int

const (
	DirectionOutbound Direction = iota
	DirectionInbound
)

func (d Direction) String() string {
	if d == DirectionInbound {
		return "inbound"
	}
	return "outbound"
}

// MaxPacketSize is the bounded capacity of a captured packet buffer
// (spec.md §3).
const MaxPacketSize = 65535

// Metadata is the per-packet record accompanying a captured buffer
// (spec.md §3): direction, originating interface, and whether the packet
// is loopback.
type Metadata struct {
	Direction Direction
	IfIndex   int
	Loopback  bool
}

// FilterSpec describes what a capture handle should match. Device is the
// platform interface name (or "" for "all interfaces" where the backend
// supports it). BPFExpr is a BPF boolean expression; Direction restricts
// capture to one traffic direction where the backend supports it.
// DropOnly marks a handle as kernel-side drop-configured — spec.md §4.1,
// "A drop-only mode is exposed via a flag; in that mode recv is never
// called."
type FilterSpec struct {
	Device    string
	BPFExpr   string
	Direction Direction
	DropOnly  bool
	Priority  int
}

// QueueParams are the kernel queue tuning constants of spec.md §4.1:
// "too-small values drop legitimate traffic under burst."
type QueueParams struct {
	Length int // packets
	TimeMS int // milliseconds
}

// DefaultQueueParams matches the contract values named in spec.md §4.1.
var DefaultQueueParams = QueueParams{Length: 8192, TimeMS: 2048}

// ErrFilterInvalid is returned by CheckFilter when a filter expression
// fails to compile, alongside the platform's error string and position.
var ErrFilterInvalid = errors.New("capture: invalid filter expression")

// Handle is the driver shim's capture session abstraction (spec.md §4.1):
// open/recv/send/close/set_param/check_filter. Two handles exist per
// engine instance — one TCP rewrite handle, one UDP drop handle — both
// shared across worker goroutines; the platform backend is expected to
// serialize concurrent access internally (spec.md §3, "Capture handle").
type Handle interface {
	// Recv blocks for the next packet (or the platform's overlapped/async
	// equivalent) and fills buf. It returns the number of bytes written
	// and the packet's metadata. Never called on a DropOnly handle.
	Recv(buf []byte) (n int, meta Metadata, err error)
	// Send reinjects buf, possibly after rewriting, with meta describing
	// the (possibly flipped) direction to apply.
	Send(buf []byte, meta Metadata) error
	// SetQueueParams applies kernel queue tuning. Implementations may
	// treat this as best-effort on backends with no equivalent knob.
	SetQueueParams(QueueParams) error
	// LinkType reports the datalink header type of this capture session,
	// needed by header parsing to know what the first bytes represent.
	LinkType() int
	// Close releases the handle. Safe to call once; Recv/Send after
	// Close must return an error rather than panic.
	Close() error
}

// FilterError carries the platform error string and byte position
// reported by CheckFilter, mirroring the driver shim's
// check_filter(expression) -> (error_string, position) contract.
type FilterError struct {
	Message  string
	Position int
}

func (e *FilterError) Error() string {
	return e.Message
}

// Unwrap makes errors.Is(err, ErrFilterInvalid) hold for a *FilterError.
func (e *FilterError) Unwrap() error {
	return ErrFilterInvalid
}
