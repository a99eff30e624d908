/*************************************************************************
 * Copyright 2024 divertengine authors. All rights reserved.
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package capture

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
)

// pcapHandle backs Handle with github.com/google/gopacket/pcap, the
// library the teacher uses throughout its ingesters (SPEC_FULL.md §11).
type pcapHandle struct {
	mtx      sync.Mutex
	handle   *pcap.Handle
	dropOnly bool
}

// Open activates a live capture session matching spec. DropOnly handles
// are activated and filtered identically to a normal handle; the capture
// session does not drop the traffic it matches, and Recv on such a handle
// returns an error (spec.md §4.1).
// openRetries and openRetryDelay bound the retry described in
// SPEC_FULL.md §12, grounded on WinDiverter's retry of WinDivertOpen on
// recoverable "device busy"/insufficient-resources errors: a freshly
// stopped engine's handle may not be released by the kernel instantly,
// so a bare first-attempt failure is not necessarily fatal. Open makes up
// to openRetries attempts, openRetryDelay apart, and retries every
// failure whatever its cause; the last error is returned.
const (
	openRetries    = 3
	openRetryDelay = 100 * time.Millisecond
)

func Open(spec FilterSpec) (Handle, error) {
	var h Handle
	var err error
	for attempt := 1; attempt <= openRetries; attempt++ {
		h, err = openOnce(spec)
		if err == nil {
			return h, nil
		}
		if attempt < openRetries {
			time.Sleep(openRetryDelay)
		}
	}
	return nil, err
}

func openOnce(spec FilterSpec) (Handle, error) {
	_ = raiseFileLimit() // best-effort; see queue_unix.go / queue_windows.go

	inactive, err := pcap.NewInactiveHandle(spec.Device)
	if err != nil {
		return nil, fmt.Errorf("capture: open %s: %w", spec.Device, err)
	}
	defer inactive.CleanUp()

	if err := inactive.SetSnapLen(MaxPacketSize); err != nil {
		return nil, fmt.Errorf("capture: set snaplen: %w", err)
	}
	if err := inactive.SetPromisc(false); err != nil {
		return nil, fmt.Errorf("capture: set promisc: %w", err)
	}
	if err := inactive.SetTimeout(time.Duration(DefaultQueueParams.TimeMS) * time.Millisecond); err != nil {
		return nil, fmt.Errorf("capture: set timeout: %w", err)
	}
	if err := inactive.SetImmediateMode(true); err != nil {
		return nil, fmt.Errorf("capture: set immediate mode: %w", err)
	}

	h, err := inactive.Activate()
	if err != nil {
		return nil, fmt.Errorf("capture: activate: %w", err)
	}

	if spec.BPFExpr != "" {
		if err := h.SetBPFFilter(spec.BPFExpr); err != nil {
			h.Close()
			return nil, fmt.Errorf("capture: set filter %q: %w", spec.BPFExpr, err)
		}
	}
	if err := h.SetDirection(toPcapDirection(spec.Direction)); err != nil {
		// Not every backend supports direction filtering (spec.md §4.1
		// treats this as best-effort where unavailable); the BPF
		// expression alone still carries the semantics we need.
		_ = err
	}

	return &pcapHandle{handle: h, dropOnly: spec.DropOnly}, nil
}

func toPcapDirection(d Direction) pcap.Direction {
	if d == DirectionInbound {
		return pcap.DirectionIn
	}
	return pcap.DirectionOut
}

// CheckFilter validates a BPF expression without opening a live capture,
// mirroring the driver shim's check_filter(expression) -> Ok | (error,
// position) contract (spec.md §4.1). pcap does not report a byte
// position for a bad filter, so FilterError.Position is always 0 here.
func CheckFilter(expr string) error {
	dead, err := pcap.OpenDead(layers.LinkTypeEthernet, MaxPacketSize)
	if err != nil {
		return fmt.Errorf("capture: unable to open dead handle for filter check: %w", err)
	}
	defer dead.Close()
	if _, err := dead.CompileBPFFilter(expr); err != nil {
		return &FilterError{Message: err.Error()}
	}
	return nil
}

func (p *pcapHandle) Recv(buf []byte) (int, Metadata, error) {
	if p.dropOnly {
		return 0, Metadata{}, fmt.Errorf("capture: Recv called on a drop-only handle")
	}
	p.mtx.Lock()
	h := p.handle
	p.mtx.Unlock()
	if h == nil {
		return 0, Metadata{}, fmt.Errorf("capture: Recv called on a closed handle")
	}
	data, ci, err := h.ReadPacketData()
	if err != nil {
		return 0, Metadata{}, err
	}
	n := copy(buf, data)
	meta := Metadata{
		Direction: DirectionOutbound,
		Loopback:  false,
	}
	_ = ci
	return n, meta, nil
}

func (p *pcapHandle) Send(buf []byte, meta Metadata) error {
	p.mtx.Lock()
	h := p.handle
	p.mtx.Unlock()
	if h == nil {
		return fmt.Errorf("capture: Send called on a closed handle")
	}
	return h.WritePacketData(buf)
}

func (p *pcapHandle) SetQueueParams(q QueueParams) error {
	// gopacket/pcap exposes buffer size and read timeout only at
	// activation time (via InactiveHandle), not on a live *pcap.Handle,
	// so this is a no-op. Open uses DefaultQueueParams.TimeMS as the
	// activation read timeout; pcap has no packet-count queue, and
	// QueueParams.Length is not applied on this backend. SetQueueParams
	// is kept on the interface so other backends (NFQUEUE or WinDivert
	// based) can apply it live.
	return nil
}

func (p *pcapHandle) LinkType() int {
	return int(p.handle.LinkType())
}

func (p *pcapHandle) Close() error {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	if p.handle != nil {
		p.handle.Close()
		p.handle = nil
	}
	return nil
}
