/*************************************************************************
 * Copyright 2024 divertengine authors. All rights reserved.
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package engine

import (
	"fmt"

	"github.com/divertengine/divertengine/internal/capture"
	"github.com/divertengine/divertengine/internal/classifier"
	"github.com/divertengine/divertengine/internal/dvlog"
	"github.com/divertengine/divertengine/internal/metrics"
	"github.com/divertengine/divertengine/internal/udpblock"
	"github.com/divertengine/divertengine/internal/workerpool"
)

// tcpFilterExpr is the BPF-equivalent of spec.md §6's TCP rewrite filter
// ("outbound and tcp and ((ip and ip.SrcAddr != 127.0.0.1) or (ipv6 and
// ipv6.SrcAddr != ::1))"). Direction is applied separately via
// capture.FilterSpec.Direction / pcap.SetDirection, since BPF itself has
// no first-class notion of capture direction.
const tcpFilterExpr = "tcp and not (src host 127.0.0.1 or src host ::1)"

// Diverter is the stable, platform-independent interface spec.md §9
// describes replacing the original's per-platform class hierarchy
// ("Polymorphic per-platform diverter becomes a trait/interface"). This
// module ships one implementation (pcap-backed); a production deployment
// could add a build-tagged NFQUEUE or WinDivert-backed implementation
// behind the same interface without touching engine.Controller.
type Diverter interface {
	Run() error
	Stop()
	IsRunning() bool
	GetHTTPListenerPort() uint16
	GetHTTPSListenerPort() uint16
	// SetHTTPListenerPort/SetHTTPSListenerPort are only valid while
	// Stopped (spec.md §3 invariant, §6; original_source/
	// WinDiverter::SetHttpListenerPort semantics, SPEC_FULL.md §12).
	SetHTTPListenerPort(port uint16) error
	SetHTTPSListenerPort(port uint16) error
	Stats() metrics.DiverterStats
}

// pcapDiverter is the pcap-backed Diverter implementation (spec.md §4.1,
// §4.4, §4.6). openTCP/openUDP are indirected so tests can substitute
// capture.FakeHandle for the two handles without a real kernel capture
// session (SPEC_FULL.md §10.5); Controller always builds one through
// newPCAPDiverter, which wires the real pcap-backed openers.
type pcapDiverter struct {
	device  string
	openTCP func(device string) (capture.Handle, error)
	openUDP func(device string) (capture.Handle, error)

	ports  classifier.ListenerPorts
	tables *classifier.FlowTables
	class  *classifier.Classifier
	pool   *workerpool.Pool

	tcpHandle capture.Handle
	udpHandle capture.Handle

	counters metrics.Counters
	log      *dvlog.Logger
}

// newPCAPDiverter builds a pcapDiverter. res and fw are narrowed to the
// classifier's own interfaces so diverter.go does not need to know
// resolver.Resolver or firewall.Authority concretely (spec.md §4.2,
// §4.3); engine.go passes its concrete instances straight through.
func newPCAPDiverter(device string, res classifier.PIDResolver, fw classifier.FirewallAuthority, log *dvlog.Logger) *pcapDiverter {
	return newDiverterWithOpeners(device, res, fw, log, openTCPHandle, udpblock.Open)
}

// newDiverterWithOpeners is the injectable constructor used by engine_test.go
// to substitute fake capture handles for the real pcap-backed ones.
func newDiverterWithOpeners(device string, res classifier.PIDResolver, fw classifier.FirewallAuthority, log *dvlog.Logger, openTCP, openUDP func(device string) (capture.Handle, error)) *pcapDiverter {
	d := &pcapDiverter{
		device:  device,
		openTCP: openTCP,
		openUDP: openUDP,
		tables:  classifier.NewFlowTables(),
		log:     log,
	}
	d.class = classifier.New(&d.ports, d.tables, res, fw)
	d.pool = workerpool.New(log)
	return d
}

// openTCPHandle opens the real pcap-backed TCP rewrite handle (spec.md
// §6's filter expression, translated to BPF).
func openTCPHandle(device string) (capture.Handle, error) {
	h, err := capture.Open(capture.FilterSpec{
		Device:    device,
		BPFExpr:   tcpFilterExpr,
		Direction: capture.DirectionOutbound,
		Priority:  -1000,
	})
	if err != nil {
		return nil, err
	}
	if err := h.SetQueueParams(capture.DefaultQueueParams); err != nil {
		h.Close()
		return nil, err
	}
	return h, nil
}

func (d *pcapDiverter) IsRunning() bool { return d.pool.IsRunning() }

// Run opens the TCP rewrite handle and the UDP drop handle, then spawns
// the worker pool (spec.md §4.6 "start"). Either handle failing to open
// aborts Run with a fatal error; any handle already opened is closed
// first (spec.md §4.6 step 1).
func (d *pcapDiverter) Run() error {
	if d.IsRunning() {
		return nil
	}

	tcpHandle, err := d.openTCP(d.device)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCaptureOpenFailed, err)
	}

	udpHandle, err := d.openUDP(d.device)
	if err != nil {
		tcpHandle.Close()
		return fmt.Errorf("%w: %v", ErrCaptureOpenFailed, err)
	}

	d.tcpHandle = tcpHandle
	d.udpHandle = udpHandle

	proc := &tcpProcessor{
		classifier: d.class,
		ports:      &d.ports,
		counters:   &d.counters,
		log:        d.log,
	}
	return d.pool.Start(d.tcpHandle, proc)
}

// Stop joins every worker and closes both capture handles (spec.md §4.6
// "stop").
func (d *pcapDiverter) Stop() {
	d.pool.Stop()
	if d.tcpHandle != nil {
		d.tcpHandle.Close()
		d.tcpHandle = nil
	}
	if d.udpHandle != nil {
		d.udpHandle.Close()
		d.udpHandle = nil
	}
}

func (d *pcapDiverter) GetHTTPListenerPort() uint16  { return d.ports.HTTPPort() }
func (d *pcapDiverter) GetHTTPSListenerPort() uint16 { return d.ports.HTTPSPort() }

func (d *pcapDiverter) SetHTTPListenerPort(port uint16) error {
	if d.IsRunning() {
		return ErrPortsImmutableWhileRunning
	}
	d.ports.SetHTTPPort(port)
	return nil
}

func (d *pcapDiverter) SetHTTPSListenerPort(port uint16) error {
	if d.IsRunning() {
		return ErrPortsImmutableWhileRunning
	}
	d.ports.SetHTTPSPort(port)
	return nil
}

func (d *pcapDiverter) Stats() metrics.DiverterStats { return d.counters.Snapshot() }
