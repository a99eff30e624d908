/*************************************************************************
 * Copyright 2024 divertengine authors. All rights reserved.
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package engine

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/divertengine/divertengine/internal/capture"
	"github.com/divertengine/divertengine/internal/classifier"
)

// fakeResolver and fakeFirewall mirror the classifier package's own test
// doubles (internal/classifier/classifier_test.go) so diverter_test.go can
// exercise the same decision table at the pcapDiverter layer without a
// real resolver or firewall callback.
type fakeResolver struct {
	pid     int32
	binPath string
}

func (f *fakeResolver) ResolveV4(ctx context.Context, addr string, port uint16) (int32, error) {
	return f.pid, nil
}
func (f *fakeResolver) ResolveV6(ctx context.Context, addr string, port uint16) (int32, error) {
	return f.pid, nil
}
func (f *fakeResolver) BinaryPath(ctx context.Context, pid int32) string { return f.binPath }
func (f *fakeResolver) IsSystemOwned(pid int32) bool                    { return pid == 0 }

type fakeFirewall struct {
	allow map[string]bool
}

func (f *fakeFirewall) Permits(path string) bool { return f.allow[path] }

var (
	_ classifier.PIDResolver     = (*fakeResolver)(nil)
	_ classifier.FirewallAuthority = (*fakeFirewall)(nil)
)

func buildTCPv4Packet(t *testing.T, srcPort, dstPort layers.TCPPort, syn bool, srcIP, dstIP string) []byte {
	t.Helper()
	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: layers.IPProtocolTCP,
		SrcIP:    net.ParseIP(srcIP).To4(),
		DstIP:    net.ParseIP(dstIP).To4(),
	}
	tcp := &layers.TCP{SrcPort: srcPort, DstPort: dstPort, SYN: syn, Window: 65535}
	require.NoError(t, tcp.SetNetworkLayerForChecksum(ip))

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{ComputeChecksums: true, FixLengths: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, ip, tcp))
	return buf.Bytes()
}

func newTestDiverter(t *testing.T, res classifier.PIDResolver, fw classifier.FirewallAuthority) (*pcapDiverter, *capture.FakeHandle, *capture.FakeHandle) {
	t.Helper()
	tcpHandle := capture.NewFakeHandle(8)
	udpHandle := capture.NewFakeHandle(8)
	d := newDiverterWithOpeners("fake0", res, fw, nil,
		func(device string) (capture.Handle, error) { return tcpHandle, nil },
		func(device string) (capture.Handle, error) { return udpHandle, nil },
	)
	return d, tcpHandle, udpHandle
}

func TestPCAPDiverter_RewritesFilteredForwardLeg(t *testing.T) {
	res := &fakeResolver{pid: 1234, binPath: "/usr/bin/curl"}
	fw := &fakeFirewall{allow: map[string]bool{"/usr/bin/curl": true}}
	d, tcpHandle, _ := newTestDiverter(t, res, fw)

	require.NoError(t, d.SetHTTPListenerPort(8080))
	require.NoError(t, d.SetHTTPSListenerPort(8443))
	require.NoError(t, d.Run())
	defer d.Stop()

	assert.True(t, d.IsRunning())
	assert.Equal(t, uint16(8080), d.GetHTTPListenerPort())
	assert.Equal(t, uint16(8443), d.GetHTTPSListenerPort())

	// SYN establishes the flow as filtered (public destination, allowed
	// binary), then a data segment on the same source port is rewritten
	// and reinjected toward the local HTTP listener.
	tcpHandle.Deliver(buildTCPv4Packet(t, 51000, 80, true, "192.0.2.1", "93.184.216.34"), capture.Metadata{Direction: capture.DirectionOutbound})
	tcpHandle.Deliver(buildTCPv4Packet(t, 51000, 80, false, "192.0.2.1", "93.184.216.34"), capture.Metadata{Direction: capture.DirectionOutbound})

	require.Eventually(t, func() bool {
		return len(tcpHandle.Sent()) >= 1
	}, time.Second, 10*time.Millisecond)

	sent := tcpHandle.Sent()
	require.NotEmpty(t, sent)
	out := sent[len(sent)-1]
	pkt := gopacket.NewPacket(out, layers.LayerTypeIPv4, gopacket.Default)
	tcpLayer := pkt.Layer(layers.LayerTypeTCP)
	require.NotNil(t, tcpLayer)
	assert.Equal(t, layers.TCPPort(8080), tcpLayer.(*layers.TCP).DstPort)

	stats := d.Stats()
	assert.GreaterOrEqual(t, stats.Processed, uint64(2))
	assert.GreaterOrEqual(t, stats.Rewritten, uint64(1))
}

func TestPCAPDiverter_PassesThroughUnrelatedTraffic(t *testing.T) {
	res := &fakeResolver{pid: 9999, binPath: "/opt/other"}
	fw := &fakeFirewall{allow: map[string]bool{}}
	d, tcpHandle, _ := newTestDiverter(t, res, fw)

	require.NoError(t, d.Run())
	defer d.Stop()

	tcpHandle.Deliver(buildTCPv4Packet(t, 52000, 443, true, "192.0.2.1", "8.8.8.8"), capture.Metadata{Direction: capture.DirectionOutbound})
	tcpHandle.Deliver(buildTCPv4Packet(t, 52000, 443, false, "192.0.2.1", "8.8.8.8"), capture.Metadata{Direction: capture.DirectionOutbound})

	require.Eventually(t, func() bool {
		return d.Stats().Processed >= 2
	}, time.Second, 10*time.Millisecond)

	assert.Equal(t, uint64(0), d.Stats().Rewritten)
}

func TestPCAPDiverter_SetPortsRejectedWhileRunning(t *testing.T) {
	d, _, _ := newTestDiverter(t, &fakeResolver{}, &fakeFirewall{})
	require.NoError(t, d.Run())
	defer d.Stop()

	assert.ErrorIs(t, d.SetHTTPListenerPort(9000), ErrPortsImmutableWhileRunning)
	assert.ErrorIs(t, d.SetHTTPSListenerPort(9001), ErrPortsImmutableWhileRunning)
}

func TestPCAPDiverter_RunIsIdempotentWhileRunning(t *testing.T) {
	d, _, _ := newTestDiverter(t, &fakeResolver{}, &fakeFirewall{})
	require.NoError(t, d.Run())
	defer d.Stop()
	assert.NoError(t, d.Run())
}

func TestPCAPDiverter_StopClosesBothHandles(t *testing.T) {
	d, tcpHandle, udpHandle := newTestDiverter(t, &fakeResolver{}, &fakeFirewall{})
	require.NoError(t, d.Run())
	d.Stop()

	assert.False(t, d.IsRunning())
	assert.Error(t, tcpHandle.Send([]byte{1}, capture.Metadata{}), "tcp handle closed by Stop")
	assert.Error(t, udpHandle.Send([]byte{1}, capture.Metadata{}), "udp handle closed by Stop")
}

func TestPCAPDiverter_OpenTCPFailureAbortsRun(t *testing.T) {
	boom := assertError{}
	d := newDiverterWithOpeners("fake0", &fakeResolver{}, &fakeFirewall{}, nil,
		func(device string) (capture.Handle, error) { return nil, boom },
		func(device string) (capture.Handle, error) { return capture.NewFakeHandle(1), nil },
	)
	err := d.Run()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCaptureOpenFailed)
	assert.False(t, d.IsRunning())
}

func TestPCAPDiverter_OpenUDPFailureClosesTCPAndAbortsRun(t *testing.T) {
	tcpHandle := capture.NewFakeHandle(1)
	boom := assertError{}
	d := newDiverterWithOpeners("fake0", &fakeResolver{}, &fakeFirewall{}, nil,
		func(device string) (capture.Handle, error) { return tcpHandle, nil },
		func(device string) (capture.Handle, error) { return nil, boom },
	)
	err := d.Run()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCaptureOpenFailed)
	assert.False(t, d.IsRunning())
	assert.Error(t, tcpHandle.Send([]byte{1}, capture.Metadata{}), "tcp handle closed on udp open failure")
}

type assertError struct{}

func (assertError) Error() string { return "boom" }
