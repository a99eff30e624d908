/*************************************************************************
 * Copyright 2024 divertengine authors. All rights reserved.
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package capture

import (
	"errors"
	"sync"
	"time"
)

// fakeRecvPoll bounds how long FakeHandle.Recv blocks waiting for a
// delivered packet before returning a timeout error, standing in for the
// overlapped-mode wait bound spec.md §4.6/§5 describes for a real
// capture backend ("a 1-second wait bound ensures responsiveness to
// shutdown"). It is deliberately short so lifecycle tests built on
// FakeHandle are fast and Stop observes the running flag promptly even
// when no packet is ever delivered.
const fakeRecvPoll = 20 * time.Millisecond

// ErrRecvTimeout is returned by FakeHandle.Recv when no packet arrives
// within fakeRecvPoll — a transient condition a worker logs and continues
// past (spec.md §4.1 "Failure").
var ErrRecvTimeout = errors.New("capture: fake handle recv timeout")

// FakeHandle is an in-memory Handle used by worker-pool and engine
// lifecycle tests so they do not require real kernel capture privileges
// in CI, grounded on the teacher's treatment of *pcap.Handle as a
// replaceable, fallible resource (networkLog's rebuildPacketSource,
// SPEC_FULL.md §10.5).
type FakeHandle struct {
	mtx      sync.Mutex
	inbox    chan fakePacket
	closed   bool
	sent     [][]byte
	queueSet QueueParams
	link     int
}

type fakePacket struct {
	data []byte
	meta Metadata
}

// NewFakeHandle builds a FakeHandle with a buffered inbox of the given
// depth.
func NewFakeHandle(depth int) *FakeHandle {
	return &FakeHandle{inbox: make(chan fakePacket, depth)}
}

// Deliver injects a packet as if the kernel had captured it, for a test
// to then drive through a worker.
func (f *FakeHandle) Deliver(data []byte, meta Metadata) {
	f.inbox <- fakePacket{data: data, meta: meta}
}

// Sent returns every buffer handed to Send so far, in order.
func (f *FakeHandle) Sent() [][]byte {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	out := make([][]byte, len(f.sent))
	copy(out, f.sent)
	return out
}

func (f *FakeHandle) Recv(buf []byte) (int, Metadata, error) {
	select {
	case pkt, ok := <-f.inbox:
		if !ok {
			return 0, Metadata{}, errors.New("capture: fake handle closed")
		}
		n := copy(buf, pkt.data)
		return n, pkt.meta, nil
	case <-time.After(fakeRecvPoll):
		return 0, Metadata{}, ErrRecvTimeout
	}
}

func (f *FakeHandle) Send(buf []byte, meta Metadata) error {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	if f.closed {
		return errors.New("capture: fake handle closed")
	}
	cp := append([]byte(nil), buf...)
	f.sent = append(f.sent, cp)
	return nil
}

func (f *FakeHandle) SetQueueParams(q QueueParams) error {
	f.queueSet = q
	return nil
}

func (f *FakeHandle) LinkType() int { return f.link }

func (f *FakeHandle) Close() error {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	close(f.inbox)
	return nil
}
