/*************************************************************************
 * Copyright 2024 divertengine authors. All rights reserved.
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package workerpool implements spec.md §4.6: one capture-reading worker
// per logical core sharing one handle, with serialized start/stop
// lifecycle and cooperative shutdown.
package workerpool

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/divertengine/divertengine/internal/capture"
	"github.com/divertengine/divertengine/internal/dvlog"
)

// Processor is invoked once per received packet. It returns whether the
// packet should be reinjected and, if so, the (possibly rewritten) bytes
// and metadata to send. Returning send=false silently drops the packet
// (spec.md §3 invariant: every packet is reinjected or explicitly
// dropped before the next receive).
type Processor interface {
	Process(ctx context.Context, data []byte, meta capture.Metadata) (send bool, out []byte, outMeta capture.Metadata)
}

// ProcessorFunc adapts a plain function to Processor.
type ProcessorFunc func(ctx context.Context, data []byte, meta capture.Metadata) (bool, []byte, capture.Metadata)

func (f ProcessorFunc) Process(ctx context.Context, data []byte, meta capture.Metadata) (bool, []byte, capture.Metadata) {
	return f(ctx, data, meta)
}

// Pool runs one worker goroutine per logical CPU core against a single
// capture.Handle. States are Stopped -> Running -> Stopped with no
// intermediate states exposed (spec.md §4.6); start/stop are serialized
// by mtx.
type Pool struct {
	mtx     sync.Mutex
	running atomic.Bool
	wg      sync.WaitGroup
	cancel  context.CancelFunc
	log     *dvlog.Logger
}

// New builds an idle Pool.
func New(log *dvlog.Logger) *Pool {
	return &Pool{log: log}
}

// IsRunning reports whether the pool is presently running.
func (p *Pool) IsRunning() bool { return p.running.Load() }

// Start spawns runtime.NumCPU() workers, each calling handle.Recv in a
// loop and dispatching to proc (spec.md §4.6 "start"). Start is a no-op
// returning nil if already running.
func (p *Pool) Start(handle capture.Handle, proc Processor) error {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	if p.running.Load() {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.running.Store(true)

	n := runtime.NumCPU()
	p.wg.Add(n)
	for i := 0; i < n; i++ {
		go p.runWorker(ctx, handle, proc)
	}
	return nil
}

// Stop flips the running flag, joins every worker, and returns once all
// have exited (spec.md §4.6 "stop"). A packet mid-rewrite when Stop is
// called is still reinjected before its worker observes the flag (spec.md
// §5, "Cancellation").
func (p *Pool) Stop() {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	if !p.running.Load() {
		return
	}
	p.running.Store(false)
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

func (p *Pool) runWorker(ctx context.Context, handle capture.Handle, proc Processor) {
	defer p.wg.Done()

	buf := make([]byte, capture.MaxPacketSize)
	for p.running.Load() {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, meta, err := handle.Recv(buf)
		if err != nil {
			// Transient per-packet error: log and continue, never
			// terminate the worker (spec.md §4.1 "Failure", §7).
			if p.log != nil {
				p.log.Warnf("worker recv failed: %v", err)
			}
			continue
		}
		if !p.running.Load() {
			// Stop began while we were blocked in Recv; the packet we
			// just pulled off is still reinjected unmodified rather than
			// silently eaten (spec.md §5, best-effort passthrough).
			handle.Send(buf[:n], meta)
			return
		}

		send, out, outMeta := proc.Process(ctx, buf[:n], meta)
		if !send {
			continue
		}
		if err := handle.Send(out, outMeta); err != nil {
			// Send failure is acceptable and silent at this layer; TCP
			// will retransmit (spec.md §4.1 "Failure").
			if p.log != nil {
				p.log.Warnf("worker send failed: %v", err)
			}
		}
	}
}
