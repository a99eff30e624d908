/*************************************************************************
 * Copyright 2024 divertengine authors. All rights reserved.
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package engine

import (
	"context"

	"github.com/google/gopacket/layers"
	"github.com/divertengine/divertengine/internal/capture"
	"github.com/divertengine/divertengine/internal/classifier"
	"github.com/divertengine/divertengine/internal/dvlog"
	"github.com/divertengine/divertengine/internal/headers"
	"github.com/divertengine/divertengine/internal/metrics"
	"github.com/divertengine/divertengine/internal/rewriter"
)

// tcpProcessor adapts the classifier + rewriter pipeline to
// workerpool.Processor, implementing the per-packet pass of spec.md §4.4
// steps 1-6 for one worker.
type tcpProcessor struct {
	classifier *classifier.Classifier
	ports      *classifier.ListenerPorts
	counters   *metrics.Counters
	log        *dvlog.Logger
}

func (p *tcpProcessor) Process(ctx context.Context, data []byte, meta capture.Metadata) (bool, []byte, capture.Metadata) {
	p.counters.IncProcessed()

	v := headers.Parse(data, layers.LayerTypeIPv4)
	if v.IPv4 == nil && v.IPv6 == nil {
		// Raw capture without a link header may decode as IPv6 too;
		// headers.Parse is told to try IPv4 first, so retry as IPv6 on a
		// decode miss rather than passing through data we never looked
		// at (defensive, spec.md §4.4 step 1).
		v = headers.Parse(data, layers.LayerTypeIPv6)
	}

	action := p.classifier.Classify(ctx, v)

	switch action {
	case classifier.ActionDrop:
		p.counters.IncDropped()
		p.counters.IncSocksBlocked()
		return false, nil, meta
	case classifier.ActionRewriteReturn, classifier.ActionRewriteForward:
		out, err := rewriter.Rewrite(action, v, p.ports, &meta)
		if err != nil {
			if p.log != nil {
				p.log.Warnf("rewrite failed, passing through unmodified: %v", err)
			}
			return true, data, meta
		}
		p.counters.IncRewritten()
		p.counters.IncFiltered()
		return true, out, meta
	default:
		return true, data, meta
	}
}
