// Copyright 2026 Pulsecast authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package receiver

import (
	"net"
	"time"

	"go.uber.org/atomic"

	"github.com/pulsecast/pulsecast/pkg/fec"
	"github.com/pulsecast/pulsecast/pkg/logger"
	"github.com/pulsecast/pulsecast/pkg/packet"
	"github.com/pulsecast/pulsecast/pkg/rtp"
	"github.com/pulsecast/pulsecast/pkg/telemetry/prometheus"
)

// Endpoint is the ingress point for one bound address. WriteDatagram runs
// on network threads, parses without blocking, and hands packets to the
// pipeline through a lock-free queue. It never waits for the pipeline.
type Endpoint struct {
	uri    EndpointURI
	pool   *packet.PacketPool
	parser *rtp.Parser
	log    logger.Logger

	queue *packet.MPSCQueue

	malformedPackets atomic.Int64
	exhaustedDrops   atomic.Int64
}

func NewEndpoint(uri EndpointURI, pool *packet.PacketPool, parser *rtp.Parser, log logger.Logger) *Endpoint {
	return &Endpoint{
		uri:    uri,
		pool:   pool,
		parser: parser,
		log:    log.WithComponent("endpoint").WithValues("uri", uri.String()),
		queue:  packet.NewMPSCQueue(),
	}
}

func (e *Endpoint) URI() EndpointURI {
	return e.uri
}

// Queue exposes the ingress queue to the pipeline side.
func (e *Endpoint) Queue() *packet.MPSCQueue {
	return e.queue
}

// MalformedPackets counts datagrams dropped at parse time.
func (e *Endpoint) MalformedPackets() int64 {
	return e.malformedPackets.Load()
}

// WriteDatagram ingests one raw datagram. Malformed datagrams and pool
// underflow drop the datagram and bump a counter; neither is fatal.
func (e *Endpoint) WriteDatagram(data []byte, src *net.UDPAddr, now time.Time) {
	p := e.pool.Get()
	if p == nil {
		e.exhaustedDrops.Inc()
		prometheus.PacketsDropped.WithLabelValues("pool_exhausted").Inc()
		return
	}

	buf := p.Buffer()
	if len(data) > buf.Cap() {
		p.Release()
		e.drop("oversized")
		return
	}
	copy(buf.Data()[:len(data)], data)
	buf.Resize(len(data))
	raw := buf.Data()

	udp := p.EnableUDP()
	udp.SrcAddr = src
	udp.ReceivedAt = now

	var err error
	switch proto := e.uri.Protocol; {
	case proto == ProtoRTP:
		err = e.parser.Parse(p, raw)

	case proto.IsSource():
		var body []byte
		body, err = fec.ParseSourcePacket(proto.FECScheme(), raw, p.EnableFEC(proto.FECScheme()))
		if err == nil {
			err = e.parser.Parse(p, body)
		}

	case proto.IsRepair():
		err = fec.ParseRepairPacket(proto.FECScheme(), raw, p.EnableFEC(proto.FECScheme()))
		p.SetFlags(packet.FlagRepair)

	case proto.IsControl():
		p.SetFlags(packet.FlagControl)
	}

	if err != nil {
		p.Release()
		e.malformedPackets.Inc()
		prometheus.PacketsDropped.WithLabelValues("malformed").Inc()
		return
	}

	prometheus.PacketsReceived.Inc()
	e.queue.Push(p)
}

func (e *Endpoint) drop(reason string) {
	e.malformedPackets.Inc()
	prometheus.PacketsDropped.WithLabelValues(reason).Inc()
}
