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
	"errors"
	"fmt"
	"time"

	"github.com/pulsecast/pulsecast/pkg/audio"
	"github.com/pulsecast/pulsecast/pkg/audio/resampler"
	"github.com/pulsecast/pulsecast/pkg/fec"
	"github.com/pulsecast/pulsecast/pkg/logger"
	"github.com/pulsecast/pulsecast/pkg/packet"
	"github.com/pulsecast/pulsecast/pkg/rtcp"
	"github.com/pulsecast/pulsecast/pkg/rtp"
	"github.com/pulsecast/pulsecast/pkg/session"
)

var (
	// ErrDuplicateEndpoint and ErrIncompatibleEndpoint are slot-fatal at
	// task time: the task is rejected, the slot stays intact.
	ErrDuplicateEndpoint    = errors.New("receiver: slot already has this endpoint kind")
	ErrIncompatibleEndpoint = errors.New("receiver: endpoint protocol incompatible with slot")
)

// Slot binds up to three endpoints (source, repair, control) and owns the
// session group fed by them.
type Slot struct {
	config session.GroupConfig
	log    logger.Logger

	pool   *packet.PacketPool
	parser *rtp.Parser

	source  *Endpoint
	repair  *Endpoint
	control *Endpoint

	group *session.Group
	comm  *rtcp.Communicator
}

func NewSlot(
	config session.GroupConfig,
	outSpec audio.SampleSpec,
	localSSRC uint32,
	cname string,
	encodings *rtp.EncodingMap,
	codecs *fec.CodecRegistry,
	resamplers *resampler.Registry,
	pool *packet.PacketPool,
	log logger.Logger,
) *Slot {
	parser := rtp.NewParser(encodings)
	group := session.NewGroup(config, outSpec, encodings, codecs, resamplers, pool, parser, log)
	return &Slot{
		config: config,
		log:    log.WithComponent("slot"),
		pool:   pool,
		parser: parser,
		group:  group,
		comm:   rtcp.NewCommunicator(localSSRC, cname, group, log),
	}
}

// Group exposes the slot's session group.
func (s *Slot) Group() *session.Group {
	return s.group
}

// Communicator exposes the slot's RTCP state.
func (s *Slot) Communicator() *rtcp.Communicator {
	return s.comm
}

// AddEndpoint binds one endpoint to the slot. Source and repair protocols
// must agree on the FEC scheme; duplicates are rejected.
func (s *Slot) AddEndpoint(uri EndpointURI) (*Endpoint, error) {
	slot := s.endpointSlot(uri.Protocol)
	if slot == nil {
		return nil, fmt.Errorf("%w: %s", ErrIncompatibleEndpoint, uri)
	}
	if *slot != nil {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateEndpoint, uri)
	}

	if uri.Protocol.IsSource() && s.repair != nil &&
		uri.Protocol.FECScheme() != s.repair.URI().Protocol.FECScheme() {
		return nil, fmt.Errorf("%w: %s vs %s", ErrIncompatibleEndpoint, uri, s.repair.URI())
	}
	if uri.Protocol.IsRepair() {
		if s.source != nil && uri.Protocol.FECScheme() != s.source.URI().Protocol.FECScheme() {
			return nil, fmt.Errorf("%w: %s vs %s", ErrIncompatibleEndpoint, uri, s.source.URI())
		}
	}

	ep := NewEndpoint(uri, s.pool, s.parser, s.log)
	*slot = ep

	if s.source != nil && s.repair != nil {
		s.group.SetFECScheme(s.source.URI().Protocol.FECScheme())
	}

	s.log.Infow("endpoint bound", "uri", uri.String())
	return ep, nil
}

func (s *Slot) endpointSlot(p Protocol) **Endpoint {
	switch {
	case p.IsSource():
		return &s.source
	case p.IsRepair():
		return &s.repair
	case p.IsControl():
		return &s.control
	}
	return nil
}

// FECScheme returns the scheme of the bound source endpoint once a repair
// endpoint is bound as well, and FECNone otherwise.
func (s *Slot) FECScheme() packet.FECScheme {
	if s.source == nil {
		return packet.FECNone
	}
	if s.repair == nil {
		return packet.FECNone
	}
	return s.source.URI().Protocol.FECScheme()
}

// Process drains all endpoint ingress queues into the session group. Runs
// on the pipeline thread at subframe boundaries.
func (s *Slot) Process(now time.Time) {
	for _, ep := range []*Endpoint{s.source, s.repair} {
		if ep == nil {
			continue
		}
		for {
			p := ep.Queue().Pop()
			if p == nil {
				break
			}
			arrival := now
			if p.UDP != nil && !p.UDP.ReceivedAt.IsZero() {
				arrival = p.UDP.ReceivedAt
			}
			s.group.Route(p, arrival)
		}
	}
	if s.control != nil {
		for {
			p := s.control.Queue().Pop()
			if p == nil {
				break
			}
			if err := s.comm.ProcessDatagram(p.Buffer().Data(), now); err != nil {
				s.log.Debugw("bad rtcp datagram", "error", err)
			}
			p.Release()
		}
	}
}

// ReadFrame mixes the slot's sessions into f.
func (s *Slot) ReadFrame(f *audio.Frame) error {
	return s.group.ReadFrame(f)
}

// Close tears down all sessions.
func (s *Slot) Close() {
	s.group.RemoveAll()
}
