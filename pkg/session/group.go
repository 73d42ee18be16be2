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

package session

import (
	"time"

	"go.uber.org/atomic"

	"github.com/pulsecast/pulsecast/pkg/audio"
	"github.com/pulsecast/pulsecast/pkg/audio/resampler"
	"github.com/pulsecast/pulsecast/pkg/fec"
	"github.com/pulsecast/pulsecast/pkg/logger"
	"github.com/pulsecast/pulsecast/pkg/packet"
	"github.com/pulsecast/pulsecast/pkg/rtp"
	"github.com/pulsecast/pulsecast/pkg/telemetry/prometheus"
)

type GroupConfig struct {
	Session Config

	// MaxSessions bounds concurrent sessions per slot.
	MaxSessions int

	// MaxSamplesPerFrame sizes the mixer scratch.
	MaxSamplesPerFrame int
}

func DefaultGroupConfig() GroupConfig {
	return GroupConfig{
		Session:            DefaultConfig(),
		MaxSessions:        16,
		MaxSamplesPerFrame: 8192,
	}
}

// Group owns all sessions of one receiver slot. It demultiplexes incoming
// packets by SSRC, creates sessions on first sight of a new source stream,
// reaps dead ones, and mixes the survivors into the slot output.
type Group struct {
	config GroupConfig
	log    logger.Logger

	encodings  *rtp.EncodingMap
	codecs     *fec.CodecRegistry
	resamplers *resampler.Registry
	pool       *packet.PacketPool
	parser     *rtp.Parser
	outSpec    audio.SampleSpec

	sessions map[uint32]*Session
	order    []uint32 // stable mix order
	mixer    *audio.Mixer

	droppedPackets  atomic.Int64
	expiredSessions atomic.Int64
}

func NewGroup(
	config GroupConfig,
	outSpec audio.SampleSpec,
	encodings *rtp.EncodingMap,
	codecs *fec.CodecRegistry,
	resamplers *resampler.Registry,
	pool *packet.PacketPool,
	parser *rtp.Parser,
	log logger.Logger,
) *Group {
	return &Group{
		config:     config,
		log:        log.WithComponent("session_group"),
		encodings:  encodings,
		codecs:     codecs,
		resamplers: resamplers,
		pool:       pool,
		parser:     parser,
		outSpec:    outSpec,
		sessions:   make(map[uint32]*Session),
		mixer:      audio.NewMixer(outSpec, config.MaxSamplesPerFrame),
	}
}

func (g *Group) NumSessions() int {
	return len(g.sessions)
}

// SetFECScheme fixes the block code used by sessions created from now on.
// Called when the slot's repair endpoint is bound, before traffic starts.
func (g *Group) SetFECScheme(scheme packet.FECScheme) {
	g.config.Session.FECScheme = scheme
}

// Sessions returns the live sessions in mix order.
func (g *Group) Sessions() []*Session {
	out := make([]*Session, 0, len(g.order))
	for _, ssrc := range g.order {
		out = append(out, g.sessions[ssrc])
	}
	return out
}

// DroppedPackets counts packets not routable to any session.
func (g *Group) DroppedPackets() int64 {
	return g.droppedPackets.Load()
}

// ExpiredSessions counts sessions reaped so far.
func (g *Group) ExpiredSessions() int64 {
	return g.expiredSessions.Load()
}

// Route demultiplexes one parsed packet. Source packets for unknown SSRCs
// create sessions, subject to the per-slot limit. Repair packets without an
// RTP header are routed to the slot's only session; with several concurrent
// senders a bare repair flow is ambiguous and dropped.
func (g *Group) Route(p *packet.Packet, arrival time.Time) {
	if p.HasFlags(packet.FlagRepair) && p.RTP == nil {
		if len(g.sessions) == 1 {
			for _, s := range g.sessions {
				_ = s.Route(p, arrival)
				return
			}
		}
		g.droppedPackets.Inc()
		p.Release()
		return
	}

	if p.RTP == nil {
		g.droppedPackets.Inc()
		p.Release()
		return
	}

	s, ok := g.sessions[p.RTP.SSRC]
	if !ok {
		if p.HasFlags(packet.FlagRepair) {
			// never create sessions from repair flows
			g.droppedPackets.Inc()
			p.Release()
			return
		}
		var err error
		s, err = g.createSession(p)
		if err != nil {
			g.droppedPackets.Inc()
			p.Release()
			return
		}
	}
	_ = s.Route(p, arrival)
}

func (g *Group) createSession(p *packet.Packet) (*Session, error) {
	if len(g.sessions) >= g.config.MaxSessions {
		g.log.Warnw("session limit reached, dropping new stream",
			"ssrc", p.RTP.SSRC, "limit", g.config.MaxSessions)
		return nil, ErrSessionLimit
	}

	enc, ok := g.encodings.Find(p.RTP.PayloadType)
	if !ok {
		return nil, ErrUnknownEncoding
	}

	s, err := New(
		g.config.Session,
		p.RTP.SSRC,
		enc,
		g.outSpec,
		g.codecs,
		g.resamplers,
		g.pool,
		g.parser,
		g.log,
	)
	if err != nil {
		return nil, err
	}

	g.sessions[p.RTP.SSRC] = s
	g.order = append(g.order, p.RTP.SSRC)
	prometheus.SessionsCreated.Inc()
	g.log.Infow("session created", "ssrc", p.RTP.SSRC, "pt", p.RTP.PayloadType)
	return s, nil
}

// ReadFrame mixes all live sessions into f, reaping dead ones first.
func (g *Group) ReadFrame(f *audio.Frame) error {
	g.reap()

	readers := make([]audio.FrameReader, 0, len(g.order))
	for _, ssrc := range g.order {
		readers = append(readers, &guardedReader{session: g.sessions[ssrc]})
	}
	return g.mixer.Mix(f, readers)
}

// reap removes dead sessions from the group.
func (g *Group) reap() {
	kept := g.order[:0]
	for _, ssrc := range g.order {
		s := g.sessions[ssrc]
		if s.IsAlive() {
			kept = append(kept, ssrc)
			continue
		}
		delete(g.sessions, ssrc)
		g.expiredSessions.Inc()
		prometheus.SessionsExpired.Inc()
		g.log.Infow("session expired", "ssrc", ssrc, "reason", s.DeadReason())
	}
	g.order = kept
}

// RemoveAll tears down every session.
func (g *Group) RemoveAll() {
	for ssrc, s := range g.sessions {
		s.terminate(ErrGroupClosed)
		delete(g.sessions, ssrc)
	}
	g.order = g.order[:0]
}

// guardedReader turns session-fatal read errors into silence so one dying
// session cannot break the mix; the session is reaped on the next frame.
type guardedReader struct {
	session *Session
}

func (r *guardedReader) ReadFrame(f *audio.Frame) error {
	if err := r.session.ReadFrame(f); err != nil {
		f.Clear()
	}
	return nil
}
