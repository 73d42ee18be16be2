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
	"fmt"
	"time"

	"github.com/pulsecast/pulsecast/pkg/audio"
	"github.com/pulsecast/pulsecast/pkg/audio/resampler"
	"github.com/pulsecast/pulsecast/pkg/fec"
	"github.com/pulsecast/pulsecast/pkg/logger"
	"github.com/pulsecast/pulsecast/pkg/packet"
	"github.com/pulsecast/pulsecast/pkg/rtp"
	"github.com/pulsecast/pulsecast/pkg/stats"
	"github.com/pulsecast/pulsecast/pkg/telemetry/prometheus"
	"github.com/pulsecast/pulsecast/pkg/tuner"
)

// State tracks the session lifecycle:
//
//	created -> receiving -> playing -> dead
type State int

const (
	StateCreated State = iota
	StateReceiving
	StatePlaying
	StateDead
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateReceiving:
		return "receiving"
	case StatePlaying:
		return "playing"
	case StateDead:
		return "dead"
	}
	return "unknown"
}

type Config struct {
	Validator rtp.ValidatorConfig
	LinkMeter stats.LinkMeterConfig

	// FECScheme of the slot's repair endpoint; FECNone bypasses the
	// block reader.
	FECScheme packet.FECScheme
	FEC       fec.BlockReaderConfig

	Latency   tuner.LatencyMonitorConfig
	Watchdog  WatchdogConfig
	Resampler resampler.Config

	// Bounded depths of the reorder queues.
	MaxSourceQueue int
	MaxRepairQueue int
}

func DefaultConfig() Config {
	return Config{
		Validator: rtp.DefaultValidatorConfig(),
		LinkMeter: stats.DefaultLinkMeterConfig(),
		FEC:       fec.DefaultBlockReaderConfig(),
		Latency: tuner.LatencyMonitorConfig{
			TargetLatency: 200 * time.Millisecond,
			Profile:       tuner.ProfileResponsive,
		},
		Watchdog:       DefaultWatchdogConfig(),
		MaxSourceQueue: 4096,
		MaxRepairQueue: 4096,
	}
}

// Session is the per-SSRC receiver pipeline instance: validator and link
// meter on the packet plane, then FEC reader, depacketizer, channel mapper,
// resampler with latency tuning, and watchdog on the frame plane.
type Session struct {
	ssrc  uint32
	cname string
	log   logger.Logger

	encoding rtp.Encoding
	outSpec  audio.SampleSpec

	validator *rtp.Validator
	linkMeter *stats.LinkMeter

	sourceQueue *packet.SortedQueue
	repairQueue *packet.SortedQueue
	blockReader *fec.BlockReader

	depacketizer *Depacketizer
	monitor      *tuner.LatencyMonitor
	chain        audio.FrameReader

	newestTs  uint32
	hasNewest bool

	state State
	dead  error
}

func New(
	config Config,
	ssrc uint32,
	encoding rtp.Encoding,
	outSpec audio.SampleSpec,
	codecs *fec.CodecRegistry,
	resamplers *resampler.Registry,
	pool *packet.PacketPool,
	parser *rtp.Parser,
	log logger.Logger,
) (*Session, error) {
	s := &Session{
		ssrc:     ssrc,
		log:      log.WithValues("ssrc", ssrc),
		encoding: encoding,
		outSpec:  outSpec,
		state:    StateCreated,
	}

	s.validator = rtp.NewValidator(config.Validator, encoding.Spec)
	s.linkMeter = stats.NewLinkMeter(config.LinkMeter, encoding.Spec)
	s.sourceQueue = packet.NewSortedQueue(packet.SeqNumLess, config.MaxSourceQueue)
	s.repairQueue = packet.NewSortedQueue(packet.BlockSymbolLess, config.MaxRepairQueue)

	var source packet.Reader = s.sourceQueue
	if config.FECScheme != packet.FECNone {
		codec, err := codecs.New(config.FECScheme, config.FEC.SourcePackets, config.FEC.RepairPackets)
		if err != nil {
			return nil, err
		}
		s.blockReader = fec.NewBlockReader(
			config.FEC, codec, parser, pool, s.sourceQueue, s.repairQueue, s.log)
		s.blockReader.SetRestoredCallback(func(n int) {
			s.linkMeter.AddRecovered(n)
			prometheus.PacketsRecovered.Add(float64(n))
		})
		source = s.blockReader
	}

	s.depacketizer = NewDepacketizer(source, encoding.Codec, encoding.Spec, s.log)

	var reader audio.FrameReader = s.depacketizer
	if !encoding.Spec.Channels.Equal(outSpec.Channels) {
		reader = newMapperReader(reader, encoding.Spec, outSpec.Channels)
	}

	rs, err := resamplers.New(config.Resampler, reader,
		audio.NewSampleSpec(encoding.Spec.SampleRate, outSpec.Channels))
	if err != nil {
		return nil, err
	}
	base := float64(encoding.Spec.SampleRate) / float64(outSpec.SampleRate)
	scaled := &ratioResampler{inner: rs, base: base}
	if err := scaled.SetScaling(1); err != nil {
		return nil, err
	}

	s.monitor, err = tuner.NewLatencyMonitor(
		config.Latency,
		encoding.Spec,
		scaled,
		s.latency,
		s.log,
	)
	if err != nil {
		return nil, err
	}

	s.chain = NewWatchdog(config.Watchdog, outSpec, s.monitor, s.log)
	return s, nil
}

func (s *Session) SSRC() uint32 {
	return s.ssrc
}

func (s *Session) CNAME() string {
	return s.cname
}

func (s *Session) SetCNAME(cname string) {
	s.cname = cname
}

func (s *Session) State() State {
	return s.state
}

func (s *Session) IsAlive() bool {
	return s.state != StateDead
}

// DeadReason returns the error that killed the session, if any.
func (s *Session) DeadReason() error {
	return s.dead
}

func (s *Session) LinkMetrics() stats.LinkMetrics {
	return s.linkMeter.Metrics()
}

// Monitor exposes the latency monitor for feedback reporting.
func (s *Session) Monitor() *tuner.LatencyMonitor {
	return s.monitor
}

// ProcessRTT feeds an RTCP-derived round-trip estimate.
func (s *Session) ProcessRTT(rtt time.Duration) {
	s.linkMeter.ProcessRTT(rtt)
}

// Route accepts one parsed packet for this session. Called on the pipeline
// thread. Validator failures are session-fatal.
func (s *Session) Route(p *packet.Packet, arrival time.Time) error {
	if s.state == StateDead {
		p.Release()
		return s.dead
	}

	if p.HasFlags(packet.FlagRepair) {
		return s.repairQueue.WritePacket(p)
	}

	if err := s.validator.Validate(p.RTP); err != nil {
		p.Release()
		s.terminate(fmt.Errorf("session: validator: %w", err))
		return s.dead
	}
	s.linkMeter.ProcessPacket(p.RTP, arrival)

	end := p.RTP.Timestamp + p.RTP.Duration
	if !s.hasNewest || packet.TimestampDiff(end, s.newestTs) > 0 {
		s.newestTs = end
		s.hasNewest = true
	}
	if s.state == StateCreated {
		s.state = StateReceiving
	}

	return s.sourceQueue.WritePacket(p)
}

// ReadFrame pulls one output frame through the whole chain. Any error is
// session-fatal; the caller reaps dead sessions.
func (s *Session) ReadFrame(f *audio.Frame) error {
	if s.state == StateDead {
		return s.dead
	}
	if err := s.chain.ReadFrame(f); err != nil {
		s.terminate(err)
		return err
	}
	if s.state == StateReceiving && f.Flags&audio.FrameNonBlank != 0 {
		s.state = StatePlaying
	}
	return nil
}

func (s *Session) terminate(err error) {
	if s.state == StateDead {
		return
	}
	s.state = StateDead
	s.dead = err
	s.log.Infow("session terminated", "reason", err)
}

// latency implements tuner.LatencySource: distance from the next frame
// sample to the newest buffered packet, on the source timeline.
func (s *Session) latency() (int, bool) {
	if !s.hasNewest || !s.depacketizer.IsStarted() {
		return 0, false
	}
	return packet.TimestampDiff(s.newestTs, s.depacketizer.NextTimestamp()), true
}

// ratioResampler folds the fixed rate ratio between session and output
// clocks into the tuner-driven scaling.
type ratioResampler struct {
	inner resampler.Resampler
	base  float64
}

func (r *ratioResampler) ReadFrame(f *audio.Frame) error {
	return r.inner.ReadFrame(f)
}

func (r *ratioResampler) SetScaling(factor float64) error {
	return r.inner.SetScaling(r.base * factor)
}

// mapperReader adapts the channel mapper into the frame chain.
type mapperReader struct {
	inner  audio.FrameReader
	mapper *audio.ChannelMapper
	inSpec audio.SampleSpec
	outCh  audio.ChannelSet

	inFrame *audio.Frame
}

func newMapperReader(inner audio.FrameReader, inSpec audio.SampleSpec, outCh audio.ChannelSet) *mapperReader {
	return &mapperReader{
		inner:   inner,
		mapper:  audio.NewChannelMapper(inSpec.Channels, outCh),
		inSpec:  inSpec,
		outCh:   outCh,
		inFrame: audio.NewFrame(inSpec, 128),
	}
}

func (m *mapperReader) ReadFrame(f *audio.Frame) error {
	n := f.SamplesPerChan()
	need := n * m.inSpec.NumChannels()
	if cap(m.inFrame.Samples) < need {
		m.inFrame.Samples = make([]audio.Sample, need)
	}
	m.inFrame.Samples = m.inFrame.Samples[:need]
	m.inFrame.Clear()

	if err := m.inner.ReadFrame(m.inFrame); err != nil {
		return err
	}
	m.mapper.Map(m.inFrame.Samples, f.Samples, n)
	f.Flags = m.inFrame.Flags
	f.CaptureTime = m.inFrame.CaptureTime
	return nil
}
