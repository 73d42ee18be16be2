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
	"time"

	"github.com/frostbyte73/core"

	"github.com/pulsecast/pulsecast/pkg/audio"
	"github.com/pulsecast/pulsecast/pkg/audio/resampler"
	"github.com/pulsecast/pulsecast/pkg/fec"
	"github.com/pulsecast/pulsecast/pkg/logger"
	"github.com/pulsecast/pulsecast/pkg/packet"
	"github.com/pulsecast/pulsecast/pkg/rtp"
	"github.com/pulsecast/pulsecast/pkg/session"
	"github.com/pulsecast/pulsecast/pkg/telemetry/prometheus"
)

var ErrClosed = errors.New("receiver: closed")

type Config struct {
	// OutSpec is the sample spec handed to the audio backend.
	OutSpec audio.SampleSpec

	Group session.GroupConfig
	Loop  LoopConfig

	// Packet pool sizing.
	PacketBufferSize int
	NumPacketBuffers int

	// LocalSSRC and CNAME identify our RTCP reports.
	LocalSSRC uint32
	CNAME     string

	// EnableAutoReclock derives capture timestamps from the receipt wall
	// clock when the sender provides none.
	EnableAutoReclock bool
}

func DefaultConfig() Config {
	return Config{
		OutSpec:          audio.NewSampleSpec(44100, audio.StereoChannelSet()),
		Group:            session.DefaultGroupConfig(),
		Loop:             DefaultLoopConfig(),
		PacketBufferSize: 2048,
		NumPacketBuffers: 16384,
		LocalSSRC:        1,
		CNAME:            "pulsecast",
	}
}

// Receiver owns one or more slots and exposes their mixed output as a
// single frame source to the audio backend. Reads drive the pipeline;
// control tasks interleave at subframe boundaries.
type Receiver struct {
	config Config
	log    logger.Logger

	pool       *packet.PacketPool
	encodings  *rtp.EncodingMap
	codecs     *fec.CodecRegistry
	resamplers *resampler.Registry

	loop  *PipelineLoop
	slots []*Slot
	mixer *audio.Mixer

	closed core.Fuse

	nowFn func() time.Time
}

func New(config Config, encodings *rtp.EncodingMap, codecs *fec.CodecRegistry, resamplers *resampler.Registry, log logger.Logger) (*Receiver, error) {
	if !config.OutSpec.IsValid() {
		return nil, errors.New("receiver: invalid output sample spec")
	}
	if encodings == nil {
		encodings = rtp.DefaultEncodingMap()
	}
	if codecs == nil {
		codecs = fec.DefaultCodecRegistry()
	}
	if resamplers == nil {
		resamplers = resampler.DefaultRegistry()
	}

	return &Receiver{
		config:     config,
		log:        log.WithComponent("receiver"),
		pool:       packet.NewPacketPool(config.PacketBufferSize, config.NumPacketBuffers),
		encodings:  encodings,
		codecs:     codecs,
		resamplers: resamplers,
		loop:       NewPipelineLoop(config.Loop, log),
		mixer:      audio.NewMixer(config.OutSpec, config.Group.MaxSamplesPerFrame),
		nowFn:      time.Now,
	}, nil
}

// SetTimeSource overrides the wall clock, for tests.
func (r *Receiver) SetTimeSource(now func() time.Time) {
	r.nowFn = now
}

// Loop exposes the pipeline loop for external schedulers.
func (r *Receiver) Loop() *PipelineLoop {
	return r.loop
}

// CreateSlot adds a slot through the task queue and returns it.
func (r *Receiver) CreateSlot() (*Slot, error) {
	var slot *Slot
	err := r.loop.ScheduleAndWait(func() error {
		if r.closed.IsBroken() {
			return ErrClosed
		}
		slot = NewSlot(
			r.config.Group,
			r.config.OutSpec,
			r.config.LocalSSRC,
			r.config.CNAME,
			r.encodings,
			r.codecs,
			r.resamplers,
			r.pool,
			r.log,
		)
		r.slots = append(r.slots, slot)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return slot, nil
}

// RemoveSlot tears a slot down; pending packets of its endpoints are
// cancelled at the next subframe boundary.
func (r *Receiver) RemoveSlot(slot *Slot) error {
	return r.loop.ScheduleAndWait(func() error {
		for i, s := range r.slots {
			if s == slot {
				s.Close()
				r.slots = append(r.slots[:i], r.slots[i+1:]...)
				return nil
			}
		}
		return errors.New("receiver: no such slot")
	})
}

// NumSessions reports the total live session count, via the task queue.
func (r *Receiver) NumSessions() (int, error) {
	n := 0
	err := r.loop.ScheduleAndWait(func() error {
		for _, s := range r.slots {
			n += s.Group().NumSessions()
		}
		return nil
	})
	return n, err
}

// Read implements the frame source consumed by the audio backend. It
// drains ingress, mixes all slots, and runs pending control tasks between
// subframes. It never blocks on the network.
func (r *Receiver) Read(f *audio.Frame) error {
	if r.closed.IsBroken() {
		return ErrClosed
	}

	return r.loop.ProcessFrame(f, func(sub *audio.Frame) error {
		now := r.nowFn()
		for _, slot := range r.slots {
			slot.Process(now)
		}

		readers := make([]audio.FrameReader, 0, len(r.slots))
		for _, slot := range r.slots {
			readers = append(readers, slot)
		}
		if err := r.mixer.Mix(sub, readers); err != nil {
			return err
		}
		if sub.Flags&audio.FrameIncomplete != 0 {
			prometheus.FramesIncomplete.Inc()
		}

		if r.config.EnableAutoReclock && sub.CaptureTime.IsZero() &&
			sub.Flags&audio.FrameNonBlank != 0 {
			sub.CaptureTime = now
		}
		return nil
	})
}

// Close tears down all slots. Subsequent reads fail with ErrClosed.
func (r *Receiver) Close() {
	if r.closed.IsBroken() {
		return
	}
	_ = r.loop.ScheduleAndWait(func() error {
		for _, s := range r.slots {
			s.Close()
		}
		r.slots = nil
		return nil
	})
	r.closed.Break()
}
