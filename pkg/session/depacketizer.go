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
	"go.uber.org/atomic"

	"github.com/pulsecast/pulsecast/pkg/audio"
	"github.com/pulsecast/pulsecast/pkg/logger"
	"github.com/pulsecast/pulsecast/pkg/packet"
	"github.com/pulsecast/pulsecast/pkg/rtp"
)

// Depacketizer converts an ordered source packet stream into contiguous
// PCM frames. It owns a timestamp cursor: every frame request advances the
// cursor by exactly the frame length, zero-filling holes and dropping
// packets that are entirely in the past.
type Depacketizer struct {
	reader packet.Reader
	codec  rtp.SampleCodec
	spec   audio.SampleSpec
	log    logger.Logger

	started bool
	nextTs  uint32

	curr     *packet.Packet
	currOff  int // per-channel samples consumed from curr
	fatalErr error

	droppedPackets atomic.Int64
	readSamples    atomic.Int64
}

func NewDepacketizer(reader packet.Reader, codec rtp.SampleCodec, spec audio.SampleSpec, log logger.Logger) *Depacketizer {
	return &Depacketizer{
		reader: reader,
		codec:  codec,
		spec:   spec,
		log:    log.WithComponent("depacketizer"),
	}
}

// IsStarted reports whether the first packet was consumed.
func (d *Depacketizer) IsStarted() bool {
	return d.started
}

// NextTimestamp is the RTP timestamp of the next sample to emit. Valid
// only after the depacketizer started.
func (d *Depacketizer) NextTimestamp() uint32 {
	return d.nextTs
}

// DroppedPackets counts late packets discarded while building frames.
func (d *Depacketizer) DroppedPackets() int64 {
	return d.droppedPackets.Load()
}

func (d *Depacketizer) ReadFrame(f *audio.Frame) error {
	if d.fatalErr != nil {
		return d.fatalErr
	}

	ch := d.spec.NumChannels()
	n := f.SamplesPerChan()
	f.Flags = 0

	pos := 0 // per-channel samples written
	for pos < n {
		if d.curr == nil {
			p, err := d.reader.ReadPacket()
			if err == packet.ErrDrain {
				break
			}
			if err != nil {
				d.fatalErr = err
				return err
			}
			d.curr = p
			d.currOff = 0
			if !d.started {
				d.started = true
				d.nextTs = p.RTP.Timestamp
			}
		}

		view := d.curr.RTP
		cursor := d.nextTs + uint32(pos)
		pktEnd := view.Timestamp + view.Duration

		if packet.TimestampDiff(pktEnd, cursor) <= 0 {
			// entirely in the past
			d.droppedPackets.Inc()
			f.Flags |= audio.FrameDrops
			d.curr.Release()
			d.curr = nil
			continue
		}

		frameEnd := d.nextTs + uint32(n)
		if packet.TimestampDiff(view.Timestamp, frameEnd) >= 0 {
			// future packet; rest of this frame is a hole
			break
		}

		if gap := packet.TimestampDiff(view.Timestamp, cursor); gap > 0 {
			// zero-fill up to the packet start
			pos += gap
			f.Flags |= audio.FrameIncomplete
			if pos >= n {
				break
			}
			cursor = view.Timestamp
		}

		// sample offset within the packet
		skip := packet.TimestampDiff(cursor, view.Timestamp)
		if skip > d.currOff {
			d.currOff = skip
		}

		avail := int(view.Duration) - d.currOff
		want := n - pos
		copyN := avail
		if copyN > want {
			copyN = want
		}

		bps := d.codec.BytesPerSample()
		from := d.currOff * ch * bps
		payload := view.Payload[from:]
		decoded := d.codec.Decode(f.Samples[pos*ch:(pos+copyN)*ch], payload)
		if decoded > 0 {
			f.Flags |= audio.FrameNonBlank
		}
		if f.CaptureTime.IsZero() && !view.CaptureTime.IsZero() {
			f.CaptureTime = view.CaptureTime
		}

		pos += copyN
		d.currOff += copyN
		if d.currOff >= int(view.Duration) {
			d.curr.Release()
			d.curr = nil
		}
	}

	if pos < n && d.started {
		f.Flags |= audio.FrameIncomplete
	}

	if d.started {
		d.nextTs += uint32(n)
	}
	d.readSamples.Add(int64(n))
	return nil
}
