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

package audio

import (
	"fmt"
	"math"
	"time"
)

// Sample is a normalized amplitude in [-1, 1]. All intermediate pipeline
// stages operate on this representation regardless of wire encoding.
type Sample = float32

const (
	SampleMin Sample = -1
	SampleMax Sample = 1
)

// SampleSpec bundles a sample rate with a channel set and provides exact
// conversions between durations, per-channel sample counts, interleaved
// sample counts, and RTP stream timestamps.
type SampleSpec struct {
	SampleRate uint32
	Channels   ChannelSet
}

func NewSampleSpec(rate uint32, channels ChannelSet) SampleSpec {
	return SampleSpec{SampleRate: rate, Channels: channels}
}

func (s SampleSpec) IsValid() bool {
	return s.SampleRate > 0 && s.Channels.IsValid()
}

func (s SampleSpec) NumChannels() int {
	return s.Channels.NumChannels()
}

func (s SampleSpec) Equal(other SampleSpec) bool {
	return s.SampleRate == other.SampleRate && s.Channels.Equal(other.Channels)
}

// NsToSamplesPerChan converts a duration to a per-channel sample count,
// rounding half to even.
func (s SampleSpec) NsToSamplesPerChan(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.RoundToEven(float64(d) / float64(time.Second) * float64(s.SampleRate)))
}

// SamplesPerChanToNs converts a per-channel sample count to a duration,
// rounding half to even.
func (s SampleSpec) SamplesPerChanToNs(n int) time.Duration {
	return time.Duration(math.RoundToEven(float64(n) / float64(s.SampleRate) * float64(time.Second)))
}

// NsToSamplesOverall converts a duration to an interleaved sample count.
func (s SampleSpec) NsToSamplesOverall(d time.Duration) int {
	return s.NsToSamplesPerChan(d) * s.NumChannels()
}

// SamplesOverallToNs converts an interleaved sample count to a duration. The
// count must be a multiple of the channel count.
func (s SampleSpec) SamplesOverallToNs(n int) time.Duration {
	return s.SamplesPerChanToNs(n / s.NumChannels())
}

// NsToStreamTimestampDelta converts a signed duration to a signed RTP
// timestamp delta at the stream rate.
func (s SampleSpec) NsToStreamTimestampDelta(d time.Duration) int32 {
	neg := d < 0
	if neg {
		d = -d
	}
	delta := int32(s.NsToSamplesPerChan(d))
	if neg {
		delta = -delta
	}
	return delta
}

// StreamTimestampDeltaToNs converts a signed RTP timestamp delta to a
// duration.
func (s SampleSpec) StreamTimestampDeltaToNs(delta int32) time.Duration {
	neg := delta < 0
	if neg {
		delta = -delta
	}
	d := s.SamplesPerChanToNs(int(delta))
	if neg {
		d = -d
	}
	return d
}

func (s SampleSpec) String() string {
	return fmt.Sprintf("%dHz/%s", s.SampleRate, s.Channels)
}
