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
	"time"
)

type FrameFlags uint8

const (
	// FrameNonBlank indicates the frame carries at least one decoded sample.
	FrameNonBlank FrameFlags = 1 << iota

	// FrameIncomplete indicates the frame has zero-filled holes.
	FrameIncomplete

	// FrameDrops indicates late packets were dropped while building the frame.
	FrameDrops
)

// Frame is a short-lived view into an interleaved PCM buffer. Samples is
// owned by the caller; readers fill it in place.
type Frame struct {
	Samples     []Sample
	Spec        SampleSpec
	CaptureTime time.Time
	Flags       FrameFlags
}

func NewFrame(spec SampleSpec, samplesPerChan int) *Frame {
	return &Frame{
		Samples: make([]Sample, samplesPerChan*spec.NumChannels()),
		Spec:    spec,
	}
}

func (f *Frame) SamplesPerChan() int {
	return len(f.Samples) / f.Spec.NumChannels()
}

func (f *Frame) Duration() time.Duration {
	return f.Spec.SamplesPerChanToNs(f.SamplesPerChan())
}

// Clear zero-fills the frame and resets flags and capture time.
func (f *Frame) Clear() {
	for i := range f.Samples {
		f.Samples[i] = 0
	}
	f.Flags = 0
	f.CaptureTime = time.Time{}
}

// FrameReader pulls the next contiguous chunk of the output timeline into f.
// Implementations always fill every sample: holes are zero-filled and
// reflected in frame flags, never skipped.
type FrameReader interface {
	ReadFrame(f *Frame) error
}
