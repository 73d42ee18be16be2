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

// Mixer sums any number of input frames element-wise into one output frame
// with saturating addition. Zero inputs produce a silence frame.
type Mixer struct {
	spec    SampleSpec
	scratch *Frame
}

func NewMixer(spec SampleSpec, maxSamplesPerChan int) *Mixer {
	return &Mixer{
		spec:    spec,
		scratch: NewFrame(spec, maxSamplesPerChan),
	}
}

// Mix pulls one frame from every reader and accumulates into out. Flags are
// OR-ed together; the capture time is the earliest of the inputs.
func (m *Mixer) Mix(out *Frame, inputs []FrameReader) error {
	out.Clear()

	n := len(out.Samples)
	for _, in := range inputs {
		scratch := m.scratch
		scratch.Samples = scratch.Samples[:n]
		scratch.Clear()

		if err := in.ReadFrame(scratch); err != nil {
			return err
		}

		for i := 0; i < n; i++ {
			out.Samples[i] = saturatingAdd(out.Samples[i], scratch.Samples[i])
		}
		out.Flags |= scratch.Flags

		if !scratch.CaptureTime.IsZero() &&
			(out.CaptureTime.IsZero() || scratch.CaptureTime.Before(out.CaptureTime)) {
			out.CaptureTime = scratch.CaptureTime
		}
	}
	return nil
}

func saturatingAdd(a, b Sample) Sample {
	s := a + b
	if s > SampleMax {
		return SampleMax
	}
	if s < SampleMin {
		return SampleMin
	}
	return s
}
