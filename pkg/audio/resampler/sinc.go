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

package resampler

import (
	"math"

	"github.com/pulsecast/pulsecast/pkg/audio"
)

// window half-lengths per profile, in input samples
var sincWindowLen = map[Profile]int{
	ProfileLow:    8,
	ProfileMedium: 16,
	ProfileHigh:   32,
}

// SincResampler is a streaming windowed-sinc fractional resampler. It keeps
// a per-channel history ring of input samples and evaluates a Hann-windowed
// sinc kernel at the fractional read position. Output latency is bounded by
// one window; phase is continuous across SetScaling calls.
type SincResampler struct {
	upstream audio.FrameReader
	spec     audio.SampleSpec

	window  int
	scaling float64

	// history of input samples, interleaved; pos is the fractional read
	// position in per-channel samples relative to history start.
	history []float64
	pos     float64

	inFrame *audio.Frame
	flags   audio.FrameFlags
}

func NewSincResampler(profile Profile, upstream audio.FrameReader, spec audio.SampleSpec) *SincResampler {
	w := sincWindowLen[profile]
	if w == 0 {
		w = 16
	}
	r := &SincResampler{
		upstream: upstream,
		spec:     spec,
		window:   w,
		scaling:  1.0,
		inFrame:  audio.NewFrame(spec, 128),
	}
	// seed the ring with one window of silence so the kernel has history
	r.history = make([]float64, w*spec.NumChannels())
	r.pos = float64(w)
	return r
}

func (r *SincResampler) SetScaling(factor float64) error {
	if err := checkScaling(factor); err != nil {
		return err
	}
	r.scaling = factor
	return nil
}

func (r *SincResampler) ReadFrame(f *audio.Frame) error {
	ch := r.spec.NumChannels()
	n := f.SamplesPerChan()
	f.Flags = 0
	f.CaptureTime = r.inFrame.CaptureTime

	for i := 0; i < n; i++ {
		// the kernel needs samples up to ceil(pos)+window
		for int(math.Ceil(r.pos))+r.window >= len(r.history)/ch {
			if err := r.pull(); err != nil {
				return err
			}
		}
		for c := 0; c < ch; c++ {
			f.Samples[i*ch+c] = audio.Sample(r.interpolate(c))
		}
		r.pos += r.scaling
	}

	f.Flags |= r.flags
	r.flags = 0
	r.compact()
	return nil
}

// pull reads one more input frame into the history ring.
func (r *SincResampler) pull() error {
	in := r.inFrame
	in.Clear()
	if err := r.upstream.ReadFrame(in); err != nil {
		return err
	}
	r.flags |= in.Flags
	for _, s := range in.Samples {
		r.history = append(r.history, float64(s))
	}
	return nil
}

// compact trims history the read position no longer needs.
func (r *SincResampler) compact() {
	ch := r.spec.NumChannels()
	keepFrom := int(r.pos) - r.window
	if keepFrom <= 0 {
		return
	}
	r.history = r.history[keepFrom*ch:]
	r.pos -= float64(keepFrom)
}

// interpolate evaluates the windowed-sinc kernel for one channel at the
// current fractional position.
func (r *SincResampler) interpolate(c int) float64 {
	ch := r.spec.NumChannels()
	center := int(math.Floor(r.pos))
	frac := r.pos - float64(center)

	var acc, gain float64
	for t := -r.window + 1; t <= r.window; t++ {
		idx := center + t
		if idx < 0 || idx >= len(r.history)/ch {
			continue
		}
		x := float64(t) - frac
		w := sincHann(x, r.window)
		acc += w * r.history[idx*ch+c]
		gain += w
	}
	if gain != 0 {
		// normalized to keep unity DC gain across rate changes
		return acc / gain
	}
	return 0
}

func sincHann(x float64, window int) float64 {
	if x == 0 {
		return 1
	}
	ax := math.Abs(x)
	if ax >= float64(window) {
		return 0
	}
	pix := math.Pi * x
	sinc := math.Sin(pix) / pix
	hann := 0.5 + 0.5*math.Cos(math.Pi*ax/float64(window))
	return sinc * hann
}
