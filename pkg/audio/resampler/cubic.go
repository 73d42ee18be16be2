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

// CubicResampler is a Catmull-Rom fractional interpolator. Cheaper than the
// sinc backend, with a four-sample kernel.
type CubicResampler struct {
	upstream audio.FrameReader
	spec     audio.SampleSpec

	scaling float64
	history []float64
	pos     float64

	inFrame *audio.Frame
	flags   audio.FrameFlags
}

func NewCubicResampler(upstream audio.FrameReader, spec audio.SampleSpec) *CubicResampler {
	r := &CubicResampler{
		upstream: upstream,
		spec:     spec,
		scaling:  1.0,
		inFrame:  audio.NewFrame(spec, 128),
	}
	r.history = make([]float64, 4*spec.NumChannels())
	r.pos = 2
	return r
}

func (r *CubicResampler) SetScaling(factor float64) error {
	if err := checkScaling(factor); err != nil {
		return err
	}
	r.scaling = factor
	return nil
}

func (r *CubicResampler) ReadFrame(f *audio.Frame) error {
	ch := r.spec.NumChannels()
	n := f.SamplesPerChan()
	f.Flags = 0

	for i := 0; i < n; i++ {
		for int(math.Floor(r.pos))+2 >= len(r.history)/ch {
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

func (r *CubicResampler) pull() error {
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

func (r *CubicResampler) compact() {
	ch := r.spec.NumChannels()
	keepFrom := int(r.pos) - 2
	if keepFrom <= 0 {
		return
	}
	r.history = r.history[keepFrom*ch:]
	r.pos -= float64(keepFrom)
}

func (r *CubicResampler) interpolate(c int) float64 {
	ch := r.spec.NumChannels()
	i := int(math.Floor(r.pos))
	t := r.pos - float64(i)

	at := func(idx int) float64 {
		if idx < 0 || idx >= len(r.history)/ch {
			return 0
		}
		return r.history[idx*ch+c]
	}
	p0, p1, p2, p3 := at(i-1), at(i), at(i+1), at(i+2)

	return p1 + 0.5*t*(p2-p0+t*(2*p0-5*p1+4*p2-p3+t*(3*(p1-p2)+p3-p0)))
}
