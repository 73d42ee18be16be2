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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChannelMapperPassthrough(t *testing.T) {
	m := NewChannelMapper(StereoChannelSet(), StereoChannelSet())

	in := []Sample{0.1, 0.2, 0.3, 0.4}
	out := make([]Sample, 4)
	m.Map(in, out, 2)
	require.Equal(t, in, out)
}

func TestChannelMapperDownmix512ToStereo(t *testing.T) {
	in512 := SurroundChannelSet(Mask5_1_2)
	stereo := StereoChannelSet()
	m := NewChannelMapper(in512, stereo)

	// table rules for 5.1.2->2.1, FL row: FL 1.000, FC 0.707, SL 0.707,
	// TML 0.707; rows are normalized to unit sum
	rowSum := float64(1.000 + 0.707 + 0.707 + 0.707)

	require.InDelta(t, 1.000/rowSum, float64(m.Coefficient(PosFrontLeft, PosFrontLeft)), 1e-6)
	require.InDelta(t, 0.707/rowSum, float64(m.Coefficient(PosFrontLeft, PosFrontCenter)), 1e-6)
	require.InDelta(t, 0.707/rowSum, float64(m.Coefficient(PosFrontLeft, PosSurroundLeft)), 1e-6)
	require.InDelta(t, 0.707/rowSum, float64(m.Coefficient(PosFrontLeft, PosTopMidLeft)), 1e-6)
	require.InDelta(t, 0, float64(m.Coefficient(PosFrontLeft, PosFrontRight)), 1e-6)

	// unit impulse on every input channel at t=0
	in := make([]Sample, in512.NumChannels())
	for i := range in {
		in[i] = 1
	}
	out := make([]Sample, 2)
	m.Map(in, out, 1)

	// normalized rows sum to one, so the all-ones impulse maps to unity
	require.InDelta(t, 1.0, float64(out[0]), 1e-6)
	require.InDelta(t, 1.0, float64(out[1]), 1e-6)

	// impulse on FC only: both outputs get the normalized center weight
	for i := range in {
		in[i] = 0
	}
	in[in512.Offset(PosFrontCenter)] = 1
	m.Map(in, out, 1)
	require.InDelta(t, 0.707/rowSum, float64(out[0]), 1e-6)
	require.InDelta(t, 0.707/rowSum, float64(out[1]), 1e-6)
}

func TestChannelMapperUpmixIsTranspose(t *testing.T) {
	m := NewChannelMapper(StereoChannelSet(), SurroundChannelSet(Mask5_1_2))

	// upmix uses the transposed 5.1.2->2.1 table: FC gets equal weight
	// from L and R
	fcFromL := m.Coefficient(PosFrontCenter, PosFrontLeft)
	fcFromR := m.Coefficient(PosFrontCenter, PosFrontRight)
	require.InDelta(t, float64(fcFromL), float64(fcFromR), 1e-6)
	require.Greater(t, float64(fcFromL), 0.0)
}

func TestChannelMapperDiagonalFallback(t *testing.T) {
	// multitrack-style masks not covered by the tables map each channel
	// to itself
	in := ChannelSet{Layout: LayoutMultitrack, Mask: 0x7fff}
	out := ChannelSet{Layout: LayoutMultitrack, Mask: 0x00ff}
	m := NewChannelMapper(in, out)

	inSamples := make([]Sample, in.NumChannels())
	for i := range inSamples {
		inSamples[i] = Sample(i)
	}
	outSamples := make([]Sample, out.NumChannels())
	m.Map(inSamples, outSamples, 1)
	for i := 0; i < out.NumChannels(); i++ {
		require.Equal(t, Sample(i), outSamples[i])
	}
}
