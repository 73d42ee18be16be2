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

// ChannelMapper converts interleaved samples between two channel sets using
// a coefficient matrix compiled from the downmix tables. Identical sets make
// the mapper a passthrough.
type ChannelMapper struct {
	in  ChannelSet
	out ChannelSet

	passthrough bool

	// matrix[outSlot][inSlot], slots in interleaving order
	matrix [][]float32
}

func NewChannelMapper(in, out ChannelSet) *ChannelMapper {
	m := &ChannelMapper{
		in:          in,
		out:         out,
		passthrough: in.Equal(out),
	}
	if !m.passthrough {
		m.buildMatrix()
	}
	return m
}

func (m *ChannelMapper) buildMatrix() {
	// Full position-indexed matrix first, then compacted to slots.
	var full [PosMax][PosMax]float32

	cm, downmix := findChannelMap(m.in.Mask, m.out.Mask)
	if cm == nil {
		// Diagonal fallback: each channel maps to itself; channels absent on
		// either side are dropped or left silent.
		for p := ChannelPosition(0); p < PosMax; p++ {
			full[p][p] = 1
		}
	} else {
		for _, r := range cm.rules {
			if downmix {
				full[r.out][r.in] = r.coeff
			} else {
				full[r.in][r.out] = r.coeff
			}
		}
		normalizeRows(&full)
	}

	m.matrix = make([][]float32, m.out.NumChannels())
	for outPos := ChannelPosition(0); outPos < PosMax; outPos++ {
		outSlot := m.out.Offset(outPos)
		if outSlot < 0 {
			continue
		}
		row := make([]float32, m.in.NumChannels())
		for inPos := ChannelPosition(0); inPos < PosMax; inPos++ {
			inSlot := m.in.Offset(inPos)
			if inSlot < 0 {
				continue
			}
			row[inSlot] = full[outPos][inPos]
		}
		m.matrix[outSlot] = row
	}
	normalizeSlotRows(m.matrix)
}

// findChannelMap returns the first table entry covering both masks, and
// whether it is applied as a downmix (input is the larger side).
func findChannelMap(inMask, outMask ChannelMask) (*channelMap, bool) {
	for i := range chanMaps {
		cm := &chanMaps[i]
		if inMask&^cm.larger == 0 && outMask&^cm.smaller == 0 {
			return cm, true
		}
		if inMask&^cm.smaller == 0 && outMask&^cm.larger == 0 {
			return cm, false
		}
	}
	return nil, false
}

func normalizeRows(full *[PosMax][PosMax]float32) {
	for out := range full {
		var sum float32
		for in := range full[out] {
			sum += full[out][in]
		}
		if sum == 0 {
			continue
		}
		for in := range full[out] {
			full[out][in] /= sum
		}
	}
}

func normalizeSlotRows(matrix [][]float32) {
	for _, row := range matrix {
		var sum float32
		for _, c := range row {
			sum += c
		}
		if sum == 0 {
			continue
		}
		for i := range row {
			row[i] /= sum
		}
	}
}

// Map converts nFrames interleaved frames from in to out. The slices must
// hold nFrames*NumChannels samples for the respective sets.
func (m *ChannelMapper) Map(in, out []Sample, nFrames int) {
	if m.passthrough {
		copy(out[:nFrames*m.out.NumChannels()], in)
		return
	}
	nIn := m.in.NumChannels()
	nOut := m.out.NumChannels()
	for f := 0; f < nFrames; f++ {
		inOff := f * nIn
		outOff := f * nOut
		for o := 0; o < nOut; o++ {
			var acc float32
			row := m.matrix[o]
			for i := 0; i < nIn; i++ {
				acc += row[i] * in[inOff+i]
			}
			out[outOff+o] = acc
		}
	}
}

// Coefficient reports the effective matrix entry between two positions.
// Used by tests and diagnostics.
func (m *ChannelMapper) Coefficient(out, in ChannelPosition) float32 {
	if m.passthrough {
		if out == in {
			return 1
		}
		return 0
	}
	outSlot := m.out.Offset(out)
	inSlot := m.in.Offset(in)
	if outSlot < 0 || inSlot < 0 {
		return 0
	}
	return m.matrix[outSlot][inSlot]
}
