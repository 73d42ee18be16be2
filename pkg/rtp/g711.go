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

package rtp

import (
	"github.com/pulsecast/pulsecast/pkg/audio"
)

// G.711 companding, segment layout per ITU-T G.711.

const (
	g711SignBit   = 0x80
	g711QuantMask = 0x0f
	g711SegMask   = 0x70
	g711SegShift  = 4
	ulawBias      = 0x84
	ulawClip      = 32635
	alawAmiMask   = 0x55
)

var g711SegEnd = [8]int16{0xff, 0x1ff, 0x3ff, 0x7ff, 0xfff, 0x1fff, 0x3fff, 0x7fff}

func g711Segment(v int16) int {
	for i, end := range g711SegEnd {
		if v <= end {
			return i
		}
	}
	return len(g711SegEnd)
}

func ulawDecode(u byte) int16 {
	u = ^u
	t := int16(u&g711QuantMask)<<3 + ulawBias
	t <<= uint(u&g711SegMask) >> g711SegShift
	if u&g711SignBit != 0 {
		return ulawBias - t
	}
	return t - ulawBias
}

func ulawEncode(v int16) byte {
	var mask byte = 0xff
	if v < 0 {
		v = -v
		mask = 0x7f
	}
	if v > ulawClip {
		v = ulawClip
	}
	v += ulawBias

	seg := g711Segment(v)
	if seg >= 8 {
		return 0x7f ^ mask
	}
	u := byte(seg<<g711SegShift) | byte((v>>uint(seg+3))&g711QuantMask)
	return u ^ mask
}

func alawDecode(a byte) int16 {
	a ^= alawAmiMask
	t := int16(a&g711QuantMask) << 4
	seg := uint(a&g711SegMask) >> g711SegShift
	switch seg {
	case 0:
		t += 8
	case 1:
		t += 0x108
	default:
		t += 0x108
		t <<= seg - 1
	}
	if a&g711SignBit != 0 {
		return t
	}
	return -t
}

func alawEncode(v int16) byte {
	var mask byte = 0xd5
	if v < 0 {
		v = -v - 1
		mask = 0x55
	}
	if v > 0x7fff-8 {
		v = 0x7fff - 8
	}

	var a byte
	if v >= 256 {
		seg := g711Segment(v)
		if seg >= 8 {
			seg = 7
		}
		a = byte(seg<<g711SegShift) | byte((v>>uint(seg+3))&g711QuantMask)
	} else {
		a = byte(v >> 4)
	}
	return a ^ mask
}

// ULawCodec is ITU-T G.711 µ-law (PCMU).
type ULawCodec struct{}

func (ULawCodec) BytesPerSample() int { return 1 }

func (ULawCodec) Decode(dst []audio.Sample, payload []byte) int {
	n := min(len(dst), len(payload))
	for i := 0; i < n; i++ {
		dst[i] = audio.Sample(ulawDecode(payload[i])) / 32768
	}
	return n
}

func (ULawCodec) Encode(dst []byte, src []audio.Sample) int {
	n := min(len(src), len(dst))
	for i := 0; i < n; i++ {
		dst[i] = ulawEncode(int16(clampInt(src[i], 32767)))
	}
	return n
}

// ALawCodec is ITU-T G.711 A-law (PCMA).
type ALawCodec struct{}

func (ALawCodec) BytesPerSample() int { return 1 }

func (ALawCodec) Decode(dst []audio.Sample, payload []byte) int {
	n := min(len(dst), len(payload))
	for i := 0; i < n; i++ {
		dst[i] = audio.Sample(alawDecode(payload[i])) / 32768
	}
	return n
}

func (ALawCodec) Encode(dst []byte, src []audio.Sample) int {
	n := min(len(src), len(dst))
	for i := 0; i < n; i++ {
		dst[i] = alawEncode(int16(clampInt(src[i], 32767)))
	}
	return n
}
