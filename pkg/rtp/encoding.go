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
	"encoding/binary"
	"math"
	"sync"

	"github.com/pulsecast/pulsecast/pkg/audio"
)

// Static payload types per RFC 3551, plus the dynamic range used for
// formats without static assignments.
const (
	PayloadTypePCMU      uint8 = 0
	PayloadTypePCMA      uint8 = 8
	PayloadTypeL16Stereo uint8 = 10
	PayloadTypeL16Mono   uint8 = 11

	PayloadTypeL24Stereo uint8 = 96
	PayloadTypeL32Stereo uint8 = 97
	PayloadTypeF32Stereo uint8 = 98
)

// SampleCodec converts between wire payload bytes and normalized samples.
type SampleCodec interface {
	// BytesPerSample is the encoded size of one single-channel sample.
	BytesPerSample() int

	// Decode fills dst from payload, returning the number of samples
	// decoded (bounded by both slice lengths).
	Decode(dst []audio.Sample, payload []byte) int

	// Encode fills dst from src, returning the number of bytes written.
	Encode(dst []byte, src []audio.Sample) int
}

// Encoding binds a payload type to a sample spec and codec.
type Encoding struct {
	PayloadType uint8
	Spec        audio.SampleSpec
	Codec       SampleCodec
}

// EncodingMap is an explicit registry of payload encodings, injected into
// parsers and sessions instead of a process-wide table.
type EncodingMap struct {
	lock sync.RWMutex
	byPT map[uint8]Encoding
}

func NewEncodingMap() *EncodingMap {
	return &EncodingMap{byPT: make(map[uint8]Encoding)}
}

// DefaultEncodingMap registers the static RFC 3551 audio payload types and
// the dynamic linear/float formats at 44100 Hz.
func DefaultEncodingMap() *EncodingMap {
	m := NewEncodingMap()
	m.Register(Encoding{
		PayloadType: PayloadTypePCMU,
		Spec:        audio.NewSampleSpec(8000, audio.MonoChannelSet()),
		Codec:       ULawCodec{},
	})
	m.Register(Encoding{
		PayloadType: PayloadTypePCMA,
		Spec:        audio.NewSampleSpec(8000, audio.MonoChannelSet()),
		Codec:       ALawCodec{},
	})
	m.Register(Encoding{
		PayloadType: PayloadTypeL16Stereo,
		Spec:        audio.NewSampleSpec(44100, audio.StereoChannelSet()),
		Codec:       PCM16Codec{},
	})
	m.Register(Encoding{
		PayloadType: PayloadTypeL16Mono,
		Spec:        audio.NewSampleSpec(44100, audio.MonoChannelSet()),
		Codec:       PCM16Codec{},
	})
	m.Register(Encoding{
		PayloadType: PayloadTypeL24Stereo,
		Spec:        audio.NewSampleSpec(44100, audio.StereoChannelSet()),
		Codec:       PCM24Codec{},
	})
	m.Register(Encoding{
		PayloadType: PayloadTypeL32Stereo,
		Spec:        audio.NewSampleSpec(44100, audio.StereoChannelSet()),
		Codec:       PCM32Codec{},
	})
	m.Register(Encoding{
		PayloadType: PayloadTypeF32Stereo,
		Spec:        audio.NewSampleSpec(44100, audio.StereoChannelSet()),
		Codec:       Float32Codec{},
	})
	return m
}

func (m *EncodingMap) Register(e Encoding) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.byPT[e.PayloadType] = e
}

func (m *EncodingMap) Find(pt uint8) (Encoding, bool) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	e, ok := m.byPT[pt]
	return e, ok
}

// PCM16Codec is network-order signed 16-bit linear PCM (L16).
type PCM16Codec struct{}

func (PCM16Codec) BytesPerSample() int { return 2 }

func (PCM16Codec) Decode(dst []audio.Sample, payload []byte) int {
	n := min(len(dst), len(payload)/2)
	for i := 0; i < n; i++ {
		v := int16(binary.BigEndian.Uint16(payload[i*2:]))
		dst[i] = audio.Sample(v) / 32768
	}
	return n
}

func (PCM16Codec) Encode(dst []byte, src []audio.Sample) int {
	n := min(len(src), len(dst)/2)
	for i := 0; i < n; i++ {
		binary.BigEndian.PutUint16(dst[i*2:], uint16(clampInt(src[i], 32767)))
	}
	return n * 2
}

// PCM24Codec is network-order signed 24-bit linear PCM (L24).
type PCM24Codec struct{}

func (PCM24Codec) BytesPerSample() int { return 3 }

func (PCM24Codec) Decode(dst []audio.Sample, payload []byte) int {
	n := min(len(dst), len(payload)/3)
	for i := 0; i < n; i++ {
		v := int32(payload[i*3])<<16 | int32(payload[i*3+1])<<8 | int32(payload[i*3+2])
		if v&0x800000 != 0 {
			v -= 1 << 24
		}
		dst[i] = audio.Sample(v) / 8388608
	}
	return n
}

func (PCM24Codec) Encode(dst []byte, src []audio.Sample) int {
	n := min(len(src), len(dst)/3)
	for i := 0; i < n; i++ {
		v := clampInt(src[i], 8388607)
		dst[i*3] = byte(v >> 16)
		dst[i*3+1] = byte(v >> 8)
		dst[i*3+2] = byte(v)
	}
	return n * 3
}

// PCM32Codec is network-order signed 32-bit linear PCM.
type PCM32Codec struct{}

func (PCM32Codec) BytesPerSample() int { return 4 }

func (PCM32Codec) Decode(dst []audio.Sample, payload []byte) int {
	n := min(len(dst), len(payload)/4)
	for i := 0; i < n; i++ {
		v := int32(binary.BigEndian.Uint32(payload[i*4:]))
		dst[i] = audio.Sample(float64(v) / 2147483648)
	}
	return n
}

func (PCM32Codec) Encode(dst []byte, src []audio.Sample) int {
	n := min(len(src), len(dst)/4)
	for i := 0; i < n; i++ {
		binary.BigEndian.PutUint32(dst[i*4:], uint32(clampInt(src[i], 2147483647)))
	}
	return n * 4
}

// Float32Codec is network-order IEEE-754 float PCM.
type Float32Codec struct{}

func (Float32Codec) BytesPerSample() int { return 4 }

func (Float32Codec) Decode(dst []audio.Sample, payload []byte) int {
	n := min(len(dst), len(payload)/4)
	for i := 0; i < n; i++ {
		dst[i] = audio.Sample(math.Float32frombits(binary.BigEndian.Uint32(payload[i*4:])))
	}
	return n
}

func (Float32Codec) Encode(dst []byte, src []audio.Sample) int {
	n := min(len(src), len(dst)/4)
	for i := 0; i < n; i++ {
		binary.BigEndian.PutUint32(dst[i*4:], math.Float32bits(float32(src[i])))
	}
	return n * 4
}

func clampInt(s audio.Sample, maxVal int32) int32 {
	scale := float64(maxVal) + 1
	v := float64(s) * scale
	if v > float64(maxVal) {
		return maxVal
	}
	if v < -scale {
		return -maxVal - 1
	}
	return int32(v)
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
