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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pulsecast/pulsecast/pkg/audio"
	"github.com/pulsecast/pulsecast/pkg/logger"
	"github.com/pulsecast/pulsecast/pkg/packet"
	"github.com/pulsecast/pulsecast/pkg/rtp"
)

func monoSpec() audio.SampleSpec {
	return audio.NewSampleSpec(44100, audio.MonoChannelSet())
}

// pushPCM16 enqueues one mono L16 packet holding the given samples.
func pushPCM16(t *testing.T, pool *packet.PacketPool, q *packet.SortedQueue, seq uint16, ts uint32, samples []audio.Sample) {
	t.Helper()
	p := pool.GetUnbuffered()
	view := p.EnableRTP()
	view.SSRC = 1
	view.SeqNum = seq
	view.Timestamp = ts
	view.PayloadType = rtp.PayloadTypeL16Mono
	view.Duration = uint32(len(samples))

	payload := make([]byte, len(samples)*2)
	rtp.PCM16Codec{}.Encode(payload, samples)
	view.Payload = payload

	p.SetFlags(packet.FlagAudio)
	require.True(t, q.Push(p))
}

func ramp(start, n int) []audio.Sample {
	out := make([]audio.Sample, n)
	for i := range out {
		out[i] = audio.Sample(start+i) / 32768
	}
	return out
}

func TestDepacketizerContiguousStream(t *testing.T) {
	pool := packet.NewPacketPool(512, 64)
	q := packet.NewSortedQueue(packet.SeqNumLess, 0)
	d := NewDepacketizer(q, rtp.PCM16Codec{}, monoSpec(), logger.GetLogger())

	for i := 0; i < 10; i++ {
		pushPCM16(t, pool, q, uint16(i), uint32(i*50), ramp(i*50, 50))
	}

	f := audio.NewFrame(monoSpec(), 100)
	for frameIdx := 0; frameIdx < 5; frameIdx++ {
		f.Clear()
		require.NoError(t, d.ReadFrame(f))
		require.True(t, f.Flags&audio.FrameNonBlank != 0)
		require.False(t, f.Flags&audio.FrameIncomplete != 0)
		for i, s := range f.Samples {
			want := audio.Sample(frameIdx*100+i) / 32768
			require.InDelta(t, float64(want), float64(s), 1.0/32768, "frame %d sample %d", frameIdx, i)
		}
	}

	// cursor advanced by exactly N per frame
	require.Equal(t, uint32(500), d.NextTimestamp())
}

func TestDepacketizerZeroFillsGaps(t *testing.T) {
	pool := packet.NewPacketPool(512, 64)
	q := packet.NewSortedQueue(packet.SeqNumLess, 0)
	d := NewDepacketizer(q, rtp.PCM16Codec{}, monoSpec(), logger.GetLogger())

	pushPCM16(t, pool, q, 0, 0, ramp(1000, 50))
	// packet at ts=50 lost
	pushPCM16(t, pool, q, 2, 100, ramp(3000, 50))

	f := audio.NewFrame(monoSpec(), 150)
	require.NoError(t, d.ReadFrame(f))
	require.True(t, f.Flags&audio.FrameIncomplete != 0)
	require.True(t, f.Flags&audio.FrameNonBlank != 0)

	for i := 0; i < 50; i++ {
		require.NotZero(t, f.Samples[i], "sample %d", i)
	}
	for i := 50; i < 100; i++ {
		require.Zero(t, f.Samples[i], "hole sample %d", i)
	}
	for i := 100; i < 150; i++ {
		require.NotZero(t, f.Samples[i], "sample %d", i)
	}
}

func TestDepacketizerDropsLatePackets(t *testing.T) {
	pool := packet.NewPacketPool(512, 64)
	q := packet.NewSortedQueue(packet.SeqNumLess, 0)
	d := NewDepacketizer(q, rtp.PCM16Codec{}, monoSpec(), logger.GetLogger())

	pushPCM16(t, pool, q, 0, 0, ramp(100, 50))

	f := audio.NewFrame(monoSpec(), 100)
	require.NoError(t, d.ReadFrame(f))

	// a packet entirely before the cursor arrives late
	pushPCM16(t, pool, q, 1, 20, ramp(0, 50))
	pushPCM16(t, pool, q, 2, 100, ramp(0, 50))

	f.Clear()
	require.NoError(t, d.ReadFrame(f))
	require.True(t, f.Flags&audio.FrameDrops != 0)
	require.Equal(t, int64(1), d.DroppedPackets())
}

func TestDepacketizerFuturePacketLeavesHole(t *testing.T) {
	pool := packet.NewPacketPool(512, 64)
	q := packet.NewSortedQueue(packet.SeqNumLess, 0)
	d := NewDepacketizer(q, rtp.PCM16Codec{}, monoSpec(), logger.GetLogger())

	pushPCM16(t, pool, q, 0, 0, ramp(100, 50))
	pushPCM16(t, pool, q, 5, 500, ramp(200, 50))

	f := audio.NewFrame(monoSpec(), 100)
	require.NoError(t, d.ReadFrame(f))
	require.True(t, f.Flags&audio.FrameIncomplete != 0)

	// the future packet stays queued for its own frame
	for frameIdx := 1; frameIdx < 5; frameIdx++ {
		f.Clear()
		require.NoError(t, d.ReadFrame(f))
	}
	f.Clear()
	require.NoError(t, d.ReadFrame(f))
	require.True(t, f.Flags&audio.FrameNonBlank != 0)
}

func TestDepacketizerPacketSpanningFrames(t *testing.T) {
	pool := packet.NewPacketPool(512, 64)
	q := packet.NewSortedQueue(packet.SeqNumLess, 0)
	d := NewDepacketizer(q, rtp.PCM16Codec{}, monoSpec(), logger.GetLogger())

	pushPCM16(t, pool, q, 0, 0, ramp(0, 150))

	f := audio.NewFrame(monoSpec(), 100)
	require.NoError(t, d.ReadFrame(f))
	require.InDelta(t, 99.0/32768, float64(f.Samples[99]), 1e-6)

	f.Clear()
	require.NoError(t, d.ReadFrame(f))
	require.InDelta(t, 100.0/32768, float64(f.Samples[0]), 1e-6)
	require.InDelta(t, 149.0/32768, float64(f.Samples[49]), 1e-6)
}
