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

package stats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pulsecast/pulsecast/pkg/audio"
	"github.com/pulsecast/pulsecast/pkg/packet"
)

func TestWrapAroundExtension(t *testing.T) {
	w := NewWrapAround[uint16]()

	res := w.Update(65530)
	require.Equal(t, uint64(65530), res.ExtendedVal)

	for seq := uint16(65531); seq != 5; seq++ {
		res = w.Update(seq)
		require.False(t, res.IsOutOfOrder)
	}
	require.Equal(t, uint64(65536+4), w.GetExtendedHighest())

	// out-of-order value from before the wrap maps into the old cycle
	res = w.Update(65534)
	require.True(t, res.IsOutOfOrder)
	require.Equal(t, uint64(65534), res.ExtendedVal)

	// duplicate of the highest
	res = w.Update(4)
	require.True(t, res.IsDuplicate)
}

func TestLinkMeterLossAccounting(t *testing.T) {
	spec := audio.NewSampleSpec(44100, audio.MonoChannelSet())
	lm := NewLinkMeter(DefaultLinkMeterConfig(), spec)

	now := time.Unix(1000, 0)
	view := &packet.RTP{SSRC: 1, SeqNum: 100, Timestamp: 0}
	step := spec.SamplesPerChanToNs(100)

	for i := 0; i < 10; i++ {
		lm.ProcessPacket(view, now)
		view.SeqNum++
		view.Timestamp += 100
		now = now.Add(step)
	}

	// skip 5 seqnums
	view.SeqNum += 5
	lm.ProcessPacket(view, now)

	m := lm.Metrics()
	require.Equal(t, int64(16), m.ExpectedPackets)
	require.Equal(t, int64(11), m.ReceivedPackets)
	require.Equal(t, int64(5), m.LostPackets)
}

func TestLinkMeterJitterWindow(t *testing.T) {
	spec := audio.NewSampleSpec(44100, audio.MonoChannelSet())
	lm := NewLinkMeter(LinkMeterConfig{SlidingWindowLength: 8}, spec)

	// packets spaced exactly per their timestamps: zero jitter
	now := time.Unix(1000, 0)
	view := &packet.RTP{SSRC: 1, SeqNum: 0, Timestamp: 0}
	step := spec.SamplesPerChanToNs(441) // 10ms
	for i := 0; i < 10; i++ {
		lm.ProcessPacket(view, now)
		view.SeqNum++
		view.Timestamp += 441
		now = now.Add(step)
	}
	require.Equal(t, time.Duration(0), lm.Metrics().MeanJitter)

	// one late arrival bumps the mean and max
	now = now.Add(5 * time.Millisecond)
	lm.ProcessPacket(view, now)
	m := lm.Metrics()
	require.Greater(t, m.MaxJitter, 4*time.Millisecond)
	require.Greater(t, m.MeanJitter, time.Duration(0))
}

func TestLinkMeterRecoveredAndRTT(t *testing.T) {
	spec := audio.NewSampleSpec(44100, audio.MonoChannelSet())
	lm := NewLinkMeter(DefaultLinkMeterConfig(), spec)

	lm.AddRecovered(3)
	lm.ProcessRTT(42 * time.Millisecond)
	lm.ProcessRTT(-time.Millisecond) // ignored

	m := lm.Metrics()
	require.Equal(t, int64(3), m.RecoveredPackets)
	require.Equal(t, 42*time.Millisecond, m.RTT)
}
