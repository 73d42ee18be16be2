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
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/pulsecast/pulsecast/pkg/audio"
	"github.com/pulsecast/pulsecast/pkg/packet"
)

type LinkMeterConfig struct {
	// SlidingWindowLength is the number of packets in the jitter window.
	SlidingWindowLength int
}

func DefaultLinkMeterConfig() LinkMeterConfig {
	return LinkMeterConfig{
		SlidingWindowLength: 1000,
	}
}

// LinkMetrics is a snapshot of per-flow link quality bookkeeping.
type LinkMetrics struct {
	ExtFirstSeqnum uint64
	ExtLastSeqnum  uint64

	ExpectedPackets  int64
	ReceivedPackets  int64
	LostPackets      int64
	RecoveredPackets int64

	// MeanJitter is the sliding-window mean absolute deviation of
	// inter-arrival spacing from inter-timestamp spacing.
	MeanJitter time.Duration
	MinJitter  time.Duration
	MaxJitter  time.Duration

	RTT time.Duration
}

// FractionLost returns the loss ratio over the whole flow lifetime.
func (m LinkMetrics) FractionLost() float64 {
	if m.ExpectedPackets == 0 {
		return 0
	}
	return float64(m.LostPackets) / float64(m.ExpectedPackets)
}

// LinkMeter tracks extended seqnums, expected/lost counts, sliding jitter,
// and RTT for one flow. ProcessPacket runs on the pipeline thread; Metrics
// may be read from any thread.
type LinkMeter struct {
	config LinkMeterConfig
	spec   audio.SampleSpec

	seq *WrapAround[uint16]

	hasPrev     bool
	prevArrival time.Time
	prevTs      uint32

	window    []time.Duration
	windowPos int
	windowSum time.Duration

	recovered atomic.Int64

	lock    sync.RWMutex
	metrics LinkMetrics
}

func NewLinkMeter(config LinkMeterConfig, spec audio.SampleSpec) *LinkMeter {
	return &LinkMeter{
		config: config,
		spec:   spec,
		seq:    NewWrapAround[uint16](),
		window: make([]time.Duration, 0, config.SlidingWindowLength),
	}
}

// ProcessPacket updates bookkeeping with one validated source packet.
func (lm *LinkMeter) ProcessPacket(view *packet.RTP, arrival time.Time) {
	res := lm.seq.Update(view.SeqNum)

	var jitterSample time.Duration
	hasJitter := false
	if lm.hasPrev && !res.IsDuplicate {
		arrivalDelta := arrival.Sub(lm.prevArrival)
		streamDelta := lm.spec.StreamTimestampDeltaToNs(
			int32(packet.TimestampDiff(view.Timestamp, lm.prevTs)))
		jitterSample = arrivalDelta - streamDelta
		if jitterSample < 0 {
			jitterSample = -jitterSample
		}
		hasJitter = true
	}
	if !res.IsOutOfOrder && !res.IsDuplicate {
		lm.hasPrev = true
		lm.prevArrival = arrival
		lm.prevTs = view.Timestamp
	}

	if hasJitter {
		if len(lm.window) < cap(lm.window) {
			lm.window = append(lm.window, jitterSample)
			lm.windowSum += jitterSample
		} else if len(lm.window) > 0 {
			lm.windowSum += jitterSample - lm.window[lm.windowPos]
			lm.window[lm.windowPos] = jitterSample
			lm.windowPos = (lm.windowPos + 1) % len(lm.window)
		}
	}

	lm.lock.Lock()
	lm.metrics.ExtFirstSeqnum = lm.seq.GetExtendedStart()
	lm.metrics.ExtLastSeqnum = lm.seq.GetExtendedHighest()
	lm.metrics.ReceivedPackets++
	lm.metrics.ExpectedPackets = int64(lm.seq.GetExtendedHighest()-lm.seq.GetExtendedStart()) + 1
	lost := lm.metrics.ExpectedPackets - lm.metrics.ReceivedPackets
	if lost < 0 {
		lost = 0
	}
	lm.metrics.LostPackets = lost
	lm.metrics.RecoveredPackets = lm.recovered.Load()
	if len(lm.window) > 0 {
		lm.metrics.MeanJitter = lm.windowSum / time.Duration(len(lm.window))
		minJ, maxJ := lm.window[0], lm.window[0]
		for _, j := range lm.window {
			if j < minJ {
				minJ = j
			}
			if j > maxJ {
				maxJ = j
			}
		}
		lm.metrics.MinJitter = minJ
		lm.metrics.MaxJitter = maxJ
	}
	lm.lock.Unlock()
}

// AddRecovered counts source packets reconstructed by the FEC decoder.
func (lm *LinkMeter) AddRecovered(n int) {
	lm.recovered.Add(int64(n))
}

// ProcessRTT records a round-trip estimate derived from RTCP LSR/DLSR.
func (lm *LinkMeter) ProcessRTT(rtt time.Duration) {
	if rtt < 0 {
		return
	}
	lm.lock.Lock()
	lm.metrics.RTT = rtt
	lm.lock.Unlock()
}

// Metrics returns a snapshot.
func (lm *LinkMeter) Metrics() LinkMetrics {
	lm.lock.RLock()
	defer lm.lock.RUnlock()
	m := lm.metrics
	m.RecoveredPackets = lm.recovered.Load()
	return m
}
