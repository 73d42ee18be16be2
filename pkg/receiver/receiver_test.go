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

package receiver

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pulsecast/pulsecast/pkg/audio"
	"github.com/pulsecast/pulsecast/pkg/fec"
	"github.com/pulsecast/pulsecast/pkg/logger"
	"github.com/pulsecast/pulsecast/pkg/packet"
	"github.com/pulsecast/pulsecast/pkg/rtp"
	"github.com/pulsecast/pulsecast/pkg/tuner"
)

func newTestReceiver(t *testing.T, config Config) *Receiver {
	t.Helper()
	r, err := New(config, nil, nil, nil, logger.GetLogger())
	require.NoError(t, err)
	t.Cleanup(r.Close)
	return r
}

// testSender packetizes a PCM stream the way the remote sender would.
type testSender struct {
	t        *testing.T
	composer *rtp.Composer
	codec    fec.Codec
	scheme   packet.FECScheme

	ssrc    uint32
	seq     uint16
	ts      uint32
	sbn     uint16
	esi     uint16
	srcAddr *net.UDPAddr
	now     time.Time

	k, r        int
	blockWires  [][]byte
	samplesSent int
}

func newTestSender(t *testing.T, scheme packet.FECScheme, k, r int) *testSender {
	s := &testSender{
		t:        t,
		composer: rtp.NewComposer(),
		scheme:   scheme,
		ssrc:     0x5eed,
		srcAddr:  &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 40000},
		now:      time.Unix(1700000000, 0),
		k:        k,
		r:        r,
	}
	if scheme != packet.FECNone {
		codec, err := fec.DefaultCodecRegistry().New(scheme, k, r)
		require.NoError(t, err)
		s.codec = codec
	}
	return s
}

// packetWire builds one stereo L16 source packet; sample values encode the
// running sample index so the output can be checked bit-exactly.
func (s *testSender) packetWire(nSamples int) []byte {
	samples := make([]audio.Sample, nSamples*2)
	for i := 0; i < nSamples; i++ {
		v := audio.Sample(int16((s.samplesSent+i)%30000)) / 32768
		samples[i*2] = v
		samples[i*2+1] = -v
	}
	s.samplesSent += nSamples

	payload := make([]byte, len(samples)*2)
	rtp.PCM16Codec{}.Encode(payload, samples)

	view := packet.RTP{
		SSRC:        s.ssrc,
		SeqNum:      s.seq,
		Timestamp:   s.ts,
		PayloadType: rtp.PayloadTypeL16Stereo,
		Payload:     payload,
	}
	s.seq++
	s.ts += uint32(nSamples)

	wire, err := s.composer.Compose(nil, &view)
	require.NoError(s.t, err)

	if s.scheme != packet.FECNone {
		wire = fec.ComposeSourceFooter(s.scheme, wire, s.sbn, s.esi)
		s.blockWires = append(s.blockWires, wire)
	}
	return wire
}

// finishBlock computes the repair wires for the accumulated block and
// advances the block counters.
func (s *testSender) finishBlock() [][]byte {
	require.Len(s.t, s.blockWires, s.k)
	symbolSize := len(s.blockWires[0])

	repair := make([][]byte, s.r)
	for i := range repair {
		repair[i] = make([]byte, symbolSize)
	}
	require.NoError(s.t, s.codec.Encode(s.blockWires, repair, s.k, s.r, symbolSize))

	wires := make([][]byte, s.r)
	for i := range repair {
		wires[i] = fec.ComposeRepairPacket(s.scheme, nil,
			s.sbn, uint16(s.k+i), uint16(s.k), uint16(s.k+s.r), repair[i])
	}

	s.sbn = (s.sbn + 1) & 0xff
	s.esi = 0
	s.blockWires = nil
	return wires
}

func (s *testSender) tick(d time.Duration) {
	s.now = s.now.Add(d)
}

func TestReceiverBareRTPLoopback(t *testing.T) {
	config := DefaultConfig()
	config.Loop.MaxSubframeSamples = 256
	// bit-exact loopback needs the tuner hands-off
	config.Group.Session.Latency.Profile = tuner.ProfileIntact
	r := newTestReceiver(t, config)

	slot, err := r.CreateSlot()
	require.NoError(t, err)
	uri, err := ParseEndpointURI("rtp://127.0.0.1:10001")
	require.NoError(t, err)
	ep, err := slot.AddEndpoint(uri)
	require.NoError(t, err)

	sender := newTestSender(t, packet.FECNone, 0, 0)

	const (
		packetSamples = 100
		prefill       = 90 // ~target latency at 44100
		frames        = 400
	)

	spec := config.OutSpec
	step := spec.SamplesPerChanToNs(packetSamples)

	send := func() {
		ep.WriteDatagram(sender.packetWire(packetSamples), sender.srcAddr, sender.now)
		sender.tick(step)
	}

	for i := 0; i < prefill; i++ {
		send()
	}

	f := audio.NewFrame(spec, packetSamples)
	var incompleteFrames int
	sampleIdx := 0

	for i := 0; i < frames; i++ {
		send()
		f.Clear()
		require.NoError(t, r.Read(f))

		if f.Flags&audio.FrameIncomplete != 0 {
			incompleteFrames++
		}
		for j := 0; j < packetSamples; j++ {
			want := float64(int16((sampleIdx+j)%30000)) / 32768
			require.InDelta(t, want, float64(f.Samples[j*2]), 1.001/32768,
				"frame %d sample %d left", i, j)
			require.InDelta(t, -want, float64(f.Samples[j*2+1]), 1.001/32768,
				"frame %d sample %d right", i, j)
		}
		sampleIdx += packetSamples
	}

	require.Zero(t, incompleteFrames, "lossless stream must never be incomplete")
}

func TestReceiverFECRestoresLosses(t *testing.T) {
	const (
		k             = 10
		fecR          = 5
		packetSamples = 100
		blocks        = 30
		dropESI       = 3
	)

	config := DefaultConfig()
	config.Group.Session.FEC.SourcePackets = k
	config.Group.Session.FEC.RepairPackets = fecR
	config.Group.Session.Latency.Profile = tuner.ProfileIntact
	r := newTestReceiver(t, config)

	slot, err := r.CreateSlot()
	require.NoError(t, err)

	sourceURI, _ := ParseEndpointURI("rtp+rs8m://127.0.0.1:10001")
	repairURI, _ := ParseEndpointURI("rs8m://127.0.0.1:10002")
	sourceEp, err := slot.AddEndpoint(sourceURI)
	require.NoError(t, err)
	repairEp, err := slot.AddEndpoint(repairURI)
	require.NoError(t, err)

	sender := newTestSender(t, packet.FECReedSolomonM8, k, fecR)
	spec := config.OutSpec
	step := spec.SamplesPerChanToNs(packetSamples)

	sendBlock := func() {
		for esi := 0; esi < k; esi++ {
			sender.esi = uint16(esi)
			wire := sender.packetWire(packetSamples)
			if esi != dropESI {
				sourceEp.WriteDatagram(wire, sender.srcAddr, sender.now)
			}
			sender.tick(step)
		}
		for _, wire := range sender.finishBlock() {
			repairEp.WriteDatagram(wire, sender.srcAddr, sender.now)
		}
	}

	// prefill close to the target latency
	for i := 0; i < 8; i++ {
		sendBlock()
	}

	f := audio.NewFrame(spec, packetSamples)
	var incompleteFrames int
	sampleIdx := 0

	for b := 8; b < blocks; b++ {
		sendBlock()
		for i := 0; i < k; i++ {
			f.Clear()
			require.NoError(t, r.Read(f))
			if f.Flags&audio.FrameIncomplete != 0 {
				incompleteFrames++
			}
			for j := 0; j < packetSamples; j += 10 {
				want := float64(int16((sampleIdx+j)%30000)) / 32768
				require.InDelta(t, want, float64(f.Samples[j*2]), 1.001/32768,
					"block %d frame %d sample %d", b, i, j)
			}
			sampleIdx += packetSamples
		}
	}

	require.Zero(t, incompleteFrames, "every dropped packet must be restored")

	sessions := slot.Group().Sessions()
	require.Len(t, sessions, 1)
	metrics := sessions[0].LinkMetrics()
	require.Equal(t, int64(blocks-8), metrics.RecoveredPackets,
		"one restored packet per fully consumed block")
}

func TestReceiverTasksRunBetweenSubframes(t *testing.T) {
	config := DefaultConfig()
	config.Loop.MaxSubframeSamples = 64
	r := newTestReceiver(t, config)

	_, err := r.CreateSlot()
	require.NoError(t, err)

	n, err := r.NumSessions()
	require.NoError(t, err)
	require.Zero(t, n)

	// a task submitted mid-read runs at a subframe boundary
	f := audio.NewFrame(config.OutSpec, 640)
	done := make(chan struct{})
	go func() {
		defer close(done)
		require.NoError(t, r.Read(f))
	}()

	ran := r.Loop().ScheduleAndWait(func() error { return nil })
	require.NoError(t, ran)
	<-done
}

func TestReceiverCloseRejectsReads(t *testing.T) {
	r := newTestReceiver(t, DefaultConfig())
	r.Close()

	f := audio.NewFrame(DefaultConfig().OutSpec, 64)
	require.ErrorIs(t, r.Read(f), ErrClosed)
}
