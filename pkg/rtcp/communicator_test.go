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

package rtcp

import (
	"testing"
	"time"

	pionrtcp "github.com/pion/rtcp"
	"github.com/stretchr/testify/require"

	"github.com/pulsecast/pulsecast/pkg/audio"
	"github.com/pulsecast/pulsecast/pkg/audio/resampler"
	"github.com/pulsecast/pulsecast/pkg/fec"
	"github.com/pulsecast/pulsecast/pkg/logger"
	"github.com/pulsecast/pulsecast/pkg/packet"
	"github.com/pulsecast/pulsecast/pkg/rtp"
	"github.com/pulsecast/pulsecast/pkg/session"
)

func newTestGroup(t *testing.T) (*session.Group, *packet.PacketPool) {
	t.Helper()
	pool := packet.NewPacketPool(2048, 256)
	encodings := rtp.DefaultEncodingMap()
	parser := rtp.NewParser(encodings)
	group := session.NewGroup(
		session.DefaultGroupConfig(),
		audio.NewSampleSpec(44100, audio.StereoChannelSet()),
		encodings,
		fec.DefaultCodecRegistry(),
		resampler.DefaultRegistry(),
		pool, parser, logger.GetLogger())
	return group, pool
}

func routeOnePacket(t *testing.T, group *session.Group, pool *packet.PacketPool, ssrc uint32, seq uint16) {
	t.Helper()
	p := pool.GetUnbuffered()
	view := p.EnableRTP()
	view.SSRC = ssrc
	view.SeqNum = seq
	view.Timestamp = uint32(seq) * 100
	view.PayloadType = rtp.PayloadTypeL16Stereo
	view.Duration = 100
	view.Payload = make([]byte, 400)
	p.SetFlags(packet.FlagAudio)
	group.Route(p, time.Unix(1700000000, 0))
}

func TestCommunicatorGeneratesReceiverReport(t *testing.T) {
	group, pool := newTestGroup(t)
	comm := NewCommunicator(0x1001, "recv@test", group, logger.GetLogger())

	for seq := uint16(0); seq < 10; seq++ {
		routeOnePacket(t, group, pool, 0xabcd, seq)
	}
	// skip 3 seqnums to record loss
	routeOnePacket(t, group, pool, 0xabcd, 13)

	// sender report so LSR/DLSR can be echoed
	now := time.Unix(1700000100, 0)
	sr := &pionrtcp.SenderReport{
		SSRC:    0xabcd,
		NTPTime: toNTP(now),
		RTPTime: 12345,
	}
	wire, err := sr.Marshal()
	require.NoError(t, err)
	require.NoError(t, comm.ProcessDatagram(wire, now))

	comm.SetE2ELatency(150 * time.Millisecond)
	out, err := comm.GenerateReports(now.Add(time.Second))
	require.NoError(t, err)

	pkts, err := pionrtcp.Unmarshal(out)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(pkts), 3)

	rr, ok := pkts[0].(*pionrtcp.ReceiverReport)
	require.True(t, ok)
	require.Equal(t, uint32(0x1001), rr.SSRC)
	require.Len(t, rr.Reports, 1)
	rep := rr.Reports[0]
	require.Equal(t, uint32(0xabcd), rep.SSRC)
	require.Equal(t, uint32(3), rep.TotalLost)
	require.Equal(t, uint32(13), rep.LastSequenceNumber)
	require.NotZero(t, rep.LastSenderReport)
	require.NotZero(t, rep.Delay)

	sdes, ok := pkts[1].(*pionrtcp.SourceDescription)
	require.True(t, ok)
	require.Equal(t, "recv@test", sdes.Chunks[0].Items[0].Text)

	app, ok := pkts[2].(*pionrtcp.ApplicationDefined)
	require.True(t, ok)
	require.Equal(t, latencyReportName, app.Name)
	_, e2e, ok := DecodeLatencyReport(app.Data)
	require.True(t, ok)
	require.Equal(t, 150*time.Millisecond, e2e)
}

func TestCommunicatorSetsCNAME(t *testing.T) {
	group, pool := newTestGroup(t)
	comm := NewCommunicator(0x1001, "recv", group, logger.GetLogger())

	routeOnePacket(t, group, pool, 0xabcd, 0)

	sdes := &pionrtcp.SourceDescription{
		Chunks: []pionrtcp.SourceDescriptionChunk{{
			Source: 0xabcd,
			Items: []pionrtcp.SourceDescriptionItem{{
				Type: pionrtcp.SDESCNAME,
				Text: "sender@host",
			}},
		}},
	}
	wire, err := sdes.Marshal()
	require.NoError(t, err)
	require.NoError(t, comm.ProcessDatagram(wire, time.Now()))

	require.Equal(t, "sender@host", group.Sessions()[0].CNAME())
}

func TestCommunicatorDerivesRTT(t *testing.T) {
	group, pool := newTestGroup(t)
	comm := NewCommunicator(0x1001, "recv", group, logger.GetLogger())

	routeOnePacket(t, group, pool, 0xabcd, 0)

	// sender echoes our report: LSR 200ms ago, DLSR 50ms
	now := time.Unix(1700000200, 0)
	lsr := compactNTP(toNTP(now.Add(-200 * time.Millisecond)))
	rr := &pionrtcp.ReceiverReport{
		SSRC: 0xabcd,
		Reports: []pionrtcp.ReceptionReport{{
			SSRC:             0x1001,
			LastSenderReport: lsr,
			Delay:            durationToCompactNTP(50 * time.Millisecond),
		}},
	}
	wire, err := rr.Marshal()
	require.NoError(t, err)
	require.NoError(t, comm.ProcessDatagram(wire, now))

	rtt := group.Sessions()[0].LinkMetrics().RTT
	require.InDelta(t, float64(150*time.Millisecond), float64(rtt), float64(2*time.Millisecond))
}

func TestNTPHelpers(t *testing.T) {
	d := compactNTPToDuration(durationToCompactNTP(1500 * time.Millisecond))
	require.InDelta(t, float64(1500*time.Millisecond), float64(d), float64(time.Millisecond))

	now := time.Unix(1700000000, 123456789)
	ntp := toNTP(now)
	require.Equal(t, uint64(now.Unix()+ntpEpochOffset), ntp>>32)
}
