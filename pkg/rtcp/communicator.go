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
	"encoding/binary"
	"time"

	pionrtcp "github.com/pion/rtcp"

	"github.com/pulsecast/pulsecast/pkg/logger"
	"github.com/pulsecast/pulsecast/pkg/session"
)

// latencyReportName tags the application-defined report carrying receiver
// latency metrics.
const latencyReportName = "PCLT"

type lastSenderReport struct {
	compactNTP uint32
	arrival    time.Time
}

// Communicator feeds inbound RTCP into the sessions' link meters and
// produces outbound receiver reports. It runs on the pipeline thread.
type Communicator struct {
	localSSRC uint32
	cname     string
	log       logger.Logger

	group *session.Group

	lastSR   map[uint32]lastSenderReport
	lastRecv map[uint32]int64 // received packets at last report, per SSRC

	e2eLatency time.Duration
}

func NewCommunicator(localSSRC uint32, cname string, group *session.Group, log logger.Logger) *Communicator {
	return &Communicator{
		localSSRC: localSSRC,
		cname:     cname,
		log:       log.WithComponent("rtcp"),
		group:     group,
		lastSR:    make(map[uint32]lastSenderReport),
		lastRecv:  make(map[uint32]int64),
	}
}

// SetE2ELatency records the end-to-end latency for the next report.
func (c *Communicator) SetE2ELatency(d time.Duration) {
	c.e2eLatency = d
}

// ProcessDatagram parses one compound RTCP datagram.
func (c *Communicator) ProcessDatagram(data []byte, arrival time.Time) error {
	pkts, err := pionrtcp.Unmarshal(data)
	if err != nil {
		return err
	}
	for _, pkt := range pkts {
		switch p := pkt.(type) {
		case *pionrtcp.SenderReport:
			c.lastSR[p.SSRC] = lastSenderReport{
				compactNTP: compactNTP(p.NTPTime),
				arrival:    arrival,
			}
			c.processReports(p.Reports, arrival)

		case *pionrtcp.ReceiverReport:
			c.processReports(p.Reports, arrival)

		case *pionrtcp.SourceDescription:
			for _, chunk := range p.Chunks {
				for _, item := range chunk.Items {
					if item.Type == pionrtcp.SDESCNAME {
						c.setCNAME(chunk.Source, item.Text)
					}
				}
			}

		case *pionrtcp.Goodbye:
			for _, src := range p.Sources {
				c.log.Debugw("bye received", "ssrc", src)
			}
		}
	}
	return nil
}

// processReports derives RTT from report blocks about our own reports.
func (c *Communicator) processReports(reports []pionrtcp.ReceptionReport, arrival time.Time) {
	for _, rep := range reports {
		if rep.SSRC != c.localSSRC || rep.LastSenderReport == 0 {
			continue
		}
		now := compactNTP(toNTP(arrival))
		rtt := compactNTPToDuration(now - rep.LastSenderReport - rep.Delay)
		for _, s := range c.group.Sessions() {
			s.ProcessRTT(rtt)
		}
	}
}

func (c *Communicator) setCNAME(ssrc uint32, cname string) {
	for _, s := range c.group.Sessions() {
		if s.SSRC() == ssrc {
			s.SetCNAME(cname)
		}
	}
}

// GenerateReports builds the outbound compound report: RR blocks for every
// session, our SDES CNAME, and the latency APP report.
func (c *Communicator) GenerateReports(now time.Time) ([]byte, error) {
	var reports []pionrtcp.ReceptionReport

	var niqLatency time.Duration
	for _, s := range c.group.Sessions() {
		m := s.LinkMetrics()

		recvSince := m.ReceivedPackets - c.lastRecv[s.SSRC()]
		c.lastRecv[s.SSRC()] = m.ReceivedPackets

		var fraction uint8
		if expected := recvSince + m.LostPackets; expected > 0 && m.LostPackets > 0 {
			f := float64(m.LostPackets) / float64(expected) * 256
			if f > 255 {
				f = 255
			}
			fraction = uint8(f)
		}

		var lsr, dlsr uint32
		if sr, ok := c.lastSR[s.SSRC()]; ok {
			lsr = sr.compactNTP
			dlsr = durationToCompactNTP(now.Sub(sr.arrival))
		}

		reports = append(reports, pionrtcp.ReceptionReport{
			SSRC:               s.SSRC(),
			FractionLost:       fraction,
			TotalLost:          uint32(m.LostPackets) & 0xffffff,
			LastSequenceNumber: uint32(m.ExtLastSeqnum),
			Jitter:             uint32(m.MeanJitter / time.Millisecond),
			LastSenderReport:   lsr,
			Delay:              dlsr,
		})

		if lat, ok := s.Monitor().CurrentLatency(); ok && lat > niqLatency {
			niqLatency = lat
		}
	}

	pkts := []pionrtcp.Packet{
		&pionrtcp.ReceiverReport{
			SSRC:    c.localSSRC,
			Reports: reports,
		},
		&pionrtcp.SourceDescription{
			Chunks: []pionrtcp.SourceDescriptionChunk{{
				Source: c.localSSRC,
				Items: []pionrtcp.SourceDescriptionItem{{
					Type: pionrtcp.SDESCNAME,
					Text: c.cname,
				}},
			}},
		},
		&pionrtcp.ApplicationDefined{
			SubType: 0,
			SSRC:    c.localSSRC,
			Name:    latencyReportName,
			Data:    encodeLatencyReport(niqLatency, c.e2eLatency),
		},
	}
	return pionrtcp.Marshal(pkts)
}

// encodeLatencyReport packs niq and e2e latencies as big-endian nanosecond
// counts.
func encodeLatencyReport(niq, e2e time.Duration) []byte {
	buf := make([]byte, 16)
	binary.BigEndian.PutUint64(buf[0:], uint64(niq))
	binary.BigEndian.PutUint64(buf[8:], uint64(e2e))
	return buf
}

// DecodeLatencyReport unpacks a latency APP report payload.
func DecodeLatencyReport(data []byte) (niq, e2e time.Duration, ok bool) {
	if len(data) < 16 {
		return 0, 0, false
	}
	return time.Duration(binary.BigEndian.Uint64(data[0:])),
		time.Duration(binary.BigEndian.Uint64(data[8:])), true
}

// NTP era offset between Unix and NTP epochs, in seconds.
const ntpEpochOffset = 2208988800

func toNTP(t time.Time) uint64 {
	secs := uint64(t.Unix()) + ntpEpochOffset
	frac := uint64(t.Nanosecond()) << 32 / uint64(time.Second)
	return secs<<32 | frac
}

func compactNTP(ntp uint64) uint32 {
	return uint32(ntp >> 16)
}

func compactNTPToDuration(compact uint32) time.Duration {
	secs := compact >> 16
	frac := compact & 0xffff
	return time.Duration(secs)*time.Second +
		time.Duration(uint64(frac)*uint64(time.Second)>>16)
}

func durationToCompactNTP(d time.Duration) uint32 {
	if d < 0 {
		return 0
	}
	secs := uint64(d / time.Second)
	frac := uint64(d%time.Second) << 16 / uint64(time.Second)
	return uint32(secs<<16 | frac)
}
