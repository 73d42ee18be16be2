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

package packet

import (
	"errors"
	"net"
	"sync/atomic"
	"time"
)

var (
	// ErrDrain is returned by readers when no packet is currently available.
	ErrDrain = errors.New("packet: drain")

	// ErrAbort is returned by readers after an unrecoverable protocol
	// violation. The owning session must be torn down.
	ErrAbort = errors.New("packet: abort")
)

type Flags uint16

const (
	// FlagAudio marks a source packet carrying PCM payload.
	FlagAudio Flags = 1 << iota

	// FlagRepair marks a packet carrying an FEC repair symbol.
	FlagRepair

	// FlagRestored marks a source packet reconstructed by the FEC decoder.
	FlagRestored

	// FlagControl marks an RTCP packet.
	FlagControl

	// FlagRTP marks packets with a parsed RTP header view.
	FlagRTP

	// FlagUDP marks packets with UDP metadata attached.
	FlagUDP
)

// UDP holds datagram metadata captured at ingress.
type UDP struct {
	SrcAddr    *net.UDPAddr
	DstAddr    *net.UDPAddr
	ReceivedAt time.Time
}

// RTP is a parsed view of an RTP header plus its payload slice. The payload
// aliases the packet's pooled buffer.
type RTP struct {
	SSRC        uint32
	SeqNum      uint16
	Timestamp   uint32
	PayloadType uint8
	Marker      bool

	// Duration is the payload length in stream timestamp units.
	Duration uint32

	// CaptureTime is the sender-side capture timestamp, mapped to the
	// receiver clock by the reclocking logic. Zero if unknown.
	CaptureTime time.Time

	Payload []byte
}

type FECScheme uint8

const (
	FECNone FECScheme = iota
	FECReedSolomonM8
	FECLDPCStaircase
)

func (s FECScheme) String() string {
	switch s {
	case FECReedSolomonM8:
		return "rs8m"
	case FECLDPCStaircase:
		return "ldpc"
	}
	return "none"
}

// FEC is a parsed view of an FECFRAME payload ID plus the symbol payload.
// For source packets the payload is the protected RTP packet; for repair
// packets it is the repair symbol.
type FEC struct {
	Scheme FECScheme

	BlockNumber uint16 // SBN
	SymbolID    uint16 // ESI

	// Block shape as carried by repair packets: k and k+r.
	SourceBlockLength uint16
	BlockLength       uint16

	Payload []byte
}

// Packet is a tagged union of UDP metadata and RTP/FEC header views over a
// pooled, reference-counted buffer.
type Packet struct {
	flags Flags

	UDP *UDP
	RTP *RTP
	FEC *FEC

	udpData UDP
	rtpData RTP
	fecData FEC

	buffer *Buffer
	refs   atomic.Int32
	pool   *PacketPool

	// intrusive link used by the MPSC ingress queue
	next atomic.Pointer[Packet]
}

func (p *Packet) Flags() Flags {
	return p.flags
}

func (p *Packet) SetFlags(f Flags) {
	p.flags |= f
}

func (p *Packet) HasFlags(f Flags) bool {
	return p.flags&f == f
}

// EnableUDP attaches UDP metadata storage and returns it.
func (p *Packet) EnableUDP() *UDP {
	p.flags |= FlagUDP
	p.UDP = &p.udpData
	return p.UDP
}

func (p *Packet) EnableRTP() *RTP {
	p.flags |= FlagRTP
	p.RTP = &p.rtpData
	return p.RTP
}

func (p *Packet) EnableFEC(scheme FECScheme) *FEC {
	p.FEC = &p.fecData
	p.FEC.Scheme = scheme
	return p.FEC
}

// Buffer returns the backing pooled buffer, or nil for unpooled packets.
func (p *Packet) Buffer() *Buffer {
	return p.buffer
}

// StreamTimestamp returns the RTP timestamp, panicking for non-RTP packets
// is avoided by returning zero.
func (p *Packet) StreamTimestamp() uint32 {
	if p.RTP == nil {
		return 0
	}
	return p.RTP.Timestamp
}

// IncRef acquires an additional reference to the packet and its buffer.
func (p *Packet) IncRef() {
	p.refs.Add(1)
	if p.buffer != nil {
		p.buffer.IncRef()
	}
}

// Release drops one reference. On the last drop the buffer returns to its
// pool and the packet struct is recycled.
func (p *Packet) Release() {
	if p.buffer != nil {
		p.buffer.DecRef()
	}
	if p.refs.Add(-1) == 0 && p.pool != nil {
		p.pool.put(p)
	}
}

func (p *Packet) reset() {
	p.flags = 0
	p.UDP = nil
	p.RTP = nil
	p.FEC = nil
	p.udpData = UDP{}
	p.rtpData = RTP{}
	p.fecData = FEC{}
	p.buffer = nil
	p.next.Store(nil)
}

// SeqLess compares two RTP sequence numbers with wrap-around, interpreting
// a-b as signed 16-bit.
func SeqLess(a, b uint16) bool {
	return int16(a-b) < 0
}

// SeqDiff returns the signed distance from b to a.
func SeqDiff(a, b uint16) int {
	return int(int16(a - b))
}

// TimestampLess compares two RTP timestamps with wrap-around.
func TimestampLess(a, b uint32) bool {
	return int32(a-b) < 0
}

// TimestampDiff returns the signed distance from b to a.
func TimestampDiff(a, b uint32) int {
	return int(int32(a - b))
}

// BlockLess compares two FEC block numbers with wrap-around.
func BlockLess(a, b uint16) bool {
	return int16(a-b) < 0
}

// BlockDiff returns the signed distance from b to a.
func BlockDiff(a, b uint16) int {
	return int(int16(a - b))
}

// Reader is a pull-based packet source. ReadPacket returns ErrDrain when no
// packet is available and ErrAbort after a fatal protocol violation.
type Reader interface {
	ReadPacket() (*Packet, error)
}

// Writer is a push-based packet sink.
type Writer interface {
	WritePacket(p *Packet) error
}
