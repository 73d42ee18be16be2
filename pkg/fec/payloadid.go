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

package fec

import (
	"encoding/binary"
	"errors"

	"github.com/pulsecast/pulsecast/pkg/packet"
)

// FECFRAME payload IDs. Source packets carry a footer appended to the RTP
// packet; repair packets carry a header followed by the repair symbol.
//
// Reed-Solomon m=8 (RFC 6865):
//
//	source footer:  SBN(8) ESI(8)
//	repair header:  SBN(8) ESI(8) SBL(8) BLEN(8) ESL(16)
//
// LDPC-Staircase (RFC 6816), analogous with 16-bit fields:
//
//	source footer:  SBN(16) ESI(16)
//	repair header:  SBN(16) ESI(16) SBL(16) BLEN(16) ESL(16)

var ErrBadPayloadID = errors.New("fec: malformed payload id")

func sourceFooterLen(scheme packet.FECScheme) int {
	if scheme == packet.FECReedSolomonM8 {
		return 2
	}
	return 4
}

func repairHeaderLen(scheme packet.FECScheme) int {
	if scheme == packet.FECReedSolomonM8 {
		return 6
	}
	return 10
}

// ParseSourcePacket splits a source datagram into the protected RTP bytes
// and the FEC view fields.
func ParseSourcePacket(scheme packet.FECScheme, data []byte, view *packet.FEC) ([]byte, error) {
	fl := sourceFooterLen(scheme)
	if len(data) <= fl {
		return nil, ErrBadPayloadID
	}
	body := data[:len(data)-fl]
	footer := data[len(data)-fl:]

	view.Scheme = scheme
	if scheme == packet.FECReedSolomonM8 {
		view.BlockNumber = uint16(footer[0])
		view.SymbolID = uint16(footer[1])
	} else {
		view.BlockNumber = binary.BigEndian.Uint16(footer[0:])
		view.SymbolID = binary.BigEndian.Uint16(footer[2:])
	}
	view.Payload = data
	return body, nil
}

// ComposeSourceFooter appends the source payload ID to an RTP packet.
func ComposeSourceFooter(scheme packet.FECScheme, dst []byte, sbn, esi uint16) []byte {
	if scheme == packet.FECReedSolomonM8 {
		return append(dst, byte(sbn), byte(esi))
	}
	var footer [4]byte
	binary.BigEndian.PutUint16(footer[0:], sbn)
	binary.BigEndian.PutUint16(footer[2:], esi)
	return append(dst, footer[:]...)
}

// ParseRepairPacket fills the FEC view from a repair datagram.
func ParseRepairPacket(scheme packet.FECScheme, data []byte, view *packet.FEC) error {
	hl := repairHeaderLen(scheme)
	if len(data) <= hl {
		return ErrBadPayloadID
	}

	view.Scheme = scheme
	var esl uint16
	if scheme == packet.FECReedSolomonM8 {
		view.BlockNumber = uint16(data[0])
		view.SymbolID = uint16(data[1])
		view.SourceBlockLength = uint16(data[2])
		view.BlockLength = uint16(data[3])
		esl = binary.BigEndian.Uint16(data[4:])
	} else {
		view.BlockNumber = binary.BigEndian.Uint16(data[0:])
		view.SymbolID = binary.BigEndian.Uint16(data[2:])
		view.SourceBlockLength = binary.BigEndian.Uint16(data[4:])
		view.BlockLength = binary.BigEndian.Uint16(data[6:])
		esl = binary.BigEndian.Uint16(data[8:])
	}
	symbol := data[hl:]
	if int(esl) != len(symbol) {
		return ErrBadPayloadID
	}
	view.Payload = symbol
	return nil
}

// ComposeRepairPacket builds a repair datagram from a symbol.
func ComposeRepairPacket(scheme packet.FECScheme, dst []byte, sbn, esi, sbl, blen uint16, symbol []byte) []byte {
	if scheme == packet.FECReedSolomonM8 {
		dst = append(dst, byte(sbn), byte(esi), byte(sbl), byte(blen))
		var esl [2]byte
		binary.BigEndian.PutUint16(esl[:], uint16(len(symbol)))
		dst = append(dst, esl[:]...)
	} else {
		var hdr [10]byte
		binary.BigEndian.PutUint16(hdr[0:], sbn)
		binary.BigEndian.PutUint16(hdr[2:], esi)
		binary.BigEndian.PutUint16(hdr[4:], sbl)
		binary.BigEndian.PutUint16(hdr[6:], blen)
		binary.BigEndian.PutUint16(hdr[8:], uint16(len(symbol)))
		dst = append(dst, hdr[:]...)
	}
	return append(dst, symbol...)
}
