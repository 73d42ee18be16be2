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
	"errors"

	pionrtp "github.com/pion/rtp"

	"github.com/pulsecast/pulsecast/pkg/packet"
)

var ErrMalformed = errors.New("rtp: malformed packet")

// Parser fills RTP views from raw datagrams using the registered encodings
// to compute payload durations.
type Parser struct {
	encodings *EncodingMap
}

func NewParser(encodings *EncodingMap) *Parser {
	return &Parser{encodings: encodings}
}

// Parse parses data into p's RTP view. The payload slice aliases data, so
// data must stay alive as long as p (it normally aliases p's pooled buffer).
func (pr *Parser) Parse(p *packet.Packet, data []byte) error {
	var hdr pionrtp.Header
	n, err := hdr.Unmarshal(data)
	if err != nil {
		return ErrMalformed
	}

	view := p.EnableRTP()
	view.SSRC = hdr.SSRC
	view.SeqNum = hdr.SequenceNumber
	view.Timestamp = hdr.Timestamp
	view.PayloadType = hdr.PayloadType
	view.Marker = hdr.Marker
	view.Payload = data[n:]

	if enc, ok := pr.encodings.Find(hdr.PayloadType); ok {
		p.SetFlags(packet.FlagAudio)
		bytesPerFrame := enc.Codec.BytesPerSample() * enc.Spec.NumChannels()
		if bytesPerFrame > 0 {
			view.Duration = uint32(len(view.Payload) / bytesPerFrame)
		}
	}
	return nil
}

// Composer builds wire bytes from RTP views. Used by the test
// packetizers; the receive path only parses.
type Composer struct{}

func NewComposer() *Composer {
	return &Composer{}
}

// Compose appends the marshalled packet to dst and returns the result.
func (c *Composer) Compose(dst []byte, view *packet.RTP) ([]byte, error) {
	hdr := pionrtp.Header{
		Version:        2,
		Marker:         view.Marker,
		PayloadType:    view.PayloadType,
		SequenceNumber: view.SeqNum,
		Timestamp:      view.Timestamp,
		SSRC:           view.SSRC,
	}
	buf := make([]byte, hdr.MarshalSize()+len(view.Payload))
	n, err := hdr.MarshalTo(buf)
	if err != nil {
		return nil, err
	}
	copy(buf[n:], view.Payload)
	return append(dst, buf[:n+len(view.Payload)]...), nil
}
