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
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/pulsecast/pulsecast/pkg/packet"
)

// Protocol identifies what an endpoint speaks.
type Protocol int

const (
	ProtoInvalid Protocol = iota

	// ProtoRTP is bare RTP without FEC.
	ProtoRTP

	// ProtoRTPRS8M is RTP with a Reed-Solomon source payload ID footer.
	ProtoRTPRS8M

	// ProtoRS8MRepair is the Reed-Solomon repair flow.
	ProtoRS8MRepair

	// ProtoRTPLDPC is RTP with an LDPC-Staircase source footer.
	ProtoRTPLDPC

	// ProtoLDPCRepair is the LDPC-Staircase repair flow.
	ProtoLDPCRepair

	// ProtoRTCP is the control flow.
	ProtoRTCP
)

var protoSchemes = map[string]Protocol{
	"rtp":      ProtoRTP,
	"rtp+rs8m": ProtoRTPRS8M,
	"rs8m":     ProtoRS8MRepair,
	"rtp+ldpc": ProtoRTPLDPC,
	"ldpc":     ProtoLDPCRepair,
	"rtcp":     ProtoRTCP,
}

func (p Protocol) String() string {
	for s, proto := range protoSchemes {
		if proto == p {
			return s
		}
	}
	return "invalid"
}

// IsSource reports whether the protocol carries audio source packets.
func (p Protocol) IsSource() bool {
	return p == ProtoRTP || p == ProtoRTPRS8M || p == ProtoRTPLDPC
}

// IsRepair reports whether the protocol carries FEC repair packets.
func (p Protocol) IsRepair() bool {
	return p == ProtoRS8MRepair || p == ProtoLDPCRepair
}

func (p Protocol) IsControl() bool {
	return p == ProtoRTCP
}

// FECScheme returns the block code the protocol participates in.
func (p Protocol) FECScheme() packet.FECScheme {
	switch p {
	case ProtoRTPRS8M, ProtoRS8MRepair:
		return packet.FECReedSolomonM8
	case ProtoRTPLDPC, ProtoLDPCRepair:
		return packet.FECLDPCStaircase
	}
	return packet.FECNone
}

// EndpointURI is a parsed endpoint address like "rtp+rs8m://0.0.0.0:10001".
type EndpointURI struct {
	Protocol Protocol
	Host     string
	Port     int
}

func ParseEndpointURI(s string) (EndpointURI, error) {
	scheme, rest, found := strings.Cut(s, "://")
	if !found {
		return EndpointURI{}, fmt.Errorf("receiver: endpoint uri %q has no scheme", s)
	}
	proto, ok := protoSchemes[scheme]
	if !ok {
		return EndpointURI{}, fmt.Errorf("receiver: unknown endpoint scheme %q", scheme)
	}
	host, portStr, err := net.SplitHostPort(rest)
	if err != nil {
		return EndpointURI{}, fmt.Errorf("receiver: endpoint uri %q: %w", s, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 0 || port > 65535 {
		return EndpointURI{}, fmt.Errorf("receiver: endpoint uri %q has bad port", s)
	}
	return EndpointURI{Protocol: proto, Host: host, Port: port}, nil
}

func (u EndpointURI) String() string {
	return fmt.Sprintf("%s://%s", u.Protocol, net.JoinHostPort(u.Host, strconv.Itoa(u.Port)))
}
