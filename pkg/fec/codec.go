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
	"errors"
	"fmt"

	"github.com/pulsecast/pulsecast/pkg/packet"
)

var (
	ErrCodecFailed  = errors.New("fec: codec failed")
	ErrNotEnough    = errors.New("fec: not enough symbols to repair")
	ErrUnknownCodec = errors.New("fec: unknown scheme")
)

// BlockDecoder reconstructs missing source symbols of one block. source and
// repair hold the received symbols, nil for missing ones; every present
// symbol is exactly symbolSize bytes. Missing source entries are filled in
// place when reconstruction succeeds. Decoders are stateless across blocks.
type BlockDecoder interface {
	Decode(source, repair [][]byte, k, r, symbolSize int) (restored int, err error)
}

// BlockEncoder computes the repair symbols of one block. All k source
// entries must be present; repair holds r pre-allocated symbolSize slices.
type BlockEncoder interface {
	Encode(source, repair [][]byte, k, r, symbolSize int) error
}

// Codec is a block code implementation for one FEC scheme.
type Codec interface {
	BlockDecoder
	BlockEncoder
	Scheme() packet.FECScheme

	// SBNBits is the wire width of the source block number; SBN wrap
	// arithmetic is signed over this width.
	SBNBits() int
}

// CodecRegistry maps schemes to codec factories. It is injected into
// receivers at construction so tests can plug fake backends.
type CodecRegistry struct {
	factories map[packet.FECScheme]func(k, r int) (Codec, error)
}

func NewCodecRegistry() *CodecRegistry {
	return &CodecRegistry{
		factories: make(map[packet.FECScheme]func(k, r int) (Codec, error)),
	}
}

// DefaultCodecRegistry registers the built-in Reed-Solomon and
// LDPC-Staircase codecs.
func DefaultCodecRegistry() *CodecRegistry {
	reg := NewCodecRegistry()
	reg.Register(packet.FECReedSolomonM8, func(k, r int) (Codec, error) {
		return NewReedSolomonCodec(k, r)
	})
	reg.Register(packet.FECLDPCStaircase, func(k, r int) (Codec, error) {
		return NewLDPCStaircaseCodec(k, r)
	})
	return reg
}

func (reg *CodecRegistry) Register(scheme packet.FECScheme, factory func(k, r int) (Codec, error)) {
	reg.factories[scheme] = factory
}

func (reg *CodecRegistry) New(scheme packet.FECScheme, k, r int) (Codec, error) {
	f, ok := reg.factories[scheme]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCodec, scheme)
	}
	return f(k, r)
}

// sbnDiff returns the signed distance from b to a over the given SBN width.
func sbnDiff(a, b uint16, bits int) int {
	if bits == 8 {
		return int(int8(uint8(a) - uint8(b)))
	}
	return int(int16(a - b))
}
