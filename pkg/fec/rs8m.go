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
	"fmt"

	"github.com/klauspost/reedsolomon"

	"github.com/pulsecast/pulsecast/pkg/packet"
)

// ReedSolomonCodec implements FECFRAME Reed-Solomon GF(2^8) (RFC 6865) on
// top of the klauspost erasure coder. Any k of k+r symbols recover the
// block.
type ReedSolomonCodec struct {
	k, r int
	enc  reedsolomon.Encoder
}

func NewReedSolomonCodec(k, r int) (*ReedSolomonCodec, error) {
	if k <= 0 || r <= 0 || k+r > 255 {
		return nil, fmt.Errorf("fec: bad rs8m block shape k=%d r=%d", k, r)
	}
	enc, err := reedsolomon.New(k, r)
	if err != nil {
		return nil, err
	}
	return &ReedSolomonCodec{k: k, r: r, enc: enc}, nil
}

func (c *ReedSolomonCodec) Scheme() packet.FECScheme {
	return packet.FECReedSolomonM8
}

func (c *ReedSolomonCodec) SBNBits() int {
	return 8
}

func (c *ReedSolomonCodec) Decode(source, repair [][]byte, k, r, symbolSize int) (int, error) {
	if k != c.k || r != c.r {
		return 0, fmt.Errorf("fec: rs8m shape mismatch: got k=%d r=%d want k=%d r=%d", k, r, c.k, c.r)
	}

	present := 0
	shards := make([][]byte, k+r)
	for i, s := range source {
		if s != nil {
			shards[i] = s
			present++
		}
	}
	for i, s := range repair {
		if s != nil {
			shards[k+i] = s
			present++
		}
	}
	if present < k {
		return 0, ErrNotEnough
	}

	if err := c.enc.ReconstructData(shards); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrCodecFailed, err)
	}

	restored := 0
	for i := range source {
		if source[i] == nil {
			source[i] = shards[i]
			restored++
		}
	}
	return restored, nil
}

func (c *ReedSolomonCodec) Encode(source, repair [][]byte, k, r, symbolSize int) error {
	if k != c.k || r != c.r {
		return fmt.Errorf("fec: rs8m shape mismatch: got k=%d r=%d want k=%d r=%d", k, r, c.k, c.r)
	}
	shards := make([][]byte, k+r)
	copy(shards, source)
	copy(shards[k:], repair)
	if err := c.enc.Encode(shards); err != nil {
		return fmt.Errorf("%w: %v", ErrCodecFailed, err)
	}
	return nil
}
