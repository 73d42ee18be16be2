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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pulsecast/pulsecast/pkg/packet"
)

func makeBlock(k, symbolSize int) [][]byte {
	source := make([][]byte, k)
	for i := range source {
		source[i] = make([]byte, symbolSize)
		for j := range source[i] {
			source[i][j] = byte(i*31 + j)
		}
	}
	return source
}

func encodeBlock(t *testing.T, c Codec, source [][]byte, k, r, symbolSize int) [][]byte {
	t.Helper()
	repair := make([][]byte, r)
	for i := range repair {
		repair[i] = make([]byte, symbolSize)
	}
	require.NoError(t, c.Encode(source, repair, k, r, symbolSize))
	return repair
}

func testCodecRecoversAnyK(t *testing.T, c Codec, k, r, symbolSize int) {
	t.Helper()
	source := makeBlock(k, symbolSize)
	repair := encodeBlock(t, c, source, k, r, symbolSize)

	// every contiguous run of r source losses must be recoverable when all
	// repair symbols are present
	for lossStart := 0; lossStart+r <= k; lossStart++ {
		lossy := make([][]byte, k)
		copy(lossy, source)
		for i := lossStart; i < lossStart+r; i++ {
			lossy[i] = nil
		}
		rep := make([][]byte, r)
		copy(rep, repair)

		restored, err := c.Decode(lossy, rep, k, r, symbolSize)
		require.NoError(t, err, "losses at %d", lossStart)
		require.Equal(t, r, restored)
		for i := 0; i < k; i++ {
			require.Equal(t, source[i], lossy[i], "symbol %d", i)
		}
	}
}

func TestReedSolomonCodec(t *testing.T) {
	c, err := NewReedSolomonCodec(10, 5)
	require.NoError(t, err)
	require.Equal(t, packet.FECReedSolomonM8, c.Scheme())
	require.Equal(t, 8, c.SBNBits())

	testCodecRecoversAnyK(t, c, 10, 5, 64)
}

func TestReedSolomonNotEnough(t *testing.T) {
	c, err := NewReedSolomonCodec(4, 2)
	require.NoError(t, err)

	source := makeBlock(4, 32)
	repair := encodeBlock(t, c, source, 4, 2, 32)

	lossy := make([][]byte, 4)
	copy(lossy, source)
	lossy[0], lossy[1], lossy[2] = nil, nil, nil
	rep := [][]byte{repair[0], nil}

	_, err = c.Decode(lossy, rep, 4, 2, 32)
	require.ErrorIs(t, err, ErrNotEnough)
}

func TestReedSolomonShapeLimits(t *testing.T) {
	_, err := NewReedSolomonCodec(200, 100)
	require.Error(t, err)
	_, err = NewReedSolomonCodec(0, 5)
	require.Error(t, err)
}

func TestLDPCStaircaseCodec(t *testing.T) {
	c, err := NewLDPCStaircaseCodec(10, 5)
	require.NoError(t, err)
	require.Equal(t, packet.FECLDPCStaircase, c.Scheme())
	require.Equal(t, 16, c.SBNBits())

	source := makeBlock(10, 64)
	repair := encodeBlock(t, c, source, 10, 5, 64)

	// single losses are always recoverable
	for lost := 0; lost < 10; lost++ {
		lossy := make([][]byte, 10)
		copy(lossy, source)
		lossy[lost] = nil
		rep := make([][]byte, 5)
		copy(rep, repair)

		restored, err := c.Decode(lossy, rep, 10, 5, 64)
		require.NoError(t, err, "loss at %d", lost)
		require.Equal(t, 1, restored)
		require.Equal(t, source[lost], lossy[lost])
	}
}

func TestLDPCStaircaseMultipleLosses(t *testing.T) {
	const k, r, symbolSize = 16, 8, 48
	c, err := NewLDPCStaircaseCodec(k, r)
	require.NoError(t, err)

	source := makeBlock(k, symbolSize)
	repair := encodeBlock(t, c, source, k, r, symbolSize)

	recovered := 0
	for lossStart := 0; lossStart+3 <= k; lossStart += 3 {
		lossy := make([][]byte, k)
		copy(lossy, source)
		for i := lossStart; i < lossStart+3; i++ {
			lossy[i] = nil
		}
		rep := make([][]byte, r)
		copy(rep, repair)

		if _, err := c.Decode(lossy, rep, k, r, symbolSize); err == nil {
			recovered++
			for i := 0; i < k; i++ {
				require.Equal(t, source[i], lossy[i], "symbol %d", i)
			}
		}
	}
	// LDPC is probabilistic for multi-loss patterns, but with r=8 repair
	// symbols triple losses should essentially always decode
	require.Greater(t, recovered, 0)
}

func TestCodecRegistry(t *testing.T) {
	reg := DefaultCodecRegistry()

	for _, scheme := range []packet.FECScheme{packet.FECReedSolomonM8, packet.FECLDPCStaircase} {
		t.Run(fmt.Sprint(scheme), func(t *testing.T) {
			c, err := reg.New(scheme, 8, 4)
			require.NoError(t, err)
			require.Equal(t, scheme, c.Scheme())
		})
	}

	_, err := reg.New(packet.FECNone, 8, 4)
	require.ErrorIs(t, err, ErrUnknownCodec)
}

func TestPayloadIDRoundTrip(t *testing.T) {
	for _, scheme := range []packet.FECScheme{packet.FECReedSolomonM8, packet.FECLDPCStaircase} {
		t.Run(scheme.String(), func(t *testing.T) {
			rtpBytes := []byte{0x80, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 0xaa, 0xbb}

			wire := ComposeSourceFooter(scheme, append([]byte(nil), rtpBytes...), 7, 3)
			var view packet.FEC
			body, err := ParseSourcePacket(scheme, wire, &view)
			require.NoError(t, err)
			require.Equal(t, rtpBytes, body)
			require.Equal(t, uint16(7), view.BlockNumber)
			require.Equal(t, uint16(3), view.SymbolID)

			symbol := []byte{9, 8, 7, 6, 5}
			repairWire := ComposeRepairPacket(scheme, nil, 7, 12, 10, 15, symbol)
			var rview packet.FEC
			require.NoError(t, ParseRepairPacket(scheme, repairWire, &rview))
			require.Equal(t, uint16(7), rview.BlockNumber)
			require.Equal(t, uint16(12), rview.SymbolID)
			require.Equal(t, uint16(10), rview.SourceBlockLength)
			require.Equal(t, uint16(15), rview.BlockLength)
			require.Equal(t, symbol, rview.Payload)
		})
	}
}
