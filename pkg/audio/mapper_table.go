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

package audio

// Downmix coefficient tables for mapping between surround channel sets,
// based on ITU-R BS.775-1 ANNEX 4 and ATSC A/52 sections 6.1.12 and 7.8.
//
// Only downmixing mappings are defined; upmixing uses the transpose of the
// nearest downmixing entry. Mappings are ordered from smaller to larger
// masks: the mapper picks the first entry whose masks cover both sides.

type mapRule struct {
	out   ChannelPosition
	in    ChannelPosition
	coeff float32
}

type channelMap struct {
	name    string
	larger  ChannelMask
	smaller ChannelMask
	rules   []mapRule
}

var chanMaps = []channelMap{
	{
		name:    "2.1->1.0",
		larger:  Mask2_1,
		smaller: MaskMono,
		rules: []mapRule{
			{PosFrontCenter, PosFrontLeft, 1.000},
			{PosFrontCenter, PosFrontRight, 1.000},
		},
	},
	{
		name:    "3.1->1.0",
		larger:  Mask3_1,
		smaller: MaskMono,
		rules: []mapRule{
			{PosFrontCenter, PosFrontLeft, 0.707},
			{PosFrontCenter, PosFrontCenter, 1.000},
			{PosFrontCenter, PosFrontRight, 0.707},
		},
	},
	{
		name:    "3.1->2.1",
		larger:  Mask3_1,
		smaller: Mask2_1,
		rules: []mapRule{
			{PosFrontLeft, PosFrontLeft, 1.000},
			{PosFrontLeft, PosFrontCenter, 0.707},
			{PosFrontRight, PosFrontRight, 1.000},
			{PosFrontRight, PosFrontCenter, 0.707},
			{PosLowFrequency, PosLowFrequency, 1.000},
		},
	},
	{
		name:    "4.1->1.0",
		larger:  Mask4_1,
		smaller: MaskMono,
		rules: []mapRule{
			{PosFrontCenter, PosFrontLeft, 0.707},
			{PosFrontCenter, PosFrontRight, 0.707},
			{PosFrontCenter, PosSurroundLeft, 0.500},
			{PosFrontCenter, PosSurroundRight, 0.500},
		},
	},
	{
		name:    "4.1->2.1",
		larger:  Mask4_1,
		smaller: Mask2_1,
		rules: []mapRule{
			{PosFrontLeft, PosFrontLeft, 1.000},
			{PosFrontLeft, PosSurroundLeft, 0.707},
			{PosFrontRight, PosFrontRight, 1.000},
			{PosFrontRight, PosSurroundRight, 0.707},
			{PosLowFrequency, PosLowFrequency, 1.000},
		},
	},
	{
		name:    "4.1->3.1",
		larger:  Mask4_1,
		smaller: Mask3_1,
		rules: []mapRule{
			{PosFrontLeft, PosFrontLeft, 1.000},
			{PosFrontLeft, PosSurroundLeft, 0.707},
			{PosFrontCenter, PosFrontCenter, 1.000},
			{PosFrontRight, PosFrontRight, 1.000},
			{PosFrontRight, PosSurroundRight, 0.707},
			{PosLowFrequency, PosLowFrequency, 1.000},
		},
	},
	{
		name:    "5.1.2->1.0",
		larger:  Mask5_1_2,
		smaller: MaskMono,
		rules: []mapRule{
			{PosFrontCenter, PosFrontLeft, 0.707},
			{PosFrontCenter, PosFrontCenter, 1.000},
			{PosFrontCenter, PosFrontRight, 0.707},
			{PosFrontCenter, PosSurroundLeft, 0.500},
			{PosFrontCenter, PosSurroundRight, 0.500},
			{PosFrontCenter, PosTopMidLeft, 0.500},
			{PosFrontCenter, PosTopMidRight, 0.500},
		},
	},
	{
		name:    "5.1.2->2.1",
		larger:  Mask5_1_2,
		smaller: Mask2_1,
		rules: []mapRule{
			{PosFrontLeft, PosFrontLeft, 1.000},
			{PosFrontLeft, PosFrontCenter, 0.707},
			{PosFrontLeft, PosSurroundLeft, 0.707},
			{PosFrontLeft, PosTopMidLeft, 0.707},
			{PosFrontRight, PosFrontRight, 1.000},
			{PosFrontRight, PosFrontCenter, 0.707},
			{PosFrontRight, PosSurroundRight, 0.707},
			{PosFrontRight, PosTopMidRight, 0.707},
			{PosLowFrequency, PosLowFrequency, 1.000},
		},
	},
	{
		name:    "5.1.2->3.1",
		larger:  Mask5_1_2,
		smaller: Mask3_1,
		rules: []mapRule{
			{PosFrontLeft, PosFrontLeft, 1.000},
			{PosFrontLeft, PosSurroundLeft, 0.707},
			{PosFrontLeft, PosTopMidLeft, 0.707},
			{PosFrontCenter, PosFrontCenter, 1.000},
			{PosFrontRight, PosFrontRight, 1.000},
			{PosFrontRight, PosSurroundRight, 0.707},
			{PosFrontRight, PosTopMidRight, 0.707},
			{PosLowFrequency, PosLowFrequency, 1.000},
		},
	},
	{
		name:    "5.1.2->4.1",
		larger:  Mask5_1_2,
		smaller: Mask4_1,
		rules: []mapRule{
			{PosFrontLeft, PosFrontLeft, 1.000},
			{PosFrontLeft, PosFrontCenter, 0.707},
			{PosFrontLeft, PosTopMidLeft, 0.707},
			{PosFrontRight, PosFrontRight, 1.000},
			{PosFrontRight, PosFrontCenter, 0.707},
			{PosFrontRight, PosTopMidRight, 0.707},
			{PosSurroundLeft, PosSurroundLeft, 1.000},
			{PosSurroundLeft, PosTopMidLeft, 0.707},
			{PosSurroundRight, PosSurroundRight, 1.000},
			{PosSurroundRight, PosTopMidRight, 0.707},
			{PosLowFrequency, PosLowFrequency, 1.000},
		},
	},
	{
		name:    "5.1.2->5.1",
		larger:  Mask5_1_2,
		smaller: Mask5_1,
		rules: []mapRule{
			{PosFrontLeft, PosFrontLeft, 1.000},
			{PosFrontLeft, PosTopMidLeft, 0.707},
			{PosFrontCenter, PosFrontCenter, 1.000},
			{PosFrontRight, PosFrontRight, 1.000},
			{PosFrontRight, PosTopMidRight, 0.707},
			{PosSurroundLeft, PosSurroundLeft, 1.000},
			{PosSurroundLeft, PosTopMidLeft, 0.707},
			{PosSurroundRight, PosSurroundRight, 1.000},
			{PosSurroundRight, PosTopMidRight, 0.707},
			{PosLowFrequency, PosLowFrequency, 1.000},
		},
	},
	{
		name:    "7.1.2->5.1.2",
		larger:  Mask7_1_2,
		smaller: Mask5_1_2,
		rules: []mapRule{
			{PosFrontLeft, PosFrontLeft, 1.000},
			{PosFrontCenter, PosFrontCenter, 1.000},
			{PosFrontRight, PosFrontRight, 1.000},
			{PosSurroundLeft, PosSurroundLeft, 1.000},
			{PosSurroundLeft, PosBackLeft, 0.707},
			{PosSurroundRight, PosSurroundRight, 1.000},
			{PosSurroundRight, PosBackRight, 0.707},
			{PosTopMidLeft, PosTopMidLeft, 1.000},
			{PosTopMidRight, PosTopMidRight, 1.000},
			{PosLowFrequency, PosLowFrequency, 1.000},
		},
	},
}
